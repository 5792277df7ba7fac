package engine

import "errors"

// ErrSizedToZero means the configured investment amount buys less than one
// share at the current price. This is a policy rejection, not a failure.
var ErrSizedToZero = errors.New("engine: order sized to zero quantity")

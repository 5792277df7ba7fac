// Package broker provides brokerage integration interfaces and implementations.
package broker

import (
	"context"
	"errors"

	"soar-trader/internal/models"
)

// Brokerage defines the interface for brokerage operations.
type Brokerage interface {
	// Account
	CurrentAccount() models.AccountContext
	GetBalance(ctx context.Context) (*models.Balance, error)

	// Market data (brokerage-side quotes)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)

	// Orders
	BuyStock(ctx context.Context, symbol string, quantity int, price float64) (*OrderResult, error)
	SellStock(ctx context.Context, symbol string, quantity int, price float64) (*OrderResult, error)
}

// OrderResult represents the result of an order placement.
type OrderResult struct {
	Success bool
	OrderID string
	Message string
}

// Sentinel errors for failure classes callers branch on.
var (
	// ErrMarketClosed means the brokerage rejected the order because the
	// session is closed. Callers re-route to the pending-order queue.
	ErrMarketClosed = errors.New("broker: market closed")

	// ErrInsufficientFunds means buying power does not cover the order.
	ErrInsufficientFunds = errors.New("broker: insufficient funds")

	// ErrNoQuote means the brokerage has no price for the symbol in the
	// current session. Callers fall back to the market-data provider.
	ErrNoQuote = errors.New("broker: no quote available")

	// ErrInvalidSymbol means the symbol is not tradeable at the brokerage.
	ErrInvalidSymbol = errors.New("broker: invalid symbol")
)

package models

import "time"

// PendingOrderStatus represents the lifecycle state of a deferred order.
// Transitions are one-way: PENDING moves to exactly one terminal state.
type PendingOrderStatus string

const (
	PendingOrderPending   PendingOrderStatus = "PENDING"
	PendingOrderExecuted  PendingOrderStatus = "EXECUTED"
	PendingOrderCancelled PendingOrderStatus = "CANCELLED"
	PendingOrderFailed    PendingOrderStatus = "FAILED"
)

// Terminal reports whether the status can no longer change.
func (s PendingOrderStatus) Terminal() bool {
	return s != PendingOrderPending
}

// PendingOrder is an order recorded for deferred execution because the
// market was not open when it was created.
type PendingOrder struct {
	ID          string
	Symbol      string
	AccountKey  string
	Side        OrderSide
	Quantity    int
	PriceMode   PriceMode
	LimitPrice  float64
	TakeProfit  float64
	StopLoss    float64
	Status      PendingOrderStatus
	Reason      string
	CreatedAt   time.Time
	ResolvedAt  *time.Time
}

// Position is an open local position tracked for exit management.
// At most one exists per (symbol, account); a second buy folds into the
// existing row with a volume-weighted average buy price.
type Position struct {
	Symbol            string
	AccountKey        string
	Quantity          int
	BuyPrice          float64
	CurrentPrice      float64
	TakeProfitEnabled bool
	TakeProfitPercent float64
	StopLossEnabled   bool
	StopLossPercent   float64
	OpenedAt          time.Time
	UpdatedAt         time.Time
}

// TradeRecord is an append-only audit row written after every executed
// order, regardless of which path produced it.
type TradeRecord struct {
	ID         string
	Symbol     string
	Side       OrderSide
	Price      float64
	Quantity   int
	Amount     float64
	Status     string
	Reason     string
	ExecutedAt time.Time
}

// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"soar-trader/internal/models"
)

// ErrOrderNotPending is returned when a status update targets a pending
// order that has already reached a terminal state.
var ErrOrderNotPending = errors.New("store: order is not pending")

// DataStore defines the interface for data persistence.
type DataStore interface {
	// News
	SaveNewsEvent(ctx context.Context, event *models.NewsEvent) error
	GetRecentNews(ctx context.Context, since time.Time, bullishThreshold, impactThreshold float64) ([]models.NewsEvent, error)

	// Pending orders
	InsertPendingOrder(ctx context.Context, order *models.PendingOrder) error
	GetPendingOrders(ctx context.Context, accountKey string) ([]models.PendingOrder, error)
	GetPendingOrder(ctx context.Context, id string) (*models.PendingOrder, error)
	UpdatePendingOrderStatus(ctx context.Context, id string, status models.PendingOrderStatus, reason string) error

	// Positions
	UpsertPosition(ctx context.Context, pos *models.Position) error
	GetPosition(ctx context.Context, symbol, accountKey string) (*models.Position, error)
	GetMonitoredPositions(ctx context.Context, accountKey string) ([]models.Position, error)
	ReducePosition(ctx context.Context, symbol, accountKey string, quantity int) error
	DeletePosition(ctx context.Context, symbol, accountKey string) error

	// Trades
	InsertTrade(ctx context.Context, trade *models.TradeRecord) error
	GetRecentTrades(ctx context.Context, limit int) ([]models.TradeRecord, error)

	// Lifecycle
	Close() error
}

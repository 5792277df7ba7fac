package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"soar-trader/internal/broker"
	"soar-trader/internal/models"
	"soar-trader/internal/store"
	"soar-trader/internal/stream"
)

// flushThrottle spaces out brokerage calls while replaying queued orders.
const flushThrottle = 500 * time.Millisecond

// PendingQueue persists orders that cannot execute immediately and replays
// them when the market opens.
type PendingQueue struct {
	brokerage broker.Brokerage
	store     store.DataStore
	executor  *Executor
	events    *stream.Hub
	logger    zerolog.Logger
	throttle  time.Duration
}

// NewPendingQueue creates a pending-order queue.
func NewPendingQueue(b broker.Brokerage, s store.DataStore, ex *Executor, events *stream.Hub, logger zerolog.Logger) *PendingQueue {
	return &PendingQueue{
		brokerage: b,
		store:     s,
		executor:  ex,
		events:    events,
		logger:    logger.With().Str("component", "pending_queue").Logger(),
		throttle:  flushThrottle,
	}
}

// Enqueue persists an order for execution at the next market open.
func (q *PendingQueue) Enqueue(ctx context.Context, symbol string, side models.OrderSide, quantity int, mode models.PriceMode, limitPrice float64, cfg models.TradingConfig, reason string) (*models.PendingOrder, error) {
	order := &models.PendingOrder{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		AccountKey: q.brokerage.CurrentAccount().Key(),
		Side:       side,
		Quantity:   quantity,
		PriceMode:  mode,
		LimitPrice: limitPrice,
		TakeProfit: cfg.TakeProfitPercent,
		StopLoss:   cfg.StopLossPercent,
		Status:     models.PendingOrderPending,
		Reason:     reason,
		CreatedAt:  time.Now(),
	}

	if err := q.store.InsertPendingOrder(ctx, order); err != nil {
		return nil, err
	}

	q.logger.Info().
		Str("order_id", order.ID).
		Str("symbol", symbol).
		Str("side", string(side)).
		Int("quantity", quantity).
		Str("mode", string(mode)).
		Msg("order queued for market open")

	q.events.Publish(stream.EventOrderQueued, order)

	return order, nil
}

// Cancel transitions an order from pending to cancelled. Orders already in
// a terminal state are never reverted; the store enforces the one-way
// transition and returns ErrOrderNotPending.
func (q *PendingQueue) Cancel(ctx context.Context, orderID string) error {
	return q.store.UpdatePendingOrderStatus(ctx, orderID, models.PendingOrderCancelled, "cancelled by user")
}

// Flush replays all pending orders for the current account. Market-mode
// orders execute at the session-open price; limit-mode orders execute at
// their stored limit price. Each order lands in exactly one terminal state.
func (q *PendingQueue) Flush(ctx context.Context, cfg models.TradingConfig) {
	accountKey := q.brokerage.CurrentAccount().Key()

	orders, err := q.store.GetPendingOrders(ctx, accountKey)
	if err != nil {
		q.logger.Error().Err(err).Msg("loading pending orders failed, will retry on next open")
		return
	}
	if len(orders) == 0 {
		return
	}

	q.logger.Info().Int("count", len(orders)).Msg("flushing pending orders")

	for i, order := range orders {
		if ctx.Err() != nil {
			return
		}
		if i > 0 {
			time.Sleep(q.throttle)
		}
		q.flushOne(ctx, order, cfg)
	}
}

func (q *PendingQueue) flushOne(ctx context.Context, order models.PendingOrder, cfg models.TradingConfig) {
	// Re-check status: a cancel may have landed between load and now.
	current, err := q.store.GetPendingOrder(ctx, order.ID)
	if err != nil || current.Status != models.PendingOrderPending {
		return
	}

	price := order.LimitPrice
	if order.PriceMode == models.PriceModeMarket {
		resolved, err := q.executor.ResolvePrice(ctx, order.Symbol)
		if err != nil {
			q.fail(ctx, order.ID, "no session-open price: "+err.Error())
			return
		}
		price = resolved.Price
	}

	orderCfg := cfg
	orderCfg.TakeProfitPercent = order.TakeProfit
	orderCfg.StopLossPercent = order.StopLoss

	switch order.Side {
	case models.OrderSideBuy:
		_, err = q.executor.Buy(ctx, order.Symbol, order.Quantity, price, orderCfg, "queued order")
	default:
		_, err = q.executor.Sell(ctx, order.Symbol, order.Quantity, price, "queued order")
	}

	if err != nil {
		q.fail(ctx, order.ID, err.Error())
		return
	}

	if err := q.store.UpdatePendingOrderStatus(ctx, order.ID, models.PendingOrderExecuted, ""); err != nil {
		q.logger.Error().Err(err).Str("order_id", order.ID).Msg("order executed but status update failed")
		return
	}

	q.events.Publish(stream.EventOrderFlushed, order.ID)
}

func (q *PendingQueue) fail(ctx context.Context, orderID, reason string) {
	q.logger.Warn().Str("order_id", orderID).Str("reason", reason).Msg("pending order failed")
	if err := q.store.UpdatePendingOrderStatus(ctx, orderID, models.PendingOrderFailed, reason); err != nil && err != store.ErrOrderNotPending {
		q.logger.Error().Err(err).Str("order_id", orderID).Msg("failed to mark order failed")
	}
}

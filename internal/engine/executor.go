package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"soar-trader/internal/broker"
	"soar-trader/internal/marketdata"
	"soar-trader/internal/models"
	"soar-trader/internal/store"
	"soar-trader/internal/stream"
)

// PriceSource tags which resolver produced an execution price.
type PriceSource string

const (
	PriceSourceBrokerage  PriceSource = "brokerage"
	PriceSourceMarketData PriceSource = "marketdata"
)

// ResolvedPrice is a price plus the source that produced it.
type ResolvedPrice struct {
	Price  float64
	Source PriceSource
}

type priceResolver struct {
	source  PriceSource
	resolve func(ctx context.Context, symbol string) (float64, error)
}

// Executor places orders through the brokerage and records every executed
// trade. Buys create or grow the local position with the account's exit
// thresholds attached at creation time.
type Executor struct {
	brokerage broker.Brokerage
	data      marketdata.Provider
	store     store.DataStore
	events    *stream.Hub
	logger    zerolog.Logger
	resolvers []priceResolver
}

// NewExecutor creates an order executor. Price resolution prefers the
// brokerage quote and falls back to the market-data provider, which is the
// common case outside regular hours.
func NewExecutor(b broker.Brokerage, data marketdata.Provider, s store.DataStore, events *stream.Hub, logger zerolog.Logger) *Executor {
	ex := &Executor{
		brokerage: b,
		data:      data,
		store:     s,
		events:    events,
		logger:    logger.With().Str("component", "executor").Logger(),
	}
	ex.resolvers = []priceResolver{
		{source: PriceSourceBrokerage, resolve: b.GetCurrentPrice},
		{source: PriceSourceMarketData, resolve: func(ctx context.Context, symbol string) (float64, error) {
			quote, err := data.GetQuote(ctx, symbol)
			if err != nil {
				return 0, err
			}
			return quote.Price, nil
		}},
	}
	return ex
}

// ResolvePrice tries each price source in order and returns the first
// positive price along with its source tag.
func (ex *Executor) ResolvePrice(ctx context.Context, symbol string) (*ResolvedPrice, error) {
	var lastErr error
	for _, r := range ex.resolvers {
		price, err := r.resolve(ctx, symbol)
		if err != nil {
			lastErr = err
			ex.logger.Debug().Err(err).Str("symbol", symbol).Str("source", string(r.source)).Msg("price source failed, trying next")
			continue
		}
		if price > 0 {
			return &ResolvedPrice{Price: price, Source: r.source}, nil
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("resolving price for %s: %w", symbol, lastErr)
	}
	return nil, fmt.Errorf("resolving price for %s: no source returned a positive price", symbol)
}

// Buy places a buy order, records the trade and upserts the local position
// with the configured take-profit/stop-loss thresholds.
func (ex *Executor) Buy(ctx context.Context, symbol string, quantity int, price float64, cfg models.TradingConfig, reason string) (*models.TradeRecord, error) {
	result, err := ex.brokerage.BuyStock(ctx, symbol, quantity, price)
	if err != nil {
		return nil, err
	}

	trade := ex.recordTrade(ctx, symbol, models.OrderSideBuy, price, quantity, reason)

	account := ex.brokerage.CurrentAccount()
	pos := &models.Position{
		Symbol:            symbol,
		AccountKey:        account.Key(),
		Quantity:          quantity,
		BuyPrice:          price,
		CurrentPrice:      price,
		TakeProfitEnabled: cfg.TakeProfitPercent > 0,
		TakeProfitPercent: cfg.TakeProfitPercent,
		StopLossEnabled:   cfg.StopLossPercent > 0,
		StopLossPercent:   cfg.StopLossPercent,
	}
	if err := ex.store.UpsertPosition(ctx, pos); err != nil {
		ex.logger.Error().Err(err).Str("symbol", symbol).Msg("trade executed but position upsert failed")
	}

	ex.logger.Info().
		Str("symbol", symbol).
		Int("quantity", quantity).
		Float64("price", price).
		Str("order_id", result.OrderID).
		Str("reason", reason).
		Msg("buy executed")

	ex.events.Publish(stream.EventOrderExecuted, trade)

	return trade, nil
}

// Sell places a sell order, records the trade and reduces the local
// position, deleting it on a full exit.
func (ex *Executor) Sell(ctx context.Context, symbol string, quantity int, price float64, reason string) (*models.TradeRecord, error) {
	result, err := ex.brokerage.SellStock(ctx, symbol, quantity, price)
	if err != nil {
		return nil, err
	}

	trade := ex.recordTrade(ctx, symbol, models.OrderSideSell, price, quantity, reason)

	account := ex.brokerage.CurrentAccount()
	if err := ex.store.ReducePosition(ctx, symbol, account.Key(), quantity); err != nil {
		ex.logger.Error().Err(err).Str("symbol", symbol).Msg("trade executed but position reduce failed")
	}

	ex.logger.Info().
		Str("symbol", symbol).
		Int("quantity", quantity).
		Float64("price", price).
		Str("order_id", result.OrderID).
		Str("reason", reason).
		Msg("sell executed")

	ex.events.Publish(stream.EventOrderExecuted, trade)

	return trade, nil
}

// Liquidate sells the full quantity of a position and removes the local
// record. The reason tags the trade record ("take-profit", "stop-loss",
// manual liquidation).
func (ex *Executor) Liquidate(ctx context.Context, symbol string, quantity int, price float64, reason string) (*models.TradeRecord, error) {
	result, err := ex.brokerage.SellStock(ctx, symbol, quantity, price)
	if err != nil {
		return nil, err
	}

	trade := ex.recordTrade(ctx, symbol, models.OrderSideSell, price, quantity, reason)

	account := ex.brokerage.CurrentAccount()
	if err := ex.store.DeletePosition(ctx, symbol, account.Key()); err != nil {
		ex.logger.Error().Err(err).Str("symbol", symbol).Msg("liquidation executed but position delete failed")
	}

	ex.logger.Info().
		Str("symbol", symbol).
		Int("quantity", quantity).
		Float64("price", price).
		Str("order_id", result.OrderID).
		Str("reason", reason).
		Msg("position liquidated")

	ex.events.Publish(stream.EventPositionClosed, trade)

	return trade, nil
}

// recordTrade writes one audit row. A store failure is logged, not
// propagated: the order already executed and the caller must not treat it
// as failed.
func (ex *Executor) recordTrade(ctx context.Context, symbol string, side models.OrderSide, price float64, quantity int, reason string) *models.TradeRecord {
	trade := &models.TradeRecord{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Side:       side,
		Price:      price,
		Quantity:   quantity,
		Amount:     price * float64(quantity),
		Status:     "EXECUTED",
		Reason:     reason,
		ExecutedAt: time.Now(),
	}
	if err := ex.store.InsertTrade(ctx, trade); err != nil {
		ex.logger.Error().Err(err).Str("symbol", symbol).Msg("failed to record trade")
	}
	return trade
}

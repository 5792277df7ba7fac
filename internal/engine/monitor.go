package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"soar-trader/internal/broker"
	"soar-trader/internal/models"
	"soar-trader/internal/store"
)

const (
	// missThreshold is how many consecutive cycles a position must be
	// absent from the brokerage snapshot before the local record is
	// deleted. A single miss can be a transient brokerage outage.
	missThreshold = 3

	// positionThrottle spaces out per-position brokerage calls.
	positionThrottle = 300 * time.Millisecond
)

// PositionMonitor polls open positions and liquidates them when their
// take-profit or stop-loss threshold is crossed.
type PositionMonitor struct {
	brokerage broker.Brokerage
	store     store.DataStore
	executor  *Executor
	logger    zerolog.Logger
	throttle  time.Duration

	// missCounts tracks consecutive brokerage-snapshot misses per symbol.
	// Only touched from the monitor loop.
	missCounts map[string]int
}

// NewPositionMonitor creates a position monitor.
func NewPositionMonitor(b broker.Brokerage, s store.DataStore, ex *Executor, logger zerolog.Logger) *PositionMonitor {
	return &PositionMonitor{
		brokerage:  b,
		store:      s,
		executor:   ex,
		logger:     logger.With().Str("component", "position_monitor").Logger(),
		throttle:   positionThrottle,
		missCounts: make(map[string]int),
	}
}

// Cycle runs one monitoring pass. For each monitored position exactly one
// of three outcomes fires: out-of-band closure handling, take-profit, or
// stop-loss. Take-profit is checked first; under a valid configuration the
// two cannot both be true.
func (m *PositionMonitor) Cycle(ctx context.Context) {
	accountKey := m.brokerage.CurrentAccount().Key()

	positions, err := m.store.GetMonitoredPositions(ctx, accountKey)
	if err != nil {
		m.logger.Error().Err(err).Msg("loading monitored positions failed")
		return
	}
	if len(positions) == 0 {
		return
	}

	balance, err := m.brokerage.GetBalance(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("balance snapshot failed, skipping cycle")
		return
	}

	snapshot := make(map[string]models.BrokeragePosition, len(balance.Positions))
	for _, p := range balance.Positions {
		snapshot[p.Symbol] = p
	}

	for i, pos := range positions {
		if ctx.Err() != nil {
			return
		}
		if i > 0 {
			time.Sleep(m.throttle)
		}
		m.checkPosition(ctx, pos, snapshot)
	}
}

func (m *PositionMonitor) checkPosition(ctx context.Context, pos models.Position, snapshot map[string]models.BrokeragePosition) {
	live, found := snapshot[pos.Symbol]
	if !found {
		m.missCounts[pos.Symbol]++
		if m.missCounts[pos.Symbol] < missThreshold {
			m.logger.Debug().
				Str("symbol", pos.Symbol).
				Int("misses", m.missCounts[pos.Symbol]).
				Msg("position missing from brokerage snapshot")
			return
		}
		// Closed out of band: the brokerage no longer holds it, so the
		// local record is stale. Self-heal by deleting it.
		m.logger.Info().Str("symbol", pos.Symbol).Msg("position closed out-of-band, removing local record")
		if err := m.store.DeletePosition(ctx, pos.Symbol, pos.AccountKey); err != nil {
			m.logger.Error().Err(err).Str("symbol", pos.Symbol).Msg("failed to delete stale position")
			return
		}
		delete(m.missCounts, pos.Symbol)
		return
	}
	delete(m.missCounts, pos.Symbol)

	pnl := live.PnLPercent

	switch {
	case pos.TakeProfitEnabled && pnl >= pos.TakeProfitPercent:
		m.logger.Info().
			Str("symbol", pos.Symbol).
			Float64("pnl_percent", pnl).
			Float64("threshold", pos.TakeProfitPercent).
			Msg("take-profit triggered")
		m.liquidate(ctx, pos, live, "take-profit")

	case pos.StopLossEnabled && pnl <= -pos.StopLossPercent:
		m.logger.Info().
			Str("symbol", pos.Symbol).
			Float64("pnl_percent", pnl).
			Float64("threshold", -pos.StopLossPercent).
			Msg("stop-loss triggered")
		m.liquidate(ctx, pos, live, "stop-loss")
	}
}

func (m *PositionMonitor) liquidate(ctx context.Context, pos models.Position, live models.BrokeragePosition, reason string) {
	price := live.CurrentPrice
	if price <= 0 {
		resolved, err := m.executor.ResolvePrice(ctx, pos.Symbol)
		if err != nil {
			m.logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("no price for liquidation, will retry next cycle")
			return
		}
		price = resolved.Price
	}

	if _, err := m.executor.Liquidate(ctx, pos.Symbol, pos.Quantity, price, reason); err != nil {
		m.logger.Error().Err(err).Str("symbol", pos.Symbol).Str("reason", reason).Msg("liquidation failed, will retry next cycle")
	}
}

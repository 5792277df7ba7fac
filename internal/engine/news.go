package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"soar-trader/internal/broker"
	"soar-trader/internal/marketdata"
	"soar-trader/internal/models"
	"soar-trader/internal/store"
	"soar-trader/internal/stream"
)

// newsRecencyWindow bounds how far back each cycle looks for fresh events.
const newsRecencyWindow = time.Minute

// NewsFilter polls the news store for high-confidence events, deduplicates
// them and hands qualifying candidates to the buy pipeline. Every handled
// event id is marked processed exactly once, whatever the outcome, which
// guarantees an at-most-once action attempt per event.
type NewsFilter struct {
	brokerage broker.Brokerage
	data      marketdata.Provider
	store     store.DataStore
	trend     *TrendConfirmer
	clock     *SessionClock
	executor  *Executor
	queue     *PendingQueue
	events    *stream.Hub
	logger    zerolog.Logger

	processed *processedSet
	window    time.Duration
	now       func() time.Time
}

// NewNewsFilter creates a news signal filter.
func NewNewsFilter(b broker.Brokerage, data marketdata.Provider, s store.DataStore, trend *TrendConfirmer, clock *SessionClock, ex *Executor, q *PendingQueue, events *stream.Hub, logger zerolog.Logger) *NewsFilter {
	return &NewsFilter{
		brokerage: b,
		data:      data,
		store:     s,
		trend:     trend,
		clock:     clock,
		executor:  ex,
		queue:     q,
		events:    events,
		logger:    logger.With().Str("component", "news_filter").Logger(),
		processed: newProcessedSet(),
		window:    newsRecencyWindow,
		now:       time.Now,
	}
}

// Cycle runs one polling pass and returns the detections it produced.
// Candidates are processed sequentially; a failure on one never stops the
// rest.
func (nf *NewsFilter) Cycle(ctx context.Context, cfg models.TradingConfig) []models.DetectedNews {
	since := nf.now().Add(-nf.window)
	events, err := nf.store.GetRecentNews(ctx, since, cfg.BullishThreshold, cfg.ImpactThreshold)
	if err != nil {
		nf.logger.Error().Err(err).Msg("news query failed")
		return nil
	}

	var detections []models.DetectedNews
	for _, event := range events {
		if ctx.Err() != nil {
			return detections
		}
		if nf.processed.Contains(event.ID) {
			continue
		}
		// The store query already filters on the thresholds; re-check
		// before committing capital so a looser query can never widen
		// what the engine acts on.
		if !event.Qualifies(cfg.BullishThreshold, cfg.ImpactThreshold) {
			continue
		}
		detection := nf.handle(ctx, event, cfg)
		nf.processed.Add(event.ID)
		detections = append(detections, detection)
		nf.events.Publish(stream.EventNewsDetected, detection)
	}
	return detections
}

// handle runs the buy pipeline for one event: quotable check, trend
// confirmation, sizing, then execution or enqueue.
func (nf *NewsFilter) handle(ctx context.Context, event models.NewsEvent, cfg models.TradingConfig) models.DetectedNews {
	detection := models.DetectedNews{
		Event:      event,
		Action:     "skipped",
		DetectedAt: time.Now(),
	}

	logger := nf.logger.With().
		Str("symbol", event.Symbol).
		Int64("news_id", event.ID).
		Float64("bullish", event.BullishScore).
		Float64("impact", event.ImpactScore).
		Logger()

	quote, err := nf.data.GetQuote(ctx, event.Symbol)
	if err != nil || quote.Price <= 0 {
		// Unquotable symbols are marked processed so they never retry.
		logger.Warn().Msg("symbol not quotable, permanently skipped")
		return detection
	}
	detection.Price = quote.Price
	detection.ChangePercent = quote.ChangePercent

	trend := nf.trend.Confirm(ctx, event.Symbol)
	detection.TrendPercent = trend.TrendPercent
	if !trend.IsUptrend {
		logger.Info().Float64("trend_percent", trend.TrendPercent).Msg("trend confirmation failed, skipping")
		return detection
	}

	balance, err := nf.brokerage.GetBalance(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("balance query failed, skipping")
		return detection
	}

	quantity := SizeOrder(balance.AvailableCash, cfg.InvestmentPercent, cfg.MaxInvestment, trend.CurrentPrice)
	if quantity < 1 {
		logger.Info().Float64("cash", balance.AvailableCash).Float64("price", trend.CurrentPrice).Msg("sized to zero, skipping")
		return detection
	}

	if !nf.clock.IsRegularSession(nf.now()) {
		if _, err := nf.queue.Enqueue(ctx, event.Symbol, models.OrderSideBuy, quantity, models.PriceModeMarket, 0, cfg, "news signal (market closed)"); err != nil {
			logger.Error().Err(err).Msg("enqueue failed")
			return detection
		}
		detection.Action = "queued"
		return detection
	}

	resolved, err := nf.executor.ResolvePrice(ctx, event.Symbol)
	if err != nil {
		logger.Warn().Err(err).Msg("price resolution failed, skipping")
		return detection
	}

	if _, err := nf.executor.Buy(ctx, event.Symbol, quantity, resolved.Price, cfg, "news signal"); err != nil {
		if isMarketClosed(err) {
			// The clock said open but the brokerage disagreed; queue it.
			if _, qErr := nf.queue.Enqueue(ctx, event.Symbol, models.OrderSideBuy, quantity, models.PriceModeMarket, 0, cfg, "news signal (broker session closed)"); qErr == nil {
				detection.Action = "queued"
			}
			return detection
		}
		logger.Warn().Err(err).Msg("buy failed")
		return detection
	}

	detection.Action = "bought"
	return detection
}

// ProcessedCount returns the size of the dedup set.
func (nf *NewsFilter) ProcessedCount() int {
	return nf.processed.Len()
}

func isMarketClosed(err error) bool {
	return errors.Is(err, broker.ErrMarketClosed)
}

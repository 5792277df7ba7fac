package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"soar-trader/internal/broker"
	"soar-trader/internal/marketdata"
	"soar-trader/internal/models"
	"soar-trader/internal/store"
	"soar-trader/internal/stream"
)

const (
	defaultClockInterval   = 60 * time.Second
	defaultNewsInterval    = 10 * time.Second
	defaultMonitorInterval = 10 * time.Second

	// callTimeout bounds every external call so a hung brokerage or data
	// request cannot stall a loop iteration.
	callTimeout = 12 * time.Second

	// detectedNewsTTL is how long the detected-news view stays fresh
	// before a UI poll re-hits the market-data provider.
	detectedNewsTTL = 30 * time.Second

	// detectedNewsCap bounds the detected-news view.
	detectedNewsCap = 50
)

// Options tune the engine's loop intervals. Zero values take defaults.
type Options struct {
	ClockInterval   time.Duration
	NewsInterval    time.Duration
	MonitorInterval time.Duration
	MinTrendPercent float64
}

// Status is the engine's control-surface status.
type Status struct {
	Running bool `json:"running"`
	Enabled bool `json:"enabled"`
}

// Engine is the automated trading lifecycle engine. It owns three periodic
// loops (market clock, news filter, position monitor) plus the manual-buy
// entry point, and holds the mutable trading configuration.
type Engine struct {
	brokerage broker.Brokerage
	data      marketdata.Provider
	store     store.DataStore
	events    *stream.Hub
	logger    zerolog.Logger

	clock    *SessionClock
	executor *Executor
	queue    *PendingQueue
	monitor  *PositionMonitor
	filter   *NewsFilter

	opts Options

	mu      sync.RWMutex
	cfg     models.TradingConfig
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// openCh carries the clock loop's open-transition signal to the
	// flush worker.
	openCh chan struct{}

	detectedMu    sync.Mutex
	detected      []models.DetectedNews
	lastRefreshed time.Time
}

// New creates an engine with injected collaborators.
func New(b broker.Brokerage, data marketdata.Provider, s store.DataStore, events *stream.Hub, logger zerolog.Logger, cfg models.TradingConfig, opts Options) *Engine {
	if opts.ClockInterval == 0 {
		opts.ClockInterval = defaultClockInterval
	}
	if opts.NewsInterval == 0 {
		opts.NewsInterval = defaultNewsInterval
	}
	if opts.MonitorInterval == 0 {
		opts.MonitorInterval = defaultMonitorInterval
	}

	clock := NewSessionClock()
	executor := NewExecutor(b, data, s, events, logger)
	queue := NewPendingQueue(b, s, executor, events, logger)
	monitor := NewPositionMonitor(b, s, executor, logger)
	trend := NewTrendConfirmer(data, opts.MinTrendPercent)
	filter := NewNewsFilter(b, data, s, trend, clock, executor, queue, events, logger)

	return &Engine{
		brokerage: b,
		data:      data,
		store:     s,
		events:    events,
		logger:    logger.With().Str("component", "engine").Logger(),
		clock:     clock,
		executor:  executor,
		queue:     queue,
		monitor:   monitor,
		filter:    filter,
		opts:      opts,
		cfg:       cfg,
	}
}

// Start launches the engine loops. Starting a running engine is a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.running = true
	e.openCh = make(chan struct{}, 1)
	e.mu.Unlock()

	e.wg.Add(4)
	go e.clockLoop(ctx)
	go e.newsLoop(ctx)
	go e.monitorLoop(ctx)
	go e.flushWorker(ctx)

	e.logger.Info().Msg("engine started")
	e.events.Publish(stream.EventEngineStarted, nil)
}

// Stop cancels all loops and waits for them to drain. In-flight external
// calls finish but their results are discarded once the context is done.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	cancel()
	e.wg.Wait()

	e.logger.Info().Uint64("dropped_events", e.events.Dropped()).Msg("engine stopped")
	e.events.Publish(stream.EventEngineStopped, nil)
}

// GetStatus returns the control-surface status.
func (e *Engine) GetStatus() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{Running: e.running, Enabled: e.cfg.Enabled}
}

// GetConfig returns a copy of the current trading configuration.
func (e *Engine) GetConfig() models.TradingConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// SetConfig validates and replaces the trading configuration wholesale.
func (e *Engine) SetConfig(cfg models.TradingConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	e.logger.Info().
		Bool("enabled", cfg.Enabled).
		Float64("bullish_threshold", cfg.BullishThreshold).
		Float64("impact_threshold", cfg.ImpactThreshold).
		Msg("trading config updated")
	return nil
}

// clockLoop evaluates the session phase on a fixed interval and signals
// the flush worker on the closed-to-open transition.
func (e *Engine) clockLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.opts.ClockInterval)
	defer ticker.Stop()

	// Prime the previous phase so the first tick inside regular hours
	// after a pre-open start raises the edge.
	e.clock.Observe(time.Now())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			phase, justOpened := e.clock.Observe(time.Now())
			if justOpened {
				e.logger.Info().Str("phase", string(phase)).Msg("market open transition")
				select {
				case e.openCh <- struct{}{}:
				default:
				}
			}
		}
	}
}

// flushWorker replays queued orders when the clock signals the open.
func (e *Engine) flushWorker(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.openCh:
			callCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			e.queue.Flush(callCtx, e.GetConfig())
			cancel()
		}
	}
}

// newsLoop polls the news store and runs the buy pipeline.
func (e *Engine) newsLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.opts.NewsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cfg := e.GetConfig()
			if !cfg.Enabled {
				continue
			}
			callCtx, cancel := context.WithTimeout(ctx, callTimeout*4)
			detections := e.filter.Cycle(callCtx, cfg)
			cancel()
			if ctx.Err() != nil {
				// Engine stopped mid-cycle: discard late results.
				return
			}
			e.recordDetections(detections)
		}
	}
}

// monitorLoop polls open positions for exit conditions.
func (e *Engine) monitorLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.opts.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			callCtx, cancel := context.WithTimeout(ctx, callTimeout*4)
			e.monitor.Cycle(callCtx)
			cancel()
		}
	}
}

// ManualBuy sizes and places a buy for a user-picked symbol, queueing it
// when the market is closed. It skips trend confirmation: the user already
// decided.
func (e *Engine) ManualBuy(ctx context.Context, symbol string) (*models.TradeRecord, error) {
	cfg := e.GetConfig()

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resolved, err := e.executor.ResolvePrice(callCtx, symbol)
	if err != nil {
		return nil, err
	}

	balance, err := e.brokerage.GetBalance(callCtx)
	if err != nil {
		return nil, err
	}

	quantity := SizeOrder(balance.AvailableCash, cfg.InvestmentPercent, cfg.MaxInvestment, resolved.Price)
	if quantity < 1 {
		return nil, ErrSizedToZero
	}

	if !e.clock.IsRegularSession(time.Now()) {
		_, err := e.queue.Enqueue(callCtx, symbol, models.OrderSideBuy, quantity, models.PriceModeMarket, 0, cfg, "manual buy (market closed)")
		return nil, err
	}

	return e.executor.Buy(callCtx, symbol, quantity, resolved.Price, cfg, "manual buy")
}

// CancelPendingOrder cancels a queued order if it is still pending.
func (e *Engine) CancelPendingOrder(ctx context.Context, orderID string) error {
	return e.queue.Cancel(ctx, orderID)
}

// recordDetections appends news detections to the bounded UI view.
func (e *Engine) recordDetections(detections []models.DetectedNews) {
	if len(detections) == 0 {
		return
	}
	e.detectedMu.Lock()
	defer e.detectedMu.Unlock()

	e.detected = append(detections, e.detected...)
	if len(e.detected) > detectedNewsCap {
		e.detected = e.detected[:detectedNewsCap]
	}
}

// GetDetectedNews returns the recent qualifying news with quote snapshots.
// Quotes are refreshed at most once per TTL so UI polling does not hammer
// the market-data provider, and are fetched with the view lock released so
// a slow provider never blocks the news loop.
func (e *Engine) GetDetectedNews(ctx context.Context) []models.DetectedNews {
	e.detectedMu.Lock()
	refresh := time.Since(e.lastRefreshed) >= detectedNewsTTL && len(e.detected) > 0
	var symbols []string
	if refresh {
		e.lastRefreshed = time.Now()
		symbols = make([]string, 0, len(e.detected))
		for _, d := range e.detected {
			symbols = append(symbols, d.Event.Symbol)
		}
	}
	e.detectedMu.Unlock()

	var quotes map[string]*models.Quote
	if refresh {
		quotes = make(map[string]*models.Quote, len(symbols))
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		for _, symbol := range symbols {
			if _, ok := quotes[symbol]; ok {
				continue
			}
			quote, err := e.data.GetQuote(callCtx, symbol)
			if err != nil {
				continue
			}
			quotes[symbol] = quote
		}
		cancel()
	}

	e.detectedMu.Lock()
	defer e.detectedMu.Unlock()

	for i := range e.detected {
		if quote, ok := quotes[e.detected[i].Event.Symbol]; ok {
			e.detected[i].Price = quote.Price
			e.detected[i].ChangePercent = quote.ChangePercent
		}
	}

	out := make([]models.DetectedNews, len(e.detected))
	copy(out, e.detected)
	return out
}

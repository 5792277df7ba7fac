package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soar-trader/internal/broker"
	"soar-trader/internal/models"
)

func newTestEngine(t *testing.T, paper *broker.PaperBroker, provider *fakeProvider, cfg models.TradingConfig) *Engine {
	t.Helper()
	return New(paper, provider, newTestStore(t), testHub(), testLogger(), cfg, Options{
		ClockInterval:   50 * time.Millisecond,
		NewsInterval:    50 * time.Millisecond,
		MonitorInterval: 50 * time.Millisecond,
	})
}

func TestEngineStartStop(t *testing.T) {
	eng := newTestEngine(t, broker.NewPaperBroker(10000), &fakeProvider{}, models.DefaultTradingConfig())

	assert.False(t, eng.GetStatus().Running)

	eng.Start()
	assert.True(t, eng.GetStatus().Running)

	// Starting twice is a no-op, stopping twice is a no-op.
	eng.Start()
	eng.Stop()
	assert.False(t, eng.GetStatus().Running)
	eng.Stop()
}

func TestEngineLoopsRunAndDrain(t *testing.T) {
	eng := newTestEngine(t, broker.NewPaperBroker(10000), &fakeProvider{}, models.DefaultTradingConfig())

	eng.Start()
	time.Sleep(200 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		eng.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("engine loops did not drain on Stop")
	}
}

func TestEngineSetConfigValidates(t *testing.T) {
	eng := newTestEngine(t, broker.NewPaperBroker(10000), &fakeProvider{}, models.DefaultTradingConfig())

	bad := models.DefaultTradingConfig()
	bad.InvestmentPercent = 150
	err := eng.SetConfig(bad)
	require.Error(t, err)
	assert.Equal(t, models.DefaultTradingConfig().InvestmentPercent, eng.GetConfig().InvestmentPercent,
		"rejected config must leave the previous one in force")

	good := models.DefaultTradingConfig()
	good.Enabled = true
	good.BullishThreshold = 90
	require.NoError(t, eng.SetConfig(good))
	got := eng.GetConfig()
	assert.True(t, got.Enabled)
	assert.Equal(t, 90.0, got.BullishThreshold)
	assert.True(t, eng.GetStatus().Enabled)
}

func TestManualBuySizedToZero(t *testing.T) {
	paper := broker.NewPaperBroker(1) // a dollar buys nothing
	paper.SetPrice("AAPL", 500)
	eng := newTestEngine(t, paper, &fakeProvider{}, models.DefaultTradingConfig())

	_, err := eng.ManualBuy(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrSizedToZero)
}

func TestManualBuyUnresolvablePrice(t *testing.T) {
	paper := broker.NewPaperBroker(10000)
	eng := newTestEngine(t, paper, &fakeProvider{quotes: map[string]models.Quote{}}, models.DefaultTradingConfig())

	_, err := eng.ManualBuy(context.Background(), "NOPE")
	require.Error(t, err)
}

func TestDetectedNewsViewBounded(t *testing.T) {
	eng := newTestEngine(t, broker.NewPaperBroker(10000), &fakeProvider{}, models.DefaultTradingConfig())

	var batch []models.DetectedNews
	for i := 0; i < detectedNewsCap+20; i++ {
		batch = append(batch, models.DetectedNews{
			Event:  models.NewsEvent{ID: int64(i), Symbol: "AAPL"},
			Action: "skipped",
		})
	}
	eng.recordDetections(batch)

	got := eng.GetDetectedNews(context.Background())
	assert.Len(t, got, detectedNewsCap)
}

// blockingProvider parks every quote fetch until released, signalling entry
// on a buffered channel.
type blockingProvider struct {
	fakeProvider
	entered chan struct{}
	release chan struct{}
}

func (b *blockingProvider) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return &models.Quote{Symbol: symbol, Price: 100}, nil
}

func TestDetectedNewsRefreshDoesNotBlockRecording(t *testing.T) {
	provider := &blockingProvider{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	eng := New(broker.NewPaperBroker(10000), provider, newTestStore(t), testHub(), testLogger(),
		models.DefaultTradingConfig(), Options{})

	eng.recordDetections([]models.DetectedNews{{Event: models.NewsEvent{ID: 1, Symbol: "AAPL"}}})

	viewDone := make(chan struct{})
	go func() {
		eng.GetDetectedNews(context.Background())
		close(viewDone)
	}()

	select {
	case <-provider.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("quote refresh never started")
	}

	// The news loop must be able to record while a view poll is stuck
	// inside a slow quote fetch.
	recorded := make(chan struct{})
	go func() {
		eng.recordDetections([]models.DetectedNews{{Event: models.NewsEvent{ID: 2, Symbol: "MSFT"}}})
		close(recorded)
	}()
	select {
	case <-recorded:
	case <-time.After(time.Second):
		t.Fatal("recording blocked behind an in-flight quote refresh")
	}

	close(provider.release)
	<-viewDone

	got := eng.GetDetectedNews(context.Background())
	require.Len(t, got, 2)
}

func TestDetectedNewsNewestFirst(t *testing.T) {
	eng := newTestEngine(t, broker.NewPaperBroker(10000), &fakeProvider{}, models.DefaultTradingConfig())

	eng.recordDetections([]models.DetectedNews{{Event: models.NewsEvent{ID: 1, Symbol: "OLD"}}})
	eng.recordDetections([]models.DetectedNews{{Event: models.NewsEvent{ID: 2, Symbol: "NEW"}}})

	got := eng.GetDetectedNews(context.Background())
	require.Len(t, got, 2)
	assert.Equal(t, "NEW", got[0].Event.Symbol)
	assert.Equal(t, "OLD", got[1].Event.Symbol)
}

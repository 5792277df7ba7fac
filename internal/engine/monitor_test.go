package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soar-trader/internal/broker"
	"soar-trader/internal/models"
	"soar-trader/internal/store"
)

func newTestMonitor(t *testing.T, paper *broker.PaperBroker) (*PositionMonitor, *store.SQLiteStore) {
	t.Helper()
	s := newTestStore(t)
	ex := NewExecutor(paper, &fakeProvider{}, s, testHub(), testLogger())
	m := NewPositionMonitor(paper, s, ex, testLogger())
	m.throttle = 0
	return m, s
}

// buyAndTrack opens a brokerage position and mirrors it into the store with
// exit thresholds.
func buyAndTrack(t *testing.T, ctx context.Context, paper *broker.PaperBroker, s *store.SQLiteStore, symbol string, qty int, price, tp, sl float64) {
	t.Helper()
	paper.SetPrice(symbol, price)
	_, err := paper.BuyStock(ctx, symbol, qty, price)
	require.NoError(t, err)
	require.NoError(t, s.UpsertPosition(ctx, &models.Position{
		Symbol:            symbol,
		AccountKey:        paper.CurrentAccount().Key(),
		Quantity:          qty,
		BuyPrice:          price,
		CurrentPrice:      price,
		TakeProfitEnabled: tp > 0,
		TakeProfitPercent: tp,
		StopLossEnabled:   sl > 0,
		StopLossPercent:   sl,
	}))
}

func TestMonitorTakeProfitInclusiveBoundary(t *testing.T) {
	ctx := context.Background()
	paper := broker.NewPaperBroker(10000)
	m, s := newTestMonitor(t, paper)
	buyAndTrack(t, ctx, paper, s, "AAPL", 5, 100, 5, 2)

	// +4.99% does not trigger.
	paper.SetPrice("AAPL", 104.99)
	m.Cycle(ctx)
	pos, err := s.GetPosition(ctx, "AAPL", paper.CurrentAccount().Key())
	require.NoError(t, err)
	require.NotNil(t, pos, "position must survive below the threshold")

	// Exactly +5.00% triggers: the comparison is inclusive.
	paper.SetPrice("AAPL", 105)
	m.Cycle(ctx)
	pos, err = s.GetPosition(ctx, "AAPL", paper.CurrentAccount().Key())
	require.NoError(t, err)
	assert.Nil(t, pos, "position must be liquidated at exactly the take-profit threshold")

	trades, err := s.GetRecentTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "take-profit", trades[0].Reason)
	assert.Equal(t, models.OrderSideSell, trades[0].Side)
}

func TestMonitorStopLossInclusiveBoundary(t *testing.T) {
	ctx := context.Background()
	paper := broker.NewPaperBroker(10000)
	m, s := newTestMonitor(t, paper)
	buyAndTrack(t, ctx, paper, s, "TSLA", 4, 200, 5, 2)

	// -1.99% does not trigger.
	paper.SetPrice("TSLA", 196.02)
	m.Cycle(ctx)
	pos, err := s.GetPosition(ctx, "TSLA", paper.CurrentAccount().Key())
	require.NoError(t, err)
	require.NotNil(t, pos)

	// Exactly -2.00% triggers.
	paper.SetPrice("TSLA", 196)
	m.Cycle(ctx)
	pos, err = s.GetPosition(ctx, "TSLA", paper.CurrentAccount().Key())
	require.NoError(t, err)
	assert.Nil(t, pos, "position must be liquidated at exactly the stop-loss threshold")

	trades, err := s.GetRecentTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "stop-loss", trades[0].Reason)
}

func TestMonitorDeletesPositionAfterConsecutiveMisses(t *testing.T) {
	ctx := context.Background()
	paper := broker.NewPaperBroker(10000)
	m, s := newTestMonitor(t, paper)

	// Tracked locally but never held at the brokerage: closed out-of-band.
	accountKey := paper.CurrentAccount().Key()
	require.NoError(t, s.UpsertPosition(ctx, &models.Position{
		Symbol:            "GONE",
		AccountKey:        accountKey,
		Quantity:          3,
		BuyPrice:          50,
		TakeProfitEnabled: true,
		TakeProfitPercent: 5,
		StopLossEnabled:   true,
		StopLossPercent:   2,
	}))

	for cycle := 1; cycle < missThreshold; cycle++ {
		m.Cycle(ctx)
		pos, err := s.GetPosition(ctx, "GONE", accountKey)
		require.NoError(t, err)
		require.NotNil(t, pos, "position must survive miss %d of %d", cycle, missThreshold)
	}

	m.Cycle(ctx)
	pos, err := s.GetPosition(ctx, "GONE", accountKey)
	require.NoError(t, err)
	assert.Nil(t, pos, "position must be deleted after %d consecutive misses", missThreshold)

	// Out-of-band closure is a cleanup, never a sell.
	trades, err := s.GetRecentTrades(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestMonitorMissCountResetsOnReappearance(t *testing.T) {
	ctx := context.Background()
	paper := broker.NewPaperBroker(10000)
	m, s := newTestMonitor(t, paper)

	accountKey := paper.CurrentAccount().Key()
	require.NoError(t, s.UpsertPosition(ctx, &models.Position{
		Symbol:            "AAPL",
		AccountKey:        accountKey,
		Quantity:          2,
		BuyPrice:          100,
		TakeProfitEnabled: true,
		TakeProfitPercent: 50,
	}))

	// Two misses, then the brokerage reports the position again.
	m.Cycle(ctx)
	m.Cycle(ctx)
	paper.SetPrice("AAPL", 100)
	_, err := paper.BuyStock(ctx, "AAPL", 2, 100)
	require.NoError(t, err)
	m.Cycle(ctx)

	// Position disappears again; the counter must start over.
	_, err = paper.SellStock(ctx, "AAPL", 2, 100)
	require.NoError(t, err)
	for cycle := 1; cycle < missThreshold; cycle++ {
		m.Cycle(ctx)
		pos, err := s.GetPosition(ctx, "AAPL", accountKey)
		require.NoError(t, err)
		require.NotNil(t, pos, "counter must have reset, miss %d of %d", cycle, missThreshold)
	}
}

func TestMonitorUntrackedPositionsIgnored(t *testing.T) {
	ctx := context.Background()
	paper := broker.NewPaperBroker(10000)
	m, s := newTestMonitor(t, paper)

	// No exit thresholds: deliberately unmanaged positions rise however
	// far without the monitor touching them.
	accountKey := paper.CurrentAccount().Key()
	paper.SetPrice("HOLD", 100)
	_, err := paper.BuyStock(ctx, "HOLD", 2, 100)
	require.NoError(t, err)
	require.NoError(t, s.UpsertPosition(ctx, &models.Position{
		Symbol:     "HOLD",
		AccountKey: accountKey,
		Quantity:   2,
		BuyPrice:   100,
	}))

	paper.SetPrice("HOLD", 200)
	m.Cycle(ctx)

	trades, err := s.GetRecentTrades(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

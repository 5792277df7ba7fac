package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"soar-trader/internal/models"
	"soar-trader/internal/store"
	"soar-trader/internal/stream"
)

// fakeProvider is an in-memory market data provider for tests.
type fakeProvider struct {
	quotes map[string]models.Quote
	bars   map[string][]models.Bar
	err    error
}

func (f *fakeProvider) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	q, ok := f.quotes[symbol]
	if !ok {
		return nil, errors.New("no quote for " + symbol)
	}
	return &q, nil
}

func (f *fakeProvider) GetIntradaySeries(ctx context.Context, symbol string) ([]models.Bar, error) {
	if f.err != nil {
		return nil, f.err
	}
	bars, ok := f.bars[symbol]
	if !ok {
		return nil, errors.New("no bars for " + symbol)
	}
	return bars, nil
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testHub() *stream.Hub {
	return stream.NewHub()
}

// sessionBars builds a newest-first intraday series for one session day
// opening at openPrice and currently trading at lastClose.
func sessionBars(day time.Time, openPrice, lastClose float64) []models.Bar {
	open := time.Date(day.Year(), day.Month(), day.Day(), 9, 30, 0, 0, nyLocation)
	return []models.Bar{
		{Open: lastClose - 0.1, Close: lastClose, High: lastClose, Low: openPrice, Timestamp: open.Add(45 * time.Minute)},
		{Open: openPrice + 0.2, Close: openPrice + 0.3, High: openPrice + 0.4, Low: openPrice, Timestamp: open.Add(time.Minute)},
		{Open: openPrice, Close: openPrice + 0.2, High: openPrice + 0.3, Low: openPrice, Timestamp: open},
	}
}

// nyTime builds a wall-clock time in the exchange timezone.
func nyTime(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, nyLocation)
}

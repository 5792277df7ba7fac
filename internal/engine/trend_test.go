package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"soar-trader/internal/models"
)

func TestTrendConfirmBoundary(t *testing.T) {
	day := nyTime(2026, time.January, 5, 0, 0)

	tests := []struct {
		name      string
		open      float64
		last      float64
		wantTrend bool
	}{
		{"exactly at minimum counts", 100, 100.5, true},
		{"just below minimum rejected", 100, 100.49, false},
		{"strong rise", 100, 103, true},
		{"flat session", 100, 100, false},
		{"falling price", 100, 98, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{
				bars: map[string][]models.Bar{
					"AAPL": sessionBars(day, tt.open, tt.last),
				},
			}
			tc := NewTrendConfirmer(provider, 0.5)

			result := tc.Confirm(context.Background(), "AAPL")
			if result.IsUptrend != tt.wantTrend {
				t.Errorf("IsUptrend = %v (trend %.3f%%), want %v",
					result.IsUptrend, result.TrendPercent, tt.wantTrend)
			}
			if result.CurrentPrice != tt.last {
				t.Errorf("CurrentPrice = %v, want %v", result.CurrentPrice, tt.last)
			}
		})
	}
}

func TestTrendConfirmUsesLatestSessionOpen(t *testing.T) {
	// Yesterday closed much lower; the session open must come from the
	// latest day's oldest bar, not from yesterday's bars.
	today := nyTime(2026, time.January, 6, 9, 30)
	yesterday := nyTime(2026, time.January, 5, 15, 59)

	bars := []models.Bar{
		{Open: 100.8, Close: 101.0, Timestamp: today.Add(10 * time.Minute)},
		{Open: 100.0, Close: 100.6, Timestamp: today},
		{Open: 90.0, Close: 90.5, Timestamp: yesterday},
		{Open: 89.0, Close: 90.0, Timestamp: yesterday.Add(-time.Minute)},
	}
	provider := &fakeProvider{bars: map[string][]models.Bar{"TSLA": bars}}
	tc := NewTrendConfirmer(provider, 0.5)

	result := tc.Confirm(context.Background(), "TSLA")
	if !result.IsUptrend {
		t.Fatalf("expected uptrend, trend = %.3f%%", result.TrendPercent)
	}
	// (101 - 100) / 100 = 1%
	if result.TrendPercent < 0.99 || result.TrendPercent > 1.01 {
		t.Errorf("TrendPercent = %.3f, want ~1.0", result.TrendPercent)
	}
}

func TestTrendConfirmFailsClosed(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeProvider
	}{
		{"provider error", &fakeProvider{err: errors.New("api down")}},
		{"no bars", &fakeProvider{bars: map[string][]models.Bar{"AAPL": {}}}},
		{"zero open price", &fakeProvider{bars: map[string][]models.Bar{
			"AAPL": {{Open: 0, Close: 100, Timestamp: time.Now()}},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := NewTrendConfirmer(tt.provider, 0.5)
			result := tc.Confirm(context.Background(), "AAPL")
			if result.IsUptrend {
				t.Error("ambiguous data must never confirm an uptrend")
			}
		})
	}
}

func TestNewTrendConfirmerDefaultsMinimum(t *testing.T) {
	tc := NewTrendConfirmer(&fakeProvider{}, 0)
	if tc.minTrendPercent != defaultMinTrendPercent {
		t.Errorf("minTrendPercent = %v, want default %v", tc.minTrendPercent, defaultMinTrendPercent)
	}
}

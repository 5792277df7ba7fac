package engine

import (
	"context"
	"time"

	"soar-trader/internal/marketdata"
)

// defaultMinTrendPercent is the minimum intraday rise required before the
// engine commits capital to a bullish signal.
const defaultMinTrendPercent = 0.5

// TrendResult is the outcome of a trend confirmation check.
type TrendResult struct {
	IsUptrend    bool
	TrendPercent float64
	CurrentPrice float64
}

// TrendConfirmer validates that a candidate's price action agrees with its
// news signal before a buy is allowed. A high bullish score on a falling
// name is not a buy.
type TrendConfirmer struct {
	data            marketdata.Provider
	minTrendPercent float64
}

// NewTrendConfirmer creates a trend confirmer.
func NewTrendConfirmer(data marketdata.Provider, minTrendPercent float64) *TrendConfirmer {
	if minTrendPercent <= 0 {
		minTrendPercent = defaultMinTrendPercent
	}
	return &TrendConfirmer{data: data, minTrendPercent: minTrendPercent}
}

// Confirm compares the most recent intraday price against the session's
// opening price. Any data failure fails closed: never buy on ambiguous data.
func (tc *TrendConfirmer) Confirm(ctx context.Context, symbol string) TrendResult {
	bars, err := tc.data.GetIntradaySeries(ctx, symbol)
	if err != nil || len(bars) == 0 {
		return TrendResult{}
	}

	// Bars arrive newest-first. The session open is the open of the
	// oldest bar from the latest session day.
	latest := bars[0]
	sessionDay := dayOf(latest.Timestamp)

	sessionOpen := latest.Open
	for _, bar := range bars {
		if dayOf(bar.Timestamp) != sessionDay {
			break
		}
		sessionOpen = bar.Open
	}

	if sessionOpen <= 0 || latest.Close <= 0 {
		return TrendResult{}
	}

	trendPercent := (latest.Close - sessionOpen) / sessionOpen * 100

	return TrendResult{
		IsUptrend:    trendPercent >= tc.minTrendPercent,
		TrendPercent: trendPercent,
		CurrentPrice: latest.Close,
	}
}

func dayOf(t time.Time) string {
	return t.Format("2006-01-02")
}

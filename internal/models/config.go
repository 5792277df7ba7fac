package models

import "fmt"

// TradingConfig is the engine's runtime trading configuration. It is
// replaced wholesale on update; callers never mutate fields in place.
type TradingConfig struct {
	Enabled           bool    `mapstructure:"enabled" json:"enabled"`
	BullishThreshold  float64 `mapstructure:"bullish_threshold" json:"bullishThreshold"`
	ImpactThreshold   float64 `mapstructure:"impact_threshold" json:"impactThreshold"`
	InvestmentPercent float64 `mapstructure:"investment_percent" json:"investmentPercent"`
	MaxInvestment     float64 `mapstructure:"max_investment" json:"maxInvestment"`
	TakeProfitPercent float64 `mapstructure:"take_profit_percent" json:"takeProfitPercent"`
	StopLossPercent   float64 `mapstructure:"stop_loss_percent" json:"stopLossPercent"`
}

// DefaultTradingConfig returns conservative starting values.
func DefaultTradingConfig() TradingConfig {
	return TradingConfig{
		Enabled:           false,
		BullishThreshold:  95,
		ImpactThreshold:   95,
		InvestmentPercent: 10,
		MaxInvestment:     1000,
		TakeProfitPercent: 5,
		StopLossPercent:   2,
	}
}

// Validate rejects configurations that would silently misbehave at runtime.
// Take-profit and stop-loss are both expressed as positive percentages; a
// negative value would invert the exit comparisons and mask the conflict.
func (c TradingConfig) Validate() error {
	if c.BullishThreshold < 0 || c.BullishThreshold > 100 {
		return fmt.Errorf("bullish_threshold must be between 0 and 100, got %.1f", c.BullishThreshold)
	}
	if c.ImpactThreshold < 0 || c.ImpactThreshold > 100 {
		return fmt.Errorf("impact_threshold must be between 0 and 100, got %.1f", c.ImpactThreshold)
	}
	if c.InvestmentPercent <= 0 || c.InvestmentPercent > 100 {
		return fmt.Errorf("investment_percent must be between 0 and 100, got %.1f", c.InvestmentPercent)
	}
	if c.MaxInvestment < 0 {
		return fmt.Errorf("max_investment must be non-negative, got %.2f", c.MaxInvestment)
	}
	if c.TakeProfitPercent <= 0 {
		return fmt.Errorf("take_profit_percent must be positive, got %.1f", c.TakeProfitPercent)
	}
	if c.StopLossPercent <= 0 {
		return fmt.Errorf("stop_loss_percent must be positive, got %.1f", c.StopLossPercent)
	}
	return nil
}

// Package config provides configuration management for the trading service.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"soar-trader/internal/models"
)

// Config holds all application configuration.
type Config struct {
	KIS     KISConfig            `mapstructure:"kis"`
	FMP     FMPConfig            `mapstructure:"fmp"`
	Trading models.TradingConfig `mapstructure:"trading"`
	Logging LoggingConfig        `mapstructure:"logging"`
	Server  ServerConfig         `mapstructure:"server"`
}

// KISConfig holds Korea Investment & Securities API credentials.
type KISConfig struct {
	AppKey    string `mapstructure:"app_key"`
	AppSecret string `mapstructure:"app_secret"`
	AccountNo string `mapstructure:"account_no"`
	UseMock   bool   `mapstructure:"use_mock"`
	BaseURL   string `mapstructure:"base_url"`
	Exchange  string `mapstructure:"exchange"`
}

// FMPConfig holds Financial Modeling Prep API configuration.
type FMPConfig struct {
	APIKey            string `mapstructure:"api_key"`
	BaseURL           string `mapstructure:"base_url"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  bool   `mapstructure:"file"`
}

// ServerConfig holds the event-stream listener configuration.
type ServerConfig struct {
	StreamEnabled bool   `mapstructure:"stream_enabled"`
	StreamAddr    string `mapstructure:"stream_addr"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/soar-trader"
	}
	return filepath.Join(home, ".config", "soar-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, the default directory is used. A missing config
// file is not an error: a template is written and defaults apply.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, fmt.Errorf("creating config template: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := models.DefaultTradingConfig()
	v.SetDefault("trading.enabled", defaults.Enabled)
	v.SetDefault("trading.bullish_threshold", defaults.BullishThreshold)
	v.SetDefault("trading.impact_threshold", defaults.ImpactThreshold)
	v.SetDefault("trading.investment_percent", defaults.InvestmentPercent)
	v.SetDefault("trading.max_investment", defaults.MaxInvestment)
	v.SetDefault("trading.take_profit_percent", defaults.TakeProfitPercent)
	v.SetDefault("trading.stop_loss_percent", defaults.StopLossPercent)

	v.SetDefault("kis.use_mock", true)
	v.SetDefault("kis.exchange", "NAS")

	v.SetDefault("fmp.requests_per_minute", 300)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", true)

	v.SetDefault("server.stream_enabled", false)
	v.SetDefault("server.stream_addr", "127.0.0.1:8787")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KIS_APP_KEY"); v != "" {
		cfg.KIS.AppKey = v
	}
	if v := os.Getenv("KIS_APP_SECRET"); v != "" {
		cfg.KIS.AppSecret = v
	}
	if v := os.Getenv("KIS_ACCOUNT_NO"); v != "" {
		cfg.KIS.AccountNo = v
	}
	if v := os.Getenv("KIS_USE_MOCK"); v != "" {
		cfg.KIS.UseMock = v == "true" || v == "1"
	}
	if v := os.Getenv("FMP_API_KEY"); v != "" {
		cfg.FMP.APIKey = v
	}
}

// SaveTrading persists the trading section back to config.toml, keeping
// the other sections as they are on disk. The config is validated first;
// an invalid config is never written.
func SaveTrading(configDir string, trading models.TradingConfig) error {
	if err := trading.Validate(); err != nil {
		return err
	}

	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return fmt.Errorf("creating config template: %w", err)
		}
	}

	v.Set("trading.enabled", trading.Enabled)
	v.Set("trading.bullish_threshold", trading.BullishThreshold)
	v.Set("trading.impact_threshold", trading.ImpactThreshold)
	v.Set("trading.investment_percent", trading.InvestmentPercent)
	v.Set("trading.max_investment", trading.MaxInvestment)
	v.Set("trading.take_profit_percent", trading.TakeProfitPercent)
	v.Set("trading.stop_loss_percent", trading.StopLossPercent)

	path := filepath.Join(configDir, "config.toml")
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config.toml: %w", err)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Trading.Validate(); err != nil {
		return err
	}
	if c.FMP.RequestsPerMinute < 0 {
		return fmt.Errorf("fmp.requests_per_minute must be non-negative")
	}
	return nil
}

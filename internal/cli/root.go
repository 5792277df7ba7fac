// Package cli provides the command-line interface for the trading service.
package cli

import (
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"soar-trader/internal/broker"
	"soar-trader/internal/config"
	"soar-trader/internal/logging"
	"soar-trader/internal/marketdata"
	"soar-trader/internal/models"
	"soar-trader/internal/store"
	"soar-trader/internal/stream"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger
	Brokerage broker.Brokerage
	Provider  marketdata.Provider
	Store     store.DataStore
	Hub       *stream.Hub
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, configDir string, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config:    cfg,
		ConfigDir: configDir,
		Logger:    logger,
		Hub:       stream.NewHub(),
	}
	if app.ConfigDir == "" {
		app.ConfigDir = config.DefaultConfigDir()
	}

	app.Provider = marketdata.NewFMPClient(marketdata.FMPConfig{
		APIKey:            cfg.FMP.APIKey,
		BaseURL:           cfg.FMP.BaseURL,
		RequestsPerMinute: cfg.FMP.RequestsPerMinute,
	})

	dbPath := filepath.Join(app.ConfigDir, "trader.db")
	dataStore, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, some features may be unavailable")
	} else {
		app.Store = dataStore
		logger.Debug().Str("path", dbPath).Msg("SQLite store initialized")
	}

	rootCmd := &cobra.Command{
		Use:   "soar-trader",
		Short: "soar-trader - news-driven US equity trading service",
		Long: `soar-trader is an automated trading service for US equities.

It watches bullish news signals, confirms the intraday trend, sizes orders
against available cash and executes them through the Korea Investment &
Securities overseas-stock API, queueing orders placed outside regular
market hours for the next open.

Use 'soar-trader help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			paper, _ := cmd.Flags().GetBool("paper")
			app.Brokerage = buildBrokerage(app, paper)
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/soar-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("paper", false, "use the in-memory paper broker")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newBuyCmd(app))
	rootCmd.AddCommand(newTradesCmd(app))
	rootCmd.AddCommand(newPendingCmd(app))

	return rootCmd
}

// buildBrokerage selects the live KIS broker when credentials are present,
// the in-memory paper broker otherwise.
func buildBrokerage(app *App, forcePaper bool) broker.Brokerage {
	cfg := app.Config
	if forcePaper || cfg.KIS.AppKey == "" || cfg.KIS.AppSecret == "" {
		if !forcePaper {
			app.Logger.Warn().Msg("KIS credentials missing, falling back to paper broker")
		}
		return broker.NewPaperBroker(10000)
	}
	return broker.NewKISBroker(broker.KISConfig{
		AppKey:    cfg.KIS.AppKey,
		AppSecret: cfg.KIS.AppSecret,
		AccountNo: cfg.KIS.AccountNo,
		Mock:      cfg.KIS.UseMock,
		BaseURL:   cfg.KIS.BaseURL,
		Exchange:  models.Exchange(cfg.KIS.Exchange),
		TokenPath: filepath.Join(app.ConfigDir, "kis_token.json"),
		Timeout:   10 * time.Second,
	})
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
			} else {
				output.Printf("soar-trader v%s\n", Version)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage trading configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show trading configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config.Trading)
			}
			showTradingConfig(output, app.Config.Trading)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": app.ConfigDir})
			} else {
				output.Println(app.ConfigDir)
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a trading configuration value",
		Long: `Set a trading configuration value and persist it.

Keys: enabled, bullish_threshold, impact_threshold, investment_percent,
max_investment, take_profit_percent, stop_loss_percent.

The change is validated before it is written; the previous configuration
stays in force if the new value is out of range.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			trading := app.Config.Trading
			if err := applyTradingKey(&trading, args[0], args[1]); err != nil {
				output.Error("Invalid value: %v", err)
				return err
			}
			if err := config.SaveTrading(app.ConfigDir, trading); err != nil {
				output.Error("Rejected: %v", err)
				return err
			}
			app.Config.Trading = trading
			if output.IsJSON() {
				return output.JSON(trading)
			}
			output.Success("Set %s = %s", args[0], args[1])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showTradingConfig(output *Output, cfg models.TradingConfig) {
	output.Bold("Trading Configuration")
	state := output.Red("disabled")
	if cfg.Enabled {
		state = output.Green("enabled")
	}
	output.Printf("  Auto trading:      %s\n", state)
	output.Printf("  Bullish threshold: %.0f\n", cfg.BullishThreshold)
	output.Printf("  Impact threshold:  %.0f\n", cfg.ImpactThreshold)
	output.Printf("  Investment:        %.1f%% of cash (cap $%.2f)\n", cfg.InvestmentPercent, cfg.MaxInvestment)
	output.Printf("  Take profit:       +%.2f%%\n", cfg.TakeProfitPercent)
	output.Printf("  Stop loss:         -%.2f%%\n", cfg.StopLossPercent)
}

// applyTradingKey mutates one field of the trading config from its string
// form. Range checks happen later in Validate, not here.
func applyTradingKey(cfg *models.TradingConfig, key, value string) error {
	if key == "enabled" {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		cfg.Enabled = b
		return nil
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return err
	}
	switch key {
	case "bullish_threshold":
		cfg.BullishThreshold = f
	case "impact_threshold":
		cfg.ImpactThreshold = f
	case "investment_percent":
		cfg.InvestmentPercent = f
	case "max_investment":
		cfg.MaxInvestment = f
	case "take_profit_percent":
		cfg.TakeProfitPercent = f
	case "stop_loss_percent":
		cfg.StopLossPercent = f
	default:
		return &unknownKeyError{key: key}
	}
	return nil
}

type unknownKeyError struct {
	key string
}

func (e *unknownKeyError) Error() string {
	return "unknown config key: " + e.key
}

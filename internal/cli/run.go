package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"soar-trader/internal/engine"
	"soar-trader/internal/stream"
)

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the automated trading engine",
		Long: `Run the automated trading engine in the foreground.

The engine tracks the US market session, scans stored news signals for
qualifying events, confirms the intraday trend, buys through the brokerage
and monitors open positions for take-profit and stop-loss exits. Orders
raised outside regular hours are queued and flushed at the next open.

Stop with Ctrl-C; in-flight work finishes before shutdown.`,
		Example: `  soar-trader run
  soar-trader run --paper
  soar-trader run --min-trend 1.0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.New("store unavailable, cannot run engine")
			}
			minTrend, _ := cmd.Flags().GetFloat64("min-trend")

			eng := engine.New(app.Brokerage, app.Provider, app.Store, app.Hub, app.Logger,
				app.Config.Trading, engine.Options{MinTrendPercent: minTrend})

			account := app.Brokerage.CurrentAccount()
			output.Bold("Starting trading engine")
			output.Printf("  Account:       %s (mock=%v)\n", account.Key(), account.Mock)
			output.Printf("  Auto trading:  %v\n", app.Config.Trading.Enabled)
			output.Printf("  Thresholds:    bullish %.0f / impact %.0f\n",
				app.Config.Trading.BullishThreshold, app.Config.Trading.ImpactThreshold)
			output.Printf("  Exit rules:    TP +%.2f%% / SL -%.2f%%\n",
				app.Config.Trading.TakeProfitPercent, app.Config.Trading.StopLossPercent)
			output.Println()

			var streamSrv *http.Server
			if app.Config.Server.StreamEnabled {
				streamSrv = startStreamServer(app)
				output.Info("Event stream on ws://%s/events", app.Config.Server.StreamAddr)
			}

			eng.Start()
			output.Success("Engine running, press Ctrl-C to stop")

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh

			output.Println()
			output.Info("Shutting down...")
			eng.Stop()

			if streamSrv != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_ = streamSrv.Shutdown(ctx)
				cancel()
			}
			if err := app.Store.Close(); err != nil {
				app.Logger.Warn().Err(err).Msg("Closing store")
			}
			output.Success("Stopped")
			return nil
		},
	}

	cmd.Flags().Float64("min-trend", 0, "minimum trend percent for buy confirmation (0 = default)")
	return cmd
}

// startStreamServer serves engine events over a websocket endpoint.
func startStreamServer(app *App) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/events", stream.NewWSHandler(app.Hub, app.Logger))

	srv := &http.Server{
		Addr:              app.Config.Server.StreamAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Error().Err(err).Msg("Event stream server stopped")
		}
	}()
	return srv
}

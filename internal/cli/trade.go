package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"soar-trader/internal/engine"
	"soar-trader/internal/models"
	"soar-trader/internal/store"
	"soar-trader/pkg/utils"
)

const cliCallTimeout = 15 * time.Second

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show account and position status",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), cliCallTimeout)
			defer cancel()

			account := app.Brokerage.CurrentAccount()
			balance, err := app.Brokerage.GetBalance(ctx)
			if err != nil {
				output.Error("Fetching balance: %v", err)
				return err
			}

			var positions []models.Position
			if app.Store != nil {
				positions, err = app.Store.GetMonitoredPositions(ctx, account.Key())
				if err != nil {
					app.Logger.Warn().Err(err).Msg("Loading monitored positions")
				}
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"account":   account.Key(),
					"mock":      account.Mock,
					"balance":   balance,
					"monitored": positions,
				})
			}

			output.Bold("Account %s", account.Key())
			if account.Mock {
				output.Dim("(mock trading environment)")
			}
			output.Printf("  Available cash: %s\n", utils.FormatMoney(balance.AvailableCash))
			output.Println()

			if len(balance.Positions) == 0 {
				output.Dim("No brokerage holdings")
			} else {
				output.Bold("Holdings")
				for _, pos := range balance.Positions {
					output.Printf("  %-6s %8s  avg %10s  now %10s  %s\n",
						pos.Symbol, utils.FormatQuantity(pos.Quantity),
						utils.FormatMoney(pos.AveragePrice), utils.FormatMoney(pos.CurrentPrice),
						output.SignedPercent(pos.PnLPercent))
				}
			}
			output.Println()

			if len(positions) == 0 {
				output.Dim("No positions under exit monitoring")
				return nil
			}
			output.Bold("Monitored positions")
			for _, pos := range positions {
				output.Printf("  %-6s %8s  buy %10s  TP +%.2f%%  SL -%.2f%%  opened %s\n",
					pos.Symbol, utils.FormatQuantity(pos.Quantity), utils.FormatMoney(pos.BuyPrice),
					pos.TakeProfitPercent, pos.StopLossPercent, utils.FormatTimestamp(pos.OpenedAt))
			}
			return nil
		},
	}
}

func newBuyCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "buy <symbol>",
		Short: "Buy a stock using the configured sizing rules",
		Long: `Buy a stock at the current market price.

The quantity is sized from available cash using the configured investment
percent and cap. Outside regular market hours the order is queued and
executed at the next open.`,
		Example: `  soar-trader buy AAPL
  soar-trader buy TSLA --paper`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.New("store unavailable, cannot place orders")
			}
			symbol := args[0]

			eng := engine.New(app.Brokerage, app.Provider, app.Store, app.Hub, app.Logger,
				app.Config.Trading, engine.Options{})

			ctx, cancel := context.WithTimeout(cmd.Context(), cliCallTimeout)
			defer cancel()

			trade, err := eng.ManualBuy(ctx, symbol)
			if err != nil {
				if errors.Is(err, engine.ErrSizedToZero) {
					output.Warning("Order for %s sized to zero, nothing bought", symbol)
					return nil
				}
				output.Error("Buy failed: %v", err)
				return err
			}

			return printBuyResult(output, symbol, trade)
		},
	}
}

// printBuyResult renders a manual-buy outcome. A nil trade means the market
// was closed and the order was queued for the next open.
func printBuyResult(output *Output, symbol string, trade *models.TradeRecord) error {
	if trade == nil {
		if output.IsJSON() {
			return output.JSON(map[string]interface{}{"symbol": symbol, "queued": true})
		}
		output.Warning("Market closed, order for %s queued for the next open", symbol)
		return nil
	}
	if output.IsJSON() {
		return output.JSON(trade)
	}
	output.Success("Bought %s %s @ %s (%s)",
		trade.Symbol, utils.FormatQuantity(trade.Quantity),
		utils.FormatMoney(trade.Price), utils.FormatMoney(trade.Amount))
	return nil
}

func newTradesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List recent trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.New("store unavailable")
			}
			limit, _ := cmd.Flags().GetInt("limit")

			ctx, cancel := context.WithTimeout(cmd.Context(), cliCallTimeout)
			defer cancel()

			trades, err := app.Store.GetRecentTrades(ctx, limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(trades)
			}
			if len(trades) == 0 {
				output.Dim("No trades recorded")
				return nil
			}
			output.Bold("Recent trades")
			for _, t := range trades {
				side := output.Green(string(t.Side))
				if t.Side == models.OrderSideSell {
					side = output.Red(string(t.Side))
				}
				output.Printf("  %s  %-4s %-6s %8s @ %10s  %10s  %s\n",
					utils.FormatTimestamp(t.ExecutedAt), side, t.Symbol,
					utils.FormatQuantity(t.Quantity), utils.FormatMoney(t.Price),
					utils.FormatMoney(t.Amount), utils.Truncate(t.Reason, 40))
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "maximum number of trades to show")
	return cmd
}

func newPendingCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Manage queued off-hours orders",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List orders waiting for the next market open",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.New("store unavailable")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cliCallTimeout)
			defer cancel()

			account := app.Brokerage.CurrentAccount()
			orders, err := app.Store.GetPendingOrders(ctx, account.Key())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(orders)
			}
			if len(orders) == 0 {
				output.Dim("No pending orders")
				return nil
			}
			output.Bold("Pending orders")
			for _, o := range orders {
				price := "market"
				if o.PriceMode == models.PriceModeLimit {
					price = utils.FormatMoney(o.LimitPrice)
				}
				output.Printf("  %s  %-4s %-6s %8s @ %-10s queued %s\n",
					o.ID, o.Side, o.Symbol, utils.FormatQuantity(o.Quantity),
					price, utils.FormatTimestamp(o.CreatedAt))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel a pending order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return errors.New("store unavailable")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cliCallTimeout)
			defer cancel()

			err := app.Store.UpdatePendingOrderStatus(ctx, args[0], models.PendingOrderCancelled, "cancelled by user")
			if err != nil {
				if errors.Is(err, store.ErrOrderNotPending) {
					output.Warning("Order %s already settled, nothing to cancel", args[0])
					return nil
				}
				output.Error("Cancel failed: %v", err)
				return err
			}
			output.Success("Cancelled order %s", args[0])
			return nil
		},
	})

	return cmd
}

package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/fintrack/money"
	"github.com/rustyeddy/fintrack/portfolio"
	"github.com/rustyeddy/fintrack/store"
)

var tradeCmd = &cobra.Command{
	Use:   "trade",
	Short: "Record buys and sells in investment accounts",
	Long: `Add, list, update and delete trades. Holdings are rebuilt from the
trade log after every change; a change that would leave a negative
position at any point in time is rejected.

Examples:
  fintrack trade add buy AAPL 10 100 --account Brokerage --date 2024-01-02
  fintrack trade add sell AAPL 4 150 --account Brokerage
  fintrack trade list --symbol AAPL`,
}

var tradeAddCmd = &cobra.Command{
	Use:   "add <buy|sell> <symbol> <quantity> <price>",
	Short: "Record a trade",
	Args:  cobra.ExactArgs(4),
	RunE:  withApp(runTradeAdd),
}

var tradeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trades, newest first",
	Args:  cobra.NoArgs,
	RunE:  withApp(runTradeList),
}

var tradeUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change fields of a trade",
	Args:  cobra.ExactArgs(1),
}

var tradeDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a trade and rebuild its holding",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runTradeDelete),
}

var holdingCmd = &cobra.Command{
	Use:   "holding",
	Short: "Inspect and correct holdings",
}

var holdingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List holdings at cost",
	Args:  cobra.NoArgs,
	RunE:  withApp(runHoldingList),
}

var holdingOverrideCmd = &cobra.Command{
	Use:   "override <holding-id> <quantity> <average-cost>",
	Short: "Replace a holding's trade history with a single buy",
	Long: `Replace every trade of a holding's asset with one synthetic buy at the
given quantity and average cost. Realized P/L already booked is kept.`,
	Args: cobra.ExactArgs(3),
	RunE: withApp(runHoldingOverride),
}

var holdingDeleteCmd = &cobra.Command{
	Use:   "delete <holding-id>",
	Short: "Delete a holding and its trades",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runHoldingDelete),
}

var holdingRecalcCmd = &cobra.Command{
	Use:   "recalc <symbol>",
	Short: "Rebuild a holding from its trade log",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runHoldingRecalc),
}

var portfolioCmd = &cobra.Command{
	Use:   "portfolio",
	Short: "Portfolio summary and market values",
}

var portfolioSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show holdings at cost and realized P/L",
	Args:  cobra.NoArgs,
	RunE:  withApp(runPortfolioSummary),
}

var portfolioValueCmd = &cobra.Command{
	Use:   "value <account> <market-value>",
	Short: "Set an investment account's market value",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runPortfolioValue),
}

var (
	tradeAccount  string
	tradeDate     string
	tradeNote     string
	tradeSymbol   string
	tradeType     string
	tradeQuantity float64
	tradePrice    float64
)

func init() {
	// Assigned here rather than in the literal to break the initialization
	// cycle through the handler's use of the command's flags.
	tradeUpdateCmd.RunE = withApp(runTradeUpdate)
	rootCmd.AddCommand(tradeCmd)
	tradeCmd.AddCommand(tradeAddCmd)
	tradeCmd.AddCommand(tradeListCmd)
	tradeCmd.AddCommand(tradeUpdateCmd)
	tradeCmd.AddCommand(tradeDeleteCmd)

	rootCmd.AddCommand(holdingCmd)
	holdingCmd.AddCommand(holdingListCmd)
	holdingCmd.AddCommand(holdingOverrideCmd)
	holdingCmd.AddCommand(holdingDeleteCmd)
	holdingCmd.AddCommand(holdingRecalcCmd)

	rootCmd.AddCommand(portfolioCmd)
	portfolioCmd.AddCommand(portfolioSummaryCmd)
	portfolioCmd.AddCommand(portfolioValueCmd)

	tradeAddCmd.Flags().StringVarP(&tradeAccount, "account", "a", "", "investment account name or id (required)")
	tradeAddCmd.Flags().StringVarP(&tradeDate, "date", "d", "", "date YYYY-MM-DD (default today)")
	tradeAddCmd.Flags().StringVarP(&tradeNote, "note", "n", "", "note")
	tradeAddCmd.MarkFlagRequired("account")

	tradeListCmd.Flags().StringVarP(&tradeAccount, "account", "a", "", "only this account")
	tradeListCmd.Flags().StringVarP(&tradeSymbol, "symbol", "s", "", "only this symbol")

	tradeUpdateCmd.Flags().StringVarP(&tradeType, "type", "t", "", "buy or sell")
	tradeUpdateCmd.Flags().Float64VarP(&tradeQuantity, "quantity", "q", 0, "quantity")
	tradeUpdateCmd.Flags().Float64VarP(&tradePrice, "price", "p", 0, "price per unit")
	tradeUpdateCmd.Flags().StringVarP(&tradeDate, "date", "d", "", "date YYYY-MM-DD")
	tradeUpdateCmd.Flags().StringVarP(&tradeNote, "note", "n", "", "note")

	holdingListCmd.Flags().StringVarP(&tradeAccount, "account", "a", "", "only this account")
	holdingRecalcCmd.Flags().StringVarP(&tradeAccount, "account", "a", "", "investment account name or id (required)")
	holdingRecalcCmd.MarkFlagRequired("account")
}

func parseFloat(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", name, s, err)
	}
	return v, nil
}

func runTradeAdd(ctx context.Context, a *app, args []string) error {
	qty, err := parseFloat("quantity", args[2])
	if err != nil {
		return err
	}
	price, err := parseFloat("price", args[3])
	if err != nil {
		return err
	}
	acct, err := a.account(ctx, tradeAccount)
	if err != nil {
		return err
	}
	date := tradeDate
	if date == "" {
		date = today()
	}

	t, err := a.portfolio.AddTrade(ctx, a.owner, portfolio.TradeInput{
		AccountID: acct.ID,
		Symbol:    args[1],
		Type:      store.TradeType(args[0]),
		Quantity:  qty,
		Price:     price,
		Date:      date,
		Note:      tradeNote,
	})
	if err != nil {
		return err
	}

	fmt.Printf("✓ Recorded %s %g %s @ %s\n", t.Type, t.Quantity, t.Symbol, money.Format(t.Price, acct.Currency))
	fmt.Printf("  ID: %s\n", t.ID)
	if t.RealizedPL != nil {
		fmt.Printf("  Realized P/L: %s\n", money.Format(*t.RealizedPL, acct.Currency))
	}
	return nil
}

func runTradeList(ctx context.Context, a *app, args []string) error {
	f := store.TradeFilter{Owner: a.owner, Symbol: tradeSymbol}
	if tradeAccount != "" {
		acct, err := a.account(ctx, tradeAccount)
		if err != nil {
			return err
		}
		f.AccountID = acct.ID
	}
	trades, err := a.portfolio.Trades(ctx, f)
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		fmt.Println("No trades.")
		return nil
	}
	fmt.Printf("%-26s  %-10s  %-4s  %-8s  %12s  %12s  %12s\n", "ID", "DATE", "TYPE", "SYMBOL", "QTY", "PRICE", "P/L")
	for _, t := range trades {
		pl := ""
		if t.RealizedPL != nil {
			pl = strconv.FormatFloat(*t.RealizedPL, 'f', 2, 64)
		}
		fmt.Printf("%-26s  %-10s  %-4s  %-8s  %12g  %12.2f  %12s\n", t.ID, t.Date, t.Type, t.Symbol, t.Quantity, t.Price, pl)
	}
	return nil
}

func runTradeUpdate(ctx context.Context, a *app, args []string) error {
	var p portfolio.TradePatch
	flags := tradeUpdateCmd.Flags()
	if flags.Changed("type") {
		typ := store.TradeType(tradeType)
		p.Type = &typ
	}
	if flags.Changed("quantity") {
		p.Quantity = &tradeQuantity
	}
	if flags.Changed("price") {
		p.Price = &tradePrice
	}
	if flags.Changed("date") {
		p.Date = &tradeDate
	}
	if flags.Changed("note") {
		p.Note = &tradeNote
	}

	t, err := a.portfolio.UpdateTrade(ctx, a.owner, args[0], p)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Updated %s: %s %g %s @ %.2f on %s\n", t.ID, t.Type, t.Quantity, t.Symbol, t.Price, t.Date)
	if t.RealizedPL != nil {
		fmt.Printf("  Realized P/L: %.2f\n", *t.RealizedPL)
	}
	return nil
}

func runTradeDelete(ctx context.Context, a *app, args []string) error {
	if err := a.portfolio.DeleteTrade(ctx, a.owner, args[0]); err != nil {
		return err
	}
	fmt.Printf("✓ Deleted trade %s\n", args[0])
	return nil
}

func runHoldingList(ctx context.Context, a *app, args []string) error {
	accountID := ""
	if tradeAccount != "" {
		acct, err := a.account(ctx, tradeAccount)
		if err != nil {
			return err
		}
		accountID = acct.ID
	}
	hs, err := a.portfolio.Holdings(ctx, a.owner, accountID)
	if err != nil {
		return err
	}
	if len(hs) == 0 {
		fmt.Println("No holdings.")
		return nil
	}
	fmt.Printf("%-26s  %-8s  %12s  %12s  %14s\n", "ID", "SYMBOL", "QTY", "AVG COST", "COST BASIS")
	for _, h := range hs {
		fmt.Printf("%-26s  %-8s  %12g  %12.4f  %14.2f\n", h.ID, h.Symbol, h.Quantity, h.AverageCost, money.Round(h.Quantity*h.AverageCost))
	}
	return nil
}

func runHoldingOverride(ctx context.Context, a *app, args []string) error {
	qty, err := parseFloat("quantity", args[1])
	if err != nil {
		return err
	}
	avg, err := parseFloat("average cost", args[2])
	if err != nil {
		return err
	}
	h, err := a.portfolio.OverrideHolding(ctx, a.owner, args[0], qty, avg)
	if err != nil {
		return err
	}
	fmt.Printf("✓ %s now %g @ %.4f\n", h.Symbol, h.Quantity, h.AverageCost)
	return nil
}

func runHoldingDelete(ctx context.Context, a *app, args []string) error {
	if err := a.portfolio.DeleteHolding(ctx, a.owner, args[0]); err != nil {
		return err
	}
	fmt.Printf("✓ Deleted holding %s\n", args[0])
	return nil
}

func runHoldingRecalc(ctx context.Context, a *app, args []string) error {
	acct, err := a.account(ctx, tradeAccount)
	if err != nil {
		return err
	}
	h, err := a.portfolio.Recalculate(ctx, a.owner, acct.ID, args[0])
	if err != nil {
		return err
	}
	if h == nil {
		fmt.Printf("✓ %s has no open position\n", portfolio.NormalizeSymbol(args[0]))
		return nil
	}
	fmt.Printf("✓ %s rebuilt: %g @ %.4f\n", h.Symbol, h.Quantity, h.AverageCost)
	return nil
}

func runPortfolioSummary(ctx context.Context, a *app, args []string) error {
	s, err := a.portfolio.Summary(ctx, a.owner)
	if err != nil {
		return err
	}
	fmt.Printf("Portfolio for %s\n", a.owner)
	fmt.Printf("  Holdings:     %d\n", s.Holdings)
	fmt.Printf("  Cost basis:   %s\n", money.Format(s.CostBasis, a.currency()))
	fmt.Printf("  Realized P/L: %s\n", money.Format(s.TotalRealizedPL, a.currency()))
	return nil
}

func runPortfolioValue(ctx context.Context, a *app, args []string) error {
	value, err := money.Parse(args[1])
	if err != nil {
		return err
	}
	acct, err := a.account(ctx, args[0])
	if err != nil {
		return err
	}
	if err := a.portfolio.SetMarketValue(ctx, a.owner, acct.ID, value); err != nil {
		return err
	}
	fmt.Printf("✓ %s market value set to %s\n", acct.Name, money.Format(value, acct.Currency))
	return nil
}

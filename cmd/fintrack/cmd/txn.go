package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/fintrack/ledger"
	"github.com/rustyeddy/fintrack/money"
	"github.com/rustyeddy/fintrack/store"
)

var txnCmd = &cobra.Command{
	Use:     "txn",
	Aliases: []string{"tx"},
	Short:   "Record income and expenses",
	Long: `Add, list, update and delete income and expense transactions.

Income can route a percentage to savings with --save; the share is
booked to the savings sub-ledger and withheld from the account.

Examples:
  fintrack txn add income 1000 --account Checking --save 20 --category Salary
  fintrack txn add expense 42.10 --account Checking --category Groceries
  fintrack txn update 01J... --amount 500
  fintrack txn delete 01J...`,
}

var txnAddCmd = &cobra.Command{
	Use:   "add <income|expense> <amount>",
	Short: "Record a transaction",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runTxnAdd),
}

var txnListCmd = &cobra.Command{
	Use:   "list",
	Short: "List transactions, newest first",
	Args:  cobra.NoArgs,
	RunE:  withApp(runTxnList),
}

var txnUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Change fields of a transaction",
	Long: `Change fields of a transaction. Only flags that are given are changed.
Use --save 0 or --no-save to drop the savings allocation.`,
	Args: cobra.ExactArgs(1),
}

var txnDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a transaction and reverse its effects",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runTxnDelete),
}

var (
	txnAccount  string
	txnCategory string
	txnDate     string
	txnSave     float64
	txnNoSave   bool
	txnNote     string
	txnType     string
	txnAmount   string
	txnFrom     string
	txnTo       string
)

func init() {
	// Assigned here rather than in the literal to break the initialization
	// cycle through the handler's use of the command's flags.
	txnUpdateCmd.RunE = withApp(runTxnUpdate)
	rootCmd.AddCommand(txnCmd)
	txnCmd.AddCommand(txnAddCmd)
	txnCmd.AddCommand(txnListCmd)
	txnCmd.AddCommand(txnUpdateCmd)
	txnCmd.AddCommand(txnDeleteCmd)

	txnAddCmd.Flags().StringVarP(&txnAccount, "account", "a", "", "account name or id (required)")
	txnAddCmd.Flags().StringVar(&txnCategory, "category", "", "category")
	txnAddCmd.Flags().StringVarP(&txnDate, "date", "d", "", "date YYYY-MM-DD (default today)")
	txnAddCmd.Flags().Float64Var(&txnSave, "save", 0, "percent of income to route to savings")
	txnAddCmd.Flags().StringVarP(&txnNote, "note", "n", "", "note")
	txnAddCmd.MarkFlagRequired("account")

	txnListCmd.Flags().StringVarP(&txnAccount, "account", "a", "", "only this account")
	txnListCmd.Flags().StringVarP(&txnType, "type", "t", "", "income or expense")
	txnListCmd.Flags().StringVar(&txnFrom, "from", "", "first date YYYY-MM-DD")
	txnListCmd.Flags().StringVar(&txnTo, "to", "", "last date YYYY-MM-DD")

	txnUpdateCmd.Flags().StringVarP(&txnType, "type", "t", "", "income or expense")
	txnUpdateCmd.Flags().StringVar(&txnAmount, "amount", "", "amount")
	txnUpdateCmd.Flags().StringVarP(&txnAccount, "account", "a", "", "account name or id")
	txnUpdateCmd.Flags().StringVar(&txnCategory, "category", "", "category")
	txnUpdateCmd.Flags().StringVarP(&txnDate, "date", "d", "", "date YYYY-MM-DD")
	txnUpdateCmd.Flags().Float64Var(&txnSave, "save", 0, "percent of income to route to savings")
	txnUpdateCmd.Flags().BoolVar(&txnNoSave, "no-save", false, "drop the savings allocation")
	txnUpdateCmd.Flags().StringVarP(&txnNote, "note", "n", "", "note")
}

func today() string {
	return time.Now().Format(store.DateLayout)
}

func runTxnAdd(ctx context.Context, a *app, args []string) error {
	amount, err := money.Parse(args[1])
	if err != nil {
		return err
	}
	acct, err := a.account(ctx, txnAccount)
	if err != nil {
		return err
	}
	in := ledger.TxInput{
		Type:      store.TxType(args[0]),
		Category:  txnCategory,
		Amount:    amount,
		AccountID: acct.ID,
		Date:      txnDate,
		Note:      txnNote,
	}
	if in.Date == "" {
		in.Date = today()
	}
	if txnSave > 0 {
		in.AllocationPct = &txnSave
	}

	t, err := a.ledger.Create(ctx, a.owner, in)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Recorded %s of %s on %s\n", t.Type, money.Format(t.Amount, acct.Currency), acct.Name)
	fmt.Printf("  ID: %s\n", t.ID)
	if saved := ledger.Allocation(t); saved > 0 {
		fmt.Printf("  Saved: %s (%s%%)\n", money.Format(saved, acct.Currency), pct(t.AllocationPct))
	}
	return nil
}

func pct(p *float64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func runTxnList(ctx context.Context, a *app, args []string) error {
	f := store.TransactionFilter{
		Owner: a.owner,
		Type:  store.TxType(txnType),
		From:  txnFrom,
		To:    txnTo,
	}
	if txnAccount != "" {
		acct, err := a.account(ctx, txnAccount)
		if err != nil {
			return err
		}
		f.AccountID = acct.ID
	}
	txs, err := a.ledger.List(ctx, f)
	if err != nil {
		return err
	}
	if len(txs) == 0 {
		fmt.Println("No transactions.")
		return nil
	}

	accts, err := a.ledger.Accounts(ctx, a.owner)
	if err != nil {
		return err
	}
	byID := make(map[string]store.Account, len(accts))
	for _, acct := range accts {
		byID[acct.ID] = acct
	}

	fmt.Printf("%-26s  %-10s  %-7s  %-16s  %14s  %6s  %s\n", "ID", "DATE", "TYPE", "ACCOUNT", "AMOUNT", "SAVE%", "CATEGORY")
	for _, t := range txs {
		acct := byID[t.AccountID]
		fmt.Printf("%-26s  %-10s  %-7s  %-16s  %14s  %6s  %s\n",
			t.ID, t.Date, t.Type, acct.Name, money.Format(t.Amount, acct.Currency), pct(t.AllocationPct), t.Category)
	}
	return nil
}

func runTxnUpdate(ctx context.Context, a *app, args []string) error {
	var p ledger.TxPatch
	flags := txnUpdateCmd.Flags()
	if flags.Changed("type") {
		typ := store.TxType(txnType)
		p.Type = &typ
	}
	if flags.Changed("amount") {
		amount, err := money.Parse(txnAmount)
		if err != nil {
			return err
		}
		p.Amount = &amount
	}
	if flags.Changed("account") {
		acct, err := a.account(ctx, txnAccount)
		if err != nil {
			return err
		}
		p.AccountID = &acct.ID
	}
	if flags.Changed("category") {
		p.Category = &txnCategory
	}
	if flags.Changed("date") {
		p.Date = &txnDate
	}
	if flags.Changed("note") {
		p.Note = &txnNote
	}
	switch {
	case txnNoSave || (flags.Changed("save") && txnSave == 0):
		p.ClearAllocation = true
	case flags.Changed("save"):
		p.AllocationPct = &txnSave
	}

	t, err := a.ledger.Update(ctx, a.owner, args[0], p)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Updated %s: %s %.2f on %s\n", t.ID, t.Type, t.Amount, t.Date)
	if saved := ledger.Allocation(t); saved > 0 {
		fmt.Printf("  Saved: %.2f (%s%%)\n", saved, pct(t.AllocationPct))
	}
	return nil
}

func runTxnDelete(ctx context.Context, a *app, args []string) error {
	if err := a.ledger.Delete(ctx, a.owner, args[0]); err != nil {
		return err
	}
	fmt.Printf("✓ Deleted %s\n", args[0])
	return nil
}

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/fintrack/ledger"
	"github.com/rustyeddy/fintrack/money"
	"github.com/rustyeddy/fintrack/store"
)

var accountCmd = &cobra.Command{
	Use:     "account",
	Aliases: []string{"acct"},
	Short:   "Manage cash, bank and investment accounts",
	Long: `Create, list, update, archive and audit accounts.

Accounts are referenced by name or id in every other command.

Examples:
  fintrack account create "Checking" --type bank --initial 1500
  fintrack account list --all
  fintrack account update Checking --name Everyday
  fintrack account audit Checking`,
}

var accountCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runAccountCreate),
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts with current balances",
	Args:  cobra.NoArgs,
	RunE:  withApp(runAccountList),
}

var accountUpdateCmd = &cobra.Command{
	Use:   "update <account>",
	Short: "Rename an account or change its currency or category",
	Long: `Change an account's name, currency or category. Only the flags given
are applied. Balances are left as they are.`,
	Args: cobra.ExactArgs(1),
}

var accountArchiveCmd = &cobra.Command{
	Use:   "archive <account>",
	Short: "Archive an account so it accepts no new entries",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runAccountArchive),
}

var accountAuditCmd = &cobra.Command{
	Use:   "audit [account]",
	Short: "Compare stored balances with the transaction log",
	Long: `Recompute each account's balance from its initial balance and live
transactions and report any drift from the stored balance. With no
argument every account is audited.`,
	Args: cobra.MaximumNArgs(1),
	RunE: withApp(runAccountAudit),
}

var (
	accountType     string
	accountCurrency string
	accountCategory string
	accountInitial  string
	accountAll      bool

	accountNewName     string
	accountNewCurrency string
	accountNewCategory string
)

func init() {
	// Assigned here rather than in the literal to break the initialization
	// cycle through the handler's use of the command's flags.
	accountUpdateCmd.RunE = withApp(runAccountUpdate)
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountCreateCmd)
	accountCmd.AddCommand(accountListCmd)
	accountCmd.AddCommand(accountUpdateCmd)
	accountCmd.AddCommand(accountArchiveCmd)
	accountCmd.AddCommand(accountAuditCmd)

	accountCreateCmd.Flags().StringVarP(&accountType, "type", "t", string(store.AccountBank), "cash, bank or investment")
	accountCreateCmd.Flags().StringVar(&accountCurrency, "currency", "", "ISO currency code (default from config)")
	accountCreateCmd.Flags().StringVar(&accountCategory, "category", "", "category, investment accounts default to \""+ledger.DefaultInvestmentCategory+"\"")
	accountCreateCmd.Flags().StringVar(&accountInitial, "initial", "0", "initial balance")

	accountListCmd.Flags().BoolVarP(&accountAll, "all", "a", false, "include archived accounts")

	accountUpdateCmd.Flags().StringVar(&accountNewName, "name", "", "new account name")
	accountUpdateCmd.Flags().StringVar(&accountNewCurrency, "currency", "", "new ISO currency code")
	accountUpdateCmd.Flags().StringVar(&accountNewCategory, "category", "", "new category")
}

func runAccountCreate(ctx context.Context, a *app, args []string) error {
	initial, err := money.Parse(accountInitial)
	if err != nil {
		return err
	}
	acct, err := a.ledger.CreateAccount(ctx, a.owner, ledger.AccountInput{
		Name:           args[0],
		Type:           store.AccountType(accountType),
		Currency:       accountCurrency,
		Category:       accountCategory,
		InitialBalance: initial,
	})
	if err != nil {
		return err
	}

	fmt.Printf("✓ Created %s account %q\n", acct.Type, acct.Name)
	fmt.Printf("  ID: %s\n", acct.ID)
	fmt.Printf("  Balance: %s\n", money.Format(acct.CurrentBalance, acct.Currency))
	return nil
}

func runAccountList(ctx context.Context, a *app, args []string) error {
	list := a.ledger.Accounts
	if accountAll {
		list = a.ledger.AllAccounts
	}
	accts, err := list(ctx, a.owner)
	if err != nil {
		return err
	}
	if len(accts) == 0 {
		fmt.Println("No accounts.")
		return nil
	}

	fmt.Printf("%-26s  %-20s  %-10s  %16s  %14s\n", "ID", "NAME", "TYPE", "BALANCE", "REALIZED P/L")
	for _, acct := range accts {
		pl := ""
		if acct.Type == store.AccountInvestment {
			pl = money.Format(acct.TotalRealizedPL, acct.Currency)
		}
		name := acct.Name
		if acct.Archived {
			name += " (archived)"
		}
		fmt.Printf("%-26s  %-20s  %-10s  %16s  %14s\n",
			acct.ID, name, acct.Type, money.Format(acct.CurrentBalance, acct.Currency), pl)
	}
	return nil
}

func runAccountUpdate(ctx context.Context, a *app, args []string) error {
	acct, err := a.account(ctx, args[0])
	if err != nil {
		return err
	}
	var p ledger.AccountPatch
	flags := accountUpdateCmd.Flags()
	if flags.Changed("name") {
		p.Name = &accountNewName
	}
	if flags.Changed("currency") {
		p.Currency = &accountNewCurrency
	}
	if flags.Changed("category") {
		p.Category = &accountNewCategory
	}
	if p == (ledger.AccountPatch{}) {
		return fmt.Errorf("nothing to update: pass --name, --currency or --category")
	}

	updated, err := a.ledger.UpdateAccount(ctx, a.owner, acct.ID, p)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Updated %q\n", updated.Name)
	fmt.Printf("  Currency: %s  Category: %s\n", updated.Currency, updated.Category)
	return nil
}

func runAccountArchive(ctx context.Context, a *app, args []string) error {
	acct, err := a.account(ctx, args[0])
	if err != nil {
		return err
	}
	if err := a.ledger.ArchiveAccount(ctx, a.owner, acct.ID); err != nil {
		return err
	}
	fmt.Printf("✓ Archived %q\n", acct.Name)
	return nil
}

func runAccountAudit(ctx context.Context, a *app, args []string) error {
	var accts []store.Account
	if len(args) == 1 {
		acct, err := a.account(ctx, args[0])
		if err != nil {
			return err
		}
		accts = []store.Account{acct}
	} else {
		var err error
		if accts, err = a.ledger.Accounts(ctx, a.owner); err != nil {
			return err
		}
	}

	drifted := 0
	for _, acct := range accts {
		au, err := a.ledger.AuditAccount(ctx, a.owner, acct.ID)
		if err != nil {
			return err
		}
		if au.OK() {
			fmt.Printf("✓ %-20s %s\n", acct.Name, money.Format(au.Actual, acct.Currency))
			continue
		}
		drifted++
		fmt.Printf("✗ %-20s stored %s, expected %s (drift %s)\n", acct.Name,
			money.Format(au.Actual, acct.Currency),
			money.Format(au.Expected, acct.Currency),
			money.Format(au.Drift(), acct.Currency))
	}
	if drifted > 0 {
		return fmt.Errorf("%d of %d accounts drifted from their transaction log", drifted, len(accts))
	}
	return nil
}

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/fintrack/money"
	"github.com/rustyeddy/fintrack/store"
)

var savingsCmd = &cobra.Command{
	Use:   "savings",
	Short: "Inspect and fund the savings sub-ledger",
	Long: `Show the savings balance, make manual deposits and list allocations.

Examples:
  fintrack savings show
  fintrack savings deposit 250 --date 2024-05-01
  fintrack savings allocations --source auto`,
}

var savingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show savings balance and money held in goals",
	Args:  cobra.NoArgs,
	RunE:  withApp(runSavingsShow),
}

var savingsDepositCmd = &cobra.Command{
	Use:   "deposit <amount>",
	Short: "Record a manual savings deposit",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runSavingsDeposit),
}

var savingsAllocationsCmd = &cobra.Command{
	Use:   "allocations",
	Short: "List savings allocations, newest first",
	Args:  cobra.NoArgs,
	RunE:  withApp(runSavingsAllocations),
}

var goalCmd = &cobra.Command{
	Use:   "goal",
	Short: "Manage savings goals",
	Long: `Create goals and move savings into them.

Money allocated to a goal leaves the savings balance; deleting a goal
returns what it holds.

Examples:
  fintrack goal create "Vacation" 2000 --by 2025-07-01
  fintrack goal allocate 01J... 150
  fintrack goal delete 01J...`,
}

var goalCreateCmd = &cobra.Command{
	Use:   "create <title> <target>",
	Short: "Create a savings goal",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runGoalCreate),
}

var goalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List goals and their progress",
	Args:  cobra.NoArgs,
	RunE:  withApp(runGoalList),
}

var goalAllocateCmd = &cobra.Command{
	Use:   "allocate <goal-id> <amount>",
	Short: "Move savings into a goal",
	Args:  cobra.ExactArgs(2),
	RunE:  withApp(runGoalAllocate),
}

var goalDeleteCmd = &cobra.Command{
	Use:   "delete <goal-id>",
	Short: "Delete a goal and return its money to savings",
	Args:  cobra.ExactArgs(1),
	RunE:  withApp(runGoalDelete),
}

var (
	savingsDate   string
	savingsSource string
	savingsFrom   string
	savingsTo     string
	goalBy        string
)

func init() {
	rootCmd.AddCommand(savingsCmd)
	savingsCmd.AddCommand(savingsShowCmd)
	savingsCmd.AddCommand(savingsDepositCmd)
	savingsCmd.AddCommand(savingsAllocationsCmd)

	rootCmd.AddCommand(goalCmd)
	goalCmd.AddCommand(goalCreateCmd)
	goalCmd.AddCommand(goalListCmd)
	goalCmd.AddCommand(goalAllocateCmd)
	goalCmd.AddCommand(goalDeleteCmd)

	savingsDepositCmd.Flags().StringVarP(&savingsDate, "date", "d", "", "date YYYY-MM-DD (default today)")
	savingsAllocationsCmd.Flags().StringVar(&savingsSource, "source", "", "auto or manual")
	savingsAllocationsCmd.Flags().StringVar(&savingsFrom, "from", "", "first date YYYY-MM-DD")
	savingsAllocationsCmd.Flags().StringVar(&savingsTo, "to", "", "last date YYYY-MM-DD")

	goalCreateCmd.Flags().StringVar(&goalBy, "by", "", "target date YYYY-MM-DD (required)")
	goalCreateCmd.MarkFlagRequired("by")
}

func (a *app) currency() string {
	return a.cfg.Engine.DefaultCurrency
}

func runSavingsShow(ctx context.Context, a *app, args []string) error {
	s, err := a.savings.Summary(ctx, a.owner)
	if err != nil {
		return err
	}
	cur := a.currency()
	fmt.Printf("Savings for %s\n", a.owner)
	fmt.Printf("  Available: %s\n", money.Format(s.Balance, cur))
	fmt.Printf("  In goals:  %s (%d goals)\n", money.Format(s.InGoals, cur), s.Goals)
	fmt.Printf("  Total:     %s\n", money.Format(s.Total(), cur))
	return nil
}

func runSavingsDeposit(ctx context.Context, a *app, args []string) error {
	amount, err := money.Parse(args[0])
	if err != nil {
		return err
	}
	date := savingsDate
	if date == "" {
		date = today()
	}
	alloc, err := a.savings.CreateAllocation(ctx, a.owner, "", amount, date, store.SourceManual)
	if err != nil {
		return err
	}
	b, err := a.savings.Balance(ctx, a.owner)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Deposited %s to savings\n", money.Format(alloc.Amount, a.currency()))
	fmt.Printf("  Balance: %s\n", money.Format(b.Total, a.currency()))
	return nil
}

func runSavingsAllocations(ctx context.Context, a *app, args []string) error {
	allocs, err := a.savings.Allocations(ctx, store.AllocationFilter{
		Owner:  a.owner,
		From:   savingsFrom,
		To:     savingsTo,
		Source: store.AllocationSource(savingsSource),
	})
	if err != nil {
		return err
	}
	if len(allocs) == 0 {
		fmt.Println("No allocations.")
		return nil
	}
	fmt.Printf("%-10s  %-6s  %14s  %s\n", "DATE", "SOURCE", "AMOUNT", "TRANSACTION")
	for _, al := range allocs {
		fmt.Printf("%-10s  %-6s  %14s  %s\n", al.Date, al.Source, money.Format(al.Amount, a.currency()), al.TransactionID)
	}
	return nil
}

func runGoalCreate(ctx context.Context, a *app, args []string) error {
	target, err := money.Parse(args[1])
	if err != nil {
		return err
	}
	g, err := a.savings.CreateGoal(ctx, a.owner, args[0], target, goalBy)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Created goal %q: %s by %s\n", g.Title, money.Format(g.TargetAmount, a.currency()), g.TargetDate)
	fmt.Printf("  ID: %s\n", g.ID)
	return nil
}

func runGoalList(ctx context.Context, a *app, args []string) error {
	goals, err := a.savings.Goals(ctx, a.owner)
	if err != nil {
		return err
	}
	if len(goals) == 0 {
		fmt.Println("No goals.")
		return nil
	}
	fmt.Printf("%-26s  %-20s  %14s  %14s  %5s  %s\n", "ID", "TITLE", "SAVED", "TARGET", "PCT", "BY")
	for _, g := range goals {
		progress := 0.0
		if g.TargetAmount > 0 {
			progress = g.CurrentAmount / g.TargetAmount * 100
		}
		fmt.Printf("%-26s  %-20s  %14s  %14s  %4.0f%%  %s\n", g.ID, g.Title,
			money.Format(g.CurrentAmount, a.currency()), money.Format(g.TargetAmount, a.currency()), progress, g.TargetDate)
	}
	return nil
}

func runGoalAllocate(ctx context.Context, a *app, args []string) error {
	amount, err := money.Parse(args[1])
	if err != nil {
		return err
	}
	g, err := a.savings.AllocateToGoal(ctx, a.owner, args[0], amount)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Moved %s into %q\n", money.Format(amount, a.currency()), g.Title)
	fmt.Printf("  Goal: %s of %s\n", money.Format(g.CurrentAmount, a.currency()), money.Format(g.TargetAmount, a.currency()))
	return nil
}

func runGoalDelete(ctx context.Context, a *app, args []string) error {
	returned, err := a.savings.DeleteGoal(ctx, a.owner, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("✓ Deleted goal %s, returned %s to savings\n", args[0], money.Format(returned, a.currency()))
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/fintrack/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the ledger to CSV or XLSX",
	Long: `Write transactions (and for XLSX also trades and holdings) to a file.

Examples:
  fintrack export csv -o transactions.csv --from 2024-01-01
  fintrack export trades -o trades.csv
  fintrack export xlsx -o fintrack.xlsx`,
}

var exportCSVCmd = &cobra.Command{
	Use:   "csv",
	Short: "Export transactions as CSV",
	Args:  cobra.NoArgs,
	RunE:  withApp(runExportCSV),
}

var exportTradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "Export trades as CSV",
	Args:  cobra.NoArgs,
	RunE:  withApp(runExportTrades),
}

var exportXLSXCmd = &cobra.Command{
	Use:   "xlsx",
	Short: "Export transactions, trades and holdings as an XLSX workbook",
	Args:  cobra.NoArgs,
	RunE:  withApp(runExportXLSX),
}

var (
	exportOutput string
	exportFrom   string
	exportTo     string
)

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportCSVCmd)
	exportCmd.AddCommand(exportTradesCmd)
	exportCmd.AddCommand(exportXLSXCmd)

	exportCmd.PersistentFlags().StringVarP(&exportOutput, "output", "o", "", "output file (default stdout)")
	exportCmd.PersistentFlags().StringVar(&exportFrom, "from", "", "first transaction date YYYY-MM-DD")
	exportCmd.PersistentFlags().StringVar(&exportTo, "to", "", "last transaction date YYYY-MM-DD")
}

func runExportCSV(ctx context.Context, a *app, args []string) error {
	return writeExport(ctx, a, export.WriteTransactionsCSV)
}

func runExportTrades(ctx context.Context, a *app, args []string) error {
	return writeExport(ctx, a, export.WriteTradesCSV)
}

func runExportXLSX(ctx context.Context, a *app, args []string) error {
	if exportOutput == "" {
		return fmt.Errorf("xlsx export needs --output")
	}
	return writeExport(ctx, a, export.WriteXLSX)
}

func writeExport(ctx context.Context, a *app, write func(io.Writer, export.Report) error) error {
	r, err := export.Collect(ctx, a.ledger, a.savings, a.portfolio, a.owner, exportFrom, exportTo)
	if err != nil {
		return err
	}

	if exportOutput == "" {
		return write(os.Stdout, r)
	}
	f, err := os.Create(exportOutput)
	if err != nil {
		return fmt.Errorf("create %s: %w", exportOutput, err)
	}
	if err := write(f, r); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Printf("✓ Exported %d transactions, %d trades to %s\n", len(r.Transactions), len(r.Trades), exportOutput)
	return nil
}

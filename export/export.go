// Package export writes an owner's ledger out as CSV or as an XLSX
// workbook. It only reads.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/rustyeddy/fintrack/store"
)

// TransactionSource is satisfied by *ledger.Ledger.
type TransactionSource interface {
	AllAccounts(ctx context.Context, owner string) ([]store.Account, error)
	List(ctx context.Context, f store.TransactionFilter) ([]store.Transaction, error)
}

// TradeSource is satisfied by *portfolio.Engine.
type TradeSource interface {
	Trades(ctx context.Context, f store.TradeFilter) ([]store.Trade, error)
	Holdings(ctx context.Context, owner, accountID string) ([]store.Holding, error)
}

// Report is everything exported for one owner.
type Report struct {
	Owner        string
	Accounts     []store.Account
	Transactions []store.Transaction
	Trades       []store.Trade
	Holdings     []store.Holding
	// Saved maps a transaction id to the allocation stored for it.
	Saved map[string]float64
}

// SavingsSource is satisfied by *savings.Service.
type SavingsSource interface {
	Allocations(ctx context.Context, f store.AllocationFilter) ([]store.SavingsAllocation, error)
}

// Collect reads owner's data. Transactions are limited to [from, to] when
// those are set. Archived accounts are included so every entry can be
// named. sav and trades are optional.
func Collect(ctx context.Context, txs TransactionSource, sav SavingsSource, trades TradeSource, owner, from, to string) (Report, error) {
	r := Report{Owner: owner}
	var err error
	if r.Accounts, err = txs.AllAccounts(ctx, owner); err != nil {
		return Report{}, fmt.Errorf("export accounts: %w", err)
	}
	r.Transactions, err = txs.List(ctx, store.TransactionFilter{Owner: owner, From: from, To: to})
	if err != nil {
		return Report{}, fmt.Errorf("export transactions: %w", err)
	}
	if sav != nil {
		allocs, err := sav.Allocations(ctx, store.AllocationFilter{Owner: owner, Source: store.SourceAuto})
		if err != nil {
			return Report{}, fmt.Errorf("export allocations: %w", err)
		}
		r.Saved = make(map[string]float64, len(allocs))
		for _, a := range allocs {
			r.Saved[a.TransactionID] = a.Amount
		}
	}
	if trades == nil {
		return r, nil
	}
	if r.Trades, err = trades.Trades(ctx, store.TradeFilter{Owner: owner}); err != nil {
		return Report{}, fmt.Errorf("export trades: %w", err)
	}
	if r.Holdings, err = trades.Holdings(ctx, owner, ""); err != nil {
		return Report{}, fmt.Errorf("export holdings: %w", err)
	}
	return r, nil
}

func (r Report) accountName(id string) string {
	for _, a := range r.Accounts {
		if a.ID == id {
			return a.Name
		}
	}
	return id
}

var (
	transactionHeader = []string{"id", "date", "type", "category", "amount", "account", "allocation_pct", "savings", "note"}
	tradeHeader       = []string{"id", "date", "account", "symbol", "type", "quantity", "price", "realized_pl", "note"}
	holdingHeader     = []string{"account", "symbol", "quantity", "average_cost", "cost_basis"}
)

func f(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func optional(v *float64) string {
	if v == nil {
		return ""
	}
	return f(*v)
}

func (r Report) transactionRows() [][]string {
	rows := make([][]string, 0, len(r.Transactions))
	for _, t := range r.Transactions {
		savings := ""
		if amount, ok := r.Saved[t.ID]; ok {
			savings = strconv.FormatFloat(amount, 'f', 2, 64)
		}
		rows = append(rows, []string{
			t.ID,
			t.Date,
			string(t.Type),
			t.Category,
			strconv.FormatFloat(t.Amount, 'f', 2, 64),
			r.accountName(t.AccountID),
			optional(t.AllocationPct),
			savings,
			t.Note,
		})
	}
	return rows
}

func (r Report) tradeRows() [][]string {
	rows := make([][]string, 0, len(r.Trades))
	for _, t := range r.Trades {
		rows = append(rows, []string{
			t.ID,
			t.Date,
			r.accountName(t.AccountID),
			t.Symbol,
			string(t.Type),
			f(t.Quantity),
			f(t.Price),
			optional(t.RealizedPL),
			t.Note,
		})
	}
	return rows
}

func (r Report) holdingRows() [][]string {
	rows := make([][]string, 0, len(r.Holdings))
	for _, h := range r.Holdings {
		rows = append(rows, []string{
			r.accountName(h.AccountID),
			h.Symbol,
			f(h.Quantity),
			f(h.AverageCost),
			strconv.FormatFloat(h.Quantity*h.AverageCost, 'f', 2, 64),
		})
	}
	return rows
}

// WriteTransactionsCSV writes the report's transactions with a header row.
func WriteTransactionsCSV(w io.Writer, r Report) error {
	return writeCSV(w, transactionHeader, r.transactionRows())
}

// WriteTradesCSV writes the report's trades with a header row.
func WriteTradesCSV(w io.Writer, r Report) error {
	return writeCSV(w, tradeHeader, r.tradeRows())
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// Sheet names used by WriteXLSX.
const (
	SheetTransactions = "Transactions"
	SheetTrades       = "Trades"
	SheetHoldings     = "Holdings"
)

// WriteXLSX writes one sheet per section of the report.
func WriteXLSX(w io.Writer, r Report) error {
	x := excelize.NewFile()
	defer x.Close()

	sheets := []struct {
		name    string
		header  []string
		rows    [][]string
		numeric []int
	}{
		{SheetTransactions, transactionHeader, r.transactionRows(), []int{4, 6, 7}},
		{SheetTrades, tradeHeader, r.tradeRows(), []int{5, 6, 7}},
		{SheetHoldings, holdingHeader, r.holdingRows(), []int{2, 3, 4}},
	}
	for i, s := range sheets {
		if i == 0 {
			if err := x.SetSheetName("Sheet1", s.name); err != nil {
				return err
			}
		} else if _, err := x.NewSheet(s.name); err != nil {
			return err
		}
		if err := x.SetSheetRow(s.name, "A1", &s.header); err != nil {
			return err
		}
		for j, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, j+2)
			if err != nil {
				return err
			}
			vals := make([]any, len(row))
			for k, v := range row {
				vals[k] = v
			}
			for _, k := range s.numeric {
				vals[k] = cellValue(row[k])
			}
			if err := x.SetSheetRow(s.name, cell, &vals); err != nil {
				return err
			}
		}
		if err := x.SetColWidth(s.name, "A", "A", 28); err != nil {
			return err
		}
	}
	x.SetActiveSheet(0)
	return x.Write(w)
}

// cellValue stores a numeric column as a number; empty stays empty.
func cellValue(s string) any {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return s
}

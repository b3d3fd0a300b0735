package store

import (
	"time"

	"github.com/rustyeddy/fintrack/errs"
)

type AccountType string

const (
	AccountCash       AccountType = "cash"
	AccountBank       AccountType = "bank"
	AccountInvestment AccountType = "investment"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountCash, AccountBank, AccountInvestment:
		return true
	}
	return false
}

type TxType string

const (
	Income  TxType = "income"
	Expense TxType = "expense"
)

func (t TxType) Valid() bool {
	return t == Income || t == Expense
}

type TradeType string

const (
	Buy  TradeType = "buy"
	Sell TradeType = "sell"
)

func (t TradeType) Valid() bool {
	return t == Buy || t == Sell
}

type AllocationSource string

const (
	SourceAuto   AllocationSource = "auto"
	SourceManual AllocationSource = "manual"
)

// DateLayout is the calendar-date format used for every date column.
const DateLayout = "2006-01-02"

// CheckDate rejects values of field that are not YYYY-MM-DD dates.
func CheckDate(field, s string) error {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return errs.Invalid(field, "must be a YYYY-MM-DD date, got %q", s)
	}
	return nil
}

type Account struct {
	ID              string      `json:"id"`
	Owner           string      `json:"owner"`
	Name            string      `json:"name"`
	Type            AccountType `json:"type"`
	Currency        string      `json:"currency"`
	Category        string      `json:"category"`
	InitialBalance  float64     `json:"initial_balance"`
	CurrentBalance  float64     `json:"current_balance"`
	TotalRealizedPL float64     `json:"total_realized_pl"`
	Archived        bool        `json:"archived"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Transaction is an income or expense entry in the transaction log.
type Transaction struct {
	ID       string  `json:"id"`
	Owner    string  `json:"owner"`
	Type     TxType  `json:"type"`
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
	// AccountID references the cash/bank/investment account the entry moves.
	AccountID string `json:"account_id"`
	Date      string `json:"date"`
	// AllocationPct is nil when the entry carries no savings allocation.
	AllocationPct *float64  `json:"allocation_pct"`
	Note          string    `json:"note"`
	Deleted       bool      `json:"deleted"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type SavingsBalance struct {
	Owner     string    `json:"owner"`
	Total     float64   `json:"total"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SavingsAllocation struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
	// TransactionID is empty for manual deposits.
	TransactionID string           `json:"transaction_id"`
	Amount        float64          `json:"amount"`
	Date          string           `json:"date"`
	Source        AllocationSource `json:"source"`
	CreatedAt     time.Time        `json:"created_at"`
}

type SavingsGoal struct {
	ID            string    `json:"id"`
	Owner         string    `json:"owner"`
	Title         string    `json:"title"`
	TargetAmount  float64   `json:"target_amount"`
	TargetDate    string    `json:"target_date"`
	CurrentAmount float64   `json:"current_amount"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Trade is one buy or sell in the investment trade log.
type Trade struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	AccountID string    `json:"account_id"`
	Symbol    string    `json:"symbol"`
	Type      TradeType `json:"type"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	Date      string    `json:"date"`
	// RealizedPL is set on sells only, at the time the sell is recorded.
	RealizedPL *float64  `json:"realized_pl"`
	Note       string    `json:"note"`
	Deleted    bool      `json:"deleted"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Holding is the materialized result of replaying an asset's trades.
type Holding struct {
	ID          string    `json:"id"`
	Owner       string    `json:"owner"`
	AccountID   string    `json:"account_id"`
	Symbol      string    `json:"symbol"`
	Quantity    float64   `json:"quantity"`
	AverageCost float64   `json:"average_cost"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

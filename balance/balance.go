// Package balance keeps account balances in step with the transaction log.
//
// Every transaction contributes one signed effect to its account: income adds
// amount minus the part allocated to savings, expense subtracts amount.
// Apply and Revert issue that effect, or its exact negation, as a single
// atomic increment. Changing a transaction is always Revert(old) followed by
// Apply(new), never a diff, so moving a transaction between accounts touches
// each account independently.
package balance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rustyeddy/fintrack/store"
)

// Accounts is the part of the store the ledger writes through.
type Accounts interface {
	GetAccount(ctx context.Context, id string) (store.Account, error)
	IncrementBalance(ctx context.Context, id string, delta float64) error
}

// Effect is the balance-relevant projection of one transaction.
type Effect struct {
	AccountID          string
	Amount             float64
	Type               store.TxType
	AllocatedToSavings float64
}

// EffectOf projects t with the savings allocation that was stored for it.
func EffectOf(t store.Transaction, allocated float64) Effect {
	return Effect{
		AccountID:          t.AccountID,
		Amount:             t.Amount,
		Type:               t.Type,
		AllocatedToSavings: allocated,
	}
}

// Delta is the signed change Apply makes to the account balance.
func (e Effect) Delta() float64 {
	switch e.Type {
	case store.Income:
		return e.Amount - e.AllocatedToSavings
	case store.Expense:
		return -e.Amount
	}
	return 0
}

type Ledger struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{log: log}
}

// Apply adds e to its account.
func (l *Ledger) Apply(ctx context.Context, accts Accounts, e Effect) error {
	return l.post(ctx, accts, e.AccountID, e.Delta(), "apply")
}

// Revert removes e from its account.
func (l *Ledger) Revert(ctx context.Context, accts Accounts, e Effect) error {
	return l.post(ctx, accts, e.AccountID, -e.Delta(), "revert")
}

// Reapply moves a transaction from prev to next: Revert(prev) then
// Apply(next). The next account is checked first so a missing account leaves
// both balances untouched.
func (l *Ledger) Reapply(ctx context.Context, accts Accounts, prev, next Effect) error {
	if _, err := accts.GetAccount(ctx, next.AccountID); err != nil {
		return fmt.Errorf("reapply: %w", err)
	}
	if err := l.Revert(ctx, accts, prev); err != nil {
		return err
	}
	if err := l.Apply(ctx, accts, next); err != nil {
		return fmt.Errorf("reapply after revert: %w", err)
	}
	return nil
}

func (l *Ledger) post(ctx context.Context, accts Accounts, accountID string, delta float64, op string) error {
	a, err := accts.GetAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("%s effect: %w", op, err)
	}
	// Investment balances belong to the valuation collaborator.
	if a.Type == store.AccountInvestment {
		l.log.Debug("balance: skipping investment account", "op", op, "account", accountID)
		return nil
	}
	if delta == 0 {
		return nil
	}
	if err := accts.IncrementBalance(ctx, accountID, delta); err != nil {
		return fmt.Errorf("%s effect: %w", op, err)
	}
	l.log.Debug("balance: posted", "op", op, "account", accountID, "delta", delta)
	return nil
}

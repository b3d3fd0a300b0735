// Package ledger orchestrates the transaction lifecycle over the balance
// ledger and the savings sub-ledger, and keeps the account registry.
//
// A create, update or delete runs its steps in a fixed order inside one
// store transaction: the entry is read, its old effect reverted with the
// savings amount stored for it, the entry written under its version, and the
// new effect and allocation applied. Either every step commits or none does,
// so a failed operation can simply be retried, and of two racing changes to
// one entry the loser is retried against the winner's result.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rustyeddy/fintrack/balance"
	"github.com/rustyeddy/fintrack/errs"
	"github.com/rustyeddy/fintrack/money"
	"github.com/rustyeddy/fintrack/pkg/id"
	"github.com/rustyeddy/fintrack/savings"
	"github.com/rustyeddy/fintrack/store"
)

type Ledger struct {
	st       *store.Store
	bal      *balance.Ledger
	sav      *savings.Service
	log      *slog.Logger
	currency string
}

type Option func(*Ledger)

// WithDefaultCurrency sets the currency of accounts created without one.
func WithDefaultCurrency(code string) Option {
	return func(l *Ledger) {
		if code != "" {
			l.currency = strings.ToUpper(code)
		}
	}
}

func New(st *store.Store, sav *savings.Service, log *slog.Logger, opts ...Option) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	l := &Ledger{st: st, bal: balance.New(log), sav: sav, log: log, currency: DefaultCurrency}
	for _, o := range opts {
		o(l)
	}
	return l
}

// TxInput describes a new transaction.
type TxInput struct {
	Type          store.TxType
	Category      string
	Amount        float64
	AccountID     string
	Date          string
	AllocationPct *float64
	Note          string
}

// TxPatch holds the fields Update may change; nil leaves a field as is.
// ClearAllocation drops the allocation percentage.
type TxPatch struct {
	Type            *store.TxType
	Category        *string
	Amount          *float64
	AccountID       *string
	Date            *string
	AllocationPct   *float64
	ClearAllocation bool
	Note            *string
}

func normalize(t *store.Transaction) {
	t.Category = strings.TrimSpace(t.Category)
	t.Note = strings.TrimSpace(t.Note)
	t.Amount = money.Round(t.Amount)
	if t.Type == store.Expense {
		t.AllocationPct = nil
	}
}

func validate(t store.Transaction) error {
	switch {
	case !t.Type.Valid():
		return errs.Invalid("type", "must be income or expense, got %q", t.Type)
	case t.Amount <= 0:
		return errs.Invalid("amount", "must be > 0")
	case t.Category == "":
		return errs.Invalid("category", "is required")
	case t.AccountID == "":
		return errs.Invalid("account", "is required")
	case t.AllocationPct != nil && (*t.AllocationPct < 0 || *t.AllocationPct > 100):
		return errs.Invalid("allocation_pct", "must be between 0 and 100, got %g", *t.AllocationPct)
	}
	return store.CheckDate("date", t.Date)
}

// Allocation is the part of t routed to savings.
func Allocation(t store.Transaction) float64 {
	if t.Type != store.Income || t.AllocationPct == nil {
		return 0
	}
	return money.Allocation(t.Amount, *t.AllocationPct)
}

// Create records a transaction, applies it to its account and, for income
// with an allocation, moves the allocated part into savings.
func (l *Ledger) Create(ctx context.Context, owner string, in TxInput) (store.Transaction, error) {
	t := store.Transaction{
		ID:            id.New(),
		Owner:         owner,
		Type:          in.Type,
		Category:      in.Category,
		Amount:        in.Amount,
		AccountID:     in.AccountID,
		Date:          in.Date,
		AllocationPct: in.AllocationPct,
		Note:          in.Note,
	}
	normalize(&t)
	if err := validate(t); err != nil {
		return store.Transaction{}, err
	}

	allocated := Allocation(t)
	err := l.st.RunInTx(ctx, func(q *store.Queries) error {
		if _, err := openAccount(ctx, q, owner, t.AccountID); err != nil {
			return err
		}
		if err := q.InsertTransaction(ctx, &t); err != nil {
			return fmt.Errorf("insert entry: %w", err)
		}
		if err := l.bal.Apply(ctx, q, balance.EffectOf(t, allocated)); err != nil {
			return err
		}
		if allocated > 0 {
			if _, err := l.sav.In(q).CreateAllocation(ctx, owner, t.ID, allocated, t.Date, store.SourceAuto); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return store.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	l.log.Info("ledger: transaction created",
		"owner", owner, "transaction", t.ID, "type", t.Type, "amount", t.Amount, "account", t.AccountID, "savings", allocated)
	return t, nil
}

// Get returns a live transaction.
func (l *Ledger) Get(ctx context.Context, owner, txID string) (store.Transaction, error) {
	return liveTransaction(ctx, l.st.Queries(), owner, txID)
}

func liveTransaction(ctx context.Context, q *store.Queries, owner, txID string) (store.Transaction, error) {
	t, err := q.GetTransaction(ctx, txID)
	if err != nil {
		return store.Transaction{}, err
	}
	if t.Owner != owner || t.Deleted {
		return store.Transaction{}, fmt.Errorf("%w: %q", errs.ErrTransactionNotFound, txID)
	}
	return t, nil
}

// List returns owner's live transactions newest first.
func (l *Ledger) List(ctx context.Context, f store.TransactionFilter) ([]store.Transaction, error) {
	if f.Type != "" && !f.Type.Valid() {
		return nil, errs.Invalid("type", "must be income or expense, got %q", f.Type)
	}
	f.IncludeDeleted = false
	return l.st.Queries().ListTransactions(ctx, f)
}

func (p TxPatch) apply(t store.Transaction) store.Transaction {
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.AccountID != nil {
		t.AccountID = *p.AccountID
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.AllocationPct != nil {
		v := *p.AllocationPct
		t.AllocationPct = &v
	}
	if p.ClearAllocation {
		t.AllocationPct = nil
	}
	if p.Note != nil {
		t.Note = *p.Note
	}
	normalize(&t)
	return t
}

// Update changes a live transaction: the old effect is reverted with the
// savings amount stored for it, the entry is rewritten, the new effect is
// applied and the allocation is reconciled to the new amount.
func (l *Ledger) Update(ctx context.Context, owner, txID string, p TxPatch) (store.Transaction, error) {
	var next store.Transaction
	err := l.st.RunInTx(ctx, func(q *store.Queries) error {
		prev, err := liveTransaction(ctx, q, owner, txID)
		if err != nil {
			return err
		}
		next = p.apply(prev)
		if err := validate(next); err != nil {
			return err
		}
		if _, err := ownedAccount(ctx, q, owner, prev.AccountID); err != nil {
			return err
		}
		if next.AccountID != prev.AccountID {
			if _, err := openAccount(ctx, q, owner, next.AccountID); err != nil {
				return err
			}
		}

		sav := l.sav.In(q)
		stored, err := sav.AllocatedFor(ctx, owner, prev.ID)
		if err != nil {
			return err
		}
		if err := q.UpdateTransaction(ctx, &next); err != nil {
			return err
		}
		allocated := Allocation(next)
		if err := l.bal.Reapply(ctx, q, balance.EffectOf(prev, stored), balance.EffectOf(next, allocated)); err != nil {
			return err
		}
		_, err = sav.ReconcileAllocationForTransaction(ctx, owner, txID, allocated, next.Date)
		return err
	})
	if err != nil {
		return store.Transaction{}, fmt.Errorf("update transaction %s: %w", txID, err)
	}

	l.log.Info("ledger: transaction updated",
		"owner", owner, "transaction", txID, "amount", next.Amount, "account", next.AccountID, "savings", Allocation(next))
	return next, nil
}

// Delete reverts a transaction, removes its allocation and marks it
// deleted. Deleting an already deleted transaction succeeds without effect.
func (l *Ledger) Delete(ctx context.Context, owner, txID string) error {
	deleted := false
	err := l.st.RunInTx(ctx, func(q *store.Queries) error {
		deleted = false
		t, err := q.GetTransaction(ctx, txID)
		if err != nil {
			return err
		}
		if t.Owner != owner {
			return fmt.Errorf("%w: %q", errs.ErrTransactionNotFound, txID)
		}
		if t.Deleted {
			return nil
		}

		sav := l.sav.In(q)
		stored, err := sav.AllocatedFor(ctx, owner, t.ID)
		if err != nil {
			return err
		}
		if err := l.bal.Revert(ctx, q, balance.EffectOf(t, stored)); err != nil {
			return err
		}
		if _, err := sav.DeleteAllocationForTransaction(ctx, owner, t.ID); err != nil {
			return err
		}
		if err := q.MarkTransactionDeleted(ctx, t.ID, t.Version); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", txID, err)
	}

	if deleted {
		l.log.Info("ledger: transaction deleted", "owner", owner, "transaction", txID)
	}
	return nil
}

// Audit compares an account's stored balance with the one implied by its
// initial balance and live transactions.
type Audit struct {
	AccountID string
	Expected  float64
	Actual    float64
}

// Drift is Actual − Expected.
func (a Audit) Drift() float64 {
	return money.Add(a.Actual, -a.Expected)
}

func (a Audit) OK() bool {
	return a.Drift() == 0
}

// AuditAccount recomputes accountID's balance from the log. Investment
// accounts are valued externally and always audit clean.
func (l *Ledger) AuditAccount(ctx context.Context, owner, accountID string) (Audit, error) {
	var out Audit
	err := l.st.RunInTx(ctx, func(q *store.Queries) error {
		a, err := q.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if a.Owner != owner {
			return fmt.Errorf("%w: %q", errs.ErrAccountNotFound, accountID)
		}
		out = Audit{AccountID: a.ID, Expected: a.CurrentBalance, Actual: a.CurrentBalance}
		if a.Type == store.AccountInvestment {
			return nil
		}

		txs, err := q.ListTransactions(ctx, store.TransactionFilter{Owner: owner, AccountID: a.ID})
		if err != nil {
			return err
		}
		expected := a.InitialBalance
		for _, t := range txs {
			var stored float64
			if t.Type == store.Income {
				alloc, err := q.AllocationForTransaction(ctx, owner, t.ID)
				switch {
				case err == nil:
					stored = alloc.Amount
				case !isNotFound(err):
					return err
				}
			}
			expected = money.Add(expected, balance.EffectOf(t, stored).Delta())
		}
		out.Expected = expected
		return nil
	})
	if err != nil {
		return Audit{}, fmt.Errorf("audit %s: %w", accountID, err)
	}
	if !out.OK() {
		l.log.Warn("ledger: balance drift", "account", accountID, "expected", out.Expected, "actual", out.Actual)
	}
	return out, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, errs.ErrNotFound)
}

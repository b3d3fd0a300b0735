// Package savings implements the savings sub-ledger: a per-owner savings
// total fed by allocations, and goals that draw funds out of that total.
//
// Allocation writes pair the allocation row with a signed increment of the
// total in one store transaction, either their own or, through In, the
// caller's. Goal transfers read the total and the goal,
// check funds, and commit both version-guarded writes together, retrying on
// conflict.
package savings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rustyeddy/fintrack/errs"
	"github.com/rustyeddy/fintrack/money"
	"github.com/rustyeddy/fintrack/pkg/id"
	"github.com/rustyeddy/fintrack/store"
)

type Service struct {
	st  *store.Store
	log *slog.Logger
}

func New(st *store.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{st: st, log: log}
}

// CreateAllocation records amount moving into owner's savings. Manual
// deposits carry no transaction reference and must be positive; automatic
// allocations belong to txRef and silently record nothing when amount
// rounds to zero, in which case the returned allocation is nil.
func (s *Service) CreateAllocation(ctx context.Context, owner, txRef string, amount float64, date string, source store.AllocationSource) (*store.SavingsAllocation, error) {
	var a *store.SavingsAllocation
	err := s.st.RunInTx(ctx, func(q *store.Queries) error {
		var err error
		a, err = s.In(q).CreateAllocation(ctx, owner, txRef, amount, date, source)
		return err
	})
	if err != nil {
		return nil, err
	}
	if a != nil {
		s.log.Info("savings: allocation created", "owner", owner, "transaction", txRef, "amount", a.Amount, "source", source)
	}
	return a, nil
}

// AllocatedFor returns the amount stored for txRef's allocation, zero if
// there is none.
func (s *Service) AllocatedFor(ctx context.Context, owner, txRef string) (float64, error) {
	return s.In(s.st.Queries()).AllocatedFor(ctx, owner, txRef)
}

// DeleteAllocationForTransaction removes txRef's allocation and takes its
// amount back out of the savings total. It returns the amount removed and is
// a no-op when no allocation exists.
func (s *Service) DeleteAllocationForTransaction(ctx context.Context, owner, txRef string) (float64, error) {
	var removed float64
	err := s.st.RunInTx(ctx, func(q *store.Queries) error {
		var err error
		removed, err = s.In(q).DeleteAllocationForTransaction(ctx, owner, txRef)
		return err
	})
	if err != nil {
		return 0, err
	}
	if removed != 0 {
		s.log.Info("savings: allocation deleted", "owner", owner, "transaction", txRef, "amount", removed)
	}
	return removed, nil
}

// ReconcileAllocationForTransaction brings txRef's allocation to newAmount.
// See Tx.ReconcileAllocationForTransaction.
func (s *Service) ReconcileAllocationForTransaction(ctx context.Context, owner, txRef string, newAmount float64, newDate string) error {
	var delta float64
	err := s.st.RunInTx(ctx, func(q *store.Queries) error {
		var err error
		delta, err = s.In(q).ReconcileAllocationForTransaction(ctx, owner, txRef, newAmount, newDate)
		return err
	})
	if err != nil {
		return err
	}
	s.log.Debug("savings: allocation reconciled", "owner", owner, "transaction", txRef, "delta", delta)
	return nil
}

// Tx runs the allocation operations inside a transaction owned by the
// caller, so they commit or roll back together with the caller's writes.
type Tx struct {
	q *store.Queries
}

// In binds the allocation operations to q.
func (s *Service) In(q *store.Queries) Tx {
	return Tx{q: q}
}

func (t Tx) CreateAllocation(ctx context.Context, owner, txRef string, amount float64, date string, source store.AllocationSource) (*store.SavingsAllocation, error) {
	if owner == "" {
		return nil, errs.Invalid("owner", "is required")
	}
	if err := store.CheckDate("date", date); err != nil {
		return nil, err
	}
	amount = money.Round(amount)

	switch source {
	case store.SourceManual:
		if txRef != "" {
			return nil, errs.Invalid("transaction", "manual deposits cannot reference a transaction")
		}
		if amount <= 0 {
			return nil, errs.Invalid("amount", "must be > 0")
		}
	case store.SourceAuto:
		if txRef == "" {
			return nil, errs.Invalid("transaction", "is required for automatic allocations")
		}
		if amount <= 0 {
			return nil, nil
		}
	default:
		return nil, errs.Invalid("source", "must be auto or manual, got %q", source)
	}

	a := store.SavingsAllocation{
		ID:            id.New(),
		Owner:         owner,
		TransactionID: txRef,
		Amount:        amount,
		Date:          date,
		Source:        source,
	}
	if err := t.q.InsertAllocation(ctx, &a); err != nil {
		return nil, fmt.Errorf("create allocation: %w", err)
	}
	if err := t.q.IncrementSavings(ctx, owner, amount); err != nil {
		return nil, fmt.Errorf("create allocation: %w", err)
	}
	return &a, nil
}

func (t Tx) AllocatedFor(ctx context.Context, owner, txRef string) (float64, error) {
	a, err := t.q.AllocationForTransaction(ctx, owner, txRef)
	if errors.Is(err, errs.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return a.Amount, nil
}

func (t Tx) DeleteAllocationForTransaction(ctx context.Context, owner, txRef string) (float64, error) {
	a, err := t.q.AllocationForTransaction(ctx, owner, txRef)
	if errors.Is(err, errs.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("delete allocation: %w", err)
	}
	if err := t.q.DeleteAllocation(ctx, a.ID); err != nil {
		return 0, fmt.Errorf("delete allocation: %w", err)
	}
	if err := t.q.IncrementSavings(ctx, owner, -a.Amount); err != nil {
		return 0, fmt.Errorf("delete allocation: %w", err)
	}
	return a.Amount, nil
}

// ReconcileAllocationForTransaction brings txRef's allocation to newAmount:
// it creates one if none exists and newAmount is positive, deletes the
// existing one if newAmount is not positive, and otherwise updates it in
// place, moving only the difference into or out of the savings total. It
// returns the change applied to the total.
func (t Tx) ReconcileAllocationForTransaction(ctx context.Context, owner, txRef string, newAmount float64, newDate string) (float64, error) {
	if err := store.CheckDate("date", newDate); err != nil {
		return 0, err
	}
	newAmount = money.Round(newAmount)

	var delta float64
	a, err := t.q.AllocationForTransaction(ctx, owner, txRef)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		if newAmount <= 0 {
			return 0, nil
		}
		a = store.SavingsAllocation{
			ID:            id.New(),
			Owner:         owner,
			TransactionID: txRef,
			Amount:        newAmount,
			Date:          newDate,
			Source:        store.SourceAuto,
		}
		err = t.q.InsertAllocation(ctx, &a)
		delta = newAmount
	case err != nil:
	case newAmount <= 0:
		err = t.q.DeleteAllocation(ctx, a.ID)
		delta = -a.Amount
	default:
		err = t.q.UpdateAllocation(ctx, a.ID, newAmount, newDate)
		delta = money.Add(newAmount, -a.Amount)
	}
	if err == nil && delta != 0 {
		err = t.q.IncrementSavings(ctx, owner, delta)
	}
	if err != nil {
		return 0, fmt.Errorf("reconcile allocation: %w", err)
	}
	return delta, nil
}

func (s *Service) Balance(ctx context.Context, owner string) (store.SavingsBalance, error) {
	return s.st.Queries().GetSavingsBalance(ctx, owner)
}

func (s *Service) Allocations(ctx context.Context, f store.AllocationFilter) ([]store.SavingsAllocation, error) {
	if f.Source != "" && f.Source != store.SourceAuto && f.Source != store.SourceManual {
		return nil, errs.Invalid("source", "must be auto or manual, got %q", f.Source)
	}
	return s.st.Queries().ListAllocations(ctx, f)
}

// Summary splits an owner's savings between the unallocated total and goals.
type Summary struct {
	Balance float64
	InGoals float64
	Goals   int
}

// Total is everything saved, wherever it currently sits.
func (s Summary) Total() float64 {
	return money.Add(s.Balance, s.InGoals)
}

func (s *Service) Summary(ctx context.Context, owner string) (Summary, error) {
	var sum Summary
	err := s.st.RunInTx(ctx, func(q *store.Queries) error {
		b, err := q.GetSavingsBalance(ctx, owner)
		if err != nil {
			return err
		}
		goals, err := q.ListGoals(ctx, owner)
		if err != nil {
			return err
		}
		sum = Summary{Balance: b.Total, Goals: len(goals)}
		for _, g := range goals {
			sum.InGoals = money.Add(sum.InGoals, g.CurrentAmount)
		}
		return nil
	})
	return sum, err
}

// CreateGoal opens an empty goal.
func (s *Service) CreateGoal(ctx context.Context, owner, title string, target float64, targetDate string) (store.SavingsGoal, error) {
	title = strings.TrimSpace(title)
	switch {
	case owner == "":
		return store.SavingsGoal{}, errs.Invalid("owner", "is required")
	case title == "":
		return store.SavingsGoal{}, errs.Invalid("title", "is required")
	case target <= 0:
		return store.SavingsGoal{}, errs.Invalid("target", "must be > 0")
	}
	if err := store.CheckDate("target_date", targetDate); err != nil {
		return store.SavingsGoal{}, err
	}

	g := store.SavingsGoal{
		ID:           id.New(),
		Owner:        owner,
		Title:        title,
		TargetAmount: money.Round(target),
		TargetDate:   targetDate,
	}
	if err := s.st.Queries().InsertGoal(ctx, &g); err != nil {
		return store.SavingsGoal{}, fmt.Errorf("create goal: %w", err)
	}
	s.log.Info("savings: goal created", "owner", owner, "goal", g.ID, "target", g.TargetAmount)
	return g, nil
}

func (s *Service) Goal(ctx context.Context, owner, goalID string) (store.SavingsGoal, error) {
	return s.st.Queries().GetGoal(ctx, owner, goalID)
}

func (s *Service) Goals(ctx context.Context, owner string) ([]store.SavingsGoal, error) {
	return s.st.Queries().ListGoals(ctx, owner)
}

// AllocateToGoal moves amount from the savings total into the goal. Both
// rows change together or neither does; a total below amount fails with
// errs.ErrInsufficientFunds.
func (s *Service) AllocateToGoal(ctx context.Context, owner, goalID string, amount float64) (store.SavingsGoal, error) {
	amount = money.Round(amount)
	if amount <= 0 {
		return store.SavingsGoal{}, errs.Invalid("amount", "must be > 0")
	}

	var g store.SavingsGoal
	err := s.st.RunInTx(ctx, func(q *store.Queries) error {
		b, err := q.GetSavingsBalance(ctx, owner)
		if err != nil {
			return err
		}
		g, err = q.GetGoal(ctx, owner, goalID)
		if err != nil {
			return err
		}
		if b.Total < amount {
			return fmt.Errorf("%w: savings %.2f, requested %.2f", errs.ErrInsufficientFunds, b.Total, amount)
		}
		if err := q.SetSavingsBalance(ctx, owner, money.Add(b.Total, -amount), b.Version); err != nil {
			return err
		}
		next := money.Add(g.CurrentAmount, amount)
		if err := q.SetGoalAmount(ctx, g.ID, next, g.Version); err != nil {
			return err
		}
		g.CurrentAmount = next
		g.Version++
		return nil
	})
	if err != nil {
		return store.SavingsGoal{}, fmt.Errorf("allocate to goal: %w", err)
	}
	s.log.Info("savings: allocated to goal", "owner", owner, "goal", goalID, "amount", amount)
	return g, nil
}

// DeleteGoal returns the goal's current amount to the savings total and
// removes the goal, atomically. It returns the amount returned.
func (s *Service) DeleteGoal(ctx context.Context, owner, goalID string) (float64, error) {
	var returned float64
	err := s.st.RunInTx(ctx, func(q *store.Queries) error {
		g, err := q.GetGoal(ctx, owner, goalID)
		if err != nil {
			return err
		}
		returned = g.CurrentAmount
		if err := q.DeleteGoal(ctx, g.ID, g.Version); err != nil {
			return err
		}
		if returned == 0 {
			return nil
		}
		return q.IncrementSavings(ctx, owner, returned)
	})
	if err != nil {
		return 0, fmt.Errorf("delete goal: %w", err)
	}
	s.log.Info("savings: goal deleted", "owner", owner, "goal", goalID, "returned", returned)
	return returned, nil
}

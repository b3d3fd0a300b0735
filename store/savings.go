package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rustyeddy/fintrack/errs"
)

// IncrementSavings adds delta to owner's savings total, creating the row on
// first use. The upsert is a single atomic statement.
func (q *Queries) IncrementSavings(ctx context.Context, owner string, delta float64) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO savings_balances (owner, total, version, updated_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (owner) DO UPDATE SET
			total = total + excluded.total,
			version = version + 1,
			updated_at = excluded.updated_at`,
		owner, delta, ts(q.now()),
	)
	return classify(err)
}

// GetSavingsBalance returns owner's savings total. An owner that never saved
// has a zero balance at version 0.
func (q *Queries) GetSavingsBalance(ctx context.Context, owner string) (SavingsBalance, error) {
	var (
		b       = SavingsBalance{Owner: owner}
		updated int64
	)
	err := q.q.QueryRowContext(ctx, `
		SELECT total, version, updated_at FROM savings_balances WHERE owner = ?`, owner,
	).Scan(&b.Total, &b.Version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return b, nil
	}
	if err != nil {
		return SavingsBalance{}, classify(err)
	}
	b.UpdatedAt = fromTS(updated)
	return b, nil
}

// SetSavingsBalance writes total iff the row is still at version. Version 0
// means the row did not exist when read.
func (q *Queries) SetSavingsBalance(ctx context.Context, owner string, total float64, version int64) error {
	now := ts(q.now())
	if version == 0 {
		_, err := q.q.ExecContext(ctx, `
			INSERT INTO savings_balances (owner, total, version, updated_at)
			VALUES (?, ?, 1, ?)`, owner, total, now)
		return classify(err)
	}
	res, err := q.q.ExecContext(ctx, `
		UPDATE savings_balances
		SET total = ?, version = version + 1, updated_at = ?
		WHERE owner = ? AND version = ?`, total, now, owner, version)
	if err != nil {
		return classify(err)
	}
	return expectOne(res, "savings balance")
}

const allocationColumns = `id, owner, transaction_id, amount, date, source, created_at`

func scanAllocation(row scanner) (SavingsAllocation, error) {
	var (
		a       SavingsAllocation
		txID    sql.NullString
		created int64
	)
	if err := row.Scan(&a.ID, &a.Owner, &txID, &a.Amount, &a.Date, &a.Source, &created); err != nil {
		return SavingsAllocation{}, err
	}
	a.TransactionID = txID.String
	a.CreatedAt = fromTS(created)
	return a, nil
}

func (q *Queries) InsertAllocation(ctx context.Context, a *SavingsAllocation) error {
	a.CreatedAt = q.now().UTC()
	var txID any
	if a.TransactionID != "" {
		txID = a.TransactionID
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO savings_allocations (`+allocationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Owner, txID, a.Amount, a.Date, a.Source, ts(a.CreatedAt),
	)
	return classify(err)
}

// AllocationForTransaction returns the allocation generated by txID, or an
// error matching errs.ErrNotFound.
func (q *Queries) AllocationForTransaction(ctx context.Context, owner, txID string) (SavingsAllocation, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT `+allocationColumns+` FROM savings_allocations
		WHERE owner = ? AND transaction_id = ?`, owner, txID)
	a, err := scanAllocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SavingsAllocation{}, fmt.Errorf("allocation for transaction %q: %w", txID, errs.ErrNotFound)
	}
	return a, classify(err)
}

func (q *Queries) UpdateAllocation(ctx context.Context, id string, amount float64, date string) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE savings_allocations SET amount = ?, date = ? WHERE id = ?`, amount, date, id)
	if err != nil {
		return classify(err)
	}
	return expectOne(res, "savings allocation")
}

func (q *Queries) DeleteAllocation(ctx context.Context, id string) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM savings_allocations WHERE id = ?`, id)
	if err != nil {
		return classify(err)
	}
	return expectOne(res, "savings allocation")
}

// AllocationFilter narrows ListAllocations; From and To are inclusive.
type AllocationFilter struct {
	Owner    string
	From, To string
	Source   AllocationSource
}

// ListAllocations returns matching allocations newest first.
func (q *Queries) ListAllocations(ctx context.Context, f AllocationFilter) ([]SavingsAllocation, error) {
	where := []string{"owner = ?"}
	args := []any{f.Owner}
	if f.From != "" {
		where = append(where, "date >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		where = append(where, "date <= ?")
		args = append(args, f.To)
	}
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, f.Source)
	}

	rows, err := q.q.QueryContext(ctx, `
		SELECT `+allocationColumns+` FROM savings_allocations
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY date DESC, created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []SavingsAllocation
	for rows.Next() {
		a, err := scanAllocation(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, a)
	}
	return out, classify(rows.Err())
}

const goalColumns = `id, owner, title, target_amount, target_date, current_amount, version, created_at, updated_at`

func scanGoal(row scanner) (SavingsGoal, error) {
	var (
		g                SavingsGoal
		created, updated int64
	)
	err := row.Scan(&g.ID, &g.Owner, &g.Title, &g.TargetAmount, &g.TargetDate,
		&g.CurrentAmount, &g.Version, &created, &updated)
	if err != nil {
		return SavingsGoal{}, err
	}
	g.CreatedAt = fromTS(created)
	g.UpdatedAt = fromTS(updated)
	return g, nil
}

func (q *Queries) InsertGoal(ctx context.Context, g *SavingsGoal) error {
	now := q.now().UTC()
	g.CreatedAt, g.UpdatedAt = now, now
	g.Version = 1
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO savings_goals (`+goalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Owner, g.Title, g.TargetAmount, g.TargetDate, g.CurrentAmount, g.Version, ts(now), ts(now),
	)
	return classify(err)
}

func (q *Queries) GetGoal(ctx context.Context, owner, id string) (SavingsGoal, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT `+goalColumns+` FROM savings_goals WHERE owner = ? AND id = ?`, owner, id)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return SavingsGoal{}, fmt.Errorf("%w: %q", errs.ErrGoalNotFound, id)
	}
	return g, classify(err)
}

func (q *Queries) ListGoals(ctx context.Context, owner string) ([]SavingsGoal, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+goalColumns+` FROM savings_goals
		WHERE owner = ?
		ORDER BY target_date ASC, created_at ASC, id ASC`, owner)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []SavingsGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, g)
	}
	return out, classify(rows.Err())
}

// SetGoalAmount writes current_amount iff the goal is still at version.
func (q *Queries) SetGoalAmount(ctx context.Context, id string, amount float64, version int64) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE savings_goals
		SET current_amount = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`, amount, ts(q.now()), id, version)
	if err != nil {
		return classify(err)
	}
	return expectOne(res, "savings goal")
}

// DeleteGoal removes the goal iff it is still at version.
func (q *Queries) DeleteGoal(ctx context.Context, id string, version int64) error {
	res, err := q.q.ExecContext(ctx, `
		DELETE FROM savings_goals WHERE id = ? AND version = ?`, id, version)
	if err != nil {
		return classify(err)
	}
	return expectOne(res, "savings goal")
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rustyeddy/fintrack/errs"
)

const accountColumns = `id, owner, name, type, currency, category, initial_balance, current_balance,
	total_realized_pl, archived, created_at, updated_at`

func scanAccount(row scanner) (Account, error) {
	var (
		a                Account
		archived         int
		created, updated int64
	)
	err := row.Scan(
		&a.ID,
		&a.Owner,
		&a.Name,
		&a.Type,
		&a.Currency,
		&a.Category,
		&a.InitialBalance,
		&a.CurrentBalance,
		&a.TotalRealizedPL,
		&archived,
		&created,
		&updated,
	)
	if err != nil {
		return Account{}, err
	}
	a.Archived = archived != 0
	a.CreatedAt = fromTS(created)
	a.UpdatedAt = fromTS(updated)
	return a, nil
}

// InsertAccount stores a; CurrentBalance starts at InitialBalance.
func (q *Queries) InsertAccount(ctx context.Context, a *Account) error {
	now := q.now().UTC()
	a.CurrentBalance = a.InitialBalance
	a.CreatedAt, a.UpdatedAt = now, now

	_, err := q.q.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Owner, a.Name, a.Type, a.Currency, a.Category, a.InitialBalance,
		a.CurrentBalance, a.TotalRealizedPL, boolInt(a.Archived), ts(now), ts(now),
	)
	if isUnique(err) {
		return errs.Invalid("name", "%q already exists", a.Name)
	}
	return classify(err)
}

// GetAccount returns the account with the given id.
func (q *Queries) GetAccount(ctx context.Context, id string) (Account, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, fmt.Errorf("%w: %q", errs.ErrAccountNotFound, id)
	}
	return a, classify(err)
}

// AccountByName looks an account up by its owner-scoped display name.
func (q *Queries) AccountByName(ctx context.Context, owner, name string) (Account, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE owner = ? AND name = ?`, owner, name)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, fmt.Errorf("%w: %q", errs.ErrAccountNotFound, name)
	}
	return a, classify(err)
}

// ListAccounts returns owner's accounts ordered by name.
func (q *Queries) ListAccounts(ctx context.Context, owner string, includeArchived bool) ([]Account, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE owner = ? AND (archived = 0 OR ?)
		ORDER BY name ASC, id ASC`, owner, includeArchived)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, a)
	}
	return out, classify(rows.Err())
}

// UpdateAccountDetails rewrites a's name, currency and category. Balances
// are left alone.
func (q *Queries) UpdateAccountDetails(ctx context.Context, a *Account) error {
	a.UpdatedAt = q.now().UTC()
	res, err := q.q.ExecContext(ctx, `
		UPDATE accounts SET name = ?, currency = ?, category = ?, updated_at = ?
		WHERE id = ?`, a.Name, a.Currency, a.Category, ts(a.UpdatedAt), a.ID)
	if isUnique(err) {
		return errs.Invalid("name", "%q already exists", a.Name)
	}
	if err != nil {
		return classify(err)
	}
	return q.affected(res, errs.ErrAccountNotFound, a.ID)
}

// ArchiveAccount sets the archived flag. Archiving twice is not an error.
func (q *Queries) ArchiveAccount(ctx context.Context, id string) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE accounts SET archived = 1, updated_at = ? WHERE id = ?`, ts(q.now()), id)
	if err != nil {
		return classify(err)
	}
	return q.affected(res, errs.ErrAccountNotFound, id)
}

// IncrementBalance adds delta to current_balance in one statement.
func (q *Queries) IncrementBalance(ctx context.Context, id string, delta float64) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE accounts
		SET current_balance = current_balance + ?, updated_at = ?
		WHERE id = ?`, delta, ts(q.now()), id)
	if err != nil {
		return classify(err)
	}
	return q.affected(res, errs.ErrAccountNotFound, id)
}

// IncrementRealizedPL adds delta to total_realized_pl in one statement.
func (q *Queries) IncrementRealizedPL(ctx context.Context, id string, delta float64) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE accounts
		SET total_realized_pl = total_realized_pl + ?, updated_at = ?
		WHERE id = ?`, delta, ts(q.now()), id)
	if err != nil {
		return classify(err)
	}
	return q.affected(res, errs.ErrAccountNotFound, id)
}

// SetBalance overwrites current_balance. Only the portfolio valuation path
// uses it, for investment accounts.
func (q *Queries) SetBalance(ctx context.Context, id string, value float64) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE accounts SET current_balance = ?, updated_at = ? WHERE id = ?`,
		value, ts(q.now()), id)
	if err != nil {
		return classify(err)
	}
	return q.affected(res, errs.ErrAccountNotFound, id)
}

func (q *Queries) affected(res sql.Result, notFound error, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", notFound, id)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rustyeddy/fintrack/errs"
)

const transactionColumns = `id, owner, type, category, amount, account_id, date, allocation_pct,
	note, deleted, version, created_at, updated_at`

func scanTransaction(row scanner) (Transaction, error) {
	var (
		t                Transaction
		pct              sql.NullFloat64
		deleted          int
		created, updated int64
	)
	err := row.Scan(
		&t.ID,
		&t.Owner,
		&t.Type,
		&t.Category,
		&t.Amount,
		&t.AccountID,
		&t.Date,
		&pct,
		&t.Note,
		&deleted,
		&t.Version,
		&created,
		&updated,
	)
	if err != nil {
		return Transaction{}, err
	}
	if pct.Valid {
		v := pct.Float64
		t.AllocationPct = &v
	}
	t.Deleted = deleted != 0
	t.CreatedAt = fromTS(created)
	t.UpdatedAt = fromTS(updated)
	return t, nil
}

func (q *Queries) InsertTransaction(ctx context.Context, t *Transaction) error {
	now := q.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	_, err := q.q.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Owner, t.Type, t.Category, t.Amount, t.AccountID, t.Date,
		t.AllocationPct, t.Note, boolInt(t.Deleted), t.Version, ts(now), ts(now),
	)
	return classify(err)
}

// GetTransaction returns the entry including soft-deleted ones.
func (q *Queries) GetTransaction(ctx context.Context, id string) (Transaction, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, fmt.Errorf("%w: %q", errs.ErrTransactionNotFound, id)
	}
	return t, classify(err)
}

// UpdateTransaction rewrites the mutable fields of a live entry, provided
// it is still at t.Version. On success t.Version is advanced; a deleted or
// concurrently changed entry is a conflict.
func (q *Queries) UpdateTransaction(ctx context.Context, t *Transaction) error {
	updated := q.now().UTC()
	res, err := q.q.ExecContext(ctx, `
		UPDATE transactions
		SET type = ?, category = ?, amount = ?, account_id = ?, date = ?,
			allocation_pct = ?, note = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND deleted = 0 AND version = ?`,
		t.Type, t.Category, t.Amount, t.AccountID, t.Date,
		t.AllocationPct, t.Note, ts(updated), t.ID, t.Version,
	)
	if err != nil {
		return classify(err)
	}
	if err := expectOne(res, "update transaction "+t.ID); err != nil {
		return err
	}
	t.Version++
	t.UpdatedAt = updated
	return nil
}

// MarkTransactionDeleted soft-deletes the entry if it is live and still at
// version. Anything else is a conflict, so of two racing deletes only one
// commits.
func (q *Queries) MarkTransactionDeleted(ctx context.Context, id string, version int64) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE transactions SET deleted = 1, version = version + 1, updated_at = ?
		WHERE id = ? AND deleted = 0 AND version = ?`, ts(q.now()), id, version)
	if err != nil {
		return classify(err)
	}
	return expectOne(res, "delete transaction "+id)
}

// TransactionFilter narrows ListTransactions. Empty fields match everything;
// From and To are inclusive YYYY-MM-DD bounds.
type TransactionFilter struct {
	Owner          string
	From, To       string
	Type           TxType
	AccountID      string
	IncludeDeleted bool
}

// ListTransactions returns matching entries newest first.
func (q *Queries) ListTransactions(ctx context.Context, f TransactionFilter) ([]Transaction, error) {
	where := []string{"owner = ?"}
	args := []any{f.Owner}
	if !f.IncludeDeleted {
		where = append(where, "deleted = 0")
	}
	if f.From != "" {
		where = append(where, "date >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		where = append(where, "date <= ?")
		args = append(args, f.To)
	}
	if f.Type != "" {
		where = append(where, "type = ?")
		args = append(args, f.Type)
	}
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}

	rows, err := q.q.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY date DESC, created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, t)
	}
	return out, classify(rows.Err())
}

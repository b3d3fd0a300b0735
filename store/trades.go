package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rustyeddy/fintrack/errs"
)

const tradeColumns = `id, owner, account_id, symbol, type, quantity, price, date, realized_pl,
	note, deleted, created_at, updated_at`

func scanTrade(row scanner) (Trade, error) {
	var (
		t                Trade
		pl               sql.NullFloat64
		deleted          int
		created, updated int64
	)
	err := row.Scan(
		&t.ID,
		&t.Owner,
		&t.AccountID,
		&t.Symbol,
		&t.Type,
		&t.Quantity,
		&t.Price,
		&t.Date,
		&pl,
		&t.Note,
		&deleted,
		&created,
		&updated,
	)
	if err != nil {
		return Trade{}, err
	}
	if pl.Valid {
		v := pl.Float64
		t.RealizedPL = &v
	}
	t.Deleted = deleted != 0
	t.CreatedAt = fromTS(created)
	t.UpdatedAt = fromTS(updated)
	return t, nil
}

func (q *Queries) InsertTrade(ctx context.Context, t *Trade) error {
	now := q.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO trades (`+tradeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Owner, t.AccountID, t.Symbol, t.Type, t.Quantity, t.Price, t.Date,
		t.RealizedPL, t.Note, boolInt(t.Deleted), ts(now), ts(now),
	)
	return classify(err)
}

func (q *Queries) GetTrade(ctx context.Context, id string) (Trade, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Trade{}, fmt.Errorf("%w: %q", errs.ErrTradeNotFound, id)
	}
	return t, classify(err)
}

// UpdateTrade rewrites the mutable fields of a live trade.
func (q *Queries) UpdateTrade(ctx context.Context, t *Trade) error {
	t.UpdatedAt = q.now().UTC()
	res, err := q.q.ExecContext(ctx, `
		UPDATE trades
		SET type = ?, quantity = ?, price = ?, date = ?, realized_pl = ?, note = ?, updated_at = ?
		WHERE id = ? AND deleted = 0`,
		t.Type, t.Quantity, t.Price, t.Date, t.RealizedPL, t.Note, ts(t.UpdatedAt), t.ID,
	)
	if err != nil {
		return classify(err)
	}
	return expectOne(res, "trade")
}

// MarkTradeDeleted soft-deletes one trade, reporting false if it already was.
func (q *Queries) MarkTradeDeleted(ctx context.Context, id string) (bool, error) {
	res, err := q.q.ExecContext(ctx, `
		UPDATE trades SET deleted = 1, updated_at = ? WHERE id = ? AND deleted = 0`,
		ts(q.now()), id)
	if err != nil {
		return false, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify(err)
	}
	return n == 1, nil
}

// DeleteAssetTrades soft-deletes every live trade of (accountID, symbol) and
// returns how many rows changed.
func (q *Queries) DeleteAssetTrades(ctx context.Context, accountID, symbol string) (int64, error) {
	res, err := q.q.ExecContext(ctx, `
		UPDATE trades SET deleted = 1, updated_at = ?
		WHERE account_id = ? AND symbol = ? AND deleted = 0`,
		ts(q.now()), accountID, symbol)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	return n, classify(err)
}

// AssetTrades returns the live trades of (accountID, symbol) in replay
// order: date, then creation time, then id.
func (q *Queries) AssetTrades(ctx context.Context, accountID, symbol string) ([]Trade, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE account_id = ? AND symbol = ? AND deleted = 0
		ORDER BY date ASC, created_at ASC, id ASC`, accountID, symbol)
	if err != nil {
		return nil, classify(err)
	}
	return collectTrades(rows)
}

type TradeFilter struct {
	Owner          string
	AccountID      string
	Symbol         string
	IncludeDeleted bool
}

// ListTrades returns matching trades newest first.
func (q *Queries) ListTrades(ctx context.Context, f TradeFilter) ([]Trade, error) {
	where := []string{"owner = ?"}
	args := []any{f.Owner}
	if !f.IncludeDeleted {
		where = append(where, "deleted = 0")
	}
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if f.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, f.Symbol)
	}
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY date DESC, created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, classify(err)
	}
	return collectTrades(rows)
}

func collectTrades(rows *sql.Rows) ([]Trade, error) {
	defer rows.Close()

	var out []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, t)
	}
	return out, classify(rows.Err())
}

const holdingColumns = `id, owner, account_id, symbol, quantity, average_cost, version, created_at, updated_at`

func scanHolding(row scanner) (Holding, error) {
	var (
		h                Holding
		created, updated int64
	)
	err := row.Scan(&h.ID, &h.Owner, &h.AccountID, &h.Symbol, &h.Quantity, &h.AverageCost,
		&h.Version, &created, &updated)
	if err != nil {
		return Holding{}, err
	}
	h.CreatedAt = fromTS(created)
	h.UpdatedAt = fromTS(updated)
	return h, nil
}

// GetHolding returns the materialized holding of (accountID, symbol), or an
// error matching errs.ErrHoldingNotFound.
func (q *Queries) GetHolding(ctx context.Context, accountID, symbol string) (Holding, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT `+holdingColumns+` FROM holdings WHERE account_id = ? AND symbol = ?`,
		accountID, symbol)
	h, err := scanHolding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Holding{}, fmt.Errorf("%w: %s/%s", errs.ErrHoldingNotFound, accountID, symbol)
	}
	return h, classify(err)
}

func (q *Queries) GetHoldingByID(ctx context.Context, id string) (Holding, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+holdingColumns+` FROM holdings WHERE id = ?`, id)
	h, err := scanHolding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Holding{}, fmt.Errorf("%w: %q", errs.ErrHoldingNotFound, id)
	}
	return h, classify(err)
}

// InsertHolding creates the holding row. A concurrent insert of the same
// (account, symbol) surfaces as a conflict.
func (q *Queries) InsertHolding(ctx context.Context, h *Holding) error {
	now := q.now().UTC()
	h.CreatedAt, h.UpdatedAt = now, now
	h.Version = 1
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO holdings (`+holdingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.Owner, h.AccountID, h.Symbol, h.Quantity, h.AverageCost, h.Version, ts(now), ts(now),
	)
	return classify(err)
}

// UpdateHolding writes quantity and average cost iff h is still at h.Version.
func (q *Queries) UpdateHolding(ctx context.Context, h *Holding) error {
	h.UpdatedAt = q.now().UTC()
	res, err := q.q.ExecContext(ctx, `
		UPDATE holdings
		SET quantity = ?, average_cost = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		h.Quantity, h.AverageCost, ts(h.UpdatedAt), h.ID, h.Version)
	if err != nil {
		return classify(err)
	}
	if err := expectOne(res, "holding"); err != nil {
		return err
	}
	h.Version++
	return nil
}

// DeleteHolding removes the holding iff it is still at version.
func (q *Queries) DeleteHolding(ctx context.Context, id string, version int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM holdings WHERE id = ? AND version = ?`, id, version)
	if err != nil {
		return classify(err)
	}
	return expectOne(res, "holding")
}

// ListHoldings returns owner's holdings, optionally for one account.
func (q *Queries) ListHoldings(ctx context.Context, owner, accountID string) ([]Holding, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+holdingColumns+` FROM holdings
		WHERE owner = ? AND (? = '' OR account_id = ?)
		ORDER BY account_id ASC, symbol ASC`, owner, accountID, accountID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, h)
	}
	return out, classify(rows.Err())
}

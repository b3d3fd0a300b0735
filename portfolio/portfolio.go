// Package portfolio maintains investment holdings by replaying each asset's
// trade log, and books realized profit and loss on the owning account.
//
// Every mutating operation runs in one store transaction: the trade write,
// the realized P&L increment and the holding recalculation commit together,
// and any InsufficientHoldings found by the replay rolls all of them back.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/fintrack/errs"
	"github.com/rustyeddy/fintrack/money"
	"github.com/rustyeddy/fintrack/pkg/id"
	"github.com/rustyeddy/fintrack/store"
)

// OverrideNote is the note carried by the single buy that replaces an
// overridden asset history.
const OverrideNote = "holding override"

type Engine struct {
	st  *store.Store
	log *slog.Logger
	now func() time.Time
}

func New(st *store.Store, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{st: st, log: log, now: time.Now}
}

// TradeInput describes a new trade.
type TradeInput struct {
	AccountID string
	Symbol    string
	Type      store.TradeType
	Quantity  float64
	Price     float64
	Date      string
	Note      string
}

// TradePatch holds the fields UpdateTrade may change; nil leaves a field as is.
type TradePatch struct {
	Type     *store.TradeType
	Quantity *float64
	Price    *float64
	Date     *string
	Note     *string
}

// NormalizeSymbol trims and upper-cases an asset symbol.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func validateTrade(t store.Trade) error {
	switch {
	case t.Symbol == "":
		return errs.Invalid("symbol", "is required")
	case !t.Type.Valid():
		return errs.Invalid("type", "must be buy or sell, got %q", t.Type)
	case t.Quantity <= 0:
		return errs.Invalid("quantity", "must be > 0")
	case t.Price < 0:
		return errs.Invalid("price", "must be >= 0")
	}
	return store.CheckDate("date", t.Date)
}

// investmentAccount loads accountID and checks it belongs to owner and can
// hold trades.
func investmentAccount(ctx context.Context, q *store.Queries, owner, accountID string) (store.Account, error) {
	a, err := q.GetAccount(ctx, accountID)
	if err != nil {
		return store.Account{}, err
	}
	if a.Owner != owner {
		return store.Account{}, fmt.Errorf("%w: %q", errs.ErrAccountNotFound, accountID)
	}
	if a.Type != store.AccountInvestment {
		return store.Account{}, errs.Invalid("account", "%q is a %s account, not investment", a.Name, a.Type)
	}
	return a, nil
}

// Recalculate rebuilds the holding of (accountID, symbol) from its trade
// log. It returns nil when the replay leaves nothing held.
func (e *Engine) Recalculate(ctx context.Context, owner, accountID, symbol string) (*store.Holding, error) {
	symbol = NormalizeSymbol(symbol)

	var h *store.Holding
	err := e.st.RunInTx(ctx, func(q *store.Queries) error {
		a, err := investmentAccount(ctx, q, owner, accountID)
		if err != nil {
			return err
		}
		h, err = e.recalculate(ctx, q, a, symbol)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("recalculate %s/%s: %w", accountID, symbol, err)
	}
	return h, nil
}

func (e *Engine) recalculate(ctx context.Context, q *store.Queries, a store.Account, symbol string) (*store.Holding, error) {
	trades, err := q.AssetTrades(ctx, a.ID, symbol)
	if err != nil {
		return nil, err
	}
	pos, err := Replay(trades)
	if err != nil {
		return nil, err
	}

	cur, err := q.GetHolding(ctx, a.ID, symbol)
	exists := err == nil
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return nil, err
	}

	if !pos.Open() {
		if exists {
			if err := q.DeleteHolding(ctx, cur.ID, cur.Version); err != nil {
				return nil, err
			}
			e.log.Debug("portfolio: holding closed", "account", a.ID, "symbol", symbol)
		}
		return nil, nil
	}

	qty, _ := pos.Quantity.Float64()
	avg, _ := pos.AverageCost().Float64()
	if !exists {
		cur = store.Holding{ID: id.New(), Owner: a.Owner, AccountID: a.ID, Symbol: symbol}
		cur.Quantity, cur.AverageCost = qty, avg
		if err := q.InsertHolding(ctx, &cur); err != nil {
			return nil, err
		}
	} else {
		cur.Quantity, cur.AverageCost = qty, avg
		if err := q.UpdateHolding(ctx, &cur); err != nil {
			return nil, err
		}
	}
	e.log.Debug("portfolio: holding recalculated",
		"account", a.ID, "symbol", symbol, "trades", len(trades), "quantity", qty, "avg_cost", avg)
	return &cur, nil
}

// AddTrade records a trade and folds it into the holding. A sell is checked
// against the materialized holding before anything is written; its realized
// P&L uses the holding's average cost before the sale.
func (e *Engine) AddTrade(ctx context.Context, owner string, in TradeInput) (store.Trade, error) {
	t := store.Trade{
		ID:        id.New(),
		Owner:     owner,
		AccountID: in.AccountID,
		Symbol:    NormalizeSymbol(in.Symbol),
		Type:      in.Type,
		Quantity:  in.Quantity,
		Price:     in.Price,
		Date:      in.Date,
		Note:      strings.TrimSpace(in.Note),
	}
	if err := validateTrade(t); err != nil {
		return store.Trade{}, err
	}

	err := e.st.RunInTx(ctx, func(q *store.Queries) error {
		t.RealizedPL = nil
		a, err := investmentAccount(ctx, q, owner, t.AccountID)
		if err != nil {
			return err
		}
		if a.Archived {
			return errs.Invalid("account", "%q is archived", a.Name)
		}

		if t.Type == store.Sell {
			h, err := q.GetHolding(ctx, a.ID, t.Symbol)
			if err != nil && !errors.Is(err, errs.ErrNotFound) {
				return err
			}
			held := decimal.NewFromFloat(h.Quantity)
			if decimal.NewFromFloat(t.Quantity).GreaterThan(held.Add(Epsilon)) {
				return fmt.Errorf("%w: selling %g %s with %g held",
					errs.ErrInsufficientHoldings, t.Quantity, t.Symbol, h.Quantity)
			}
			pl := RealizedPL(t.Quantity, t.Price, decimal.NewFromFloat(h.AverageCost))
			t.RealizedPL = &pl
		}

		if err := q.InsertTrade(ctx, &t); err != nil {
			return err
		}
		if t.RealizedPL != nil {
			if err := q.IncrementRealizedPL(ctx, a.ID, *t.RealizedPL); err != nil {
				return err
			}
		}
		_, err = e.recalculate(ctx, q, a, t.Symbol)
		return err
	})
	if err != nil {
		return store.Trade{}, fmt.Errorf("add trade: %w", err)
	}
	e.log.Info("portfolio: trade added",
		"owner", owner, "account", t.AccountID, "symbol", t.Symbol, "type", t.Type, "quantity", t.Quantity, "price", t.Price)
	return t, nil
}

func (e *Engine) liveTrade(ctx context.Context, q *store.Queries, owner, tradeID string) (store.Trade, error) {
	t, err := q.GetTrade(ctx, tradeID)
	if err != nil {
		return store.Trade{}, err
	}
	if t.Owner != owner || t.Deleted {
		return store.Trade{}, fmt.Errorf("%w: %q", errs.ErrTradeNotFound, tradeID)
	}
	return t, nil
}

// UpdateTrade edits a live trade. The trade's own realized P&L is reversed
// and, if it is still a sell, recomputed from the replayed average cost just
// before it.
func (e *Engine) UpdateTrade(ctx context.Context, owner, tradeID string, p TradePatch) (store.Trade, error) {
	var t store.Trade
	err := e.st.RunInTx(ctx, func(q *store.Queries) error {
		var err error
		if t, err = e.liveTrade(ctx, q, owner, tradeID); err != nil {
			return err
		}
		a, err := investmentAccount(ctx, q, owner, t.AccountID)
		if err != nil {
			return err
		}

		if p.Type != nil {
			t.Type = *p.Type
		}
		if p.Quantity != nil {
			t.Quantity = *p.Quantity
		}
		if p.Price != nil {
			t.Price = *p.Price
		}
		if p.Date != nil {
			t.Date = *p.Date
		}
		if p.Note != nil {
			t.Note = strings.TrimSpace(*p.Note)
		}
		if err := validateTrade(t); err != nil {
			return err
		}

		if t.RealizedPL != nil {
			if err := q.IncrementRealizedPL(ctx, a.ID, -*t.RealizedPL); err != nil {
				return err
			}
			t.RealizedPL = nil
		}

		if t.Type == store.Sell {
			trades, err := q.AssetTrades(ctx, a.ID, t.Symbol)
			if err != nil {
				return err
			}
			for i := range trades {
				if trades[i].ID == t.ID {
					trades[i] = t
				}
			}
			SortForReplay(trades)
			before, err := PositionBefore(trades, t.ID)
			if err != nil {
				return err
			}
			pl := RealizedPL(t.Quantity, t.Price, before.AverageCost())
			t.RealizedPL = &pl
		}

		if err := q.UpdateTrade(ctx, &t); err != nil {
			return err
		}
		if t.RealizedPL != nil {
			if err := q.IncrementRealizedPL(ctx, a.ID, *t.RealizedPL); err != nil {
				return err
			}
		}
		_, err = e.recalculate(ctx, q, a, t.Symbol)
		return err
	})
	if err != nil {
		return store.Trade{}, fmt.Errorf("update trade %s: %w", tradeID, err)
	}
	e.log.Info("portfolio: trade updated", "owner", owner, "trade", tradeID)
	return t, nil
}

// DeleteTrade soft-deletes a trade, reverses its realized P&L and
// recalculates. Deleting an already deleted trade succeeds without effect.
func (e *Engine) DeleteTrade(ctx context.Context, owner, tradeID string) error {
	var noop bool
	err := e.st.RunInTx(ctx, func(q *store.Queries) error {
		noop = false
		t, err := q.GetTrade(ctx, tradeID)
		if err != nil {
			return err
		}
		if t.Owner != owner {
			return fmt.Errorf("%w: %q", errs.ErrTradeNotFound, tradeID)
		}
		if t.Deleted {
			noop = true
			return nil
		}
		a, err := investmentAccount(ctx, q, owner, t.AccountID)
		if err != nil {
			return err
		}
		if _, err := q.MarkTradeDeleted(ctx, t.ID); err != nil {
			return err
		}
		if t.RealizedPL != nil {
			if err := q.IncrementRealizedPL(ctx, a.ID, -*t.RealizedPL); err != nil {
				return err
			}
		}
		_, err = e.recalculate(ctx, q, a, t.Symbol)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete trade %s: %w", tradeID, err)
	}
	if !noop {
		e.log.Info("portfolio: trade deleted", "owner", owner, "trade", tradeID)
	}
	return nil
}

func ownedHolding(ctx context.Context, q *store.Queries, owner, holdingID string) (store.Holding, error) {
	h, err := q.GetHoldingByID(ctx, holdingID)
	if err != nil {
		return store.Holding{}, err
	}
	if h.Owner != owner {
		return store.Holding{}, fmt.Errorf("%w: %q", errs.ErrHoldingNotFound, holdingID)
	}
	return h, nil
}

// OverrideHolding replaces the holding's trade history with a single buy of
// quantity at averageCost dated today. Realized P&L already booked stays.
func (e *Engine) OverrideHolding(ctx context.Context, owner, holdingID string, quantity, averageCost float64) (*store.Holding, error) {
	switch {
	case quantity <= 0:
		return nil, errs.Invalid("quantity", "must be > 0")
	case averageCost < 0:
		return nil, errs.Invalid("average_cost", "must be >= 0")
	}

	var h *store.Holding
	err := e.st.RunInTx(ctx, func(q *store.Queries) error {
		cur, err := ownedHolding(ctx, q, owner, holdingID)
		if err != nil {
			return err
		}
		a, err := investmentAccount(ctx, q, owner, cur.AccountID)
		if err != nil {
			return err
		}
		n, err := q.DeleteAssetTrades(ctx, a.ID, cur.Symbol)
		if err != nil {
			return err
		}
		buy := store.Trade{
			ID:        id.New(),
			Owner:     owner,
			AccountID: a.ID,
			Symbol:    cur.Symbol,
			Type:      store.Buy,
			Quantity:  quantity,
			Price:     averageCost,
			Date:      e.now().Format(store.DateLayout),
			Note:      OverrideNote,
		}
		if err := q.InsertTrade(ctx, &buy); err != nil {
			return err
		}
		e.log.Debug("portfolio: history replaced", "holding", holdingID, "trades", n)
		h, err = e.recalculate(ctx, q, a, cur.Symbol)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("override holding %s: %w", holdingID, err)
	}
	e.log.Info("portfolio: holding overridden", "owner", owner, "holding", holdingID, "quantity", quantity, "avg_cost", averageCost)
	return h, nil
}

// DeleteHolding soft-deletes the holding's entire trade history and removes
// it. A holding that no longer exists is not an error.
func (e *Engine) DeleteHolding(ctx context.Context, owner, holdingID string) error {
	err := e.st.RunInTx(ctx, func(q *store.Queries) error {
		cur, err := ownedHolding(ctx, q, owner, holdingID)
		if errors.Is(err, errs.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := q.DeleteAssetTrades(ctx, cur.AccountID, cur.Symbol); err != nil {
			return err
		}
		return q.DeleteHolding(ctx, cur.ID, cur.Version)
	})
	if err != nil {
		return fmt.Errorf("delete holding %s: %w", holdingID, err)
	}
	e.log.Info("portfolio: holding deleted", "owner", owner, "holding", holdingID)
	return nil
}

func (e *Engine) Trades(ctx context.Context, f store.TradeFilter) ([]store.Trade, error) {
	f.Symbol = NormalizeSymbol(f.Symbol)
	return e.st.Queries().ListTrades(ctx, f)
}

func (e *Engine) Holdings(ctx context.Context, owner, accountID string) ([]store.Holding, error) {
	return e.st.Queries().ListHoldings(ctx, owner, accountID)
}

// SetMarketValue overwrites an investment account's current balance with
// its market valuation.
func (e *Engine) SetMarketValue(ctx context.Context, owner, accountID string, value float64) error {
	if value < 0 {
		return errs.Invalid("value", "must be >= 0")
	}
	value = money.Round(value)
	err := e.st.RunInTx(ctx, func(q *store.Queries) error {
		a, err := investmentAccount(ctx, q, owner, accountID)
		if err != nil {
			return err
		}
		return q.SetBalance(ctx, a.ID, value)
	})
	if err != nil {
		return fmt.Errorf("set market value %s: %w", accountID, err)
	}
	e.log.Info("portfolio: market value set", "owner", owner, "account", accountID, "value", value)
	return nil
}

// Summary aggregates an owner's holdings at cost.
type Summary struct {
	Holdings        int
	CostBasis       float64
	TotalRealizedPL float64
}

func (e *Engine) Summary(ctx context.Context, owner string) (Summary, error) {
	var s Summary
	err := e.st.RunInTx(ctx, func(q *store.Queries) error {
		s = Summary{}
		hs, err := q.ListHoldings(ctx, owner, "")
		if err != nil {
			return err
		}
		basis := decimal.Zero
		for _, h := range hs {
			basis = basis.Add(decimal.NewFromFloat(h.Quantity).Mul(decimal.NewFromFloat(h.AverageCost)))
		}
		s.Holdings = len(hs)
		s.CostBasis, _ = basis.Round(2).Float64()

		accts, err := q.ListAccounts(ctx, owner, true)
		if err != nil {
			return err
		}
		for _, a := range accts {
			if a.Type == store.AccountInvestment {
				s.TotalRealizedPL = money.Add(s.TotalRealizedPL, a.TotalRealizedPL)
			}
		}
		return nil
	})
	return s, err
}

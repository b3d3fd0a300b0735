package portfolio

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/fintrack/errs"
	"github.com/rustyeddy/fintrack/store"
)

// Epsilon absorbs floating point drift: a replayed quantity at or below it
// is treated as zero, and a sell may exceed the quantity held by at most it.
var Epsilon = decimal.New(1, -9)

// Position is the running state of a trade log replay.
type Position struct {
	Quantity  decimal.Decimal
	TotalCost decimal.Decimal
}

// AverageCost is TotalCost / Quantity, or zero for an empty position.
func (p Position) AverageCost() decimal.Decimal {
	if !p.Quantity.IsPositive() {
		return decimal.Zero
	}
	return p.TotalCost.Div(p.Quantity)
}

// Open reports whether the position still holds anything.
func (p Position) Open() bool {
	return p.Quantity.GreaterThan(Epsilon)
}

// Fold applies one trade.
func (p Position) Fold(t store.Trade) (Position, error) {
	q := decimal.NewFromFloat(t.Quantity)
	switch t.Type {
	case store.Buy:
		p.TotalCost = p.TotalCost.Add(q.Mul(decimal.NewFromFloat(t.Price)))
		p.Quantity = p.Quantity.Add(q)
	case store.Sell:
		if q.GreaterThan(p.Quantity.Add(Epsilon)) {
			return p, fmt.Errorf("%w: %s sells %s of %s on %s with %s held",
				errs.ErrInsufficientHoldings, t.ID, q, t.Symbol, t.Date, p.Quantity)
		}
		avg := p.AverageCost()
		p.Quantity = p.Quantity.Sub(q)
		p.TotalCost = p.TotalCost.Sub(q.Mul(avg))
		if !p.Open() {
			p = Position{Quantity: decimal.Zero, TotalCost: decimal.Zero}
		}
	default:
		return p, errs.Invalid("type", "unknown trade type %q on %s", t.Type, t.ID)
	}
	return p, nil
}

// Replay folds trades in order, failing on the first sell that exceeds the
// quantity held at that point.
func Replay(trades []store.Trade) (Position, error) {
	var (
		p   Position
		err error
	)
	for _, t := range trades {
		if p, err = p.Fold(t); err != nil {
			return Position{}, err
		}
	}
	return p, nil
}

// PositionBefore replays trades up to, not including, the trade with id.
func PositionBefore(trades []store.Trade, id string) (Position, error) {
	i := slices.IndexFunc(trades, func(t store.Trade) bool { return t.ID == id })
	if i < 0 {
		return Position{}, fmt.Errorf("%w: %q not in replay", errs.ErrTradeNotFound, id)
	}
	return Replay(trades[:i])
}

// SortForReplay orders trades by date, then creation time, then id.
func SortForReplay(trades []store.Trade) {
	slices.SortStableFunc(trades, func(a, b store.Trade) int {
		if c := cmp.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

// RealizedPL is quantity × (price − avgCost), rounded to cents.
func RealizedPL(quantity, price float64, avgCost decimal.Decimal) float64 {
	pl := decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(price).Sub(avgCost))
	v, _ := pl.Round(2).Float64()
	return v
}

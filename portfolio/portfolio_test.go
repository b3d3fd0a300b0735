package portfolio

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/fintrack/errs"
	"github.com/rustyeddy/fintrack/pkg/id"
	"github.com/rustyeddy/fintrack/store"
)

const owner = "u1"

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()

	st, err := store.Open(store.Options{
		Path:         filepath.Join(t.TempDir(), "portfolio.db"),
		MaxRetries:   50,
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	e := New(st, nil)
	e.now = func() time.Time { return time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC) }
	return e, st
}

func seedAccount(t *testing.T, st *store.Store, name string, typ store.AccountType) store.Account {
	t.Helper()

	a := store.Account{ID: id.New(), Owner: owner, Name: name, Type: typ, Currency: "USD"}
	require.NoError(t, st.Queries().InsertAccount(context.Background(), &a))
	return a
}

func account(t *testing.T, st *store.Store, accountID string) store.Account {
	t.Helper()

	a, err := st.Queries().GetAccount(context.Background(), accountID)
	require.NoError(t, err)
	return a
}

func holding(t *testing.T, st *store.Store, accountID, symbol string) (store.Holding, bool) {
	t.Helper()

	h, err := st.Queries().GetHolding(context.Background(), accountID, symbol)
	if err != nil {
		require.ErrorIs(t, err, errs.ErrNotFound)
		return store.Holding{}, false
	}
	return h, true
}

func buy(acct string, qty, price float64, date string) TradeInput {
	return TradeInput{AccountID: acct, Symbol: "acme", Type: store.Buy, Quantity: qty, Price: price, Date: date}
}

func sell(acct string, qty, price float64, date string) TradeInput {
	return TradeInput{AccountID: acct, Symbol: "ACME", Type: store.Sell, Quantity: qty, Price: price, Date: date}
}

func TestBuyBuySellScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, st := newTestEngine(t)
	acct := seedAccount(t, st, "Broker", store.AccountInvestment)

	_, err := e.AddTrade(ctx, owner, buy(acct.ID, 10, 100, "2024-01-01"))
	require.NoError(t, err)
	h, ok := holding(t, st, acct.ID, "ACME")
	require.True(t, ok)
	assert.Equal(t, 10.0, h.Quantity)
	assert.Equal(t, 100.0, h.AverageCost)

	_, err = e.AddTrade(ctx, owner, buy(acct.ID, 5, 130, "2024-01-02"))
	require.NoError(t, err)
	h, _ = holding(t, st, acct.ID, "ACME")
	assert.Equal(t, 15.0, h.Quantity)
	assert.InDelta(t, 110.0, h.AverageCost, 1e-9)

	s, err := e.AddTrade(ctx, owner, sell(acct.ID, 8, 150, "2024-01-03"))
	require.NoError(t, err)
	require.NotNil(t, s.RealizedPL)
	assert.Equal(t, 320.0, *s.RealizedPL)

	h, _ = holding(t, st, acct.ID, "ACME")
	assert.InDelta(t, 7.0, h.Quantity, 1e-9)
	assert.InDelta(t, 110.0, h.AverageCost, 1e-9)
	assert.Equal(t, 320.0, account(t, st, acct.ID).TotalRealizedPL)

	// oversell against qty 7 leaves everything as it was
	_, err = e.AddTrade(ctx, owner, sell(acct.ID, 20, 150, "2024-01-04"))
	assert.ErrorIs(t, err, errs.ErrInsufficientHoldings)

	after, _ := holding(t, st, acct.ID, "ACME")
	assert.Equal(t, h.Quantity, after.Quantity)
	assert.Equal(t, h.AverageCost, after.AverageCost)
	assert.Equal(t, h.Version, after.Version)
	assert.Equal(t, 320.0, account(t, st, acct.ID).TotalRealizedPL)

	trades, err := e.Trades(ctx, store.TradeFilter{Owner: owner, AccountID: acct.ID})
	require.NoError(t, err)
	assert.Len(t, trades, 3)
}

func TestSellWithoutHolding(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, st := newTestEngine(t)
	acct := seedAccount(t, st, "Broker", store.AccountInvestment)

	_, err := e.AddTrade(ctx, owner, sell(acct.ID, 1, 10, "2024-01-01"))
	assert.ErrorIs(t, err, errs.ErrInsufficientHoldings)

	trades, err := e.Trades(ctx, store.TradeFilter{Owner: owner, IncludeDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, trades)
}

// A sell that fits the current holding but is dated before the buys that
// fund it fails the replay, and the whole trade is rolled back.
func TestBackdatedSellRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, st := newTestEngine(t)
	acct := seedAccount(t, st, "Broker", store.AccountInvestment)

	_, err := e.AddTrade(ctx, owner, buy(acct.ID, 10, 100, "2024-03-01"))
	require.NoError(t, err)

	_, err = e.AddTrade(ctx, owner, sell(acct.ID, 5, 120, "2024-02-01"))
	assert.ErrorIs(t, err, errs.ErrInsufficientHoldings)

	assert.Zero(t, account(t, st, acct.ID).TotalRealizedPL)
	trades, err := e.Trades(ctx, store.TradeFilter{Owner: owner})
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestSellAllRemovesHolding(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, st := newTestEngine(t)
	acct := seedAccount(t, st, "Broker", store.AccountInvestment)

	_, err := e.AddTrade(ctx, owner, buy(acct.ID, 0.1, 10, "2024-01-01"))
	require.NoError(t, err)
	_, err = e.AddTrade(ctx, owner, buy(acct.ID, 0.2, 10, "2024-01-01"))
	require.NoError(t, err)
	_, err = e.AddTrade(ctx, owner, sell(acct.ID, 0.3, 20, "2024-01-02"))
	require.NoError(t, err)

	_, ok := holding(t, st, acct.ID, "ACME")
	assert.False(t, ok)
	assert.InDelta(t, 3.0, account(t, st, acct.ID).TotalRealizedPL, 1e-9)
}

func TestAddTradeValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, st := newTestEngine(t)
	inv := seedAccount(t, st, "Broker", store.AccountInvestment)
	bank := seedAccount(t, st, "Checking", store.AccountBank)

	tests := []struct {
		name string
		in   TradeInput
		want error
	}{
		{"no symbol", TradeInput{AccountID: inv.ID, Type: store.Buy, Quantity: 1, Price: 1, Date: "2024-01-01"}, errs.ErrValidation},
		{"bad type", TradeInput{AccountID: inv.ID, Symbol: "X", Type: "hold", Quantity: 1, Price: 1, Date: "2024-01-01"}, errs.ErrValidation},
		{"zero quantity", buy(inv.ID, 0, 1, "2024-01-01"), errs.ErrValidation},
		{"negative price", buy(inv.ID, 1, -1, "2024-01-01"), errs.ErrValidation},
		{"bad date", buy(inv.ID, 1, 1, "yesterday"), errs.ErrValidation},
		{"not investment", buy(bank.ID, 1, 1, "2024-01-01"), errs.ErrValidation},
		{"missing account", buy("nope", 1, 1, "2024-01-01"), errs.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.AddTrade(ctx, owner, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := e.AddTrade(ctx, "someone-else", buy(inv.ID, 1, 1, "2024-01-01"))
	assert.ErrorIs(t, err, errs.ErrAccountNotFound)
}

func TestUpdateTradeRecomputesRealizedPL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, st := newTestEngine(t)
	acct := seedAccount(t, st, "Broker", store.AccountInvestment)

	_, err := e.AddTrade(ctx, owner, buy(acct.ID, 10, 100, "2024-01-01"))
	require.NoError(t, err)
	b2, err := e.AddTrade(ctx, owner, buy(acct.ID, 5, 130, "2024-01-02"))
	require.NoError(t, err)
	s, err := e.AddTrade(ctx, owner, sell(acct.ID, 8, 150, "2024-01-03"))
	require.NoError(t, err)

	price := 160.0
	s, err = e.UpdateTrade(ctx, owner, s.ID, TradePatch{Price: &price})
	require.NoError(t, err)
	require.NotNil(t, s.RealizedPL)
	assert.Equal(t, 400.0, *s.RealizedPL)
	assert.Equal(t, 400.0, account(t, st, acct.ID).TotalRealizedPL)

	// moving the sell before the second buy changes its cost basis to 100
	date := "2024-01-01"
	s, err = e.UpdateTrade(ctx, owner, s.ID, TradePatch{Date: &date})
	require.NoError(t, err)
	assert.Equal(t, 480.0, *s.RealizedPL)
	assert.Equal(t, 480.0, account(t, st, acct.ID).TotalRealizedPL)

	// an unrelated edit leaves the sell's stored P&L alone
	qty := 6.0
	_, err = e.UpdateTrade(ctx, owner, b2.ID, TradePatch{Quantity: &qty})
	require.NoError(t, err)
	assert.Equal(t, 480.0, account(t, st, acct.ID).TotalRealizedPL)

	h, _ := holding(t, st, acct.ID, "ACME")
	assert.InDelta(t, 8.0, h.Quantity, 1e-9)

	// turning the sell into a buy reverses its P&L
	typ := store.Buy
	s, err = e.UpdateTrade(ctx, owner, s.ID, TradePatch{Type: &typ})
	require.NoError(t, err)
	assert.Nil(t, s.RealizedPL)
	assert.Zero(t, account(t, st, acct.ID).TotalRealizedPL)
}

func TestUpdateTradeOversellRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, st := newTestEngine(t)
	acct := seedAccount(t, st, "Broker", store.AccountInvestment)

	b, err := e.AddTrade(ctx, owner, buy(acct.ID, 10, 100, "2024-01-01"))
	require.NoError(t, err)
	_, err = e.AddTrade(ctx, owner, sell(acct.ID, 8, 150, "2024-01-02"))
	require.NoError(t, err)
	before, _ := holding(t, st, acct.ID, "ACME")

	qty := 5.0
	_, err = e.UpdateTrade(ctx, owner, b.ID, TradePatch{Quantity: &qty})
	assert.ErrorIs(t, err, errs.ErrInsufficientHoldings)

	after, _ := holding(t, st, acct.ID, "ACME")
	assert.Equal(t, before, after)
	assert.Equal(t, 400.0, account(t, st, acct.ID).TotalRealizedPL)

	stored, err := st.Queries().GetTrade(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, stored.Quantity)
}

func TestDeleteTrade(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, st := newTestEngine(t)
	acct := seedAccount(t, st, "Broker", store.AccountInvestment)

	b, err := e.AddTrade(ctx, owner, buy(acct.ID, 10, 100, "2024-01-01"))
	require.NoError(t, err)
	s, err := e.AddTrade(ctx, owner, sell(acct.ID, 4, 125, "2024-01-02"))
	require.NoError(t, err)

	// the sell depends on the buy
	assert.ErrorIs(t, e.DeleteTrade(ctx, owner, b.ID), errs.ErrInsufficientHoldings)

	require.NoError(t, e.DeleteTrade(ctx, owner, s.ID))
	assert.Zero(t, account(t, st, acct.ID).TotalRealizedPL)
	h, _ := holding(t, st, acct.ID, "ACME")
	assert.Equal(t, 10.0, h.Quantity)

	require.NoError(t, e.DeleteTrade(ctx, owner, s.ID))
	assert.Zero(t, account(t, st, acct.ID).TotalRealizedPL)

	require.NoError(t, e.DeleteTrade(ctx, owner, b.ID))
	_, ok := holding(t, st, acct.ID, "ACME")
	assert.False(t, ok)

	_, err = e.UpdateTrade(ctx, owner, b.ID, TradePatch{})
	assert.ErrorIs(t, err, errs.ErrTradeNotFound)
	assert.ErrorIs(t, e.DeleteTrade(ctx, owner, "missing"), errs.ErrNotFound)
}

func TestOverrideHolding(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, st := newTestEngine(t)
	acct := seedAccount(t, st, "Broker", store.AccountInvestment)

	_, err := e.AddTrade(ctx, owner, buy(acct.ID, 10, 100, "2024-01-01"))
	require.NoError(t, err)
	_, err = e.AddTrade(ctx, owner, sell(acct.ID, 2, 150, "2024-01-02"))
	require.NoError(t, err)
	h, _ := holding(t, st, acct.ID, "ACME")

	got, err := e.OverrideHolding(ctx, owner, h.ID, 3, 42.5)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, h.ID, got.ID)
	assert.Equal(t, 3.0, got.Quantity)
	assert.Equal(t, 42.5, got.AverageCost)

	live, err := e.Trades(ctx, store.TradeFilter{Owner: owner, Symbol: "acme"})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "2024-06-30", live[0].Date)
	assert.Equal(t, OverrideNote, live[0].Note)

	all, err := e.Trades(ctx, store.TradeFilter{Owner: owner, IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	assert.Equal(t, 100.0, account(t, st, acct.ID).TotalRealizedPL)

	_, err = e.OverrideHolding(ctx, owner, h.ID, 0, 1)
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = e.OverrideHolding(ctx, owner, "missing", 1, 1)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDeleteHolding(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, st := newTestEngine(t)
	acct := seedAccount(t, st, "Broker", store.AccountInvestment)

	_, err := e.AddTrade(ctx, owner, buy(acct.ID, 10, 100, "2024-01-01"))
	require.NoError(t, err)
	h, _ := holding(t, st, acct.ID, "ACME")

	require.NoError(t, e.DeleteHolding(ctx, owner, h.ID))
	_, ok := holding(t, st, acct.ID, "ACME")
	assert.False(t, ok)

	live, err := e.Trades(ctx, store.TradeFilter{Owner: owner})
	require.NoError(t, err)
	assert.Empty(t, live)

	require.NoError(t, e.DeleteHolding(ctx, owner, h.ID))

	// recalculating an emptied history stays empty
	got, err := e.Recalculate(ctx, owner, acct.ID, "acme")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSetMarketValue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, st := newTestEngine(t)
	inv := seedAccount(t, st, "Broker", store.AccountInvestment)
	bank := seedAccount(t, st, "Checking", store.AccountBank)

	require.NoError(t, e.SetMarketValue(ctx, owner, inv.ID, 1234.567))
	assert.Equal(t, 1234.57, account(t, st, inv.ID).CurrentBalance)

	assert.ErrorIs(t, e.SetMarketValue(ctx, owner, bank.ID, 10), errs.ErrValidation)
	assert.ErrorIs(t, e.SetMarketValue(ctx, owner, inv.ID, -1), errs.ErrValidation)
	assert.ErrorIs(t, e.SetMarketValue(ctx, owner, "missing", 1), errs.ErrNotFound)
}

func TestSummary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, st := newTestEngine(t)
	acct := seedAccount(t, st, "Broker", store.AccountInvestment)

	_, err := e.AddTrade(ctx, owner, buy(acct.ID, 10, 100, "2024-01-01"))
	require.NoError(t, err)
	in := buy(acct.ID, 2, 50, "2024-01-01")
	in.Symbol = "wid"
	_, err = e.AddTrade(ctx, owner, in)
	require.NoError(t, err)
	_, err = e.AddTrade(ctx, owner, sell(acct.ID, 5, 120, "2024-01-02"))
	require.NoError(t, err)

	s, err := e.Summary(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Holdings)
	assert.Equal(t, 600.0, s.CostBasis)
	assert.Equal(t, 100.0, s.TotalRealizedPL)

	hs, err := e.Holdings(ctx, owner, acct.ID)
	require.NoError(t, err)
	require.Len(t, hs, 2)
	assert.Equal(t, "ACME", hs[0].Symbol)
}

// Concurrent buys on one asset must all land in the holding.
func TestConcurrentTrades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, st := newTestEngine(t)
	acct := seedAccount(t, st, "Broker", store.AccountInvestment)

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.AddTrade(ctx, owner, buy(acct.ID, 1, 10, "2024-01-01"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	h, ok := holding(t, st, acct.ID, "ACME")
	require.True(t, ok)
	assert.Equal(t, float64(n), h.Quantity)
	assert.Equal(t, 10.0, h.AverageCost)
}

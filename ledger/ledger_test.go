package ledger

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/fintrack/errs"
	"github.com/rustyeddy/fintrack/money"
	"github.com/rustyeddy/fintrack/savings"
	"github.com/rustyeddy/fintrack/store"
)

const owner = "u1"

func pct(v float64) *float64 { return &v }

func newTestLedger(t *testing.T) (*Ledger, *store.Store) {
	t.Helper()

	st, err := store.Open(store.Options{
		Path:         filepath.Join(t.TempDir(), "ledger.db"),
		MaxRetries:   50,
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st, savings.New(st, nil), nil), st
}

func mustAccount(t *testing.T, l *Ledger, name string, typ store.AccountType, initial float64) store.Account {
	t.Helper()

	a, err := l.CreateAccount(context.Background(), owner, AccountInput{Name: name, Type: typ, InitialBalance: initial})
	require.NoError(t, err)
	return a
}

func balanceOf(t *testing.T, l *Ledger, accountID string) float64 {
	t.Helper()

	a, err := l.Account(context.Background(), owner, accountID)
	require.NoError(t, err)
	return a.CurrentBalance
}

func savingsOf(t *testing.T, l *Ledger) float64 {
	t.Helper()

	b, err := l.sav.Balance(context.Background(), owner)
	require.NoError(t, err)
	return b.Total
}

func TestIncomeWithAllocationScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, _ := newTestLedger(t)
	acct := mustAccount(t, l, "Checking", store.AccountBank, 0)

	tx, err := l.Create(ctx, owner, TxInput{
		Type: store.Income, Category: "Salary", Amount: 1000, AccountID: acct.ID,
		Date: "2024-05-01", AllocationPct: pct(20),
	})
	require.NoError(t, err)
	assert.Equal(t, 800.0, balanceOf(t, l, acct.ID))
	assert.Equal(t, 200.0, savingsOf(t, l))

	amount := 500.0
	_, err = l.Update(ctx, owner, tx.ID, TxPatch{Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, 400.0, balanceOf(t, l, acct.ID))
	assert.Equal(t, 100.0, savingsOf(t, l))

	require.NoError(t, l.Delete(ctx, owner, tx.ID))
	assert.Zero(t, balanceOf(t, l, acct.ID))
	assert.Zero(t, savingsOf(t, l))

	// deleting again is a no-op
	require.NoError(t, l.Delete(ctx, owner, tx.ID))
	assert.Zero(t, balanceOf(t, l, acct.ID))

	_, err = l.Get(ctx, owner, tx.ID)
	assert.ErrorIs(t, err, errs.ErrTransactionNotFound)
	_, err = l.Update(ctx, owner, tx.ID, TxPatch{Amount: &amount})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestExpenseAndMoveBetweenAccounts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, _ := newTestLedger(t)
	a := mustAccount(t, l, "Wallet", store.AccountCash, 100)
	b := mustAccount(t, l, "Checking", store.AccountBank, 1000)

	tx, err := l.Create(ctx, owner, TxInput{
		Type: store.Expense, Category: "Food", Amount: 45.5, AccountID: a.ID,
		Date: "2024-05-02", AllocationPct: pct(50),
	})
	require.NoError(t, err)
	assert.Nil(t, tx.AllocationPct)
	assert.Equal(t, 54.5, balanceOf(t, l, a.ID))
	assert.Zero(t, savingsOf(t, l))

	_, err = l.Update(ctx, owner, tx.ID, TxPatch{AccountID: &b.ID})
	require.NoError(t, err)
	assert.Equal(t, 100.0, balanceOf(t, l, a.ID))
	assert.Equal(t, 954.5, balanceOf(t, l, b.ID))

	// turning it into income with savings moves money the other way
	typ := store.Income
	_, err = l.Update(ctx, owner, tx.ID, TxPatch{Type: &typ, AllocationPct: pct(10)})
	require.NoError(t, err)
	assert.InDelta(t, 1040.95, balanceOf(t, l, b.ID), 1e-9)
	assert.InDelta(t, 4.55, savingsOf(t, l), 1e-9)

	_, err = l.Update(ctx, owner, tx.ID, TxPatch{ClearAllocation: true})
	require.NoError(t, err)
	assert.InDelta(t, 1045.5, balanceOf(t, l, b.ID), 1e-9)
	assert.Zero(t, savingsOf(t, l))

	missing := "nope"
	_, err = l.Update(ctx, owner, tx.ID, TxPatch{AccountID: &missing})
	assert.ErrorIs(t, err, errs.ErrAccountNotFound)
	assert.InDelta(t, 1045.5, balanceOf(t, l, b.ID), 1e-9)
}

func TestInvestmentAccountBalanceUntouched(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, _ := newTestLedger(t)
	inv := mustAccount(t, l, "Broker", store.AccountInvestment, 5000)
	assert.Equal(t, DefaultInvestmentCategory, inv.Category)

	_, err := l.Create(ctx, owner, TxInput{
		Type: store.Income, Category: "Dividend", Amount: 100, AccountID: inv.ID,
		Date: "2024-05-03", AllocationPct: pct(50),
	})
	require.NoError(t, err)
	assert.Equal(t, 5000.0, balanceOf(t, l, inv.ID))
	assert.Equal(t, 50.0, savingsOf(t, l))
}

func TestCreateValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, _ := newTestLedger(t)
	acct := mustAccount(t, l, "Checking", store.AccountBank, 0)
	archived := mustAccount(t, l, "Old", store.AccountBank, 0)
	require.NoError(t, l.ArchiveAccount(ctx, owner, archived.ID))

	valid := TxInput{Type: store.Income, Category: "Salary", Amount: 10, AccountID: acct.ID, Date: "2024-01-01"}
	tests := []struct {
		name   string
		mutate func(*TxInput)
		want   error
	}{
		{"bad type", func(in *TxInput) { in.Type = "transfer" }, errs.ErrValidation},
		{"zero amount", func(in *TxInput) { in.Amount = 0 }, errs.ErrValidation},
		{"rounds to zero", func(in *TxInput) { in.Amount = 0.004 }, errs.ErrValidation},
		{"no category", func(in *TxInput) { in.Category = "  " }, errs.ErrValidation},
		{"pct over 100", func(in *TxInput) { in.AllocationPct = pct(101) }, errs.ErrValidation},
		{"negative pct", func(in *TxInput) { in.AllocationPct = pct(-1) }, errs.ErrValidation},
		{"bad date", func(in *TxInput) { in.Date = "2024-13-01" }, errs.ErrValidation},
		{"archived account", func(in *TxInput) { in.AccountID = archived.ID }, errs.ErrValidation},
		{"missing account", func(in *TxInput) { in.AccountID = "nope" }, errs.ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := l.Create(ctx, owner, in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	list, err := l.List(ctx, store.TransactionFilter{Owner: owner})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, balanceOf(t, l, acct.ID))
}

func TestListTransactions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, _ := newTestLedger(t)
	acct := mustAccount(t, l, "Checking", store.AccountBank, 0)

	for _, in := range []TxInput{
		{Type: store.Income, Category: "Salary", Amount: 100, Date: "2024-01-01"},
		{Type: store.Expense, Category: "Rent", Amount: 50, Date: "2024-02-01"},
		{Type: store.Expense, Category: "Food", Amount: 5, Date: "2024-03-01"},
	} {
		in.AccountID = acct.ID
		_, err := l.Create(ctx, owner, in)
		require.NoError(t, err)
	}

	all, err := l.List(ctx, store.TransactionFilter{Owner: owner, IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Food", all[0].Category)

	require.NoError(t, l.Delete(ctx, owner, all[0].ID))
	expenses, err := l.List(ctx, store.TransactionFilter{Owner: owner, Type: store.Expense})
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, "Rent", expenses[0].Category)

	window, err := l.List(ctx, store.TransactionFilter{Owner: owner, From: "2024-01-15", To: "2024-12-31"})
	require.NoError(t, err)
	assert.Len(t, window, 1)

	_, err = l.List(ctx, store.TransactionFilter{Owner: owner, Type: "bogus"})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestAccountRegistry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, _ := newTestLedger(t)

	b, err := l.CreateAccount(ctx, owner, AccountInput{Name: " Savings Bank ", Type: store.AccountBank, Currency: "eur"})
	require.NoError(t, err)
	assert.Equal(t, "Savings Bank", b.Name)
	assert.Equal(t, "EUR", b.Currency)
	a := mustAccount(t, l, "Atm", store.AccountCash, 20)
	assert.Equal(t, DefaultCurrency, a.Currency)
	assert.Equal(t, 20.0, a.CurrentBalance)

	_, err = l.CreateAccount(ctx, owner, AccountInput{Name: "Atm", Type: store.AccountCash})
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = l.CreateAccount(ctx, owner, AccountInput{Name: "X", Type: "crypto"})
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = l.CreateAccount(ctx, owner, AccountInput{Name: "Y", Type: store.AccountCash, Currency: "dollars"})
	assert.ErrorIs(t, err, errs.ErrValidation)

	list, err := l.Accounts(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Atm", list[0].Name)

	got, err := l.AccountByName(ctx, owner, "Savings Bank")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	require.NoError(t, l.ArchiveAccount(ctx, owner, a.ID))
	require.NoError(t, l.ArchiveAccount(ctx, owner, a.ID))
	list, err = l.Accounts(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = l.Account(ctx, "intruder", b.ID)
	assert.ErrorIs(t, err, errs.ErrAccountNotFound)
	assert.ErrorIs(t, l.ArchiveAccount(ctx, owner, "nope"), errs.ErrNotFound)
}

func TestCurrencyOption(t *testing.T) {
	t.Parallel()
	st, err := store.Open(store.Options{Path: filepath.Join(t.TempDir(), "c.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	l := New(st, savings.New(st, nil), nil, WithDefaultCurrency("try"))
	a, err := l.CreateAccount(context.Background(), owner, AccountInput{Name: "Cüzdan", Type: store.AccountCash})
	require.NoError(t, err)
	assert.Equal(t, "TRY", a.Currency)
}

// A savings failure after the balance was applied rolls the whole create back.
func TestCreateRollsBackOnSavingsFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, st := newTestLedger(t)
	acct := mustAccount(t, l, "Checking", store.AccountBank, 0)

	_, err := st.DB().ExecContext(ctx, `DROP TABLE savings_allocations`)
	require.NoError(t, err)

	_, err = l.Create(ctx, owner, TxInput{
		Type: store.Income, Category: "Salary", Amount: 1000, AccountID: acct.ID,
		Date: "2024-05-01", AllocationPct: pct(20),
	})
	assert.ErrorIs(t, err, errs.ErrStorageUnavailable)
	assert.False(t, errs.Retryable(err))

	assert.Zero(t, balanceOf(t, l, acct.ID))
	list, err := l.List(ctx, store.TransactionFilter{Owner: owner})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDeleteFailsCleanlyBeforeRevert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, st := newTestLedger(t)
	acct := mustAccount(t, l, "Checking", store.AccountBank, 0)

	tx, err := l.Create(ctx, owner, TxInput{Type: store.Income, Category: "Salary", Amount: 300, AccountID: acct.ID, Date: "2024-05-01"})
	require.NoError(t, err)

	_, err = st.DB().ExecContext(ctx, `DROP TABLE savings_allocations`)
	require.NoError(t, err)

	err = l.Delete(ctx, owner, tx.ID)
	assert.ErrorIs(t, err, errs.ErrStorageUnavailable)
	assert.Equal(t, 300.0, balanceOf(t, l, acct.ID))
}

// A delete that fails at its last step leaves nothing behind, so running it
// again reverts exactly once.
func TestDeleteRetryAfterFailedFinalStep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, st := newTestLedger(t)
	acct := mustAccount(t, l, "Checking", store.AccountBank, 0)

	tx, err := l.Create(ctx, owner, TxInput{
		Type: store.Income, Category: "Salary", Amount: 1000, AccountID: acct.ID,
		Date: "2024-05-01", AllocationPct: pct(20),
	})
	require.NoError(t, err)

	_, err = st.DB().ExecContext(ctx, `
		CREATE TRIGGER refuse_delete BEFORE UPDATE OF deleted ON transactions
		BEGIN SELECT RAISE(ABORT, 'refused'); END`)
	require.NoError(t, err)

	require.Error(t, l.Delete(ctx, owner, tx.ID))
	assert.Equal(t, 800.0, balanceOf(t, l, acct.ID))
	assert.Equal(t, 200.0, savingsOf(t, l))
	stored, err := l.sav.AllocatedFor(ctx, owner, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, 200.0, stored)
	_, err = l.Get(ctx, owner, tx.ID)
	require.NoError(t, err, "entry is still live")

	_, err = st.DB().ExecContext(ctx, `DROP TRIGGER refuse_delete`)
	require.NoError(t, err)

	require.NoError(t, l.Delete(ctx, owner, tx.ID))
	assert.Zero(t, balanceOf(t, l, acct.ID))
	assert.Zero(t, savingsOf(t, l))
	require.NoError(t, l.Delete(ctx, owner, tx.ID))
	assert.Zero(t, balanceOf(t, l, acct.ID))

	audit, err := l.AuditAccount(ctx, owner, acct.ID)
	require.NoError(t, err)
	assert.True(t, audit.OK())
}

// An update that fails after reverting the old effect is rolled back too.
func TestUpdateRetryAfterFailedReconcile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, st := newTestLedger(t)
	acct := mustAccount(t, l, "Checking", store.AccountBank, 0)

	tx, err := l.Create(ctx, owner, TxInput{
		Type: store.Income, Category: "Salary", Amount: 1000, AccountID: acct.ID,
		Date: "2024-05-01", AllocationPct: pct(20),
	})
	require.NoError(t, err)

	_, err = st.DB().ExecContext(ctx, `
		CREATE TRIGGER refuse_reconcile BEFORE UPDATE ON savings_allocations
		BEGIN SELECT RAISE(ABORT, 'refused'); END`)
	require.NoError(t, err)

	amount := 500.0
	_, err = l.Update(ctx, owner, tx.ID, TxPatch{Amount: &amount})
	require.Error(t, err)
	assert.Equal(t, 800.0, balanceOf(t, l, acct.ID))
	assert.Equal(t, 200.0, savingsOf(t, l))
	got, err := l.Get(ctx, owner, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, got.Amount)

	_, err = st.DB().ExecContext(ctx, `DROP TRIGGER refuse_reconcile`)
	require.NoError(t, err)

	_, err = l.Update(ctx, owner, tx.ID, TxPatch{Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, 400.0, balanceOf(t, l, acct.ID))
	assert.Equal(t, 100.0, savingsOf(t, l))
}

// slowHandler is a slog handler that stalls on one message, widening the
// window between a balance write and the rest of its operation.
type slowHandler struct {
	msg   string
	delay time.Duration
}

func (h slowHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h slowHandler) Handle(_ context.Context, r slog.Record) error {
	if r.Message == h.msg {
		time.Sleep(h.delay)
	}
	return nil
}

func (h slowHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h slowHandler) WithGroup(string) slog.Handler      { return h }

func newSlowLedger(t *testing.T) *Ledger {
	t.Helper()

	st, err := store.Open(store.Options{
		Path:         filepath.Join(t.TempDir(), "slow.db"),
		MaxRetries:   50,
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	log := slog.New(slowHandler{msg: "balance: posted", delay: 5 * time.Millisecond})
	return New(st, savings.New(st, log), log)
}

func TestConcurrentDeletesRevertOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newSlowLedger(t)
	acct := mustAccount(t, l, "Checking", store.AccountBank, 100)

	tx, err := l.Create(ctx, owner, TxInput{Type: store.Expense, Category: "Rent", Amount: 100, AccountID: acct.ID, Date: "2024-05-01"})
	require.NoError(t, err)
	require.Zero(t, balanceOf(t, l, acct.ID))

	const n = 4
	errc := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errc <- l.Delete(ctx, owner, tx.ID)
		}()
	}
	wg.Wait()
	close(errc)
	for err := range errc {
		assert.NoError(t, err)
	}

	assert.Equal(t, 100.0, balanceOf(t, l, acct.ID))
	audit, err := l.AuditAccount(ctx, owner, acct.ID)
	require.NoError(t, err)
	assert.True(t, audit.OK(), "drift %v", audit.Drift())
}

func TestConcurrentUpdatesRevertOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l := newSlowLedger(t)
	acct := mustAccount(t, l, "Checking", store.AccountBank, 0)

	tx, err := l.Create(ctx, owner, TxInput{
		Type: store.Income, Category: "Salary", Amount: 100, AccountID: acct.ID,
		Date: "2024-05-01", AllocationPct: pct(50),
	})
	require.NoError(t, err)

	amounts := []float64{10, 20, 30, 40}
	var wg sync.WaitGroup
	for _, amount := range amounts {
		wg.Add(1)
		go func(amount float64) {
			defer wg.Done()
			_, err := l.Update(ctx, owner, tx.ID, TxPatch{Amount: &amount})
			assert.NoError(t, err)
		}(amount)
	}
	wg.Wait()

	got, err := l.Get(ctx, owner, tx.ID)
	require.NoError(t, err)
	assert.Contains(t, amounts, got.Amount)
	assert.Equal(t, int64(len(amounts)), got.Version)
	assert.Equal(t, got.Amount/2, balanceOf(t, l, acct.ID))
	assert.Equal(t, got.Amount/2, savingsOf(t, l))

	audit, err := l.AuditAccount(ctx, owner, acct.ID)
	require.NoError(t, err)
	assert.True(t, audit.OK(), "drift %v", audit.Drift())
}

type liveTx struct {
	account string
	typ     store.TxType
	amount  float64
	pct     *float64
}

func (m liveTx) delta() float64 {
	if m.typ == store.Expense {
		return -m.amount
	}
	var alloc float64
	if m.pct != nil {
		alloc = money.Allocation(m.amount, *m.pct)
	}
	return money.Add(m.amount, -alloc)
}

// After any sequence of creates, updates and deletes every account balance
// equals its initial balance plus the net effect of its live transactions.
func TestRandomSequenceBalanceInvariant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, _ := newTestLedger(t)

	initial := map[string]float64{}
	var accounts []string
	for i, name := range []string{"A", "B", "C"} {
		a := mustAccount(t, l, name, store.AccountBank, float64(i)*250)
		initial[a.ID] = a.InitialBalance
		accounts = append(accounts, a.ID)
	}

	rng := rand.New(rand.NewPCG(1, 2))
	live := map[string]liveTx{}
	var ids []string

	randomTx := func() liveTx {
		m := liveTx{
			account: accounts[rng.IntN(len(accounts))],
			typ:     store.Income,
			amount:  float64(rng.IntN(100000)+1) / 100,
		}
		if rng.IntN(2) == 0 {
			m.typ = store.Expense
		} else if rng.IntN(3) > 0 {
			m.pct = pct(float64(rng.IntN(101)))
		}
		return m
	}

	for step := 0; step < 200; step++ {
		switch op := rng.IntN(10); {
		case op < 5 || len(ids) == 0:
			m := randomTx()
			tx, err := l.Create(ctx, owner, TxInput{
				Type: m.typ, Category: "Misc", Amount: m.amount, AccountID: m.account,
				Date: "2024-06-01", AllocationPct: m.pct,
			})
			require.NoError(t, err)
			if m.typ == store.Expense {
				m.pct = nil
			}
			live[tx.ID] = m
			ids = append(ids, tx.ID)
		case op < 8:
			txID := ids[rng.IntN(len(ids))]
			m := randomTx()
			p := TxPatch{Type: &m.typ, Amount: &m.amount, AccountID: &m.account, AllocationPct: m.pct, ClearAllocation: m.pct == nil}
			_, err := l.Update(ctx, owner, txID, p)
			if _, ok := live[txID]; !ok {
				assert.ErrorIs(t, err, errs.ErrNotFound)
				continue
			}
			require.NoError(t, err)
			if m.typ == store.Expense {
				m.pct = nil
			}
			live[txID] = m
		default:
			txID := ids[rng.IntN(len(ids))]
			require.NoError(t, l.Delete(ctx, owner, txID))
			delete(live, txID)
		}

		want := map[string]float64{}
		var wantSavings float64
		for acct, v := range initial {
			want[acct] = v
		}
		for _, m := range live {
			want[m.account] = money.Add(want[m.account], m.delta())
			if m.typ == store.Income && m.pct != nil {
				wantSavings = money.Add(wantSavings, money.Allocation(m.amount, *m.pct))
			}
		}
		for _, acct := range accounts {
			require.InDelta(t, want[acct], balanceOf(t, l, acct), 1e-6, "step %d account %s", step, acct)
			audit, err := l.AuditAccount(ctx, owner, acct)
			require.NoError(t, err)
			require.True(t, audit.OK(), "step %d drift %v", step, audit.Drift())
		}
		require.InDelta(t, wantSavings, savingsOf(t, l), 1e-6, "step %d savings", step)
	}
}

// Concurrent creates on one account must not lose updates.
func TestConcurrentCreates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, _ := newTestLedger(t)
	acct := mustAccount(t, l, "Checking", store.AccountBank, 0)

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := TxInput{Type: store.Income, Category: "Gig", Amount: 10, AccountID: acct.ID, Date: "2024-07-01", AllocationPct: pct(10)}
			if i%2 == 1 {
				in = TxInput{Type: store.Expense, Category: "Coffee", Amount: 2.5, AccountID: acct.ID, Date: "2024-07-01"}
			}
			_, err := l.Create(ctx, owner, in)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.InDelta(t, 20*9.0-20*2.5, balanceOf(t, l, acct.ID), 1e-9)
	assert.InDelta(t, 20.0, savingsOf(t, l), 1e-9)

	audit, err := l.AuditAccount(ctx, owner, acct.ID)
	require.NoError(t, err)
	assert.True(t, audit.OK())
}

func TestUpdateAccount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, _ := newTestLedger(t)
	a := mustAccount(t, l, "Checking", store.AccountBank, 100)
	mustAccount(t, l, "Wallet", store.AccountCash, 0)
	inv := mustAccount(t, l, "Broker", store.AccountInvestment, 0)

	_, err := l.Create(ctx, owner, TxInput{Type: store.Expense, Category: "Food", Amount: 40, AccountID: a.ID, Date: "2024-05-01"})
	require.NoError(t, err)

	name, cur, cat := " Main ", "eur", "Everyday"
	got, err := l.UpdateAccount(ctx, owner, a.ID, AccountPatch{Name: &name, Currency: &cur, Category: &cat})
	require.NoError(t, err)
	assert.Equal(t, "Main", got.Name)
	assert.Equal(t, "EUR", got.Currency)
	assert.Equal(t, "Everyday", got.Category)
	assert.Equal(t, 60.0, got.CurrentBalance)
	assert.Equal(t, 100.0, got.InitialBalance)

	stored, err := l.AccountByName(ctx, owner, "Main")
	require.NoError(t, err)
	assert.Equal(t, a.ID, stored.ID)
	assert.Equal(t, 60.0, stored.CurrentBalance)

	empty := ""
	got, err = l.UpdateAccount(ctx, owner, inv.ID, AccountPatch{Category: &empty})
	require.NoError(t, err)
	assert.Equal(t, DefaultInvestmentCategory, got.Category)

	taken, bad, blank := "Wallet", "euro", "  "
	tests := []struct {
		name string
		p    AccountPatch
		id   string
		who  string
		want error
	}{
		{"duplicate name", AccountPatch{Name: &taken}, a.ID, owner, errs.ErrValidation},
		{"blank name", AccountPatch{Name: &blank}, a.ID, owner, errs.ErrValidation},
		{"bad currency", AccountPatch{Currency: &bad}, a.ID, owner, errs.ErrValidation},
		{"missing", AccountPatch{Name: &name}, "nope", owner, errs.ErrAccountNotFound},
		{"other owner", AccountPatch{Name: &name}, a.ID, "intruder", errs.ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.UpdateAccount(ctx, tt.who, tt.id, tt.p)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	audit, err := l.AuditAccount(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.True(t, audit.OK())
}

func TestAllAccountsIncludesArchived(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	l, _ := newTestLedger(t)
	mustAccount(t, l, "Checking", store.AccountBank, 0)
	old := mustAccount(t, l, "Old", store.AccountBank, 0)
	require.NoError(t, l.ArchiveAccount(ctx, owner, old.ID))

	open, err := l.Accounts(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	all, err := l.AllAccounts(ctx, owner)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[1].Archived)
}

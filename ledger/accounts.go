package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/rustyeddy/fintrack/errs"
	"github.com/rustyeddy/fintrack/money"
	"github.com/rustyeddy/fintrack/pkg/id"
	"github.com/rustyeddy/fintrack/store"
)

const (
	DefaultCurrency           = "USD"
	DefaultInvestmentCategory = "Other Investments"
)

// AccountInput describes a new account.
type AccountInput struct {
	Name           string
	Type           store.AccountType
	Currency       string
	Category       string
	InitialBalance float64
}

// AccountPatch holds the account details UpdateAccount may change; nil
// leaves a field as is. Type and balances are fixed once an account exists.
type AccountPatch struct {
	Name     *string
	Currency *string
	Category *string
}

func validCurrency(c string) bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func validateAccount(a store.Account) error {
	switch {
	case a.Owner == "":
		return errs.Invalid("owner", "is required")
	case a.Name == "":
		return errs.Invalid("name", "is required")
	case !a.Type.Valid():
		return errs.Invalid("type", "must be cash, bank or investment, got %q", a.Type)
	case !validCurrency(a.Currency):
		return errs.Invalid("currency", "must be a 3 letter code, got %q", a.Currency)
	}
	return nil
}

func (l *Ledger) CreateAccount(ctx context.Context, owner string, in AccountInput) (store.Account, error) {
	a := store.Account{
		ID:             id.New(),
		Owner:          owner,
		Name:           strings.TrimSpace(in.Name),
		Type:           in.Type,
		Currency:       strings.ToUpper(strings.TrimSpace(in.Currency)),
		Category:       strings.TrimSpace(in.Category),
		InitialBalance: money.Round(in.InitialBalance),
	}
	if a.Currency == "" {
		a.Currency = l.currency
	}
	if a.Type == store.AccountInvestment && a.Category == "" {
		a.Category = DefaultInvestmentCategory
	}
	if err := validateAccount(a); err != nil {
		return store.Account{}, err
	}

	if err := l.st.Queries().InsertAccount(ctx, &a); err != nil {
		return store.Account{}, fmt.Errorf("create account: %w", err)
	}
	l.log.Info("ledger: account created", "owner", owner, "account", a.ID, "name", a.Name, "type", a.Type)
	return a, nil
}

// UpdateAccount renames an account or changes its currency or category.
// Names stay unique per owner. Balances are not touched; a currency change
// relabels the account without converting anything.
func (l *Ledger) UpdateAccount(ctx context.Context, owner, accountID string, p AccountPatch) (store.Account, error) {
	var a store.Account
	err := l.st.RunInTx(ctx, func(q *store.Queries) error {
		var err error
		if a, err = ownedAccount(ctx, q, owner, accountID); err != nil {
			return err
		}
		if p.Name != nil {
			a.Name = strings.TrimSpace(*p.Name)
		}
		if p.Currency != nil {
			a.Currency = strings.ToUpper(strings.TrimSpace(*p.Currency))
		}
		if p.Category != nil {
			a.Category = strings.TrimSpace(*p.Category)
			if a.Type == store.AccountInvestment && a.Category == "" {
				a.Category = DefaultInvestmentCategory
			}
		}
		if err := validateAccount(a); err != nil {
			return err
		}
		return q.UpdateAccountDetails(ctx, &a)
	})
	if err != nil {
		return store.Account{}, fmt.Errorf("update account %s: %w", accountID, err)
	}
	l.log.Info("ledger: account updated", "owner", owner, "account", a.ID, "name", a.Name, "currency", a.Currency)
	return a, nil
}

// Accounts lists owner's open accounts by name.
func (l *Ledger) Accounts(ctx context.Context, owner string) ([]store.Account, error) {
	return l.st.Queries().ListAccounts(ctx, owner, false)
}

// AllAccounts is Accounts including archived ones.
func (l *Ledger) AllAccounts(ctx context.Context, owner string) ([]store.Account, error) {
	return l.st.Queries().ListAccounts(ctx, owner, true)
}

func (l *Ledger) Account(ctx context.Context, owner, accountID string) (store.Account, error) {
	return ownedAccount(ctx, l.st.Queries(), owner, accountID)
}

func (l *Ledger) AccountByName(ctx context.Context, owner, name string) (store.Account, error) {
	return l.st.Queries().AccountByName(ctx, owner, strings.TrimSpace(name))
}

// ArchiveAccount hides the account from listings and closes it to new
// transactions. Archiving twice is not an error.
func (l *Ledger) ArchiveAccount(ctx context.Context, owner, accountID string) error {
	a, err := l.Account(ctx, owner, accountID)
	if err != nil {
		return err
	}
	if a.Archived {
		return nil
	}
	if err := l.st.Queries().ArchiveAccount(ctx, a.ID); err != nil {
		return fmt.Errorf("archive account: %w", err)
	}
	l.log.Info("ledger: account archived", "owner", owner, "account", a.ID)
	return nil
}

func ownedAccount(ctx context.Context, q *store.Queries, owner, accountID string) (store.Account, error) {
	a, err := q.GetAccount(ctx, accountID)
	if err != nil {
		return store.Account{}, err
	}
	if a.Owner != owner {
		return store.Account{}, fmt.Errorf("%w: %q", errs.ErrAccountNotFound, accountID)
	}
	return a, nil
}

// openAccount resolves an account that may take new transactions.
func openAccount(ctx context.Context, q *store.Queries, owner, accountID string) (store.Account, error) {
	a, err := ownedAccount(ctx, q, owner, accountID)
	if err != nil {
		return store.Account{}, err
	}
	if a.Archived {
		return store.Account{}, errs.Invalid("account", "%q is archived", a.Name)
	}
	return a, nil
}

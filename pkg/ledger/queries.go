package ledger

import (
	"fmt"
	"maps"
	"slices"

	"ledgercore/pkg/datamodel"
)

// Transactions returns the session's transactions in list order.
func (s *Schema) Transactions(session *datamodel.Session) ([]*datamodel.ExtendableObject, error) {
	list, err := s.rootList(session, s.TransactionList)
	if err != nil {
		return nil, err
	}
	return list.Elements(), nil
}

// Accounts returns every account and category, depth first, parents before
// their sub-accounts.
func (s *Schema) Accounts(session *datamodel.Session) ([]*datamodel.ExtendableObject, error) {
	top, err := s.rootList(session, s.AccountList)
	if err != nil {
		return nil, err
	}
	var out []*datamodel.ExtendableObject
	var walk func(list *datamodel.ObjectCollection) error
	walk = func(list *datamodel.ObjectCollection) error {
		for acct := range list.All() {
			out = append(out, acct)
			var children datamodel.List
			switch {
			case acct.PropertySet().IsDerivedFrom(s.CapitalAccount):
				children = s.SubAccounts
			case acct.PropertySet().IsDerivedFrom(s.IncomeExpenseAccount):
				children = s.SubCategories
			default:
				continue
			}
			sub, err := children.Of(acct)
			if err != nil {
				return err
			}
			if err := walk(sub); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(top); err != nil {
		return nil, err
	}
	return out, nil
}

// AccountByName returns the first account or category called name.
func (s *Schema) AccountByName(session *datamodel.Session, name string) (*datamodel.ExtendableObject, error) {
	accounts, err := s.Accounts(session)
	if err != nil {
		return nil, err
	}
	for _, acct := range accounts {
		if n, err := s.AccountName.Get(acct); err == nil && n == name {
			return acct, nil
		}
	}
	return nil, fmt.Errorf("%w: account %q", ErrNotFound, name)
}

// FindCurrency returns the currency with the given code.
func (s *Schema) FindCurrency(session *datamodel.Session, code string) (*datamodel.ExtendableObject, error) {
	list, err := s.rootList(session, s.CurrencyList)
	if err != nil {
		return nil, err
	}
	for cur := range list.All() {
		if c, err := s.CurrencyCode.Get(cur); err == nil && c == code {
			return cur, nil
		}
	}
	return nil, fmt.Errorf("%w: currency %q", ErrNotFound, code)
}

// Posting is one entry as seen from its account.
type Posting struct {
	Transaction *datamodel.ExtendableObject
	Entry       *datamodel.ExtendableObject
	Amount      datamodel.Money
}

// Postings returns the entries booked against account, ordered by
// transaction date. Transactions on the same date keep list order.
func (s *Schema) Postings(session *datamodel.Session, account *datamodel.ExtendableObject) ([]Posting, error) {
	if !s.IsAccount(account) {
		return nil, fmt.Errorf("%w: not an account", ErrInvalidAccount)
	}
	txs, err := s.Transactions(session)
	if err != nil {
		return nil, err
	}
	var out []Posting
	for _, tx := range txs {
		entries, err := s.Entries.Of(tx)
		if err != nil {
			return nil, err
		}
		for entry := range entries.All() {
			key, err := s.EntryAccount.Get(entry)
			if err != nil {
				return nil, err
			}
			if key != account.Key() {
				continue
			}
			amount, err := s.Amount.Get(entry)
			if err != nil {
				return nil, err
			}
			out = append(out, Posting{Transaction: tx, Entry: entry, Amount: amount})
		}
	}
	slices.SortStableFunc(out, func(a, b Posting) int {
		da, _ := s.Date.Get(a.Transaction)
		db, _ := s.Date.Get(b.Transaction)
		return da.Compare(db)
	})
	return out, nil
}

// Balance returns the start balance of account (bank accounts only) plus
// the sum of every entry booked against it.
func (s *Schema) Balance(session *datamodel.Session, account *datamodel.ExtendableObject) (datamodel.Money, error) {
	postings, err := s.Postings(session, account)
	if err != nil {
		return 0, err
	}
	var total datamodel.Money
	if account.PropertySet().IsDerivedFrom(s.BankAccount) {
		start, err := s.StartBalance.Get(account)
		if err != nil {
			return 0, err
		}
		total = start
	}
	for _, p := range postings {
		total += p.Amount
	}
	return total, nil
}

// Balances maps capital account names to their balance.
type Balances map[string]datamodel.Money

// Names returns the account names in sorted order.
func (b Balances) Names() []string {
	return slices.Sorted(maps.Keys(b))
}

// CapitalBalances computes the balance of every capital account.
func (s *Schema) CapitalBalances(session *datamodel.Session) (Balances, error) {
	accounts, err := s.Accounts(session)
	if err != nil {
		return nil, err
	}
	out := make(Balances)
	for _, acct := range accounts {
		if !s.IsCapitalAccount(acct) {
			continue
		}
		name, err := s.AccountName.Get(acct)
		if err != nil {
			return nil, err
		}
		bal, err := s.Balance(session, acct)
		if err != nil {
			return nil, err
		}
		out[name] = bal
	}
	return out, nil
}

// Package ledger declares the built-in financial schema (currencies,
// accounts, transactions and entries) on top of the datamodel package, along
// with the business operations and balance queries that work on it.
package ledger

import (
	"fmt"
	"time"

	"ledgercore/pkg/datamodel"
)

// Property set identifiers.
const (
	SessionID              = "session"
	CurrencyID             = "currency"
	AccountID              = "account"
	CapitalAccountID       = "capitalAccount"
	BankAccountID          = "bankAccount"
	IncomeExpenseAccountID = "incomeExpenseAccount"
	TransactionID          = "transaction"
	EntryID                = "entry"
)

// Schema holds the registered property sets and typed accessors of the
// ledger model.
type Schema struct {
	Session              *datamodel.PropertySet
	Currency             *datamodel.PropertySet
	Account              *datamodel.PropertySet
	CapitalAccount       *datamodel.PropertySet
	BankAccount          *datamodel.PropertySet
	IncomeExpenseAccount *datamodel.PropertySet
	Transaction          *datamodel.PropertySet
	Entry                *datamodel.PropertySet

	CurrencyList    datamodel.List
	AccountList     datamodel.List
	TransactionList datamodel.List

	CurrencyCode     datamodel.Scalar[string]
	CurrencyName     datamodel.Scalar[string]
	CurrencyDecimals datamodel.Scalar[int]

	AccountName datamodel.Scalar[string]

	Abbreviation datamodel.Scalar[string]
	Comment      datamodel.Scalar[string]
	SubAccounts  datamodel.List

	Bank          datamodel.Scalar[string]
	AccountNumber datamodel.Scalar[string]
	BankCurrency  datamodel.Reference
	StartBalance  datamodel.Scalar[datamodel.Money]
	MinBalance    datamodel.Scalar[datamodel.Money]

	CategoryCurrency datamodel.Reference
	SubCategories    datamodel.List

	Date    datamodel.Scalar[time.Time]
	Entries datamodel.List

	EntryAccount datamodel.Reference
	Amount       datamodel.Scalar[datamodel.Money]
	Memo         datamodel.Scalar[string]
	Check        datamodel.Scalar[string]
	Valuta       datamodel.Scalar[time.Time]
}

// Register declares the ledger property sets and registers them with reg.
func Register(reg *datamodel.Registry) (*Schema, error) {
	s := &Schema{
		Session:     datamodel.NewPropertySet(SessionID, nil),
		Currency:    datamodel.NewPropertySet(CurrencyID, nil),
		Account:     datamodel.NewPropertySet(AccountID, nil).Abstract(),
		Transaction: datamodel.NewPropertySet(TransactionID, nil),
		Entry:       datamodel.NewPropertySet(EntryID, nil),
	}
	s.CapitalAccount = datamodel.NewPropertySet(CapitalAccountID, s.Account).Abstract()
	s.BankAccount = datamodel.NewPropertySet(BankAccountID, s.CapitalAccount)
	s.IncomeExpenseAccount = datamodel.NewPropertySet(IncomeExpenseAccountID, s.Account)

	s.CurrencyList = s.Session.List("currencies", s.Currency)
	s.AccountList = s.Session.List("accounts", s.Account)
	s.TransactionList = s.Session.List("transactions", s.Transaction)

	s.CurrencyCode = s.Currency.String("code", "")
	s.CurrencyName = s.Currency.String("name", "")
	s.CurrencyDecimals = s.Currency.Integer("decimals", 2)

	s.AccountName = s.Account.String("name", "")

	s.Abbreviation = s.CapitalAccount.String("abbreviation", "")
	s.Comment = s.CapitalAccount.String("comment", "")
	s.SubAccounts = s.CapitalAccount.List("subAccounts", s.CapitalAccount)

	s.Bank = s.BankAccount.String("bank", "")
	s.AccountNumber = s.BankAccount.String("accountNumber", "")
	s.BankCurrency = s.BankAccount.Reference("currency", s.Currency)
	s.StartBalance = s.BankAccount.Money("startBalance", 0)
	s.MinBalance = s.BankAccount.Money("minBalance", 0)

	s.CategoryCurrency = s.IncomeExpenseAccount.Reference("currency", s.Currency)
	s.SubCategories = s.IncomeExpenseAccount.List("subCategories", s.IncomeExpenseAccount)

	s.Date = s.Transaction.Date("date")
	s.Entries = s.Transaction.List("entries", s.Entry)

	s.EntryAccount = s.Entry.Reference("account", s.Account)
	s.Amount = s.Entry.Money("amount", 0)
	s.Memo = s.Entry.String("memo", "")
	s.Check = s.Entry.String("check", "")
	s.Valuta = s.Entry.Date("valuta", datamodel.ApplicableWhen(s.entryOnCapitalAccount))

	for _, ps := range []*datamodel.PropertySet{
		s.Session, s.Currency, s.Account, s.CapitalAccount, s.BankAccount,
		s.IncomeExpenseAccount, s.Transaction, s.Entry,
	} {
		if err := reg.Register(ps); err != nil {
			return nil, fmt.Errorf("register ledger schema: %w", err)
		}
	}
	return s, nil
}

// entryOnCapitalAccount reports whether the entry's account is a capital
// account, which is when a value date makes sense.
func (s *Schema) entryOnCapitalAccount(entry *datamodel.ExtendableObject) bool {
	acct, err := s.EntryAccount.Dereference(entry)
	if err != nil || acct == nil {
		return false
	}
	return acct.PropertySet().IsDerivedFrom(s.CapitalAccount)
}

// IsCapitalAccount reports whether obj is a capital (asset) account.
func (s *Schema) IsCapitalAccount(obj *datamodel.ExtendableObject) bool {
	return obj != nil && obj.PropertySet().IsDerivedFrom(s.CapitalAccount)
}

// IsAccount reports whether obj is an account of any kind.
func (s *Schema) IsAccount(obj *datamodel.ExtendableObject) bool {
	return obj != nil && obj.PropertySet().IsDerivedFrom(s.Account)
}

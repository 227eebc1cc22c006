package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ledgercore/pkg/datamodel"
)

// Compile-time checks that every ledger operation can be run by a
// DataOperation.
var (
	_ datamodel.Operation = (*AddCurrency)(nil)
	_ datamodel.Operation = (*OpenBankAccount)(nil)
	_ datamodel.Operation = (*AddCategory)(nil)
	_ datamodel.Operation = (*AddTransaction)(nil)
	_ datamodel.Operation = (*Transfer)(nil)
	_ datamodel.Operation = (*DeleteTransaction)(nil)
	_ datamodel.Operation = (*RenameAccount)(nil)
)

// EntrySpec describes one entry of a transaction to be created.
type EntrySpec struct {
	Account *datamodel.ExtendableObject
	Amount  datamodel.Money
	Memo    string
	Check   string
	// Valuta is the value date. It may only be set on capital accounts.
	Valuta time.Time
}

// AddCurrency registers a currency in the session.
type AddCurrency struct {
	schema       *Schema
	Code         string
	CurrencyName string
	Decimals     int
	created      datamodel.ObjectKey
}

// AddCurrency returns an operation creating a currency.
func (s *Schema) AddCurrency(code, name string, decimals int) *AddCurrency {
	return &AddCurrency{schema: s, Code: code, CurrencyName: name, Decimals: decimals}
}

// Name implements datamodel.Operation.
func (op *AddCurrency) Name() string { return "add currency " + op.Code }

// Created returns the key of the currency once executed.
func (op *AddCurrency) Created() datamodel.ObjectKey { return op.created }

// Execute implements datamodel.Operation.
func (op *AddCurrency) Execute(_ context.Context, edit *datamodel.Edit) error {
	code := strings.ToUpper(strings.TrimSpace(op.Code))
	if code == "" {
		return fmt.Errorf("%w: currency code required", ErrInvalidAccount)
	}
	if op.Decimals < 0 || op.Decimals > 8 {
		return fmt.Errorf("%w: %d decimals", ErrInvalidAccount, op.Decimals)
	}
	session := edit.Session()
	if _, err := op.schema.FindCurrency(session, code); err == nil {
		return fmt.Errorf("%w: %s", ErrDuplicateCurrency, code)
	}
	root, err := session.Root()
	if err != nil {
		return err
	}
	currencies, err := op.schema.CurrencyList.Of(root)
	if err != nil {
		return err
	}
	obj, err := currencies.CreateNewElementFrom(edit, op.schema.Currency, map[*datamodel.ScalarAccessor]any{
		op.schema.CurrencyCode.Accessor():     code,
		op.schema.CurrencyName.Accessor():     op.CurrencyName,
		op.schema.CurrencyDecimals.Accessor(): op.Decimals,
	})
	if err != nil {
		return err
	}
	op.created = obj.Key()
	return nil
}

// OpenBankAccount creates a bank account, either at the top level or below
// Parent.
type OpenBankAccount struct {
	schema       *Schema
	AccountName  string
	Bank         string
	Currency     *datamodel.ExtendableObject
	StartBalance datamodel.Money
	// Parent, when set, is the capital account the new one is nested under.
	Parent  *datamodel.ExtendableObject
	created datamodel.ObjectKey
}

// OpenBankAccount returns an operation creating a bank account.
func (s *Schema) OpenBankAccount(name, bank string, currency *datamodel.ExtendableObject, start datamodel.Money) *OpenBankAccount {
	return &OpenBankAccount{schema: s, AccountName: name, Bank: bank, Currency: currency, StartBalance: start}
}

// Name implements datamodel.Operation.
func (op *OpenBankAccount) Name() string { return "open account " + op.AccountName }

// Created returns the key of the account once executed.
func (op *OpenBankAccount) Created() datamodel.ObjectKey { return op.created }

// Execute implements datamodel.Operation.
func (op *OpenBankAccount) Execute(_ context.Context, edit *datamodel.Edit) error {
	s := op.schema
	name := strings.TrimSpace(op.AccountName)
	if name == "" {
		return fmt.Errorf("%w: account name required", ErrInvalidAccount)
	}
	if op.Currency == nil || !op.Currency.PropertySet().IsDerivedFrom(s.Currency) {
		return fmt.Errorf("%w: bank account %s needs a currency", ErrInvalidAccount, name)
	}
	var (
		list *datamodel.ObjectCollection
		err  error
	)
	if op.Parent != nil {
		if !s.IsCapitalAccount(op.Parent) {
			return fmt.Errorf("%w: %s cannot hold sub-accounts", ErrInvalidAccount, op.Parent)
		}
		list, err = s.SubAccounts.Of(op.Parent)
	} else {
		list, err = s.rootList(edit.Session(), s.AccountList)
	}
	if err != nil {
		return err
	}
	obj, err := list.CreateNewElementFrom(edit, s.BankAccount, map[*datamodel.ScalarAccessor]any{
		s.AccountName.Accessor():  name,
		s.Bank.Accessor():         op.Bank,
		s.BankCurrency.Accessor(): op.Currency.Key(),
		s.StartBalance.Accessor(): op.StartBalance,
	})
	if err != nil {
		return err
	}
	op.created = obj.Key()
	return nil
}

// AddCategory creates an income or expense category.
type AddCategory struct {
	schema       *Schema
	CategoryName string
	Currency     *datamodel.ExtendableObject
	created      datamodel.ObjectKey
}

// AddCategory returns an operation creating an income/expense category. The
// currency may be nil.
func (s *Schema) AddCategory(name string, currency *datamodel.ExtendableObject) *AddCategory {
	return &AddCategory{schema: s, CategoryName: name, Currency: currency}
}

// Name implements datamodel.Operation.
func (op *AddCategory) Name() string { return "add category " + op.CategoryName }

// Created returns the key of the category once executed.
func (op *AddCategory) Created() datamodel.ObjectKey { return op.created }

// Execute implements datamodel.Operation.
func (op *AddCategory) Execute(_ context.Context, edit *datamodel.Edit) error {
	s := op.schema
	name := strings.TrimSpace(op.CategoryName)
	if name == "" {
		return fmt.Errorf("%w: category name required", ErrInvalidAccount)
	}
	values := map[*datamodel.ScalarAccessor]any{s.AccountName.Accessor(): name}
	if op.Currency != nil {
		values[s.CategoryCurrency.Accessor()] = op.Currency.Key()
	}
	list, err := s.rootList(edit.Session(), s.AccountList)
	if err != nil {
		return err
	}
	obj, err := list.CreateNewElementFrom(edit, s.IncomeExpenseAccount, values)
	if err != nil {
		return err
	}
	op.created = obj.Key()
	return nil
}

// AddTransaction creates a transaction with the given entries. Entries need
// not balance; splits against categories are the norm.
type AddTransaction struct {
	schema  *Schema
	Date    time.Time
	Entries []EntrySpec
	created datamodel.ObjectKey
}

// AddTransaction returns an operation creating a transaction dated date.
func (s *Schema) AddTransaction(date time.Time, entries ...EntrySpec) *AddTransaction {
	return &AddTransaction{schema: s, Date: date, Entries: entries}
}

// Name implements datamodel.Operation.
func (op *AddTransaction) Name() string { return "add transaction" }

// Created returns the key of the transaction once executed.
func (op *AddTransaction) Created() datamodel.ObjectKey { return op.created }

// Execute implements datamodel.Operation.
func (op *AddTransaction) Execute(_ context.Context, edit *datamodel.Edit) error {
	tx, err := op.schema.createTransaction(edit, op.Date, op.Entries)
	if err != nil {
		return err
	}
	op.created = tx.Key()
	return nil
}

// Transfer moves an amount between two capital accounts as a balanced
// two-entry transaction.
type Transfer struct {
	schema  *Schema
	From    *datamodel.ExtendableObject
	To      *datamodel.ExtendableObject
	Amount  datamodel.Money
	Date    time.Time
	Memo    string
	created datamodel.ObjectKey
}

// Transfer returns an operation moving amount from one account to another.
func (s *Schema) Transfer(from, to *datamodel.ExtendableObject, amount datamodel.Money, date time.Time, memo string) *Transfer {
	return &Transfer{schema: s, From: from, To: to, Amount: amount, Date: date, Memo: memo}
}

// Name implements datamodel.Operation.
func (op *Transfer) Name() string { return "transfer" }

// Created returns the key of the transaction once executed.
func (op *Transfer) Created() datamodel.ObjectKey { return op.created }

// Execute implements datamodel.Operation.
func (op *Transfer) Execute(_ context.Context, edit *datamodel.Edit) error {
	s := op.schema
	if !s.IsCapitalAccount(op.From) || !s.IsCapitalAccount(op.To) {
		return fmt.Errorf("%w: transfers need two capital accounts", ErrInvalidTransaction)
	}
	if op.From.Key() == op.To.Key() {
		return fmt.Errorf("%w: transfer to the same account", ErrInvalidTransaction)
	}
	if op.Amount <= 0 {
		return fmt.Errorf("%w: transfer amount %s", ErrInvalidTransaction, op.Amount)
	}
	entries := []EntrySpec{
		{Account: op.From, Amount: -op.Amount, Memo: op.Memo},
		{Account: op.To, Amount: op.Amount, Memo: op.Memo},
	}
	if err := checkBalanced(entries); err != nil {
		return err
	}
	tx, err := s.createTransaction(edit, op.Date, entries)
	if err != nil {
		return err
	}
	op.created = tx.Key()
	return nil
}

// DeleteTransaction removes a transaction and its entries.
type DeleteTransaction struct {
	schema      *Schema
	Transaction *datamodel.ExtendableObject
}

// DeleteTransaction returns an operation removing tx.
func (s *Schema) DeleteTransaction(tx *datamodel.ExtendableObject) *DeleteTransaction {
	return &DeleteTransaction{schema: s, Transaction: tx}
}

// Name implements datamodel.Operation.
func (op *DeleteTransaction) Name() string { return "delete transaction" }

// Execute implements datamodel.Operation.
func (op *DeleteTransaction) Execute(_ context.Context, edit *datamodel.Edit) error {
	s := op.schema
	if op.Transaction == nil || !op.Transaction.PropertySet().IsDerivedFrom(s.Transaction) {
		return fmt.Errorf("%w: not a transaction", ErrInvalidTransaction)
	}
	list, err := s.rootList(edit.Session(), s.TransactionList)
	if err != nil {
		return err
	}
	removed, err := list.Remove(edit, op.Transaction)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: transaction %s", ErrNotFound, op.Transaction.Key())
	}
	return nil
}

// RenameAccount changes the name of an account or category.
type RenameAccount struct {
	schema  *Schema
	Account *datamodel.ExtendableObject
	NewName string
}

// RenameAccount returns an operation renaming account.
func (s *Schema) RenameAccount(account *datamodel.ExtendableObject, name string) *RenameAccount {
	return &RenameAccount{schema: s, Account: account, NewName: name}
}

// Name implements datamodel.Operation.
func (op *RenameAccount) Name() string { return "rename account" }

// Execute implements datamodel.Operation.
func (op *RenameAccount) Execute(_ context.Context, edit *datamodel.Edit) error {
	name := strings.TrimSpace(op.NewName)
	if name == "" {
		return fmt.Errorf("%w: account name required", ErrInvalidAccount)
	}
	if !op.schema.IsAccount(op.Account) {
		return fmt.Errorf("%w: not an account", ErrInvalidAccount)
	}
	return op.schema.AccountName.Set(edit, op.Account, name)
}

func (s *Schema) rootList(session *datamodel.Session, list datamodel.List) (*datamodel.ObjectCollection, error) {
	root, err := session.Root()
	if err != nil {
		return nil, err
	}
	return list.Of(root)
}

func (s *Schema) validateEntries(session *datamodel.Session, entries []EntrySpec) error {
	if len(entries) == 0 {
		return fmt.Errorf("%w: no entries", ErrInvalidTransaction)
	}
	for i, e := range entries {
		if !s.IsAccount(e.Account) {
			return fmt.Errorf("%w: entry %d has no account", ErrInvalidTransaction, i)
		}
		if e.Account.Session() != session || !e.Account.Live() {
			return fmt.Errorf("%w: entry %d account %s is not in this session", ErrInvalidTransaction, i, e.Account.Key())
		}
		if !e.Valuta.IsZero() && !s.IsCapitalAccount(e.Account) {
			return fmt.Errorf("%w: entry %d sets a value date on a category", ErrInvalidTransaction, i)
		}
	}
	return nil
}

func checkBalanced(entries []EntrySpec) error {
	var sum datamodel.Money
	for _, e := range entries {
		sum += e.Amount
	}
	if sum != 0 {
		return fmt.Errorf("%w: off by %s", ErrUnbalanced, sum)
	}
	return nil
}

// createTransaction validates entries, then creates the transaction and its
// entries in one go.
func (s *Schema) createTransaction(edit *datamodel.Edit, date time.Time, entries []EntrySpec) (*datamodel.ExtendableObject, error) {
	session := edit.Session()
	if err := s.validateEntries(session, entries); err != nil {
		return nil, err
	}
	if date.IsZero() {
		return nil, fmt.Errorf("%w: date required", ErrInvalidTransaction)
	}
	txs, err := s.rootList(session, s.TransactionList)
	if err != nil {
		return nil, err
	}
	tx, err := txs.CreateNewElementFrom(edit, s.Transaction, map[*datamodel.ScalarAccessor]any{
		s.Date.Accessor(): date,
	})
	if err != nil {
		return nil, err
	}
	list, err := s.Entries.Of(tx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		values := map[*datamodel.ScalarAccessor]any{
			s.EntryAccount.Accessor(): e.Account.Key(),
			s.Amount.Accessor():       e.Amount,
		}
		if e.Memo != "" {
			values[s.Memo.Accessor()] = e.Memo
		}
		if e.Check != "" {
			values[s.Check.Accessor()] = e.Check
		}
		if !e.Valuta.IsZero() {
			values[s.Valuta.Accessor()] = e.Valuta
		}
		if _, err := list.CreateNewElementFrom(edit, s.Entry, values); err != nil {
			return nil, err
		}
	}
	return tx, nil
}

package datamodel_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ledgercore/internal/infra/persistence/memory"
	"ledgercore/pkg/datamodel"
)

// schema is a small book-keeping model: a book holding accounts and
// payments, with a loan extension on accounts.
type schema struct {
	reg     *datamodel.Registry
	book    *datamodel.PropertySet
	account *datamodel.PropertySet
	bank    *datamodel.PropertySet
	payment *datamodel.PropertySet
	loan    *datamodel.PropertySet

	accounts    datamodel.List
	payments    datamodel.List
	name        datamodel.Scalar[string]
	balance     datamodel.Scalar[int64]
	kind        datamodel.Scalar[string]
	opened      datamodel.Scalar[time.Time]
	subAccounts datamodel.List
	bankName    datamodel.Scalar[string]
	payee       datamodel.Reference
	amount      datamodel.Scalar[datamodel.Money]
	memo        datamodel.Scalar[string]
	rate        datamodel.Scalar[float64]
	lender      datamodel.Scalar[string]
}

func newSchema(t *testing.T) *schema {
	t.Helper()
	s := &schema{reg: datamodel.NewRegistry()}

	s.book = datamodel.NewPropertySet("book", nil)
	s.account = datamodel.NewPropertySet("account", nil)
	s.bank = datamodel.NewPropertySet("bankAccount", s.account)
	s.payment = datamodel.NewPropertySet("payment", nil)
	s.loan = datamodel.NewExtensionPropertySet("loanInfo")

	s.accounts = s.book.List("accounts", s.account)
	s.payments = s.book.List("payments", s.payment)

	s.name = s.account.String("name", "")
	s.balance = s.account.Long("balance", 0)
	s.kind = s.account.Enum("kind", []string{"checking", "savings"}, "")
	s.opened = s.account.Date("opened")
	s.subAccounts = s.account.List("subAccounts", s.account)

	s.bankName = s.bank.String("bank", "")

	s.payee = s.payment.Reference("payee", s.account)
	s.amount = s.payment.Money("amount", 0)
	s.memo = s.payment.String("memo", "", datamodel.ApplicableWhen(func(obj *datamodel.ExtendableObject) bool {
		v, err := s.amount.Get(obj)
		return err == nil && v != 0
	}))

	s.rate = s.loan.Double("interestRate", 0)
	s.lender = s.loan.String("lender", "")

	require.NoError(t, s.reg.Register(s.book))
	require.NoError(t, s.reg.Register(s.account))
	require.NoError(t, s.reg.Register(s.bank))
	require.NoError(t, s.reg.Register(s.payment))
	require.NoError(t, s.reg.RegisterExtension(s.account, s.loan))
	return s
}

func newStore(reg *datamodel.Registry) datamodel.Datastore {
	return memory.NewStore(reg)
}

func (s *schema) open(t *testing.T) (*datamodel.Session, *datamodel.ExtendableObject) {
	t.Helper()
	session, err := datamodel.OpenSession(s.reg, newStore(s.reg), s.book)
	require.NoError(t, err)
	root, err := session.Root()
	require.NoError(t, err)
	return session, root
}

// edit runs fn inside a recording and returns the captured change.
func edit(t *testing.T, session *datamodel.Session, fn func(e *datamodel.Edit)) *datamodel.UndoableChange {
	t.Helper()
	e := session.Changes().StartRecording()
	fn(e)
	change, err := session.Changes().TakeUndoableChange(e)
	require.NoError(t, err)
	return change
}

func execute(t *testing.T, session *datamodel.Session, name string, fn func(ctx context.Context, e *datamodel.Edit) error) *datamodel.DataOperation {
	t.Helper()
	op := datamodel.NewDataOperation(session, datamodel.NewOperation(name, fn))
	require.NoError(t, op.Execute(context.Background()))
	return op
}

// dump renders every object reachable from the root with all of its visible
// scalar values, in list order.
func dump(t *testing.T, session *datamodel.Session) string {
	t.Helper()
	root, err := session.Root()
	require.NoError(t, err)
	var b strings.Builder
	var walk func(obj *datamodel.ExtendableObject, indent string)
	walk = func(obj *datamodel.ExtendableObject, indent string) {
		fmt.Fprintf(&b, "%s%s %s", indent, obj.PropertySet().ID(), obj.Key())
		for _, acc := range obj.PropertySet().ScalarAccessors() {
			v, err := obj.Get(acc)
			require.NoError(t, err)
			fmt.Fprintf(&b, " %s=%v", acc.Name(), v)
		}
		b.WriteString("\n")
		for _, acc := range obj.PropertySet().ListAccessors() {
			coll, err := obj.List(acc)
			require.NoError(t, err)
			for child := range coll.All() {
				walk(child, indent+"  ")
			}
		}
	}
	walk(root, "")
	return b.String()
}

type eventLog struct {
	created  int
	deleted  int
	changed  int
	lists    int
	messages []string
}

func (l *eventLog) listener() datamodel.ListenerFuncs {
	return datamodel.ListenerFuncs{
		OnObjectCreated: func(obj *datamodel.ExtendableObject) {
			l.created++
			l.messages = append(l.messages, "created "+obj.PropertySet().ID())
		},
		OnObjectDeleted: func(obj *datamodel.ExtendableObject, _ datamodel.ListKey) {
			l.deleted++
			l.messages = append(l.messages, "deleted "+obj.PropertySet().ID())
		},
		OnPropertyChanged: func(_ *datamodel.ExtendableObject, acc *datamodel.ScalarAccessor, _, _ any) {
			l.changed++
			l.messages = append(l.messages, "changed "+acc.Name())
		},
		OnListChanged: func(datamodel.ListKey) { l.lists++ },
	}
}

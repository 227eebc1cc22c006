package datamodel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgercore/internal/infra/persistence/memory"
	"ledgercore/pkg/datamodel"
)

func accessorNames(accs []datamodel.PropertyAccessor) []string {
	names := make([]string, 0, len(accs))
	for _, acc := range accs {
		names = append(names, acc.Name())
	}
	return names
}

func TestRegisterRejectsDuplicateID(t *testing.T) {
	s := newSchema(t)
	err := s.reg.Register(datamodel.NewPropertySet("account", nil))
	require.ErrorIs(t, err, datamodel.ErrDuplicateRegistration)
	require.ErrorIs(t, err, datamodel.ErrSchema)
}

func TestRegisterRejectsUnregisteredBase(t *testing.T) {
	reg := datamodel.NewRegistry()
	base := datamodel.NewPropertySet("base", nil)
	derived := datamodel.NewPropertySet("derived", base)
	require.ErrorIs(t, reg.Register(derived), datamodel.ErrUnregisteredBase)
	assert.False(t, derived.Registered())
}

func TestRegisterRejectsRepeatedAndShadowingNames(t *testing.T) {
	reg := datamodel.NewRegistry()
	dup := datamodel.NewPropertySet("dup", nil)
	dup.String("name", "")
	dup.Integer("name", 0)
	require.ErrorIs(t, reg.Register(dup), datamodel.ErrDuplicateProperty)

	s := newSchema(t)
	shadow := datamodel.NewPropertySet("creditCard", s.account)
	shadow.String("name", "")
	require.ErrorIs(t, s.reg.Register(shadow), datamodel.ErrDuplicateProperty)

	// Derived sets may not reuse names contributed by extensions either.
	viaExt := datamodel.NewPropertySet("brokerage", s.account)
	viaExt.Double("interestRate", 0)
	require.ErrorIs(t, s.reg.Register(viaExt), datamodel.ErrDuplicateProperty)
}

func TestRegisterRejectsInvalidEnumDefault(t *testing.T) {
	reg := datamodel.NewRegistry()
	ps := datamodel.NewPropertySet("status", nil)
	ps.Enum("state", []string{"open", "closed"}, "archived")
	err := reg.Register(ps)
	require.ErrorIs(t, err, datamodel.ErrInvalidPropertySet)
	require.ErrorIs(t, err, datamodel.ErrSchema)
}

func TestRegisterExtensionCollisionIsAtomic(t *testing.T) {
	cases := []struct {
		name string
		base func(s *schema) *datamodel.PropertySet
		prop string
	}{
		{name: "own property of base", base: func(s *schema) *datamodel.PropertySet { return s.account }, prop: "name"},
		{name: "property of derived set", base: func(s *schema) *datamodel.PropertySet { return s.account }, prop: "bank"},
		{name: "extension on same base", base: func(s *schema) *datamodel.PropertySet { return s.account }, prop: "lender"},
		{name: "extension on ancestor", base: func(s *schema) *datamodel.PropertySet { return s.bank }, prop: "interestRate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newSchema(t)
			base := tc.base(s)
			before := accessorNames(s.bank.Accessors())

			ext := datamodel.NewExtensionPropertySet("clash")
			ext.String("fresh", "")
			ext.String(tc.prop, "")
			err := s.reg.RegisterExtension(base, ext)
			require.ErrorIs(t, err, datamodel.ErrNameCollision)
			require.ErrorIs(t, err, datamodel.ErrSchema)

			assert.False(t, ext.Registered())
			assert.Equal(t, before, accessorNames(s.bank.Accessors()))
			_, err = base.Accessor("fresh")
			require.ErrorIs(t, err, datamodel.ErrUnknownProperty)
			_, err = s.reg.PropertySet("clash")
			require.ErrorIs(t, err, datamodel.ErrUnknownPropertySet)
		})
	}
}

func TestVisibleAccessorsFollowChainAndExtensions(t *testing.T) {
	s := newSchema(t)
	assert.Equal(t,
		[]string{"name", "balance", "kind", "opened", "subAccounts", "interestRate", "lender", "bank"},
		accessorNames(s.bank.Accessors()))
	assert.Equal(t, []*datamodel.PropertySet{s.loan}, s.bank.Extensions())
	assert.True(t, s.bank.IsDerivedFrom(s.account))
	assert.False(t, s.account.IsDerivedFrom(s.bank))
	assert.Equal(t, []*datamodel.PropertySet{s.bank}, s.account.Derived())

	acc, err := s.bank.Accessor("interestRate")
	require.NoError(t, err)
	assert.Same(t, s.rate.Accessor(), acc)
	assert.Equal(t, "loanInfo.interestRate", acc.QualifiedName())
}

func TestExtensionReachesSetsRegisteredLater(t *testing.T) {
	s := newSchema(t)
	card := datamodel.NewPropertySet("creditCard", s.account)
	card.Money("limit", 0)
	require.NoError(t, s.reg.Register(card))

	_, err := card.Accessor("lender")
	require.NoError(t, err)

	notes := datamodel.NewExtensionPropertySet("notes")
	notes.String("note", "")
	require.NoError(t, s.reg.RegisterExtension(s.account, notes))
	_, err = card.Accessor("note")
	require.NoError(t, err)
	_, err = s.bank.Accessor("note")
	require.NoError(t, err)
}

func TestRegistryLookups(t *testing.T) {
	s := newSchema(t)
	acc, err := s.reg.Accessor("account.name")
	require.NoError(t, err)
	assert.Same(t, s.name.Accessor(), acc)

	acc, err = s.reg.Accessor("loanInfo.interestRate")
	require.NoError(t, err)
	assert.Same(t, s.rate.Accessor(), acc)

	_, err = s.reg.Accessor("account")
	require.ErrorIs(t, err, datamodel.ErrUnknownProperty)
	_, err = s.reg.Accessor("account.missing")
	require.ErrorIs(t, err, datamodel.ErrUnknownProperty)
	_, err = s.reg.Accessor("missing.name")
	require.ErrorIs(t, err, datamodel.ErrUnknownPropertySet)

	ids := make([]string, 0)
	for _, ps := range s.reg.PropertySets() {
		ids = append(ids, ps.ID())
	}
	assert.Equal(t, []string{"book", "account", "bankAccount", "payment", "loanInfo"}, ids)

	scalars, err := s.bank.ScalarAccessor("bank")
	require.NoError(t, err)
	assert.Equal(t, datamodel.TypeString, scalars.ValueType())
	_, err = s.bank.ScalarAccessor("subAccounts")
	require.ErrorIs(t, err, datamodel.ErrUnknownProperty)
}

func TestRegistrySealsWhenSessionOpens(t *testing.T) {
	s := newSchema(t)
	s.open(t)
	assert.True(t, s.reg.Sealed())

	late := datamodel.NewPropertySet("late", nil)
	require.ErrorIs(t, s.reg.Register(late), datamodel.ErrRegistryClosed)

	ext := datamodel.NewExtensionPropertySet("lateExt")
	ext.String("extra", "")
	require.ErrorIs(t, s.reg.RegisterExtension(s.account, ext), datamodel.ErrRegistryClosed)

	require.Panics(t, func() { s.account.String("another", "") })
}

func TestSealRequiresReferencedSets(t *testing.T) {
	reg := datamodel.NewRegistry()
	orphan := datamodel.NewPropertySet("orphan", nil)
	root := datamodel.NewPropertySet("root", nil)
	root.List("orphans", orphan)
	require.NoError(t, reg.Register(root))

	_, err := datamodel.OpenSession(reg, memory.NewStore(reg), root)
	require.ErrorIs(t, err, datamodel.ErrUnknownPropertySet)
	assert.False(t, reg.Sealed())
}

func TestOpenSessionRejectsUnsuitableRoot(t *testing.T) {
	s := newSchema(t)
	_, err := datamodel.OpenSession(s.reg, memory.NewStore(s.reg), s.loan)
	require.ErrorIs(t, err, datamodel.ErrIncompatibleType)
}

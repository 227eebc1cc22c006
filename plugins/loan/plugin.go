// Package loan contributes loan terms to ledger accounts as an extension
// property set.
package loan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"ledgercore/internal/core"
	"ledgercore/pkg/datamodel"
	"ledgercore/pkg/ledger"
)

// ExtensionID is the id of the loan extension property set.
const ExtensionID = "loanInfo"

// ErrInvalidTerms is returned when loan terms fail validation.
var ErrInvalidTerms = errors.New("loan: invalid terms")

// Plugin adds interest rate, lender and maturity to every account.
type Plugin struct {
	Info         *datamodel.PropertySet
	InterestRate datamodel.Scalar[float64]
	Lender       datamodel.Scalar[string]
	Maturity     datamodel.Scalar[time.Time]
}

// New declares a fresh loan extension. Each instance can be installed into
// one registry.
func New() *Plugin {
	p := &Plugin{Info: datamodel.NewExtensionPropertySet(ExtensionID)}
	p.InterestRate = p.Info.Double("interestRate", 0)
	p.Lender = p.Info.String("lender", "")
	p.Maturity = p.Info.Date("maturity")
	return p
}

// Name returns the plugin identifier.
func (*Plugin) Name() string { return "loan" }

// Version returns the plugin semantic version.
func (*Plugin) Version() string { return "0.1.0" }

// Register attaches the loan extension to the account property set.
func (p *Plugin) Register(registry *core.PluginRegistry) error {
	registry.RegisterExtension(ledger.AccountID, p.Info)
	return nil
}

// Terms is a read-only view of an account's loan extension.
type Terms struct {
	InterestRate float64
	Lender       string
	Maturity     time.Time
}

// IsLoan reports whether the terms describe a loan at all.
func (t Terms) IsLoan() bool { return t.Lender != "" || t.InterestRate != 0 }

// Terms reads the loan terms of account.
func (p *Plugin) Terms(account *datamodel.ExtendableObject) (Terms, error) {
	rate, err := p.InterestRate.Get(account)
	if err != nil {
		return Terms{}, err
	}
	lender, err := p.Lender.Get(account)
	if err != nil {
		return Terms{}, err
	}
	maturity, err := p.Maturity.Get(account)
	if err != nil {
		return Terms{}, err
	}
	return Terms{InterestRate: rate, Lender: lender, Maturity: maturity}, nil
}

// YearlyInterest returns the simple interest owed on balance over a year,
// rounded to the nearest minor unit. Balances are negative for money owed.
func (t Terms) YearlyInterest(balance datamodel.Money) datamodel.Money {
	return datamodel.Money(math.Round(float64(balance) * t.InterestRate / 100))
}

// SetTerms records loan terms on an account.
type SetTerms struct {
	plugin  *Plugin
	Account *datamodel.ExtendableObject
	Terms   Terms
}

var _ datamodel.Operation = (*SetTerms)(nil)

// SetTerms returns an operation writing terms to account.
func (p *Plugin) SetTerms(account *datamodel.ExtendableObject, terms Terms) *SetTerms {
	return &SetTerms{plugin: p, Account: account, Terms: terms}
}

// Name implements datamodel.Operation.
func (op *SetTerms) Name() string { return "set loan terms" }

// Execute implements datamodel.Operation.
func (op *SetTerms) Execute(_ context.Context, edit *datamodel.Edit) error {
	t := op.Terms
	if op.Account == nil {
		return fmt.Errorf("%w: account required", ErrInvalidTerms)
	}
	if t.InterestRate < 0 || math.IsNaN(t.InterestRate) || math.IsInf(t.InterestRate, 0) {
		return fmt.Errorf("%w: interest rate %v", ErrInvalidTerms, t.InterestRate)
	}
	lender := strings.TrimSpace(t.Lender)
	if t.InterestRate > 0 && lender == "" {
		return fmt.Errorf("%w: interest needs a lender", ErrInvalidTerms)
	}
	ext, err := op.Account.Extension(op.plugin.Info)
	if err != nil {
		return err
	}
	if err := ext.Set(edit, op.plugin.InterestRate.Accessor(), t.InterestRate); err != nil {
		return err
	}
	if err := ext.Set(edit, op.plugin.Lender.Accessor(), lender); err != nil {
		return err
	}
	return ext.Set(edit, op.plugin.Maturity.Accessor(), t.Maturity)
}

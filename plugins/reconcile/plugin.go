// Package reconcile tracks bank statement reconciliation on ledger entries.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"ledgercore/internal/core"
	"ledgercore/pkg/datamodel"
	"ledgercore/pkg/ledger"
)

// ExtensionID is the id of the reconciliation extension property set.
const ExtensionID = "reconciliation"

// Reconciliation states.
const (
	Uncleared   = "uncleared"
	Reconciling = "reconciling"
	Cleared     = "cleared"
)

// ErrInvalidReconciliation is returned for bad status changes.
var ErrInvalidReconciliation = errors.New("reconcile: invalid reconciliation")

// Plugin adds a status and statement to every entry and flags cleared
// entries whose amount changes afterwards.
type Plugin struct {
	Info      *datamodel.PropertySet
	Status    datamodel.Scalar[string]
	Statement datamodel.Scalar[string]

	mu       sync.Mutex
	tampered []datamodel.ObjectKey
}

// New declares a fresh reconciliation extension.
func New() *Plugin {
	p := &Plugin{Info: datamodel.NewExtensionPropertySet(ExtensionID)}
	p.Status = p.Info.Enum("status", []string{Uncleared, Reconciling, Cleared}, Uncleared)
	p.Statement = p.Info.String("statement", "", datamodel.ApplicableWhen(func(entry *datamodel.ExtendableObject) bool {
		status, err := p.Status.Get(entry)
		return err == nil && status != Uncleared
	}))
	return p
}

// Name returns the plugin identifier.
func (*Plugin) Name() string { return "reconcile" }

// Version returns the plugin semantic version.
func (*Plugin) Version() string { return "0.1.0" }

// Register attaches the extension to entries and installs the change
// watcher.
func (p *Plugin) Register(registry *core.PluginRegistry) error {
	registry.RegisterExtension(ledger.EntryID, p.Info)
	registry.RegisterListener(datamodel.ListenerFuncs{OnPropertyChanged: p.watch})
	return nil
}

func (p *Plugin) watch(obj *datamodel.ExtendableObject, acc *datamodel.ScalarAccessor, _, _ any) {
	if acc.QualifiedName() != ledger.EntryID+".amount" {
		return
	}
	status, err := p.Status.Get(obj)
	if err != nil || status != Cleared {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !slices.Contains(p.tampered, obj.Key()) {
		p.tampered = append(p.tampered, obj.Key())
	}
}

// Tampered returns the cleared entries whose amount changed after clearing.
func (p *Plugin) Tampered() []datamodel.ObjectKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.tampered)
}

// Mark sets the reconciliation status of entries. The statement is required
// unless the status is Uncleared, in which case it is reset.
type Mark struct {
	plugin    *Plugin
	Entries   []*datamodel.ExtendableObject
	Status    string
	Statement string
}

var _ datamodel.Operation = (*Mark)(nil)

// Mark returns an operation moving entries to status.
func (p *Plugin) Mark(status, statement string, entries ...*datamodel.ExtendableObject) *Mark {
	return &Mark{plugin: p, Entries: entries, Status: status, Statement: statement}
}

// Name implements datamodel.Operation.
func (op *Mark) Name() string { return "mark " + op.Status }

// Execute implements datamodel.Operation.
func (op *Mark) Execute(_ context.Context, edit *datamodel.Edit) error {
	if err := op.plugin.Status.Accessor().Validate(op.Status); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidReconciliation, err)
	}
	statement := strings.TrimSpace(op.Statement)
	if op.Status != Uncleared && statement == "" {
		return fmt.Errorf("%w: %s needs a statement", ErrInvalidReconciliation, op.Status)
	}
	if op.Status == Uncleared {
		statement = ""
	}
	for _, entry := range op.Entries {
		if !isEntry(entry) {
			return fmt.Errorf("%w: %v is not an entry", ErrInvalidReconciliation, entry)
		}
	}
	for _, entry := range op.Entries {
		if err := op.plugin.Statement.Set(edit, entry, statement); err != nil {
			return err
		}
		if err := op.plugin.Status.Set(edit, entry, op.Status); err != nil {
			return err
		}
	}
	return nil
}

func isEntry(obj *datamodel.ExtendableObject) bool {
	if obj == nil {
		return false
	}
	entry, err := obj.Session().Registry().PropertySet(ledger.EntryID)
	return err == nil && obj.PropertySet().IsDerivedFrom(entry)
}

// StatementTotal sums the amounts of account entries reconciled against
// statement in either the reconciling or cleared state.
func (p *Plugin) StatementTotal(schema *ledger.Schema, session *datamodel.Session, account *datamodel.ExtendableObject, statement string) (datamodel.Money, error) {
	postings, err := schema.Postings(session, account)
	if err != nil {
		return 0, err
	}
	var total datamodel.Money
	for _, posting := range postings {
		status, err := p.Status.Get(posting.Entry)
		if err != nil {
			return 0, err
		}
		if status == Uncleared {
			continue
		}
		got, err := p.Statement.Get(posting.Entry)
		if err != nil {
			return 0, err
		}
		if got == statement {
			total += posting.Amount
		}
	}
	return total, nil
}

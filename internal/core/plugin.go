package core

import (
	"fmt"
	"slices"
	"sort"

	"ledgercore/pkg/datamodel"
)

// Plugin describes a module that contributes property sets, extensions and
// listeners to the ledger model.
type Plugin interface {
	Name() string
	Version() string
	Register(registry *PluginRegistry) error
}

type extensionContribution struct {
	base string
	ext  *datamodel.PropertySet
}

// PluginRegistry accumulates plugin contributions during registration. The
// contributions reach the datamodel registry only when Register succeeds.
type PluginRegistry struct {
	sets       []*datamodel.PropertySet
	extensions []extensionContribution
	listeners  []datamodel.SessionListener
}

// NewPluginRegistry constructs a plugin registry.
func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{}
}

// RegisterPropertySet contributes a new, non-extension property set.
func (r *PluginRegistry) RegisterPropertySet(ps *datamodel.PropertySet) {
	if ps == nil {
		return
	}
	r.sets = append(r.sets, ps)
}

// RegisterExtension contributes ext to the property set with id baseID.
// Bases are resolved by id so plugins need not hold the host's handles.
func (r *PluginRegistry) RegisterExtension(baseID string, ext *datamodel.PropertySet) {
	if baseID == "" || ext == nil {
		return
	}
	r.extensions = append(r.extensions, extensionContribution{base: baseID, ext: ext})
}

// RegisterListener contributes a listener attached to every session the
// service opens.
func (r *PluginRegistry) RegisterListener(l datamodel.SessionListener) {
	if l == nil {
		return
	}
	r.listeners = append(r.listeners, l)
}

// PropertySets returns the contributed property sets.
func (r *PluginRegistry) PropertySets() []*datamodel.PropertySet {
	return slices.Clone(r.sets)
}

// Extensions returns the contributed extension set ids keyed by base id.
func (r *PluginRegistry) Extensions() map[string][]string {
	out := make(map[string][]string, len(r.extensions))
	for _, c := range r.extensions {
		out[c.base] = append(out[c.base], c.ext.ID())
	}
	return out
}

// Listeners returns the contributed listeners.
func (r *PluginRegistry) Listeners() []datamodel.SessionListener {
	return slices.Clone(r.listeners)
}

// apply registers the contributions with reg, sets first so extensions may
// target them.
func (r *PluginRegistry) apply(reg *datamodel.Registry) error {
	for _, ps := range r.sets {
		if err := reg.Register(ps); err != nil {
			return err
		}
	}
	for _, c := range r.extensions {
		base, err := reg.PropertySet(c.base)
		if err != nil {
			return fmt.Errorf("extension %s: %w", c.ext.ID(), err)
		}
		if err := reg.RegisterExtension(base, c.ext); err != nil {
			return err
		}
	}
	return nil
}

// PluginMetadata describes an installed plugin.
type PluginMetadata struct {
	Name         string
	Version      string
	PropertySets []string
	Extensions   map[string][]string
}

func newPluginMetadata(p Plugin, r *PluginRegistry) PluginMetadata {
	ids := make([]string, 0, len(r.sets))
	for _, ps := range r.sets {
		ids = append(ids, ps.ID())
	}
	sort.Strings(ids)
	return PluginMetadata{
		Name:         p.Name(),
		Version:      p.Version(),
		PropertySets: ids,
		Extensions:   r.Extensions(),
	}
}

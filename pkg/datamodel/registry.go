package datamodel

import (
	"fmt"
	"strings"
	"sync"
)

// Registry holds every property set known to the process. Sets and
// extensions are registered during plugin load; the registry is sealed when
// the first session opens and the schema is a closed world from then on.
type Registry struct {
	mu     sync.RWMutex
	sets   map[string]*PropertySet
	order  []*PropertySet
	sealed bool
}

// NewRegistry returns an empty, open registry.
func NewRegistry() *Registry {
	return &Registry{sets: make(map[string]*PropertySet)}
}

// Register accepts an entity property set. Its base, if any, must already be
// registered, and none of its local names may repeat a name visible on the
// base.
func (r *Registry) Register(ps *PropertySet) error {
	if ps == nil {
		return fmt.Errorf("%w: nil property set", ErrInvalidPropertySet)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("%w: register %s", ErrRegistryClosed, ps.id)
	}
	if ps.err != nil {
		return fmt.Errorf("register %s: %w", ps.id, ps.err)
	}
	if ps.extension {
		return fmt.Errorf("%w: %s is an extension, use RegisterExtension", ErrInvalidPropertySet, ps.id)
	}
	if _, exists := r.sets[ps.id]; exists || ps.registry != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateRegistration, ps.id)
	}
	if ps.base != nil {
		if r.sets[ps.base.id] != ps.base {
			return fmt.Errorf("%w: %s (base of %s)", ErrUnregisteredBase, ps.base.id, ps.id)
		}
		for _, acc := range ps.own {
			if _, clash := ps.base.visibleByName[acc.Name()]; clash {
				return fmt.Errorf("%w: %s shadows an inherited property", ErrDuplicateProperty, acc.QualifiedName())
			}
		}
	}

	ps.registry = r
	r.sets[ps.id] = ps
	r.order = append(r.order, ps)
	if ps.base != nil {
		ps.base.derived = append(ps.base.derived, ps)
	}
	resolve(ps)
	return nil
}

// RegisterExtension attaches ext to base. The extension's properties become
// visible on base and on every set deriving from it, including sets
// registered later. Registration is atomic: on a name collision nothing is
// changed.
func (r *Registry) RegisterExtension(base, ext *PropertySet) error {
	if base == nil || ext == nil {
		return fmt.Errorf("%w: nil property set", ErrInvalidPropertySet)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return fmt.Errorf("%w: register extension %s", ErrRegistryClosed, ext.id)
	}
	if ext.err != nil {
		return fmt.Errorf("register extension %s: %w", ext.id, ext.err)
	}
	if !ext.extension {
		return fmt.Errorf("%w: %s is not an extension property set", ErrInvalidPropertySet, ext.id)
	}
	if _, exists := r.sets[ext.id]; exists || ext.registry != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateRegistration, ext.id)
	}
	if r.sets[base.id] != base || base.extension {
		return fmt.Errorf("%w: %s (extended by %s)", ErrUnregisteredBase, base.id, ext.id)
	}

	// The visible view of each descendant already folds in the base chain
	// and every extension on it, so this covers ancestors, base, descendants
	// and their extensions.
	affected := base.descendants()
	for _, d := range affected {
		for _, acc := range ext.own {
			if existing, clash := d.visibleByName[acc.Name()]; clash {
				return fmt.Errorf("%w: %s collides with %s on %s",
					ErrNameCollision, acc.QualifiedName(), existing.QualifiedName(), d.id)
			}
		}
	}

	ext.registry = r
	ext.extends = base
	r.sets[ext.id] = ext
	r.order = append(r.order, ext)
	base.extensions = append(base.extensions, ext)
	resolve(ext)
	for _, d := range affected {
		resolve(d)
	}
	return nil
}

// resolve recomputes the visible accessor views of ps.
func resolve(ps *PropertySet) {
	var visible []PropertyAccessor
	if ps.extension {
		visible = append(visible, ps.own...)
	} else {
		for _, level := range ps.chain() {
			visible = append(visible, level.own...)
			for _, ext := range level.extensions {
				visible = append(visible, ext.own...)
			}
		}
	}
	byName := make(map[string]PropertyAccessor, len(visible))
	var scalars []*ScalarAccessor
	var lists []*ListAccessor
	for _, acc := range visible {
		byName[acc.Name()] = acc
		switch a := acc.(type) {
		case *ScalarAccessor:
			scalars = append(scalars, a)
		case *ListAccessor:
			lists = append(lists, a)
		}
	}
	ps.visible = visible
	ps.visibleByName = byName
	ps.scalars = scalars
	ps.lists = lists
}

// PropertySet returns the registered set with the given id.
func (r *Registry) PropertySet(id string) (*PropertySet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ps, ok := r.sets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPropertySet, id)
	}
	return ps, nil
}

// Accessor resolves a qualified name of the form "<set id>.<name>".
func (r *Registry) Accessor(qualifiedName string) (PropertyAccessor, error) {
	setID, name, ok := strings.Cut(qualifiedName, ".")
	if !ok {
		return nil, fmt.Errorf("%w: %q is not qualified", ErrUnknownProperty, qualifiedName)
	}
	ps, err := r.PropertySet(setID)
	if err != nil {
		return nil, err
	}
	acc, ok := ps.ownByName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProperty, qualifiedName)
	}
	return acc, nil
}

// PropertySets returns every registered set in registration order.
func (r *Registry) PropertySets() []*PropertySet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*PropertySet, len(r.order))
	copy(out, r.order)
	return out
}

// Sealed reports whether the registry has been closed to registration.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Seal closes the registry. It checks that every list element set and
// reference target named by a registered property is itself registered.
// Sealing an already sealed registry is a no-op.
func (r *Registry) Seal() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return nil
	}
	for _, ps := range r.order {
		for _, acc := range ps.own {
			var target *PropertySet
			switch a := acc.(type) {
			case *ScalarAccessor:
				target = a.target
			case *ListAccessor:
				target = a.element
			}
			if target != nil && r.sets[target.id] != target {
				return fmt.Errorf("%w: %s refers to %s", ErrUnknownPropertySet, acc.QualifiedName(), target.id)
			}
		}
	}
	r.sealed = true
	return nil
}

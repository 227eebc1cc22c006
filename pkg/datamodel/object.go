package datamodel

import (
	"fmt"
	"sync"
)

// ExtendableObject is the handle of one entity in a session. Property values
// live in the datastore; the handle only knows its key, its property set and
// the list that owns it. Handles are interned, so two lookups of the same key
// within a session return the same pointer while either result is in use.
type ExtendableObject struct {
	session *Session
	key     ObjectKey
	set     *PropertySet
	parent  ListKey

	extMu      sync.Mutex
	extensions map[*PropertySet]*ExtensionObject
}

// Key returns the durable identity of the object.
func (o *ExtendableObject) Key() ObjectKey { return o.key }

// PropertySet returns the concrete set the object was created with.
func (o *ExtendableObject) PropertySet() *PropertySet { return o.set }

// Session returns the owning session.
func (o *ExtendableObject) Session() *Session { return o.session }

// Parent returns the list holding the object; zero for the session root.
func (o *ExtendableObject) Parent() ListKey { return o.parent }

// ParentObject returns the object owning the list that holds o, or nil for
// the root.
func (o *ExtendableObject) ParentObject() (*ExtendableObject, error) {
	if o.parent.Parent.IsZero() {
		return nil, nil
	}
	return o.session.Object(o.parent.Parent)
}

func (o *ExtendableObject) String() string {
	return o.set.id + "(" + o.key.String() + ")"
}

// Live reports whether the object still exists in the datastore.
func (o *ExtendableObject) Live() bool {
	return o.checkLive() == nil
}

func (o *ExtendableObject) checkLive() error {
	if err := o.session.checkOpen(); err != nil {
		return err
	}
	if _, err := o.session.store.Lookup(o.key); err != nil {
		return fmt.Errorf("%w: %s", ErrObjectDeleted, o)
	}
	return nil
}

func (o *ExtendableObject) check(acc PropertyAccessor) error {
	if err := o.checkLive(); err != nil {
		return err
	}
	if !o.set.hasAccessor(acc) {
		return fmt.Errorf("%w: %s on %s", ErrUnknownProperty, accessorName(acc), o.set.id)
	}
	return nil
}

// Get reads a scalar property. Properties never written read as the
// accessor's default.
func (o *ExtendableObject) Get(acc *ScalarAccessor) (any, error) {
	if err := o.check(acc); err != nil {
		return nil, err
	}
	v, ok, err := o.session.store.Scalar(o.key, acc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return acc.def, nil
	}
	return v, nil
}

// GetByName reads a scalar property by its local name.
func (o *ExtendableObject) GetByName(name string) (any, error) {
	acc, err := o.set.ScalarAccessor(name)
	if err != nil {
		return nil, err
	}
	return o.Get(acc)
}

// Set writes a scalar property. edit must be open on the object's session;
// otherwise the write fails with ErrImmutableObject. Writing the current
// value records nothing.
func (o *ExtendableObject) Set(edit *Edit, acc *ScalarAccessor, value any) error {
	if err := o.check(acc); err != nil {
		return err
	}
	return o.session.setScalar(edit, o, acc, value)
}

// IsApplicable evaluates the property's dependency against the object.
// Properties without a dependency always apply.
func (o *ExtendableObject) IsApplicable(acc PropertyAccessor) bool {
	if !o.set.hasAccessor(acc) {
		return false
	}
	dep := acc.Dependency()
	if dep == nil {
		return true
	}
	return dep.IsApplicable(o)
}

// Dereference resolves a reference property. It returns nil when the
// reference is unset.
func (o *ExtendableObject) Dereference(acc *ScalarAccessor) (*ExtendableObject, error) {
	if acc == nil || acc.valueType != TypeReference {
		return nil, fmt.Errorf("%w: not a reference property", ErrInvalidValue)
	}
	v, err := o.Get(acc)
	if err != nil {
		return nil, err
	}
	key := v.(ObjectKey)
	if key.IsZero() {
		return nil, nil
	}
	return o.session.Object(key)
}

// List returns the collection held by a list property.
func (o *ExtendableObject) List(acc *ListAccessor) (*ObjectCollection, error) {
	if err := o.check(acc); err != nil {
		return nil, err
	}
	return &ObjectCollection{owner: o, list: ListKey{Parent: o.key, Accessor: acc}}, nil
}

// ListByName returns the collection of a list property by its local name.
func (o *ExtendableObject) ListByName(name string) (*ObjectCollection, error) {
	acc, err := o.set.ListAccessor(name)
	if err != nil {
		return nil, err
	}
	return o.List(acc)
}

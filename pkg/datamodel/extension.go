package datamodel

import "fmt"

// ExtensionObject is the view of one extension property set on one owner.
// It holds no values itself; reads and writes go through the owner.
type ExtensionObject struct {
	owner *ExtendableObject
	set   *PropertySet
}

// Owner returns the extended object.
func (e *ExtensionObject) Owner() *ExtendableObject { return e.owner }

// PropertySet returns the extension set.
func (e *ExtensionObject) PropertySet() *PropertySet { return e.set }

func (e *ExtensionObject) check(acc PropertyAccessor) error {
	if nilAccessor(acc) || acc.PropertySet() != e.set {
		return fmt.Errorf("%w: property does not belong to extension %s", ErrUnknownProperty, e.set.id)
	}
	return nil
}

// Get reads a property of the extension.
func (e *ExtensionObject) Get(acc *ScalarAccessor) (any, error) {
	if err := e.check(acc); err != nil {
		return nil, err
	}
	return e.owner.Get(acc)
}

// Set writes a property of the extension.
func (e *ExtensionObject) Set(edit *Edit, acc *ScalarAccessor, value any) error {
	if err := e.check(acc); err != nil {
		return err
	}
	return e.owner.Set(edit, acc, value)
}

// List returns a list property of the extension.
func (e *ExtensionObject) List(acc *ListAccessor) (*ObjectCollection, error) {
	if err := e.check(acc); err != nil {
		return nil, err
	}
	return e.owner.List(acc)
}

// Extension returns the view of ext on the object. The view is created on
// first use; creating it is not a change and is never recorded.
func (o *ExtendableObject) Extension(ext *PropertySet) (*ExtensionObject, error) {
	if ext == nil || !ext.extension || ext.extends == nil || !o.set.IsDerivedFrom(ext.extends) {
		return nil, fmt.Errorf("%w: %s is not an extension of %s", ErrUnknownPropertySet, setID(ext), o.set.id)
	}
	if err := o.checkLive(); err != nil {
		return nil, err
	}
	o.extMu.Lock()
	defer o.extMu.Unlock()
	if view, ok := o.extensions[ext]; ok {
		return view, nil
	}
	if o.extensions == nil {
		o.extensions = make(map[*PropertySet]*ExtensionObject)
	}
	view := &ExtensionObject{owner: o, set: ext}
	o.extensions[ext] = view
	return view, nil
}

// NonDefaultExtensions lists the extension sets for which the object holds at
// least one non-default value or a non-empty list. It never materializes
// extension views.
func (o *ExtendableObject) NonDefaultExtensions() ([]*PropertySet, error) {
	if err := o.checkLive(); err != nil {
		return nil, err
	}
	var out []*PropertySet
	for _, ext := range o.set.Extensions() {
		used, err := o.usesExtension(ext)
		if err != nil {
			return nil, err
		}
		if used {
			out = append(out, ext)
		}
	}
	return out, nil
}

func (o *ExtendableObject) usesExtension(ext *PropertySet) (bool, error) {
	for _, acc := range ext.scalars {
		v, ok, err := o.session.store.Scalar(o.key, acc)
		if err != nil {
			return false, err
		}
		if ok && !valuesEqual(v, acc.def) {
			return true, nil
		}
	}
	for _, acc := range ext.lists {
		if o.session.store.ListManager(ListKey{Parent: o.key, Accessor: acc}).Size() > 0 {
			return true, nil
		}
	}
	return false, nil
}

// Materialized reports whether an extension view has been created for ext.
func (o *ExtendableObject) Materialized(ext *PropertySet) bool {
	o.extMu.Lock()
	defer o.extMu.Unlock()
	_, ok := o.extensions[ext]
	return ok
}

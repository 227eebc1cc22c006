package datamodel

import (
	"fmt"
	"iter"
	"slices"
)

// ObjectCollection is the view of one list property of one object. Elements
// are created and removed only through the collection so every change is
// recorded and announced.
type ObjectCollection struct {
	owner *ExtendableObject
	list  ListKey
}

// ListKey identifies the underlying list.
func (c *ObjectCollection) ListKey() ListKey { return c.list }

// Owner returns the object holding the list.
func (c *ObjectCollection) Owner() *ExtendableObject { return c.owner }

// Accessor returns the list property.
func (c *ObjectCollection) Accessor() *ListAccessor { return c.list.Accessor }

func (c *ObjectCollection) manager() ListManager {
	return c.owner.session.store.ListManager(c.list)
}

// Size returns the number of elements.
func (c *ObjectCollection) Size() int { return c.manager().Size() }

// Contains reports whether obj is an element of the list.
func (c *ObjectCollection) Contains(obj *ExtendableObject) bool {
	if obj == nil || obj.session != c.owner.session {
		return false
	}
	return c.manager().Contains(obj.key)
}

// All iterates the elements in list order.
func (c *ObjectCollection) All() iter.Seq[*ExtendableObject] {
	return func(yield func(*ExtendableObject) bool) {
		for _, key := range c.manager().Keys() {
			obj, err := c.owner.session.Object(key)
			if err != nil {
				continue
			}
			if !yield(obj) {
				return
			}
		}
	}
}

// Elements returns the elements in list order.
func (c *ObjectCollection) Elements() []*ExtendableObject {
	return slices.Collect(c.All())
}

// CreateNewElement appends a new object of ps with every property at its
// default. ps must be the declared element set or a concrete set derived
// from it.
func (c *ObjectCollection) CreateNewElement(edit *Edit, ps *PropertySet) (*ExtendableObject, error) {
	return c.CreateNewElementWithValues(edit, ps, nil)
}

// CreateNewElementWithValues appends a new object of ps initialised from
// values, given in the scalar registration order of ps. Missing and nil
// entries take the property default.
func (c *ObjectCollection) CreateNewElementWithValues(edit *Edit, ps *PropertySet, values []any) (*ExtendableObject, error) {
	if err := c.owner.checkLive(); err != nil {
		return nil, err
	}
	var initial map[*ScalarAccessor]any
	if len(values) > 0 {
		if ps == nil {
			return nil, fmt.Errorf("%w: nil property set", ErrIncompatibleType)
		}
		scalars := ps.scalars
		if len(values) > len(scalars) {
			return nil, fmt.Errorf("%w: %d values for %d properties of %s", ErrInvalidValue, len(values), len(scalars), ps.id)
		}
		initial = make(map[*ScalarAccessor]any, len(values))
		for i, v := range values {
			if v != nil {
				initial[scalars[i]] = v
			}
		}
	}
	return c.owner.session.createElement(edit, c.list, ps, initial)
}

// CreateNewElementFrom appends a new object of ps initialised from values
// keyed by accessor.
func (c *ObjectCollection) CreateNewElementFrom(edit *Edit, ps *PropertySet, values map[*ScalarAccessor]any) (*ExtendableObject, error) {
	if err := c.owner.checkLive(); err != nil {
		return nil, err
	}
	return c.owner.session.createElement(edit, c.list, ps, values)
}

// Remove deletes obj and its subtree from the list. A non-member yields
// false and fires nothing.
func (c *ObjectCollection) Remove(edit *Edit, obj *ExtendableObject) (bool, error) {
	if err := c.owner.session.checkEdit(edit); err != nil {
		return false, err
	}
	if err := c.owner.checkLive(); err != nil {
		return false, err
	}
	if obj == nil || obj.session != c.owner.session {
		return false, nil
	}
	return c.owner.session.removeElement(edit, c.list, obj.key)
}

// RemoveAll removes every member of objs. It reports whether the list
// changed.
func (c *ObjectCollection) RemoveAll(edit *Edit, objs []*ExtendableObject) (bool, error) {
	changed := false
	for _, obj := range objs {
		removed, err := c.Remove(edit, obj)
		if err != nil {
			return changed, err
		}
		changed = changed || removed
	}
	return changed, nil
}

// RetainAll removes every element not in keep. It reports whether the list
// changed.
func (c *ObjectCollection) RetainAll(edit *Edit, keep []*ExtendableObject) (bool, error) {
	var drop []*ExtendableObject
	for obj := range c.All() {
		if !slices.Contains(keep, obj) {
			drop = append(drop, obj)
		}
	}
	return c.RemoveAll(edit, drop)
}

// Clear removes every element.
func (c *ObjectCollection) Clear(edit *Edit) error {
	_, err := c.RemoveAll(edit, c.Elements())
	return err
}

// Add is not supported: objects are owned by exactly one list and can only
// enter it through CreateNewElement.
func (c *ObjectCollection) Add(*ExtendableObject) error {
	return fmt.Errorf("%w: add to %s", ErrUnsupportedOperation, c.list.Accessor.QualifiedName())
}

package datamodel

// Datastore is the contract a storage adapter implements. A session reads
// and writes all property values through it; object handles carry no state
// of their own. Implementations are free to load lazily.
type Datastore interface {
	// Root returns the key of the session root, or the zero key when the
	// store is empty.
	Root() ObjectKey
	// CreateRoot creates the root object of an empty store.
	CreateRoot(ps *PropertySet) (ObjectKey, error)
	// Lookup returns the set and owning list of a live object. Keys of
	// removed or unknown objects yield an error wrapping ErrObjectDeleted.
	Lookup(key ObjectKey) (ObjectInfo, error)
	// Scalar returns the stored value of a property. ok is false when no
	// value has been stored, in which case the accessor default applies.
	Scalar(key ObjectKey, acc *ScalarAccessor) (value any, ok bool, err error)
	SetScalar(key ObjectKey, acc *ScalarAccessor, value any) error
	// ListManager returns the manager of one list. It is never nil; a list
	// of an unknown parent behaves as empty.
	ListManager(list ListKey) ListManager
	// Count returns the number of live objects, root included.
	Count() int
}

// ListManager stores the elements of one list in order.
type ListManager interface {
	Size() int
	Contains(key ObjectKey) bool
	Keys() []ObjectKey
	// CreateElement appends a new object of ps. values holds the initial
	// property values; absent accessors read as their default.
	CreateElement(ps *PropertySet, values map[*ScalarAccessor]any) (ObjectKey, error)
	// Remove detaches an element and its whole subtree. It reports the
	// removed state and the former position, or ok false for a non-member.
	Remove(key ObjectKey) (state ObjectState, index int, ok bool, err error)
	// Restore reinserts a previously removed subtree at index, keeping its
	// keys.
	Restore(state ObjectState, index int) error
}

// ObjectInfo describes a live object.
type ObjectInfo struct {
	Key         ObjectKey
	PropertySet *PropertySet
	Parent      ListKey
}

// ObjectState is a detached copy of an object and everything it owns. It is
// what a removal captures so the subtree can be restored with the same keys.
type ObjectState struct {
	Key         ObjectKey
	PropertySet *PropertySet
	Values      map[*ScalarAccessor]any
	Lists       map[*ListAccessor][]ObjectState
}

// Walk visits the state and every descendant state, parents first.
func (s ObjectState) Walk(fn func(ObjectState)) {
	fn(s)
	for _, acc := range s.PropertySet.ListAccessors() {
		for _, child := range s.Lists[acc] {
			child.Walk(fn)
		}
	}
}

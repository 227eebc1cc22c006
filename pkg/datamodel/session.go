package datamodel

import (
	"fmt"
	"runtime"
	"sync"
	"weak"
)

// Session binds a sealed registry to one datastore. It interns object
// handles, dispatches listener events and owns the change manager. A session
// serves a single writer; concurrent mutation from several goroutines is not
// supported.
type Session struct {
	registry *Registry
	store    Datastore
	changes  *ChangeManager
	rootKey  ObjectKey

	mu        sync.Mutex
	objects   map[ObjectKey]weak.Pointer[ExtendableObject]
	listeners []*listenerEntry
	nextID    int
	closed    bool
}

type listenerEntry struct {
	id       int
	listener SessionListener
}

// OpenSession seals reg and opens store. An empty store gets a new root of
// rootSet; otherwise the stored root must be of rootSet or a set derived
// from it.
func OpenSession(reg *Registry, store Datastore, rootSet *PropertySet) (*Session, error) {
	if reg == nil || store == nil || rootSet == nil {
		return nil, fmt.Errorf("%w: open session needs a registry, a datastore and a root set", ErrInvalidPropertySet)
	}
	if err := reg.Seal(); err != nil {
		return nil, err
	}
	if rootSet.registry != reg || rootSet.extension || rootSet.abstract {
		return nil, fmt.Errorf("%w: %s cannot be a session root", ErrIncompatibleType, rootSet.id)
	}

	s := &Session{
		registry: reg,
		store:    store,
		objects:  make(map[ObjectKey]weak.Pointer[ExtendableObject]),
	}
	s.changes = &ChangeManager{session: s}

	key := store.Root()
	if key.IsZero() {
		created, err := store.CreateRoot(rootSet)
		if err != nil {
			return nil, fmt.Errorf("create root: %w", err)
		}
		key = created
	} else {
		info, err := store.Lookup(key)
		if err != nil {
			return nil, fmt.Errorf("load root: %w", err)
		}
		if !info.PropertySet.IsDerivedFrom(rootSet) {
			return nil, fmt.Errorf("%w: stored root is %s, expected %s", ErrIncompatibleType, info.PropertySet.id, rootSet.id)
		}
	}
	s.rootKey = key
	return s, nil
}

// Registry returns the sealed registry backing the session.
func (s *Session) Registry() *Registry { return s.registry }

// Datastore returns the storage adapter.
func (s *Session) Datastore() Datastore { return s.store }

// Changes returns the change manager of the session.
func (s *Session) Changes() *ChangeManager { return s.changes }

// Root returns the root object.
func (s *Session) Root() (*ExtendableObject, error) {
	return s.Object(s.rootKey)
}

// Object resolves a key to its interned handle.
func (s *Session) Object(key ObjectKey) (*ExtendableObject, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if key.IsZero() {
		return nil, fmt.Errorf("%w: zero key", ErrObjectDeleted)
	}
	s.mu.Lock()
	obj := s.objects[key].Value()
	s.mu.Unlock()
	if obj != nil {
		if _, err := s.store.Lookup(key); err != nil {
			return nil, err
		}
		return obj, nil
	}
	info, err := s.store.Lookup(key)
	if err != nil {
		return nil, err
	}
	return s.handle(info.Key, info.PropertySet, info.Parent), nil
}

// handle returns the interned handle for key, creating it if needed. The
// session holds handles weakly; an entry is dropped once its handle is no
// longer reachable.
func (s *Session) handle(key ObjectKey, ps *PropertySet, parent ListKey) *ExtendableObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obj := s.objects[key].Value(); obj != nil {
		return obj
	}
	obj := &ExtendableObject{session: s, key: key, set: ps, parent: parent}
	s.objects[key] = weak.Make(obj)
	runtime.AddCleanup(obj, s.dropHandle, key)
	return obj
}

func (s *Session) dropHandle(key ObjectKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if wp, ok := s.objects[key]; ok && wp.Value() == nil {
		delete(s.objects, key)
	}
}

func (s *Session) handleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// ObjectCount returns the number of live objects, root included.
func (s *Session) ObjectCount() int { return s.store.Count() }

// AddListener registers l and returns a function removing it again.
func (s *Session) AddListener(l SessionListener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, &listenerEntry{id: id, listener: l})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, entry := range s.listeners {
			if entry.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Session) notify(fn func(SessionListener)) {
	s.mu.Lock()
	entries := make([]*listenerEntry, len(s.listeners))
	copy(entries, s.listeners)
	s.mu.Unlock()
	for _, entry := range entries {
		fn(entry.listener)
	}
}

// Close releases the session. Handles obtained from it stop working.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.objects = make(map[ObjectKey]weak.Pointer[ExtendableObject])
	s.listeners = nil
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) checkOpen() error {
	if s.Closed() {
		return ErrSessionClosed
	}
	return nil
}

// checkEdit verifies that edit may be used to mutate this session.
func (s *Session) checkEdit(edit *Edit) error {
	if edit == nil || edit.manager != s.changes || !edit.open {
		return ErrImmutableObject
	}
	return nil
}

// checkValue validates value for acc, resolving reference targets.
func (s *Session) checkValue(acc *ScalarAccessor, value any) (any, error) {
	if err := acc.Validate(value); err != nil {
		return nil, err
	}
	value = acc.normalize(value)
	if acc.valueType == TypeReference {
		key := value.(ObjectKey)
		if !key.IsZero() {
			info, err := s.store.Lookup(key)
			if err != nil {
				return nil, fmt.Errorf("%w: %s refers to missing object %s", ErrInvalidValue, acc.QualifiedName(), key)
			}
			if !info.PropertySet.IsDerivedFrom(acc.target) {
				return nil, fmt.Errorf("%w: %s expects %s, got %s", ErrInvalidValue, acc.QualifiedName(), acc.target.id, info.PropertySet.id)
			}
		}
	}
	return value, nil
}

func (s *Session) setScalar(edit *Edit, obj *ExtendableObject, acc *ScalarAccessor, value any) error {
	if err := s.checkEdit(edit); err != nil {
		return fmt.Errorf("%w: %s", err, acc.QualifiedName())
	}
	value, err := s.checkValue(acc, value)
	if err != nil {
		return err
	}
	before, err := obj.Get(acc)
	if err != nil {
		return err
	}
	if valuesEqual(before, value) {
		return nil
	}
	if err := s.store.SetScalar(obj.key, acc, value); err != nil {
		return err
	}
	s.changes.record(Change{
		Action:   ActionUpdate,
		Object:   obj.key,
		Accessor: acc,
		Before:   before,
		After:    value,
	})
	s.notify(func(l SessionListener) { l.PropertyChanged(obj, acc, before, value) })
	return nil
}

func (s *Session) createElement(edit *Edit, list ListKey, ps *PropertySet, values map[*ScalarAccessor]any) (*ExtendableObject, error) {
	if err := s.checkEdit(edit); err != nil {
		return nil, err
	}
	if ps == nil || ps.registry != s.registry || ps.extension || ps.abstract || !ps.IsDerivedFrom(list.Accessor.element) {
		return nil, fmt.Errorf("%w: cannot create %s in %s", ErrIncompatibleType, setID(ps), list.Accessor.QualifiedName())
	}
	clean := make(map[*ScalarAccessor]any, len(values))
	for acc, v := range values {
		if !ps.hasAccessor(acc) {
			return nil, fmt.Errorf("%w: %s on %s", ErrUnknownProperty, accessorName(acc), ps.id)
		}
		checked, err := s.checkValue(acc, v)
		if err != nil {
			return nil, err
		}
		clean[acc] = checked
	}
	lm := s.store.ListManager(list)
	key, err := lm.CreateElement(ps, clean)
	if err != nil {
		return nil, err
	}
	s.changes.record(Change{
		Action: ActionCreate,
		Object: key,
		List:   list,
		Index:  lm.Size() - 1,
		State:  ObjectState{Key: key, PropertySet: ps, Values: clean},
	})
	obj := s.handle(key, ps, list)
	s.notify(func(l SessionListener) {
		l.ObjectCreated(obj)
		l.ListChanged(list)
	})
	return obj, nil
}

func (s *Session) removeElement(edit *Edit, list ListKey, key ObjectKey) (bool, error) {
	if err := s.checkEdit(edit); err != nil {
		return false, err
	}
	lm := s.store.ListManager(list)
	if !lm.Contains(key) {
		return false, nil
	}
	state, index, ok, err := lm.Remove(key)
	if err != nil || !ok {
		return false, err
	}
	s.changes.record(Change{
		Action: ActionDelete,
		Object: key,
		List:   list,
		Index:  index,
		State:  state,
	})
	obj := s.handle(key, state.PropertySet, list)
	s.notify(func(l SessionListener) {
		l.ObjectDeleted(obj, list)
		l.ListChanged(list)
	})
	return true, nil
}

func (s *Session) restoreElement(edit *Edit, list ListKey, state ObjectState, index int) error {
	if err := s.checkEdit(edit); err != nil {
		return err
	}
	if err := s.store.ListManager(list).Restore(state, index); err != nil {
		return err
	}
	s.changes.record(Change{
		Action: ActionCreate,
		Object: state.Key,
		List:   list,
		Index:  index,
		State:  state,
	})
	obj := s.handle(state.Key, state.PropertySet, list)
	s.notify(func(l SessionListener) {
		l.ObjectCreated(obj)
		l.ListChanged(list)
	})
	return nil
}

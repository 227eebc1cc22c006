// Package memory provides the in-memory datastore used by sessions, tests and
// as the working set of the snapshotting durable stores.
package memory

import (
	"fmt"
	"slices"
	"sync"

	"ledgercore/pkg/datamodel"
)

// Compile-time contract assertion ensuring Store adheres to the datastore interface.
var _ datamodel.Datastore = (*Store)(nil)

type (
	// ObjectKey aliases datamodel.ObjectKey.
	ObjectKey = datamodel.ObjectKey
	// ListKey aliases datamodel.ListKey.
	ListKey = datamodel.ListKey
	// ObjectState aliases datamodel.ObjectState captured on removal.
	ObjectState = datamodel.ObjectState
	// ScalarAccessor aliases datamodel.ScalarAccessor.
	ScalarAccessor = datamodel.ScalarAccessor
	// ListAccessor aliases datamodel.ListAccessor.
	ListAccessor = datamodel.ListAccessor
	// PropertySet aliases datamodel.PropertySet.
	PropertySet = datamodel.PropertySet
)

type record struct {
	key    ObjectKey
	set    *PropertySet
	parent ListKey
	values map[*ScalarAccessor]any
	lists  map[*ListAccessor][]ObjectKey
}

// refSlot names the property of an object holding a reference.
type refSlot struct {
	from ObjectKey
	acc  *ScalarAccessor
}

// Store keeps every object of one session in memory. It maintains an index
// of inbound references so it can refuse to remove objects that are still
// referenced from outside the removed subtree.
type Store struct {
	mu       sync.RWMutex
	registry *datamodel.Registry
	root     ObjectKey
	objects  map[ObjectKey]*record
	inbound  map[ObjectKey]map[refSlot]struct{}
}

// NewStore returns an empty store. The registry resolves set ids and
// property names when a snapshot is imported.
func NewStore(reg *datamodel.Registry) *Store {
	return &Store{
		registry: reg,
		objects:  make(map[ObjectKey]*record),
		inbound:  make(map[ObjectKey]map[refSlot]struct{}),
	}
}

// Registry returns the registry the store resolves schema names against.
func (s *Store) Registry() *datamodel.Registry { return s.registry }

// Root implements datamodel.Datastore.
func (s *Store) Root() ObjectKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// CreateRoot implements datamodel.Datastore.
func (s *Store) CreateRoot(ps *PropertySet) (ObjectKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.root.IsZero() {
		return ObjectKey{}, fmt.Errorf("memory store: root already exists")
	}
	rec := newRecord(datamodel.NewObjectKey(), ps, ListKey{})
	s.objects[rec.key] = rec
	s.root = rec.key
	return rec.key, nil
}

func newRecord(key ObjectKey, ps *PropertySet, parent ListKey) *record {
	return &record{
		key:    key,
		set:    ps,
		parent: parent,
		values: make(map[*ScalarAccessor]any),
		lists:  make(map[*ListAccessor][]ObjectKey),
	}
}

func (s *Store) lookup(key ObjectKey) (*record, error) {
	rec, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", datamodel.ErrObjectDeleted, key)
	}
	return rec, nil
}

// Lookup implements datamodel.Datastore.
func (s *Store) Lookup(key ObjectKey) (datamodel.ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.lookup(key)
	if err != nil {
		return datamodel.ObjectInfo{}, err
	}
	return datamodel.ObjectInfo{Key: rec.key, PropertySet: rec.set, Parent: rec.parent}, nil
}

// Scalar implements datamodel.Datastore.
func (s *Store) Scalar(key ObjectKey, acc *ScalarAccessor) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, err := s.lookup(key)
	if err != nil {
		return nil, false, err
	}
	v, ok := rec.values[acc]
	return v, ok, nil
}

// SetScalar implements datamodel.Datastore.
func (s *Store) SetScalar(key ObjectKey, acc *ScalarAccessor, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.lookup(key)
	if err != nil {
		return err
	}
	if acc.ValueType() == datamodel.TypeReference {
		if target, ok := value.(ObjectKey); ok && !target.IsZero() {
			if _, err := s.lookup(target); err != nil {
				return fmt.Errorf("%w: %s refers to missing %s", datamodel.ErrReferenceViolation, acc.QualifiedName(), target)
			}
		}
		s.unlinkRef(rec, acc)
	}
	rec.values[acc] = value
	s.linkRef(rec, acc)
	return nil
}

// Count implements datamodel.Datastore.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// ListManager implements datamodel.Datastore.
func (s *Store) ListManager(list ListKey) datamodel.ListManager {
	return &listManager{store: s, list: list}
}

func (s *Store) linkRef(rec *record, acc *ScalarAccessor) {
	if acc.ValueType() != datamodel.TypeReference {
		return
	}
	target, ok := rec.values[acc].(ObjectKey)
	if !ok || target.IsZero() {
		return
	}
	slots, ok := s.inbound[target]
	if !ok {
		slots = make(map[refSlot]struct{})
		s.inbound[target] = slots
	}
	slots[refSlot{from: rec.key, acc: acc}] = struct{}{}
}

func (s *Store) unlinkRef(rec *record, acc *ScalarAccessor) {
	target, ok := rec.values[acc].(ObjectKey)
	if !ok || target.IsZero() {
		return
	}
	slots := s.inbound[target]
	delete(slots, refSlot{from: rec.key, acc: acc})
	if len(slots) == 0 {
		delete(s.inbound, target)
	}
}

// subtree returns key and every key it owns, parents first.
func (s *Store) subtree(key ObjectKey) []ObjectKey {
	out := []ObjectKey{key}
	for i := 0; i < len(out); i++ {
		rec := s.objects[out[i]]
		for _, acc := range rec.set.ListAccessors() {
			out = append(out, rec.lists[acc]...)
		}
	}
	return out
}

func (s *Store) capture(key ObjectKey) ObjectState {
	rec := s.objects[key]
	state := ObjectState{
		Key:         rec.key,
		PropertySet: rec.set,
		Values:      make(map[*ScalarAccessor]any, len(rec.values)),
	}
	for acc, v := range rec.values {
		state.Values[acc] = v
	}
	for acc, children := range rec.lists {
		if len(children) == 0 {
			continue
		}
		if state.Lists == nil {
			state.Lists = make(map[*ListAccessor][]ObjectState)
		}
		for _, child := range children {
			state.Lists[acc] = append(state.Lists[acc], s.capture(child))
		}
	}
	return state
}

// insert adds a captured subtree below parent without touching parent's list.
func (s *Store) insert(state ObjectState, parent ListKey) {
	rec := newRecord(state.Key, state.PropertySet, parent)
	for acc, v := range state.Values {
		rec.values[acc] = v
	}
	s.objects[rec.key] = rec
	for acc, children := range state.Lists {
		childList := ListKey{Parent: rec.key, Accessor: acc}
		for _, child := range children {
			s.insert(child, childList)
			rec.lists[acc] = append(rec.lists[acc], child.Key)
		}
	}
}

type listManager struct {
	store *Store
	list  ListKey
}

func (m *listManager) parent() (*record, error) {
	rec, err := m.store.lookup(m.list.Parent)
	if err != nil {
		return nil, err
	}
	if m.list.Accessor == nil {
		return nil, fmt.Errorf("%w: list without accessor", datamodel.ErrUnknownProperty)
	}
	if acc, err := rec.set.ListAccessor(m.list.Accessor.Name()); err != nil || acc != m.list.Accessor {
		return nil, fmt.Errorf("%w: list %s on %s", datamodel.ErrUnknownProperty, m.list, rec.set.ID())
	}
	return rec, nil
}

func (m *listManager) Size() int {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	rec, ok := m.store.objects[m.list.Parent]
	if !ok {
		return 0
	}
	return len(rec.lists[m.list.Accessor])
}

func (m *listManager) Contains(key ObjectKey) bool {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	rec, ok := m.store.objects[key]
	return ok && rec.parent == m.list
}

func (m *listManager) Keys() []ObjectKey {
	m.store.mu.RLock()
	defer m.store.mu.RUnlock()
	rec, ok := m.store.objects[m.list.Parent]
	if !ok {
		return nil
	}
	return slices.Clone(rec.lists[m.list.Accessor])
}

func (m *listManager) CreateElement(ps *PropertySet, values map[*ScalarAccessor]any) (ObjectKey, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, err := m.parent()
	if err != nil {
		return ObjectKey{}, err
	}
	for acc, v := range values {
		if acc.ValueType() != datamodel.TypeReference {
			continue
		}
		if target, ok := v.(ObjectKey); ok && !target.IsZero() {
			if _, err := s.lookup(target); err != nil {
				return ObjectKey{}, fmt.Errorf("%w: %s refers to missing %s", datamodel.ErrReferenceViolation, acc.QualifiedName(), target)
			}
		}
	}
	rec := newRecord(datamodel.NewObjectKey(), ps, m.list)
	for acc, v := range values {
		rec.values[acc] = v
		s.linkRef(rec, acc)
	}
	s.objects[rec.key] = rec
	parent.lists[m.list.Accessor] = append(parent.lists[m.list.Accessor], rec.key)
	return rec.key, nil
}

func (m *listManager) Remove(key ObjectKey) (ObjectState, int, bool, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, err := m.parent()
	if err != nil {
		return ObjectState{}, -1, false, err
	}
	elements := parent.lists[m.list.Accessor]
	index := slices.Index(elements, key)
	if index < 0 {
		return ObjectState{}, -1, false, nil
	}

	keys := s.subtree(key)
	inside := make(map[ObjectKey]struct{}, len(keys))
	for _, k := range keys {
		inside[k] = struct{}{}
	}
	for _, k := range keys {
		for slot := range s.inbound[k] {
			if _, ok := inside[slot.from]; !ok {
				return ObjectState{}, -1, false, fmt.Errorf("%w: %s is referenced by %s via %s",
					datamodel.ErrReferenceViolation, k, slot.from, slot.acc.QualifiedName())
			}
		}
	}

	state := s.capture(key)
	for _, k := range keys {
		rec := s.objects[k]
		for acc := range rec.values {
			if acc.ValueType() == datamodel.TypeReference {
				s.unlinkRef(rec, acc)
			}
		}
		delete(s.objects, k)
	}
	parent.lists[m.list.Accessor] = slices.Delete(elements, index, index+1)
	return state, index, true, nil
}

func (m *listManager) Restore(state ObjectState, index int) error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, err := m.parent()
	if err != nil {
		return err
	}
	inside := make(map[ObjectKey]struct{})
	var conflict error
	state.Walk(func(st ObjectState) {
		inside[st.Key] = struct{}{}
		if _, exists := s.objects[st.Key]; exists && conflict == nil {
			conflict = fmt.Errorf("memory store: restore %s: object already exists", st.Key)
		}
	})
	if conflict != nil {
		return conflict
	}
	state.Walk(func(st ObjectState) {
		for acc, v := range st.Values {
			if acc.ValueType() != datamodel.TypeReference || conflict != nil {
				continue
			}
			target, _ := v.(ObjectKey)
			if target.IsZero() {
				continue
			}
			if _, ok := inside[target]; ok {
				continue
			}
			if _, ok := s.objects[target]; !ok {
				conflict = fmt.Errorf("%w: %s refers to missing %s", datamodel.ErrReferenceViolation, acc.QualifiedName(), target)
			}
		}
	})
	if conflict != nil {
		return conflict
	}

	s.insert(state, m.list)
	for k := range inside {
		rec := s.objects[k]
		for acc := range rec.values {
			s.linkRef(rec, acc)
		}
	}
	elements := parent.lists[m.list.Accessor]
	index = max(0, min(index, len(elements)))
	parent.lists[m.list.Accessor] = slices.Insert(elements, index, state.Key)
	return nil
}

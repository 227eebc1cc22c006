package memory

import (
	"encoding/json"
	"fmt"

	"ledgercore/internal/infra/persistence/snapshot"
	"ledgercore/pkg/datamodel"
)

// ExportState captures the whole store as a snapshot document.
func (s *Store) ExportState() (snapshot.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc := snapshot.Document{Version: snapshot.FormatVersion}
	if s.root.IsZero() {
		return doc, nil
	}
	doc.Root = s.root.String()
	for _, key := range s.subtree(s.root) {
		obj, err := exportRecord(s.objects[key])
		if err != nil {
			return snapshot.Document{}, err
		}
		doc.Objects = append(doc.Objects, obj)
	}
	return doc, nil
}

func exportRecord(rec *record) (snapshot.Object, error) {
	obj := snapshot.Object{Key: rec.key.String(), Set: rec.set.ID()}
	if !rec.parent.IsZero() {
		obj.Parent = rec.parent.Parent.String()
		obj.List = rec.parent.Accessor.QualifiedName()
	}
	// Registration order keeps documents stable across runs.
	for _, acc := range rec.set.ScalarAccessors() {
		v, ok := rec.values[acc]
		if !ok {
			continue
		}
		raw, err := acc.EncodeJSON(v)
		if err != nil {
			return snapshot.Object{}, fmt.Errorf("export %s: %w", rec.key, err)
		}
		if obj.Values == nil {
			obj.Values = make(map[string]json.RawMessage)
		}
		obj.Values[acc.QualifiedName()] = raw
	}
	return obj, nil
}

// ImportState replaces the store contents with doc. Set ids and property
// names are resolved against the store's registry; on error the store is
// left unchanged.
func (s *Store) ImportState(doc snapshot.Document) error {
	if s.registry == nil {
		return fmt.Errorf("memory store: import needs a registry")
	}
	fresh := NewStore(s.registry)
	if !doc.Empty() {
		if err := fresh.load(doc); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = fresh.root
	s.objects = fresh.objects
	s.inbound = fresh.inbound
	return nil
}

func (s *Store) load(doc snapshot.Document) error {
	root, err := datamodel.ParseObjectKey(doc.Root)
	if err != nil {
		return err
	}
	for i, obj := range doc.Objects {
		rec, err := s.importRecord(obj)
		if err != nil {
			return fmt.Errorf("import object %d: %w", i, err)
		}
		if rec.parent.IsZero() {
			if rec.key != root || !s.root.IsZero() {
				return fmt.Errorf("import object %d: unexpected root %s", i, rec.key)
			}
			s.root = rec.key
		} else {
			parent, ok := s.objects[rec.parent.Parent]
			if !ok {
				return fmt.Errorf("import object %d: parent %s not yet defined", i, rec.parent.Parent)
			}
			if acc, err := parent.set.ListAccessor(rec.parent.Accessor.Name()); err != nil || acc != rec.parent.Accessor {
				return fmt.Errorf("import object %d: %w: list %s on %s", i, datamodel.ErrUnknownProperty, rec.parent.Accessor.QualifiedName(), parent.set.ID())
			}
			parent.lists[rec.parent.Accessor] = append(parent.lists[rec.parent.Accessor], rec.key)
		}
		if _, dup := s.objects[rec.key]; dup {
			return fmt.Errorf("import object %d: duplicate key %s", i, rec.key)
		}
		s.objects[rec.key] = rec
	}
	if s.root.IsZero() {
		return fmt.Errorf("import: root %s missing", doc.Root)
	}
	for _, rec := range s.objects {
		for acc, v := range rec.values {
			if target, ok := v.(ObjectKey); ok && !target.IsZero() {
				if _, live := s.objects[target]; !live {
					return fmt.Errorf("%w: %s of %s refers to missing %s", datamodel.ErrReferenceViolation, acc.QualifiedName(), rec.key, target)
				}
			}
			s.linkRef(rec, acc)
		}
	}
	return nil
}

func (s *Store) importRecord(obj snapshot.Object) (*record, error) {
	key, err := datamodel.ParseObjectKey(obj.Key)
	if err != nil {
		return nil, err
	}
	ps, err := s.registry.PropertySet(obj.Set)
	if err != nil {
		return nil, err
	}
	var parent ListKey
	if obj.Parent != "" {
		parentKey, err := datamodel.ParseObjectKey(obj.Parent)
		if err != nil {
			return nil, err
		}
		acc, err := s.registry.Accessor(obj.List)
		if err != nil {
			return nil, err
		}
		list, ok := acc.(*ListAccessor)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a list property", datamodel.ErrUnknownProperty, obj.List)
		}
		if ps.IsAbstract() || ps.IsExtension() || !ps.IsDerivedFrom(list.Element()) {
			return nil, fmt.Errorf("%w: %s cannot be an element of %s", datamodel.ErrIncompatibleType, ps.ID(), obj.List)
		}
		parent = ListKey{Parent: parentKey, Accessor: list}
	}
	rec := newRecord(key, ps, parent)
	for name, raw := range obj.Values {
		acc, err := s.registry.Accessor(name)
		if err != nil {
			return nil, err
		}
		scalar, ok := acc.(*ScalarAccessor)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a scalar property", datamodel.ErrUnknownProperty, name)
		}
		if visible, err := ps.ScalarAccessor(scalar.Name()); err != nil || visible != scalar {
			return nil, fmt.Errorf("%w: %s on %s", datamodel.ErrUnknownProperty, name, ps.ID())
		}
		v, err := scalar.DecodeJSON(raw)
		if err != nil {
			return nil, err
		}
		rec.values[scalar] = v
	}
	return rec, nil
}

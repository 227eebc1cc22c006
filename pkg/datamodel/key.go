package datamodel

import (
	"fmt"

	"github.com/rs/xid"
)

// ObjectKey is the durable identity of an entity. Keys are comparable, remain
// valid across sessions and are resolved lazily by the datastore, so a key may
// be held before the object it names has been loaded.
type ObjectKey xid.ID

// NewObjectKey allocates a fresh key.
func NewObjectKey() ObjectKey {
	return ObjectKey(xid.New())
}

// ParseObjectKey decodes the textual form produced by String.
func ParseObjectKey(s string) (ObjectKey, error) {
	if s == "" {
		return ObjectKey{}, nil
	}
	id, err := xid.FromString(s)
	if err != nil {
		return ObjectKey{}, fmt.Errorf("parse object key %q: %w", s, err)
	}
	return ObjectKey(id), nil
}

// IsZero reports whether the key is unset.
func (k ObjectKey) IsZero() bool {
	return xid.ID(k).IsNil()
}

func (k ObjectKey) String() string {
	if k.IsZero() {
		return ""
	}
	return xid.ID(k).String()
}

// MarshalText implements encoding.TextMarshaler so keys can be used as JSON
// map keys in snapshots.
func (k ObjectKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ObjectKey) UnmarshalText(text []byte) error {
	parsed, err := ParseObjectKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalJSON encodes the zero key as null.
func (k ObjectKey) MarshalJSON() ([]byte, error) {
	if k.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + k.String() + `"`), nil
}

// UnmarshalJSON accepts null or a quoted key.
func (k *ObjectKey) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*k = ObjectKey{}
		return nil
	}
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("parse object key: invalid json %s", s)
	}
	return k.UnmarshalText([]byte(s[1 : len(s)-1]))
}

// ListKey identifies the list held by one list property of one parent object.
type ListKey struct {
	Parent   ObjectKey
	Accessor *ListAccessor
}

// IsZero reports whether the list key is unset (the owner of the root object).
func (l ListKey) IsZero() bool {
	return l.Parent.IsZero() && l.Accessor == nil
}

func (l ListKey) String() string {
	if l.Accessor == nil {
		return l.Parent.String()
	}
	return l.Parent.String() + "/" + l.Accessor.QualifiedName()
}

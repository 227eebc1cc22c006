package datamodel

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"
)

// PropertyAccessor describes one property of an entity type. Accessors are
// immutable once their property set has been registered.
type PropertyAccessor interface {
	// Name returns the local name, unique among the properties visible on
	// every entity carrying the owning set.
	Name() string
	// QualifiedName returns "<property set id>.<name>".
	QualifiedName() string
	PropertySet() *PropertySet
	Dependency() PropertyDependency
	isPropertyAccessor()
}

// PropertyDependency decides whether a property currently applies to an
// object, based on the object's other property values.
type PropertyDependency interface {
	IsApplicable(obj *ExtendableObject) bool
}

// DependencyFunc adapts a function to PropertyDependency.
type DependencyFunc func(obj *ExtendableObject) bool

// IsApplicable implements PropertyDependency.
func (f DependencyFunc) IsApplicable(obj *ExtendableObject) bool { return f(obj) }

// PropertyOption customises an accessor at declaration time.
type PropertyOption func(*accessorOptions)

type accessorOptions struct {
	dependency PropertyDependency
}

// WithDependency attaches an applicability predicate to the property.
func WithDependency(dep PropertyDependency) PropertyOption {
	return func(o *accessorOptions) { o.dependency = dep }
}

// ApplicableWhen is shorthand for WithDependency(DependencyFunc(fn)).
func ApplicableWhen(fn func(obj *ExtendableObject) bool) PropertyOption {
	return WithDependency(DependencyFunc(fn))
}

func applyOptions(opts []PropertyOption) accessorOptions {
	var o accessorOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// nilAccessor reports whether acc is nil or wraps a nil pointer.
func nilAccessor(acc PropertyAccessor) bool {
	switch a := acc.(type) {
	case nil:
		return true
	case *ScalarAccessor:
		return a == nil
	case *ListAccessor:
		return a == nil
	}
	return false
}

func accessorName(acc PropertyAccessor) string {
	if nilAccessor(acc) {
		return "<nil>"
	}
	return acc.QualifiedName()
}

// ScalarAccessor describes a single-valued property.
type ScalarAccessor struct {
	set        *PropertySet
	name       string
	valueType  ValueType
	def        any
	enumValues []string
	target     *PropertySet
	dependency PropertyDependency
}

func (a *ScalarAccessor) isPropertyAccessor() {}

// Name returns the local property name.
func (a *ScalarAccessor) Name() string { return a.name }

// QualifiedName returns the registry-wide property name.
func (a *ScalarAccessor) QualifiedName() string { return a.set.id + "." + a.name }

// PropertySet returns the set declaring the property.
func (a *ScalarAccessor) PropertySet() *PropertySet { return a.set }

// Dependency returns the applicability predicate, or nil.
func (a *ScalarAccessor) Dependency() PropertyDependency { return a.dependency }

// ValueType returns the value type tag.
func (a *ScalarAccessor) ValueType() ValueType { return a.valueType }

// Default returns the value read back when none has been stored.
func (a *ScalarAccessor) Default() any { return a.def }

// EnumValues returns the permitted values of an enum property.
func (a *ScalarAccessor) EnumValues() []string { return slices.Clone(a.enumValues) }

// ReferenceTarget returns the property set referenced by a reference property.
func (a *ScalarAccessor) ReferenceTarget() *PropertySet { return a.target }

// Validate checks that value may be stored in the property. Reference targets
// are checked by the owning object, which can resolve keys.
func (a *ScalarAccessor) Validate(value any) error {
	if !a.valueType.hasGoType(value) {
		return fmt.Errorf("%w: %s expects %s, got %T", ErrInvalidValue, a.QualifiedName(), a.valueType, value)
	}
	if a.valueType == TypeDouble {
		if f := value.(float64); math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: %s must be finite, got %v", ErrInvalidValue, a.QualifiedName(), f)
		}
	}
	if a.valueType == TypeEnum {
		s := value.(string)
		if !slices.Contains(a.enumValues, s) {
			return fmt.Errorf("%w: %q is not a value of %s", ErrInvalidValue, s, a.QualifiedName())
		}
	}
	return nil
}

// normalize canonicalises values that have more than one representation.
func (a *ScalarAccessor) normalize(value any) any {
	if a.valueType == TypeDate {
		return NormalizeDate(value.(time.Time))
	}
	return value
}

// EncodeJSON renders a stored value for a snapshot.
func (a *ScalarAccessor) EncodeJSON(value any) (json.RawMessage, error) {
	if err := a.Validate(value); err != nil {
		return nil, err
	}
	return json.Marshal(value)
}

// DecodeJSON parses a snapshot value into the Go type of the property.
func (a *ScalarAccessor) DecodeJSON(raw json.RawMessage) (any, error) {
	v, err := a.valueType.decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.QualifiedName(), err)
	}
	if err := a.Validate(v); err != nil {
		return nil, err
	}
	return v, nil
}

// ListAccessor describes a property holding an ordered list of child objects.
type ListAccessor struct {
	set        *PropertySet
	name       string
	element    *PropertySet
	dependency PropertyDependency
}

func (a *ListAccessor) isPropertyAccessor() {}

// Name returns the local property name.
func (a *ListAccessor) Name() string { return a.name }

// QualifiedName returns the registry-wide property name.
func (a *ListAccessor) QualifiedName() string { return a.set.id + "." + a.name }

// PropertySet returns the set declaring the property.
func (a *ListAccessor) PropertySet() *PropertySet { return a.set }

// Dependency returns the applicability predicate, or nil.
func (a *ListAccessor) Dependency() PropertyDependency { return a.dependency }

// Element returns the declared element set. Elements may be of any set
// derived from it.
func (a *ListAccessor) Element() *PropertySet { return a.element }

// Scalar is a typed handle on a scalar accessor. It is produced by the
// PropertySet builder methods and replaces name-based getter lookup.
type Scalar[T any] struct {
	acc *ScalarAccessor
}

// Accessor returns the untyped accessor.
func (s Scalar[T]) Accessor() *ScalarAccessor { return s.acc }

// Get reads the property from obj.
func (s Scalar[T]) Get(obj *ExtendableObject) (T, error) {
	var zero T
	v, err := obj.Get(s.acc)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s holds %T", ErrInvalidValue, s.acc.QualifiedName(), v)
	}
	return typed, nil
}

// Set writes the property on obj within an edit.
func (s Scalar[T]) Set(edit *Edit, obj *ExtendableObject, value T) error {
	return obj.Set(edit, s.acc, value)
}

// Reference is a typed handle on a reference accessor.
type Reference struct {
	Scalar[ObjectKey]
}

// Dereference resolves the referenced object, returning nil when unset.
func (r Reference) Dereference(obj *ExtendableObject) (*ExtendableObject, error) {
	return obj.Dereference(r.acc)
}

// SetObject points the reference at target, or clears it when target is nil.
func (r Reference) SetObject(edit *Edit, obj, target *ExtendableObject) error {
	var key ObjectKey
	if target != nil {
		key = target.Key()
	}
	return obj.Set(edit, r.acc, key)
}

// List is a typed handle on a list accessor.
type List struct {
	acc *ListAccessor
}

// Accessor returns the untyped accessor.
func (l List) Accessor() *ListAccessor { return l.acc }

// Of returns the collection held by obj.
func (l List) Of(obj *ExtendableObject) (*ObjectCollection, error) {
	return obj.List(l.acc)
}

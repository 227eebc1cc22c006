package datamodel

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// PropertySet is the schema of one entity type or of one extension. Properties
// keep their declaration order, which is also the order used for display and
// for positional initial values.
//
// Sets are built with NewPropertySet or NewExtensionPropertySet and the typed
// builder methods, then handed to a Registry. Declaration problems are kept
// and reported by Registry.Register.
type PropertySet struct {
	id        string
	base      *PropertySet
	extension bool
	abstract  bool

	own       []PropertyAccessor
	ownByName map[string]PropertyAccessor
	err       error

	registry   *Registry
	extensions []*PropertySet // registered directly on this set
	extends    *PropertySet   // for extensions: the set they are attached to
	derived    []*PropertySet

	// Resolved views, recomputed by the registry on every registration.
	visible       []PropertyAccessor
	visibleByName map[string]PropertyAccessor
	scalars       []*ScalarAccessor
	lists         []*ListAccessor
}

// NewPropertySet declares an entity type. base is nil for root types.
func NewPropertySet(id string, base *PropertySet) *PropertySet {
	ps := newPropertySet(id)
	ps.base = base
	if base != nil && base.extension {
		ps.fail(fmt.Errorf("%w: %s cannot derive from extension %s", ErrInvalidPropertySet, id, base.id))
	}
	return ps
}

// NewExtensionPropertySet declares a set of properties a plugin attaches to an
// existing entity type through Registry.RegisterExtension.
func NewExtensionPropertySet(id string) *PropertySet {
	ps := newPropertySet(id)
	ps.extension = true
	return ps
}

func newPropertySet(id string) *PropertySet {
	ps := &PropertySet{
		id:        id,
		ownByName: make(map[string]PropertyAccessor),
	}
	if id == "" || strings.ContainsAny(id, "./") {
		ps.fail(fmt.Errorf("%w: invalid id %q", ErrInvalidPropertySet, id))
	}
	return ps
}

func (ps *PropertySet) fail(err error) {
	if ps.err == nil {
		ps.err = err
	}
}

// Abstract marks the set as not directly instantiable. Only derived sets can
// be created in lists.
func (ps *PropertySet) Abstract() *PropertySet {
	ps.mustBeOpen()
	ps.abstract = true
	return ps
}

// ID returns the unique identifier of the set.
func (ps *PropertySet) ID() string { return ps.id }

// Base returns the set this one derives from, or nil.
func (ps *PropertySet) Base() *PropertySet { return ps.base }

// IsExtension reports whether the set is an extension property set.
func (ps *PropertySet) IsExtension() bool { return ps.extension }

// IsAbstract reports whether the set was marked abstract.
func (ps *PropertySet) IsAbstract() bool { return ps.abstract }

// Extends returns the set an extension is attached to, or nil.
func (ps *PropertySet) Extends() *PropertySet { return ps.extends }

// Registered reports whether the set has been accepted by a registry.
func (ps *PropertySet) Registered() bool { return ps.registry != nil }

// Err returns the first declaration error, if any.
func (ps *PropertySet) Err() error { return ps.err }

func setID(ps *PropertySet) string {
	if ps == nil {
		return "<nil>"
	}
	return ps.id
}

// OwnAccessors returns the properties declared directly on the set.
func (ps *PropertySet) OwnAccessors() []PropertyAccessor { return slices.Clone(ps.own) }

// Accessors returns every property visible on objects of this set: inherited
// ones first, each level followed by the extensions registered at that level.
func (ps *PropertySet) Accessors() []PropertyAccessor {
	if ps.visible == nil {
		return slices.Clone(ps.own)
	}
	return slices.Clone(ps.visible)
}

// ScalarAccessors returns the visible scalar properties in registration order.
func (ps *PropertySet) ScalarAccessors() []*ScalarAccessor { return slices.Clone(ps.scalars) }

// ListAccessors returns the visible list properties in registration order.
func (ps *PropertySet) ListAccessors() []*ListAccessor { return slices.Clone(ps.lists) }

// Accessor returns the visible property with the given local name.
func (ps *PropertySet) Accessor(name string) (PropertyAccessor, error) {
	lookup := ps.visibleByName
	if lookup == nil {
		lookup = ps.ownByName
	}
	acc, ok := lookup[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownProperty, ps.id, name)
	}
	return acc, nil
}

// ScalarAccessor returns the visible scalar property with the given name.
func (ps *PropertySet) ScalarAccessor(name string) (*ScalarAccessor, error) {
	acc, err := ps.Accessor(name)
	if err != nil {
		return nil, err
	}
	scalar, ok := acc.(*ScalarAccessor)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s is not a scalar property", ErrUnknownProperty, ps.id, name)
	}
	return scalar, nil
}

// ListAccessor returns the visible list property with the given name.
func (ps *PropertySet) ListAccessor(name string) (*ListAccessor, error) {
	acc, err := ps.Accessor(name)
	if err != nil {
		return nil, err
	}
	list, ok := acc.(*ListAccessor)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s is not a list property", ErrUnknownProperty, ps.id, name)
	}
	return list, nil
}

// Extensions returns the extension sets visible on objects of this set,
// including those registered on its ancestors.
func (ps *PropertySet) Extensions() []*PropertySet {
	var out []*PropertySet
	for _, level := range ps.chain() {
		out = append(out, level.extensions...)
	}
	return out
}

// Derived returns the sets registered with this one as their direct base.
func (ps *PropertySet) Derived() []*PropertySet { return slices.Clone(ps.derived) }

// IsDerivedFrom reports whether ps is other or inherits from it.
func (ps *PropertySet) IsDerivedFrom(other *PropertySet) bool {
	for cur := ps; cur != nil; cur = cur.base {
		if cur == other {
			return true
		}
	}
	return false
}

// hasAccessor reports whether acc is visible on objects of this set.
func (ps *PropertySet) hasAccessor(acc PropertyAccessor) bool {
	if nilAccessor(acc) {
		return false
	}
	owner := acc.PropertySet()
	if owner.extension {
		return owner.extends != nil && ps.IsDerivedFrom(owner.extends)
	}
	return ps.IsDerivedFrom(owner)
}

// chain returns the inheritance chain, root first.
func (ps *PropertySet) chain() []*PropertySet {
	var out []*PropertySet
	for cur := ps; cur != nil; cur = cur.base {
		out = append(out, cur)
	}
	slices.Reverse(out)
	return out
}

// descendants returns ps and every set deriving from it.
func (ps *PropertySet) descendants() []*PropertySet {
	out := []*PropertySet{ps}
	for i := 0; i < len(out); i++ {
		out = append(out, out[i].derived...)
	}
	return out
}

func (ps *PropertySet) mustBeOpen() {
	if ps.registry != nil {
		panic(fmt.Sprintf("datamodel: property set %s modified after registration", ps.id))
	}
}

func (ps *PropertySet) declare(acc PropertyAccessor) {
	ps.mustBeOpen()
	name := acc.Name()
	if name == "" || strings.ContainsAny(name, "./") {
		ps.fail(fmt.Errorf("%w: invalid property name %q in %s", ErrInvalidPropertySet, name, ps.id))
		return
	}
	if _, exists := ps.ownByName[name]; exists {
		ps.fail(fmt.Errorf("%w: %s.%s", ErrDuplicateProperty, ps.id, name))
		return
	}
	ps.own = append(ps.own, acc)
	ps.ownByName[name] = acc
}

func (ps *PropertySet) scalar(name string, t ValueType, def any, opts []PropertyOption) *ScalarAccessor {
	if !t.valid() {
		ps.fail(fmt.Errorf("%w: %s.%s has unknown value type %q", ErrInvalidPropertySet, ps.id, name, t))
	}
	if def == nil {
		def = t.zero()
	}
	o := applyOptions(opts)
	acc := &ScalarAccessor{
		set:        ps,
		name:       name,
		valueType:  t,
		def:        def,
		dependency: o.dependency,
	}
	ps.declare(acc)
	return acc
}

// Integer declares an int property.
func (ps *PropertySet) Integer(name string, def int, opts ...PropertyOption) Scalar[int] {
	return Scalar[int]{acc: ps.scalar(name, TypeInteger, def, opts)}
}

// Long declares an int64 property.
func (ps *PropertySet) Long(name string, def int64, opts ...PropertyOption) Scalar[int64] {
	return Scalar[int64]{acc: ps.scalar(name, TypeLong, def, opts)}
}

// String declares a string property.
func (ps *PropertySet) String(name string, def string, opts ...PropertyOption) Scalar[string] {
	return Scalar[string]{acc: ps.scalar(name, TypeString, def, opts)}
}

// Character declares a rune property.
func (ps *PropertySet) Character(name string, def rune, opts ...PropertyOption) Scalar[rune] {
	return Scalar[rune]{acc: ps.scalar(name, TypeCharacter, def, opts)}
}

// Date declares a date property defaulting to the zero time.
func (ps *PropertySet) Date(name string, opts ...PropertyOption) Scalar[time.Time] {
	return Scalar[time.Time]{acc: ps.scalar(name, TypeDate, time.Time{}, opts)}
}

// Money declares an amount property.
func (ps *PropertySet) Money(name string, def Money, opts ...PropertyOption) Scalar[Money] {
	return Scalar[Money]{acc: ps.scalar(name, TypeMoney, def, opts)}
}

// Double declares a float64 property.
func (ps *PropertySet) Double(name string, def float64, opts ...PropertyOption) Scalar[float64] {
	return Scalar[float64]{acc: ps.scalar(name, TypeDouble, def, opts)}
}

// Boolean declares a bool property.
func (ps *PropertySet) Boolean(name string, def bool, opts ...PropertyOption) Scalar[bool] {
	return Scalar[bool]{acc: ps.scalar(name, TypeBoolean, def, opts)}
}

// Enum declares a property restricted to values. An empty def selects the
// first value.
func (ps *PropertySet) Enum(name string, values []string, def string, opts ...PropertyOption) Scalar[string] {
	if def == "" && len(values) > 0 {
		def = values[0]
	}
	acc := ps.scalar(name, TypeEnum, def, opts)
	acc.enumValues = slices.Clone(values)
	if !slices.Contains(values, def) {
		ps.fail(fmt.Errorf("%w: default %q of %s.%s is not a declared value", ErrInvalidPropertySet, def, ps.id, name))
	}
	return Scalar[string]{acc: acc}
}

// Reference declares a property pointing at an object of target (or of a set
// derived from it).
func (ps *PropertySet) Reference(name string, target *PropertySet, opts ...PropertyOption) Reference {
	acc := ps.scalar(name, TypeReference, ObjectKey{}, opts)
	acc.target = target
	if target == nil || target.extension {
		ps.fail(fmt.Errorf("%w: reference %s.%s needs an entity target", ErrInvalidPropertySet, ps.id, name))
	}
	return Reference{Scalar[ObjectKey]{acc: acc}}
}

// List declares a property holding child objects of element.
func (ps *PropertySet) List(name string, element *PropertySet, opts ...PropertyOption) List {
	o := applyOptions(opts)
	acc := &ListAccessor{
		set:        ps,
		name:       name,
		element:    element,
		dependency: o.dependency,
	}
	if element == nil || element.extension {
		ps.fail(fmt.Errorf("%w: list %s.%s needs an entity element set", ErrInvalidPropertySet, ps.id, name))
	}
	ps.declare(acc)
	return List{acc: acc}
}

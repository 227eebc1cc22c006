package datamodel

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValueType tags the Go type held by a scalar property.
type ValueType string

// Supported scalar value types.
const (
	TypeInteger   ValueType = "integer"   // int
	TypeLong      ValueType = "long"      // int64
	TypeString    ValueType = "string"    // string
	TypeCharacter ValueType = "character" // rune
	TypeDate      ValueType = "date"      // time.Time at UTC midnight
	TypeMoney     ValueType = "money"     // Money
	TypeEnum      ValueType = "enum"      // string, one of the declared values
	TypeReference ValueType = "reference" // ObjectKey, zero key means unset
	TypeDouble    ValueType = "double"    // float64
	TypeBoolean   ValueType = "boolean"   // bool
)

// Money is an amount expressed in the minor unit of its commodity.
type Money int64

// Format renders the amount with the given number of decimal places.
func (m Money) Format(decimals int) string {
	if decimals <= 0 {
		return strconv.FormatInt(int64(m), 10)
	}
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	digits := strconv.FormatInt(v, 10)
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	cut := len(digits) - decimals
	return sign + digits[:cut] + "." + digits[cut:]
}

func (m Money) String() string { return m.Format(2) }

// NormalizeDate strips the time of day and location from t.
func NormalizeDate(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func (t ValueType) valid() bool {
	switch t {
	case TypeInteger, TypeLong, TypeString, TypeCharacter, TypeDate,
		TypeMoney, TypeEnum, TypeReference, TypeDouble, TypeBoolean:
		return true
	}
	return false
}

// zero returns the type default used when an accessor declares none.
func (t ValueType) zero() any {
	switch t {
	case TypeInteger:
		return 0
	case TypeLong:
		return int64(0)
	case TypeString, TypeEnum:
		return ""
	case TypeCharacter:
		return rune(0)
	case TypeDate:
		return time.Time{}
	case TypeMoney:
		return Money(0)
	case TypeReference:
		return ObjectKey{}
	case TypeDouble:
		return float64(0)
	case TypeBoolean:
		return false
	}
	return nil
}

// hasGoType reports whether v carries the Go type mapped to t.
func (t ValueType) hasGoType(v any) bool {
	switch t {
	case TypeInteger:
		_, ok := v.(int)
		return ok
	case TypeLong:
		_, ok := v.(int64)
		return ok
	case TypeString, TypeEnum:
		_, ok := v.(string)
		return ok
	case TypeCharacter:
		_, ok := v.(rune)
		return ok
	case TypeDate:
		_, ok := v.(time.Time)
		return ok
	case TypeMoney:
		_, ok := v.(Money)
		return ok
	case TypeReference:
		_, ok := v.(ObjectKey)
		return ok
	case TypeDouble:
		_, ok := v.(float64)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	}
	return false
}

func (t ValueType) decode(raw json.RawMessage) (any, error) {
	var (
		out any
		err error
	)
	switch t {
	case TypeInteger:
		var v int
		err = json.Unmarshal(raw, &v)
		out = v
	case TypeLong:
		var v int64
		err = json.Unmarshal(raw, &v)
		out = v
	case TypeString, TypeEnum:
		var v string
		err = json.Unmarshal(raw, &v)
		out = v
	case TypeCharacter:
		var v rune
		err = json.Unmarshal(raw, &v)
		out = v
	case TypeDate:
		var v time.Time
		err = json.Unmarshal(raw, &v)
		out = NormalizeDate(v)
	case TypeMoney:
		var v Money
		err = json.Unmarshal(raw, &v)
		out = v
	case TypeReference:
		var v ObjectKey
		err = json.Unmarshal(raw, &v)
		out = v
	case TypeDouble:
		var v float64
		err = json.Unmarshal(raw, &v)
		out = v
	case TypeBoolean:
		var v bool
		err = json.Unmarshal(raw, &v)
		out = v
	default:
		return nil, fmt.Errorf("%w: value type %q", ErrInvalidValue, t)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidValue, t, err)
	}
	return out, nil
}

// valuesEqual compares two validated scalar values.
func valuesEqual(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return a == b
}

package twin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnsupportedValue is returned when a JSON document is not a scalar.
var ErrUnsupportedValue = errors.New("twin: unsupported value")

// Kind identifies the dynamic type held by a Value.
type Kind uint8

// Value kinds.
const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a dynamically typed attribute value. The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a floating-point value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// FromAny converts a Go scalar into a Value. json.Number is split into Int
// or Float depending on its lexeme. It returns false for anything that is not
// a scalar.
func FromAny(v any) (Value, bool) {
	switch x := v.(type) {
	case nil:
		return Null(), true
	case Value:
		return x, true
	case bool:
		return Bool(x), true
	case int:
		return Int(int64(x)), true
	case int8:
		return Int(int64(x)), true
	case int16:
		return Int(int64(x)), true
	case int32:
		return Int(int64(x)), true
	case int64:
		return Int(x), true
	case uint8:
		return Int(int64(x)), true
	case uint16:
		return Int(int64(x)), true
	case uint32:
		return Int(int64(x)), true
	case float32:
		return Float(float64(x)), true
	case float64:
		return Float(x), true
	case string:
		return String(x), true
	case json.Number:
		return fromNumber(x)
	}
	return Value{}, false
}

func fromNumber(n json.Number) (Value, bool) {
	if i, err := n.Int64(); err == nil {
		return Int(i), true
	}
	f, err := n.Float64()
	if err != nil {
		return Value{}, false
	}
	return Float(f), true
}

// Kind returns the dynamic type of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer held by v.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsFloat returns the number held by v. Integers are widened.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	}
	return 0, false
}

// AsString returns the string held by v.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// Any returns v as a plain Go value (nil, bool, int64, float64 or string).
func (v Value) Any() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	}
	return nil
}

// Equal reports native equality: same kind and same value. Integers and
// floats compare numerically, so Int(1) equals Float(1.0).
func (v Value) Equal(o Value) bool {
	switch {
	case v.kind == o.kind:
		switch v.kind {
		case KindNull:
			return true
		case KindBool:
			return v.b == o.b
		case KindInt:
			return v.i == o.i
		case KindFloat:
			return v.f == o.f
		case KindString:
			return v.s == o.s
		}
	case v.kind == KindInt && o.kind == KindFloat:
		return intEqualsFloat(v.i, o.f)
	case v.kind == KindFloat && o.kind == KindInt:
		return intEqualsFloat(o.i, v.f)
	}
	return false
}

// intEqualsFloat compares exactly: f must be integral and inside the int64
// range. Converting i to float64 instead would round above 2^53.
func intEqualsFloat(i int64, f float64) bool {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return false
	}
	return int64(f) == i
}

// Text returns the textual form used by the cross-type comparison. Null has
// no textual form.
//
// Booleans print as "true"/"false", integers in base 10, floats in their
// shortest decimal form with ".0" appended to integral values, matching the
// remote service's double spelling.
func (v Value) Text() (string, bool) {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b), true
	case KindInt:
		return strconv.FormatInt(v.i, 10), true
	case KindFloat:
		return formatFloat(v.f), true
	case KindString:
		return v.s, true
	}
	return "", false
}

// String implements fmt.Stringer.
func (v Value) String() string {
	if t, ok := v.Text(); ok {
		return t
	}
	return "null"
}

// Same reports whether t and c are the same attribute value: natively equal,
// or both non-null with equal text.
func Same(t, c Value) bool {
	if t.Equal(c) {
		return true
	}
	tt, ok := t.Text()
	if !ok {
		return false
	}
	ct, ok := c.Text()
	if !ok {
		return false
	}
	return tt == ct
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	format := byte('f')
	if a := math.Abs(f); a != 0 && (a < 1e-3 || a >= 1e7) {
		format = 'E'
	}
	s := strconv.FormatFloat(f, format, -1, 64)
	if format == 'E' {
		mant, exp, _ := strings.Cut(s, "E")
		if !strings.Contains(mant, ".") {
			mant += ".0"
		}
		e, _ := strconv.Atoi(exp)
		return mant + "E" + strconv.Itoa(e)
	}
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// MarshalJSON encodes v as a JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return strconv.AppendBool(nil, v.b), nil
	case KindInt:
		return strconv.AppendInt(nil, v.i, 10), nil
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return nil, fmt.Errorf("%w: %s is not representable in JSON", ErrUnsupportedValue, formatFloat(v.f))
		}
		s := strconv.FormatFloat(v.f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return []byte(s), nil
	case KindString:
		return json.Marshal(v.s)
	}
	return nil, fmt.Errorf("%w: kind %s", ErrUnsupportedValue, v.kind)
}

// UnmarshalJSON decodes a JSON scalar. Numbers without a fraction or
// exponent that fit in 64 bits become Int, all other numbers become Float.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decoding value: %w", err)
	}
	parsed, ok := FromAny(raw)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedValue, raw)
	}
	*v = parsed
	return nil
}

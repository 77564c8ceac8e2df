package table

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Kind identifies the scalar type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a nullable scalar cell. The zero Value is null.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

// Null returns the missing-data value.
func Null() Value { return Value{} }

// Int wraps an integer.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float wraps a float. NaN is stored as null so it can never masquerade as data.
func Float(v float64) Value {
	if math.IsNaN(v) {
		return Null()
	}
	return Value{kind: KindFloat, f: v}
}

// String wraps a string.
func String(v string) Value { return Value{kind: KindString, s: v} }

// NullableString returns null for an empty string.
func NullableString(v string) Value {
	if v == "" {
		return Null()
	}
	return String(v)
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsInt returns the integer payload; floats are not narrowed.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i, true
}

// AsFloat returns the numeric payload, widening ints.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// AsString returns the string payload.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// Text renders the value for CSV style output; null renders empty.
func (v Value) Text() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case KindString:
		return v.s
	default:
		return ""
	}
}

func (v Value) String() string {
	if v.kind == KindNull {
		return "<null>"
	}
	if v.kind == KindString {
		return strconv.Quote(v.s)
	}
	return v.Text()
}

// Equal compares kind and payload exactly.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	default:
		return true
	}
}

// MarshalJSON keeps the kind recoverable: floats always carry a '.' or exponent.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return []byte(strconv.FormatInt(v.i, 10)), nil
	case KindFloat:
		if math.IsInf(v.f, 0) {
			return nil, errors.New("table: cannot encode infinite float")
		}
		s := strconv.FormatFloat(v.f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return []byte(s), nil
	case KindString:
		return json.Marshal(v.s)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Null()
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	}
	text := string(data)
	if !strings.ContainsAny(text, ".eE") {
		i, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "table: decode int %q", text)
		}
		*v = Int(i)
		return nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return errors.Wrapf(err, "table: decode float %q", text)
	}
	*v = Float(f)
	return nil
}

// ParseText infers a value from rendered text: empty is null, then int,
// then float, else string. Whole floats come back as ints.
func ParseText(s string) Value {
	if s == "" {
		return Null()
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Float(f)
	}
	return String(s)
}

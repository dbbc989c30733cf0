package jsbridge

import (
	"fmt"
	"math"
	"strings"
)

// Value is the tagged union exchanged across the boundary. The concrete
// variants are the types in this file plus *Callback, *AbortSignal and *Task.
type Value interface {
	isValue()
}

// Undefined is the JavaScript undefined value.
type Undefined struct{}

func (Undefined) isValue() {}

// Bool is a JavaScript boolean.
type Bool bool

func (Bool) isValue() {}

// Int is a JavaScript number known to hold an integer.
type Int int64

func (Int) isValue() {}

// Float is a JavaScript number.
type Float float64

func (Float) isValue() {}

// String is a UTF-8 string.
type String string

func (String) isValue() {}

// UTF16String is a string held as UTF-16 code units.
type UTF16String []uint16

func (UTF16String) isValue() {}

// String decodes the code units to UTF-8.
func (s UTF16String) String() string {
	str, err := decodeUTF16(s)
	if err != nil {
		return ""
	}
	return str
}

// Latin1String is a string held as ISO-8859-1 bytes.
type Latin1String []byte

func (Latin1String) isValue() {}

// String decodes the bytes to UTF-8.
func (s Latin1String) String() string {
	str, err := decodeLatin1(s)
	if err != nil {
		return ""
	}
	return str
}

// Buffer is a byte buffer. Encoding wraps the slice without copying it.
type Buffer []byte

func (Buffer) isValue() {}

// Sequence is an ordered list of values (a JavaScript Array).
type Sequence []Value

func (Sequence) isValue() {}

// Entry is one key/value pair of a Mapping.
type Entry struct {
	Key   string
	Value Value
}

// Mapping is an ordered set of key/value pairs (a plain JavaScript object).
// Keys are enumerated in entry order.
type Mapping []Entry

func (Mapping) isValue() {}

// Get returns the value stored under key.
func (m Mapping) Get(key string) (Value, bool) {
	for _, e := range m {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys in entry order.
func (m Mapping) Keys() []string {
	keys := make([]string, len(m))
	for i, e := range m {
		keys[i] = e.Key
	}
	return keys
}

// Set replaces the value under key, or appends a new entry.
func (m *Mapping) Set(key string, v Value) {
	for i, e := range *m {
		if e.Key == key {
			(*m)[i].Value = v
			return
		}
	}
	*m = append(*m, Entry{Key: key, Value: v})
}

// Optional is either some value or none. None encodes as null.
type Optional struct {
	value Value
}

func (Optional) isValue() {}

// Some wraps v as a present optional value.
func Some(v Value) Optional {
	if v == nil {
		v = Undefined{}
	}
	return Optional{value: v}
}

// None returns the absent optional value.
func None() Optional {
	return Optional{}
}

// Get returns the wrapped value and whether it is present.
func (o Optional) Get() (Value, bool) {
	return o.value, o.value != nil
}

// IsNone reports whether the optional is absent.
func (o Optional) IsNone() bool {
	return o.value == nil
}

// Either records which declared alternative a value matched.
type Either struct {
	Index int
	Value Value
}

func (Either) isValue() {}

// Object is a native Go value exposed as an instance of a registered class.
type Object struct {
	Class  *Class
	Native interface{}
}

func (Object) isValue() {}

// KindOf returns a short name for the variant held by v.
func KindOf(v Value) string {
	switch x := v.(type) {
	case nil, Undefined:
		return "Undefined"
	case Bool:
		return "Boolean"
	case Int, Float:
		return "Number"
	case String, UTF16String, Latin1String:
		return "String"
	case Buffer:
		return "Buffer"
	case Sequence:
		return "Array"
	case Mapping:
		return "Object"
	case Optional:
		if inner, ok := x.Get(); ok {
			return KindOf(inner)
		}
		return "Null"
	case Either:
		return KindOf(x.Value)
	case Object:
		if x.Class != nil {
			return x.Class.Name()
		}
		return "Object"
	case *Callback:
		return "Function"
	case *AbortSignal:
		return "AbortSignal"
	case *Task:
		return "Promise"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Inspect renders v for diagnostics.
func Inspect(v Value) string {
	var b strings.Builder
	inspect(&b, v)
	return b.String()
}

func inspect(b *strings.Builder, v Value) {
	switch x := v.(type) {
	case nil, Undefined:
		b.WriteString("undefined")
	case Bool, Int, Float:
		fmt.Fprint(b, x)
	case String:
		fmt.Fprintf(b, "%q", string(x))
	case UTF16String:
		fmt.Fprintf(b, "%q", x.String())
	case Latin1String:
		fmt.Fprintf(b, "%q", x.String())
	case Buffer:
		fmt.Fprintf(b, "<Buffer %x>", []byte(x))
	case Sequence:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			inspect(b, e)
		}
		b.WriteByte(']')
	case Mapping:
		b.WriteByte('{')
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(e.Key)
			b.WriteString(": ")
			inspect(b, e.Value)
		}
		b.WriteByte('}')
	case Optional:
		if inner, ok := x.Get(); ok {
			inspect(b, inner)
		} else {
			b.WriteString("null")
		}
	case Either:
		inspect(b, x.Value)
	default:
		b.WriteByte('[')
		b.WriteString(KindOf(v))
		b.WriteByte(']')
	}
}

// AsInt returns v as an integer. Floats are accepted when they hold an
// integral value.
func AsInt(v Value) (int64, bool) {
	switch x := unwrapValue(v).(type) {
	case Int:
		return int64(x), true
	case Float:
		f := float64(x)
		if f != math.Trunc(f) || math.IsInf(f, 0) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, false
		}
		return int64(f), true
	}
	return 0, false
}

// AsFloat returns v as a float.
func AsFloat(v Value) (float64, bool) {
	switch x := unwrapValue(v).(type) {
	case Int:
		return float64(x), true
	case Float:
		return float64(x), true
	}
	return 0, false
}

// AsString returns v as a UTF-8 string, decoding UTF-16 and Latin-1 variants.
func AsString(v Value) (string, bool) {
	switch x := unwrapValue(v).(type) {
	case String:
		return string(x), true
	case UTF16String:
		return x.String(), true
	case Latin1String:
		return x.String(), true
	}
	return "", false
}

// AsBool returns v as a boolean.
func AsBool(v Value) (bool, bool) {
	b, ok := unwrapValue(v).(Bool)
	return bool(b), ok
}

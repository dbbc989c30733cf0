// marshal.go
package jsbridge

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// Marshaler is the interface implemented by types that can marshal themselves into a Value.
type Marshaler interface {
	MarshalValue() (Value, error)
}

// Unmarshaler is the interface implemented by types that can unmarshal a Value into themselves.
type Unmarshaler interface {
	UnmarshalValue(v Value) error
}

var (
	valueInterface       = reflect.TypeOf((*Value)(nil)).Elem()
	marshalerInterface   = reflect.TypeOf((*Marshaler)(nil)).Elem()
	unmarshalerInterface = reflect.TypeOf((*Unmarshaler)(nil)).Elem()
)

// Marshal returns the Value encoding of v.
//
// Marshal uses the following type mappings:
//   - bool -> Bool
//   - signed and unsigned integers -> Int (uint64 above MaxInt64 -> Float)
//   - float32, float64 -> Float
//   - string -> String
//   - []byte -> Buffer
//   - slice/array -> Sequence (nil slice -> None)
//   - map -> Mapping with sorted keys (nil map -> None)
//   - struct -> Mapping in field declaration order
//   - pointer -> the pointed value (nil -> None)
//   - Value -> itself
//
// Struct fields are marshaled using their field names unless a tag is present.
// The "js" and "json" tags are supported; "-" skips the field and the
// "omitempty" option skips zero values.
//
// Types implementing Marshaler are marshaled using their MarshalValue method.
func Marshal(v interface{}) (Value, error) {
	if v == nil {
		return None(), nil
	}
	return marshal(reflect.ValueOf(v))
}

// Unmarshal stores val in the value pointed to by v. If v is nil or not a
// pointer, Unmarshal returns an error.
//
// Unmarshal uses the inverse of the encodings that Marshal uses, with the following additional rules:
//   - None and Undefined -> nil pointer or zero value
//   - Optional and Either -> their inner value
//   - Object -> its native value, when assignable
//   - UTF16String and Latin1String -> string
//
// When unmarshaling into an interface{}, Unmarshal stores one of:
//   - nil for None and Undefined
//   - bool, int64, float64, string, []byte
//   - []interface{} for Sequence
//   - map[string]interface{} for Mapping
//   - the native value for Object
//
// Types implementing Unmarshaler are unmarshaled using their UnmarshalValue method.
func Unmarshal(val Value, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("unmarshal target must be a non-nil pointer")
	}
	return unmarshal(val, rv.Elem())
}

func marshal(rv reflect.Value) (Value, error) {
	if !rv.IsValid() {
		return None(), nil
	}

	if rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return None(), nil
		}
		rv = rv.Elem()
	}

	if rv.CanInterface() {
		switch x := rv.Interface().(type) {
		case Value:
			return x, nil
		case Marshaler:
			if rv.Kind() == reflect.Ptr && rv.IsNil() {
				return None(), nil
			}
			return x.MarshalValue()
		}
	}

	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return None(), nil
		}
		return marshal(rv.Elem())

	case reflect.Bool:
		return Bool(rv.Bool()), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Float(float64(u)), nil
		}
		return Int(int64(u)), nil

	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil

	case reflect.String:
		return String(rv.String()), nil

	case reflect.Slice:
		if rv.IsNil() {
			return None(), nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return Buffer(rv.Bytes()), nil
		}
		return marshalSequence(rv)

	case reflect.Array:
		return marshalSequence(rv)

	case reflect.Map:
		if rv.IsNil() {
			return None(), nil
		}
		return marshalMap(rv)

	case reflect.Struct:
		return marshalStruct(rv)
	}

	return nil, fmt.Errorf("unsupported type: %v", rv.Type())
}

func marshalSequence(rv reflect.Value) (Value, error) {
	seq := make(Sequence, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		item, err := marshal(rv.Index(i))
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		seq[i] = item
	}
	return seq, nil
}

func marshalMap(rv reflect.Value) (Value, error) {
	keys := make([]string, 0, rv.Len())
	byKey := make(map[string]reflect.Value, rv.Len())

	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key()
		var ks string
		switch k.Kind() {
		case reflect.String:
			ks = k.String()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			ks = fmt.Sprint(k.Interface())
		default:
			return nil, fmt.Errorf("unsupported map key type: %v", k.Type())
		}
		keys = append(keys, ks)
		byKey[ks] = iter.Value()
	}
	sort.Strings(keys)

	m := make(Mapping, 0, len(keys))
	for _, k := range keys {
		item, err := marshal(byKey[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		m = append(m, Entry{Key: k, Value: item})
	}
	return m, nil
}

func marshalStruct(rv reflect.Value) (Value, error) {
	m := make(Mapping, 0, rv.NumField())
	if err := appendStructFields(&m, rv); err != nil {
		return nil, err
	}
	return m, nil
}

func appendStructFields(m *Mapping, rv reflect.Value) error {
	typ := rv.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}

		tag := parseFieldTag(field)
		if tag.skip {
			continue
		}

		fv := rv.Field(i)
		if field.Anonymous && tag.implicit && fv.Kind() == reflect.Struct {
			if err := appendStructFields(m, fv); err != nil {
				return err
			}
			continue
		}
		if tag.omitEmpty && fv.IsZero() {
			continue
		}

		item, err := marshal(fv)
		if err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
		*m = append(*m, Entry{Key: tag.name, Value: item})
	}
	return nil
}

type fieldTag struct {
	name      string
	skip      bool
	omitEmpty bool
	readOnly  bool
	implicit  bool // no name given in any tag
}

// parseFieldTag reads the "js" tag, falling back to "json".
func parseFieldTag(field reflect.StructField) fieldTag {
	raw, ok := field.Tag.Lookup("js")
	if !ok {
		raw, ok = field.Tag.Lookup("json")
	}
	if !ok || raw == "" {
		return fieldTag{name: field.Name, implicit: true}
	}
	if raw == "-" {
		return fieldTag{skip: true}
	}

	parts := strings.Split(raw, ",")
	tag := fieldTag{name: parts[0]}
	if tag.name == "" {
		tag.name = field.Name
		tag.implicit = true
	}
	for _, opt := range parts[1:] {
		switch opt {
		case "omitempty":
			tag.omitEmpty = true
		case "readonly":
			tag.readOnly = true
		}
	}
	return tag
}

func unwrapValue(val Value) Value {
	for {
		switch x := val.(type) {
		case Optional:
			inner, ok := x.Get()
			if !ok {
				return x
			}
			val = inner
		case Either:
			val = x.Value
		default:
			return val
		}
	}
}

func isNothing(val Value) bool {
	switch x := val.(type) {
	case nil, Undefined:
		return true
	case Optional:
		return x.IsNone()
	}
	return false
}

func unmarshal(val Value, rv reflect.Value) error {
	if rv.CanAddr() && rv.Addr().Type().Implements(unmarshalerInterface) {
		return rv.Addr().Interface().(Unmarshaler).UnmarshalValue(val)
	}

	if rv.Type() == valueInterface {
		if val == nil {
			val = Undefined{}
		}
		rv.Set(reflect.ValueOf(&val).Elem())
		return nil
	}

	val = unwrapValue(val)

	if rv.Kind() == reflect.Ptr {
		if isNothing(val) {
			rv.Set(reflect.Zero(rv.Type()))
			return nil
		}
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		if obj, ok := val.(Object); ok && obj.Native != nil && reflect.TypeOf(obj.Native).AssignableTo(rv.Type()) {
			rv.Set(reflect.ValueOf(obj.Native))
			return nil
		}
		return unmarshal(val, rv.Elem())
	}

	if rv.Kind() == reflect.Interface && rv.NumMethod() == 0 {
		goVal := toInterface(val)
		if goVal == nil {
			rv.Set(reflect.Zero(rv.Type()))
			return nil
		}
		rv.Set(reflect.ValueOf(goVal))
		return nil
	}

	if isNothing(val) {
		rv.Set(reflect.Zero(rv.Type()))
		return nil
	}

	if obj, ok := val.(Object); ok && obj.Native != nil {
		nv := reflect.ValueOf(obj.Native)
		if nv.Type().AssignableTo(rv.Type()) {
			rv.Set(nv)
			return nil
		}
		if nv.Kind() == reflect.Ptr && nv.Elem().Type().AssignableTo(rv.Type()) {
			rv.Set(nv.Elem())
			return nil
		}
	}

	if val != nil && reflect.TypeOf(val).AssignableTo(rv.Type()) {
		rv.Set(reflect.ValueOf(val))
		return nil
	}

	switch rv.Kind() {
	case reflect.Bool:
		b, ok := val.(Bool)
		if !ok {
			return mismatch("Boolean", val)
		}
		rv.SetBool(bool(b))
		return nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := AsInt(val)
		if !ok {
			return mismatch("Number", val)
		}
		if rv.OverflowInt(n) {
			return Errorf(InvalidArg, "value %d overflows %v", n, rv.Type())
		}
		rv.SetInt(n)
		return nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, ok := AsInt(val)
		if !ok {
			return mismatch("Number", val)
		}
		if n < 0 || rv.OverflowUint(uint64(n)) {
			return Errorf(InvalidArg, "value %d overflows %v", n, rv.Type())
		}
		rv.SetUint(uint64(n))
		return nil

	case reflect.Float32, reflect.Float64:
		f, ok := AsFloat(val)
		if !ok {
			return mismatch("Number", val)
		}
		rv.SetFloat(f)
		return nil

	case reflect.String:
		s, ok := AsString(val)
		if !ok {
			return mismatch("String", val)
		}
		rv.SetString(s)
		return nil

	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			if b, ok := val.(Buffer); ok {
				rv.SetBytes(append([]byte(nil), b...))
				return nil
			}
		}
		seq, ok := val.(Sequence)
		if !ok {
			return mismatch("Array", val)
		}
		out := reflect.MakeSlice(rv.Type(), len(seq), len(seq))
		for i, item := range seq {
			if err := unmarshal(item, out.Index(i)); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		rv.Set(out)
		return nil

	case reflect.Array:
		seq, ok := val.(Sequence)
		if !ok {
			return mismatch("Array", val)
		}
		for i := 0; i < rv.Len() && i < len(seq); i++ {
			if err := unmarshal(seq[i], rv.Index(i)); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		return nil

	case reflect.Map:
		m, ok := val.(Mapping)
		if !ok {
			return mismatch("Object", val)
		}
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("unsupported map key type: %v", rv.Type().Key())
		}
		out := reflect.MakeMapWithSize(rv.Type(), len(m))
		for _, e := range m {
			item := reflect.New(rv.Type().Elem()).Elem()
			if err := unmarshal(e.Value, item); err != nil {
				return fmt.Errorf("key %q: %w", e.Key, err)
			}
			out.SetMapIndex(reflect.ValueOf(e.Key).Convert(rv.Type().Key()), item)
		}
		rv.Set(out)
		return nil

	case reflect.Struct:
		m, ok := val.(Mapping)
		if !ok {
			return mismatch("Object", val)
		}
		return unmarshalStruct(m, rv)
	}

	return fmt.Errorf("unsupported type: %v", rv.Type())
}

func unmarshalStruct(m Mapping, rv reflect.Value) error {
	typ := rv.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := parseFieldTag(field)
		if tag.skip {
			continue
		}

		fv := rv.Field(i)
		if field.Anonymous && tag.implicit && fv.Kind() == reflect.Struct {
			if err := unmarshalStruct(m, fv); err != nil {
				return err
			}
			continue
		}

		item, ok := m.Get(tag.name)
		if !ok {
			continue
		}
		if err := unmarshal(item, fv); err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
	}
	return nil
}

func mismatch(expected string, val Value) error {
	return &TypeMismatch{Expected: expected, Actual: KindOf(val)}
}

func toInterface(val Value) interface{} {
	switch x := unwrapValue(val).(type) {
	case nil, Undefined:
		return nil
	case Optional:
		return nil
	case Bool:
		return bool(x)
	case Int:
		return int64(x)
	case Float:
		return float64(x)
	case String:
		return string(x)
	case UTF16String:
		return x.String()
	case Latin1String:
		return x.String()
	case Buffer:
		return []byte(x)
	case Sequence:
		out := make([]interface{}, len(x))
		for i, item := range x {
			out[i] = toInterface(item)
		}
		return out
	case Mapping:
		out := make(map[string]interface{}, len(x))
		for _, e := range x {
			out[e.Key] = toInterface(e.Value)
		}
		return out
	case Object:
		return x.Native
	default:
		return x
	}
}

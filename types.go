package jsbridge

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/dop251/goja"
)

// ValueType is the declared shape of a native parameter or field.
// Values crossing into Go are checked against it before native code sees them.
type ValueType interface {
	// Name is the display name used in mismatch messages.
	Name() string

	matches(r *Runtime, v goja.Value) bool
	decode(r *Runtime, v goja.Value) (Value, error)
}

type valueType struct {
	name  string
	match func(r *Runtime, v goja.Value) bool
	dec   func(r *Runtime, v goja.Value) (Value, error)
}

func (t *valueType) Name() string { return t.name }

func (t *valueType) matches(r *Runtime, v goja.Value) bool { return t.match(r, v) }

func (t *valueType) decode(r *Runtime, v goja.Value) (Value, error) {
	if !t.match(r, v) {
		return nil, &TypeMismatch{Expected: t.name, Actual: typeOf(v)}
	}
	return t.dec(r, v)
}

var (
	// AnyType accepts every value and decodes it structurally.
	AnyType ValueType = &valueType{
		name:  "Any",
		match: func(*Runtime, goja.Value) bool { return true },
		dec:   func(r *Runtime, v goja.Value) (Value, error) { return r.decodeAny(v, 0) },
	}

	UndefinedType ValueType = &valueType{
		name:  "Undefined",
		match: func(_ *Runtime, v goja.Value) bool { return v == nil || goja.IsUndefined(v) },
		dec:   func(*Runtime, goja.Value) (Value, error) { return Undefined{}, nil },
	}

	BooleanType ValueType = &valueType{
		name:  "Boolean",
		match: func(_ *Runtime, v goja.Value) bool { return typeOf(v) == "Boolean" },
		dec:   func(_ *Runtime, v goja.Value) (Value, error) { return Bool(v.ToBoolean()), nil },
	}

	NumberType ValueType = &valueType{
		name:  "Number",
		match: isNumber,
		dec:   func(_ *Runtime, v goja.Value) (Value, error) { return Float(v.ToFloat()), nil },
	}

	Float64Type ValueType = &valueType{
		name:  "Number",
		match: isNumber,
		dec:   func(_ *Runtime, v goja.Value) (Value, error) { return Float(v.ToFloat()), nil },
	}

	Int32Type  ValueType = integerType("Int32", math.MinInt32, math.MaxInt32)
	Uint32Type ValueType = integerType("Uint32", 0, math.MaxUint32)
	Int64Type  ValueType = integerType("Int64", math.MinInt64, math.MaxInt64)

	StringType ValueType = &valueType{
		name:  "String",
		match: isString,
		dec:   func(_ *Runtime, v goja.Value) (Value, error) { return String(v.String()), nil },
	}

	UTF16Type ValueType = &valueType{
		name:  "String",
		match: isString,
		dec: func(_ *Runtime, v goja.Value) (Value, error) {
			s, err := encodeUTF16(v.String())
			if err != nil {
				return nil, Errorf(StringExpected, "invalid UTF-16 string: %v", err)
			}
			return s, nil
		},
	}

	Latin1Type ValueType = &valueType{
		name:  "String",
		match: isString,
		dec: func(_ *Runtime, v goja.Value) (Value, error) {
			s, err := encodeLatin1(v.String())
			if err != nil {
				return nil, Errorf(StringExpected, "invalid Latin-1 string: %v", err)
			}
			return s, nil
		},
	}

	BufferType ValueType = &valueType{
		name:  "Buffer",
		match: func(_ *Runtime, v goja.Value) bool { _, ok := bufferBytes(v); return ok },
		dec: func(_ *Runtime, v goja.Value) (Value, error) {
			b, _ := bufferBytes(v)
			return Buffer(append([]byte(nil), b...)), nil
		},
	}

	FunctionType ValueType = &valueType{
		name:  "Function",
		match: func(_ *Runtime, v goja.Value) bool { return typeOf(v) == "Function" },
		dec:   func(r *Runtime, v goja.Value) (Value, error) { return r.newCallback(v) },
	}

	AbortSignalType ValueType = &valueType{
		name:  "AbortSignal",
		match: func(r *Runtime, v goja.Value) bool { return r.signalOf(v) != nil },
		dec:   func(r *Runtime, v goja.Value) (Value, error) { return r.signalOf(v), nil },
	}
)

func isNumber(_ *Runtime, v goja.Value) bool { return typeOf(v) == "Number" }

func isString(_ *Runtime, v goja.Value) bool { return typeOf(v) == "String" }

func isObject(v goja.Value) bool {
	obj, ok := v.(*goja.Object)
	if !ok {
		return false
	}
	_, fn := goja.AssertFunction(obj)
	return !fn
}

func integerType(kind string, min, max float64) ValueType {
	return &valueType{
		name:  "Number",
		match: isNumber,
		dec: func(_ *Runtime, v goja.Value) (Value, error) {
			if v.ExportType().Kind() == reflect.Int64 {
				n := v.ToInteger()
				if float64(n) < min || float64(n) > max {
					return nil, Errorf(InvalidArg, "value %d overflows %s", n, kind)
				}
				return Int(n), nil
			}

			f := v.ToFloat()
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, Errorf(InvalidArg, "value %v is not a finite %s", f, kind)
			}
			f = math.Trunc(f)
			if f < min || f >= max+1 {
				return nil, Errorf(InvalidArg, "value %v overflows %s", f, kind)
			}
			return Int(int64(f)), nil
		},
	}
}

// SequenceOf declares an array whose elements all have type elem.
func SequenceOf(elem ValueType) ValueType {
	return &valueType{
		name: "Array",
		match: func(_ *Runtime, v goja.Value) bool {
			obj, ok := v.(*goja.Object)
			return ok && obj.ClassName() == "Array"
		},
		dec: func(r *Runtime, v goja.Value) (Value, error) {
			obj := v.(*goja.Object)
			n := int(obj.Get("length").ToInteger())
			seq := make(Sequence, 0, n)
			for i := 0; i < n; i++ {
				item, err := elem.decode(r, obj.Get(fmt.Sprint(i)))
				if err != nil {
					return nil, err
				}
				seq = append(seq, item)
			}
			return seq, nil
		},
	}
}

// MappingOf declares a plain object whose own enumerable properties all have type elem.
func MappingOf(elem ValueType) ValueType {
	return &valueType{
		name:  "Object",
		match: func(_ *Runtime, v goja.Value) bool { return isObject(v) },
		dec: func(r *Runtime, v goja.Value) (Value, error) {
			obj := v.(*goja.Object)
			keys := obj.Keys()
			m := make(Mapping, 0, len(keys))
			for _, k := range keys {
				item, err := elem.decode(r, obj.Get(k))
				if err != nil {
					return nil, err
				}
				m = append(m, Entry{Key: k, Value: item})
			}
			return m, nil
		},
	}
}

// Field is one declared field of a struct shape.
type Field struct {
	Name string
	Type ValueType
}

// FieldOf declares a struct field.
func FieldOf(name string, t ValueType) Field {
	return Field{Name: name, Type: t}
}

// StructOf declares an object with the given fields. It decodes to a
// Mapping whose entries follow the field declaration order.
func StructOf(fields ...Field) ValueType {
	return &valueType{
		name:  "Object",
		match: func(_ *Runtime, v goja.Value) bool { return isObject(v) },
		dec: func(r *Runtime, v goja.Value) (Value, error) {
			obj := v.(*goja.Object)
			m := make(Mapping, 0, len(fields))
			for _, f := range fields {
				fv := obj.Get(f.Name)
				if (fv == nil || goja.IsUndefined(fv)) && !acceptsUndefined(r, f.Type) {
					return nil, Errorf(InvalidArg, "Missing field `%s`", f.Name)
				}
				item, err := f.Type.decode(r, fv)
				if err != nil {
					return nil, err
				}
				m = append(m, Entry{Key: f.Name, Value: item})
			}
			return m, nil
		},
	}
}

func acceptsUndefined(r *Runtime, t ValueType) bool {
	return t.matches(r, goja.Undefined())
}

// OptionalOf declares a value that may be null or undefined.
func OptionalOf(inner ValueType) ValueType {
	return &valueType{
		name: inner.Name(),
		match: func(r *Runtime, v goja.Value) bool {
			return !isPresent(v) || inner.matches(r, v)
		},
		dec: func(r *Runtime, v goja.Value) (Value, error) {
			if !isPresent(v) {
				return None(), nil
			}
			item, err := inner.decode(r, v)
			if err != nil {
				return nil, err
			}
			return Some(item), nil
		},
	}
}

// EitherOf declares a union. The first alternative whose shape matches wins,
// in declaration order.
func EitherOf(alts ...ValueType) ValueType {
	names := make([]string, len(alts))
	for i, a := range alts {
		names[i] = a.Name()
	}
	return &valueType{
		name: strings.Join(names, " | "),
		match: func(r *Runtime, v goja.Value) bool {
			for _, a := range alts {
				if a.matches(r, v) {
					return true
				}
			}
			return false
		},
		dec: func(r *Runtime, v goja.Value) (Value, error) {
			for i, a := range alts {
				if !a.matches(r, v) {
					continue
				}
				item, err := a.decode(r, v)
				if err != nil {
					return nil, err
				}
				return Either{Index: i, Value: item}, nil
			}
			return nil, &TypeMismatch{Expected: strings.Join(names, " | "), Actual: typeOf(v)}
		},
	}
}

// InstanceOf declares an instance of a registered class.
func InstanceOf(c *Class) ValueType {
	return &valueType{
		name: c.Name(),
		match: func(r *Runtime, v goja.Value) bool {
			inst := r.instanceOf(v)
			return inst != nil && inst.class == c
		},
		dec: func(r *Runtime, v goja.Value) (Value, error) {
			inst := r.instanceOf(v)
			return Object{Class: c, Native: inst.native}, nil
		},
	}
}

// EnumOf declares a numeric value that must be one of the enum's variants.
func EnumOf(e *Enum) ValueType {
	return &valueType{
		name:  "Number",
		match: isNumber,
		dec: func(_ *Runtime, v goja.Value) (Value, error) {
			n := v.ToFloat()
			if n != math.Trunc(n) || !e.has(int64(n)) {
				return nil, Errorf(InvalidArg, "value `%s` does not match any variant of enum `%s`", v.String(), e.Name())
			}
			return Int(int64(n)), nil
		},
	}
}

// typeOf returns the dynamic type name of a host value.
func typeOf(v goja.Value) string {
	switch {
	case v == nil || goja.IsUndefined(v):
		return "Undefined"
	case goja.IsNull(v):
		return "Null"
	}

	switch x := v.(type) {
	case *goja.Symbol:
		return "Symbol"
	case *goja.Object:
		if _, ok := goja.AssertFunction(x); ok {
			return "Function"
		}
		return "Object"
	}

	t := v.ExportType()
	if t == nil {
		return "Undefined"
	}
	switch t.Kind() {
	case reflect.Bool:
		return "Boolean"
	case reflect.Int64, reflect.Float64, reflect.Int, reflect.Int32, reflect.Uint32:
		return "Number"
	case reflect.String:
		return "String"
	case reflect.Ptr:
		return "BigInt"
	}
	return "Object"
}

// bufferBytes returns the memory backing a Uint8Array or ArrayBuffer.
func bufferBytes(v goja.Value) ([]byte, bool) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	switch x := obj.Export().(type) {
	case []byte:
		return x, true
	case goja.ArrayBuffer:
		return x.Bytes(), true
	}
	return nil, false
}

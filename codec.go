package jsbridge

import (
	"fmt"
	"reflect"

	"github.com/dop251/goja"
)

const maxDecodeDepth = 64

// Decode validates a host value against t and converts it to a Value.
// A nil t decodes structurally, like AnyType.
func (r *Runtime) Decode(v goja.Value, t ValueType) (Value, error) {
	if t == nil {
		t = AnyType
	}
	return t.decode(r, v)
}

// Encode converts a Value to a host value.
func (r *Runtime) Encode(v Value) (goja.Value, error) {
	switch x := v.(type) {
	case nil, Undefined:
		return goja.Undefined(), nil
	case Bool:
		return r.vm.ToValue(bool(x)), nil
	case Int:
		return r.vm.ToValue(int64(x)), nil
	case Float:
		return r.vm.ToValue(float64(x)), nil
	case String:
		return r.vm.ToValue(string(x)), nil
	case UTF16String:
		s, err := decodeUTF16(x)
		if err != nil {
			return nil, Errorf(StringExpected, "invalid UTF-16 string: %v", err)
		}
		return r.vm.ToValue(s), nil
	case Latin1String:
		s, err := decodeLatin1(x)
		if err != nil {
			return nil, Errorf(StringExpected, "invalid Latin-1 string: %v", err)
		}
		return r.vm.ToValue(s), nil
	case Buffer:
		return r.newUint8Array(x)
	case Sequence:
		items := make([]interface{}, len(x))
		for i, item := range x {
			hv, err := r.Encode(item)
			if err != nil {
				return nil, err
			}
			items[i] = hv
		}
		return r.vm.NewArray(items...), nil
	case Mapping:
		obj := r.vm.NewObject()
		for _, e := range x {
			hv, err := r.Encode(e.Value)
			if err != nil {
				return nil, err
			}
			if err := obj.Set(e.Key, hv); err != nil {
				return nil, err
			}
		}
		return obj, nil
	case Optional:
		inner, ok := x.Get()
		if !ok {
			return goja.Null(), nil
		}
		return r.Encode(inner)
	case Either:
		return r.Encode(x.Value)
	case Object:
		if x.Class == nil {
			return r.vm.ToValue(x.Native), nil
		}
		return x.Class.instantiate(r, x.Native)
	case *Callback:
		if x.rt != r {
			return nil, NewError(InvalidArg, "function belongs to another runtime")
		}
		return x.fn, nil
	case *AbortSignal:
		return r.signalObject(x), nil
	case *Task:
		if x.rt != r {
			return nil, NewError(InvalidArg, "task belongs to another runtime")
		}
		return x.promise, nil
	}
	return nil, Errorf(InvalidArg, "cannot encode %T", v)
}

func (r *Runtime) newUint8Array(b []byte) (goja.Value, error) {
	buf := r.vm.NewArrayBuffer(b)
	return r.vm.New(r.vm.Get("Uint8Array"), r.vm.ToValue(buf))
}

func (r *Runtime) decodeAny(v goja.Value, depth int) (Value, error) {
	if depth > maxDecodeDepth {
		return nil, NewError(InvalidArg, "value nesting is too deep")
	}

	switch typeOf(v) {
	case "Undefined":
		return Undefined{}, nil
	case "Null":
		return None(), nil
	case "Boolean":
		return Bool(v.ToBoolean()), nil
	case "Number":
		if v.ExportType().Kind() == reflect.Int64 {
			return Int(v.ToInteger()), nil
		}
		return Float(v.ToFloat()), nil
	case "String":
		return String(v.String()), nil
	case "BigInt":
		return Int(v.ToInteger()), nil
	case "Symbol":
		return nil, &TypeMismatch{Expected: "Any", Actual: "Symbol"}
	case "Function":
		return r.newCallback(v)
	}

	obj := v.(*goja.Object)
	if s := r.signalOf(obj); s != nil {
		return s, nil
	}
	if inst := r.instanceOf(obj); inst != nil {
		return Object{Class: inst.class, Native: inst.native}, nil
	}
	if b, ok := bufferBytes(obj); ok {
		return Buffer(append([]byte(nil), b...)), nil
	}

	if obj.ClassName() == "Array" {
		n := int(obj.Get("length").ToInteger())
		seq := make(Sequence, 0, n)
		for i := 0; i < n; i++ {
			item, err := r.decodeAny(obj.Get(fmt.Sprint(i)), depth+1)
			if err != nil {
				return nil, err
			}
			seq = append(seq, item)
		}
		return seq, nil
	}

	keys := obj.Keys()
	m := make(Mapping, 0, len(keys))
	for _, k := range keys {
		item, err := r.decodeAny(obj.Get(k), depth+1)
		if err != nil {
			return nil, err
		}
		m = append(m, Entry{Key: k, Value: item})
	}
	return m, nil
}

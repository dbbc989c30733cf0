// Package example builds the `native` demo module: a small surface that
// exercises every part of the bridge (numbers, strings, callbacks, enums,
// classes, objects, buffers, unions and abortable tasks).
package example

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	bridge "github.com/buke/jsbridge"
	jsoniter "github.com/json-iterator/go"
)

// ModuleName is the global and require() name of the module.
const ModuleName = "native"

// StringSuffix is appended by the concat* functions.
const StringSuffix = " + Go 🐹 string!"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind is the animal kind enum.
func Kind() *bridge.Enum {
	return bridge.NewEnum("Kind").Variant("Dog").Variant("Cat").Variant("Duck")
}

// CustomNumEnum is an enum with explicit and implicit values.
func CustomNumEnum() *bridge.Enum {
	return bridge.NewEnum("CustomNumEnum").
		VariantValue("One", 1).
		Variant("Two").
		VariantValue("Three", 3).
		Variant("Four").
		VariantValue("Six", 6).
		VariantValue("Eight", 8).
		Variant("Nine").
		Variant("Ten")
}

// Module returns the builder for the `native` module. Relative paths given
// to file functions resolve against root.
func Module(root string) *bridge.ModuleBuilder {
	kind := Kind()
	custom := CustomNumEnum()

	mb := bridge.NewModuleBuilder(ModuleName).
		Enum(kind).
		Enum(custom).
		Class(animalClass(kind)).
		Class(classWithFactory())

	addNumberFunctions(mb)
	addStringFunctions(mb)
	addCallbackFunctions(mb)
	addObjectFunctions(mb, root)
	addEitherFunctions(mb)
	addTaskFunctions(mb, root)

	mb.Function("enumToI32", []bridge.ValueType{bridge.EnumOf(custom)}, func(call *bridge.Call) (bridge.Value, error) {
		return call.Arg(0), nil
	})

	return mb
}

func addNumberFunctions(mb *bridge.ModuleBuilder) {
	u32 := []bridge.ValueType{bridge.Uint32Type, bridge.Uint32Type}

	mb.Function("add", u32, func(call *bridge.Call) (bridge.Value, error) {
		a, _ := bridge.AsInt(call.Arg(0))
		b, _ := bridge.AsInt(call.Arg(1))
		return bridge.Int(a + b), nil
	})

	mb.Function("fibonacci", []bridge.ValueType{bridge.Uint32Type}, func(call *bridge.Call) (bridge.Value, error) {
		n, _ := bridge.AsInt(call.Arg(0))
		return bridge.Int(fibonacci(n)), nil
	})

	mb.Function("getNums", nil, func(*bridge.Call) (bridge.Value, error) {
		return bridge.Sequence{bridge.Int(1), bridge.Int(1), bridge.Int(2), bridge.Int(3), bridge.Int(5), bridge.Int(8)}, nil
	})

	mb.Function("sumNums", []bridge.ValueType{bridge.SequenceOf(bridge.Uint32Type)}, func(call *bridge.Call) (bridge.Value, error) {
		var sum int64
		for _, v := range call.Arg(0).(bridge.Sequence) {
			n, _ := bridge.AsInt(v)
			sum += n
		}
		return bridge.Int(sum), nil
	})

	mb.Function("mapOption", []bridge.ValueType{bridge.OptionalOf(bridge.Uint32Type)}, func(call *bridge.Call) (bridge.Value, error) {
		v, ok := call.Arg(0).(bridge.Optional).Get()
		if !ok {
			return bridge.None(), nil
		}
		n, _ := bridge.AsInt(v)
		return bridge.Some(bridge.Int(n + 1)), nil
	})
}

func fibonacci(n int64) int64 {
	a, b := int64(0), int64(1)
	for i := int64(0); i < n; i++ {
		a, b = b, a+b
	}
	return a
}

func addStringFunctions(mb *bridge.ModuleBuilder) {
	mb.Function("contains", []bridge.ValueType{bridge.StringType, bridge.StringType}, func(call *bridge.Call) (bridge.Value, error) {
		source, _ := bridge.AsString(call.Arg(0))
		target, _ := bridge.AsString(call.Arg(1))
		return bridge.Bool(strings.Contains(source, target)), nil
	})

	mb.Function("concatStr", []bridge.ValueType{bridge.StringType}, func(call *bridge.Call) (bridge.Value, error) {
		s, _ := bridge.AsString(call.Arg(0))
		return bridge.String(s + StringSuffix), nil
	})

	mb.Function("concatLatin1", []bridge.ValueType{bridge.Latin1Type}, func(call *bridge.Call) (bridge.Value, error) {
		s := call.Arg(0).(bridge.Latin1String)
		return bridge.String(s.String() + StringSuffix), nil
	})

	mb.Function("concatUtf16", []bridge.ValueType{bridge.UTF16Type}, func(call *bridge.Call) (bridge.Value, error) {
		s := call.Arg(0).(bridge.UTF16String)
		out := make(bridge.UTF16String, 0, len(s)+len(StringSuffix))
		out = append(out, s...)
		out = append(out, bridge.NewUTF16String(StringSuffix)...)
		return out, nil
	})

	mb.Function("getWords", nil, func(*bridge.Call) (bridge.Value, error) {
		return bridge.Sequence{bridge.String("foo"), bridge.String("bar")}, nil
	})
}

func addCallbackFunctions(mb *bridge.ModuleBuilder) {
	mb.Function("getCwd", []bridge.ValueType{bridge.FunctionType}, func(call *bridge.Call) (bridge.Value, error) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		if _, err := call.Arg(0).(*bridge.Callback).Call(bridge.String(cwd)); err != nil {
			return nil, err
		}
		return bridge.Undefined{}, nil
	})

	mb.Function("readFile", []bridge.ValueType{bridge.FunctionType}, func(call *bridge.Call) (bridge.Value, error) {
		cb := call.Arg(0).(*bridge.Callback)
		if _, err := cb.Call(bridge.Undefined{}, bridge.String("hello world")); err != nil {
			return nil, err
		}
		return bridge.Undefined{}, nil
	})

	mb.Function("throwError", nil, func(*bridge.Call) (bridge.Value, error) {
		return nil, bridge.NewError(bridge.GenericFailure, "Manual Error")
	})
}

// PackageJSON is the subset of package.json returned by readPackageJson.
type PackageJSON struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Private         bool              `json:"private,omitempty"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// ReadPackageJSON parses root/package.json.
func ReadPackageJSON(root string) (*PackageJSON, error) {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return nil, err
	}
	var pkg PackageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, bridge.Errorf(bridge.InvalidArg, "invalid package.json: %v", err)
	}
	return &pkg, nil
}

func addObjectFunctions(mb *bridge.ModuleBuilder, root string) {
	mb.Function("listObjKeys", []bridge.ValueType{bridge.MappingOf(bridge.AnyType)}, func(call *bridge.Call) (bridge.Value, error) {
		keys := call.Arg(0).(bridge.Mapping).Keys()
		out := make(bridge.Sequence, len(keys))
		for i, k := range keys {
			out[i] = bridge.String(k)
		}
		return out, nil
	})

	mb.Function("createObj", nil, func(*bridge.Call) (bridge.Value, error) {
		var m bridge.Mapping
		m.Set("test", bridge.Int(1))
		return m, nil
	})

	mb.Function("readPackageJson", nil, func(*bridge.Call) (bridge.Value, error) {
		pkg, err := ReadPackageJSON(root)
		if err != nil {
			return nil, err
		}
		return bridge.Marshal(pkg)
	})

	name := bridge.StructOf(bridge.FieldOf("name", bridge.StringType))
	mb.Function("getPackageJsonName", []bridge.ValueType{name}, func(call *bridge.Call) (bridge.Value, error) {
		v, _ := call.Arg(0).(bridge.Mapping).Get("name")
		return v, nil
	})

	mb.Function("getBuffer", nil, func(*bridge.Call) (bridge.Value, error) {
		return bridge.Buffer("Hello world"), nil
	})
}

func addTaskFunctions(mb *bridge.ModuleBuilder, root string) {
	mb.Function("readFileAsync", []bridge.ValueType{bridge.StringType}, func(call *bridge.Call) (bridge.Value, error) {
		path, _ := bridge.AsString(call.Arg(0))
		if !filepath.IsAbs(path) {
			path = filepath.Join(root, path)
		}
		return call.Runtime().Spawn(func(context.Context) (bridge.Value, error) {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			return bridge.Buffer(data), nil
		}, bridge.WithTaskName("readFileAsync")), nil
	})

	mb.Function("withoutAbortController", []bridge.ValueType{bridge.Uint32Type, bridge.Uint32Type}, func(call *bridge.Call) (bridge.Value, error) {
		a, _ := bridge.AsInt(call.Arg(0))
		b, _ := bridge.AsInt(call.Arg(1))
		return call.Runtime().Spawn(addTask(a, b), bridge.WithTaskName("withoutAbortController")), nil
	})

	params := []bridge.ValueType{bridge.Uint32Type, bridge.Uint32Type, bridge.OptionalOf(bridge.AbortSignalType)}
	mb.Function("withAbortController", params, func(call *bridge.Call) (bridge.Value, error) {
		a, _ := bridge.AsInt(call.Arg(0))
		b, _ := bridge.AsInt(call.Arg(1))
		opts := []bridge.TaskOption{bridge.WithTaskName("withAbortController")}
		if v, ok := call.Arg(2).(bridge.Optional).Get(); ok {
			opts = append(opts, bridge.WithAbortSignal(v.(*bridge.AbortSignal)))
		}
		return call.Runtime().Spawn(addTask(a, b), opts...), nil
	})
}

func addTask(a, b int64) bridge.TaskFunc {
	return func(ctx context.Context) (bridge.Value, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return bridge.Int(a + b), nil
	}
}

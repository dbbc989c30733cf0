package example

import (
	"strconv"

	bridge "github.com/buke/jsbridge"
)

var (
	stringOrNumber = bridge.EitherOf(bridge.StringType, bridge.Uint32Type)
	either3Type    = bridge.EitherOf(bridge.StringType, bridge.Uint32Type, bridge.BooleanType)
	either4Type    = bridge.EitherOf(
		bridge.StringType,
		bridge.Uint32Type,
		bridge.BooleanType,
		bridge.StructOf(bridge.FieldOf("v", stringOrNumber)),
	)
)

// measure reduces a union member to a number: strings count their bytes,
// booleans are 1 or 0, objects recurse into their `v` field.
func measure(v bridge.Value) int64 {
	switch v := v.(type) {
	case bridge.Either:
		return measure(v.Value)
	case bridge.String:
		return int64(len(v))
	case bridge.Int:
		return int64(v)
	case bridge.Bool:
		if v {
			return 1
		}
		return 0
	case bridge.Mapping:
		inner, _ := v.Get("v")
		return measure(inner)
	}
	return 0
}

func addEitherFunctions(mb *bridge.ModuleBuilder) {
	mb.Function("eitherStringOrNumber", []bridge.ValueType{stringOrNumber}, func(call *bridge.Call) (bridge.Value, error) {
		return bridge.Int(measure(call.Arg(0))), nil
	})

	mb.Function("returnEither", []bridge.ValueType{bridge.Uint32Type}, func(call *bridge.Call) (bridge.Value, error) {
		n, _ := bridge.AsInt(call.Arg(0))
		if n > 10 {
			return bridge.Either{Index: 0, Value: bridge.String(strconv.FormatInt(n, 10))}, nil
		}
		return bridge.Either{Index: 1, Value: bridge.Int(n)}, nil
	})

	mb.Function("either3", []bridge.ValueType{either3Type}, func(call *bridge.Call) (bridge.Value, error) {
		return bridge.Int(measure(call.Arg(0))), nil
	})

	mb.Function("either4", []bridge.ValueType{either4Type}, func(call *bridge.Call) (bridge.Value, error) {
		return bridge.Int(measure(call.Arg(0))), nil
	})
}

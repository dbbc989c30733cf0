package example

import (
	"fmt"

	bridge "github.com/buke/jsbridge"
)

// Animal is the native state behind the Animal class.
type Animal struct {
	Kind int64
	Name string
}

func animalClass(kind *bridge.Enum) *bridge.ClassBuilder {
	kindType := bridge.EnumOf(kind)

	return bridge.NewClassBuilder("Animal").
		Constructor([]bridge.ValueType{kindType, bridge.StringType}, func(call *bridge.Call) (interface{}, error) {
			k, _ := bridge.AsInt(call.Arg(0))
			name, _ := bridge.AsString(call.Arg(1))
			return &Animal{Kind: k, Name: name}, nil
		}).
		Factory("withKind", []bridge.ValueType{kindType}, func(call *bridge.Call) (interface{}, error) {
			k, _ := bridge.AsInt(call.Arg(0))
			return &Animal{Kind: k, Name: "Default"}, nil
		}).
		Accessor("name", bridge.StringType,
			func(recv interface{}) (bridge.Value, error) {
				return bridge.String(recv.(*Animal).Name), nil
			},
			func(recv interface{}, v bridge.Value) error {
				recv.(*Animal).Name, _ = bridge.AsString(v)
				return nil
			}).
		Accessor("kind", bridge.NumberType,
			func(recv interface{}) (bridge.Value, error) {
				return bridge.Int(recv.(*Animal).Kind), nil
			}, nil).
		Method("whoami", nil, func(call *bridge.Call) (bridge.Value, error) {
			a := call.Receiver().(*Animal)
			k, ok := kind.VariantName(a.Kind)
			if !ok {
				return nil, bridge.Errorf(bridge.InvalidArg, "unknown kind %d", a.Kind)
			}
			return bridge.String(fmt.Sprintf("%s: %s", k, a.Name)), nil
		})
}

// ClassWithFactory is bound by reflection; its only constructor in scripts
// is usually the withName factory.
type ClassWithFactory struct {
	Name string `js:"name"`
}

// SetName replaces the name.
func (c *ClassWithFactory) SetName(name string) {
	c.Name = name
}

func classWithFactory() *bridge.ClassBuilder {
	builder, err := bridge.BindClassBuilder(&ClassWithFactory{})
	if err != nil {
		panic(err)
	}
	return builder.Factory("withName", []bridge.ValueType{bridge.StringType}, func(call *bridge.Call) (interface{}, error) {
		name, _ := bridge.AsString(call.Arg(0))
		return &ClassWithFactory{Name: name}, nil
	})
}

package jsbridge

import (
	"fmt"

	"github.com/dop251/goja"
)

// Variant is one named value of an Enum.
type Variant struct {
	Name  string
	Value int64
}

// Enum is a set of named integer constants exported as a read-only object.
type Enum struct {
	name     string
	variants []Variant
	next     int64
}

// NewEnum creates an empty enum.
func NewEnum(name string) *Enum {
	return &Enum{name: name}
}

// Name returns the enum name.
func (e *Enum) Name() string { return e.name }

// Variant adds a variant whose value follows the previous one (0 for the first).
func (e *Enum) Variant(name string) *Enum {
	return e.VariantValue(name, e.next)
}

// VariantValue adds a variant with an explicit value.
func (e *Enum) VariantValue(name string, value int64) *Enum {
	e.variants = append(e.variants, Variant{Name: name, Value: value})
	e.next = value + 1
	return e
}

// Variants returns the variants in declaration order.
func (e *Enum) Variants() []Variant {
	return append([]Variant(nil), e.variants...)
}

// Value returns the value of the named variant.
func (e *Enum) Value(name string) (int64, bool) {
	for _, v := range e.variants {
		if v.Name == name {
			return v.Value, true
		}
	}
	return 0, false
}

// VariantName returns the name of the variant holding value.
func (e *Enum) VariantName(value int64) (string, bool) {
	for _, v := range e.variants {
		if v.Value == value {
			return v.Name, true
		}
	}
	return "", false
}

func (e *Enum) has(value int64) bool {
	_, ok := e.VariantName(value)
	return ok
}

// Build creates the frozen export object for the enum.
func (e *Enum) Build(r *Runtime) (*goja.Object, error) {
	seen := make(map[string]bool, len(e.variants))
	obj := r.vm.NewObject()
	for _, v := range e.variants {
		if seen[v.Name] {
			return nil, fmt.Errorf("enum %s: duplicate variant %s", e.name, v.Name)
		}
		seen[v.Name] = true
		if err := obj.DefineDataProperty(v.Name, r.vm.ToValue(v.Value), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return nil, err
		}
	}
	if err := freeze(r, obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func freeze(r *Runtime, obj *goja.Object) error {
	objectCtor, ok := r.vm.Get("Object").(*goja.Object)
	if !ok {
		return nil
	}
	fn, ok := goja.AssertFunction(objectCtor.Get("freeze"))
	if !ok {
		return nil
	}
	_, err := fn(objectCtor, obj)
	return err
}

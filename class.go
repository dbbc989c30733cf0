package jsbridge

import (
	"errors"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// =============================================================================
// CLASS-RELATED FUNCTION TYPES
// =============================================================================

// ClassConstructorFunc creates the native value behind a new instance.
// Arguments have been decoded against the constructor's parameter types.
// Return a pointer so accessors and methods share one native value.
type ClassConstructorFunc func(call *Call) (interface{}, error)

// ClassMethodFunc implements an instance or static method.
// For instance methods call.Receiver() is the instance's native value.
type ClassMethodFunc func(call *Call) (Value, error)

// ClassGetterFunc reads an accessor from the native receiver
// (nil for static accessors).
type ClassGetterFunc func(receiver interface{}) (Value, error)

// ClassSetterFunc writes an accessor on the native receiver.
type ClassSetterFunc func(receiver interface{}, v Value) error

// =============================================================================
// CLASS BINDING CONFIGURATION STRUCTURES
// =============================================================================

// MethodEntry represents a method binding configuration
type MethodEntry struct {
	Name   string          // Method name in JavaScript
	Params []ValueType     // Declared parameter types, nil accepts any arguments
	Func   ClassMethodFunc // Method implementation function
	Static bool            // true for static methods, false for instance methods
}

// AccessorEntry represents an accessor binding configuration
type AccessorEntry struct {
	Name   string          // Accessor name in JavaScript
	Type   ValueType       // Type of assigned values, nil accepts any value
	Getter ClassGetterFunc // Optional getter function
	Setter ClassSetterFunc // Optional setter function
	Static bool            // true for static accessors, false for instance accessors
}

// PropertyEntry represents a property binding configuration
type PropertyEntry struct {
	Name   string // Property name in JavaScript
	Value  Value  // Property value
	Static bool   // true for static properties, false for instance properties
	Flags  int    // Property flags (writable, enumerable, configurable)
}

// FactoryEntry represents a static function that builds instances
type FactoryEntry struct {
	Name   string
	Params []ValueType
	Func   ClassConstructorFunc
}

// =============================================================================
// PROPERTY FLAGS CONSTANTS
// =============================================================================

const (
	PropertyConfigurable = 1 << 0
	PropertyWritable     = 1 << 1
	PropertyEnumerable   = 1 << 2

	// Default property flags (writable, enumerable, configurable)
	PropertyDefault = PropertyConfigurable | PropertyWritable | PropertyEnumerable
)

func flag(flags, bit int) goja.Flag {
	if flags&bit != 0 {
		return goja.FLAG_TRUE
	}
	return goja.FLAG_FALSE
}

// =============================================================================
// CLASS BUILDER - FLUENT API FOR BUILDING JAVASCRIPT CLASSES
// =============================================================================

// ClassBuilder provides a fluent API for building JavaScript classes.
type ClassBuilder struct {
	name        string
	ctorParams  []ValueType
	constructor ClassConstructorFunc
	methods     []MethodEntry
	accessors   []AccessorEntry
	properties  []PropertyEntry
	factories   []FactoryEntry
}

// NewClassBuilder creates a new ClassBuilder with the specified name.
func NewClassBuilder(name string) *ClassBuilder {
	return &ClassBuilder{name: name}
}

// Name returns the class name.
func (cb *ClassBuilder) Name() string { return cb.name }

// Constructor sets the constructor. A class without one can still produce
// instances through factories, but `new` throws.
func (cb *ClassBuilder) Constructor(params []ValueType, fn ClassConstructorFunc) *ClassBuilder {
	cb.ctorParams = params
	cb.constructor = fn
	return cb
}

// Method adds an instance method to the class.
func (cb *ClassBuilder) Method(name string, params []ValueType, fn ClassMethodFunc) *ClassBuilder {
	cb.methods = append(cb.methods, MethodEntry{Name: name, Params: params, Func: fn})
	return cb
}

// StaticMethod adds a method to the constructor function itself.
func (cb *ClassBuilder) StaticMethod(name string, params []ValueType, fn ClassMethodFunc) *ClassBuilder {
	cb.methods = append(cb.methods, MethodEntry{Name: name, Params: params, Func: fn, Static: true})
	return cb
}

// Accessor adds an instance accessor. Pass nil for setter to create a
// read-only accessor.
func (cb *ClassBuilder) Accessor(name string, t ValueType, getter ClassGetterFunc, setter ClassSetterFunc) *ClassBuilder {
	cb.accessors = append(cb.accessors, AccessorEntry{Name: name, Type: t, Getter: getter, Setter: setter})
	return cb
}

// StaticAccessor adds an accessor to the constructor function.
func (cb *ClassBuilder) StaticAccessor(name string, t ValueType, getter ClassGetterFunc, setter ClassSetterFunc) *ClassBuilder {
	cb.accessors = append(cb.accessors, AccessorEntry{Name: name, Type: t, Getter: getter, Setter: setter, Static: true})
	return cb
}

// Property adds a data property to every instance.
// Default flags: writable, enumerable, configurable
func (cb *ClassBuilder) Property(name string, value Value, flags ...int) *ClassBuilder {
	cb.properties = append(cb.properties, PropertyEntry{Name: name, Value: value, Flags: propertyFlags(flags)})
	return cb
}

// StaticProperty adds a data property to the constructor function.
// Default flags: writable, enumerable, configurable
func (cb *ClassBuilder) StaticProperty(name string, value Value, flags ...int) *ClassBuilder {
	cb.properties = append(cb.properties, PropertyEntry{Name: name, Value: value, Static: true, Flags: propertyFlags(flags)})
	return cb
}

// Factory adds a static function that builds an instance without `new`.
func (cb *ClassBuilder) Factory(name string, params []ValueType, fn ClassConstructorFunc) *ClassBuilder {
	cb.factories = append(cb.factories, FactoryEntry{Name: name, Params: params, Func: fn})
	return cb
}

func propertyFlags(flags []int) int {
	if len(flags) > 0 {
		return flags[0]
	}
	return PropertyDefault
}

// Build creates the class in the given runtime.
func (cb *ClassBuilder) Build(r *Runtime) (*Class, error) {
	return r.createClass(cb)
}

// =============================================================================
// CLASS
// =============================================================================

// Class is a JavaScript class backed by native values.
type Class struct {
	name   string
	rt     *Runtime
	ctor   *goja.Object
	proto  *goja.Object
	props  []PropertyEntry
	logger *zap.Logger
}

// instance is stored in a hidden slot of every object the class creates.
type instance struct {
	class  *Class
	native interface{}
}

// Name returns the class name.
func (c *Class) Name() string { return c.name }

// Constructor returns the JavaScript constructor function.
func (c *Class) Constructor() *goja.Object { return c.ctor }

// Prototype returns the prototype shared by instances.
func (c *Class) Prototype() *goja.Object { return c.proto }

// Wrap returns native as an instance value of this class. Encoding it
// creates an object that behaves like one built with `new`.
func (c *Class) Wrap(native interface{}) Object {
	return Object{Class: c, Native: native}
}

// New constructs an instance by calling the JavaScript constructor.
func (c *Class) New(args ...Value) (goja.Value, error) {
	hargs := make([]goja.Value, len(args))
	for i, a := range args {
		hv, err := c.rt.Encode(a)
		if err != nil {
			return nil, err
		}
		hargs[i] = hv
	}
	obj, err := c.rt.vm.New(c.ctor, hargs...)
	if err != nil {
		return nil, c.rt.failureFromError(err)
	}
	return obj, nil
}

// Unwrap returns the native value behind an instance of this class.
func (c *Class) Unwrap(v goja.Value) (interface{}, bool) {
	inst := c.rt.instanceOf(v)
	if inst == nil || inst.class != c {
		return nil, false
	}
	return inst.native, true
}

func (c *Class) instantiate(r *Runtime, native interface{}) (goja.Value, error) {
	if r != c.rt {
		return nil, Errorf(InvalidArg, "class %s belongs to another runtime", c.name)
	}
	obj := r.vm.CreateObject(c.proto)
	if err := c.attach(obj, native); err != nil {
		return nil, err
	}
	return obj, nil
}

// attach binds native to obj and defines the per-instance properties.
func (c *Class) attach(obj *goja.Object, native interface{}) error {
	r := c.rt
	slot := r.vm.ToValue(&instance{class: c, native: native})
	if err := obj.DefineDataPropertySymbol(r.instanceKey, slot, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
		return err
	}
	for _, p := range c.props {
		hv, err := r.Encode(p.Value)
		if err != nil {
			return err
		}
		if err := obj.DefineDataProperty(p.Name, hv,
			flag(p.Flags, PropertyWritable), flag(p.Flags, PropertyConfigurable), flag(p.Flags, PropertyEnumerable)); err != nil {
			return err
		}
	}
	return nil
}

// instanceOf returns the native binding of a class instance, or nil.
func (r *Runtime) instanceOf(v goja.Value) *instance {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	slot := obj.GetSymbol(r.instanceKey)
	if slot == nil {
		return nil
	}
	inst, _ := slot.Export().(*instance)
	return inst
}

// receiver returns the native value of this, throwing when this is not an
// instance of c.
func (c *Class) receiver(this goja.Value) interface{} {
	inst := c.rt.instanceOf(this)
	if inst == nil || inst.class != c {
		c.rt.throw(&TypeMismatch{Expected: c.name, Actual: typeOf(this)})
	}
	return inst.native
}

// =============================================================================
// CLASS CREATION IMPLEMENTATION
// =============================================================================

func validateClassBuilder(builder *ClassBuilder) error {
	if builder.name == "" {
		return errors.New("class name is required")
	}
	return nil
}

func (r *Runtime) createClass(builder *ClassBuilder) (*Class, error) {
	if err := validateClassBuilder(builder); err != nil {
		return nil, err
	}

	c := &Class{
		name:   builder.name,
		rt:     r,
		logger: r.logger.Named("class").With(zap.String("class", builder.name)),
	}

	ctor := r.vm.ToValue(func(cc goja.ConstructorCall) *goja.Object {
		if builder.constructor == nil {
			r.throw(NewError(GenericFailure, "Class contains no `constructor`, can not new it!"))
		}
		call, err := r.decodeArgs(cc.This, cc.Arguments, builder.ctorParams)
		if err != nil {
			r.throw(err)
		}
		native, err := builder.constructor(call)
		if err != nil {
			r.throw(err)
		}
		if err := c.attach(cc.This, native); err != nil {
			r.throw(err)
		}
		return nil
	}).(*goja.Object)
	setFunctionName(r.vm, ctor, builder.name, len(builder.ctorParams))

	proto, ok := ctor.Get("prototype").(*goja.Object)
	if !ok {
		proto = r.vm.NewObject()
		if err := ctor.DefineDataProperty("prototype", proto, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
			return nil, err
		}
		_ = proto.DefineDataProperty("constructor", ctor, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	}
	c.ctor = ctor
	c.proto = proto

	for _, m := range builder.methods {
		if err := c.bindMethod(m); err != nil {
			return nil, err
		}
	}

	for _, a := range builder.accessors {
		if err := c.bindAccessor(a); err != nil {
			return nil, err
		}
	}

	for _, p := range builder.properties {
		if !p.Static {
			c.props = append(c.props, p)
			continue
		}
		hv, err := r.Encode(p.Value)
		if err != nil {
			return nil, err
		}
		if err := ctor.DefineDataProperty(p.Name, hv,
			flag(p.Flags, PropertyWritable), flag(p.Flags, PropertyConfigurable), flag(p.Flags, PropertyEnumerable)); err != nil {
			return nil, err
		}
	}

	for _, f := range builder.factories {
		f := f
		fn := r.Function(f.Name, f.Params, func(call *Call) (Value, error) {
			native, err := f.Func(call)
			if err != nil {
				return nil, err
			}
			return c.Wrap(native), nil
		})
		if err := ctor.DefineDataProperty(f.Name, fn, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
			return nil, err
		}
	}

	c.logger.Debug("class created",
		zap.Int("methods", len(builder.methods)),
		zap.Int("accessors", len(builder.accessors)),
		zap.Int("factories", len(builder.factories)))
	return c, nil
}

func (c *Class) bindMethod(m MethodEntry) error {
	r := c.rt
	target := c.proto
	if m.Static {
		target = c.ctor
	}

	fn := r.vm.ToValue(func(fc goja.FunctionCall) goja.Value {
		var native interface{}
		if !m.Static {
			native = c.receiver(fc.This)
		}
		call, err := r.decodeArgs(fc.This, fc.Arguments, m.Params)
		if err != nil {
			r.throw(err)
		}
		call.receiver = native
		return r.complete(m.Func(call))
	})
	setFunctionName(r.vm, fn, m.Name, len(m.Params))

	return target.DefineDataProperty(m.Name, fn, goja.FLAG_TRUE, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

func (c *Class) bindAccessor(a AccessorEntry) error {
	r := c.rt
	target := c.proto
	if a.Static {
		target = c.ctor
	}

	native := func(this goja.Value) interface{} {
		if a.Static {
			return nil
		}
		return c.receiver(this)
	}

	var getter, setter goja.Value
	if a.Getter != nil {
		getter = r.vm.ToValue(func(fc goja.FunctionCall) goja.Value {
			return r.complete(a.Getter(native(fc.This)))
		})
	}
	if a.Setter != nil {
		t := a.Type
		if t == nil {
			t = AnyType
		}
		setter = r.vm.ToValue(func(fc goja.FunctionCall) goja.Value {
			recv := native(fc.This)
			v, err := t.decode(r, fc.Argument(0))
			if err != nil {
				r.throw(err)
			}
			if err := a.Setter(recv, v); err != nil {
				r.throw(err)
			}
			return goja.Undefined()
		})
	}

	return target.DefineAccessorProperty(a.Name, getter, setter, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

package jsbridge

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"
)

// =============================================================================
// REFLECTION-BASED AUTO BINDING
// =============================================================================

// ReflectOptions configures automatic class binding behavior
type ReflectOptions struct {
	// ClassName overrides the class name (default: the struct type name)
	ClassName string

	// MethodPrefix filters methods by prefix (empty = all methods)
	MethodPrefix string

	// IgnoredMethods lists Go method names to skip during binding
	IgnoredMethods []string

	// IgnoredFields lists Go field names to skip during binding
	IgnoredFields []string
}

// ReflectOption configures ReflectOptions using functional options pattern
type ReflectOption func(*ReflectOptions)

// WithClassName sets the JavaScript class name.
func WithClassName(name string) ReflectOption {
	return func(opts *ReflectOptions) {
		opts.ClassName = name
	}
}

// WithMethodPrefix filters methods by name prefix
func WithMethodPrefix(prefix string) ReflectOption {
	return func(opts *ReflectOptions) {
		opts.MethodPrefix = prefix
	}
}

// WithIgnoredMethods specifies method names to skip during binding
func WithIgnoredMethods(methods ...string) ReflectOption {
	return func(opts *ReflectOptions) {
		opts.IgnoredMethods = append(opts.IgnoredMethods, methods...)
	}
}

// WithIgnoredFields specifies field names to skip during binding
func WithIgnoredFields(fields ...string) ReflectOption {
	return func(opts *ReflectOptions) {
		opts.IgnoredFields = append(opts.IgnoredFields, fields...)
	}
}

// BindClass creates a class from a Go struct type using reflection.
// This is a convenience method that combines BindClassBuilder and Build.
//
// Example usage:
//
//	class, err := jsbridge.BindClass(rt, &MyStruct{})
//	if err != nil { return err }
//	rt.Set("MyStruct", class.Constructor())
func BindClass(r *Runtime, structType interface{}, options ...ReflectOption) (*Class, error) {
	builder, err := BindClassBuilder(structType, options...)
	if err != nil {
		return nil, err
	}
	return builder.Build(r)
}

// BindClassBuilder creates a ClassBuilder from a Go struct type using reflection.
// Returns a ClassBuilder that can be further customized before Build.
//
// Exported fields become accessors (tag `js:"name,readonly"`, "-" skips).
// Exported methods with pointer receivers become methods named in camelCase;
// supported result shapes are (), (T), (error) and (T, error).
// The constructor takes the fields positionally in declaration order, or a
// single object of named fields.
func BindClassBuilder(structType interface{}, options ...ReflectOption) (*ClassBuilder, error) {
	opts := &ReflectOptions{}
	for _, option := range options {
		option(opts)
	}

	typ, err := getReflectType(structType)
	if err != nil {
		return nil, err
	}

	className := opts.ClassName
	if className == "" {
		className = typ.Name()
	}
	if className == "" {
		return nil, errors.New("cannot determine class name from anonymous type")
	}

	return buildClassFromReflection(className, typ, opts)
}

// getReflectType extracts reflect.Type from various input types
func getReflectType(structType interface{}) (reflect.Type, error) {
	switch v := structType.(type) {
	case reflect.Type:
		if v.Kind() != reflect.Struct {
			return nil, errors.New("type must be a struct type")
		}
		return v, nil

	default:
		typ := reflect.TypeOf(v)
		if typ == nil {
			return nil, errors.New("cannot get type from nil value")
		}

		if typ.Kind() == reflect.Ptr {
			if typ.Elem().Kind() != reflect.Struct {
				return nil, errors.New("value must be a struct or pointer to struct")
			}
			return typ.Elem(), nil
		}

		if typ.Kind() != reflect.Struct {
			return nil, errors.New("value must be a struct or pointer to struct")
		}

		return typ, nil
	}
}

type boundField struct {
	index int
	field reflect.StructField
	tag   fieldTag
}

func reflectFields(typ reflect.Type, opts *ReflectOptions) []boundField {
	var fields []boundField
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() || contains(opts.IgnoredFields, field.Name) {
			continue
		}
		tag := parseFieldTag(field)
		if tag.skip {
			continue
		}
		fields = append(fields, boundField{index: i, field: field, tag: tag})
	}
	return fields
}

func buildClassFromReflection(className string, typ reflect.Type, opts *ReflectOptions) (*ClassBuilder, error) {
	builder := NewClassBuilder(className)
	fields := reflectFields(typ, opts)

	builder.Constructor(nil, func(call *Call) (interface{}, error) {
		instance := reflect.New(typ)
		if call.Len() > 0 {
			if err := initializeFromArgs(instance.Elem(), call.Args(), fields); err != nil {
				return nil, fmt.Errorf("constructor initialization failed: %w", err)
			}
		}
		return instance.Interface(), nil
	})

	for _, f := range fields {
		addReflectionAccessor(builder, f)
	}

	if err := addReflectionMethods(builder, typ, opts); err != nil {
		return nil, fmt.Errorf("failed to add methods: %w", err)
	}

	return builder, nil
}

// initializeFromArgs picks named mode for a single plain object argument
// and positional mode otherwise.
func initializeFromArgs(val reflect.Value, args []Value, fields []boundField) error {
	if m, ok := args[0].(Mapping); ok && len(args) == 1 && len(fields) > 0 && !acceptsObject(fields[0].field.Type) {
		for _, f := range fields {
			item, ok := m.Get(f.tag.name)
			if !ok {
				continue
			}
			if err := unmarshal(item, val.Field(f.index)); err != nil {
				return fmt.Errorf("failed to set field %s from property %s: %w", f.field.Name, f.tag.name, err)
			}
		}
		return nil
	}

	for i, f := range fields {
		if i >= len(args) {
			break
		}
		if err := unmarshal(args[i], val.Field(f.index)); err != nil {
			return fmt.Errorf("failed to set field %s: %w", f.field.Name, err)
		}
	}
	return nil
}

func acceptsObject(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct, reflect.Map, reflect.Interface:
		return true
	}
	return false
}

func addReflectionAccessor(builder *ClassBuilder, f boundField) {
	getter := func(receiver interface{}) (Value, error) {
		fv, err := fieldOf(receiver, f.index)
		if err != nil {
			return nil, err
		}
		return marshal(fv)
	}

	var setter ClassSetterFunc
	if !f.tag.readOnly {
		setter = func(receiver interface{}, v Value) error {
			fv, err := fieldOf(receiver, f.index)
			if err != nil {
				return err
			}
			tmp := reflect.New(fv.Type()).Elem()
			if err := unmarshal(v, tmp); err != nil {
				return err
			}
			fv.Set(tmp)
			return nil
		}
	}

	builder.Accessor(f.tag.name, valueTypeFor(f.field.Type), getter, setter)
}

func fieldOf(receiver interface{}, index int) (reflect.Value, error) {
	rv := reflect.ValueOf(receiver)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return reflect.Value{}, errors.New("instance data is nil")
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct || index >= rv.NumField() {
		return reflect.Value{}, fmt.Errorf("invalid field index: %d", index)
	}
	return rv.Field(index), nil
}

// valueTypeFor returns the declared shape used to check values assigned to
// a field of type t.
func valueTypeFor(t reflect.Type) ValueType {
	switch t.Kind() {
	case reflect.Bool:
		return BooleanType
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return NumberType
	case reflect.String:
		return StringType
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return BufferType
		}
	case reflect.Ptr:
		return OptionalOf(valueTypeFor(t.Elem()))
	}
	return AnyType
}

// addReflectionMethods scans pointer methods and adds them to the ClassBuilder
func addReflectionMethods(builder *ClassBuilder, typ reflect.Type, opts *ReflectOptions) error {
	ptrTyp := reflect.PointerTo(typ)
	errorInterface := reflect.TypeOf((*error)(nil)).Elem()

	for i := 0; i < ptrTyp.NumMethod(); i++ {
		method := ptrTyp.Method(i)

		if opts.MethodPrefix != "" && !strings.HasPrefix(method.Name, opts.MethodPrefix) {
			continue
		}
		if contains(opts.IgnoredMethods, method.Name) || isSpecialMethod(method.Name) {
			continue
		}
		if method.Type.IsVariadic() {
			continue
		}

		switch method.Type.NumOut() {
		case 0, 1:
		case 2:
			if !method.Type.Out(1).Implements(errorInterface) {
				return fmt.Errorf("method %s: second result must be error", method.Name)
			}
		default:
			return fmt.Errorf("method %s: too many results", method.Name)
		}

		builder.Method(jsName(method.Name), nil, createMethodWrapper(method, errorInterface))
	}

	return nil
}

func createMethodWrapper(method reflect.Method, errorInterface reflect.Type) ClassMethodFunc {
	numArgs := method.Type.NumIn() - 1

	return func(call *Call) (Value, error) {
		recv := reflect.ValueOf(call.Receiver())
		if !recv.IsValid() || recv.Kind() != reflect.Ptr || recv.IsNil() {
			return nil, errors.New("instance data is nil")
		}

		in := make([]reflect.Value, numArgs)
		for i := 0; i < numArgs; i++ {
			arg := reflect.New(method.Type.In(i + 1)).Elem()
			if err := unmarshal(call.Arg(i), arg); err != nil {
				return nil, fmt.Errorf("failed to convert argument %d: %w", i, err)
			}
			in[i] = arg
		}

		results := recv.Method(method.Index).Call(in)
		return convertMethodResults(results, errorInterface)
	}
}

func convertMethodResults(results []reflect.Value, errorInterface reflect.Type) (Value, error) {
	if n := len(results); n > 0 {
		last := results[n-1]
		if last.Type().Implements(errorInterface) {
			if !last.IsNil() {
				return nil, last.Interface().(error)
			}
			results = results[:n-1]
		}
	}

	if len(results) == 0 {
		return Undefined{}, nil
	}
	return marshal(results[0])
}

// =============================================================================
// UTILITY FUNCTIONS
// =============================================================================

// jsName lowers the first rune of a Go method name.
func jsName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToLower(r)) + name[size:]
}

// contains checks if a slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// isSpecialMethod checks if a method name should be skipped during reflection binding
func isSpecialMethod(name string) bool {
	specialMethods := []string{
		"String",         // fmt.Stringer
		"Error",          // error interface
		"GoString",       // fmt.GoStringer
		"Format",         // fmt.Formatter
		"MarshalValue",   // Marshaler
		"UnmarshalValue", // Unmarshaler
	}

	return contains(specialMethods, name)
}

package jsbridge

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST STRUCTS FOR REFLECTION BINDING
// =============================================================================

// Employee is bound through reflection.
type Employee struct {
	FirstName string `js:"firstName"`
	Age       int    `json:"age"`
	ID        string `js:"id,readonly"`
	Secret    string `js:"-"`
	Notes     string
	private   string
}

func (e *Employee) FullName() string {
	return fmt.Sprintf("%s (%d)", e.FirstName, e.Age)
}

func (e *Employee) SetAge(age int) error {
	if age < 0 {
		return errors.New("age must not be negative")
	}
	e.Age = age
	return nil
}

func (e *Employee) Birthday() (int, error) {
	e.Age++
	return e.Age, nil
}

func (e *Employee) Reset() {
	e.Notes = ""
}

func (e *Employee) String() string {
	return e.FirstName
}

type tooManyResults struct{}

func (*tooManyResults) Triple() (int, int, int) { return 1, 2, 3 }

type badSecondResult struct{}

func (*badSecondResult) Pair() (int, int) { return 1, 2 }

func bindEmployee(t *testing.T, rt *Runtime, options ...ReflectOption) *Class {
	t.Helper()
	class, err := BindClass(rt, &Employee{}, options...)
	require.NoError(t, err)
	require.NoError(t, rt.Set(class.Name(), class.Constructor()))
	return class
}

// TestBindClass tests fields, methods and constructors bound by reflection.
func TestBindClass(t *testing.T) {
	rt := newTestRuntime(t)
	class := bindEmployee(t, rt)
	assert.Equal(t, "Employee", class.Name())

	t.Run("PositionalConstructor", func(t *testing.T) {
		hv := mustRun(t, rt, `var a = new Employee("Ada", 36, "e1"); a`)
		native, ok := class.Unwrap(hv)
		require.True(t, ok)
		assert.Equal(t, &Employee{FirstName: "Ada", Age: 36, ID: "e1"}, native)
		assert.Equal(t, "Ada (36)", mustRun(t, rt, `a.fullName()`).String())
	})

	t.Run("NamedConstructor", func(t *testing.T) {
		hv := mustRun(t, rt, `new Employee({ firstName: "Grace", age: 45, Notes: "admiral", Secret: "x" })`)
		native, ok := class.Unwrap(hv)
		require.True(t, ok)
		assert.Equal(t, &Employee{FirstName: "Grace", Age: 45, Notes: "admiral"}, native)
	})

	t.Run("EmptyConstructor", func(t *testing.T) {
		hv := mustRun(t, rt, `new Employee()`)
		native, ok := class.Unwrap(hv)
		require.True(t, ok)
		assert.Equal(t, &Employee{}, native)
	})

	t.Run("ConstructorMismatch", func(t *testing.T) {
		_, err := rt.RunString(`new Employee(1)`)
		var failure *Error
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, "TypeError", failure.Name)
		assert.Equal(t, StringExpected, failure.Status)
	})

	t.Run("Fields", func(t *testing.T) {
		mustRun(t, rt, `var f = new Employee("Linus", 20, "e2");`)
		mustRun(t, rt, `f.age = 21; f.firstName = "Linus T"; f.id = "hijack"; f.Notes = "kernel";`)
		assert.Equal(t, "Linus T|21|e2|kernel", mustRun(t, rt, `[f.firstName, f.age, f.id, f.Notes].join("|")`).String())
		assert.Equal(t, "true", mustRun(t, rt, `f.Secret === undefined && f.private === undefined`).String())

		assert.Equal(t, "Expect value to be Number, but received String", mustRun(t, rt, `
			var r;
			try { f.age = "old"; } catch (e) { r = e.message; }
			r
		`).String())
	})

	t.Run("Methods", func(t *testing.T) {
		mustRun(t, rt, `var m = new Employee("Ken", 70, "e3"); m.Notes = "unix";`)
		assert.EqualValues(t, 71, mustRun(t, rt, `m.birthday()`).ToInteger())
		assert.Equal(t, "true", mustRun(t, rt, `m.setAge(30) === undefined && m.age === 30`).String())
		assert.Equal(t, "true", mustRun(t, rt, `m.reset() === undefined && m.Notes === ""`).String())
		assert.Equal(t, "undefined", mustRun(t, rt, `typeof m.string`).String())

		assert.Equal(t, "age must not be negative:GenericFailure", mustRun(t, rt, `
			var r;
			try { m.setAge(-1); } catch (e) { r = e.message + ":" + e.code; }
			r
		`).String())

		assert.Equal(t, "TypeError", mustRun(t, rt, `
			var r;
			try { m.setAge("ten"); } catch (e) { r = e.name; }
			r
		`).String())
	})
}

func TestBindClassOptions(t *testing.T) {
	rt := newTestRuntime(t)

	class := bindEmployee(t, rt,
		WithClassName("Staff"),
		WithMethodPrefix("S"),
		WithIgnoredFields("Notes"),
	)
	assert.Equal(t, "Staff", class.Name())
	assert.Equal(t, "function|undefined|undefined", mustRun(t, rt, `
		var s = new Staff("Barbara", 80);
		[typeof s.setAge, typeof s.fullName, typeof s.Notes].join("|")
	`).String())

	ignored := bindEmployee(t, rt, WithClassName("Other"), WithIgnoredMethods("Reset", "Birthday"))
	assert.Equal(t, "Other", ignored.Name())
	assert.Equal(t, "undefined|undefined|function", mustRun(t, rt, `
		var o = new Other();
		[typeof o.reset, typeof o.birthday, typeof o.fullName].join("|")
	`).String())
}

func TestBindClassBuilder(t *testing.T) {
	builder, err := BindClassBuilder(reflect.TypeOf(Employee{}))
	require.NoError(t, err)
	builder.StaticProperty("TABLE", String("employees"))

	rt := newTestRuntime(t)
	class, err := builder.Build(rt)
	require.NoError(t, err)
	require.NoError(t, rt.Set("Employee", class.Constructor()))
	assert.Equal(t, "employees", mustRun(t, rt, `Employee.TABLE`).String())
}

func TestBindClassErrors(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
		want string
	}{
		{"Nil", nil, "cannot get type from nil value"},
		{"Int", 42, "value must be a struct or pointer to struct"},
		{"PointerToInt", new(int), "value must be a struct or pointer to struct"},
		{"ReflectInt", reflect.TypeOf(0), "type must be a struct type"},
		{"Anonymous", struct{ X int }{}, "cannot determine class name from anonymous type"},
		{"TooManyResults", &tooManyResults{}, "failed to add methods: method Triple: too many results"},
		{"BadSecondResult", &badSecondResult{}, "failed to add methods: method Pair: second result must be error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BindClassBuilder(tc.in)
			assert.EqualError(t, err, tc.want)
		})
	}
}

func TestReflectHelpers(t *testing.T) {
	assert.Equal(t, "fullName", jsName("FullName"))
	assert.Equal(t, "reset", jsName("Reset"))
	assert.True(t, isSpecialMethod("MarshalValue"))
	assert.False(t, isSpecialMethod("FullName"))

	assert.Equal(t, "Boolean", valueTypeFor(reflect.TypeOf(true)).Name())
	assert.Equal(t, "Number", valueTypeFor(reflect.TypeOf(uint8(0))).Name())
	assert.Equal(t, "Buffer", valueTypeFor(reflect.TypeOf([]byte(nil))).Name())
	assert.Same(t, AnyType, valueTypeFor(reflect.TypeOf([]string(nil))))
}

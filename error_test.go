package jsbridge

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestErrorBasics tests the Error() format and cause unwrapping.
func TestErrorBasics(t *testing.T) {
	plain := NewError(GenericFailure, "something broke")
	assert.Equal(t, "something broke", plain.Error())

	named := &Error{Name: "RangeError", Message: "too big"}
	assert.Equal(t, "RangeError: too big", named.Error())

	formatted := Errorf(NumberExpected, "argument %d is %s", 2, "a string")
	assert.Equal(t, NumberExpected, formatted.Status)
	assert.Equal(t, "argument 2 is a string", formatted.Message)

	root := errors.New("disk full")
	wrapped := &Error{Status: GenericFailure, Message: "write failed", Cause: root}
	assert.ErrorIs(t, wrapped, root)
	assert.Nil(t, wrapped.HostValue())
}

func TestAsError(t *testing.T) {
	assert.Nil(t, AsError(nil))

	original := NewError(Closing, "closed")
	assert.Same(t, original, AsError(fmt.Errorf("context: %w", original)))

	tm := AsError(&TypeMismatch{Expected: "String", Actual: "Number"})
	assert.Equal(t, StringExpected, tm.Status)
	assert.Equal(t, "TypeError", tm.Name)
	assert.Equal(t, "Expect value to be String, but received Number", tm.Message)

	aborted := AsError(context.Canceled)
	assert.True(t, IsAbort(aborted))
	assert.ErrorIs(t, aborted, context.Canceled)

	generic := AsError(context.DeadlineExceeded)
	assert.Equal(t, GenericFailure, generic.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), generic.Message)
	assert.False(t, IsAbort(generic))
}

// TestMismatchStatus tests the status carried by each kind of mismatch.
func TestMismatchStatus(t *testing.T) {
	rt := newTestRuntime(t)

	cases := []struct {
		name string
		typ  ValueType
		src  string
		want Status
	}{
		{"Object", MappingOf(AnyType), `"text"`, ObjectExpected},
		{"String", StringType, `1`, StringExpected},
		{"Number", NumberType, `"1"`, NumberExpected},
		{"Boolean", BooleanType, `0`, BooleanExpected},
		{"Array", SequenceOf(AnyType), `"text"`, ArrayExpected},
		{"Function", FunctionType, `({})`, FunctionExpected},
		{"Signal", AbortSignalType, `({})`, InvalidArg},
		{"Union", EitherOf(StringType, NumberType), `true`, InvalidArg},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := rt.Decode(mustRun(t, rt, tc.src), tc.typ)
			var tm *TypeMismatch
			require.ErrorAs(t, err, &tm)
			assert.Equal(t, tc.want, tm.Status())
			assert.Equal(t, tc.want, AsError(err).Status)
		})
	}

	require.NoError(t, rt.Set("invoke", rt.Function("invoke", []ValueType{FunctionType}, func(*Call) (Value, error) {
		return Undefined{}, nil
	})))
	assert.Equal(t, "TypeError:FunctionExpected", mustRun(t, rt, `
		var r;
		try { invoke(42); } catch (e) { r = e.name + ":" + e.code; }
		r
	`).String())
}

func TestIsAbort(t *testing.T) {
	assert.True(t, IsAbort(abortError()))
	assert.True(t, IsAbort(fmt.Errorf("wrapped: %w", abortError())))
	assert.False(t, IsAbort(NewError(Cancelled, "execution timeout")))
	assert.False(t, IsAbort(errors.New(AbortMessage)))
	assert.False(t, IsAbort(nil))
}

// TestToHostException tests how native failures surface in scripts.
func TestToHostException(t *testing.T) {
	rt := newTestRuntime(t)

	throwing := func(err error) func(*Call) (Value, error) {
		return func(*Call) (Value, error) { return nil, err }
	}
	catch := func(name string) string {
		return mustRun(t, rt, fmt.Sprintf(`
			(function () {
				try { %s(); } catch (e) {
					return [e instanceof Error, e.name, e.message, String(e.code)].join("|");
				}
				return "no throw";
			})()
		`, name)).String()
	}

	require.NoError(t, rt.Set("plainFailure", rt.Function("plainFailure", nil, throwing(errors.New("plain")))))
	assert.Equal(t, "true|Error|plain|GenericFailure", catch("plainFailure"))

	require.NoError(t, rt.Set("typeFailure", rt.Function("typeFailure", nil,
		throwing(&TypeMismatch{Expected: "Boolean", Actual: "Null"}))))
	assert.Equal(t, "true|TypeError|Expect value to be Boolean, but received Null|BooleanExpected", catch("typeFailure"))

	require.NoError(t, rt.Set("customName", rt.Function("customName", nil,
		throwing(&Error{Name: "QuotaError", Message: "over quota", Status: GenericFailure}))))
	assert.Equal(t, "true|QuotaError|over quota|GenericFailure", catch("customName"))

	require.NoError(t, rt.Set("rangeFailure", rt.Function("rangeFailure", nil,
		throwing(&Error{Name: "RangeError", Message: "out of range"}))))
	assert.Equal(t, "true|RangeError|out of range|undefined", catch("rangeFailure"))

	chained := &Error{Status: GenericFailure, Message: "outer", Cause: NewError(StringExpected, "inner")}
	require.NoError(t, rt.Set("chained", rt.Function("chained", nil, throwing(chained))))
	assert.Equal(t, "inner:StringExpected", mustRun(t, rt, `
		var c;
		try { chained(); } catch (e) { c = e.cause.message + ":" + e.cause.code; }
		c
	`).String())

	assert.True(t, goja.IsUndefined(rt.ToHostException(nil)))
}

// TestArgumentMismatch tests that declared parameter types reject bad input.
func TestArgumentMismatch(t *testing.T) {
	rt := newTestRuntime(t)
	require.NoError(t, rt.Set("double", rt.Function("double", []ValueType{Int32Type}, func(c *Call) (Value, error) {
		n, _ := AsInt(c.Arg(0))
		return Int(n * 2), nil
	})))

	assert.Equal(t, int64(8), mustRun(t, rt, `double(4)`).ToInteger())
	assert.Equal(t, "TypeError|NumberExpected|Expect value to be Number, but received String", mustRun(t, rt, `
		var r;
		try { double("4"); } catch (e) { r = e.name + "|" + e.code + "|" + e.message; }
		r
	`).String())
	assert.Equal(t, "double:1", mustRun(t, rt, `double.name + ":" + double.length`).String())
}

// TestToNativeFailure tests conversion of thrown script values.
func TestToNativeFailure(t *testing.T) {
	rt := newTestRuntime(t)

	t.Run("Primitives", func(t *testing.T) {
		f := rt.ToNativeFailure(mustRun(t, rt, `"just a string"`))
		assert.Equal(t, "just a string", f.Message)
		assert.Empty(t, f.Name)
		assert.Equal(t, PendingException, f.Status)

		f = rt.ToNativeFailure(mustRun(t, rt, `42`))
		assert.Equal(t, "42", f.Message)

		f = rt.ToNativeFailure(nil)
		assert.Equal(t, "undefined", f.Message)
		assert.Nil(t, f.HostValue())
	})

	t.Run("ErrorObject", func(t *testing.T) {
		hv := mustRun(t, rt, `
			var err = new TypeError("bad input");
			err.code = "StringExpected";
			err
		`)
		f := rt.ToNativeFailure(hv)
		assert.Equal(t, "TypeError", f.Name)
		assert.Equal(t, "bad input", f.Message)
		assert.Equal(t, StringExpected, f.Status)
		assert.Equal(t, hv, f.HostValue())
	})

	t.Run("PlainObject", func(t *testing.T) {
		f := rt.ToNativeFailure(mustRun(t, rt, `({ toString() { return "custom"; } })`))
		assert.Equal(t, "custom", f.Message)
	})

	t.Run("CauseChain", func(t *testing.T) {
		f := rt.ToNativeFailure(mustRun(t, rt, `
			var middle = new Error("middle");
			middle.cause = "bottom";
			var top = new Error("top");
			top.cause = middle;
			top
		`))
		assert.Equal(t, "top", f.Message)

		var middle *Error
		require.ErrorAs(t, f.Cause, &middle)
		assert.Equal(t, "middle", middle.Message)
		require.NotNil(t, middle.Cause)
		assert.Equal(t, "bottom", middle.Cause.Error())
	})

	t.Run("CauseDepthLimit", func(t *testing.T) {
		f := rt.ToNativeFailure(mustRun(t, rt, `
			var loop = new Error("self");
			loop.cause = loop;
			loop
		`))
		depth := 0
		for err := error(f); err != nil; err = errors.Unwrap(err) {
			depth++
		}
		assert.Equal(t, 9, depth)
	})
}

func TestFailureFromError(t *testing.T) {
	rt := newTestRuntime(t)

	_, err := rt.RunString(`throw new SyntaxError("nope")`)
	var f *Error
	require.ErrorAs(t, err, &f)
	assert.Equal(t, "SyntaxError", f.Name)
	assert.Equal(t, PendingException, f.Status)
	assert.NotEmpty(t, f.Stack)

	// the original value is re-thrown, without a code
	require.NoError(t, rt.Set("rethrow", rt.Function("rethrow", nil, func(*Call) (Value, error) {
		return nil, f
	})))
	assert.Equal(t, "SyntaxError|undefined", mustRun(t, rt, `
		var r;
		try { rethrow(); } catch (e) { r = e.name + "|" + e.code; }
		r
	`).String())

	assert.Nil(t, rt.failureFromError(nil))
	assert.Equal(t, GenericFailure, rt.failureFromError(errors.New("engine")).Status)
}

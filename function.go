package jsbridge

import (
	"github.com/dop251/goja"
)

// NativeFunc is a Go function callable from JavaScript. Arguments have
// already been decoded against the declared parameter types.
type NativeFunc func(call *Call) (Value, error)

// Call carries the decoded arguments of one native invocation.
type Call struct {
	rt       *Runtime
	this     goja.Value
	raw      []goja.Value
	args     []Value
	receiver interface{}
}

// Arg returns the i-th decoded argument, or Undefined when it is missing.
func (c *Call) Arg(i int) Value {
	if i < 0 || i >= len(c.args) {
		return Undefined{}
	}
	return c.args[i]
}

// Args returns all decoded arguments.
func (c *Call) Args() []Value { return c.args }

// Len returns the number of decoded arguments.
func (c *Call) Len() int { return len(c.args) }

// Raw returns the i-th argument as passed by the engine.
func (c *Call) Raw(i int) goja.Value {
	if i < 0 || i >= len(c.raw) {
		return goja.Undefined()
	}
	return c.raw[i]
}

// This returns the receiver as seen by JavaScript.
func (c *Call) This() goja.Value { return c.this }

// Receiver returns the native value bound to `this` for class methods.
func (c *Call) Receiver() interface{} { return c.receiver }

// Runtime returns the runtime executing the call.
func (c *Call) Runtime() *Runtime { return c.rt }

// decodeArgs decodes arguments against params. Missing arguments decode
// from undefined, extra arguments are ignored. A nil params decodes every
// passed argument with AnyType.
func (r *Runtime) decodeArgs(this goja.Value, raw []goja.Value, params []ValueType) (*Call, error) {
	call := &Call{rt: r, this: this, raw: raw}

	if params == nil {
		call.args = make([]Value, 0, len(raw))
		for _, a := range raw {
			v, err := AnyType.decode(r, a)
			if err != nil {
				return nil, err
			}
			call.args = append(call.args, v)
		}
		return call, nil
	}

	call.args = make([]Value, len(params))
	for i, t := range params {
		a := goja.Undefined()
		if i < len(raw) {
			a = raw[i]
		}
		v, err := t.decode(r, a)
		if err != nil {
			return nil, err
		}
		call.args[i] = v
	}
	return call, nil
}

// complete encodes a native result, throwing the failure into the engine
// when the call did not succeed.
func (r *Runtime) complete(res Value, err error) goja.Value {
	if err != nil {
		r.throw(err)
	}
	hv, err := r.Encode(res)
	if err != nil {
		r.throw(err)
	}
	return hv
}

// Function wraps fn as a JavaScript function named name.
func (r *Runtime) Function(name string, params []ValueType, fn NativeFunc) goja.Value {
	f := r.vm.ToValue(func(fc goja.FunctionCall) goja.Value {
		call, err := r.decodeArgs(fc.This, fc.Arguments, params)
		if err != nil {
			r.throw(err)
		}
		return r.complete(fn(call))
	})
	setFunctionName(r.vm, f, name, len(params))
	return f
}

func setFunctionName(vm *goja.Runtime, f goja.Value, name string, length int) {
	obj, ok := f.(*goja.Object)
	if !ok {
		return
	}
	_ = obj.DefineDataProperty("name", vm.ToValue(name), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
	_ = obj.DefineDataProperty("length", vm.ToValue(length), goja.FLAG_FALSE, goja.FLAG_TRUE, goja.FLAG_FALSE)
}

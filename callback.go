package jsbridge

import (
	"sync/atomic"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// Callback is a JavaScript function received as an argument. It may only be
// called on the goroutine that owns the runtime, while the runtime is open.
// Use Ref to keep it beyond the native call that received it.
type Callback struct {
	rt   *Runtime
	fn   goja.Value
	call goja.Callable
}

func (*Callback) isValue() {}

func (r *Runtime) newCallback(v goja.Value) (*Callback, error) {
	call, ok := goja.AssertFunction(v)
	if !ok {
		return nil, &TypeMismatch{Expected: "Function", Actual: typeOf(v)}
	}
	return &Callback{rt: r, fn: v, call: call}, nil
}

// Call invokes the function with args and decodes the result structurally.
// A JavaScript exception is returned as *Error carrying the thrown value.
func (c *Callback) Call(args ...Value) (Value, error) {
	return c.CallAs(AnyType, args...)
}

// CallAs invokes the function and decodes the result against t.
func (c *Callback) CallAs(t ValueType, args ...Value) (Value, error) {
	if c.rt.closed.Load() {
		return nil, NewError(Closing, "runtime is closed")
	}

	hargs := make([]goja.Value, len(args))
	for i, a := range args {
		hv, err := c.rt.Encode(a)
		if err != nil {
			return nil, err
		}
		hargs[i] = hv
	}

	res, err := c.call(goja.Undefined(), hargs...)
	if err != nil {
		return nil, c.rt.failureFromError(err)
	}
	return c.rt.Decode(res, t)
}

// Ref returns an owned reference that can be used from any goroutine.
// The reference keeps the runtime's loop alive until Release is called.
func (c *Callback) Ref() *FunctionRef {
	ref := &FunctionRef{cb: c}
	ref.id = c.rt.handles.Store(ref)
	c.rt.loop.hold()
	return ref
}

// FunctionRef is an owned, thread-safe reference to a JavaScript function.
type FunctionRef struct {
	cb       *Callback
	id       int32
	released atomic.Bool
}

// Call schedules an invocation on the runtime's loop. done, when not nil,
// receives the outcome on the loop goroutine.
func (f *FunctionRef) Call(args []Value, done func(Value, error)) error {
	if f.released.Load() {
		return NewError(Closing, "function reference has been released")
	}

	rt := f.cb.rt
	err := rt.loop.ScheduleJob(func() {
		v, err := f.cb.Call(args...)
		if done != nil {
			done(v, err)
			return
		}
		if err != nil {
			rt.logger.Named("callback").Debug("callback failed",
				zap.Int32("ref", f.id),
				zap.Error(err))
		}
	})
	if err != nil {
		rt.logger.Named("callback").Warn("callback dropped, loop is closed", zap.Int32("ref", f.id))
		return Errorf(Closing, "cannot schedule callback: %v", err)
	}
	return nil
}

// Release drops the reference. It is safe to call more than once.
func (f *FunctionRef) Release() {
	if !f.released.CompareAndSwap(false, true) {
		return
	}
	f.cb.rt.handles.Delete(f.id)
	f.cb.rt.loop.release()
}

// Released reports whether Release has been called.
func (f *FunctionRef) Released() bool {
	return f.released.Load()
}

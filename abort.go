package jsbridge

import (
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// AbortSignal reports cancellation requested through an AbortController.
// It is safe for concurrent use.
type AbortSignal struct {
	mu        sync.Mutex
	aborted   bool
	reason    Value
	nextID    int
	listeners []signalListener
	hosts     map[*Runtime]*goja.Object
}

type signalListener struct {
	id int
	fn func(reason Value)
}

func (*AbortSignal) isValue() {}

// Aborted reports whether the signal has fired.
func (s *AbortSignal) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Reason returns the abort reason, nil when the signal has not fired or
// was aborted without one.
func (s *AbortSignal) Reason() Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// subscribe registers fn to run once when the signal fires. fn runs on the
// goroutine that aborts. The returned func removes the listener.
func (s *AbortSignal) subscribe(fn func(reason Value)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, signalListener{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *AbortSignal) abort(reason Value) bool {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return false
	}
	s.aborted = true
	s.reason = reason
	listeners := s.listeners
	s.listeners = nil
	s.mu.Unlock()

	for _, l := range listeners {
		l.fn(reason)
	}
	return true
}

// forget drops the host object cached for r.
func (s *AbortSignal) forget(r *Runtime) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.hosts, r)
}

// AbortController requests cancellation of the tasks observing its signal.
type AbortController struct {
	signal *AbortSignal
}

// NewAbortController creates a controller with a fresh signal.
func NewAbortController() *AbortController {
	return &AbortController{signal: &AbortSignal{}}
}

// Signal returns the controller's signal.
func (c *AbortController) Signal() *AbortSignal {
	return c.signal
}

// Abort fires the signal. It returns false if the signal already fired.
func (c *AbortController) Abort() bool {
	return c.signal.abort(nil)
}

// AbortWithReason fires the signal with a reason.
func (c *AbortController) AbortWithReason(reason Value) bool {
	return c.signal.abort(reason)
}

// =============================================================================
// HOST BINDINGS
// =============================================================================

// signalOf returns the signal backing a host AbortSignal object.
func (r *Runtime) signalOf(v goja.Value) *AbortSignal {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}
	sv := obj.GetSymbol(r.signalKey)
	if sv == nil {
		return nil
	}
	s, _ := sv.Export().(*AbortSignal)
	return s
}

// signalObject returns the host object for s, creating it on first use.
// The same object is returned for the same signal within one runtime.
func (r *Runtime) signalObject(s *AbortSignal) *goja.Object {
	s.mu.Lock()
	defer s.mu.Unlock()

	if obj, ok := s.hosts[r]; ok {
		return obj
	}
	if s.hosts == nil {
		s.hosts = make(map[*Runtime]*goja.Object)
	}

	obj := r.vm.NewObject()
	_ = obj.SetPrototype(r.signalProto)
	_ = obj.DefineDataPropertySymbol(r.signalKey, r.vm.ToValue(s), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
	s.hosts[r] = obj
	r.abortState.track(s)
	return obj
}

// abortBindings is the per-runtime state behind host signal objects: the
// script listeners still subscribed and the signals holding a host object.
type abortBindings struct {
	mu        sync.Mutex
	nextID    uint64
	listeners []hostListener
	signals   map[*AbortSignal]struct{}
}

type hostListener struct {
	id     uint64
	signal *AbortSignal
	fn     *goja.Object
	unsub  func()
}

func (b *abortBindings) track(s *AbortSignal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.signals == nil {
		b.signals = make(map[*AbortSignal]struct{})
	}
	b.signals[s] = struct{}{}
}

func (b *abortBindings) newID() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	return b.nextID
}

func (b *abortBindings) add(l hostListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// drop removes the listener with id.
func (b *abortBindings) drop(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, l := range b.listeners {
		if l.id == id {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			return
		}
	}
}

// remove detaches the first listener registered for s with fn.
func (b *abortBindings) remove(s *AbortSignal, fn *goja.Object) {
	b.mu.Lock()
	var unsub func()
	for i, l := range b.listeners {
		if l.signal == s && l.fn == fn {
			unsub = l.unsub
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (b *abortBindings) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// release unsubscribes every listener and drops r's host objects from the
// signals it touched.
func (b *abortBindings) release(r *Runtime) {
	b.mu.Lock()
	listeners := b.listeners
	signals := b.signals
	b.listeners, b.signals = nil, nil
	b.mu.Unlock()

	for _, l := range listeners {
		l.unsub()
	}
	for s := range signals {
		s.forget(r)
	}
}

func (r *Runtime) abortReason(s *AbortSignal) goja.Value {
	reason := s.Reason()
	if reason == nil {
		return r.ToHostException(abortError())
	}
	hv, err := r.Encode(reason)
	if err != nil {
		return r.ToHostException(err)
	}
	return hv
}

// initAbortBindings builds the AbortSignal prototype and, when enabled,
// installs the AbortController and AbortSignal globals.
func (r *Runtime) initAbortBindings(install bool) error {
	r.signalKey = goja.NewSymbol("jsbridge.signal")
	r.controllerKey = goja.NewSymbol("jsbridge.controller")

	proto := r.vm.NewObject()
	r.signalProto = proto

	thisSignal := func(this goja.Value) *AbortSignal {
		s := r.signalOf(this)
		if s == nil {
			r.throw(&TypeMismatch{Expected: "AbortSignal", Actual: typeOf(this)})
		}
		return s
	}

	getter := func(fn func(s *AbortSignal) goja.Value) goja.Value {
		return r.vm.ToValue(func(fc goja.FunctionCall) goja.Value {
			return fn(thisSignal(fc.This))
		})
	}

	if err := proto.DefineAccessorProperty("aborted", getter(func(s *AbortSignal) goja.Value {
		return r.vm.ToValue(s.Aborted())
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
		return err
	}

	if err := proto.DefineAccessorProperty("reason", getter(func(s *AbortSignal) goja.Value {
		if !s.Aborted() {
			return goja.Undefined()
		}
		return r.abortReason(s)
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
		return err
	}

	if err := proto.Set("addEventListener", func(fc goja.FunctionCall) goja.Value {
		s := thisSignal(fc.This)
		if fc.Argument(0).String() != "abort" || s.Aborted() {
			return goja.Undefined()
		}
		fnObj, ok := fc.Argument(1).(*goja.Object)
		if !ok {
			return goja.Undefined()
		}
		call, ok := goja.AssertFunction(fnObj)
		if !ok {
			return goja.Undefined()
		}

		target := fc.This
		id := r.abortState.newID()
		unsub := s.subscribe(func(Value) {
			r.abortState.drop(id)
			_ = r.loop.ScheduleJob(func() {
				event := r.vm.NewObject()
				_ = event.Set("type", "abort")
				_ = event.Set("target", target)
				if _, err := call(target, event); err != nil {
					r.logger.Debug("abort listener threw", zap.Error(r.failureFromError(err)))
				}
			})
		})
		r.abortState.add(hostListener{id: id, signal: s, fn: fnObj, unsub: unsub})
		if s.Aborted() {
			r.abortState.drop(id)
		}
		return goja.Undefined()
	}); err != nil {
		return err
	}

	if err := proto.Set("removeEventListener", func(fc goja.FunctionCall) goja.Value {
		s := thisSignal(fc.This)
		fnObj, _ := fc.Argument(1).(*goja.Object)
		r.abortState.remove(s, fnObj)
		return goja.Undefined()
	}); err != nil {
		return err
	}

	if err := proto.Set("throwIfAborted", func(fc goja.FunctionCall) goja.Value {
		s := thisSignal(fc.This)
		if s.Aborted() {
			panic(r.abortReason(s))
		}
		return goja.Undefined()
	}); err != nil {
		return err
	}

	if !install {
		return nil
	}

	signalCtor := r.vm.ToValue(func(goja.ConstructorCall) *goja.Object {
		panic(r.vm.NewTypeError("Illegal constructor"))
	}).(*goja.Object)
	setFunctionName(r.vm, signalCtor, "AbortSignal", 0)
	_ = signalCtor.Set("prototype", proto)
	_ = proto.DefineDataProperty("constructor", signalCtor, goja.FLAG_TRUE, goja.FLAG_FALSE, goja.FLAG_TRUE)

	controllerProto := r.vm.NewObject()
	thisController := func(this goja.Value) *AbortController {
		if obj, ok := this.(*goja.Object); ok {
			if cv := obj.GetSymbol(r.controllerKey); cv != nil {
				if c, ok := cv.Export().(*AbortController); ok {
					return c
				}
			}
		}
		r.throw(&TypeMismatch{Expected: "AbortController", Actual: typeOf(this)})
		return nil
	}

	if err := controllerProto.DefineAccessorProperty("signal", r.vm.ToValue(func(fc goja.FunctionCall) goja.Value {
		return r.signalObject(thisController(fc.This).Signal())
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
		return err
	}

	if err := controllerProto.Set("abort", func(fc goja.FunctionCall) goja.Value {
		c := thisController(fc.This)
		reason := fc.Argument(0)
		if goja.IsUndefined(reason) {
			c.Abort()
			return goja.Undefined()
		}
		v, err := r.Decode(reason, AnyType)
		if err != nil {
			r.throw(err)
		}
		c.AbortWithReason(v)
		return goja.Undefined()
	}); err != nil {
		return err
	}

	controllerCtor := r.vm.ToValue(func(cc goja.ConstructorCall) *goja.Object {
		_ = cc.This.SetPrototype(controllerProto)
		_ = cc.This.DefineDataPropertySymbol(r.controllerKey, r.vm.ToValue(NewAbortController()),
			goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE)
		return nil
	}).(*goja.Object)
	setFunctionName(r.vm, controllerCtor, "AbortController", 0)
	_ = controllerCtor.Set("prototype", controllerProto)
	_ = controllerProto.DefineDataProperty("constructor", controllerCtor, goja.FLAG_TRUE, goja.FLAG_FALSE, goja.FLAG_TRUE)

	if err := r.vm.Set("AbortSignal", signalCtor); err != nil {
		return err
	}
	return r.vm.Set("AbortController", controllerCtor)
}

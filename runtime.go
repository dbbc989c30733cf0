package jsbridge

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrNeverSettles is returned by Await when the promise is still pending and
// nothing left on the loop can settle it.
var ErrNeverSettles = errors.New("jsbridge: promise can never settle")

// Runtime owns one JavaScript engine instance. The engine is not thread-safe:
// every method except Interrupt, ClearInterrupt and Close must be called on
// the goroutine driving the runtime. Other goroutines reach the engine
// through Loop().ScheduleJob.
type Runtime struct {
	vm       *goja.Runtime
	loop     *Loop
	opts     *Options
	logger   *zap.Logger
	handles  *handleStore
	sem      *semaphore.Weighted
	registry *require.Registry

	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
	closed  atomic.Bool

	instanceKey   *goja.Symbol
	signalKey     *goja.Symbol
	controllerKey *goja.Symbol
	signalProto   *goja.Object
	abortState    abortBindings
}

// NewRuntime creates a runtime with the given options.
func NewRuntime(opts ...Option) (*Runtime, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	options.normalize()

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runtime{
		vm:          goja.New(),
		loop:        NewLoop(),
		opts:        options,
		logger:      options.Logger,
		handles:     newHandleStore(),
		sem:         semaphore.NewWeighted(options.MaxConcurrentTasks),
		ctx:         ctx,
		cancel:      cancel,
		instanceKey: goja.NewSymbol("jsbridge.instance"),
	}

	if options.MaxCallStackSize > 0 {
		r.vm.SetMaxCallStackSize(options.MaxCallStackSize)
	}
	r.vm.SetFieldNameMapper(goja.TagFieldNameMapper("js", true))
	r.initRequire(options.Console)

	if err := r.initAbortBindings(options.AbortController); err != nil {
		cancel()
		return nil, err
	}

	r.logger.Debug("runtime created",
		zap.Int64("max_concurrent_tasks", options.MaxConcurrentTasks),
		zap.Bool("abort_controller", options.AbortController))
	return r, nil
}

// Engine returns the underlying goja runtime.
func (r *Runtime) Engine() *goja.Runtime { return r.vm }

// Loop returns the runtime's job loop.
func (r *Runtime) Loop() *Loop { return r.loop }

// Logger returns the runtime's logger.
func (r *Runtime) Logger() *zap.Logger { return r.logger }

// Close stops the loop, cancels running tasks, waits for their goroutines
// and drops every handle. Calling Close more than once is a no-op.
func (r *Runtime) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	if stopErr := r.loop.Stop(); stopErr != nil && !errors.Is(stopErr, ErrLoopClosed) {
		err = multierr.Append(err, stopErr)
	}
	r.cancel()
	r.workers.Wait()

	if n := r.handles.Count(); n > 0 {
		r.logger.Debug("dropping live handles", zap.Int("count", n))
	}
	r.handles.Clear()
	r.abortState.release(r)

	r.logger.Debug("runtime closed")
	return err
}

// RunString evaluates src as a script and returns its completion value.
func (r *Runtime) RunString(src string) (goja.Value, error) {
	return r.RunScript("", src)
}

// RunScript evaluates src, attributing it to name in stack traces.
func (r *Runtime) RunScript(name, src string) (goja.Value, error) {
	if r.closed.Load() {
		return nil, NewError(Closing, "runtime is closed")
	}

	if r.opts.ExecuteTimeout > 0 {
		timer := time.AfterFunc(r.opts.ExecuteTimeout, func() {
			r.vm.Interrupt("execution timeout")
		})
		defer func() {
			timer.Stop()
			r.vm.ClearInterrupt()
		}()
	}

	v, err := r.vm.RunScript(name, src)
	if err != nil {
		return nil, r.failureFromError(err)
	}
	return v, nil
}

// RunFile evaluates the script stored at path.
func (r *Runtime) RunFile(path string) (goja.Value, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return r.RunScript(path, string(src))
}

// Eval evaluates src and decodes the completion value with t.
func (r *Runtime) Eval(src string, t ValueType) (Value, error) {
	v, err := r.RunString(src)
	if err != nil {
		return nil, err
	}
	return r.Decode(v, t)
}

// RunLoop runs jobs until none is queued and no task or function reference
// is outstanding, or until ctx is done.
func (r *Runtime) RunLoop(ctx context.Context) error {
	for {
		r.loop.Run()

		err := r.loop.Wait(ctx)
		switch {
		case err == nil:
			continue
		case errors.Is(err, errLoopIdle):
			return nil
		default:
			return err
		}
	}
}

// Await drives the loop until the promise v settles and returns its
// fulfilment value. A rejection is returned as *Error. Values that are not
// promises are returned as they are.
func (r *Runtime) Await(ctx context.Context, v goja.Value) (goja.Value, error) {
	p, ok := v.Export().(*goja.Promise)
	if !ok {
		return v, nil
	}

	for {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			return p.Result(), nil
		case goja.PromiseStateRejected:
			return nil, r.ToNativeFailure(p.Result())
		}

		r.loop.Run()
		if p.State() != goja.PromiseStatePending {
			continue
		}

		err := r.loop.Wait(ctx)
		switch {
		case err == nil:
		case errors.Is(err, errLoopIdle):
			if p.State() == goja.PromiseStatePending && !r.loop.IsLoopPending() {
				return nil, ErrNeverSettles
			}
		default:
			return nil, err
		}
	}
}

// Set assigns a global variable. Value variants are encoded, other Go values
// are converted by the engine.
func (r *Runtime) Set(name string, v interface{}) error {
	if val, ok := v.(Value); ok {
		hv, err := r.Encode(val)
		if err != nil {
			return err
		}
		return r.vm.Set(name, hv)
	}
	return r.vm.Set(name, v)
}

// Get returns a global variable, or nil if it is not defined.
func (r *Runtime) Get(name string) goja.Value {
	return r.vm.Get(name)
}

// Interrupt aborts the running script with reason. It is safe to call from
// any goroutine.
func (r *Runtime) Interrupt(reason interface{}) {
	r.vm.Interrupt(reason)
}

// ClearInterrupt resets a pending interrupt so the runtime can be reused.
func (r *Runtime) ClearInterrupt() {
	r.vm.ClearInterrupt()
}

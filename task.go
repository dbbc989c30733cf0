package jsbridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TaskFunc is the body of an asynchronous task. It runs on its own goroutine
// and must not touch the engine. ctx is cancelled when the task is aborted
// or the runtime is closed.
type TaskFunc func(ctx context.Context) (Value, error)

// TaskState is the lifecycle state of a Task.
type TaskState int32

const (
	TaskPending TaskState = iota
	TaskResolved
	TaskRejected
	TaskAborted
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskResolved:
		return "resolved"
	case TaskRejected:
		return "rejected"
	case TaskAborted:
		return "aborted"
	}
	return fmt.Sprintf("TaskState(%d)", int32(s))
}

// TaskOption configures Spawn.
type TaskOption func(*taskConfig)

type taskConfig struct {
	signal *AbortSignal
	name   string
}

// WithAbortSignal ties the task to signal. Aborting the signal before the
// task settles rejects it with the AbortError failure.
func WithAbortSignal(signal *AbortSignal) TaskOption {
	return func(cfg *taskConfig) {
		cfg.signal = signal
	}
}

// WithTaskName names the task in logs.
func WithTaskName(name string) TaskOption {
	return func(cfg *taskConfig) {
		cfg.name = name
	}
}

// Task is native work whose outcome settles a promise on the loop goroutine.
// Settlement happens exactly once; an abort that arrives first wins, an
// abort that arrives after settlement is ignored.
type Task struct {
	rt      *Runtime
	id      string
	logger  *zap.Logger
	state   atomic.Int32
	promise goja.Value
	settle  func(ok bool, v goja.Value)
	cancel  context.CancelFunc

	done     chan struct{}
	doneOnce sync.Once
	unsub    func()

	mu     sync.Mutex
	result Value
	err    error
}

func (*Task) isValue() {}

// ID returns the task's unique identifier.
func (t *Task) ID() string { return t.id }

// State returns the current state.
func (t *Task) State() TaskState { return TaskState(t.state.Load()) }

// Done is closed once the task leaves the pending state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Promise returns the host promise settled by the task.
func (t *Task) Promise() goja.Value { return t.promise }

// Result returns the outcome once the task has left the pending state.
func (t *Task) Result() (Value, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// Spawn starts work on a worker goroutine and returns its task. It must be
// called on the loop goroutine; the task's promise is settled there.
func (r *Runtime) Spawn(work TaskFunc, opts ...TaskOption) *Task {
	var cfg taskConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	p, resolve, reject := r.vm.NewPromise()
	t := &Task{
		rt:      r,
		id:      uuid.NewString(),
		promise: r.vm.ToValue(p),
		done:    make(chan struct{}),
	}
	t.settle = func(ok bool, v goja.Value) {
		if ok {
			resolve(v)
		} else {
			reject(v)
		}
	}

	log := r.logger.Named("task").With(zap.String("task", t.id))
	if cfg.name != "" {
		log = log.With(zap.String("name", cfg.name))
	}
	t.logger = log

	if r.closed.Load() {
		failure := NewError(Closing, "runtime is closed")
		t.state.Store(int32(TaskRejected))
		t.finish(nil, failure)
		t.settle(false, r.ToHostException(failure))
		return t
	}

	ctx, cancel := context.WithCancel(r.ctx)
	t.cancel = cancel

	if cfg.signal != nil {
		unsub := cfg.signal.subscribe(func(Value) { t.Abort() })
		t.mu.Lock()
		t.unsub = unsub
		t.mu.Unlock()

		if cfg.signal.Aborted() {
			t.logger.Debug("signal already aborted")
			t.Abort()
			return t
		}
	}

	t.logger.Debug("task spawned")
	r.loop.hold()
	r.workers.Add(1)
	go t.run(ctx, work)
	return t
}

func (t *Task) run(ctx context.Context, work TaskFunc) {
	defer t.rt.workers.Done()
	defer t.rt.loop.release()

	if err := t.rt.sem.Acquire(ctx, 1); err != nil {
		t.complete(nil, err)
		return
	}
	v, err := safeRun(ctx, work)
	t.rt.sem.Release(1)
	t.complete(v, err)
}

func safeRun(ctx context.Context, work TaskFunc) (v Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = Errorf(GenericFailure, "task panicked: %v", p)
		}
	}()
	return work(ctx)
}

// complete hands the outcome to the loop. The state transition happens in
// the job, so an abort observed on the loop before it runs takes precedence.
func (t *Task) complete(v Value, err error) {
	schedErr := t.rt.loop.ScheduleJob(func() {
		if err != nil {
			if !t.transition(TaskRejected) {
				t.logger.Debug("result dropped", zap.Stringer("state", t.State()), zap.Error(err))
				return
			}
			t.finish(nil, err)
			t.settle(false, t.rt.ToHostException(err))
			t.logger.Debug("task rejected", zap.Error(err))
			return
		}

		if t.State() != TaskPending {
			t.logger.Debug("result dropped", zap.Stringer("state", t.State()))
			return
		}
		// encoded before the transition: pending moves to exactly one terminal state
		hv, encErr := t.rt.Encode(v)
		if encErr != nil {
			if !t.transition(TaskRejected) {
				t.logger.Debug("result dropped", zap.Stringer("state", t.State()), zap.Error(encErr))
				return
			}
			t.finish(nil, encErr)
			t.settle(false, t.rt.ToHostException(encErr))
			t.logger.Debug("task rejected", zap.Error(encErr))
			return
		}
		if !t.transition(TaskResolved) {
			t.logger.Debug("result dropped", zap.Stringer("state", t.State()))
			return
		}
		t.finish(v, nil)
		t.settle(true, hv)
		t.logger.Debug("task resolved")
	})
	if schedErr != nil {
		t.logger.Warn("task result dropped, loop is closed", zap.Error(schedErr))
	}
}

func (t *Task) transition(to TaskState) bool {
	return t.state.CompareAndSwap(int32(TaskPending), int32(to))
}

func (t *Task) finish(v Value, err error) {
	t.doneOnce.Do(func() {
		t.mu.Lock()
		t.result, t.err = v, err
		unsub := t.unsub
		t.unsub = nil
		t.mu.Unlock()
		if unsub != nil {
			unsub()
		}
		if t.cancel != nil {
			t.cancel()
		}
		close(t.done)
	})
}

// Abort cancels a pending task and rejects its promise with the AbortError
// failure. It returns false, and changes nothing, when the task already
// settled. It is safe to call from any goroutine.
func (t *Task) Abort() bool {
	if !t.transition(TaskAborted) {
		t.logger.Debug("late abort ignored", zap.Stringer("state", t.State()))
		return false
	}

	failure := abortError()
	t.finish(nil, failure)
	t.logger.Debug("task aborted")

	if err := t.rt.loop.ScheduleJob(func() {
		t.settle(false, t.rt.ToHostException(failure))
	}); err != nil {
		t.logger.Warn("abort rejection dropped, loop is closed", zap.Error(err))
	}
	return true
}

package jsbridge

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func awaitTask(t *testing.T, rt *Runtime, task *Task) (Value, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := rt.Await(ctx, task.Promise())
	if err != nil {
		return nil, err
	}
	return rt.Decode(v, nil)
}

func blockUntilCancelled(ctx context.Context) (Value, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestTask_Resolve(t *testing.T) {
	rt := newTestRuntime(t)

	task := rt.Spawn(func(context.Context) (Value, error) {
		return Int(5), nil
	})
	assert.Len(t, task.ID(), 36)

	v, err := awaitTask(t, rt, task)
	require.NoError(t, err)
	assert.Equal(t, Int(5), v)
	assert.Equal(t, TaskResolved, task.State())

	select {
	case <-task.Done():
	default:
		t.Fatal("done channel not closed")
	}
	res, err := task.Result()
	require.NoError(t, err)
	assert.Equal(t, Int(5), res)
}

func TestTask_Reject(t *testing.T) {
	rt := newTestRuntime(t)

	t.Run("Error", func(t *testing.T) {
		task := rt.Spawn(func(context.Context) (Value, error) {
			return nil, errors.New("boom")
		})
		_, err := awaitTask(t, rt, task)
		var failure *Error
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, "boom", failure.Message)
		assert.Equal(t, GenericFailure, failure.Status)
		assert.Equal(t, TaskRejected, task.State())
	})

	t.Run("Status", func(t *testing.T) {
		task := rt.Spawn(func(context.Context) (Value, error) {
			return nil, NewError(StringExpected, "want text")
		})
		_, err := awaitTask(t, rt, task)
		var failure *Error
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, StringExpected, failure.Status)
	})

	t.Run("Panic", func(t *testing.T) {
		task := rt.Spawn(func(context.Context) (Value, error) {
			panic("oops")
		})
		_, err := awaitTask(t, rt, task)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "task panicked: oops")
	})

	t.Run("Unencodable", func(t *testing.T) {
		task := rt.Spawn(func(context.Context) (Value, error) {
			return Object{Class: &Class{name: "Foreign"}}, nil
		})

		var sawResolved atomic.Bool
		watched := make(chan struct{})
		go func() {
			defer close(watched)
			for {
				if task.State() == TaskResolved {
					sawResolved.Store(true)
				}
				select {
				case <-task.Done():
					if task.State() == TaskResolved {
						sawResolved.Store(true)
					}
					return
				default:
				}
			}
		}()

		_, err := awaitTask(t, rt, task)
		require.Error(t, err)
		<-watched
		assert.Equal(t, TaskRejected, task.State())
		assert.False(t, sawResolved.Load())

		_, resErr := task.Result()
		assert.EqualError(t, resErr, "class Foreign belongs to another runtime")
	})
}

func TestTask_AbortBeforeCompletion(t *testing.T) {
	rt, logs := newObservedRuntime(t)

	task := rt.Spawn(blockUntilCancelled)
	assert.Equal(t, TaskPending, task.State())

	assert.True(t, task.Abort())
	assert.False(t, task.Abort())
	assert.Equal(t, TaskAborted, task.State())

	_, err := awaitTask(t, rt, task)
	assert.True(t, IsAbort(err))
	assert.Equal(t, AbortMessage, err.(*Error).Message)

	require.NoError(t, rt.RunLoop(context.Background()))
	assert.Equal(t, TaskAborted, task.State())
	assert.Equal(t, 1, logs.FilterMessage("result dropped").Len())

	_, err = task.Result()
	assert.True(t, IsAbort(err))
}

func TestTask_LateAbort(t *testing.T) {
	rt, logs := newObservedRuntime(t)

	task := rt.Spawn(func(context.Context) (Value, error) {
		return String("done"), nil
	})
	v, err := awaitTask(t, rt, task)
	require.NoError(t, err)
	assert.Equal(t, String("done"), v)

	assert.False(t, task.Abort())
	assert.Equal(t, TaskResolved, task.State())
	assert.Equal(t, 1, logs.FilterMessage("late abort ignored").Len())
}

// TestTask_AbortRace races an abort against a task that completes at once.
// Whichever side wins, the state and the promise outcome must agree.
func TestTask_AbortRace(t *testing.T) {
	rt := newTestRuntime(t)

	var aborted, resolved int
	for i := 0; i < 200; i++ {
		ctl := NewAbortController()
		task := rt.Spawn(func(context.Context) (Value, error) {
			return Int(1), nil
		}, WithAbortSignal(ctl.Signal()))

		abortDone := make(chan struct{})
		go func() {
			defer close(abortDone)
			ctl.Abort()
		}()

		v, err := awaitTask(t, rt, task)
		<-abortDone

		state := task.State()
		require.NotEqual(t, TaskPending, state, "iteration %d", i)
		require.Equal(t, state == TaskAborted, IsAbort(err), "iteration %d: state %s, err %v", i, state, err)
		require.Equal(t, state == TaskResolved, err == nil, "iteration %d: state %s, err %v", i, state, err)
		if err == nil {
			assert.Equal(t, Int(1), v)
			resolved++
		} else {
			aborted++
		}

		_, resErr := task.Result()
		assert.Equal(t, IsAbort(err), IsAbort(resErr))
	}
	assert.Equal(t, 200, aborted+resolved)
	require.NoError(t, rt.RunLoop(context.Background()))
}

func TestTask_AbortSignal(t *testing.T) {
	rt := newTestRuntime(t)

	t.Run("AbortFromGoroutine", func(t *testing.T) {
		ctl := NewAbortController()
		task := rt.Spawn(blockUntilCancelled, WithAbortSignal(ctl.Signal()))

		go func() {
			time.Sleep(10 * time.Millisecond)
			ctl.Abort()
		}()

		_, err := awaitTask(t, rt, task)
		assert.True(t, IsAbort(err))
		assert.Equal(t, TaskAborted, task.State())
	})

	t.Run("AlreadyAborted", func(t *testing.T) {
		ctl := NewAbortController()
		ctl.Abort()

		var ran atomic.Bool
		task := rt.Spawn(func(context.Context) (Value, error) {
			ran.Store(true)
			return Undefined{}, nil
		}, WithAbortSignal(ctl.Signal()))
		assert.Equal(t, TaskAborted, task.State())
		assert.Equal(t, 0, rt.Loop().Outstanding())

		_, err := awaitTask(t, rt, task)
		assert.True(t, IsAbort(err))
		assert.False(t, ran.Load())
	})

	t.Run("SignalAfterResolve", func(t *testing.T) {
		ctl := NewAbortController()
		task := rt.Spawn(func(context.Context) (Value, error) {
			return Int(1), nil
		}, WithAbortSignal(ctl.Signal()))

		_, err := awaitTask(t, rt, task)
		require.NoError(t, err)
		assert.True(t, ctl.Abort())
		assert.Equal(t, TaskResolved, task.State())
	})
}

func TestTask_ConcurrencyLimit(t *testing.T) {
	rt := newTestRuntime(t, WithMaxConcurrentTasks(1))

	var active, peak atomic.Int32
	work := func(context.Context) (Value, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return Undefined{}, nil
	}

	tasks := []*Task{rt.Spawn(work), rt.Spawn(work), rt.Spawn(work)}
	for _, task := range tasks {
		_, err := awaitTask(t, rt, task)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, peak.Load())
}

func TestTask_ClosedRuntime(t *testing.T) {
	t.Run("SpawnAfterClose", func(t *testing.T) {
		rt, err := NewRuntime()
		require.NoError(t, err)
		require.NoError(t, rt.Close())

		task := rt.Spawn(func(context.Context) (Value, error) {
			return Int(1), nil
		})
		assert.Equal(t, TaskRejected, task.State())
		_, err = task.Result()
		var failure *Error
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, Closing, failure.Status)
	})

	t.Run("CloseCancelsWork", func(t *testing.T) {
		rt, logs := newObservedRuntime(t)

		task := rt.Spawn(blockUntilCancelled, WithTaskName("blocked"))
		require.NoError(t, rt.Close())

		assert.Equal(t, TaskPending, task.State())
		assert.Equal(t, 1, logs.FilterMessage("task result dropped, loop is closed").Len())
		assert.NotZero(t, logs.FilterField(zap.String("name", "blocked")).Len())
	})
}

func TestTaskState_String(t *testing.T) {
	assert.Equal(t, "pending", TaskPending.String())
	assert.Equal(t, "resolved", TaskResolved.String())
	assert.Equal(t, "rejected", TaskRejected.String())
	assert.Equal(t, "aborted", TaskAborted.String())
	assert.Equal(t, "TaskState(9)", TaskState(9).String())
}

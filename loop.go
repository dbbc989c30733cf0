package jsbridge

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrLoopClosed is returned when a job is scheduled on a stopped loop.
	ErrLoopClosed = errors.New("jsbridge: loop is closed")

	// errLoopIdle reports that no job is queued and nothing outstanding can queue one.
	errLoopIdle = errors.New("jsbridge: loop is idle")
)

// Job is a unit of work that must run on the goroutine owning the engine.
type Job func()

// Loop delivers jobs from any goroutine to the single goroutine that owns
// the engine. Holds count outstanding producers (running tasks, live
// function references) that may still schedule a job.
type Loop struct {
	mu     sync.Mutex
	jobs   []Job
	holds  int
	closed bool
	wake   chan struct{}
}

// NewLoop creates an empty loop.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
	}
}

// ScheduleJob queues a job. It is safe to call from any goroutine.
func (l *Loop) ScheduleJob(j Job) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoopClosed
	}
	l.jobs = append(l.jobs, j)
	l.mu.Unlock()

	l.signal()
	return nil
}

// IsLoopPending reports whether a job is waiting to run.
func (l *Loop) IsLoopPending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.jobs) > 0
}

// Outstanding returns the number of producers that may still schedule jobs.
func (l *Loop) Outstanding() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holds
}

// Run executes every queued job, including jobs queued while running, and
// returns how many ran. It must be called on the engine goroutine.
func (l *Loop) Run() int {
	n := 0
	for {
		l.mu.Lock()
		batch := l.jobs
		l.jobs = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return n
		}
		for _, job := range batch {
			job()
			n++
		}
	}
}

// Wait blocks until a job is queued, the context is done, or no job can
// ever arrive (errLoopIdle).
func (l *Loop) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		switch {
		case len(l.jobs) > 0:
			l.mu.Unlock()
			return nil
		case l.holds == 0 || l.closed:
			l.mu.Unlock()
			return errLoopIdle
		}
		l.mu.Unlock()

		select {
		case <-l.wake:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop rejects further jobs and drops the queued ones.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoopClosed
	}
	l.closed = true
	l.jobs = nil
	l.mu.Unlock()

	l.signal()
	return nil
}

func (l *Loop) hold() {
	l.mu.Lock()
	l.holds++
	l.mu.Unlock()
}

func (l *Loop) release() {
	l.mu.Lock()
	if l.holds > 0 {
		l.holds--
	}
	l.mu.Unlock()

	l.signal()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

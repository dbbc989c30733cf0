package jsbridge

import (
	"runtime"
	"time"

	"github.com/dop251/goja_nodejs/console"
	"go.uber.org/zap"
)

// Options configures a Runtime.
type Options struct {
	// Logger receives the runtime's diagnostics. Defaults to Logger().
	Logger *zap.Logger

	// MaxConcurrentTasks bounds how many task bodies run at the same time.
	// Defaults to runtime.NumCPU().
	MaxConcurrentTasks int64

	// MaxCallStackSize limits the engine's call stack depth; 0 keeps the engine default.
	MaxCallStackSize int

	// ExecuteTimeout interrupts a script evaluation that runs longer; 0 disables it.
	ExecuteTimeout time.Duration

	// AbortController installs the AbortController global (default: true).
	AbortController bool

	// Console installs the console global (default: true).
	Console bool

	// ConsolePrinter receives console output. Defaults to the runtime
	// logger, named "console".
	ConsolePrinter console.Printer
}

// Option configures Options using the functional options pattern.
type Option func(*Options)

// WithLogger sets the logger used by the runtime.
func WithLogger(l *zap.Logger) Option {
	return func(opts *Options) {
		opts.Logger = l
	}
}

// WithMaxConcurrentTasks bounds the number of task bodies running at once.
func WithMaxConcurrentTasks(n int64) Option {
	return func(opts *Options) {
		opts.MaxConcurrentTasks = n
	}
}

// WithMaxCallStackSize limits the engine's call stack depth.
func WithMaxCallStackSize(size int) Option {
	return func(opts *Options) {
		opts.MaxCallStackSize = size
	}
}

// WithExecuteTimeout interrupts RunString and RunScript after d.
func WithExecuteTimeout(d time.Duration) Option {
	return func(opts *Options) {
		opts.ExecuteTimeout = d
	}
}

// WithoutAbortController skips installing the AbortController global.
// Signals created on the Go side can still be passed to tasks.
func WithoutAbortController() Option {
	return func(opts *Options) {
		opts.AbortController = false
	}
}

// WithoutConsole skips installing the console global.
func WithoutConsole() Option {
	return func(opts *Options) {
		opts.Console = false
	}
}

// WithConsolePrinter sends console output to p instead of the logger.
func WithConsolePrinter(p console.Printer) Option {
	return func(opts *Options) {
		opts.ConsolePrinter = p
	}
}

func defaultOptions() *Options {
	return &Options{
		MaxConcurrentTasks: int64(runtime.NumCPU()),
		AbortController:    true,
		Console:            true,
	}
}

func (o *Options) normalize() {
	if o.Logger == nil {
		o.Logger = Logger()
	}
	if o.MaxConcurrentTasks <= 0 {
		o.MaxConcurrentTasks = int64(runtime.NumCPU())
	}
}

package jsbridge

import (
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"
)

// consolePrinter routes console.log/warn/error into a zap logger.
type consolePrinter struct {
	logger *zap.Logger
}

func (p consolePrinter) Log(s string)   { p.logger.Info(s) }
func (p consolePrinter) Warn(s string)  { p.logger.Warn(s) }
func (p consolePrinter) Error(s string) { p.logger.Error(s) }

// initRequire enables require() for modules built on this runtime and,
// unless disabled, the console global.
func (r *Runtime) initRequire(withConsole bool) {
	r.registry = require.NewRegistry()
	if withConsole {
		printer := r.opts.ConsolePrinter
		if printer == nil {
			printer = consolePrinter{logger: r.logger.Named("console")}
		}
		r.registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(printer))
	}
	r.registry.Enable(r.vm)
	if withConsole {
		console.Enable(r.vm)
	}
}

// Command jsbridge runs scripts against the `native` example module.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dop251/goja"
	"github.com/peterh/liner"
	"go.uber.org/zap"

	bridge "github.com/buke/jsbridge"
	"github.com/buke/jsbridge/example"
)

const (
	appName     = "jsbridge"
	historyFile = ".jsbridge_history"
	promptMain  = "> "
	promptCont  = "... "
)

func red(s string) string  { return "\x1b[31m" + s + "\x1b[0m" }
func blue(s string) string { return "\x1b[94m" + s + "\x1b[0m" }

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch cmd := os.Args[1]; cmd {
	case "run":
		os.Exit(cmdRun(os.Args[2:]))
	case "repl":
		os.Exit(cmdRepl(os.Args[2:]))
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n", appName, cmd)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Printf(`Usage:
  %s run <file.js>     Run a script, then wait for pending tasks.
  %s repl              Start the REPL.

Set JSBRIDGE_DEBUG=1 for debug logs.
`, appName, appName)
}

func newLogger() *zap.Logger {
	if os.Getenv("JSBRIDGE_DEBUG") == "" {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func newRuntime(logger *zap.Logger) (*bridge.Runtime, error) {
	rt, err := bridge.NewRuntime(bridge.WithLogger(logger), bridge.WithConsolePrinter(stdPrinter{}))
	if err != nil {
		return nil, err
	}
	cwd, err := os.Getwd()
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	if _, err := example.Module(cwd).Build(rt); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

// stdPrinter writes console output to the terminal instead of the logger.
type stdPrinter struct{}

func (stdPrinter) Log(s string)   { fmt.Println(s) }
func (stdPrinter) Warn(s string)  { fmt.Fprintln(os.Stderr, s) }
func (stdPrinter) Error(s string) { fmt.Fprintln(os.Stderr, red(s)) }

// -----------------------------------------------------------------------------
// run
// -----------------------------------------------------------------------------

func cmdRun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintf(os.Stderr, "usage: %s run <file.js>\n", appName)
		return 2
	}

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	rt, err := newRuntime(logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		rt.Interrupt("interrupted")
	}()

	if _, err := rt.RunFile(args[0]); err != nil {
		fmt.Fprintln(os.Stderr, red(formatError(err)))
		return 1
	}
	if err := rt.RunLoop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}
	return 0
}

func formatError(err error) string {
	var failure *bridge.Error
	if errors.As(err, &failure) && failure.Stack != "" {
		return failure.Stack
	}
	return err.Error()
}

// -----------------------------------------------------------------------------
// repl
// -----------------------------------------------------------------------------

func cmdRepl(_ []string) int {
	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	rt, err := newRuntime(logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}
	defer rt.Close()

	fmt.Printf("%s REPL. Type :quit to exit.\n", appName)
	for {
		code, err := readStatement(ln)
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return 0
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, red(err.Error()))
			return 1
		}

		trimmed := strings.TrimSpace(code)
		switch {
		case trimmed == "":
			continue
		case strings.HasPrefix(trimmed, ":"):
			if strings.ToLower(trimmed) == ":quit" {
				return 0
			}
			fmt.Println("unknown command. Type :quit to exit.")
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))

		v, err := rt.RunString(code)
		if err == nil {
			v, err = rt.Await(context.Background(), v)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, red(err.Error()))
			continue
		}
		fmt.Println(blue(inspect(rt, v)))
	}
}

type prompter interface {
	Prompt(prompt string) (string, error)
}

// readStatement reads lines until they form a complete script. It returns
// io.EOF when input ends or the prompt is aborted.
func readStatement(p prompter) (string, error) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := p.Prompt(prompt)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if _, err := goja.Compile("", src, false); err != nil && strings.Contains(err.Error(), "Unexpected end of input") {
			continue
		}
		return src, nil
	}
}

func inspect(rt *bridge.Runtime, v goja.Value) string {
	val, err := rt.Decode(v, nil)
	if err != nil {
		return v.String()
	}
	return bridge.Inspect(val)
}

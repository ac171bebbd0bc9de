// Package script executes user-authored JavaScript in an embedded, isolated
// runtime. Each execution gets a fresh runtime seeded with the run scope and
// a console shim that captures output instead of writing to the process
// streams.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/nodeloom/nodeloom/pkg/schema"
)

// DefaultTimeout bounds script wall-clock time when the node config does not
// set one.
const DefaultTimeout = 5 * time.Second

// Result carries the script's return value and everything it logged through
// the console shim, in emission order.
type Result struct {
	Value   any
	Console []string
}

// Sandbox runs JavaScript sources. It is stateless and safe for concurrent
// use; every Run builds its own runtime.
type Sandbox struct {
	defaultTimeout time.Duration
}

// NewSandbox creates a Sandbox with the given default timeout. A
// non-positive value falls back to DefaultTimeout.
func NewSandbox(defaultTimeout time.Duration) *Sandbox {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	return &Sandbox{defaultTimeout: defaultTimeout}
}

// Run executes source inside a function body, so scripts produce their
// result with a return statement. The scope entries become global bindings
// (input, vars, nodes, run). Execution stops when the script returns, the
// timeout elapses, or ctx is cancelled, whichever comes first.
func (s *Sandbox) Run(ctx context.Context, source string, scope map[string]any, timeout time.Duration) (*Result, error) {
	if strings.TrimSpace(source) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty script source")
	}
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}

	rt := goja.New()
	rt.SetFieldNameMapper(goja.UncapFieldNameMapper())

	var console []string
	if err := installConsole(rt, &console); err != nil {
		return nil, schema.NewError(schema.ErrCodeScript, "install console shim").WithCause(err)
	}
	for name, val := range scope {
		if err := rt.Set(name, val); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeScript, "bind scope variable %q", name).WithCause(err)
		}
	}

	done := make(chan struct{})
	defer close(done)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	go func() {
		select {
		case <-ctx.Done():
			rt.Interrupt(ctx.Err())
		case <-timer.C:
			rt.Interrupt("timeout")
		case <-done:
		}
	}()

	val, err := rt.RunString("(function() {\n" + source + "\n})()")
	if err != nil {
		// Console output captured before the failure still matters to the
		// caller's log stream.
		return &Result{Console: console}, scriptError(ctx, err)
	}

	return &Result{Value: exportValue(val), Console: console}, nil
}

// scriptError maps runtime failures onto engine error codes. Interrupts are
// split by cause: context cancellation surfaces as CANCELLED, the watchdog
// timer as TIMEOUT_ERROR.
func scriptError(ctx context.Context, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if ctx.Err() != nil {
			return schema.NewError(schema.ErrCodeCancelled, "script interrupted").WithCause(ctx.Err())
		}
		return schema.NewError(schema.ErrCodeTimeout, "script exceeded its time limit")
	}

	var exception *goja.Exception
	if errors.As(err, &exception) {
		return schema.NewErrorf(schema.ErrCodeScript, "script threw: %s", exception.Value().String())
	}

	return schema.NewError(schema.ErrCodeScript, "script failed").WithCause(err)
}

// installConsole registers console.log/warn/error, appending each call as a
// formatted line to lines. Warn and error lines carry a level prefix so the
// stream stays readable once flattened.
func installConsole(rt *goja.Runtime, lines *[]string) error {
	writer := func(prefix string) func(call goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, arg := range call.Arguments {
				parts = append(parts, formatConsoleArg(arg.Export()))
			}
			*lines = append(*lines, prefix+strings.Join(parts, " "))
			return goja.Undefined()
		}
	}

	console := rt.NewObject()
	if err := console.Set("log", writer("")); err != nil {
		return err
	}
	if err := console.Set("warn", writer("[warn] ")); err != nil {
		return err
	}
	if err := console.Set("error", writer("[error] ")); err != nil {
		return err
	}
	return rt.Set("console", console)
}

func formatConsoleArg(val any) string {
	switch v := val.(type) {
	case nil:
		return "null"
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

// exportValue converts a goja value to plain Go data. Undefined and null
// both export as nil so downstream consumers see a single empty shape.
func exportValue(val goja.Value) any {
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil
	}
	return val.Export()
}

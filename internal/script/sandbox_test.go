package script

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nodeloom/nodeloom/pkg/schema"
)

func sandboxScope() map[string]any {
	return map[string]any{
		"input": "hello",
		"vars": map[string]any{
			"count": float64(2),
		},
		"nodes": map[string]any{},
		"run":   map[string]any{"id": "run-1"},
	}
}

func TestSandbox_ReturnValue(t *testing.T) {
	sb := NewSandbox(0)

	res, err := sb.Run(context.Background(), `return input + "!"`, sandboxScope(), 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Value != "hello!" {
		t.Errorf("expected %q, got %v", "hello!", res.Value)
	}
}

func TestSandbox_ScopeAccess(t *testing.T) {
	sb := NewSandbox(0)

	res, err := sb.Run(context.Background(),
		`return { doubled: vars.count * 2, run: run.id }`, sandboxScope(), 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	m, ok := res.Value.(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %T", res.Value)
	}
	if m["doubled"] != int64(4) && m["doubled"] != float64(4) {
		t.Errorf("doubled: %v (%T)", m["doubled"], m["doubled"])
	}
	if m["run"] != "run-1" {
		t.Errorf("run: %v", m["run"])
	}
}

func TestSandbox_ConsoleCapture(t *testing.T) {
	sb := NewSandbox(0)

	res, err := sb.Run(context.Background(), `
		console.log("step", 1);
		console.warn("careful");
		console.error("broken");
		return null;
	`, sandboxScope(), 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{"step 1", "[warn] careful", "[error] broken"}
	if len(res.Console) != len(want) {
		t.Fatalf("expected %d console lines, got %v", len(want), res.Console)
	}
	for i, line := range want {
		if res.Console[i] != line {
			t.Errorf("line %d: expected %q, got %q", i, line, res.Console[i])
		}
	}
}

func TestSandbox_NoReturnIsNil(t *testing.T) {
	sb := NewSandbox(0)

	res, err := sb.Run(context.Background(), `console.log("side effect only")`, sandboxScope(), 0)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Value != nil {
		t.Errorf("expected nil value, got %v", res.Value)
	}
}

func TestSandbox_ThrownError(t *testing.T) {
	sb := NewSandbox(0)

	res, err := sb.Run(context.Background(), `
		console.log("before the crash");
		throw new Error("boom");
	`, sandboxScope(), 0)

	var engErr *schema.EngineError
	if !errors.As(err, &engErr) || engErr.Code != schema.ErrCodeScript {
		t.Fatalf("expected SCRIPT_ERROR, got %v", err)
	}
	if res == nil || len(res.Console) != 1 || res.Console[0] != "before the crash" {
		t.Errorf("console output before the failure should survive: %v", res)
	}
}

func TestSandbox_Timeout(t *testing.T) {
	sb := NewSandbox(0)

	start := time.Now()
	_, err := sb.Run(context.Background(), `while (true) {}`, sandboxScope(), 100*time.Millisecond)
	elapsed := time.Since(start)

	var engErr *schema.EngineError
	if !errors.As(err, &engErr) || engErr.Code != schema.ErrCodeTimeout {
		t.Fatalf("expected TIMEOUT_ERROR, got %v", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("interrupt took too long: %v", elapsed)
	}
}

func TestSandbox_ContextCancellation(t *testing.T) {
	sb := NewSandbox(0)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := sb.Run(ctx, `while (true) {}`, sandboxScope(), 10*time.Second)

	var engErr *schema.EngineError
	if !errors.As(err, &engErr) || engErr.Code != schema.ErrCodeCancelled {
		t.Fatalf("expected CANCELLED, got %v", err)
	}
}

func TestSandbox_EmptySource(t *testing.T) {
	sb := NewSandbox(0)

	_, err := sb.Run(context.Background(), "   ", sandboxScope(), 0)

	var engErr *schema.EngineError
	if !errors.As(err, &engErr) || engErr.Code != schema.ErrCodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestSandbox_SyntaxError(t *testing.T) {
	sb := NewSandbox(0)

	_, err := sb.Run(context.Background(), `return {{{`, sandboxScope(), 0)

	var engErr *schema.EngineError
	if !errors.As(err, &engErr) || engErr.Code != schema.ErrCodeScript {
		t.Fatalf("expected SCRIPT_ERROR for syntax failure, got %v", err)
	}
}

package e2e

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeloom/nodeloom/internal/engine"
	"github.com/nodeloom/nodeloom/internal/expressions"
	"github.com/nodeloom/nodeloom/internal/inference"
	"github.com/nodeloom/nodeloom/internal/nodes"
	"github.com/nodeloom/nodeloom/internal/script"
	"github.com/nodeloom/nodeloom/internal/store"
	"github.com/nodeloom/nodeloom/internal/streaming"
	"github.com/nodeloom/nodeloom/internal/tools"
	"github.com/nodeloom/nodeloom/pkg/schema"
)

// stubProvider answers every completion with a fixed string.
type stubProvider struct {
	response string
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Complete(ctx context.Context, req inference.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", schema.NewError(schema.ErrCodeCancelled, "cancelled").WithCause(err)
	}
	return p.response, nil
}

// blockingTool parks until released, signalling when a call starts.
type blockingTool struct {
	started chan struct{}
	release chan struct{}
}

func (t *blockingTool) Name() string                 { return "block" }
func (t *blockingTool) Description() string          { return "Block until released." }
func (t *blockingTool) InputSchema() json.RawMessage { return nil }

func (t *blockingTool) Call(ctx context.Context, _ map[string]any) (any, error) {
	t.started <- struct{}{}
	select {
	case <-ctx.Done():
		return nil, schema.NewError(schema.ErrCodeCancelled, "tool interrupted").WithCause(ctx.Err())
	case <-t.release:
		return "released", nil
	}
}

// stack is a fully wired engine over a temp-file database.
type stack struct {
	runner   *engine.Runner
	store    *store.LibSQLStore
	hub      *streaming.MemoryHub
	registry *tools.Registry
}

func newStack(t *testing.T, provider inference.Provider) *stack {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "e2e.db")
	st, err := store.NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterBuiltins(registry, tools.HTTPConfig{}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)

	executors := nodes.NewExecutors(nodes.Deps{
		Provider: provider,
		Tools:    registry,
		Sandbox:  script.NewSandbox(script.DefaultTimeout),
		Interp:   expressions.NewInterpolator(),
		Expr:     expressions.NewExprEngine(),
		CEL:      cel,
		JQ:       expressions.NewGoJQEngine(),
		Logger:   logger,
	})

	hub := streaming.NewMemoryHub()
	runner := engine.NewRunner(engine.NewRunRegistry(), executors, engine.RunnerOptions{
		Publisher: hub,
		Recorder:  store.NewRecorder(st),
		Logger:    logger,
	})

	return &stack{runner: runner, store: st, hub: hub, registry: registry}
}

func saveAgent(t *testing.T, s *stack, def schema.AgentDefinition) {
	t.Helper()
	require.NoError(t, s.store.SaveAgent(context.Background(), &store.Agent{
		ID:         def.ID,
		Name:       def.Name,
		Definition: def,
	}))
}

// greeterAgent is the canonical prompt → tool → terminal pipeline: the model
// says hello, echo wraps it, and the terminal extracts the wrapped value.
func greeterAgent() schema.AgentDefinition {
	return schema.AgentDefinition{
		ID:        "greeter",
		Name:      "Greeter",
		EntryNode: "ask",
		Nodes: []schema.Node{
			{ID: "ask", Label: "Ask the model", Kind: schema.NodeKindPrompt,
				Config: json.RawMessage(`{"model":"test-model","template":"Say hello to {{input}}"}`)},
			{ID: "wrap", Label: "Wrap output", Kind: schema.NodeKindTool,
				Config: json.RawMessage(`{"tool":"echo","args":{"message":"{{vars.lastOutput}}"}}`)},
			{ID: "done", Kind: schema.NodeKindTerminal,
				Config: json.RawMessage(`{"output":"{{vars.toolResult.message}}"}`)},
		},
		Edges: []schema.Edge{
			{From: "ask", To: "wrap"},
			{From: "wrap", To: "done"},
		},
	}
}

func TestPromptToolTerminalFlow(t *testing.T) {
	s := newStack(t, &stubProvider{response: "hello"})
	def := greeterAgent()
	saveAgent(t, s, def)

	ctx := context.Background()
	events, cancelSub, err := s.hub.Subscribe(ctx, streaming.Filter{AgentID: "greeter"})
	require.NoError(t, err)
	defer cancelSub()

	var entries []schema.LogEntry
	result, err := s.runner.ExecuteWorkflow(ctx, &def, "world", func(e schema.LogEntry) {
		entries = append(entries, e)
	})
	require.NoError(t, err)

	assert.Equal(t, schema.RunStatusCompleted, result.Status)
	assert.Equal(t, "hello", result.Output)
	assert.Equal(t, 3, result.Steps)
	require.Len(t, result.History, 3)

	// One log entry per visited node, in walk order, with the wire types.
	require.Len(t, entries, 3)
	assert.Equal(t, "ask", entries[0].NodeID)
	assert.Equal(t, schema.LogTypeNodeExecution, entries[0].Type)
	assert.Equal(t, "Ask the model", entries[0].NodeLabel)
	assert.Equal(t, "wrap", entries[1].NodeID)
	assert.Equal(t, schema.LogTypeToolCall, entries[1].Type)
	assert.Equal(t, "done", entries[2].NodeID)
	assert.Empty(t, entries[0].Error)

	// Same entries reached the hub.
	for i := 0; i < 3; i++ {
		select {
		case ev := <-events:
			assert.Equal(t, result.RunID, ev.RunID)
		case <-time.After(time.Second):
			t.Fatalf("hub event %d never arrived", i)
		}
	}

	// Run and log are persisted.
	run, err := s.store.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, run.Status)
	assert.Equal(t, "world", run.Input)
	assert.Equal(t, json.RawMessage(`"hello"`), run.Output)

	records, err := s.store.GetRunLog(ctx, result.RunID, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(1), records[0].Sequence)
	assert.Equal(t, "ask", records[0].Entry.NodeID)
}

func TestConditionBranching(t *testing.T) {
	s := newStack(t, &stubProvider{response: "unused"})

	def := schema.AgentDefinition{
		ID:        "router",
		EntryNode: "route",
		Nodes: []schema.Node{
			{ID: "route", Kind: schema.NodeKindCondition,
				Config: json.RawMessage(`{"expression":"input == \"gold\" ? \"vip\" : \"standard\""}`)},
			{ID: "vip", Kind: schema.NodeKindTerminal,
				Config: json.RawMessage(`{"output":"vip lane"}`)},
			{ID: "standard", Kind: schema.NodeKindTerminal,
				Config: json.RawMessage(`{"output":"standard lane"}`)},
		},
		Edges: []schema.Edge{
			{From: "route", To: "vip", Branch: "vip"},
			{From: "route", To: "standard", Branch: "default"},
		},
	}

	result, err := s.runner.ExecuteWorkflow(context.Background(), &def, "gold", nil)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, result.Status)
	assert.Equal(t, "vip lane", result.Output)

	result, err = s.runner.ExecuteWorkflow(context.Background(), &def, "silver", nil)
	require.NoError(t, err)
	assert.Equal(t, "standard lane", result.Output)
}

func TestScriptConsoleInLog(t *testing.T) {
	s := newStack(t, &stubProvider{response: "unused"})

	def := schema.AgentDefinition{
		ID:        "scripted",
		EntryNode: "calc",
		Nodes: []schema.Node{
			{ID: "calc", Kind: schema.NodeKindScript,
				Config: json.RawMessage(`{"source":"console.log(\"computing\"); return 6 * 7"}`)},
			{ID: "done", Kind: schema.NodeKindTerminal,
				Config: json.RawMessage(`{"output":"{{vars.scriptResult}}"}`)},
		},
		Edges: []schema.Edge{{From: "calc", To: "done"}},
	}

	var entries []schema.LogEntry
	result, err := s.runner.ExecuteWorkflow(context.Background(), &def, "", func(e schema.LogEntry) {
		entries = append(entries, e)
	})
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, result.Status)
	assert.Equal(t, int64(42), result.Output)

	require.NotEmpty(t, entries)
	assert.Equal(t, schema.LogTypeJSConsole, entries[0].Type)
}

func TestCancellationMidRun(t *testing.T) {
	s := newStack(t, &stubProvider{response: "unused"})

	bt := &blockingTool{started: make(chan struct{}, 1), release: make(chan struct{})}
	require.NoError(t, s.registry.Register(bt))

	def := schema.AgentDefinition{
		ID:        "long-runner",
		EntryNode: "wait",
		Nodes: []schema.Node{
			{ID: "wait", Kind: schema.NodeKindTool, Config: json.RawMessage(`{"tool":"block"}`)},
			{ID: "done", Kind: schema.NodeKindTerminal},
		},
		Edges: []schema.Edge{{From: "wait", To: "done"}},
	}

	go func() {
		<-bt.started
		s.runner.CancelWorkflow("long-runner")
	}()

	result, err := s.runner.ExecuteWorkflow(context.Background(), &def, "", nil)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCancelled, result.Status)

	run, err := s.store.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCancelled, run.Status)
	assert.False(t, s.runner.IsWorkflowRunning("long-runner"))
}

func TestSecondRunRejectedWhileFirstActive(t *testing.T) {
	s := newStack(t, &stubProvider{response: "unused"})

	bt := &blockingTool{started: make(chan struct{}, 1), release: make(chan struct{})}
	require.NoError(t, s.registry.Register(bt))

	def := schema.AgentDefinition{
		ID:        "busy",
		EntryNode: "wait",
		Nodes: []schema.Node{
			{ID: "wait", Kind: schema.NodeKindTool, Config: json.RawMessage(`{"tool":"block"}`)},
			{ID: "done", Kind: schema.NodeKindTerminal},
		},
		Edges: []schema.Edge{{From: "wait", To: "done"}},
	}

	firstDone := make(chan *schema.RunResult, 1)
	go func() {
		result, _ := s.runner.ExecuteWorkflow(context.Background(), &def, "", nil)
		firstDone <- result
	}()
	<-bt.started

	_, err := s.runner.ExecuteWorkflow(context.Background(), &def, "", nil)
	require.Error(t, err)
	var ee *schema.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, schema.ErrCodeAlreadyRunning, ee.Code)

	close(bt.release)
	result := <-firstDone
	assert.Equal(t, schema.RunStatusCompleted, result.Status)
}

func TestErrorEdgeRecovery(t *testing.T) {
	s := newStack(t, &stubProvider{response: "unused"})

	def := schema.AgentDefinition{
		ID:        "resilient",
		EntryNode: "risky",
		Nodes: []schema.Node{
			{ID: "risky", Kind: schema.NodeKindTool,
				Config: json.RawMessage(`{"tool":"no.such.tool"}`)},
			{ID: "fallback", Kind: schema.NodeKindTerminal,
				Config: json.RawMessage(`{"output":"recovered"}`)},
		},
		Edges: []schema.Edge{
			{From: "risky", To: "fallback", Branch: "error"},
		},
	}

	var entries []schema.LogEntry
	result, err := s.runner.ExecuteWorkflow(context.Background(), &def, "", func(e schema.LogEntry) {
		entries = append(entries, e)
	})
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCompleted, result.Status)
	assert.Equal(t, "recovered", result.Output)

	// The failed node still produced its log entry, error attached.
	require.Len(t, entries, 2)
	require.NotEmpty(t, entries[0].Error)
}

func TestStepLimitHaltsCycle(t *testing.T) {
	s := newStack(t, &stubProvider{response: "unused"})

	def := schema.AgentDefinition{
		ID:        "spinner",
		EntryNode: "a",
		MaxSteps:  5,
		Nodes: []schema.Node{
			{ID: "a", Kind: schema.NodeKindScript, Config: json.RawMessage(`{"source":"return 1"}`)},
			{ID: "b", Kind: schema.NodeKindScript, Config: json.RawMessage(`{"source":"return 2"}`)},
		},
		Edges: []schema.Edge{
			{From: "a", To: "b"},
			{From: "b", To: "a"},
		},
	}

	result, err := s.runner.ExecuteWorkflow(context.Background(), &def, "", nil)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusFailed, result.Status)
	assert.Equal(t, 5, result.Steps)
}

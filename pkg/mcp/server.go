// Package mcp exposes the agent engine over the Model Context Protocol.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nodeloom/nodeloom/internal/engine"
	"github.com/nodeloom/nodeloom/internal/store"
	"github.com/nodeloom/nodeloom/internal/streaming"
	"github.com/nodeloom/nodeloom/internal/validation"
	"github.com/nodeloom/nodeloom/pkg/schema"
)

// Runner is the engine surface the MCP tools drive.
// Satisfied by *engine.Runner.
type Runner interface {
	ExecuteWorkflow(ctx context.Context, agent *schema.AgentDefinition, input string, onNode func(schema.LogEntry)) (*schema.RunResult, error)
	CancelWorkflow(agentID string) bool
	IsWorkflowRunning(agentID string) bool
	ActiveRuns() []engine.RunInfo
}

// LoomServerDeps holds the dependencies for creating a LoomServer.
type LoomServerDeps struct {
	Runner    Runner
	Store     store.Store
	Validator validation.Validator
	Hub       streaming.Hub
	Logger    *slog.Logger
}

// LoomServer wraps an MCP server with agent-engine tool handlers.
type LoomServer struct {
	runner    Runner
	store     store.Store
	validator validation.Validator
	hub       streaming.Hub
	sessions  *SessionRegistry
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewLoomServer creates a LoomServer with all six tools registered.
func NewLoomServer(deps LoomServerDeps) *LoomServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	s := &LoomServer{
		runner:    deps.Runner,
		store:     deps.Store,
		validator: deps.Validator,
		hub:       deps.Hub,
		sessions:  NewSessionRegistry(),
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"nodeloom",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Nodeloom executes user-authored agent node graphs. Use agent.define to register an agent, agent.execute to run it, agent.cancel to stop a run, agent.status to check progress, agent.logs to read the run log, agent.query to list agents and runs, and agent.diagram to visualize a graph."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or
// stdin closes.
func (s *LoomServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *LoomServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Sessions returns the session registry, used by the log notifier.
func (s *LoomServer) Sessions() *SessionRegistry {
	return s.sessions
}

func (s *LoomServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: executeTool(), Handler: s.handleExecute},
		{Tool: cancelTool(), Handler: s.handleCancel},
		{Tool: statusTool(), Handler: s.handleStatus},
		{Tool: logsTool(), Handler: s.handleLogs},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func defineTool() mcp.Tool {
	return mcp.NewTool("agent.define",
		mcp.WithDescription("Register or update an agent definition (node graph)"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Agent definition object: id, entry_node, nodes, edges")),
	)
}

func executeTool() mcp.Tool {
	return mcp.NewTool("agent.execute",
		mcp.WithDescription("Execute an agent and wait for the result. Log entries stream as notifications while the run progresses"),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("ID of the agent to run")),
		mcp.WithString("input", mcp.Description("Input text passed to the run")),
	)
}

func cancelTool() mcp.Tool {
	return mcp.NewTool("agent.cancel",
		mcp.WithDescription("Cancel the agent's in-flight run"),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("ID of the agent whose run to cancel")),
	)
}

func statusTool() mcp.Tool {
	return mcp.NewTool("agent.status",
		mcp.WithDescription("Get an agent's current run state, or a specific run by ID"),
		mcp.WithString("agent_id", mcp.Description("Agent to report on")),
		mcp.WithString("run_id", mcp.Description("Specific run to report on (overrides agent_id)")),
	)
}

func logsTool() mcp.Tool {
	return mcp.NewTool("agent.logs",
		mcp.WithDescription("Read a run's log entries, optionally resuming after a sequence number"),
		mcp.WithString("run_id", mcp.Required(), mcp.Description("Run whose log to read")),
		mcp.WithNumber("since", mcp.Description("Return entries with sequence greater than this (default 0)")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("agent.query",
		mcp.WithDescription("List agents or runs"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("agents", "runs"),
			mcp.Description("Type of resource to list"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (agent_id, status, limit)")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("agent.diagram",
		mcp.WithDescription("Render an agent's node graph as Mermaid flowchart syntax"),
		mcp.WithString("agent_id", mcp.Required(), mcp.Description("Agent to render")),
	)
}

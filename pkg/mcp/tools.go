package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nodeloom/nodeloom/internal/diagram"
	"github.com/nodeloom/nodeloom/internal/store"
	"github.com/nodeloom/nodeloom/pkg/schema"
)

// handleDefine validates and stores an agent definition.
func (s *LoomServer) handleDefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defRaw := mcp.ParseStringMap(req, "definition", nil)
	if defRaw == nil {
		return mcp.NewToolResultError("definition is required"), nil
	}

	defBytes, err := json.Marshal(defRaw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", err)), nil
	}
	var def schema.AgentDefinition
	if err := json.Unmarshal(defBytes, &def); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", err)), nil
	}

	if err := s.validator.ValidateDefinition(&def); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("definition rejected: %v", err)), nil
	}

	now := time.Now().UTC()
	if err := s.store.SaveAgent(ctx, &store.Agent{
		ID:         def.ID,
		Name:       def.Name,
		Definition: def,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save agent: %v", err)), nil
	}

	return marshalResult(map[string]any{
		"agent_id": def.ID,
		"nodes":    len(def.Nodes),
		"edges":    len(def.Edges),
	})
}

// handleExecute runs an agent to completion. The caller's session receives
// log entries as notifications while the run progresses.
func (s *LoomServer) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := req.RequireString("agent_id")
	if err != nil {
		return mcp.NewToolResultError("agent_id is required"), nil
	}
	input := req.GetString("input", "")

	s.captureSession(ctx, agentID)

	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("agent lookup failed: %v", err)), nil
	}

	result, err := s.runner.ExecuteWorkflow(ctx, &agent.Definition, input, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("execution failed: %v", err)), nil
	}

	return marshalResult(result)
}

// handleCancel requests cancellation of the agent's in-flight run.
func (s *LoomServer) handleCancel(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := req.RequireString("agent_id")
	if err != nil {
		return mcp.NewToolResultError("agent_id is required"), nil
	}

	cancelled := s.runner.CancelWorkflow(agentID)
	return marshalResult(map[string]any{
		"agent_id":  agentID,
		"cancelled": cancelled,
	})
}

// handleStatus reports the live run if one is in flight, otherwise the most
// recent stored run.
func (s *LoomServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID := req.GetString("agent_id", "")
	runID := req.GetString("run_id", "")
	if agentID == "" && runID == "" {
		return mcp.NewToolResultError("agent_id or run_id is required"), nil
	}

	if runID != "" {
		run, err := s.store.GetRun(ctx, runID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", err)), nil
		}
		return marshalResult(run)
	}

	for _, info := range s.runner.ActiveRuns() {
		if info.AgentID == agentID {
			return marshalResult(map[string]any{
				"agent_id":   agentID,
				"run_id":     info.RunID,
				"status":     schema.RunStatusRunning,
				"started_at": info.StartedAt,
			})
		}
	}

	runs, err := s.store.ListRuns(ctx, store.RunFilter{AgentID: agentID, Limit: 1})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("run lookup failed: %v", err)), nil
	}
	if len(runs) == 0 {
		return marshalResult(map[string]any{
			"agent_id": agentID,
			"status":   "idle",
		})
	}
	return marshalResult(runs[0])
}

// handleLogs reads a run's persisted log, resuming after a sequence number.
func (s *LoomServer) handleLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}
	since := int64(req.GetFloat("since", 0))

	records, err := s.store.GetRunLog(ctx, runID, since)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("log read failed: %v", err)), nil
	}

	entries := make([]schema.LogEntry, 0, len(records))
	last := since
	for _, rec := range records {
		entries = append(entries, rec.Entry)
		last = rec.Sequence
	}

	return marshalResult(map[string]any{
		"run_id":        runID,
		"entries":       entries,
		"last_sequence": last,
	})
}

// handleQuery lists agents or runs.
func (s *LoomServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}
	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "agents":
		agents, err := s.store.ListAgents(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}
		return marshalResult(map[string]any{"agents": agents})
	case "runs":
		rf := store.RunFilter{Limit: extractInt(filter, "limit", 50)}
		if agentID, ok := filter["agent_id"].(string); ok {
			rf.AgentID = agentID
		}
		if status, ok := filter["status"].(string); ok {
			rf.Status = schema.RunStatus(status)
		}
		runs, err := s.store.ListRuns(ctx, rf)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}
		return marshalResult(map[string]any{"runs": runs})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// handleDiagram renders an agent's graph as Mermaid flowchart text.
func (s *LoomServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := req.RequireString("agent_id")
	if err != nil {
		return mcp.NewToolResultError("agent_id is required"), nil
	}

	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("agent lookup failed: %v", err)), nil
	}

	return mcp.NewToolResultText(diagram.RenderMermaid(&agent.Definition)), nil
}

// --- Internal helpers ---

// captureSession maps the agent ID to the caller's MCP session so the log
// notifier can push entries back to it.
func (s *LoomServer) captureSession(ctx context.Context, agentID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(agentID, session.SessionID())
	}
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// marshalResult converts a value to a JSON tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}

// Package streaming fans run log entries out to live subscribers (the
// inspector UI, the MCP surface). Publishing never blocks a run.
package streaming

import (
	"context"

	"github.com/nodeloom/nodeloom/pkg/schema"
)

// LogEvent is one log entry tagged with its run coordinates.
type LogEvent struct {
	AgentID string          `json:"agent_id"`
	RunID   string          `json:"run_id"`
	Entry   schema.LogEntry `json:"entry"`
}

// Filter narrows a subscription. Zero values match everything.
type Filter struct {
	AgentID string           `json:"agent_id,omitempty"`
	RunID   string           `json:"run_id,omitempty"`
	Types   []schema.LogType `json:"types,omitempty"`
}

// Hub provides pub/sub over run log events.
type Hub interface {
	Publish(agentID, runID string, entry schema.LogEntry)
	Subscribe(ctx context.Context, filter Filter) (<-chan LogEvent, func(), error)
}

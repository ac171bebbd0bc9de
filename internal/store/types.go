package store

import (
	"encoding/json"
	"time"

	"github.com/nodeloom/nodeloom/pkg/schema"
)

// Agent is a persisted agent definition plus bookkeeping.
type Agent struct {
	ID         string                  `json:"id"`
	Name       string                  `json:"name,omitempty"`
	Definition schema.AgentDefinition  `json:"definition"`
	CreatedAt  time.Time               `json:"created_at"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

// Run is the persisted record of one workflow run.
type Run struct {
	ID          string           `json:"id"`
	AgentID     string           `json:"agent_id"`
	Status      schema.RunStatus `json:"status"`
	Input       string           `json:"input,omitempty"`
	Output      json.RawMessage  `json:"output,omitempty"`
	Steps       int              `json:"steps"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// RunUpdate carries the mutable fields written when a run ends.
type RunUpdate struct {
	Status      *schema.RunStatus
	Output      json.RawMessage
	Steps       *int
	CompletedAt *time.Time
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	AgentID string
	Status  schema.RunStatus
	Limit   int
}

// LogRecord is one persisted log entry with its per-run sequence number.
type LogRecord struct {
	AgentID   string          `json:"agent_id"`
	RunID     string          `json:"run_id"`
	Sequence  int64           `json:"sequence"`
	Entry     schema.LogEntry `json:"entry"`
	Timestamp time.Time       `json:"timestamp"`
}

// ScheduledJob triggers an agent run on a cron schedule.
type ScheduledJob struct {
	ID        string     `json:"id"`
	AgentID   string     `json:"agent_id"`
	CronExpr  string     `json:"cron_expr"`
	Input     string     `json:"input,omitempty"`
	Enabled   bool       `json:"enabled"`
	CreatedAt time.Time  `json:"created_at"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
}

// ScheduledJobUpdate carries mutable scheduled-job fields.
type ScheduledJobUpdate struct {
	CronExpr  *string
	Input     *string
	Enabled   *bool
	LastRunAt *time.Time
}

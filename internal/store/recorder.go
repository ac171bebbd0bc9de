package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nodeloom/nodeloom/pkg/schema"
)

// Recorder persists run lifecycle events and log entries. It plugs into the
// engine runner as its run recorder.
type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) RunStarted(ctx context.Context, agentID, runID, input string, startedAt time.Time) error {
	return r.store.CreateRun(ctx, &Run{
		ID:        runID,
		AgentID:   agentID,
		Status:    schema.RunStatusRunning,
		Input:     input,
		StartedAt: startedAt,
	})
}

func (r *Recorder) AppendRunLog(ctx context.Context, agentID, runID string, entry schema.LogEntry) error {
	return r.store.AppendLog(ctx, &LogRecord{
		AgentID:   agentID,
		RunID:     runID,
		Entry:     entry,
		Timestamp: entry.Timestamp,
	})
}

func (r *Recorder) RunFinished(ctx context.Context, result *schema.RunResult) error {
	var output json.RawMessage
	if result.Output != nil {
		raw, err := json.Marshal(result.Output)
		if err != nil {
			return fmt.Errorf("marshal run output: %w", err)
		}
		output = raw
	}
	status := result.Status
	steps := result.Steps
	completed := result.CompletedAt
	return r.store.UpdateRun(ctx, result.RunID, RunUpdate{
		Status:      &status,
		Output:      output,
		Steps:       &steps,
		CompletedAt: &completed,
	})
}

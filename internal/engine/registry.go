package engine

import (
	"context"
	"sync"
	"time"

	"github.com/nodeloom/nodeloom/pkg/schema"
)

// RunInfo is a snapshot of one in-flight run.
type RunInfo struct {
	AgentID   string    `json:"agent_id"`
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}

// runHandle tracks a single in-flight run.
type runHandle struct {
	agentID   string
	runID     string
	startedAt time.Time
	cancel    context.CancelFunc
}

// RunRegistry enforces at-most-one concurrent run per agent and routes
// cancellation signals to in-flight runs. Constructed once at startup and
// injected; all methods are safe for concurrent use.
type RunRegistry struct {
	mu      sync.Mutex
	running map[string]*runHandle
}

// NewRunRegistry creates an empty registry.
func NewRunRegistry() *RunRegistry {
	return &RunRegistry{running: make(map[string]*runHandle)}
}

// Acquire registers a run for agentID. Fails fast with ALREADY_RUNNING when
// the agent has a live run; concurrent starts never queue.
func (r *RunRegistry) Acquire(agentID, runID string, cancel context.CancelFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.running[agentID]; ok {
		return schema.NewErrorf(schema.ErrCodeAlreadyRunning,
			"agent %q already has run %s in flight", agentID, existing.runID).
			WithDetails(map[string]any{"agent_id": agentID, "run_id": existing.runID})
	}

	r.running[agentID] = &runHandle{
		agentID:   agentID,
		runID:     runID,
		startedAt: time.Now().UTC(),
		cancel:    cancel,
	}
	return nil
}

// Release removes the run for agentID. Releasing under a different runID is
// a no-op, so a stale release cannot evict a newer run.
func (r *RunRegistry) Release(agentID, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if handle, ok := r.running[agentID]; ok && handle.runID == runID {
		delete(r.running, agentID)
	}
}

// Cancel signals the agent's in-flight run. Returns whether a run was found;
// cancelling an idle agent is not an error.
func (r *RunRegistry) Cancel(agentID string) bool {
	r.mu.Lock()
	handle, ok := r.running[agentID]
	r.mu.Unlock()

	if !ok {
		return false
	}
	handle.cancel()
	return true
}

// IsRunning reports whether the agent has a live run.
func (r *RunRegistry) IsRunning(agentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.running[agentID]
	return ok
}

// Active returns a snapshot of all in-flight runs.
func (r *RunRegistry) Active() []RunInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]RunInfo, 0, len(r.running))
	for _, h := range r.running {
		infos = append(infos, RunInfo{
			AgentID:   h.agentID,
			RunID:     h.runID,
			StartedAt: h.startedAt,
		})
	}
	return infos
}

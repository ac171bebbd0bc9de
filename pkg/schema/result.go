package schema

import "time"

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusStarting  RunStatus = "starting"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusCancelled
}

// RunResult is the overall outcome of one workflow run. Output is nil for
// failed and cancelled runs; the per-node history carries the diagnostics.
type RunResult struct {
	RunID       string       `json:"run_id"`
	AgentID     string       `json:"agent_id"`
	Status      RunStatus    `json:"status"`
	Output      any          `json:"output,omitempty"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at"`
	Steps       int          `json:"steps"`
	History     []NodeResult `json:"history,omitempty"`
}

// LogType classifies a log entry for the inspector.
type LogType string

const (
	LogTypeToolCall      LogType = "tool-call"
	LogTypeNodeExecution LogType = "node-execution"
	LogTypeJSConsole     LogType = "js-console"
)

// NodeResult is the immutable record of one node execution. It is appended
// to the run history and forwarded verbatim (as a LogEntry) to the caller's
// per-node callback.
type NodeResult struct {
	NodeID     string    `json:"node_id"`
	NodeLabel  string    `json:"node_label,omitempty"`
	Kind       NodeKind  `json:"kind"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Input      any       `json:"input,omitempty"`
	Output     any       `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	Branch     string    `json:"branch,omitempty"`  // condition nodes: selected branch value
	Console    []string  `json:"console,omitempty"` // script nodes: captured console output
}

// Failed reports whether the node execution errored.
func (r *NodeResult) Failed() bool {
	return r.Error != ""
}

// LogEntry is the wire shape consumed by the log inspector. Field names and
// the type classification are display contracts; do not rename.
type LogEntry struct {
	NodeID     string    `json:"nodeId"`
	Type       LogType   `json:"type"`
	Title      string    `json:"title"`
	NodeLabel  string    `json:"nodeLabel,omitempty"`
	Input      any       `json:"input,omitempty"`
	Output     any       `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"durationMs"`
	Timestamp  time.Time `json:"timestamp"`
}

// LogEntry converts the result into its inspector representation.
// Tool nodes classify as tool-call, script nodes as js-console, everything
// else as node-execution.
func (r *NodeResult) LogEntry() LogEntry {
	entry := LogEntry{
		NodeID:     r.NodeID,
		Type:       logType(r.Kind),
		Title:      logTitle(r.Kind),
		NodeLabel:  r.NodeLabel,
		Input:      r.Input,
		Output:     r.Output,
		Error:      r.Error,
		DurationMs: r.DurationMs,
		Timestamp:  r.StartedAt,
	}
	// Script console lines are the js-console payload; they take precedence
	// over the script's return value in the inspector view.
	if r.Kind == NodeKindScript && len(r.Console) > 0 {
		entry.Output = r.Console
	}
	return entry
}

func logType(kind NodeKind) LogType {
	switch kind {
	case NodeKindTool:
		return LogTypeToolCall
	case NodeKindScript:
		return LogTypeJSConsole
	default:
		return LogTypeNodeExecution
	}
}

func logTitle(kind NodeKind) string {
	switch kind {
	case NodeKindPrompt:
		return "Model Call"
	case NodeKindTool:
		return "Tool Call"
	case NodeKindScript:
		return "Script"
	case NodeKindCondition:
		return "Condition"
	case NodeKindTerminal:
		return "End"
	default:
		return string(kind)
	}
}

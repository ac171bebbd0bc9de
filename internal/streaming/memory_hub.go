package streaming

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nodeloom/nodeloom/pkg/schema"
)

const defaultChannelBuffer = 64

type subscriber struct {
	ch     chan LogEvent
	filter Filter
}

// MemoryHub is the in-process Hub implementation.
type MemoryHub struct {
	mu   sync.RWMutex
	subs map[uint64]*subscriber
	seq  atomic.Uint64
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[uint64]*subscriber)}
}

// Publish delivers the entry to every matching subscriber. Slow subscribers
// with full buffers miss the event rather than stalling the run.
func (h *MemoryHub) Publish(agentID, runID string, entry schema.LogEntry) {
	event := LogEvent{AgentID: agentID, RunID: runID, Entry: entry}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !matchFilter(sub.filter, event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// Subscribe registers a filtered subscription. The returned cancel func
// removes it; the channel is not closed, so a racing Publish stays safe.
func (h *MemoryHub) Subscribe(ctx context.Context, filter Filter) (<-chan LogEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	id := h.seq.Add(1)
	ch := make(chan LogEvent, defaultChannelBuffer)

	h.mu.Lock()
	h.subs[id] = &subscriber{ch: ch, filter: filter}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
	return ch, cancel, nil
}

func matchFilter(f Filter, e LogEvent) bool {
	if f.AgentID != "" && f.AgentID != e.AgentID {
		return false
	}
	if f.RunID != "" && f.RunID != e.RunID {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == e.Entry.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

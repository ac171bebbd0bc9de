package inference

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nodeloom/nodeloom/pkg/schema"
)

// DefaultMaxConcurrent is the per-model concurrency cap when none is
// configured.
const DefaultMaxConcurrent = 2

// Queue wraps a Provider and limits in-flight requests per model. Each model
// gets its own slot pool, created on first use, so a saturated model does
// not stall requests for other models. Waiting callers are released when
// their context is cancelled.
type Queue struct {
	provider      Provider
	maxConcurrent int
	logger        *slog.Logger

	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewQueue creates a Queue over provider. maxConcurrent caps concurrent
// requests per model; non-positive values fall back to DefaultMaxConcurrent.
func NewQueue(provider Provider, maxConcurrent int, logger *slog.Logger) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		provider:      provider,
		maxConcurrent: maxConcurrent,
		logger:        logger,
		slots:         make(map[string]chan struct{}),
	}
}

func (q *Queue) Name() string { return q.provider.Name() }

// Complete acquires a slot for the request's model, then delegates to the
// wrapped provider. Blocks while the model is at capacity.
func (q *Queue) Complete(ctx context.Context, req Request) (string, error) {
	slot := q.slotsFor(req.Model)

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return "", schema.NewErrorf(schema.ErrCodeCancelled, "gave up waiting for model %q", req.Model).
			WithCause(ctx.Err())
	}
	defer func() { <-slot }()

	q.logger.DebugContext(ctx, "dispatching completion",
		"model", req.Model,
		"provider", q.provider.Name())

	return q.provider.Complete(ctx, req)
}

func (q *Queue) slotsFor(model string) chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()

	slot, ok := q.slots[model]
	if !ok {
		slot = make(chan struct{}, q.maxConcurrent)
		q.slots[model] = slot
	}
	return slot
}

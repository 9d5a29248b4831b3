/*
syncqueue.go - Best-effort replication queue

PURPOSE:
  Committed ledger operations are offered to an external consumer (a backup
  service, an analytics pipeline) without ever holding up the counter.
  Enqueue never blocks and never fails a ledger operation; delivery happens
  on a background flush loop with retry.

DELIVERY SEMANTICS:
  At-least-once. A flush that fails keeps the action queued for the next
  round, so the consumer must deduplicate by IdempotencyKey. Actions are
  delivered oldest-first; a failure stops the round to preserve order.
*/
package pos

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/pos-ledger/ledger"
)

// =============================================================================
// SINK
// =============================================================================

// Sink consumes replicated actions. Deliver returning an error leaves the
// action queued for retry.
type Sink interface {
	Deliver(ctx context.Context, action ledger.Action) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, action ledger.Action) error

func (f SinkFunc) Deliver(ctx context.Context, action ledger.Action) error {
	return f(ctx, action)
}

// =============================================================================
// QUEUE
// =============================================================================

// Queue implements ledger.SyncQueue: an in-memory FIFO of committed actions,
// flushed to a Sink on an interval.
type Queue struct {
	sink     Sink
	interval time.Duration
	log      zerolog.Logger

	mu      sync.Mutex
	pending []ledger.Action
	seen    map[string]struct{}

	wake chan struct{}
	done chan struct{}
}

func NewQueue(sink Sink, interval time.Duration, log zerolog.Logger) *Queue {
	return &Queue{
		sink:     sink,
		interval: interval,
		log:      log,
		seen:     make(map[string]struct{}),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Enqueue accepts a committed action. Never blocks; a duplicate idempotency
// key is dropped silently (expected on operation retries).
func (q *Queue) Enqueue(action ledger.Action) {
	q.mu.Lock()
	if _, dup := q.seen[action.IdempotencyKey]; dup {
		q.mu.Unlock()
		q.log.Debug().Str("key", action.IdempotencyKey).
			Msg("dropping duplicate sync action")
		return
	}
	q.seen[action.IdempotencyKey] = struct{}{}
	q.pending = append(q.pending, action)
	n := len(q.pending)
	q.mu.Unlock()

	q.log.Debug().Str("kind", string(action.Kind)).Int("pending", n).
		Msg("sync action queued")

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pending returns how many actions await delivery.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Start runs the flush loop until ctx is cancelled. A final flush is
// attempted on shutdown.
func (q *Queue) Start(ctx context.Context) {
	defer close(q.done)
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.Flush(context.Background())
			return
		case <-ticker.C:
			q.Flush(ctx)
		case <-q.wake:
			q.Flush(ctx)
		}
	}
}

// Wait blocks until the flush loop has exited.
func (q *Queue) Wait() {
	<-q.done
}

// Flush delivers queued actions oldest-first, stopping at the first failure
// so ordering is preserved across retries. Returns how many were delivered.
func (q *Queue) Flush(ctx context.Context) int {
	q.mu.Lock()
	batch := make([]ledger.Action, len(q.pending))
	copy(batch, q.pending)
	q.mu.Unlock()

	delivered := 0
	for _, action := range batch {
		if err := q.sink.Deliver(ctx, action); err != nil {
			q.log.Warn().Err(err).Str("kind", string(action.Kind)).
				Str("key", action.IdempotencyKey).
				Msg("sync delivery failed, will retry")
			break
		}
		delivered++
	}

	if delivered > 0 {
		q.mu.Lock()
		// Dedup only matters while an action can still be retried; dropping
		// delivered keys keeps the map bounded by the pending backlog.
		for _, action := range batch[:delivered] {
			delete(q.seen, action.IdempotencyKey)
		}
		q.pending = q.pending[delivered:]
		q.mu.Unlock()
		q.log.Debug().Int("delivered", delivered).Msg("sync flush complete")
	}
	return delivered
}

package queue

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ovalsounds/stumpcast/internal/event"
	"github.com/ovalsounds/stumpcast/internal/state"
)

var (
	// ErrDuplicate is returned by Admit for an event id that was already
	// admitted or committed.
	ErrDuplicate = errors.New("queue: duplicate event")

	// ErrClosed is returned once the queue is closed and drained.
	ErrClosed = errors.New("queue: closed")
)

// DefaultDedupLimit bounds the remembered-id set. Oldest ids are forgotten
// first once the limit is reached.
const DefaultDedupLimit = 10000

// Option is a functional option for Queue.
type Option func(*Queue)

// WithDedupLimit overrides the size of the remembered-id set.
func WithDedupLimit(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.limit = n
		}
	}
}

// Queue is the single buffer between the stream client and the orchestrator.
// Safe for concurrent use; Next is intended for a single consumer.
type Queue struct {
	store *state.Store

	mu      sync.Mutex
	pending eventHeap
	seq     uint64
	seen    map[string]struct{}
	order   []string
	limit   int
	closed  bool

	// notify wakes a blocked Next after an admit; cap 1 so admits never block.
	notify chan struct{}
	// done unblocks Next permanently once the queue is closed.
	done chan struct{}
}

// New creates a Queue checkpointing through store. Call store.Load before
// New so the last committed id survives a restart into the dedup set.
func New(store *state.Store, opts ...Option) *Queue {
	q := &Queue{
		store:  store,
		seen:   make(map[string]struct{}),
		limit:  DefaultDedupLimit,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	heap.Init(&q.pending)

	if id := store.Snapshot().LastSpokenEventID; id != "" {
		q.rememberLocked(id)
	}
	return q
}

// Admit offers an event to the queue. Returns ErrDuplicate for an already
// seen id and ErrClosed after Close.
func (q *Queue) Admit(ev event.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if _, dup := q.seen[ev.ID]; dup {
		return ErrDuplicate
	}
	q.rememberLocked(ev.ID)
	q.seq++
	heap.Push(&q.pending, entry{ev: ev, seq: q.seq})

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Next returns the highest-priority pending event, blocking until one is
// admitted, ctx is cancelled, or the queue is closed and empty.
func (q *Queue) Next(ctx context.Context) (event.Event, error) {
	for {
		q.mu.Lock()
		if q.pending.Len() > 0 {
			e := heap.Pop(&q.pending).(entry)
			q.mu.Unlock()
			return e.ev, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return event.Event{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return event.Event{}, ctx.Err()
		case <-q.done:
		case <-q.notify:
		}
	}
}

// Commit records eventID as spoken: it is added to the dedup set and written
// to the durable checkpoint. Checkpoint write failures are logged and
// swallowed; the in-memory checkpoint still advances.
func (q *Queue) Commit(eventID string) {
	q.mu.Lock()
	if _, ok := q.seen[eventID]; !ok {
		q.rememberLocked(eventID)
	}
	q.mu.Unlock()

	if err := q.store.Commit(eventID); err != nil {
		slog.Error("checkpoint write failed", "event_id", eventID, "error", err)
	}
}

// Checkpoint returns the last committed event id, or empty if none.
func (q *Queue) Checkpoint() string {
	return q.store.Snapshot().LastSpokenEventID
}

// SetMatch switches the checkpoint to a new match and forgets all seen ids;
// event ids are only unique within a match.
func (q *Queue) SetMatch(matchID string) {
	q.mu.Lock()
	q.seen = make(map[string]struct{})
	q.order = q.order[:0]
	q.mu.Unlock()

	if err := q.store.SetMatch(matchID); err != nil {
		slog.Error("checkpoint write failed", "match_id", matchID, "error", err)
	}
}

// Depth returns the number of pending events.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// Close stops admission. Pending events still drain through Next, after
// which Next returns ErrClosed. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// rememberLocked adds id to the dedup set, evicting the oldest id beyond the
// limit. Callers hold mu (or own the queue exclusively during New).
func (q *Queue) rememberLocked(id string) {
	q.seen[id] = struct{}{}
	q.order = append(q.order, id)
	for len(q.order) > q.limit {
		delete(q.seen, q.order[0])
		q.order = q.order[1:]
	}
}

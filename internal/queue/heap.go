// Package queue admits commentary events exactly once and hands them to the
// orchestrator in priority order.
//
// Admission dedups by event id against a bounded FIFO set, so reconnect
// catch-up can safely replay the tail of the stream. Commit advances the
// durable checkpoint via the state store. Within a priority level events
// leave in arrival order; across levels, smaller priority values always
// leave first.
package queue

import "github.com/ovalsounds/stumpcast/internal/event"

// entry is one queued event plus the admission sequence number used to keep
// FIFO order inside a priority level.
type entry struct {
	ev  event.Event
	seq uint64
}

// eventHeap is a min-heap of entries: lowest priority value first, then
// lowest sequence number.
type eventHeap []entry

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].ev.Priority != h[j].ev.Priority {
		return h[i].ev.Priority < h[j].ev.Priority
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(entry))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

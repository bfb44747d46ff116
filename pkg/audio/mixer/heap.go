// Package mixer provides the engine's realtime audio core: a looping
// ambience bed, a ducking gain controller, and a single-slot speech mixer
// with priority preemption. The [Engine] implements [io.Reader]; the output
// device pulls interleaved stereo PCM from it on its own playback thread.
package mixer

import "github.com/ovalsounds/stumpcast/pkg/audio"

// entry wraps an [audio.Segment] with scheduling metadata for the pending
// queue. The seq field provides FIFO ordering within the same priority level.
type entry struct {
	segment  *audio.Segment
	priority int
	seq      uint64 // monotonic insertion order for FIFO tie-breaking
}

// segmentHeap implements [container/heap.Interface] as a min-heap ordered by
// priority (ascending — smaller values play first), with FIFO tie-breaking on
// seq.
type segmentHeap []entry

func (h segmentHeap) Len() int { return len(h) }

// Less reports whether element i should be dequeued before element j.
// Lower priority value wins; equal priority falls back to insertion order.
func (h segmentHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h segmentHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push appends x to the heap. Called by [container/heap.Push]; callers must
// not invoke this directly.
func (h *segmentHeap) Push(x any) {
	*h = append(*h, x.(entry))
}

// Pop removes and returns the last element. Called by [container/heap.Pop];
// callers must not invoke this directly.
func (h *segmentHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

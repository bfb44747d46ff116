package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent producer goroutine leaks when discarding a streaming
// channel (e.g. the Audio channel of a preempted [Segment]).
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}

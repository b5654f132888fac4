package audio

// Drain reads from ch until it is closed, discarding every value. Use this
// to prevent goroutine leaks when a capture stream must keep flowing but
// its frames are no longer needed (e.g. a source that was detached from the
// pipeline mid-session).
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}

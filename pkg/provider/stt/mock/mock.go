// Package mock provides a test double for the stt.Transcriber interface.
//
// Script the return value with Result/Err (or TranscribeFunc for per-call
// behaviour) and inspect Calls to verify which recordings were submitted.
// Delay and Gates exist for pipeline tests that need slow or deliberately
// reordered completions.
//
// Example:
//
//	tr := &mock.Transcriber{Result: "hello world"}
//	text, _ := tr.Transcribe(ctx, "/tmp/alice-0-1712345678901.wav", "alice")
//	// tr.Calls[0].SourceLabel == "alice"
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/earshot-audio/earshot/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// FilePath is the recording path passed to Transcribe.
	FilePath string
	// SourceLabel is the source label passed to Transcribe.
	SourceLabel string
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Result is the text returned by every Transcribe call.
	Result string

	// Err, if non-nil, is returned by every Transcribe call instead of Result.
	Err error

	// TranscribeFunc, if non-nil, overrides Result and Err entirely. The call
	// is still recorded and Delay and Gates are still honoured first.
	TranscribeFunc func(ctx context.Context, filePath, sourceLabel string) (string, error)

	// Delay, when positive, is how long each call sleeps before returning.
	// The sleep aborts early with ctx.Err() if the context is cancelled.
	Delay time.Duration

	// Gates maps source labels to gate channels. A call whose source has a
	// gate blocks until the channel yields a value or is closed (or the
	// context is cancelled). Tests use this to control completion order
	// across sources.
	Gates map[string]chan struct{}

	// Calls records every Transcribe invocation in arrival order.
	Calls []TranscribeCall
}

// Transcribe records the call, honours Delay and Gates, and returns the
// scripted result. Safe for concurrent use.
func (t *Transcriber) Transcribe(ctx context.Context, filePath, sourceLabel string) (string, error) {
	t.mu.Lock()
	t.Calls = append(t.Calls, TranscribeCall{FilePath: filePath, SourceLabel: sourceLabel})
	delay := t.Delay
	gate := t.Gates[sourceLabel]
	fn := t.TranscribeFunc
	result, err := t.Result, t.Err
	t.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if fn != nil {
		return fn(ctx, filePath, sourceLabel)
	}
	if err != nil {
		return "", err
	}
	return result, nil
}

// CallCount returns the number of Transcribe calls so far. Thread-safe.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Calls)
}

// ResetCalls clears all recorded calls. Thread-safe.
func (t *Transcriber) ResetCalls() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = nil
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)

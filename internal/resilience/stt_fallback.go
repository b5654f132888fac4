package resilience

import (
	"context"

	"github.com/earshot-audio/earshot/pkg/provider/stt"
)

// FallbackTranscriber implements [stt.Transcriber] with automatic failover
// across multiple transcription backends. Each backend has its own circuit
// breaker; open breakers are skipped, and a recording is only lost when every
// backend has failed.
type FallbackTranscriber struct {
	group *FallbackGroup[stt.Transcriber]
}

// Compile-time interface assertion.
var _ stt.Transcriber = (*FallbackTranscriber)(nil)

// NewFallbackTranscriber creates a [FallbackTranscriber] with primary as the
// preferred backend.
func NewFallbackTranscriber(primary stt.Transcriber, primaryName string, cfg FallbackConfig) *FallbackTranscriber {
	return &FallbackTranscriber{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcription backend. Fallbacks are
// tried in the order they are added, after the primary.
func (f *FallbackTranscriber) AddFallback(name string, t stt.Transcriber) {
	f.group.AddFallback(name, t)
}

// Transcribe submits the recording to the first healthy backend. If the
// primary fails (or its breaker is open), subsequent fallbacks are tried with
// the same file.
func (f *FallbackTranscriber) Transcribe(ctx context.Context, filePath, sourceLabel string) (string, error) {
	return ExecuteWithResult(f.group, func(t stt.Transcriber) (string, error) {
		return t.Transcribe(ctx, filePath, sourceLabel)
	})
}

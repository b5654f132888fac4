// Package stt defines the Transcriber interface for speech-to-text backends.
//
// Earshot segments live audio into utterance WAV files before transcription,
// so the contract here is deliberately file-based: one finished recording in,
// one text out. Streaming partials, keyword boosting, and other
// provider-specific session machinery stay inside the implementations.
//
// Implementations must be safe for concurrent use — the orchestrator issues
// one Transcribe call per finalized utterance and several may be in flight
// at once.
package stt

import "context"

// Transcriber converts one recorded utterance into text.
type Transcriber interface {
	// Transcribe reads the WAV file at filePath and returns the recognised
	// text. sourceLabel names the speaker/channel the utterance came from;
	// providers may use it as a recognition hint or ignore it. An empty
	// string return with a nil error means the provider heard nothing
	// intelligible.
	//
	// Implementations must honour ctx cancellation; the orchestrator
	// cancels outstanding calls during shutdown.
	Transcribe(ctx context.Context, filePath, sourceLabel string) (string, error)
}

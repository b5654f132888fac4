// Package vad implements the per-source voice activity state machine that
// segments a continuous PCM stream into discrete utterance recordings.
//
// A [Detector] consumes one frame at a time, classifies it against a pair of
// hysteresis thresholds (a higher one to enter speech, a lower one to leave
// it) and drives a streamed recorder: speech opens a recording, confirmed
// silence finalizes it, and utterances that run too long or buffer too many
// frames are force-finalized so no single utterance grows without bound.
// Finalized recordings above the minimum duration are emitted as completed
// [Utterance] events; shorter ones are discarded.
//
// Each audio source owns exactly one Detector. A Detector is not safe for
// concurrent use — frames for a source must be delivered from a single
// goroutine, though detectors for different sources run independently.
package vad

import "time"

// FinalizeReason records why an utterance was closed.
type FinalizeReason string

const (
	// ReasonSilence: the silence window elapsed below the silence threshold.
	ReasonSilence FinalizeReason = "silence"

	// ReasonMaxDuration: the recording reached the maximum utterance length.
	ReasonMaxDuration FinalizeReason = "max-duration"

	// ReasonBufferLimit: the per-utterance frame budget was exhausted.
	ReasonBufferLimit FinalizeReason = "buffer-limit"

	// ReasonStreamClosed: the stream ended while an utterance was active.
	ReasonStreamClosed FinalizeReason = "stream-closed"
)

// Config holds the tuning knobs of a [Detector]. Zero-value fields are
// replaced with the defaults noted per field.
type Config struct {
	// SampleRate of incoming PCM in Hz. Default: 16000.
	SampleRate int

	// Channels of incoming PCM. Default: 1.
	Channels int

	// SpeechThreshold is the loudness above which a frame counts as speech.
	// Must exceed SilenceThreshold (hysteresis). Default: 80.
	SpeechThreshold float64

	// SilenceThreshold is the loudness below which a frame counts as
	// silence while speaking. Default: 50.
	SilenceThreshold float64

	// SilenceDuration is how long loudness must stay below
	// SilenceThreshold before an utterance is considered finished.
	// Default: 250ms.
	SilenceDuration time.Duration

	// MinUtterance is the minimum recorded duration for an utterance to be
	// dispatched; shorter recordings are discarded. Default: 200ms.
	MinUtterance time.Duration

	// MaxUtterance force-finalizes any recording that reaches this
	// duration. Default: 5s.
	MaxUtterance time.Duration

	// BufferLimitFrames caps how many frames a single utterance may
	// accumulate before being force-finalized. Zero disables the cap.
	BufferLimitFrames int
}

// withDefaults returns cfg with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.SpeechThreshold <= 0 {
		c.SpeechThreshold = 80
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = 50
	}
	if c.SilenceDuration <= 0 {
		c.SilenceDuration = 250 * time.Millisecond
	}
	if c.MinUtterance <= 0 {
		c.MinUtterance = 200 * time.Millisecond
	}
	if c.MaxUtterance <= 0 {
		c.MaxUtterance = 5 * time.Second
	}
	return c
}

// Utterance is a completed, finalized recording emitted by a [Detector].
type Utterance struct {
	// Source is the audio source label the utterance was detected on.
	Source string

	// Seq is the per-source utterance sequence number (monotonic, starts
	// at 1; sequence numbers of discarded or failed recordings are not
	// reused).
	Seq uint64

	// Path is the finalized recording file.
	Path string

	// Duration is the recorded audio length.
	Duration time.Duration

	// StartedAt is when the first frame of the utterance arrived.
	StartedAt time.Time

	// Reason records why the utterance was finalized.
	Reason FinalizeReason
}

// Recorder is the streamed container a [Detector] writes each utterance
// into. *wav.Writer satisfies it.
type Recorder interface {
	// Append streams raw PCM into the recording.
	Append(pcm []byte) error

	// Finalize completes the recording, making it a valid container.
	Finalize() error

	// Discard deletes the recording without finalizing.
	Discard() error

	// Path returns the recording's file path.
	Path() string
}

// RecorderFactory creates the recorder backing a new utterance. Production
// code returns a wav.Writer on a per-utterance file; tests substitute
// in-memory fakes.
type RecorderFactory func(source string, seq uint64) (Recorder, error)

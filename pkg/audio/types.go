package audio

import "time"

// Frame is one fixed-duration slice of PCM audio on its way through the
// pipeline. Capture sources push frames in and the detector consumes them
// within the same call; nothing holds a Frame afterwards, so the Data
// slice may be reused by the producer.
type Frame struct {
	// Data holds signed 16-bit little-endian PCM samples, interleaved when
	// Channels > 1.
	Data []byte

	// SampleRate in Hz (e.g. 48000 for Opus sources, 16000 for the pipeline).
	SampleRate int

	// Channels: 1 for mono, 2 for interleaved stereo.
	Channels int

	// Timestamp is the capture time, measured from the start of the stream.
	Timestamp time.Duration
}

// Duration returns the play time of the frame's PCM data, or 0 when the
// frame's format fields are unset.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

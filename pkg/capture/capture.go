// Package capture defines where labeled audio streams come from.
//
// A [Source] hands the pipeline one frame channel per source label
// ("near", "far", a participant name). The pipeline owns consumption;
// the source owns production and closes every channel when the capture
// ends, which is how downstream detectors learn to flush.
//
// This package lives under pkg/ because external code (alternative
// capture adapters) is expected to implement [Source].
package capture

import "github.com/earshot-audio/earshot/pkg/audio"

// Source delivers labeled PCM streams.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Streams returns the labeled frame channels. Frames carry
	// little-endian 16-bit PCM in the frame's declared format; the
	// pipeline converts to its target format on receipt. The map is a
	// snapshot; channels close when the source closes.
	Streams() map[string]<-chan audio.Frame

	// Close stops capture and closes every stream channel. Safe to call
	// more than once.
	Close() error
}

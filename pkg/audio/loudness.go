package audio

import (
	"encoding/binary"
	"math"
)

// maxLoudnessSamples bounds how many samples a single [Loudness] call
// examines, keeping per-frame cost constant regardless of frame size.
const maxLoudnessSamples = 100

// Loudness returns an approximate RMS amplitude for a buffer of signed
// 16-bit little-endian PCM. Rather than reading every sample it strides
// through the buffer so that at most [maxLoudnessSamples] evenly spaced
// samples are examined.
//
// The function is total: any input yields a value ≥ 0. Empty or degenerate
// buffers (fewer than 2 bytes) yield 0, and a trailing odd byte is ignored.
func Loudness(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}

	stride := (n + maxLoudnessSamples - 1) / maxLoudnessSamples
	if stride < 1 {
		stride = 1
	}

	var sum float64
	examined := 0
	for i := 0; i < n; i += stride {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		sum += float64(s) * float64(s)
		examined++
	}
	if examined == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(examined))
}

// Package opus decodes Opus packets into little-endian int16 PCM. Each
// audio stream needs its own [Decoder]: libopus carries prediction state
// between consecutive packets, so decoders must never be shared.
package opus

import (
	"fmt"

	"layeh.com/gopus"
)

// maxFrameMs is the longest frame duration an Opus packet may carry.
const maxFrameMs = 120

// Decoder decodes one Opus stream. Not safe for concurrent use.
type Decoder struct {
	dec      *gopus.Decoder
	frameCap int
}

// NewDecoder creates a decoder producing PCM at the given rate and
// channel count. Opus supports 8, 12, 16, 24 and 48 kHz; the decoder
// resamples internally when the packet was encoded at a different rate.
func NewDecoder(sampleRate, channels int) (*Decoder, error) {
	dec, err := gopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}
	return &Decoder{
		dec:      dec,
		frameCap: sampleRate * maxFrameMs / 1000,
	}, nil
}

// Decode decodes a single Opus packet and returns interleaved PCM as
// little-endian int16 bytes. The output length follows the packet's own
// frame duration.
func (d *Decoder) Decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, d.frameCap, false)
	if err != nil {
		return nil, fmt.Errorf("opus: decode: %w", err)
	}
	return int16sToBytes(pcm), nil
}

// int16sToBytes converts int16 PCM samples to little-endian bytes.
func int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

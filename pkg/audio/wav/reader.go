package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNotWAV is returned by [Decode] when the input does not start with a
// RIFF/WAVE signature.
var ErrNotWAV = errors.New("wav: not a RIFF/WAVE stream")

// Info describes the format of a decoded WAV stream.
type Info struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// ReadFile decodes the WAV file at path, returning its format and raw PCM
// payload.
func ReadFile(path string) (Info, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, nil, fmt.Errorf("wav: open %q: %w", path, err)
	}
	defer f.Close()
	info, pcm, err := Decode(f)
	if err != nil {
		return Info{}, nil, fmt.Errorf("wav: decode %q: %w", path, err)
	}
	return info, pcm, nil
}

// Decode parses a RIFF/WAVE stream and returns its format plus the raw
// contents of the data chunk. Chunks other than "fmt " and "data" are
// skipped, so files with extra metadata chunks still decode.
func Decode(r io.Reader) (Info, []byte, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Info{}, nil, ErrNotWAV
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Info{}, nil, ErrNotWAV
	}

	var info Info
	haveFmt := false
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return Info{}, nil, errors.New("wav: missing data chunk")
			}
			return Info{}, nil, fmt.Errorf("wav: read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return Info{}, nil, fmt.Errorf("wav: fmt chunk too small (%d bytes)", size)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return Info{}, nil, fmt.Errorf("wav: read fmt chunk: %w", err)
			}
			if format := binary.LittleEndian.Uint16(body[0:2]); format != formatPCM {
				return Info{}, nil, fmt.Errorf("wav: unsupported format tag %d (only PCM)", format)
			}
			info.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			haveFmt = true

		case "data":
			if !haveFmt {
				return Info{}, nil, errors.New("wav: data chunk before fmt chunk")
			}
			pcm := make([]byte, size)
			if _, err := io.ReadFull(r, pcm); err != nil {
				return Info{}, nil, fmt.Errorf("wav: read data chunk: %w", err)
			}
			return info, pcm, nil

		default:
			// Chunks are word-aligned; skip the payload plus pad byte.
			skip := int64(size)
			if size%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return Info{}, nil, fmt.Errorf("wav: skip %q chunk: %w", id, err)
			}
		}
	}
}

// PCMToFloat32Mono converts 16-bit little-endian PCM to float32 samples
// normalised to [-1.0, 1.0], down-mixing multi-channel input to mono by
// averaging all channels per frame. Any trailing odd byte is ignored.
func PCMToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(sample) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

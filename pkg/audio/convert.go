package audio

import (
	"fmt"
	"log/slog"
	"sync"
)

// Format is the shape of a PCM stream: how many samples per second and
// how many interleaved channels.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	switch {
	case f.Channels == 2:
		ch = "stereo"
	case f.Channels > 2:
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Converter normalizes incoming [Frame]s to a target format. It logs a
// warning on the first format mismatch and drops frames whose PCM data is
// misaligned. Create one per stream; not designed for shared use across
// goroutines.
type Converter struct {
	Target Format

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Convert converts frame to the target format. When the source format
// already matches, the frame is returned unchanged with zero allocation.
// Resampling happens before channel mapping so stereo data is never
// resampled when the target is mono.
func (c *Converter) Convert(frame Frame) Frame {
	// Odd byte counts cannot be int16 PCM.
	if len(frame.Data)%2 != 0 {
		c.warnedCorrupt.Do(func() {
			slog.Warn("audio converter: odd byte count in PCM data, dropping frame",
				"bytes", len(frame.Data),
				"format", Format{frame.SampleRate, frame.Channels}.String(),
			)
		})
		return Frame{
			SampleRate: c.Target.SampleRate,
			Channels:   c.Target.Channels,
			Timestamp:  frame.Timestamp,
		}
	}

	if frame.SampleRate == c.Target.SampleRate && frame.Channels == c.Target.Channels {
		return frame
	}

	c.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", Format{frame.SampleRate, frame.Channels}.String(),
			"to", c.Target.String(),
		)
	})

	pcm := frame.Data
	rate := frame.SampleRate
	channels := frame.Channels

	if rate != c.Target.SampleRate {
		pcm = Resample16(pcm, channels, rate, c.Target.SampleRate)
		rate = c.Target.SampleRate
	}

	if channels != c.Target.Channels {
		switch {
		case channels == 1 && c.Target.Channels == 2:
			pcm = MonoToStereo(pcm)
		case channels == 2 && c.Target.Channels == 1:
			pcm = StereoToMono(pcm)
		}
		channels = c.Target.Channels
	}

	return Frame{
		Data:       pcm,
		SampleRate: rate,
		Channels:   channels,
		Timestamp:  frame.Timestamp,
	}
}

// ConvertStream wraps in with a conversion goroutine and returns the
// converted stream. The output channel closes when in closes; its buffer
// matches cap(in). Frames emptied by the converter (misaligned PCM) are
// dropped.
func ConvertStream(in <-chan Frame, target Format) <-chan Frame {
	out := make(chan Frame, cap(in))
	go func() {
		defer close(out)
		conv := Converter{Target: target}
		for frame := range in {
			converted := conv.Convert(frame)
			if len(converted.Data) == 0 {
				continue
			}
			out <- converted
		}
	}()
	return out
}

// MonoToStereo duplicates each int16 mono sample into an L+R pair.
// A trailing odd byte is ignored.
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		lo, hi := pcm[i], pcm[i+1]
		j := i * 2
		out[j] = lo
		out[j+1] = hi
		out[j+2] = lo
		out[j+3] = hi
	}
	return out
}

// StereoToMono averages the L+R pair of each stereo frame into one mono
// sample, using int32 arithmetic and clamping to the int16 range.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2

		if avg > 32767 {
			avg = 32767
		} else if avg < -32768 {
			avg = -32768
		}

		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// Resample16 resamples 16-bit little-endian PCM from srcRate to dstRate
// using linear interpolation, preserving the interleaved channel layout.
// channels must be 1 or 2. If the rates match, either rate is non-positive,
// or the input is shorter than one frame, the input is returned unchanged.
func Resample16(pcm []byte, channels, srcRate, dstRate int) []byte {
	if channels < 1 || channels > 2 || srcRate <= 0 || dstRate <= 0 {
		return pcm
	}
	width := 2 * channels
	if srcRate == dstRate || len(pcm) < width {
		return pcm
	}

	srcFrames := len(pcm) / width
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*width)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		for ch := range channels {
			o0 := srcIdx*width + ch*2
			s0 := int16(pcm[o0]) | int16(pcm[o0+1])<<8
			s1 := s0
			if srcIdx+1 < srcFrames {
				o1 := (srcIdx+1)*width + ch*2
				s1 = int16(pcm[o1]) | int16(pcm[o1+1])<<8
			}

			interp := int16(float64(s0)*(1-frac) + float64(s1)*frac)
			j := i*width + ch*2
			out[j] = byte(interp)
			out[j+1] = byte(interp >> 8)
		}
	}
	return out
}

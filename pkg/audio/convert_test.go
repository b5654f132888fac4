package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/earshot-audio/earshot/pkg/audio"
)

// samplesToBytes packs int16 samples as little-endian PCM.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples unpacks little-endian PCM back into int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestMonoToStereo(t *testing.T) {
	mono := samplesToBytes([]int16{100, 200, 300})
	stereo := audio.MonoToStereo(mono)
	got := bytesToSamples(stereo)
	want := []int16{100, 100, 200, 200, 300, 300}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestMonoToStereo_OddLengthInput(t *testing.T) {
	// 5 bytes = 2 complete samples + 1 trailing byte; the trailing byte
	// must not leak into the output.
	pcm := []byte{0x64, 0x00, 0xC8, 0x00, 0xFF}
	stereo := audio.MonoToStereo(pcm)
	if len(stereo) != 8 {
		t.Fatalf("expected 8 bytes for 2 complete mono samples, got %d", len(stereo))
	}
	got := bytesToSamples(stereo)
	want := []int16{100, 100, 200, 200}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono(t *testing.T) {
	// Two stereo frames: L=100,R=200 and L=-100,R=-200.
	stereo := samplesToBytes([]int16{100, 200, -100, -200})
	mono := audio.StereoToMono(stereo)
	got := bytesToSamples(mono)
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono_Clamping(t *testing.T) {
	stereo := samplesToBytes([]int16{32767, 32767})
	mono := audio.StereoToMono(stereo)
	got := bytesToSamples(mono)
	if len(got) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(got))
	}
	if got[0] != 32767 {
		t.Errorf("got %d, want 32767", got[0])
	}
}

func TestResample16_SameRate(t *testing.T) {
	pcm := samplesToBytes([]int16{100, 200, 300})
	out := audio.Resample16(pcm, 1, 48000, 48000)
	if len(out) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(pcm))
	}
}

func TestResample16_UpsampleMono(t *testing.T) {
	// 2 samples at 16kHz → 6 samples at 48kHz.
	pcm := samplesToBytes([]int16{1000, 2000})
	out := audio.Resample16(pcm, 1, 16000, 48000)
	got := bytesToSamples(out)
	if len(got) != 6 {
		t.Fatalf("expected 6 samples, got %d", len(got))
	}
	if got[0] != 1000 {
		t.Errorf("first sample: got %d, want 1000", got[0])
	}
	last := got[len(got)-1]
	if last < 1800 || last > 2200 {
		t.Errorf("last sample: got %d, want close to 2000", last)
	}
}

func TestResample16_DownsampleMono(t *testing.T) {
	// 6 samples at 48kHz → 2 samples at 16kHz.
	pcm := samplesToBytes([]int16{100, 200, 300, 400, 500, 600})
	out := audio.Resample16(pcm, 1, 48000, 16000)
	got := bytesToSamples(out)
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
}

func TestResample16_Stereo(t *testing.T) {
	// 2 stereo frames at 16kHz → 6 stereo frames (12 samples) at 48kHz;
	// channels must stay interleaved.
	pcm := samplesToBytes([]int16{100, 200, 300, 400})
	out := audio.Resample16(pcm, 2, 16000, 48000)
	got := bytesToSamples(out)
	if len(got) != 12 {
		t.Fatalf("expected 12 samples, got %d", len(got))
	}
	if got[0] != 100 || got[1] != 200 {
		t.Errorf("first frame: got L=%d R=%d, want L=100 R=200", got[0], got[1])
	}
}

func TestResample16_InvalidRates(t *testing.T) {
	pcm := samplesToBytes([]int16{100, 200})
	for _, tc := range []struct{ src, dst int }{{0, 48000}, {48000, 0}, {-1, 48000}} {
		out := audio.Resample16(pcm, 1, tc.src, tc.dst)
		if len(out) != len(pcm) {
			t.Errorf("rates %d→%d: expected unchanged output, got len %d", tc.src, tc.dst, len(out))
		}
	}
}

func TestConverter_NoOp(t *testing.T) {
	conv := audio.Converter{
		Target: audio.Format{SampleRate: 48000, Channels: 2},
	}
	frame := audio.Frame{
		Data:       samplesToBytes([]int16{100, 200}),
		SampleRate: 48000,
		Channels:   2,
	}
	result := conv.Convert(frame)
	// Same slice — pointer equality check.
	if &result.Data[0] != &frame.Data[0] {
		t.Error("expected same slice (zero allocation) for matching format")
	}
}

func TestConverter_StereoToMonoDownsample(t *testing.T) {
	// 48kHz stereo → 16kHz mono, the standard capture-to-pipeline path.
	conv := audio.Converter{
		Target: audio.Format{SampleRate: 16000, Channels: 1},
	}
	samples := make([]int16, 48*2*2) // 2ms of 48kHz stereo
	for i := range samples {
		samples[i] = 1000
	}
	result := conv.Convert(audio.Frame{
		Data:       samplesToBytes(samples),
		SampleRate: 48000,
		Channels:   2,
	})
	if result.SampleRate != 16000 || result.Channels != 1 {
		t.Fatalf("unexpected format: %dHz %dch", result.SampleRate, result.Channels)
	}
	got := bytesToSamples(result.Data)
	if len(got) == 0 {
		t.Fatal("expected non-empty output")
	}
	for i, s := range got {
		if s != 1000 {
			t.Fatalf("sample %d: got %d, want 1000 (constant input should stay constant)", i, s)
		}
	}
}

func TestConverter_OddByteCount(t *testing.T) {
	conv := audio.Converter{
		Target: audio.Format{SampleRate: 48000, Channels: 1},
	}
	result := conv.Convert(audio.Frame{
		Data:       []byte{1, 2, 3},
		SampleRate: 22050,
		Channels:   1,
	})
	if len(result.Data) != 0 {
		t.Errorf("expected empty data for odd byte count, got %d bytes", len(result.Data))
	}
	// Dropped frame carries the target format, not the source format.
	if result.SampleRate != 48000 || result.Channels != 1 {
		t.Errorf("expected target format, got %dHz %dch", result.SampleRate, result.Channels)
	}
}

func TestConverter_OddByteCount_MatchingFormat(t *testing.T) {
	// Misaligned data must be caught even when formats already match.
	conv := audio.Converter{
		Target: audio.Format{SampleRate: 48000, Channels: 1},
	}
	result := conv.Convert(audio.Frame{
		Data:       []byte{1, 2, 3},
		SampleRate: 48000,
		Channels:   1,
	})
	if len(result.Data) != 0 {
		t.Errorf("expected empty data for odd byte count, got %d bytes", len(result.Data))
	}
}

func TestConvertStream(t *testing.T) {
	in := make(chan audio.Frame, 3)
	out := audio.ConvertStream(in, audio.Format{SampleRate: 16000, Channels: 1})

	// A stereo frame needing the full conversion.
	in <- audio.Frame{
		Data:       samplesToBytes([]int16{100, 100, 200, 200, 300, 300}),
		SampleRate: 16000,
		Channels:   2,
	}
	// An odd-byte frame that should be dropped.
	in <- audio.Frame{
		Data:       []byte{1, 2, 3},
		SampleRate: 16000,
		Channels:   1,
	}
	// A frame that matches the target (pass-through).
	in <- audio.Frame{
		Data:       samplesToBytes([]int16{500, 600}),
		SampleRate: 16000,
		Channels:   1,
	}
	close(in)

	var results []audio.Frame
	for frame := range out {
		results = append(results, frame)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 frames (odd-byte frame dropped), got %d", len(results))
	}

	got := bytesToSamples(results[0].Data)
	want := []int16{100, 200, 300}
	if len(got) != len(want) {
		t.Fatalf("frame 0: expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame 0 sample %d: got %d, want %d", i, got[i], want[i])
		}
	}

	got2 := bytesToSamples(results[1].Data)
	want2 := []int16{500, 600}
	for i := range want2 {
		if got2[i] != want2[i] {
			t.Errorf("frame 1 sample %d: got %d, want %d", i, got2[i], want2[i])
		}
	}
}

func TestFrameDuration(t *testing.T) {
	frame := audio.Frame{
		Data:       make([]byte, 3200), // 100ms of 16kHz mono
		SampleRate: 16000,
		Channels:   1,
	}
	if got := frame.Duration().Milliseconds(); got != 100 {
		t.Errorf("got %dms, want 100ms", got)
	}

	var zero audio.Frame
	if zero.Duration() != 0 {
		t.Errorf("zero frame should have zero duration, got %v", zero.Duration())
	}
}

package audio_test

import (
	"math"
	"testing"

	"github.com/earshot-audio/earshot/pkg/audio"
)

func TestLoudness_Empty(t *testing.T) {
	if got := audio.Loudness(nil); got != 0 {
		t.Errorf("nil buffer: got %v, want 0", got)
	}
	if got := audio.Loudness([]byte{}); got != 0 {
		t.Errorf("empty buffer: got %v, want 0", got)
	}
	// A single byte cannot form an int16 sample.
	if got := audio.Loudness([]byte{0x7F}); got != 0 {
		t.Errorf("1-byte buffer: got %v, want 0", got)
	}
}

func TestLoudness_Silence(t *testing.T) {
	pcm := samplesToBytes(make([]int16, 480))
	if got := audio.Loudness(pcm); got != 0 {
		t.Errorf("all-zero buffer: got %v, want 0", got)
	}
}

func TestLoudness_ConstantAmplitude(t *testing.T) {
	// RMS of a constant signal equals its absolute amplitude, for any
	// buffer size and therefore any sampling stride.
	for _, n := range []int{1, 50, 100, 1000, 48000} {
		samples := make([]int16, n)
		for i := range samples {
			samples[i] = 1200
		}
		got := audio.Loudness(samplesToBytes(samples))
		if math.Abs(got-1200) > 1e-9 {
			t.Errorf("n=%d: got %v, want 1200", n, got)
		}
	}
}

func TestLoudness_NegativeSamples(t *testing.T) {
	samples := make([]int16, 200)
	for i := range samples {
		samples[i] = -500
	}
	got := audio.Loudness(samplesToBytes(samples))
	if math.Abs(got-500) > 1e-9 {
		t.Errorf("got %v, want 500", got)
	}
}

func TestLoudness_AlwaysNonNegative(t *testing.T) {
	buffers := [][]int16{
		{32767, -32768, 32767, -32768},
		{-1},
		{0, 0, -32768},
	}
	for i, samples := range buffers {
		if got := audio.Loudness(samplesToBytes(samples)); got < 0 {
			t.Errorf("buffer %d: got negative loudness %v", i, got)
		}
	}
}

func TestLoudness_SineWave(t *testing.T) {
	// RMS of a sine wave is amplitude/√2. The strided approximation
	// should land close for a buffer spanning many periods.
	const amplitude = 10000.0
	samples := make([]int16, 16000)
	for i := range samples {
		samples[i] = int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
	}
	got := audio.Loudness(samplesToBytes(samples))
	want := amplitude / math.Sqrt2
	if math.Abs(got-want) > amplitude*0.1 {
		t.Errorf("got %v, want within 10%% of %v", got, want)
	}
}

func TestLoudness_Strides(t *testing.T) {
	// 200 samples → stride 2, so only even indices are examined.
	samples := make([]int16, 200)
	for i := 0; i < len(samples); i += 2 {
		samples[i] = 800
	}
	got := audio.Loudness(samplesToBytes(samples))
	if math.Abs(got-800) > 1e-9 {
		t.Errorf("got %v, want 800 (odd indices skipped)", got)
	}
}

func TestLoudness_IgnoresTrailingOddByte(t *testing.T) {
	pcm := samplesToBytes([]int16{1000, 1000})
	withTrailing := append(append([]byte{}, pcm...), 0xFF)
	if got, want := audio.Loudness(withTrailing), audio.Loudness(pcm); got != want {
		t.Errorf("got %v, want %v (trailing byte must be ignored)", got, want)
	}
}

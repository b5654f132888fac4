package wav_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/earshot-audio/earshot/pkg/audio/wav"
)

func pcmBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func TestWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "utterance.wav")

	w, err := wav.Create(path, 1, 16000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	first := pcmBytes([]int16{100, -100, 200})
	second := pcmBytes([]int16{-200, 300})
	if err := w.Append(first); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Append(second); err != nil {
		t.Fatalf("append: %v", err)
	}
	if got := w.Len(); got != int64(len(first)+len(second)) {
		t.Fatalf("Len: got %d, want %d", got, len(first)+len(second))
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	info, pcm, err := wav.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitsPerSample != 16 {
		t.Errorf("unexpected info: %+v", info)
	}
	want := append(append([]byte{}, first...), second...)
	if !bytes.Equal(pcm, want) {
		t.Errorf("pcm mismatch: got %d bytes, want %d", len(pcm), len(want))
	}
}

func TestWriterHeaderPatching(t *testing.T) {
	path := filepath.Join(t.TempDir(), "u.wav")

	w, err := wav.Create(path, 2, 48000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Before finalize the size fields are placeholders.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read placeholder file: %v", err)
	}
	if len(raw) != 44 {
		t.Fatalf("expected bare 44-byte header, got %d bytes", len(raw))
	}
	if got := binary.LittleEndian.Uint32(raw[40:44]); got != 0 {
		t.Errorf("placeholder data size: got %d, want 0", got)
	}

	data := pcmBytes(make([]int16, 480))
	if err := w.Append(data); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	raw, err = os.ReadFile(path)
	if err != nil {
		t.Fatalf("read finalized file: %v", err)
	}
	if got := binary.LittleEndian.Uint32(raw[4:8]); got != uint32(36+len(data)) {
		t.Errorf("riff size: got %d, want %d", got, 36+len(data))
	}
	if got := binary.LittleEndian.Uint32(raw[40:44]); got != uint32(len(data)) {
		t.Errorf("data size: got %d, want %d", got, len(data))
	}
	if got := binary.LittleEndian.Uint16(raw[22:24]); got != 2 {
		t.Errorf("channels: got %d, want 2", got)
	}
	if got := binary.LittleEndian.Uint32(raw[24:28]); got != 48000 {
		t.Errorf("sample rate: got %d, want 48000", got)
	}
}

func TestWriterDiscard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.wav")

	w, err := wav.Create(path, 1, 16000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := w.Append(pcmBytes([]int16{1, 2, 3})); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Discard(); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file should be removed, stat err = %v", err)
	}
}

func TestWriterAppendAfterFinalize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.wav")

	w, err := wav.Create(path, 1, 16000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := w.Append([]byte{0, 0}); err == nil {
		t.Error("append after finalize should fail")
	}
	if err := w.Finalize(); err == nil {
		t.Error("double finalize should fail")
	}
}

func TestCreateErrors(t *testing.T) {
	if _, err := wav.Create(filepath.Join(t.TempDir(), "missing", "u.wav"), 1, 16000); err == nil {
		t.Error("create in missing directory should fail")
	}
	if _, err := wav.Create(filepath.Join(t.TempDir(), "bad.wav"), 0, 16000); err == nil {
		t.Error("zero channels should fail")
	}
	if _, err := wav.Create(filepath.Join(t.TempDir(), "bad.wav"), 1, 0); err == nil {
		t.Error("zero sample rate should fail")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := wav.Decode(bytes.NewReader([]byte("this is not audio at all")))
	if !errors.Is(err, wav.ErrNotWAV) {
		t.Errorf("want ErrNotWAV, got %v", err)
	}
	_, _, err = wav.Decode(bytes.NewReader(nil))
	if !errors.Is(err, wav.ErrNotWAV) {
		t.Errorf("empty input: want ErrNotWAV, got %v", err)
	}
}

func TestDecodeSkipsUnknownChunks(t *testing.T) {
	// Hand-assemble a WAV with a LIST chunk between fmt and data.
	var buf bytes.Buffer
	pcm := pcmBytes([]int16{10, 20, 30})

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(0)) // size, unchecked
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(8000))
	binary.Write(&buf, binary.LittleEndian, uint32(16000))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(5))
	buf.Write([]byte{1, 2, 3, 4, 5, 0}) // odd size + pad byte

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	info, got, err := wav.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.SampleRate != 8000 || info.Channels != 1 {
		t.Errorf("unexpected info: %+v", info)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("pcm mismatch")
	}
}

func TestPCMToFloat32Mono(t *testing.T) {
	t.Run("mono passthrough", func(t *testing.T) {
		out := wav.PCMToFloat32Mono(pcmBytes([]int16{-32768, 0, 16384}), 1)
		want := []float32{-1.0, 0, 0.5}
		if len(out) != len(want) {
			t.Fatalf("length: got %d, want %d", len(out), len(want))
		}
		for i := range want {
			if math.Abs(float64(out[i]-want[i])) > 1e-6 {
				t.Errorf("sample %d: got %v, want %v", i, out[i], want[i])
			}
		}
	})

	t.Run("stereo downmix", func(t *testing.T) {
		// One frame: L=16384 (0.5), R=-16384 (-0.5) → 0.
		out := wav.PCMToFloat32Mono(pcmBytes([]int16{16384, -16384}), 2)
		if len(out) != 1 {
			t.Fatalf("length: got %d, want 1", len(out))
		}
		if math.Abs(float64(out[0])) > 1e-6 {
			t.Errorf("got %v, want 0", out[0])
		}
	})
}

// Package wav implements a minimal streaming RIFF/WAVE container for 16-bit
// PCM audio. [Writer] streams one utterance's samples to disk, writing a
// placeholder header up front and patching the size fields when the
// recording is finalized, so a crash mid-utterance leaves an obviously
// truncated file rather than a silently corrupt one. [Decode] reads the
// same container back.
package wav

import (
	"encoding/binary"
	"fmt"
	"os"
)

const (
	headerSize    = 44
	bitsPerSample = 16
	formatPCM     = 1
)

// Writer is an append-only recorder for a single utterance. Exactly one
// in-flight utterance owns a Writer; concurrent use is not permitted.
//
// Lifecycle: [Create] → zero or more [Writer.Append] → exactly one of
// [Writer.Finalize] (patches the header, file becomes playable) or
// [Writer.Discard] (deletes the file).
type Writer struct {
	f         *os.File
	path      string
	dataBytes int64
	closed    bool
}

// Create opens path for writing and emits a 44-byte RIFF/WAVE header whose
// size fields are placeholders (zero). The file is not a valid WAV until
// [Writer.Finalize] succeeds.
func Create(path string, channels, sampleRate int) (*Writer, error) {
	if channels <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("wav: create %q: invalid format %dch %dHz", path, channels, sampleRate)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wav: create %q: %w", path, err)
	}
	if _, err := f.Write(header(channels, sampleRate, 0)); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("wav: write header %q: %w", path, err)
	}
	return &Writer{f: f, path: path}, nil
}

// Path returns the file path the writer was created with.
func (w *Writer) Path() string { return w.path }

// Len returns the number of PCM bytes appended so far.
func (w *Writer) Len() int64 { return w.dataBytes }

// Append writes raw little-endian 16-bit PCM to the file. On failure the
// caller must treat the current utterance as lost and call
// [Writer.Discard].
func (w *Writer) Append(pcm []byte) error {
	if w.closed {
		return fmt.Errorf("wav: append %q: writer already closed", w.path)
	}
	n, err := w.f.Write(pcm)
	w.dataBytes += int64(n)
	if err != nil {
		return fmt.Errorf("wav: append %q: %w", w.path, err)
	}
	return nil
}

// Finalize patches the header's RIFF and data chunk sizes from the bytes
// written and closes the file, making it a valid playable container. If
// Finalize fails the file must be treated as corrupt and discarded.
func (w *Writer) Finalize() error {
	if w.closed {
		return fmt.Errorf("wav: finalize %q: writer already closed", w.path)
	}
	w.closed = true

	var sizes [4]byte
	binary.LittleEndian.PutUint32(sizes[:], uint32(36+w.dataBytes))
	if _, err := w.f.WriteAt(sizes[:], 4); err != nil {
		w.f.Close()
		return fmt.Errorf("wav: finalize %q: patch riff size: %w", w.path, err)
	}
	binary.LittleEndian.PutUint32(sizes[:], uint32(w.dataBytes))
	if _, err := w.f.WriteAt(sizes[:], 40); err != nil {
		w.f.Close()
		return fmt.Errorf("wav: finalize %q: patch data size: %w", w.path, err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("wav: finalize %q: close: %w", w.path, err)
	}
	return nil
}

// Discard closes and deletes the file without finalizing. Used when an
// utterance turns out to be too short to keep or its recording failed.
func (w *Writer) Discard() error {
	if !w.closed {
		w.closed = true
		w.f.Close()
	}
	if err := os.Remove(w.path); err != nil {
		return fmt.Errorf("wav: discard %q: %w", w.path, err)
	}
	return nil
}

// header builds a canonical 44-byte RIFF/WAVE header for 16-bit PCM with
// the given data length.
func header(channels, sampleRate int, dataLen uint32) []byte {
	h := make([]byte, headerSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+dataLen)
	copy(h[8:12], "WAVE")

	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16)
	binary.LittleEndian.PutUint16(h[20:22], formatPCM)
	binary.LittleEndian.PutUint16(h[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	byteRate := sampleRate * channels * bitsPerSample / 8
	binary.LittleEndian.PutUint32(h[28:32], uint32(byteRate))
	blockAlign := channels * bitsPerSample / 8
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)

	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataLen)
	return h
}

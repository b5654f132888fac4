// This file contains the Native transcriber backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/earshot-audio/earshot/pkg/audio"
	"github.com/earshot-audio/earshot/pkg/audio/wav"
	"github.com/earshot-audio/earshot/pkg/provider/stt"
)

// Compile-time assertion that Native satisfies stt.Transcriber.
var _ stt.Transcriber = (*Native)(nil)

// whisperSampleRate is the only input rate whisper.cpp accepts.
const whisperSampleRate = 16000

// Native implements stt.Transcriber using whisper.cpp Go bindings (CGO),
// eliminating HTTP overhead entirely. The model is loaded once at startup
// and shared across all calls; inference contexts are not thread-safe, so
// a mutex serializes Transcribe.
type Native struct {
	model    whisperlib.Model
	language string

	mu sync.Mutex
}

// NativeOption is a functional option for configuring a Native transcriber.
type NativeOption func(*Native)

// WithNativeLanguage sets the spoken-language hint ("en", "de", "fr").
// The default is "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(n *Native) { n.language = lang }
}

// NewNative creates a Native transcriber that loads the whisper.cpp GGML
// model from the given file path. The caller must call Close when the
// transcriber is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	n := &Native{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(n)
	}
	return n, nil
}

// Close releases the whisper model. Must be called when the transcriber is
// no longer needed.
func (n *Native) Close() error {
	if n.model != nil {
		return n.model.Close()
	}
	return nil
}

// Transcribe decodes the WAV file at filePath, converts it to the float32
// mono samples whisper.cpp expects, and runs inference with a fresh context
// from the shared model. Calls are serialized; concurrent callers queue on
// an internal mutex. The source label is not used.
func (n *Native) Transcribe(ctx context.Context, filePath, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	info, pcm, err := wav.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("whisper: read recording: %w", err)
	}

	if info.SampleRate > 0 && info.SampleRate != whisperSampleRate {
		pcm = audio.Resample16(pcm, info.Channels, info.SampleRate, whisperSampleRate)
	}
	samples := wav.PCMToFloat32Mono(pcm, info.Channels)

	n.mu.Lock()
	defer n.mu.Unlock()

	// One context per inference. The loaded model is shareable; contexts
	// are not.
	wctx, err := n.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(n.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", n.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	// Collect segments.
	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

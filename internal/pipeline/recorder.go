package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/earshot-audio/earshot/internal/vad"
	"github.com/earshot-audio/earshot/pkg/audio/wav"
)

// NewWAVRecorderFactory returns a recorder factory that writes each
// utterance to dir as <source>-<seq>-<unixms>.wav in the given PCM
// format. The directory is created if missing.
func NewWAVRecorderFactory(dir string, sampleRate, channels int) (vad.RecorderFactory, error) {
	if dir == "" {
		return nil, fmt.Errorf("pipeline: recordings dir must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pipeline: create recordings dir: %w", err)
	}
	return func(source string, seq uint64) (vad.Recorder, error) {
		name := fmt.Sprintf("%s-%d-%d.wav", sanitizeLabel(source), seq, time.Now().UnixMilli())
		return wav.Create(filepath.Join(dir, name), channels, sampleRate)
	}, nil
}

// sanitizeLabel makes a source label safe for use in a file name. Labels
// arrive over the network, so anything outside [A-Za-z0-9_-] is mapped
// to '-' and an empty label becomes "source".
func sanitizeLabel(label string) string {
	if label == "" {
		return "source"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '-'
		}
	}, label)
}

package vad_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/earshot-audio/earshot/internal/vad"
)

// frameMs is the duration of one test frame.
const frameMs = 100

// frameBytes is 100ms of 16kHz mono 16-bit PCM.
const frameBytes = 16000 / 10 * 2

// frame builds 100ms of 16kHz mono PCM at a constant amplitude, so its RMS
// loudness equals the amplitude exactly.
func frame(amplitude int16) []byte {
	buf := make([]byte, frameBytes)
	for i := 0; i < frameBytes; i += 2 {
		binary.LittleEndian.PutUint16(buf[i:], uint16(amplitude))
	}
	return buf
}

// feed pushes one frame per amplitude, 100ms apart.
func feed(d *vad.Detector, amplitudes []int16) {
	start := time.Unix(1700000000, 0)
	for i, amp := range amplitudes {
		d.ProcessFrame(frame(amp), start.Add(time.Duration(i)*frameMs*time.Millisecond))
	}
}

// ─── fakes ───────────────────────────────────────────────────────────────────

type fakeRecorder struct {
	path        string
	data        bytes.Buffer
	finalized   bool
	discarded   bool
	appendErr   error
	finalizeErr error
}

func (r *fakeRecorder) Append(p []byte) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	r.data.Write(p)
	return nil
}

func (r *fakeRecorder) Finalize() error {
	if r.finalizeErr != nil {
		return r.finalizeErr
	}
	r.finalized = true
	return nil
}

func (r *fakeRecorder) Discard() error {
	r.discarded = true
	return nil
}

func (r *fakeRecorder) Path() string { return r.path }

// recorderLog hands out fake recorders and remembers them in creation order.
type recorderLog struct {
	recorders []*fakeRecorder
	openErrs  []error // consumed one per open; nil entries succeed
	prepare   func(rec *fakeRecorder, seq uint64)
}

func (l *recorderLog) factory(source string, seq uint64) (vad.Recorder, error) {
	if len(l.openErrs) > 0 {
		err := l.openErrs[0]
		l.openErrs = l.openErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	rec := &fakeRecorder{path: fmt.Sprintf("%s-%d.wav", source, seq)}
	if l.prepare != nil {
		l.prepare(rec, seq)
	}
	l.recorders = append(l.recorders, rec)
	return rec, nil
}

func testConfig() vad.Config {
	return vad.Config{
		SampleRate:       16000,
		Channels:         1,
		SpeechThreshold:  80,
		SilenceThreshold: 50,
		SilenceDuration:  250 * time.Millisecond,
		MinUtterance:     200 * time.Millisecond,
		MaxUtterance:     5 * time.Second,
	}
}

func newDetector(t *testing.T, cfg vad.Config, log *recorderLog) (*vad.Detector, *[]vad.Utterance) {
	t.Helper()
	got := &[]vad.Utterance{}
	d := vad.New("near", cfg, log.factory, func(u vad.Utterance) { *got = append(*got, u) })
	return d, got
}

// ─── segmentation ────────────────────────────────────────────────────────────

func TestDetectorSegmentsSpeech(t *testing.T) {
	t.Parallel()
	log := &recorderLog{}
	d, got := newDetector(t, testConfig(), log)

	// Two quiet lead-in frames, speech at frame 3, fading from frame 6,
	// silence confirmed at frame 9.
	feed(d, []int16{20, 20, 90, 95, 92, 40, 20, 20, 20, 20})

	if len(*got) != 1 {
		t.Fatalf("expected exactly 1 utterance, got %d", len(*got))
	}
	u := (*got)[0]
	if u.Source != "near" {
		t.Errorf("source: got %q, want %q", u.Source, "near")
	}
	if u.Seq != 1 {
		t.Errorf("seq: got %d, want 1", u.Seq)
	}
	if u.Duration != 700*time.Millisecond {
		t.Errorf("duration: got %v, want 700ms", u.Duration)
	}
	if u.Reason != vad.ReasonSilence {
		t.Errorf("reason: got %q, want %q", u.Reason, vad.ReasonSilence)
	}

	if len(log.recorders) != 1 {
		t.Fatalf("expected 1 recorder, got %d", len(log.recorders))
	}
	rec := log.recorders[0]
	if !rec.finalized || rec.discarded {
		t.Errorf("recorder state: finalized=%v discarded=%v", rec.finalized, rec.discarded)
	}
	// Frames 3 through 9 inclusive are recorded.
	if rec.data.Len() != 7*frameBytes {
		t.Errorf("recorded bytes: got %d, want %d", rec.data.Len(), 7*frameBytes)
	}
	if d.Active() {
		t.Error("detector should be back in silence after finalize")
	}
}

func TestDetectorIgnoresQuietFrames(t *testing.T) {
	t.Parallel()
	log := &recorderLog{}
	d, got := newDetector(t, testConfig(), log)

	feed(d, []int16{0, 20, 49, 79, 80}) // 80 is not strictly above the threshold
	d.Flush()

	if len(*got) != 0 {
		t.Fatalf("expected no utterances, got %d", len(*got))
	}
	if len(log.recorders) != 0 {
		t.Errorf("no recorder should have been opened, got %d", len(log.recorders))
	}
}

func TestDetectorSilenceTimerResets(t *testing.T) {
	t.Parallel()
	log := &recorderLog{}
	d, got := newDetector(t, testConfig(), log)

	// The loud frame at index 3 must reset the silence window; without the
	// reset the utterance would close at index 4.
	feed(d, []int16{90, 40, 40, 90, 40, 40, 40, 40})

	if len(*got) != 1 {
		t.Fatalf("expected 1 utterance, got %d", len(*got))
	}
	if got0 := (*got)[0]; got0.Duration != 800*time.Millisecond {
		t.Errorf("duration: got %v, want 800ms (silence window restarted)", got0.Duration)
	}
}

func TestDetectorIntermediateLoudnessKeepsSpeaking(t *testing.T) {
	t.Parallel()
	log := &recorderLog{}
	d, got := newDetector(t, testConfig(), log)

	// 60 sits between the silence threshold (50) and the speech threshold
	// (80): it neither starts the silence window nor ends it.
	feed(d, []int16{90, 60, 60, 60, 60, 60, 60})

	if len(*got) != 0 {
		t.Fatalf("utterance should still be open, got %d finalized", len(*got))
	}
	if !d.Active() {
		t.Error("detector should still be speaking")
	}

	d.Flush()
	if len(*got) != 1 {
		t.Fatalf("flush should finalize, got %d", len(*got))
	}
	if (*got)[0].Reason != vad.ReasonStreamClosed {
		t.Errorf("reason: got %q, want %q", (*got)[0].Reason, vad.ReasonStreamClosed)
	}
}

// ─── duration limits ─────────────────────────────────────────────────────────

func TestDetectorDiscardsShortUtterance(t *testing.T) {
	t.Parallel()
	log := &recorderLog{}
	d, got := newDetector(t, testConfig(), log)

	// 100ms of speech, then the stream closes: below the 200ms minimum.
	feed(d, []int16{90})
	d.Flush()

	if len(*got) != 0 {
		t.Fatalf("short utterance must not be dispatched, got %d", len(*got))
	}
	if len(log.recorders) != 1 {
		t.Fatalf("expected 1 recorder, got %d", len(log.recorders))
	}
	if rec := log.recorders[0]; !rec.discarded || rec.finalized {
		t.Errorf("recorder state: finalized=%v discarded=%v, want discarded only",
			rec.finalized, rec.discarded)
	}
}

func TestDetectorDiscardsShortUtteranceOnSilence(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MinUtterance = 600 * time.Millisecond
	log := &recorderLog{}
	d, got := newDetector(t, cfg, log)

	// One speech frame plus the silence window is 500ms of audio, still
	// below the raised minimum.
	feed(d, []int16{90, 20, 20, 20, 20})

	if len(*got) != 0 {
		t.Fatalf("expected discard, got %d utterances", len(*got))
	}
	if !log.recorders[0].discarded {
		t.Error("recorder should be discarded")
	}
}

func TestDetectorExactMinimumIsDispatched(t *testing.T) {
	t.Parallel()
	log := &recorderLog{}
	d, got := newDetector(t, testConfig(), log)

	// Exactly 200ms recorded meets the minimum.
	feed(d, []int16{90, 90})
	d.Flush()

	if len(*got) != 1 {
		t.Fatalf("expected dispatch at exact minimum, got %d", len(*got))
	}
	if (*got)[0].Duration != 200*time.Millisecond {
		t.Errorf("duration: got %v, want 200ms", (*got)[0].Duration)
	}
}

func TestDetectorMaxDurationSplits(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MaxUtterance = 300 * time.Millisecond
	log := &recorderLog{}
	d, got := newDetector(t, cfg, log)

	feed(d, []int16{90, 90, 90, 90, 90, 90})
	d.Flush()

	if len(*got) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(*got))
	}
	u1, u2 := (*got)[0], (*got)[1]
	if u1.Reason != vad.ReasonMaxDuration {
		t.Errorf("first reason: got %q, want %q", u1.Reason, vad.ReasonMaxDuration)
	}
	if u1.Seq != 1 || u2.Seq != 2 {
		t.Errorf("sequences: got %d,%d, want 1,2", u1.Seq, u2.Seq)
	}
	if u2.Reason != vad.ReasonStreamClosed {
		t.Errorf("second reason: got %q, want %q", u2.Reason, vad.ReasonStreamClosed)
	}

	// No frame may be lost or duplicated across the forced split.
	total := 0
	for _, rec := range log.recorders {
		total += rec.data.Len()
	}
	if total != 6*frameBytes {
		t.Errorf("total recorded: got %d bytes, want %d", total, 6*frameBytes)
	}
	// The boundary is crossed within one frame of the configured maximum.
	if u1.Duration > cfg.MaxUtterance+frameMs*time.Millisecond {
		t.Errorf("first utterance ran to %v, cap %v", u1.Duration, cfg.MaxUtterance)
	}
}

func TestDetectorBufferLimit(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.BufferLimitFrames = 3
	cfg.MinUtterance = 100 * time.Millisecond
	log := &recorderLog{}
	d, got := newDetector(t, cfg, log)

	feed(d, []int16{90, 90, 90, 90, 90})
	d.Flush()

	if len(*got) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(*got))
	}
	if (*got)[0].Reason != vad.ReasonBufferLimit {
		t.Errorf("reason: got %q, want %q", (*got)[0].Reason, vad.ReasonBufferLimit)
	}
	if d.Active() {
		t.Error("flush should leave the detector inactive")
	}
}

// ─── failure handling ────────────────────────────────────────────────────────

func TestDetectorRetriesAfterOpenFailure(t *testing.T) {
	t.Parallel()
	log := &recorderLog{openErrs: []error{errors.New("disk full")}}
	d, got := newDetector(t, testConfig(), log)

	feed(d, []int16{90, 90, 90, 20, 20, 20, 20})

	if len(*got) != 1 {
		t.Fatalf("expected 1 utterance after retry, got %d", len(*got))
	}
	// The failed open consumed sequence 1.
	if (*got)[0].Seq != 2 {
		t.Errorf("seq: got %d, want 2", (*got)[0].Seq)
	}
	if len(log.recorders) != 1 {
		t.Errorf("expected 1 successful recorder, got %d", len(log.recorders))
	}
}

func TestDetectorAbandonsUtteranceOnAppendFailure(t *testing.T) {
	t.Parallel()
	log := &recorderLog{}
	log.prepare = func(rec *fakeRecorder, seq uint64) {
		if seq == 1 {
			rec.appendErr = errors.New("write error")
		}
	}
	d, got := newDetector(t, testConfig(), log)

	// First utterance dies on its first append; the detector must reset
	// and segment the following speech normally.
	feed(d, []int16{90, 90, 90, 90, 20, 20, 20, 20})

	if len(*got) != 1 {
		t.Fatalf("expected 1 utterance, got %d", len(*got))
	}
	if (*got)[0].Seq != 2 {
		t.Errorf("seq: got %d, want 2", (*got)[0].Seq)
	}
	if rec := log.recorders[0]; !rec.discarded {
		t.Error("failed recorder should be discarded")
	}
	if rec := log.recorders[1]; !rec.finalized {
		t.Error("second recorder should be finalized")
	}
}

func TestDetectorDropsUtteranceOnFinalizeFailure(t *testing.T) {
	t.Parallel()
	log := &recorderLog{}
	log.prepare = func(rec *fakeRecorder, seq uint64) {
		rec.finalizeErr = errors.New("flush error")
	}
	d, got := newDetector(t, testConfig(), log)

	feed(d, []int16{90, 90, 90, 20, 20, 20, 20})

	if len(*got) != 0 {
		t.Fatalf("corrupt utterance must not be dispatched, got %d", len(*got))
	}
	if rec := log.recorders[0]; !rec.discarded {
		t.Error("corrupt recorder should be discarded")
	}
	if d.Active() {
		t.Error("detector should reset after finalize failure")
	}
}

func TestDetectorFlushWhenIdle(t *testing.T) {
	t.Parallel()
	log := &recorderLog{}
	d, got := newDetector(t, testConfig(), log)

	d.Flush()
	d.Flush()

	if len(*got) != 0 || len(log.recorders) != 0 {
		t.Error("flush with no active utterance must be a no-op")
	}
}

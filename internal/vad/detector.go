package vad

import (
	"log/slog"
	"time"

	"github.com/earshot-audio/earshot/internal/observe"
	"github.com/earshot-audio/earshot/pkg/audio"
)

// fallbackBytesPerMs matches 16 kHz mono 16-bit PCM, used if the configured
// format computes to a degenerate rate.
const fallbackBytesPerMs = 32

// Option configures a [Detector].
type Option func(*Detector)

// WithMetrics attaches pipeline metrics so finalized and discarded
// utterances are counted.
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Detector) {
		d.metrics = m
	}
}

// Detector is the voice activity state machine for one audio source. See
// the package documentation for the model. Not safe for concurrent use.
type Detector struct {
	source      string
	cfg         Config
	newRecorder RecorderFactory
	emit        func(Utterance)
	metrics     *observe.Metrics
	bytesPerMs  int

	// Per-utterance state, reset to the zero value whenever the detector
	// returns to silence.
	active         bool
	inSilence      bool
	utteranceStart time.Time
	silenceStart   time.Time
	recorder       Recorder
	recordedBytes  int64
	frames         int

	// seq survives resets; discarded and failed utterances keep their
	// numbers so recording files never collide.
	seq uint64
}

// New creates a Detector for source. emit is invoked synchronously from
// [Detector.ProcessFrame] or [Detector.Flush] for every dispatched
// utterance; it must not block.
func New(source string, cfg Config, factory RecorderFactory, emit func(Utterance), opts ...Option) *Detector {
	cfg = cfg.withDefaults()
	d := &Detector{
		source:      source,
		cfg:         cfg,
		newRecorder: factory,
		emit:        emit,
		bytesPerMs:  cfg.SampleRate * cfg.Channels * 2 / 1000,
	}
	if d.bytesPerMs <= 0 {
		d.bytesPerMs = fallbackBytesPerMs
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Active reports whether an utterance is currently being recorded.
func (d *Detector) Active() bool { return d.active }

// ProcessFrame advances the state machine by one frame of little-endian
// 16-bit PCM. now is the frame's arrival time and drives the silence
// window; recorded durations come from the appended byte count, so
// delivery jitter cannot stretch an utterance.
func (d *Detector) ProcessFrame(pcm []byte, now time.Time) {
	loudness := audio.Loudness(pcm)

	if !d.active {
		if loudness > d.cfg.SpeechThreshold {
			if d.open(now) {
				d.append(pcm)
			}
		}
		return
	}

	// Speaking. The frame always joins the current utterance first.
	if !d.append(pcm) {
		return
	}

	// Forced finalization. The boundary frame belongs to the recording
	// just closed; a still-loud frame re-opens so speech continues into a
	// fresh utterance without a gap.
	if d.recordedDuration() > d.cfg.MaxUtterance {
		d.finalize(ReasonMaxDuration)
		d.reopenIfLoud(loudness, now)
		return
	}
	if d.cfg.BufferLimitFrames > 0 && d.frames > d.cfg.BufferLimitFrames {
		d.finalize(ReasonBufferLimit)
		d.reopenIfLoud(loudness, now)
		return
	}

	// Hysteresis silence tracking.
	if loudness < d.cfg.SilenceThreshold {
		if !d.inSilence {
			d.inSilence = true
			d.silenceStart = now
		} else if now.Sub(d.silenceStart) > d.cfg.SilenceDuration {
			d.finalize(ReasonSilence)
		}
		return
	}

	// Loudness recovered above the silence threshold: the window restarts
	// from scratch on the next quiet frame.
	d.inSilence = false
}

// Flush finalizes any in-progress utterance with [ReasonStreamClosed].
// Call it when the source's stream ends or the session stops; the
// minimum-duration discard rule still applies.
func (d *Detector) Flush() {
	if !d.active {
		return
	}
	d.finalize(ReasonStreamClosed)
}

// open starts a new utterance. Returns false if the recorder could not be
// created, in which case the detector stays in silence and the next speech
// frame retries with a fresh sequence number.
func (d *Detector) open(now time.Time) bool {
	d.seq++
	rec, err := d.newRecorder(d.source, d.seq)
	if err != nil {
		slog.Error("vad: open recorder failed, dropping utterance",
			"source", d.source, "seq", d.seq, "err", err)
		if d.metrics != nil {
			d.metrics.RecordPipelineError("recorder-open")
		}
		return false
	}
	d.recorder = rec
	d.active = true
	d.inSilence = false
	d.utteranceStart = now
	d.recordedBytes = 0
	d.frames = 0
	return true
}

// reopenIfLoud re-enters speech immediately after a forced finalize when
// the current frame is still above the speech threshold.
func (d *Detector) reopenIfLoud(loudness float64, now time.Time) {
	if loudness > d.cfg.SpeechThreshold {
		d.open(now)
	}
}

// append streams one frame into the recorder. On failure the utterance is
// abandoned: the file is discarded best-effort and the detector resets to
// silence. Returns false when that happened.
func (d *Detector) append(pcm []byte) bool {
	if err := d.recorder.Append(pcm); err != nil {
		slog.Error("vad: append failed, abandoning utterance",
			"source", d.source, "seq", d.seq, "err", err)
		if derr := d.recorder.Discard(); derr != nil {
			slog.Warn("vad: discard after failed append",
				"source", d.source, "seq", d.seq, "err", derr)
		}
		if d.metrics != nil {
			d.metrics.RecordPipelineError("recorder-append")
		}
		d.reset()
		return false
	}
	d.recordedBytes += int64(len(pcm))
	d.frames++
	return true
}

// finalize closes the current utterance for the given reason, applying the
// minimum-duration discard rule, and emits it on success.
func (d *Detector) finalize(reason FinalizeReason) {
	rec := d.recorder
	duration := d.recordedDuration()
	seq := d.seq
	startedAt := d.utteranceStart
	d.reset()

	if duration < d.cfg.MinUtterance {
		if err := rec.Discard(); err != nil {
			slog.Warn("vad: discard short utterance",
				"source", d.source, "seq", seq, "err", err)
		}
		slog.Debug("vad: utterance below minimum duration, discarded",
			"source", d.source, "seq", seq, "duration", duration, "reason", reason)
		if d.metrics != nil {
			d.metrics.RecordUtteranceDiscarded(d.source)
		}
		return
	}

	if err := rec.Finalize(); err != nil {
		slog.Error("vad: finalize failed, utterance lost",
			"source", d.source, "seq", seq, "err", err)
		if derr := rec.Discard(); derr != nil {
			slog.Warn("vad: discard corrupt utterance",
				"source", d.source, "seq", seq, "err", derr)
		}
		if d.metrics != nil {
			d.metrics.RecordPipelineError("recorder-finalize")
		}
		return
	}

	slog.Debug("vad: utterance finalized",
		"source", d.source, "seq", seq, "duration", duration, "reason", reason)
	if d.metrics != nil {
		d.metrics.RecordUtteranceFinalized(d.source, string(reason), duration.Seconds())
	}
	d.emit(Utterance{
		Source:    d.source,
		Seq:       seq,
		Path:      rec.Path(),
		Duration:  duration,
		StartedAt: startedAt,
		Reason:    reason,
	})
}

// recordedDuration converts the appended byte count into audio time.
func (d *Detector) recordedDuration() time.Duration {
	return time.Duration(d.recordedBytes/int64(d.bytesPerMs)) * time.Millisecond
}

// reset returns the detector to the silence state, clearing all
// per-utterance fields.
func (d *Detector) reset() {
	d.active = false
	d.inSilence = false
	d.utteranceStart = time.Time{}
	d.silenceStart = time.Time{}
	d.recorder = nil
	d.recordedBytes = 0
	d.frames = 0
}

// Package pipeline connects audio capture to the transcript. The
// Orchestrator owns one voice activity detector per source, dispatches
// every finalized utterance to the configured transcriber on a bounded
// worker goroutine and feeds completed text through the reconciler.
// Workers finish in whatever order the transcription backend allows;
// nothing in this package assumes FIFO completion.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/earshot-audio/earshot/internal/observe"
	"github.com/earshot-audio/earshot/internal/transcript"
	"github.com/earshot-audio/earshot/internal/vad"
	"github.com/earshot-audio/earshot/pkg/audio"
	"github.com/earshot-audio/earshot/pkg/provider/stt"
)

// ErrClosed is returned by [Orchestrator.Process] after Close.
var ErrClosed = errors.New("pipeline: closed")

// Config holds the tuning knobs of an [Orchestrator]. Zero-value fields
// are replaced with the defaults noted per field.
type Config struct {
	// VAD configures the per-source detectors. Its SampleRate and
	// Channels double as the pipeline target format that incoming
	// frames are converted to.
	VAD vad.Config

	// MaxInflight bounds how many transcriptions may run concurrently.
	// Dispatch never blocks the frame path; utterances beyond the bound
	// wait in their worker goroutine. Default: 4.
	MaxInflight int64

	// KeepRecordings leaves utterance files on disk after dispatch.
	// When false every recording is deleted once its worker finishes.
	KeepRecordings bool

	// Provider is the label recorded on transcription metrics.
	// Default: "stt".
	Provider string
}

func (c Config) withDefaults() Config {
	if c.VAD.SampleRate <= 0 {
		c.VAD.SampleRate = 16000
	}
	if c.VAD.Channels <= 0 {
		c.VAD.Channels = 1
	}
	if c.MaxInflight <= 0 {
		c.MaxInflight = 4
	}
	if c.Provider == "" {
		c.Provider = "stt"
	}
	return c
}

// Option customizes an [Orchestrator].
type Option func(*Orchestrator)

// WithMetrics instruments the orchestrator and its detectors.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithCorrector runs transcribed text through a vocabulary corrector
// before it reaches the reconciler.
func WithCorrector(c *transcript.Corrector) Option {
	return func(o *Orchestrator) { o.corrector = c }
}

// WithPostReconcile registers a hook invoked after every reconcile that
// changed the transcript (create and append decisions, not ignores).
// The hook runs on the worker goroutine, off the frame path; a returned
// error is logged and counted but never affects the transcript.
func WithPostReconcile(fn func(context.Context, transcript.Result) error) Option {
	return func(o *Orchestrator) { o.postReconcile = fn }
}

// Orchestrator routes frames from labeled sources through voice activity
// detection, transcription and reconciliation.
//
// Frames for a single source must arrive from one goroutine at a time;
// distinct sources may push concurrently. [Orchestrator.Run] upholds
// this by pumping each stream on its own goroutine.
type Orchestrator struct {
	cfg         Config
	transcriber stt.Transcriber
	reconciler  *transcript.Reconciler
	recorders   vad.RecorderFactory

	metrics       *observe.Metrics
	corrector     *transcript.Corrector
	postReconcile func(context.Context, transcript.Result) error

	sem *semaphore.Weighted
	wg  sync.WaitGroup

	// baseCtx governs worker goroutines; cancelled once Close gives up
	// waiting so stuck backends cannot outlive the pipeline.
	baseCtx context.Context
	cancel  context.CancelFunc

	// stopped flips when Close abandons the drain; workers completing
	// afterwards drop their results instead of touching the reconciler.
	stopped atomic.Bool

	mu        sync.Mutex
	closed    bool
	detectors map[string]*vad.Detector
}

// New creates an Orchestrator transcribing with transcriber and folding
// results into reconciler. Recordings are produced through recorders,
// typically [NewWAVRecorderFactory].
func New(transcriber stt.Transcriber, reconciler *transcript.Reconciler, recorders vad.RecorderFactory, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:         cfg.withDefaults(),
		transcriber: transcriber,
		reconciler:  reconciler,
		recorders:   recorders,
		detectors:   make(map[string]*vad.Detector),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.sem = semaphore.NewWeighted(o.cfg.MaxInflight)
	o.baseCtx, o.cancel = context.WithCancel(context.Background())
	return o
}

// Process feeds one PCM frame for source into its detector, creating the
// detector on first sight. The frame must already be in the pipeline
// target format; Run converts, direct callers are expected to.
func (o *Orchestrator) Process(source string, pcm []byte, now time.Time) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	det := o.detectors[source]
	if det == nil {
		det = o.newDetector(source)
		o.detectors[source] = det
	}
	o.mu.Unlock()

	if o.metrics != nil {
		o.metrics.RecordFrameProcessed(source)
	}
	det.ProcessFrame(pcm, now)
	return nil
}

// Flush finalizes any active utterance on source. Call it when a stream
// ends; Run does so automatically when a source channel closes.
func (o *Orchestrator) Flush(source string) {
	o.mu.Lock()
	det := o.detectors[source]
	o.mu.Unlock()
	if det != nil {
		det.Flush()
	}
}

// Run pumps every stream through [Orchestrator.Process] until all
// channels close or ctx is cancelled, one goroutine per source. A
// source's detector is flushed when its channel closes, so utterances
// cut off by the stream end still reach the transcriber.
func (o *Orchestrator) Run(ctx context.Context, streams map[string]<-chan audio.Frame) error {
	eg, egCtx := errgroup.WithContext(ctx)
	target := audio.Format{SampleRate: o.cfg.VAD.SampleRate, Channels: o.cfg.VAD.Channels}

	for source, ch := range streams {
		eg.Go(func() error {
			conv := audio.Converter{Target: target}
			for {
				select {
				case <-egCtx.Done():
					return fmt.Errorf("pipeline: pump %s: %w", source, egCtx.Err())
				case frame, ok := <-ch:
					if !ok {
						o.Flush(source)
						return nil
					}
					frame = conv.Convert(frame)
					if len(frame.Data) == 0 {
						continue
					}
					if err := o.Process(source, frame.Data, time.Now()); err != nil {
						if errors.Is(err, ErrClosed) {
							return nil
						}
						return fmt.Errorf("pipeline: pump %s: %w", source, err)
					}
				}
			}
		})
	}
	return eg.Wait()
}

// Close flushes every detector, dispatching still-active utterances with
// reason stream-closed, then waits for in-flight transcriptions. When
// ctx expires first the remaining workers are cut loose: their backend
// calls are cancelled and any result they still produce is dropped.
// Deliver no further frames once Close has been called; Process returns
// [ErrClosed] and Run pumps wind down on their own.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	dets := o.detectors
	o.detectors = nil
	o.mu.Unlock()

	for _, det := range dets {
		det.Flush()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.stopped.Store(true)
		o.cancel()
		return fmt.Errorf("pipeline: close: %w", ctx.Err())
	}
}

// newDetector is called with o.mu held.
func (o *Orchestrator) newDetector(source string) *vad.Detector {
	var opts []vad.Option
	if o.metrics != nil {
		opts = append(opts, vad.WithMetrics(o.metrics))
	}
	return vad.New(source, o.cfg.VAD, o.recorders, o.dispatch, opts...)
}

// dispatch hands a finalized utterance to a worker goroutine. It is the
// detector emit callback and must never block: the semaphore is acquired
// inside the worker, not here.
func (o *Orchestrator) dispatch(utt vad.Utterance) {
	o.wg.Add(1)
	go o.work(utt)
}

// work carries one utterance from recording file to reconciled entry.
func (o *Orchestrator) work(utt vad.Utterance) {
	defer o.wg.Done()
	defer o.cleanupRecording(utt)

	if err := o.sem.Acquire(o.baseCtx, 1); err != nil {
		slog.Debug("pipeline: utterance abandoned before transcription",
			"source", utt.Source, "seq", utt.Seq)
		return
	}
	defer o.sem.Release(1)

	if o.metrics != nil {
		o.metrics.TranscriptionStarted()
		defer o.metrics.TranscriptionDone()
	}

	ctx, span := observe.StartSpan(o.baseCtx, "utterance.transcribe",
		trace.WithAttributes(
			attribute.String("source", utt.Source),
			attribute.Int64("seq", int64(utt.Seq)),
		))
	defer span.End()

	start := time.Now()
	text, err := o.transcriber.Transcribe(ctx, utt.Path, utt.Source)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		span.RecordError(err)
		if o.metrics != nil {
			o.metrics.RecordTranscription(ctx, o.cfg.Provider, "error", elapsed.Seconds())
			o.metrics.RecordPipelineError("transcribe")
		}
		slog.Warn("pipeline: transcription failed",
			"source", utt.Source, "seq", utt.Seq, "error", err)
		return
	case text == "":
		// The backend heard nothing; common on breath and noise tails.
		if o.metrics != nil {
			o.metrics.RecordTranscription(ctx, o.cfg.Provider, "empty", elapsed.Seconds())
		}
		slog.Debug("pipeline: empty transcription",
			"source", utt.Source, "seq", utt.Seq, "audio", utt.Duration)
		return
	}
	if o.metrics != nil {
		o.metrics.RecordTranscription(ctx, o.cfg.Provider, "ok", elapsed.Seconds())
	}

	if o.corrector != nil {
		corrected, changes := o.corrector.Correct(text)
		if len(changes) > 0 {
			slog.Debug("pipeline: vocabulary corrections applied",
				"source", utt.Source, "seq", utt.Seq, "count", len(changes))
		}
		text = corrected
	}

	if o.stopped.Load() {
		slog.Debug("pipeline: dropping result after shutdown",
			"source", utt.Source, "seq", utt.Seq)
		return
	}

	res := o.reconciler.Reconcile(text, utt.Source, time.Now())
	if o.metrics != nil {
		o.metrics.RecordReconcileDecision(string(res.Decision), o.reconciler.Len())
	}
	observe.Logger(ctx).Debug("pipeline: utterance reconciled",
		"source", utt.Source, "seq", utt.Seq,
		"decision", res.Decision, "entry", res.Entry.ID,
		"transcription", elapsed)

	if o.postReconcile != nil && res.Decision != transcript.DecisionIgnore {
		if err := o.postReconcile(ctx, res); err != nil {
			if o.metrics != nil {
				o.metrics.RecordPipelineError("archive")
			}
			slog.Warn("pipeline: post-reconcile hook failed",
				"source", utt.Source, "entry", res.Entry.ID, "error", err)
		}
	}
}

// cleanupRecording removes the utterance file unless recordings are kept.
func (o *Orchestrator) cleanupRecording(utt vad.Utterance) {
	if o.cfg.KeepRecordings {
		return
	}
	if err := os.Remove(utt.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("pipeline: removing recording failed",
			"path", utt.Path, "error", err)
	}
}

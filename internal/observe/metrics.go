// Package observe is the observability layer of earshot. It carries the
// OpenTelemetry metric instruments for the audio pipeline, span and
// correlation helpers for tracing, and the HTTP middleware that applies
// both to the server surface.
//
// Everything records through the OTel APIs; [InitProvider] bridges the
// metric side to a Prometheus exporter so the numbers come out of the
// usual /metrics endpoint. Pipeline code reaches instruments through
// [DefaultMetrics]. Tests build their own instance with [NewMetrics] and
// a [metric.MeterProvider] backed by a manual reader, which keeps each
// test's readings isolated.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Earshot metrics.
const meterName = "github.com/earshot-audio/earshot"

// Metrics bundles every instrument the pipeline and server record into.
// OTel instruments synchronise internally, so the fields may be used from
// any goroutine.
//
// The pipeline hot path (one frame every few milliseconds per source) calls
// the convenience methods without a context; they record against
// context.Background, which the OTel SDK treats as "no exemplar trace".
type Metrics struct {
	// --- Frame intake ---

	// FramesProcessed counts PCM frames fed through the detectors. Use with
	// attribute: attribute.String("source", ...)
	FramesProcessed metric.Int64Counter

	// --- Utterance lifecycle ---

	// UtterancesFinalized counts utterances handed to transcription. Use with
	// attributes: attribute.String("source", ...), attribute.String("reason", ...)
	UtterancesFinalized metric.Int64Counter

	// UtterancesDiscarded counts utterances dropped for falling below the
	// minimum duration. Use with attribute: attribute.String("source", ...)
	UtterancesDiscarded metric.Int64Counter

	// UtteranceDuration tracks the recorded length of finalized utterances.
	UtteranceDuration metric.Float64Histogram

	// --- Transcription ---

	// TranscriptionDuration tracks speech-to-text latency. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("outcome", ...)
	TranscriptionDuration metric.Float64Histogram

	// TranscriptionsInflight tracks the number of transcription requests
	// currently in flight across all sources.
	TranscriptionsInflight metric.Int64UpDownCounter

	// --- Transcript ---

	// ReconcileDecisions counts reconciler outcomes. Use with attribute:
	//   attribute.String("decision", ...)
	ReconcileDecisions metric.Int64Counter

	// TranscriptEntries reports the transcript size after each change,
	// reflecting eviction as well as growth.
	TranscriptEntries metric.Int64Gauge

	// --- Errors ---

	// PipelineErrors counts recoverable pipeline failures. Use with attribute:
	//   attribute.String("stage", ...)
	PipelineErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks request latency on the server surface.
	// Use with attributes: attribute.String("method", ...),
	// attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are the histogram boundaries, in seconds. The low end
// resolves frame-level work; the top bucket catches a slow whisper call.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics builds the full instrument set on mp. It fails if any single
// instrument cannot be created, leaving no partially usable Metrics.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.FramesProcessed, err = m.Int64Counter("earshot.frames.processed",
		metric.WithDescription("Total PCM frames processed by source."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesFinalized, err = m.Int64Counter("earshot.utterances.finalized",
		metric.WithDescription("Total utterances finalized by source and reason."),
	); err != nil {
		return nil, err
	}
	if met.UtterancesDiscarded, err = m.Int64Counter("earshot.utterances.discarded",
		metric.WithDescription("Total utterances discarded below the minimum duration, by source."),
	); err != nil {
		return nil, err
	}
	if met.ReconcileDecisions, err = m.Int64Counter("earshot.reconcile.decisions",
		metric.WithDescription("Total reconciler outcomes by decision."),
	); err != nil {
		return nil, err
	}
	if met.PipelineErrors, err = m.Int64Counter("earshot.pipeline.errors",
		metric.WithDescription("Total recoverable pipeline failures by stage."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.UtteranceDuration, err = m.Float64Histogram("earshot.utterance.duration",
		metric.WithDescription("Recorded length of finalized utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("earshot.transcription.duration",
		metric.WithDescription("Latency of speech-to-text transcription by provider and outcome."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.TranscriptionsInflight, err = m.Int64UpDownCounter("earshot.transcriptions.inflight",
		metric.WithDescription("Number of transcription requests currently in flight."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptEntries, err = m.Int64Gauge("earshot.transcript.entries",
		metric.WithDescription("Number of entries in the live transcript."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("earshot.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the shared instance, built on the global meter
// provider the first time it is asked for. The global provider's noop
// instruments cannot fail to create, so a failure here is a programming
// error and panics.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordFrameProcessed counts one processed PCM frame for source.
func (m *Metrics) RecordFrameProcessed(source string) {
	m.FramesProcessed.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("source", source)),
	)
}

// RecordUtteranceFinalized counts a finalized utterance and records its
// duration in seconds.
func (m *Metrics) RecordUtteranceFinalized(source, reason string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("reason", reason),
	)
	m.UtterancesFinalized.Add(context.Background(), 1, attrs)
	m.UtteranceDuration.Record(context.Background(), seconds,
		metric.WithAttributes(attribute.String("source", source)),
	)
}

// RecordUtteranceDiscarded counts an utterance dropped below the minimum
// duration.
func (m *Metrics) RecordUtteranceDiscarded(source string) {
	m.UtterancesDiscarded.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("source", source)),
	)
}

// RecordTranscription records the latency of one transcription attempt.
// outcome is "ok" or "error".
func (m *Metrics) RecordTranscription(ctx context.Context, provider, outcome string, seconds float64) {
	m.TranscriptionDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("outcome", outcome),
		),
	)
}

// TranscriptionStarted bumps the in-flight transcription gauge. Pair with
// [Metrics.TranscriptionDone].
func (m *Metrics) TranscriptionStarted() {
	m.TranscriptionsInflight.Add(context.Background(), 1)
}

// TranscriptionDone decrements the in-flight transcription gauge.
func (m *Metrics) TranscriptionDone() {
	m.TranscriptionsInflight.Add(context.Background(), -1)
}

// RecordReconcileDecision counts one reconciler outcome and reports the
// resulting transcript size.
func (m *Metrics) RecordReconcileDecision(decision string, entries int) {
	m.ReconcileDecisions.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("decision", decision)),
	)
	m.TranscriptEntries.Record(context.Background(), int64(entries))
}

// RecordPipelineError counts a recoverable pipeline failure at the given
// stage (e.g. "recorder-open", "transcribe", "decode").
func (m *Metrics) RecordPipelineError(stage string) {
	m.PipelineErrors.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

// Package app assembles the Earshot server out of its subsystems.
//
// [New] builds and connects everything, [App.Run] serves until the
// context ends, and [App.Shutdown] unwinds in dependency order: capture
// first, so the pipeline drain is finite, then the pipeline, the HTTP
// listener, and finally the archive pool and telemetry providers.
//
// Subsystems New would build from config can instead be injected through
// options (WithMetrics, WithArchiveStore, WithCaptureSource), which is
// how the tests run an App against doubles.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/earshot-audio/earshot/internal/config"
	"github.com/earshot-audio/earshot/internal/health"
	"github.com/earshot-audio/earshot/internal/ingest"
	"github.com/earshot-audio/earshot/internal/mcpserver"
	"github.com/earshot-audio/earshot/internal/notes"
	"github.com/earshot-audio/earshot/internal/observe"
	"github.com/earshot-audio/earshot/internal/pipeline"
	"github.com/earshot-audio/earshot/internal/resilience"
	"github.com/earshot-audio/earshot/internal/transcript"
	"github.com/earshot-audio/earshot/internal/transcript/phonetic"
	"github.com/earshot-audio/earshot/internal/vad"
	"github.com/earshot-audio/earshot/pkg/archive"
	"github.com/earshot-audio/earshot/pkg/archive/postgres"
	"github.com/earshot-audio/earshot/pkg/audio"
	"github.com/earshot-audio/earshot/pkg/capture"
	capdiscord "github.com/earshot-audio/earshot/pkg/capture/discord"
	"github.com/earshot-audio/earshot/pkg/provider/embeddings"
	"github.com/earshot-audio/earshot/pkg/provider/llm"
	"github.com/earshot-audio/earshot/pkg/provider/stt"
)

// Providers carries the backends main.go resolved through the config
// registry. A nil slot means that stage runs without its feature: no STT
// leaves the transcript empty, no LLM disables notes, no embeddings
// disables semantic search.
type Providers struct {
	STT        stt.Transcriber
	LLM        llm.Provider
	Embeddings embeddings.Provider
}

// App owns all subsystem lifetimes and orchestrates the Earshot pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	cfgPath  string
	logLevel *slog.LevelVar

	// Subsystems, built in New and unwound in Shutdown.
	metrics    *observe.Metrics
	reconciler *transcript.Reconciler
	corrector  *transcript.Corrector
	store      archive.Store
	writer     *archive.Writer
	orch       *pipeline.Orchestrator
	source     capture.Source
	ingest     *ingest.Server
	httpSrv    *http.Server
	watcher    *config.Watcher

	recordingsDir string
	captureDesc   string

	// closers run newest-first during Shutdown, after capture, pipeline
	// and HTTP server have been stopped explicitly.
	closers []func(context.Context) error

	// stopOnce makes repeated Shutdown calls harmless.
	stopOnce sync.Once
}

// Option adjusts how New assembles the App.
type Option func(*App)

// WithMetrics injects the metric set instead of installing the global
// OTel providers. Tests use this to keep global state untouched.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithArchiveStore injects an archive store instead of connecting to
// PostgreSQL. An injected store is not closed by Shutdown; its owner is.
func WithArchiveStore(s archive.Store) Option {
	return func(a *App) { a.store = s }
}

// WithCaptureSource injects a capture source in place of the one the
// capture config would create. The injected source is closed by Shutdown
// like a created one would be.
func WithCaptureSource(s capture.Source) Option {
	return func(a *App) { a.source = s }
}

// WithConfigFile enables hot reload: the file at path is watched, and
// live-applicable changes (log level, reconciler tuning, vocabulary)
// take effect without a restart.
func WithConfigFile(path string) Option {
	return func(a *App) { a.cfgPath = path }
}

// WithLogLevel hands the app the level var behind the process logger so
// a config reload can retune verbosity.
func WithLogLevel(level *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = level }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers
// struct comes from main.go (populated via the config registry). Use
// Option functions to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: telemetry providers,
// reconciler and corrector, archive connection, pipeline assembly,
// capture setup, the HTTP surface, and the config watcher.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	if a.providers == nil {
		a.providers = &Providers{}
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Observability ─────────────────────────────────────────────────
	if err := a.initObservability(ctx); err != nil {
		return nil, fmt.Errorf("app: init observability: %w", err)
	}

	// ── 2. Transcript ────────────────────────────────────────────────────
	a.initTranscript()

	// ── 3. Archive ───────────────────────────────────────────────────────
	if err := a.initArchive(ctx); err != nil {
		return nil, fmt.Errorf("app: init archive: %w", err)
	}

	// ── 4. Pipeline ──────────────────────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 5. Capture ───────────────────────────────────────────────────────
	if err := a.initCapture(ctx); err != nil {
		return nil, fmt.Errorf("app: init capture: %w", err)
	}

	// ── 6. HTTP surface ──────────────────────────────────────────────────
	a.initHTTP()

	// ── 7. Config watcher ────────────────────────────────────────────────
	if err := a.initWatcher(); err != nil {
		return nil, fmt.Errorf("app: init config watcher: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initObservability installs the OTel providers and builds the metric set.
func (a *App) initObservability(ctx context.Context) error {
	if a.metrics != nil {
		return nil // injected
	}
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "earshot"})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, shutdown)
	a.metrics = observe.DefaultMetrics()
	return nil
}

// initTranscript builds the reconciler and the vocabulary corrector. The
// corrector is attached even with an empty vocabulary so a config reload
// can populate it live.
func (a *App) initTranscript() {
	a.reconciler = transcript.New(reconcilerConfig(a.cfg.Reconciler))
	a.corrector = transcript.NewCorrector(phonetic.New(), a.cfg.Vocabulary)
}

// initArchive connects the PostgreSQL store and builds the write-through
// writer. An empty DSN leaves archiving off entirely.
func (a *App) initArchive(ctx context.Context) error {
	if a.store == nil {
		dsn := a.cfg.Archive.PostgresDSN
		if dsn == "" {
			return nil
		}

		// Without an embeddings provider nothing can produce vectors, so
		// the store skips the pgvector column entirely.
		dims := 0
		if a.providers.Embeddings != nil {
			dims = a.cfg.Archive.EmbeddingDimensions
			if dims == 0 {
				dims = 1536 // matches OpenAI text-embedding-3-small
			}
		}

		store, err := postgres.New(ctx, dsn, dims)
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, func(context.Context) error {
			store.Close()
			return nil
		})
		slog.Info("archive connected", "embedding_dimensions", dims)
	}

	var wopts []archive.WriterOption
	if a.providers.Embeddings != nil {
		wopts = append(wopts, archive.WithEmbeddings(a.providers.Embeddings))
	}
	a.writer = archive.NewWriter(a.store, wopts...)
	return nil
}

// initPipeline assembles the recorder factory, the transcriber and the
// source orchestrator.
func (a *App) initPipeline() error {
	dir := a.cfg.Pipeline.RecordingsDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "earshot")
	}
	a.recordingsDir = dir

	target := a.targetFormat()
	recorders, err := pipeline.NewWAVRecorderFactory(dir, target.SampleRate, target.Channels)
	if err != nil {
		return err
	}

	opts := []pipeline.Option{
		pipeline.WithMetrics(a.metrics),
		pipeline.WithCorrector(a.corrector),
	}
	if a.writer != nil {
		writer := a.writer
		opts = append(opts, pipeline.WithPostReconcile(func(ctx context.Context, res transcript.Result) error {
			return writer.Upsert(ctx, archive.Entry{
				ID:            res.Entry.ID,
				Source:        res.Entry.Source,
				Text:          res.Entry.Text,
				CreatedAt:     res.Entry.CreatedAt,
				LastUpdatedAt: res.Entry.LastUpdatedAt,
			})
		}))
	}

	// The detector treats a zero frame cap as unlimited; the config
	// documents 1000 as the default.
	bufferLimit := a.cfg.VAD.BufferLimitFrames
	if bufferLimit == 0 {
		bufferLimit = 1000
	}

	a.orch = pipeline.New(a.transcriber(), a.reconciler, recorders, pipeline.Config{
		VAD: vad.Config{
			SampleRate:        target.SampleRate,
			Channels:          target.Channels,
			SpeechThreshold:   a.cfg.VAD.SpeechThreshold,
			SilenceThreshold:  a.cfg.VAD.SilenceThreshold,
			SilenceDuration:   time.Duration(a.cfg.VAD.SilenceDurationMs) * time.Millisecond,
			MinUtterance:      time.Duration(a.cfg.VAD.MinUtteranceMs) * time.Millisecond,
			MaxUtterance:      time.Duration(a.cfg.VAD.MaxUtteranceMs) * time.Millisecond,
			BufferLimitFrames: bufferLimit,
		},
		MaxInflight:    int64(a.cfg.Pipeline.MaxInflight),
		KeepRecordings: a.cfg.Pipeline.KeepRecordings,
		Provider:       a.providerLabel(),
	}, opts...)
	return nil
}

// initCapture sets up the configured audio intake: a Discord voice
// connection, the /ingest WebSocket handler, or nothing for kind "none".
func (a *App) initCapture(ctx context.Context) error {
	if a.source != nil {
		a.captureDesc = "injected"
		return nil
	}

	kind := a.cfg.Capture.Kind
	if kind == "" {
		kind = config.CaptureWebsocket
	}
	a.captureDesc = string(kind)

	switch kind {
	case config.CaptureDiscord:
		dc := a.cfg.Capture.Discord
		src, err := capdiscord.New(ctx, capdiscord.Config{
			Token:     dc.Token,
			GuildID:   dc.GuildID,
			ChannelID: dc.ChannelID,
			Label:     dc.SourceLabel,
		}, a.targetFormat())
		if err != nil {
			return err
		}
		a.source = src

	case config.CaptureWebsocket:
		a.ingest = ingest.New(a.orch, a.targetFormat())

	case config.CaptureNone:
		// External feeder or API-only deployment.
	}
	return nil
}

// initHTTP assembles the mux: health probes, Prometheus metrics, the
// ingest WebSocket when capture kind is ws, and the MCP endpoint when
// enabled. Everything runs behind the observe middleware.
func (a *App) initHTTP() {
	mux := http.NewServeMux()

	checkers := []health.Checker{health.RecordingsDirCheck(a.recordingsDir)}
	if a.store != nil {
		checkers = append(checkers, health.ArchiveCheck(a.store))
	}
	health.New(checkers...).Register(mux)

	mux.Handle("GET /metrics", promhttp.Handler())

	if a.ingest != nil {
		mux.Handle("/ingest", a.ingest)
	}

	if a.cfg.MCP.Enabled {
		var opts []mcpserver.Option
		if a.store != nil {
			opts = append(opts, mcpserver.WithArchive(a.store))
		}
		if a.cfg.Notes.Enabled && a.providers.LLM != nil {
			opts = append(opts, mcpserver.WithSummariser(
				notes.NewLLMSummariser(a.providers.LLM, a.cfg.Notes.MaxEntries)))
		}
		mux.Handle("/mcp", mcpserver.New(a.reconciler, opts...).Handler())
	}

	addr := a.cfg.Server.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	a.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// initWatcher starts hot reload when a config path was provided.
func (a *App) initWatcher() error {
	if a.cfgPath == "" {
		return nil
	}
	w, err := config.NewWatcher(a.cfgPath, a.applyConfigChange)
	if err != nil {
		return err
	}
	a.watcher = w
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and pumps capture audio until ctx is cancelled or a
// subsystem fails. On cancellation the HTTP listener is shut down so the
// serve goroutine returns; everything else is torn down by Shutdown.
// Returns context.Canceled after a clean cancellation.
func (a *App) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		slog.Info("http server listening", "addr", a.httpSrv.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http serve: %w", err)
		}
		return nil
	})

	if a.source != nil {
		eg.Go(func() error {
			return a.orch.Run(egCtx, a.source.Streams())
		})
	}

	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout())
		defer cancel()
		if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})

	slog.Info("app running",
		"capture", a.captureDesc,
		"archive", a.store != nil,
		"mcp", a.cfg.MCP.Enabled,
	)

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems: capture stops producing frames,
// the pipeline drains in-flight transcriptions, the HTTP server closes,
// then the remaining closers (archive pool, telemetry providers) run
// newest-first. It respects the context deadline: if ctx expires before
// all closers finish, remaining closers are skipped and the context
// error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")

		if a.watcher != nil {
			a.watcher.Stop()
		}

		// Stop frame production first so the drain below is finite.
		if a.source != nil {
			if err := a.source.Close(); err != nil {
				slog.Warn("capture close error", "error", err)
			}
		}

		// Drain in-flight transcriptions.
		if err := a.orch.Close(ctx); err != nil {
			slog.Warn("pipeline drain incomplete", "error", err)
		}

		// Stop serving. Ingest connections end on their next frame, once
		// the orchestrator refuses it.
		if err := a.httpSrv.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "error", err)
		}

		// Remaining closers: archive pool, then telemetry providers.
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](ctx); err != nil {
				slog.Warn("closer error", "index", i, "error", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ShutdownTimeout returns the configured graceful-shutdown budget
// (server.shutdown_timeout_ms, default 15s). main passes it to the
// Shutdown context.
func (a *App) ShutdownTimeout() time.Duration {
	if ms := a.cfg.Server.ShutdownTimeoutMs; ms > 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return 15 * time.Second
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// targetFormat is the pipeline PCM format every capture source delivers.
func (a *App) targetFormat() audio.Format {
	f := audio.Format{SampleRate: a.cfg.Audio.SampleRate, Channels: a.cfg.Audio.Channels}
	if f.SampleRate <= 0 {
		f.SampleRate = 16000
	}
	if f.Channels <= 0 {
		f.Channels = 1
	}
	return f
}

// transcriber wraps the configured STT provider in a circuit breaker so
// a dead backend fails fast instead of tying up the worker pool. Without
// a provider a no-op stands in: utterances are still detected and
// recorded, the transcript just never fills.
func (a *App) transcriber() stt.Transcriber {
	if a.providers.STT == nil {
		return noopTranscriber{}
	}
	return resilience.NewFallbackTranscriber(a.providers.STT, a.providerLabel(), resilience.FallbackConfig{})
}

// providerLabel names the STT backend on metrics and breaker logs.
func (a *App) providerLabel() string {
	if a.providers.STT == nil {
		return "none"
	}
	if name := a.cfg.Providers.STT.Name; name != "" {
		return name
	}
	return "stt"
}

// noopTranscriber hears nothing. It stands in when no STT provider is
// configured.
type noopTranscriber struct{}

func (noopTranscriber) Transcribe(context.Context, string, string) (string, error) {
	return "", nil
}

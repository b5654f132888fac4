package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames holds the built-in implementation names per stage.
// [Validate] warns when a config names something outside this list, since
// that usually means a typo rather than a third-party registration.
var ValidProviderNames = map[string][]string{
	"stt":        {"whisper", "whisper-native", "openai"},
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
}

// Load opens the YAML file at path and hands it to [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes one YAML document from r and validates it.
// Unknown YAML keys are errors, so a misspelled setting fails loudly at
// startup instead of silently running on defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg for values that cannot work at runtime. All
// failures are collected and returned as one joined error so a broken
// file can be fixed in a single pass. Suspicious but workable settings
// only log warnings.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeoutMs < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout_ms %d must not be negative", cfg.Server.ShutdownTimeoutMs))
	}

	// Audio format
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels < 0 || cfg.Audio.Channels > 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is out of range [0, 2]", cfg.Audio.Channels))
	}

	// VAD thresholds. The hysteresis gap is the one relationship that must
	// hold, otherwise the detector flaps between states.
	if cfg.VAD.SpeechThreshold < 0 {
		errs = append(errs, fmt.Errorf("vad.speech_threshold %.1f must not be negative", cfg.VAD.SpeechThreshold))
	}
	if cfg.VAD.SilenceThreshold < 0 {
		errs = append(errs, fmt.Errorf("vad.silence_threshold %.1f must not be negative", cfg.VAD.SilenceThreshold))
	}
	if cfg.VAD.SpeechThreshold != 0 && cfg.VAD.SilenceThreshold != 0 &&
		cfg.VAD.SilenceThreshold >= cfg.VAD.SpeechThreshold {
		errs = append(errs, fmt.Errorf("vad.silence_threshold %.1f must be below vad.speech_threshold %.1f",
			cfg.VAD.SilenceThreshold, cfg.VAD.SpeechThreshold))
	}
	if cfg.VAD.MinUtteranceMs != 0 && cfg.VAD.MaxUtteranceMs != 0 &&
		cfg.VAD.MinUtteranceMs >= cfg.VAD.MaxUtteranceMs {
		errs = append(errs, fmt.Errorf("vad.min_utterance_ms %d must be below vad.max_utterance_ms %d",
			cfg.VAD.MinUtteranceMs, cfg.VAD.MaxUtteranceMs))
	}

	// Reconciler
	if cfg.Reconciler.DuplicateThreshold < 0 || cfg.Reconciler.DuplicateThreshold > 1 {
		errs = append(errs, fmt.Errorf("reconciler.duplicate_threshold %.2f is out of range [0, 1]", cfg.Reconciler.DuplicateThreshold))
	}
	if cfg.Reconciler.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("reconciler.max_entries %d must not be negative", cfg.Reconciler.MaxEntries))
	}

	// Pipeline
	if cfg.Pipeline.MaxInflight < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_inflight %d must not be negative", cfg.Pipeline.MaxInflight))
	}

	// Vocabulary entries must be non-blank.
	for i, term := range cfg.Vocabulary {
		if strings.TrimSpace(term) == "" {
			errs = append(errs, fmt.Errorf("vocabulary[%d] is blank", i))
		}
	}

	// Capture
	if cfg.Capture.Kind != "" && !cfg.Capture.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("capture.kind %q is invalid; valid values: ws, discord, none", cfg.Capture.Kind))
	}
	if cfg.Capture.Kind == CaptureDiscord {
		if cfg.Capture.Discord.Token == "" {
			errs = append(errs, fmt.Errorf("capture.discord.token is required when capture.kind is discord"))
		}
		if cfg.Capture.Discord.GuildID == "" {
			errs = append(errs, fmt.Errorf("capture.discord.guild_id is required when capture.kind is discord"))
		}
		if cfg.Capture.Discord.ChannelID == "" {
			errs = append(errs, fmt.Errorf("capture.discord.channel_id is required when capture.kind is discord"))
		}
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	// Missing providers degrade features rather than break startup.
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; utterances will be recorded but never transcribed")
	}
	if cfg.Notes.Enabled && cfg.Providers.LLM.Name == "" {
		errs = append(errs, fmt.Errorf("notes.enabled requires providers.llm to be configured"))
	}

	// Embeddings ↔ archive dimensions
	if cfg.Providers.Embeddings.Name != "" && cfg.Archive.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but archive.embedding_dimensions is not set; defaulting to 1536")
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Archive.PostgresDSN == "" {
		slog.Warn("providers.embeddings is configured but archive.postgres_dsn is empty; semantic search will not be available")
	}

	return errors.Join(errs...)
}

// validateProviderName warns about names absent from [ValidProviderNames].
// A third-party registration is legitimate, so this never fails validation.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("provider name not built in, assuming third-party registration",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

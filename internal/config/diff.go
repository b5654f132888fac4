package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only log level, reconciler tuning, and the vocabulary can be applied
// without a restart; every other change lands in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ReconcilerChanged bool
	NewReconciler     ReconcilerConfig

	VocabularyChanged bool
	NewVocabulary     []string

	// RestartRequired lists the top-level sections that changed but cannot
	// be hot-reloaded (e.g., "server", "capture", "providers").
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.ReconcilerChanged && !d.VocabularyChanged &&
		len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level — hot-reloadable.
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Reconciler tuning — hot-reloadable.
	if old.Reconciler != new.Reconciler {
		d.ReconcilerChanged = true
		d.NewReconciler = new.Reconciler
	}

	// Vocabulary — hot-reloadable.
	if !slices.Equal(old.Vocabulary, new.Vocabulary) {
		d.VocabularyChanged = true
		d.NewVocabulary = slices.Clone(new.Vocabulary)
	}

	// Everything else requires a restart. Compare section by section so the
	// warning names what the operator touched.
	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if oldServer != newServer {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.VAD != new.VAD {
		d.RestartRequired = append(d.RestartRequired, "vad")
	}
	if old.Pipeline != new.Pipeline {
		d.RestartRequired = append(d.RestartRequired, "pipeline")
	}
	if old.Capture != new.Capture {
		d.RestartRequired = append(d.RestartRequired, "capture")
	}
	if !providersEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Archive != new.Archive {
		d.RestartRequired = append(d.RestartRequired, "archive")
	}
	if old.MCP != new.MCP {
		d.RestartRequired = append(d.RestartRequired, "mcp")
	}
	if old.Notes != new.Notes {
		d.RestartRequired = append(d.RestartRequired, "notes")
	}

	return d
}

// providersEqual compares the provider selections. Entries carry an
// arbitrary Options map, so == is unavailable.
func providersEqual(a, b ProvidersConfig) bool {
	return entryEqual(a.STT, b.STT) && entryEqual(a.LLM, b.LLM) && entryEqual(a.Embeddings, b.Embeddings)
}

func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	// Options can hold nested YAML values, so == is unavailable.
	return reflect.DeepEqual(a.Options, b.Options)
}

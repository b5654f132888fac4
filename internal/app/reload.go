package app

import (
	"log/slog"
	"time"

	"github.com/earshot-audio/earshot/internal/config"
	"github.com/earshot-audio/earshot/internal/transcript"
)

// applyConfigChange is the config watcher callback. Log level,
// reconciler tuning and the vocabulary apply live; everything else is
// reported as needing a restart.
func (a *App) applyConfigChange(old, new *config.Config) {
	diff := config.Diff(old, new)
	if diff.Empty() {
		return
	}

	if diff.LogLevelChanged {
		if a.logLevel != nil {
			a.logLevel.Set(diff.NewLogLevel.SlogLevel())
			slog.Info("log level changed", "level", diff.NewLogLevel)
		} else {
			slog.Warn("log level changed but the logger is not reloadable", "level", diff.NewLogLevel)
		}
	}

	if diff.ReconcilerChanged {
		a.reconciler.SetConfig(reconcilerConfig(diff.NewReconciler))
		slog.Info("reconciler tuning changed",
			"duplicate_threshold", diff.NewReconciler.DuplicateThreshold,
			"continuation_window_ms", diff.NewReconciler.ContinuationWindowMs,
			"max_entries", diff.NewReconciler.MaxEntries,
		)
	}

	if diff.VocabularyChanged {
		a.corrector.SetVocabulary(diff.NewVocabulary)
		slog.Info("vocabulary changed", "terms", len(diff.NewVocabulary))
	}

	for _, section := range diff.RestartRequired {
		slog.Warn("config change needs a restart to apply", "section", section)
	}
}

// reconcilerConfig maps the config section onto the reconciler's tuning
// struct. Zero fields pass through; the reconciler fills its own
// defaults.
func reconcilerConfig(rc config.ReconcilerConfig) transcript.Config {
	return transcript.Config{
		DuplicateThreshold: rc.DuplicateThreshold,
		ContinuationWindow: time.Duration(rc.ContinuationWindowMs) * time.Millisecond,
		MaxEntries:         rc.MaxEntries,
	}
}

package config_test

import (
	"slices"
	"testing"

	"github.com/earshot-audio/earshot/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server:     config.ServerConfig{LogLevel: config.LogInfo, HTTPAddr: ":8080"},
		Reconciler: config.ReconcilerConfig{DuplicateThreshold: 0.7},
		Vocabulary: []string{"Kubernetes"},
	}
	d := config.Diff(cfg, cfg)
	if !d.Empty() {
		t.Errorf("expected empty diff for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level is hot-reloadable, got restart sections %v", d.RestartRequired)
	}
}

func TestDiff_ReconcilerChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Reconciler: config.ReconcilerConfig{DuplicateThreshold: 0.7}}
	new := &config.Config{Reconciler: config.ReconcilerConfig{DuplicateThreshold: 0.8, MaxEntries: 200}}

	d := config.Diff(old, new)
	if !d.ReconcilerChanged {
		t.Error("expected ReconcilerChanged=true")
	}
	if d.NewReconciler.DuplicateThreshold != 0.8 {
		t.Errorf("expected NewReconciler.DuplicateThreshold=0.8, got %.2f", d.NewReconciler.DuplicateThreshold)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("reconciler tuning is hot-reloadable, got restart sections %v", d.RestartRequired)
	}
}

func TestDiff_VocabularyChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Vocabulary: []string{"Kubernetes"}}
	new := &config.Config{Vocabulary: []string{"Kubernetes", "PostgreSQL"}}

	d := config.Diff(old, new)
	if !d.VocabularyChanged {
		t.Error("expected VocabularyChanged=true")
	}
	if !slices.Equal(d.NewVocabulary, []string{"Kubernetes", "PostgreSQL"}) {
		t.Errorf("unexpected NewVocabulary %v", d.NewVocabulary)
	}
}

func TestDiff_ServerAddrRequiresRestart(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{HTTPAddr: ":8080"}}
	new := &config.Config{Server: config.ServerConfig{HTTPAddr: ":9090"}}

	d := config.Diff(old, new)
	if !slices.Contains(d.RestartRequired, "server") {
		t.Errorf("expected server in RestartRequired, got %v", d.RestartRequired)
	}
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false")
	}
}

func TestDiff_VADRequiresRestart(t *testing.T) {
	t.Parallel()
	old := &config.Config{VAD: config.VADConfig{SpeechThreshold: 80}}
	new := &config.Config{VAD: config.VADConfig{SpeechThreshold: 90}}

	d := config.Diff(old, new)
	if !slices.Contains(d.RestartRequired, "vad") {
		t.Errorf("expected vad in RestartRequired, got %v", d.RestartRequired)
	}
}

func TestDiff_ProvidersRequireRestart(t *testing.T) {
	t.Parallel()
	old := &config.Config{Providers: config.ProvidersConfig{
		STT: config.ProviderEntry{Name: "whisper"},
	}}
	new := &config.Config{Providers: config.ProvidersConfig{
		STT: config.ProviderEntry{Name: "whisper", Model: "large-v3"},
	}}

	d := config.Diff(old, new)
	if !slices.Contains(d.RestartRequired, "providers") {
		t.Errorf("expected providers in RestartRequired, got %v", d.RestartRequired)
	}
}

func TestDiff_ProviderOptionsCompared(t *testing.T) {
	t.Parallel()
	old := &config.Config{Providers: config.ProvidersConfig{
		STT: config.ProviderEntry{Name: "whisper", Options: map[string]any{"language": "en"}},
	}}
	same := &config.Config{Providers: config.ProvidersConfig{
		STT: config.ProviderEntry{Name: "whisper", Options: map[string]any{"language": "en"}},
	}}
	changed := &config.Config{Providers: config.ProvidersConfig{
		STT: config.ProviderEntry{Name: "whisper", Options: map[string]any{"language": "de"}},
	}}

	if d := config.Diff(old, same); !d.Empty() {
		t.Errorf("identical options should not diff, got %+v", d)
	}
	if d := config.Diff(old, changed); !slices.Contains(d.RestartRequired, "providers") {
		t.Errorf("changed options should require restart, got %v", d.RestartRequired)
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server:     config.ServerConfig{LogLevel: config.LogInfo, HTTPAddr: ":8080"},
		Reconciler: config.ReconcilerConfig{MaxEntries: 500},
		Capture:    config.CaptureConfig{Kind: config.CaptureWebsocket},
	}
	new := &config.Config{
		Server:     config.ServerConfig{LogLevel: config.LogWarn, HTTPAddr: ":8081"},
		Reconciler: config.ReconcilerConfig{MaxEntries: 250},
		Capture:    config.CaptureConfig{Kind: config.CaptureNone},
	}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if !d.ReconcilerChanged {
		t.Error("expected ReconcilerChanged=true")
	}
	for _, section := range []string{"server", "capture"} {
		if !slices.Contains(d.RestartRequired, section) {
			t.Errorf("expected %s in RestartRequired, got %v", section, d.RestartRequired)
		}
	}
}

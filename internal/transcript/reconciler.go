package transcript

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultDuplicateThreshold = 0.7
	defaultContinuationWindow = 10 * time.Second
	defaultMaxEntries         = 500
)

// Config tunes the reconciliation algorithm. Zero fields are filled with
// the package defaults.
type Config struct {
	// DuplicateThreshold is the [Similarity] score above which a result is
	// treated as a duplicate of the source's latest entry and ignored.
	// Default: 0.7.
	DuplicateThreshold float64

	// ContinuationWindow is the maximum gap since the latest entry's last
	// update within which a result from the same source extends that entry
	// instead of opening a new one. Default: 10s.
	ContinuationWindow time.Duration

	// MaxEntries caps the transcript; once exceeded, the oldest entries are
	// evicted first. Default: 500.
	MaxEntries int
}

func (c Config) withDefaults() Config {
	if c.DuplicateThreshold <= 0 {
		c.DuplicateThreshold = defaultDuplicateThreshold
	}
	if c.ContinuationWindow <= 0 {
		c.ContinuationWindow = defaultContinuationWindow
	}
	if c.MaxEntries <= 0 {
		c.MaxEntries = defaultMaxEntries
	}
	return c
}

// Option is a functional option for configuring a [Reconciler].
type Option func(*Reconciler)

// WithOnChange registers a callback invoked with a fresh [Reconciler.Snapshot]
// after every mutation. The callback runs outside the reconciler's lock, on
// the goroutine that performed the mutation, so it may call back into the
// Reconciler but should return quickly.
func WithOnChange(fn func([]Entry)) Option {
	return func(r *Reconciler) {
		r.onChange = fn
	}
}

// Reconciler folds asynchronously arriving transcription results into a
// bounded, chronologically ordered transcript. A single mutex serializes
// every mutation, so it is safe for concurrent use from any number of
// completion goroutines.
type Reconciler struct {
	mu       sync.Mutex
	cfg      Config
	entries  []Entry
	nextID   uint64
	onChange func([]Entry)
}

// New returns a [Reconciler] with cfg (zero fields defaulted) and an empty
// transcript.
func New(cfg Config, opts ...Option) *Reconciler {
	r := &Reconciler{cfg: cfg.withDefaults()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile folds one transcription result into the transcript and reports
// how it was handled. now is the result's arrival time and drives both the
// continuation window and the ordering of created entries; callers pass
// their own clock so completions can be replayed deterministically in tests.
//
// Results that are empty after trimming are ignored without touching the
// transcript.
func (r *Reconciler) Reconcile(text, source string, now time.Time) Result {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		slog.Debug("transcript: empty result ignored", "source", source)
		return Result{Decision: DecisionIgnore}
	}

	r.mu.Lock()
	res, mutated := r.apply(trimmed, source, now)
	var snap []Entry
	if mutated && r.onChange != nil {
		snap = r.snapshotLocked()
	}
	r.mu.Unlock()

	if snap != nil {
		r.onChange(snap)
	}
	return res
}

// apply runs the decision algorithm. Caller holds the lock.
func (r *Reconciler) apply(text, source string, now time.Time) (Result, bool) {
	idx := r.latestIndex(source)
	if idx < 0 {
		return Result{Decision: DecisionCreate, Entry: r.create(text, source, now)}, true
	}
	latest := r.entries[idx]

	if sim := Similarity(latest.Text, text); sim > r.cfg.DuplicateThreshold {
		slog.Debug("transcript: duplicate ignored",
			"source", source, "entry", latest.ID, "similarity", sim)
		return Result{Decision: DecisionIgnore, Entry: latest}, false
	}

	if now.Sub(latest.LastUpdatedAt) <= r.cfg.ContinuationWindow {
		// Pure-repeat guard: text the entry already contains must not be
		// appended again, and a fresh entry for it would duplicate content.
		if containsFold(latest.Text, text) {
			slog.Debug("transcript: repeated text ignored",
				"source", source, "entry", latest.ID)
			return Result{Decision: DecisionIgnore, Entry: latest}, false
		}
		r.entries[idx].Text += " " + text
		r.entries[idx].LastUpdatedAt = now
		return Result{Decision: DecisionAppend, Entry: r.entries[idx]}, true
	}

	return Result{Decision: DecisionCreate, Entry: r.create(text, source, now)}, true
}

// latestIndex returns the position of the most recent entry from source,
// or -1. The transcript is ordered by creation time and mutation never
// moves an entry, so the last occurrence is the latest.
func (r *Reconciler) latestIndex(source string) int {
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].Source == source {
			return i
		}
	}
	return -1
}

// create inserts a new entry, restores chronological order, and applies
// the entry cap. Caller holds the lock.
func (r *Reconciler) create(text, source string, now time.Time) Entry {
	r.nextID++
	entry := Entry{
		ID:            fmt.Sprintf("%s-%d", source, r.nextID),
		Source:        source,
		Text:          text,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	r.entries = append(r.entries, entry)

	// Arrival order is not creation order: completions may land out of
	// order across sources, so every insertion re-sorts. The sort is stable
	// to keep equal timestamps in arrival order.
	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].CreatedAt.Before(r.entries[j].CreatedAt)
	})

	if over := len(r.entries) - r.cfg.MaxEntries; over > 0 {
		kept := make([]Entry, r.cfg.MaxEntries)
		copy(kept, r.entries[over:])
		r.entries = kept
		slog.Debug("transcript: evicted oldest entries",
			"evicted", over, "cap", r.cfg.MaxEntries)
	}
	return entry
}

// Snapshot returns a point-in-time copy of the transcript, ordered by
// creation time. The caller owns the returned slice.
func (r *Reconciler) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reconciler) snapshotLocked() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the current entry count.
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// SetConfig swaps the tuning parameters, normalizing zero fields to the
// defaults. Existing entries are untouched; a lowered cap takes effect on
// the next creation.
func (r *Reconciler) SetConfig(cfg Config) {
	cfg = cfg.withDefaults()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}

// containsFold reports whether needle already occurs inside haystack,
// ignoring case.
func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

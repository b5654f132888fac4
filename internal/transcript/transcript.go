// Package transcript maintains the reconciled conversation transcript.
//
// Transcription results arrive asynchronously and out of order: several
// utterances may be in flight at once, and the near and far sources
// complete independently. The [Reconciler] folds each (text, source,
// arrival time) triple into a bounded, chronologically ordered collection
// of [Entry] values, deciding per result whether it is a duplicate to
// drop, a continuation of the source's latest entry, or a new entry.
//
// The package also hosts the optional vocabulary correction stage
// ([Corrector]): domain terms the speech-to-text engine tends to mishear
// are phonetically aligned against a configured word list before the text
// reaches the reconciler. See the phonetic subpackage for the matching
// algorithm.
package transcript

import "time"

// Decision classifies how one transcription result was folded into the
// transcript.
type Decision string

const (
	// DecisionIgnore — the result duplicated the source's latest entry (or
	// was empty noise) and left the transcript unchanged.
	DecisionIgnore Decision = "ignore"

	// DecisionAppend — the result extended the source's latest entry.
	DecisionAppend Decision = "append"

	// DecisionCreate — the result became a new entry.
	DecisionCreate Decision = "create"
)

// Entry is one reconciled transcript line.
type Entry struct {
	// ID uniquely identifies the entry for the lifetime of the process and
	// stays stable across Append mutations.
	ID string

	// Source names the audio source the text came from ("near", "far").
	Source string

	// Text is the reconciled text. Continuations are joined onto it with a
	// single space.
	Text string

	// CreatedAt orders the transcript. It never changes after creation.
	CreatedAt time.Time

	// LastUpdatedAt is the arrival time of the newest result folded into
	// this entry; it bounds the continuation window.
	LastUpdatedAt time.Time
}

// Result reports the outcome of one [Reconciler.Reconcile] call.
type Result struct {
	Decision Decision

	// Entry is the affected entry: created for [DecisionCreate], mutated
	// for [DecisionAppend], retained for [DecisionIgnore]. It is the zero
	// value when an empty result was ignored outright.
	Entry Entry
}

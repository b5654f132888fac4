// Package archive persists reconciled transcript entries beyond the
// in-memory transcript and serves history queries: recent entries,
// full-text search and, when an embeddings provider is configured,
// semantic search.
//
// The live transcript never depends on the archive. Writes happen off
// the frame path and archive failures are logged and counted, not
// propagated; a transcription session survives its database going away.
package archive

import (
	"context"
	"errors"
	"time"
)

// ErrNoSemanticIndex is returned by [Store.SearchSemantic] when the
// store was created without embedding dimensions.
var ErrNoSemanticIndex = errors.New("archive: semantic index not configured")

// Entry is one persisted transcript entry. It mirrors the live
// transcript's entry shape; upserts are keyed by ID so an appended
// entry overwrites its earlier version.
type Entry struct {
	// ID is the transcript entry ID, stable across append updates.
	ID string

	// Source is the audio source label the entry was transcribed from.
	Source string

	// Text is the accumulated entry text.
	Text string

	// CreatedAt is when the entry was first created.
	CreatedAt time.Time

	// LastUpdatedAt is when the entry last changed.
	LastUpdatedAt time.Time
}

// SemanticResult pairs an entry with its cosine distance to the query
// embedding. Smaller distance means more similar.
type SemanticResult struct {
	Entry    Entry
	Distance float64
}

// Store is the persistence backend. Implementations must be safe for
// concurrent use.
type Store interface {
	// UpsertEntry inserts entry or replaces the stored version with the
	// same ID. A nil embedding stores the entry without a vector.
	UpsertEntry(ctx context.Context, entry Entry, embedding []float32) error

	// Recent returns the limit most recently updated entries in
	// chronological order, oldest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)

	// SearchText runs a full-text search over entry text and returns
	// matches in chronological order.
	SearchText(ctx context.Context, query string, limit int) ([]Entry, error)

	// SearchSemantic returns the topK entries nearest to the query
	// embedding by cosine distance, most similar first. Returns
	// [ErrNoSemanticIndex] when the store has no vector column.
	SearchSemantic(ctx context.Context, embedding []float32, topK int) ([]SemanticResult, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close()
}

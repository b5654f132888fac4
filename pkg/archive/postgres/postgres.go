// Package postgres provides a PostgreSQL-backed [archive.Store].
//
// One pgxpool.Pool serves all queries. When embedding dimensions are
// configured the pgvector extension is installed, the entries table
// gains a vector column with an HNSW cosine index and pgvector types
// are registered on every connection; with zero dimensions the store is
// plain relational and [archive.Store.SearchSemantic] reports
// [archive.ErrNoSemanticIndex].
//
// Usage:
//
//	store, err := postgres.New(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/earshot-audio/earshot/pkg/archive"
)

// Compile-time interface check.
var _ archive.Store = (*Store)(nil)

// defaultLimit applies when a query is issued with a non-positive limit.
const defaultLimit = 50

// Store is the PostgreSQL archive backend. Safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
	dims int
}

// New connects to the database at dsn, pings it and runs [Migrate].
//
// embeddingDimensions must match the configured embedding model's output
// size (1536 for OpenAI text-embedding-3-small, 768 for nomic-embed-text)
// and zero disables the semantic index. Changing the value after the
// first migration requires a manual schema change.
func New(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres archive: parse dsn: %w", err)
	}

	if embeddingDimensions > 0 {
		// Register pgvector types on every new connection so the vector
		// column scans into and inserts from pgvector.Vector values.
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres archive: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres archive: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres archive: migrate: %w", err)
	}

	return &Store{pool: pool, dims: embeddingDimensions}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// DDL
// ─────────────────────────────────────────────────────────────────────────────

const ddlEntries = `
CREATE TABLE IF NOT EXISTS transcript_entries (
    id              TEXT         PRIMARY KEY,
    source          TEXT         NOT NULL,
    text            TEXT         NOT NULL,
    created_at      TIMESTAMPTZ  NOT NULL,
    last_updated_at TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transcript_entries_updated
    ON transcript_entries (last_updated_at);

CREATE INDEX IF NOT EXISTS idx_transcript_entries_source
    ON transcript_entries (source);

CREATE INDEX IF NOT EXISTS idx_transcript_entries_fts
    ON transcript_entries USING GIN (to_tsvector('english', text));
`

// ddlSemantic returns the vector DDL with the embedding dimension
// substituted. The dimension is baked into the column type at schema
// creation time.
func ddlSemantic(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

ALTER TABLE transcript_entries
    ADD COLUMN IF NOT EXISTS embedding vector(%d);

CREATE INDEX IF NOT EXISTS idx_transcript_entries_embedding
    ON transcript_entries USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures the archive schema. It is idempotent and
// safe to run on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{ddlEntries}
	if embeddingDimensions > 0 {
		statements = append(statements, ddlSemantic(embeddingDimensions))
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Store implementation
// ─────────────────────────────────────────────────────────────────────────────

// UpsertEntry implements [archive.Store].
func (s *Store) UpsertEntry(ctx context.Context, entry archive.Entry, embedding []float32) error {
	var err error
	if s.dims > 0 {
		const q = `
			INSERT INTO transcript_entries
			    (id, source, text, created_at, last_updated_at, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
			    source          = EXCLUDED.source,
			    text            = EXCLUDED.text,
			    last_updated_at = EXCLUDED.last_updated_at,
			    embedding       = EXCLUDED.embedding`

		var vec any
		if len(embedding) > 0 {
			vec = pgvector.NewVector(embedding)
		}
		_, err = s.pool.Exec(ctx, q,
			entry.ID, entry.Source, entry.Text,
			entry.CreatedAt, entry.LastUpdatedAt, vec)
	} else {
		const q = `
			INSERT INTO transcript_entries
			    (id, source, text, created_at, last_updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
			    source          = EXCLUDED.source,
			    text            = EXCLUDED.text,
			    last_updated_at = EXCLUDED.last_updated_at`

		_, err = s.pool.Exec(ctx, q,
			entry.ID, entry.Source, entry.Text,
			entry.CreatedAt, entry.LastUpdatedAt)
	}
	if err != nil {
		return fmt.Errorf("postgres archive: upsert entry: %w", err)
	}
	return nil
}

// Recent implements [archive.Store]. The limit most recently updated
// entries come back oldest first, matching the live transcript's order.
func (s *Store) Recent(ctx context.Context, limit int) ([]archive.Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	const q = `
		SELECT id, source, text, created_at, last_updated_at
		FROM (
		    SELECT id, source, text, created_at, last_updated_at
		    FROM   transcript_entries
		    ORDER  BY last_updated_at DESC, id DESC
		    LIMIT  $1
		) latest
		ORDER BY last_updated_at, id`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres archive: recent: %w", err)
	}
	return collectEntries(rows)
}

// SearchText implements [archive.Store]. The query goes through
// plainto_tsquery so no operator syntax is required of callers.
func (s *Store) SearchText(ctx context.Context, query string, limit int) ([]archive.Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	const q = `
		SELECT id, source, text, created_at, last_updated_at
		FROM   transcript_entries
		WHERE  to_tsvector('english', text) @@ plainto_tsquery('english', $1)
		ORDER  BY last_updated_at, id
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres archive: search text: %w", err)
	}
	return collectEntries(rows)
}

// SearchSemantic implements [archive.Store]. Results are ordered by
// ascending cosine distance, most similar first.
func (s *Store) SearchSemantic(ctx context.Context, embedding []float32, topK int) ([]archive.SemanticResult, error) {
	if s.dims == 0 {
		return nil, archive.ErrNoSemanticIndex
	}
	if topK <= 0 {
		topK = defaultLimit
	}
	const q = `
		SELECT id, source, text, created_at, last_updated_at,
		       embedding <=> $1 AS distance
		FROM   transcript_entries
		WHERE  embedding IS NOT NULL
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("postgres archive: search semantic: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (archive.SemanticResult, error) {
		var r archive.SemanticResult
		if err := row.Scan(
			&r.Entry.ID,
			&r.Entry.Source,
			&r.Entry.Text,
			&r.Entry.CreatedAt,
			&r.Entry.LastUpdatedAt,
			&r.Distance,
		); err != nil {
			return archive.SemanticResult{}, err
		}
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres archive: scan rows: %w", err)
	}
	if results == nil {
		results = []archive.SemanticResult{}
	}
	return results, nil
}

// Ping implements [archive.Store].
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres archive: ping: %w", err)
	}
	return nil
}

// Close releases all connections held by the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// collectEntries scans pgx rows into archive entries.
func collectEntries(rows pgx.Rows) ([]archive.Entry, error) {
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (archive.Entry, error) {
		var e archive.Entry
		if err := row.Scan(
			&e.ID,
			&e.Source,
			&e.Text,
			&e.CreatedAt,
			&e.LastUpdatedAt,
		); err != nil {
			return archive.Entry{}, err
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres archive: scan rows: %w", err)
	}
	if entries == nil {
		entries = []archive.Entry{}
	}
	return entries, nil
}

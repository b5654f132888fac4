// Package embeddings defines the Provider interface for text embedding
// backends. An embeddings provider turns transcript text into dense
// float32 vectors; the archive stores them in pgvector columns and uses
// them for semantic search over past conversations.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over a text embedding backend.
//
// Every vector a Provider instance returns has the same length, reported
// by Dimensions. Vectors from different providers or models live in
// different spaces; comparing them is meaningless, so the archive pins
// one provider per database schema.
type Provider interface {
	// Embed returns the embedding vector for one text. The slice has
	// length Dimensions(). Text is passed to the model verbatim, with no
	// prefixing or normalisation.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds several texts in one backend call, with the i-th
	// vector belonging to texts[i]. On error no partial results are
	// returned. Batch calls are much cheaper than a loop of Embed calls
	// on hosted backends.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the length of every vector this provider produces,
	// fixed by the underlying model.
	Dimensions() int

	// ModelID names the embedding model, such as "text-embedding-3-small".
	ModelID() string
}

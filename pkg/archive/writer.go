package archive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/earshot-audio/earshot/pkg/provider/embeddings"
)

// WriterOption customizes a [Writer].
type WriterOption func(*Writer)

// WithEmbeddings makes the writer embed entry text on every upsert so
// the entries become semantically searchable.
func WithEmbeddings(p embeddings.Provider) WriterOption {
	return func(w *Writer) { w.embeddings = p }
}

// Writer is the write-through half of the archive: it takes transcript
// entries as they are created or extended, embeds their text when an
// embeddings provider is configured and upserts them into the [Store].
// Because appends change an entry's text, every upsert re-embeds; the
// stored vector always matches the stored text.
type Writer struct {
	store      Store
	embeddings embeddings.Provider
}

// NewWriter creates a Writer persisting into store.
func NewWriter(store Store, opts ...WriterOption) *Writer {
	w := &Writer{store: store}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Upsert persists entry. An embedding failure is logged and the entry
// is stored without a vector; a store failure is returned.
func (w *Writer) Upsert(ctx context.Context, entry Entry) error {
	var vec []float32
	if w.embeddings != nil {
		v, err := w.embeddings.Embed(ctx, entry.Text)
		if err != nil {
			slog.Warn("archive: embedding failed, storing without vector",
				"entry", entry.ID, "model", w.embeddings.ModelID(), "error", err)
		} else {
			vec = v
		}
	}
	if err := w.store.UpsertEntry(ctx, entry, vec); err != nil {
		return fmt.Errorf("archive: upsert entry %s: %w", entry.ID, err)
	}
	return nil
}

// Package mock provides a test double for the embeddings.Provider
// interface. Script the vectors with EmbedResult or EmbedBatchResult and
// inspect EmbedCalls to verify which texts were submitted.
//
// Example:
//
//	p := &mock.Provider{EmbedResult: []float32{0.1, 0.2, 0.3}, DimensionsValue: 3}
//	vec, _ := p.Embed(ctx, "hello world")
//	// p.EmbedCalls[0].Text == "hello world"
package mock

import (
	"context"
	"sync"

	"github.com/earshot-audio/earshot/pkg/provider/embeddings"
)

// EmbedCall records a single Embed invocation.
type EmbedCall struct {
	Text string
}

// EmbedBatchCall records a single EmbedBatch invocation.
type EmbedBatchCall struct {
	Texts []string
}

// Provider is a mock implementation of embeddings.Provider. Safe for
// concurrent use.
type Provider struct {
	mu sync.Mutex

	// EmbedResult is returned by every Embed call.
	EmbedResult []float32

	// EmbedErr, if non-nil, is returned by Embed instead of EmbedResult.
	EmbedErr error

	// EmbedBatchResult is returned by EmbedBatch. When nil, EmbedBatch
	// returns one nil vector per input so callers still get the right
	// length.
	EmbedBatchResult [][]float32

	// EmbedBatchErr, if non-nil, is returned by EmbedBatch.
	EmbedBatchErr error

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// EmbedCalls records every Embed invocation in order.
	EmbedCalls []EmbedCall

	// EmbedBatchCalls records every EmbedBatch invocation in order.
	EmbedBatchCalls []EmbedBatchCall
}

// Compile-time interface assertion.
var _ embeddings.Provider = (*Provider)(nil)

// Embed records the call and returns the scripted result.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Text: text})
	return p.EmbedResult, p.EmbedErr
}

// EmbedBatch records the call and returns the scripted result.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedBatchCalls = append(p.EmbedBatchCalls,
		EmbedBatchCall{Texts: append([]string(nil), texts...)})
	if p.EmbedBatchErr != nil {
		return nil, p.EmbedBatchErr
	}
	if p.EmbedBatchResult != nil {
		return p.EmbedBatchResult, nil
	}
	return make([][]float32, len(texts)), nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DimensionsValue
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelIDValue
}

// Package ollama provides an embeddings provider backed by a local
// Ollama server (https://ollama.com), using its native /api/embed
// endpoint with models such as nomic-embed-text or all-minilm.
//
// Usage:
//
//	p, err := ollama.New("", "nomic-embed-text") // http://localhost:11434
//	vec, err := p.Embed(ctx, "the deploy finished at noon")
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/earshot-audio/earshot/pkg/provider/embeddings"
)

// DefaultBaseURL is where a locally running Ollama server listens.
const DefaultBaseURL = "http://localhost:11434"

// Compile-time assertion that Provider implements embeddings.Provider.
var _ embeddings.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. The default is no
// timeout, since local embedding models can be slow to load on first use.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.httpClient.Timeout = d
		}
	}
}

// WithDimensions pins the vector length up front. This skips both the
// built-in model table and the probe request that [Provider.Dimensions]
// would otherwise issue for unknown models.
func WithDimensions(dims int) Option {
	return func(p *Provider) {
		p.dims = dims
	}
}

// Provider implements embeddings.Provider against an Ollama server.
//
// The vector length is resolved from, in order: [WithDimensions], the
// built-in table of well-known models, or a one-time probe embed on the
// first Dimensions call. Safe for concurrent use.
type Provider struct {
	baseURL    string
	model      string
	httpClient *http.Client

	dims      int // zero until resolved
	probeOnce sync.Once
}

// New creates a Provider for the given server and model. An empty
// baseURL means [DefaultBaseURL]; model must be set.
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("ollama: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	if p.dims == 0 {
		p.dims = lookupDims(model)
	}
	return p, nil
}

// Embed returns the vector for one text, forwarded to the model verbatim.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.post(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("ollama: embed: %w", err)
	}
	if len(vecs) == 0 {
		return nil, errors.New("ollama: embed: empty response")
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in a single /api/embed request. The result is
// index-aligned with texts; an empty input returns (nil, nil) without a
// network round trip.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := p.post(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama: embed batch: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("ollama: embed batch: got %d vectors for %d texts",
			len(vecs), len(texts))
	}
	return vecs, nil
}

// Dimensions returns the vector length this provider produces. For models
// outside the built-in table it issues one probe embed against the live
// server and caches the answer; a failed probe reports 0.
func (p *Provider) Dimensions() int {
	if p.dims != 0 {
		return p.dims
	}
	p.probeOnce.Do(func() {
		vecs, err := p.post(context.Background(), []string{"probe"})
		if err == nil && len(vecs) > 0 {
			p.dims = len(vecs[0])
		}
	})
	return p.dims
}

// ModelID returns the Ollama model name supplied at construction.
func (p *Provider) ModelID() string {
	return p.model
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// post sends one /api/embed request and returns the raw vectors.
func (p *Provider) post(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, errors.New("empty embeddings in response")
	}
	return result.Embeddings, nil
}

// wellKnownDims maps recognisable model name fragments to their output
// dimension. Substring matching covers tagged names like
// "nomic-embed-text:latest".
var wellKnownDims = []struct {
	fragment string
	dims     int
}{
	{"nomic-embed-text", 768},
	{"mxbai-embed-large", 1024},
	{"all-minilm", 384},
}

func lookupDims(model string) int {
	lower := strings.ToLower(model)
	for _, m := range wellKnownDims {
		if strings.Contains(lower, m.fragment) {
			return m.dims
		}
	}
	return 0
}

// Package mock is an in-memory llm.Provider for tests. It returns a
// scripted completion and keeps every request it saw, so a test can both
// drive the summariser and inspect the prompt it built.
//
//	p := &mock.Provider{Response: "- decided to ship on Friday"}
//	notes, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/earshot-audio/earshot/pkg/provider/llm"
)

// CompleteCall is one recorded Complete invocation.
type CompleteCall struct {
	// Req is the request as the caller sent it.
	Req llm.Request
}

// Provider scripts llm.Provider. The zero value completes every request
// with an empty string.
type Provider struct {
	mu sync.Mutex

	// Response is the completion text returned on success.
	Response string

	// Err, when set, makes every Complete call fail with it.
	Err error

	// Calls holds each recorded invocation in arrival order.
	Calls []CompleteCall
}

var _ llm.Provider = (*Provider)(nil)

// Complete records req and returns the scripted outcome.
func (p *Provider) Complete(_ context.Context, req llm.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, CompleteCall{Req: req})
	if p.Err != nil {
		return "", p.Err
	}
	return p.Response, nil
}

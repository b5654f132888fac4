// Package mock provides an in-memory test double for [archive.Store].
//
// The mock records every method call for assertion in tests and exposes
// exported fields that control what it returns. It is safe for concurrent
// use via an internal [sync.Mutex].
//
// Typical usage:
//
//	store := &mock.Store{}
//	store.RecentResult = []archive.Entry{{ID: "e1", Text: "hello"}}
//
//	// inject store into the system under test …
//
//	if got := store.CallCount("UpsertEntry"); got != 1 {
//	    t.Errorf("expected 1 UpsertEntry call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/earshot-audio/earshot/pkg/archive"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable test double for [archive.Store].
// All exported *Err fields default to nil (success); all exported *Result
// fields default to nil (empty slice returned).
type Store struct {
	mu sync.Mutex

	// calls records every method invocation in order.
	calls []Call

	// UpsertEntryErr is returned by [Store.UpsertEntry] when non-nil.
	UpsertEntryErr error

	// RecentResult is returned by [Store.Recent].
	// When nil, Recent returns an empty non-nil slice.
	RecentResult []archive.Entry

	// RecentErr is returned by [Store.Recent] when non-nil.
	RecentErr error

	// SearchTextResult is returned by [Store.SearchText].
	// When nil, SearchText returns an empty non-nil slice.
	SearchTextResult []archive.Entry

	// SearchTextErr is returned by [Store.SearchText] when non-nil.
	SearchTextErr error

	// SearchSemanticResult is returned by [Store.SearchSemantic].
	// When nil, SearchSemantic returns an empty non-nil slice.
	SearchSemanticResult []archive.SemanticResult

	// SearchSemanticErr is returned by [Store.SearchSemantic] when non-nil.
	SearchSemanticErr error

	// PingErr is returned by [Store.Ping] when non-nil.
	PingErr error
}

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls without altering response configuration.
func (m *Store) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// UpsertEntry implements [archive.Store].
func (m *Store) UpsertEntry(_ context.Context, entry archive.Entry, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "UpsertEntry", Args: []any{entry, embedding}})
	return m.UpsertEntryErr
}

// Recent implements [archive.Store].
func (m *Store) Recent(_ context.Context, limit int) ([]archive.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Recent", Args: []any{limit}})
	if m.RecentResult == nil {
		return []archive.Entry{}, m.RecentErr
	}
	out := make([]archive.Entry, len(m.RecentResult))
	copy(out, m.RecentResult)
	return out, m.RecentErr
}

// SearchText implements [archive.Store].
func (m *Store) SearchText(_ context.Context, query string, limit int) ([]archive.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "SearchText", Args: []any{query, limit}})
	if m.SearchTextResult == nil {
		return []archive.Entry{}, m.SearchTextErr
	}
	out := make([]archive.Entry, len(m.SearchTextResult))
	copy(out, m.SearchTextResult)
	return out, m.SearchTextErr
}

// SearchSemantic implements [archive.Store].
func (m *Store) SearchSemantic(_ context.Context, embedding []float32, topK int) ([]archive.SemanticResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "SearchSemantic", Args: []any{embedding, topK}})
	if m.SearchSemanticResult == nil {
		return []archive.SemanticResult{}, m.SearchSemanticErr
	}
	out := make([]archive.SemanticResult, len(m.SearchSemanticResult))
	copy(out, m.SearchSemanticResult)
	return out, m.SearchSemanticErr
}

// Ping implements [archive.Store].
func (m *Store) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Ping", Args: nil})
	return m.PingErr
}

// Close implements [archive.Store].
func (m *Store) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "Close", Args: nil})
}

// Ensure Store satisfies the interface at compile time.
var _ archive.Store = (*Store)(nil)

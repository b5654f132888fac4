// Package mock provides an in-memory [capture.Source] implementation for
// unit tests.
//
// The mock is safe for concurrent use. It records call counts so tests
// can assert on them, and exposes exported fields the test sets to
// control return values:
//
//	ch := make(chan audio.Frame, 16)
//	src := &mock.Source{
//	    StreamsResult: map[string]<-chan audio.Frame{"near": ch},
//	}
package mock

import (
	"sync"

	"github.com/earshot-audio/earshot/pkg/audio"
	"github.com/earshot-audio/earshot/pkg/capture"
)

// Source is a mock implementation of [capture.Source].
type Source struct {
	mu sync.Mutex

	// StreamsResult is returned by [Source.Streams]. Defaults to an
	// empty (non-nil) map if left nil.
	StreamsResult map[string]<-chan audio.Frame

	// CloseError is returned by [Source.Close].
	CloseError error

	// CallCountStreams records how many times Streams was called.
	CallCountStreams int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Streams returns StreamsResult and increments CallCountStreams.
func (s *Source) Streams() map[string]<-chan audio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStreams++
	if s.StreamsResult == nil {
		return map[string]<-chan audio.Frame{}
	}
	return s.StreamsResult
}

// Close returns CloseError and increments CallCountClose.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseError
}

// Ensure Source implements capture.Source at compile time.
var _ capture.Source = (*Source)(nil)

// Package llm defines the completion interface for Large Language Model
// backends.
//
// The surface is deliberately narrow: the only consumer is the meeting-notes
// summariser, which sends a prompt and wants the full reply as one string.
// Streaming, tool calling and token accounting are out of scope here; a
// backend that supports them simply does not expose them through this
// interface.
//
// Implementors must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import "context"

// Chat roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn of a chat conversation.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the plain-text body of the turn.
	Content string
}

// Request carries everything the model needs to produce a completion.
// A zero-value request is invalid; at minimum Messages must be non-empty.
type Request struct {
	// Messages is the ordered conversation. The last message is typically
	// from the "user" role and drives the response.
	Messages []Message

	// SystemPrompt is an optional high-priority instruction injected before
	// the conversation. Backends without a dedicated system field prepend it
	// as a RoleSystem message.
	SystemPrompt string

	// Temperature controls output randomness in [0.0, 2.0]. Nil means use
	// the provider default.
	Temperature *float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Nil means use the provider default.
	MaxTokens *int
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and returns the full text of the
	// reply. Returns an error if the request fails or ctx is cancelled
	// before the completion arrives.
	Complete(ctx context.Context, req Request) (string, error)
}

// Package notes turns a transcript snapshot into LLM-written meeting notes.
//
// The summariser formats entries as "[source] text" lines, sends them to the
// configured LLM with a note-taking prompt and returns the reply verbatim.
// It is consumed by the MCP transcript_notes tool and is safe for concurrent
// use.
package notes

import (
	"context"
	"fmt"
	"strings"

	"github.com/earshot-audio/earshot/internal/transcript"
	"github.com/earshot-audio/earshot/pkg/provider/llm"
)

// notesPrompt is the system prompt sent to the LLM when writing notes.
const notesPrompt = `Write concise meeting notes for the following transcript.
Structure the notes as three short sections: key points, decisions made, and
action items (with owners where the transcript names them).
Skip greetings and small talk. Never invent details that are not in the
transcript.`

// notesTemperature keeps the model close to the transcript text.
const notesTemperature = 0.3

// defaultMaxEntries bounds the snapshot window when no limit is configured.
const defaultMaxEntries = 50

// Summariser produces meeting notes from a transcript snapshot.
type Summariser interface {
	// Summarise takes transcript entries in creation order and returns
	// condensed meeting notes.
	Summarise(ctx context.Context, entries []transcript.Entry) (string, error)
}

// LLMSummariser uses an LLM provider to write the notes.
type LLMSummariser struct {
	llm        llm.Provider
	maxEntries int
}

// NewLLMSummariser creates a new [LLMSummariser] backed by the given
// provider. maxEntries bounds how many of the newest entries feed one
// summary; zero or negative means 50.
func NewLLMSummariser(provider llm.Provider, maxEntries int) *LLMSummariser {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &LLMSummariser{llm: provider, maxEntries: maxEntries}
}

// Summarise formats the newest entries into a "[source] text" transcript,
// asks the model for notes and returns the reply. An empty snapshot returns
// an empty string without calling the model.
func (s *LLMSummariser) Summarise(ctx context.Context, entries []transcript.Entry) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}
	if len(entries) > s.maxEntries {
		entries = entries[len(entries)-s.maxEntries:]
	}

	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "[%s] %s\n", e.Source, e.Text)
	}

	temperature := notesTemperature
	reply, err := s.llm.Complete(ctx, llm.Request{
		SystemPrompt: notesPrompt,
		Messages: []llm.Message{
			{
				Role:    llm.RoleUser,
				Content: sb.String(),
			},
		},
		Temperature: &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("notes: %w", err)
	}

	return strings.TrimSpace(reply), nil
}

// Ensure LLMSummariser satisfies the interface at compile time.
var _ Summariser = (*LLMSummariser)(nil)

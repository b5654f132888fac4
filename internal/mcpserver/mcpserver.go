// Package mcpserver exposes the live transcript to Model Context Protocol
// clients over the streamable-HTTP transport.
//
// Three tools are served, using the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk):
//   - "transcript_snapshot" — the current ordered transcript, with an
//     optional source filter and entry limit.
//   - "transcript_search"   — full-text search over the archive. Registered
//     only when an archive store is configured.
//   - "transcript_notes"    — LLM-written meeting notes for the current
//     snapshot. Registered only when a summariser is configured.
//
// The server itself holds no HTTP listener; [Server.Handler] returns the
// handler to mount, typically at /mcp.
package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/earshot-audio/earshot/internal/notes"
	"github.com/earshot-audio/earshot/internal/transcript"
	"github.com/earshot-audio/earshot/pkg/archive"
)

// defaultSearchLimit bounds transcript_search results when the caller does
// not pass a limit.
const defaultSearchLimit = 20

// Option customizes a [Server].
type Option func(*Server)

// WithArchive enables the transcript_search tool backed by store.
func WithArchive(store archive.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithSummariser enables the transcript_notes tool.
func WithSummariser(summariser notes.Summariser) Option {
	return func(s *Server) { s.summariser = summariser }
}

// Server wires the transcript, archive and notes summariser into MCP tools.
// Safe for concurrent use; tool handlers only read shared state.
type Server struct {
	reconciler *transcript.Reconciler
	store      archive.Store
	summariser notes.Summariser

	mcp *mcpsdk.Server
}

// New creates a Server over the given reconciler. Tools whose backing
// dependency is absent are not registered, so clients only discover tools
// that can actually run.
func New(reconciler *transcript.Reconciler, opts ...Option) *Server {
	s := &Server{reconciler: reconciler}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcpsdk.NewServer(
		&mcpsdk.Implementation{Name: "earshot", Version: "1.0.0"},
		nil,
	)

	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name: "transcript_snapshot",
		Description: "Return the current transcript of the conversation being captured, " +
			"ordered oldest to newest. Optionally filter to a single audio source " +
			"and limit to the newest N entries.",
	}, s.snapshotHandler)

	if s.store != nil {
		mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
			Name: "transcript_search",
			Description: "Full-text search over everything said so far, including entries " +
				"that have aged out of the live transcript. Plain words work; no query " +
				"syntax is required.",
		}, s.searchHandler)
	}

	if s.summariser != nil {
		mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
			Name: "transcript_notes",
			Description: "Generate concise meeting notes (key points, decisions, action " +
				"items) for the current transcript.",
		}, s.notesHandler)
	}

	return s
}

// Handler returns the streamable-HTTP handler serving the MCP endpoint.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(
		func(*http.Request) *mcpsdk.Server { return s.mcp },
		nil,
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// Tool payloads
// ─────────────────────────────────────────────────────────────────────────────

// entryJSON is the wire form shared by snapshot and search results.
type entryJSON struct {
	ID            string    `json:"id"`
	Source        string    `json:"source"`
	Text          string    `json:"text"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

type snapshotArgs struct {
	// Limit keeps only the newest N entries. Zero means all.
	Limit int `json:"limit,omitempty"`

	// Source restricts the snapshot to one audio source label.
	Source string `json:"source,omitempty"`
}

type snapshotResult struct {
	// Entries is the (possibly filtered and limited) transcript.
	Entries []entryJSON `json:"entries"`

	// Total counts the matching entries before the limit was applied.
	Total int `json:"total"`
}

type searchArgs struct {
	// Query is the full-text search input.
	Query string `json:"query"`

	// Limit caps the result count. Zero means 20.
	Limit int `json:"limit,omitempty"`
}

type searchResult struct {
	Entries []entryJSON `json:"entries"`
}

type notesArgs struct{}

type notesResult struct {
	// Notes is the LLM-written summary, empty when the transcript is empty.
	Notes string `json:"notes"`

	// Entries counts the transcript entries the notes cover.
	Entries int `json:"entries"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────────────────────────────────────

func (s *Server) snapshotHandler(_ context.Context, _ *mcpsdk.CallToolRequest, args snapshotArgs) (*mcpsdk.CallToolResult, snapshotResult, error) {
	snapshot := s.reconciler.Snapshot()

	entries := make([]entryJSON, 0, len(snapshot))
	for _, e := range snapshot {
		if args.Source != "" && e.Source != args.Source {
			continue
		}
		entries = append(entries, liveEntryJSON(e))
	}

	total := len(entries)
	if args.Limit > 0 && len(entries) > args.Limit {
		entries = entries[len(entries)-args.Limit:]
	}

	return nil, snapshotResult{Entries: entries, Total: total}, nil
}

func (s *Server) searchHandler(ctx context.Context, _ *mcpsdk.CallToolRequest, args searchArgs) (*mcpsdk.CallToolResult, searchResult, error) {
	if args.Query == "" {
		return nil, searchResult{}, fmt.Errorf("mcpserver: query must not be empty")
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	found, err := s.store.SearchText(ctx, args.Query, limit)
	if err != nil {
		return nil, searchResult{}, fmt.Errorf("mcpserver: search: %w", err)
	}

	entries := make([]entryJSON, 0, len(found))
	for _, e := range found {
		entries = append(entries, archivedEntryJSON(e))
	}
	return nil, searchResult{Entries: entries}, nil
}

func (s *Server) notesHandler(ctx context.Context, _ *mcpsdk.CallToolRequest, _ notesArgs) (*mcpsdk.CallToolResult, notesResult, error) {
	snapshot := s.reconciler.Snapshot()

	text, err := s.summariser.Summarise(ctx, snapshot)
	if err != nil {
		return nil, notesResult{}, fmt.Errorf("mcpserver: notes: %w", err)
	}
	return nil, notesResult{Notes: text, Entries: len(snapshot)}, nil
}

func liveEntryJSON(e transcript.Entry) entryJSON {
	return entryJSON{
		ID:            e.ID,
		Source:        e.Source,
		Text:          e.Text,
		CreatedAt:     e.CreatedAt,
		LastUpdatedAt: e.LastUpdatedAt,
	}
}

func archivedEntryJSON(e archive.Entry) entryJSON {
	return entryJSON{
		ID:            e.ID,
		Source:        e.Source,
		Text:          e.Text,
		CreatedAt:     e.CreatedAt,
		LastUpdatedAt: e.LastUpdatedAt,
	}
}

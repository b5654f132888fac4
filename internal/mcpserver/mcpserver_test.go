package mcpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/earshot-audio/earshot/internal/mcpserver"
	"github.com/earshot-audio/earshot/internal/notes"
	"github.com/earshot-audio/earshot/internal/transcript"
	"github.com/earshot-audio/earshot/pkg/archive"
	archivemock "github.com/earshot-audio/earshot/pkg/archive/mock"
	llmmock "github.com/earshot-audio/earshot/pkg/provider/llm/mock"
)

// Wire shapes of the tool results, mirrored here because the server keeps
// its payload types unexported.
type entryPayload struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Text   string `json:"text"`
}

type snapshotPayload struct {
	Entries []entryPayload `json:"entries"`
	Total   int            `json:"total"`
}

type searchPayload struct {
	Entries []entryPayload `json:"entries"`
}

type notesPayload struct {
	Notes   string `json:"notes"`
	Entries int    `json:"entries"`
}

// newSession serves srv over HTTP and connects an MCP client session to it.
func newSession(t *testing.T, srv *mcpserver.Server) *mcpsdk.ClientSession {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "earshot-test", Version: "1.0.0"}, nil)
	session, err := client.Connect(context.Background(), &mcpsdk.StreamableClientTransport{Endpoint: ts.URL}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func toolNames(t *testing.T, session *mcpsdk.ClientSession) []string {
	t.Helper()
	var names []string
	for tool, err := range session.Tools(context.Background(), nil) {
		if err != nil {
			t.Fatalf("list tools: %v", err)
		}
		names = append(names, tool.Name)
	}
	return names
}

func callTool(t *testing.T, session *mcpsdk.ClientSession, name string, args map[string]any) *mcpsdk.CallToolResult {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	return res
}

// textContent concatenates the text parts of a tool result.
func textContent(res *mcpsdk.CallToolResult) string {
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

func decodeResult(t *testing.T, res *mcpsdk.CallToolResult, out any) {
	t.Helper()
	if res.IsError {
		t.Fatalf("tool returned error: %s", textContent(res))
	}
	if err := json.Unmarshal([]byte(textContent(res)), out); err != nil {
		t.Fatalf("decode result %q: %v", textContent(res), err)
	}
}

// seededReconciler returns a reconciler holding three entries:
// alice-1, bob-2, alice-3 in creation order.
func seededReconciler(t *testing.T) *transcript.Reconciler {
	t.Helper()
	rec := transcript.New(transcript.Config{})
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec.Reconcile("we should ship on friday", "alice", t0)
	rec.Reconcile("the metrics dashboard is broken", "bob", t0.Add(2*time.Second))
	rec.Reconcile("lunch arrives at noon today", "alice", t0.Add(30*time.Second))
	if rec.Len() != 3 {
		t.Fatalf("seed: expected 3 entries, got %d", rec.Len())
	}
	return rec
}

func containsName(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

// ─── Tool registration ────────────────────────────────────────────────────────

func TestServer_BareTranscript_OnlySnapshotTool(t *testing.T) {
	srv := mcpserver.New(transcript.New(transcript.Config{}))
	session := newSession(t, srv)

	names := toolNames(t, session)
	if len(names) != 1 || names[0] != "transcript_snapshot" {
		t.Errorf("expected only transcript_snapshot, got %v", names)
	}
}

func TestServer_FullyEquipped_ServesAllTools(t *testing.T) {
	srv := mcpserver.New(
		transcript.New(transcript.Config{}),
		mcpserver.WithArchive(&archivemock.Store{}),
		mcpserver.WithSummariser(notes.NewLLMSummariser(&llmmock.Provider{}, 0)),
	)
	session := newSession(t, srv)

	names := toolNames(t, session)
	for _, want := range []string{"transcript_snapshot", "transcript_search", "transcript_notes"} {
		if !containsName(names, want) {
			t.Errorf("expected tool %q in %v", want, names)
		}
	}
}

// ─── transcript_snapshot ─────────────────────────────────────────────────────

func TestSnapshotTool_ReturnsEntriesInOrder(t *testing.T) {
	srv := mcpserver.New(seededReconciler(t))
	session := newSession(t, srv)

	var got snapshotPayload
	decodeResult(t, callTool(t, session, "transcript_snapshot", nil), &got)

	if got.Total != 3 || len(got.Entries) != 3 {
		t.Fatalf("expected 3 entries, got total=%d len=%d", got.Total, len(got.Entries))
	}
	wantIDs := []string{"alice-1", "bob-2", "alice-3"}
	for i, want := range wantIDs {
		if got.Entries[i].ID != want {
			t.Errorf("entry %d: want ID %s, got %s", i, want, got.Entries[i].ID)
		}
	}
	if got.Entries[1].Text != "the metrics dashboard is broken" {
		t.Errorf("entry text: got %q", got.Entries[1].Text)
	}
}

func TestSnapshotTool_SourceFilter(t *testing.T) {
	srv := mcpserver.New(seededReconciler(t))
	session := newSession(t, srv)

	var got snapshotPayload
	decodeResult(t, callTool(t, session, "transcript_snapshot", map[string]any{"source": "alice"}), &got)

	if got.Total != 2 || len(got.Entries) != 2 {
		t.Fatalf("expected 2 alice entries, got total=%d len=%d", got.Total, len(got.Entries))
	}
	for _, e := range got.Entries {
		if e.Source != "alice" {
			t.Errorf("expected only alice entries, got source %q", e.Source)
		}
	}
}

func TestSnapshotTool_LimitKeepsNewest(t *testing.T) {
	srv := mcpserver.New(seededReconciler(t))
	session := newSession(t, srv)

	var got snapshotPayload
	decodeResult(t, callTool(t, session, "transcript_snapshot", map[string]any{"limit": 2}), &got)

	// Total reports the pre-limit count so clients can tell they were cut off.
	if got.Total != 3 {
		t.Errorf("total: want 3, got %d", got.Total)
	}
	if len(got.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got.Entries))
	}
	if got.Entries[0].ID != "bob-2" || got.Entries[1].ID != "alice-3" {
		t.Errorf("expected the newest two entries, got %v", got.Entries)
	}
}

func TestSnapshotTool_EmptyTranscript(t *testing.T) {
	srv := mcpserver.New(transcript.New(transcript.Config{}))
	session := newSession(t, srv)

	var got snapshotPayload
	decodeResult(t, callTool(t, session, "transcript_snapshot", nil), &got)

	if got.Total != 0 || len(got.Entries) != 0 {
		t.Errorf("expected empty snapshot, got %+v", got)
	}
}

// ─── transcript_search ───────────────────────────────────────────────────────

func TestSearchTool_QueriesArchive(t *testing.T) {
	store := &archivemock.Store{
		SearchTextResult: []archive.Entry{
			{ID: "e-7", Source: "far", Text: "the deploy finished without errors"},
		},
	}
	srv := mcpserver.New(seededReconciler(t), mcpserver.WithArchive(store))
	session := newSession(t, srv)

	var got searchPayload
	decodeResult(t, callTool(t, session, "transcript_search", map[string]any{"query": "deploy", "limit": 5}), &got)

	if len(got.Entries) != 1 || got.Entries[0].ID != "e-7" {
		t.Fatalf("expected archived entry e-7, got %+v", got.Entries)
	}

	calls := store.Calls()
	if len(calls) != 1 || calls[0].Method != "SearchText" {
		t.Fatalf("expected 1 SearchText call, got %+v", calls)
	}
	if calls[0].Args[0] != "deploy" || calls[0].Args[1] != 5 {
		t.Errorf("search args: got %v", calls[0].Args)
	}
}

func TestSearchTool_DefaultsLimit(t *testing.T) {
	store := &archivemock.Store{}
	srv := mcpserver.New(seededReconciler(t), mcpserver.WithArchive(store))
	session := newSession(t, srv)

	var got searchPayload
	decodeResult(t, callTool(t, session, "transcript_search", map[string]any{"query": "deploy"}), &got)

	calls := store.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Args[1] != 20 {
		t.Errorf("expected default limit 20, got %v", calls[0].Args[1])
	}
}

func TestSearchTool_EmptyQuery_IsToolError(t *testing.T) {
	srv := mcpserver.New(seededReconciler(t), mcpserver.WithArchive(&archivemock.Store{}))
	session := newSession(t, srv)

	res := callTool(t, session, "transcript_search", map[string]any{"query": ""})
	if !res.IsError {
		t.Fatal("expected tool error for empty query")
	}
	if !strings.Contains(textContent(res), "query") {
		t.Errorf("error should mention the query, got %q", textContent(res))
	}
}

func TestSearchTool_StoreFailure_IsToolError(t *testing.T) {
	store := &archivemock.Store{SearchTextErr: errors.New("connection refused")}
	srv := mcpserver.New(seededReconciler(t), mcpserver.WithArchive(store))
	session := newSession(t, srv)

	res := callTool(t, session, "transcript_search", map[string]any{"query": "deploy"})
	if !res.IsError {
		t.Fatal("expected tool error when the store fails")
	}
}

// ─── transcript_notes ────────────────────────────────────────────────────────

func TestNotesTool_SummarisesSnapshot(t *testing.T) {
	provider := &llmmock.Provider{Response: "- ship on friday\n- fix the dashboard"}
	srv := mcpserver.New(
		seededReconciler(t),
		mcpserver.WithSummariser(notes.NewLLMSummariser(provider, 0)),
	)
	session := newSession(t, srv)

	var got notesPayload
	decodeResult(t, callTool(t, session, "transcript_notes", nil), &got)

	if got.Notes != "- ship on friday\n- fix the dashboard" {
		t.Errorf("notes: got %q", got.Notes)
	}
	if got.Entries != 3 {
		t.Errorf("entries: want 3, got %d", got.Entries)
	}

	if provider.CallCount() != 1 {
		t.Fatalf("expected 1 LLM call, got %d", provider.CallCount())
	}
	content := provider.Calls[0].Req.Messages[0].Content
	if !strings.Contains(content, "[alice] we should ship on friday") {
		t.Errorf("expected labelled transcript lines in LLM input, got %q", content)
	}
}

func TestNotesTool_EmptyTranscript(t *testing.T) {
	provider := &llmmock.Provider{Response: "should not be called"}
	srv := mcpserver.New(
		transcript.New(transcript.Config{}),
		mcpserver.WithSummariser(notes.NewLLMSummariser(provider, 0)),
	)
	session := newSession(t, srv)

	var got notesPayload
	decodeResult(t, callTool(t, session, "transcript_notes", nil), &got)

	if got.Notes != "" || got.Entries != 0 {
		t.Errorf("expected empty notes for empty transcript, got %+v", got)
	}
	if provider.CallCount() != 0 {
		t.Errorf("expected no LLM calls, got %d", provider.CallCount())
	}
}

func TestNotesTool_LLMFailure_IsToolError(t *testing.T) {
	provider := &llmmock.Provider{Err: errors.New("model overloaded")}
	srv := mcpserver.New(
		seededReconciler(t),
		mcpserver.WithSummariser(notes.NewLLMSummariser(provider, 0)),
	)
	session := newSession(t, srv)

	res := callTool(t, session, "transcript_notes", nil)
	if !res.IsError {
		t.Fatal("expected tool error when the LLM fails")
	}
}

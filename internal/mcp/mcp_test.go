package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/veridocs/veridocs/internal/audit"
	"github.com/veridocs/veridocs/internal/model"
	"github.com/veridocs/veridocs/internal/testutil"
)

type fakeSearcher struct {
	resp model.Response
	err  error

	gotQuery string
	gotTopK  int
	gotCtx   model.AuthorityContext
}

func (f *fakeSearcher) Search(_ context.Context, query string, actx model.AuthorityContext, topK int, _ string) (model.Response, error) {
	f.gotQuery = query
	f.gotTopK = topK
	f.gotCtx = actx
	if f.err != nil {
		return model.Response{}, f.err
	}
	resp := f.resp
	resp.Query = query
	return resp, nil
}

type fakeAuthority struct {
	decision model.AccessDecision
	err      error
}

func (f *fakeAuthority) EvaluateDocumentAccess(_ context.Context, _ model.AuthorityContext, documentID, _ string) (model.AccessDecision, error) {
	if f.err != nil {
		return model.AccessDecision{}, f.err
	}
	d := f.decision
	d.DocumentID = documentID
	return d, nil
}

func newTestServer(searcher *fakeSearcher, authority *fakeAuthority, sink *audit.MemorySink) *Server {
	return New(searcher, authority, sink, model.AuthorityContext{
		User:  "local_service",
		Roles: []string{"viewer"},
	}, testutil.TestLogger(), "test")
}

func callRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

func TestHandleSearch(t *testing.T) {
	searcher := &fakeSearcher{
		resp: model.Response{
			QueryID:   uuid.New().String(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Results: []model.SearchResult{
				{DocumentID: "DOC-1", ChunkID: "C1", Snippet: "torque the flange bolts"},
			},
		},
	}
	s := newTestServer(searcher, &fakeAuthority{}, audit.NewMemorySink())

	result, err := s.handleSearch(context.Background(), callRequest("veridocs_search", map[string]any{
		"query": "flange torque",
		"top_k": 5,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "flange torque", searcher.gotQuery)
	assert.Equal(t, 5, searcher.gotTopK)
	assert.Equal(t, "local_service", searcher.gotCtx.User)

	var resp model.Response
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "DOC-1", resp.Results[0].DocumentID)
}

func TestHandleSearch_MissingQuery(t *testing.T) {
	s := newTestServer(&fakeSearcher{}, &fakeAuthority{}, audit.NewMemorySink())

	result, err := s.handleSearch(context.Background(), callRequest("veridocs_search", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleSearch_BackendFailure(t *testing.T) {
	searcher := &fakeSearcher{err: &model.BackendError{Backend: "lexical"}}
	s := newTestServer(searcher, &fakeAuthority{}, audit.NewMemorySink())

	result, err := s.handleSearch(context.Background(), callRequest("veridocs_search", map[string]any{
		"query": "anything",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "search failed")
}

func TestHandleCheckAccess(t *testing.T) {
	authority := &fakeAuthority{
		decision: model.AccessDecision{
			Allowed:        true,
			Reasons:        []string{model.ReasonRuleMatch},
			MatchedRuleIDs: []int64{4},
		},
	}
	s := newTestServer(&fakeSearcher{}, authority, audit.NewMemorySink())

	result, err := s.handleCheckAccess(context.Background(), callRequest("veridocs_check_access", map[string]any{
		"document_id": "DOC-9",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var out struct {
		Decision string               `json:"decision"`
		Detail   model.AccessDecision `json:"detail"`
	}
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &out))
	assert.Equal(t, model.DecisionAllow, out.Decision)
	assert.Equal(t, "DOC-9", out.Detail.DocumentID)
	assert.Equal(t, []int64{4}, out.Detail.MatchedRuleIDs)
}

func TestHandleCheckAccess_MissingDocumentID(t *testing.T) {
	s := newTestServer(&fakeSearcher{}, &fakeAuthority{}, audit.NewMemorySink())

	result, err := s.handleCheckAccess(context.Background(), callRequest("veridocs_check_access", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleAuditTrail(t *testing.T) {
	sink := audit.NewMemorySink()
	queryID := uuid.New().String()
	require.NoError(t, sink.Insert(context.Background(), model.AuditEvent{
		ID:     uuid.New(),
		Actor:  "local_service",
		Action: model.ActionQueryReceived,
		Details: map[string]any{
			"query_id": queryID,
		},
		CreatedAt: time.Now().UTC(),
	}))
	s := newTestServer(&fakeSearcher{}, &fakeAuthority{}, sink)

	contents, err := s.handleAuditTrail(context.Background(), mcplib.ReadResourceRequest{
		Params: mcplib.ReadResourceParams{URI: "veridocs://audit/" + queryID},
	})
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text, ok := contents[0].(mcplib.TextResourceContents)
	require.True(t, ok)
	assert.Contains(t, text.Text, queryID)
	assert.Contains(t, text.Text, string(model.ActionQueryReceived))
}

func TestHandleAuditTrail_InvalidURI(t *testing.T) {
	s := newTestServer(&fakeSearcher{}, &fakeAuthority{}, audit.NewMemorySink())

	_, err := s.handleAuditTrail(context.Background(), mcplib.ReadResourceRequest{
		Params: mcplib.ReadResourceParams{URI: "veridocs://wrong/thing"},
	})
	require.Error(t, err)
}

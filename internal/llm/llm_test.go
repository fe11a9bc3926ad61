package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarlin/mailpilot/internal/types"
)

func testEmail() *types.Email {
	return &types.Email{
		ID:         "em1",
		ThreadID:   "th1",
		Sender:     "alice@example.com",
		Recipients: []string{"me@example.com"},
		Subject:    "Quarterly review",
		BodyText:   "Can we meet next Tuesday at 2pm to go over the numbers?",
		ReceivedAt: time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC),
	}
}

// chatServer returns an httptest server that answers every chat completion
// with the given content string.
func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestAnalyze_ParsesModelOutput(t *testing.T) {
	analysis := `{"summary":"Meeting request","intent":"scheduling","questions":["When are you free?"],
		"time_sensitive":true,"sentiment":"positive","priority":"HIGH","requires_response":true,
		"needs_context":false,"needs_web_search":false,"needs_calendar":true}`
	srv := chatServer(t, analysis)
	defer srv.Close()

	c := NewWithBaseURL("test-key", "test-model", srv.URL)
	got := c.Analyze(context.Background(), testEmail())

	require.NotNil(t, got)
	assert.False(t, got.Fallback())
	assert.Equal(t, types.PriorityHigh, got.Priority) // normalized to lowercase
	assert.True(t, got.RequiresResponse)
	assert.True(t, got.NeedsCalendar)
}

func TestAnalyze_FallbackOnTransportError(t *testing.T) {
	srv := chatServer(t, "{}")
	srv.Close() // connection refused from here on

	c := NewWithBaseURL("test-key", "test-model", srv.URL)
	got := c.Analyze(context.Background(), testEmail())

	require.NotNil(t, got)
	assert.True(t, got.Fallback())
	assert.Equal(t, types.PriorityMedium, got.Priority)
	assert.True(t, got.RequiresResponse)
	assert.False(t, got.NeedsContext)
	assert.False(t, got.NeedsWebSearch)
	assert.False(t, got.NeedsCalendar)
	assert.Equal(t, "neutral", got.Sentiment)
}

func TestAnalyze_FallbackOnMalformedOutput(t *testing.T) {
	srv := chatServer(t, "I could not produce JSON, sorry.")
	defer srv.Close()

	c := NewWithBaseURL("test-key", "test-model", srv.URL)
	got := c.Analyze(context.Background(), testEmail())

	assert.True(t, got.Fallback())
	assert.Equal(t, types.PriorityMedium, got.Priority)
	assert.True(t, got.RequiresResponse)
}

func TestAnalyze_FallbackOnAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := NewWithBaseURL("test-key", "test-model", srv.URL)
	got := c.Analyze(context.Background(), testEmail())

	assert.True(t, got.Fallback())
	assert.Contains(t, got.Err, "rate limited")
}

func TestGenerateReply_FallbackDraftNeedsReview(t *testing.T) {
	srv := chatServer(t, "{}")
	srv.Close()

	c := NewWithBaseURL("test-key", "test-model", srv.URL)
	draft := c.GenerateReply(context.Background(), testEmail(), &types.Analysis{}, nil, nil, nil)

	require.NotNil(t, draft)
	assert.Equal(t, "Re: Quarterly review", draft.Subject)
	assert.False(t, draft.ShouldSend)
	assert.NotEmpty(t, draft.FollowUpTasks)
	assert.NotEmpty(t, draft.Err)
}

func TestGenerateReply_ParsesDraft(t *testing.T) {
	srv := chatServer(t, `{"subject":"Re: Quarterly review","body":"Tuesday 2pm works.","should_send":true,"follow_up_tasks":[]}`)
	defer srv.Close()

	c := NewWithBaseURL("test-key", "test-model", srv.URL)
	draft := c.GenerateReply(context.Background(), testEmail(), &types.Analysis{}, nil, nil, nil)

	assert.True(t, draft.ShouldSend)
	assert.Equal(t, "Tuesday 2pm works.", draft.Body)
	assert.Empty(t, draft.Err)
}

func TestDetectCalendarEvents_BareArray(t *testing.T) {
	srv := chatServer(t, `[{"type":"meeting","description":"Quarterly review","date":"2024-03-05","start_time":"14:00","duration_minutes":60}]`)
	defer srv.Close()

	c := NewWithBaseURL("test-key", "test-model", srv.URL)
	events := c.DetectCalendarEvents(context.Background(), testEmail())

	require.Len(t, events, 1)
	assert.Equal(t, "meeting", events[0].Type)
	assert.Equal(t, "2024-03-05", events[0].Date)
}

func TestDetectCalendarEvents_WrappedObject(t *testing.T) {
	srv := chatServer(t, `{"events":[{"type":"meeting","description":"Sync","date":"2024-03-06","start_time":"09:30"}]}`)
	defer srv.Close()

	c := NewWithBaseURL("test-key", "test-model", srv.URL)
	events := c.DetectCalendarEvents(context.Background(), testEmail())

	require.Len(t, events, 1)
	assert.Equal(t, "Sync", events[0].Description)
}

func TestDetectCalendarEvents_OtherShapesNormalizeToEmpty(t *testing.T) {
	for _, content := range []string{
		`{"unexpected":"shape"}`,
		`"just a string"`,
		`not json at all`,
	} {
		srv := chatServer(t, content)
		c := NewWithBaseURL("test-key", "test-model", srv.URL)
		events := c.DetectCalendarEvents(context.Background(), testEmail())
		srv.Close()
		assert.Emptyf(t, events, "content %q should normalize to empty", content)
	}
}

func TestDetectCalendarEvents_StripsMarkdownFences(t *testing.T) {
	srv := chatServer(t, "```json\n[{\"type\":\"meeting\",\"description\":\"Standup\",\"date\":\"2024-03-07\"}]\n```")
	defer srv.Close()

	c := NewWithBaseURL("test-key", "test-model", srv.URL)
	events := c.DetectCalendarEvents(context.Background(), testEmail())

	require.Len(t, events, 1)
	assert.Equal(t, "Standup", events[0].Description)
}

func TestExtractActionItems_FailureYieldsEmptyLists(t *testing.T) {
	srv := chatServer(t, "{}")
	srv.Close()

	c := NewWithBaseURL("test-key", "test-model", srv.URL)
	ex := c.ExtractActionItems(context.Background(), testEmail())

	require.NotNil(t, ex)
	assert.Empty(t, ex.ActionItems)
	assert.Empty(t, ex.CalendarItems)
	assert.NotEmpty(t, ex.Err)
}

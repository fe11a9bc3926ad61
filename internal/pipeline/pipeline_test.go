package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarlin/mailpilot/internal/config"
	"github.com/mkarlin/mailpilot/internal/store"
	"github.com/mkarlin/mailpilot/internal/types"
)

// fakeMailer implements Mailer against in-memory fixtures.
type fakeMailer struct {
	unread        []*types.Email
	replies       []string
	replyErr      error
	markedRead    []string
	markedImp     []string
	listCalls     int
	sentMessageID string
}

func (m *fakeMailer) ListUnread(ctx context.Context, limit int) ([]*types.Email, error) {
	m.listCalls++
	if limit < len(m.unread) {
		return m.unread[:limit], nil
	}
	return m.unread, nil
}

func (m *fakeMailer) Get(ctx context.Context, id string) (*types.Email, error) {
	for _, e := range m.unread {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, nil
}

func (m *fakeMailer) MarkRead(ctx context.Context, id string) error {
	m.markedRead = append(m.markedRead, id)
	return nil
}

func (m *fakeMailer) MarkImportant(ctx context.Context, id string) error {
	m.markedImp = append(m.markedImp, id)
	return nil
}

func (m *fakeMailer) Reply(ctx context.Context, original *types.Email, subject, body string) (string, error) {
	if m.replyErr != nil {
		return "", m.replyErr
	}
	m.replies = append(m.replies, subject)
	if m.sentMessageID == "" {
		m.sentMessageID = "sent-1"
	}
	return m.sentMessageID, nil
}

// fakeAnalyzer returns canned model output.
type fakeAnalyzer struct {
	analysis     *types.Analysis
	draft        *types.ReplyDraft
	extraction   *types.Extraction
	events       []types.CalendarEventCandidate
	analyzeCalls int
	replyThread  []*types.Email
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, email *types.Email) *types.Analysis {
	a.analyzeCalls++
	if a.analysis != nil {
		return a.analysis
	}
	return &types.Analysis{Priority: types.PriorityLow, Sentiment: "neutral"}
}

func (a *fakeAnalyzer) GenerateReply(ctx context.Context, email *types.Email, analysis *types.Analysis, thread []*types.Email, searchResults []types.SearchResult, calendarCtx *types.CalendarContext) *types.ReplyDraft {
	a.replyThread = thread
	if a.draft != nil {
		return a.draft
	}
	return &types.ReplyDraft{Subject: "Re: " + email.Subject, Body: "ok", ShouldSend: false}
}

func (a *fakeAnalyzer) ExtractActionItems(ctx context.Context, email *types.Email) *types.Extraction {
	if a.extraction != nil {
		return a.extraction
	}
	return &types.Extraction{}
}

func (a *fakeAnalyzer) DetectCalendarEvents(ctx context.Context, email *types.Email) []types.CalendarEventCandidate {
	return a.events
}

// fakeNotifier counts Slack posts.
type fakeNotifier struct {
	calls int
	err   error
}

func (n *fakeNotifier) NotifyAboutEmail(ctx context.Context, email *types.Email, analysis *types.Analysis, items []types.ActionItem) (string, error) {
	n.calls++
	return "1724900000.1", n.err
}

// fakeCalendar records created events.
type fakeCalendar struct {
	created []string
	busy    []types.BusyRange
}

func (c *fakeCalendar) ListUpcoming(ctx context.Context, limit int) ([]types.Event, error) {
	return nil, nil
}

func (c *fakeCalendar) Busy(ctx context.Context, start, end time.Time) ([]types.BusyRange, error) {
	return c.busy, nil
}

func (c *fakeCalendar) CreateEvent(ctx context.Context, summary, description, location string, start, end time.Time, attendees []string) (string, error) {
	c.created = append(c.created, summary)
	return "evt-1", nil
}

// fakeSearcher returns a fixed result set.
type fakeSearcher struct {
	results []types.SearchResult
	queries []string
}

func (s *fakeSearcher) Search(ctx context.Context, query string, limit int) ([]types.SearchResult, error) {
	s.queries = append(s.queries, query)
	return s.results, nil
}

func testEmail(id string) *types.Email {
	return &types.Email{
		ID:         id,
		ThreadID:   "t-" + id,
		Sender:     "alice@example.com",
		Subject:    "Quarterly review",
		BodyText:   "Can we meet next week?",
		ReceivedAt: time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
	}
}

type fixture struct {
	proc     *Processor
	store    *store.Store
	mail     *fakeMailer
	analyzer *fakeAnalyzer
	notifier *fakeNotifier
	calendar *fakeCalendar
	searcher *fakeSearcher
	cfg      *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.FetchInterval = time.Second

	f := &fixture{
		store:    st,
		mail:     &fakeMailer{},
		analyzer: &fakeAnalyzer{},
		notifier: &fakeNotifier{},
		calendar: &fakeCalendar{},
		searcher: &fakeSearcher{},
		cfg:      cfg,
	}
	f.proc = New(cfg, st, f.mail, f.analyzer, f.notifier, f.calendar, f.searcher,
		slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelError})))
	return f
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestProcessInbox_EmptyInboxShortCircuits(t *testing.T) {
	f := newFixture(t)

	results, err := f.proc.ProcessInbox(context.Background())

	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, f.analyzer.analyzeCalls)
	assert.Empty(t, f.mail.markedRead)
}

func TestProcessInbox_FetchErrorPropagates(t *testing.T) {
	f := newFixture(t)
	f.proc.mail = &failingMailer{}

	_, err := f.proc.ProcessInbox(context.Background())
	require.Error(t, err)
}

type failingMailer struct{ fakeMailer }

func (m *failingMailer) ListUnread(ctx context.Context, limit int) ([]*types.Email, error) {
	return nil, errors.New("gmail down")
}

func TestProcessEmail_PersistsAndMarksRead(t *testing.T) {
	f := newFixture(t)
	email := testEmail("e1")

	result := f.proc.ProcessEmail(context.Background(), email)

	require.Empty(t, result.Err)
	assert.Equal(t, []string{"e1"}, f.mail.markedRead)

	saved, err := f.store.GetEmail("e1")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.True(t, saved.IsRead)
}

func TestProcessEmail_SaveFailureStillMarksRead(t *testing.T) {
	f := newFixture(t)
	// Force the per-item fatal path.
	require.NoError(t, f.store.Close())

	result := f.proc.ProcessEmail(context.Background(), testEmail("e1"))

	assert.Contains(t, result.Err, "save email")
	assert.Zero(t, f.analyzer.analyzeCalls)
	// The attempt completed, so the message must not be refetched next pass.
	assert.Equal(t, []string{"e1"}, f.mail.markedRead)
}

func TestProcessEmail_HighPriorityNotifiesOnceAndMarksImportant(t *testing.T) {
	f := newFixture(t)
	f.analyzer.analysis = &types.Analysis{
		Priority: types.PriorityHigh,
		Summary:  "Server outage reported",
	}
	email := testEmail("e1")

	f.proc.ProcessEmail(context.Background(), email)

	assert.Equal(t, 1, f.notifier.calls)
	assert.Equal(t, []string{"e1"}, f.mail.markedImp)

	records, err := f.store.ActionsForEmail("e1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.ActionSlack, records[0].ActionType)
	assert.True(t, records[0].IsSuccess)
}

func TestProcessEmail_HighPriorityNotificationDeduplicated(t *testing.T) {
	f := newFixture(t)
	f.analyzer.analysis = &types.Analysis{
		Priority: types.PriorityHigh,
		Summary:  "Server outage reported",
	}
	email := testEmail("e1")

	f.proc.ProcessEmail(context.Background(), email)
	f.proc.ProcessEmail(context.Background(), email)

	assert.Equal(t, 1, f.notifier.calls)

	records, err := f.store.ActionsForEmail("e1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestProcessEmail_FailedNotificationRecordedAndRetriable(t *testing.T) {
	f := newFixture(t)
	f.analyzer.analysis = &types.Analysis{Priority: types.PriorityHigh, Summary: "Outage"}
	f.notifier.err = errors.New("slack 500")
	email := testEmail("e1")

	f.proc.ProcessEmail(context.Background(), email)

	records, err := f.store.ActionsForEmail("e1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].IsSuccess)
	assert.Contains(t, records[0].ErrorMessage, "slack 500")

	// A failure does not suppress the retry on the next pass.
	f.notifier.err = nil
	f.proc.ProcessEmail(context.Background(), email)
	assert.Equal(t, 2, f.notifier.calls)
}

func TestProcessEmail_ReplyHeldWithoutAutoReply(t *testing.T) {
	f := newFixture(t)
	f.analyzer.analysis = &types.Analysis{Priority: types.PriorityMedium, RequiresResponse: true}
	f.analyzer.draft = &types.ReplyDraft{Subject: "Re: Quarterly review", Body: "Sure.", ShouldSend: true}
	f.cfg.AutoReplyEnabled = false

	result := f.proc.ProcessEmail(context.Background(), testEmail("e1"))

	require.NotNil(t, result.Reply)
	assert.Empty(t, f.mail.replies)

	records, err := f.store.ActionsForEmail("e1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestProcessEmail_AutoReplySentOnceOnly(t *testing.T) {
	f := newFixture(t)
	f.cfg.AutoReplyEnabled = true
	f.analyzer.analysis = &types.Analysis{Priority: types.PriorityMedium, RequiresResponse: true}
	f.analyzer.draft = &types.ReplyDraft{Subject: "Re: Quarterly review", Body: "Sure.", ShouldSend: true}
	email := testEmail("e1")

	f.proc.ProcessEmail(context.Background(), email)
	f.proc.ProcessEmail(context.Background(), email)

	assert.Len(t, f.mail.replies, 1)

	records, err := f.store.ActionsForEmail("e1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.ActionReply, records[0].ActionType)
	assert.True(t, records[0].IsSuccess)
}

func TestProcessEmail_UnsafeDraftNeverAutoSent(t *testing.T) {
	f := newFixture(t)
	f.cfg.AutoReplyEnabled = true
	f.analyzer.analysis = &types.Analysis{RequiresResponse: true, Priority: types.PriorityLow}
	f.analyzer.draft = &types.ReplyDraft{Subject: "Re: x", Body: "draft", ShouldSend: false}

	result := f.proc.ProcessEmail(context.Background(), testEmail("e1"))

	require.NotNil(t, result.Reply)
	assert.Empty(t, f.mail.replies)
}

func TestProcessEmail_ThreadContextGatheredWhenRequested(t *testing.T) {
	f := newFixture(t)
	f.analyzer.analysis = &types.Analysis{RequiresResponse: true, NeedsContext: true, Priority: types.PriorityLow}

	// An earlier email on the same thread is already stored.
	earlier := testEmail("e0")
	earlier.ThreadID = "t-e1"
	earlier.ReceivedAt = time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.store.SaveEmail(earlier))

	f.proc.ProcessEmail(context.Background(), testEmail("e1"))

	require.Len(t, f.analyzer.replyThread, 2)
	assert.Equal(t, "e0", f.analyzer.replyThread[0].ID)
	assert.Equal(t, "e1", f.analyzer.replyThread[1].ID)
}

func TestProcessEmail_WebSearchCombinesSubjectAndQuestion(t *testing.T) {
	f := newFixture(t)
	f.analyzer.analysis = &types.Analysis{
		NeedsWebSearch: true,
		Priority:       types.PriorityLow,
		Questions:      []string{"what is the current USPS rate"},
	}
	f.searcher.results = []types.SearchResult{{Title: "USPS rates", Source: "google"}}

	result := f.proc.ProcessEmail(context.Background(), testEmail("e1"))

	require.Equal(t, []string{"Quarterly review what is the current USPS rate"}, f.searcher.queries)
	require.Len(t, result.SearchResults, 1)
}

func TestProcessByID_UnknownEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.proc.ProcessByID(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestProcessInbox_BatchLimitRespected(t *testing.T) {
	f := newFixture(t)
	f.cfg.BatchLimit = 2
	f.mail.unread = []*types.Email{testEmail("e1"), testEmail("e2"), testEmail("e3")}

	results, err := f.proc.ProcessInbox(context.Background())

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

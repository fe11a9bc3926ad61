// Package pipeline orchestrates inbox triage: fetch unread email, analyze it,
// gather whatever context the analysis asks for, then dispatch side effects
// with an append-only audit trail.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkarlin/mailpilot/internal/config"
	"github.com/mkarlin/mailpilot/internal/store"
	"github.com/mkarlin/mailpilot/internal/types"
)

// Mailer is the mailbox collaborator.
type Mailer interface {
	ListUnread(ctx context.Context, limit int) ([]*types.Email, error)
	Get(ctx context.Context, id string) (*types.Email, error)
	MarkRead(ctx context.Context, id string) error
	MarkImportant(ctx context.Context, id string) error
	Reply(ctx context.Context, original *types.Email, subject, body string) (string, error)
}

// Analyzer is the language-model collaborator. Its methods never fail hard;
// they return fallback values with an embedded error instead.
type Analyzer interface {
	Analyze(ctx context.Context, email *types.Email) *types.Analysis
	GenerateReply(ctx context.Context, email *types.Email, analysis *types.Analysis, thread []*types.Email, searchResults []types.SearchResult, calendarCtx *types.CalendarContext) *types.ReplyDraft
	ExtractActionItems(ctx context.Context, email *types.Email) *types.Extraction
	DetectCalendarEvents(ctx context.Context, email *types.Email) []types.CalendarEventCandidate
}

// Notifier posts triage notifications. A nil Notifier disables notifications.
type Notifier interface {
	NotifyAboutEmail(ctx context.Context, email *types.Email, analysis *types.Analysis, items []types.ActionItem) (string, error)
}

// Calendar is the calendar collaborator. A nil Calendar disables calendar
// context and event creation.
type Calendar interface {
	ListUpcoming(ctx context.Context, limit int) ([]types.Event, error)
	Busy(ctx context.Context, start, end time.Time) ([]types.BusyRange, error)
	CreateEvent(ctx context.Context, summary, description, location string, start, end time.Time, attendees []string) (string, error)
}

// Searcher answers web queries. A nil Searcher disables web search.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]types.SearchResult, error)
}

// Processor runs the triage pipeline.
type Processor struct {
	cfg      *config.Config
	store    *store.Store
	mail     Mailer
	analyzer Analyzer
	notifier Notifier
	calendar Calendar
	searcher Searcher
	log      *slog.Logger
}

// New assembles a processor. notifier, calendar and searcher may be nil when
// the corresponding collaborator is unconfigured.
func New(cfg *config.Config, st *store.Store, mail Mailer, analyzer Analyzer, notifier Notifier, cal Calendar, searcher Searcher, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		cfg:      cfg,
		store:    st,
		mail:     mail,
		analyzer: analyzer,
		notifier: notifier,
		calendar: cal,
		searcher: searcher,
		log:      log,
	}
}

// ProcessInbox fetches unread mail and processes each message. An empty inbox
// returns an empty slice without touching any collaborator further. One bad
// email does not abort the batch; its Result carries the error.
func (p *Processor) ProcessInbox(ctx context.Context) ([]*types.Result, error) {
	emails, err := p.mail.ListUnread(ctx, p.cfg.BatchLimit)
	if err != nil {
		return nil, fmt.Errorf("fetch unread: %w", err)
	}
	if len(emails) == 0 {
		p.log.Debug("inbox clear")
		return []*types.Result{}, nil
	}

	p.log.Info("processing batch", "count", len(emails))

	results := make([]*types.Result, 0, len(emails))
	for _, email := range emails {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, p.ProcessEmail(ctx, email))
	}

	if err := p.store.SetPreference("last_run", time.Now().UTC().Format(time.RFC3339)); err != nil {
		p.log.Warn("record last run failed", "err", err)
	}
	return results, nil
}

// ProcessByID fetches one message and processes it regardless of read state.
func (p *Processor) ProcessByID(ctx context.Context, id string) (*types.Result, error) {
	email, err := p.mail.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetch email %s: %w", id, err)
	}
	if email == nil {
		return nil, fmt.Errorf("email %s not found", id)
	}
	return p.ProcessEmail(ctx, email), nil
}

// ProcessEmail runs the full pipeline for one email: persist, analyze, gather
// context, extract, dispatch, mark read. Soft failures degrade; the returned
// Result always has at least Email and Analysis set.
func (p *Processor) ProcessEmail(ctx context.Context, email *types.Email) *types.Result {
	result := &types.Result{Email: email}
	log := p.log.With("email", email.ID, "subject", email.Subject)

	if err := p.store.SaveEmail(email); err != nil {
		result.Err = fmt.Sprintf("save email: %v", err)
		log.Error("save failed", "err", err)
		// The attempt is over; mark read so the next pass does not refetch
		// and re-analyze the same message forever.
		p.markRead(ctx, email, log)
		return result
	}

	result.Analysis = p.analyzer.Analyze(ctx, email)
	if result.Analysis.Fallback() {
		log.Warn("analysis fell back to defaults", "err", result.Analysis.Err)
	} else {
		log.Info("analyzed", "priority", result.Analysis.Priority, "intent", result.Analysis.Intent)
	}

	extraction := p.analyzer.ExtractActionItems(ctx, email)
	result.ActionItems = extraction.ActionItems

	result.Events = p.analyzer.DetectCalendarEvents(ctx, email)
	if len(result.Events) == 0 && len(extraction.CalendarItems) > 0 {
		result.Events = extraction.CalendarItems
	}

	gathered := p.gather(ctx, email, result.Analysis, len(result.Events) > 0)
	result.SearchResults = gathered.searchResults

	p.dispatch(ctx, email, result, gathered)

	p.markRead(ctx, email, log)

	return result
}

// markRead flags the message read at the source and locally. Runs after every
// processing attempt, caught failures included.
func (p *Processor) markRead(ctx context.Context, email *types.Email, log *slog.Logger) {
	if err := p.mail.MarkRead(ctx, email.ID); err != nil {
		log.Warn("mark read failed", "err", err)
		return
	}
	if err := p.store.MarkRead(email.ID); err != nil {
		log.Warn("record read state failed", "err", err)
	}
}

// Run polls the inbox on the configured interval until the context is
// canceled. Consecutive failures back off up to five intervals.
func (p *Processor) Run(ctx context.Context) error {
	p.log.Info("daemon started", "interval", p.cfg.FetchInterval)

	failures := 0
	for {
		results, err := p.ProcessInbox(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			p.log.Error("inbox pass failed", "err", err, "consecutive", failures)
		} else {
			failures = 0
			if len(results) > 0 {
				p.log.Info("inbox pass complete", "processed", len(results))
			}
		}

		wait := p.cfg.FetchInterval
		if failures > 0 {
			backoff := failures
			if backoff > 5 {
				backoff = 5
			}
			wait = p.cfg.FetchInterval * time.Duration(backoff)
		}

		select {
		case <-ctx.Done():
			p.log.Info("daemon stopping")
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/mkarlin/mailpilot/internal/schedule"
	"github.com/mkarlin/mailpilot/internal/types"
)

// gathered holds the optional context a single email's analysis asked for.
// Absent fields mean the flag was off, the collaborator is unconfigured, or
// the lookup failed; downstream steps treat all three the same way.
type gathered struct {
	thread        []*types.Email
	searchResults []types.SearchResult
	calendarCtx   *types.CalendarContext
}

const (
	upcomingMeetingsLimit = 10
	searchResultLimit     = 3
	busyLookaheadDays     = 7
)

// gather fetches exactly the context the analysis flags request. Calendar
// context is also pulled when event candidates were already detected, so
// reply drafting can mention availability. Failures are logged and degrade to
// absent context, never to a pipeline error.
func (p *Processor) gather(ctx context.Context, email *types.Email, analysis *types.Analysis, hasEventCandidates bool) gathered {
	var g gathered
	log := p.log.With("email", email.ID)

	if analysis.NeedsContext {
		thread, err := p.store.ThreadEmails(email.ThreadID)
		if err != nil {
			log.Warn("thread lookup failed", "thread", email.ThreadID, "err", err)
		} else {
			g.thread = thread
		}
	}

	if analysis.NeedsWebSearch && p.searcher != nil {
		query := searchQuery(email, analysis)
		results, err := p.searcher.Search(ctx, query, searchResultLimit)
		if err != nil {
			log.Warn("web search failed", "query", query, "err", err)
		} else {
			g.searchResults = results
		}
	}

	if (analysis.NeedsCalendar || hasEventCandidates) && p.calendar != nil {
		g.calendarCtx = p.calendarContext(ctx, log)
	}

	return g
}

// calendarContext assembles upcoming meetings plus computed free slots.
// Either half may be missing independently.
func (p *Processor) calendarContext(ctx context.Context, log *slog.Logger) *types.CalendarContext {
	cc := &types.CalendarContext{}

	meetings, err := p.calendar.ListUpcoming(ctx, upcomingMeetingsLimit)
	if err != nil {
		log.Warn("upcoming meetings lookup failed", "err", err)
	} else {
		cc.ExistingMeetings = meetings
	}

	now := time.Now()
	busy, err := p.calendar.Busy(ctx, now, now.AddDate(0, 0, busyLookaheadDays))
	if err != nil {
		log.Warn("busy lookup failed", "err", err)
		if cc.ExistingMeetings == nil {
			return nil
		}
		return cc
	}

	hours, err := p.cfg.Hours()
	if err != nil {
		hours = schedule.WorkingHours{Start: 9, End: 17}
	}
	loc, err := p.cfg.Location()
	if err != nil {
		loc = time.UTC
	}

	slots, err := schedule.FindFreeSlots(schedule.Request{
		Busy:     busy,
		Hours:    hours,
		Location: loc,
	})
	if err != nil {
		log.Warn("slot computation failed", "err", err)
	} else {
		cc.AvailableSlots = slots
	}
	return cc
}

// searchQuery combines the subject with the first open question.
func searchQuery(email *types.Email, analysis *types.Analysis) string {
	if len(analysis.Questions) > 0 && analysis.Questions[0] != "" {
		return email.Subject + " " + analysis.Questions[0]
	}
	return email.Subject
}

package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/mkarlin/mailpilot/internal/store"
	"github.com/mkarlin/mailpilot/internal/types"
)

// defaultEventMinutes is used when an extracted event carries no duration.
const defaultEventMinutes = 60

// dispatch performs the side effects the analysis calls for. Every attempted
// effect leaves an ActionRecord, success or failure; skipped effects leave
// nothing.
func (p *Processor) dispatch(ctx context.Context, email *types.Email, result *types.Result, g gathered) {
	analysis := result.Analysis

	if analysis.Priority == types.PriorityHigh {
		p.notifyHighPriority(ctx, email, analysis, result.ActionItems)
	}

	if analysis.RequiresResponse {
		result.Reply = p.handleReply(ctx, email, analysis, g)
	}

	for _, candidate := range result.Events {
		p.handleEventCandidate(ctx, email, candidate)
	}
}

// notifyHighPriority posts exactly one Slack notification and flags the email
// important, in Gmail and locally.
func (p *Processor) notifyHighPriority(ctx context.Context, email *types.Email, analysis *types.Analysis, items []types.ActionItem) {
	log := p.log.With("email", email.ID)

	if err := p.mail.MarkImportant(ctx, email.ID); err != nil {
		log.Warn("mark important failed", "err", err)
	} else if err := p.store.MarkImportant(email.ID, true); err != nil {
		log.Warn("record important flag failed", "err", err)
	}

	if p.notifier == nil {
		return
	}

	key := dedupKey(email.ID, types.ActionSlack, analysis.Summary)
	if done, err := p.store.HasSuccessfulAction(email.ID, types.ActionSlack, key); err != nil {
		log.Warn("dedup lookup failed", "err", err)
	} else if done {
		log.Debug("notification already sent")
		return
	}

	ts, err := p.notifier.NotifyAboutEmail(ctx, email, analysis, items)
	p.record(email.ID, types.ActionSlack, key, map[string]any{
		"channel_ts": ts,
		"priority":   analysis.Priority,
	}, err)
	if err != nil {
		log.Error("slack notification failed", "err", err)
	}
}

// handleReply drafts a reply and sends it only when the model marks it safe
// and auto-reply is enabled. The draft is always returned for display.
func (p *Processor) handleReply(ctx context.Context, email *types.Email, analysis *types.Analysis, g gathered) *types.ReplyDraft {
	log := p.log.With("email", email.ID)

	draft := p.analyzer.GenerateReply(ctx, email, analysis, g.thread, g.searchResults, g.calendarCtx)
	if draft == nil {
		return nil
	}
	if draft.Err != "" {
		log.Warn("reply generation fell back", "err", draft.Err)
	}

	if !draft.ShouldSend || !p.cfg.AutoReplyEnabled {
		log.Info("reply drafted, held for review", "should_send", draft.ShouldSend)
		return draft
	}

	key := dedupKey(email.ID, types.ActionReply, draft.Subject, draft.Body)
	if done, err := p.store.HasSuccessfulAction(email.ID, types.ActionReply, key); err != nil {
		log.Warn("dedup lookup failed", "err", err)
	} else if done {
		log.Info("reply already sent, skipping")
		return draft
	}

	msgID, err := p.mail.Reply(ctx, email, draft.Subject, draft.Body)
	p.record(email.ID, types.ActionReply, key, map[string]any{
		"subject":    draft.Subject,
		"message_id": msgID,
		"auto_sent":  true,
	}, err)
	if err != nil {
		log.Error("auto-reply failed", "err", err)
	} else {
		log.Info("auto-reply sent", "message_id", msgID)
	}
	return draft
}

// handleEventCandidate creates a calendar event for a meeting mention. A
// candidate that is not a meeting, or lacks a parseable date or start time,
// is skipped without a record.
func (p *Processor) handleEventCandidate(ctx context.Context, email *types.Email, c types.CalendarEventCandidate) {
	if p.calendar == nil || !strings.EqualFold(c.Type, "meeting") {
		return
	}
	log := p.log.With("email", email.ID, "event", c.Description)

	start, ok := p.candidateStart(c)
	if !ok {
		log.Debug("event candidate incomplete, skipping", "date", c.Date, "start_time", c.StartTime)
		return
	}

	minutes := c.DurationMinutes
	if minutes <= 0 {
		minutes = defaultEventMinutes
	}
	end := start.Add(time.Duration(minutes) * time.Minute)

	key := dedupKey(email.ID, types.ActionCalendar, c.Description, c.Date, c.StartTime)
	if done, err := p.store.HasSuccessfulAction(email.ID, types.ActionCalendar, key); err != nil {
		log.Warn("dedup lookup failed", "err", err)
	} else if done {
		log.Debug("event already created")
		return
	}

	summary := c.Description
	if summary == "" {
		summary = "Meeting: " + email.Subject
	}
	description := "Created from email: " + email.Subject

	id, err := p.calendar.CreateEvent(ctx, summary, description, c.Location, start, end, c.Participants)
	p.record(email.ID, types.ActionCalendar, key, map[string]any{
		"event_id": id,
		"summary":  summary,
		"start":    start.Format(time.RFC3339),
	}, err)
	if err != nil {
		log.Error("event creation failed", "err", err)
	} else {
		log.Info("event created", "event_id", id)
	}
}

// candidateStart combines the candidate's date and start time in the
// configured timezone.
func (p *Processor) candidateStart(c types.CalendarEventCandidate) (time.Time, bool) {
	if c.Date == "" || c.StartTime == "" {
		return time.Time{}, false
	}
	loc, err := p.cfg.Location()
	if err != nil {
		loc = time.UTC
	}
	start, err := time.ParseInLocation("2006-01-02 15:04", c.Date+" "+c.StartTime, loc)
	if err != nil {
		return time.Time{}, false
	}
	return start, true
}

// record appends one audit entry. Persistence failures are logged, never
// propagated; the side effect itself already happened or failed on its own.
func (p *Processor) record(emailID, actionType, key string, data map[string]any, actionErr error) {
	payload, _ := json.Marshal(data)

	rec := &types.ActionRecord{
		ID:          store.GenID(),
		EmailID:     emailID,
		ActionType:  actionType,
		ActionData:  string(payload),
		DedupKey:    key,
		IsSuccess:   actionErr == nil,
		PerformedAt: time.Now().UTC(),
	}
	if actionErr != nil {
		rec.ErrorMessage = actionErr.Error()
	}

	if err := p.store.SaveAction(rec); err != nil {
		p.log.Error("action record save failed", "email", emailID, "type", actionType, "err", err)
	}
}

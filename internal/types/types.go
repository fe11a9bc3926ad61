// Package types defines core data structures for mailpilot.
package types

import "time"

// Attachment holds metadata about an email attachment. Content is never
// stored, only described.
type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Email is an immutable snapshot of one inbox message for the duration of a
// processing pass.
type Email struct {
	ID          string       `json:"id"`
	ThreadID    string       `json:"thread_id"`
	MessageID   string       `json:"message_id,omitempty"`
	Sender      string       `json:"sender"`
	Recipients  []string     `json:"recipients"`
	CC          []string     `json:"cc,omitempty"`
	BCC         []string     `json:"bcc,omitempty"`
	Subject     string       `json:"subject"`
	BodyText    string       `json:"body_text"`
	BodyHTML    string       `json:"body_html,omitempty"`
	ReceivedAt  time.Time    `json:"received_at"`
	IsRead      bool         `json:"is_read"`
	IsImportant bool         `json:"is_important"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Priority constants.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// IsValidPriority checks if a priority string is one of high, medium, low.
func IsValidPriority(p string) bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Analysis is the structured interpretation of one email. It is produced once
// per email per run and never mutated afterward.
type Analysis struct {
	Summary          string   `json:"summary"`
	Intent           string   `json:"intent"`
	Questions        []string `json:"questions"`
	TimeSensitive    bool     `json:"time_sensitive"`
	Sentiment        string   `json:"sentiment"`
	Priority         string   `json:"priority"`
	RequiresResponse bool     `json:"requires_response"`
	NeedsContext     bool     `json:"needs_context"`
	NeedsWebSearch   bool     `json:"needs_web_search"`
	NeedsCalendar    bool     `json:"needs_calendar"`

	// Err records why the analyzer fell back to safe defaults. Empty on a
	// clean analysis.
	Err string `json:"error,omitempty"`
}

// Fallback reports whether this analysis is the analyzer's safe default
// rather than a real model response.
func (a *Analysis) Fallback() bool { return a.Err != "" }

// Action type constants.
const (
	ActionReply    = "reply"
	ActionCalendar = "calendar"
	ActionSlack    = "slack"
	ActionForward  = "forward"
)

// ActionRecord is an immutable audit entry for one side effect attempted on
// one email. Records are only ever appended.
type ActionRecord struct {
	ID           string    `json:"id"`
	EmailID      string    `json:"email_id"`
	ActionType   string    `json:"action_type"`
	ActionData   string    `json:"action_data,omitempty"` // opaque JSON
	DedupKey     string    `json:"dedup_key,omitempty"`
	IsSuccess    bool      `json:"is_success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	PerformedAt  time.Time `json:"performed_at"`
}

// Thread aggregates emails sharing a thread ID. UpdatedAt advances
// monotonically with the latest member's ReceivedAt.
type Thread struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BusyRange is a half-open UTC interval [Start, End) representing an existing
// commitment. Ranges may be unsorted and may overlap each other.
type BusyRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// FreeSlot is a computed available interval in the caller's timezone.
type FreeSlot struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"duration_minutes"`
}

// CalendarEventCandidate is an event mention extracted from an email. It is
// consumed at most once by the dispatcher: either turned into a real calendar
// event or silently skipped when required fields are missing.
type CalendarEventCandidate struct {
	Type            string   `json:"type"`
	Description     string   `json:"description"`
	Date            string   `json:"date"`       // YYYY-MM-DD
	StartTime       string   `json:"start_time"` // HH:MM, optional
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	Location        string   `json:"location,omitempty"`
	Participants    []string `json:"participants,omitempty"`
}

// ActionItem is a task extracted from an email body.
type ActionItem struct {
	Description      string `json:"description"`
	Deadline         string `json:"deadline,omitempty"`
	Priority         string `json:"priority"`
	Assignee         string `json:"assignee,omitempty"`
	RequiresResponse bool   `json:"requires_response"`
	Status           string `json:"status"`
}

// Extraction bundles the results of action-item extraction.
type Extraction struct {
	ActionItems   []ActionItem             `json:"action_items"`
	CalendarItems []CalendarEventCandidate `json:"calendar_items"`
	Err           string                   `json:"error,omitempty"`
}

// ReplyDraft is a generated reply awaiting send or human review.
type ReplyDraft struct {
	Subject       string   `json:"subject"`
	Body          string   `json:"body"`
	ShouldSend    bool     `json:"should_send"`
	FollowUpTasks []string `json:"follow_up_tasks,omitempty"`
	Err           string   `json:"error,omitempty"`
}

// Event is a calendar event as reported by the calendar collaborator.
type Event struct {
	ID          string   `json:"id"`
	Summary     string   `json:"summary"`
	Description string   `json:"description,omitempty"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Attendees   []string `json:"attendees,omitempty"`
	Location    string   `json:"location,omitempty"`
	Organizer   string   `json:"organizer,omitempty"`
	Link        string   `json:"link,omitempty"`
}

// SearchResult is one web search hit used to ground a reply.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// CalendarContext bundles availability information for reply generation.
type CalendarContext struct {
	ExistingMeetings []Event    `json:"existing_meetings"`
	AvailableSlots   []FreeSlot `json:"available_slots"`
}

// Result is the outcome of processing one email. Err is set only for
// per-item fatal failures; soft failures surface inside Analysis or Reply.
type Result struct {
	Email         *Email                   `json:"email"`
	Analysis      *Analysis                `json:"analysis,omitempty"`
	ActionItems   []ActionItem             `json:"action_items,omitempty"`
	Events        []CalendarEventCandidate `json:"calendar_events,omitempty"`
	SearchResults []SearchResult           `json:"web_search_results,omitempty"`
	Reply         *ReplyDraft              `json:"reply,omitempty"`
	Err           string                   `json:"error,omitempty"`
}

// Package llm invokes an OpenAI-compatible chat completions API to analyze
// emails, draft replies, and extract structured items.
//
// Every entry point has the same failure contract: transport errors and
// malformed model output never propagate as errors. They are converted into
// documented safe defaults with the error string attached for diagnostics,
// so the pipeline always has something reviewable to act on.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mkarlin/mailpilot/internal/types"
)

// DefaultBaseURL is the OpenAI API endpoint.
const DefaultBaseURL = "https://api.openai.com/v1"

// Client talks to a chat-completions API.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

// New creates a client for the given API key and model.
func New(apiKey, model string) *Client {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// NewWithBaseURL creates a client against a non-default endpoint. Tests use
// this to point at a local server.
func NewWithBaseURL(apiKey, model, baseURL string) *Client {
	c := New(apiKey, model)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// complete sends one system+user exchange and returns the raw model output.
func (c *Client) complete(ctx context.Context, system, user string, temperature float64, maxTokens int) (string, error) {
	reqBody := chatRequest{
		Model:       c.model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	reqBody.ResponseFormat.Type = "json_object"

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("chat API error (%d): %s", resp.StatusCode, parsed.Error.Message)
		}
		return "", fmt.Errorf("chat API error (%d): %s", resp.StatusCode, string(respBody))
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat API returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// emailHeader formats the standard email preamble used by all prompts.
func emailHeader(e *types.Email) string {
	return fmt.Sprintf("From: %s\nTo: %s\nSubject: %s\nDate: %s\n\n%s",
		e.Sender,
		strings.Join(e.Recipients, ", "),
		e.Subject,
		e.ReceivedAt.Format(time.RFC3339),
		e.BodyText,
	)
}

const analyzePrompt = `You are an AI assistant that analyzes emails to understand their context and intent.
Based on the email, respond with a JSON object containing exactly these fields:
- "summary": brief summary of the email (2-3 sentences)
- "intent": the main purpose (request, information, scheduling, etc.)
- "questions": array of key questions or requests that need addressing
- "time_sensitive": boolean, any deadlines or time-sensitive content
- "sentiment": "positive", "neutral" or "negative"
- "priority": "high", "medium" or "low"
- "requires_response": boolean
- "needs_context": boolean, whether previous emails in the thread are needed
- "needs_web_search": boolean, whether a web search would help the response
- "needs_calendar": boolean, whether calendar actions (scheduling) are involved`

// Analyze produces a structured analysis of one email. On any failure it
// returns the safe default: medium priority, response required, no context
// gathering, with the error recorded on the analysis.
func (c *Client) Analyze(ctx context.Context, email *types.Email) *types.Analysis {
	out, err := c.complete(ctx, analyzePrompt, emailHeader(email), 0.3, 800)
	if err != nil {
		return fallbackAnalysis(err)
	}

	var a types.Analysis
	if err := json.Unmarshal(extractJSON(out, '{'), &a); err != nil {
		return fallbackAnalysis(fmt.Errorf("malformed analysis: %w", err))
	}

	a.Priority = strings.ToLower(a.Priority)
	if !types.IsValidPriority(a.Priority) {
		a.Priority = types.PriorityMedium
	}
	if a.Sentiment == "" {
		a.Sentiment = "neutral"
	}
	return &a
}

// fallbackAnalysis is the deliberate safe default: under uncertainty, prefer
// a human-reviewable response path over silence.
func fallbackAnalysis(err error) *types.Analysis {
	return &types.Analysis{
		Summary:          "Error analyzing this email.",
		Intent:           "unknown",
		Questions:        []string{},
		Sentiment:        "neutral",
		Priority:         types.PriorityMedium,
		RequiresResponse: true,
		Err:              err.Error(),
	}
}

const replyPrompt = `You are an AI email assistant that drafts helpful, professional, and concise email replies.
Generate a complete reply to the original email using any additional context provided.
Address all questions from the original email, keep the reply concise, and end with an appropriate sign-off.
Respond with a JSON object containing exactly these fields:
- "subject": subject line for the reply
- "body": the full reply body
- "should_send": boolean, true only if the reply is safe to send without human review
- "follow_up_tasks": array of follow-up task descriptions (may be empty)`

// GenerateReply drafts a reply grounded in the analysis and any gathered
// context. On failure it returns a holding draft with should_send=false and
// a follow-up task flagging manual review.
func (c *Client) GenerateReply(
	ctx context.Context,
	email *types.Email,
	analysis *types.Analysis,
	thread []*types.Email,
	searchResults []types.SearchResult,
	calendarCtx *types.CalendarContext,
) *types.ReplyDraft {
	var b strings.Builder
	fmt.Fprintf(&b, "ORIGINAL EMAIL:\nFrom: %s\nSubject: %s\nBody:\n%s\n",
		email.Sender, email.Subject, email.BodyText)

	analysisJSON, _ := json.MarshalIndent(analysis, "", "  ")
	fmt.Fprintf(&b, "\nEMAIL ANALYSIS:\n%s\n", analysisJSON)

	if len(thread) > 0 {
		b.WriteString("\nPREVIOUS EMAILS IN THREAD:\n")
		for i, prev := range thread {
			body := prev.BodyText
			if len(body) > 500 {
				body = body[:500] + "..."
			}
			fmt.Fprintf(&b, "\nEmail %d:\nFrom: %s\nDate: %s\nSubject: %s\nBody:\n%s\n",
				i+1, prev.Sender, prev.ReceivedAt.Format(time.RFC3339), prev.Subject, body)
		}
	}

	if len(searchResults) > 0 {
		b.WriteString("\nWEB SEARCH RESULTS:\n")
		for i, r := range searchResults {
			fmt.Fprintf(&b, "\nResult %d:\nTitle: %s\nURL: %s\nSnippet: %s\n",
				i+1, r.Title, r.Link, r.Snippet)
		}
	}

	if calendarCtx != nil {
		slots, _ := json.Marshal(calendarCtx.AvailableSlots)
		meetings, _ := json.Marshal(calendarCtx.ExistingMeetings)
		fmt.Fprintf(&b, "\nCALENDAR INFORMATION:\nAvailable time slots: %s\nExisting meetings: %s\n",
			slots, meetings)
	}

	out, err := c.complete(ctx, replyPrompt, b.String(), 0.7, 1000)
	if err != nil {
		return fallbackReply(email, err)
	}

	var draft types.ReplyDraft
	if err := json.Unmarshal(extractJSON(out, '{'), &draft); err != nil {
		return fallbackReply(email, fmt.Errorf("malformed reply: %w", err))
	}
	if draft.Subject == "" {
		draft.Subject = "Re: " + email.Subject
	}
	return &draft
}

func fallbackReply(email *types.Email, err error) *types.ReplyDraft {
	return &types.ReplyDraft{
		Subject:       "Re: " + email.Subject,
		Body:          "I'll get back to you soon regarding your email.",
		ShouldSend:    false,
		FollowUpTasks: []string{"Review email manually due to error in generation"},
		Err:           err.Error(),
	}
}

const extractPrompt = `You are an AI assistant that extracts action items and tasks from emails.
Look for explicit requests, implied tasks, deadlines, and commitments.
Respond with a JSON object of this shape:
{
  "action_items": [
    {"description": "...", "deadline": "YYYY-MM-DD" or null, "priority": "high/medium/low",
     "assignee": "...", "requires_response": true/false, "status": "pending"}
  ],
  "calendar_items": [
    {"type": "meeting/deadline/reminder", "description": "...", "date": "YYYY-MM-DD",
     "start_time": "HH:MM" or null, "duration_minutes": 30 or null, "participants": ["..."]}
  ]
}
Use empty arrays when nothing is found.`

// ExtractActionItems pulls tasks and calendar items out of an email. On
// failure both lists are empty and the error is recorded.
func (c *Client) ExtractActionItems(ctx context.Context, email *types.Email) *types.Extraction {
	out, err := c.complete(ctx, extractPrompt, emailHeader(email), 0.3, 800)
	if err != nil {
		return &types.Extraction{Err: err.Error()}
	}

	var ex types.Extraction
	if err := json.Unmarshal(extractJSON(out, '{'), &ex); err != nil {
		return &types.Extraction{Err: fmt.Sprintf("malformed extraction: %v", err)}
	}
	return &ex
}

const detectEventsPrompt = `You are an AI assistant specialized in detecting calendar events in emails.
Identify mentions of meetings, appointments, calls, or deadlines with dates and times.
For each event provide: "type" (meeting, deadline, etc.), "description", "date" (YYYY-MM-DD),
"start_time" (HH:MM, 24-hour), "duration_minutes", "location", "participants".
Respond with a JSON array of event objects, or {"events": [...]}.
Return an empty array if no events are detected.`

// DetectCalendarEvents finds event mentions in an email. The model may
// answer with a bare array or an object with an "events" key; both shapes
// normalize to one list. Any other shape, and any failure, normalizes to
// empty.
func (c *Client) DetectCalendarEvents(ctx context.Context, email *types.Email) []types.CalendarEventCandidate {
	out, err := c.complete(ctx, detectEventsPrompt, emailHeader(email), 0.3, 800)
	if err != nil {
		return nil
	}
	return normalizeEvents(out)
}

func normalizeEvents(out string) []types.CalendarEventCandidate {
	trimmed := strings.TrimSpace(stripFences(out))

	if strings.HasPrefix(trimmed, "[") {
		var events []types.CalendarEventCandidate
		if err := json.Unmarshal(extractJSON(trimmed, '['), &events); err != nil {
			return nil
		}
		return events
	}

	var wrapped struct {
		Events []types.CalendarEventCandidate `json:"events"`
	}
	if err := json.Unmarshal(extractJSON(trimmed, '{'), &wrapped); err != nil {
		return nil
	}
	return wrapped.Events
}

// stripFences removes markdown code fences that models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimSuffix(s, "```")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

// extractJSON pulls the outermost JSON value opening with the given bracket
// out of surrounding prose.
func extractJSON(s string, open byte) []byte {
	s = stripFences(s)
	closing := byte('}')
	if open == '[' {
		closing = ']'
	}
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, closing)
	if start != -1 && end > start {
		return []byte(s[start : end+1])
	}
	return []byte(s)
}

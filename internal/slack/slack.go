// Package slack posts triage notifications via chat.postMessage.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mkarlin/mailpilot/internal/types"
)

const defaultBaseURL = "https://slack.com/api"

// maxBodyPreview bounds how much of the email body gets posted.
const maxBodyPreview = 500

// Client posts messages to a single Slack channel using a bot token.
type Client struct {
	token   string
	channel string
	baseURL string
	http    *http.Client
}

// New builds a Slack client for the given bot token and channel ID.
func New(token, channel string) *Client {
	return &Client{
		token:   token,
		channel: channel,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// NewWithBaseURL builds a client against a custom API endpoint.
func NewWithBaseURL(token, channel, baseURL string) *Client {
	c := New(token, channel)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type postMessageRequest struct {
	Channel string  `json:"channel"`
	Text    string  `json:"text"`
	Blocks  []block `json:"blocks,omitempty"`
}

type block struct {
	Type     string     `json:"type"`
	Text     *blockText `json:"text,omitempty"`
	Elements []button   `json:"elements,omitempty"`
}

type button struct {
	Type     string    `json:"type"`
	Text     blockText `json:"text"`
	URL      string    `json:"url,omitempty"`
	ActionID string    `json:"action_id,omitempty"`
}

type blockText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type postMessageResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	TS    string `json:"ts"`
}

// Notify posts a plain text message. Returns the message timestamp.
func (c *Client) Notify(ctx context.Context, text string) (string, error) {
	return c.post(ctx, postMessageRequest{Channel: c.channel, Text: text})
}

// NotifyAboutEmail posts a structured notification about an analyzed email.
func (c *Client) NotifyAboutEmail(ctx context.Context, email *types.Email, analysis *types.Analysis, items []types.ActionItem) (string, error) {
	title := priorityTitle(analysis.Priority)

	blocks := []block{
		{Type: "header", Text: &blockText{Type: "plain_text", Text: title}},
		{Type: "section", Text: &blockText{
			Type: "mrkdwn",
			Text: fmt.Sprintf("*From:* %s\n*Subject:* %s", email.Sender, email.Subject),
		}},
	}

	if analysis.Summary != "" {
		blocks = append(blocks, block{Type: "section", Text: &blockText{
			Type: "mrkdwn",
			Text: "*Summary:* " + analysis.Summary,
		}})
	}

	if len(items) > 0 {
		var b strings.Builder
		b.WriteString("*Action items:*")
		for _, item := range items {
			b.WriteString("\n• " + item.Description)
			if item.Deadline != "" {
				b.WriteString(" (due " + item.Deadline + ")")
			}
		}
		blocks = append(blocks, block{Type: "section", Text: &blockText{Type: "mrkdwn", Text: b.String()}})
	}

	if preview := truncate(email.BodyText, maxBodyPreview); preview != "" {
		blocks = append(blocks,
			block{Type: "divider"},
			block{Type: "section", Text: &blockText{Type: "mrkdwn", Text: "```" + preview + "```"}},
		)
	}

	if email.ID != "" {
		blocks = append(blocks, block{
			Type: "actions",
			Elements: []button{{
				Type:     "button",
				Text:     blockText{Type: "plain_text", Text: "Open in Gmail"},
				URL:      "https://mail.google.com/mail/u/0/#inbox/" + email.ID,
				ActionID: "open_email",
			}},
		})
	}

	return c.post(ctx, postMessageRequest{
		Channel: c.channel,
		Text:    fmt.Sprintf("%s: %s", title, email.Subject),
		Blocks:  blocks,
	})
}

func (c *Client) post(ctx context.Context, msg postMessageRequest) (string, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat.postMessage", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post slack message: %w", err)
	}
	defer resp.Body.Close()

	var result postMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode slack response: %w", err)
	}
	if !result.OK {
		return "", fmt.Errorf("slack API error: %s", result.Error)
	}
	return result.TS, nil
}

func priorityTitle(priority string) string {
	switch priority {
	case types.PriorityHigh:
		return "🔴 High Priority Email"
	case types.PriorityMedium:
		return "🟡 Medium Priority Email"
	default:
		return "📧 New Email"
	}
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

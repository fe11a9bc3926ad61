// Package gmail wraps the Gmail API for mailpilot.
//
// It converts API messages into types.Email snapshots, decoding bodies and
// collecting attachment metadata, and performs the mark-read, mark-important
// and reply operations the pipeline dispatches.
package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/k3a/html2text"
	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/mkarlin/mailpilot/internal/auth"
	"github.com/mkarlin/mailpilot/internal/types"
)

// Service wraps an authenticated Gmail API client.
type Service struct {
	svc    *gm.Service
	userID string
}

// New builds a Gmail service from an authenticated session.
func New(ctx context.Context, session *auth.Session) (*Service, error) {
	svc, err := gm.NewService(ctx, option.WithHTTPClient(session.Client))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return &Service{svc: svc, userID: "me"}, nil
}

// ListUnread returns up to limit unread inbox messages as full snapshots.
// Individual message fetch failures are skipped, not fatal.
func (s *Service) ListUnread(ctx context.Context, limit int) ([]*types.Email, error) {
	resp, err := s.svc.Users.Messages.List(s.userID).
		Q("is:unread in:inbox").
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list unread messages: %w", err)
	}

	emails := make([]*types.Email, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		email, err := s.Get(ctx, msg.Id)
		if err != nil {
			continue
		}
		emails = append(emails, email)
	}
	return emails, nil
}

// Get fetches a complete message by ID. Returns (nil, nil) when the message
// does not exist.
func (s *Service) Get(ctx context.Context, id string) (*types.Email, error) {
	msg, err := s.svc.Users.Messages.Get(s.userID, id).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return toEmail(msg), nil
}

// MarkRead removes the UNREAD label from a message.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	_, err := s.svc.Users.Messages.Modify(s.userID, id, &gm.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("mark read %s: %w", id, err)
	}
	return nil
}

// MarkImportant adds the IMPORTANT label to a message.
func (s *Service) MarkImportant(ctx context.Context, id string) error {
	_, err := s.svc.Users.Messages.Modify(s.userID, id, &gm.ModifyMessageRequest{
		AddLabelIds: []string{"IMPORTANT"},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("mark important %s: %w", id, err)
	}
	return nil
}

// Reply sends a plain-text reply on the original email's thread, setting
// In-Reply-To/References so clients keep the conversation together. Returns
// the sent message ID.
func (s *Service) Reply(ctx context.Context, original *types.Email, subject, body string) (string, error) {
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + original.Subject
	}

	var b strings.Builder
	fmt.Fprintf(&b, "To: %s\r\n", original.Sender)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	if original.MessageID != "" {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\n", original.MessageID)
		fmt.Fprintf(&b, "References: %s\r\n", original.MessageID)
	}
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)

	msg := &gm.Message{
		Raw:      base64.URLEncoding.EncodeToString([]byte(b.String())),
		ThreadId: original.ThreadID,
	}

	sent, err := s.svc.Users.Messages.Send(s.userID, msg).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("send reply to %s: %w", original.ID, err)
	}
	return sent.Id, nil
}

// toEmail converts a Gmail API message into a snapshot.
func toEmail(msg *gm.Message) *types.Email {
	headers := headerMap(msg.Payload.Headers)

	bodyText, bodyHTML := extractBodies(msg.Payload)
	if bodyText == "" && bodyHTML != "" {
		bodyText = html2text.HTML2Text(bodyHTML)
	}

	isRead, isImportant := true, false
	for _, l := range msg.LabelIds {
		switch l {
		case "UNREAD":
			isRead = false
		case "IMPORTANT":
			isImportant = true
		}
	}

	return &types.Email{
		ID:          msg.Id,
		ThreadID:    msg.ThreadId,
		MessageID:   headers["Message-ID"],
		Sender:      headers["From"],
		Recipients:  splitAddresses(headers["To"]),
		CC:          splitAddresses(headers["Cc"]),
		BCC:         splitAddresses(headers["Bcc"]),
		Subject:     defaultStr(headers["Subject"], "(no subject)"),
		BodyText:    bodyText,
		BodyHTML:    bodyHTML,
		ReceivedAt:  parseDate(headers["Date"], msg.InternalDate),
		IsRead:      isRead,
		IsImportant: isImportant,
		Attachments: extractAttachments(msg.Payload),
	}
}

// extractBodies walks the MIME tree collecting the first text/plain and
// text/html parts.
func extractBodies(payload *gm.MessagePart) (text, html string) {
	if payload == nil {
		return "", ""
	}

	var walk func(part *gm.MessagePart)
	walk = func(part *gm.MessagePart) {
		if part.Body != nil && part.Body.Data != "" {
			decoded, err := decodeBase64URL(part.Body.Data)
			if err == nil {
				switch {
				case part.MimeType == "text/plain" && text == "":
					text = decoded
				case part.MimeType == "text/html" && html == "":
					html = decoded
				case len(part.Parts) == 0 && part.MimeType == "" && text == "":
					text = decoded
				}
			}
		}
		for _, child := range part.Parts {
			walk(child)
		}
	}

	// Direct body on the payload itself.
	if payload.Body != nil && payload.Body.Data != "" && len(payload.Parts) == 0 {
		if decoded, err := decodeBase64URL(payload.Body.Data); err == nil {
			if payload.MimeType == "text/html" {
				return "", decoded
			}
			return decoded, ""
		}
	}

	walk(payload)
	return text, html
}

// extractAttachments collects attachment metadata from a message payload.
func extractAttachments(payload *gm.MessagePart) []types.Attachment {
	var attachments []types.Attachment

	var scan func(parts []*gm.MessagePart)
	scan = func(parts []*gm.MessagePart) {
		for _, part := range parts {
			if part.Filename != "" {
				att := types.Attachment{
					Filename:    part.Filename,
					ContentType: part.MimeType,
				}
				if part.Body != nil {
					att.Size = part.Body.Size
				}
				attachments = append(attachments, att)
			}
			if len(part.Parts) > 0 {
				scan(part.Parts)
			}
		}
	}

	if payload != nil && len(payload.Parts) > 0 {
		scan(payload.Parts)
	}
	return attachments
}

// headerMap converts Gmail API headers into a simple key-value map.
func headerMap(headers []*gm.MessagePartHeader) map[string]string {
	m := make(map[string]string, len(headers))
	for _, h := range headers {
		m[h.Name] = h.Value
	}
	return m
}

// decodeBase64URL decodes Gmail's base64url-encoded content.
func decodeBase64URL(data string) (string, error) {
	data = strings.ReplaceAll(data, "-", "+")
	data = strings.ReplaceAll(data, "_", "/")
	switch len(data) % 4 {
	case 2:
		data += "=="
	case 3:
		data += "="
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func splitAddresses(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	addrs := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			addrs = append(addrs, trimmed)
		}
	}
	return addrs
}

func parseDate(header string, internalMillis int64) time.Time {
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, "Mon, 2 Jan 2006 15:04:05 -0700", "2 Jan 2006 15:04:05 -0700"} {
		if t, err := time.Parse(layout, header); err == nil {
			return t.UTC()
		}
	}
	if internalMillis > 0 {
		return time.UnixMilli(internalMillis).UTC()
	}
	return time.Now().UTC()
}

func defaultStr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

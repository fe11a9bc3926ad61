// Package store provides SQLite persistence for mailpilot.
//
// Emails and threads are upserted; action records are append-only and form
// the audit trail that dedup checks run against.
package store

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mkarlin/mailpilot/internal/types"
	_ "modernc.org/sqlite"
)

// Store wraps a SQLite connection for mailpilot operations.
type Store struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) a mailpilot database at the given path.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Each pooled connection to :memory: would see its own empty database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if _, err := conn.Exec(Schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// GenID generates a random 16-character hex ID.
func GenID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05Z"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// --- Email operations ---

// SaveEmail upserts an email and its thread. The thread row is created on
// first sight and its updated_at advances with the email's received_at.
// Attachment metadata is recorded only when the email is first inserted.
func (s *Store) SaveEmail(e *types.Email) error {
	receivedAt := e.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var threadUpdated string
	err = tx.QueryRow("SELECT updated_at FROM threads WHERE id = ?", e.ThreadID).Scan(&threadUpdated)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.Exec(
			"INSERT INTO threads (id, subject, created_at, updated_at) VALUES (?, ?, ?, ?)",
			e.ThreadID, e.Subject, fmtTime(receivedAt), fmtTime(receivedAt),
		)
		if err != nil {
			return fmt.Errorf("insert thread: %w", err)
		}
	case err != nil:
		return fmt.Errorf("lookup thread: %w", err)
	default:
		// Only advance, never rewind.
		if parseTime(threadUpdated).Before(receivedAt) {
			if _, err := tx.Exec(
				"UPDATE threads SET updated_at = ? WHERE id = ?",
				fmtTime(receivedAt), e.ThreadID,
			); err != nil {
				return fmt.Errorf("update thread: %w", err)
			}
		}
	}

	var exists int
	err = tx.QueryRow("SELECT 1 FROM emails WHERE id = ?", e.ID).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("lookup email: %w", err)
	}

	if err == sql.ErrNoRows {
		_, err = tx.Exec(`
			INSERT INTO emails
				(id, thread_id, message_id, sender, recipients, cc, bcc,
				 subject, body_text, body_html, received_at, is_read, is_important)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.ThreadID, nullStr(e.MessageID), e.Sender,
			jsonList(e.Recipients), jsonListOrNull(e.CC), jsonListOrNull(e.BCC),
			e.Subject, e.BodyText, nullStr(e.BodyHTML),
			fmtTime(receivedAt), boolInt(e.IsRead), boolInt(e.IsImportant),
		)
		if err != nil {
			return fmt.Errorf("insert email: %w", err)
		}

		for _, a := range e.Attachments {
			if _, err := tx.Exec(
				"INSERT INTO attachments (email_id, filename, content_type, size) VALUES (?, ?, ?, ?)",
				e.ID, a.Filename, a.ContentType, a.Size,
			); err != nil {
				return fmt.Errorf("insert attachment: %w", err)
			}
		}
	} else {
		_, err = tx.Exec(
			"UPDATE emails SET is_read = ?, is_important = ? WHERE id = ?",
			boolInt(e.IsRead), boolInt(e.IsImportant), e.ID,
		)
		if err != nil {
			return fmt.Errorf("update email: %w", err)
		}
	}

	return tx.Commit()
}

// GetEmail returns an email by ID, or nil if not found.
func (s *Store) GetEmail(id string) (*types.Email, error) {
	row := s.conn.QueryRow(`
		SELECT id, thread_id, message_id, sender, recipients, cc, bcc,
		       subject, body_text, body_html, received_at, is_read, is_important
		FROM emails WHERE id = ?`, id)
	e, err := scanEmail(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ThreadEmails returns all emails in a thread, ordered ascending by
// received_at.
func (s *Store) ThreadEmails(threadID string) ([]*types.Email, error) {
	rows, err := s.conn.Query(`
		SELECT id, thread_id, message_id, sender, recipients, cc, bcc,
		       subject, body_text, body_html, received_at, is_read, is_important
		FROM emails
		WHERE thread_id = ?
		ORDER BY received_at ASC`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*types.Email
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// GetThread returns a thread by ID, or nil if not found.
func (s *Store) GetThread(id string) (*types.Thread, error) {
	t := &types.Thread{}
	var created, updated string
	err := s.conn.QueryRow(
		"SELECT id, subject, created_at, updated_at FROM threads WHERE id = ?", id,
	).Scan(&t.ID, &t.Subject, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return t, nil
}

// MarkRead flags an email as read.
func (s *Store) MarkRead(emailID string) error {
	_, err := s.conn.Exec("UPDATE emails SET is_read = 1 WHERE id = ?", emailID)
	return err
}

// MarkImportant flags an email as important or not important.
func (s *Store) MarkImportant(emailID string, important bool) error {
	_, err := s.conn.Exec("UPDATE emails SET is_important = ? WHERE id = ?", boolInt(important), emailID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmail(row rowScanner) (*types.Email, error) {
	e := &types.Email{}
	var msgID, cc, bcc, bodyHTML sql.NullString
	var recipients, receivedAt string
	var isRead, isImportant int
	if err := row.Scan(
		&e.ID, &e.ThreadID, &msgID, &e.Sender, &recipients, &cc, &bcc,
		&e.Subject, &e.BodyText, &bodyHTML, &receivedAt, &isRead, &isImportant,
	); err != nil {
		return nil, err
	}
	e.MessageID = msgID.String
	e.Recipients = parseList(recipients)
	e.CC = parseList(cc.String)
	e.BCC = parseList(bcc.String)
	e.BodyHTML = bodyHTML.String
	e.ReceivedAt = parseTime(receivedAt)
	e.IsRead = isRead == 1
	e.IsImportant = isImportant == 1
	return e, nil
}

// --- Action operations ---

// SaveAction appends an action record. Records are never updated or
// deleted afterwards.
func (s *Store) SaveAction(a *types.ActionRecord) error {
	if a.ID == "" {
		a.ID = GenID()
	}
	if a.PerformedAt.IsZero() {
		a.PerformedAt = time.Now().UTC()
	}
	_, err := s.conn.Exec(`
		INSERT INTO email_actions
			(id, email_id, action_type, action_data, dedup_key, is_success, error_message, performed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.EmailID, a.ActionType, nullStr(a.ActionData), nullStr(a.DedupKey),
		boolInt(a.IsSuccess), nullStr(a.ErrorMessage), fmtTime(a.PerformedAt),
	)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

// ActionsForEmail returns all actions recorded for an email, ordered by
// performed_at.
func (s *Store) ActionsForEmail(emailID string) ([]*types.ActionRecord, error) {
	rows, err := s.conn.Query(`
		SELECT id, email_id, action_type, action_data, dedup_key, is_success, error_message, performed_at
		FROM email_actions
		WHERE email_id = ?
		ORDER BY performed_at ASC`, emailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*types.ActionRecord
	for rows.Next() {
		a := &types.ActionRecord{}
		var data, dedup, errMsg sql.NullString
		var success int
		var performed string
		if err := rows.Scan(&a.ID, &a.EmailID, &a.ActionType, &data, &dedup, &success, &errMsg, &performed); err != nil {
			return nil, err
		}
		a.ActionData = data.String
		a.DedupKey = dedup.String
		a.IsSuccess = success == 1
		a.ErrorMessage = errMsg.String
		a.PerformedAt = parseTime(performed)
		result = append(result, a)
	}
	return result, rows.Err()
}

// HasSuccessfulAction reports whether a successful action with the given
// dedup key already exists for the email. Used to keep side effects
// at-most-once across reruns.
func (s *Store) HasSuccessfulAction(emailID, actionType, dedupKey string) (bool, error) {
	var n int
	err := s.conn.QueryRow(`
		SELECT COUNT(*) FROM email_actions
		WHERE email_id = ? AND action_type = ? AND dedup_key = ? AND is_success = 1`,
		emailID, actionType, dedupKey,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ActionCountByType returns action counts grouped by type.
func (s *Store) ActionCountByType() (map[string]int, error) {
	rows, err := s.conn.Query("SELECT action_type, COUNT(*) FROM email_actions GROUP BY action_type")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

// EmailCount returns the total number of stored emails.
func (s *Store) EmailCount() int {
	var n int
	s.conn.QueryRow("SELECT COUNT(*) FROM emails").Scan(&n)
	return n
}

// ThreadCount returns the total number of stored threads.
func (s *Store) ThreadCount() int {
	var n int
	s.conn.QueryRow("SELECT COUNT(*) FROM threads").Scan(&n)
	return n
}

// --- Preference operations ---

// SetPreference stores a user preference, overwriting any previous value.
func (s *Store) SetPreference(key, value string) error {
	_, err := s.conn.Exec(`
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// GetPreference returns a stored preference or the fallback if unset.
func (s *Store) GetPreference(key, fallback string) string {
	var v sql.NullString
	err := s.conn.QueryRow("SELECT value FROM preferences WHERE key = ?", key).Scan(&v)
	if err != nil || !v.Valid {
		return fallback
	}
	return v.String
}

// --- helpers ---

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func jsonList(list []string) string {
	if list == nil {
		list = []string{}
	}
	b, _ := json.Marshal(list)
	return string(b)
}

func jsonListOrNull(list []string) any {
	if len(list) == 0 {
		return nil
	}
	return jsonList(list)
}

func parseList(s string) []string {
	if s == "" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(s), &list); err != nil {
		return nil
	}
	if len(list) == 0 {
		return nil
	}
	return list
}

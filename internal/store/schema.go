package store

// Schema is the DDL for the mailpilot database.
const Schema = `
CREATE TABLE IF NOT EXISTS threads (
    id          TEXT PRIMARY KEY,
    subject     TEXT,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS emails (
    id           TEXT PRIMARY KEY,
    thread_id    TEXT NOT NULL,
    message_id   TEXT,
    sender       TEXT NOT NULL,
    recipients   TEXT NOT NULL,
    cc           TEXT,
    bcc          TEXT,
    subject      TEXT,
    body_text    TEXT,
    body_html    TEXT,
    received_at  TEXT NOT NULL,
    is_read      INTEGER DEFAULT 0,
    is_important INTEGER DEFAULT 0,
    FOREIGN KEY (thread_id) REFERENCES threads(id)
);

CREATE TABLE IF NOT EXISTS attachments (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    email_id     TEXT NOT NULL,
    filename     TEXT NOT NULL,
    content_type TEXT NOT NULL,
    size         INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (email_id) REFERENCES emails(id)
);

CREATE TABLE IF NOT EXISTS email_actions (
    id            TEXT PRIMARY KEY,
    email_id      TEXT NOT NULL,
    action_type   TEXT NOT NULL,
    action_data   TEXT,
    dedup_key     TEXT,
    is_success    INTEGER DEFAULT 1,
    error_message TEXT,
    performed_at  TEXT NOT NULL,
    FOREIGN KEY (email_id) REFERENCES emails(id)
);

CREATE TABLE IF NOT EXISTS preferences (
    id     INTEGER PRIMARY KEY AUTOINCREMENT,
    key    TEXT NOT NULL UNIQUE,
    value  TEXT
);

CREATE INDEX IF NOT EXISTS idx_emails_thread ON emails(thread_id);
CREATE INDEX IF NOT EXISTS idx_emails_received ON emails(received_at DESC);
CREATE INDEX IF NOT EXISTS idx_actions_email ON email_actions(email_id);
CREATE INDEX IF NOT EXISTS idx_actions_dedup ON email_actions(email_id, action_type, dedup_key);
`

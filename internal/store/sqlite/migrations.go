package sqlite

// migration is one schema step, applied in version order.
type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS gmail_tokens (
	user_id       TEXT PRIMARY KEY,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	token_expiry  INTEGER NOT NULL,
	email         TEXT NOT NULL,
	updated_at    INTEGER NOT NULL
);

-- Keyed on the provider message id alone. Two users linking the same
-- mailbox share rows and the last sync re-tags them.
CREATE TABLE IF NOT EXISTS gmail_messages (
	id           TEXT PRIMARY KEY,
	thread_id    TEXT NOT NULL,
	subject      TEXT,
	from_email   TEXT NOT NULL,
	from_name    TEXT,
	snippet      TEXT,
	body_preview TEXT,
	received_at  INTEGER NOT NULL,
	is_read      INTEGER NOT NULL DEFAULT 0,
	labels       TEXT NOT NULL DEFAULT '[]',
	user_id      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_gmail_messages_user_received
	ON gmail_messages (user_id, received_at DESC);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}

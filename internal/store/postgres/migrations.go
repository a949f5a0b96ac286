package postgres

// schema is applied idempotently by Migrate.
const schema = `
CREATE TABLE IF NOT EXISTS gmail_tokens (
	user_id       TEXT PRIMARY KEY,
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	token_expiry  TIMESTAMPTZ NOT NULL,
	email         TEXT NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
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
	received_at  TIMESTAMPTZ NOT NULL,
	is_read      BOOLEAN NOT NULL DEFAULT FALSE,
	labels       TEXT[] NOT NULL DEFAULT '{}',
	user_id      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_gmail_messages_user_received
	ON gmail_messages (user_id, received_at DESC);
`

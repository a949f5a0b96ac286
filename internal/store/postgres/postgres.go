// Package postgres implements store.Store on PostgreSQL through a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teemow/inboxpanel/internal/model"
	"github.com/teemow/inboxpanel/internal/store"
)

// Store implements store.Store using pgxpool.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// Open creates a pool for connString and verifies connectivity.
func Open(ctx context.Context, connString string) (*Store, error) {
	if connString == "" {
		return nil, fmt.Errorf("database url not configured")
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases every pooled connection.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the tables and indexes when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

// GetCredential returns the user's credential or store.ErrNotFound.
func (s *Store) GetCredential(ctx context.Context, userID string) (*model.Credential, error) {
	var c model.Credential
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, access_token, refresh_token, token_expiry, email, updated_at
		FROM gmail_tokens WHERE user_id = $1`, userID,
	).Scan(&c.UserID, &c.AccessToken, &c.RefreshToken, &c.TokenExpiry, &c.Email, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}
	c.TokenExpiry = c.TokenExpiry.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

// UpsertCredential replaces the credential row for cred.UserID.
func (s *Store) UpsertCredential(ctx context.Context, cred *model.Credential) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO gmail_tokens (user_id, access_token, refresh_token, token_expiry, email, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry = EXCLUDED.token_expiry,
			email = EXCLUDED.email,
			updated_at = EXCLUDED.updated_at`,
		cred.UserID, cred.AccessToken, cred.RefreshToken, cred.TokenExpiry, cred.Email, cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting credential: %w", err)
	}
	return nil
}

// DeleteCredential removes the user's credential.
func (s *Store) DeleteCredential(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM gmail_tokens WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	return nil
}

// ListCredentialUserIDs returns every user with a linked account.
func (s *Store) ListCredentialUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT user_id FROM gmail_tokens ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("listing credential users: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("listing credential users: %w", err)
	}
	return ids, nil
}

const upsertMessageSQL = `
	INSERT INTO gmail_messages (
		id, thread_id, subject, from_email, from_name, snippet, body_preview,
		received_at, is_read, labels, user_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (id) DO UPDATE SET
		thread_id = EXCLUDED.thread_id,
		subject = EXCLUDED.subject,
		from_email = EXCLUDED.from_email,
		from_name = EXCLUDED.from_name,
		snippet = EXCLUDED.snippet,
		body_preview = EXCLUDED.body_preview,
		received_at = EXCLUDED.received_at,
		is_read = EXCLUDED.is_read,
		labels = EXCLUDED.labels,
		user_id = EXCLUDED.user_id`

// UpsertMessages replaces each message row keyed on id inside one transaction.
func (s *Store) UpsertMessages(ctx context.Context, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, m := range msgs {
			labels := m.Labels
			if labels == nil {
				labels = []string{}
			}
			batch.Queue(upsertMessageSQL,
				m.ID, m.ThreadID, m.Subject, m.FromEmail, m.FromName, m.Snippet, m.BodyPreview,
				m.ReceivedAt, m.IsRead, labels, m.UserID,
			)
		}

		results := tx.SendBatch(ctx, batch)
		for _, m := range msgs {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("upserting message %s: %w", m.ID, err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("closing batch: %w", err)
		}
		return nil
	})
}

const selectMessageSQL = `
	SELECT id, thread_id, subject, from_email, from_name, snippet, body_preview,
	       received_at, is_read, labels, user_id
	FROM gmail_messages`

func scanMessage(row pgx.CollectableRow) (model.Message, error) {
	var m model.Message
	err := row.Scan(
		&m.ID, &m.ThreadID, &m.Subject, &m.FromEmail, &m.FromName, &m.Snippet, &m.BodyPreview,
		&m.ReceivedAt, &m.IsRead, &m.Labels, &m.UserID,
	)
	m.ReceivedAt = m.ReceivedAt.UTC()
	return m, err
}

// ListMessages returns up to limit messages for the user, newest first.
func (s *Store) ListMessages(ctx context.Context, userID string, limit int) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx,
		selectMessageSQL+` WHERE user_id = $1 ORDER BY received_at DESC, id DESC LIMIT $2`,
		userID, store.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, scanMessage)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return msgs, nil
}

// LatestMessage returns the user's most recent message or store.ErrNotFound.
func (s *Store) LatestMessage(ctx context.Context, userID string) (*model.Message, error) {
	rows, err := s.pool.Query(ctx,
		selectMessageSQL+` WHERE user_id = $1 ORDER BY received_at DESC, id DESC LIMIT 1`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying latest message: %w", err)
	}
	m, err := pgx.CollectOneRow(rows, scanMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest message: %w", err)
	}
	return &m, nil
}

// DeleteMessages removes every message owned by the user.
func (s *Store) DeleteMessages(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM gmail_messages WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}
	return nil
}

// Package sqlite implements store.Store on an embedded SQLite database.
// It backs local runs and the package tests.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/teemow/inboxpanel/internal/model"
	"github.com/teemow/inboxpanel/internal/store"
)

// Store implements store.Store using sqlx over modernc.org/sqlite.
type Store struct {
	db *sqlx.DB
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database at dsn. Call Migrate before use.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Every connection to ":memory:" is a separate database, and SQLite
	// serialises writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies any outstanding schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	current := 0

	var tableCount int
	err := s.db.GetContext(ctx, &tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := s.db.GetContext(ctx, &current, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

type credentialRow struct {
	UserID       string `db:"user_id"`
	AccessToken  string `db:"access_token"`
	RefreshToken string `db:"refresh_token"`
	TokenExpiry  int64  `db:"token_expiry"`
	Email        string `db:"email"`
	UpdatedAt    int64  `db:"updated_at"`
}

func (r credentialRow) toModel() *model.Credential {
	return &model.Credential{
		UserID:       r.UserID,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenExpiry:  time.UnixMilli(r.TokenExpiry).UTC(),
		Email:        r.Email,
		UpdatedAt:    time.UnixMilli(r.UpdatedAt).UTC(),
	}
}

// GetCredential returns the user's credential or store.ErrNotFound.
func (s *Store) GetCredential(ctx context.Context, userID string) (*model.Credential, error) {
	var row credentialRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, access_token, refresh_token, token_expiry, email, updated_at
		FROM gmail_tokens WHERE user_id = ?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}
	return row.toModel(), nil
}

// UpsertCredential replaces the credential row for cred.UserID.
func (s *Store) UpsertCredential(ctx context.Context, cred *model.Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gmail_tokens (user_id, access_token, refresh_token, token_expiry, email, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expiry = excluded.token_expiry,
			email = excluded.email,
			updated_at = excluded.updated_at`,
		cred.UserID, cred.AccessToken, cred.RefreshToken,
		cred.TokenExpiry.UnixMilli(), cred.Email, cred.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upserting credential: %w", err)
	}
	return nil
}

// DeleteCredential removes the user's credential. Missing rows are not an error.
func (s *Store) DeleteCredential(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM gmail_tokens WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	return nil
}

// ListCredentialUserIDs returns every user with a linked account.
func (s *Store) ListCredentialUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids, "SELECT user_id FROM gmail_tokens ORDER BY user_id"); err != nil {
		return nil, fmt.Errorf("listing credential users: %w", err)
	}
	return ids, nil
}

type messageRow struct {
	ID          string         `db:"id"`
	ThreadID    string         `db:"thread_id"`
	Subject     sql.NullString `db:"subject"`
	FromEmail   string         `db:"from_email"`
	FromName    sql.NullString `db:"from_name"`
	Snippet     sql.NullString `db:"snippet"`
	BodyPreview sql.NullString `db:"body_preview"`
	ReceivedAt  int64          `db:"received_at"`
	IsRead      bool           `db:"is_read"`
	Labels      string         `db:"labels"`
	UserID      string         `db:"user_id"`
}

func (r messageRow) toModel() (model.Message, error) {
	var labels []string
	if err := json.Unmarshal([]byte(r.Labels), &labels); err != nil {
		return model.Message{}, fmt.Errorf("decoding labels for message %s: %w", r.ID, err)
	}
	return model.Message{
		ID:          r.ID,
		ThreadID:    r.ThreadID,
		Subject:     nullToPtr(r.Subject),
		FromEmail:   r.FromEmail,
		FromName:    nullToPtr(r.FromName),
		Snippet:     nullToPtr(r.Snippet),
		BodyPreview: nullToPtr(r.BodyPreview),
		ReceivedAt:  time.UnixMilli(r.ReceivedAt).UTC(),
		IsRead:      r.IsRead,
		Labels:      labels,
		UserID:      r.UserID,
	}, nil
}

const selectMessageColumns = `
	SELECT id, thread_id, subject, from_email, from_name, snippet, body_preview,
	       received_at, is_read, labels, user_id
	FROM gmail_messages`

// UpsertMessages replaces each message row keyed on id inside one transaction.
func (s *Store) UpsertMessages(ctx context.Context, msgs []model.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO gmail_messages (
			id, thread_id, subject, from_email, from_name, snippet, body_preview,
			received_at, is_read, labels, user_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			thread_id = excluded.thread_id,
			subject = excluded.subject,
			from_email = excluded.from_email,
			from_name = excluded.from_name,
			snippet = excluded.snippet,
			body_preview = excluded.body_preview,
			received_at = excluded.received_at,
			is_read = excluded.is_read,
			labels = excluded.labels,
			user_id = excluded.user_id`)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		labels := m.Labels
		if labels == nil {
			labels = []string{}
		}
		labelJSON, err := json.Marshal(labels)
		if err != nil {
			return fmt.Errorf("encoding labels for message %s: %w", m.ID, err)
		}

		_, err = stmt.ExecContext(ctx,
			m.ID, m.ThreadID, ptrToNull(m.Subject), m.FromEmail, ptrToNull(m.FromName),
			ptrToNull(m.Snippet), ptrToNull(m.BodyPreview),
			m.ReceivedAt.UnixMilli(), m.IsRead, string(labelJSON), m.UserID,
		)
		if err != nil {
			return fmt.Errorf("upserting message %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing messages: %w", err)
	}
	return nil
}

// ListMessages returns up to limit messages for the user, newest first.
func (s *Store) ListMessages(ctx context.Context, userID string, limit int) ([]model.Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows,
		selectMessageColumns+` WHERE user_id = ? ORDER BY received_at DESC, id DESC LIMIT ?`,
		userID, store.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	msgs := make([]model.Message, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// LatestMessage returns the user's most recent message or store.ErrNotFound.
func (s *Store) LatestMessage(ctx context.Context, userID string) (*model.Message, error) {
	var row messageRow
	err := s.db.GetContext(ctx, &row,
		selectMessageColumns+` WHERE user_id = ? ORDER BY received_at DESC, id DESC LIMIT 1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest message: %w", err)
	}
	m, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// DeleteMessages removes every message owned by the user.
func (s *Store) DeleteMessages(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM gmail_messages WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}
	return nil
}

func nullToPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func ptrToNull(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

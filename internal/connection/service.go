// Package connection links, inspects and unlinks a user's Gmail account.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/teemow/inboxpanel/internal/google"
	"github.com/teemow/inboxpanel/internal/instrumentation"
	"github.com/teemow/inboxpanel/internal/logging"
	"github.com/teemow/inboxpanel/internal/model"
)

// ErrSaveCredential wraps a failure to persist the credential after a
// successful code exchange.
var ErrSaveCredential = errors.New("failed to save credential")

// OAuth is the part of the Google client the link flow uses.
type OAuth interface {
	AuthorizationURL(redirectURI string) (string, error)
	ExchangeCode(ctx context.Context, code, redirectURI string) (*google.TokenSet, error)
	FetchAccountEmail(ctx context.Context, accessToken string) (string, error)
}

// Store is the persistence the link flow uses.
type Store interface {
	GetCredential(ctx context.Context, userID string) (*model.Credential, error)
	UpsertCredential(ctx context.Context, cred *model.Credential) error
	DeleteCredential(ctx context.Context, userID string) error
	DeleteMessages(ctx context.Context, userID string) error
}

// Config holds the optional collaborators of a Service.
type Config struct {
	Audit   *instrumentation.AuditLogger
	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Service manages a user's Gmail connection.
type Service struct {
	store   Store
	oauth   OAuth
	audit   *instrumentation.AuditLogger
	metrics *instrumentation.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewService returns a Service backed by st and oauth.
func NewService(st Store, oauth OAuth, cfg Config) *Service {
	s := &Service{
		store:   st,
		oauth:   oauth,
		audit:   cfg.Audit,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Connect returns the consent URL. It fails with google.ErrConfiguration
// when the OAuth client id or secret is missing.
func (s *Service) Connect(redirectURI string) (string, error) {
	url, err := s.oauth.AuthorizationURL(redirectURI)
	if err != nil {
		s.logger.Error("failed to build authorization url", logging.Err(err))
		return "", err
	}
	return url, nil
}

// Callback completes the link: it exchanges code, looks up the account
// address and stores the credential, replacing any previous one.
func (s *Service) Callback(ctx context.Context, userID, code, redirectURI string) (err error) {
	event := instrumentation.NewConnectionEvent(instrumentation.ActionCallback, userID).WithSpanContext(ctx)
	defer func() {
		s.audit.Log(event.Complete(err))
		result := instrumentation.OAuthResultSuccess
		if err != nil {
			result = instrumentation.OAuthResultFailure
		}
		s.metrics.RecordOAuthAuth(ctx, result)
	}()

	tokens, err := s.oauth.ExchangeCode(ctx, code, redirectURI)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	email, err := s.oauth.FetchAccountEmail(ctx, tokens.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to look up account email: %w", err)
	}
	event.WithEmail(email)

	now := s.now()
	cred := &model.Credential{
		UserID:       userID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenExpiry:  now.Add(tokens.ExpiresIn),
		Email:        email,
		UpdatedAt:    now,
	}
	if err := s.store.UpsertCredential(ctx, cred); err != nil {
		return fmt.Errorf("%w: %w", ErrSaveCredential, err)
	}
	return nil
}

// Disconnect removes the credential, then the user's synced messages. The
// two deletes are not atomic; a failure between them leaves messages behind.
func (s *Service) Disconnect(ctx context.Context, userID string) (err error) {
	event := instrumentation.NewConnectionEvent(instrumentation.ActionDisconnect, userID).WithSpanContext(ctx)
	defer func() { s.audit.Log(event.Complete(err)) }()

	if err := s.store.DeleteCredential(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if err := s.store.DeleteMessages(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

// Status reports whether the user has a linked account. Any lookup failure,
// including a missing row, reads as not connected.
func (s *Service) Status(ctx context.Context, userID string) model.Status {
	cred, err := s.store.GetCredential(ctx, userID)
	if err != nil {
		return model.Status{}
	}
	return model.StatusFromCredential(cred)
}

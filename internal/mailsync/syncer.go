package mailsync

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
	"github.com/teemow/inboxpanel/internal/store"
)

// ErrNotConnected is returned when the user has no linked account.
var ErrNotConnected = errors.New("gmail not connected")

// TokenRefresher exchanges a refresh token for a new access token.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*google.TokenSet, error)
}

// MailboxFetcher loads the newest inbox messages for an access token.
type MailboxFetcher interface {
	FetchRecentMessages(ctx context.Context, accessToken string, maxResults int64) ([]model.Message, error)
}

// Store is the persistence a sync needs.
type Store interface {
	GetCredential(ctx context.Context, userID string) (*model.Credential, error)
	UpsertCredential(ctx context.Context, cred *model.Credential) error
	UpsertMessages(ctx context.Context, msgs []model.Message) error
}

// Config tunes a Syncer. Zero values are usable.
type Config struct {
	// MaxResults bounds how many inbox messages one sync looks at.
	MaxResults int64
	Metrics    *instrumentation.Metrics
	Logger     *slog.Logger
	// Now is the clock used for expiry checks. Defaults to time.Now.
	Now func() time.Time
}

// Syncer runs request-triggered inbox syncs.
type Syncer struct {
	store      Store
	oauth      TokenRefresher
	mailbox    MailboxFetcher
	maxResults int64
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewSyncer returns a Syncer that refreshes tokens through oauth and reads mail through mailbox.
func NewSyncer(st Store, oauth TokenRefresher, mailbox MailboxFetcher, cfg Config) *Syncer {
	s := &Syncer{
		store:      st,
		oauth:      oauth,
		mailbox:    mailbox,
		maxResults: cfg.MaxResults,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Sync pulls the user's recent inbox and returns how many messages were
// written. It returns ErrNotConnected when there is no linked account.
func (s *Syncer) Sync(ctx context.Context, userID string) (int, error) {
	return s.Run(ctx, userID, instrumentation.TriggerRequest)
}

// Run is Sync with the trigger recorded in metrics and logs.
func (s *Syncer) Run(ctx context.Context, userID, trigger string) (int, error) {
	ctx, span := instrumentation.StartSyncSpan(ctx, userID, trigger)
	defer span.End()

	start := time.Now()
	logger := logging.WithUser(logging.WithOperation(s.logger, "mailbox.sync"), userID)

	n, refreshed, err := s.sync(ctx, userID)
	span.SetAttributes(instrumentation.NewSpanAttributeBuilder().
		WithMessageCount(n).
		WithRefreshed(refreshed).
		Build()...)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
		if errors.Is(err, ErrNotConnected) {
			logger.Debug("sync skipped, account not linked", logging.Trigger(trigger))
		} else {
			logger.Warn("sync failed", logging.Trigger(trigger), logging.Err(err))
		}
	} else {
		instrumentation.SetSpanSuccess(span)
		logger.Info("sync finished", logging.Trigger(trigger), logging.Count(n))
	}
	s.metrics.RecordSync(ctx, trigger, status, userID, n, time.Since(start))

	return n, err
}

func (s *Syncer) sync(ctx context.Context, userID string) (n int, refreshed bool, err error) {
	cred, err := s.store.GetCredential(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, ErrNotConnected
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load credential: %w", err)
	}

	now := s.now()
	if cred.Expired(now) {
		cred, err = s.refresh(ctx, cred, now)
		if err != nil {
			return 0, false, err
		}
		refreshed = true
	}

	msgs, err := s.mailbox.FetchRecentMessages(ctx, cred.AccessToken, s.maxResults)
	if err != nil {
		return 0, refreshed, fmt.Errorf("failed to fetch inbox: %w", err)
	}

	for i := range msgs {
		msgs[i].UserID = userID
	}

	if err := s.store.UpsertMessages(ctx, msgs); err != nil {
		return 0, refreshed, fmt.Errorf("failed to store messages: %w", err)
	}
	return len(msgs), refreshed, nil
}

// refresh renews the access token and persists it. The refresh token and
// account email are carried over unchanged. Nothing is written on failure.
func (s *Syncer) refresh(ctx context.Context, cred *model.Credential, now time.Time) (*model.Credential, error) {
	ts, err := s.oauth.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh access token: %w", err)
	}

	expiry := now.Add(ts.ExpiresIn)
	if ts.ExpiresIn == 0 && !ts.Expiry.IsZero() {
		expiry = ts.Expiry
	}

	updated := &model.Credential{
		UserID:       cred.UserID,
		AccessToken:  ts.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenExpiry:  expiry,
		Email:        cred.Email,
		UpdatedAt:    now,
	}
	if err := s.store.UpsertCredential(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to save refreshed token: %w", err)
	}
	return updated, nil
}

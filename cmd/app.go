package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxpanel/internal/config"
	"github.com/teemow/inboxpanel/internal/gmail"
	"github.com/teemow/inboxpanel/internal/google"
	"github.com/teemow/inboxpanel/internal/instrumentation"
	"github.com/teemow/inboxpanel/internal/logging"
	"github.com/teemow/inboxpanel/internal/mailsync"
	"github.com/teemow/inboxpanel/internal/store"
	"github.com/teemow/inboxpanel/internal/store/postgres"
	"github.com/teemow/inboxpanel/internal/store/sqlite"
)

// app holds the dependencies shared by every command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider *instrumentation.Provider
	store    store.Store
	oauth    *google.OAuthClient
	mailbox  *gmail.Client
	syncer   *mailsync.Syncer
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	provider, err := instrumentation.NewProvider(ctx, cfg.Instrumentation(version))
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	metrics := provider.Metrics()

	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, err
	}

	oauth := google.NewOAuthClient(google.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		Metrics:      metrics,
	})
	mailbox := gmail.NewClient(gmail.Config{
		Metrics: metrics,
		Logger:  logger,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		provider: provider,
		store:    st,
		oauth:    oauth,
		mailbox:  mailbox,
		syncer: mailsync.NewSyncer(st, oauth, mailbox, mailsync.Config{
			MaxResults: cfg.Sync.MaxResults,
			Metrics:    metrics,
			Logger:     logger,
		}),
	}, nil
}

// close releases the store and flushes telemetry.
func (a *app) close(ctx context.Context) {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store", logging.Err(err))
	}
	if err := a.provider.Shutdown(ctx); err != nil {
		a.logger.Warn("failed to shut down instrumentation", logging.Err(err))
	}
}

func openStore(ctx context.Context, db config.DatabaseConfig) (store.Store, error) {
	driver, err := store.NormalizeDriver(db.Driver)
	if err != nil {
		return nil, err
	}

	switch driver {
	case store.DriverPostgres:
		st, err := postgres.Open(ctx, db.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return st, nil
	default:
		st, err := sqlite.Open(db.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return st, nil
	}
}

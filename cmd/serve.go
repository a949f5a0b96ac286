package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/inboxpanel/internal/connection"
	"github.com/teemow/inboxpanel/internal/instrumentation"
	"github.com/teemow/inboxpanel/internal/logging"
	"github.com/teemow/inboxpanel/internal/mailsync"
	"github.com/teemow/inboxpanel/internal/notify"
	"github.com/teemow/inboxpanel/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server that links Gmail accounts, serves stored messages
and streams new-mail notifications.

Required settings:
  SESSION_SECRET              HMAC key for session tokens
  GOOGLE_CLIENT_ID            OAuth client id (linking is disabled without it)
  GOOGLE_CLIENT_SECRET        OAuth client secret

The OAuth redirect URI registered with Google must be
<base-url>/api/gmail/callback.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	cmd.Flags().String("addr", "", "HTTP listen address (HTTP_ADDR, default :8080)")
	cmd.Flags().String("base-url", "", "Public base URL used to build the OAuth redirect URI (BASE_URL)")
	cmd.Flags().String("metrics-addr", "", "Metrics listen address (METRICS_ADDR, default :9090)")
	cmd.Flags().String("sync-schedule", "", "Cron expression for background sync of every linked user, e.g. \"@every 15m\" (SYNC_SCHEDULE)")

	return cmd
}

func runServe(cmd *cobra.Command) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		a.close(shutdownCtx)
	}()

	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !cfg.OAuthConfigured() {
		a.logger.Warn("google oauth client is not configured, account linking is disabled")
	}
	if logging.ParseLevel(cfg.Log.Level) > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := a.store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate store: %w", err)
	}

	metrics := a.provider.Metrics()
	inst := cfg.Instrumentation(version)
	health := server.NewHealthChecker(a.store)

	srv := server.New(server.Options{
		Addr: cfg.HTTP.Addr,
		Linker: connection.NewService(a.store, a.oauth, connection.Config{
			Audit:   instrumentation.NewAuditLoggerWithConfig(a.logger, inst.AuditLogging),
			Metrics: metrics,
			Logger:  a.logger,
		}),
		Syncer:   a.syncer,
		Messages: a.store,
		Events: notify.NewWatcher(a.store, notify.Config{
			Interval: cfg.Events.PollInterval,
			Logger:   a.logger,
		}),
		Sessions:     server.NewSessionManager(cfg.Session.Secret, cfg.Session.Cookie),
		Health:       health,
		CallbackURL:  cfg.CallbackURL(),
		DashboardURL: cfg.BaseURL + cfg.DashboardPath,
		LoginURL:     cfg.BaseURL + cfg.LoginPath,
		SyncLimiter:  server.NewRateLimiter(cfg.Sync.RateLimitInterval, cfg.Sync.RateLimitBurst),
		Metrics:      metrics,
		Logger:       a.logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})

	if cfg.Metrics.Enabled && a.provider.PrometheusHandler() != nil {
		ms, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:     cfg.Metrics.Addr,
			Provider: a.provider,
			Logger:   a.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		g.Go(ms.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
			defer cancel()
			return ms.Shutdown(shutdownCtx)
		})
	}

	if cfg.Sync.Schedule != "" {
		scheduler, err := mailsync.NewScheduler(a.syncer, a.store, cfg.Sync.Schedule, a.logger)
		if err != nil {
			return err
		}
		scheduler.Start(gctx)
		defer scheduler.Stop()
	}

	a.logger.Info("inboxpanel started",
		slog.String("version", version),
		slog.String("addr", cfg.HTTP.Addr),
		slog.String("base_url", cfg.BaseURL),
		slog.String("callback_url", cfg.CallbackURL()),
		slog.String("database_driver", cfg.Database.Driver),
		slog.Duration("poll_interval", cfg.Events.PollInterval),
		slog.String("sync_schedule", cfg.Sync.Schedule),
	)

	err = g.Wait()
	a.logger.Info("inboxpanel stopped")
	return err
}

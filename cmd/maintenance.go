package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/inboxpanel/internal/instrumentation"
	"github.com/teemow/inboxpanel/internal/mailsync"
	"github.com/teemow/inboxpanel/internal/server"
)

// commandTimeout bounds the one-shot commands.
const commandTimeout = 5 * time.Minute

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if err := a.store.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to migrate store: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "database schema is up to date")
			return nil
		},
	}
}

func newSyncCmd() *cobra.Command {
	var (
		userID string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync linked inboxes once",
		Long: `Sync the most recent inbox messages of one linked user (--user) or of
every linked user (--all), refreshing expired access tokens as needed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (userID == "") == !all {
				return fmt.Errorf("exactly one of --user or --all is required")
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if err := a.store.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to migrate store: %w", err)
			}

			if all {
				synced, failed, err := mailsync.SyncAll(ctx, a.syncer, a.store, instrumentation.TriggerCLI)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "synced %d users, %d failed\n", synced, failed)
				if failed > 0 {
					return fmt.Errorf("%d users failed to sync", failed)
				}
				return nil
			}

			n, err := a.syncer.Run(ctx, userID, instrumentation.TriggerCLI)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %d messages\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "Application user id to sync")
	cmd.Flags().BoolVar(&all, "all", false, "Sync every linked user")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session token for a user",
		Long: `Mint a session token for local development and scripting. Send it as an
Authorization bearer header or as the session cookie.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			a, err := newApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			if a.cfg.Session.Secret == "" {
				return fmt.Errorf("session.secret is required (SESSION_SECRET)")
			}
			token, err := server.NewSessionManager(a.cfg.Session.Secret, a.cfg.Session.Cookie).Issue(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "Application user id (UUID)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

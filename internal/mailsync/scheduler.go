package mailsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/teemow/inboxpanel/internal/instrumentation"
	"github.com/teemow/inboxpanel/internal/logging"
)

// UserLister lists every user with a linked account.
type UserLister interface {
	ListCredentialUserIDs(ctx context.Context) ([]string, error)
}

// Scheduler runs a sync for every linked user on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	syncer *Syncer
	users  UserLister
	logger *slog.Logger

	mu     sync.Mutex
	runCtx context.Context
	cancel context.CancelFunc
}

// NewScheduler parses spec as a standard five-field cron expression or a
// descriptor such as "@every 15m".
func NewScheduler(syncer *Syncer, users UserLister, spec string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "scheduler"))
	cronLogger := logging.NewCronLogger(logger)

	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		syncer: syncer,
		users:  users,
		logger: logger,
	}
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("invalid sync schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the schedule in the background. Scheduled batches use a child
// of ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduled sync started")
}

// Stop cancels an in-flight batch and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("scheduled sync stopped")
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		return
	}

	synced, failed, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("scheduled sync aborted", logging.Err(err))
		return
	}
	s.logger.Info("scheduled sync finished", slog.Int("synced", synced), slog.Int("failed", failed))
}

// RunOnce syncs every linked user one at a time.
func (s *Scheduler) RunOnce(ctx context.Context) (synced, failed int, err error) {
	return SyncAll(ctx, s.syncer, s.users, instrumentation.TriggerSchedule)
}

// SyncAll syncs every user users lists, one at a time. Per-user failures are
// counted, not returned. A user unlinked mid-batch is skipped without
// counting as a failure.
func SyncAll(ctx context.Context, syncer *Syncer, users UserLister, trigger string) (synced, failed int, err error) {
	userIDs, err := users.ListCredentialUserIDs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list linked users: %w", err)
	}

	for _, userID := range userIDs {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		if _, err := syncer.Run(ctx, userID, trigger); err != nil {
			if !errors.Is(err, ErrNotConnected) {
				failed++
			}
			continue
		}
		synced++
	}
	return synced, failed, nil
}

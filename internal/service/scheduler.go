package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/storefront-sync/internal/repository"
)

// Scheduler periodically syncs every active account, several accounts at a time.
type Scheduler struct {
	accounts    repository.AccountRepository
	sync        SyncService
	interval    time.Duration
	concurrency int
	log         *zap.Logger
}

// NewScheduler constructs a scheduler. interval <= 0 disables Run.
func NewScheduler(accounts repository.AccountRepository, sync SyncService, interval time.Duration, concurrency int, log *zap.Logger) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{accounts: accounts, sync: sync, interval: interval, concurrency: concurrency, log: log}
}

// Run ticks until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.log.Info("scheduled sync disabled")
		return nil
	}
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.log.Error("scheduled sync round", zap.Error(err))
			}
		}
	}
}

// RunOnce syncs each active idle account once and returns how many runs succeeded.
// Individual run failures are recorded on the account, not returned.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	accounts, err := s.accounts.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	results := make([]bool, len(accounts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, a := range accounts {
		g.Go(func() error {
			_, err := s.sync.Sync(gctx, a.ID, 0)
			switch {
			case err == nil:
				results[i] = true
			case IsBusy(err):
				s.log.Debug("account busy, skipped", zap.String("account", a.ID.String()))
			default:
				s.log.Info("scheduled sync failed", zap.String("account", a.ID.String()), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, r := range results {
		if r {
			n++
		}
	}
	return n, nil
}

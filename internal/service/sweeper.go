package service

import (
	"context"
	"sync"
	"time"

	"github.com/epicwp/translation-orchestrator/internal/config"
	"github.com/epicwp/translation-orchestrator/internal/store"
	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
)

// Sweeper runs discovery and recovery on jittered intervals.
type Sweeper struct {
	cfg       *config.Config
	store     store.Store
	discovery *Discovery
	recovery  *Recovery
	runs      *RunService
}

func NewSweeper(cfg *config.Config, s store.Store, discovery *Discovery, recovery *Recovery, runs *RunService) *Sweeper {
	return &Sweeper{
		cfg:       cfg,
		store:     s,
		discovery: discovery,
		recovery:  recovery,
		runs:      runs,
	}
}

// Start runs both loops until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.every(ctx, s.cfg.Orchestrator.DiscoveryInterval, func(ctx context.Context) {
			if _, err := s.discovery.RunDiscoveryCycle(ctx); err != nil {
				zap.S().Named("sweeper").Errorw("discovery cycle failed", "error", err)
			}
		})
	}()
	go func() {
		defer wg.Done()
		s.every(ctx, s.cfg.Orchestrator.RecoveryInterval, func(ctx context.Context) {
			if _, err := s.Recover(ctx); err != nil {
				zap.S().Named("sweeper").Errorw("recovery sweep failed", "error", err)
			}
		})
	}()
	wg.Wait()
}

func (s *Sweeper) every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := jitterbug.New(interval, &jitterbug.Norm{Stdev: 30 * time.Millisecond, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		fn(ctx)
	}
}

// Recover sweeps the stale jobs of every active run, restores lost claim
// tickets, then sweeps the stale jobs outside of runs.
func (s *Sweeper) Recover(ctx context.Context) (RecoveryResult, error) {
	var total RecoveryResult

	runs, err := s.store.Run().List(ctx, store.NewRunQueryFilter().ByStatus(model.RunStatusRunning))
	if err != nil {
		return total, err
	}

	for _, run := range runs {
		result, err := s.recovery.RecoverStaleJobs(ctx, run.ID)
		if err != nil {
			zap.S().Named("sweeper").Errorw("failed to recover run", "run_id", run.ID, "error", err)
			continue
		}
		total.add(result)

		if _, err := s.runs.EnsureTickets(ctx, run.ID); err != nil {
			zap.S().Named("sweeper").Errorw("failed to restore claim tickets", "run_id", run.ID, "error", err)
		}
		if _, _, err := s.runs.cascade.RecomputeRun(ctx, run.ID); err != nil {
			zap.S().Named("sweeper").Errorw("failed to recompute run", "run_id", run.ID, "error", err)
		}
	}

	result, err := s.recovery.RecoverStaleSingleJobs(ctx)
	if err != nil {
		return total, err
	}
	total.add(result)
	return total, nil
}

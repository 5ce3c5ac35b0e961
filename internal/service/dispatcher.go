package service

import (
	"context"
	"time"

	"github.com/epicwp/translation-orchestrator/internal/config"
	"github.com/epicwp/translation-orchestrator/internal/scheduler"
	"github.com/epicwp/translation-orchestrator/internal/store"
	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"github.com/epicwp/translation-orchestrator/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Dispatcher pulls entries from the scheduler and hands the jobs they stand
// for to the worker.
type Dispatcher struct {
	cfg       *config.Config
	store     store.Store
	scheduler scheduler.Scheduler
	jobs      *JobService
	worker    *Worker
}

func NewDispatcher(cfg *config.Config, s store.Store, sched scheduler.Scheduler, jobs *JobService, worker *Worker) *Dispatcher {
	return &Dispatcher{
		cfg:       cfg,
		store:     s,
		scheduler: sched,
		jobs:      jobs,
		worker:    worker,
	}
}

// Run starts the configured number of workers and blocks until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	concurrency := d.cfg.Orchestrator.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		workerID := uuid.NewString()
		g.Go(func() error {
			return d.loop(gctx, workerID)
		})
	}
	zap.S().Named("dispatcher").Infow("dispatcher started", "workers", concurrency)
	return g.Wait()
}

func (d *Dispatcher) loop(ctx context.Context, workerID string) error {
	logger := zap.S().Named("dispatcher").With("worker_id", workerID)
	wait := d.cfg.Orchestrator.PollWait
	if wait <= 0 {
		wait = 2 * time.Second
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		handled, err := d.process(ctx, workerID, wait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Errorw("failed to process entry", "error", err)
			if err := sleep(ctx, wait); err != nil {
				return nil
			}
			continue
		}
		if handled {
			logger.Debug("entry processed")
		}
	}
}

// ProcessNext waits up to wait for one entry and processes its job. It
// reports whether an entry was taken.
func (d *Dispatcher) ProcessNext(ctx context.Context, wait time.Duration) (bool, error) {
	return d.process(ctx, "", wait)
}

func (d *Dispatcher) process(ctx context.Context, workerID string, wait time.Duration) (bool, error) {
	groups, err := d.groups(ctx)
	if err != nil {
		return false, err
	}

	entry, err := d.scheduler.Next(ctx, groups, wait)
	if err != nil || entry == nil {
		return false, err
	}
	defer func() {
		if err := d.scheduler.Done(context.WithoutCancel(ctx), *entry); err != nil {
			zap.S().Named("dispatcher").Warnw("failed to release entry", "group", entry.Group, "error", err)
		}
	}()
	if workerID != "" {
		metrics.BusyWorkers.Start(workerID)
		defer metrics.BusyWorkers.Stop(workerID)
	}

	job, err := d.take(ctx, *entry)
	if err != nil || job == nil {
		return true, err
	}

	if _, err := d.worker.Process(ctx, *job); err != nil {
		return true, err
	}
	return true, nil
}

// Drain processes entries until none is left. Used by one-shot commands and
// tests.
func (d *Dispatcher) Drain(ctx context.Context) (int, error) {
	var processed int
	for {
		handled, err := d.ProcessNext(ctx, 0)
		if err != nil {
			return processed, err
		}
		if !handled {
			return processed, nil
		}
		processed++
	}
}

func (d *Dispatcher) take(ctx context.Context, entry scheduler.Entry) (*model.Job, error) {
	if runID, ok := scheduler.ParseRunGroup(entry.Group); ok {
		return d.jobs.ClaimNextJob(ctx, runID)
	}
	return d.jobs.StartJob(ctx, entry.JobID)
}

// groups lists the single group followed by the groups of running runs,
// oldest first.
func (d *Dispatcher) groups(ctx context.Context) ([]string, error) {
	runs, err := d.store.Run().List(ctx, store.NewRunQueryFilter().ByStatus(model.ActiveRunStatuses...))
	if err != nil {
		return nil, err
	}
	groups := make([]string, 0, len(runs)+1)
	groups = append(groups, scheduler.SingleGroup)
	for _, r := range runs {
		groups = append(groups, scheduler.RunGroup(r.ID))
	}
	return groups, nil
}

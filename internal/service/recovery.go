package service

import (
	"context"
	"time"

	"github.com/epicwp/translation-orchestrator/internal/config"
	"github.com/epicwp/translation-orchestrator/internal/scheduler"
	"github.com/epicwp/translation-orchestrator/internal/store"
	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"github.com/epicwp/translation-orchestrator/pkg/metrics"
	"go.uber.org/zap"
)

type Strategy string

const (
	StrategyFinish Strategy = "finish"
	StrategyFail   Strategy = "fail"
	StrategyReset  Strategy = "reset"
)

// SelectStrategy picks how a stale job is repaired from its task stats.
func SelectStrategy(stats model.TaskStats) Strategy {
	switch {
	case stats.Completed == stats.Total:
		return StrategyFinish
	case stats.Exhausted > 0:
		return StrategyFail
	default:
		return StrategyReset
	}
}

type RecoveryResult struct {
	Finished int
	Reset    int
	Failed   int
}

func (r *RecoveryResult) add(o RecoveryResult) {
	r.Finished += o.Finished
	r.Reset += o.Reset
	r.Failed += o.Failed
}

// Recovery repairs jobs left in progress by a worker that went away.
type Recovery struct {
	store     store.Store
	scheduler scheduler.Scheduler
	cascade   *Cascade
	cfg       *config.Config
	now       func() time.Time
}

func NewRecovery(cfg *config.Config, s store.Store, sched scheduler.Scheduler, cascade *Cascade) *Recovery {
	return &Recovery{
		store:     s,
		scheduler: sched,
		cascade:   cascade,
		cfg:       cfg,
		now:       time.Now,
	}
}

// RecoverStaleJobs repairs the stale jobs of a run. A failing job is logged
// and the sweep goes on with the next one.
func (r *Recovery) RecoverStaleJobs(ctx context.Context, runID int64) (RecoveryResult, error) {
	return r.sweep(ctx, store.NewJobQueryFilter().ByRunID(runID))
}

// RecoverStaleSingleJobs repairs stale jobs that belong to no run.
func (r *Recovery) RecoverStaleSingleJobs(ctx context.Context) (RecoveryResult, error) {
	return r.sweep(ctx, store.NewJobQueryFilter().WithoutRun())
}

func (r *Recovery) sweep(ctx context.Context, filter *store.JobQueryFilter) (RecoveryResult, error) {
	var result RecoveryResult
	logger := zap.S().Named("recovery")

	threshold := r.now().Add(-r.cfg.Orchestrator.StaleThreshold)
	jobs, err := r.store.Job().List(ctx, filter.ByStatus(model.JobStatusInProgress).StartedBefore(threshold), nil)
	if err != nil {
		return result, err
	}

	for _, job := range jobs {
		outcome, err := r.recover(ctx, job)
		if err != nil {
			logger.Errorw("failed to recover job", "job_id", job.ID, "error", err)
			continue
		}
		result.add(outcome)
	}

	metrics.IncreaseRecoveryActionsMetric(string(StrategyFinish), result.Finished)
	metrics.IncreaseRecoveryActionsMetric(string(StrategyReset), result.Reset)
	metrics.IncreaseRecoveryActionsMetric(string(StrategyFail), result.Failed)
	if len(jobs) > 0 {
		logger.Infow("stale jobs recovered", "stale", len(jobs), "finished", result.Finished, "reset", result.Reset, "failed", result.Failed)
	}
	return result, nil
}

func (r *Recovery) recover(ctx context.Context, job model.Job) (RecoveryResult, error) {
	var result RecoveryResult

	tasks, err := r.store.Task().ListByJob(ctx, job.ID)
	if err != nil {
		return result, err
	}

	strategy := SelectStrategy(tasks.Stats())
	zap.S().Named("recovery").Debugw("stale job", "job_id", job.ID, "strategy", strategy)

	switch strategy {
	case StrategyFinish:
		finished, err := r.cascade.FinishJob(ctx, job.ID)
		if err != nil {
			return result, err
		}
		switch finished.Status {
		case model.JobStatusCompleted:
			result.Finished++
		case model.JobStatusFailed:
			result.Failed++
		}
	case StrategyFail:
		failed, err := r.cascade.FailJob(ctx, job.ID)
		if err != nil {
			return result, err
		}
		if failed.Status == model.JobStatusFailed {
			result.Failed++
		}
	case StrategyReset:
		reset, err := r.reset(ctx, job)
		if err != nil {
			return result, err
		}
		if reset {
			result.Reset++
		}
	}
	return result, nil
}

// reset puts the job back to pending and schedules it again.
func (r *Recovery) reset(ctx context.Context, job model.Job) (bool, error) {
	var reset bool
	err := store.WithinTransaction(ctx, r.store, func(ctx context.Context) error {
		ok, err := r.store.Job().Reset(ctx, job.ID)
		if err != nil || !ok {
			return err
		}
		reset = true
		_, err = r.store.Task().ResetForJobs(ctx, []int64{job.ID}, false)
		return err
	})
	if err != nil || !reset {
		return false, err
	}

	if job.RunID != nil {
		err = r.scheduler.Enqueue(ctx, scheduler.RunGroup(*job.RunID), 0)
	} else {
		err = r.scheduler.Enqueue(ctx, scheduler.SingleGroup, job.ID)
	}
	return true, err
}

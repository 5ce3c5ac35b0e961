package service

import (
	"context"
	"errors"

	"github.com/epicwp/translation-orchestrator/internal/store"
	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"go.uber.org/zap"
)

// Cascade derives job status from tasks and run status from jobs. Applying it
// to a terminal parent does nothing.
type Cascade struct {
	store    store.Store
	content  ContentProvider
	registry *Registry
}

func NewCascade(s store.Store, content ContentProvider, registry *Registry) *Cascade {
	return &Cascade{store: s, content: content, registry: registry}
}

// RecomputeJob sets the job status from its tasks: completed when every task
// is completed, failed when one is exhausted, in progress otherwise. A job
// reaching a terminal status makes its run recompute as well, after the job
// transaction committed so concurrent jobs see each other.
func (c *Cascade) RecomputeJob(ctx context.Context, jobID int64) (*model.Job, error) {
	var transitions []Event
	err := store.WithinTransaction(ctx, c.store, func(ctx context.Context) error {
		job, err := c.lockJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			return nil
		}

		tasks, err := c.store.Task().ListByJob(ctx, jobID)
		if err != nil {
			return err
		}

		stats := tasks.Stats()
		switch {
		case stats.Completed == stats.Total:
			e, err := c.finish(ctx, *job, tasks)
			if err != nil {
				return err
			}
			transitions = append(transitions, e...)
		case stats.Exhausted > 0:
			e, err := c.fail(ctx, *job)
			if err != nil {
				return err
			}
			transitions = append(transitions, e...)
		case job.Status == model.JobStatusPending:
			ok, err := c.store.Job().MarkInProgress(ctx, jobID)
			if err != nil {
				return err
			}
			if ok {
				transitions = append(transitions, jobEvent(*job, model.JobStatusInProgress))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return c.afterJob(ctx, jobID, transitions)
}

// FinishJob materializes the translation of a job whose tasks are all
// completed and completes it. When materialization fails the job is failed
// instead.
func (c *Cascade) FinishJob(ctx context.Context, jobID int64) (*model.Job, error) {
	var transitions []Event
	err := store.WithinTransaction(ctx, c.store, func(ctx context.Context) error {
		job, err := c.lockJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			return nil
		}

		tasks, err := c.store.Task().ListByJob(ctx, jobID)
		if err != nil {
			return err
		}
		transitions, err = c.finish(ctx, *job, tasks)
		return err
	})
	if err != nil {
		return nil, err
	}

	return c.afterJob(ctx, jobID, transitions)
}

// FailJob marks an active job failed.
func (c *Cascade) FailJob(ctx context.Context, jobID int64) (*model.Job, error) {
	var transitions []Event
	err := store.WithinTransaction(ctx, c.store, func(ctx context.Context) error {
		job, err := c.lockJob(ctx, jobID)
		if err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			return nil
		}
		transitions, err = c.fail(ctx, *job)
		return err
	})
	if err != nil {
		return nil, err
	}

	return c.afterJob(ctx, jobID, transitions)
}

// RecomputeRun completes or fails the run once none of its jobs is active.
// It reports whether this call made the transition.
func (c *Cascade) RecomputeRun(ctx context.Context, runID int64) (model.RunStatus, bool, error) {
	status, transitioned, err := c.store.Run().AttemptCompletion(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return "", false, NewErrRunNotFound(runID)
		}
		return "", false, err
	}

	if transitioned {
		zap.S().Named("cascade").Infow("run finished", "run_id", runID, "status", status)
		c.registry.Notify(ctx, runEvent(runID, model.RunStatusRunning, status))
	}
	return status, transitioned, nil
}

func (c *Cascade) finish(ctx context.Context, job model.Job, tasks model.TaskList) ([]Event, error) {
	var targetID int64
	err := store.WithinSavepoint(ctx, "materialize", func(ctx context.Context) error {
		id, err := c.content.MaterializeTranslation(ctx, job.Ref(), job.TargetLang, tasks.Translations())
		targetID = id
		return err
	})
	if err != nil {
		zap.S().Named("cascade").Errorw("failed to materialize translation", "job_id", job.ID, "target_lang", job.TargetLang, "error", err)
		return c.fail(ctx, job)
	}

	ok, err := c.store.Job().Complete(ctx, job.ID, targetID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	zap.S().Named("cascade").Debugw("job completed", "job_id", job.ID, "target_id", targetID)
	return []Event{jobEvent(job, model.JobStatusCompleted)}, nil
}

func (c *Cascade) fail(ctx context.Context, job model.Job) ([]Event, error) {
	ok, err := c.store.Job().Fail(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	zap.S().Named("cascade").Debugw("job failed", "job_id", job.ID)
	return []Event{jobEvent(job, model.JobStatusFailed)}, nil
}

func (c *Cascade) afterJob(ctx context.Context, jobID int64, transitions []Event) (*model.Job, error) {
	for _, e := range transitions {
		c.registry.Notify(ctx, e)
	}

	job, err := c.store.Job().Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.Status.IsTerminal() && job.RunID != nil {
		if _, _, err := c.RecomputeRun(ctx, *job.RunID); err != nil {
			return nil, err
		}
	}
	return job, nil
}

func (c *Cascade) lockJob(ctx context.Context, jobID int64) (*model.Job, error) {
	job, err := c.store.Job().Lock(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(jobID)
		}
		return nil, err
	}
	return job, nil
}

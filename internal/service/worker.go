package service

import (
	"context"
	"time"

	"github.com/epicwp/translation-orchestrator/internal/config"
	"github.com/epicwp/translation-orchestrator/internal/store"
	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"github.com/epicwp/translation-orchestrator/internal/translator"
	"go.uber.org/zap"
)

// Worker translates the tasks of a claimed job.
type Worker struct {
	store      store.Store
	jobs       *JobService
	cascade    *Cascade
	translator translator.Translator
	cfg        *config.Config
}

func NewWorker(cfg *config.Config, s store.Store, jobs *JobService, cascade *Cascade, t translator.Translator) *Worker {
	return &Worker{
		store:      s,
		jobs:       jobs,
		cascade:    cascade,
		translator: t,
		cfg:        cfg,
	}
}

// Process works through the tasks that are neither completed nor exhausted.
// The job status is read again before every task and processing stops once
// the job is no longer in progress, e.g. after its run was cancelled.
func (w *Worker) Process(ctx context.Context, job model.Job) (*model.Job, error) {
	logger := zap.S().Named("worker").With("job_id", job.ID)

	var instructions string
	if job.RunID != nil {
		run, err := w.store.Run().Get(ctx, *job.RunID)
		if err != nil {
			return nil, err
		}
		instructions = run.Configuration().Instructions
	}

	tasks, err := w.store.Task().ListByJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	for _, task := range tasks {
		if !task.IsRetryable() {
			continue
		}

		active, err := w.stillInProgress(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		if !active {
			logger.Infow("job is no longer in progress, stopping")
			return w.store.Job().Get(ctx, job.ID)
		}

		if err := w.processTask(ctx, job, task, instructions); err != nil {
			return nil, err
		}
	}

	return w.cascade.RecomputeJob(ctx, job.ID)
}

// processTask retries the task until it completes or is exhausted.
func (w *Worker) processTask(ctx context.Context, job model.Job, task model.Task, instructions string) error {
	for {
		ok, err := w.store.Task().MarkInProgress(ctx, task.ID)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		translation, terr := w.translate(ctx, job, task, instructions)
		if ctx.Err() != nil {
			// shutting down: the task stays in progress until recovery resets it
			return ctx.Err()
		}
		if terr != nil {
			zap.S().Named("worker").Debugw("translation failed", "job_id", job.ID, "task_id", task.ID, "error", terr)
		}

		saved, err := w.jobs.SaveTaskOutcome(ctx, task.ID, translation, terr)
		if err != nil {
			return err
		}
		if !saved.IsRetryable() {
			return nil
		}

		active, err := w.stillInProgress(ctx, job.ID)
		if err != nil || !active {
			return err
		}
		if err := sleep(ctx, w.cfg.Orchestrator.RetryDelay); err != nil {
			return err
		}
		task = *saved
	}
}

func (w *Worker) translate(ctx context.Context, job model.Job, task model.Task, instructions string) (string, error) {
	if timeout := w.cfg.Orchestrator.TranslateTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return w.translator.Translate(ctx, task.Original, job.SourceLang, job.TargetLang, translator.Context{
		Reference:    task.Reference,
		Subtype:      job.Subtype,
		Instructions: instructions,
	})
}

func (w *Worker) stillInProgress(ctx context.Context, jobID int64) (bool, error) {
	current, err := w.store.Job().Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	return current.Status == model.JobStatusInProgress, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

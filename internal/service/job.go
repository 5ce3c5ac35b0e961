package service

import (
	"context"
	"errors"
	"maps"
	"slices"

	"github.com/epicwp/translation-orchestrator/internal/content"
	"github.com/epicwp/translation-orchestrator/internal/scheduler"
	"github.com/epicwp/translation-orchestrator/internal/store"
	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"github.com/epicwp/translation-orchestrator/internal/translator"
	"go.uber.org/zap"
)

type JobService struct {
	store     store.Store
	content   ContentProvider
	scheduler scheduler.Scheduler
	cascade   *Cascade
	registry  *Registry
}

func NewJobService(s store.Store, content ContentProvider, sched scheduler.Scheduler, cascade *Cascade, registry *Registry) *JobService {
	return &JobService{
		store:     s,
		content:   content,
		scheduler: sched,
		cascade:   cascade,
		registry:  registry,
	}
}

// CreateJob returns the active job of the tuple or creates a pending one with
// a task per translatable field of the item. The boolean reports creation.
func (s *JobService) CreateJob(ctx context.Context, ref model.ItemRef, subtype, sourceLang, targetLang string) (*model.Job, bool, error) {
	var (
		job     *model.Job
		created bool
	)
	err := store.WithinTransaction(ctx, s.store, func(ctx context.Context) error {
		existing, err := s.store.Job().FindActive(ctx, ref, sourceLang, targetLang)
		if err != nil {
			return err
		}
		if existing != nil {
			job = existing
			return nil
		}

		newJob, err := s.store.Job().Create(ctx, model.NewJob(ref, subtype, sourceLang, targetLang))
		if err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				job, err = s.store.Job().FindActive(ctx, ref, sourceLang, targetLang)
				return err
			}
			return err
		}

		fields, err := s.content.GetFields(ctx, ref)
		if err != nil {
			return err
		}

		tasks := make(model.TaskList, 0, len(fields))
		for _, reference := range slices.Sorted(maps.Keys(fields)) {
			tasks = append(tasks, model.NewTask(newJob.ID, reference, fields[reference]))
		}
		if _, err := s.store.Task().CreateBatch(ctx, tasks); err != nil {
			return err
		}

		job = newJob
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		e := jobEvent(*job, model.JobStatusPending)
		e.From = ""
		s.registry.Notify(ctx, e)
		zap.S().Named("job_service").Debugw("job created", "job_id", job.ID, "source_id", ref.ID, "target_lang", targetLang)
	}
	return job, created, nil
}

// SeedResult counts what SeedItem wrote.
type SeedResult struct {
	Created      int
	PreCompleted int
}

// SeedItem makes sure every target language of the item is covered. A
// language with an existing translation gets a completed job recording it,
// any other language a pending job.
func (s *JobService) SeedItem(ctx context.Context, item content.Item, targetLangs []string) (SeedResult, error) {
	var result SeedResult
	for _, lang := range targetLangs {
		if lang == item.Language {
			continue
		}

		link, err := s.content.GetTranslationLink(ctx, item.Ref, lang)
		if err != nil {
			return result, err
		}

		if link != nil {
			job, err := s.store.Job().Create(ctx, model.NewCompletedJob(item.Ref, item.Subtype, item.Language, lang, *link))
			if err != nil && !errors.Is(err, store.ErrDuplicateKey) {
				return result, err
			}
			if job != nil {
				result.PreCompleted++
			}
			continue
		}

		_, created, err := s.CreateJob(ctx, item.Ref, item.Subtype, item.Language, lang)
		if err != nil {
			return result, err
		}
		if created {
			result.Created++
		}
	}
	return result, nil
}

// SaveTaskOutcome records the result of one translation attempt and cascades
// it to the job. A translate error is stored on the task, never returned.
func (s *JobService) SaveTaskOutcome(ctx context.Context, taskID int64, translation string, taskErr error) (*model.Task, error) {
	var err error
	if taskErr == nil {
		err = s.store.Task().SaveSuccess(ctx, taskID, translation)
	} else {
		err = s.store.Task().SaveFailure(ctx, taskID, taskErr.Error(), translator.IsPermanent(taskErr))
	}
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrTaskNotFound(taskID)
		}
		return nil, err
	}

	task, err := s.store.Task().Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	s.registry.Notify(ctx, taskEvent(*task))

	if task.IsExhausted() {
		zap.S().Named("job_service").Warnw("task exhausted", "task_id", task.ID, "job_id", task.JobID, "issue", task.Issue)
	}

	if _, err := s.cascade.RecomputeJob(ctx, task.JobID); err != nil {
		return task, err
	}
	return task, nil
}

// TranslateItem schedules the item for the given languages outside of any
// run. An active job is reused and a cancelled one is reopened. A failed job
// is returned as it is and not scheduled again.
func (s *JobService) TranslateItem(ctx context.Context, ref model.ItemRef, targetLangs []string) (model.JobList, error) {
	item, err := s.content.GetItem(ctx, ref)
	if err != nil {
		return nil, err
	}

	jobs := make(model.JobList, 0, len(targetLangs))
	for _, lang := range targetLangs {
		if lang == item.Language {
			continue
		}

		job, err := s.ensureJob(ctx, *item, lang)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)

		if job.Status == model.JobStatusPending && job.RunID == nil {
			if err := s.scheduler.Enqueue(ctx, scheduler.SingleGroup, job.ID); err != nil {
				return nil, err
			}
		}
	}
	return jobs, nil
}

func (s *JobService) ensureJob(ctx context.Context, item content.Item, lang string) (*model.Job, error) {
	active, err := s.store.Job().FindActive(ctx, item.Ref, item.Language, lang)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return active, nil
	}

	latest, err := s.store.Job().FindLatest(ctx, item.Ref, item.Language, lang)
	if err != nil {
		return nil, err
	}
	if latest != nil {
		switch latest.Status {
		case model.JobStatusFailed:
			return latest, nil
		case model.JobStatusCancelled:
			return s.reopen(ctx, *latest)
		}
	}

	job, _, err := s.CreateJob(ctx, item.Ref, item.Subtype, item.Language, lang)
	return job, err
}

func (s *JobService) reopen(ctx context.Context, job model.Job) (*model.Job, error) {
	var reopened bool
	err := store.WithinTransaction(ctx, s.store, func(ctx context.Context) error {
		ok, err := s.store.Job().Reopen(ctx, job.ID, model.JobStatusCancelled)
		if err != nil || !ok {
			return err
		}
		reopened = true
		_, err = s.store.Task().ResetForJobs(ctx, []int64{job.ID}, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	if reopened {
		s.registry.Notify(ctx, jobEvent(job, model.JobStatusPending))
	}
	return s.store.Job().Get(ctx, job.ID)
}

// DeleteForContent removes the jobs whose source or target is the item.
func (s *JobService) DeleteForContent(ctx context.Context, ref model.ItemRef) (int64, error) {
	var deleted int64
	err := store.WithinTransaction(ctx, s.store, func(ctx context.Context) error {
		n, err := s.store.Job().Delete(ctx, store.NewJobQueryFilter().BySource(ref))
		if err != nil {
			return err
		}
		m, err := s.store.Job().Delete(ctx, store.NewJobQueryFilter().ByTarget(ref))
		if err != nil {
			return err
		}
		deleted = n + m
		return nil
	})
	return deleted, err
}

// ClaimNextJob moves the oldest pending job of the run to in progress. It
// returns nil when there is no work, including for a terminal run.
func (s *JobService) ClaimNextJob(ctx context.Context, runID int64) (*model.Job, error) {
	var job *model.Job
	err := store.WithinTransaction(ctx, s.store, func(ctx context.Context) error {
		run, err := s.store.Run().Get(ctx, runID)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return NewErrRunNotFound(runID)
			}
			return err
		}
		if run.Status.IsTerminal() {
			return nil
		}

		job, err = s.store.Job().ClaimNext(ctx, runID)
		if err != nil || job == nil {
			return err
		}
		return s.store.Run().Heartbeat(ctx, runID)
	})
	if err != nil {
		return nil, err
	}

	if job != nil {
		e := jobEvent(*job, model.JobStatusInProgress)
		e.From = string(model.JobStatusPending)
		s.registry.Notify(ctx, e)
	}
	return job, nil
}

// StartJob claims one specific pending job. It returns nil when the job was
// already taken or is not pending anymore.
func (s *JobService) StartJob(ctx context.Context, id int64) (*model.Job, error) {
	job, err := s.store.Job().Start(ctx, id)
	if err != nil {
		return nil, err
	}
	if job != nil {
		e := jobEvent(*job, model.JobStatusInProgress)
		e.From = string(model.JobStatusPending)
		s.registry.Notify(ctx, e)
	}
	return job, nil
}

func (s *JobService) GetJob(ctx context.Context, id int64) (*model.Job, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	return job, nil
}

func (s *JobService) ListJobs(ctx context.Context, filter *store.JobQueryFilter, opts *store.JobQueryOptions) (model.JobList, error) {
	return s.store.Job().List(ctx, filter, opts)
}

func (s *JobService) ListTasks(ctx context.Context, jobID int64) (model.TaskList, error) {
	if _, err := s.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.store.Task().ListByJob(ctx, jobID)
}

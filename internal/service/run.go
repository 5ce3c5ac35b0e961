package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/epicwp/translation-orchestrator/internal/config"
	"github.com/epicwp/translation-orchestrator/internal/content"
	"github.com/epicwp/translation-orchestrator/internal/scheduler"
	"github.com/epicwp/translation-orchestrator/internal/store"
	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"
)

// RunProgress is the job count of a run by status plus the state of its
// scheduler group.
type RunProgress struct {
	Run          model.Run
	Counts       map[model.JobStatus]int64
	Total        int64
	QueuePending int64
	QueueRunning int64
}

func (p RunProgress) Count(status model.JobStatus) int64 {
	return p.Counts[status]
}

type RunService struct {
	store     store.Store
	cfg       *config.Config
	content   ContentProvider
	scheduler scheduler.Scheduler
	connector *Connector
	jobs      *JobService
	cascade   *Cascade
	registry  *Registry
}

func NewRunService(cfg *config.Config, s store.Store, content ContentProvider, sched scheduler.Scheduler, connector *Connector, jobs *JobService, cascade *Cascade, registry *Registry) *RunService {
	return &RunService{
		store:     s,
		cfg:       cfg,
		content:   content,
		scheduler: sched,
		connector: connector,
		jobs:      jobs,
		cascade:   cascade,
		registry:  registry,
	}
}

// CreateRun validates and snapshots the configuration, connects the matching
// jobs and enqueues one claim ticket per connected job. A run without any job
// completes right away.
func (s *RunService) CreateRun(ctx context.Context, rc model.RunConfig) (*model.Run, error) {
	rc, err := s.normalize(rc)
	if err != nil {
		return nil, err
	}

	run, err := s.store.Run().Create(ctx, model.NewRun(rc))
	if err != nil {
		return nil, err
	}
	s.registry.Notify(ctx, runEvent(run.ID, "", model.RunStatusPending))

	logger := zap.S().Named("run_service").With("run_id", run.ID)
	logger.Infow("run created", "source", rc.SourceLanguage, "targets", rc.TargetLanguages, "force", rc.Force, "limit", rc.Limit)

	if rc.HasSpecificItems() {
		if err := s.seedSpecificItems(ctx, rc); err != nil {
			s.abort(ctx, run.ID, err)
			return nil, err
		}
	}

	group := scheduler.RunGroup(run.ID)
	connected, err := s.connector.Connect(ctx, *run, func(ctx context.Context, assigned int64) error {
		for i := int64(0); i < assigned; i++ {
			if err := s.scheduler.Enqueue(ctx, group, 0); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.abort(ctx, run.ID, err)
		return nil, err
	}

	ok, err := s.store.Run().MarkRunning(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	if ok {
		s.registry.Notify(ctx, runEvent(run.ID, model.RunStatusPending, model.RunStatusRunning))
	}
	logger.Infow("run started", "jobs", connected)

	if _, _, err := s.cascade.RecomputeRun(ctx, run.ID); err != nil {
		return nil, err
	}
	return s.GetRun(ctx, run.ID)
}

// abort cancels a run whose connection failed half way.
func (s *RunService) abort(ctx context.Context, runID int64, cause error) {
	zap.S().Named("run_service").Errorw("failed to connect run", "run_id", runID, "error", cause)
	if _, err := s.CancelRun(ctx, runID); err != nil {
		zap.S().Named("run_service").Errorw("failed to cancel run", "run_id", runID, "error", err)
	}
}

// seedSpecificItems creates the missing jobs of explicitly requested items so
// the connector finds them.
func (s *RunService) seedSpecificItems(ctx context.Context, rc model.RunConfig) error {
	for _, ref := range rc.SpecificItems {
		item, err := s.content.GetItem(ctx, ref)
		if err != nil {
			if errors.Is(err, content.ErrItemNotFound) {
				zap.S().Named("run_service").Warnw("requested item not found", "type", ref.Type, "id", ref.ID)
				continue
			}
			return err
		}
		if item.Language != rc.SourceLanguage {
			zap.S().Named("run_service").Warnw("requested item is not in the source language", "type", ref.Type, "id", ref.ID, "language", item.Language)
			continue
		}

		covered, err := s.store.Job().Coverage(ctx, ref.Type, []int64{ref.ID}, rc.SourceLanguage, rc.TargetLanguages)
		if err != nil {
			return err
		}
		missing := funk.SubtractString(rc.TargetLanguages, covered[ref.ID])
		if _, err := s.jobs.SeedItem(ctx, *item, missing); err != nil {
			return err
		}
	}
	return nil
}

func (s *RunService) normalize(rc model.RunConfig) (model.RunConfig, error) {
	if rc.SourceLanguage == "" {
		rc.SourceLanguage = s.cfg.Orchestrator.SourceLanguage
	}
	if len(rc.TargetLanguages) == 0 {
		rc.TargetLanguages = s.cfg.Orchestrator.TargetLanguages
	}

	source, err := NormalizeLanguage(rc.SourceLanguage)
	if err != nil {
		return rc, NewErrInvalidRunConfig(err.Error())
	}
	rc.SourceLanguage = source

	targets, err := NormalizeLanguages(rc.TargetLanguages)
	if err != nil {
		return rc, NewErrInvalidRunConfig(err.Error())
	}
	if len(targets) == 0 {
		return rc, NewErrInvalidRunConfig("no target language")
	}
	if funk.ContainsString(targets, source) {
		return rc, NewErrInvalidRunConfig(fmt.Sprintf("target language %s is the source language", source))
	}
	rc.TargetLanguages = targets

	if rc.Limit < 0 {
		return rc, NewErrInvalidRunConfig("limit must not be negative")
	}

	for _, ref := range rc.SpecificItems {
		if _, err := model.ParseJobType(string(ref.Type)); err != nil {
			return rc, NewErrInvalidRunConfig(err.Error())
		}
		if ref.ID <= 0 {
			return rc, NewErrInvalidRunConfig(fmt.Sprintf("invalid item id %d", ref.ID))
		}
	}

	rc.DocumentKinds = funk.UniqString(rc.DocumentKinds)
	rc.TermGroups = funk.UniqString(rc.TermGroups)
	return rc, nil
}

// CancelRun cancels the run and its active jobs and drops its pending
// tickets. A job being processed finishes its current task.
func (s *RunService) CancelRun(ctx context.Context, runID int64) (*model.Run, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.IsTerminal() {
		return nil, NewErrRunAlreadyTerminal(runID, run.Status)
	}

	var cancelledJobs int64
	err = store.WithinTransaction(ctx, s.store, func(ctx context.Context) error {
		ok, err := s.store.Run().Cancel(ctx, runID)
		if err != nil {
			return err
		}
		if !ok {
			current, err := s.store.Run().Get(ctx, runID)
			if err != nil {
				return err
			}
			return NewErrRunAlreadyTerminal(runID, current.Status)
		}
		cancelledJobs, err = s.store.Job().CancelForRun(ctx, runID)
		return err
	})
	if err != nil {
		return nil, err
	}

	dropped, err := s.scheduler.CancelAll(ctx, scheduler.RunGroup(runID))
	if err != nil {
		zap.S().Named("run_service").Errorw("failed to drop run tickets", "run_id", runID, "error", err)
	}

	s.registry.Notify(ctx, runEvent(runID, run.Status, model.RunStatusCancelled))
	zap.S().Named("run_service").Infow("run cancelled", "run_id", runID, "jobs", cancelledJobs, "tickets", dropped)
	return s.GetRun(ctx, runID)
}

// GetRunProgress counts the jobs of the run by status. The jobs of a finished
// run without item limit are found again from its configuration, so jobs
// reconnected to later runs still count.
func (s *RunService) GetRunProgress(ctx context.Context, runID int64) (*RunProgress, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	filter := store.NewJobQueryFilter().ByRunID(runID)
	rc := run.Configuration()
	if run.Status.IsTerminal() && rc.Limit == 0 {
		filter = s.connector.Filter(rc)
	}

	counts, err := s.store.Job().CountByStatus(ctx, filter)
	if err != nil {
		return nil, err
	}

	progress := &RunProgress{Run: *run, Counts: counts}
	for _, n := range counts {
		progress.Total += n
	}

	group := scheduler.RunGroup(runID)
	if progress.QueuePending, err = s.scheduler.CountPending(ctx, group); err != nil {
		return nil, err
	}
	if progress.QueueRunning, err = s.scheduler.CountRunning(ctx, group); err != nil {
		return nil, err
	}
	return progress, nil
}

func (s *RunService) GetRun(ctx context.Context, runID int64) (*model.Run, error) {
	run, err := s.store.Run().Get(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrRunNotFound(runID)
		}
		return nil, err
	}
	return run, nil
}

func (s *RunService) ListRuns(ctx context.Context, statuses ...model.RunStatus) (model.RunList, error) {
	filter := store.NewRunQueryFilter()
	if len(statuses) > 0 {
		filter = filter.ByStatus(statuses...)
	}
	return s.store.Run().List(ctx, filter)
}

// DeleteRun removes the run with its jobs and tasks, cancelling it first when
// it is still active.
func (s *RunService) DeleteRun(ctx context.Context, runID int64) error {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.IsActive() {
		if _, err := s.CancelRun(ctx, runID); err != nil {
			var terminal *ErrRunAlreadyTerminal
			if !errors.As(err, &terminal) {
				return err
			}
		}
	}
	return store.WithinTransaction(ctx, s.store, func(ctx context.Context) error {
		return s.store.Run().Delete(ctx, runID)
	})
}

// EnsureTickets tops up the claim tickets of a run so that every pending job
// has one queued, e.g. after a restart of the in-memory scheduler.
func (s *RunService) EnsureTickets(ctx context.Context, runID int64) (int64, error) {
	group := scheduler.RunGroup(runID)
	queued, err := s.scheduler.CountPending(ctx, group)
	if err != nil {
		return 0, err
	}

	pending, err := s.store.Job().Count(ctx, store.NewJobQueryFilter().ByRunID(runID).ByStatus(model.JobStatusPending))
	if err != nil {
		return 0, err
	}

	missing := pending - queued
	for i := int64(0); i < missing; i++ {
		if err := s.scheduler.Enqueue(ctx, group, 0); err != nil {
			return i, err
		}
	}
	if missing <= 0 {
		return 0, nil
	}
	zap.S().Named("run_service").Infow("claim tickets restored", "run_id", runID, "count", missing)
	return missing, nil
}

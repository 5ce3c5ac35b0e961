package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxClaimAttempts bounds how many candidates ClaimNext tries when another
// worker wins the race for the same row.
const maxClaimAttempts = 5

type Job interface {
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	Get(ctx context.Context, id int64) (*model.Job, error)
	Lock(ctx context.Context, id int64) (*model.Job, error)
	List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error)
	Count(ctx context.Context, filter *JobQueryFilter) (int64, error)
	CountByStatus(ctx context.Context, filter *JobQueryFilter) (map[model.JobStatus]int64, error)
	FindActive(ctx context.Context, ref model.ItemRef, sourceLang, targetLang string) (*model.Job, error)
	FindLatest(ctx context.Context, ref model.ItemRef, sourceLang, targetLang string) (*model.Job, error)
	Coverage(ctx context.Context, jobType model.JobType, sourceIDs []int64, sourceLang string, targetLangs []string) (map[int64][]string, error)
	ClaimNext(ctx context.Context, runID int64) (*model.Job, error)
	Start(ctx context.Context, id int64) (*model.Job, error)
	MarkInProgress(ctx context.Context, id int64) (bool, error)
	Complete(ctx context.Context, id int64, targetID int64) (bool, error)
	Fail(ctx context.Context, id int64) (bool, error)
	Reset(ctx context.Context, id int64) (bool, error)
	Reopen(ctx context.Context, id int64, from ...model.JobStatus) (bool, error)
	AssignRun(ctx context.Context, ids []int64, runID int64, reopen bool) (int64, error)
	CancelForRun(ctx context.Context, runID int64) (int64, error)
	Delete(ctx context.Context, filter *JobQueryFilter) (int64, error)
}

type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

// Create inserts the job. When a pending or in-progress job already exists for
// the same tuple nothing is written and ErrDuplicateKey is returned.
func (s *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	job.Tasks = nil
	result := s.getDB(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "type"}, {Name: "source_id"}, {Name: "source_lang"}, {Name: "target_lang"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "status IN ('pending', 'in_progress')"},
		}},
		DoNothing: true,
	}).Create(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrDuplicateKey
	}
	return &job, nil
}

func (s *JobStore) Get(ctx context.Context, id int64) (*model.Job, error) {
	var job model.Job
	if err := s.getDB(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &job, nil
}

// Lock reads the job and holds a row lock on it until the transaction in ctx
// ends. Without a row-locking dialect it behaves as Get.
func (s *JobStore) Lock(ctx context.Context, id int64) (*model.Job, error) {
	var jobs model.JobList
	if err := forUpdate(s.getDB(ctx)).Where("id = ?", id).Limit(1).Find(&jobs).Error; err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, ErrRecordNotFound
	}
	return &jobs[0], nil
}

func (s *JobStore) List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error) {
	var jobs model.JobList
	tx := s.getDB(ctx).Model(&jobs)
	if filter != nil {
		tx = applyFilter(tx, filter.QueryFn)
	}
	if opts != nil {
		tx = applyFilter(tx, opts.QueryFn)
	} else {
		tx = tx.Order("id")
	}
	if err := tx.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *JobStore) Count(ctx context.Context, filter *JobQueryFilter) (int64, error) {
	var count int64
	tx := s.getDB(ctx).Model(&model.Job{})
	if filter != nil {
		tx = applyFilter(tx, filter.QueryFn)
	}
	if err := tx.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (s *JobStore) CountByStatus(ctx context.Context, filter *JobQueryFilter) (map[model.JobStatus]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	tx := s.getDB(ctx).Model(&model.Job{})
	if filter != nil {
		tx = applyFilter(tx, filter.QueryFn)
	}
	if err := tx.Select("status, COUNT(*) AS total").Group("status").Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[model.JobStatus]int64, len(rows))
	for _, r := range rows {
		counts[model.JobStatus(r.Status)] = r.Total
	}
	return counts, nil
}

// FindActive returns the pending or in-progress job of the tuple, locking it
// when the dialect supports row locks. It returns nil when there is none.
func (s *JobStore) FindActive(ctx context.Context, ref model.ItemRef, sourceLang, targetLang string) (*model.Job, error) {
	var jobs model.JobList
	err := forUpdate(s.getDB(ctx)).
		Where("type = ? AND source_id = ? AND source_lang = ? AND target_lang = ?", string(ref.Type), ref.ID, sourceLang, targetLang).
		Where("status IN ?", model.JobStatusStrings(model.ActiveJobStatuses)).
		Order("id").Limit(1).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

// FindLatest returns the most recent job of the tuple whatever its status.
func (s *JobStore) FindLatest(ctx context.Context, ref model.ItemRef, sourceLang, targetLang string) (*model.Job, error) {
	var jobs model.JobList
	err := s.getDB(ctx).
		Where("type = ? AND source_id = ? AND source_lang = ? AND target_lang = ?", string(ref.Type), ref.ID, sourceLang, targetLang).
		Order("id DESC").Limit(1).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

// Coverage returns, for each of sourceIDs, the target languages already
// covered by a completed, pending or in-progress job.
func (s *JobStore) Coverage(ctx context.Context, jobType model.JobType, sourceIDs []int64, sourceLang string, targetLangs []string) (map[int64][]string, error) {
	coverage := make(map[int64][]string, len(sourceIDs))
	if len(sourceIDs) == 0 || len(targetLangs) == 0 {
		return coverage, nil
	}

	var rows []struct {
		SourceID   int64
		TargetLang string
	}
	err := s.getDB(ctx).Model(&model.Job{}).
		Distinct("source_id", "target_lang").
		Where("type = ? AND source_id IN ? AND source_lang = ?", string(jobType), sourceIDs, sourceLang).
		Where("target_lang IN ?", targetLangs).
		Where("status IN ?", model.JobStatusStrings(model.CoverageJobStatuses)).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, r := range rows {
		coverage[r.SourceID] = append(coverage[r.SourceID], r.TargetLang)
	}
	return coverage, nil
}

// ClaimNext moves the oldest pending job of the run to in progress. The
// selection and the update happen in the caller's transaction: the row is
// locked with SELECT ... FOR UPDATE SKIP LOCKED where supported and the update carries the
// pending status as precondition, so a job is never claimed twice. It returns
// nil when the run has no pending job.
func (s *JobStore) ClaimNext(ctx context.Context, runID int64) (*model.Job, error) {
	db := s.getDB(ctx)
	for i := 0; i < maxClaimAttempts; i++ {
		var candidates model.JobList
		err := forClaim(db).
			Where("run_id = ? AND status = ?", runID, string(model.JobStatusPending)).
			Order("id").Limit(1).
			Find(&candidates).Error
		if err != nil {
			return nil, fmt.Errorf("selecting next job: %w", err)
		}
		if len(candidates) == 0 {
			return nil, nil
		}

		job := candidates[0]
		now := time.Now()
		claimed, err := s.transition(ctx, job.ID, []model.JobStatus{model.JobStatusPending}, map[string]any{
			"status":     string(model.JobStatusInProgress),
			"started_at": now,
		})
		if err != nil {
			return nil, fmt.Errorf("claiming job %d: %w", job.ID, err)
		}
		if claimed {
			job.Status = model.JobStatusInProgress
			job.StartedAt = &now
			return &job, nil
		}
	}
	return nil, nil
}

// Start claims one specific pending job. It returns nil when the job is not
// pending anymore.
func (s *JobStore) Start(ctx context.Context, id int64) (*model.Job, error) {
	started, err := s.transition(ctx, id, []model.JobStatus{model.JobStatusPending}, map[string]any{
		"status":     string(model.JobStatusInProgress),
		"started_at": time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !started {
		return nil, nil
	}
	return s.Get(ctx, id)
}

func (s *JobStore) MarkInProgress(ctx context.Context, id int64) (bool, error) {
	return s.transition(ctx, id, []model.JobStatus{model.JobStatusPending}, map[string]any{
		"status":     string(model.JobStatusInProgress),
		"started_at": time.Now(),
	})
}

func (s *JobStore) Complete(ctx context.Context, id int64, targetID int64) (bool, error) {
	return s.transition(ctx, id, model.ActiveJobStatuses, map[string]any{
		"status":       string(model.JobStatusCompleted),
		"target_id":    targetID,
		"completed_at": time.Now(),
	})
}

func (s *JobStore) Fail(ctx context.Context, id int64) (bool, error) {
	return s.transition(ctx, id, model.ActiveJobStatuses, map[string]any{
		"status":       string(model.JobStatusFailed),
		"completed_at": time.Now(),
	})
}

// Reset puts an in-progress job back to pending so it can be claimed again.
func (s *JobStore) Reset(ctx context.Context, id int64) (bool, error) {
	return s.transition(ctx, id, []model.JobStatus{model.JobStatusInProgress}, map[string]any{
		"status":     string(model.JobStatusPending),
		"started_at": nil,
	})
}

// Reopen puts a job in one of the from statuses back to pending, detached
// from any run.
func (s *JobStore) Reopen(ctx context.Context, id int64, from ...model.JobStatus) (bool, error) {
	return s.transition(ctx, id, from, map[string]any{
		"status":       string(model.JobStatusPending),
		"run_id":       nil,
		"started_at":   nil,
		"completed_at": nil,
	})
}

// AssignRun sets run_id on the given jobs that are still connectable. With
// reopen, terminal jobs are put back to pending as well.
func (s *JobStore) AssignRun(ctx context.Context, ids []int64, runID int64, reopen bool) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	updates := map[string]any{"run_id": runID}
	if reopen {
		updates["status"] = string(model.JobStatusPending)
		updates["started_at"] = nil
		updates["completed_at"] = nil
	}
	tx := s.getDB(ctx).Model(&model.Job{}).Where("jobs.id IN ?", ids)
	result := applyFilter(tx, NewJobQueryFilter().Connectable(reopen).QueryFn).Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (s *JobStore) CancelForRun(ctx context.Context, runID int64) (int64, error) {
	result := s.getDB(ctx).Model(&model.Job{}).
		Where("run_id = ? AND status IN ?", runID, model.JobStatusStrings(model.ActiveJobStatuses)).
		Updates(map[string]any{
			"status":       string(model.JobStatusCancelled),
			"completed_at": time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Delete removes the jobs matching filter together with their tasks.
func (s *JobStore) Delete(ctx context.Context, filter *JobQueryFilter) (int64, error) {
	db := s.getDB(ctx)
	ids := db.Session(&gorm.Session{NewDB: true}).Model(&model.Job{}).Select("id")
	if filter != nil {
		ids = applyFilter(ids, filter.QueryFn)
	}
	if err := db.Where("job_id IN (?)", ids).Delete(&model.Task{}).Error; err != nil {
		return 0, err
	}

	tx := db.Session(&gorm.Session{NewDB: true})
	if filter != nil {
		tx = applyFilter(tx, filter.QueryFn)
	}
	result := tx.Delete(&model.Job{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// transition applies updates when the job is in one of the from statuses.
func (s *JobStore) transition(ctx context.Context, id int64, from []model.JobStatus, updates map[string]any) (bool, error) {
	result := s.getDB(ctx).Model(&model.Job{}).
		Where("id = ? AND status IN ?", id, model.JobStatusStrings(from)).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}

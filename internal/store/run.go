package store

import (
	"context"
	"errors"
	"time"

	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"gorm.io/gorm"
)

type Run interface {
	Create(ctx context.Context, run model.Run) (*model.Run, error)
	Get(ctx context.Context, id int64) (*model.Run, error)
	List(ctx context.Context, filter *RunQueryFilter) (model.RunList, error)
	MarkRunning(ctx context.Context, id int64) (bool, error)
	Heartbeat(ctx context.Context, id int64) error
	AttemptCompletion(ctx context.Context, id int64) (model.RunStatus, bool, error)
	Cancel(ctx context.Context, id int64) (bool, error)
	Delete(ctx context.Context, id int64) error
}

type RunStore struct {
	db *gorm.DB
}

// Make sure we conform to Run interface
var _ Run = (*RunStore)(nil)

func NewRunStore(db *gorm.DB) Run {
	return &RunStore{db: db}
}

func (r *RunStore) Create(ctx context.Context, run model.Run) (*model.Run, error) {
	if err := r.getDB(ctx).Create(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *RunStore) Get(ctx context.Context, id int64) (*model.Run, error) {
	var run model.Run
	if err := r.getDB(ctx).First(&run, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &run, nil
}

func (r *RunStore) List(ctx context.Context, filter *RunQueryFilter) (model.RunList, error) {
	var runs model.RunList
	tx := r.getDB(ctx).Model(&runs).Order("id")
	if filter != nil {
		tx = applyFilter(tx, filter.QueryFn)
	}
	if err := tx.Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// MarkRunning moves a pending run to running. It returns false when the run
// was not pending anymore.
func (r *RunStore) MarkRunning(ctx context.Context, id int64) (bool, error) {
	now := time.Now()
	result := r.getDB(ctx).Model(&model.Run{}).
		Where("id = ? AND status = ?", id, string(model.RunStatusPending)).
		Updates(map[string]any{
			"status":       string(model.RunStatusRunning),
			"started_at":   now,
			"heartbeat_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *RunStore) Heartbeat(ctx context.Context, id int64) error {
	return r.getDB(ctx).Model(&model.Run{}).Where("id = ?", id).Update("heartbeat_at", time.Now()).Error
}

// AttemptCompletion closes a running run once none of its jobs is pending or
// in progress. Pending runs are still being connected and are left alone.
// The run becomes failed if any of its jobs failed, completed otherwise. The check and the write are a single statement so concurrent
// callers observe exactly one transition; the loser gets transitioned=false
// together with the current status.
func (r *RunStore) AttemptCompletion(ctx context.Context, id int64) (model.RunStatus, bool, error) {
	db := r.getDB(ctx)
	sub := db.Session(&gorm.Session{NewDB: true})

	activeJobs := sub.Model(&model.Job{}).Select("1").
		Where("run_id = ? AND status IN ?", id, model.JobStatusStrings(model.ActiveJobStatuses))
	failedJobs := sub.Model(&model.Job{}).Select("1").
		Where("run_id = ? AND status = ?", id, string(model.JobStatusFailed))

	result := db.Model(&model.Run{}).
		Where("id = ? AND status = ?", id, string(model.RunStatusRunning)).
		Where("NOT EXISTS (?)", activeJobs).
		Updates(map[string]any{
			"status": gorm.Expr("CASE WHEN EXISTS (?) THEN ? ELSE ? END",
				failedJobs, string(model.RunStatusFailed), string(model.RunStatusCompleted)),
			"completed_at": time.Now(),
		})
	if result.Error != nil {
		return "", false, result.Error
	}

	run, err := r.Get(ctx, id)
	if err != nil {
		return "", false, err
	}
	return run.Status, result.RowsAffected == 1, nil
}

func (r *RunStore) Cancel(ctx context.Context, id int64) (bool, error) {
	result := r.getDB(ctx).Model(&model.Run{}).
		Where("id = ? AND status IN ?", id, []string{string(model.RunStatusPending), string(model.RunStatusRunning)}).
		Updates(map[string]any{
			"status":       string(model.RunStatusCancelled),
			"completed_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Delete removes the run together with its jobs and their tasks.
func (r *RunStore) Delete(ctx context.Context, id int64) error {
	db := r.getDB(ctx)
	jobIDs := db.Session(&gorm.Session{NewDB: true}).Model(&model.Job{}).Select("id").Where("run_id = ?", id)
	if err := db.Where("job_id IN (?)", jobIDs).Delete(&model.Task{}).Error; err != nil {
		return err
	}
	if err := db.Where("run_id = ?", id).Delete(&model.Job{}).Error; err != nil {
		return err
	}
	result := db.Delete(&model.Run{}, "id = ?", id)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	return nil
}

func (r *RunStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return r.db.WithContext(ctx)
}

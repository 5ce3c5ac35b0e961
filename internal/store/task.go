package store

import (
	"context"
	"errors"
	"time"

	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"gorm.io/gorm"
)

// taskBatchSize is the number of rows per INSERT when creating tasks.
const taskBatchSize = 100

type Task interface {
	CreateBatch(ctx context.Context, tasks model.TaskList) (model.TaskList, error)
	Get(ctx context.Context, id int64) (*model.Task, error)
	ListByJob(ctx context.Context, jobID int64) (model.TaskList, error)
	MarkInProgress(ctx context.Context, id int64) (bool, error)
	SaveSuccess(ctx context.Context, id int64, translation string) error
	SaveFailure(ctx context.Context, id int64, issue string, permanent bool) error
	ResetForJobs(ctx context.Context, jobIDs []int64, full bool) (int64, error)
	DeleteByJobs(ctx context.Context, jobIDs []int64) (int64, error)
}

type TaskStore struct {
	db *gorm.DB
}

// Make sure we conform to Task interface
var _ Task = (*TaskStore)(nil)

func NewTaskStore(db *gorm.DB) Task {
	return &TaskStore{db: db}
}

func (s *TaskStore) CreateBatch(ctx context.Context, tasks model.TaskList) (model.TaskList, error) {
	if len(tasks) == 0 {
		return tasks, nil
	}
	if err := s.getDB(ctx).CreateInBatches(&tasks, taskBatchSize).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *TaskStore) Get(ctx context.Context, id int64) (*model.Task, error) {
	var task model.Task
	if err := s.getDB(ctx).First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &task, nil
}

func (s *TaskStore) ListByJob(ctx context.Context, jobID int64) (model.TaskList, error) {
	var tasks model.TaskList
	if err := s.getDB(ctx).Where("job_id = ?", jobID).Order("id").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

// MarkInProgress flags a pending or retryable failed task as being worked on.
func (s *TaskStore) MarkInProgress(ctx context.Context, id int64) (bool, error) {
	result := s.getDB(ctx).Model(&model.Task{}).
		Where("id = ? AND status IN ?", id, []string{string(model.TaskStatusPending), string(model.TaskStatusFailed)}).
		Updates(map[string]any{
			"status":     string(model.TaskStatusInProgress),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *TaskStore) SaveSuccess(ctx context.Context, id int64, translation string) error {
	result := s.getDB(ctx).Model(&model.Task{}).Where("id = ?", id).Updates(map[string]any{
		"status":      string(model.TaskStatusCompleted),
		"translation": translation,
		"issue":       "",
		"updated_at":  time.Now(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// SaveFailure records a failed attempt. A permanent failure exhausts the
// task at once.
func (s *TaskStore) SaveFailure(ctx context.Context, id int64, issue string, permanent bool) error {
	attempts := gorm.Expr("attempts + 1")
	if permanent {
		attempts = gorm.Expr("CASE WHEN max_attempts > attempts THEN max_attempts ELSE attempts + 1 END")
	}
	result := s.getDB(ctx).Model(&model.Task{}).Where("id = ?", id).Updates(map[string]any{
		"status":     string(model.TaskStatusFailed),
		"attempts":   attempts,
		"issue":      model.TruncateIssue(issue),
		"updated_at": time.Now(),
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ResetForJobs puts the tasks of the given jobs back to pending. A full reset
// also drops translations, attempts and issues so the work is redone; otherwise
// only in-progress tasks are touched.
func (s *TaskStore) ResetForJobs(ctx context.Context, jobIDs []int64, full bool) (int64, error) {
	if len(jobIDs) == 0 {
		return 0, nil
	}
	tx := s.getDB(ctx).Model(&model.Task{}).Where("job_id IN ?", jobIDs)
	updates := map[string]any{
		"status":     string(model.TaskStatusPending),
		"updated_at": time.Now(),
	}
	if full {
		updates["translation"] = nil
		updates["attempts"] = 0
		updates["issue"] = ""
	} else {
		tx = tx.Where("status = ?", string(model.TaskStatusInProgress))
	}
	result := tx.Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (s *TaskStore) DeleteByJobs(ctx context.Context, jobIDs []int64) (int64, error) {
	if len(jobIDs) == 0 {
		return 0, nil
	}
	result := s.getDB(ctx).Where("job_id IN ?", jobIDs).Delete(&model.Task{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (s *TaskStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}

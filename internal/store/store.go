package store

import (
	"context"
	"fmt"

	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Run() Run
	Job() Job
	Task() Task
	InitialMigration(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

type DataStore struct {
	db   *gorm.DB
	run  Run
	job  Job
	task Task
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		run:  NewRunStore(db),
		job:  NewJobStore(db),
		task: NewTaskStore(db),
		db:   db,
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Run() Run {
	return s.run
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) Task() Task {
	return s.task
}

// activeJobIndex enforces that only one pending or in-progress job exists per
// item and language pair. Both postgres and sqlite support partial indexes.
const activeJobIndex = `CREATE UNIQUE INDEX IF NOT EXISTS jobs_active_tuple_uidx
ON jobs (type, source_id, source_lang, target_lang)
WHERE status IN ('pending', 'in_progress')`

// InitialMigration creates the schema without goose. It is used by tests and
// by sqlite deployments.
func (s *DataStore) InitialMigration(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&model.Run{}, &model.Job{}, &model.Task{}); err != nil {
		return fmt.Errorf("auto migrating schema: %w", err)
	}
	return db.Exec(activeJobIndex).Error
}

func (s *DataStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// forUpdate adds a row-level exclusive lock where the dialect has one. sqlite
// locks the whole database for writers so the clause is skipped there.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// forClaim is forUpdate for queue-like reads: rows locked by a concurrent
// claimer are skipped so the next pending row is returned instead of none.
func forClaim(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	return tx
}

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/epicwp/translation-orchestrator/internal/config"
	"github.com/epicwp/translation-orchestrator/internal/content"
	"github.com/epicwp/translation-orchestrator/internal/events"
	"github.com/epicwp/translation-orchestrator/internal/scheduler"
	"github.com/epicwp/translation-orchestrator/internal/store"
	"github.com/epicwp/translation-orchestrator/internal/translator"
	"github.com/epicwp/translation-orchestrator/pkg/migrations"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Runtime is an orchestrator together with the resources it owns.
type Runtime struct {
	*Orchestrator

	Config    *config.Config
	DB        *gorm.DB
	Store     store.Store
	Content   *content.Store
	Scheduler scheduler.Scheduler

	producer *events.EventProducer
}

type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	writer     events.Writer
	translator translator.Translator
	listeners  []Listener
}

// WithEventWriter sends lifecycle events to w instead of the log.
func WithEventWriter(w events.Writer) RuntimeOption {
	return func(o *runtimeOptions) { o.writer = w }
}

func WithTranslator(t translator.Translator) RuntimeOption {
	return func(o *runtimeOptions) { o.translator = t }
}

func WithListeners(l ...Listener) RuntimeOption {
	return func(o *runtimeOptions) { o.listeners = append(o.listeners, l...) }
}

// Bootstrap opens the store, brings the schema up to date and builds the
// orchestrator with the scheduler and translator selected by cfg.
func Bootstrap(ctx context.Context, cfg *config.Config, opts ...RuntimeOption) (*Runtime, error) {
	o := &runtimeOptions{writer: &events.StdoutWriter{}}
	for _, opt := range opts {
		opt(o)
	}

	db, err := store.InitDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing data store: %w", err)
	}
	s := store.NewStore(db)

	fail := func(err error) (*Runtime, error) {
		_ = s.Close()
		return nil, err
	}

	if err := Migrate(ctx, cfg, db, s); err != nil {
		return fail(err)
	}

	cs := content.NewStore(db)
	if err := cs.Migrate(ctx); err != nil {
		return fail(fmt.Errorf("migrating content store: %w", err))
	}

	sched, err := scheduler.New(cfg)
	if err != nil {
		return fail(err)
	}

	t := o.translator
	if t == nil {
		if t, err = translator.New(cfg); err != nil {
			_ = sched.Close()
			return fail(err)
		}
	}

	producer := events.NewEventProducer(o.writer)
	registry := NewRegistry(append([]Listener{NewMetricsListener(), NewEventForwarder(producer)}, o.listeners...)...)

	return &Runtime{
		Orchestrator: NewOrchestrator(cfg, s, cs, sched, t, registry),
		Config:       cfg,
		DB:           db,
		Store:        s,
		Content:      cs,
		Scheduler:    sched,
		producer:     producer,
	}, nil
}

// Migrate applies the goose migrations on postgres and auto-migrates the
// schema on sqlite.
func Migrate(ctx context.Context, cfg *config.Config, db *gorm.DB, s store.Store) error {
	if cfg.Database.Type == "pgsql" {
		if err := migrations.MigrateStore(db, cfg); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		return nil
	}
	if err := s.InitialMigration(ctx); err != nil {
		return fmt.Errorf("running initial migration: %w", err)
	}
	return nil
}

func (r *Runtime) Close() error {
	err := errors.Join(r.producer.Close(), r.Scheduler.Close(), r.Store.Close())
	if err != nil {
		zap.S().Named("runtime").Errorw("failed to release resources", "error", err)
	}
	return err
}

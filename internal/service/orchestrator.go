package service

import (
	"github.com/epicwp/translation-orchestrator/internal/config"
	"github.com/epicwp/translation-orchestrator/internal/scheduler"
	"github.com/epicwp/translation-orchestrator/internal/store"
	"github.com/epicwp/translation-orchestrator/internal/translator"
)

// Orchestrator wires the services sharing one store, scheduler and registry.
type Orchestrator struct {
	Registry   *Registry
	Cascade    *Cascade
	Jobs       *JobService
	Runs       *RunService
	Connector  *Connector
	Discovery  *Discovery
	Recovery   *Recovery
	Worker     *Worker
	Dispatcher *Dispatcher
	Sweeper    *Sweeper
}

func NewOrchestrator(cfg *config.Config, s store.Store, content ContentProvider, sched scheduler.Scheduler, t translator.Translator, registry *Registry) *Orchestrator {
	if registry == nil {
		registry = NewRegistry()
	}
	cascade := NewCascade(s, content, registry)
	jobs := NewJobService(s, content, sched, cascade, registry)
	connector := NewConnector(s, cfg)
	runs := NewRunService(cfg, s, content, sched, connector, jobs, cascade, registry)
	discovery := NewDiscovery(cfg, s, content, jobs)
	recovery := NewRecovery(cfg, s, sched, cascade)
	worker := NewWorker(cfg, s, jobs, cascade, t)

	return &Orchestrator{
		Registry:   registry,
		Cascade:    cascade,
		Jobs:       jobs,
		Runs:       runs,
		Connector:  connector,
		Discovery:  discovery,
		Recovery:   recovery,
		Worker:     worker,
		Dispatcher: NewDispatcher(cfg, s, sched, jobs, worker),
		Sweeper:    NewSweeper(cfg, s, discovery, recovery, runs),
	}
}

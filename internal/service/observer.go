package service

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/epicwp/translation-orchestrator/internal/events"
	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"github.com/epicwp/translation-orchestrator/pkg/metrics"
	"go.uber.org/zap"
)

type EventKind string

const (
	RunEventKind  EventKind = "run"
	JobEventKind  EventKind = "job"
	TaskEventKind EventKind = "task"
)

// Event describes one state transition. Only the fields relevant to Kind are set.
type Event struct {
	Kind     EventKind
	RunID    *int64
	JobID    int64
	TaskID   int64
	Job      *model.Job
	From     string
	To       string
	Attempts int
	Issue    string
}

func runEvent(runID int64, from, to model.RunStatus) Event {
	return Event{Kind: RunEventKind, RunID: &runID, From: string(from), To: string(to)}
}

func jobEvent(job model.Job, to model.JobStatus) Event {
	return Event{Kind: JobEventKind, RunID: job.RunID, JobID: job.ID, Job: &job, From: string(job.Status), To: string(to)}
}

func taskEvent(task model.Task) Event {
	return Event{
		Kind:     TaskEventKind,
		JobID:    task.JobID,
		TaskID:   task.ID,
		To:       string(task.Status),
		Attempts: task.Attempts,
		Issue:    task.Issue,
	}
}

// Listener is called synchronously after a transition was persisted.
type Listener func(ctx context.Context, e Event)

// Registry holds the listeners notified on state transitions.
type Registry struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewRegistry(listeners ...Listener) *Registry {
	return &Registry{listeners: listeners}
}

func (r *Registry) Subscribe(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

func (r *Registry) Notify(ctx context.Context, e Event) {
	if r == nil {
		return
	}
	r.mu.RLock()
	listeners := r.listeners
	r.mu.RUnlock()

	for _, l := range listeners {
		l(ctx, e)
	}
}

// NewMetricsListener counts transitions in the prometheus registry.
func NewMetricsListener() Listener {
	return func(_ context.Context, e Event) {
		switch e.Kind {
		case RunEventKind:
			metrics.IncreaseRunTransitionsMetric(e.To)
		case JobEventKind:
			metrics.IncreaseJobTransitionsMetric(e.To)
		case TaskEventKind:
			metrics.IncreaseTaskOutcomesMetric(e.To)
		}
	}
}

// NewEventForwarder publishes transitions as cloud events.
func NewEventForwarder(producer *events.EventProducer) Listener {
	return func(ctx context.Context, e Event) {
		now := time.Now()
		var (
			kind string
			body any
		)
		switch e.Kind {
		case RunEventKind:
			kind = events.RunMessageKind
			body = events.RunEvent{RunID: *e.RunID, From: e.From, To: e.To, SentAt: now}
		case JobEventKind:
			kind = events.JobMessageKind
			je := events.JobEvent{JobID: e.JobID, RunID: e.RunID, From: e.From, To: e.To, SentAt: now}
			if e.Job != nil {
				je.Type = string(e.Job.Type)
				je.SourceID = e.Job.SourceID
				je.TargetLang = e.Job.TargetLang
			}
			body = je
		case TaskEventKind:
			kind = events.TaskMessageKind
			body = events.TaskEvent{TaskID: e.TaskID, JobID: e.JobID, Status: e.To, Attempts: e.Attempts, Issue: e.Issue, SentAt: now}
		default:
			return
		}

		data, err := json.Marshal(body)
		if err != nil {
			zap.S().Named("observer").Errorw("failed to marshal event", "kind", kind, "error", err)
			return
		}
		if err := producer.Write(ctx, kind, bytes.NewReader(data)); err != nil {
			zap.S().Named("observer").Errorw("failed to write event", "kind", kind, "error", err)
		}
	}
}

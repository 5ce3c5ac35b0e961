package model

import "fmt"

type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// ActiveRunStatuses are the statuses of runs whose jobs may still be claimed.
var ActiveRunStatuses = []RunStatus{RunStatusPending, RunStatusRunning}

func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

func (s RunStatus) IsActive() bool {
	return s == RunStatusPending || s == RunStatusRunning
}

func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

var (
	// ActiveJobStatuses is the set in which at most one job may exist per
	// (type, source id, source lang, target lang).
	ActiveJobStatuses = []JobStatus{JobStatusPending, JobStatusInProgress}

	// CoverageJobStatuses mark a target language as covered for discovery.
	// Failed and cancelled jobs do not count so the item is discovered again.
	CoverageJobStatuses = []JobStatus{JobStatusCompleted, JobStatusPending, JobStatusInProgress}

	TerminalJobStatuses = []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled}

	AllJobStatuses = []JobStatus{JobStatusPending, JobStatusInProgress, JobStatusCompleted, JobStatusFailed, JobStatusCancelled}
)

func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

func (s JobStatus) IsActive() bool {
	return s == JobStatusPending || s == JobStatusInProgress
}

// IsProcessable reports whether a job can be connected to a run without force.
func (s JobStatus) IsProcessable() bool {
	return s == JobStatusPending
}

func (s JobStatus) CountsAsCoverage() bool {
	switch s {
	case JobStatusCompleted, JobStatusPending, JobStatusInProgress:
		return true
	default:
		return false
	}
}

func ParseJobStatus(s string) (JobStatus, error) {
	for _, st := range AllJobStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

func JobStatusStrings(statuses []JobStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

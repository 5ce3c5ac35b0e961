package model

import (
	"encoding/json"
	"time"
	"unicode/utf8"
)

const (
	// MaxTaskAttempts is the retry ceiling of a task.
	MaxTaskAttempts = 3
	// MaxIssueLength bounds the stored issue message, in runes.
	MaxIssueLength = 255
)

type Task struct {
	ID          int64      `gorm:"primaryKey;autoIncrement"`
	JobID       int64      `gorm:"not null;index"`
	Reference   string     `gorm:"type:VARCHAR(255);not null"`
	Original    string     `gorm:"type:TEXT;not null"`
	Translation *string    `gorm:"type:TEXT"`
	Status      TaskStatus `gorm:"type:VARCHAR(20);not null;default:'pending';index"`
	Attempts    int        `gorm:"not null;default:0"`
	Issue       string     `gorm:"type:VARCHAR(255);not null;default:''"`
	MaxAttempts int        `gorm:"not null;default:3"`
	CreatedAt   time.Time  `gorm:"not null"`
	UpdatedAt   time.Time
}

type TaskList []Task

func NewTask(jobID int64, reference, original string) Task {
	now := time.Now()
	return Task{
		JobID:       jobID,
		Reference:   reference,
		Original:    original,
		Status:      TaskStatusPending,
		MaxAttempts: MaxTaskAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsExhausted reports a permanently failed task: it will never be retried
// automatically.
func (t Task) IsExhausted() bool {
	return t.Status == TaskStatusFailed && t.Attempts >= t.ceiling() && t.Translation == nil
}

// IsRetryable reports whether the task should be attempted again.
func (t Task) IsRetryable() bool {
	return t.Status != TaskStatusCompleted && !t.IsExhausted()
}

func (t Task) ceiling() int {
	if t.MaxAttempts <= 0 {
		return MaxTaskAttempts
	}
	return t.MaxAttempts
}

func (t Task) String() string {
	val, _ := json.Marshal(t)
	return string(val)
}

// TaskStats summarises the tasks of a job.
type TaskStats struct {
	Total     int
	Completed int
	Exhausted int
}

func (l TaskList) Stats() TaskStats {
	stats := TaskStats{Total: len(l)}
	for _, t := range l {
		switch {
		case t.Status == TaskStatusCompleted:
			stats.Completed++
		case t.IsExhausted():
			stats.Exhausted++
		}
	}
	return stats
}

// Translations maps the reference of every completed task to its translation.
func (l TaskList) Translations() map[string]string {
	out := make(map[string]string, len(l))
	for _, t := range l {
		if t.Status == TaskStatusCompleted && t.Translation != nil {
			out[t.Reference] = *t.Translation
		}
	}
	return out
}

// TruncateIssue cuts msg to MaxIssueLength runes.
func TruncateIssue(msg string) string {
	if utf8.RuneCountInString(msg) <= MaxIssueLength {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:MaxIssueLength])
}

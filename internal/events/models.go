package events

import "time"

type RunEvent struct {
	RunID  int64     `json:"run_id"`
	From   string    `json:"from,omitempty"`
	To     string    `json:"to"`
	SentAt time.Time `json:"sent_at"`
}

type JobEvent struct {
	JobID      int64     `json:"job_id"`
	RunID      *int64    `json:"run_id,omitempty"`
	Type       string    `json:"type"`
	SourceID   int64     `json:"source_id"`
	TargetLang string    `json:"target_lang"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to"`
	SentAt     time.Time `json:"sent_at"`
}

type TaskEvent struct {
	TaskID   int64     `json:"task_id"`
	JobID    int64     `json:"job_id"`
	Status   string    `json:"status"`
	Attempts int       `json:"attempts"`
	Issue    string    `json:"issue,omitempty"`
	SentAt   time.Time `json:"sent_at"`
}

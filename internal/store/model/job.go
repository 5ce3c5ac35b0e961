package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type JobType string

const (
	JobTypeDocument JobType = "document"
	JobTypeTerm     JobType = "term"
)

func ParseJobType(s string) (JobType, error) {
	switch JobType(s) {
	case JobTypeDocument, JobTypeTerm:
		return JobType(s), nil
	}
	return "", fmt.Errorf("unknown job type %q", s)
}

type Job struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	Type        JobType   `gorm:"type:VARCHAR(20);not null;index:jobs_tuple_idx,priority:1"`
	Subtype     string    `gorm:"type:VARCHAR(100);not null;default:''"`
	SourceID    int64     `gorm:"not null;index:jobs_tuple_idx,priority:2"`
	TargetID    *int64    `gorm:"index"`
	SourceLang  string    `gorm:"type:VARCHAR(20);not null;index:jobs_tuple_idx,priority:3"`
	TargetLang  string    `gorm:"type:VARCHAR(20);not null;index:jobs_tuple_idx,priority:4"`
	Status      JobStatus `gorm:"type:VARCHAR(20);not null;default:'pending';index"`
	RunID       *int64    `gorm:"index"`
	CreatedAt   time.Time `gorm:"not null"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	Tasks       []Task `gorm:"foreignKey:JobID;references:ID;constraint:OnDelete:CASCADE;"`
}

type JobList []Job

// NewJob builds a pending job for one item translated into one language.
func NewJob(ref ItemRef, subtype, sourceLang, targetLang string) Job {
	return Job{
		Type:       ref.Type,
		Subtype:    subtype,
		SourceID:   ref.ID,
		SourceLang: sourceLang,
		TargetLang: targetLang,
		Status:     JobStatusPending,
		CreatedAt:  time.Now(),
	}
}

// NewCompletedJob records coverage that already exists in the content store.
func NewCompletedJob(ref ItemRef, subtype, sourceLang, targetLang string, targetID int64) Job {
	j := NewJob(ref, subtype, sourceLang, targetLang)
	now := j.CreatedAt
	j.Status = JobStatusCompleted
	j.TargetID = &targetID
	j.StartedAt = &now
	j.CompletedAt = &now
	return j
}

func (j Job) Ref() ItemRef {
	return ItemRef{Type: j.Type, ID: j.SourceID}
}

func (j Job) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}

func (l JobList) IDs() []int64 {
	ids := make([]int64, 0, len(l))
	for _, j := range l {
		ids = append(ids, j.ID)
	}
	return ids
}

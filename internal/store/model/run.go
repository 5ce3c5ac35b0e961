package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// ItemRef identifies a content item in the host content store.
type ItemRef struct {
	Type JobType `json:"type"`
	ID   int64   `json:"id"`
}

// RunConfig is the configuration snapshot taken when a run is created. It is
// never updated afterwards.
type RunConfig struct {
	SourceLanguage  string    `json:"source_language"`
	TargetLanguages []string  `json:"target_languages"`
	DocumentKinds   []string  `json:"document_kinds,omitempty"`
	TermGroups      []string  `json:"term_groups,omitempty"`
	SpecificItems   []ItemRef `json:"specific_items,omitempty"`
	Force           bool      `json:"force,omitempty"`
	Instructions    string    `json:"instructions,omitempty"`
	Limit           int       `json:"limit,omitempty"`
}

// HasSpecificItems reports whether the run targets an explicit set of items
// instead of content-type filters.
func (c RunConfig) HasSpecificItems() bool {
	return len(c.SpecificItems) > 0
}

type Run struct {
	ID          int64                         `gorm:"primaryKey;autoIncrement"`
	Status      RunStatus                     `gorm:"type:VARCHAR(20);not null;default:'pending';index"`
	Config      datatypes.JSONType[RunConfig] `gorm:"not null"`
	CreatedAt   time.Time                     `gorm:"not null"`
	StartedAt   *time.Time
	HeartbeatAt *time.Time
	CompletedAt *time.Time
}

type RunList []Run

func NewRun(cfg RunConfig) Run {
	return Run{
		Status:    RunStatusPending,
		Config:    datatypes.NewJSONType(cfg),
		CreatedAt: time.Now(),
	}
}

func (r Run) Configuration() RunConfig {
	return r.Config.Data()
}

func (r Run) String() string {
	val, _ := json.Marshal(r)
	return string(val)
}

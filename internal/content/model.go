package content

import (
	"time"

	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"gorm.io/datatypes"
)

// ContentItem is a translatable item of the host content store. Items sharing
// a translation group are translations of each other.
type ContentItem struct {
	ID               int64             `gorm:"primaryKey;autoIncrement"`
	Type             model.JobType     `gorm:"type:VARCHAR(20);not null;index:content_items_lookup_idx,priority:1"`
	Subtype          string            `gorm:"type:VARCHAR(100);not null;default:''"`
	Language         string            `gorm:"type:VARCHAR(20);not null;index:content_items_lookup_idx,priority:2"`
	TranslationGroup string            `gorm:"type:VARCHAR(64);not null;index"`
	Fields           datatypes.JSONMap `gorm:"not null"`
	CreatedAt        time.Time         `gorm:"not null"`
	UpdatedAt        time.Time
}

// Item is the provider's view of a content item: its fields flattened into
// dotted references.
type Item struct {
	Ref      model.ItemRef
	Subtype  string
	Language string
	Fields   map[string]string
}

// Query selects items of one type in one language. IDs and Subtypes narrow
// the selection when set. Results are ordered by id and start after AfterID.
type Query struct {
	Language string
	Type     model.JobType
	Subtypes []string
	IDs      []int64
	AfterID  int64
	Limit    int
}

func (c ContentItem) ref() model.ItemRef {
	return model.ItemRef{Type: c.Type, ID: c.ID}
}

func (c ContentItem) toItem() Item {
	return Item{
		Ref:      c.ref(),
		Subtype:  c.Subtype,
		Language: c.Language,
		Fields:   Flatten(c.Fields),
	}
}

// UncoveredQuery selects items of one type in one language that lack a
// coverage job for at least one of Targets.
type UncoveredQuery struct {
	Language string
	Type     model.JobType
	Targets  []string
	Limit    int
}

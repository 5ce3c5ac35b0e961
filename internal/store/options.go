package store

import (
	"strings"
	"time"

	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"gorm.io/gorm"
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type SortOrder int

const (
	SortByID SortOrder = iota
	SortByCreatedTime
	SortByIDDesc
)

type JobQueryFilter BaseQuerier

func NewJobQueryFilter() *JobQueryFilter {
	return &JobQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *JobQueryFilter) ByID(ids []int64) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id IN ?", ids)
	})
	return qf
}

func (qf *JobQueryFilter) ByRunID(runID int64) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("run_id = ?", runID)
	})
	return qf
}

func (qf *JobQueryFilter) WithoutRun() *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("run_id IS NULL")
	})
	return qf
}

func (qf *JobQueryFilter) ByStatus(statuses ...model.JobStatus) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status IN ?", model.JobStatusStrings(statuses))
	})
	return qf
}

func (qf *JobQueryFilter) ByType(jobType model.JobType) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("type = ?", string(jobType))
	})
	return qf
}

// BySubtypes keeps the jobs whose type is one of the keys and whose subtype is
// in the matching list. An empty list accepts every subtype of that type.
func (qf *JobQueryFilter) BySubtypes(subtypes map[model.JobType][]string) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		parts := make([]string, 0, len(subtypes))
		args := make([]any, 0, len(subtypes)*2)
		for _, t := range []model.JobType{model.JobTypeDocument, model.JobTypeTerm} {
			list, ok := subtypes[t]
			if !ok {
				continue
			}
			if len(list) == 0 {
				parts = append(parts, "(type = ?)")
				args = append(args, string(t))
				continue
			}
			parts = append(parts, "(type = ? AND subtype IN ?)")
			args = append(args, string(t), list)
		}
		if len(parts) == 0 {
			return tx
		}
		return tx.Where("("+strings.Join(parts, " OR ")+")", args...)
	})
	return qf
}

// ByItems keeps the jobs whose source item is one of refs.
func (qf *JobQueryFilter) ByItems(refs []model.ItemRef) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		byType := map[model.JobType][]int64{}
		order := []model.JobType{}
		for _, r := range refs {
			if _, ok := byType[r.Type]; !ok {
				order = append(order, r.Type)
			}
			byType[r.Type] = append(byType[r.Type], r.ID)
		}
		if len(order) == 0 {
			return tx.Where("1 = 0")
		}
		parts := make([]string, 0, len(order))
		args := make([]any, 0, len(order)*2)
		for _, t := range order {
			parts = append(parts, "(type = ? AND source_id IN ?)")
			args = append(args, string(t), byType[t])
		}
		return tx.Where("("+strings.Join(parts, " OR ")+")", args...)
	})
	return qf
}

func (qf *JobQueryFilter) BySource(ref model.ItemRef) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("type = ? AND source_id = ?", string(ref.Type), ref.ID)
	})
	return qf
}

func (qf *JobQueryFilter) ByTarget(ref model.ItemRef) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("type = ? AND target_id = ?", string(ref.Type), ref.ID)
	})
	return qf
}

func (qf *JobQueryFilter) BySourceLang(lang string) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("source_lang = ?", lang)
	})
	return qf
}

func (qf *JobQueryFilter) ByTargetLangs(langs []string) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("target_lang IN ?", langs)
	})
	return qf
}

// newerJobForTuple matches a later job of the same item and language pair.
const newerJobForTuple = `EXISTS (SELECT 1 FROM jobs AS newer
WHERE newer.type = jobs.type AND newer.source_id = jobs.source_id
AND newer.source_lang = jobs.source_lang AND newer.target_lang = jobs.target_lang
AND newer.id > jobs.id)`

// Connectable keeps the jobs a run may take over: pending jobs without a run
// and, with force, the latest terminal job of each item and language pair.
// Older terminal jobs are skipped so reopening them never collides with the
// active job index.
func (qf *JobQueryFilter) Connectable(force bool) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		if !force {
			return tx.Where("jobs.status = ? AND jobs.run_id IS NULL", string(model.JobStatusPending))
		}
		return tx.Where("((jobs.status = ? AND jobs.run_id IS NULL) OR (jobs.status IN ? AND NOT "+newerJobForTuple+"))",
			string(model.JobStatusPending), model.JobStatusStrings(model.TerminalJobStatuses))
	})
	return qf
}

func (qf *JobQueryFilter) AfterID(id int64) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id > ?", id)
	})
	return qf
}

func (qf *JobQueryFilter) StartedBefore(t time.Time) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("started_at IS NOT NULL AND started_at < ?", t)
	})
	return qf
}

type JobQueryOptions BaseQuerier

func NewJobQueryOptions() *JobQueryOptions {
	return &JobQueryOptions{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (o *JobQueryOptions) WithSortOrder(sort SortOrder) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		switch sort {
		case SortByID:
			return tx.Order("id")
		case SortByIDDesc:
			return tx.Order("id DESC")
		case SortByCreatedTime:
			return tx.Order("created_at")
		default:
			return tx
		}
	})
	return o
}

func (o *JobQueryOptions) WithLimit(limit int) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Limit(limit)
	})
	return o
}

func (o *JobQueryOptions) WithOffset(offset int) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Offset(offset)
	})
	return o
}

type RunQueryFilter BaseQuerier

func NewRunQueryFilter() *RunQueryFilter {
	return &RunQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *RunQueryFilter) ByStatus(statuses ...model.RunStatus) *RunQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		values := make([]string, 0, len(statuses))
		for _, s := range statuses {
			values = append(values, string(s))
		}
		return tx.Where("status IN ?", values)
	})
	return qf
}

func (qf *RunQueryFilter) ByID(ids []int64) *RunQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id IN ?", ids)
	})
	return qf
}

func applyFilter(tx *gorm.DB, fns []func(*gorm.DB) *gorm.DB) *gorm.DB {
	for _, fn := range fns {
		tx = fn(tx)
	}
	return tx
}

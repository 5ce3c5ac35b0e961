package service

import (
	"context"
	"runtime"

	"github.com/epicwp/translation-orchestrator/internal/config"
	"github.com/epicwp/translation-orchestrator/internal/store"
	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"github.com/epicwp/translation-orchestrator/pkg/metrics"
	"go.uber.org/zap"
)

// BatchFunc is called after each batch of jobs was assigned to the run.
type BatchFunc func(ctx context.Context, assigned int64) error

// Connector assigns the jobs matching a run configuration to the run, one
// keyset page at a time.
type Connector struct {
	store     store.Store
	cfg       *config.Config
	heapAlloc func() uint64
	gc        func()
}

func NewConnector(s store.Store, cfg *config.Config) *Connector {
	return &Connector{
		store:     s,
		cfg:       cfg,
		heapAlloc: readHeapAlloc,
		gc:        runtime.GC,
	}
}

func readHeapAlloc() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}

// Filter selects the jobs of a run configuration whatever their status.
// Specific items win over content-type filters. Without any content-type
// filter every type matches.
func (c *Connector) Filter(rc model.RunConfig) *store.JobQueryFilter {
	filter := store.NewJobQueryFilter().
		BySourceLang(rc.SourceLanguage).
		ByTargetLangs(rc.TargetLanguages)

	if rc.HasSpecificItems() {
		return filter.ByItems(rc.SpecificItems)
	}

	subtypes := map[model.JobType][]string{}
	if len(rc.DocumentKinds) > 0 {
		subtypes[model.JobTypeDocument] = rc.DocumentKinds
	}
	if len(rc.TermGroups) > 0 {
		subtypes[model.JobTypeTerm] = rc.TermGroups
	}
	if len(subtypes) > 0 {
		filter = filter.BySubtypes(subtypes)
	}
	return filter
}

// Connect assigns matching jobs to the run until the item limit is reached or
// nothing is left. Without force only pending jobs that belong to no run are
// taken. With force terminal jobs are taken too and reset with their tasks.
func (c *Connector) Connect(ctx context.Context, run model.Run, onBatch BatchFunc) (int64, error) {
	rc := run.Configuration()
	logger := zap.S().Named("connector").With("run_id", run.ID)

	var (
		cursor  int64
		total   int64
		batches int
	)
	for {
		size := c.batchSize()
		if rc.Limit > 0 {
			remaining := int64(rc.Limit) - total
			if remaining <= 0 {
				break
			}
			if remaining < int64(size) {
				size = int(remaining)
			}
		}

		jobs, err := c.store.Job().List(ctx,
			c.Filter(rc).Connectable(rc.Force).AfterID(cursor),
			store.NewJobQueryOptions().WithSortOrder(store.SortByID).WithLimit(size))
		if err != nil {
			return total, err
		}
		if len(jobs) == 0 {
			break
		}
		cursor = jobs[len(jobs)-1].ID

		var assigned int64
		err = store.WithinTransaction(ctx, c.store, func(ctx context.Context) error {
			n, err := c.store.Job().AssignRun(ctx, jobs.IDs(), run.ID, rc.Force)
			if err != nil {
				return err
			}
			assigned = n

			if rc.Force {
				reopened := make([]int64, 0, len(jobs))
				for _, j := range jobs {
					if j.Status.IsTerminal() {
						reopened = append(reopened, j.ID)
					}
				}
				if _, err := c.store.Task().ResetForJobs(ctx, reopened, true); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return total, err
		}

		total += assigned
		batches++
		logger.Debugw("batch connected", "batch", batches, "size", size, "assigned", assigned)

		if assigned > 0 && onBatch != nil {
			if err := onBatch(ctx, assigned); err != nil {
				return total, err
			}
		}

		if c.cfg.Orchestrator.GCEvery > 0 && batches%c.cfg.Orchestrator.GCEvery == 0 {
			c.gc()
		}
	}

	metrics.IncreaseConnectedJobsMetric(total)
	logger.Infow("jobs connected", "count", total, "batches", batches, "force", rc.Force)
	return total, nil
}

// batchSize halves the configured batch size while the heap is above the
// soft limit, never going under the minimum.
func (c *Connector) batchSize() int {
	o := c.cfg.Orchestrator
	size := o.BatchSize
	if size <= 0 {
		size = 500
	}
	if o.MemorySoftLimit == 0 || c.heapAlloc() <= o.MemorySoftLimit {
		return size
	}

	size /= 2
	if size < o.MinBatchSize {
		size = o.MinBatchSize
	}
	if size < 1 {
		size = 1
	}
	return size
}

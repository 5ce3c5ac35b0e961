package metrics

import (
	"context"
	"fmt"

	"github.com/epicwp/translation-orchestrator/internal/store"
	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type jobStatsCollector struct {
	store      store.Store
	jobs       *prometheus.Desc
	activeRuns *prometheus.Desc
}

// NewJobStatsCollector exports the current number of jobs per status and of
// active runs, read from the store at scrape time.
func NewJobStatsCollector(s store.Store) prometheus.Collector {
	fqName := func(name string) string {
		return fmt.Sprintf("%s_%s", orchestrator, name)
	}

	return &jobStatsCollector{
		store: s,
		jobs: prometheus.NewDesc(
			fqName("jobs"),
			"Number of jobs by status.",
			[]string{statusLabel},
			prometheus.Labels{},
		),
		activeRuns: prometheus.NewDesc(
			fqName("active_runs"),
			"Number of pending or running runs.",
			nil,
			prometheus.Labels{},
		),
	}
}

func (c *jobStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobs
	ch <- c.activeRuns
}

// Collect implements Collector.
func (c *jobStatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx := context.Background()

	counts, err := c.store.Job().CountByStatus(ctx, nil)
	if err != nil {
		zap.S().Named("jobs_collector").Errorw("failed to collect job statistics", "error", err)
		return
	}
	for _, status := range model.AllJobStatuses {
		ch <- prometheus.MustNewConstMetric(c.jobs, prometheus.GaugeValue, float64(counts[status]), string(status))
	}

	runs, err := c.store.Run().List(ctx, store.NewRunQueryFilter().ByStatus(model.ActiveRunStatuses...))
	if err != nil {
		zap.S().Named("jobs_collector").Errorw("failed to collect run statistics", "error", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.activeRuns, prometheus.GaugeValue, float64(len(runs)))
}

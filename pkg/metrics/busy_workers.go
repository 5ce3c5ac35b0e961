package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type busyWorkers struct {
	gauge   prometheus.Gauge
	workers map[string]struct{}
	mu      sync.Mutex
}

const busyWorkersName = "busy_workers"

var busyWorkersMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: orchestrator,
		Name:      busyWorkersName,
		Help:      "number of dispatcher workers currently processing a job",
	},
)

// BusyWorkers tracks the dispatcher workers holding a scheduler entry.
var BusyWorkers = &busyWorkers{
	gauge:   busyWorkersMetric,
	workers: make(map[string]struct{}),
}

func (b *busyWorkers) Start(workerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.workers[workerID]; exists {
		return
	}
	b.workers[workerID] = struct{}{}
	b.gauge.Set(float64(len(b.workers)))
}

func (b *busyWorkers) Stop(workerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.workers, workerID)
	b.gauge.Set(float64(len(b.workers)))
}

func (b *busyWorkers) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.workers)
}

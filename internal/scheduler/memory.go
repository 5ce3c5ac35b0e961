package scheduler

import (
	"context"
	"sync"
	"time"
)

// MemoryScheduler keeps the queues in process. It is meant for a single
// orchestrator process and for tests.
type MemoryScheduler struct {
	mu      sync.Mutex
	queues  map[string][]int64
	running map[string]int64
	// notify is closed and replaced on every enqueue to wake up waiters.
	notify chan struct{}
}

var _ Scheduler = (*MemoryScheduler)(nil)

func NewMemoryScheduler() *MemoryScheduler {
	return &MemoryScheduler{
		queues:  map[string][]int64{},
		running: map[string]int64{},
		notify:  make(chan struct{}),
	}
}

func (m *MemoryScheduler) Enqueue(_ context.Context, group string, jobID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queues[group] = append(m.queues[group], jobID)
	close(m.notify)
	m.notify = make(chan struct{})
	return nil
}

func (m *MemoryScheduler) CancelAll(_ context.Context, group string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := int64(len(m.queues[group]))
	delete(m.queues, group)
	return n, nil
}

func (m *MemoryScheduler) CountPending(_ context.Context, group string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.queues[group])), nil
}

func (m *MemoryScheduler) CountRunning(_ context.Context, group string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[group], nil
}

func (m *MemoryScheduler) Next(ctx context.Context, groups []string, wait time.Duration) (*Entry, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		m.mu.Lock()
		if entry := m.pop(groups); entry != nil {
			m.mu.Unlock()
			return entry, nil
		}
		notify := m.notify
		m.mu.Unlock()
		if wait <= 0 {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-notify:
		}
	}
}

func (m *MemoryScheduler) pop(groups []string) *Entry {
	for _, g := range groups {
		q := m.queues[g]
		if len(q) == 0 {
			continue
		}
		m.queues[g] = q[1:]
		m.running[g]++
		return &Entry{Group: g, JobID: q[0]}
	}
	return nil
}

func (m *MemoryScheduler) Done(_ context.Context, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running[entry.Group] > 0 {
		m.running[entry.Group]--
	}
	if m.running[entry.Group] == 0 {
		delete(m.running, entry.Group)
	}
	return nil
}

func (m *MemoryScheduler) Close() error {
	return nil
}

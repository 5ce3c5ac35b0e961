package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/epicwp/translation-orchestrator/internal/config"
	"github.com/redis/go-redis/v9"
)

// SingleGroup holds on-demand jobs that do not belong to a run.
const SingleGroup = "single"

const runGroupPrefix = "run-"

// Entry is one unit of work taken from a group. A run group entry is a claim
// ticket: JobID is zero and the consumer claims the next job of the run.
type Entry struct {
	Group string
	JobID int64
}

// Scheduler dispatches job processing off the caller's path.
type Scheduler interface {
	Enqueue(ctx context.Context, group string, jobID int64) error
	CancelAll(ctx context.Context, group string) (int64, error)
	CountPending(ctx context.Context, group string) (int64, error)
	CountRunning(ctx context.Context, group string) (int64, error)
	// Next blocks up to wait for an entry of one of groups, checked in order.
	// It returns nil when nothing arrived in time.
	Next(ctx context.Context, groups []string, wait time.Duration) (*Entry, error)
	// Done releases an entry returned by Next.
	Done(ctx context.Context, entry Entry) error
	Close() error
}

func RunGroup(runID int64) string {
	return fmt.Sprintf("%s%d", runGroupPrefix, runID)
}

// ParseRunGroup returns the run id of a run group.
func ParseRunGroup(group string) (int64, bool) {
	if !strings.HasPrefix(group, runGroupPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(group, runGroupPrefix), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// New builds the scheduler selected by the configuration.
func New(cfg *config.Config) (Scheduler, error) {
	switch cfg.Scheduler.Type {
	case "", "memory":
		return NewMemoryScheduler(), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Scheduler.RedisAddr,
			Password: cfg.Scheduler.RedisPassword,
			DB:       cfg.Scheduler.RedisDB,
		})
		return NewRedisScheduler(rdb, cfg.Scheduler.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown scheduler type %q", cfg.Scheduler.Type)
	}
}

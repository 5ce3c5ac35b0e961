package scheduler

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "orchestrator"

// RedisScheduler shares the queues between orchestrator processes. Each group
// is a list at <prefix>:queue:<group>; the number of entries being processed
// is a counter at <prefix>:running:<group>.
type RedisScheduler struct {
	rdb    *redis.Client
	prefix string
}

var _ Scheduler = (*RedisScheduler)(nil)

func NewRedisScheduler(rdb *redis.Client, prefix string) *RedisScheduler {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisScheduler{rdb: rdb, prefix: prefix}
}

func (q *RedisScheduler) queueKey(group string) string {
	return q.prefix + ":queue:" + group
}

func (q *RedisScheduler) runningKey(group string) string {
	return q.prefix + ":running:" + group
}

func (q *RedisScheduler) Enqueue(ctx context.Context, group string, jobID int64) error {
	return q.rdb.LPush(ctx, q.queueKey(group), jobID).Err()
}

func (q *RedisScheduler) CancelAll(ctx context.Context, group string) (int64, error) {
	pipe := q.rdb.TxPipeline()
	length := pipe.LLen(ctx, q.queueKey(group))
	pipe.Del(ctx, q.queueKey(group))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return length.Val(), nil
}

func (q *RedisScheduler) CountPending(ctx context.Context, group string) (int64, error) {
	return q.rdb.LLen(ctx, q.queueKey(group)).Result()
}

func (q *RedisScheduler) CountRunning(ctx context.Context, group string) (int64, error) {
	n, err := q.rdb.Get(ctx, q.runningKey(group)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (q *RedisScheduler) Next(ctx context.Context, groups []string, wait time.Duration) (*Entry, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(groups))
	for _, g := range groups {
		keys = append(keys, q.queueKey(g))
	}

	key, value, err := q.pop(ctx, keys, wait)
	if err != nil || key == "" {
		return nil, err
	}

	group := strings.TrimPrefix(key, q.prefix+":queue:")
	jobID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return nil, err
	}
	if err := q.rdb.Incr(ctx, q.runningKey(group)).Err(); err != nil {
		return nil, err
	}
	return &Entry{Group: group, JobID: jobID}, nil
}

// pop takes the oldest entry of the first non-empty key. BRPOP treats a zero
// timeout as no timeout at all, so a caller that does not wait gets a plain
// RPOP per key instead.
func (q *RedisScheduler) pop(ctx context.Context, keys []string, wait time.Duration) (string, string, error) {
	if wait <= 0 {
		for _, key := range keys {
			value, err := q.rdb.RPop(ctx, key).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return "", "", err
			}
			return key, value, nil
		}
		return "", "", nil
	}

	res, err := q.rdb.BRPop(ctx, wait, keys...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", "", nil
		}
		return "", "", err
	}
	if len(res) != 2 {
		return "", "", nil
	}
	return res[0], res[1], nil
}

func (q *RedisScheduler) Done(ctx context.Context, entry Entry) error {
	n, err := q.rdb.Decr(ctx, q.runningKey(entry.Group)).Result()
	if err != nil {
		return err
	}
	if n <= 0 {
		return q.rdb.Del(ctx, q.runningKey(entry.Group)).Err()
	}
	return nil
}

func (q *RedisScheduler) Close() error {
	return q.rdb.Close()
}

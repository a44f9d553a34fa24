package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultKey is the Redis list holding pending scan tasks.
const defaultKey = "dlpscan:scan_jobs"

// RedisQueue is a persistent FIFO backed by a Redis list. Producers LPUSH,
// workers BRPOP, so tasks survive process restarts.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue connects to the Redis at url (redis:// form) and verifies
// the connection.
func NewRedisQueue(ctx context.Context, url string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return &RedisQueue{client: client, key: defaultKey}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, task ScanTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encoding task: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueueing task: %w", err)
	}
	return nil
}

// Dequeue blocks on BRPOP in short intervals so context cancellation is
// honored between polls.
func (q *RedisQueue) Dequeue(ctx context.Context) (ScanTask, error) {
	for {
		res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
		if err == redis.Nil {
			if ctx.Err() != nil {
				return ScanTask{}, ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ScanTask{}, ctx.Err()
			}
			return ScanTask{}, fmt.Errorf("dequeueing task: %w", err)
		}
		var task ScanTask
		if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
			return ScanTask{}, fmt.Errorf("decoding task: %w", err)
		}
		return task, nil
	}
}

func (q *RedisQueue) Close() error { return q.client.Close() }

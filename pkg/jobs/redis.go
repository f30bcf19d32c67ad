package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue stores jobs in a Redis list: producers LPUSH, consumers BRPOP.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(url, key string) (*RedisQueue, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisQueueFromClient(redis.NewClient(opt), key), nil
}

func NewRedisQueueFromClient(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "meetai:jobs"
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", job.Name, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (Job, bool, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}
	if len(res) != 2 {
		return Job{}, false, fmt.Errorf("brpop: unexpected reply %v", res)
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return Job{}, false, fmt.Errorf("decode job: %w", err)
	}
	return job, true, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

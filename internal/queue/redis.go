// Package queue implements the Redis task queue that hands submitted
// jobs to the worker pool. A dequeue moves the job id from the ready
// list into an in-flight set with a visibility timeout; unacked leases
// are reclaimed by the maintenance loop so a crashed worker cannot
// strand a job forever.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	readyKey    = "jobs:queue:ready"
	inflightKey = "jobs:queue:inflight"
)

// dequeueScript pops the oldest ready job and registers its lease in
// one atomic step so a crash between the two cannot lose the job.
var dequeueScript = redis.NewScript(`
local job = redis.call('LPOP', KEYS[1])
if job then
  redis.call('ZADD', KEYS[2], ARGV[1], job)
  return job
end
return nil
`)

// RedisQueue is a FIFO job queue backed by a Redis list plus an
// in-flight sorted set scored by lease deadline.
type RedisQueue struct {
	client        *redis.Client
	visibilityTTL time.Duration
}

// NewRedisQueue creates a queue on an existing Redis client. The
// visibility timeout bounds how long a dequeued job may stay unacked
// before it is considered abandoned.
func NewRedisQueue(client *redis.Client, visibilityTTL time.Duration) *RedisQueue {
	if visibilityTTL <= 0 {
		visibilityTTL = 10 * time.Minute
	}
	return &RedisQueue{client: client, visibilityTTL: visibilityTTL}
}

// Enqueue appends a job id to the ready list.
func (q *RedisQueue) Enqueue(ctx context.Context, jobID string) error {
	if err := q.client.RPush(ctx, readyKey, jobID).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", jobID, err)
	}
	return nil
}

// DequeueWithLease pops the oldest ready job and places it in-flight
// with a visibility deadline. Returns "" when the queue is empty.
func (q *RedisQueue) DequeueWithLease(ctx context.Context) (string, error) {
	deadline := time.Now().Add(q.visibilityTTL).UnixMilli()
	res, err := dequeueScript.Run(ctx, q.client, []string{readyKey, inflightKey}, deadline).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("dequeue: %w", err)
	}
	jobID, ok := res.(string)
	if !ok {
		return "", fmt.Errorf("dequeue: unexpected script result type %T", res)
	}
	return jobID, nil
}

// ExtendLease pushes the visibility deadline forward for an in-flight
// job, used by long-running generations.
func (q *RedisQueue) ExtendLease(ctx context.Context, jobID string) error {
	return q.client.ZAdd(ctx, inflightKey, redis.Z{
		Score:  float64(time.Now().Add(q.visibilityTTL).UnixMilli()),
		Member: jobID,
	}).Err()
}

// Ack removes a job from in-flight tracking once its terminal
// transition has been persisted.
func (q *RedisQueue) Ack(ctx context.Context, jobID string) error {
	return q.client.ZRem(ctx, inflightKey, jobID).Err()
}

// RequeueExpired reclaims jobs whose lease deadline passed, pushing
// them back onto the ready list. Returns the reclaimed ids.
func (q *RedisQueue) RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error) {
	ids, err := q.client.ZRangeByScore(ctx, inflightKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    fmt.Sprintf("%d", now.UnixMilli()),
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("requeue expired: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := q.client.TxPipeline()
	for _, id := range ids {
		pipe.ZRem(ctx, inflightKey, id)
		pipe.RPush(ctx, readyKey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("requeue expired: %w", err)
	}
	return ids, nil
}

// Depth returns the number of jobs waiting for a worker.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, readyKey).Result()
}

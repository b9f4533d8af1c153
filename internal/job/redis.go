package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// recordKeyPrefix namespaces job records in the shared store.
const recordKeyPrefix = "jobs:record:"

// maxUpdateRetries bounds optimistic transaction retries when another
// writer touched the record between read and replace.
const maxUpdateRetries = 5

// Compile-time check that RedisRepository implements Repository.
var _ Repository = (*RedisRepository)(nil)

// RedisRepository stores job records as JSON values in Redis. It is the
// shared durable store visible to both the API process and the worker
// pool. Update uses an optimistic WATCH transaction to get atomic
// read/replace semantics on the record.
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository creates a Redis-backed job repository.
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func recordKey(id string) string {
	return recordKeyPrefix + id
}

// Create persists a new job record. SetNX guarantees exactly one job
// owns a given id.
func (r *RedisRepository) Create(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	ok, err := r.client.SetNX(ctx, recordKey(job.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	if !ok {
		return ErrJobExists
	}
	return nil
}

// FindByID retrieves a job record.
func (r *RedisRepository) FindByID(ctx context.Context, id string) (*Job, error) {
	data, err := r.client.Get(ctx, recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// Update applies fn under a WATCH transaction. If a concurrent writer
// replaces the record mid-flight the transaction fails and is retried
// with a fresh read.
func (r *RedisRepository) Update(ctx context.Context, id string, fn func(*Job) error) (*Job, error) {
	key := recordKey(id)
	var updated *Job

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrJobNotFound
		}
		if err != nil {
			return err
		}
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("unmarshal job %s: %w", id, err)
		}
		if err := fn(&job); err != nil {
			return err
		}
		next, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("marshal job %s: %w", id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = &job
		return nil
	}

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		err := r.client.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated.Clone(), nil
	}
	return nil, fmt.Errorf("update job %s: too many concurrent writers", id)
}

// List scans all job records, most recently created first.
func (r *RedisRepository) List(ctx context.Context) ([]*Job, error) {
	var jobs []*Job
	iter := r.client.Scan(ctx, 0, recordKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := r.client.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		jobs = append(jobs, &job)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	// Most recent first, matching the in-memory repository.
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
	})
	return jobs, nil
}

// Delete removes a job record.
func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, recordKey(id)).Result()
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

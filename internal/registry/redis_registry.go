package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/readably/api/internal/model"
)

// RedisRegistry keeps job snapshots as JSON under job:{id} with a TTL, so
// finished jobs age out without a sweeper. A terminal snapshot keeps its key
// alive for the full TTL for late status polls.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRegistry(client *redis.Client, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisRegistry{client: client, ttl: ttl}
}

func (r *RedisRegistry) key(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

// Create claims the job id with SETNX. If a snapshot already exists and is
// not terminal the claim fails; a terminal snapshot may be overwritten so a
// finished id can be reused.
func (r *RedisRegistry) Create(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.key(job.ID), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("claim job id: %w", err)
	}
	if ok {
		return nil
	}

	existing, err := r.Get(ctx, job.ID)
	if err != nil {
		return ErrAlreadyExists
	}
	if !existing.Status.Terminal() {
		return ErrAlreadyExists
	}
	return r.client.Set(ctx, r.key(job.ID), data, r.ttl).Err()
}

func (r *RedisRegistry) Get(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := r.client.Get(ctx, r.key(jobID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

// Update replaces the snapshot. It refuses to touch a snapshot that is
// already terminal, which keeps late stage writers from resurrecting a
// finished job. The check and the write run under WATCH so a cancel that
// lands between them aborts the competing write instead of being overwritten.
func (r *RedisRegistry) Update(ctx context.Context, job *model.Job) error {
	key := r.key(job.ID)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get job: %w", err)
		}
		var existing model.Job
		if err := json.Unmarshal(data, &existing); err != nil {
			return fmt.Errorf("unmarshal job: %w", err)
		}
		if existing.Status.Terminal() {
			return ErrTerminal
		}

		job.UpdatedAt = time.Now().UTC()
		out, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, r.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < 3; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("update job %s: too much write contention", job.ID)
}

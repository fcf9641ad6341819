package registry

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/readably/api/internal/model"
)

// MemoryRegistry mirrors RedisRegistry semantics without a Redis server.
// Snapshots are stored as marshaled JSON so reads return copies, the same
// isolation callers get from the Redis-backed store.
type MemoryRegistry struct {
	mu   sync.RWMutex
	jobs map[string][]byte
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{jobs: make(map[string][]byte)}
}

func (r *MemoryRegistry) Create(ctx context.Context, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if data, ok := r.jobs[job.ID]; ok {
		var existing model.Job
		if err := json.Unmarshal(data, &existing); err == nil && !existing.Status.Terminal() {
			return ErrAlreadyExists
		}
	}

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	r.jobs[job.ID] = data
	return nil
}

func (r *MemoryRegistry) Get(ctx context.Context, jobID string) (*model.Job, error) {
	r.mu.RLock()
	data, ok := r.jobs[jobID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *MemoryRegistry) Update(ctx context.Context, job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, ok := r.jobs[job.ID]
	if !ok {
		return ErrNotFound
	}
	var existing model.Job
	if err := json.Unmarshal(data, &existing); err != nil {
		return err
	}
	if existing.Status.Terminal() {
		return ErrTerminal
	}

	job.UpdatedAt = time.Now().UTC()
	updated, err := json.Marshal(job)
	if err != nil {
		return err
	}
	r.jobs[job.ID] = updated
	return nil
}

package callback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrEntryNotFound means no dead-letter entry exists for the job id.
var ErrEntryNotFound = errors.New("dead-letter entry not found")

// DeadLetter is one callback that exhausted its delivery attempts or was
// rejected outright, parked for manual replay.
type DeadLetter struct {
	JobID        string          `json:"jobId"`
	Kind         string          `json:"kind"` // "completion", "failure", "vocabulary"
	URL          string          `json:"url"`
	Payload      json.RawMessage `json:"payload"`
	Attempts     int             `json:"attempts"`
	LastError    string          `json:"lastError"`
	LastStatus   int             `json:"lastStatus,omitempty"`
	FirstAttempt time.Time       `json:"firstAttempt"`
	DeadAt       time.Time       `json:"deadAt"`
}

// DeadLetterStore holds undeliverable callbacks keyed by job id. One entry
// per job and kind; a later failure for the same key overwrites.
type DeadLetterStore interface {
	Put(ctx context.Context, entry *DeadLetter) error
	List(ctx context.Context) ([]*DeadLetter, error)
	Get(ctx context.Context, jobID, kind string) (*DeadLetter, error)
	Remove(ctx context.Context, jobID, kind string) error
}

const deadLetterKey = "callbacks:deadletter"

func field(jobID, kind string) string {
	return fmt.Sprintf("%s:%s", jobID, kind)
}

// RedisDeadLetterStore keeps dead letters in a single Redis hash so they
// survive restarts and are visible across instances.
type RedisDeadLetterStore struct {
	client *redis.Client
}

func NewRedisDeadLetterStore(client *redis.Client) *RedisDeadLetterStore {
	return &RedisDeadLetterStore{client: client}
}

func (s *RedisDeadLetterStore) Put(ctx context.Context, entry *DeadLetter) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	return s.client.HSet(ctx, deadLetterKey, field(entry.JobID, entry.Kind), data).Err()
}

func (s *RedisDeadLetterStore) List(ctx context.Context) ([]*DeadLetter, error) {
	values, err := s.client.HGetAll(ctx, deadLetterKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}

	entries := make([]*DeadLetter, 0, len(values))
	for _, raw := range values {
		var entry DeadLetter
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

func (s *RedisDeadLetterStore) Get(ctx context.Context, jobID, kind string) (*DeadLetter, error) {
	raw, err := s.client.HGet(ctx, deadLetterKey, field(jobID, kind)).Result()
	if err == redis.Nil {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dead letter: %w", err)
	}

	var entry DeadLetter
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("unmarshal dead letter: %w", err)
	}
	return &entry, nil
}

func (s *RedisDeadLetterStore) Remove(ctx context.Context, jobID, kind string) error {
	removed, err := s.client.HDel(ctx, deadLetterKey, field(jobID, kind)).Result()
	if err != nil {
		return fmt.Errorf("remove dead letter: %w", err)
	}
	if removed == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// MemoryDeadLetterStore is used when Redis is not configured, and in tests.
type MemoryDeadLetterStore struct {
	mu      sync.RWMutex
	entries map[string]*DeadLetter
}

func NewMemoryDeadLetterStore() *MemoryDeadLetterStore {
	return &MemoryDeadLetterStore{entries: make(map[string]*DeadLetter)}
}

func (s *MemoryDeadLetterStore) Put(ctx context.Context, entry *DeadLetter) error {
	cp := *entry
	s.mu.Lock()
	s.entries[field(entry.JobID, entry.Kind)] = &cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryDeadLetterStore) List(ctx context.Context) ([]*DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]*DeadLetter, 0, len(s.entries))
	for _, entry := range s.entries {
		cp := *entry
		entries = append(entries, &cp)
	}
	return entries, nil
}

// Get returns a copy, matching the Redis store: mutating the returned entry
// does not change what is parked until it is re-Put.
func (s *MemoryDeadLetterStore) Get(ctx context.Context, jobID, kind string) (*DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[field(jobID, kind)]
	if !ok {
		return nil, ErrEntryNotFound
	}
	cp := *entry
	return &cp, nil
}

func (s *MemoryDeadLetterStore) Remove(ctx context.Context, jobID, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := field(jobID, kind)
	if _, ok := s.entries[key]; !ok {
		return ErrEntryNotFound
	}
	delete(s.entries, key)
	return nil
}

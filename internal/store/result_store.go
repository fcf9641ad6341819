package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/readably/api/internal/client"
)

// ErrNotFound means no result document exists for the job id.
var ErrNotFound = errors.New("result not found")

// ResultStore persists assembled result documents as JSON. Put must complete
// before any completion notification goes out, so a consumer that reacts to
// the notification can always fetch the result. Overwriting an existing key
// is allowed; the payload is identical on a re-run.
type ResultStore interface {
	Put(ctx context.Context, jobID string, data []byte) (location string, err error)
	Get(ctx context.Context, jobID string) ([]byte, error)
}

// URLProvider is implemented by stores that can mint a fetchable URL for a
// stored result document, carried on the completion callback.
type URLProvider interface {
	URL(ctx context.Context, jobID string) (string, error)
}

// S3ResultStore writes result documents under a fixed key scheme in object
// storage.
type S3ResultStore struct {
	storage client.StorageClient
	urlTTL  time.Duration
}

func NewS3ResultStore(storage client.StorageClient, urlTTL time.Duration) *S3ResultStore {
	if urlTTL <= 0 {
		urlTTL = 24 * time.Hour
	}
	return &S3ResultStore{storage: storage, urlTTL: urlTTL}
}

func resultKey(jobID string) string {
	return fmt.Sprintf("results/%s.json", jobID)
}

func (s *S3ResultStore) Put(ctx context.Context, jobID string, data []byte) (string, error) {
	key := resultKey(jobID)
	if err := s.storage.Upload(ctx, key, data, "application/json"); err != nil {
		return "", fmt.Errorf("upload result: %w", err)
	}
	return key, nil
}

func (s *S3ResultStore) Get(ctx context.Context, jobID string) ([]byte, error) {
	data, err := s.storage.Download(ctx, resultKey(jobID))
	if err != nil {
		if errors.Is(err, client.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("download result: %w", err)
	}
	return data, nil
}

// URL returns a fetchable URL for a stored result: the public URL when the
// bucket has one, a presigned GET bounded by the result retention otherwise.
func (s *S3ResultStore) URL(ctx context.Context, jobID string) (string, error) {
	key := resultKey(jobID)
	if u := s.storage.GetPublicURL(key); u != "" {
		return u, nil
	}
	return s.storage.GetSignedURL(ctx, key, s.urlTTL)
}

// MemoryResultStore is used when object storage is not configured, and in
// tests.
type MemoryResultStore struct {
	mu      sync.RWMutex
	results map[string][]byte
}

func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{results: make(map[string][]byte)}
}

func (s *MemoryResultStore) Put(ctx context.Context, jobID string, data []byte) (string, error) {
	buf := make([]byte, len(data))
	copy(buf, data)
	s.mu.Lock()
	s.results[jobID] = buf
	s.mu.Unlock()
	return resultKey(jobID), nil
}

func (s *MemoryResultStore) Get(ctx context.Context, jobID string) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.results[jobID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

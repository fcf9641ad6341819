package callback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/readably/api/internal/config"
	"github.com/readably/api/internal/model"
	"github.com/readably/api/internal/stage"
)

func newTestDispatcher(url string, maxAttempts int) (*Dispatcher, *MemoryDeadLetterStore) {
	store := NewMemoryDeadLetterStore()
	d := NewDispatcher(&config.CallbackConfig{
		URL:         url,
		Token:       "secret-token",
		MaxAttempts: maxAttempts,
		Timeout:     2,
	}, store)
	d.Backoff = time.Millisecond
	return d, store
}

func completion(jobID string) *CompletionPayload {
	return &CompletionPayload{
		JobID:          jobID,
		Status:         model.JobStatusCompleted,
		ResultLocation: "results/" + jobID + ".json",
		Timestamp:      time.Now().UTC(),
	}
}

func TestDeliver_Success(t *testing.T) {
	var gotToken atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken.Store(r.Header.Get(TokenHeader))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, store := newTestDispatcher(srv.URL, 5)
	if err := d.SendCompletion(context.Background(), completion("job-1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotToken.Load() != "secret-token" {
		t.Errorf("expected token header, got %v", gotToken.Load())
	}
	entries, _ := store.List(context.Background())
	if len(entries) != 0 {
		t.Errorf("expected no dead letters, got %d", len(entries))
	}
}

func TestDeliver_ServerErrorRetriedThenDeadLettered(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d, store := newTestDispatcher(srv.URL, 5)
	err := d.SendCompletion(context.Background(), completion("job-1"))
	if err == nil {
		t.Fatal("expected delivery failure")
	}
	if n := atomic.LoadInt32(&calls); n != 5 {
		t.Errorf("expected 5 attempts, got %d", n)
	}

	entries, _ := store.List(context.Background())
	if len(entries) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(entries))
	}
	entry := entries[0]
	if entry.JobID != "job-1" || entry.Kind != KindCompletion {
		t.Errorf("unexpected dead letter identity: %s/%s", entry.JobID, entry.Kind)
	}
	if entry.Attempts != 5 {
		t.Errorf("expected 5 recorded attempts, got %d", entry.Attempts)
	}
	if entry.LastStatus != http.StatusInternalServerError {
		t.Errorf("expected last status 500, got %d", entry.LastStatus)
	}
	if stage.KindOf(err) != stage.KindDelivery {
		t.Errorf("expected delivery classification, got %s", stage.KindOf(err))
	}
	if code := stage.CodeOf(err, ""); code != model.ErrCodeDelivery {
		t.Errorf("expected DELIVERY_ERROR, got %s", code)
	}
}

func TestDeliver_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	d, store := newTestDispatcher(srv.URL, 5)
	err := d.SendCompletion(context.Background(), completion("job-1"))
	if err == nil {
		t.Fatal("expected delivery failure")
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected 1 attempt for a 4xx, got %d", n)
	}

	entries, _ := store.List(context.Background())
	if len(entries) != 1 {
		t.Errorf("expected rejected delivery to dead-letter, got %d entries", len(entries))
	}
}

func TestDeliver_RateLimitRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d, _ := newTestDispatcher(srv.URL, 5)
	if err := d.SendCompletion(context.Background(), completion("job-1")); err != nil {
		t.Fatalf("expected success after rate limit clears, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestDeliver_Unconfigured(t *testing.T) {
	d, store := newTestDispatcher("", 5)
	if err := d.SendCompletion(context.Background(), completion("job-1")); err != nil {
		t.Fatalf("unconfigured dispatcher must be a no-op, got %v", err)
	}
	entries, _ := store.List(context.Background())
	if len(entries) != 0 {
		t.Errorf("expected no dead letters, got %d", len(entries))
	}
}

func TestReplay_RemovesEntryOnSuccess(t *testing.T) {
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d, store := newTestDispatcher(srv.URL, 2)
	if err := d.SendFailure(context.Background(), &FailurePayload{
		JobID:     "job-1",
		Status:    model.JobStatusFailed,
		ErrorCode: model.ErrCodeStorage,
		Error:     "result store unavailable",
		Timestamp: time.Now().UTC(),
	}); err == nil {
		t.Fatal("expected initial delivery to fail")
	}

	healthy.Store(true)
	if err := d.Replay(context.Background(), "job-1", KindFailure); err != nil {
		t.Fatalf("replay: %v", err)
	}

	if _, err := store.Get(context.Background(), "job-1", KindFailure); err != ErrEntryNotFound {
		t.Errorf("expected entry removed after replay, got %v", err)
	}
}

func TestReplay_FailurePersistsAttemptBookkeeping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d, store := newTestDispatcher(srv.URL, 2)
	if err := d.SendCompletion(context.Background(), completion("job-1")); err == nil {
		t.Fatal("expected initial delivery to fail")
	}

	if err := d.Replay(context.Background(), "job-1", KindCompletion); err == nil {
		t.Fatal("expected replay to fail")
	}

	entry, err := store.Get(context.Background(), "job-1", KindCompletion)
	if err != nil {
		t.Fatalf("expected entry still parked, got %v", err)
	}
	// 2 original attempts plus 2 replay attempts
	if entry.Attempts != 4 {
		t.Errorf("expected 4 recorded attempts, got %d", entry.Attempts)
	}
}

func TestReplay_UnknownEntry(t *testing.T) {
	d, _ := newTestDispatcher("http://localhost:0", 1)
	if err := d.Replay(context.Background(), "missing", KindCompletion); err != ErrEntryNotFound {
		t.Errorf("expected ErrEntryNotFound, got %v", err)
	}
}

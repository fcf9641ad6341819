package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/readably/api/internal/callback"
)

func parkEntry(t *testing.T, ta *testApp, jobID, kind, url string) {
	t.Helper()
	entry := &callback.DeadLetter{
		JobID:        jobID,
		Kind:         kind,
		URL:          url,
		Payload:      json.RawMessage(`{"jobId":"` + jobID + `"}`),
		Attempts:     5,
		LastError:    "callback endpoint returned 500",
		LastStatus:   500,
		FirstAttempt: time.Now().UTC(),
		DeadAt:       time.Now().UTC(),
	}
	if err := ta.deadLetters.Put(context.Background(), entry); err != nil {
		t.Fatalf("park entry: %v", err)
	}
}

func TestDeadLetter_ListEntries(t *testing.T) {
	ta := setupApp(t)
	parkEntry(t, ta, "job-a", callback.KindCompletion, "http://callbacks.invalid/hook")
	parkEntry(t, ta, "job-b", callback.KindFailure, "http://callbacks.invalid/hook")

	resp, err := doRequest(ta.app, http.MethodGet, "/api/callbacks/deadletter", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, resp, http.StatusOK)

	body := parseJSON(t, resp)
	if count, _ := body["count"].(float64); count != 2 {
		t.Errorf("expected 2 entries, got %v", body["count"])
	}
}

func TestDeadLetter_ReplaySucceedsAndRemovesEntry(t *testing.T) {
	ta := setupApp(t)

	var received int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	parkEntry(t, ta, "job-a", callback.KindCompletion, srv.URL)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/callbacks/deadletter/job-a/replay?kind=completion", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, resp, http.StatusOK)
	readBody(t, resp)

	if atomic.LoadInt32(&received) != 1 {
		t.Errorf("expected 1 delivery, got %d", received)
	}
	if _, err := ta.deadLetters.Get(context.Background(), "job-a", callback.KindCompletion); !errors.Is(err, callback.ErrEntryNotFound) {
		t.Errorf("expected entry removed after replay, got %v", err)
	}
}

func TestDeadLetter_ReplayUnknownEntry(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/callbacks/deadletter/missing/replay?kind=completion", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, resp, http.StatusNotFound)
	readBody(t, resp)
}

func TestDeadLetter_ReplayRequiresKind(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/callbacks/deadletter/job-a/replay", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	assertStatus(t, resp, http.StatusBadRequest)
	readBody(t, resp)
}

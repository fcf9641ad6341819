package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/readably/api/internal/bus"
	"github.com/readably/api/internal/model"
	"github.com/readably/api/internal/registry"
	"github.com/readably/api/internal/store"
)

// recordingRunner captures enqueued jobs without executing anything.
type recordingRunner struct {
	mu       sync.Mutex
	enqueued []string
}

func (r *recordingRunner) EnqueueDocument(ctx context.Context, jobID string, payload *model.DocumentJobPayload) error {
	r.mu.Lock()
	r.enqueued = append(r.enqueued, jobID)
	r.mu.Unlock()
	return nil
}

func (r *recordingRunner) EnqueueVocabulary(ctx context.Context, jobID string, payload *model.VocabularyJobPayload) error {
	r.mu.Lock()
	r.enqueued = append(r.enqueued, jobID)
	r.mu.Unlock()
	return nil
}

func newTestService() (*DocumentService, *registry.MemoryRegistry, *bus.MemoryBus, *recordingRunner) {
	reg := registry.NewMemoryRegistry()
	memBus := bus.NewMemoryBus()
	runner := &recordingRunner{}
	// input validation off: tests submit synthetic bytes, not real PDFs
	svc := NewDocumentService(reg, store.NewMemoryResultStore(), memBus, runner, false)
	return svc, reg, memBus, runner
}

func TestSubmit_GeneratesJobID(t *testing.T) {
	svc, _, _, runner := newTestService()

	resp, err := svc.Submit(context.Background(), "", "chapter1.pdf", []byte("%PDF-1.4"), model.ProcessingOptions{})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if resp.JobID == "" || resp.Status != model.JobStatusPending {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(runner.enqueued) != 1 || runner.enqueued[0] != resp.JobID {
		t.Errorf("expected job enqueued once, got %v", runner.enqueued)
	}
}

func TestSubmit_RejectsDuplicateLiveJob(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "job-1", "a.pdf", []byte("%PDF-1.4"), model.ProcessingOptions{}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := svc.Submit(ctx, "job-1", "a.pdf", []byte("%PDF-1.4"), model.ProcessingOptions{})
	if !errors.Is(err, ErrDuplicateJob) {
		t.Errorf("expected ErrDuplicateJob, got %v", err)
	}
}

func TestSubmit_RejectsEmptyUpload(t *testing.T) {
	svc, _, _, _ := newTestService()
	_, err := svc.Submit(context.Background(), "", "a.pdf", nil, model.ProcessingOptions{})
	if !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("expected ErrInvalidDocument, got %v", err)
	}
}

func TestCancel_LiveJob(t *testing.T) {
	svc, reg, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "job-1", "a.pdf", []byte("%PDF-1.4"), model.ProcessingOptions{}); err != nil {
		t.Fatal(err)
	}
	resp, err := svc.Cancel(ctx, "job-1")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !resp.Success || resp.Status != model.JobStatusFailed {
		t.Errorf("unexpected cancel response: %+v", resp)
	}

	job, _ := reg.Get(ctx, "job-1")
	if job.Error == nil || job.Error.Code != model.ErrCodeCanceled {
		t.Errorf("expected JOB_CANCELED, got %+v", job.Error)
	}
}

func TestCancel_PublishesExactlyOneFailure(t *testing.T) {
	svc, _, memBus, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "job-1", "a.pdf", []byte("%PDF-1.4"), model.ProcessingOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Cancel(ctx, "job-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	failures, results := 0, 0
	for _, env := range memBus.History("job-1") {
		switch env.Kind {
		case "failure":
			failures++
			var msg model.FailureMessage
			if err := json.Unmarshal(env.Payload, &msg); err != nil {
				t.Fatalf("decode failure: %v", err)
			}
			if msg.ErrorCode != model.ErrCodeCanceled {
				t.Errorf("expected JOB_CANCELED, got %s", msg.ErrorCode)
			}
		case "result":
			results++
		}
	}
	if failures != 1 {
		t.Errorf("expected exactly one failure message, got %d", failures)
	}
	if results != 0 {
		t.Errorf("expected no result message, got %d", results)
	}

	// A second cancel is rejected and must not publish another terminal.
	if _, err := svc.Cancel(ctx, "job-1"); !errors.Is(err, ErrJobFinished) {
		t.Fatalf("expected ErrJobFinished, got %v", err)
	}
	if n := len(memBus.History("job-1")); n != 1 {
		t.Errorf("expected publication history unchanged, got %d messages", n)
	}
}

func TestCancel_TerminalJob(t *testing.T) {
	svc, reg, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "job-1", "a.pdf", []byte("%PDF-1.4"), model.ProcessingOptions{}); err != nil {
		t.Fatal(err)
	}
	job, _ := reg.Get(ctx, "job-1")
	job.Status = model.JobStatusCompleted
	if err := reg.Update(ctx, job); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.Cancel(ctx, "job-1"); !errors.Is(err, ErrJobFinished) {
		t.Errorf("expected ErrJobFinished, got %v", err)
	}
}

func TestGetResult_NotReady(t *testing.T) {
	svc, _, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "job-1", "a.pdf", []byte("%PDF-1.4"), model.ProcessingOptions{}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetResult(ctx, "job-1"); !errors.Is(err, ErrResultNotReady) {
		t.Errorf("expected ErrResultNotReady, got %v", err)
	}
}

func TestGetStatus_Unknown(t *testing.T) {
	svc, _, _, _ := newTestService()
	if _, err := svc.GetStatus(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

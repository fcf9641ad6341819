package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/readably/api/internal/model"
)

func newJob(id string, status model.JobStatus) *model.Job {
	now := time.Now().UTC()
	return &model.Job{
		ID:        id,
		Type:      model.JobTypeDocument,
		Filename:  "chapter1.pdf",
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreate_RejectsLiveDuplicate(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	if err := r.Create(ctx, newJob("job-1", model.JobStatusPending)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := r.Create(ctx, newJob("job-1", model.JobStatusPending))
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestCreate_AllowsReuseAfterTerminal(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	if err := r.Create(ctx, newJob("job-1", model.JobStatusCompleted)); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := r.Create(ctx, newJob("job-1", model.JobStatusPending)); err != nil {
		t.Errorf("expected terminal id to be reusable, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	r := NewMemoryRegistry()
	_, err := r.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	if err := r.Create(ctx, newJob("job-1", model.JobStatusPending)); err != nil {
		t.Fatal(err)
	}
	a, _ := r.Get(ctx, "job-1")
	a.Progress = 99

	b, _ := r.Get(ctx, "job-1")
	if b.Progress != 0 {
		t.Errorf("mutating a snapshot leaked into the store: progress=%d", b.Progress)
	}
}

func TestUpdate_RefusesTerminalSnapshot(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	job := newJob("job-1", model.JobStatusPending)
	if err := r.Create(ctx, job); err != nil {
		t.Fatal(err)
	}

	job.Status = model.JobStatusCompleted
	job.Progress = 100
	if err := r.Update(ctx, job); err != nil {
		t.Fatalf("terminal update: %v", err)
	}

	job.Status = model.JobStatusProcessing
	err := r.Update(ctx, job)
	if !errors.Is(err, ErrTerminal) {
		t.Errorf("expected ErrTerminal, got %v", err)
	}
}

func TestUpdate_ConcurrentWritersCannotResurrectTerminal(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	if err := r.Create(ctx, newJob("job-1", model.JobStatusProcessing)); err != nil {
		t.Fatal(err)
	}

	canceled := newJob("job-1", model.JobStatusFailed)
	canceled.Error = &model.ErrorInfo{Code: model.ErrCodeCanceled, Message: "canceled by caller"}
	if err := r.Update(ctx, canceled); err != nil {
		t.Fatalf("terminal write: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			late := newJob("job-1", model.JobStatusProcessing)
			if err := r.Update(ctx, late); !errors.Is(err, ErrTerminal) {
				t.Errorf("late writer got %v, want ErrTerminal", err)
			}
		}()
	}
	wg.Wait()

	job, err := r.Get(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if job.Status != model.JobStatusFailed || job.Error == nil || job.Error.Code != model.ErrCodeCanceled {
		t.Errorf("terminal snapshot was overwritten: %s %+v", job.Status, job.Error)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	r := NewMemoryRegistry()
	err := r.Update(context.Background(), newJob("missing", model.JobStatusProcessing))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/readably/api/internal/bus"
	"github.com/readably/api/internal/model"
	"github.com/readably/api/internal/registry"
	"github.com/readably/api/internal/store"
)

var (
	// ErrInvalidDocument means the upload is not a readable PDF.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrDuplicateJob means a live job already holds the requested id.
	ErrDuplicateJob = errors.New("duplicate job")
	// ErrJobNotFound mirrors the registry's not-found for the HTTP layer.
	ErrJobNotFound = errors.New("job not found")
	// ErrResultNotReady means the job has not completed yet.
	ErrResultNotReady = errors.New("result not ready")
	// ErrJobFinished means a cancel arrived after the job reached a
	// terminal state.
	ErrJobFinished = errors.New("job already finished")
)

// DocumentService accepts document submissions, validates them, claims the
// job id and hands the job to the runner. Reads go straight to the registry
// and result store.
type DocumentService struct {
	registry      registry.Registry
	results       store.ResultStore
	bus           bus.Publisher
	runner        TaskRunner
	validateInput bool
}

func NewDocumentService(reg registry.Registry, results store.ResultStore, publisher bus.Publisher, runner TaskRunner, validateInput bool) *DocumentService {
	return &DocumentService{
		registry:      reg,
		results:       results,
		bus:           publisher,
		runner:        runner,
		validateInput: validateInput,
	}
}

// newJobID returns an id in the form job_{hex16}_{unix}.
func newJobID() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("job_%s_%d", raw[:16], time.Now().Unix())
}

// Submit validates the PDF, claims the job id, enqueues the work and returns
// the accepted job. A caller-supplied id lets the owning system correlate;
// an empty one gets a generated id.
func (s *DocumentService) Submit(ctx context.Context, jobID, filename string, pdf []byte, opts model.ProcessingOptions) (*model.ProcessStartResponse, error) {
	if len(pdf) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrInvalidDocument)
	}

	pageCount := 0
	if s.validateInput {
		n, err := api.PageCount(bytes.NewReader(pdf), nil)
		if err != nil {
			return nil, fmt.Errorf("%w: not a readable PDF", ErrInvalidDocument)
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: document has no pages", ErrInvalidDocument)
		}
		pageCount = n
	}

	if jobID == "" {
		jobID = newJobID()
	}

	now := time.Now().UTC()
	job := &model.Job{
		ID:        jobID,
		Type:      model.JobTypeDocument,
		Filename:  filename,
		Status:    model.JobStatusPending,
		PageCount: pageCount,
		Options:   opts,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.registry.Create(ctx, job); err != nil {
		if errors.Is(err, registry.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, jobID)
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}

	payload := &model.DocumentJobPayload{Filename: filename, PDF: pdf, Options: opts}
	if err := s.runner.EnqueueDocument(ctx, jobID, payload); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	return &model.ProcessStartResponse{
		JobID:     jobID,
		Status:    model.JobStatusPending,
		PageCount: pageCount,
		CreatedAt: now,
	}, nil
}

// GetStatus returns the current job snapshot.
func (s *DocumentService) GetStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.registry.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	return &model.JobStatusResponse{
		JobID:           job.ID,
		Type:            job.Type,
		Status:          job.Status,
		Progress:        job.Progress,
		CurrentStage:    job.CurrentStage,
		Error:           job.Error,
		ResultLocation:  job.ResultLocation,
		PageCount:       job.PageCount,
		TotalBlocks:     job.TotalBlocks,
		CompletedBlocks: job.CompletedBlocks,
		FailedBlocks:    job.FailedBlocks,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		CompletedAt:     job.CompletedAt,
	}, nil
}

// GetResult returns the stored aggregate for a completed job as raw JSON.
func (s *DocumentService) GetResult(ctx context.Context, jobID string) ([]byte, error) {
	job, err := s.registry.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, ErrResultNotReady
	}

	data, err := s.results.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrResultNotReady
		}
		return nil, err
	}
	return data, nil
}

// Cancel marks a live job FAILED with JOB_CANCELED and publishes the single
// terminal failure notification. The cancel is advisory: the pipeline notices
// the terminal snapshot at its next transition and abandons the run without
// publishing a second terminal; in-flight collaborator calls are not aborted.
func (s *DocumentService) Cancel(ctx context.Context, jobID string) (*model.CancelResponse, error) {
	job, err := s.registry.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, ErrJobFinished
	}

	now := time.Now().UTC()
	job.Status = model.JobStatusFailed
	job.Error = &model.ErrorInfo{Code: model.ErrCodeCanceled, Message: "canceled by caller"}
	job.CompletedAt = &now
	if err := s.registry.Update(ctx, job); err != nil {
		if errors.Is(err, registry.ErrTerminal) {
			return nil, ErrJobFinished
		}
		return nil, err
	}

	// The terminal write won, so this is the only failure publication for
	// the job; the abandoned run publishes nothing.
	if err := s.bus.PublishFailure(ctx, jobID, model.ErrCodeCanceled, "canceled by caller"); err != nil {
		log.Printf("[Service] publish cancel failure for %s: %v", jobID, err)
	}

	return &model.CancelResponse{Success: true, JobID: jobID, Status: model.JobStatusFailed}, nil
}

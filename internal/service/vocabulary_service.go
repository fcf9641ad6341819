package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/readably/api/internal/model"
	"github.com/readably/api/internal/registry"
)

// VocabularyService accepts standalone vocabulary jobs: the caller supplies
// the sentences, the pipeline analyzes them and reports per-block results.
type VocabularyService struct {
	registry registry.Registry
	runner   TaskRunner
}

func NewVocabularyService(reg registry.Registry, runner TaskRunner) *VocabularyService {
	return &VocabularyService{registry: reg, runner: runner}
}

// Start claims a job id and enqueues the vocabulary work.
func (s *VocabularyService) Start(ctx context.Context, req *model.VocabularyStartRequest) (*model.ProcessStartResponse, error) {
	jobID := req.JobID
	if jobID == "" {
		jobID = newJobID()
	}

	now := time.Now().UTC()
	job := &model.Job{
		ID:          jobID,
		Type:        model.JobTypeVocabulary,
		Status:      model.JobStatusPending,
		TotalBlocks: len(req.Items),
		Options: model.ProcessingOptions{
			EnableVocabulary: true,
			EnablePhonemes:   req.EnablePhonemes,
			MaxConcurrent:    req.MaxConcurrent,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.registry.Create(ctx, job); err != nil {
		if errors.Is(err, registry.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateJob, jobID)
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}

	payload := &model.VocabularyJobPayload{
		TextbookID: req.TextbookID,
		Items:      req.Items,
		Options:    job.Options,
	}
	if err := s.runner.EnqueueVocabulary(ctx, jobID, payload); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	return &model.ProcessStartResponse{
		JobID:     jobID,
		Status:    model.JobStatusPending,
		CreatedAt: now,
	}, nil
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/readably/api/internal/model"
	"github.com/readably/api/internal/pipeline"
)

// VocabularyWorker consumes standalone vocabulary tasks.
type VocabularyWorker struct {
	orchestrator *pipeline.Orchestrator
}

func NewVocabularyWorker(orchestrator *pipeline.Orchestrator) *VocabularyWorker {
	return &VocabularyWorker{orchestrator: orchestrator}
}

// ProcessTask handles one queued vocabulary job.
func (w *VocabularyWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var envelope struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(t.Payload(), &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	var payload model.VocabularyJobPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal vocabulary payload: %w", err)
	}

	log.Printf("Starting vocabulary job: %s (%d blocks)", envelope.JobID, len(payload.Items))
	return w.orchestrator.RunVocabulary(ctx, envelope.JobID, &payload)
}

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

// DocumentWorker consumes document tasks and drives them through the
// pipeline. All outcome handling lives in the orchestrator; the worker only
// decodes the envelope.
type DocumentWorker struct {
	orchestrator *pipeline.Orchestrator
}

func NewDocumentWorker(orchestrator *pipeline.Orchestrator) *DocumentWorker {
	return &DocumentWorker{orchestrator: orchestrator}
}

// ProcessTask handles one queued document job.
func (w *DocumentWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var envelope struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(t.Payload(), &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	var payload model.DocumentJobPayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return fmt.Errorf("failed to unmarshal document payload: %w", err)
	}

	log.Printf("Starting document job: %s (%s)", envelope.JobID, payload.Filename)
	return w.orchestrator.Run(ctx, envelope.JobID, &payload)
}

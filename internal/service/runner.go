package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/readably/api/internal/model"
	"github.com/readably/api/internal/pipeline"
)

const (
	TaskTypeDocument   = "document:process"
	TaskTypeVocabulary = "vocabulary:process"

	QueueDocuments  = "documents"
	QueueVocabulary = "vocabulary"
)

// TaskRunner hands a claimed job to the execution side. The queue-backed
// runner is the production path; the inline runner covers dev and tests
// where Redis is not available.
type TaskRunner interface {
	EnqueueDocument(ctx context.Context, jobID string, payload *model.DocumentJobPayload) error
	EnqueueVocabulary(ctx context.Context, jobID string, payload *model.VocabularyJobPayload) error
}

// taskEnvelope is the wire shape of a queued task.
type taskEnvelope struct {
	JobID   string          `json:"jobId"`
	Payload json.RawMessage `json:"payload"`
}

// AsynqRunner enqueues jobs on Redis-backed queues. TaskID pins the task to
// the job id so a duplicate enqueue is rejected by the queue as well;
// MaxRetry is zero because the pipeline owns all retrying.
type AsynqRunner struct {
	client    *asynq.Client
	retention time.Duration
}

func NewAsynqRunner(client *asynq.Client, retention time.Duration) *AsynqRunner {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &AsynqRunner{client: client, retention: retention}
}

func (r *AsynqRunner) enqueue(ctx context.Context, taskType, queue, jobID string, payload interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(taskEnvelope{JobID: jobID, Payload: payloadBytes})
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}

	_, err = r.client.EnqueueContext(ctx, asynq.NewTask(taskType, data),
		asynq.Queue(queue),
		asynq.TaskID(jobID),
		asynq.MaxRetry(0),
		asynq.Retention(r.retention),
	)
	if err != nil {
		return fmt.Errorf("enqueue task: %w", err)
	}
	return nil
}

func (r *AsynqRunner) EnqueueDocument(ctx context.Context, jobID string, payload *model.DocumentJobPayload) error {
	return r.enqueue(ctx, TaskTypeDocument, QueueDocuments, jobID, payload)
}

func (r *AsynqRunner) EnqueueVocabulary(ctx context.Context, jobID string, payload *model.VocabularyJobPayload) error {
	return r.enqueue(ctx, TaskTypeVocabulary, QueueVocabulary, jobID, payload)
}

// InlineRunner executes jobs on tracked goroutines inside the API process.
// Handles are kept per job id so shutdown can drain and health can report
// what is in flight.
type InlineRunner struct {
	orchestrator *pipeline.Orchestrator

	mu      sync.Mutex
	wg      sync.WaitGroup
	handles map[string]time.Time
}

func NewInlineRunner(orchestrator *pipeline.Orchestrator) *InlineRunner {
	return &InlineRunner{
		orchestrator: orchestrator,
		handles:      make(map[string]time.Time),
	}
}

func (r *InlineRunner) run(jobID string, fn func(context.Context) error) {
	r.mu.Lock()
	r.handles[jobID] = time.Now()
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer func() {
			r.mu.Lock()
			delete(r.handles, jobID)
			r.mu.Unlock()
			r.wg.Done()
		}()
		if err := fn(context.Background()); err != nil {
			log.Printf("[Runner] job %s: %v", jobID, err)
		}
	}()
}

func (r *InlineRunner) EnqueueDocument(ctx context.Context, jobID string, payload *model.DocumentJobPayload) error {
	r.run(jobID, func(ctx context.Context) error {
		return r.orchestrator.Run(ctx, jobID, payload)
	})
	return nil
}

func (r *InlineRunner) EnqueueVocabulary(ctx context.Context, jobID string, payload *model.VocabularyJobPayload) error {
	r.run(jobID, func(ctx context.Context) error {
		return r.orchestrator.RunVocabulary(ctx, jobID, payload)
	})
	return nil
}

// ActiveJobs returns the number of jobs currently executing inline.
func (r *InlineRunner) ActiveJobs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Wait blocks until all inline jobs drain. Used on shutdown and in tests.
func (r *InlineRunner) Wait() {
	r.wg.Wait()
}

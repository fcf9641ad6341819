package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/readably/api/internal/bus"
	"github.com/readably/api/internal/callback"
	"github.com/readably/api/internal/model"
	"github.com/readably/api/internal/registry"
	"github.com/readably/api/internal/stage"
	"github.com/readably/api/internal/store"
)

// Orchestrator drives a job through its stages. It owns all state
// transitions, publishes every notification, and guarantees exactly one
// terminal publication per job.
type Orchestrator struct {
	registry      registry.Registry
	bus           bus.Publisher
	store         store.ResultStore
	dispatcher    *callback.Dispatcher
	extractor     Extractor
	transformer   Transformer
	images        ImageGenerator
	executor      *stage.Executor
	maxConcurrent int
}

func NewOrchestrator(
	reg registry.Registry,
	publisher bus.Publisher,
	results store.ResultStore,
	dispatcher *callback.Dispatcher,
	extractor Extractor,
	transformer Transformer,
	images ImageGenerator,
	executor *stage.Executor,
	maxConcurrent int,
) *Orchestrator {
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	return &Orchestrator{
		registry:      reg,
		bus:           publisher,
		store:         results,
		dispatcher:    dispatcher,
		extractor:     extractor,
		transformer:   transformer,
		images:        images,
		executor:      executor,
		maxConcurrent: maxConcurrent,
	}
}

// jobRun tracks the in-flight state of one job execution. Progress only ever
// moves forward; a registry terminal refusal means the job was canceled
// underneath us and the run abandons without a second terminal publication.
type jobRun struct {
	o        *Orchestrator
	job      *model.Job
	progress int
	started  time.Time
}

// Run executes the document pipeline for a submitted job. It is invoked by
// the queue worker; the returned error is for the worker's log only, every
// caller-visible outcome goes through the registry and the bus.
func (o *Orchestrator) Run(ctx context.Context, jobID string, payload *model.DocumentJobPayload) error {
	job, err := o.registry.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if job.Status.Terminal() {
		log.Printf("[Pipeline] job %s already terminal (%s), skipping", jobID, job.Status)
		return nil
	}

	r := &jobRun{o: o, job: job, started: time.Now()}
	job.Status = model.JobStatusProcessing
	if err := r.advance(ctx, model.StageExtraction, stageStart(model.StageExtraction)); err != nil {
		return r.abandon(err)
	}

	// Extraction
	var chunks []model.ExtractedChunk
	err = o.executor.Run(ctx, job.ID, "extraction", func(ctx context.Context) error {
		c, pages, err := o.extractor.Extract(ctx, payload.Filename, payload.PDF)
		if err != nil {
			return err
		}
		chunks = c
		if pages > 0 {
			job.PageCount = pages
		}
		return nil
	})
	if err != nil {
		return r.fail(ctx, err)
	}
	if len(chunks) == 0 {
		return r.fail(ctx, stage.Input(model.ErrCodeInput, "document contains no extractable text"))
	}
	if err := r.advance(ctx, model.StageTransformation, stageStart(model.StageTransformation)); err != nil {
		return r.abandon(err)
	}

	// Transformation, chunk by chunk
	var blocks []model.ContentBlock
	for i, chunk := range chunks {
		chunk := chunk
		var out []model.ContentBlock
		err := o.executor.Run(ctx, job.ID, "transformation", func(ctx context.Context) error {
			b, err := o.transformer.TransformChunk(ctx, chunk, payload.Options)
			if err != nil {
				return err
			}
			out = b
			return nil
		})
		if err != nil {
			return r.fail(ctx, err)
		}
		blocks = append(blocks, out...)
		if err := r.advance(ctx, model.StageTransformation, scaled(model.StageTransformation, i+1, len(chunks))); err != nil {
			return r.abandon(err)
		}
	}

	// Vocabulary fan-out runs alongside the image stage and is awaited
	// before assembly, so illustration latency stays off its critical path.
	var waitVocabulary func() (completed, failed int)
	if payload.Options.EnableVocabulary {
		waitVocabulary = o.fanOutVocabulary(ctx, job, blocks, payload.Options)
	}

	// Image processing
	if err := r.advance(ctx, model.StageImageProcessing, stageStart(model.StageImageProcessing)); err != nil {
		return r.abandon(err)
	}
	if payload.Options.EnableImages {
		o.illustrate(ctx, job.ID, blocks)
	}

	if waitVocabulary != nil {
		completed, failed := waitVocabulary()
		job.CompletedBlocks = completed
		job.FailedBlocks = failed
	}

	// Assembly
	if err := r.advance(ctx, model.StageAssembly, stageStart(model.StageAssembly)); err != nil {
		return r.abandon(err)
	}
	result := assemble(job, payload.Filename, blocks, time.Since(r.started))
	data, err := json.Marshal(result)
	if err != nil {
		return r.fail(ctx, stage.Storage(model.ErrCodeStorage, "failed to encode result", err))
	}

	// Storage. Store failures are retried; the result must be durable
	// before anything announces it.
	if err := r.advance(ctx, model.StageStorage, stageStart(model.StageStorage)); err != nil {
		return r.abandon(err)
	}
	var location string
	err = o.executor.Run(ctx, job.ID, "storage", func(ctx context.Context) error {
		loc, err := o.store.Put(ctx, job.ID, data)
		if err != nil {
			return stage.Transient(model.ErrCodeStorage, "failed to persist result", err)
		}
		location = loc
		return nil
	})
	if err != nil {
		return r.fail(ctx, err)
	}
	job.ResultLocation = location

	if err := r.advance(ctx, model.StageCompleting, stageStart(model.StageCompleting)); err != nil {
		return r.abandon(err)
	}
	return r.complete(ctx, result.Stats)
}

// advance persists a stage/progress transition and then publishes it, in
// that order. Progress is clamped monotonic.
func (r *jobRun) advance(ctx context.Context, st model.Stage, progress int) error {
	if progress < r.progress {
		progress = r.progress
	}
	if progress > 100 {
		progress = 100
	}
	r.progress = progress
	r.job.CurrentStage = st
	r.job.Progress = progress

	if err := r.o.registry.Update(ctx, r.job); err != nil {
		return err
	}
	if err := r.o.bus.PublishProgress(ctx, r.job.ID, progress, st); err != nil {
		log.Printf("[Pipeline] publish progress for %s: %v", r.job.ID, err)
	}
	return nil
}

// abandon handles a registry refusal mid-run. A terminal refusal means the
// job was canceled; the cancel already published the terminal notification,
// so the run just stops.
func (r *jobRun) abandon(err error) error {
	if errors.Is(err, registry.ErrTerminal) {
		log.Printf("[Pipeline] job %s canceled, abandoning run", r.job.ID)
		return nil
	}
	return err
}

// fail writes the terminal FAILED snapshot, then publishes the failure and
// fires the failure callback. If the snapshot is already terminal the cancel
// won the race and nothing further is published.
func (r *jobRun) fail(ctx context.Context, cause error) error {
	code := stage.CodeOf(cause, model.ErrCodeInternal)
	message := stage.MessageOf(cause, "document processing failed")
	now := time.Now().UTC()

	r.job.Status = model.JobStatusFailed
	r.job.Error = &model.ErrorInfo{Code: code, Message: message}
	r.job.Progress = r.progress
	r.job.CompletedAt = &now

	if err := r.o.registry.Update(ctx, r.job); err != nil {
		if errors.Is(err, registry.ErrTerminal) {
			return nil
		}
		log.Printf("[Pipeline] record failure for %s: %v", r.job.ID, err)
	}

	if err := r.o.bus.PublishFailure(ctx, r.job.ID, code, message); err != nil {
		log.Printf("[Pipeline] publish failure for %s: %v", r.job.ID, err)
	}
	if err := r.o.dispatcher.SendFailure(ctx, &callback.FailurePayload{
		JobID:     r.job.ID,
		Status:    model.JobStatusFailed,
		ErrorCode: code,
		Error:     message,
		Timestamp: now,
	}); err != nil {
		log.Printf("[Pipeline] failure callback for %s: %v", r.job.ID, err)
	}
	return cause
}

// complete writes the terminal COMPLETED snapshot, then publishes the result
// and fires the completion callback. Delivery outcome never mutates the
// terminal status.
func (r *jobRun) complete(ctx context.Context, stats model.ResultStats) error {
	now := time.Now().UTC()
	r.job.Status = model.JobStatusCompleted
	r.job.CurrentStage = model.StageCompleting
	r.job.Progress = 100
	r.job.CompletedAt = &now

	if err := r.o.registry.Update(ctx, r.job); err != nil {
		if errors.Is(err, registry.ErrTerminal) {
			return nil
		}
		return fmt.Errorf("record completion for %s: %w", r.job.ID, err)
	}

	if err := r.o.bus.PublishProgress(ctx, r.job.ID, 100, model.StageCompleting); err != nil {
		log.Printf("[Pipeline] publish progress for %s: %v", r.job.ID, err)
	}
	if err := r.o.bus.PublishResult(ctx, r.job.ID, r.job.ResultLocation); err != nil {
		log.Printf("[Pipeline] publish result for %s: %v", r.job.ID, err)
	}

	resultURL := ""
	if p, ok := r.o.store.(store.URLProvider); ok {
		u, err := p.URL(ctx, r.job.ID)
		if err != nil {
			log.Printf("[Pipeline] result url for %s: %v", r.job.ID, err)
		} else {
			resultURL = u
		}
	}
	if err := r.o.dispatcher.SendCompletion(ctx, &callback.CompletionPayload{
		JobID:          r.job.ID,
		Status:         model.JobStatusCompleted,
		ResultLocation: r.job.ResultLocation,
		ResultURL:      resultURL,
		Stats:          stats,
		Timestamp:      now,
	}); err != nil {
		log.Printf("[Pipeline] completion callback for %s: %v", r.job.ID, err)
	}
	log.Printf("[Pipeline] job %s completed in %s", r.job.ID, time.Since(r.started).Round(time.Millisecond))
	return nil
}

// illustrate generates images for PAGE_IMAGE blocks. Each block is isolated:
// a failed illustration leaves its block unmodified and never fails the job.
func (o *Orchestrator) illustrate(ctx context.Context, jobID string, blocks []model.ContentBlock) {
	g := new(errgroup.Group)
	g.SetLimit(o.maxConcurrent)

	for i := range blocks {
		if blocks[i].Type != model.BlockTypePageImage || blocks[i].ImagePrompt == "" || blocks[i].ImageURL != "" {
			continue
		}
		i := i
		g.Go(func() error {
			err := o.executor.Run(ctx, jobID, "image_processing", func(ctx context.Context) error {
				url, err := o.images.Generate(ctx, blocks[i].ImagePrompt)
				if err != nil {
					return err
				}
				blocks[i].ImageURL = url
				return nil
			})
			if err != nil {
				log.Printf("[Pipeline] illustration failed for block %s: %v", blocks[i].BlockID, err)
			}
			return nil
		})
	}
	g.Wait()
}

// assemble groups blocks into pages in reading order and computes the
// aggregate statistics.
func assemble(job *model.Job, filename string, blocks []model.ContentBlock, elapsed time.Duration) *model.DocumentResult {
	byPage := make(map[int][]model.ContentBlock)
	pageCount := job.PageCount
	for _, block := range blocks {
		byPage[block.PageNumber] = append(byPage[block.PageNumber], block)
		if block.PageNumber > pageCount {
			pageCount = block.PageNumber
		}
	}

	pageNumbers := make([]int, 0, len(byPage))
	for n := range byPage {
		pageNumbers = append(pageNumbers, n)
	}
	sort.Ints(pageNumbers)

	pages := make([]model.PageContent, 0, len(pageNumbers))
	stats := model.ResultStats{
		TotalBlocks:      len(blocks),
		FailedVocabulary: job.FailedBlocks,
		ProcessingTime:   elapsed.Seconds(),
	}
	for _, n := range pageNumbers {
		pages = append(pages, model.PageContent{PageNumber: n, Blocks: byPage[n]})
	}
	for _, block := range blocks {
		switch block.Type {
		case model.BlockTypeText:
			stats.TextBlocks++
		case model.BlockTypePageImage:
			stats.ImageBlocks++
		}
		stats.VocabularyItems += len(block.Vocabulary)
	}

	return &model.DocumentResult{
		JobID:     job.ID,
		Filename:  filename,
		PageCount: pageCount,
		Pages:     pages,
		Stats:     stats,
		CreatedAt: time.Now().UTC(),
	}
}

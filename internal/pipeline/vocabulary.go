package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/readably/api/internal/model"
	"github.com/readably/api/internal/stage"
)

// fanOutVocabulary analyzes the TEXT blocks of a document job concurrently.
// Failures are isolated per block: a failed analysis leaves its block without
// vocabulary and never fails the job. Each completed block is announced on
// the bus and, when configured, delivered to the owning system immediately.
// The returned wait function blocks until the fan-out drains and reports the
// completed/failed counts.
func (o *Orchestrator) fanOutVocabulary(ctx context.Context, job *model.Job, blocks []model.ContentBlock, opts model.ProcessingOptions) func() (int, int) {
	var targets []int
	for i := range blocks {
		if blocks[i].Type == model.BlockTypeText && blocks[i].Text != "" {
			targets = append(targets, i)
		}
	}
	job.TotalBlocks = len(targets)

	limit := opts.MaxConcurrent
	if limit <= 0 {
		limit = o.maxConcurrent
	}

	var completed, failed int32
	g := new(errgroup.Group)
	g.SetLimit(limit)

	for _, idx := range targets {
		idx := idx
		g.Go(func() error {
			var items []model.VocabularyItem
			err := o.executor.Run(ctx, job.ID, "vocabulary", func(ctx context.Context) error {
				out, err := o.transformer.AnalyzeVocabulary(ctx, blocks[idx].Text, opts)
				if err != nil {
					return err
				}
				items = out
				return nil
			})
			if err != nil {
				atomic.AddInt32(&failed, 1)
				log.Printf("[Pipeline] vocabulary failed for block %s: %v", blocks[idx].BlockID, err)
				return nil
			}

			blocks[idx].Vocabulary = items
			atomic.AddInt32(&completed, 1)
			o.announceBlock(ctx, &model.BlockVocabularyResult{
				JobID:            job.ID,
				PageNumber:       blocks[idx].PageNumber,
				BlockID:          blocks[idx].BlockID,
				OriginalSentence: blocks[idx].Text,
				Items:            items,
				CreatedAt:        time.Now().UTC(),
			})
			return nil
		})
	}

	return func() (int, int) {
		g.Wait()
		return int(atomic.LoadInt32(&completed)), int(atomic.LoadInt32(&failed))
	}
}

func (o *Orchestrator) announceBlock(ctx context.Context, block *model.BlockVocabularyResult) {
	if err := o.bus.PublishVocabularyBlock(ctx, block); err != nil {
		log.Printf("[Pipeline] publish vocabulary block %s: %v", block.BlockID, err)
	}
	if err := o.dispatcher.SendVocabularyBlock(ctx, block); err != nil {
		log.Printf("[Pipeline] vocabulary callback for block %s: %v", block.BlockID, err)
	}
}

// blockOutcome is one analyzed block reported back to the coordinator.
type blockOutcome struct {
	input model.BlockVocabularyInput
	items []model.VocabularyItem
	err   error
}

// RunVocabulary executes a standalone vocabulary job over caller-supplied
// blocks. Workers analyze concurrently; the coordinator owns all registry
// writes and per-block announcements, so progress stays single-writer.
func (o *Orchestrator) RunVocabulary(ctx context.Context, jobID string, payload *model.VocabularyJobPayload) error {
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
	job.TotalBlocks = len(payload.Items)
	if err := r.advance(ctx, model.StageTransformation, 0); err != nil {
		return r.abandon(err)
	}

	limit := payload.Options.MaxConcurrent
	if limit <= 0 {
		limit = o.maxConcurrent
	}

	outcomes := make(chan blockOutcome, len(payload.Items))
	g := new(errgroup.Group)
	g.SetLimit(limit)
	for _, item := range payload.Items {
		item := item
		g.Go(func() error {
			var items []model.VocabularyItem
			err := o.executor.Run(ctx, job.ID, "vocabulary", func(ctx context.Context) error {
				out, err := o.transformer.AnalyzeVocabulary(ctx, item.Text, payload.Options)
				if err != nil {
					return err
				}
				items = out
				return nil
			})
			outcomes <- blockOutcome{input: item, items: items, err: err}
			return nil
		})
	}
	go func() {
		g.Wait()
		close(outcomes)
	}()

	result := &model.VocabularyJobResult{
		JobID:      job.ID,
		TextbookID: payload.TextbookID,
		Summary:    model.VocabularySummary{TotalBlocks: len(payload.Items)},
		CreatedAt:  time.Now().UTC(),
	}

	done := 0
	for outcome := range outcomes {
		done++
		if outcome.err != nil {
			job.FailedBlocks++
			result.Summary.FailedBlocks++
			log.Printf("[Pipeline] vocabulary failed for block %s: %v", outcome.input.BlockID, outcome.err)
		} else {
			job.CompletedBlocks++
			result.Summary.CompletedBlocks++
			result.Summary.TotalItems += len(outcome.items)

			block := model.BlockVocabularyResult{
				JobID:            job.ID,
				TextbookID:       payload.TextbookID,
				PageNumber:       outcome.input.PageNumber,
				BlockID:          outcome.input.BlockID,
				OriginalSentence: outcome.input.Text,
				Items:            outcome.items,
				CreatedAt:        time.Now().UTC(),
			}
			result.Blocks = append(result.Blocks, block)
			o.announceBlock(ctx, &block)
		}

		progress := done * 95 / len(payload.Items)
		if err := r.advance(ctx, model.StageTransformation, progress); err != nil {
			return r.abandon(err)
		}
	}

	data, err := json.Marshal(result)
	if err != nil {
		return r.fail(ctx, stage.Storage(model.ErrCodeStorage, "failed to encode result", err))
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

	return r.complete(ctx, model.ResultStats{
		TotalBlocks:      result.Summary.TotalBlocks,
		VocabularyItems:  result.Summary.TotalItems,
		FailedVocabulary: result.Summary.FailedBlocks,
		ProcessingTime:   time.Since(r.started).Seconds(),
	})
}

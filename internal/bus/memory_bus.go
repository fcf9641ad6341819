package bus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/readably/api/internal/model"
)

// MemoryBus is the in-process bus used when Redis is not configured, and in
// tests. It keeps the per-job publication history in order so tests can
// assert ordering and terminal-exactly-once.
type MemoryBus struct {
	mu          sync.Mutex
	history     map[string][]Envelope
	subscribers []chan Envelope
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{history: make(map[string][]Envelope)}
}

func (b *MemoryBus) emit(jobID, kind string, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	env := Envelope{Kind: kind, JobID: jobID, Payload: data}

	b.mu.Lock()
	b.history[jobID] = append(b.history[jobID], env)
	subs := make([]chan Envelope, len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- env:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) PublishProgress(ctx context.Context, jobID string, progress int, stage model.Stage) error {
	return b.emit(jobID, "progress", model.ProgressMessage{
		JobID: jobID, Progress: progress, Stage: stage, Timestamp: now(),
	})
}

func (b *MemoryBus) PublishResult(ctx context.Context, jobID, resultLocation string) error {
	return b.emit(jobID, "result", model.ResultMessage{
		JobID: jobID, ResultLocation: resultLocation, Timestamp: now(),
	})
}

func (b *MemoryBus) PublishFailure(ctx context.Context, jobID, errorCode, errorMessage string) error {
	return b.emit(jobID, "failure", model.FailureMessage{
		JobID: jobID, ErrorCode: errorCode, ErrorMessage: errorMessage, Timestamp: now(),
	})
}

func (b *MemoryBus) PublishVocabularyBlock(ctx context.Context, block *model.BlockVocabularyResult) error {
	return b.emit(block.JobID, "vocabulary", block)
}

func (b *MemoryBus) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	ch := make(chan Envelope, 64)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		for i, sub := range b.subscribers {
			if sub == ch {
				b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// History returns the ordered envelopes published for a job.
func (b *MemoryBus) History(jobID string) []Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Envelope, len(b.history[jobID]))
	copy(out, b.history[jobID])
	return out
}

package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/readably/api/internal/config"
	"github.com/readably/api/internal/model"
	"github.com/readably/api/internal/stage"
)

const (
	// TokenHeader carries the shared secret the receiving system verifies.
	TokenHeader = "X-Callback-Token"

	KindCompletion = "completion"
	KindFailure    = "failure"
	KindVocabulary = "vocabulary"
)

// CompletionPayload is the body posted when a document job completes.
// ResultURL is a fetchable URL for the stored result when the store can mint
// one; ResultLocation is always the storage key.
type CompletionPayload struct {
	JobID          string            `json:"jobId"`
	Status         model.JobStatus   `json:"status"`
	ResultLocation string            `json:"resultLocation"`
	ResultURL      string            `json:"resultUrl,omitempty"`
	Stats          model.ResultStats `json:"stats"`
	Timestamp      time.Time         `json:"timestamp"`
}

// FailurePayload is the body posted when a job fails.
type FailurePayload struct {
	JobID     string          `json:"jobId"`
	Status    model.JobStatus `json:"status"`
	ErrorCode string          `json:"errorCode"`
	Error     string          `json:"error"`
	Timestamp time.Time       `json:"timestamp"`
}

// Dispatcher posts job outcomes to the configured callback endpoint. A
// delivery is retried only when the failure looks transient; anything else
// goes straight to the dead-letter store.
type Dispatcher struct {
	httpClient  *http.Client
	url         string
	token       string
	maxAttempts int
	Backoff     time.Duration
	deadLetters DeadLetterStore
}

func NewDispatcher(cfg *config.CallbackConfig, deadLetters DeadLetterStore) *Dispatcher {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Dispatcher{
		httpClient:  &http.Client{Timeout: timeout},
		url:         cfg.URL,
		token:       cfg.Token,
		maxAttempts: maxAttempts,
		Backoff:     time.Second,
		deadLetters: deadLetters,
	}
}

// IsConfigured returns true if a callback endpoint is set
func (d *Dispatcher) IsConfigured() bool {
	return d.url != ""
}

// SendCompletion delivers the completion callback for a document job.
func (d *Dispatcher) SendCompletion(ctx context.Context, payload *CompletionPayload) error {
	return d.deliver(ctx, payload.JobID, KindCompletion, payload)
}

// SendFailure delivers the failure callback.
func (d *Dispatcher) SendFailure(ctx context.Context, payload *FailurePayload) error {
	return d.deliver(ctx, payload.JobID, KindFailure, payload)
}

// SendVocabularyBlock delivers one per-block vocabulary result. Block
// deliveries are best effort and never dead-letter the whole job; each block
// gets its own entry.
func (d *Dispatcher) SendVocabularyBlock(ctx context.Context, block *model.BlockVocabularyResult) error {
	return d.deliver(ctx, fmt.Sprintf("%s:%s", block.JobID, block.BlockID), KindVocabulary, block)
}

// ListDeadLetters returns all parked deliveries.
func (d *Dispatcher) ListDeadLetters(ctx context.Context) ([]*DeadLetter, error) {
	return d.deadLetters.List(ctx)
}

// Replay re-attempts a dead-lettered delivery. On success the entry is
// removed; on failure the entry is re-parked with its attempt bookkeeping
// carried forward.
func (d *Dispatcher) Replay(ctx context.Context, jobID, kind string) error {
	entry, err := d.deadLetters.Get(ctx, jobID, kind)
	if err != nil {
		return err
	}

	if err := d.attemptLoop(ctx, entry.URL, entry.Payload, entry); err != nil {
		entry.DeadAt = time.Now().UTC()
		if putErr := d.deadLetters.Put(ctx, entry); putErr != nil {
			log.Printf("[Callback] failed to re-park dead letter for %s/%s: %v", jobID, kind, putErr)
		}
		return err
	}
	return d.deadLetters.Remove(ctx, jobID, kind)
}

func (d *Dispatcher) deliver(ctx context.Context, jobID, kind string, payload interface{}) error {
	if !d.IsConfigured() {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}

	entry := &DeadLetter{
		JobID:        jobID,
		Kind:         kind,
		URL:          d.url,
		Payload:      body,
		FirstAttempt: time.Now().UTC(),
	}
	if err := d.attemptLoop(ctx, d.url, body, entry); err != nil {
		entry.DeadAt = time.Now().UTC()
		if putErr := d.deadLetters.Put(ctx, entry); putErr != nil {
			log.Printf("[Callback] failed to park dead letter for %s/%s: %v", jobID, kind, putErr)
		}
		return stage.Delivery(model.ErrCodeDelivery, fmt.Sprintf("callback delivery failed for %s/%s", jobID, kind), err)
	}
	return nil
}

// attemptLoop posts the payload until it is accepted, the error is
// non-retryable, or attempts run out. It mutates entry's attempt bookkeeping.
func (d *Dispatcher) attemptLoop(ctx context.Context, url string, body []byte, entry *DeadLetter) error {
	var lastErr error

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		entry.Attempts++

		status, err := d.post(ctx, url, body)
		if err == nil && status >= 200 && status < 300 {
			if attempt > 1 {
				log.Printf("[Callback] delivered %s/%s after %d attempts", entry.JobID, entry.Kind, attempt)
			}
			return nil
		}

		if err != nil {
			lastErr = err
			entry.LastError = err.Error()
			entry.LastStatus = 0
		} else {
			lastErr = fmt.Errorf("callback endpoint returned %d", status)
			entry.LastError = lastErr.Error()
			entry.LastStatus = status
		}

		log.Printf("[Callback] %s/%s attempt %d failed: %v", entry.JobID, entry.Kind, attempt, lastErr)

		if err == nil && !retryableStatus(status) {
			return lastErr
		}
		if attempt == d.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.Backoff * time.Duration(1<<(attempt-1))):
		}
	}

	return fmt.Errorf("exhausted %d attempts: %w", d.maxAttempts, lastErr)
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set(TokenHeader, d.token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}

// retryableStatus reports whether a response status warrants another attempt.
// Server errors and rate limiting are retried; any other 4xx means the
// endpoint understood the request and rejected it.
func retryableStatus(status int) bool {
	if status >= 500 {
		return true
	}
	return status == http.StatusTooManyRequests
}

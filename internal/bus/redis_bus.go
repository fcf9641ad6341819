package bus

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/readably/api/internal/model"
)

// RedisBus publishes notifications over Redis pub/sub. One channel per event
// kind; messages carry the job id so consumers can filter.
type RedisBus struct {
	client   *redis.Client
	channels Channels
}

func NewRedisBus(client *redis.Client, channels Channels) *RedisBus {
	return &RedisBus{client: client, channels: channels}
}

func (b *RedisBus) publish(ctx context.Context, channel string, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel, data).Err()
}

func (b *RedisBus) PublishProgress(ctx context.Context, jobID string, progress int, stage model.Stage) error {
	return b.publish(ctx, b.channels.Progress, model.ProgressMessage{
		JobID:     jobID,
		Progress:  progress,
		Stage:     stage,
		Timestamp: now(),
	})
}

func (b *RedisBus) PublishResult(ctx context.Context, jobID, resultLocation string) error {
	return b.publish(ctx, b.channels.Result, model.ResultMessage{
		JobID:          jobID,
		ResultLocation: resultLocation,
		Timestamp:      now(),
	})
}

func (b *RedisBus) PublishFailure(ctx context.Context, jobID, errorCode, errorMessage string) error {
	return b.publish(ctx, b.channels.Failure, model.FailureMessage{
		JobID:        jobID,
		ErrorCode:    errorCode,
		ErrorMessage: errorMessage,
		Timestamp:    now(),
	})
}

func (b *RedisBus) PublishVocabularyBlock(ctx context.Context, block *model.BlockVocabularyResult) error {
	return b.publish(ctx, b.channels.Vocabulary, block)
}

// Subscribe listens on all bus channels and forwards each message as an
// Envelope. The returned channel closes when ctx is done.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	sub := b.client.Subscribe(ctx,
		b.channels.Progress, b.channels.Result, b.channels.Failure, b.channels.Vocabulary)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, err
	}

	out := make(chan Envelope, 64)
	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				env := Envelope{
					Kind:    b.kindFor(msg.Channel),
					JobID:   jobIDOf([]byte(msg.Payload)),
					Payload: []byte(msg.Payload),
				}
				select {
				case out <- env:
				default:
					log.Printf("bus subscriber slow, dropping %s message", env.Kind)
				}
			}
		}
	}()
	return out, nil
}

func (b *RedisBus) kindFor(channel string) string {
	switch channel {
	case b.channels.Progress:
		return "progress"
	case b.channels.Result:
		return "result"
	case b.channels.Failure:
		return "failure"
	case b.channels.Vocabulary:
		return "vocabulary"
	default:
		return channel
	}
}

func jobIDOf(payload []byte) string {
	var probe struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	return probe.JobID
}

package bus

import (
	"context"
	"time"

	"github.com/readably/api/internal/model"
)

// Publisher is the notification bus write side. Progress, result and failure
// events go out on separate channels; vocabulary block events have their own
// channel so the owning system can render enrichment incrementally.
type Publisher interface {
	PublishProgress(ctx context.Context, jobID string, progress int, stage model.Stage) error
	PublishResult(ctx context.Context, jobID, resultLocation string) error
	PublishFailure(ctx context.Context, jobID, errorCode, errorMessage string) error
	PublishVocabularyBlock(ctx context.Context, block *model.BlockVocabularyResult) error
}

// Envelope is one message seen by a bus subscriber, tagged with the event
// kind and the job it belongs to.
type Envelope struct {
	Kind    string // "progress", "result", "failure", "vocabulary"
	JobID   string
	Payload []byte
}

// Subscriber is the bus read side, used by the websocket hub to forward
// events to connected clients.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan Envelope, error)
}

// Channels holds the logical channel names. Defaults match what the owning
// system subscribes to.
type Channels struct {
	Progress   string
	Result     string
	Failure    string
	Vocabulary string
}

// DefaultChannels returns the standard channel naming.
func DefaultChannels() Channels {
	return Channels{
		Progress:   "progress-channel",
		Result:     "result-channel",
		Failure:    "failure-channel",
		Vocabulary: "vocabulary-channel",
	}
}

func now() time.Time { return time.Now().UTC() }

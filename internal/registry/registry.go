package registry

import (
	"context"
	"errors"

	"github.com/readably/api/internal/model"
)

var (
	// ErrNotFound means no snapshot exists for the job id.
	ErrNotFound = errors.New("job not found")
	// ErrAlreadyExists means a live job already holds the id.
	ErrAlreadyExists = errors.New("job already exists")
	// ErrTerminal means the stored snapshot is terminal and refuses updates.
	ErrTerminal = errors.New("job already terminal")
)

// Registry stores job snapshots keyed by job id. Create claims the id
// atomically so duplicate submissions of a live job are rejected; once a job
// reaches a terminal status its snapshot is frozen.
type Registry interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, jobID string) (*model.Job, error)
	Update(ctx context.Context, job *model.Job) error
}

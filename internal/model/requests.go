package model

import "time"

// ProcessStartResponse acknowledges an accepted document submission.
type ProcessStartResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	PageCount int       `json:"pageCount,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// JobStatusResponse is the synchronous status snapshot served from the
// registry for callers that missed bus notifications.
type JobStatusResponse struct {
	JobID           string     `json:"jobId"`
	Type            string     `json:"type"`
	Status          JobStatus  `json:"status"`
	Progress        int        `json:"progress"`
	CurrentStage    Stage      `json:"currentStage,omitempty"`
	Error           *ErrorInfo `json:"error,omitempty"`
	ResultLocation  string     `json:"resultLocation,omitempty"`
	PageCount       int        `json:"pageCount,omitempty"`
	TotalBlocks     int        `json:"totalBlocks,omitempty"`
	CompletedBlocks int        `json:"completedBlocks,omitempty"`
	FailedBlocks    int        `json:"failedBlocks,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// CancelResponse reports an advisory cancellation.
type CancelResponse struct {
	Success bool      `json:"success"`
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
}

// VocabularyStartRequest starts a standalone vocabulary job over
// caller-supplied blocks.
type VocabularyStartRequest struct {
	JobID          string                 `json:"jobId,omitempty"`
	TextbookID     int                    `json:"textbookId" validate:"required,gte=1"`
	Items          []BlockVocabularyInput `json:"items" validate:"required,min=1,dive"`
	MaxConcurrent  int                    `json:"maxConcurrent,omitempty" validate:"omitempty,gte=1,lte=20"`
	EnablePhonemes bool                   `json:"enablePhonemes,omitempty"`
}

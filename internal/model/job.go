package model

import "time"

// Job represents one document-processing request, tracked from submission
// to a terminal state.
type Job struct {
	ID              string            `json:"id"`
	Type            string            `json:"type"` // "document" or "vocabulary"
	Filename        string            `json:"filename,omitempty"`
	Status          JobStatus         `json:"status"`
	Progress        int               `json:"progress"`
	CurrentStage    Stage             `json:"currentStage,omitempty"`
	Error           *ErrorInfo        `json:"error,omitempty"`
	ResultLocation  string            `json:"resultLocation,omitempty"`
	PageCount       int               `json:"pageCount,omitempty"`
	TotalBlocks     int               `json:"totalBlocks,omitempty"`
	CompletedBlocks int               `json:"completedBlocks,omitempty"`
	FailedBlocks    int               `json:"failedBlocks,omitempty"`
	Options         ProcessingOptions `json:"options"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
	CompletedAt     *time.Time        `json:"completedAt,omitempty"`
}

// Job types
const (
	JobTypeDocument   = "document"
	JobTypeVocabulary = "vocabulary"
)

// ErrorInfo is the stable error surface exposed to callers. No collaborator
// internals or stack traces leak through here.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ProcessingOptions control optional pipeline behavior per job.
type ProcessingOptions struct {
	EnableImages     bool `json:"enableImages"`
	EnableVocabulary bool `json:"enableVocabulary"`
	EnablePhonemes   bool `json:"enablePhonemes"`
	MaxConcurrent    int  `json:"maxConcurrent,omitempty"`
	WordLimit        int  `json:"wordLimit,omitempty"`
}

// DocumentJobPayload is the task payload carried through the queue for a
// document job. The PDF travels with the task so workers stay stateless.
type DocumentJobPayload struct {
	Filename string            `json:"filename"`
	PDF      []byte            `json:"pdf"`
	Options  ProcessingOptions `json:"options"`
}

// VocabularyJobPayload is the task payload for a standalone vocabulary job.
type VocabularyJobPayload struct {
	TextbookID int                    `json:"textbookId"`
	Items      []BlockVocabularyInput `json:"items"`
	Options    ProcessingOptions      `json:"options"`
}

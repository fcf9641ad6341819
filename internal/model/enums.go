package model

// Job status
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Pipeline stages
type Stage string

const (
	StageExtraction      Stage = "EXTRACTION"
	StageTransformation  Stage = "TRANSFORMATION"
	StageImageProcessing Stage = "IMAGE_PROCESSING"
	StageAssembly        Stage = "ASSEMBLY"
	StageStorage         Stage = "STORAGE"
	StageCompleting      Stage = "COMPLETING"
)

// Content block types
type BlockType string

const (
	BlockTypeText      BlockType = "TEXT"
	BlockTypeHeading   BlockType = "HEADING"
	BlockTypeList      BlockType = "LIST"
	BlockTypeTable     BlockType = "TABLE"
	BlockTypePageImage BlockType = "PAGE_IMAGE"
)

var ValidBlockTypes = []BlockType{
	BlockTypeText, BlockTypeHeading, BlockTypeList, BlockTypeTable, BlockTypePageImage,
}

// Error codes carried on failure notifications and status snapshots.
const (
	ErrCodeInput                = "INPUT_ERROR"
	ErrCodeCollaboratorTimeout  = "COLLABORATOR_TIMEOUT"
	ErrCodeCollaboratorFailure  = "COLLABORATOR_FAILURE"
	ErrCodeStorage              = "STORAGE_ERROR"
	ErrCodeDelivery             = "DELIVERY_ERROR"
	ErrCodeCanceled             = "JOB_CANCELED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

package model

import "time"

// ExtractedChunk is one unit of extractor output: contiguous text plus the
// page it came from.
type ExtractedChunk struct {
	ChunkID    string `json:"chunkId"`
	PageNumber int    `json:"pageNumber"`
	Text       string `json:"text"`
}

// ContentBlock is an ordered unit of transformed output. The type-specific
// fields form the payload; exactly the fields matching Type are set.
// BlockID is derived from the source chunk so it stays stable across
// retries of the transformation stage.
type ContentBlock struct {
	BlockID       string    `json:"blockId"`
	PageNumber    int       `json:"pageNumber"`
	Type          BlockType `json:"type"`
	SourceChunkID string    `json:"sourceChunkId,omitempty"`

	// TEXT / HEADING payload
	Text string `json:"text,omitempty"`
	// HEADING payload
	Level int `json:"level,omitempty"`
	// LIST payload
	Items []string `json:"items,omitempty"`
	// TABLE payload
	Rows [][]string `json:"rows,omitempty"`
	// PAGE_IMAGE payload
	ImagePrompt string `json:"imagePrompt,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`

	// Best-effort enrichment attached by the vocabulary fan-out.
	Vocabulary []VocabularyItem `json:"vocabulary,omitempty"`
}

// PageContent groups the blocks of a single page in reading order.
type PageContent struct {
	PageNumber int            `json:"pageNumber"`
	Blocks     []ContentBlock `json:"blocks"`
}

// DocumentResult is the aggregate written to the result store once a job
// completes. Consumers fetch it via the result notification's location.
type DocumentResult struct {
	JobID     string         `json:"jobId"`
	Filename  string         `json:"filename"`
	PageCount int            `json:"pageCount"`
	Pages     []PageContent  `json:"pages"`
	Stats     ResultStats    `json:"stats"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ResultStats summarizes a completed job for the completion callback.
type ResultStats struct {
	TotalBlocks      int     `json:"totalBlocks"`
	TextBlocks       int     `json:"textBlocks"`
	ImageBlocks      int     `json:"imageBlocks"`
	VocabularyItems  int     `json:"vocabularyItems"`
	FailedVocabulary int     `json:"failedVocabulary"`
	ProcessingTime   float64 `json:"processingTime"` // seconds
}

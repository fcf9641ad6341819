package model

import "time"

// VocabularyItem is one difficult word identified in a sentence, with an
// accessible definition and optional phoneme breakdown.
type VocabularyItem struct {
	Word                 string   `json:"word"`
	StartIndex           int      `json:"startIndex"`
	EndIndex             int      `json:"endIndex"`
	Definition           string   `json:"definition,omitempty"`
	SimplifiedDefinition string   `json:"simplifiedDefinition,omitempty"`
	Examples             []string `json:"examples,omitempty"`
	DifficultyLevel      string   `json:"difficultyLevel,omitempty"`
	GradeLevel           int      `json:"gradeLevel,omitempty"`
	PhonemeAnalysis      string   `json:"phonemeAnalysisJson,omitempty"`
}

// BlockVocabularyInput identifies one sentence to analyze in a standalone
// vocabulary job.
type BlockVocabularyInput struct {
	PageNumber int    `json:"pageNumber" validate:"required,gte=1"`
	BlockID    string `json:"blockId" validate:"required"`
	Text       string `json:"text" validate:"required"`
}

// BlockVocabularyResult is the per-block outcome pushed to the owning system
// as soon as a fan-out task finishes, ahead of job completion.
type BlockVocabularyResult struct {
	JobID            string           `json:"jobId"`
	TextbookID       int              `json:"textbookId,omitempty"`
	PageNumber       int              `json:"pageNumber"`
	BlockID          string           `json:"blockId"`
	OriginalSentence string           `json:"originalSentence"`
	Items            []VocabularyItem `json:"vocabularyItems"`
	CreatedAt        time.Time        `json:"createdAt"`
}

// VocabularyJobResult is the aggregate stored for a standalone vocabulary job.
type VocabularyJobResult struct {
	JobID      string                  `json:"jobId"`
	TextbookID int                     `json:"textbookId"`
	Blocks     []BlockVocabularyResult `json:"blocks"`
	Summary    VocabularySummary       `json:"summary"`
	CreatedAt  time.Time               `json:"createdAt"`
}

// VocabularySummary counts outcomes across a vocabulary job's blocks.
type VocabularySummary struct {
	TotalBlocks     int `json:"totalBlocks"`
	CompletedBlocks int `json:"completedBlocks"`
	FailedBlocks    int `json:"failedBlocks"`
	TotalItems      int `json:"totalItems"`
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/readably/api/internal/client"
	"github.com/readably/api/internal/model"
	"github.com/readably/api/internal/stage"
)

// Extractor turns a PDF into ordered text chunks with page attribution.
type Extractor interface {
	Extract(ctx context.Context, filename string, pdf []byte) ([]model.ExtractedChunk, int, error)
}

// Transformer rewrites extracted chunks into accessible content blocks and
// analyzes sentences for difficult vocabulary.
type Transformer interface {
	TransformChunk(ctx context.Context, chunk model.ExtractedChunk, opts model.ProcessingOptions) ([]model.ContentBlock, error)
	AnalyzeVocabulary(ctx context.Context, text string, opts model.ProcessingOptions) ([]model.VocabularyItem, error)
}

// ImageGenerator produces an illustration URL for a prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// classifyHTTP turns a collaborator call error into a classified stage error.
// Rate limits and server errors are worth retrying; other HTTP rejections are
// not. Transport errors (refused connections, timeouts) count as transient.
func classifyHTTP(err error, collaborator string) error {
	var se *client.StatusError
	if errors.As(err, &se) {
		if se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500 {
			return stage.Transient(model.ErrCodeCollaboratorFailure,
				fmt.Sprintf("%s unavailable (status %d)", collaborator, se.StatusCode), err)
		}
		return stage.Permanent(model.ErrCodeCollaboratorFailure,
			fmt.Sprintf("%s rejected the request (status %d)", collaborator, se.StatusCode), err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return stage.Transient(model.ErrCodeCollaboratorTimeout,
			fmt.Sprintf("%s timed out", collaborator), err)
	}
	return stage.Transient(model.ErrCodeCollaboratorTimeout,
		fmt.Sprintf("%s unreachable", collaborator), err)
}

// extractorAdapter wraps the extraction service client. An HTTP 4xx from the
// extractor means the document itself is bad, so it maps to an input error
// rather than a collaborator failure.
type extractorAdapter struct {
	client *client.ExtractorClient
}

// NewExtractor returns the extraction collaborator. An unconfigured client
// falls back to deterministic mock chunks so the pipeline runs end to end in
// development.
func NewExtractor(c *client.ExtractorClient) Extractor {
	return &extractorAdapter{client: c}
}

func (a *extractorAdapter) Extract(ctx context.Context, filename string, pdf []byte) ([]model.ExtractedChunk, int, error) {
	if a.client == nil || !a.client.IsConfigured() {
		return mockChunks(), 3, nil
	}

	chunks, pages, err := a.client.Extract(ctx, filename, pdf)
	if err != nil {
		var se *client.StatusError
		if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests {
			return nil, 0, stage.Input(model.ErrCodeInput, "document could not be read by the extractor")
		}
		return nil, 0, classifyHTTP(err, "extractor")
	}
	return chunks, pages, nil
}

func mockChunks() []model.ExtractedChunk {
	texts := []string{
		"The water cycle describes how water evaporates from the surface of the earth.",
		"Clouds form when water vapor condenses around tiny particles in the atmosphere.",
		"Precipitation returns water to the surface as rain, snow, sleet, or hail.",
	}
	chunks := make([]model.ExtractedChunk, len(texts))
	for i, text := range texts {
		chunks[i] = model.ExtractedChunk{
			ChunkID:    fmt.Sprintf("chunk-%d", i+1),
			PageNumber: i + 1,
			Text:       text,
		}
	}
	return chunks
}

// imageAdapter wraps the image generation client.
type imageAdapter struct {
	client *client.ImageClient
}

// NewImageGenerator returns the illustration collaborator. Unconfigured
// clients return a placeholder URL.
func NewImageGenerator(c *client.ImageClient) ImageGenerator {
	return &imageAdapter{client: c}
}

func (a *imageAdapter) Generate(ctx context.Context, prompt string) (string, error) {
	if a.client == nil || !a.client.IsConfigured() {
		return "https://placehold.co/800x600.png", nil
	}

	url, err := a.client.Generate(ctx, prompt)
	if err != nil {
		return "", classifyHTTP(err, "image generator")
	}
	return url, nil
}

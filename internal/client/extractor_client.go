package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/readably/api/internal/config"
	"github.com/readably/api/internal/model"
)

// ExtractorClient calls the text extraction service. The service accepts a
// PDF upload and returns ordered text chunks with page attribution.
type ExtractorClient struct {
	httpClient *http.Client
	baseURL    string
}

type extractResponse struct {
	Chunks []model.ExtractedChunk `json:"chunks"`
	Pages  int                    `json:"pages"`
}

// StatusError carries the HTTP status of a failed collaborator call so the
// caller can classify it.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// NewExtractorClient creates a new extraction service client
func NewExtractorClient(cfg *config.ExtractorConfig) *ExtractorClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ExtractorClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.ServiceURL,
	}
}

// Extract uploads the PDF and returns the extracted chunks in document order.
func (c *ExtractorClient) Extract(ctx context.Context, filename string, pdf []byte) ([]model.ExtractedChunk, int, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(pdf); err != nil {
		return nil, 0, fmt.Errorf("failed to write multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, 0, fmt.Errorf("failed to close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", &buf)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	log.Printf("[Extractor] → POST %s/extract file=%s size=%d", c.baseURL, filename, len(pdf))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Extractor] ← %d POST %s/extract file=%s", resp.StatusCode, c.baseURL, filename)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, 0, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result extractResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return result.Chunks, result.Pages, nil
}

// IsConfigured returns true if the client has valid configuration
func (c *ExtractorClient) IsConfigured() bool {
	return c.baseURL != ""
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/readably/api/internal/config"
)

// ImageClient handles communication with the image generation API. Generation
// is asynchronous: a create call returns a prediction id which is polled
// until the image is ready.
type ImageClient struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	model        string
	pollInterval time.Duration
	maxWait      time.Duration
}

// PredictionRequest represents the request for image generation
type PredictionRequest struct {
	Model string          `json:"model"`
	Input PredictionInput `json:"input"`
}

// PredictionInput carries the generation parameters
type PredictionInput struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

// PredictionResponse represents a prediction's state
type PredictionResponse struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Output []string `json:"output,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// NewImageClient creates a new image generation client
func NewImageClient(cfg *config.ImageConfig) *ImageClient {
	pollInterval := time.Duration(cfg.PollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	maxWait := time.Duration(cfg.MaxWait) * time.Second
	if maxWait <= 0 {
		maxWait = 120 * time.Second
	}
	return &ImageClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		pollInterval: pollInterval,
		maxWait:      maxWait,
	}
}

// Generate creates a prediction and polls until it finishes, returning the
// URL of the generated image.
func (c *ImageClient) Generate(ctx context.Context, prompt string) (string, error) {
	pred, err := c.createPrediction(ctx, prompt)
	if err != nil {
		return "", err
	}
	return c.pollPrediction(ctx, pred.ID)
}

func (c *ImageClient) createPrediction(ctx context.Context, prompt string) (*PredictionResponse, error) {
	reqBody := PredictionRequest{
		Model: c.model,
		Input: PredictionInput{Prompt: prompt, AspectRatio: "4:3"},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/predictions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var pred PredictionResponse
	if err := json.Unmarshal(respBody, &pred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &pred, nil
}

func (c *ImageClient) getPrediction(ctx context.Context, id string) (*PredictionResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/predictions/%s", c.baseURL, id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var pred PredictionResponse
	if err := json.Unmarshal(respBody, &pred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &pred, nil
}

// pollPrediction polls for completion
func (c *ImageClient) pollPrediction(ctx context.Context, id string) (string, error) {
	deadline := time.Now().Add(c.maxWait)
	attempt := 0

	for time.Now().Before(deadline) {
		attempt++
		pred, err := c.getPrediction(ctx, id)
		if err != nil {
			log.Printf("[Image API] Poll #%d (prediction=%s) error: %v", attempt, id, err)
			return "", err
		}

		switch pred.Status {
		case "succeeded":
			if len(pred.Output) == 0 {
				return "", fmt.Errorf("prediction succeeded with no output")
			}
			return pred.Output[0], nil
		case "failed", "canceled":
			return "", fmt.Errorf("image generation failed: %s", pred.Error)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
			continue
		}
	}

	return "", fmt.Errorf("image generation timed out after %v", c.maxWait)
}

// IsConfigured returns true if the client has valid configuration
func (c *ImageClient) IsConfigured() bool {
	return c.apiKey != ""
}

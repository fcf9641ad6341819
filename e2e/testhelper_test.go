package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/readably/api/internal/bus"
	"github.com/readably/api/internal/callback"
	"github.com/readably/api/internal/config"
	"github.com/readably/api/internal/handler"
	"github.com/readably/api/internal/middleware"
	"github.com/readably/api/internal/pipeline"
	"github.com/readably/api/internal/registry"
	"github.com/readably/api/internal/service"
	"github.com/readably/api/internal/stage"
	"github.com/readably/api/internal/store"
)

// testApp holds all components needed for testing
type testApp struct {
	app         *fiber.App
	registry    *registry.MemoryRegistry
	results     *store.MemoryResultStore
	deadLetters *callback.MemoryDeadLetterStore
	runner      *service.InlineRunner
}

// setupApp creates a Fiber app wired like main.go but entirely in-memory:
// no Redis, inline job execution, and unconfigured external clients so the
// pipeline runs on mock fallbacks.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	jobRegistry := registry.NewMemoryRegistry()
	memBus := bus.NewMemoryBus()
	results := store.NewMemoryResultStore()
	deadLetters := callback.NewMemoryDeadLetterStore()

	executor := stage.NewExecutor(3, 5*time.Second)
	dispatcher := callback.NewDispatcher(&config.CallbackConfig{}, deadLetters) // no URL → no-op
	dispatcher.Backoff = time.Millisecond

	orchestrator := pipeline.NewOrchestrator(
		jobRegistry,
		memBus,
		results,
		dispatcher,
		pipeline.NewExtractor(nil),      // nil → mock chunks
		pipeline.NewTransformer(nil),    // nil → mock blocks
		pipeline.NewImageGenerator(nil), // nil → placeholder URL
		executor,
		5,
	)

	runner := service.NewInlineRunner(orchestrator)

	validate := validator.New()

	// Input validation off: tests upload synthetic bytes, not real PDFs
	documentService := service.NewDocumentService(jobRegistry, results, memBus, runner, false)
	vocabularyService := service.NewVocabularyService(jobRegistry, runner)

	documentHandler := handler.NewDocumentHandler(documentService, validate, 50)
	vocabularyHandler := handler.NewVocabularyHandler(vocabularyService, validate)
	deadLetterHandler := handler.NewDeadLetterHandler(dispatcher)

	// nil Redis → rate limiting is a pass-through
	rateLimiter := middleware.NewRateLimiter(nil)

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"components": fiber.Map{
				"redis":       false,
				"storage":     false,
				"extractor":   false,
				"transformer": false,
				"images":      false,
				"callbacks":   dispatcher.IsConfigured(),
			},
			"activeJobs": runner.ActiveJobs(),
		})
	})

	api := app.Group("/api")

	documents := api.Group("/documents")
	documents.Post("/process", rateLimiter.SubmitLimit(10000), documentHandler.Process)
	documents.Get("/status/:jobId", documentHandler.Status)
	documents.Get("/result/:jobId", documentHandler.Result)
	documents.Post("/cancel/:jobId", documentHandler.Cancel)

	vocabulary := api.Group("/vocabulary", rateLimiter.VocabularyLimit(10000))
	vocabulary.Post("/start", vocabularyHandler.Start)
	vocabulary.Get("/status/:jobId", documentHandler.Status)
	vocabulary.Get("/result/:jobId", documentHandler.Result)

	callbacks := api.Group("/callbacks")
	callbacks.Get("/deadletter", deadLetterHandler.List)
	callbacks.Post("/deadletter/:jobId/replay", deadLetterHandler.Replay)

	return &testApp{
		app:         app,
		registry:    jobRegistry,
		results:     results,
		deadLetters: deadLetters,
		runner:      runner,
	}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doUpload posts a multipart PDF upload with optional form fields.
func doUpload(t *testing.T, app *fiber.App, path string, pdf []byte, fields map[string]string) (*http.Response, error) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "sample.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(pdf); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return app.Test(req, -1)
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

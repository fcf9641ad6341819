package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/readably/api/internal/bus"
	"github.com/readably/api/internal/callback"
	"github.com/readably/api/internal/client"
	"github.com/readably/api/internal/config"
	"github.com/readably/api/internal/handler"
	"github.com/readably/api/internal/middleware"
	"github.com/readably/api/internal/pipeline"
	"github.com/readably/api/internal/registry"
	"github.com/readably/api/internal/service"
	"github.com/readably/api/internal/stage"
	"github.com/readably/api/internal/store"
	ws "github.com/readably/api/internal/websocket"
	"github.com/readably/api/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	redisAvailable := true
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available, falling back to in-memory backends: %v", err)
		redisAvailable = false
	}

	channels := bus.Channels{
		Progress:   cfg.Bus.ProgressChannel,
		Result:     cfg.Bus.ResultChannel,
		Failure:    cfg.Bus.FailureChannel,
		Vocabulary: cfg.Bus.VocabularyChannel,
	}

	// Job registry, notification bus and dead-letter store share the Redis
	// availability decision: all durable or all in-memory.
	var (
		jobRegistry registry.Registry
		publisher   bus.Publisher
		subscriber  bus.Subscriber
		deadLetters callback.DeadLetterStore
	)
	if redisAvailable {
		jobRegistry = registry.NewRedisRegistry(redisClient, time.Duration(cfg.Pipeline.JobTTLHours)*time.Hour)
		redisBus := bus.NewRedisBus(redisClient, channels)
		publisher, subscriber = redisBus, redisBus
		deadLetters = callback.NewRedisDeadLetterStore(redisClient)
	} else {
		jobRegistry = registry.NewMemoryRegistry()
		memBus := bus.NewMemoryBus()
		publisher, subscriber = memBus, memBus
		deadLetters = callback.NewMemoryDeadLetterStore()
	}

	// Result store: durable S3 when configured, in-memory otherwise.
	var results store.ResultStore
	s3Client, err := client.NewS3Client(&cfg.S3)
	if err != nil {
		log.Printf("Warning: S3 not configured, results held in memory: %v", err)
		results = store.NewMemoryResultStore()
	} else {
		results = store.NewS3ResultStore(s3Client, time.Duration(cfg.Pipeline.JobTTLHours)*time.Hour)
	}

	// Collaborator clients. Unconfigured clients degrade to mock behavior
	// inside the pipeline adapters.
	extractorClient := client.NewExtractorClient(&cfg.Extractor)
	transformerClient := client.NewTransformerClient(&cfg.Transformer)
	imageClient := client.NewImageClient(&cfg.Image)

	executor := stage.NewExecutor(cfg.Pipeline.MaxAttempts, time.Duration(cfg.Pipeline.StageTimeout)*time.Second)
	dispatcher := callback.NewDispatcher(&cfg.Callback, deadLetters)

	orchestrator := pipeline.NewOrchestrator(
		jobRegistry,
		publisher,
		results,
		dispatcher,
		pipeline.NewExtractor(extractorClient),
		pipeline.NewTransformer(transformerClient),
		pipeline.NewImageGenerator(imageClient),
		executor,
		cfg.Pipeline.MaxConcurrent,
	)

	// Task runner: Redis-backed queues in production, inline goroutines when
	// Redis is absent.
	var (
		runner       service.TaskRunner
		inlineRunner *service.InlineRunner
	)
	if redisAvailable {
		asynqClient := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer asynqClient.Close()
		runner = service.NewAsynqRunner(asynqClient, time.Duration(cfg.Pipeline.JobTTLHours)*time.Hour)
	} else {
		inlineRunner = service.NewInlineRunner(orchestrator)
		runner = inlineRunner
	}

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub bridged to the notification bus
	hub := ws.NewHub()
	go hub.Run()
	go func() {
		if err := hub.Bridge(ctx, subscriber); err != nil {
			log.Printf("WebSocket bridge error: %v", err)
		}
	}()

	// Initialize services
	documentService := service.NewDocumentService(jobRegistry, results, publisher, runner, cfg.Pipeline.ValidateInput)
	vocabularyService := service.NewVocabularyService(jobRegistry, runner)

	// Initialize handlers
	documentHandler := handler.NewDocumentHandler(documentService, validate, cfg.Pipeline.MaxUploadMB)
	vocabularyHandler := handler.NewVocabularyHandler(vocabularyService, validate)
	deadLetterHandler := handler.NewDeadLetterHandler(dispatcher)

	// Initialize middleware
	var limiterRedis *redis.Client
	if redisAvailable {
		limiterRedis = redisClient
	}
	rateLimiter := middleware.NewRateLimiter(limiterRedis)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    cfg.Pipeline.MaxUploadMB * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check with component availability
	app.Get("/health", func(c *fiber.Ctx) error {
		components := fiber.Map{
			"redis":       redisAvailable,
			"storage":     s3Client != nil && s3Client.IsConfigured(),
			"extractor":   extractorClient.IsConfigured(),
			"transformer": transformerClient.IsConfigured(),
			"images":      imageClient.IsConfigured(),
			"callbacks":   dispatcher.IsConfigured(),
		}
		resp := fiber.Map{"status": "ok", "components": components}
		if inlineRunner != nil {
			resp["activeJobs"] = inlineRunner.ActiveJobs()
		}
		return c.JSON(resp)
	})

	// API routes
	api := app.Group("/api")

	// Document routes
	documents := api.Group("/documents")
	documents.Post("/process", rateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerMin), documentHandler.Process)
	documents.Get("/status/:jobId", documentHandler.Status)
	documents.Get("/result/:jobId", documentHandler.Result)
	documents.Post("/cancel/:jobId", documentHandler.Cancel)

	// Vocabulary routes
	vocabulary := api.Group("/vocabulary", rateLimiter.VocabularyLimit(cfg.RateLimit.VocabularyPerMin))
	vocabulary.Post("/start", vocabularyHandler.Start)
	vocabulary.Get("/status/:jobId", documentHandler.Status)
	vocabulary.Get("/result/:jobId", documentHandler.Result)

	// Dead-letter routes
	callbacks := api.Group("/callbacks")
	callbacks.Get("/deadletter", deadLetterHandler.List)
	callbacks.Post("/deadletter/:jobId/replay", deadLetterHandler.Replay)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	if redisAvailable {
		go startWorkerServer(cfg, orchestrator)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if inlineRunner != nil {
			inlineRunner.Wait()
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, orchestrator *pipeline.Orchestrator) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Pipeline.WorkerConcurrency,
			Queues: map[string]int{
				service.QueueDocuments:  6,
				service.QueueVocabulary: 4,
			},
		},
	)

	documentWorker := worker.NewDocumentWorker(orchestrator)
	vocabularyWorker := worker.NewVocabularyWorker(orchestrator)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeDocument, documentWorker.ProcessTask)
	mux.HandleFunc(service.TaskTypeVocabulary, vocabularyWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/artistamplifier/api/internal/client"
	"github.com/artistamplifier/api/internal/config"
	"github.com/artistamplifier/api/internal/fetch"
	"github.com/artistamplifier/api/internal/handler"
	"github.com/artistamplifier/api/internal/middleware"
	"github.com/artistamplifier/api/internal/service"
	"github.com/artistamplifier/api/internal/transform"
	"github.com/artistamplifier/api/internal/worker"
	ws "github.com/artistamplifier/api/internal/websocket"
)

// @title          Artist Amplifier API
// @version        1.0
// @description    Backend API for Artist Amplifier — turns an artist profile and a song into a press-ready description.
// @host           localhost:8000
// @BasePath       /
// @schemes        http https
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

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize external clients
	musicaiClient := client.NewMusicAIClient(&cfg.MusicAI)
	llmClient := client.NewLLMClient(&cfg.LLM)
	if !musicaiClient.IsConfigured() {
		log.Println("Info: Music AI not configured, using mock analysis")
	}
	if !llmClient.IsConfigured() {
		log.Println("Info: LLM not configured, using mock descriptions")
	}

	// Initialize R2 client (optional - continues if not configured)
	var r2Client client.StorageClient
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		c, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			r2Client = c
		}
	} else {
		log.Println("Info: R2 storage not configured, using mock storage")
	}

	analysisRetry := client.RetryPolicy{
		Backoffs:    cfg.MusicAI.Retry.Backoffs(),
		CallTimeout: cfg.MusicAI.Retry.CallTimeout(),
	}
	llmRetry := client.RetryPolicy{
		Backoffs:    cfg.LLM.Retry.Backoffs(),
		CallTimeout: cfg.LLM.Retry.CallTimeout(),
	}

	fetcher := fetch.NewFetcher(cfg.Fetch.MaxRetries, time.Duration(cfg.Fetch.TimeoutSec)*time.Second)
	transformer := transform.NewTransformer("music.ai")

	// Initialize services
	jobStore := service.NewRedisJobStore(redisClient)
	analysisService := service.NewAnalysisService(
		jobStore,
		asynqClient,
		musicaiClient,
		fetcher,
		transformer,
		analysisRetry,
		cfg.Fetch.MaxSizeBytes,
		time.Duration(cfg.MusicAI.SubmitWaitSec)*time.Second,
		time.Duration(cfg.MusicAI.PollWaitSec)*time.Second,
	)
	generateService := service.NewGenerateService(llmClient, llmRetry, cfg.LLM.SystemPrompt)
	uploadService := service.NewUploadService(r2Client, time.Duration(cfg.R2.UploadTTLMin)*time.Minute)

	// Initialize handlers
	analysisHandler := handler.NewAnalysisHandler(analysisService, validate)
	generateHandler := handler.NewGenerateHandler(generateService, validate)
	uploadHandler := handler.NewUploadHandler(uploadService, validate)
	validateHandler := handler.NewValidateHandler(cfg.Fetch.MaxSizeBytes)

	rateLimiter := middleware.NewRateLimiter()
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(cfg.Fetch.MaxSizeBytes),
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"musicai": musicaiClient.IsConfigured(),
				"llm":     llmClient.IsConfigured(),
				"r2":      r2Client != nil,
			},
		})
	})

	// API routes
	api := app.Group("/api")

	// Audio routes
	audio := api.Group("/audio")
	audio.Post("/validate", rateLimiter.ValidateLimit(cfg.RateLimit.ValidateMax, window), validateHandler.Validate)
	audio.Post("/analyze", rateLimiter.AnalyzeLimit(cfg.RateLimit.AnalyzeMax, window), analysisHandler.Analyze)
	audio.Get("/analyze/status/:jobId", analysisHandler.Status)
	audio.Post("/generate", rateLimiter.GenerateLimit(cfg.RateLimit.GenerateMax, window), generateHandler.Generate)

	// Upload routes
	api.Post("/upload", rateLimiter.UploadLimit(cfg.RateLimit.UploadMax, window), uploadHandler.Token)

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
	go startWorkerServer(cfg, analysisService, musicaiClient, transformer, analysisRetry, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	analysisService *service.AnalysisService,
	musicaiClient client.AudioAnalyzer,
	transformer *transform.Transformer,
	retry client.RetryPolicy,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				service.QueueAnalyze: 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	analyzeWorker := worker.NewAnalyzeWorker(
		analysisService,
		musicaiClient,
		transformer,
		retry,
		hub,
		time.Duration(cfg.MusicAI.JobPollIntervalSec)*time.Second,
		time.Duration(cfg.MusicAI.JobMaxWaitMin)*time.Minute,
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeAnalyze, analyzeWorker.ProcessTask)

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

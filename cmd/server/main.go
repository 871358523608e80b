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
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/ezsolvy/api/internal/client"
	"github.com/ezsolvy/api/internal/config"
	"github.com/ezsolvy/api/internal/handler"
	"github.com/ezsolvy/api/internal/middleware"
	"github.com/ezsolvy/api/internal/service"
	"github.com/ezsolvy/api/internal/store"
	"github.com/ezsolvy/api/internal/stream"
	"github.com/ezsolvy/api/internal/worker"
	ws "github.com/ezsolvy/api/internal/websocket"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	// Redis backs the queue and the rate limiter
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Job and document storage. Postgres when configured, in-process
	// otherwise so the service still runs in development.
	var st store.Store
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			log.Printf("Warning: Postgres not reachable: %v", err)
		}
		st = store.NewPostgres(pool)
	} else {
		log.Println("Info: DATABASE_URL not set, using in-process store")
		st = store.NewMemory()
	}

	validate := validator.New()

	hub := ws.NewHub()
	go hub.Run()

	// External providers
	openaiClient := client.NewOpenAIClient(&cfg.OpenAI)
	perplexityClient := client.NewPerplexityClient(&cfg.Perplexity)
	bananaClient := client.NewNanoBananaClient(&cfg.NanoBanana)

	var r2Client *client.R2Client
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		var err error
		r2Client, err = client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		}
	} else {
		log.Println("Info: R2 storage not configured")
	}

	// Services
	explanationService := service.NewExplanationService(st, asynqClient, openaiClient, bananaClient, &cfg.Dispatch)
	jobsService := service.NewJobsService(st)
	documentService := service.NewDocumentService(st, asynqClient)
	exportService := service.NewExportService(st, asynqClient)

	watcher := stream.NewPollWatcher(st, cfg.Stream.PollInterval)

	// Handlers
	explanationHandler := handler.NewExplanationHandler(explanationService, validate)
	jobsHandler := handler.NewJobsHandler(jobsService, watcher)
	documentsHandler := handler.NewDocumentsHandler(documentService, validate)
	exportHandler := handler.NewExportHandler(exportService, validate)

	// Auth: header-based behind the gateway, JWT otherwise
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		log.Println("Info: Gateway mode enabled, using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		apiAuthMiddleware = middleware.NewAuthMiddleware(cfg.JWT.Secret).Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    64 * 1024 * 1024, // base64 page photos are big
	})

	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"openai":     openaiClient.IsConfigured(),
				"perplexity": perplexityClient.IsConfigured(),
				"nanobanana": bananaClient.IsConfigured(),
				"r2":         r2Client != nil,
				"postgres":   cfg.Postgres.URL != "",
			},
		})
	})

	// API routes
	v1 := app.Group("/v1", apiAuthMiddleware)

	v1.Post("/explanation", rateLimiter.ExplanationLimit(cfg.RateLimit.ExplanationPerHour), explanationHandler.Dispatch)

	v1.Get("/jobs/:jobId", jobsHandler.Get)
	v1.Get("/jobs/:jobId/stream", jobsHandler.Stream)

	documents := v1.Group("/documents", rateLimiter.DocumentsLimit(cfg.RateLimit.DocumentsPerHour))
	documents.Post("/", documentsHandler.Create)
	documents.Get("/:documentId", documentsHandler.Get)

	v1.Post("/export", rateLimiter.ExportLimit(cfg.RateLimit.ExportPerHour), exportHandler.Start)

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
	go startWorkerServer(cfg, st, asynqClient, explanationService, exportService, openaiClient, perplexityClient, bananaClient, r2Client, hub)

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

	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(
	cfg *config.Config,
	st store.Store,
	asynqClient *asynq.Client,
	explanationService *service.ExplanationService,
	exportService *service.ExportService,
	openaiClient *client.OpenAIClient,
	perplexityClient *client.PerplexityClient,
	bananaClient *client.NanoBananaClient,
	r2Client *client.R2Client,
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
				service.QueuePipelines: 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	var storage client.StorageClient
	if r2Client != nil {
		storage = r2Client
	}

	explanationWorker := worker.NewExplanationWorker(st, explanationService, asynqClient, hub)
	explainWorker := worker.NewExplainWorker(st, asynqClient, openaiClient, perplexityClient, bananaClient, storage, hub)
	exportWorker := worker.NewExportWorker(st, asynqClient, exportService, storage, hub)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeImageExplanation, explanationWorker.ProcessTask)
	mux.HandleFunc(service.TaskTypeExplain, explainWorker.ProcessTask)
	mux.HandleFunc(service.TaskTypePDFExport, exportWorker.ProcessTask)

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

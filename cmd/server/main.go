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
	"github.com/redis/go-redis/v9"

	"github.com/streamvault/api/internal/client"
	"github.com/streamvault/api/internal/config"
	"github.com/streamvault/api/internal/handler"
	"github.com/streamvault/api/internal/hls"
	"github.com/streamvault/api/internal/media"
	"github.com/streamvault/api/internal/middleware"
	"github.com/streamvault/api/internal/progress"
	"github.com/streamvault/api/internal/queue"
	"github.com/streamvault/api/internal/storage"
	"github.com/streamvault/api/internal/worker"
	ws "github.com/streamvault/api/internal/websocket"
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

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize progress fanout and WebSocket hub
	events := progress.NewChannel()
	hub := ws.NewHub(events)
	go hub.Run()

	// Initialize object storage client (optional - continues if not configured)
	var objectStore client.StorageClient
	if cfg.ObjectStore.AccessKeyID != "" && cfg.ObjectStore.SecretAccessKey != "" {
		storeClient, err := client.NewObjectStoreClient(&cfg.ObjectStore)
		if err != nil {
			log.Printf("Warning: object store client not initialized: %v", err)
		} else {
			objectStore = storeClient
		}
	} else {
		log.Println("Info: object storage not configured, keeping output local only")
	}

	// Initialize storage layer
	videoStore := storage.NewRedisStore(redisClient)
	paths := storage.Paths{Root: cfg.Storage.Root}

	// Initialize job queue
	policy := queue.RetryPolicy{
		MaxAttempts: cfg.Transcode.MaxAttempts,
		BaseDelay:   cfg.Transcode.RetryBaseDelay,
	}
	transcodeQueue := queue.NewTranscodeQueue(redisClient, asynqClient, policy)

	// Initialize media toolchain
	prober := media.NewFFProbe(cfg.Transcode.FFprobeBin)
	encoder := media.NewEncoder(cfg.Transcode.FFmpegBin, cfg.Transcode.EncodeTimeout)
	thumbnailer := media.NewThumbnailer(cfg.Transcode.FFmpegBin)
	packager := hls.NewPackager(cfg.Transcode.FFmpegBin, cfg.Transcode.PackageTimeout)

	// Initialize handlers
	transcodeHandler := handler.NewTranscodeHandler(transcodeQueue, videoStore, validate)
	streamHandler := handler.NewStreamHandler(videoStore, paths)

	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
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

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		redisOK := redisClient.Ping(c.Context()).Err() == nil
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"redis":       redisOK,
				"objectStore": objectStore != nil,
			},
		})
	})

	// API routes
	api := app.Group("/api")

	api.Post("/videos", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), transcodeHandler.CreateVideo)
	api.Get("/videos/:id", transcodeHandler.GetVideo)
	api.Post("/videos/:id/transcode", rateLimiter.TranscodeLimit(cfg.RateLimit.TranscodePerHour), transcodeHandler.Start)
	api.Get("/videos/:id/job", transcodeHandler.VideoJob)
	api.Get("/jobs/:jobId", transcodeHandler.JobStatus)
	api.Post("/jobs/retry-failed", transcodeHandler.RetryFailed)
	api.Post("/jobs/cleanup", transcodeHandler.Cleanup)

	// Playback routes
	app.Get("/streams/:videoId/master.m3u8", streamHandler.Master)
	app.Get("/streams/:videoId/:name", streamHandler.File)
	app.Get("/thumbnails/:videoId", streamHandler.Thumbnail)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		hub.HandleJobConnection(c, c.Params("jobId"))
	}))
	app.Get("/ws/users/:userId", websocket.New(func(c *websocket.Conn) {
		hub.HandleUserConnection(c, c.Params("userId"))
	}))

	// Start Asynq worker server
	asynqLogLevel := asynq.InfoLevel
	switch {
	case strings.EqualFold(cfg.Server.LogLevel, "debug"):
		asynqLogLevel = asynq.DebugLevel
	case strings.EqualFold(cfg.Server.LogLevel, "warn"):
		asynqLogLevel = asynq.WarnLevel
	case strings.EqualFold(cfg.Server.LogLevel, "error"):
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := queue.NewServer(redisOpt, cfg.Transcode.Concurrency, policy, asynqLogLevel)
	transcodeWorker := worker.NewTranscodeWorker(
		videoStore, transcodeQueue, prober, encoder, thumbnailer, packager,
		events, paths, objectStore,
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskTypeTranscode, transcodeWorker.ProcessTask)

	go func() {
		if err := srv.Run(mux); err != nil {
			log.Printf("Asynq worker error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		srv.Shutdown()
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

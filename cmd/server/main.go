package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"seshtrack/internal/config"
	"seshtrack/internal/database"
	"seshtrack/internal/geo"
	"seshtrack/internal/handlers"
	"seshtrack/internal/jobs"
	"seshtrack/internal/logging"
	"seshtrack/internal/middleware"
	"seshtrack/internal/notify"
	"seshtrack/internal/preflight"
	"seshtrack/internal/queue"
	"seshtrack/internal/services"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting seshtrack server...")

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	}

	// Load configuration
	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s)", cfg.Port)

	// MongoDB is the remote record store
	if cfg.MongoURI == "" {
		log.Fatal("❌ MONGODB_URI environment variable is required")
	}
	mongoDB, err := database.NewMongoDB(cfg.MongoURI)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	defer mongoDB.Close(context.Background())

	if err := mongoDB.Initialize(context.Background()); err != nil {
		log.Fatalf("❌ Failed to initialize MongoDB indexes: %v", err)
	}

	// Pre-flight checks: fail fast on misconfiguration
	checker := preflight.NewChecker(mongoDB, cfg)
	if results := checker.RunAll(context.Background()); preflight.HasFailures(results) {
		log.Fatal("❌ Pre-flight checks failed, refusing to start")
	}

	// Redis backs realtime pub/sub and cross-instance locks (optional)
	var redisService *services.RedisService
	var pubsubService *services.PubSubService
	instanceID := uuid.New().String()

	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Failed to connect to Redis: %v (realtime events disabled)", err)
		} else {
			defer redisService.Close()
			pubsubService = services.NewPubSubService(redisService, instanceID)
			if err := pubsubService.Start(); err != nil {
				log.Printf("⚠️ Failed to start pub/sub: %v", err)
				pubsubService = nil
			} else {
				defer pubsubService.Stop()
			}
		}
	}

	// Offline queue: SQLite-backed key-value store, in-memory fallback
	var kv queue.KeyValue
	if cfg.LocalStorePath != "" {
		sqliteKV, err := queue.NewSQLiteKV(cfg.LocalStorePath)
		if err != nil {
			log.Fatalf("❌ Failed to open local store: %v", err)
		}
		defer sqliteKV.Close()
		kv = sqliteKV
		log.Printf("✅ Local queue store opened at %s", cfg.LocalStorePath)
	} else {
		kv = queue.NewMemoryKV()
		log.Println("⚠️ LOCAL_STORE_PATH empty, offline queue is in-memory only")
	}
	queueStore := queue.NewStore(kv)

	// Reverse geocoding (best-effort sync enrichment)
	var geocoder geo.Geocoder
	if cfg.MapboxAccessToken != "" {
		geocoder = geo.NewMapboxGeocoder(cfg.MapboxAPIURL, cfg.MapboxAccessToken)
	} else {
		log.Println("⚠️ MAPBOX_ACCESS_TOKEN not set, seshes sync without city names")
	}

	// Reminders and user notices
	reminderScheduler := notify.NewTimerScheduler(nil)
	defer reminderScheduler.Stop()
	notifier := notify.LogNotifier{}

	// Metrics
	metrics := services.InitMetrics()

	// Core services
	seshService := services.NewSeshService(mongoDB, pubsubService)
	syncService := services.NewSyncService(queueStore, seshService, geocoder, notifier, metrics)
	registry := services.NewLifecycleRegistry(
		seshService,
		queueStore,
		reminderScheduler,
		notifier,
		services.AlwaysOnline{},
		metrics,
		services.LifecycleOptions{
			RateLimitWindow: cfg.RateLimitWindow,
			ReminderDelay:   cfg.ReminderDelay,
		},
	)

	// Background jobs: queue sweep and stale-sesh reaper
	scheduler, err := jobs.NewScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}
	syncJob := jobs.NewOfflineSyncJob(syncService, redisService, instanceID, "", "")
	if err := scheduler.Register(syncJob, cfg.SyncInterval); err != nil {
		log.Fatalf("❌ Failed to register sync job: %v", err)
	}
	reaperJob := jobs.NewStaleSeshReaperJob(seshService, cfg.StaleSeshAge)
	if err := scheduler.Register(reaperJob, 1*time.Hour); err != nil {
		log.Fatalf("❌ Failed to register reaper job: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// HTTP surface
	app := fiber.New(fiber.Config{
		AppName:      "seshtrack",
		ErrorHandler: fiberErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())
	app.Use(limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
	}))

	prometheus := fiberprometheus.New("seshtrack")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	healthHandler := handlers.NewHealthHandler(mongoDB, redisService)
	seshHandler := handlers.NewSeshHandler(registry, seshService, syncService)

	app.Get("/health", healthHandler.Check)

	api := app.Group("/api", middleware.Identity())
	api.Post("/seshes/start", seshHandler.Start)
	api.Get("/seshes/active", seshHandler.Active)
	api.Patch("/seshes/active", seshHandler.Update)
	api.Post("/seshes/active/end", seshHandler.End)
	api.Delete("/seshes/active", seshHandler.Cancel)
	api.Get("/seshes/history", seshHandler.History)
	api.Post("/seshes/sync", seshHandler.Sync)

	if pubsubService != nil {
		eventsHandler := handlers.NewEventsHandler(pubsubService)
		app.Use("/ws/events", eventsHandler.Upgrade)
		app.Get("/ws/events", eventsHandler.Stream())
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		log.Println("🛑 Shutting down...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("⚠️ Shutdown error: %v", err)
		}
	}()

	log.Printf("🌐 Listening on :%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Server error: %v", err)
	}
}

// fiberErrorHandler keeps unexpected errors generic to the client
func fiberErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	if e, ok := err.(*fiber.Error); ok {
		fiberErr = e
		code = e.Code
	}

	if fiberErr != nil && code < fiber.StatusInternalServerError {
		return c.Status(code).JSON(fiber.Map{"error": fiberErr.Message})
	}

	log.Printf("❌ Unhandled error: %v", err)
	return c.Status(code).JSON(fiber.Map{"error": "Something went wrong"})
}

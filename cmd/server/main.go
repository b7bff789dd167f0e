package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/api/handlers"
	"github.com/maheshrc27/crosspost/internal/api/middleware"
	job "github.com/maheshrc27/crosspost/internal/jobs"
	"github.com/maheshrc27/crosspost/internal/queue"
	"github.com/maheshrc27/crosspost/internal/repository"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/pkg/utils"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx := context.Background()

	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer closeDB(db)

	if err := db.Ping(); err != nil {
		log.Fatalf("Database is unreachable: %v", err)
	}

	if err := repository.Migrate(ctx, db); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	cipher, err := utils.NewCipher(cfg.SecretKey)
	if err != nil {
		log.Fatalf("Failed to set up token encryption: %v", err)
	}

	states, err := newStateRepository(ctx, cfg, db)
	if err != nil {
		log.Fatalf("Failed to set up oauth state store: %v", err)
	}

	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	client := asynq.NewClient(redisConn)
	defer client.Close()

	socialAccountRepo := repository.NewSocialAccountRepository(db)

	registry := newRegistry(cfg)
	log.Printf("Enabled platforms: %v", registry.Names())

	r2Service, err := service.NewR2Service(ctx, cfg.R2, cfg.UpstreamTimeout)
	if err != nil {
		log.Fatalf("Failed to set up R2: %v", err)
	}
	var stager service.ObjectStager
	if r2Service != nil {
		stager = r2Service
	}

	mediaService := service.NewMediaService(stager, cfg.MediaConcurrency, cfg.UpstreamTimeout)
	credentials := service.NewCredentialResolver(
		service.NewPerUserSource(socialAccountRepo, cipher),
		service.NewSharedServiceSource(cfg),
	)

	events := service.NewNoopEventSink()
	if cfg.RabbitMQURL != "" {
		rabbit, err := service.NewRabbitEventSink(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rabbit.Close()
		events = rabbit
	}

	publishService := service.NewPublishService(registry, credentials, mediaService, socialAccountRepo, events, cfg.PublishConcurrency)
	platformService := service.NewPlatformService(cfg, registry, states, socialAccountRepo, cipher)

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		BodyLimit:    100 * 1024 * 1024, // 100 MB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			log.Printf("Error: %v", err)
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	authMiddleware := middleware.NewAuthMiddleware(cfg)

	platform := handlers.NewPlatformHandler(platformService, cfg)
	app.Get("/auth/:platform", authMiddleware.AuthMiddleware(), platform.AddSocialAccount)
	app.Get("/auth/:platform/callback", authMiddleware.AuthMiddleware(), platform.CallbackHandler)

	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	api.Get("/connect/:platform", platform.BeginConnection)
	api.Post("/connect/:platform/complete", platform.CompleteConnection)

	// social accounts api routes
	api.Get("/accounts", platform.ListSocialAccounts)
	api.Post("/accounts/remove", platform.DeleteSocialAccount)

	publish := handlers.NewPublishHandler(publishService, client)
	api.Post("/publish", publish.Publish)

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(socialAccountRepo, registry, cipher)
	statePurgeJob := job.NewStatePurgeJob(states)

	c := cron.New()
	c.AddFunc("@every 00h10m00s", refreshTokenJob.RefreshTokens)
	c.AddFunc("@every 00h10m00s", statePurgeJob.PurgeExpiredStates)
	c.Start()
	defer c.Stop()

	//queue
	queueW := queue.NewQueue(publishService)
	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: 10,
	})

	go func() {
		mux := asynq.NewServeMux()
		mux.HandleFunc(queue.TaskTypeScheduledPublish, queueW.HandleScheduledPublishTask)

		log.Println("Starting the Asynq server...")
		if err := server.Run(mux); err != nil {
			log.Fatalf("Could not start Asynq server: %v", err)
		}
	}()

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("Server is running on http://localhost:%s", cfg.Port)

	gracefulShutdown(app, server)
}

// newRegistry builds a platform for every enabled name.
func newRegistry(cfg *config.Config) *service.Registry {
	opts := []service.Option{
		service.WithTimeout(cfg.UpstreamTimeout),
		service.WithMediaTimeout(cfg.MediaTimeout),
	}

	var platforms []service.Platform
	for _, name := range cfg.Platforms {
		switch name {
		case "twitter":
			platforms = append(platforms, service.NewTwitterService(cfg, opts...))
		case "facebook":
			platforms = append(platforms, service.NewFacebookService(cfg, opts...))
		case "linkedin":
			platforms = append(platforms, service.NewLinkedinService(cfg, opts...))
		case "instagram":
			platforms = append(platforms, service.NewInstagramService(cfg, opts...))
		case "tiktok":
			platforms = append(platforms, service.NewTiktokService(cfg, opts...))
		case "youtube":
			platforms = append(platforms, service.NewYoutubeService(cfg, opts...))
		default:
			log.Printf("Warning: unknown platform %q in PLATFORMS, ignoring", name)
		}
	}
	return service.NewRegistry(platforms...)
}

func newStateRepository(ctx context.Context, cfg *config.Config, db *sql.DB) (repository.OAuthStateRepository, error) {
	switch cfg.StateStore {
	case "", "postgres":
		return repository.NewOAuthStateRepository(db, cfg.StateTTL), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis is unreachable: %w", err)
		}
		return repository.NewRedisStateRepository(rdb, cfg.StateTTL), nil
	}
	return nil, fmt.Errorf("unknown state store %q", cfg.StateStore)
}

func closeDB(db *sql.DB) {
	fmt.Fprint(os.Stdout, "Closing database connection... ")
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close database: %v", err)
		return
	}
	fmt.Fprintln(os.Stdout, "Done")
}

func gracefulShutdown(app *fiber.App, server *asynq.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Printf("Failed to shut down server: %v", err)
	}
	server.Shutdown()

	log.Println("Server shutdown complete.")
}

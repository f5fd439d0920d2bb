package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/examify/submission-api/internal/blobstore"
	"github.com/examify/submission-api/internal/config"
	"github.com/examify/submission-api/internal/database"
	"github.com/examify/submission-api/internal/examdir"
	"github.com/examify/submission-api/internal/handler"
	"github.com/examify/submission-api/internal/middleware"
	"github.com/examify/submission-api/internal/models"
	"github.com/examify/submission-api/internal/repository"
	"github.com/examify/submission-api/internal/router"
	"github.com/examify/submission-api/internal/service"
	cloud "github.com/examify/submission-api/pkg/cloudinary"
	"github.com/examify/submission-api/pkg/events"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Submission{}, &models.ChunkReceipt{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, check cache disabled")
		} else {
			defer redisClient.Close()
		}
	}

	var publisher *events.Publisher
	if cfg.NATSUrl != "" {
		natsConn, err := database.ConnectNATS(cfg.NATSUrl)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, submission events disabled")
		} else {
			defer natsConn.Close()
			publisher = events.NewPublisher(natsConn, logger)
		}
	}

	blobs := blobstore.New(db, cfg.BlobWriteTimeout, cfg.EmergencyWriteTimeout, logger)
	connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := blobs.Connect(connectCtx); err != nil {
		// Not fatal: the store re-attempts on first use.
		logger.Warn().Err(err).Msg("binary store not ready at start")
	}
	cancel()

	validate := validator.New(validator.WithRequiredStructEnabled())
	exams := examdir.New(cfg.ExamDirectoryURL, logger)

	submissionRepo := repository.NewSubmissionRepository(db)
	reassembler := service.NewReassemblyEngine(blobs, logger)

	intakeService := service.NewIntakeService(submissionRepo, blobs, reassembler, exams, validate, redisClient, publisher, service.IntakeConfig{
		MaxPayloadBytes:     cfg.MaxPayloadBytes,
		ReassemblyThreshold: cfg.ReassemblyThreshold,
		CheckCacheTTL:       cfg.CheckCacheTTL,
	}, logger)
	gradingService := service.NewGradingService(submissionRepo, validate, logger)
	materialsService := service.NewMaterialsService(blobs, cfg.MaxPayloadBytes, logger)

	deps := router.Dependencies{
		SubmissionHandler: handler.NewSubmissionHandler(intakeService, logger),
		GradingHandler:    handler.NewGradingHandler(gradingService, logger),
		MaterialsHandler:  handler.NewMaterialsHandler(materialsService, logger),
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	}

	if cfg.CloudinaryCloudName != "" {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("cloudinary unavailable, direct CDN uploads disabled")
		} else {
			uploadService := service.NewCDNUploadService(uploader, submissionRepo, exams, validate, cfg.MaxPayloadBytes, logger)
			deps.UploadHandler = handler.NewUploadHandler(uploadService, logger)
		}
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		// Base64 inflates payloads by a third on top of the raw ceiling.
		BodyLimit: int(cfg.MaxPayloadBytes + cfg.MaxPayloadBytes/2),
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, deps)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}

package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/config"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/delivery/http/handler"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/delivery/http/middleware"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/migrate"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/platform/cache"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/platform/database"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/platform/push"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/platform/queue"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/platform/storage"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/repository/postgres"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/service"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/worker"
)

func main() {
	cfg := config.Load()

	var logger *zap.Logger
	var err error
	if cfg.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Base de données + migrations
	if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("could not connect to database", zap.Error(err))
	}
	defer db.Close()

	// Stockage objet
	storagePlatform, err := storage.NewMinioStorage(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
	if err != nil {
		logger.Warn("could not connect to MinIO, uploads disabled", zap.Error(err))
	}

	// Cache d'URLs médias
	var urlCache cache.Cache = cache.Noop{}
	if cfg.CacheEnabled {
		urlCache = cache.NewRedisCache(cfg.RedisAddr, cfg.CacheTimeout)
	}

	// RabbitMQ : en mode dégradé le fan-out asynchrone est désactivé mais
	// l'ingestion reste fonctionnelle.
	publisher, err := queue.NewRabbitPublisher(cfg.RabbitURL)
	if err != nil {
		logger.Warn("could not connect to RabbitMQ, async fan-out disabled", zap.Error(err))
		publisher = nil
	} else {
		defer publisher.Close()
	}
	consumer, err := queue.NewRabbitConsumer(cfg.RabbitURL)
	if err != nil {
		logger.Warn("could not connect RabbitMQ consumer", zap.Error(err))
		consumer = nil
	} else {
		defer consumer.Close()
	}

	// Repositories
	userRepo := postgres.NewUserRepository(db)
	signalementRepo := postgres.NewSignalementRepository(db)
	notifRepo := postgres.NewNotificationRepository(db)
	deviceRepo := postgres.NewDeviceTokenRepository(db)

	// Services
	mediaService := service.NewMediaService(storagePlatform, urlCache, cfg.MinioBucket, cfg.PublicStorageURL, cfg.MaxFileSize, logger)
	if storagePlatform != nil {
		if err := mediaService.Initialize(ctx); err != nil {
			logger.Warn("could not initialize storage bucket", zap.Error(err))
		}
	}
	aiService := service.NewAIService(cfg.AIServiceURL, cfg.AIPriorityURL, logger)
	pushClient := push.NewClient(cfg.PushGatewayURL, cfg.PushAppID, cfg.PushAPIKey)
	notificationService := service.NewNotificationService(notifRepo, deviceRepo, pushClient, logger)
	authService := service.NewAuthService(userRepo, cfg.JWTSecret)
	signalementService := service.NewSignalementService(
		signalementRepo, mediaService, aiService, notificationService,
		publisher, cfg.AIStrictMode, cfg.AIValidationMode, logger,
	)

	// Handlers
	authHandler := handler.NewAuthHandler(authService)
	signalementHandler := handler.NewSignalementHandler(signalementService, cfg.Debug)
	notificationHandler := handler.NewNotificationHandler(notifRepo, deviceRepo)

	// Worker de fan-out
	if consumer != nil {
		notificationConsumer := worker.NewNotificationConsumer(consumer, notificationService, userRepo, notifRepo, logger)
		if err := notificationConsumer.Start(ctx); err != nil {
			logger.Warn("could not start notification consumer", zap.Error(err))
		}
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	authMiddleware := middleware.AuthMiddleware(authService)

	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		signalement := api.Group("/signalement")
		signalement.Use(authMiddleware)
		{
			signalement.POST("/add", signalementHandler.Add)
			signalement.GET("/all", signalementHandler.List)
			signalement.GET("/location", signalementHandler.ListNearby)
			signalement.GET("/media/:category", signalementHandler.ListMediaByCategory)
			signalement.GET("/:id", signalementHandler.GetByID)
			signalement.POST("/:id/vote", signalementHandler.Vote)
			signalement.DELETE("/:id", signalementHandler.Delete)
		}

		notifications := api.Group("/notifications")
		notifications.Use(authMiddleware)
		{
			notifications.GET("/preferences", notificationHandler.GetPreferences)
			notifications.PUT("/preferences", notificationHandler.UpdatePreferences)
			notifications.GET("/history", notificationHandler.ListHistory)
			notifications.POST("/history/:id/read", notificationHandler.MarkRead)
			notifications.POST("/history/:id/clicked", notificationHandler.MarkClicked)
			notifications.POST("/tokens", notificationHandler.RegisterToken)
			notifications.GET("/tokens", notificationHandler.ListTokens)
			notifications.DELETE("/tokens", notificationHandler.DeactivateToken)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	logger.Info("server starting", zap.String("port", cfg.Port))
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

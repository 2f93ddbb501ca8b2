package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/crypto/bcrypt"

	"nhanz-chat/internal/auth"
	"nhanz-chat/internal/config"
	"nhanz-chat/internal/db"
	"nhanz-chat/internal/handlers"
	"nhanz-chat/internal/media"
	"nhanz-chat/internal/middleware"
	"nhanz-chat/internal/observability"
	"nhanz-chat/internal/rabbitmq"
	"nhanz-chat/internal/repositories"
	"nhanz-chat/internal/telemetry"
	"nhanz-chat/internal/ws"
)

const auditRoutingKey = "audit.chat"

func main() {
	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		gin.SetMode(gin.ReleaseMode)
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Str("service", cfg.ServiceName).
			Logger()
	}

	ctx := context.Background()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("tracing setup failed")
	}

	database, err := db.Connect(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to db")
	}
	defer database.Close()
	logger.Info().Msg("connected to PostgreSQL")

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	logger.Info().
		Str("mode", rabbitmq.PublisherMode(publisher)).
		Str("reason", rabbitmq.PublisherNoopReason(publisher)).
		Msg("event publisher ready")
	audit := telemetry.NewAuditEmitter(publisher, auditRoutingKey, cfg.ServiceName, cfg.Env, logger)

	var limiter middleware.Limiter
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, auth rate limiting will fail open")
		}
		limiter = middleware.NewSlidingWindowLimiter(rdb, cfg.AuthRateLimit, cfg.AuthRateWindow, "ratelimit:auth")
	}

	var uploader media.AvatarUploader = media.DisabledUploader{}
	if cfg.CloudinaryEnabled() {
		cld, err := media.NewCloudinaryUploader(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.AvatarFolder)
		if err != nil {
			logger.Fatal().Err(err).Msg("cloudinary setup failed")
		}
		uploader = cld
	} else {
		logger.Warn().Msg("cloudinary not configured, avatar uploads disabled")
	}

	userRepo := repositories.NewUserRepo(database)
	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hasher := auth.NewPasswordHasher(bcrypt.DefaultCost)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL, cfg.ServiceName)
	authn := middleware.NewAuthenticator(tokens, cfg.TrustUserHeader)

	hub := ws.NewHub(messageRepo, publisher, logger)
	wsHandler := ws.NewHandler(hub, authn, cfg.AllowedOrigins, logger)

	authHandler := handlers.NewAuthHandler(userRepo, hasher, tokens, audit, logger)
	conversationHandler := handlers.NewConversationHandler(conversationRepo, logger)
	messageHandler := handlers.NewMessageHandler(messageRepo, conversationRepo, logger)
	userHandler := handlers.NewUserHandler(userRepo, uploader, logger)

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Fatal().Err(err).Msg("invalid TRUSTED_PROXIES")
	}

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	requireAuth := authn.Middleware()
	rateLimit := middleware.RateLimit(limiter, logger)

	authRoutes := router.Group("/api/auth")
	authRoutes.POST("/register", rateLimit, authHandler.Register)
	authRoutes.POST("/login", rateLimit, authHandler.Login)
	authRoutes.POST("/change-password", requireAuth, authHandler.ChangePassword)

	app := router.Group("/api/app", requireAuth)
	app.GET("", conversationHandler.ListMine)
	app.POST("", conversationHandler.GetOrCreateDirect)
	app.GET("/users", userHandler.Contacts)
	app.PUT("/users/profile", userHandler.UpdateProfile)
	app.POST("/users/avatar", userHandler.UploadAvatar)

	messages := router.Group("/api/messages", requireAuth)
	messages.GET("/general", messageHandler.General)
	messages.GET("/:conversationId", messageHandler.History)

	router.GET("/ws", wsHandler.Handle)
	router.GET("/health", handlers.Health(database))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	corsHandler := cors.Handler(corsOptions(cfg))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsHandler(router),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting chat server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hub.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := publisher.Close(); err != nil {
		logger.Warn().Err(err).Msg("close event publisher")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("shutdown tracing")
	}

	logger.Info().Msg("server stopped")
}

// corsOptions allows credentials only for an explicit origin list; the API
// authenticates with bearer tokens, so wildcard origins never need them.
func corsOptions(cfg *config.Config) cors.Options {
	return cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Device-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: !cfg.AllowsAnyOrigin(),
		MaxAge:           300,
	}
}

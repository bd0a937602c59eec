package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/example/sitesnap/internal/cache"
	"github.com/example/sitesnap/internal/config"
	"github.com/example/sitesnap/internal/database"
	"github.com/example/sitesnap/internal/logger"
	"github.com/example/sitesnap/internal/metrics"
	"github.com/example/sitesnap/internal/middleware"
	"github.com/example/sitesnap/internal/routes"
	"github.com/example/sitesnap/internal/services"
)

const (
	bodyLimit       = 150 << 20
	shutdownTimeout = 15 * time.Second
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: "sitesnap"}).Error(ctx, "config.load_failed", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		ServiceName: cfg.App.Name,
		Level:       logger.ParseLevel(cfg.Log.Level),
		WarnStack:   cfg.Log.WarnStack,
		Format:      cfg.Log.Format,
	})

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Error(ctx, "database.connect_failed", err)
		os.Exit(1)
	}

	var redis *cache.Client
	if cfg.Redis.Enabled() {
		redis, err = cache.New(ctx, cfg.Redis)
		if err != nil {
			log.Error(ctx, "redis.connect_failed", err)
			os.Exit(1)
		}
		defer redis.Close()
	} else {
		log.Warn(ctx, "redis.disabled")
	}

	m := metrics.New()

	router := &services.Router{Log: services.NewLogDispatcher(log)}
	if sender := services.NewEmailSender(cfg.SMTP); sender != nil {
		router.Email = sender
	}
	if plum := services.NewPlumClient(cfg.Plum); plum != nil {
		router.SMS = plum
	}

	media, err := services.NewMediaHost(cfg.Cloudinary)
	if err != nil {
		log.Error(ctx, "media.init_failed", err)
		os.Exit(1)
	}

	var alerts services.AlertSink
	if telegram := services.NewTelegramService(cfg.Telegram.BotToken, cfg.Telegram.AdminChatID); telegram.Enabled() {
		alerts = telegram
	}
	cleanup := services.NewCleanupRunner(media, log, m, alerts)

	var attempts services.AttemptLimiter = services.NoopAttemptLimiter{}
	if redis != nil {
		attempts = services.NewRedisAttemptLimiter(redis, cfg.Auth.OTPMaxAttempts, cfg.Auth.OTPAttemptWindow)
	}

	identity, err := services.NewIdentityService(services.IdentityParams{
		DB:         db,
		Dispatcher: router,
		Verifier:   services.NewGoogleVerifier(cfg.Auth.GoogleClientID),
		Attempts:   attempts,
		Logger:     log,
		Metrics:    m,
		JWTSecret:  cfg.Auth.JWTSecret,
		TokenTTL:   cfg.Auth.TokenTTL,
		OTPTTL:     cfg.Auth.OTPTTL,
	})
	if err != nil {
		log.Error(ctx, "identity.init_failed", err)
		os.Exit(1)
	}
	roles := services.NewRoleService(database.GormTx{DB: db})

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		BodyLimit:    bodyLimit,
		ErrorHandler: middleware.ErrorHandler(log),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.App.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(middleware.Metrics(m))
	app.Use(middleware.RequestLogger(log))

	routes.Register(app, routes.Deps{
		DB:       db,
		Config:   cfg,
		Logger:   log,
		Metrics:  m,
		Identity: identity,
		Roles:    roles,
		Media:    media,
		Cleanup:  cleanup,
		Cache:    redis,
	})

	go func() {
		log.Info(log.WithField(ctx, "port", cfg.App.Port), "server.starting")
		if err := app.Listen(":" + cfg.App.Port); err != nil {
			log.Error(ctx, "server.listen_failed", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error(ctx, "server.shutdown_failed", err)
	}
	cleanup.Wait()
	log.Info(ctx, "server.stopped")
}

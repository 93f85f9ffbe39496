package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/vitalab/vitalab-backend/internal/http/handlers"
	"github.com/vitalab/vitalab-backend/internal/platform/kv"
	"github.com/vitalab/vitalab-backend/internal/platform/sms"
	"github.com/vitalab/vitalab-backend/internal/platform/storage"
	"github.com/vitalab/vitalab-backend/internal/repo/postgres"
	"github.com/vitalab/vitalab-backend/internal/service"
	"github.com/vitalab/vitalab-backend/pkg/config"
	"github.com/vitalab/vitalab-backend/pkg/database"
	"github.com/vitalab/vitalab-backend/pkg/events"
	"github.com/vitalab/vitalab-backend/pkg/logger"
	mw "github.com/vitalab/vitalab-backend/pkg/middleware"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store, err := kv.NewRedisStore(kv.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var bus events.Publisher = events.NoopPublisher{}
	if cfg.NATS.Enabled {
		natsBus, err := events.NewNATSEventBus(cfg.NATS.URL)
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		bus = natsBus
	}
	defer bus.Close()

	var gateway sms.Gateway
	if cfg.SMS.UseRealSMS {
		gateway = sms.NewAliyunGateway(sms.AliyunConfig{
			AccessKeyID:     cfg.SMS.AccessKeyID,
			AccessKeySecret: cfg.SMS.AccessKeySecret,
			SignName:        cfg.SMS.SignName,
			TemplateCode:    cfg.SMS.TemplateCode,
			RegionID:        cfg.SMS.RegionID,
			Timeout:         cfg.SMS.Timeout,
		})
	} else {
		gateway = sms.NewDevGateway()
	}

	files, err := storage.NewLocalStore(cfg.Storage.UploadDir)
	if err != nil {
		logger.Error("Failed to prepare upload storage", "error", err)
		os.Exit(1)
	}

	usersRepo := postgres.NewUsersRepo(pool)
	reportsRepo := postgres.NewReportsRepo(pool)

	limiter := service.NewRateLimiter(store)
	authService := service.NewAuthService(store, limiter, gateway, usersRepo, bus, cfg)
	userService := service.NewUserService(usersRepo, files)
	reportService := service.NewReportService(reportsRepo, files)

	h := handlers.New(authService, userService, reportService, cfg)

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("api"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Mount("/", h.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down API...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("API shutdown error", "error", err)
		}
	}()

	logger.Info("Starting API", "port", cfg.Server.Port, "real_sms", cfg.SMS.UseRealSMS)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("API server error", "error", err)
		os.Exit(1)
	}
}

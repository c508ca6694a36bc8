package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	_ "github.com/lib/pq"
	nats "github.com/nats-io/nats.go"

	"GoodsCatalog/internal/config"
	"GoodsCatalog/internal/repository"
	"GoodsCatalog/internal/service"
	externalHttp "GoodsCatalog/internal/transport/http"
	"GoodsCatalog/pkg/broker"
	"GoodsCatalog/pkg/cache"
	"GoodsCatalog/pkg/logging"
	"GoodsCatalog/pkg/storage"
)

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logging.New(logging.Config{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	slog.SetDefault(log)

	// подключаем Postgres
	db, err := sql.Open("postgres", cfg.DB.DSN())
	if err != nil {
		fatal(log, "failed to connect to Postgres", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.Ping(); err != nil {
		fatal(log, "failed to ping Postgres", err)
	}

	// Применяем миграции Postgres с помощью golang-migrate
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		fatal(log, "failed to create migrate driver", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://migrations/postgres", "postgres", driver)
	if err != nil {
		fatal(log, "failed to create migrate instance", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		fatal(log, "failed to apply migrations", err)
	}

	cacheClient := cache.NewRedisClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer func() {
		if err := cacheClient.Close(); err != nil {
			log.Warn("failed to close Redis client", "error", err)
		}
	}()

	nc, err := nats.Connect(cfg.NATS.URL, nats.Name("goods-catalog"))
	if err != nil {
		fatal(log, "failed to connect to NATS", err)
	}
	publisher := broker.NewPublisher(nc, cfg.NATS.Subject)

	images, err := storage.NewS3Store(storage.Config{
		Endpoint:  cfg.S3.Endpoint,
		Region:    cfg.S3.Region,
		Bucket:    cfg.S3.Bucket,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		PublicURL: cfg.S3.PublicURL,
	})
	if err != nil {
		fatal(log, "failed to configure S3 storage", err)
	}

	sessionStore := sessions.NewCookieStore([]byte(cfg.Sessions.Key))
	sessionStore.Options = &sessions.Options{Path: "/", MaxAge: 3600, HttpOnly: true, SameSite: http.SameSiteLaxMode}

	repo := repository.NewGoodRepository(db)
	srv := service.NewCatalogService(repo, cacheClient, publisher, images, service.Options{
		AtomicFormsets: cfg.Catalog.AtomicFormsets,
		MaxImageBytes:  cfg.Catalog.MaxImageBytes,
		CacheTTL:       cfg.Redis.TTL,
		Logger:         log,
	})
	if cfg.Catalog.AtomicFormsets {
		log.Info("image formsets are saved atomically with their good")
	}

	r := mux.NewRouter()
	r.Use(externalHttp.LoggingMiddleware(log))
	h := externalHttp.NewHandler(srv, sessionStore, log)
	h.AddReadinessCheck("postgres", db.PingContext)
	h.AddReadinessCheck("redis", cacheClient.Ping)
	h.AddReadinessCheck("nats", func(context.Context) error {
		if !nc.IsConnected() {
			return errors.New("not connected")
		}
		return nil
	})
	h.RegisterRoutes(r)

	// запускаем HTTP сервер с поддержкой graceful shutdown
	srvHttp := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("starting server", "addr", cfg.HTTPAddr)
		if err := srvHttp.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(log, "server failed", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srvHttp.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	// корректно дренируем и закрываем NATS-соединение
	if err := nc.Drain(); err != nil {
		log.Warn("failed to drain NATS connection", "error", err)
	}
	log.Info("server exited properly")
}

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/ClickHouse/clickhouse-go"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/clickhouse"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/nats-io/nats.go"

	"GoodsCatalog/internal/config"
	"GoodsCatalog/internal/consumer"
	"GoodsCatalog/internal/repository"
	"GoodsCatalog/pkg/logging"
)

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}

func writeStatus(w http.ResponseWriter, status int, v string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": v})
}

func main() {
	cfg, err := config.LoadConsumer()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logging.New(logging.Config{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	slog.SetDefault(log)

	nc, err := nats.Connect(cfg.NATS.URL, nats.Name("goods-catalog-consumer"))
	if err != nil {
		fatal(log, "failed to connect to NATS", err)
	}
	defer nc.Close()

	// Подключаемся к ClickHouse (appdb должна быть создана SQL-скриптами)
	db, err := sql.Open("clickhouse", cfg.ClickhouseDSN)
	if err != nil {
		fatal(log, "failed to connect to ClickHouse", err)
	}
	defer func() { _ = db.Close() }()

	// Применяем миграции ClickHouse с помощью golang-migrate
	driver, err := clickhouse.WithInstance(db, &clickhouse.Config{})
	if err != nil {
		fatal(log, "failed to create ClickHouse migrate driver", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://migrations/clickhouse", "clickhouse", driver)
	if err != nil {
		fatal(log, "failed to create ClickHouse migrate instance", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		fatal(log, "failed to apply ClickHouse migrations", err)
	}

	repo := repository.NewClickhouseRepo(db, log)
	cons := consumer.NewConsumer(repo, cfg.BatchSize, log)

	ctx, stopFlusher := context.WithCancel(context.Background())
	go cons.Run(ctx, cfg.FlushInterval)

	// HTTP-сервер для healthz и readyz
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !nc.IsConnected() {
			writeStatus(w, http.StatusServiceUnavailable, "nats unavailable")
			return
		}
		if err := db.PingContext(r.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "clickhouse unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	healthSrv := &http.Server{Addr: ":" + cfg.Port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("starting health server", "port", cfg.Port)
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal(log, "health server failed", err)
		}
	}()

	sub, err := nc.Subscribe(cfg.NATS.Subject, func(msg *nats.Msg) {
		if err := cons.HandleMessage(context.Background(), msg.Data); err != nil {
			log.Error("failed to handle message", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		fatal(log, "failed to subscribe", err)
	}
	log.Info("consuming catalog events", "subject", cfg.NATS.Subject, "batch", cfg.BatchSize)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("shutting down consumer...")
	stopFlusher()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("health server shutdown failed", "error", err)
	}
	if err := sub.Unsubscribe(); err != nil {
		log.Warn("failed to unsubscribe", "error", err)
	}
	// сбрасываем оставшиеся события
	if err := cons.Flush(shutdownCtx); err != nil {
		log.Error("failed to flush consumer events", "error", err)
	}
}

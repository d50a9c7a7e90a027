package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fedutinova/smartheart/internal/commandworker"
	appconfig "github.com/fedutinova/smartheart/internal/config"
	"github.com/fedutinova/smartheart/internal/database"
	"github.com/fedutinova/smartheart/internal/mq"
	"github.com/fedutinova/smartheart/internal/queue"
	"github.com/fedutinova/smartheart/internal/redis"
	"github.com/fedutinova/smartheart/internal/server"
	"github.com/fedutinova/smartheart/internal/streamclient"
	httpapi "github.com/fedutinova/smartheart/internal/transport/http"
	"github.com/fedutinova/smartheart/internal/writemodel"
	"github.com/fedutinova/smartheart/migrations"
)

func main() {
	cfg := appconfig.Load()
	slog.Info("starting smartheart", "addr", cfg.HTTPAddr, "workers", cfg.QueueWorkers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := database.Migrate(ctx, cfg.PostgresURL, migrations.FS); err != nil {
		slog.Error("failed to migrate database", "err", err)
		os.Exit(1)
	}

	db, err := database.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		slog.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	redisService, err := redis.New(cfg.RedisURL)
	if err != nil {
		slog.Error("failed to connect to Redis", "err", err)
		os.Exit(1)
	}
	defer redisService.Close()
	queueClient := streamclient.New(redisService.Client())

	// The event log is a logically separate client even though it defaults
	// to the same broker as the queue - EVENTSTORE_URL lets it be pointed
	// elsewhere without touching queue traffic.
	eventStore, err := redis.New(cfg.EventStoreURL)
	if err != nil {
		slog.Error("failed to connect to event store", "err", err)
		os.Exit(1)
	}
	defer eventStore.Close()
	eventLogClient := streamclient.New(eventStore.Client())

	books := writemodel.NewBookService(db, eventLogClient)
	users := writemodel.NewUserService(db, eventLogClient)
	rents := writemodel.NewRentService(db, eventLogClient)

	queueCfg := mq.Config{
		WorkerCount: cfg.QueueWorkers,
		MaxRetry:    cfg.QueueMaxRetry,
		RetryDelay:  cfg.QueueRetryDelay,
	}
	module := commandworker.Module{Books: books, Users: users}
	commandQueue, err := queue.New(queueClient, module, "command_worker", queueCfg, commandworker.Handle)
	if err != nil {
		slog.Error("failed to build command_worker queue", "err", err)
		os.Exit(1)
	}
	commandQueue.StartWorkers(ctx)
	defer commandQueue.Close()

	handlers := &httpapi.Handlers{
		Books:   books,
		Users:   users,
		Rents:   rents,
		Command: commandQueue,
		DB:      db,
		Redis:   redisService,
		Config:  cfg,
	}
	r := server.NewRouter(handlers, cfg)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	slog.Info("shutting down")

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	_ = srv.Shutdown(shCtx)
	cancel()
}

// Package main wires together the AI visibility analysis service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/seolens/ai-visibility/internal/analysis"
	"github.com/seolens/ai-visibility/internal/api"
	"github.com/seolens/ai-visibility/internal/checks"
	"github.com/seolens/ai-visibility/internal/clock/system"
	"github.com/seolens/ai-visibility/internal/config"
	"github.com/seolens/ai-visibility/internal/dispatcher"
	"github.com/seolens/ai-visibility/internal/evaluate"
	"github.com/seolens/ai-visibility/internal/evaluate/httpeval"
	"github.com/seolens/ai-visibility/internal/fetch/collyfetch"
	"github.com/seolens/ai-visibility/internal/id/uuid"
	"github.com/seolens/ai-visibility/internal/logging"
	"github.com/seolens/ai-visibility/internal/metrics"
	"github.com/seolens/ai-visibility/internal/progress"
	queueMemory "github.com/seolens/ai-visibility/internal/queue/memory"
	"github.com/seolens/ai-visibility/internal/queue/redisqueue"
	"github.com/seolens/ai-visibility/internal/registry"
	"github.com/seolens/ai-visibility/internal/stage"
	storageMemory "github.com/seolens/ai-visibility/internal/storage/memory"
	storagePostgres "github.com/seolens/ai-visibility/internal/storage/postgres"
	"github.com/seolens/ai-visibility/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	jobStore, closeStore, err := buildJobStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	queue, closeQueue, err := buildQueue(cfg, logger)
	if err != nil {
		return err
	}
	defer closeQueue()

	var evaluator analysis.Evaluator = evaluate.Unconfigured{}
	if cfg.Evaluator.BaseURL != "" {
		client, evalErr := httpeval.New(httpeval.Config{
			BaseURL: cfg.Evaluator.BaseURL,
			APIKey:  cfg.Evaluator.APIKey,
			Timeout: cfg.EvaluatorTimeout(),
		})
		if evalErr != nil {
			return fmt.Errorf("init evaluator: %w", evalErr)
		}
		evaluator = client
	} else {
		logger.Warn("no evaluation service configured, AI-evaluation checks will fail")
	}

	reg, err := registry.New(checks.Defaults(evaluator))
	if err != nil {
		return fmt.Errorf("build check registry: %w", err)
	}

	fetcher := collyfetch.New(collyfetch.Config{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      cfg.FetchTimeout(),
		MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
	}, logger.Named("fetch"))

	publisher := progress.NewPublisher(m.Subscribers, logger.Named("progress"))
	orchestrator := stage.NewOrchestrator(reg, logger.Named("stage"))
	clock := system.New()
	idGen := uuid.New()

	workers := make([]*worker.Worker, 0, cfg.Workers.Count)
	for i := 0; i < cfg.Workers.Count; i++ {
		workers = append(workers, worker.New(
			queue,
			jobStore,
			fetcher,
			orchestrator,
			reg,
			publisher,
			clock,
			m,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(queue, workers)

	apiServer := api.NewServer(jobStore, dispatch, publisher, idGen, clock, m, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started", zap.Int("workers", cfg.Workers.Count))
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

func buildJobStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (analysis.JobStore, func(), error) {
	if cfg.DB.DSN == "" {
		logger.Info("using in-memory job store")
		return storageMemory.NewJobStore(), func() {}, nil
	}
	store, err := storagePostgres.NewJobStore(ctx, storagePostgres.JobStoreConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init postgres job store: %w", err)
	}
	logger.Info("using postgres job store")
	return store, store.Close, nil
}

func buildQueue(cfg config.Config, logger *zap.Logger) (analysis.Queue, func(), error) {
	switch cfg.Queue.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		q := redisqueue.NewQueue(client, redisqueue.Config{
			Lease: cfg.QueueLease(),
		}, logger.Named("queue"))
		logger.Info("using redis queue", zap.String("addr", cfg.Queue.RedisAddr))
		return q, func() {
			q.Close()
			_ = client.Close()
		}, nil
	default:
		q := queueMemory.NewQueue(queueMemory.Config{
			Capacity: cfg.Queue.Capacity,
			Lease:    cfg.QueueLease(),
		})
		logger.Info("using in-memory queue")
		return q, q.Close, nil
	}
}

// Package main 导入任务执行器入口（job-worker），消费 Redis Streams 中的导入任务
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"portfolio-rag-api/internal/config"
	"portfolio-rag-api/internal/infrastructure/messaging"
	"portfolio-rag-api/internal/wire"
	"portfolio-rag-api/pkg/logger"
	"portfolio-rag-api/pkg/tracer"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Ingest.Queue.Backend != config.QueueBackendRedisStream {
		logger.Fatal(ctx, "job-worker requires ingest.queue.backend=redis_stream", nil,
			"backend", cfg.Ingest.Queue.Backend)
	}

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "job-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	core, cleanup, err := wire.InitializeCore(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize core", err)
	}
	defer cleanup()
	if core.Redis == nil {
		logger.Fatal(ctx, "redis is not available", nil)
	}

	q := cfg.Ingest.Queue
	consumer := messaging.NewConsumer(core.Redis.Redis(), messaging.ConsumerConfig{
		Stream:       messaging.Stream(q.Stream),
		Group:        messaging.ConsumerGroup(q.Group),
		ConsumerName: hostnameConsumerName(),
		BlockTimeout: q.BlockTimeout,
	})
	consumer.RegisterHandler(messaging.MessageTypeIngest, messaging.IngestHandler(core.Ingestion))

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}
	go consumer.MonitorQueue(ctx, 15*time.Second, 100)

	log := logger.FromContext(ctx)
	log.Info("job-worker started", "stream", q.Stream, "group", q.Group)

	<-ctx.Done()

	log.Info("job-worker shutting down")
	consumer.Stop()
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

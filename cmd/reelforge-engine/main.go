// Reelforge Engine — оркестратор generation-pipeline.
//
// Engine:
//   - Принимает pipeline-документы через HTTP API и очередь ingest
//   - Строит DAG задач и диспетчеризует их с учётом admission queue
//   - Отслеживает выполнение на ComfyUI-backend'е (Execution Tracker)
//   - Запускает pipeline по расписаниям
//   - Возобновляет незавершённые pipeline после рестарта
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Reelforge/internal/api"
	"github.com/shaiso/Reelforge/internal/backend"
	"github.com/shaiso/Reelforge/internal/domain"
	"github.com/shaiso/Reelforge/internal/executor"
	"github.com/shaiso/Reelforge/internal/mq"
	"github.com/shaiso/Reelforge/internal/queue"
	"github.com/shaiso/Reelforge/internal/repo"
	"github.com/shaiso/Reelforge/internal/schedule"
	"github.com/shaiso/Reelforge/internal/scheduler"
	"github.com/shaiso/Reelforge/internal/telemetry"
	"github.com/shaiso/Reelforge/internal/tracker"
)

func main() {
	// .env опционален, для локальной разработки
	godotenv.Load()

	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting reelforge-engine")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repo.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected")

	store := repo.NewStore(pool)

	// RabbitMQ: best-effort, без брокера работаем только через HTTP API
	var publisher *mq.Publisher
	mqConn, err := mq.NewConnection(mq.URLFromEnv(), logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running without queue integration", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		publisher = mq.NewPublisher(mqConn, logger)
	}

	// ComfyUI backend
	comfyURL := os.Getenv("COMFY_URL")
	if comfyURL == "" {
		comfyURL = "http://localhost:8188"
	}
	client := backend.NewClient(comfyURL, logger)

	// Executor registry: один generation-executor на все типы задач
	registry := executor.NewRegistry()
	executor.RegisterGenerationExecutors(registry, executor.NewGenerationExecutor(client, logger))

	// Execution Tracker
	trk, err := tracker.New(tracker.Config{}, logger,
		tracker.WithStatsProvider(client),
		tracker.WithInterrupter(client),
	)
	if err != nil {
		logger.Error("failed to create tracker", "error", err)
		os.Exit(1)
	}

	// Admission queue
	admission := queue.NewDefault()
	if os.Getenv("HEAVY_SLOTS") != "" || os.Getenv("LIGHT_SLOTS") != "" {
		admission, err = queue.New(map[domain.ResourceClass]int64{
			domain.ClassHeavy: envInt64("HEAVY_SLOTS", queue.DefaultHeavyCapacity),
			domain.ClassLight: envInt64("LIGHT_SLOTS", queue.DefaultLightCapacity),
		})
		if err != nil {
			logger.Error("invalid admission queue capacities", "error", err)
			os.Exit(1)
		}
	}

	// Планировщик
	cfg := scheduler.Config{
		Store:    store,
		Queue:    admission,
		Tracker:  trk,
		Registry: registry,
		Backoff: scheduler.Backoff{
			Mode: os.Getenv("BACKOFF_MODE"),
		},
		Logger: logger,
	}
	if publisher != nil {
		cfg.Events = publisher
	}
	sched := scheduler.New(cfg)

	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	// Consumer очереди ingest
	if mqConn != nil {
		consumer := mq.NewIngestConsumer(mqConn, sched, logger)
		go func() {
			if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
				logger.Error("ingest consumer stopped", "error", err)
			}
		}()
	}

	// Запуск pipeline по расписаниям
	runner := schedule.New(schedule.Config{
		Schedules: store,
		Submitter: sched,
		Logger:    logger,
	})
	go runner.Run(ctx)

	// HTTP: API + /healthz + /metrics
	handler := api.NewHandler(api.Config{
		Store:   store,
		Control: sched,
		Logger:  logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	sched.Stop()
	logger.Info("reelforge-engine stopped")
}

// envInt64 читает int64 из окружения с дефолтным значением.
func envInt64(name string, def int64) int64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

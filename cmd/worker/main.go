package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vetbook/appointments/pkg/app"
	"github.com/vetbook/appointments/pkg/cache"
	"github.com/vetbook/appointments/pkg/config"
	"github.com/vetbook/appointments/pkg/database"
	"github.com/vetbook/appointments/pkg/events"
	"github.com/vetbook/appointments/pkg/httpx"
	"github.com/vetbook/appointments/pkg/kafka"
	"github.com/vetbook/appointments/pkg/logger"
	"github.com/vetbook/appointments/pkg/telemetry"
	"github.com/vetbook/appointments/pkg/workflows"
	"github.com/vetbook/appointments/services/appointment/application/consumers"
	appsvcs "github.com/vetbook/appointments/services/appointment/application/services"
	noshow "github.com/vetbook/appointments/services/appointment/application/workflows"
	"github.com/vetbook/appointments/services/appointment/infrastructure/messaging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := config.ValidateForProduction(cfg); err != nil {
		slog.Error("production config validation failed", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelShutdown, _, err := telemetry.Setup(ctx, cfg)
	if err != nil {
		log.Error("failed to setup otel", "error", err)
		os.Exit(1)
	}
	defer otelShutdown(context.Background()) //nolint:errcheck

	if err := telemetry.SetupSentry(cfg); err != nil {
		log.Warn("failed to setup sentry, continuing without crash reporting", "error", err)
	}
	defer telemetry.SentryFlush()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, log)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	defer pool.Close()
	log.Info("database pool connected")

	// The forwarder runs in the api process; the worker only consumes.
	eventBus := events.NewEventBus(pool.DB(), log)
	defer eventBus.Close() //nolint:errcheck

	appConfig := &app.Application{
		Config:   cfg,
		Db:       pool,
		Logger:   log,
		EventBus: eventBus,
	}

	health := httpx.HealthChecks{
		Database: pool,
		EventBus: eventBus,
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Warn("redis unavailable, cache refresher disabled", "error", err)
	} else {
		defer redisClient.Close() //nolint:errcheck
		log.Info("redis connected")
		appConfig.Redis = redisClient
		health.Redis = redisClient
	}

	if cfg.TemporalEnabled {
		temporalClient, err := workflows.NewTemporalClient(ctx, cfg.TemporalHostPort, cfg.TemporalNamespace, log)
		if err != nil {
			log.Error("failed to initialize temporal client", "error", err)
			os.Exit(1) //nolint:gocritic
		}
		defer temporalClient.Close()
		appConfig.TemporalClient = temporalClient
	}

	svcs := appsvcs.New(appConfig)

	var group []consumers.Consumer
	if appConfig.Redis != nil {
		group = append(group, consumers.Consumer{
			Group:   consumers.GroupCacheRefresher,
			Handler: consumers.RefreshCache(svcs.Appointment, log),
		})
	}

	if cfg.KafkaBrokers != "" {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, log)
		if err != nil {
			log.Error("failed to create kafka producer", "error", err)
			os.Exit(1) //nolint:gocritic
		}
		defer producer.Close() //nolint:errcheck
		health.Kafka = producer
		group = append(group, consumers.Consumer{
			Group:   consumers.GroupKafkaRelay,
			Handler: messaging.KafkaRelay(producer),
		})
	}

	if tc := appConfig.TemporalClient; tc != nil {
		w := tc.NewWorker(cfg.TemporalTaskQueue)
		noshow.Register(w, &noshow.Activities{Appointments: svcs.Appointment})
		if err := w.Start(); err != nil {
			log.Error("failed to start temporal worker", "error", err)
			os.Exit(1) //nolint:gocritic
		}
		defer w.Stop()
		log.Info("temporal worker started", "task_queue", cfg.TemporalTaskQueue)

		scheduler := noshow.NewScheduler(tc, cfg.TemporalTaskQueue, cfg.NoShowGracePeriod, log)
		group = append(group, consumers.Consumer{
			Group:   consumers.GroupNoShowScheduler,
			Handler: consumers.Decoded(scheduler.Handle),
		})
	}

	if err := consumers.Register(ctx, eventBus, log, group...); err != nil {
		log.Error("failed to register subscribers", "error", err)
		os.Exit(1) //nolint:gocritic
	}
	if len(group) == 0 {
		log.Warn("no consumers enabled; configure REDIS_URL, KAFKA_BROKERS or TEMPORAL_ENABLED")
	}

	var healthSrv *http.Server
	if cfg.WorkerHealthAddr != "" {
		r := chi.NewRouter()
		r.Get("/health", httpx.HealthHandler(health))
		healthSrv = httpx.NewServer(cfg.WorkerHealthAddr, r)
		go func() {
			log.Info("worker health listening", "addr", healthSrv.Addr)
			if err := healthSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("worker health server error", "error", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	if healthSrv != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		if err := healthSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("worker health shutdown", "error", err)
		}
		stop()
	}
	cancel()

	// EventBus.Close() (via defer) waits up to 30s for in-flight handlers.
	log.Info("worker stopped")
}

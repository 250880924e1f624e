package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TeoEchavarria/health-tech-app/internal/api"
	"github.com/TeoEchavarria/health-tech-app/internal/auth"
	"github.com/TeoEchavarria/health-tech-app/internal/cache"
	"github.com/TeoEchavarria/health-tech-app/internal/config"
	"github.com/TeoEchavarria/health-tech-app/internal/domain"
	"github.com/TeoEchavarria/health-tech-app/internal/logger"
	"github.com/TeoEchavarria/health-tech-app/internal/observability"
	"github.com/TeoEchavarria/health-tech-app/internal/outbox"
	persistence "github.com/TeoEchavarria/health-tech-app/internal/persistence/postgres"
	httptransport "github.com/TeoEchavarria/health-tech-app/internal/transport/http"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := observability.InitTracing(ctx, log, observability.TracingConfig{
		Enabled:     cfg.OTelEnabled,
		ServiceName: cfg.ServiceName,
		SampleRatio: cfg.OTelSampleRatio,
	})

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatal("failed to connect to postgres", "error", err)
	}
	defer pool.Close()

	opts := []domain.Option{
		domain.WithLogger(log),
		domain.WithWorkers(cfg.AggregationWorkers),
	}
	if cfg.RedisAddr != "" {
		rdb, err := cache.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("aggregate cache disabled", "error", err)
		} else {
			defer rdb.Close()
			opts = append(opts, domain.WithCache(cache.NewRedisCache(rdb, cfg.CacheTTL, log)))
		}
	}
	service := domain.NewService(persistence.NewRepository(pool), opts...)

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, log)
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry, log, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go dispatcher.Start(ctx)

	mux := http.NewServeMux()
	api.NewHandler(service, log).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	server := httptransport.NewServer(
		httptransport.DefaultServerConfig(cfg.HTTPAddress),
		httptransport.RequestLogger(log, authMiddleware.Wrap(mux)),
		log,
	)

	log.Info("health api starting", "address", cfg.HTTPAddress, "cache", cfg.RedisAddr != "")
	runErr := server.Run(ctx)
	if runErr != nil {
		log.Error("server error", "error", runErr)
		stop()
	}

	dispatcher.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Warn("tracer shutdown failed", "error", err)
	}
	if runErr != nil {
		os.Exit(1)
	}
}

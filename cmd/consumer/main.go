package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/TeoEchavarria/health-tech-app/internal/cache"
	"github.com/TeoEchavarria/health-tech-app/internal/config"
	"github.com/TeoEchavarria/health-tech-app/internal/consumer"
	"github.com/TeoEchavarria/health-tech-app/internal/domain"
	"github.com/TeoEchavarria/health-tech-app/internal/logger"
	"github.com/TeoEchavarria/health-tech-app/internal/mqttingest"
	"github.com/TeoEchavarria/health-tech-app/internal/observability"
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
		ServiceName: cfg.ServiceName + "-consumer",
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
		// Invalidation only; the consumer never serves reads.
		rdb, err := cache.Dial(ctx, cfg.RedisAddr)
		if err != nil {
			log.Warn("aggregate cache disabled", "error", err)
		} else {
			defer rdb.Close()
			opts = append(opts, domain.WithCache(cache.NewRedisCache(rdb, cfg.CacheTTL, log)))
		}
	}
	service := domain.NewService(persistence.NewRepository(pool), opts...)
	handler := consumer.NewSyncHandler(service, log)

	var wg sync.WaitGroup

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.MetricsAddress), metricsMux, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := metricsSrv.Run(ctx); err != nil {
			log.Error("metrics server error", "error", err)
		}
	}()

	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})

		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(log))

		wg.Add(1)
		go func(topic string, r *kafka.Reader) {
			defer wg.Done()
			defer r.Close()

			log.Info("consumer started", "topic", topic, "group", cfg.ConsumerGroupID)
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("consumer stopped with error", "topic", topic, "error", err)
			}
		}(topic, reader)
	}

	if cfg.MQTTBrokerURL != "" {
		client, err := mqttingest.Dial(mqttingest.Options{BrokerURL: cfg.MQTTBrokerURL, ClientID: cfg.MQTTClientID})
		if err != nil {
			log.Error("mqtt bridge disabled", "broker", cfg.MQTTBrokerURL, "error", err)
		} else {
			defer client.Close()
			if err := mqttingest.NewBridge(client, service, log).Start(ctx); err != nil {
				log.Error("mqtt bridge disabled", "error", err)
			}
		}
	}

	<-ctx.Done()
	log.Info("consumer shutdown requested")
	wg.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Warn("tracer shutdown failed", "error", err)
	}
}

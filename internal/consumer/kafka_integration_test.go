//go:build integration

package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/TeoEchavarria/health-tech-app/internal/domain"
	"github.com/TeoEchavarria/health-tech-app/internal/persistence/memory"
)

func TestKafkaRecordBatchProducesDailyAggregate(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkaContainer.Run(ctx, "confluentinc/confluent-local:7.5.0", testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	broker := brokers[0]

	topic := "health_records"

	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))

	svc := domain.NewService(memory.NewRepository())

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{broker},
		GroupID:     "health-integration",
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	consumerCtx, stop := context.WithCancel(ctx)
	defer stop()

	proc := NewProcessor(reader, NewSyncHandler(svc, nil))
	go func() {
		_ = proc.Run(consumerCtx)
	}()

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(broker),
		Topic:                  topic,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	defer writer.Close()

	err = writer.WriteMessages(context.Background(),
		kafka.Message{Key: []byte("garbage"), Value: []byte("not json")},
		kafka.Message{
			Key: []byte("tenant:u1"),
			Value: []byte(`{"user_id":"u1","record_type":"RestingHeartRate","data":[
				{"metadata":{"id":"r1"},"time":"2024-09-10T06:00:00Z","beatsPerMinute":58},
				{"metadata":{"id":"r2"},"time":"2024-09-10T07:00:00Z","beatsPerMinute":62}
			]}`),
			Headers: []kafka.Header{{Key: "tenant_id", Value: []byte("tenant")}},
		},
	)
	require.NoError(t, err)

	key := domain.AggregateKey{TenantID: "tenant", UserID: "u1", RecordType: "restingHeartRate", Date: "2024-09-10"}
	require.Eventually(t, func() bool {
		agg, err := svc.GetDailyAggregate(ctx, key)
		return err == nil && agg.RecordCount == 2
	}, 60*time.Second, 500*time.Millisecond)
}

package mqttingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/TeoEchavarria/health-tech-app/internal/domain"
	"github.com/TeoEchavarria/health-tech-app/internal/logger"
)

// TopicFilter matches health/<tenant>/<user>/<RecordType>.
const TopicFilter = "health/+/+/+"

const handleTimeout = 15 * time.Second

// Subscriber is the subset of Client used by the bridge.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Syncer is the slice of domain.Service the bridge needs.
type Syncer interface {
	SyncRecords(ctx context.Context, input domain.SyncInput) (*domain.SyncResult, error)
}

// Bridge subscribes to gateway topics and syncs every payload it receives.
type Bridge struct {
	sub    Subscriber
	syncer Syncer
	log    *logger.Logger
	ctx    context.Context
}

// NewBridge constructs a Bridge.
func NewBridge(sub Subscriber, syncer Syncer, log *logger.Logger) *Bridge {
	if log == nil {
		log = logger.NewNop()
	}
	return &Bridge{sub: sub, syncer: syncer, log: log.With("component", "mqtt"), ctx: context.Background()}
}

// Start subscribes with QoS 1. Messages handled after ctx is cancelled fail fast.
func (b *Bridge) Start(ctx context.Context) error {
	b.ctx = ctx
	if err := b.sub.Subscribe(TopicFilter, 1, b.handle); err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicFilter, err)
	}
	b.log.Info("mqtt bridge subscribed", "topic", TopicFilter)
	return nil
}

func (b *Bridge) handle(_ mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(b.ctx, handleTimeout)
	defer cancel()

	result, err := b.process(ctx, msg.Topic(), msg.Payload())
	if err != nil {
		b.log.Warn("mqtt message dropped", "topic", msg.Topic(), "error", err)
		return
	}
	b.log.Debug("mqtt records synced", "batch_id", result.BatchID, "record_type", result.RecordType, "accepted", result.Accepted, "rejected", len(result.Rejected))
}

func (b *Bridge) process(ctx context.Context, topic string, payload []byte) (*domain.SyncResult, error) {
	tenantID, userID, recordType, err := ParseTopic(topic)
	if err != nil {
		return nil, err
	}
	records, err := unwrap(payload)
	if err != nil {
		return nil, err
	}
	return b.syncer.SyncRecords(ctx, domain.SyncInput{
		TenantID:   tenantID,
		UserID:     userID,
		RecordType: recordType,
		Records:    records,
	})
}

// ParseTopic splits health/<tenant>/<user>/<RecordType>.
func ParseTopic(topic string) (tenantID, userID, recordType string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "health" {
		return "", "", "", fmt.Errorf("unexpected topic %q", topic)
	}
	for _, p := range parts[1:] {
		if p == "" {
			return "", "", "", fmt.Errorf("unexpected topic %q", topic)
		}
	}
	return parts[1], parts[2], parts[3], nil
}

// unwrap accepts {"data": <records>} or the records themselves.
func unwrap(payload []byte) ([]json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err == nil && len(envelope) == 1 {
		if data, ok := envelope["data"]; ok {
			return domain.SplitRecords(data)
		}
	}
	if !json.Valid(payload) {
		return nil, errors.New("payload is not valid JSON")
	}
	return domain.SplitRecords(payload)
}

package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TeoEchavarria/health-tech-app/internal/domain"
	"github.com/TeoEchavarria/health-tech-app/internal/logger"
)

// Syncer is the slice of domain.Service the handler needs.
type Syncer interface {
	SyncRecords(ctx context.Context, input domain.SyncInput) (*domain.SyncResult, error)
}

// recordEnvelope is the value published on the raw records topic.
type recordEnvelope struct {
	TenantID   string          `json:"tenant_id"`
	UserID     string          `json:"user_id"`
	RecordType string          `json:"record_type"`
	Data       json.RawMessage `json:"data"`
}

// SyncHandler feeds raw record batches into the sync service.
type SyncHandler struct {
	syncer Syncer
	log    *logger.Logger
}

// NewSyncHandler constructs a SyncHandler.
func NewSyncHandler(syncer Syncer, log *logger.Logger) *SyncHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &SyncHandler{syncer: syncer, log: log}
}

// Handle decodes the envelope and syncs its records. Malformed envelopes and
// invalid identifiers are reported as ErrPermanent.
func (h *SyncHandler) Handle(ctx context.Context, msg Message) error {
	var env recordEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return fmt.Errorf("%w: decode envelope: %v", ErrPermanent, err)
	}
	if env.TenantID == "" {
		env.TenantID = msg.TenantID
	}

	records, err := domain.SplitRecords(env.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}

	result, err := h.syncer.SyncRecords(ctx, domain.SyncInput{
		TenantID:   env.TenantID,
		UserID:     env.UserID,
		RecordType: env.RecordType,
		Records:    records,
	})
	if err != nil {
		if isPermanent(err) {
			return fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		return err
	}

	h.log.Debug("records synced",
		"batch_id", result.BatchID,
		"record_type", result.RecordType,
		"user_id", env.UserID,
		"accepted", result.Accepted,
		"rejected", len(result.Rejected),
		"dates", len(result.Dates),
	)
	return nil
}

func isPermanent(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidInput,
		domain.ErrEmptyRecordType,
		domain.ErrInvalidRecordType,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

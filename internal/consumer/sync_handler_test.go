package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TeoEchavarria/health-tech-app/internal/domain"
	"github.com/TeoEchavarria/health-tech-app/internal/persistence/memory"
)

type recordingSyncer struct {
	inputs []domain.SyncInput
	err    error
}

func (s *recordingSyncer) SyncRecords(_ context.Context, input domain.SyncInput) (*domain.SyncResult, error) {
	s.inputs = append(s.inputs, input)
	if s.err != nil {
		return nil, s.err
	}
	return &domain.SyncResult{RecordType: input.RecordType, Accepted: len(input.Records)}, nil
}

func TestSyncHandlerSplitsArrayAndFallsBackToHeaderTenant(t *testing.T) {
	syncer := &recordingSyncer{}
	h := NewSyncHandler(syncer, nil)

	err := h.Handle(context.Background(), Message{
		TenantID: "tenant-from-header",
		Payload:  json.RawMessage(`{"user_id":"u1","record_type":"Steps","data":[{"a":1},{"b":2}]}`),
	})
	require.NoError(t, err)
	require.Len(t, syncer.inputs, 1)
	require.Equal(t, "tenant-from-header", syncer.inputs[0].TenantID)
	require.Equal(t, "Steps", syncer.inputs[0].RecordType)
	require.Len(t, syncer.inputs[0].Records, 2)
}

func TestSyncHandlerClassifiesFailures(t *testing.T) {
	h := NewSyncHandler(&recordingSyncer{}, nil)
	err := h.Handle(context.Background(), Message{Payload: json.RawMessage(`{"user_id":"u1","record_type":"steps"}`)})
	require.ErrorIs(t, err, ErrPermanent)

	h = NewSyncHandler(&recordingSyncer{err: fmt.Errorf("%w: %q", domain.ErrInvalidRecordType, "x")}, nil)
	err = h.Handle(context.Background(), Message{Payload: json.RawMessage(`{"tenant_id":"t","user_id":"u1","record_type":"x","data":{}}`)})
	require.ErrorIs(t, err, ErrPermanent)

	transient := errors.New("connection reset")
	h = NewSyncHandler(&recordingSyncer{err: transient}, nil)
	err = h.Handle(context.Background(), Message{Payload: json.RawMessage(`{"tenant_id":"t","user_id":"u1","record_type":"steps","data":{}}`)})
	require.ErrorIs(t, err, transient)
	require.NotErrorIs(t, err, ErrPermanent)
}

func TestSyncHandlerDrivesServiceEndToEnd(t *testing.T) {
	svc := domain.NewService(memory.NewRepository())
	h := NewSyncHandler(svc, nil)

	payload := `{"tenant_id":"t","user_id":"u1","record_type":"Weight","data":[
		{"metadata":{"id":"w1","dataOrigin":"com.scale"},"time":"2024-06-01T07:00:00Z","weight":{"kilograms":71.5}},
		{"metadata":{"id":"w2","dataOrigin":"com.scale"},"time":"2024-06-01T21:00:00Z","weight":{"kilograms":72.5}}
	]}`
	require.NoError(t, h.Handle(context.Background(), Message{Payload: json.RawMessage(payload)}))

	agg, err := svc.GetDailyAggregate(context.Background(), domain.AggregateKey{TenantID: "t", UserID: "u1", RecordType: "weight", Date: "2024-06-01"})
	require.NoError(t, err)

	var doc struct {
		DataOrigins []string `json:"dataOrigins"`
		Aggregate   struct {
			Value        float64 `json:"value"`
			DailyAverage float64 `json:"dailyAverage"`
		} `json:"aggregate"`
	}
	require.NoError(t, json.Unmarshal(agg.Payload, &doc))
	require.Equal(t, []string{"com.scale"}, doc.DataOrigins)
	require.Equal(t, 72.5, doc.Aggregate.Value)
	require.Equal(t, 72.0, doc.Aggregate.DailyAverage)
}

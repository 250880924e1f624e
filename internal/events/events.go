// Package events defines the payloads published for daily aggregate changes.
package events

import (
	"encoding/json"
	"time"
)

const (
	// TypeAggregateUpdated is emitted whenever a daily aggregate is recomputed.
	TypeAggregateUpdated = "aggregate.updated"
	// TypeAggregateDeleted is emitted when a day loses its last record.
	TypeAggregateDeleted = "aggregate.deleted"

	// AggregateTopic carries both aggregate event types, keyed by tenant:user.
	AggregateTopic = "aggregate_events"
)

// AggregateUpdated carries the full recomputed document so consumers never
// need to merge partial updates.
type AggregateUpdated struct {
	TenantID    string          `json:"tenant_id"`
	UserID      string          `json:"user_id"`
	RecordType  string          `json:"record_type"`
	Date        string          `json:"date"`
	Category    string          `json:"category"`
	RecordCount int             `json:"record_count"`
	Aggregate   json.RawMessage `json:"aggregate"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// AggregateDeleted signals that no aggregate exists any longer for a day.
type AggregateDeleted struct {
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	RecordType string    `json:"record_type"`
	Date       string    `json:"date"`
	DeletedAt  time.Time `json:"deleted_at"`
}

// Route describes where an event type is published.
type Route struct {
	Topic         string
	SchemaSubject string
}

// Routes maps event types to their topic and Schema Registry subject.
var Routes = map[string]Route{
	TypeAggregateUpdated: {Topic: AggregateTopic, SchemaSubject: AggregateTopic + "-aggregate.updated"},
	TypeAggregateDeleted: {Topic: AggregateTopic, SchemaSubject: AggregateTopic + "-aggregate.deleted"},
}

// PartitionKey keeps every event of one user on the same partition.
func PartitionKey(tenantID, userID string) string {
	return tenantID + ":" + userID
}

// AggregateID is the stable identifier of one (tenant, user, record type, date).
func AggregateID(tenantID, userID, recordType, date string) string {
	return tenantID + "/" + userID + "/" + recordType + "/" + date
}

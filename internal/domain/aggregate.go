package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/TeoEchavarria/health-tech-app/internal/aggregation"
)

// StoredRecord is a raw record persisted for one user and record type. Date
// is the calendar date the record was bucketed under when it was ingested.
type StoredRecord struct {
	DedupeKey  string
	TenantID   string
	UserID     string
	RecordType string
	Date       string
	Record     aggregation.Record
	IngestedAt time.Time
}

// AggregateKey identifies a daily aggregate.
type AggregateKey struct {
	TenantID   string
	UserID     string
	RecordType string
	Date       string
}

// DailyAggregate is the reduced summary of one (user, record type, date).
// Payload is the JSON document produced by the aggregation engine.
type DailyAggregate struct {
	AggregateKey
	Category    aggregation.Category
	RecordCount int
	Payload     json.RawMessage
	UpdatedAt   time.Time
}

// Cursor models the pagination token for aggregate listings.
type Cursor struct {
	Date       string
	RecordType string
}

// BuildFunc reduces the records of one day into its aggregate. current is the
// stored aggregate, or nil. Returning nil removes the aggregate.
type BuildFunc func(records []aggregation.Record, current *DailyAggregate) (*DailyAggregate, error)

// Repository captures persistence operations for raw records and aggregates.
type Repository interface {
	// UpsertRecords stores records keyed by dedupe key and returns the dates
	// that previous versions of replaced records were stored under, when
	// those differ from the new date.
	UpsertRecords(ctx context.Context, records []StoredRecord) ([]string, error)
	// ListRecords returns stored records dated within the query bounds,
	// oldest date first and in first-ingested order within a date.
	ListRecords(ctx context.Context, query RecordQuery) ([]StoredRecord, error)
	// DeleteRecords removes records by dedupe key and returns how many were
	// removed along with the distinct dates they were stored under.
	DeleteRecords(ctx context.Context, tenantID, userID, recordType string, dedupeKeys []string) (int, []string, error)

	// RecomputeAggregate loads the records of key's date and the stored
	// aggregate, hands both to build and persists the result together with
	// its outbox event. Calls for the same key are serialized for the whole
	// load, build and write cycle. It returns what was stored, or nil when
	// the aggregate was removed.
	RecomputeAggregate(ctx context.Context, key AggregateKey, build BuildFunc) (*DailyAggregate, error)
	GetAggregate(ctx context.Context, key AggregateKey) (*DailyAggregate, error)
	ListAggregates(ctx context.Context, query ListQuery) ([]DailyAggregate, *Cursor, error)
}

// AggregateCache fronts aggregate reads. Implementations must tolerate misses
// and outages; a cache failure never fails a request.
//
// Entries are versioned by UpdatedAt. Set keeps whichever of the cached and
// the offered aggregate is newer, so a read that raced a recompute cannot
// overwrite the fresher document.
type AggregateCache interface {
	Get(ctx context.Context, key AggregateKey) (*DailyAggregate, bool)
	Set(ctx context.Context, aggregate DailyAggregate)
	// Evict marks key as having no aggregate as of at. Until the marker
	// expires, Get misses and Set ignores aggregates stamped before at.
	Evict(ctx context.Context, key AggregateKey, at time.Time) error
}

// RecordQuery selects the stored records of one user and record type between
// two inclusive YYYY-MM-DD dates.
type RecordQuery struct {
	TenantID   string
	UserID     string
	RecordType string
	From       string
	To         string
}

// ListQuery selects a date range of aggregates for one user and record type.
// From and To are inclusive YYYY-MM-DD bounds; empty means open.
type ListQuery struct {
	TenantID   string
	UserID     string
	RecordType string
	From       string
	To         string
	Cursor     *Cursor
	Limit      int
}

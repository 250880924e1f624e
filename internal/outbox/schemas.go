package outbox

import "github.com/TeoEchavarria/health-tech-app/internal/events"

const aggregateUpdatedSchema = `{
  "type": "object",
  "title": "AggregateUpdated",
  "properties": {
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "record_type": {"type": "string"},
    "date": {"type": "string", "format": "date"},
    "category": {"type": "string", "enum": ["cumulative_sum", "cumulative_max", "instantaneous", "hourly", "medical", "sessions", "reproductive"]},
    "record_count": {"type": "integer", "minimum": 0},
    "aggregate": {"type": "object"},
    "updated_at": {"type": "string", "format": "date-time"}
  },
  "required": ["tenant_id", "user_id", "record_type", "date", "category", "record_count", "aggregate", "updated_at"],
  "additionalProperties": false
}`

const aggregateDeletedSchema = `{
  "type": "object",
  "title": "AggregateDeleted",
  "properties": {
    "tenant_id": {"type": "string"},
    "user_id": {"type": "string"},
    "record_type": {"type": "string"},
    "date": {"type": "string", "format": "date"},
    "deleted_at": {"type": "string", "format": "date-time"}
  },
  "required": ["tenant_id", "user_id", "record_type", "date", "deleted_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeAggregateUpdated: {Schema: aggregateUpdatedSchema},
	events.TypeAggregateDeleted: {Schema: aggregateDeletedSchema},
}

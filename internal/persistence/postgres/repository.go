package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TeoEchavarria/health-tech-app/internal/aggregation"
	"github.com/TeoEchavarria/health-tech-app/internal/domain"
	"github.com/TeoEchavarria/health-tech-app/internal/events"
	"github.com/TeoEchavarria/health-tech-app/internal/observability"
)

const dateLayout = "2006-01-02"

// Repository provides Postgres-backed persistence for raw health records,
// daily aggregates and their outbox events.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// inTenantTx runs fn inside a transaction scoped to tenantID for row level security.
func (r *Repository) inTenantTx(ctx context.Context, tenantID string, fn func(pgx.Tx) error) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantID); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type series struct {
	tenantID   string
	userID     string
	recordType string
}

// UpsertRecords implements domain.Repository.
func (r *Repository) UpsertRecords(ctx context.Context, records []domain.StoredRecord) ([]string, error) {
	grouped := make(map[series][]domain.StoredRecord)
	for _, rec := range records {
		key := series{rec.TenantID, rec.UserID, rec.RecordType}
		grouped[key] = append(grouped[key], rec)
	}

	moved := make(map[string]struct{})
	for key, recs := range grouped {
		err := r.inTenantTx(ctx, key.tenantID, func(tx pgx.Tx) error {
			previous, err := existingDates(ctx, tx, key, recs)
			if err != nil {
				return err
			}

			const stmt = `INSERT INTO health_records (tenant_id, user_id, record_type, dedupe_key, record_date, record, ingested_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (tenant_id, user_id, record_type, dedupe_key)
        DO UPDATE SET record_date = EXCLUDED.record_date, record = EXCLUDED.record, ingested_at = EXCLUDED.ingested_at`

			batch := &pgx.Batch{}
			for _, rec := range recs {
				day, err := time.Parse(dateLayout, rec.Date)
				if err != nil {
					return fmt.Errorf("record %s: %w", rec.DedupeKey, err)
				}
				body, err := json.Marshal(rec.Record)
				if err != nil {
					return err
				}
				batch.Queue(stmt, rec.TenantID, rec.UserID, rec.RecordType, rec.DedupeKey, day, body, rec.IngestedAt)
				if prev, ok := previous[rec.DedupeKey]; ok && prev != rec.Date {
					moved[prev] = struct{}{}
				}
			}
			return tx.SendBatch(ctx, batch).Close()
		})
		if err != nil {
			return nil, err
		}
	}

	out := make([]string, 0, len(moved))
	for date := range moved {
		out = append(out, date)
	}
	sort.Strings(out)
	return out, nil
}

func existingDates(ctx context.Context, tx pgx.Tx, key series, recs []domain.StoredRecord) (map[string]string, error) {
	keys := make([]string, 0, len(recs))
	for _, rec := range recs {
		keys = append(keys, rec.DedupeKey)
	}

	rows, err := tx.Query(ctx, `SELECT dedupe_key, record_date FROM health_records
        WHERE tenant_id=$1 AND user_id=$2 AND record_type=$3 AND dedupe_key = ANY($4)`,
		key.tenantID, key.userID, key.recordType, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string, len(keys))
	for rows.Next() {
		var (
			dedupeKey string
			day       time.Time
		)
		if err := rows.Scan(&dedupeKey, &day); err != nil {
			return nil, err
		}
		out[dedupeKey] = day.Format(dateLayout)
	}
	return out, rows.Err()
}

// ListRecords implements domain.Repository.
func (r *Repository) ListRecords(ctx context.Context, query domain.RecordQuery) ([]domain.StoredRecord, error) {
	from, err := time.Parse(dateLayout, query.From)
	if err != nil {
		return nil, err
	}
	to, err := time.Parse(dateLayout, query.To)
	if err != nil {
		return nil, err
	}

	out := make([]domain.StoredRecord, 0)
	err = r.inTenantTx(ctx, query.TenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT dedupe_key, record_date, record, ingested_at FROM health_records
        WHERE tenant_id=$1 AND user_id=$2 AND record_type=$3 AND record_date BETWEEN $4 AND $5
        ORDER BY record_date, id`, query.TenantID, query.UserID, query.RecordType, from, to)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				rec  = domain.StoredRecord{TenantID: query.TenantID, UserID: query.UserID, RecordType: query.RecordType}
				day  time.Time
				body []byte
			)
			if err := rows.Scan(&rec.DedupeKey, &day, &body, &rec.IngestedAt); err != nil {
				return err
			}
			if err := json.Unmarshal(body, &rec.Record); err != nil {
				return fmt.Errorf("record %s: %w", rec.DedupeKey, err)
			}
			rec.Date = day.Format(dateLayout)
			out = append(out, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func recordsForDate(ctx context.Context, tx pgx.Tx, key domain.AggregateKey, day time.Time) ([]aggregation.Record, error) {
	rows, err := tx.Query(ctx, `SELECT record FROM health_records
        WHERE tenant_id=$1 AND user_id=$2 AND record_type=$3 AND record_date=$4
        ORDER BY id`, key.TenantID, key.UserID, key.RecordType, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []aggregation.Record
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var rec aggregation.Record
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteRecords implements domain.Repository.
func (r *Repository) DeleteRecords(ctx context.Context, tenantID, userID, recordType string, dedupeKeys []string) (int, []string, error) {
	deleted := 0
	dates := make(map[string]struct{})
	err := r.inTenantTx(ctx, tenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `DELETE FROM health_records
        WHERE tenant_id=$1 AND user_id=$2 AND record_type=$3 AND dedupe_key = ANY($4)
        RETURNING record_date`, tenantID, userID, recordType, dedupeKeys)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var day time.Time
			if err := rows.Scan(&day); err != nil {
				return err
			}
			dates[day.Format(dateLayout)] = struct{}{}
			deleted++
		}
		return rows.Err()
	})
	if err != nil {
		return 0, nil, err
	}

	out := make([]string, 0, len(dates))
	for date := range dates {
		out = append(out, date)
	}
	sort.Strings(out)
	return deleted, out, nil
}

// RecomputeAggregate implements domain.Repository. A transaction-scoped
// advisory lock on the aggregate id serializes recomputes of the same day
// across processes; the lock is released on commit or rollback.
func (r *Repository) RecomputeAggregate(ctx context.Context, key domain.AggregateKey, build domain.BuildFunc) (*domain.DailyAggregate, error) {
	day, err := time.Parse(dateLayout, key.Date)
	if err != nil {
		return nil, err
	}

	var stored *domain.DailyAggregate
	err = r.inTenantTx(ctx, key.TenantID, func(tx pgx.Tx) error {
		lockID := events.AggregateID(key.TenantID, key.UserID, key.RecordType, key.Date)
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", lockID); err != nil {
			return fmt.Errorf("lock aggregate: %w", err)
		}

		records, err := recordsForDate(ctx, tx, key, day)
		if err != nil {
			return fmt.Errorf("load records: %w", err)
		}
		current, err := getAggregate(ctx, tx, key, day)
		if err != nil {
			return fmt.Errorf("load aggregate: %w", err)
		}

		next, err := build(records, current)
		if err != nil {
			return err
		}
		if next == nil {
			return r.deleteAggregate(ctx, tx, key, day)
		}
		next.AggregateKey = key
		if err := replaceAggregate(ctx, tx, *next, day); err != nil {
			return err
		}
		stored = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	if stored != nil {
		observability.RecordAggregatePersisted(stored.UpdatedAt)
	}
	return stored, nil
}

// replaceAggregate overwrites the day's aggregate and records an
// aggregate.updated outbox event in tx.
func replaceAggregate(ctx context.Context, tx pgx.Tx, aggregate domain.DailyAggregate, day time.Time) error {
	const stmt = `INSERT INTO daily_aggregates (tenant_id, user_id, record_type, agg_date, category, record_count, payload, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        ON CONFLICT (tenant_id, user_id, record_type, agg_date)
        DO UPDATE SET category = EXCLUDED.category, record_count = EXCLUDED.record_count, payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`

	if _, err := tx.Exec(ctx, stmt,
		aggregate.TenantID,
		aggregate.UserID,
		aggregate.RecordType,
		day,
		string(aggregate.Category),
		aggregate.RecordCount,
		[]byte(aggregate.Payload),
		aggregate.UpdatedAt,
	); err != nil {
		return err
	}

	return insertOutbox(ctx, tx, aggregate.AggregateKey, events.TypeAggregateUpdated, aggregate.UpdatedAt, events.AggregateUpdated{
		TenantID:    aggregate.TenantID,
		UserID:      aggregate.UserID,
		RecordType:  aggregate.RecordType,
		Date:        aggregate.Date,
		Category:    string(aggregate.Category),
		RecordCount: aggregate.RecordCount,
		Aggregate:   aggregate.Payload,
		UpdatedAt:   aggregate.UpdatedAt,
	})
}

// deleteAggregate removes the day's aggregate. An aggregate.deleted event is
// recorded only when a row was actually removed.
func (r *Repository) deleteAggregate(ctx context.Context, tx pgx.Tx, key domain.AggregateKey, day time.Time) error {
	tag, err := tx.Exec(ctx, `DELETE FROM daily_aggregates
        WHERE tenant_id=$1 AND user_id=$2 AND record_type=$3 AND agg_date=$4`,
		key.TenantID, key.UserID, key.RecordType, day)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}
	now := r.now()
	return insertOutbox(ctx, tx, key, events.TypeAggregateDeleted, now, events.AggregateDeleted{
		TenantID:   key.TenantID,
		UserID:     key.UserID,
		RecordType: key.RecordType,
		Date:       key.Date,
		DeletedAt:  now,
	})
}

func insertOutbox(ctx context.Context, tx pgx.Tx, key domain.AggregateKey, eventType string, at time.Time, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	route, ok := events.Routes[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	aggregateID := events.AggregateID(key.TenantID, key.UserID, key.RecordType, key.Date)
	dedupeKey := fmt.Sprintf("%s:%s:%d", aggregateID, eventType, at.UnixNano())

	const stmt = `INSERT INTO outbox (tenant_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		key.TenantID,
		"daily_aggregate",
		aggregateID,
		eventType,
		route.Topic,
		route.SchemaSubject,
		events.PartitionKey(key.TenantID, key.UserID),
		body,
		dedupeKey,
	)
	return err
}

const aggregateColumns = `tenant_id, user_id, record_type, agg_date, category, record_count, payload, updated_at`

func scanAggregate(row pgx.Row) (domain.DailyAggregate, error) {
	var (
		agg      domain.DailyAggregate
		day      time.Time
		category string
		payload  []byte
	)
	if err := row.Scan(&agg.TenantID, &agg.UserID, &agg.RecordType, &day, &category, &agg.RecordCount, &payload, &agg.UpdatedAt); err != nil {
		return agg, err
	}
	agg.Date = day.Format(dateLayout)
	agg.Category = aggregation.Category(category)
	agg.Payload = json.RawMessage(payload)
	return agg, nil
}

func getAggregate(ctx context.Context, tx pgx.Tx, key domain.AggregateKey, day time.Time) (*domain.DailyAggregate, error) {
	row := tx.QueryRow(ctx, `SELECT `+aggregateColumns+` FROM daily_aggregates
        WHERE tenant_id=$1 AND user_id=$2 AND record_type=$3 AND agg_date=$4`,
		key.TenantID, key.UserID, key.RecordType, day)
	agg, err := scanAggregate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &agg, nil
}

// GetAggregate returns nil when no aggregate exists for key.
func (r *Repository) GetAggregate(ctx context.Context, key domain.AggregateKey) (*domain.DailyAggregate, error) {
	day, err := time.Parse(dateLayout, key.Date)
	if err != nil {
		return nil, err
	}

	var found *domain.DailyAggregate
	err = r.inTenantTx(ctx, key.TenantID, func(tx pgx.Tx) error {
		found, err = getAggregate(ctx, tx, key, day)
		return err
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// ListAggregates returns aggregates newest first.
func (r *Repository) ListAggregates(ctx context.Context, query domain.ListQuery) ([]domain.DailyAggregate, *domain.Cursor, error) {
	args := []interface{}{query.TenantID, query.UserID, query.RecordType, query.Limit}
	stmt := `SELECT ` + aggregateColumns + ` FROM daily_aggregates
        WHERE tenant_id=$1 AND user_id=$2 AND record_type=$3`

	bounds := []struct {
		value string
		cond  string
	}{
		{query.From, "agg_date >= $%d"},
		{query.To, "agg_date <= $%d"},
	}
	if query.Cursor != nil {
		bounds = append(bounds, struct {
			value string
			cond  string
		}{query.Cursor.Date, "agg_date < $%d"})
	}
	for _, b := range bounds {
		if b.value == "" {
			continue
		}
		day, err := time.Parse(dateLayout, b.value)
		if err != nil {
			return nil, nil, err
		}
		args = append(args, day)
		stmt += " AND " + fmt.Sprintf(b.cond, len(args))
	}
	stmt += ` ORDER BY agg_date DESC LIMIT $4`

	results := make([]domain.DailyAggregate, 0, query.Limit)
	err := r.inTenantTx(ctx, query.TenantID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, stmt, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			agg, err := scanAggregate(rows)
			if err != nil {
				return err
			}
			results = append(results, agg)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if query.Limit > 0 && len(results) == query.Limit {
		last := results[len(results)-1]
		next = &domain.Cursor{Date: last.Date, RecordType: last.RecordType}
	}
	return results, next, nil
}

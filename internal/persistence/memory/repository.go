// Package memory provides an in-process domain.Repository for local
// development, the CLI and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/TeoEchavarria/health-tech-app/internal/aggregation"
	"github.com/TeoEchavarria/health-tech-app/internal/domain"
)

type seriesKey struct {
	tenantID   string
	userID     string
	recordType string
}

type storedRecord struct {
	seq    uint64
	record domain.StoredRecord
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Repository stores raw records and aggregates in maps guarded by a RWMutex.
// Recomputes additionally hold a lock per aggregate key.
type Repository struct {
	mu         sync.RWMutex
	seq        uint64
	records    map[seriesKey]map[string]storedRecord
	aggregates map[domain.AggregateKey]domain.DailyAggregate
	updates    []domain.AggregateKey

	locksMu sync.Mutex
	locks   map[domain.AggregateKey]*keyLock
}

// NewRepository constructs an empty repository.
func NewRepository() *Repository {
	return &Repository{
		records:    make(map[seriesKey]map[string]storedRecord),
		aggregates: make(map[domain.AggregateKey]domain.DailyAggregate),
		locks:      make(map[domain.AggregateKey]*keyLock),
	}
}

// UpsertRecords implements domain.Repository. A replaced record keeps its
// original position in first-ingested order.
func (r *Repository) UpsertRecords(ctx context.Context, records []domain.StoredRecord) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	moved := make(map[string]struct{})
	for _, rec := range records {
		key := seriesKey{rec.TenantID, rec.UserID, rec.RecordType}
		series, ok := r.records[key]
		if !ok {
			series = make(map[string]storedRecord)
			r.records[key] = series
		}
		if prev, exists := series[rec.DedupeKey]; exists {
			if prev.record.Date != rec.Date {
				moved[prev.record.Date] = struct{}{}
			}
			series[rec.DedupeKey] = storedRecord{seq: prev.seq, record: rec}
			continue
		}
		r.seq++
		series[rec.DedupeKey] = storedRecord{seq: r.seq, record: rec}
	}

	out := make([]string, 0, len(moved))
	for date := range moved {
		out = append(out, date)
	}
	sort.Strings(out)
	return out, nil
}

// ListRecords implements domain.Repository.
func (r *Repository) ListRecords(ctx context.Context, query domain.RecordQuery) ([]domain.StoredRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]storedRecord, 0)
	for _, stored := range r.records[seriesKey{query.TenantID, query.UserID, query.RecordType}] {
		if stored.record.Date >= query.From && stored.record.Date <= query.To {
			matches = append(matches, stored)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].record.Date != matches[j].record.Date {
			return matches[i].record.Date < matches[j].record.Date
		}
		return matches[i].seq < matches[j].seq
	})

	out := make([]domain.StoredRecord, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.record)
	}
	return out, nil
}

func (r *Repository) recordsForDate(key domain.AggregateKey) []aggregation.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]storedRecord, 0)
	for _, stored := range r.records[seriesKey{key.TenantID, key.UserID, key.RecordType}] {
		if stored.record.Date == key.Date {
			matches = append(matches, stored)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].seq < matches[j].seq })

	out := make([]aggregation.Record, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.record.Record)
	}
	return out
}

// DeleteRecords implements domain.Repository.
func (r *Repository) DeleteRecords(ctx context.Context, tenantID, userID, recordType string, dedupeKeys []string) (int, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	series := r.records[seriesKey{tenantID, userID, recordType}]
	deleted := 0
	dates := make(map[string]struct{})
	for _, k := range dedupeKeys {
		stored, ok := series[k]
		if !ok {
			continue
		}
		delete(series, k)
		dates[stored.record.Date] = struct{}{}
		deleted++
	}

	out := make([]string, 0, len(dates))
	for date := range dates {
		out = append(out, date)
	}
	sort.Strings(out)
	return deleted, out, nil
}

// RecomputeAggregate implements domain.Repository. The per-key lock is held
// across the read, build and write so concurrent recomputes of one day run
// one after another while other days proceed.
func (r *Repository) RecomputeAggregate(ctx context.Context, key domain.AggregateKey, build domain.BuildFunc) (*domain.DailyAggregate, error) {
	unlock := r.lockKey(key)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records := r.recordsForDate(key)
	current, _ := r.GetAggregate(ctx, key)

	next, err := build(records, current)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if next == nil {
		delete(r.aggregates, key)
		return nil, nil
	}
	stored := *next
	stored.AggregateKey = key
	r.aggregates[key] = stored
	r.updates = append(r.updates, key)
	return &stored, nil
}

func (r *Repository) lockKey(key domain.AggregateKey) func() {
	r.locksMu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &keyLock{}
		r.locks[key] = l
	}
	l.refs++
	r.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		r.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, key)
		}
		r.locksMu.Unlock()
	}
}

// GetAggregate returns nil when no aggregate exists.
func (r *Repository) GetAggregate(ctx context.Context, key domain.AggregateKey) (*domain.DailyAggregate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agg, ok := r.aggregates[key]
	if !ok {
		return nil, nil
	}
	return &agg, nil
}

// ListAggregates implements domain.Repository, newest date first.
func (r *Repository) ListAggregates(ctx context.Context, query domain.ListQuery) ([]domain.DailyAggregate, *domain.Cursor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]domain.DailyAggregate, 0)
	for key, agg := range r.aggregates {
		if key.TenantID != query.TenantID || key.UserID != query.UserID || key.RecordType != query.RecordType {
			continue
		}
		if query.From != "" && key.Date < query.From {
			continue
		}
		if query.To != "" && key.Date > query.To {
			continue
		}
		if query.Cursor != nil && key.Date >= query.Cursor.Date {
			continue
		}
		matches = append(matches, agg)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Date > matches[j].Date })

	if query.Limit > 0 && len(matches) > query.Limit {
		matches = matches[:query.Limit]
		last := matches[len(matches)-1]
		return matches, &domain.Cursor{Date: last.Date, RecordType: last.RecordType}, nil
	}
	return matches, nil, nil
}

// Updates returns the keys of stored aggregates in write order.
func (r *Repository) Updates() []domain.AggregateKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.AggregateKey(nil), r.updates...)
}

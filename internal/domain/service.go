// Package domain defines the sync and aggregation workflows of the health service.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/TeoEchavarria/health-tech-app/internal/aggregation"
	"github.com/TeoEchavarria/health-tech-app/internal/logger"
	"github.com/TeoEchavarria/health-tech-app/internal/observability"
)

const (
	defaultWorkers   = 4
	defaultListLimit = 31
	maxListLimit     = 366
	maxRecordSpan    = 31
	dateLayout       = "2006-01-02"
)

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithCache fronts aggregate reads with cache and writes recomputed aggregates through to it.
func WithCache(cache AggregateCache) Option {
	return func(s *Service) { s.cache = cache }
}

// WithLogger overrides the logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithWorkers bounds how many dates are recomputed concurrently per sync.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithClock overrides the time source used for UpdatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service orchestrates record sync and daily aggregate recomputation.
type Service struct {
	repo    Repository
	cache   AggregateCache
	log     *logger.Logger
	tracer  trace.Tracer
	workers int
	now     func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		log:     logger.NewNop(),
		tracer:  otel.Tracer("github.com/TeoEchavarria/health-tech-app/internal/domain"),
		workers: defaultWorkers,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncInput captures one batch of records for a user and record type.
type SyncInput struct {
	TenantID   string
	UserID     string
	RecordType string
	Records    []json.RawMessage
}

// RejectedRecord reports a record of the batch that could not be stored.
type RejectedRecord struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// SyncResult summarises a sync call.
type SyncResult struct {
	BatchID    string           `json:"batch_id"`
	RecordType string           `json:"record_type"`
	Accepted   int              `json:"accepted"`
	Rejected   []RejectedRecord `json:"rejected,omitempty"`
	Dates      []string         `json:"dates"`
}

// SyncRecords stores the batch and recomputes the daily aggregate of every
// date it touched from the full set of stored records for that date.
// Malformed records are reported in the result and do not fail the batch.
func (s *Service) SyncRecords(ctx context.Context, input SyncInput) (*SyncResult, error) {
	recordType, err := ValidateRecordType(input.RecordType)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(input.TenantID, input.UserID); err != nil {
		return nil, err
	}

	result := &SyncResult{BatchID: uuid.NewString(), RecordType: recordType, Dates: []string{}}
	ctx, span := s.tracer.Start(ctx, "domain.SyncRecords", trace.WithAttributes(
		attribute.String("batch_id", result.BatchID),
		attribute.String("record_type", recordType),
		attribute.Int("batch_size", len(input.Records)),
	))
	defer span.End()

	now := s.now()
	stored := make([]StoredRecord, 0, len(input.Records))
	touched := make(map[string]struct{})
	position := make(map[string]int)

	for i, raw := range input.Records {
		incoming, decodeErr := DecodeIncoming(raw, recordType)
		if decodeErr != nil {
			result.Rejected = append(result.Rejected, RejectedRecord{Index: i, Reason: decodeErr.Error()})
			continue
		}
		date := aggregation.DateOf(incoming.Record.Timestamp())
		touched[date] = struct{}{}
		rec := StoredRecord{
			DedupeKey:  incoming.DedupeKey,
			TenantID:   input.TenantID,
			UserID:     input.UserID,
			RecordType: recordType,
			Date:       date,
			Record:     incoming.Record,
			IngestedAt: now,
		}
		result.Accepted++
		// Later duplicates within one batch win.
		if at, dup := position[rec.DedupeKey]; dup {
			stored[at] = rec
			continue
		}
		position[rec.DedupeKey] = len(stored)
		stored = append(stored, rec)
	}
	observability.RecordIngested(recordType, result.Accepted, len(result.Rejected))
	if len(result.Rejected) > 0 {
		s.log.Warn("sync rejected records", "batch_id", result.BatchID, "record_type", recordType, "user_id", input.UserID, "rejected", len(result.Rejected))
	}
	if len(stored) == 0 {
		return result, nil
	}

	moved, err := s.repo.UpsertRecords(ctx, stored)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert records")
		return nil, fmt.Errorf("upsert records: %w", err)
	}
	for _, date := range moved {
		touched[date] = struct{}{}
	}

	result.Dates = sortedKeys(touched)
	if err := s.recompute(ctx, input.TenantID, input.UserID, recordType, result.Dates); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "recompute")
		return nil, err
	}
	return result, nil
}

// DeleteResult summarises a delete call.
type DeleteResult struct {
	Deleted int      `json:"deleted"`
	Dates   []string `json:"dates"`
}

// DeleteRecords removes raw records by dedupe key and recomputes the dates
// they belonged to.
func (s *Service) DeleteRecords(ctx context.Context, tenantID, userID, recordType string, ids []string) (*DeleteResult, error) {
	recordType, err := ValidateRecordType(recordType)
	if err != nil {
		return nil, err
	}
	if err := requireOwner(tenantID, userID); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return &DeleteResult{Dates: []string{}}, nil
	}

	deleted, dates, err := s.repo.DeleteRecords(ctx, tenantID, userID, recordType, ids)
	if err != nil {
		return nil, fmt.Errorf("delete records: %w", err)
	}
	sort.Strings(dates)
	if err := s.recompute(ctx, tenantID, userID, recordType, dates); err != nil {
		return nil, err
	}
	if dates == nil {
		dates = []string{}
	}
	return &DeleteResult{Deleted: deleted, Dates: dates}, nil
}

// Recompute rebuilds the aggregates of the given dates from stored records.
func (s *Service) Recompute(ctx context.Context, tenantID, userID, recordType string, dates []string) error {
	recordType, err := ValidateRecordType(recordType)
	if err != nil {
		return err
	}
	if err := requireOwner(tenantID, userID); err != nil {
		return err
	}
	for _, d := range dates {
		if !validDate(d) {
			return fmt.Errorf("%w: date %q", ErrInvalidInput, d)
		}
	}
	return s.recompute(ctx, tenantID, userID, recordType, dates)
}

// recompute runs one full recomputation per date; dates are independent keys
// and are processed concurrently.
func (s *Service) recompute(ctx context.Context, tenantID, userID, recordType string, dates []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, date := range dates {
		key := AggregateKey{TenantID: tenantID, UserID: userID, RecordType: recordType, Date: date}
		g.Go(func() error {
			return s.recomputeDate(gctx, key)
		})
	}
	return g.Wait()
}

func (s *Service) recomputeDate(ctx context.Context, key AggregateKey) error {
	ctx, span := s.tracer.Start(ctx, "domain.recomputeDate", trace.WithAttributes(
		attribute.String("record_type", key.RecordType),
		attribute.String("date", key.Date),
	))
	defer span.End()

	var (
		stamp    time.Time
		category aggregation.Category
		count    int
	)
	stored, err := s.repo.RecomputeAggregate(ctx, key, func(records []aggregation.Record, current *DailyAggregate) (*DailyAggregate, error) {
		stamp = s.nextStamp(current)
		count = len(records)
		if len(records) == 0 {
			return nil, nil
		}

		start := time.Now()
		result := aggregation.Aggregate(records, key.RecordType)
		observability.RecordAggregation(string(result.Category), time.Since(start))
		category = result.Category

		payload, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encode aggregate: %w", err)
		}
		return &DailyAggregate{
			AggregateKey: key,
			Category:     result.Category,
			RecordCount:  result.RecordCount(),
			Payload:      payload,
			UpdatedAt:    stamp,
		}, nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("recompute aggregate for %s: %w", key.Date, err)
	}

	s.refreshCache(ctx, key, stored, stamp)
	s.log.Debug("aggregate recomputed", "record_type", key.RecordType, "date", key.Date, "category", category, "records", count)
	return nil
}

// nextStamp returns the UpdatedAt of a new aggregate version. Stamps strictly
// increase per key at the microsecond precision Postgres keeps.
func (s *Service) nextStamp(current *DailyAggregate) time.Time {
	stamp := s.now().Truncate(time.Microsecond)
	if current != nil && !stamp.After(current.UpdatedAt) {
		stamp = current.UpdatedAt.Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return stamp
}

// refreshCache writes the freshly stored aggregate through to the cache, or
// leaves an eviction marker when the day no longer has one.
func (s *Service) refreshCache(ctx context.Context, key AggregateKey, stored *DailyAggregate, stamp time.Time) {
	if s.cache == nil {
		return
	}
	if stored != nil {
		s.cache.Set(ctx, *stored)
		return
	}
	if err := s.cache.Evict(ctx, key, stamp); err != nil {
		s.log.Warn("cache eviction failed", "record_type", key.RecordType, "date", key.Date, "error", err)
	}
}

// GetDailyAggregate fetches a single day, reading through the cache.
func (s *Service) GetDailyAggregate(ctx context.Context, key AggregateKey) (*DailyAggregate, error) {
	recordType, err := ValidateRecordType(key.RecordType)
	if err != nil {
		return nil, err
	}
	key.RecordType = recordType
	if err := requireOwner(key.TenantID, key.UserID); err != nil {
		return nil, err
	}
	if !validDate(key.Date) {
		return nil, fmt.Errorf("%w: date %q", ErrInvalidInput, key.Date)
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			return cached, nil
		}
	}

	agg, err := s.repo.GetAggregate(ctx, key)
	if err != nil {
		return nil, err
	}
	if agg == nil {
		return nil, ErrAggregateNotFound
	}
	if s.cache != nil {
		s.cache.Set(ctx, *agg)
	}
	return agg, nil
}

// ListDailyAggregates returns aggregates newest first with cursor pagination.
func (s *Service) ListDailyAggregates(ctx context.Context, query ListQuery) ([]DailyAggregate, *Cursor, error) {
	recordType, err := ValidateRecordType(query.RecordType)
	if err != nil {
		return nil, nil, err
	}
	query.RecordType = recordType
	if err := requireOwner(query.TenantID, query.UserID); err != nil {
		return nil, nil, err
	}
	for _, bound := range []string{query.From, query.To} {
		if bound != "" && !validDate(bound) {
			return nil, nil, fmt.Errorf("%w: date %q", ErrInvalidInput, bound)
		}
	}
	if query.From != "" && query.To != "" && query.From > query.To {
		return nil, nil, fmt.Errorf("%w: from is after to", ErrInvalidInput)
	}
	switch {
	case query.Limit <= 0:
		query.Limit = defaultListLimit
	case query.Limit > maxListLimit:
		query.Limit = maxListLimit
	}
	return s.repo.ListAggregates(ctx, query)
}

// ListRecords returns the stored raw records of one user and record type
// dated between query.From and query.To inclusive. An empty From reads a
// single day. The range may cover at most 31 days.
func (s *Service) ListRecords(ctx context.Context, query RecordQuery) ([]StoredRecord, error) {
	recordType, err := ValidateRecordType(query.RecordType)
	if err != nil {
		return nil, err
	}
	query.RecordType = recordType
	if err := requireOwner(query.TenantID, query.UserID); err != nil {
		return nil, err
	}
	if query.From == "" {
		query.From = query.To
	}
	if query.To == "" {
		query.To = query.From
	}
	from, err := time.Parse(dateLayout, query.From)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q", ErrInvalidInput, query.From)
	}
	to, err := time.Parse(dateLayout, query.To)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q", ErrInvalidInput, query.To)
	}
	if from.After(to) {
		return nil, fmt.Errorf("%w: from is after to", ErrInvalidInput)
	}
	if to.Sub(from) >= maxRecordSpan*24*time.Hour {
		return nil, fmt.Errorf("%w: range exceeds %d days", ErrInvalidInput, maxRecordSpan)
	}

	ctx, span := s.tracer.Start(ctx, "domain.ListRecords", trace.WithAttributes(
		attribute.String("record_type", recordType),
		attribute.String("from", query.From),
		attribute.String("to", query.To),
	))
	defer span.End()

	records, err := s.repo.ListRecords(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

func requireOwner(tenantID, userID string) error {
	var errs []error
	if strings.TrimSpace(tenantID) == "" {
		errs = append(errs, errors.New("tenant id is required"))
	}
	if strings.TrimSpace(userID) == "" {
		errs = append(errs, errors.New("user id is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidInput, errors.Join(errs...))
	}
	return nil
}

func validDate(date string) bool {
	_, err := time.Parse(dateLayout, date)
	return err == nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

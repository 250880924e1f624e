// Package api exposes HTTP handlers for the health service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/TeoEchavarria/health-tech-app/internal/aggregation"
	"github.com/TeoEchavarria/health-tech-app/internal/auth"
	"github.com/TeoEchavarria/health-tech-app/internal/domain"
	"github.com/TeoEchavarria/health-tech-app/internal/logger"
	"github.com/TeoEchavarria/health-tech-app/internal/persistence"
)

const maxBodyBytes = 8 << 20

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	log     *logger.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{service: service, log: log.With("component", "api")}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/records/{type}", h.syncRecords)
	mux.HandleFunc("GET /v1/records/{type}", h.listRecords)
	mux.HandleFunc("DELETE /v1/records/{type}", h.deleteRecords)
	mux.HandleFunc("GET /v1/aggregates/{type}", h.aggregates)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// SyncRequest is the payload for POST /v1/records/{type}. Data is a single
// record object or an array of them.
type SyncRequest struct {
	UserID string          `json:"user_id"`
	Data   json.RawMessage `json:"data"`
}

// DeleteRequest is the payload for DELETE /v1/records/{type}.
type DeleteRequest struct {
	UserID string `json:"user_id"`
	UUID   idList `json:"uuid"`
}

// idList accepts either a single id or an array of ids.
type idList []string

func (l *idList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = idList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return errors.New("uuid must be a string or an array of strings")
	}
	*l = many
	return nil
}

// AggregateView is the response shape of one daily aggregate.
type AggregateView struct {
	UserID      string          `json:"user_id"`
	RecordType  string          `json:"record_type"`
	Date        string          `json:"date"`
	Category    string          `json:"category"`
	RecordCount int             `json:"record_count"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Aggregate   json.RawMessage `json:"aggregate"`
}

// RecordView is the response shape of one stored raw record.
type RecordView struct {
	ID         string             `json:"id"`
	Date       string             `json:"date"`
	IngestedAt time.Time          `json:"ingested_at"`
	Record     aggregation.Record `json:"record"`
}

// ListRecordsResponse packages stored records, oldest date first.
type ListRecordsResponse struct {
	Items []RecordView `json:"items"`
}

// ListAggregatesResponse packages list results.
type ListAggregatesResponse struct {
	Items      []AggregateView `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func (h *Handler) syncRecords(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeRecordsWrite)
	if !ok {
		return
	}

	var req SyncRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	records, err := domain.SplitRecords(req.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "data must be a record or an array of records")
		return
	}

	result, err := h.service.SyncRecords(r.Context(), domain.SyncInput{
		TenantID:   claims.TenantID,
		UserID:     ownerOf(req.UserID, claims),
		RecordType: r.PathValue("type"),
		Records:    records,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// listRecords serves GET /v1/records/{type}?date= or ?from=&to=.
func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeRecordsRead)
	if !ok {
		return
	}

	query := r.URL.Query()
	from, to := query.Get("from"), query.Get("to")
	if date := query.Get("date"); date != "" {
		if from != "" || to != "" {
			writeError(w, http.StatusBadRequest, "validation_failed", "date cannot be combined with from or to")
			return
		}
		from, to = date, date
	}

	records, err := h.service.ListRecords(r.Context(), domain.RecordQuery{
		TenantID:   claims.TenantID,
		UserID:     ownerOf(query.Get("user_id"), claims),
		RecordType: r.PathValue("type"),
		From:       from,
		To:         to,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	items := make([]RecordView, 0, len(records))
	for _, rec := range records {
		items = append(items, RecordView{ID: rec.DedupeKey, Date: rec.Date, IngestedAt: rec.IngestedAt, Record: rec.Record})
	}
	writeJSON(w, http.StatusOK, ListRecordsResponse{Items: items})
}

func (h *Handler) deleteRecords(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeRecordsWrite)
	if !ok {
		return
	}

	var req DeleteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	result, err := h.service.DeleteRecords(r.Context(), claims.TenantID, ownerOf(req.UserID, claims), r.PathValue("type"), req.UUID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) aggregates(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeAggregatesRead)
	if !ok {
		return
	}

	query := r.URL.Query()
	userID := ownerOf(query.Get("user_id"), claims)
	recordType := r.PathValue("type")

	if date := query.Get("date"); date != "" {
		agg, err := h.service.GetDailyAggregate(r.Context(), domain.AggregateKey{
			TenantID:   claims.TenantID,
			UserID:     userID,
			RecordType: recordType,
			Date:       date,
		})
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAggregateView(*agg))
		return
	}

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	cursor, err := persistence.DecodeCursor(query.Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	aggregates, next, err := h.service.ListDailyAggregates(r.Context(), domain.ListQuery{
		TenantID:   claims.TenantID,
		UserID:     userID,
		RecordType: recordType,
		From:       query.Get("from"),
		To:         query.Get("to"),
		Cursor:     cursor,
		Limit:      limit,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	items := make([]AggregateView, 0, len(aggregates))
	for _, agg := range aggregates {
		items = append(items, toAggregateView(agg))
	}
	writeJSON(w, http.StatusOK, ListAggregatesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAggregateNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrEmptyRecordType),
		errors.Is(err, domain.ErrInvalidRecordType),
		errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	default:
		h.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

// requireScope writes 401/403 and reports false when the caller may not proceed.
func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

// ownerOf defaults the target user to the token subject.
func ownerOf(userID string, claims *auth.Claims) string {
	if strings.TrimSpace(userID) == "" {
		return claims.Subject
	}
	return userID
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func toAggregateView(agg domain.DailyAggregate) AggregateView {
	return AggregateView{
		UserID:      agg.UserID,
		RecordType:  agg.RecordType,
		Date:        agg.Date,
		Category:    string(agg.Category),
		RecordCount: agg.RecordCount,
		UpdatedAt:   agg.UpdatedAt,
		Aggregate:   agg.Payload,
	}
}

package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/TeoEchavarria/health-tech-app/internal/aggregation"
)

// envelopeKeys are Health Connect keys that describe the record rather than
// its measurement and are therefore kept out of data.
var envelopeKeys = map[string]struct{}{
	"metadata":  {},
	"time":      {},
	"startTime": {},
	"endTime":   {},
}

// IncomingRecord is a decoded record ready to be stored.
type IncomingRecord struct {
	DedupeKey string
	Record    aggregation.Record
}

// DecodeIncoming converts one raw payload into an aggregation record. Two
// shapes are accepted: the Health Connect form ({metadata, time | startTime +
// endTime, ...fields}) and the already normalised form ({data, start | time,
// end, app}).
func DecodeIncoming(raw json.RawMessage, recordType string) (IncomingRecord, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return IncomingRecord{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if doc == nil {
		return IncomingRecord{}, fmt.Errorf("%w: record must be an object", ErrInvalidRecord)
	}

	if _, hasMeta := doc["metadata"]; !hasMeta {
		if _, normalised := doc["data"].(map[string]any); normalised {
			return decodeNormalised(raw, doc, recordType)
		}
	}
	return decodeHealthConnect(doc, recordType)
}

func decodeHealthConnect(doc map[string]any, recordType string) (IncomingRecord, error) {
	instant := stringField(doc, "time")
	start := stringField(doc, "startTime")
	end := stringField(doc, "endTime")

	if (start == "") != (end == "") {
		return IncomingRecord{}, ErrUnpairedInterval
	}
	if instant == "" && start == "" {
		return IncomingRecord{}, ErrMissingTimestamp
	}

	data := make(map[string]any, len(doc))
	for k, v := range doc {
		if _, skip := envelopeKeys[k]; !skip {
			data[k] = v
		}
	}

	rec := aggregation.Record{Data: data}
	if instant != "" {
		rec.Time = instant
	} else {
		rec.Start = start
		rec.End = end
	}

	meta, _ := doc["metadata"].(map[string]any)
	rec.App = originOf(meta["dataOrigin"])

	return IncomingRecord{DedupeKey: dedupeKey(doc, meta, start, end, recordType), Record: rec}, nil
}

func decodeNormalised(raw json.RawMessage, doc map[string]any, recordType string) (IncomingRecord, error) {
	var rec aggregation.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return IncomingRecord{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if rec.Timestamp() == "" {
		return IncomingRecord{}, ErrMissingTimestamp
	}
	return IncomingRecord{DedupeKey: dedupeKey(doc, nil, rec.Start, rec.End, recordType), Record: rec}, nil
}

func originOf(v any) aggregation.Origin {
	switch o := v.(type) {
	case string:
		return aggregation.BareOrigin(o)
	case map[string]any:
		name, _ := o["packageName"].(string)
		return aggregation.PackageOrigin(name)
	}
	return aggregation.Origin{}
}

// dedupeKey prefers the source-assigned metadata.id (or top-level id). Without
// one, a hash of the interval, the record type and the canonical body is used.
func dedupeKey(doc, meta map[string]any, start, end, recordType string) string {
	if id := stringField(meta, "id"); id != "" {
		return id
	}
	if id := stringField(doc, "id"); id != "" {
		return id
	}
	body, _ := json.Marshal(doc)
	raw := strings.Join([]string{start, end, recordType, string(body)}, "|")
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}

// SplitRecords accepts either a single record object or an array of records.
func SplitRecords(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case trimmed == "" || trimmed == "null":
		return nil, fmt.Errorf("%w: no records supplied", ErrInvalidInput)
	case strings.HasPrefix(trimmed, "["):
		var records []json.RawMessage
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return records, nil
	case strings.HasPrefix(trimmed, "{"):
		return []json.RawMessage{json.RawMessage(trimmed)}, nil
	}
	return nil, fmt.Errorf("%w: records must be an object or an array", ErrInvalidInput)
}

package aggregation

import "encoding/json"

// Result is the daily aggregate for one record type and calendar date. Only
// the fields belonging to Category are populated.
type Result struct {
	Category    Category
	DataOrigins []string

	Cumulative *CumulativeSummary
	Instant    *InstantSummary

	Daily  *DailyRollup
	Hourly []HourlySummary

	Measurements []Measurement

	Sessions      []Session
	SessionTotals *SessionTotals

	Entries []Entry
}

// CumulativeSummary is the aggregate of the cumulative-sum and cumulative-max
// categories.
type CumulativeSummary struct {
	Total       float64 `json:"total"`
	RecordCount int     `json:"recordCount"`
}

// InstantSummary is the aggregate of instantaneous measurements. Value is nil
// when no record carried both a value and a timestamp.
type InstantSummary struct {
	Value        *float64
	Timestamp    string
	DailyAverage float64
	RecordCount  int
}

// MarshalJSON emits {"value": null} for an empty day.
func (s InstantSummary) MarshalJSON() ([]byte, error) {
	if s.Value == nil {
		return []byte(`{"value":null}`), nil
	}
	return json.Marshal(struct {
		Value        float64 `json:"value"`
		Timestamp    string  `json:"timestamp"`
		DailyAverage float64 `json:"dailyAverage"`
		RecordCount  int     `json:"recordCount"`
	}{*s.Value, s.Timestamp, s.DailyAverage, s.RecordCount})
}

// HourlySummary describes one hour of the day that had surviving samples.
type HourlySummary struct {
	Hour    int     `json:"hour"`
	Avg     float64 `json:"avg"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
}

// DailyRollup summarises every cleaned sample of the day.
type DailyRollup struct {
	DailyAvg     float64 `json:"dailyAvg"`
	DailyMin     float64 `json:"dailyMin"`
	DailyMax     float64 `json:"dailyMax"`
	TotalSamples int     `json:"totalSamples"`
}

// Measurement keeps one medical reading at full fidelity.
type Measurement struct {
	Timestamp string
	Data      map[string]any
	Pressure  *BloodPressure
}

// BloodPressure holds the scalar readings lifted out of a bloodPressure record.
type BloodPressure struct {
	Systolic  *float64
	Diastolic *float64
}

// MarshalJSON flattens blood pressure scalars next to data.
func (m Measurement) MarshalJSON() ([]byte, error) {
	if m.Pressure == nil {
		return json.Marshal(struct {
			Timestamp string         `json:"timestamp"`
			Data      map[string]any `json:"data"`
		}{m.Timestamp, nonNil(m.Data)})
	}
	return json.Marshal(struct {
		Timestamp string         `json:"timestamp"`
		Data      map[string]any `json:"data"`
		Systolic  *float64       `json:"systolic"`
		Diastolic *float64       `json:"diastolic"`
	}{m.Timestamp, nonNil(m.Data), m.Pressure.Systolic, m.Pressure.Diastolic})
}

// Session is one sleep or exercise interval.
type Session struct {
	Start           string         `json:"start"`
	End             string         `json:"end"`
	Data            map[string]any `json:"data"`
	DurationMinutes *float64       `json:"durationMinutes,omitempty"`
}

// SessionTotals is the daily aggregate of the sessions category.
type SessionTotals struct {
	TotalSessions        int     `json:"totalSessions"`
	TotalDurationMinutes float64 `json:"totalDurationMinutes"`
}

// Entry is one reproductive-health log entry.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Empty reports whether the result was produced from no records at all.
func (r Result) Empty() bool {
	return r.Category == ""
}

// RecordCount is the provenance counter stored next to the aggregate.
func (r Result) RecordCount() int {
	switch r.Category {
	case CategoryCumulativeSum, CategoryCumulativeMax:
		if r.Cumulative != nil {
			return r.Cumulative.RecordCount
		}
	case CategoryInstantaneous:
		if r.Instant != nil {
			return r.Instant.RecordCount
		}
	case CategoryHourly:
		if r.Daily != nil {
			return r.Daily.TotalSamples
		}
	case CategoryMedical:
		return len(r.Measurements)
	case CategorySessions:
		return len(r.Sessions)
	case CategoryReproductive:
		return len(r.Entries)
	}
	return 0
}

// MarshalJSON renders the category-specific document shape persisted by the
// sync layer.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Empty() {
		return []byte("{}"), nil
	}
	origins := r.DataOrigins
	if origins == nil {
		origins = []string{}
	}

	doc := map[string]any{"dataOrigins": origins}
	switch r.Category {
	case CategoryCumulativeSum, CategoryCumulativeMax:
		doc["aggregate"] = r.Cumulative
	case CategoryInstantaneous:
		doc["aggregate"] = r.Instant
	case CategoryHourly:
		if r.Daily != nil {
			doc["aggregate"] = r.Daily
		} else {
			doc["aggregate"] = struct{}{}
		}
		doc["hourly"] = nonNilSlice(r.Hourly)
	case CategoryMedical:
		doc["measurements"] = nonNilSlice(r.Measurements)
	case CategorySessions:
		doc["sessions"] = nonNilSlice(r.Sessions)
		doc["aggregate"] = r.SessionTotals
	case CategoryReproductive:
		doc["entries"] = nonNilSlice(r.Entries)
	}
	return json.Marshal(doc)
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

package aggregation

import "sort"

// hoursPerDay bounds the hourly bucket scan.
const hoursPerDay = 24

type aggregatorFunc func(records []Record, recordType string) Result

var aggregators = map[Category]aggregatorFunc{
	CategoryCumulativeSum: aggregateCumulativeSum,
	CategoryCumulativeMax: aggregateCumulativeMax,
	CategoryInstantaneous: aggregateInstantaneous,
	CategoryHourly:        aggregateHourly,
	CategoryMedical:       aggregateMedical,
	CategorySessions:      aggregateSessions,
	CategoryReproductive:  aggregateReproductive,
}

// Aggregate reduces the records of a single calendar date into the daily
// aggregate of recordType's category. An empty slice yields an empty Result.
func Aggregate(records []Record, recordType string) Result {
	if len(records) == 0 {
		return Result{}
	}
	return aggregators[Classify(recordType)](records, recordType)
}

// zeroIsPlaceholder lists cumulative types where 0 is a placeholder rather than
// a real measurement.
var zeroIsPlaceholder = map[string]bool{
	"wheelchairPushes": true,
}

func aggregateCumulativeSum(records []Record, recordType string) Result {
	values, origins := extractAll(records)
	cleaned := Clean(values, zeroIsPlaceholder[recordType])
	return Result{
		Category:    CategoryCumulativeSum,
		DataOrigins: origins.list(),
		Cumulative:  &CumulativeSummary{Total: sum(cleaned), RecordCount: len(cleaned)},
	}
}

// aggregateCumulativeMax takes the largest reading: step sources report running
// daily totals, so summing would double count overlapping sources.
func aggregateCumulativeMax(records []Record, _ string) Result {
	values, origins := extractAll(records)
	cleaned := Clean(values, true)
	_, hi := minMax(cleaned)
	return Result{
		Category:    CategoryCumulativeMax,
		DataOrigins: origins.list(),
		Cumulative:  &CumulativeSummary{Total: hi, RecordCount: len(cleaned)},
	}
}

func extractAll(records []Record) ([]float64, originSet) {
	values := make([]float64, 0, len(records))
	origins := originSet{}
	for _, r := range records {
		if v, ok := ExtractValue(r); ok {
			values = append(values, v)
		}
		origins.add(r.App)
	}
	return values, origins
}

func aggregateInstantaneous(records []Record, _ string) Result {
	type measurement struct {
		value     float64
		timestamp string
	}
	var measurements []measurement
	origins := originSet{}
	for _, r := range records {
		v, ok := ExtractValue(r)
		ts := r.Timestamp()
		if ok && ts != "" {
			measurements = append(measurements, measurement{value: v, timestamp: ts})
		}
		origins.add(r.App)
	}

	res := Result{Category: CategoryInstantaneous, DataOrigins: origins.list()}
	if len(measurements) == 0 {
		res.Instant = &InstantSummary{}
		return res
	}

	// Latest by timestamp string; the first of equal timestamps wins.
	latest := measurements[0]
	values := make([]float64, 0, len(measurements))
	for _, m := range measurements {
		if m.timestamp > latest.timestamp {
			latest = m
		}
		values = append(values, m.value)
	}

	avg := latest.value
	if cleaned := Clean(values, true); len(cleaned) > 0 {
		avg = mean(cleaned)
	}
	value := latest.value
	res.Instant = &InstantSummary{
		Value:        &value,
		Timestamp:    latest.timestamp,
		DailyAverage: avg,
		RecordCount:  len(measurements),
	}
	return res
}

func aggregateHourly(records []Record, _ string) Result {
	var perHour [hoursPerDay][]float64
	var all []float64
	origins := originSet{}

	for _, r := range records {
		ts := r.Timestamp()
		if ts == "" {
			continue
		}
		hour := HourOf(ts)

		if samples, isList := r.Data["samples"].([]any); isList {
			for _, sample := range samples {
				if v, ok := sampleValue(sample); ok {
					perHour[hour] = append(perHour[hour], v)
					all = append(all, v)
				}
			}
		} else if v, ok := ExtractValue(r); ok {
			perHour[hour] = append(perHour[hour], v)
			all = append(all, v)
		}
		origins.add(r.App)
	}

	res := Result{Category: CategoryHourly, DataOrigins: origins.list(), Hourly: []HourlySummary{}}
	for hour := 0; hour < hoursPerDay; hour++ {
		if len(perHour[hour]) == 0 {
			continue
		}
		cleaned := Clean(perHour[hour], true)
		if len(cleaned) == 0 {
			continue
		}
		lo, hi := minMax(cleaned)
		res.Hourly = append(res.Hourly, HourlySummary{
			Hour:    hour,
			Avg:     mean(cleaned),
			Min:     lo,
			Max:     hi,
			Samples: len(cleaned),
		})
	}

	if cleaned := Clean(all, true); len(cleaned) > 0 {
		lo, hi := minMax(cleaned)
		res.Daily = &DailyRollup{
			DailyAvg:     mean(cleaned),
			DailyMin:     lo,
			DailyMax:     hi,
			TotalSamples: len(cleaned),
		}
	}
	return res
}

func aggregateMedical(records []Record, recordType string) Result {
	res := Result{Category: CategoryMedical, Measurements: []Measurement{}}
	origins := originSet{}
	for _, r := range records {
		if ts := r.Timestamp(); ts != "" {
			m := Measurement{Timestamp: ts, Data: r.Data}
			if recordType == "bloodPressure" {
				m.Pressure = &BloodPressure{
					Systolic:  pressureReading(r.Data["systolic"]),
					Diastolic: pressureReading(r.Data["diastolic"]),
				}
			}
			res.Measurements = append(res.Measurements, m)
		}
		origins.add(r.App)
	}
	res.DataOrigins = origins.list()
	return res
}

// pressureReading accepts a bare number or {"millimetersOfMercury": n}.
func pressureReading(raw any) *float64 {
	if wrapped, ok := raw.(map[string]any); ok {
		raw = wrapped["millimetersOfMercury"]
	}
	v, ok := toFloat(raw)
	if !ok {
		return nil
	}
	return &v
}

func aggregateSessions(records []Record, _ string) Result {
	res := Result{Category: CategorySessions, Sessions: []Session{}}
	origins := originSet{}
	total := 0.0
	for _, r := range records {
		if r.Start != "" && r.End != "" {
			s := Session{Start: r.Start, End: r.End, Data: nonNil(r.Data)}
			if minutes, ok := minutesBetween(r.Start, r.End); ok {
				s.DurationMinutes = &minutes
				total += minutes
			}
			res.Sessions = append(res.Sessions, s)
		}
		origins.add(r.App)
	}
	res.DataOrigins = origins.list()
	res.SessionTotals = &SessionTotals{
		TotalSessions:        len(res.Sessions),
		TotalDurationMinutes: total,
	}
	return res
}

func aggregateReproductive(records []Record, _ string) Result {
	res := Result{Category: CategoryReproductive, Entries: []Entry{}}
	origins := originSet{}
	for _, r := range records {
		if ts := r.Timestamp(); ts != "" {
			res.Entries = append(res.Entries, Entry{Timestamp: ts, Data: nonNil(r.Data)})
		}
		origins.add(r.App)
	}
	res.DataOrigins = origins.list()
	return res
}

// DateBucket holds the records of one calendar date in input order.
type DateBucket struct {
	Date    string
	Records []Record
}

// GroupByDate partitions records by the calendar date of start (or time).
// Records with neither are dropped. Buckets are sorted by date.
func GroupByDate(records []Record) []DateBucket {
	index := make(map[string]int)
	var buckets []DateBucket
	for _, r := range records {
		ts := r.Timestamp()
		if ts == "" {
			continue
		}
		date := DateOf(ts)
		i, ok := index[date]
		if !ok {
			i = len(buckets)
			index[date] = i
			buckets = append(buckets, DateBucket{Date: date})
		}
		buckets[i].Records = append(buckets[i].Records, r)
	}
	sort.Slice(buckets, func(a, b int) bool { return buckets[a].Date < buckets[b].Date })
	return buckets
}

// DailyResult pairs a calendar date with its aggregate.
type DailyResult struct {
	Date   string
	Result Result
}

// AggregateByDate groups records by date and aggregates every bucket.
func AggregateByDate(records []Record, recordType string) []DailyResult {
	buckets := GroupByDate(records)
	out := make([]DailyResult, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, DailyResult{Date: b.Date, Result: Aggregate(b.Records, recordType)})
	}
	return out
}

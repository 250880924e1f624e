package aggregation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCumulativeSumKeepsZeros(t *testing.T) {
	records := decodeRecords(t, `[
		{"time": "2025-01-01T08:00:00Z", "data": {"value": 0}, "app": {"packageName": "com.a"}},
		{"time": "2025-01-01T09:00:00Z", "data": {"value": 5}, "app": "com.b"}
	]`)

	res := Aggregate(records, "distance")
	require.Equal(t, CategoryCumulativeSum, res.Category)
	require.Equal(t, 5.0, res.Cumulative.Total)
	require.Equal(t, 2, res.Cumulative.RecordCount)
	require.ElementsMatch(t, []string{"com.a", "com.b"}, res.DataOrigins)
}

func TestCumulativeSumDropsZerosForWheelchairPushes(t *testing.T) {
	records := decodeRecords(t, `[
		{"time": "2025-01-01T08:00:00Z", "data": {"count": 0}},
		{"time": "2025-01-01T09:00:00Z", "data": {"count": 40}}
	]`)

	res := Aggregate(records, "wheelchairPushes")
	require.Equal(t, 40.0, res.Cumulative.Total)
	require.Equal(t, 1, res.Cumulative.RecordCount)
}

func TestCumulativeSumEmptyAfterCleaning(t *testing.T) {
	records := decodeRecords(t, `[{"time": "2025-01-01T08:00:00Z", "data": {"title": "x"}}]`)

	res := Aggregate(records, "hydration")
	require.Equal(t, 0.0, res.Cumulative.Total)
	require.Equal(t, 0, res.Cumulative.RecordCount)
}

func TestCumulativeMaxTakesLargestReading(t *testing.T) {
	records := decodeRecords(t, `[
		{"start": "2025-01-01T08:00:00Z", "data": {"value": 100}},
		{"start": "2025-01-01T09:00:00Z", "data": {"value": 150}},
		{"start": "2025-01-01T10:00:00Z", "data": {"value": 80}}
	]`)

	res := Aggregate(records, "steps")
	require.Equal(t, CategoryCumulativeMax, res.Category)
	require.Equal(t, 150.0, res.Cumulative.Total)
	require.Equal(t, 3, res.Cumulative.RecordCount)
}

func TestCumulativeMaxAllZeros(t *testing.T) {
	records := decodeRecords(t, `[{"start": "2025-01-01T08:00:00Z", "data": {"count": 0}}]`)

	res := Aggregate(records, "steps")
	require.Equal(t, 0.0, res.Cumulative.Total)
	require.Equal(t, 0, res.Cumulative.RecordCount)
}

func TestInstantaneousLatestAndAverage(t *testing.T) {
	records := decodeRecords(t, `[
		{"time": "2025-01-01T07:00:00Z", "data": {"weight": {"kilograms": 70}}},
		{"time": "2025-01-01T21:00:00Z", "data": {"weight": {"kilograms": 72}}},
		{"time": "2025-01-01T12:00:00Z", "data": {"weight": {"kilograms": 71}}}
	]`)

	res := Aggregate(records, "weight")
	require.Equal(t, CategoryInstantaneous, res.Category)
	require.NotNil(t, res.Instant.Value)
	require.Equal(t, 72.0, *res.Instant.Value)
	require.Equal(t, "2025-01-01T21:00:00Z", res.Instant.Timestamp)
	require.InDelta(t, 71.0, res.Instant.DailyAverage, 1e-9)
	require.Equal(t, 3, res.Instant.RecordCount)
}

func TestInstantaneousAverageFallsBackToLatest(t *testing.T) {
	records := decodeRecords(t, `[
		{"time": "2025-01-01T07:00:00Z", "data": {"value": 0}},
		{"time": "2025-01-01T08:00:00Z", "data": {"value": 0}}
	]`)

	res := Aggregate(records, "bodyFat")
	require.Equal(t, 0.0, *res.Instant.Value)
	require.Equal(t, 0.0, res.Instant.DailyAverage)
	require.Equal(t, 2, res.Instant.RecordCount)
}

func TestInstantaneousWithoutMeasurements(t *testing.T) {
	records := decodeRecords(t, `[{"time": "2025-01-01T07:00:00Z", "data": {}, "app": "com.scale"}]`)

	res := Aggregate(records, "height")
	out, err := json.Marshal(res)
	require.NoError(t, err)
	require.JSONEq(t, `{"aggregate": {"value": null}, "dataOrigins": ["com.scale"]}`, string(out))
}

func TestUnknownTypeFallsBackToInstantaneous(t *testing.T) {
	records := decodeRecords(t, `[{"time": "2025-01-01T07:00:00Z", "data": {"value": 3}}]`)

	res := Aggregate(records, "unknownMetric")
	require.Equal(t, CategoryInstantaneous, res.Category)
	require.Equal(t, 3.0, *res.Instant.Value)
}

func TestHourlyBuckets(t *testing.T) {
	records := decodeRecords(t, `[
		{"start": "2025-01-01T03:10:00Z", "data": {"samples": [{"beatsPerMinute": 60}]}, "app": {"packageName": "com.watch"}},
		{"start": "2025-01-01T03:40:00Z", "data": {"samples": [{"beatsPerMinute": 70}]}},
		{"start": "2025-01-01T09:05:00Z", "data": {"beatsPerMinute": 90}}
	]`)

	res := Aggregate(records, "heartRate")
	require.Equal(t, CategoryHourly, res.Category)
	require.Equal(t, []HourlySummary{
		{Hour: 3, Avg: 65, Min: 60, Max: 70, Samples: 2},
		{Hour: 9, Avg: 90, Min: 90, Max: 90, Samples: 1},
	}, res.Hourly)
	require.Equal(t, &DailyRollup{DailyAvg: 220.0 / 3, DailyMin: 60, DailyMax: 90, TotalSamples: 3}, res.Daily)
	require.Equal(t, []string{"com.watch"}, res.DataOrigins)
}

func TestHourlySamplePriorityAndNoise(t *testing.T) {
	records := decodeRecords(t, `[
		{"start": "2025-01-01T05:00:00Z", "data": {"samples": [
			{"beatsPerMinute": 61, "value": 999},
			{"value": 62},
			{"percentage": 0},
			{"beatsPerMinute": null, "value": 500},
			{"beatsPerMinute": 63},
			{"beatsPerMinute": 64},
			{"beatsPerMinute": 240}
		]}}
	]`)

	res := Aggregate(records, "heartRate")
	require.Len(t, res.Hourly, 1)
	// 0 is dropped as a placeholder, the null sample is skipped and 240 is an
	// IQR outlier of [61 62 63 64 240].
	require.Equal(t, 4, res.Hourly[0].Samples)
	require.Equal(t, 61.0, res.Hourly[0].Min)
	require.Equal(t, 64.0, res.Hourly[0].Max)
	require.Equal(t, 4, res.Daily.TotalSamples)
}

func TestHourlyNothingSurvives(t *testing.T) {
	records := decodeRecords(t, `[
		{"start": "2025-01-01T05:00:00Z", "data": {"samples": [{"beatsPerMinute": 0}]}},
		{"data": {"beatsPerMinute": 80}}
	]`)

	res := Aggregate(records, "heartRate")
	out, err := json.Marshal(res)
	require.NoError(t, err)
	require.JSONEq(t, `{"aggregate": {}, "hourly": [], "dataOrigins": []}`, string(out))
}

func TestMedicalKeepsEveryReading(t *testing.T) {
	records := decodeRecords(t, `[
		{"time": "2025-01-01T07:00:00Z", "data": {"systolic": {"millimetersOfMercury": 120}, "diastolic": 80}},
		{"time": "2025-01-01T19:00:00Z", "data": {"systolic": 130}},
		{"data": {"systolic": 200}}
	]`)

	res := Aggregate(records, "bloodPressure")
	require.Len(t, res.Measurements, 2)

	out, err := json.Marshal(res)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"measurements": [
			{"timestamp": "2025-01-01T07:00:00Z", "data": {"systolic": {"millimetersOfMercury": 120}, "diastolic": 80}, "systolic": 120, "diastolic": 80},
			{"timestamp": "2025-01-01T19:00:00Z", "data": {"systolic": 130}, "systolic": 130, "diastolic": null}
		],
		"dataOrigins": []
	}`, string(out))
}

func TestMedicalWithoutPressureFields(t *testing.T) {
	records := decodeRecords(t, `[{"time": "2025-01-01T07:00:00Z", "data": {"level": {"millimolesPerLiter": 5.4}}}]`)

	out, err := json.Marshal(Aggregate(records, "bloodGlucose"))
	require.NoError(t, err)
	require.JSONEq(t, `{
		"measurements": [{"timestamp": "2025-01-01T07:00:00Z", "data": {"level": {"millimolesPerLiter": 5.4}}}],
		"dataOrigins": []
	}`, string(out))
}

func TestSessionsDuration(t *testing.T) {
	records := decodeRecords(t, `[
		{"start": "2025-01-01T00:00:00Z", "end": "2025-01-01T00:30:00Z", "data": {"title": "nap"}},
		{"start": "2025-01-01T13:00:00Z", "end": "2025-01-01T13:30:00Z", "data": {}},
		{"start": "2025-01-01T15:00:00Z", "end": "later", "data": {}},
		{"time": "2025-01-01T16:00:00Z", "data": {}}
	]`)

	res := Aggregate(records, "sleepSession")
	require.Len(t, res.Sessions, 3)
	require.NotNil(t, res.Sessions[0].DurationMinutes)
	require.Equal(t, 30.0, *res.Sessions[0].DurationMinutes)
	require.Nil(t, res.Sessions[2].DurationMinutes)
	require.Equal(t, &SessionTotals{TotalSessions: 3, TotalDurationMinutes: 60}, res.SessionTotals)

	out, err := json.Marshal(res.Sessions[2])
	require.NoError(t, err)
	require.JSONEq(t, `{"start": "2025-01-01T15:00:00Z", "end": "later", "data": {}}`, string(out))
}

func TestSessionsWithMixedZoneAwarenessHaveNoDuration(t *testing.T) {
	records := decodeRecords(t, `[
		{"start": "2025-01-01T20:00:00", "end": "2025-01-01T21:00:00Z", "data": {}},
		{"start": "2025-01-01T22:00:00", "end": "2025-01-01T22:45:00", "data": {}}
	]`)

	res := Aggregate(records, "exerciseSession")
	require.Len(t, res.Sessions, 2)
	require.Nil(t, res.Sessions[0].DurationMinutes)
	require.NotNil(t, res.Sessions[1].DurationMinutes)
	require.Equal(t, 45.0, *res.Sessions[1].DurationMinutes)
	require.Equal(t, 45.0, res.SessionTotals.TotalDurationMinutes)
}

func TestReproductiveEntries(t *testing.T) {
	records := decodeRecords(t, `[
		{"time": "2025-01-01T07:00:00Z", "data": {"flow": 2}, "app": "com.cycle"},
		{"data": {"flow": 3}, "app": "com.other"}
	]`)

	res := Aggregate(records, "menstruationFlow")
	require.Equal(t, []Entry{{Timestamp: "2025-01-01T07:00:00Z", Data: map[string]any{"flow": 2.0}}}, res.Entries)
	// Origins are collected even from records that were dropped.
	require.ElementsMatch(t, []string{"com.cycle", "com.other"}, res.DataOrigins)
	require.Equal(t, 1, res.RecordCount())
}

func TestAggregateEmptyInput(t *testing.T) {
	res := Aggregate(nil, "steps")
	require.True(t, res.Empty())

	out, err := json.Marshal(res)
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(out))
}

func TestGroupByDate(t *testing.T) {
	records := decodeRecords(t, `[
		{"start": "2025-01-02T10:00:00Z", "data": {"value": 1}},
		{"time": "2025-01-01T08:00:00Z", "data": {"value": 2}},
		{"data": {"value": 3}},
		{"start": "2025-01-02T07:00:00Z", "data": {"value": 4}}
	]`)

	buckets := GroupByDate(records)
	require.Len(t, buckets, 2)
	require.Equal(t, "2025-01-01", buckets[0].Date)
	require.Len(t, buckets[0].Records, 1)
	require.Equal(t, "2025-01-02", buckets[1].Date)
	require.Len(t, buckets[1].Records, 2)
	require.Equal(t, "2025-01-02T10:00:00Z", buckets[1].Records[0].Start)
	require.Equal(t, "2025-01-02T07:00:00Z", buckets[1].Records[1].Start)
}

func TestAggregateByDate(t *testing.T) {
	records := decodeRecords(t, `[
		{"start": "2025-01-01T10:00:00Z", "data": {"count": 1000}},
		{"start": "2025-01-02T10:00:00Z", "data": {"count": 3000}},
		{"start": "2025-01-01T20:00:00Z", "data": {"count": 9000}}
	]`)

	daily := AggregateByDate(records, "steps")
	require.Len(t, daily, 2)
	require.Equal(t, "2025-01-01", daily[0].Date)
	require.Equal(t, 9000.0, daily[0].Result.Cumulative.Total)
	require.Equal(t, "2025-01-02", daily[1].Date)
	require.Equal(t, 3000.0, daily[1].Result.Cumulative.Total)
}

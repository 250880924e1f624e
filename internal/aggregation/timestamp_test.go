package aggregation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func pinNow(t *testing.T, at time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
}

func TestHourOf(t *testing.T) {
	cases := map[string]int{
		"2025-03-04T07:15:00Z":             7,
		"2025-03-04T07:15:00.123456Z":      7,
		"2025-03-04T23:59:59+05:30":        23,
		"2025-03-04T10:00:00-0700":         10,
		"2025-01-01T10:00:00+05":           10,
		"2025-01-01 11:00:00-03":           11,
		"20250101T100000Z":                 10,
		"20250101T153000.5+0530":           15,
		"20250101T0845":                    8,
		"2025-03-04T18:30:00":              18,
		"2025-03-04 21:05:00":              21,
		"2025-03-04T06:45":                 6,
		"2025-03-04":                       0,
		"not a timestamp":                  0,
		"":                                 0,
		"2025-13-40T99:00:00Z":             0,
	}
	for ts, want := range cases {
		require.Equal(t, want, HourOf(ts), ts)
	}
}

func TestDateOfKeepsTimestampOffset(t *testing.T) {
	require.Equal(t, "2025-03-04", DateOf("2025-03-04T23:30:00-03:00"))
	require.Equal(t, "2025-03-05", DateOf("2025-03-05T00:10:00+02:00"))
	require.Equal(t, "2025-03-04", DateOf("2025-03-04"))
}

func TestDateOfAcceptsShortOffsetsAndBasicFormat(t *testing.T) {
	pinNow(t, time.Date(2026, time.October, 17, 12, 0, 0, 0, time.UTC))

	require.Equal(t, "2025-01-01", DateOf("2025-01-01T10:00:00+05"))
	require.Equal(t, "2025-01-01", DateOf("20250101T100000Z"))
	require.Equal(t, "2025-01-01", DateOf("20250101"))

	ts, ok := ParseTimestamp("2025-01-01T10:00:00+05")
	require.True(t, ok)
	require.Equal(t, time.Date(2025, 1, 1, 5, 0, 0, 0, time.UTC), ts.UTC())
}

func TestMinutesBetweenRequiresMatchingZoneAwareness(t *testing.T) {
	minutes, ok := minutesBetween("2025-01-01T22:00:00+01:00", "2025-01-02T06:30:00+01:00")
	require.True(t, ok)
	require.InDelta(t, 510, minutes, 1e-9)

	minutes, ok = minutesBetween("2025-01-01T22:00:00", "2025-01-01T23:00:00")
	require.True(t, ok)
	require.InDelta(t, 60, minutes, 1e-9)

	minutes, ok = minutesBetween("2025-01-01T22:00:00Z", "2025-01-01T23:00:00+01:00")
	require.True(t, ok)
	require.InDelta(t, 0, minutes, 1e-9)

	_, ok = minutesBetween("2025-01-01T22:00:00", "2025-01-01T23:00:00Z")
	require.False(t, ok)
	_, ok = minutesBetween("2025-01-01T22:00:00+02:00", "2025-01-01 23:00:00")
	require.False(t, ok)
	_, ok = minutesBetween("2025-01-01T22:00:00Z", "whenever")
	require.False(t, ok)
}

func TestDateOfFallsBackToTodayUTC(t *testing.T) {
	pinNow(t, time.Date(2026, time.February, 1, 23, 0, 0, 0, time.FixedZone("x", -5*3600)))

	require.Equal(t, "2026-02-02", DateOf("garbage"))
}

func TestParseTimestampReportsFailure(t *testing.T) {
	_, ok := ParseTimestamp("yesterday")
	require.False(t, ok)

	ts, ok := ParseTimestamp("2025-01-01T00:30:00Z")
	require.True(t, ok)
	require.Equal(t, time.Date(2025, 1, 1, 0, 30, 0, 0, time.UTC), ts.UTC())
}

func TestClassify(t *testing.T) {
	require.Equal(t, CategoryCumulativeSum, Classify("distance"))
	require.Equal(t, CategoryCumulativeSum, Classify("wheelchairPushes"))
	require.Equal(t, CategoryCumulativeMax, Classify("steps"))
	require.Equal(t, CategoryInstantaneous, Classify("restingHeartRate"))
	require.Equal(t, CategoryHourly, Classify("heartRate"))
	require.Equal(t, CategoryMedical, Classify("bloodPressure"))
	require.Equal(t, CategorySessions, Classify("sleepSession"))
	require.Equal(t, CategoryReproductive, Classify("nutrition"))

	require.Equal(t, CategoryInstantaneous, Classify("unknownMetric"))
	require.False(t, Known("unknownMetric"))
	// Lookups are case-sensitive; normalisation happens before the engine.
	require.Equal(t, CategoryInstantaneous, Classify("Steps"))
}

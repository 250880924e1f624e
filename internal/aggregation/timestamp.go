package aggregation

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// now is swapped in tests to pin the fallback date.
var now = time.Now

// timestampLayouts mirrors what ISO-8601 producers in the field send: date
// only, T or space separated, optional fraction, optional numeric offset in
// +HH:MM, +HHMM or +HH form, in extended or basic notation.
var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999Z07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z07",
	"2006-01-02T15:04",
	"2006-01-02T15Z07:00",
	"2006-01-02T15",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04Z07:00",
	"2006-01-02 15:04",
	"20060102T150405.999999999Z07:00",
	"20060102T150405.999999999Z0700",
	"20060102T150405.999999999Z07",
	"20060102T150405.999999999",
	"20060102T1504Z07:00",
	"20060102T1504",
	"20060102",
	dateLayout,
}

// ParseTimestamp parses an ISO-8601 timestamp. A trailing Z means UTC and naive
// values are read as UTC. The hour and date of the result are kept in the
// timestamp's own offset. ok is false when nothing matches.
func ParseTimestamp(ts string) (t time.Time, ok bool) {
	t, _, ok = parseTimestamp(ts)
	return t, ok
}

// parseTimestamp also reports whether ts carried a zone designator.
func parseTimestamp(ts string) (t time.Time, aware, ok bool) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return time.Time{}, false, false
	}
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, ts)
		if err == nil {
			return parsed, strings.Contains(layout, "Z07"), true
		}
	}
	return time.Time{}, false, false
}

// HourOf returns the hour of day (0-23) of ts, or 0 when ts does not parse.
func HourOf(ts string) int {
	t, ok := ParseTimestamp(ts)
	if !ok {
		return 0
	}
	return t.Hour()
}

// DateOf returns the YYYY-MM-DD calendar date of ts. Unparseable input falls
// back to the current UTC date.
func DateOf(ts string) string {
	t, ok := ParseTimestamp(ts)
	if !ok {
		return now().UTC().Format(dateLayout)
	}
	return t.Format(dateLayout)
}

// minutesBetween returns end-start in minutes. A pair where only one side
// carries an offset has no defined difference and reports false.
func minutesBetween(start, end string) (float64, bool) {
	s, sAware, ok := parseTimestamp(start)
	if !ok {
		return 0, false
	}
	e, eAware, ok := parseTimestamp(end)
	if !ok || sAware != eAware {
		return 0, false
	}
	return e.Sub(s).Minutes(), true
}

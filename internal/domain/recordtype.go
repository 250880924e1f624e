package domain

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// healthConnectTypes is the canonical camelCase allow-list shared with the
// mobile client.
var healthConnectTypes = newTypeSet(
	"activeCaloriesBurned",
	"basalBodyTemperature",
	"basalMetabolicRate",
	"bloodGlucose",
	"bloodPressure",
	"bodyFat",
	"bodyTemperature",
	"boneMass",
	"cervicalMucus",
	"distance",
	"exerciseSession",
	"elevationGained",
	"floorsClimbed",
	"heartRate",
	"height",
	"hydration",
	"leanBodyMass",
	"menstruationFlow",
	"menstruationPeriod",
	"nutrition",
	"ovulationTest",
	"oxygenSaturation",
	"power",
	"respiratoryRate",
	"restingHeartRate",
	"sleepSession",
	"speed",
	"steps",
	"stepsCadence",
	"totalCaloriesBurned",
	"vo2Max",
	"weight",
	"wheelchairPushes",
)

type typeSet map[string]struct{}

func newTypeSet(names ...string) typeSet {
	set := make(typeSet, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

func (s typeSet) has(name string) bool {
	_, ok := s[name]
	return ok
}

// NormalizeRecordType converts a PascalCase Health Connect identifier to the
// canonical camelCase form by lowercasing the first rune.
func NormalizeRecordType(raw string) string {
	raw = strings.TrimSpace(raw)
	r, size := utf8.DecodeRuneInString(raw)
	if size == 0 {
		return raw
	}
	return string(unicode.ToLower(r)) + raw[size:]
}

// ValidateRecordType normalises raw and checks it against the allow-list.
func ValidateRecordType(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyRecordType
	}
	name := NormalizeRecordType(raw)
	if healthConnectTypes.has(name) {
		return name, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRecordType, raw)
}

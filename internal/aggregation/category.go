package aggregation

// Category is the aggregation strategy assigned to a record type.
type Category string

const (
	CategoryCumulativeSum Category = "cumulative_sum"
	CategoryCumulativeMax Category = "cumulative_max"
	CategoryInstantaneous Category = "instantaneous"
	CategoryHourly        Category = "hourly"
	CategoryMedical       Category = "medical"
	CategorySessions      Category = "sessions"
	CategoryReproductive  Category = "reproductive"
)

// categories is the static classification table. It is never written after
// package initialisation.
var categories = buildCategoryTable(map[Category][]string{
	CategoryCumulativeSum: {
		"distance", "activeCaloriesBurned", "totalCaloriesBurned",
		"floorsClimbed", "elevationGained", "hydration", "wheelchairPushes",
	},
	CategoryCumulativeMax: {"steps"},
	CategoryInstantaneous: {
		"weight", "height", "bodyFat", "leanBodyMass", "boneMass",
		"vo2Max", "basalMetabolicRate", "restingHeartRate",
	},
	CategoryHourly: {
		"heartRate", "oxygenSaturation", "power", "stepsCadence", "respiratoryRate",
	},
	CategoryMedical: {
		"bloodPressure", "bloodGlucose", "bodyTemperature", "basalBodyTemperature",
	},
	CategorySessions: {"sleepSession", "exerciseSession"},
	CategoryReproductive: {
		"menstruationFlow", "menstruationPeriod", "ovulationTest", "cervicalMucus", "nutrition",
	},
})

func buildCategoryTable(sets map[Category][]string) map[string]Category {
	table := make(map[string]Category)
	for category, types := range sets {
		for _, recordType := range types {
			if existing, dup := table[recordType]; dup {
				panic("aggregation: " + recordType + " listed under " + string(existing) + " and " + string(category))
			}
			table[recordType] = category
		}
	}
	return table
}

// Classify maps a canonical camelCase record type to its category. Unknown
// types are treated as instantaneous.
func Classify(recordType string) Category {
	if c, ok := categories[recordType]; ok {
		return c
	}
	return CategoryInstantaneous
}

// Known reports whether recordType has an explicit entry in the table.
func Known(recordType string) bool {
	_, ok := categories[recordType]
	return ok
}

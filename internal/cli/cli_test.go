package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TeoEchavarria/health-tech-app/internal/auth"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		aggregateDate = ""
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeRecords(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const distanceFile = `{"data":[
	{"metadata":{"id":"d1"},"startTime":"2024-03-01T07:00:00Z","endTime":"2024-03-01T07:30:00Z","distance":{"inMeters":1200}},
	{"metadata":{"id":"d2"},"startTime":"2024-03-01T18:00:00Z","endTime":"2024-03-01T18:20:00Z","distance":{"inMeters":800}},
	{"metadata":{"id":"d3"},"startTime":"2024-03-02T07:00:00Z","endTime":"2024-03-02T07:30:00Z","distance":{"inMeters":500}}
]}`

func TestAggregateCmdPrintsOneEntryPerDate(t *testing.T) {
	out, err := execute(t, "aggregate", "--type", "Distance", "--file", writeRecords(t, distanceFile))
	require.NoError(t, err)

	var days []struct {
		Date     string `json:"date"`
		Category string `json:"category"`
		Result   struct {
			Aggregate struct {
				Total       float64 `json:"total"`
				RecordCount int     `json:"recordCount"`
			} `json:"aggregate"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &days))
	require.Len(t, days, 2)
	assert.Equal(t, "2024-03-01", days[0].Date)
	assert.Equal(t, "cumulative_sum", days[0].Category)
	assert.InDelta(t, 2000, days[0].Result.Aggregate.Total, 1e-9)
	assert.Equal(t, 2, days[0].Result.Aggregate.RecordCount)
	assert.InDelta(t, 500, days[1].Result.Aggregate.Total, 1e-9)
}

func TestAggregateCmdFiltersByDate(t *testing.T) {
	out, err := execute(t, "aggregate", "-t", "distance", "-f", writeRecords(t, distanceFile), "--date", "2024-03-02")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-03-02")
	assert.NotContains(t, out, "2024-03-01")
}

func TestAggregateCmdRejectsUnknownType(t *testing.T) {
	_, err := execute(t, "aggregate", "--type", "teleportation", "--file", writeRecords(t, distanceFile))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid record type")
}

func TestClassifyCmd(t *testing.T) {
	out, err := execute(t, "classify", "HeartRate")
	require.NoError(t, err)
	assert.Equal(t, "heartRate: hourly\n", out)

	_, err = execute(t, "classify", "Accelerometer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid record type")

	_, err = execute(t, "classify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestTokenCmdMintsVerifiableToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("JWT_ISSUER", "cli-issuer")

	out, err := execute(t, "token", "user-9", "--tenant", "tenant-9")
	require.NoError(t, err)

	claims, err := auth.ParseClaims(strings.TrimSpace(out), auth.Config{Secret: "cli-secret", Issuer: "cli-issuer"})
	require.NoError(t, err)
	assert.Equal(t, "user-9", claims.Subject)
	assert.Equal(t, "tenant-9", claims.TenantID)
	assert.True(t, claims.HasScope(auth.ScopeAggregatesRead))
}

package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeHashesUserIDAndRedactsSecrets(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := &Logger{SugaredLogger: zap.New(core).Sugar()}

	log.Info("sync", "user_id", "user-1", "jwt_secret", "s3cr3t", "record_type", "steps")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, hashValue("user-1"), fields["user_id"])
	require.NotEqual(t, "user-1", fields["user_id"])
	require.Equal(t, "[REDACTED]", fields["jwt_secret"])
	require.Equal(t, "steps", fields["record_type"])
}

func TestSanitizeRedactsBearerLikeValues(t *testing.T) {
	token := "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ1c2VyLTEifQ.signature"
	out := sanitizeKVs([]interface{}{"header", token, "dangling"})
	require.Equal(t, []interface{}{"header", "[REDACTED]", "dangling"}, out)
}

func TestNewSelectsMode(t *testing.T) {
	prod, err := New("production")
	require.NoError(t, err)
	require.False(t, prod.SugaredLogger.Desugar().Core().Enabled(zap.DebugLevel))

	dev, err := New("dev")
	require.NoError(t, err)
	require.True(t, dev.SugaredLogger.Desugar().Core().Enabled(zap.DebugLevel))
}

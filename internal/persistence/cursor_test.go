package persistence

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TeoEchavarria/health-tech-app/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	token := EncodeCursor(&domain.Cursor{Date: "2024-02-29", RecordType: "heartRate"})
	require.NotEmpty(t, token)

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	require.Equal(t, &domain.Cursor{Date: "2024-02-29", RecordType: "heartRate"}, decoded)
}

func TestDecodeCursorEmptyAndMalformed(t *testing.T) {
	c, err := DecodeCursor("  ")
	require.NoError(t, err)
	require.Nil(t, c)
	require.Empty(t, EncodeCursor(nil))

	_, err = DecodeCursor("%%%")
	require.Error(t, err)

	_, err = DecodeCursor(base64.RawURLEncoding.EncodeToString([]byte("no-separator")))
	require.Error(t, err)

	_, err = DecodeCursor(base64.RawURLEncoding.EncodeToString([]byte("yesterday|steps")))
	require.Error(t, err)
}

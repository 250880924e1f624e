package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testCfg = Config{Secret: "test-secret", Issuer: "test-issuer"}

func TestIssueAndParseRoundTrip(t *testing.T) {
	token, err := Issue(testCfg, "user-1", "tenant-1", []string{ScopeRecordsWrite, ScopeAggregatesRead}, time.Hour)
	require.NoError(t, err)

	claims, err := ParseClaims(token, testCfg)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "tenant-1", claims.TenantID)
	require.True(t, claims.HasScope(ScopeRecordsWrite))
	require.True(t, claims.HasScope(ScopeAggregatesRead))
	require.False(t, claims.HasScope("admin"))
}

func TestParseClaimsRejectsBadTokens(t *testing.T) {
	_, err := ParseClaims(" ", testCfg)
	require.ErrorIs(t, err, ErrMissingToken)

	wrongIssuer, err := Issue(Config{Secret: testCfg.Secret, Issuer: "someone-else"}, "u", "t", nil, time.Hour)
	require.NoError(t, err)
	_, err = ParseClaims(wrongIssuer, testCfg)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := Issue(testCfg, "u", "t", nil, -time.Minute)
	require.NoError(t, err)
	_, err = ParseClaims(expired, testCfg)
	require.ErrorIs(t, err, ErrInvalidToken)

	noTenant, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u", "iss": testCfg.Issuer, "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testCfg.Secret))
	require.NoError(t, err)
	_, err = ParseClaims(noTenant, testCfg)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestNormalizeScopesAcceptsListsAndStrings(t *testing.T) {
	require.Len(t, normalizeScopes([]interface{}{"a", "", 3, "b"}), 2)
	require.Len(t, normalizeScopes("a  b c"), 3)
	require.Empty(t, normalizeScopes(nil))
}

func TestMiddlewareSkipsProbesAndRejectsMissingToken(t *testing.T) {
	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := NewMiddleware(testCfg).Wrap(next)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/aggregates/steps", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "missing bearer token")

	token, err := Issue(testCfg, "user-1", "tenant-1", nil, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/v1/aggregates/steps", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	require.Equal(t, "tenant-1", seen.TenantID)
}

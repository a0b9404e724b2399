package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/mcp-federation-broker/internal/broker"
	"github.com/platformbuilds/mcp-federation-broker/internal/config"
	"github.com/platformbuilds/mcp-federation-broker/internal/engine/sqliteengine"
	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
)

func newTestServer(t *testing.T, secret string) *Server {
	t.Helper()
	eng, err := sqliteengine.Open("")
	require.NoError(t, err)
	cfg := config.Defaults()
	cfg.Metrics.LogsDir = t.TempDir()
	b, err := broker.New(cfg, eng, logger.Noop(), nil)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return NewServer(Config{Addr: ":0", JWTSecret: secret}, b, logger.Noop())
}

func signToken(t *testing.T, secret string, expired bool) string {
	t.Helper()
	exp := time.Now().Add(time.Hour)
	if expired {
		exp = time.Now().Add(-time.Hour)
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()})
	signed, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestHealthRouteBypassesAuth(t *testing.T) {
	s := newTestServer(t, "supersecret")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRouteRejectsMissingBearerToken(t *testing.T) {
	s := newTestServer(t, "supersecret")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/servers", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIRouteRejectsExpiredOrBadlySignedToken(t *testing.T) {
	s := newTestServer(t, "supersecret")

	bad := signToken(t, "wrong-secret", false)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/servers", nil)
	req.Header.Set("Authorization", "Bearer "+bad)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	expired := signToken(t, "supersecret", true)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/servers", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIRouteAcceptsValidBearerToken(t *testing.T) {
	s := newTestServer(t, "supersecret")

	good := signToken(t, "supersecret", false)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/servers", nil)
	req.Header.Set("Authorization", "Bearer "+good)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRouteAuthDisabledWhenSecretEmpty(t *testing.T) {
	s := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/servers", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDetachUnknownAliasMapsToNotFound(t *testing.T) {
	s := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/servers/missing", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueryInvalidJSONBodyReturnsBadRequest(t *testing.T) {
	s := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", nil)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

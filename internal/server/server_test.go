package server

import (
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"hive/internal/config"
	"hive/internal/oauth"
	"hive/internal/token"
	"hive/internal/user"
)

type testEnv struct {
	handler http.Handler
	signKey *rsa.PrivateKey
	users   *user.Store
}

func newTestEnv(t *testing.T, mutate func(cfg *config.Config)) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.ListenAddr = ":0"
	cfg.Server.PublicURL = "http://localhost:18333"
	cfg.OIDC.Issuer = "https://idp.example.com"
	cfg.OIDC.PasscodeTTL = 5 * time.Minute
	cfg.Auth.AdminEmails = []string{"root@example.com"}
	if mutate != nil {
		mutate(cfg)
	}

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "hive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users, err := user.NewStore(db)
	require.NoError(t, err)

	signKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var verifier *token.Verifier
	if !cfg.OIDC.Disabled {
		pub, err := jwk.FromRaw(&signKey.PublicKey)
		require.NoError(t, err)
		set := jwk.NewSet()
		require.NoError(t, set.AddKey(pub))
		verifier = token.NewVerifier(&token.StaticKeyProvider{Set: set}, "")
	}

	idp := oauth.NewIdentityClient(config.OIDCConfig{Disabled: true}, "http://localhost:18333/api/v1/auth/callback")
	authHandler := oauth.NewHandler(cfg, idp,
		oauth.NewStateStore(10*time.Minute),
		oauth.NewTokenRegistry(5*time.Minute),
		oauth.NewMemoryPasscodeStore(5*time.Minute),
		"/api/v1")
	t.Cleanup(authHandler.Stop)

	gate := NewGate(cfg, verifier, users)
	srv := New(cfg, authHandler, gate, users)

	return &testEnv{handler: srv.router(), signKey: signKey, users: users}
}

func (e *testEnv) signToken(t *testing.T, email string) string {
	t.Helper()
	now := time.Now()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub":   "sub-" + email,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}).SignedString(e.signKey)
	require.NoError(t, err)
	return raw
}

func (e *testEnv) signScopedToken(t *testing.T, email, contextID string) string {
	t.Helper()
	now := time.Now()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"sub":        "sub-" + email,
		"email":      email,
		"context_id": contextID,
		"iat":        now.Unix(),
		"exp":        now.Add(time.Hour).Unix(),
	}).SignedString(e.signKey)
	require.NoError(t, err)
	return raw
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthcheckExempt(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginExempt(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/login?cli=true", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing authentication token")
}

func TestMalformedAuthorizationHeader(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, header := range []string{"Token abc", "Bearer", "Bearer ", "Bearer a b c"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		req.Header.Set("Authorization", header)
		rec := env.do(t, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		assert.Contains(t, rec.Body.String(), "malformed", header)
	}
}

func TestBearerSchemeCaseInsensitive(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, scheme := range []string{"bearer", "BEARER", "Bearer"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		req.Header.Set("Authorization", scheme+" "+env.signToken(t, "dev@example.com"))
		rec := env.do(t, req)
		assert.Equal(t, http.StatusOK, rec.Code, scheme)
	}
}

func TestBearerTokenAdmitted(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+env.signToken(t, "dev@example.com"))
	rec := env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var me user.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	assert.Equal(t, "dev@example.com", me.Email)
	assert.Equal(t, user.RoleUser, me.Role)
	assert.NotEmpty(t, me.ID)
}

func TestContextScopedTokenMatchesRoute(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/contexts/ctx-1/me", nil)
	req.Header.Set("Authorization", "Bearer "+env.signScopedToken(t, "dev@example.com", "ctx-1"))
	rec := env.do(t, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestContextScopedTokenRejectedElsewhere(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/contexts/ctx-2/me", nil)
	req.Header.Set("Authorization", "Bearer "+env.signScopedToken(t, "dev@example.com", "ctx-1"))
	rec := env.do(t, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "scoped to a different context")
}

func TestUnscopedTokenReachesAnyContext(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/contexts/ctx-9/me", nil)
	req.Header.Set("Authorization", "Bearer "+env.signToken(t, "dev@example.com"))
	rec := env.do(t, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCookieFallback(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.AddCookie(&http.Cookie{Name: oauth.SessionCookieName, Value: env.signToken(t, "dev@example.com")})
	rec := env.do(t, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHeaderWinsOverCookie(t *testing.T) {
	env := newTestEnv(t, nil)

	// A bad header must 401 even when a valid cookie rides along.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Basic dXNlcg==")
	req.AddCookie(&http.Cookie{Name: oauth.SessionCookieName, Value: env.signToken(t, "dev@example.com")})
	rec := env.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExpiredTokenRejected(t *testing.T) {
	env := newTestEnv(t, nil)

	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"email": "dev@example.com",
		"iat":   time.Now().Add(-2 * time.Hour).Unix(),
		"exp":   time.Now().Add(-time.Hour).Unix(),
	}).SignedString(env.signKey)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+raw)
	rec := env.do(t, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "expired")
}

func TestGarbageTokenRejected(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := env.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminEmailGetsAdminRole(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	req.Header.Set("Authorization", "Bearer "+env.signToken(t, "root@example.com"))
	rec := env.do(t, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegularUserForbiddenFromAdminRoute(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users", nil)
	req.Header.Set("Authorization", "Bearer "+env.signToken(t, "dev@example.com"))
	rec := env.do(t, req)

	// 403, not 401: the caller is authenticated, just not allowed.
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient permissions")
}

func TestAuthDisabledBypass(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Auth.Disabled = true
	})

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var me user.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	assert.Equal(t, AdminEmail, me.Email)
	assert.Equal(t, user.RoleAdmin, me.Role)
}

func TestOIDCDisabledAcceptsDevToken(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.OIDC.Disabled = true
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+oauth.DevToken)
	rec := env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var me user.User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	assert.Equal(t, DevEmail, me.Email)

	// Anything else is rejected.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer some-other-token")
	rec = env.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedResourceMetadataExempt(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/.well-known/oauth-protected-resource", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://idp.example.com")
}

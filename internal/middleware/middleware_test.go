package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/table-reservation/internal/config"
	"github.com/iliyamo/table-reservation/internal/logging"
)

const secret = "test-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func serve(e *echo.Echo, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newAuthEcho() *echo.Echo {
	e := echo.New()
	e.GET("/whoami", func(c echo.Context) error {
		return c.String(http.StatusOK, CallerEmail(c))
	}, JWTAuth(secret))
	return e
}

func TestJWTAuthStoresEmail(t *testing.T) {
	e := newAuthEcho()
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
		"sub":   "u-1",
		"email": " Staff@Example.com ",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	rec := serve(e, token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "staff@example.com", rec.Body.String())
}

func TestJWTAuthRejects(t *testing.T) {
	e := newAuthEcho()
	valid := jwt.MapClaims{"email": "a@example.com", "exp": time.Now().Add(time.Hour).Unix()}

	cases := map[string]string{
		"missing":      "",
		"garbage":      "not-a-token",
		"wrong secret": sign(t, jwt.SigningMethodHS256, []byte("other"), valid),
		"expired":      sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"email": "a@example.com", "exp": time.Now().Add(-time.Minute).Unix()}),
		"no email":     sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "u-1"}),
		"alg none":     sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, valid),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, serve(e, token).Code)
		})
	}
}

func TestTokenBucketBlocksAfterCapacity(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Hour,
		TTL:            5 * time.Hour,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	}
	e := echo.New()
	e.Use(NewTokenBucket(cfg, rdb, logging.Discard()))
	e.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		last = httptest.NewRecorder()
		e.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "0", last.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
	assert.True(t, mr.Exists("rl:ip:10.0.0.1"))
}

func TestTokenBucketRefillsByInterval(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       1,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            time.Hour,
		KeyStrategy:    "ip",
		Prefix:         "rl",
	}
	now := time.Date(2026, 5, 10, 18, 0, 0, 0, time.UTC)
	e := echo.New()
	e.Use(newTokenBucket(cfg, rdb, logging.Discard(), func() time.Time { return now }))
	e.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	hit := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.3:1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	require.Equal(t, http.StatusNoContent, hit().Code)
	now = now.Add(20 * time.Second)
	denied := hit()
	require.Equal(t, http.StatusTooManyRequests, denied.Code)
	assert.Equal(t, "40", denied.Header().Get("Retry-After"))

	now = now.Add(40 * time.Second)
	assert.Equal(t, http.StatusNoContent, hit().Code)

	fields, err := mr.HKeys("rl:ip:10.0.0.3")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tokens", "refilled_ms"}, fields)
}

func TestTokenBucketFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })
	mr.Close()

	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute}
	e := echo.New()
	e.Use(NewTokenBucket(cfg, rdb, logging.Discard()))
	e.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestBuildRateKeyUsesCaller(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/venues/v1/reservations", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/venues/:venueID/reservations")
	c.Set(ContextEmail, "sam@example.com")

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_user_route"}
	assert.Equal(t, "rl:ip:10.0.0.2:user:sam@example.com:route:POST /venues/:venueID/reservations", buildRateKey(cfg, c))

	cfg.KeyStrategy = "user"
	c.Set(ContextEmail, nil)
	assert.Equal(t, "rl:user:anon", buildRateKey(cfg, c))
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookingledger/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-secret")

func sign(t *testing.T, claims jwt.MapClaims, key []byte) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestParseToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()

	id, err := ParseToken(sign(t, jwt.MapClaims{"user_id": "user-1", "exp": exp}, testKey), testKey)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)

	id, err = ParseToken("Bearer "+sign(t, jwt.MapClaims{"user_id": 42, "exp": exp}, testKey), testKey)
	require.NoError(t, err)
	assert.Equal(t, "42", id)

	id, err = ParseToken(sign(t, jwt.MapClaims{"sub": "user-7"}, testKey), testKey)
	require.NoError(t, err)
	assert.Equal(t, "user-7", id)

	_, err = ParseToken(sign(t, jwt.MapClaims{"role": "admin"}, testKey), testKey)
	assert.ErrorIs(t, err, errMissingSubject)

	_, err = ParseToken(sign(t, jwt.MapClaims{"user_id": "user-1"}, []byte("other")), testKey)
	assert.Error(t, err)

	_, err = ParseToken(sign(t, jwt.MapClaims{"user_id": "user-1", "exp": time.Now().Add(-time.Hour).Unix()}, testKey), testKey)
	assert.Error(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": "user-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseToken(none, testKey)
	assert.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	var seen string
	handler := AuthMiddleware(testKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserIDFromContext(r.Context())
		assert.Equal(t, seen, r.Header.Get("X-User-ID"))
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/bookings/RB-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/bookings/RB-1", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/bookings/RB-1", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, jwt.MapClaims{"user_id": "user-1"}, testKey))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "user-1", seen)
}

func TestLoggingMiddlewareCountsFailures(t *testing.T) {
	before := utils.GetMetrics().GetMetricsSnapshot()["failed_requests"].(int64)

	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	after := utils.GetMetrics().GetMetricsSnapshot()["failed_requests"].(int64)
	assert.Equal(t, before+1, after)
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(Recovery(), Logger(), RateLimit(utils.NewRateLimiter(2, time.Minute)))
	engine.GET("/panic", func(*gin.Context) { panic("boom") })
	private := engine.Group("/private", Auth(testKey))
	private.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, UserIDFromContext(c.Request.Context()))
	})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/private/me", nil)
	req.Header.Set("Authorization", sign(t, jwt.MapClaims{"user_id": "ops-1"}, testKey))
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ops-1", rec.Body.String())
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/private/me", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

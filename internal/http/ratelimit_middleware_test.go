package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stexs-auth/internal/service"
)

type failingLimiter struct{}

func (failingLimiter) Consume(context.Context, string) (service.RateLimitResult, error) {
	return service.RateLimitResult{}, errors.New("redis: connection refused")
}

func (failingLimiter) Points() int             { return 1 }
func (failingLimiter) Duration() time.Duration { return time.Minute }

func TestRateLimit_SignInExceeded(t *testing.T) {
	srv := newTestServer(t, RateLimiters{SignIn: service.NewMemoryRateLimiter("sign-in:", 1, time.Minute)})
	srv.seedUser(t, "ana@example.com", "ana")
	body := gin.H{"identifier": "ana", "password": testPassword}

	rec := srv.do(t, http.MethodPost, "/sign-in", "", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "60", rec.Header().Get("X-RateLimit-Duration"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	_, err := time.Parse(time.RFC3339, rec.Header().Get("X-RateLimit-Reset"))
	require.NoError(t, err)

	rec = srv.do(t, http.MethodPost, "/sign-in", "", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.InDelta(t, 60, retryAfter, 1)

	errBody := decodeError(t, rec)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errBody.Errors[0].Code)
	assert.InDelta(t, 60, errBody.Errors[0].Data["retryAfter"], 1)

	// Otros grupos de rutas tienen su propio cupo.
	rec = srv.do(t, http.MethodPost, "/verify/resend", "", gin.H{"email": "ana@example.com"})
	assert.NotEqual(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	srv := newTestServer(t, RateLimiters{SignIn: failingLimiter{}})
	srv.seedUser(t, "ana@example.com", "ana")

	for range 3 {
		rec := srv.do(t, http.MethodPost, "/sign-in", "", gin.H{"identifier": "ana", "password": testPassword})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}

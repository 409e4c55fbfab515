package httpapi

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestActingUserFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/execution/queue?executor_id="+testExecutorID, nil)
	assert.Equal(t, testExecutorID, actingUserFromRequest(req))

	req = httptest.NewRequest(http.MethodGet, "/api/execution/queue?executor_id="+testExecutorID, nil)
	req.Header.Set("X-User-ID", testOtherID)
	assert.Equal(t, testOtherID, actingUserFromRequest(req))

	body := []byte(`{"user_id":"` + testExecutorID + `","text":"ok"}`)
	req = httptest.NewRequest(http.MethodPost, "/api/items/"+testItemID+"/notes", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, testExecutorID, actingUserFromRequest(req))

	restored, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, body, restored)
}

func TestRateLimiterPerUser(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{
		IPPerMinute:   1000,
		IPBurst:       1000,
		UserPerMinute: 1,
		UserBurst:     2,
	})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := LoggingMiddleware(zap.NewNop(), limiter.Middleware(next))

	call := func(userID string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/execution/queue?executor_id="+userID, nil)
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		return resp.Code
	}

	assert.Equal(t, http.StatusNoContent, call(testExecutorID))
	assert.Equal(t, http.StatusNoContent, call(testExecutorID))
	assert.Equal(t, http.StatusTooManyRequests, call(testExecutorID))
	assert.Equal(t, http.StatusNoContent, call(testOtherID))
}

func TestRateLimiterPerIP(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{IPPerMinute: 1, IPBurst: 1, UserPerMinute: 100, UserBurst: 100})
	h := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		resp := httptest.NewRecorder()
		h.ServeHTTP(resp, req)
		assert.Equal(t, want, resp.Code, "call %d", i)
	}
}

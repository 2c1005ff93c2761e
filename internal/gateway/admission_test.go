package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmellish/botgate/internal/ratelimit"
)

func newTestLimiter(perMinute int) *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Policy{
		Standard:    ratelimit.Quota{PerMinute: perMinute, PerHour: 1000},
		Premium:     ratelimit.Quota{PerMinute: 100, PerHour: 1000},
		Global:      ratelimit.Quota{PerMinute: 10000, PerHour: 100000},
		BanDuration: 10 * time.Minute,
	})
}

func postCheck(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/check", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCheckHandler_Allowed(t *testing.T) {
	h := Check(newTestLimiter(5), nil)

	rec := postCheck(t, h, `{"caller_id":"u1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp checkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Allowed)
	require.NotNil(t, resp.Remaining)
	assert.Equal(t, 5, resp.Remaining.Minute)
	assert.Empty(t, resp.Reason)

	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Remaining-Minute"))
	assert.Equal(t, "1000", rec.Header().Get("X-RateLimit-Remaining-Hour"))
}

func TestCheckHandler_Denied(t *testing.T) {
	lim := newTestLimiter(1)
	h := Check(lim, nil)

	require.Equal(t, http.StatusOK, postCheck(t, h, `{"caller_id":"u1"}`).Code)

	rec := postCheck(t, h, `{"caller_id":"u1"}`)
	// a denial is an answer, not a transport error
	require.Equal(t, http.StatusOK, rec.Code)

	var resp checkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Allowed)
	assert.Equal(t, string(ratelimit.ReasonMinuteLimit), resp.Reason)
	assert.GreaterOrEqual(t, resp.RetryAfterSeconds, 1)
	assert.NotEmpty(t, resp.Message)
	assert.Nil(t, resp.Remaining)

	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestCheckHandler_ScopeIsIgnoredByPolicy(t *testing.T) {
	h := Check(newTestLimiter(1), nil)

	require.Equal(t, http.StatusOK, postCheck(t, h, `{"caller_id":"u1","scope":"guild-a"}`).Code)

	// a different scope does not buy a fresh window
	rec := postCheck(t, h, `{"caller_id":"u1","scope":"guild-b"}`)
	var resp checkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Allowed)
}

func TestCheckHandler_BadRequests(t *testing.T) {
	h := Check(newTestLimiter(5), nil)

	rec := postCheck(t, h, `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "bad_request")

	rec = postCheck(t, h, `{"caller_id":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_caller_id")
}

func TestCheckHandler_DecisionCallback(t *testing.T) {
	var gotCaller string
	var gotDec ratelimit.Decision
	h := Check(newTestLimiter(5), func(id string, dec ratelimit.Decision) {
		gotCaller = id
		gotDec = dec
	})

	postCheck(t, h, `{"caller_id":"u1"}`)
	assert.Equal(t, "u1", gotCaller)
	assert.True(t, gotDec.Allowed)
}

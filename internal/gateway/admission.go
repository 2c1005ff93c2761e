package gateway

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jmellish/botgate/internal/ratelimit"
)

type checkRequest struct {
	CallerID string `json:"caller_id"`
	// Scope is accepted and echoed but not consulted by policy; reserved
	// for future per-channel or per-guild quotas.
	Scope string `json:"scope,omitempty"`
}

type remaining struct {
	Minute int `json:"minute"`
	Hour   int `json:"hour"`
}

type checkResponse struct {
	Allowed           bool       `json:"allowed"`
	Remaining         *remaining `json:"remaining,omitempty"`
	Reason            string     `json:"reason,omitempty"`
	RetryAfterSeconds int        `json:"retry_after_seconds,omitempty"`
	Message           string     `json:"message,omitempty"`
}

// Check returns the admission endpoint. One call per inbound user action:
// the dispatch layer posts an opaque caller ID and gets back the decision.
// Denials are HTTP 200, they are answers, not transport errors.
func Check(lim *ratelimit.Limiter, onDecision func(callerID string, dec ratelimit.Decision)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req checkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "Body must be JSON")
			return
		}
		if strings.TrimSpace(req.CallerID) == "" {
			writeError(w, http.StatusBadRequest, "missing_caller_id", "caller_id is required")
			return
		}

		dec := lim.Check(req.CallerID, time.Now())
		if onDecision != nil {
			onDecision(req.CallerID, dec)
		}

		resp := checkResponse{Allowed: dec.Allowed}
		if dec.Allowed {
			w.Header().Set("X-RateLimit-Remaining-Minute", strconv.Itoa(dec.RemainingMinute))
			w.Header().Set("X-RateLimit-Remaining-Hour", strconv.Itoa(dec.RemainingHour))
			resp.Remaining = &remaining{Minute: dec.RemainingMinute, Hour: dec.RemainingHour}
		} else {
			w.Header().Set("Retry-After", strconv.Itoa(dec.RetryAfterSeconds))
			resp.Reason = string(dec.Reason)
			resp.RetryAfterSeconds = dec.RetryAfterSeconds
			resp.Message = dec.Message
		}
		writeJSON(w, http.StatusOK, resp)
	})
}

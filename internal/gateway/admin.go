package gateway

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmellish/botgate/internal/auth"
	"github.com/jmellish/botgate/internal/ratelimit"
)

type callerStatsResponse struct {
	CallerID    string  `json:"caller_id"`
	MinuteCount int     `json:"minute_count"`
	HourCount   int     `json:"hour_count"`
	MinuteQuota int     `json:"minute_quota"`
	HourQuota   int     `json:"hour_quota"`
	Violations  float64 `json:"violations"`
	Premium     bool    `json:"premium"`
	Banned      bool    `json:"banned"`
	BanExpiry   string  `json:"ban_expiry,omitempty"` // RFC3339, only when banned
}

type globalStatsResponse struct {
	MinuteCount    int `json:"minute_count"`
	HourCount      int `json:"hour_count"`
	MinuteQuota    int `json:"minute_quota"`
	HourQuota      int `json:"hour_quota"`
	TrackedCallers int `json:"tracked_callers"`
	ActiveBans     int `json:"active_bans"`
}

// Admin returns the operational surface: premium tier management, caller
// state clears and usage snapshots. Mount behind the admin auth middleware.
func Admin(lim *ratelimit.Limiter, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	audit := func(r *http.Request, action, id string) {
		op, _ := auth.OperatorFrom(r.Context())
		logger.Info().Str("operator", op).Str("action", action).Str("caller", id).Msg("admin")
	}

	mux.HandleFunc("PUT /admin/premium/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		lim.AddPremium(id)
		audit(r, "add_premium", id)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("DELETE /admin/premium/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		lim.RemovePremium(id)
		audit(r, "remove_premium", id)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("DELETE /admin/callers/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		lim.ClearCaller(id)
		audit(r, "clear_caller", id)
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /admin/callers/{id}", func(w http.ResponseWriter, r *http.Request) {
		st := lim.CallerStats(r.PathValue("id"), time.Now())
		resp := callerStatsResponse{
			CallerID:    st.CallerID,
			MinuteCount: st.MinuteCount,
			HourCount:   st.HourCount,
			MinuteQuota: st.Quota.PerMinute,
			HourQuota:   st.Quota.PerHour,
			Violations:  st.Violations,
			Premium:     st.Premium,
			Banned:      st.Banned,
		}
		if st.Banned {
			resp.BanExpiry = st.BanExpiry.Format(time.RFC3339)
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("GET /admin/stats", func(w http.ResponseWriter, r *http.Request) {
		st := lim.GlobalStats(time.Now())
		writeJSON(w, http.StatusOK, globalStatsResponse{
			MinuteCount:    st.MinuteCount,
			HourCount:      st.HourCount,
			MinuteQuota:    st.Quota.PerMinute,
			HourQuota:      st.Quota.PerHour,
			TrackedCallers: st.TrackedCallers,
			ActiveBans:     st.ActiveBans,
		})
	})

	return mux
}

package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jmellish/botgate/internal/ratelimit"
)

type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Decisions       *prometheus.CounterVec
	BansApplied     prometheus.Counter
	TrackedCallers  prometheus.Gauge
	ActiveBans      prometheus.Gauge
	SweepDuration   prometheus.Histogram
	SweepEvictions  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botgate_requests_total",
				Help: "Total HTTP requests processed by the service",
			},
			[]string{"path", "method", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "botgate_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "botgate_admission_decisions_total",
				Help: "Admission decisions by outcome, denial reason and caller tier",
			},
			[]string{"outcome", "reason", "tier"},
		),
		BansApplied: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "botgate_bans_applied_total",
				Help: "Temporary bans installed",
			},
		),
		TrackedCallers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "botgate_tracked_callers",
				Help: "Caller records currently held in the ledger",
			},
		),
		ActiveBans: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "botgate_active_bans",
				Help: "Temporary bans currently in force",
			},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "botgate_sweep_duration_seconds",
				Help:    "Duration of ledger reclamation passes",
				Buckets: prometheus.DefBuckets,
			},
		),
		SweepEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "botgate_sweep_evicted_callers_total",
				Help: "Caller records evicted by the sweep",
			},
		),
	}

	reg.MustRegister(
		m.RequestsTotal, m.RequestDuration, m.Decisions, m.BansApplied,
		m.TrackedCallers, m.ActiveBans, m.SweepDuration, m.SweepEvictions,
	)
	return m
}

// ObserveDecision records one admission decision.
func (m *Metrics) ObserveDecision(dec ratelimit.Decision, premium bool) {
	tier := "standard"
	if premium {
		tier = "premium"
	}
	if dec.Allowed {
		m.Decisions.WithLabelValues("allowed", "none", tier).Inc()
		return
	}
	m.Decisions.WithLabelValues("denied", string(dec.Reason), tier).Inc()
}

// ObserveSweep records one reclamation pass and refreshes the ledger gauges.
func (m *Metrics) ObserveSweep(st ratelimit.SweepStats) {
	m.SweepDuration.Observe(st.Elapsed.Seconds())
	m.SweepEvictions.Add(float64(st.EvictedCallers))
	m.TrackedCallers.Set(float64(st.TrackedCallers))
	m.ActiveBans.Set(float64(st.ActiveBans))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Middleware records per-request metrics, skipping the ops endpoints.
func (m *Metrics) Middleware(skip map[string]struct{}) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			method := r.Method
			code := rec.status
			if code == 0 {
				code = http.StatusOK
			}

			// collapse admin paths so caller IDs don't blow up label cardinality
			path := r.URL.Path
			if strings.HasPrefix(path, "/admin/") {
				path = "/admin"
			}

			m.RequestDuration.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
			m.RequestsTotal.WithLabelValues(path, method, strconv.Itoa(code)).Inc()
		})
	}
}

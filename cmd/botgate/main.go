package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmellish/botgate/internal/auth"
	"github.com/jmellish/botgate/internal/config"
	"github.com/jmellish/botgate/internal/gateway"
	"github.com/jmellish/botgate/internal/obs"
	"github.com/jmellish/botgate/internal/ratelimit"
)

const version = "v0.1.0"

func main() {

	_ = godotenv.Load()

	path := os.Getenv("BOTGATE_CONFIG")
	if path == "" {
		path = "./config.yaml"
	}
	cfg, err := config.Load(path)

	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := obs.SetupLogger(cfg.Observability.LogLevel)
	logger.Info().Msg("Setup logger")

	reg := prometheus.NewRegistry()
	metrics := obs.NewMetrics(reg)

	policy := ratelimit.Policy{
		Standard: ratelimit.Quota{
			PerMinute: cfg.Limits.Standard.RequestsPerMinute,
			PerHour:   cfg.Limits.Standard.RequestsPerHour,
		},
		Premium: ratelimit.Quota{
			PerMinute: cfg.Limits.Premium.RequestsPerMinute,
			PerHour:   cfg.Limits.Premium.RequestsPerHour,
		},
		Global: ratelimit.Quota{
			PerMinute: cfg.Limits.Global.RequestsPerMinute,
			PerHour:   cfg.Limits.Global.RequestsPerHour,
		},
		BanDuration: cfg.Limits.BanDuration(),
	}

	lim := ratelimit.New(policy,
		ratelimit.WithPremium(cfg.PremiumCallers...),
		ratelimit.WithSweepInterval(cfg.Limits.SweepInterval()),
		ratelimit.WithOnBan(func(id string, expiry time.Time) {
			metrics.BansApplied.Inc()
			logger.Warn().Str("caller", id).Time("expiry", expiry).Msg("temp ban applied")
		}),
		ratelimit.WithOnSweep(func(st ratelimit.SweepStats) {
			metrics.ObserveSweep(st)
			logger.Debug().
				Int("evicted", st.EvictedCallers).
				Int("expired_bans", st.ExpiredBans).
				Int("tracked", st.TrackedCallers).
				Dur("dur", st.Elapsed).
				Msg("sweep")
		}),
	)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go lim.Run(sweepCtx)

	onDecision := func(callerID string, dec ratelimit.Decision) {
		metrics.ObserveDecision(dec, lim.IsPremium(callerID))
		if !dec.Allowed {
			logger.Debug().
				Str("caller", callerID).
				Str("reason", string(dec.Reason)).
				Int("retry_after", dec.RetryAfterSeconds).
				Msg("request denied")
		}
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(version))
	})

	mux.Handle(cfg.Observability.PrometheusPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	mux.Handle("POST /v1/check", gateway.Check(lim, onDecision))
	mux.Handle("/admin/", gateway.Admin(lim, logger))

	pairs := map[string]string{} // secret -> operator ID
	for _, k := range cfg.Admin.Keys {
		if k.Secret != "" && k.ID != "" {
			pairs[k.Secret] = k.ID
		}
	}
	adminAuth := auth.NewStatic(cfg.Admin.Header, pairs)

	skipMetrics := map[string]struct{}{
		"/health":                        {},
		"/version":                       {},
		cfg.Observability.PrometheusPath: {},
	}

	handler := gateway.Chain(
		mux,
		obs.Logger(logger),
		metrics.Middleware(skipMetrics),
		gateway.BodyLimit(cfg.Server.MaxBody()),
		adminAuth.Middleware("/admin/"),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout(),
		IdleTimeout:       cfg.Server.IdleTimeout(),
		ReadTimeout:       cfg.Server.ReadTimeout(),
	}

	// start
	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	stopSweep()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
	log.Printf("bye")
}

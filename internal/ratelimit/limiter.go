// Package ratelimit is the bot's admission-control engine: a sliding-window
// limiter with per-caller and global quotas, a standard/premium tier split,
// violation accumulation with slow decay, and escalating temporary bans.
//
// All state is in-memory and rebuilt from zero on startup. A periodic sweep
// bounds memory growth; it is time-triggered, never traffic-triggered.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour

	// banThreshold is the violation count at which a temp ban is installed.
	banThreshold = 3

	// violationDecay is forgiven on each allowed request while the count is
	// positive. Accrual is a full point per breach, so recovery is slow on
	// purpose.
	violationDecay = 0.1
)

// Reason is the machine-readable denial code.
type Reason string

const (
	ReasonTempBan        Reason = "temp_ban"
	ReasonTempBanApplied Reason = "temp_ban_applied"
	ReasonMinuteLimit    Reason = "minute_limit"
	ReasonHourLimit      Reason = "hour_limit"
	ReasonGlobalMinute   Reason = "global_minute_limit"
	ReasonGlobalHour     Reason = "global_hour_limit"
)

// Quota is a per-minute / per-hour request allowance.
type Quota struct {
	PerMinute int
	PerHour   int
}

// Policy is the process-wide admission policy. Immutable after New.
type Policy struct {
	Standard    Quota
	Premium     Quota
	Global      Quota
	BanDuration time.Duration
}

// Decision is the outcome of one admission check. Denials are ordinary
// values, not errors: Message is suitable for direct display to the caller
// and RetryAfterSeconds is an advisory wait, never zero on a denial.
type Decision struct {
	Allowed           bool
	RemainingMinute   int
	RemainingHour     int
	Reason            Reason
	RetryAfterSeconds int
	Message           string
}

// Limiter evaluates admission requests against the ledger. It is the only
// component with policy knowledge and is safe for concurrent use.
type Limiter struct {
	policy Policy
	ledger *ledger

	premiumMu sync.RWMutex
	premium   map[string]struct{}

	sweepInterval time.Duration
	onSweep       func(SweepStats)
	onBan         func(callerID string, expiry time.Time)
}

type Option func(*Limiter)

// WithSweepInterval overrides the period of the background sweep.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.sweepInterval = d
		}
	}
}

// WithOnSweep sets a callback invoked after each background sweep, used for
// metrics and logging.
func WithOnSweep(fn func(SweepStats)) Option {
	return func(l *Limiter) { l.onSweep = fn }
}

// WithOnBan sets a callback invoked when a temp ban is installed.
func WithOnBan(fn func(callerID string, expiry time.Time)) Option {
	return func(l *Limiter) { l.onBan = fn }
}

// WithPremium seeds the premium set at startup.
func WithPremium(ids ...string) Option {
	return func(l *Limiter) {
		for _, id := range ids {
			l.premium[id] = struct{}{}
		}
	}
}

func New(p Policy, opts ...Option) *Limiter {
	l := &Limiter{
		policy:        p,
		ledger:        newLedger(),
		premium:       make(map[string]struct{}),
		sweepInterval: 10 * time.Minute,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Check evaluates one admission request at the given instant.
//
// Order matters: ban check first (O(1), no window work for banned callers),
// then the caller's tiered minute/hour windows, then the global windows.
// Only when everything passes is the request recorded, in both ledgers.
func (l *Limiter) Check(callerID string, now time.Time) Decision {
	if exp, banned := l.ledger.banUntil(callerID, now); banned {
		retry := int(math.Ceil(exp.Sub(now).Seconds()))
		return Decision{
			Reason:            ReasonTempBan,
			RetryAfterSeconds: retry,
			Message:           fmt.Sprintf("You are temporarily blocked for repeated rate limit violations. Try again in %d seconds.", retry),
		}
	}

	q := l.quotaFor(callerID)
	hourHorizon := now.Add(-hourWindow)
	minuteHorizon := now.Add(-minuteWindow)

	rec := l.ledger.lockedCaller(callerID)
	rec.stamps = trimOlderThan(rec.stamps, hourHorizon)
	hourCount := len(rec.stamps)
	minuteCount := countSince(rec.stamps, minuteHorizon)

	if minuteCount >= q.PerMinute {
		rec.violations++
		violations := rec.violations
		var newest time.Time
		if n := len(rec.stamps); n > 0 {
			newest = rec.stamps[n-1]
		}
		rec.mu.Unlock()

		if violations >= banThreshold {
			expiry := now.Add(l.policy.BanDuration)
			l.ledger.setBan(callerID, expiry)
			if l.onBan != nil {
				l.onBan(callerID, expiry)
			}
			retry := int(l.policy.BanDuration.Seconds())
			return Decision{
				Reason:            ReasonTempBanApplied,
				RetryAfterSeconds: retry,
				Message:           fmt.Sprintf("Too many rate limit violations. You are blocked for the next %d seconds.", retry),
			}
		}

		retry := 60 - int(now.Sub(newest).Seconds())
		if retry < 1 {
			retry = 1 // downstream treats 0 as absent
		}
		return Decision{
			Reason:            ReasonMinuteLimit,
			RetryAfterSeconds: retry,
			Message:           fmt.Sprintf("You're sending requests too quickly. Try again in %d seconds.", retry),
		}
	}

	if hourCount >= q.PerHour {
		oldest := rec.stamps[0]
		rec.mu.Unlock()

		retry := 3600 - int(now.Sub(oldest).Seconds())
		if retry < 1 {
			retry = 1
		}
		return Decision{
			Reason:            ReasonHourLimit,
			RetryAfterSeconds: retry,
			Message:           fmt.Sprintf("You've reached your hourly request limit. Try again in %d seconds.", retry),
		}
	}

	if rec.violations > 0 {
		rec.violations = math.Max(0, rec.violations-violationDecay)
	}

	// The global lock nests inside the caller lock so a global denial
	// leaves the caller's history untouched, and so two requests from the
	// same caller can never both see the last free slot.
	g := &l.ledger.global
	g.mu.Lock()
	g.stamps = trimOlderThan(g.stamps, hourHorizon)
	globalHour := len(g.stamps)
	globalMinute := countSince(g.stamps, minuteHorizon)

	if globalMinute >= l.policy.Global.PerMinute {
		g.mu.Unlock()
		rec.mu.Unlock()
		return Decision{
			Reason:            ReasonGlobalMinute,
			RetryAfterSeconds: 60,
			Message:           "The bot is handling too many requests right now. Try again in a minute.",
		}
	}
	if globalHour >= l.policy.Global.PerHour {
		g.mu.Unlock()
		rec.mu.Unlock()
		return Decision{
			Reason:            ReasonGlobalHour,
			RetryAfterSeconds: 3600,
			Message:           "The bot has reached its hourly capacity. Try again later.",
		}
	}

	rec.stamps = append(rec.stamps, now)
	g.stamps = append(g.stamps, now)
	g.mu.Unlock()
	rec.mu.Unlock()

	// Remaining counts are post-check, pre-record: the request just
	// admitted is not subtracted.
	return Decision{
		Allowed:         true,
		RemainingMinute: q.PerMinute - minuteCount,
		RemainingHour:   q.PerHour - hourCount,
	}
}

func (l *Limiter) quotaFor(id string) Quota {
	l.premiumMu.RLock()
	defer l.premiumMu.RUnlock()
	if _, ok := l.premium[id]; ok {
		return l.policy.Premium
	}
	return l.policy.Standard
}

// AddPremium grants id the premium quota tier.
func (l *Limiter) AddPremium(id string) {
	l.premiumMu.Lock()
	l.premium[id] = struct{}{}
	l.premiumMu.Unlock()
}

// RemovePremium returns id to the standard tier.
func (l *Limiter) RemovePremium(id string) {
	l.premiumMu.Lock()
	delete(l.premium, id)
	l.premiumMu.Unlock()
}

func (l *Limiter) IsPremium(id string) bool {
	l.premiumMu.RLock()
	defer l.premiumMu.RUnlock()
	_, ok := l.premium[id]
	return ok
}

// ClearCaller wipes a caller's ledger record and any ban. Premium status is
// not touched.
func (l *Limiter) ClearCaller(id string) {
	l.ledger.removeCaller(id)
}

// CallerStats is a read-only usage snapshot for one caller.
type CallerStats struct {
	CallerID    string
	MinuteCount int
	HourCount   int
	Quota       Quota
	Violations  float64
	Premium     bool
	Banned      bool
	BanExpiry   time.Time
}

func (l *Limiter) CallerStats(id string, now time.Time) CallerStats {
	st := CallerStats{
		CallerID: id,
		Premium:  l.IsPremium(id),
		Quota:    l.quotaFor(id),
	}
	if exp, banned := l.ledger.peekBan(id, now); banned {
		st.Banned = true
		st.BanExpiry = exp
	}
	if rec, ok := l.ledger.peek(id); ok {
		rec.mu.Lock()
		st.HourCount = countSince(rec.stamps, now.Add(-hourWindow))
		st.MinuteCount = countSince(rec.stamps, now.Add(-minuteWindow))
		st.Violations = rec.violations
		rec.mu.Unlock()
	}
	return st
}

// GlobalStats is a read-only snapshot across all callers.
type GlobalStats struct {
	MinuteCount    int
	HourCount      int
	Quota          Quota
	TrackedCallers int
	ActiveBans     int
}

func (l *Limiter) GlobalStats(now time.Time) GlobalStats {
	st := GlobalStats{Quota: l.policy.Global}

	g := &l.ledger.global
	g.mu.Lock()
	st.HourCount = countSince(g.stamps, now.Add(-hourWindow))
	st.MinuteCount = countSince(g.stamps, now.Add(-minuteWindow))
	g.mu.Unlock()

	l.ledger.mu.Lock()
	st.TrackedCallers = len(l.ledger.callers)
	for _, exp := range l.ledger.bans {
		if now.Before(exp) {
			st.ActiveBans++
		}
	}
	l.ledger.mu.Unlock()
	return st
}

// Sweep runs one reclamation pass immediately.
func (l *Limiter) Sweep(now time.Time) SweepStats {
	return l.ledger.sweep(now)
}

// Run executes the periodic sweep until ctx is cancelled. The period is
// wall-clock fixed, independent of request traffic. Call in its own
// goroutine.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			st := l.Sweep(now)
			if l.onSweep != nil {
				l.onSweep(st)
			}
		}
	}
}

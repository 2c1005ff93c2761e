package ratelimit

import (
	"sync"
	"time"
)

// callerRecord holds one caller's sliding-window history and violation
// state. Each record carries its own lock so checks for different callers
// never contend.
type callerRecord struct {
	mu         sync.Mutex
	stamps     []time.Time // ascending, pruned lazily to the trailing hour
	violations float64
	gone       bool // set when the record is removed from the map
}

// globalRecord is the singleton window over all admitted requests.
type globalRecord struct {
	mu     sync.Mutex
	stamps []time.Time
}

// ledger owns all mutable rate-limiting state. It knows nothing about
// quotas or tiers; policy lives in Limiter.
//
// Lock order: ledger.mu is never acquired while a record lock is held, and
// the global lock only ever nests inside a caller lock.
type ledger struct {
	mu      sync.Mutex
	callers map[string]*callerRecord
	bans    map[string]time.Time
	global  globalRecord
}

func newLedger() *ledger {
	return &ledger{
		callers: make(map[string]*callerRecord),
		bans:    make(map[string]time.Time),
	}
}

// lockedCaller returns the record for id with its lock held, creating the
// record on a caller's first request. A sweep or admin clear can evict a
// record between the map lookup and the lock, so retry until a live record
// is locked.
func (ld *ledger) lockedCaller(id string) *callerRecord {
	for {
		ld.mu.Lock()
		rec, ok := ld.callers[id]
		if !ok {
			rec = &callerRecord{}
			ld.callers[id] = rec
		}
		ld.mu.Unlock()

		rec.mu.Lock()
		if !rec.gone {
			return rec
		}
		rec.mu.Unlock()
	}
}

// peek returns the record for id without creating one.
func (ld *ledger) peek(id string) (*callerRecord, bool) {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	rec, ok := ld.callers[id]
	return rec, ok
}

func (ld *ledger) setBan(id string, expiry time.Time) {
	ld.mu.Lock()
	ld.bans[id] = expiry
	ld.mu.Unlock()
}

func (ld *ledger) clearBan(id string) {
	ld.mu.Lock()
	delete(ld.bans, id)
	ld.mu.Unlock()
}

// banUntil reports whether id is banned at now. An expired entry is void
// and removed as a side effect.
func (ld *ledger) banUntil(id string, now time.Time) (time.Time, bool) {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	exp, ok := ld.bans[id]
	if !ok {
		return time.Time{}, false
	}
	if !now.Before(exp) {
		delete(ld.bans, id)
		return time.Time{}, false
	}
	return exp, true
}

// peekBan is banUntil without the expired-entry cleanup, for read-only
// snapshots.
func (ld *ledger) peekBan(id string, now time.Time) (time.Time, bool) {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	exp, ok := ld.bans[id]
	if !ok || !now.Before(exp) {
		return time.Time{}, false
	}
	return exp, true
}

// removeCaller drops the caller's record and any ban, banned or not.
func (ld *ledger) removeCaller(id string) {
	ld.mu.Lock()
	if rec, ok := ld.callers[id]; ok {
		rec.mu.Lock()
		rec.gone = true
		rec.stamps = nil
		rec.violations = 0
		rec.mu.Unlock()
		delete(ld.callers, id)
	}
	delete(ld.bans, id)
	ld.mu.Unlock()
}

// SweepStats summarizes one reclamation pass.
type SweepStats struct {
	EvictedCallers int
	ExpiredBans    int
	TrackedCallers int // remaining after the pass
	ActiveBans     int
	Elapsed        time.Duration
}

// sweep prunes every record to the trailing hour, evicts records that are
// empty and violation-free, and drops expired bans. Idempotent: a second
// pass with no intervening requests changes nothing.
func (ld *ledger) sweep(now time.Time) SweepStats {
	start := time.Now()
	horizon := now.Add(-hourWindow)
	var st SweepStats

	ld.mu.Lock()
	for id, rec := range ld.callers {
		rec.mu.Lock()
		rec.stamps = trimOlderThan(rec.stamps, horizon)
		dead := len(rec.stamps) == 0 && rec.violations == 0
		if dead {
			rec.gone = true
		}
		rec.mu.Unlock()
		if dead {
			delete(ld.callers, id)
			st.EvictedCallers++
		}
	}
	for id, exp := range ld.bans {
		if !now.Before(exp) {
			delete(ld.bans, id)
			st.ExpiredBans++
		}
	}
	st.TrackedCallers = len(ld.callers)
	st.ActiveBans = len(ld.bans)
	ld.mu.Unlock()

	ld.global.mu.Lock()
	ld.global.stamps = trimOlderThan(ld.global.stamps, horizon)
	ld.global.mu.Unlock()

	st.Elapsed = time.Since(start)
	return st
}

// trimOlderThan drops timestamps at or before horizon. Stamps are appended
// in order, so everything after the first survivor stays. The survivors are
// copied to the front of the backing array so evicted entries do not stay
// pinned.
func trimOlderThan(stamps []time.Time, horizon time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(horizon) {
		i++
	}
	if i == 0 {
		return stamps
	}
	n := copy(stamps, stamps[i:])
	return stamps[:n]
}

// countSince counts timestamps strictly after horizon. Assumes ascending
// order, so it scans backward from the newest entry.
func countSince(stamps []time.Time, horizon time.Time) int {
	n := 0
	for i := len(stamps) - 1; i >= 0; i-- {
		if !stamps[i].After(horizon) {
			break
		}
		n++
	}
	return n
}

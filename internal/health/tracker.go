// Package health implements the per-(canonical model, provider) circuit
// breaker and latency tracking that feeds the provider selector.
package health

import (
	"sync"
	"time"
)

// State is one of the three circuit-breaker states.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Score maps a state to the 0/1/2 gauge convention used by the
// HealthScore metrics sink (open=0, half_open=1, closed=2).
func (s State) Score() float64 {
	switch s {
	case StateOpen:
		return 0
	case StateHalfOpen:
		return 1
	case StateClosed:
		return 2
	default:
		return 0
	}
}

// Config holds the circuit-breaker thresholds. All fields have the
// defaults from SPEC_FULL §5.2 when zero-valued via NewTracker.
type Config struct {
	FailureThreshold    int
	SuccessThreshold    int
	RecoveryTimeout     time.Duration
	SlowResponseMS      float64
	SlowResponseLimit   int
	LatencyRingSize     int
}

// DefaultConfig returns the spec-mandated defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:  5,
		SuccessThreshold:  3,
		RecoveryTimeout:   300 * time.Second,
		SlowResponseMS:    30_000,
		SlowResponseLimit: 3,
		LatencyRingSize:   100,
	}
}

// View is a point-in-time snapshot of one (canonical, provider) entry,
// returned by Snapshot.
type View struct {
	State             State
	Successes         int64
	Failures          int64
	AverageLatencyMS  float64
	HasLatency        bool
	LastSuccess       time.Time
	LastFailure       time.Time
	SlowResponseCount int
}

// entry is the mutable state for one (canonical, provider) pair. Each
// entry has its own lock so the hot path (IsAvailable/RecordSuccess/
// RecordFailure) never contends across unrelated pairs.
type entry struct {
	mu sync.Mutex

	state State

	failureCount      int
	successCount      int
	slowResponseCount int

	lastFailureTime time.Time

	ring     []float64
	ringNext int
	ringLen  int

	totalSuccesses int64
	totalFailures  int64
	lastSuccess    time.Time
	lastFailure    time.Time
}

// Tracker is the process-wide health tracker. Safe for concurrent use.
type Tracker struct {
	cfg Config
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry
}

// NewTracker constructs a tracker with the given config (zero-valued
// fields are filled from DefaultConfig). now defaults to time.Now; tests
// may inject a fake clock.
func NewTracker(cfg Config, now func() time.Time) *Tracker {
	d := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = d.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = d.SuccessThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = d.RecoveryTimeout
	}
	if cfg.SlowResponseMS <= 0 {
		cfg.SlowResponseMS = d.SlowResponseMS
	}
	if cfg.SlowResponseLimit <= 0 {
		cfg.SlowResponseLimit = d.SlowResponseLimit
	}
	if cfg.LatencyRingSize <= 0 {
		cfg.LatencyRingSize = d.LatencyRingSize
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{cfg: cfg, now: now, entries: make(map[string]*entry)}
}

func entryKey(canonical, provider string) string {
	return canonical + "\x00" + provider
}

func (t *Tracker) entryFor(canonical, provider string) *entry {
	k := entryKey(canonical, provider)
	t.mu.RLock()
	e, ok := t.entries[k]
	t.mu.RUnlock()
	if ok {
		return e
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok = t.entries[k]; ok {
		return e
	}
	e = &entry{state: StateClosed, ring: make([]float64, 0, t.cfg.LatencyRingSize)}
	t.entries[k] = e
	return e
}

// lookupEntry returns an existing entry without creating one, for the
// optimistic-default read paths (IsAvailable, AverageLatencyMS, SuccessRate).
func (t *Tracker) lookupEntry(canonical, provider string) (*entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[entryKey(canonical, provider)]
	return e, ok
}

// resolveState lazily applies the OPEN -> HALF_OPEN transition when the
// recovery timeout has elapsed. Caller must hold e.mu.
func (t *Tracker) resolveState(e *entry) State {
	if e.state == StateOpen && t.now().Sub(e.lastFailureTime) > t.cfg.RecoveryTimeout {
		e.state = StateHalfOpen
		e.successCount = 0
	}
	return e.state
}

// IsAvailable reports whether the (canonical, provider) pair may be
// called. Unknown pairs default to true — the tracker is optimistic for
// never-seen pairs so new providers are not pre-blocked.
func (t *Tracker) IsAvailable(canonical, provider string) bool {
	e, ok := t.lookupEntry(canonical, provider)
	if !ok {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return t.resolveState(e) != StateOpen
}

// RecordSuccess records a successful call and its latency, applying the
// circuit-breaker and slow-response state machine from SPEC_FULL §5.2.
func (t *Tracker) RecordSuccess(canonical, provider string, latency time.Duration) {
	e := t.entryFor(canonical, provider)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := t.now()
	e.totalSuccesses++
	e.lastSuccess = now
	t.pushLatency(e, latency)

	state := t.resolveState(e)
	latencyMS := float64(latency) / float64(time.Millisecond)
	slow := latencyMS > t.cfg.SlowResponseMS

	switch state {
	case StateHalfOpen:
		// Recovery must not be blocked by slowness: a slow-but-successful
		// response still counts toward success_threshold here.
		e.successCount++
		if e.successCount >= t.cfg.SuccessThreshold {
			e.state = StateClosed
			e.failureCount = 0
			e.successCount = 0
			e.slowResponseCount = 0
			t.resetRing(e)
		}
	case StateClosed:
		if e.failureCount > 0 {
			e.failureCount--
		}
		if slow {
			e.slowResponseCount++
			if e.slowResponseCount >= t.cfg.SlowResponseLimit {
				e.state = StateOpen
				e.lastFailureTime = now
				e.slowResponseCount = 0
			}
		} else {
			e.slowResponseCount = 0
		}
	case StateOpen:
		// Shouldn't normally be reachable (IsAvailable would have blocked
		// the call), but handle it defensively as a half-open success.
		e.state = StateHalfOpen
		e.successCount = 1
	}
}

// RecordFailure records a failed call, applying the circuit-breaker state
// machine from SPEC_FULL §5.2.
func (t *Tracker) RecordFailure(canonical, provider string) {
	e := t.entryFor(canonical, provider)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := t.now()
	e.totalFailures++
	e.lastFailure = now
	e.slowResponseCount = 0

	state := t.resolveState(e)
	switch state {
	case StateHalfOpen:
		e.state = StateOpen
		e.lastFailureTime = now
		e.successCount = 0
	case StateClosed:
		e.failureCount++
		if e.failureCount >= t.cfg.FailureThreshold {
			e.state = StateOpen
			e.lastFailureTime = now
		}
	case StateOpen:
		e.lastFailureTime = now
	}
}

func (t *Tracker) pushLatency(e *entry, latency time.Duration) {
	ms := float64(latency) / float64(time.Millisecond)
	if len(e.ring) == 0 {
		e.ring = make([]float64, t.cfg.LatencyRingSize)
	}
	if e.ringLen < len(e.ring) {
		e.ring[e.ringLen] = ms
		e.ringLen++
	} else {
		e.ring[e.ringNext] = ms
		e.ringNext = (e.ringNext + 1) % len(e.ring)
	}
}

func (t *Tracker) resetRing(e *entry) {
	e.ringLen = 0
	e.ringNext = 0
}

// AverageLatencyMS returns the rolling average latency for a (canonical,
// provider) pair, and false if no samples have been recorded.
func (t *Tracker) AverageLatencyMS(canonical, provider string) (float64, bool) {
	e, ok := t.lookupEntry(canonical, provider)
	if !ok {
		return 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ringLen == 0 {
		return 0, false
	}
	var sum float64
	for i := 0; i < e.ringLen; i++ {
		sum += e.ring[i]
	}
	return sum / float64(e.ringLen), true
}

// SuccessRate returns totalSuccesses / (totalSuccesses + totalFailures),
// and false if neither has ever been recorded.
func (t *Tracker) SuccessRate(canonical, provider string) (float64, bool) {
	e, ok := t.lookupEntry(canonical, provider)
	if !ok {
		return 0, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	total := e.totalSuccesses + e.totalFailures
	if total == 0 {
		return 0, false
	}
	return float64(e.totalSuccesses) / float64(total), true
}

// Snapshot returns a point-in-time view of one (canonical, provider) pair.
func (t *Tracker) Snapshot(canonical, provider string) View {
	e, ok := t.lookupEntry(canonical, provider)
	if !ok {
		return View{State: StateClosed}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	v := View{
		State:             t.resolveState(e),
		Successes:         e.totalSuccesses,
		Failures:          e.totalFailures,
		LastSuccess:       e.lastSuccess,
		LastFailure:       e.lastFailure,
		SlowResponseCount: e.slowResponseCount,
	}
	if e.ringLen > 0 {
		var sum float64
		for i := 0; i < e.ringLen; i++ {
			sum += e.ring[i]
		}
		v.AverageLatencyMS = sum / float64(e.ringLen)
		v.HasLatency = true
	}
	return v
}

// Summary aggregates counts of healthy/degraded/down (canonical,provider)
// pairs across the whole tracker, for the CLI's health subcommand.
// Grounded on original_source's ModelAvailabilityService.get_availability_summary.
type Summary struct {
	Total     int
	Closed    int
	HalfOpen  int
	Open      int
}

// Summary returns an aggregate view across every tracked pair.
func (t *Tracker) Summary() Summary {
	t.mu.RLock()
	entries := make([]*entry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, e)
	}
	t.mu.RUnlock()

	var s Summary
	for _, e := range entries {
		e.mu.Lock()
		state := t.resolveState(e)
		e.mu.Unlock()
		s.Total++
		switch state {
		case StateClosed:
			s.Closed++
		case StateHalfOpen:
			s.HalfOpen++
		case StateOpen:
			s.Open++
		}
	}
	return s
}

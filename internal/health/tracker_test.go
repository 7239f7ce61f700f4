package health

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker() (*Tracker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	tr := NewTracker(DefaultConfig(), clock.now)
	return tr, clock
}

func TestIsAvailableDefaultsTrueForUnknownPair(t *testing.T) {
	tr, _ := newTestTracker()
	if !tr.IsAvailable("m", "A") {
		t.Fatal("expected optimistic default availability for never-seen pair")
	}
}

func TestCircuitOpensAfterFailureThreshold(t *testing.T) {
	tr, _ := newTestTracker()
	for i := 0; i < 5; i++ {
		tr.RecordFailure("m", "A")
	}
	if tr.IsAvailable("m", "A") {
		t.Fatal("expected circuit open after 5 consecutive failures")
	}
	if tr.Snapshot("m", "A").State != StateOpen {
		t.Fatalf("expected state=open, got %s", tr.Snapshot("m", "A").State)
	}
}

func TestCircuitHalfOpensAfterRecoveryTimeout(t *testing.T) {
	tr, clock := newTestTracker()
	for i := 0; i < 5; i++ {
		tr.RecordFailure("m", "A")
	}
	if tr.IsAvailable("m", "A") {
		t.Fatal("expected open immediately after threshold")
	}
	clock.advance(301 * time.Second)
	if !tr.IsAvailable("m", "A") {
		t.Fatal("expected half-open (available) after recovery timeout elapses")
	}
	if tr.Snapshot("m", "A").State != StateHalfOpen {
		t.Fatalf("expected state=half_open, got %s", tr.Snapshot("m", "A").State)
	}
}

func TestHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	tr, clock := newTestTracker()
	for i := 0; i < 5; i++ {
		tr.RecordFailure("m", "A")
	}
	clock.advance(301 * time.Second)
	tr.IsAvailable("m", "A") // trigger half-open transition
	for i := 0; i < 3; i++ {
		tr.RecordSuccess("m", "A", 10*time.Millisecond)
	}
	if tr.Snapshot("m", "A").State != StateClosed {
		t.Fatalf("expected state=closed after 3 successes in half-open, got %s", tr.Snapshot("m", "A").State)
	}
}

func TestHalfOpenReopensOnFailure(t *testing.T) {
	tr, clock := newTestTracker()
	for i := 0; i < 5; i++ {
		tr.RecordFailure("m", "A")
	}
	clock.advance(301 * time.Second)
	tr.IsAvailable("m", "A")
	tr.RecordFailure("m", "A")
	if tr.Snapshot("m", "A").State != StateOpen {
		t.Fatal("expected a failure in half-open to reopen the circuit")
	}
}

func TestSlowResponsesCountTowardRecoveryInHalfOpen(t *testing.T) {
	tr, clock := newTestTracker()
	for i := 0; i < 5; i++ {
		tr.RecordFailure("m", "A")
	}
	clock.advance(301 * time.Second)
	tr.IsAvailable("m", "A")
	// Slow but successful responses must still count toward recovery.
	for i := 0; i < 3; i++ {
		tr.RecordSuccess("m", "A", 45*time.Second)
	}
	if tr.Snapshot("m", "A").State != StateClosed {
		t.Fatal("expected slow-but-successful responses to count toward half-open recovery")
	}
}

func TestSlowResponsesOpenCircuitInClosedState(t *testing.T) {
	tr, _ := newTestTracker()
	for i := 0; i < 3; i++ {
		tr.RecordSuccess("m", "A", 45*time.Second)
	}
	if tr.Snapshot("m", "A").State != StateOpen {
		t.Fatal("expected 3 consecutive slow responses in closed state to open the circuit")
	}
}

func TestFastResponseResetsSlowCounter(t *testing.T) {
	tr, _ := newTestTracker()
	tr.RecordSuccess("m", "A", 45*time.Second)
	tr.RecordSuccess("m", "A", 45*time.Second)
	tr.RecordSuccess("m", "A", 10*time.Millisecond)
	if tr.Snapshot("m", "A").SlowResponseCount != 0 {
		t.Fatal("expected a fast response to reset the slow-response counter")
	}
}

func TestAverageLatencyRollingWindow(t *testing.T) {
	tr, _ := newTestTracker()
	tr.RecordSuccess("m", "A", 10*time.Millisecond)
	tr.RecordSuccess("m", "A", 20*time.Millisecond)
	avg, ok := tr.AverageLatencyMS("m", "A")
	if !ok || avg != 15 {
		t.Fatalf("expected average 15ms, got %v ok=%v", avg, ok)
	}
}

func TestSuccessDecrementsFailureCountInClosed(t *testing.T) {
	tr, _ := newTestTracker()
	tr.RecordFailure("m", "A")
	tr.RecordFailure("m", "A")
	tr.RecordSuccess("m", "A", 10*time.Millisecond)
	for i := 0; i < 4; i++ {
		tr.RecordFailure("m", "A")
	}
	// Net failures applied: 2 + -1(success) + 4 = 5 -> should now be open.
	if tr.Snapshot("m", "A").State != StateOpen {
		t.Fatal("expected failure count net of the intervening success to still reach threshold")
	}
}

func TestIndependentPairsDoNotInterfere(t *testing.T) {
	tr, _ := newTestTracker()
	for i := 0; i < 5; i++ {
		tr.RecordFailure("m", "A")
	}
	if !tr.IsAvailable("m", "B") {
		t.Fatal("expected provider B's circuit to be unaffected by provider A's failures")
	}
}

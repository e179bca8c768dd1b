package request

import (
	"testing"
	"time"
)

func TestBackoffInitialState(t *testing.T) {
	b := NewProviderBackoff(100*time.Millisecond, 5*time.Second)

	failures, next := b.GetState("openai")
	if failures != 0 {
		t.Errorf("expected 0 failures, got %d", failures)
	}
	if !next.IsZero() {
		t.Errorf("expected zero nextAllowed, got %v", next)
	}

	// Wait must not block for an unknown provider
	start := time.Now()
	b.Wait("openai")
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Wait blocked for %v on clean provider", elapsed)
	}
}

func TestBackoffFailureEscalation(t *testing.T) {
	b := NewProviderBackoff(100*time.Millisecond, 5*time.Second)

	b.RecordFailure("genai")
	failures, next1 := b.GetState("genai")
	if failures != 1 {
		t.Errorf("expected 1 failure, got %d", failures)
	}
	if next1.IsZero() {
		t.Error("expected nextAllowed to be set after failure")
	}

	b.RecordFailure("genai")
	failures, next2 := b.GetState("genai")
	if failures != 2 {
		t.Errorf("expected 2 failures, got %d", failures)
	}
	if !next2.After(next1) {
		t.Error("expected delay to grow with repeated failures")
	}
}

func TestBackoffRecovery(t *testing.T) {
	b := NewProviderBackoff(100*time.Millisecond, 5*time.Second)

	b.RecordFailure("genai")
	b.RecordFailure("genai")
	b.RecordSuccess("genai")

	failures, _ := b.GetState("genai")
	if failures != 1 {
		t.Errorf("expected gradual recovery to 1 failure, got %d", failures)
	}

	b.RecordSuccess("genai")
	failures, next := b.GetState("genai")
	if failures != 0 {
		t.Errorf("expected 0 failures after full recovery, got %d", failures)
	}
	if !next.IsZero() {
		t.Error("expected nextAllowed cleared after full recovery")
	}
}

func TestConfigureBackoff(t *testing.T) {
	c := New(newMemCache(), nil, 5*time.Second)

	c.ConfigureBackoff(2*time.Second, 40*time.Second)
	if c.backoff.baseDelay != 2*time.Second || c.backoff.maxDelay != 40*time.Second {
		t.Errorf("configured delays not applied: base %v max %v", c.backoff.baseDelay, c.backoff.maxDelay)
	}

	// Zero values keep the previous bounds
	c.ConfigureBackoff(0, 0)
	if c.backoff.baseDelay != 2*time.Second {
		t.Errorf("zero config overwrote delays: base %v", c.backoff.baseDelay)
	}
}

func TestBackoffDelayCap(t *testing.T) {
	b := NewProviderBackoff(100*time.Millisecond, 1*time.Second)

	for i := 0; i < 20; i++ {
		b.RecordFailure("backend")
	}

	_, next := b.GetState("backend")
	// Cap plus 10% jitter
	limit := time.Now().Add(1100*time.Millisecond + 50*time.Millisecond)
	if next.After(limit) {
		t.Errorf("delay exceeded cap: nextAllowed %v", next)
	}
}

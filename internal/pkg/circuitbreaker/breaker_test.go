package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failingCalls(b *Breaker, n int) int {
	executed := 0
	for i := 0; i < n; i++ {
		b.Execute(context.Background(), func(ctx context.Context) error {
			executed++
			return errBoom
		})
	}
	return executed
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New("test", Config{FailureThreshold: 3, Cooldown: time.Minute})

	executed := failingCalls(b, 3)
	if executed != 3 {
		t.Fatalf("expected 3 executions, got %d", executed)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	// While open, calls fail fast without executing fn.
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		t.Fatal("fn must not run while breaker is open")
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
}

func TestBreakerHalfOpenProbeCloses(t *testing.T) {
	b := New("test", Config{FailureThreshold: 2, Cooldown: 10 * time.Millisecond})
	failingCalls(b, 2)
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	time.Sleep(20 * time.Millisecond)

	// Exactly one probe is allowed; it succeeds and the breaker closes.
	probes := 0
	if err := b.Execute(context.Background(), func(ctx context.Context) error {
		probes++
		return nil
	}); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if probes != 1 {
		t.Fatalf("expected 1 probe, got %d", probes)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after probe success, got %v", b.State())
	}
}

func TestBreakerHalfOpenProbeFailureReopens(t *testing.T) {
	b := New("test", Config{FailureThreshold: 2, Cooldown: 10 * time.Millisecond})
	failingCalls(b, 2)
	time.Sleep(20 * time.Millisecond)

	b.Execute(context.Background(), func(ctx context.Context) error { return errBoom })
	if b.State() != StateOpen {
		t.Fatalf("expected reopen after probe failure, got %v", b.State())
	}
}

func TestBreakerSuccessResetsCounter(t *testing.T) {
	b := New("test", Config{FailureThreshold: 3, Cooldown: time.Minute})
	failingCalls(b, 2)
	b.Execute(context.Background(), func(ctx context.Context) error { return nil })
	failingCalls(b, 2)
	if b.State() != StateClosed {
		t.Fatalf("expected closed, got %v", b.State())
	}
}

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream unavailable")

func failing(context.Context) error { return errUpstream }
func succeeding(context.Context) error { return nil }

// newTestBreaker returns a breaker with a controllable clock.
func newTestBreaker(cfg Config) (*Breaker, *time.Time) {
	b := NewBreaker(cfg)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	return b, &now
}

func trip(t *testing.T, b *Breaker, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := b.Do(context.Background(), failing); !errors.Is(err, errUpstream) {
			t.Fatalf("call %d: want upstream error, got %v", i, err)
		}
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(Config{Name: "llm", MaxFailures: 3})
	trip(t, b, 3)

	if got := b.State(); got != Open {
		t.Fatalf("want open, got %v", got)
	}
	if err := b.Do(context.Background(), succeeding); !errors.Is(err, ErrOpen) {
		t.Fatalf("want ErrOpen, got %v", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(Config{MaxFailures: 3})
	trip(t, b, 2)
	if err := b.Do(context.Background(), succeeding); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	trip(t, b, 2)

	if got := b.State(); got != Closed {
		t.Fatalf("want closed after interleaved success, got %v", got)
	}
}

func TestBreakerProbeClosesAfterCooldown(t *testing.T) {
	t.Parallel()

	b, now := newTestBreaker(Config{MaxFailures: 1, Cooldown: time.Minute})
	trip(t, b, 1)
	if got := b.State(); got != Open {
		t.Fatalf("want open, got %v", got)
	}

	*now = now.Add(2 * time.Minute)
	if got := b.State(); got != HalfOpen {
		t.Fatalf("want half-open after cooldown, got %v", got)
	}
	if err := b.Do(context.Background(), succeeding); err != nil {
		t.Fatalf("probe should run: %v", err)
	}
	if got := b.State(); got != Closed {
		t.Fatalf("want closed after successful probe, got %v", got)
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	t.Parallel()

	b, now := newTestBreaker(Config{MaxFailures: 1, Cooldown: time.Minute})
	trip(t, b, 1)

	*now = now.Add(2 * time.Minute)
	if err := b.Do(context.Background(), failing); !errors.Is(err, errUpstream) {
		t.Fatalf("probe should run and fail: %v", err)
	}
	if got := b.State(); got != Open {
		t.Fatalf("want open after failed probe, got %v", got)
	}
	if err := b.Do(context.Background(), succeeding); !errors.Is(err, ErrOpen) {
		t.Fatalf("want ErrOpen until next cooldown, got %v", err)
	}
}

func TestBreakerReset(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(Config{MaxFailures: 1})
	trip(t, b, 1)
	b.Reset()

	if got := b.State(); got != Closed {
		t.Fatalf("want closed after reset, got %v", got)
	}
	if err := b.Do(context.Background(), succeeding); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()

	cases := map[State]string{
		Closed:   "closed",
		Open:     "open",
		HalfOpen: "half-open",
		State(9): "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

// Package resilience guards calls to upstream model endpoints.
//
// The central type is [Breaker], a circuit breaker that stops hammering a
// chat-completion or embedding endpoint after a run of consecutive failures
// and probes it again once a cool-down has passed. All types are safe for
// concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] when the breaker is open and the
// cool-down has not yet elapsed.
var ErrOpen = errors.New("resilience: breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards every call.
	Closed State = iota

	// Open rejects calls with [ErrOpen] until the cool-down elapses.
	Open

	// HalfOpen lets a single probe call through. Success closes the breaker,
	// failure re-opens it.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds tuning knobs for a [Breaker].
type Config struct {
	// Name labels the breaker in log messages.
	Name string

	// MaxFailures is how many consecutive failures trip the breaker.
	// Default: 5.
	MaxFailures int

	// Cooldown is how long the breaker stays open before allowing a probe.
	// Default: 30s.
	Cooldown time.Duration

	// Logger receives state-transition messages. Defaults to slog.Default().
	Logger *slog.Logger
}

// Breaker trips after consecutive upstream failures and recovers through a
// single successful probe.
type Breaker struct {
	name     string
	maxFails int
	cooldown time.Duration
	log      *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	state    State
	fails    int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a [Breaker], replacing zero-value config fields with
// defaults.
func NewBreaker(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Breaker{
		name:     cfg.Name,
		maxFails: cfg.MaxFailures,
		cooldown: cfg.Cooldown,
		log:      cfg.Logger,
		now:      time.Now,
		state:    Closed,
	}
}

// Do runs fn if the breaker allows it. In the open state it returns [ErrOpen]
// without calling fn. After the cool-down a single probe call is admitted.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	b.mu.Lock()
	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = HalfOpen
		b.probing = false
		b.log.Info("breaker transitioning to half-open", "name", b.name)
		fallthrough
	case HalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrOpen
		}
		b.probing = true
	}
	probe := b.state == HalfOpen
	b.mu.Unlock()

	err := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.recordFailure(probe)
	} else {
		b.recordSuccess(probe)
	}
	return err
}

// recordFailure must be called with b.mu held.
func (b *Breaker) recordFailure(probe bool) {
	b.openedAt = b.now()
	if probe {
		b.state = Open
		b.fails = b.maxFails
		b.probing = false
		b.log.Warn("breaker re-opened after failed probe", "name", b.name)
		return
	}
	b.fails++
	if b.fails >= b.maxFails {
		b.state = Open
		b.log.Warn("breaker opened",
			"name", b.name,
			"consecutive_failures", b.fails)
	}
}

// recordSuccess must be called with b.mu held.
func (b *Breaker) recordSuccess(probe bool) {
	if probe {
		b.state = Closed
		b.probing = false
		b.log.Info("breaker closed after successful probe", "name", b.name)
	}
	b.fails = 0
}

// State reports the breaker's current state. An open breaker whose cool-down
// has elapsed is reported as [HalfOpen]; the transition itself happens on the
// next [Breaker.Do].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker back to [Closed] and clears failure counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.fails = 0
	b.probing = false
	b.log.Info("breaker manually reset", "name", b.name)
}

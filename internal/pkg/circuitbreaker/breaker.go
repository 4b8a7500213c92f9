package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrOpen is returned while the breaker is open; callers fail fast without
// touching the network.
var ErrOpen = errors.New("circuit breaker open")

// State of the breaker.
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
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds breaker thresholds.
type Config struct {
	FailureThreshold int           // consecutive failures before opening
	Cooldown         time.Duration // how long to stay open before probing
	IsFailure        func(error) bool
}

// DefaultConfig opens after 3 consecutive failures for a 5 minute cooldown.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		Cooldown:         5 * time.Minute,
		IsFailure:        func(err error) bool { return err != nil },
	}
}

// Breaker is a per-provider circuit breaker. After FailureThreshold
// consecutive failures it opens for Cooldown; the first request after the
// cooldown is a half-open probe whose outcome closes or re-opens it.
type Breaker struct {
	name string
	cfg  Config

	mu            sync.Mutex
	state         State
	failures      int
	openedAt      time.Time
	probeInFlight bool
}

func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	return &Breaker{name: name, cfg: cfg, state: StateClosed}
}

// Execute runs fn under breaker protection.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn(ctx)
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(b.openedAt) < b.cfg.Cooldown {
			return ErrOpen
		}
		b.setState(StateHalfOpen)
		b.probeInFlight = true
		return nil
	case StateHalfOpen:
		if b.probeInFlight {
			return ErrOpen
		}
		b.probeInFlight = true
		return nil
	}
	return nil
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.probeInFlight = false
		if b.cfg.IsFailure(err) {
			b.failures = b.cfg.FailureThreshold
			b.openedAt = time.Now()
			b.setState(StateOpen)
		} else {
			b.failures = 0
			b.setState(StateClosed)
		}
		return
	}

	if b.cfg.IsFailure(err) {
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.openedAt = time.Now()
			b.setState(StateOpen)
		}
		return
	}
	b.failures = 0
}

func (b *Breaker) setState(next State) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	log.Warn().
		Str("breaker", b.name).
		Str("from", prev.String()).
		Str("to", next.String()).
		Int("consecutive_failures", b.failures).
		Msg("Circuit breaker state changed")
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

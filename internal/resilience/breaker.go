package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/config"
)

// BreakerState is the position of a Breaker.
type BreakerState int

const (
	// StateClosed lets calls through.
	StateClosed BreakerState = iota
	// StateOpen rejects calls until the cool-down elapses.
	StateOpen
	// StateHalfOpen lets a single probe through.
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrBreakerOpen is returned without calling through while the breaker is open.
var ErrBreakerOpen = eris.New("resilience: circuit open")

// Breaker stops calling a dependency after repeated failures and probes it
// again once CoolDown has passed.
type Breaker struct {
	name      string
	threshold int
	coolDown  time.Duration
	counts    func(error) bool

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool

	now func() time.Time
}

// BreakerOption customizes a Breaker.
type BreakerOption func(*Breaker)

// WithFailureFilter sets which errors count toward the threshold. By default
// only retryable errors do, so a 400 from a bad request never opens the circuit.
func WithFailureFilter(fn func(error) bool) BreakerOption {
	return func(b *Breaker) { b.counts = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// NewBreaker creates a closed breaker that opens after threshold consecutive
// counted failures.
func NewBreaker(name string, threshold int, coolDown time.Duration, opts ...BreakerOption) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if coolDown <= 0 {
		coolDown = 30 * time.Second
	}
	b := &Breaker{
		name:      name,
		threshold: threshold,
		coolDown:  coolDown,
		counts:    IsRetryable,
		now:       time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// BreakerFromConfig builds a breaker from the circuit section of the config.
func BreakerFromConfig(name string, cfg config.CircuitConfig, opts ...BreakerOption) *Breaker {
	return NewBreaker(name, cfg.FailureThreshold, time.Duration(cfg.ResetTimeoutSecs)*time.Second, opts...)
}

// Call runs fn unless the breaker is open.
func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := b.acquire(); err != nil {
		return err
	}
	err := fn(ctx)
	b.release(err)
	return err
}

// State reports the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.coolDown {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.coolDown {
			return eris.Wrap(ErrBreakerOpen, b.name)
		}
		b.setState(StateHalfOpen)
		b.probing = true
	case StateHalfOpen:
		if b.probing {
			return eris.Wrap(ErrBreakerOpen, b.name)
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) release(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if err == nil || !b.counts(err) {
		b.failures = 0
		if b.state != StateClosed {
			b.setState(StateClosed)
		}
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.openedAt = b.now()
		b.setState(StateOpen)
	}
}

func (b *Breaker) setState(to BreakerState) {
	if b.state == to {
		return
	}
	zap.L().Info("resilience: breaker state change",
		zap.String("breaker", b.name),
		zap.Stringer("from", b.state),
		zap.Stringer("to", to),
		zap.Int("failures", b.failures),
	)
	b.state = to
}

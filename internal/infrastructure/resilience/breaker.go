package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures a breaker.
type Settings struct {
	// HalfOpenCalls is how many calls a half-open breaker lets through; that many
	// consecutive successes close it again.
	HalfOpenCalls uint32
	// Window is how long a closed breaker accumulates counts before resetting them.
	Window time.Duration
	// Cooldown is how long the breaker stays open.
	Cooldown time.Duration
	// Trip decides, after a failure in the closed state, whether to open.
	Trip func(Counts) bool
	// IsFailure classifies a call error. Defaults to any non-nil error except
	// context cancellation.
	IsFailure func(error) bool
	// OnStateChange observes transitions.
	OnStateChange func(name string, from, to State)
}

// Counts holds the statistics of the current generation.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

// New creates a breaker, filling unset settings with defaults.
func New(name string, settings Settings) *Breaker {
	if settings.HalfOpenCalls == 0 {
		settings.HalfOpenCalls = 1
	}
	if settings.Window == 0 {
		settings.Window = time.Minute
	}
	if settings.Cooldown == 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.Trip == nil {
		settings.Trip = func(c Counts) bool { return c.ConsecutiveFailures > 5 }
	}
	if settings.IsFailure == nil {
		settings.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}
	}

	b := &Breaker{name: name, settings: settings, now: time.Now}
	b.expiry = b.now().Add(settings.Window)
	return b
}

func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refresh(b.now())
}

// Counts returns a copy of the current counts.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Allow reserves a slot for one call. The returned done func must be called with
// the call's error exactly once.
func (b *Breaker) Allow() (done func(error), err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.refresh(b.now()) {
	case StateOpen:
		return nil, ErrCircuitOpen
	case StateHalfOpen:
		if b.counts.Requests >= b.settings.HalfOpenCalls {
			return nil, ErrTooManyRequests
		}
	}

	b.counts.Requests++
	gen := b.generation
	var once sync.Once
	return func(callErr error) {
		once.Do(func() { b.record(gen, callErr) })
	}, nil
}

// Run executes fn if the breaker admits it and records the outcome.
func Run[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	done, err := b.Allow()
	if err != nil {
		return zero, err
	}

	var v T
	defer func() {
		if r := recover(); r != nil {
			done(errors.New("panic"))
			panic(r)
		}
	}()
	v, err = fn(ctx)
	done(err)
	return v, err
}

func (b *Breaker) record(gen uint64, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	state := b.refresh(now)
	if gen != b.generation {
		// the breaker moved on while this call was in flight
		return
	}

	if !b.settings.IsFailure(err) {
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.HalfOpenCalls {
			b.transition(StateClosed, now)
		}
		return
	}

	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0
	switch state {
	case StateClosed:
		if b.settings.Trip(b.counts) {
			b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		b.transition(StateOpen, now)
	}
}

// refresh applies time-based transitions and returns the resulting state.
func (b *Breaker) refresh(now time.Time) State {
	switch b.state {
	case StateClosed:
		if now.After(b.expiry) {
			b.newGeneration()
			b.expiry = now.Add(b.settings.Window)
		}
	case StateOpen:
		if now.After(b.expiry) {
			b.transition(StateHalfOpen, now)
		}
	}
	return b.state
}

func (b *Breaker) transition(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.newGeneration()

	switch to {
	case StateClosed:
		b.expiry = now.Add(b.settings.Window)
	case StateOpen:
		b.expiry = now.Add(b.settings.Cooldown)
	case StateHalfOpen:
		b.expiry = time.Time{}
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}

func (b *Breaker) newGeneration() {
	b.generation++
	b.counts = Counts{}
}

// Set lazily creates one breaker per key (for example per remote host) sharing
// the same settings.
type Set struct {
	prefix   string
	settings Settings

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewSet creates an empty breaker set.
func NewSet(prefix string, settings Settings) *Set {
	return &Set{prefix: prefix, settings: settings, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for key, creating it on first use.
func (s *Set) For(key string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[key]
	if !ok {
		b = New(s.prefix+":"+key, s.settings)
		s.breakers[key] = b
	}
	return b
}

// States snapshots the state of every breaker by key.
func (s *Set) States() map[string]State {
	s.mu.Lock()
	keys := make(map[string]*Breaker, len(s.breakers))
	for k, b := range s.breakers {
		keys[k] = b
	}
	s.mu.Unlock()

	out := make(map[string]State, len(keys))
	for k, b := range keys {
		out[k] = b.State()
	}
	return out
}

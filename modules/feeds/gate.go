package feeds

import (
	"sync"
	"time"
)

// GateOption mutates gate configuration.
type GateOption func(*Gate)

// WithGateClock replaces the time source used for lock expiry.
func WithGateClock(clock func() time.Time) GateOption {
	return func(gate *Gate) {
		if clock != nil {
			gate.clock = clock
		}
	}
}

// Gate holds short-lived per-message locks so only one reaction action runs
// per message inside one cooldown window.
type Gate struct {
	cooldown time.Duration
	clock    func() time.Time

	mu    sync.Mutex
	locks map[MessageKey]time.Time
}

// NewGate creates a gate whose locks expire cooldown after acquisition.
func NewGate(cooldown time.Duration, options ...GateOption) *Gate {
	gate := &Gate{
		cooldown: cooldown,
		clock:    time.Now,
		locks:    make(map[MessageKey]time.Time),
	}
	for _, option := range options {
		option(gate)
	}

	return gate
}

// TryAcquire locks key until now+cooldown and reports whether it was idle.
func (g *Gate) TryAcquire(key MessageKey) bool {
	now := g.clock()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.pruneLocked(now)
	if until, busy := g.locks[key]; busy && now.Before(until) {
		gateDecisions.WithLabelValues("busy").Inc()
		return false
	}
	g.locks[key] = now.Add(g.cooldown)
	gateDecisions.WithLabelValues("accepted").Inc()

	return true
}

// Reset releases every lock.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	clear(g.locks)
}

// Len returns the number of locks that have not been pruned yet.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return len(g.locks)
}

func (g *Gate) pruneLocked(now time.Time) {
	for key, until := range g.locks {
		if !now.Before(until) {
			delete(g.locks, key)
		}
	}
}

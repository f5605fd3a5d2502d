// Package health tracks backend liveness as a one-shot tri-state indicator.
package health

import (
	"context"
	"sync"

	"asasense/internal/logger"
)

// State is the indicator value.
type State int

const (
	// Loading is the initial state until the probe settles.
	Loading State = iota
	// Online means the probe succeeded.
	Online
	// Offline means the probe failed.
	Offline
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Online:
		return "online"
	case Offline:
		return "offline"
	default:
		return "unknown"
	}
}

// Light returns the indicator color for s.
func (s State) Light() string {
	switch s {
	case Online:
		return "green"
	case Offline:
		return "red"
	default:
		return "yellow"
	}
}

// Prober performs one liveness probe. *api.Client satisfies it.
type Prober interface {
	Health(ctx context.Context) error
}

// Indicator probes the backend once and keeps the outcome for its lifetime.
type Indicator struct {
	prober   Prober
	once     sync.Once
	mu       sync.RWMutex
	state    State
	onChange func(State)
}

// NewIndicator returns an indicator in the Loading state.
func NewIndicator(prober Prober) *Indicator {
	return &Indicator{prober: prober, state: Loading}
}

// OnChange registers fn to be called once, when the state leaves Loading.
func (i *Indicator) OnChange(fn func(State)) {
	i.mu.Lock()
	i.onChange = fn
	i.mu.Unlock()
}

// State returns the current value.
func (i *Indicator) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Check runs the probe on the first call and returns the settled state.
// Later calls return the same state without touching the network; concurrent
// callers wait for the first probe to finish.
func (i *Indicator) Check(ctx context.Context) State {
	i.once.Do(func() {
		next := Online
		if err := i.prober.Health(ctx); err != nil {
			logger.Debug("Health probe failed", "error", err)
			next = Offline
		}

		i.mu.Lock()
		i.state = next
		cb := i.onChange
		i.mu.Unlock()

		logger.Debug("Health state settled", "state", next.String())
		if cb != nil {
			cb(next)
		}
	})
	return i.State()
}

// Package usercontext fetches and holds the backend's per-user context blob.
package usercontext

import (
	"context"
	"encoding/json"
	"sync"

	"asasense/internal/logger"
)

// Status tags a Result.
type Status int

const (
	NotFetched Status = iota
	Loading
	Loaded
	Failed
)

func (s Status) String() string {
	switch s {
	case NotFetched:
		return "not_fetched"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the viewer's current content. Data is set only when Loaded and
// Err only when Failed.
type Result struct {
	Status Status
	UserID string
	Data   json.RawMessage
	Err    error
}

// Fetcher retrieves a context blob. *api.Client satisfies it.
type Fetcher interface {
	UserContext(ctx context.Context, userID string) (json.RawMessage, error)
}

// Viewer holds the last fetched context. Only the most recent Fetch may
// update the result; slower earlier fetches are discarded.
type Viewer struct {
	fetcher Fetcher

	mu     sync.RWMutex
	result Result
	seq    uint64
	closed bool
}

// NewViewer returns a viewer in the NotFetched state.
func NewViewer(fetcher Fetcher) *Viewer {
	return &Viewer{fetcher: fetcher}
}

// Result returns the current result.
func (v *Viewer) Result() Result {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.result
}

// Fetch requests the context for userID. The identifier is sent as given,
// even when empty. A failure clears previously loaded data.
func (v *Viewer) Fetch(ctx context.Context, userID string) Result {
	v.mu.Lock()
	if v.closed {
		res := v.result
		v.mu.Unlock()
		return res
	}
	v.seq++
	seq := v.seq
	v.result = Result{Status: Loading, UserID: userID}
	v.mu.Unlock()

	data, err := v.fetcher.UserContext(ctx, userID)

	next := Result{Status: Loaded, UserID: userID, Data: data}
	if err != nil {
		logger.Debug("Context fetch failed", "user_id", userID, "error", err)
		next = Result{Status: Failed, UserID: userID, Err: err}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed || seq != v.seq {
		return next
	}
	v.result = next
	return next
}

// Close stops the viewer from accepting results of in-flight fetches.
func (v *Viewer) Close() {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
}

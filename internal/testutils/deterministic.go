// Package testutils provides deterministic generators and a fake agent
// backend for AsaSense tests.
package testutils

import (
	"fmt"
	"sync"
	"time"
)

// BaseTime is the first value returned by Sequence.Now.
var BaseTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Sequence hands out deterministic IDs and timestamps. It is safe for
// concurrent use.
type Sequence struct {
	mu      sync.Mutex
	ids     uint64
	seconds int64
}

// NewSequence creates a Sequence starting at zero.
func NewSequence() *Sequence {
	return &Sequence{}
}

// UUID returns IDs in UUID v4 format: 00000001-0000-4000-8000-000000000001,
// 00000002-0000-4000-8000-000000000002, ...
func (s *Sequence) UUID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ids++
	return fmt.Sprintf("%08x-0000-4000-8000-%012x", s.ids, s.ids)
}

// Now returns BaseTime plus one second per call, starting at BaseTime+1s.
func (s *Sequence) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seconds++
	return BaseTime.Add(time.Duration(s.seconds) * time.Second)
}

// Reset rewinds both counters.
func (s *Sequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ids = 0
	s.seconds = 0
}

package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/five82/tether/internal/pipeline"
)

// Snapshot represents the latest pipeline status available to the UI.
type Snapshot struct {
	Status        pipeline.Status
	HasStatus     bool
	Buffered      int
	Pending       int
	LastUpdated   time.Time
	LastError     error
	FailedConnect int // consecutive sessions that ended in an error
}

// Connected reports whether a session is live.
func (s Snapshot) Connected() bool {
	return s.Status.State == pipeline.StateConnected
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// Update replaces the stored status. A status carrying an error is recorded as
// a failure; a healthy connected status resets the failure count.
func (s *Store) Update(status pipeline.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevErr := s.snapshot.LastError
	s.snapshot.Status = status
	s.snapshot.HasStatus = true
	s.snapshot.LastUpdated = time.Now()
	switch {
	case status.Err != nil:
		if prevErr == nil || prevErr.Error() != status.Err.Error() {
			s.snapshot.FailedConnect++
		}
		s.snapshot.LastError = status.Err
	case status.State == pipeline.StateConnected:
		s.snapshot.LastError = nil
		s.snapshot.FailedConnect = 0
	}
}

// SetCounts records buffer occupancy and queued render work.
func (s *Store) SetCounts(buffered, pending int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Buffered = buffered
	s.snapshot.Pending = pending
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

package projection

import (
	"slices"
	"sync"

	"github.com/roach88/placesync/internal/clock"
)

// Listener receives published snapshots.
type Listener func(*Snapshot)

// Store holds the last published snapshot and its subscribers.
//
// Publication is change-suppressed: Commit only replaces the snapshot and
// notifies when the candidate differs structurally from the current one.
//
// Thread-safety model:
//   - Snapshot(): safe from any goroutine, including inside a listener
//   - Subscribe/Commit/Reset: safe from any goroutine, but must not be
//     called from inside a listener (delivery is serialized)
//   - the returned unsubscribe func may be called from anywhere
type Store struct {
	clock clock.Clock

	// deliverMu serializes notification so listeners observe
	// snapshots in publication order.
	deliverMu sync.Mutex

	mu        sync.Mutex
	current   *Snapshot
	listeners map[uint64]Listener
	nextID    uint64
}

// NewStore creates a store holding an empty snapshot with no project.
func NewStore(clk clock.Clock) *Store {
	return &Store{
		clock:     clk,
		current:   Empty("", clk.Now()),
		listeners: make(map[uint64]Listener),
	}
}

// Subscribe registers l and immediately calls it with the current snapshot.
// The returned func removes the listener; calling it twice is harmless.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	snap := s.current
	s.mu.Unlock()

	l(snap)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Snapshot returns the current snapshot. Callers must not mutate it.
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Reset replaces the snapshot with an empty one for projectDirectory
// and always notifies.
func (s *Store) Reset(projectDirectory string) {
	s.publish(Empty(projectDirectory, s.clock.Now()), false)
}

// Commit publishes candidate if it differs structurally from the current
// snapshot. Returns false, without notifying, on a no-op.
func (s *Store) Commit(candidate *Snapshot) bool {
	return s.publish(candidate, true)
}

func (s *Store) publish(next *Snapshot, suppressEqual bool) bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	if suppressEqual && Equal(s.current, next) {
		s.mu.Unlock()
		return false
	}
	s.current = next
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	// Deliver in subscription order; re-check membership so a listener
	// removed mid-delivery is not called.
	slices.Sort(ids)
	for _, id := range ids {
		s.mu.Lock()
		l, ok := s.listeners[id]
		s.mu.Unlock()
		if ok {
			l(next)
		}
	}
	return true
}

// ListenerCount returns the number of registered listeners.
func (s *Store) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

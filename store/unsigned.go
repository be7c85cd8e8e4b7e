package store

import (
	"slices"
	"sync"
	"time"

	"github.com/pragma-labs/feed-relayer/hyperlane"
)

type unsignedEntry struct {
	event   *hyperlane.DispatchEvent
	addedAt time.Time
}

// UnsignedCheckpoints holds dispatches waiting for a validator signature,
// keyed by nonce. A removed nonce is tombstoned and never accepted again.
type UnsignedCheckpoints struct {
	mu       sync.RWMutex
	entries  map[uint32]unsignedEntry
	promoted map[uint32]time.Time
	now      func() time.Time
}

func NewUnsignedCheckpoints() *UnsignedCheckpoints {
	return &UnsignedCheckpoints{
		entries:  make(map[uint32]unsignedEntry),
		promoted: make(map[uint32]time.Time),
		now:      time.Now,
	}
}

// Add stores ev under its nonce. It returns false if the nonce was already
// promoted.
func (s *UnsignedCheckpoints) Add(ev *hyperlane.DispatchEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	nonce := ev.Nonce()
	if _, ok := s.promoted[nonce]; ok {
		return false
	}
	s.entries[nonce] = unsignedEntry{event: ev, addedAt: s.now()}
	return true
}

func (s *UnsignedCheckpoints) Get(nonce uint32) (*hyperlane.DispatchEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[nonce]
	return e.event, ok
}

func (s *UnsignedCheckpoints) Contains(nonce uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[nonce]
	return ok
}

// Promoted reports whether nonce was removed after being signed.
func (s *UnsignedCheckpoints) Promoted(nonce uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.promoted[nonce]
	return ok
}

// Remove drops nonce and tombstones it.
func (s *UnsignedCheckpoints) Remove(nonce uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, nonce)
	s.promoted[nonce] = s.now()
}

// Nonces returns a snapshot of the stored nonces in ascending order.
func (s *UnsignedCheckpoints) Nonces() []uint32 {
	s.mu.RLock()
	nonces := make([]uint32, 0, len(s.entries))
	for n := range s.entries {
		nonces = append(nonces, n)
	}
	s.mu.RUnlock()
	slices.Sort(nonces)
	return nonces
}

func (s *UnsignedCheckpoints) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Evict drops entries and tombstones added before cutoff, then the oldest
// entries beyond maxEntries. A maxEntries of zero disables the cap.
func (s *UnsignedCheckpoints) Evict(cutoff time.Time, maxEntries int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for n, e := range s.entries {
		if e.addedAt.Before(cutoff) {
			delete(s.entries, n)
			evicted++
		}
	}
	for n, at := range s.promoted {
		if at.Before(cutoff) {
			delete(s.promoted, n)
		}
	}
	if maxEntries > 0 && len(s.entries) > maxEntries {
		nonces := make([]uint32, 0, len(s.entries))
		for n := range s.entries {
			nonces = append(nonces, n)
		}
		slices.SortFunc(nonces, func(a, b uint32) int {
			return s.entries[a].addedAt.Compare(s.entries[b].addedAt)
		})
		for _, n := range nonces[:len(nonces)-maxEntries] {
			delete(s.entries, n)
			evicted++
		}
	}
	return evicted
}

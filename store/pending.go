package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/pragma-labs/feed-relayer/hyperlane"
)

// MessageIndex answers whether a message id has been signed.
type MessageIndex interface {
	ContainsMessageID(id hyperlane.U256) bool
}

type pendingEntry struct {
	event   *hyperlane.DispatchEvent
	addedAt time.Time
}

// PendingEvents caches dispatches by message id until a signed checkpoint
// for them is observed. While a message id moves to LatestUpdates it may
// briefly be held by both, never by neither.
type PendingEvents struct {
	mu      sync.RWMutex
	entries map[hyperlane.U256]pendingEntry
	now     func() time.Time
}

func NewPendingEvents() *PendingEvents {
	return &PendingEvents{
		entries: make(map[hyperlane.U256]pendingEntry),
		now:     time.Now,
	}
}

// Add caches ev; the last write for a message id wins.
func (s *PendingEvents) Add(ev *hyperlane.DispatchEvent) hyperlane.U256 {
	id := ev.MessageID()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = pendingEntry{event: ev, addedAt: s.now()}
	return id
}

// Take removes and returns the event cached under id.
func (s *PendingEvents) Take(id hyperlane.U256) (*hyperlane.DispatchEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if ok {
		delete(s.entries, id)
	}
	return e.event, ok
}

func (s *PendingEvents) Contains(id hyperlane.U256) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[id]
	return ok
}

func (s *PendingEvents) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Reconcile moves every cached event whose message id is in index into
// updates and returns the moved ids. Events are written to updates before
// they leave the cache, so a moved id is always in one store or both.
func (s *PendingEvents) Reconcile(ctx context.Context, index MessageIndex, updates *LatestUpdates) []hyperlane.U256 {
	s.mu.RLock()
	var moved []*hyperlane.DispatchEvent
	for id, e := range s.entries {
		if index.ContainsMessageID(id) {
			moved = append(moved, e.event)
		}
	}
	s.mu.RUnlock()
	if len(moved) == 0 {
		return nil
	}

	// apply in nonce order so the newest dispatch of a feed wins
	slices.SortFunc(moved, func(a, b *hyperlane.DispatchEvent) int {
		return cmp.Compare(a.Nonce(), b.Nonce())
	})
	now := s.now()
	for _, ev := range moved {
		for _, info := range NewUpdateInfos(ev, now) {
			updates.Put(ctx, info)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]hyperlane.U256, 0, len(moved))
	for _, ev := range moved {
		id := ev.MessageID()
		// a concurrent Add may have replaced the entry
		if e, ok := s.entries[id]; ok && e.event == ev {
			delete(s.entries, id)
		}
		ids = append(ids, id)
	}
	return ids
}

// Evict drops entries added before cutoff, then the oldest entries beyond
// maxEntries. A maxEntries of zero disables the cap.
func (s *PendingEvents) Evict(cutoff time.Time, maxEntries int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, e := range s.entries {
		if e.addedAt.Before(cutoff) {
			delete(s.entries, id)
			evicted++
		}
	}
	if maxEntries > 0 && len(s.entries) > maxEntries {
		ids := make([]hyperlane.U256, 0, len(s.entries))
		for id := range s.entries {
			ids = append(ids, id)
		}
		slices.SortFunc(ids, func(a, b hyperlane.U256) int {
			return s.entries[a].addedAt.Compare(s.entries[b].addedAt)
		})
		for _, id := range ids[:len(ids)-maxEntries] {
			delete(s.entries, id)
			evicted++
		}
	}
	return evicted
}

package store

import (
	"slices"
	"sync"

	"github.com/pragma-labs/feed-relayer/feed"
)

// FeedRegistry mirrors the feed ids registered on the source chain.
type FeedRegistry struct {
	mu    sync.RWMutex
	feeds map[feed.ID]struct{}
}

func NewFeedRegistry() *FeedRegistry {
	return &FeedRegistry{feeds: make(map[feed.ID]struct{})}
}

func (r *FeedRegistry) Add(id feed.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feeds[id] = struct{}{}
}

func (r *FeedRegistry) Remove(id feed.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.feeds, id)
}

func (r *FeedRegistry) Contains(id feed.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.feeds[id]
	return ok
}

func (r *FeedRegistry) IDs() []feed.ID {
	r.mu.RLock()
	ids := make([]feed.ID, 0, len(r.feeds))
	for id := range r.feeds {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.SortFunc(ids, func(a, b feed.ID) int {
		return slices.Compare(a[:], b[:])
	})
	return ids
}

package pubsub

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/pragma-labs/feed-relayer/feed"
	"github.com/pragma-labs/feed-relayer/log"
)

// FeedUpdatedChannelCapacity is the buffer of every Hub subscription.
const FeedUpdatedChannelCapacity = 1024

// FeedsUpdated announces that new calldata can be built for the feeds.
type FeedsUpdated struct {
	FeedIDs []feed.ID `json:"feed_ids"`
	Nonce   uint32    `json:"nonce"`
}

type Broadcaster interface {
	Publish(ctx context.Context, msg FeedsUpdated) error
	Health(ctx context.Context) error
}

// Hub fans messages out to in-process subscribers. A subscriber whose
// buffer is full misses the message.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]chan FeedsUpdated
	nextID uint64
}

var _ Broadcaster = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]chan FeedsUpdated)}
}

// Subscribe returns a channel of updates and a function that cancels the
// subscription and closes the channel.
func (h *Hub) Subscribe() (<-chan FeedsUpdated, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan FeedsUpdated, FeedUpdatedChannelCapacity)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

func (h *Hub) Publish(_ context.Context, msg FeedsUpdated) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- msg:
		default:
			log.GetLogger().WithModule("pubsub").Warn("subscriber is full, dropping feeds update",
				"subscriber", id,
				"nonce", msg.Nonce,
			)
		}
	}
	return nil
}

func (h *Hub) Health(context.Context) error { return nil }

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Multi publishes to every broadcaster and joins their errors.
type Multi []Broadcaster

var _ Broadcaster = Multi(nil)

func (m Multi) Publish(ctx context.Context, msg FeedsUpdated) error {
	var err error
	for _, b := range m {
		err = errors.CombineErrors(err, b.Publish(ctx, msg))
	}
	return err
}

func (m Multi) Health(ctx context.Context) error {
	var err error
	for _, b := range m {
		err = errors.CombineErrors(err, b.Health(ctx))
	}
	return err
}

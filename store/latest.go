package store

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/pragma-labs/feed-relayer/feed"
	"github.com/pragma-labs/feed-relayer/hyperlane"
	"github.com/pragma-labs/feed-relayer/log"
)

// UpdateInfo is the latest correlated update of a feed with the dispatch it
// came from.
type UpdateInfo struct {
	Update         hyperlane.Update `json:"-"`
	Nonce          uint32           `json:"nonce"`
	MessageID      hyperlane.U256   `json:"message_id"`
	EmitterChainID uint32           `json:"emitter_chain_id"`
	EmitterAddress hyperlane.U256   `json:"emitter_address"`
	ReceivedAt     time.Time        `json:"received_at"`
}

// NewUpdateInfos returns one UpdateInfo per update carried by ev.
func NewUpdateInfos(ev *hyperlane.DispatchEvent, receivedAt time.Time) []UpdateInfo {
	infos := make([]UpdateInfo, 0, len(ev.Message.Body.Updates))
	id := ev.MessageID()
	for _, u := range ev.Message.Body.Updates {
		infos = append(infos, UpdateInfo{
			Update:         u,
			Nonce:          ev.Nonce(),
			MessageID:      id,
			EmitterChainID: ev.Message.Header.Origin,
			EmitterAddress: ev.Message.Header.Sender,
			ReceivedAt:     receivedAt,
		})
	}
	return infos
}

type updateInfoJSON struct {
	FeedType   feed.FeedType               `json:"feed_type"`
	SpotMedian *hyperlane.SpotMedianUpdate `json:"spot_median,omitempty"`
}

func (i UpdateInfo) MarshalJSON() ([]byte, error) {
	type plain UpdateInfo
	out := struct {
		plain
		updateInfoJSON
	}{plain: plain(i)}
	switch u := i.Update.(type) {
	case *hyperlane.SpotMedianUpdate:
		out.FeedType, out.SpotMedian = feed.FeedTypeSpotMedian, u
	default:
		return nil, errors.Newf("cannot persist update of type %T", i.Update)
	}
	return json.Marshal(out)
}

func (i *UpdateInfo) UnmarshalJSON(bz []byte) error {
	type plain UpdateInfo
	var in struct {
		plain
		updateInfoJSON
	}
	if err := json.Unmarshal(bz, &in); err != nil {
		return err
	}
	*i = UpdateInfo(in.plain)
	switch in.FeedType {
	case feed.FeedTypeSpotMedian:
		if in.SpotMedian == nil {
			return errors.New("spot median update is missing")
		}
		i.Update = in.SpotMedian
	default:
		return errors.Newf("unsupported feed type %s", in.FeedType)
	}
	return nil
}

// Mirror persists the latest updates outside the process.
type Mirror interface {
	Put(ctx context.Context, id feed.ID, info UpdateInfo) error
	Load(ctx context.Context) (map[feed.ID]UpdateInfo, error)
	Close() error
}

// LatestUpdates is the durable per-feed storage: the last correlated
// update of every feed wins.
type LatestUpdates struct {
	mu         sync.RWMutex
	updates    map[feed.ID]UpdateInfo
	messageIDs map[hyperlane.U256]int
	mirror     Mirror
}

func NewLatestUpdates(mirror Mirror) *LatestUpdates {
	return &LatestUpdates{
		updates:    make(map[feed.ID]UpdateInfo),
		messageIDs: make(map[hyperlane.U256]int),
		mirror:     mirror,
	}
}

// Restore loads the mirrored state, if any.
func (s *LatestUpdates) Restore(ctx context.Context) (int, error) {
	if s.mirror == nil {
		return 0, nil
	}
	loaded, err := s.mirror.Load(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to load mirrored updates")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, info := range loaded {
		s.set(id, info)
	}
	return len(loaded), nil
}

func (s *LatestUpdates) set(id feed.ID, info UpdateInfo) {
	if prev, ok := s.updates[id]; ok {
		if s.messageIDs[prev.MessageID] <= 1 {
			delete(s.messageIDs, prev.MessageID)
		} else {
			s.messageIDs[prev.MessageID]--
		}
	}
	s.updates[id] = info
	s.messageIDs[info.MessageID]++
}

// Put records info as the latest update of its feed. Mirror failures are
// logged and do not fail the write.
func (s *LatestUpdates) Put(ctx context.Context, info UpdateInfo) {
	id := info.Update.FeedID()
	s.mu.Lock()
	s.set(id, info)
	s.mu.Unlock()

	if s.mirror != nil {
		if err := s.mirror.Put(ctx, id, info); err != nil {
			log.GetLogger().WithModule("store").Error("failed to mirror update", err, "feed_id", id.String())
		}
	}
}

func (s *LatestUpdates) Get(id feed.ID) (UpdateInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.updates[id]
	return info, ok
}

// FeedIDs returns the feeds with an update, sorted.
func (s *LatestUpdates) FeedIDs() []feed.ID {
	s.mu.RLock()
	ids := make([]feed.ID, 0, len(s.updates))
	for id := range s.updates {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.SortFunc(ids, func(a, b feed.ID) int {
		return slices.Compare(a[:], b[:])
	})
	return ids
}

func (s *LatestUpdates) ContainsMessageID(id hyperlane.U256) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messageIDs[id] > 0
}

// ReferencesNonce reports whether a latest update came from nonce.
func (s *LatestUpdates) ReferencesNonce(nonce uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, info := range s.updates {
		if info.Nonce == nonce {
			return true
		}
	}
	return false
}

func (s *LatestUpdates) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.updates)
}

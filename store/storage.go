package store

import (
	"context"
	"sync"
	"time"

	"github.com/pragma-labs/feed-relayer/log"
)

const (
	DefaultRetentionTTL        = 24 * time.Hour
	DefaultRetentionMaxEntries = 100000
	DefaultJanitorInterval     = time.Minute
)

// Retention bounds the stores that only grow while validators stay silent.
type Retention struct {
	TTL        time.Duration
	MaxEntries int
	// Every is the janitor period; zero disables the janitor.
	Every time.Duration
}

func DefaultRetention() Retention {
	return Retention{
		TTL:        DefaultRetentionTTL,
		MaxEntries: DefaultRetentionMaxEntries,
		Every:      DefaultJanitorInterval,
	}
}

// Storage bundles every store shared by the indexer, the correlation
// service and the API.
type Storage struct {
	Unsigned   *UnsignedCheckpoints
	Signed     *SignedCheckpoints
	Pending    *PendingEvents
	Latest     *LatestUpdates
	Validators *ValidatorFetchers
	Registry   *FeedRegistry

	retention Retention
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func NewStorage(mirror Mirror, retention Retention) *Storage {
	return &Storage{
		Unsigned:   NewUnsignedCheckpoints(),
		Signed:     NewSignedCheckpoints(),
		Pending:    NewPendingEvents(),
		Latest:     NewLatestUpdates(mirror),
		Validators: NewValidatorFetchers(),
		Registry:   NewFeedRegistry(),
		retention:  retention,
		stopCh:     make(chan struct{}),
	}
}

// StartJanitor evicts expired entries every retention period until ctx is
// done or Close is called.
func (s *Storage) StartJanitor(ctx context.Context) {
	if s.retention.Every <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(s.retention.Every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case now := <-t.C:
				s.Evict(now)
			}
		}
	}()
}

// Evict applies the retention policy as of now. Signed checkpoints backing
// a latest update are kept.
func (s *Storage) Evict(now time.Time) {
	if s.retention.TTL <= 0 && s.retention.MaxEntries <= 0 {
		return
	}
	var cutoff time.Time
	if s.retention.TTL > 0 {
		cutoff = now.Add(-s.retention.TTL)
	}
	unsigned := s.Unsigned.Evict(cutoff, s.retention.MaxEntries)
	pending := s.Pending.Evict(cutoff, s.retention.MaxEntries)
	signed := s.Signed.Evict(cutoff, s.Latest.ReferencesNonce)
	if unsigned+pending+signed > 0 {
		log.GetLogger().WithModule("store").Info("evicted expired entries",
			"unsigned", unsigned,
			"pending", pending,
			"signed", signed,
		)
	}
}

// Close stops the janitor.
func (s *Storage) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

package store

import (
	"slices"
	"sync"

	"github.com/pragma-labs/feed-relayer/checkpoint"
	"github.com/pragma-labs/feed-relayer/hyperlane"
)

// ValidatorFetcher is a validator with the fetcher for its announced storage.
type ValidatorFetcher struct {
	Validator hyperlane.EthAddress
	Location  string
	Fetcher   checkpoint.Fetcher
}

// ValidatorFetchers maps every announced validator to its fetcher. A new
// announcement replaces the previous one.
type ValidatorFetchers struct {
	mu       sync.RWMutex
	fetchers map[hyperlane.EthAddress]ValidatorFetcher
}

func NewValidatorFetchers() *ValidatorFetchers {
	return &ValidatorFetchers{fetchers: make(map[hyperlane.EthAddress]ValidatorFetcher)}
}

func (s *ValidatorFetchers) Add(validator hyperlane.EthAddress, location string, f checkpoint.Fetcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchers[validator] = ValidatorFetcher{Validator: validator, Location: location, Fetcher: f}
}

func (s *ValidatorFetchers) Get(validator hyperlane.EthAddress) (ValidatorFetcher, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vf, ok := s.fetchers[validator]
	return vf, ok
}

// All returns a snapshot ordered by validator address.
func (s *ValidatorFetchers) All() []ValidatorFetcher {
	s.mu.RLock()
	out := make([]ValidatorFetcher, 0, len(s.fetchers))
	for _, vf := range s.fetchers {
		out = append(out, vf)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b ValidatorFetcher) int {
		return slices.Compare(a.Validator[:], b.Validator[:])
	})
	return out
}

func (s *ValidatorFetchers) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fetchers)
}

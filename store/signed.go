package store

import (
	"sync"
	"time"

	"github.com/pragma-labs/feed-relayer/checkpoint"
	"github.com/pragma-labs/feed-relayer/hyperlane"
)

type signedNonce struct {
	byValidator map[hyperlane.EthAddress]*checkpoint.SignedCheckpoint
	addedAt     time.Time
}

// SignedCheckpoints holds the checkpoints fetched from validators, keyed by
// (validator, nonce).
type SignedCheckpoints struct {
	mu         sync.RWMutex
	nonces     map[uint32]*signedNonce
	messageIDs map[hyperlane.U256]int
	now        func() time.Time
}

func NewSignedCheckpoints() *SignedCheckpoints {
	return &SignedCheckpoints{
		nonces:     make(map[uint32]*signedNonce),
		messageIDs: make(map[hyperlane.U256]int),
		now:        time.Now,
	}
}

// Add stores c, replacing any previous checkpoint of the same key.
func (s *SignedCheckpoints) Add(validator hyperlane.EthAddress, nonce uint32, c *checkpoint.SignedCheckpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nonces[nonce]
	if !ok {
		n = &signedNonce{
			byValidator: make(map[hyperlane.EthAddress]*checkpoint.SignedCheckpoint),
			addedAt:     s.now(),
		}
		s.nonces[nonce] = n
	}
	if prev, ok := n.byValidator[validator]; ok {
		s.releaseMessageID(prev.MessageID())
	}
	n.byValidator[validator] = c
	s.messageIDs[c.MessageID()]++
}

func (s *SignedCheckpoints) releaseMessageID(id hyperlane.U256) {
	if s.messageIDs[id] <= 1 {
		delete(s.messageIDs, id)
		return
	}
	s.messageIDs[id]--
}

func (s *SignedCheckpoints) Get(validator hyperlane.EthAddress, nonce uint32) (*checkpoint.SignedCheckpoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nonces[nonce]
	if !ok {
		return nil, false
	}
	c, ok := n.byValidator[validator]
	return c, ok
}

func (s *SignedCheckpoints) Has(validator hyperlane.EthAddress, nonce uint32) bool {
	_, ok := s.Get(validator, nonce)
	return ok
}

// AnySigned reports whether at least one validator signed nonce.
func (s *SignedCheckpoints) AnySigned(nonce uint32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nonces[nonce]
	return ok && len(n.byValidator) > 0
}

// ForNonce returns the checkpoints of nonce signed by any of validators.
func (s *SignedCheckpoints) ForNonce(validators []hyperlane.EthAddress, nonce uint32) map[hyperlane.EthAddress]*checkpoint.SignedCheckpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[hyperlane.EthAddress]*checkpoint.SignedCheckpoint)
	n, ok := s.nonces[nonce]
	if !ok {
		return out
	}
	for _, v := range validators {
		if c, ok := n.byValidator[v]; ok {
			out[v] = c
		}
	}
	return out
}

// ContainsMessageID reports whether any stored checkpoint signs id.
func (s *SignedCheckpoints) ContainsMessageID(id hyperlane.U256) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messageIDs[id] > 0
}

// Len returns the number of stored checkpoints.
func (s *SignedCheckpoints) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, n := range s.nonces {
		total += len(n.byValidator)
	}
	return total
}

func (s *SignedCheckpoints) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces = make(map[uint32]*signedNonce)
	s.messageIDs = make(map[hyperlane.U256]int)
}

// Evict drops nonces first seen before cutoff unless keep reports them as
// still referenced.
func (s *SignedCheckpoints) Evict(cutoff time.Time, keep func(nonce uint32) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for nonce, n := range s.nonces {
		if !n.addedAt.Before(cutoff) || (keep != nil && keep(nonce)) {
			continue
		}
		for _, c := range n.byValidator {
			s.releaseMessageID(c.MessageID())
			evicted++
		}
		delete(s.nonces, nonce)
	}
	return evicted
}

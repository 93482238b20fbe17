package claimgate

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// GuardStore persists the per-actor guard records and the global set of
// consumed unique ids. The engine serializes all mutations; the store's own
// locking exists for the concurrent read-only query surface.
type GuardStore interface {
	// State returns a copy of the actor's guard record. Actors without a
	// record get the zero state (nonce 0, nothing consumed today).
	State(actor common.Address) GuardState

	// IsConsumed reports whether a unique id has ever been consumed.
	IsConsumed(id [32]byte) bool

	// Commit durably applies a successful claim: marks the unique id
	// consumed and replaces the actor's guard record.
	Commit(actor common.Address, id [32]byte, next GuardState)

	// Revert undoes a Commit that was followed by a failed ledger effect:
	// clears the unique id and restores the actor's prior record.
	Revert(actor common.Address, id [32]byte, prev GuardState)
}

// InMemoryGuardStore is a mutex-protected in-memory GuardStore.
//
// Suitable for single-instance deployments where guard state doesn't need to
// survive the process or be shared. Distributed deployments should implement
// GuardStore over a shared backend.
type InMemoryGuardStore struct {
	mu       sync.RWMutex
	actors   map[common.Address]GuardState
	consumed map[[32]byte]bool
}

// NewInMemoryGuardStore creates an empty in-memory guard store.
func NewInMemoryGuardStore() *InMemoryGuardStore {
	return &InMemoryGuardStore{
		actors:   make(map[common.Address]GuardState),
		consumed: make(map[[32]byte]bool),
	}
}

// State returns a copy of the actor's guard record.
func (s *InMemoryGuardStore) State(actor common.Address) GuardState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.actors[actor]
	if !ok {
		return GuardState{DailyConsumed: new(big.Int)}
	}
	if st.DailyConsumed == nil {
		st.DailyConsumed = new(big.Int)
	} else {
		st.DailyConsumed = new(big.Int).Set(st.DailyConsumed)
	}
	return st
}

// IsConsumed reports whether a unique id has ever been consumed.
func (s *InMemoryGuardStore) IsConsumed(id [32]byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consumed[id]
}

// Commit marks the unique id consumed and replaces the actor's record.
func (s *InMemoryGuardStore) Commit(actor common.Address, id [32]byte, next GuardState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next.DailyConsumed == nil {
		next.DailyConsumed = new(big.Int)
	} else {
		next.DailyConsumed = new(big.Int).Set(next.DailyConsumed)
	}
	s.consumed[id] = true
	s.actors[actor] = next
}

// Revert clears the unique id and restores the actor's prior record.
func (s *InMemoryGuardStore) Revert(actor common.Address, id [32]byte, prev GuardState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.consumed, id)
	if prev.Nonce == 0 && prev.LastClaimAt == 0 && prev.DailyBucket == 0 && (prev.DailyConsumed == nil || prev.DailyConsumed.Sign() == 0) {
		delete(s.actors, actor)
		return
	}
	if prev.DailyConsumed == nil {
		prev.DailyConsumed = new(big.Int)
	} else {
		prev.DailyConsumed = new(big.Int).Set(prev.DailyConsumed)
	}
	s.actors[actor] = prev
}

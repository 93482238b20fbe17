package ledger

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrAlreadyRecorded is returned when a purchase id is recorded twice.
var ErrAlreadyRecorded = errors.New("purchase id already recorded")

// ItemRegistry records which actor consumed each purchase id. It is an
// ownership collaborator, not part of the guard state: the engine's dedup set
// already guarantees each id is consumed at most once.
type ItemRegistry struct {
	mu     sync.RWMutex
	owners map[[32]byte]common.Address
}

// NewItemRegistry creates an empty registry.
func NewItemRegistry() *ItemRegistry {
	return &ItemRegistry{owners: make(map[[32]byte]common.Address)}
}

// Record stores the owner of a purchase id.
func (r *ItemRegistry) Record(id [32]byte, owner common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.owners[id]; ok {
		return ErrAlreadyRecorded
	}
	r.owners[id] = owner
	return nil
}

// OwnerOf returns the recorded owner of a purchase id, if any.
func (r *ItemRegistry) OwnerOf(id [32]byte) (common.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[id]
	return owner, ok
}

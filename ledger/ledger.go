// Package ledger defines the value-ledger collaborator the claim engine
// moves value through, plus an in-memory implementation for single-instance
// deployments and tests.
package ledger

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInsufficientBalance is returned when a debit would take a balance
// negative. Implementations must report it without applying any side effects.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Ledger is the narrow interface the claim engine requires of the value
// ledger. Both operations must be all-or-nothing: on error, no balance moved.
// Implementations that call back into the engine must do so with the context
// they received here, or the call cannot be recognized as reentrant.
type Ledger interface {
	// Destroy removes amount from the actor's balance permanently.
	Destroy(ctx context.Context, actor common.Address, amount *big.Int) error

	// MoveFromReserve transfers amount from the reserve account to the actor.
	MoveFromReserve(ctx context.Context, reserve, actor common.Address, amount *big.Int) error

	// BalanceOf returns the current balance of an address.
	BalanceOf(addr common.Address) *big.Int
}

// InMemory is a mutex-protected in-memory Ledger.
type InMemory struct {
	mu       sync.Mutex
	balances map[common.Address]*big.Int
}

// NewInMemory creates an empty in-memory ledger.
func NewInMemory() *InMemory {
	return &InMemory{balances: make(map[common.Address]*big.Int)}
}

// Mint credits amount to an address. Used to seed balances and fund the
// reserve; not part of the Ledger interface the engine sees.
func (l *InMemory) Mint(addr common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(addr, amount)
}

// Destroy removes amount from the actor's balance permanently.
func (l *InMemory) Destroy(_ context.Context, actor common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.debit(actor, amount)
}

// MoveFromReserve transfers amount from the reserve account to the actor.
func (l *InMemory) MoveFromReserve(_ context.Context, reserve, actor common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.debit(reserve, amount); err != nil {
		return err
	}
	l.credit(actor, amount)
	return nil
}

// BalanceOf returns a copy of the current balance of an address.
func (l *InMemory) BalanceOf(addr common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.balances[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (l *InMemory) debit(addr common.Address, amount *big.Int) error {
	b, ok := l.balances[addr]
	if !ok || b.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.balances[addr] = new(big.Int).Sub(b, amount)
	return nil
}

func (l *InMemory) credit(addr common.Address, amount *big.Int) {
	b, ok := l.balances[addr]
	if !ok {
		b = new(big.Int)
	}
	l.balances[addr] = new(big.Int).Add(b, amount)
}

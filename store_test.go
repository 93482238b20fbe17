package claimgate

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestGuardStoreFreshActor(t *testing.T) {
	store := NewInMemoryGuardStore()
	actor := common.HexToAddress("0x0000000000000000000000000000000000000001")

	st := store.State(actor)
	if st.Nonce != 0 || st.LastClaimAt != 0 || st.DailyBucket != 0 {
		t.Errorf("fresh actor state = %+v, want zero", st)
	}
	if st.DailyConsumed == nil || st.DailyConsumed.Sign() != 0 {
		t.Errorf("fresh actor daily consumed = %v, want 0", st.DailyConsumed)
	}
}

func TestGuardStoreCommitAndRevert(t *testing.T) {
	store := NewInMemoryGuardStore()
	actor := common.HexToAddress("0x0000000000000000000000000000000000000001")
	id := [32]byte{1, 2, 3}

	prev := store.State(actor)
	next := GuardState{
		Nonce:         1,
		LastClaimAt:   1000,
		DailyConsumed: big.NewInt(50),
		DailyBucket:   0,
	}
	store.Commit(actor, id, next)

	if !store.IsConsumed(id) {
		t.Error("unique id should be consumed after Commit")
	}
	if got := store.State(actor); got.Nonce != 1 || got.DailyConsumed.Int64() != 50 {
		t.Errorf("state after Commit = %+v", got)
	}

	store.Revert(actor, id, prev)
	if store.IsConsumed(id) {
		t.Error("unique id should be cleared after Revert")
	}
	if got := store.State(actor); got.Nonce != 0 || got.DailyConsumed.Sign() != 0 {
		t.Errorf("state after Revert = %+v", got)
	}
}

func TestGuardStoreRevertRestoresPriorState(t *testing.T) {
	store := NewInMemoryGuardStore()
	actor := common.HexToAddress("0x0000000000000000000000000000000000000001")

	first := [32]byte{1}
	second := [32]byte{2}
	committed := GuardState{Nonce: 1, LastClaimAt: 500, DailyConsumed: big.NewInt(10), DailyBucket: 0}
	store.Commit(actor, first, committed)

	store.Commit(actor, second, GuardState{Nonce: 2, LastClaimAt: 600, DailyConsumed: big.NewInt(30), DailyBucket: 0})
	store.Revert(actor, second, committed)

	if store.IsConsumed(second) {
		t.Error("reverted id should not remain consumed")
	}
	if !store.IsConsumed(first) {
		t.Error("revert of the second claim must not touch the first")
	}
	if got := store.State(actor); got.Nonce != 1 || got.DailyConsumed.Int64() != 10 {
		t.Errorf("state after targeted Revert = %+v", got)
	}
}

func TestGuardStoreStateCopyIsolation(t *testing.T) {
	store := NewInMemoryGuardStore()
	actor := common.HexToAddress("0x0000000000000000000000000000000000000001")
	store.Commit(actor, [32]byte{9}, GuardState{Nonce: 1, DailyConsumed: big.NewInt(5)})

	st := store.State(actor)
	st.DailyConsumed.SetInt64(777)

	if store.State(actor).DailyConsumed.Int64() != 5 {
		t.Error("mutating a returned state leaked into the store")
	}
}

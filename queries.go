package claimgate

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/voucherlabs/claimgate/signing"
)

// Guard-state queries take the pipeline lock, so a claim in flight is
// observed either not at all or fully finalized; the guard state of a claim
// that goes on to fail is never visible. Do not call them from inside a
// Ledger implementation.

// CurrentNonce returns the nonce the actor's next claim must carry.
func (e *Engine) CurrentNonce(actor common.Address) uint64 {
	e.pipeline.Lock()
	defer e.pipeline.Unlock()
	return e.guards.State(actor).Nonce
}

// IsConsumed reports whether a unique id has ever been consumed.
func (e *Engine) IsConsumed(id [32]byte) bool {
	e.pipeline.Lock()
	defer e.pipeline.Unlock()
	return e.guards.IsConsumed(id)
}

// RemainingDailyAllowance returns how much magnitude the actor can still
// claim today. A rolled-over day bucket counts as a full allowance.
func (e *Engine) RemainingDailyAllowance(actor common.Address) *big.Int {
	e.pipeline.Lock()
	defer e.pipeline.Unlock()

	cfg := e.cfg.Snapshot()
	st := e.guards.State(actor)

	if st.DailyConsumed == nil || DayOf(e.clock()) != st.DailyBucket {
		return cfg.MaxDailyPerActor
	}
	remaining := new(big.Int).Sub(cfg.MaxDailyPerActor, st.DailyConsumed)
	if remaining.Sign() < 0 {
		return new(big.Int)
	}
	return remaining
}

// CanClaimNow reports whether the actor's cooldown has elapsed.
func (e *Engine) CanClaimNow(actor common.Address) bool {
	e.pipeline.Lock()
	defer e.pipeline.Unlock()

	cfg := e.cfg.Snapshot()
	if cfg.CooldownSeconds == 0 {
		return true
	}
	st := e.guards.State(actor)
	if st.LastClaimAt == 0 {
		return true
	}
	return e.clock() >= st.LastClaimAt+cfg.CooldownSeconds
}

// Paused reports whether the pipeline is currently rejecting claims.
func (e *Engine) Paused() bool {
	return e.cfg.Paused()
}

// PreviewMessageHash computes the exact digest the off-chain signer must sign
// for the given claim fields under the current domain binding. Side-effect
// free; exists so issuers can reproduce the hash before signing.
func (e *Engine) PreviewMessageHash(
	kind ClaimKind,
	actor common.Address,
	magnitude *big.Int,
	uniqueID [32]byte,
	nonce uint64,
	expiry uint64,
) common.Hash {
	cfg := e.cfg.Snapshot()
	return signing.ClaimDigest(actor, kind.Tag(), magnitude, uniqueID, nonce, expiry, cfg.ChainID, cfg.VerifierAddress)
}

// Package claimgate authorizes and executes value-bearing actions on behalf
// of an actor. Authorization originates off-chain as a signed claim; the
// engine verifies the signature against the configured signer, enforces
// at-most-once consumption and per-actor throughput limits, commits all guard
// state, and only then moves value through the ledger collaborator.
package claimgate

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voucherlabs/claimgate/ledger"
	"github.com/voucherlabs/claimgate/signing"
)

// Clock supplies the current unix time in seconds. Injectable for tests.
type Clock func() uint64

// AuditHook observes finalized claim executions. Hooks run synchronously
// after the claim has finalized and the pipeline lock is released.
type AuditHook func(AuditEvent)

// pipelineToken marks a context as originating inside the value-movement
// step. The ledger receives a context carrying it; any call back into
// Execute with that context is rejected as reentrant.
type pipelineToken struct{}

// Engine runs the claim pipeline: verify -> replay check -> rate check ->
// guard commit -> ledger effect -> audit. Any failure aborts the whole
// operation with zero observable state change.
type Engine struct {
	// pipeline serializes claim processing: one claim runs its entire
	// pipeline to completion before the next begins. The query surface
	// takes the same lock, so mid-pipeline guard state is never visible.
	pipeline sync.Mutex

	cfg    *ConfigStore
	guards GuardStore
	led    ledger.Ledger
	items  *ledger.ItemRegistry
	clock  Clock
	hooks  []AuditHook
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(clock Clock) EngineOption {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithAuditHook registers a hook invoked for every finalized claim.
func WithAuditHook(hook AuditHook) EngineOption {
	return func(e *Engine) {
		e.hooks = append(e.hooks, hook)
	}
}

// WithItemRegistry records purchase ids and their owners on successful
// purchase claims.
func WithItemRegistry(items *ledger.ItemRegistry) EngineOption {
	return func(e *Engine) {
		e.items = items
	}
}

// NewEngine creates an engine over the given configuration, guard store, and
// ledger collaborator.
func NewEngine(cfg *ConfigStore, guards GuardStore, led ledger.Ledger, opts ...EngineOption) *Engine {
	e := &Engine{
		cfg:    cfg,
		guards: guards,
		led:    led,
		clock:  func() uint64 { return uint64(time.Now().Unix()) },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one claim through the full pipeline. Concurrent callers are
// serialized; a nested call from inside the value-movement step is rejected
// with ReentrantCall. On success the actor's nonce has advanced by exactly
// one, the unique id is permanently consumed, and the value movement has
// been applied. On any error nothing changed.
func (e *Engine) Execute(ctx context.Context, claim Claim) (*AuditEvent, error) {
	if ctx.Value(pipelineToken{}) != nil {
		return nil, NewClaimError(ErrCodeReentrantCall, "nested call into the claim pipeline", nil)
	}

	e.pipeline.Lock()
	event, err := e.execute(ctx, claim)
	e.pipeline.Unlock()
	if err != nil {
		return nil, err
	}

	for _, hook := range e.hooks {
		hook(*event)
	}
	return event, nil
}

func (e *Engine) execute(ctx context.Context, claim Claim) (*AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.cfg.Paused() {
		return nil, NewClaimError(ErrCodePaused, "claim processing is paused", nil)
	}

	cfg := e.cfg.Snapshot()
	now := e.clock()

	if err := verifyClaim(cfg, claim, now); err != nil {
		return nil, err
	}

	prev := e.guards.State(claim.Actor)

	if err := checkReplay(e.guards, prev, claim); err != nil {
		return nil, err
	}
	if err := checkRate(cfg, prev, claim.Magnitude, now); err != nil {
		return nil, err
	}

	// Checks-effects-interactions: guard state is committed before the
	// ledger is touched, so a reentrant ledger cannot observe stale guards.
	next := advanceGuardState(prev, claim.Magnitude, now)
	e.guards.Commit(claim.Actor, claim.UniqueID, next)

	effectCtx := context.WithValue(ctx, pipelineToken{}, pipelineToken{})
	var effectErr error
	switch claim.Kind {
	case KindReward:
		effectErr = e.led.MoveFromReserve(effectCtx, cfg.ReserveAddress, claim.Actor, claim.Magnitude)
	default:
		effectErr = e.led.Destroy(effectCtx, claim.Actor, claim.Magnitude)
	}
	if effectErr != nil {
		e.guards.Revert(claim.Actor, claim.UniqueID, prev)
		return nil, NewClaimError(ErrCodeLedgerEffectFailed, effectErr.Error(), nil)
	}

	if claim.Kind == KindPurchase && e.items != nil {
		// Dedup already guarantees this id was never consumed.
		_ = e.items.Record(claim.UniqueID, claim.Actor)
	}

	event := AuditEvent{
		EventID:   uuid.New().String(),
		Kind:      claim.Kind,
		Actor:     claim.Actor,
		Magnitude: new(big.Int).Set(claim.Magnitude),
		UniqueID:  claim.UniqueID,
		Nonce:     claim.Nonce,
		Timestamp: now,
	}
	return &event, nil
}

// verifyClaim checks the signature, its binding to this deployment and
// operation type, and the claim's validity window.
func verifyClaim(cfg Config, claim Claim, now uint64) error {
	if !claim.Kind.Valid() {
		return NewClaimError(ErrCodeInvalidSignature, "unknown claim kind", nil)
	}
	if claim.Magnitude == nil || claim.Magnitude.Sign() <= 0 {
		return NewClaimError(ErrCodeInvalidMagnitude, "claim magnitude must be positive", nil)
	}

	digest := signing.ClaimDigest(
		claim.Actor,
		claim.Kind.Tag(),
		claim.Magnitude,
		claim.UniqueID,
		claim.Nonce,
		claim.Expiry,
		cfg.ChainID,
		cfg.VerifierAddress,
	)
	signer, err := signing.RecoverSigner(digest, claim.Signature)
	if err != nil {
		return NewClaimError(ErrCodeInvalidSignature, err.Error(), nil)
	}
	if signer != cfg.AuthorizedSigner {
		return NewClaimError(ErrCodeInvalidSignature, "signature not produced by the authorized signer", nil)
	}

	if now > claim.Expiry {
		return NewClaimError(ErrCodeExpired, "claim has expired", nil)
	}
	if claim.Expiry > now+cfg.ExpiryWindowSeconds {
		return NewClaimError(ErrCodeExpiryWindowExceeded, "claim expiry exceeds the allowed window", nil)
	}
	return nil
}

// checkReplay enforces at-most-once consumption: the unique id must be
// fresh and the nonce must equal the actor's current counter.
func checkReplay(guards GuardStore, prev GuardState, claim Claim) error {
	if guards.IsConsumed(claim.UniqueID) {
		return NewClaimError(ErrCodeDuplicateClaim, "unique id already consumed", nil)
	}
	if claim.Nonce != prev.Nonce {
		return NewClaimError(ErrCodeNonceMismatch, "claim nonce does not match the actor's current nonce", map[string]interface{}{
			"expected": prev.Nonce,
			"got":      claim.Nonce,
		})
	}
	return nil
}

// checkRate enforces the per-claim cap, the rolling daily cap, and the
// cooldown. When the day bucket has rolled over, the daily counter is
// treated as zero; the actual reset happens at commit time.
func checkRate(cfg Config, prev GuardState, magnitude *big.Int, now uint64) error {
	if magnitude.Cmp(cfg.MaxSingleClaim) > 0 {
		return NewClaimError(ErrCodeSingleCapExceeded, "magnitude exceeds the per-claim maximum", nil)
	}

	consumed := prev.DailyConsumed
	if consumed == nil || DayOf(now) != prev.DailyBucket {
		consumed = new(big.Int)
	}
	if new(big.Int).Add(consumed, magnitude).Cmp(cfg.MaxDailyPerActor) > 0 {
		return NewClaimError(ErrCodeDailyCapExceeded, "magnitude exceeds the actor's remaining daily allowance", nil)
	}

	if cfg.CooldownSeconds > 0 && prev.LastClaimAt > 0 && now < prev.LastClaimAt+cfg.CooldownSeconds {
		return NewClaimError(ErrCodeCooldownActive, "cooldown between claims is still active", map[string]interface{}{
			"nextClaimAt": prev.LastClaimAt + cfg.CooldownSeconds,
		})
	}
	return nil
}

// advanceGuardState computes the post-claim guard record: nonce incremented,
// daily counter accumulated (or reset on bucket rollover), timestamps updated.
func advanceGuardState(prev GuardState, magnitude *big.Int, now uint64) GuardState {
	next := GuardState{
		Nonce:       prev.Nonce + 1,
		LastClaimAt: now,
		DailyBucket: DayOf(now),
	}
	if prev.DailyConsumed != nil && DayOf(now) == prev.DailyBucket {
		next.DailyConsumed = new(big.Int).Add(prev.DailyConsumed, magnitude)
	} else {
		next.DailyConsumed = new(big.Int).Set(magnitude)
	}
	return next
}

package claimgate

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voucherlabs/claimgate/ledger"
	"github.com/voucherlabs/claimgate/signing"
)

// testClock is a settable time source shared with the engine under test.
type testClock struct {
	mu  sync.Mutex
	now uint64
}

func (c *testClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(now uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *testClock) Advance(seconds uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
}

type testHarness struct {
	engine *Engine
	cfg    *ConfigStore
	guards *InMemoryGuardStore
	led    *ledger.InMemory
	items  *ledger.ItemRegistry
	issuer *signing.Issuer
	clock  *testClock

	actor   common.Address
	reserve common.Address
}

const testStart = uint64(1_700_000_000)

func newTestHarness(t *testing.T, mutate func(*Config)) *testHarness {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	issuer := signing.NewIssuer(key)

	reserve := common.HexToAddress("0x00000000000000000000000000000000000000fe")
	cfg := Config{
		AuthorizedSigner:    issuer.Address(),
		ReserveAddress:      reserve,
		MaxSingleClaim:      big.NewInt(1_000),
		MaxDailyPerActor:    big.NewInt(10_000),
		CooldownSeconds:     0,
		ExpiryWindowSeconds: 3600,
		ChainID:             big.NewInt(8453),
		VerifierAddress:     common.HexToAddress("0x00000000000000000000000000000000000000cc"),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	store, err := NewConfigStore(cfg)
	require.NoError(t, err)

	guards := NewInMemoryGuardStore()
	led := ledger.NewInMemory()
	items := ledger.NewItemRegistry()
	clock := &testClock{now: testStart}

	engine := NewEngine(store, guards, led,
		WithClock(clock.Now),
		WithItemRegistry(items),
	)

	actor := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	led.Mint(actor, big.NewInt(1_000_000))
	led.Mint(reserve, big.NewInt(1_000_000))

	return &testHarness{
		engine:  engine,
		cfg:     store,
		guards:  guards,
		led:     led,
		items:   items,
		issuer:  issuer,
		clock:   clock,
		actor:   actor,
		reserve: reserve,
	}
}

// signedClaim produces a fully valid claim for the harness actor with the
// actor's current nonce and an expiry inside the window.
func (h *testHarness) signedClaim(t *testing.T, kind ClaimKind, magnitude int64) Claim {
	t.Helper()
	return h.signedClaimAt(t, kind, magnitude, h.engine.CurrentNonce(h.actor), h.clock.Now()+300)
}

func (h *testHarness) signedClaimAt(t *testing.T, kind ClaimKind, magnitude int64, nonce, expiry uint64) Claim {
	t.Helper()

	claim := Claim{
		Kind:      kind,
		Actor:     h.actor,
		Magnitude: big.NewInt(magnitude),
		UniqueID:  signing.NewUniqueID(),
		Nonce:     nonce,
		Expiry:    expiry,
	}
	h.sign(t, &claim)
	return claim
}

func (h *testHarness) sign(t *testing.T, claim *Claim) {
	t.Helper()
	snapshot := h.cfg.Snapshot()
	digest := signing.ClaimDigest(
		claim.Actor, claim.Kind.Tag(), claim.Magnitude, claim.UniqueID,
		claim.Nonce, claim.Expiry, snapshot.ChainID, snapshot.VerifierAddress,
	)
	sig, err := h.issuer.SignDigest(digest)
	require.NoError(t, err)
	claim.Signature = sig
}

func TestExecutePurchaseSuccess(t *testing.T) {
	h := newTestHarness(t, nil)

	var events []AuditEvent
	h.engine.hooks = append(h.engine.hooks, func(ev AuditEvent) { events = append(events, ev) })

	claim := h.signedClaim(t, KindPurchase, 100)
	event, err := h.engine.Execute(context.Background(), claim)
	require.NoError(t, err)
	require.NotNil(t, event)

	assert.Equal(t, uint64(1), h.engine.CurrentNonce(h.actor))
	assert.True(t, h.engine.IsConsumed(claim.UniqueID))
	assert.Equal(t, big.NewInt(999_900), h.led.BalanceOf(h.actor))

	owner, ok := h.items.OwnerOf(claim.UniqueID)
	require.True(t, ok)
	assert.Equal(t, h.actor, owner)

	require.Len(t, events, 1)
	assert.Equal(t, KindPurchase, events[0].Kind)
	assert.Equal(t, h.actor, events[0].Actor)
	assert.Equal(t, uint64(0), events[0].Nonce)
	assert.NotEmpty(t, events[0].EventID)
}

func TestExecuteRewardMovesFromReserve(t *testing.T) {
	h := newTestHarness(t, nil)

	claim := h.signedClaim(t, KindReward, 250)
	_, err := h.engine.Execute(context.Background(), claim)
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(1_000_250), h.led.BalanceOf(h.actor))
	assert.Equal(t, big.NewInt(999_750), h.led.BalanceOf(h.reserve))
}

// Scenario: a finalized envelope resubmitted unchanged must fail on the
// dedup set, even though the nonce check alone would also reject it.
func TestExecuteResubmitFailsDuplicate(t *testing.T) {
	h := newTestHarness(t, nil)

	claim := h.signedClaim(t, KindReward, 100)
	_, err := h.engine.Execute(context.Background(), claim)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h.engine.CurrentNonce(h.actor))

	_, err = h.engine.Execute(context.Background(), claim)
	assert.Equal(t, ErrCodeDuplicateClaim, ErrorCode(err))

	// Same unique id re-signed with the bumped nonce still hits the dedup set.
	replay := claim
	replay.Nonce = 1
	h.sign(t, &replay)
	_, err = h.engine.Execute(context.Background(), replay)
	assert.Equal(t, ErrCodeDuplicateClaim, ErrorCode(err))
}

func TestExecuteNonceMismatch(t *testing.T) {
	h := newTestHarness(t, nil)

	for _, nonce := range []uint64{1, 5, ^uint64(0)} {
		claim := h.signedClaimAt(t, KindPurchase, 100, nonce, h.clock.Now()+300)
		_, err := h.engine.Execute(context.Background(), claim)
		assert.Equal(t, ErrCodeNonceMismatch, ErrorCode(err), "nonce %d", nonce)
	}
	assert.Equal(t, uint64(0), h.engine.CurrentNonce(h.actor))
}

func TestExecuteRejectsForeignSigner(t *testing.T) {
	h := newTestHarness(t, nil)

	foreignKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	foreign := signing.NewIssuer(foreignKey)

	claim := h.signedClaim(t, KindPurchase, 100)
	snapshot := h.cfg.Snapshot()
	digest := signing.ClaimDigest(
		claim.Actor, claim.Kind.Tag(), claim.Magnitude, claim.UniqueID,
		claim.Nonce, claim.Expiry, snapshot.ChainID, snapshot.VerifierAddress,
	)
	claim.Signature, err = foreign.SignDigest(digest)
	require.NoError(t, err)

	_, err = h.engine.Execute(context.Background(), claim)
	assert.Equal(t, ErrCodeInvalidSignature, ErrorCode(err))
}

func TestExecuteRejectsTamperedFields(t *testing.T) {
	h := newTestHarness(t, nil)

	base := h.signedClaim(t, KindPurchase, 100)

	tampered := base
	tampered.Magnitude = big.NewInt(999)
	_, err := h.engine.Execute(context.Background(), tampered)
	assert.Equal(t, ErrCodeInvalidSignature, ErrorCode(err))

	// A purchase signature must not authorize a reward.
	crossKind := base
	crossKind.Kind = KindReward
	_, err = h.engine.Execute(context.Background(), crossKind)
	assert.Equal(t, ErrCodeInvalidSignature, ErrorCode(err))
}

func TestExecuteExpiry(t *testing.T) {
	h := newTestHarness(t, nil)

	expired := h.signedClaimAt(t, KindPurchase, 100, 0, h.clock.Now()-1)
	_, err := h.engine.Execute(context.Background(), expired)
	assert.Equal(t, ErrCodeExpired, ErrorCode(err))

	// Scenario D: expiry one second past the window fails even though the
	// signature and nonce are valid.
	window := h.cfg.Snapshot().ExpiryWindowSeconds
	tooFar := h.signedClaimAt(t, KindPurchase, 100, 0, h.clock.Now()+window+1)
	_, err = h.engine.Execute(context.Background(), tooFar)
	assert.Equal(t, ErrCodeExpiryWindowExceeded, ErrorCode(err))

	atWindow := h.signedClaimAt(t, KindPurchase, 100, 0, h.clock.Now()+window)
	_, err = h.engine.Execute(context.Background(), atWindow)
	assert.NoError(t, err)
}

func TestExecuteSingleCap(t *testing.T) {
	h := newTestHarness(t, nil)
	max := h.cfg.Snapshot().MaxSingleClaim.Int64()

	over := h.signedClaim(t, KindPurchase, max+1)
	_, err := h.engine.Execute(context.Background(), over)
	assert.Equal(t, ErrCodeSingleCapExceeded, ErrorCode(err))

	at := h.signedClaim(t, KindPurchase, max)
	_, err = h.engine.Execute(context.Background(), at)
	assert.NoError(t, err)
}

// Scenario C: two claims of 600 against a daily cap of 1000; the second
// fails until the day bucket rolls over.
func TestExecuteDailyCapAndRollover(t *testing.T) {
	h := newTestHarness(t, func(cfg *Config) {
		cfg.MaxSingleClaim = big.NewInt(600)
		cfg.MaxDailyPerActor = big.NewInt(1_000)
	})

	first := h.signedClaim(t, KindReward, 600)
	_, err := h.engine.Execute(context.Background(), first)
	require.NoError(t, err)

	second := h.signedClaim(t, KindReward, 600)
	_, err = h.engine.Execute(context.Background(), second)
	assert.Equal(t, ErrCodeDailyCapExceeded, ErrorCode(err))
	assert.Equal(t, big.NewInt(400), h.engine.RemainingDailyAllowance(h.actor))

	// Jump to the first second of the next day bucket.
	h.clock.Set((DayOf(h.clock.Now()) + 1) * SecondsPerDay)
	assert.Equal(t, big.NewInt(1_000), h.engine.RemainingDailyAllowance(h.actor))

	third := h.signedClaim(t, KindReward, 600)
	_, err = h.engine.Execute(context.Background(), third)
	assert.NoError(t, err)
}

// Scenario B: cooldown of 60 seconds between claims for the same actor.
func TestExecuteCooldown(t *testing.T) {
	h := newTestHarness(t, func(cfg *Config) {
		cfg.CooldownSeconds = 60
	})

	first := h.signedClaim(t, KindReward, 100)
	_, err := h.engine.Execute(context.Background(), first)
	require.NoError(t, err)
	assert.False(t, h.engine.CanClaimNow(h.actor))

	h.clock.Advance(30)
	tooSoon := h.signedClaim(t, KindReward, 100)
	_, err = h.engine.Execute(context.Background(), tooSoon)
	assert.Equal(t, ErrCodeCooldownActive, ErrorCode(err))

	h.clock.Advance(31)
	assert.True(t, h.engine.CanClaimNow(h.actor))
	after := h.signedClaim(t, KindReward, 100)
	_, err = h.engine.Execute(context.Background(), after)
	assert.NoError(t, err)
}

func TestExecuteLedgerFailureLeavesNoTrace(t *testing.T) {
	h := newTestHarness(t, nil)

	poor := common.HexToAddress("0x00000000000000000000000000000000000000ab")
	claim := Claim{
		Kind:      KindPurchase,
		Actor:     poor,
		Magnitude: big.NewInt(100),
		UniqueID:  signing.NewUniqueID(),
		Nonce:     0,
		Expiry:    h.clock.Now() + 300,
	}
	h.sign(t, &claim)

	_, err := h.engine.Execute(context.Background(), claim)
	assert.Equal(t, ErrCodeLedgerEffectFailed, ErrorCode(err))
	assert.Equal(t, uint64(0), h.engine.CurrentNonce(poor))
	assert.False(t, h.engine.IsConsumed(claim.UniqueID))

	// Once the ledger condition clears, the identical envelope goes through:
	// no guard state was consumed by the failure.
	h.led.Mint(poor, big.NewInt(100))
	_, err = h.engine.Execute(context.Background(), claim)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), h.engine.CurrentNonce(poor))
}

func TestExecutePaused(t *testing.T) {
	h := newTestHarness(t, nil)
	h.cfg.Pause()

	claim := h.signedClaim(t, KindPurchase, 100)
	_, err := h.engine.Execute(context.Background(), claim)
	assert.Equal(t, ErrCodePaused, ErrorCode(err))
	assert.Equal(t, uint64(0), h.engine.CurrentNonce(h.actor))

	h.cfg.Unpause()
	_, err = h.engine.Execute(context.Background(), claim)
	assert.NoError(t, err)
}

// reentrantLedger calls back into the engine from inside the value-movement
// step, simulating a ledger that re-enters the claim entry point.
type reentrantLedger struct {
	*ledger.InMemory
	engine  *Engine
	nested  Claim
	attempt error
}

func (l *reentrantLedger) MoveFromReserve(ctx context.Context, reserve, actor common.Address, amount *big.Int) error {
	_, l.attempt = l.engine.Execute(ctx, l.nested)
	return l.InMemory.MoveFromReserve(ctx, reserve, actor, amount)
}

func TestExecuteRejectsReentrantCall(t *testing.T) {
	h := newTestHarness(t, nil)

	inner := h.signedClaimAt(t, KindReward, 50, 1, h.clock.Now()+300)
	reentrant := &reentrantLedger{InMemory: h.led, nested: inner}

	engine := NewEngine(h.cfg, h.guards, reentrant, WithClock(h.clock.Now))
	reentrant.engine = engine

	outer := h.signedClaim(t, KindReward, 100)
	_, err := engine.Execute(context.Background(), outer)
	require.NoError(t, err)

	assert.Equal(t, ErrCodeReentrantCall, ErrorCode(reentrant.attempt))
	assert.Equal(t, uint64(1), engine.CurrentNonce(h.actor))
}

// slowLedger delays the value movement so overlapping submissions are
// guaranteed to overlap in time.
type slowLedger struct {
	*ledger.InMemory
	delay time.Duration
}

func (l *slowLedger) Destroy(ctx context.Context, actor common.Address, amount *big.Int) error {
	time.Sleep(l.delay)
	return l.InMemory.Destroy(ctx, actor, amount)
}

// Independent claims submitted concurrently must queue and both finalize;
// only a nested call from inside the pipeline counts as reentrant.
func TestExecuteConcurrentClaimsFromDistinctActors(t *testing.T) {
	h := newTestHarness(t, nil)

	other := common.HexToAddress("0x00000000000000000000000000000000000000ab")
	h.led.Mint(other, big.NewInt(1_000))

	slow := &slowLedger{InMemory: h.led, delay: 50 * time.Millisecond}
	engine := NewEngine(h.cfg, h.guards, slow, WithClock(h.clock.Now))

	first := h.signedClaim(t, KindPurchase, 100)
	second := Claim{
		Kind:      KindPurchase,
		Actor:     other,
		Magnitude: big.NewInt(100),
		UniqueID:  signing.NewUniqueID(),
		Nonce:     0,
		Expiry:    h.clock.Now() + 300,
	}
	h.sign(t, &second)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, claim := range []Claim{first, second} {
		wg.Add(1)
		go func(i int, claim Claim) {
			defer wg.Done()
			_, errs[i] = engine.Execute(context.Background(), claim)
		}(i, claim)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, uint64(1), engine.CurrentNonce(h.actor))
	assert.Equal(t, uint64(1), engine.CurrentNonce(other))
}

// blockingLedger parks inside the value movement until released, then fails.
type blockingLedger struct {
	*ledger.InMemory
	entered chan struct{}
	release chan struct{}
}

func (l *blockingLedger) Destroy(ctx context.Context, actor common.Address, amount *big.Int) error {
	close(l.entered)
	<-l.release
	return ledger.ErrInsufficientBalance
}

// A query issued while a claim's value movement is in flight must never see
// the guard state of a claim that goes on to fail.
func TestExecuteFailedClaimNeverObservableMidFlight(t *testing.T) {
	h := newTestHarness(t, nil)

	blocking := &blockingLedger{
		InMemory: h.led,
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	engine := NewEngine(h.cfg, h.guards, blocking, WithClock(h.clock.Now))

	claim := h.signedClaim(t, KindPurchase, 100)

	done := make(chan error, 1)
	go func() {
		_, err := engine.Execute(context.Background(), claim)
		done <- err
	}()
	<-blocking.entered

	observed := make(chan bool, 1)
	go func() { observed <- engine.IsConsumed(claim.UniqueID) }()

	close(blocking.release)
	assert.Equal(t, ErrCodeLedgerEffectFailed, ErrorCode(<-done))
	assert.False(t, <-observed)
	assert.Equal(t, uint64(0), engine.CurrentNonce(h.actor))
}

func TestExecuteRejectsNonPositiveMagnitude(t *testing.T) {
	h := newTestHarness(t, nil)

	for _, magnitude := range []int64{0, -5} {
		claim := h.signedClaim(t, KindPurchase, magnitude)
		_, err := h.engine.Execute(context.Background(), claim)
		assert.Equal(t, ErrCodeInvalidMagnitude, ErrorCode(err), "magnitude %d", magnitude)
	}
	assert.Equal(t, uint64(0), h.engine.CurrentNonce(h.actor))
}

func TestExecuteNonceStrictlyIncrements(t *testing.T) {
	h := newTestHarness(t, nil)

	for i := uint64(0); i < 5; i++ {
		require.Equal(t, i, h.engine.CurrentNonce(h.actor))
		claim := h.signedClaim(t, KindReward, 10)
		require.Equal(t, i, claim.Nonce)
		_, err := h.engine.Execute(context.Background(), claim)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(5), h.engine.CurrentNonce(h.actor))
}

func TestPreviewMessageHashMatchesIssuerDigest(t *testing.T) {
	h := newTestHarness(t, nil)

	id := signing.NewUniqueID()
	snapshot := h.cfg.Snapshot()
	want := signing.ClaimDigest(
		h.actor, KindReward.Tag(), big.NewInt(123), id, 7, testStart+60,
		snapshot.ChainID, snapshot.VerifierAddress,
	)
	got := h.engine.PreviewMessageHash(KindReward, h.actor, big.NewInt(123), id, 7, testStart+60)
	assert.Equal(t, want, got)
}

func TestDayOfBoundaries(t *testing.T) {
	tests := []struct {
		ts   uint64
		want uint64
	}{
		{0, 0},
		{86399, 0},
		{86400, 1},
		{86401, 1},
		{172800, 2},
	}
	for _, tt := range tests {
		if got := DayOf(tt.ts); got != tt.want {
			t.Errorf("DayOf(%d) = %d, want %d", tt.ts, got, tt.want)
		}
	}
}

package claimgate

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ClaimKind identifies which value-bearing action a claim authorizes.
type ClaimKind string

const (
	// KindPurchase debits and destroys value from the actor's balance.
	KindPurchase ClaimKind = "purchase"
	// KindReward moves value from the reserve to the actor.
	KindReward ClaimKind = "reward"
)

// Operation tags mixed into the signed message so a purchase signature can
// never be replayed as a reward and vice versa.
const (
	tagPurchase byte = 0x01
	tagReward   byte = 0x02
)

// Tag returns the operation tag bound into the claim digest.
func (k ClaimKind) Tag() byte {
	if k == KindReward {
		return tagReward
	}
	return tagPurchase
}

// Valid reports whether the kind is one of the known operation kinds.
func (k ClaimKind) Valid() bool {
	return k == KindPurchase || k == KindReward
}

// Claim is a single-use authorization for one value-bearing action, produced
// and signed off-chain by the authorized signer. Immutable once created;
// consumed at most once on successful execution.
type Claim struct {
	Kind      ClaimKind
	Actor     common.Address
	Magnitude *big.Int // price or reward amount
	UniqueID  [32]byte // globally unique per claim slot (purchase id / run id)
	Nonce     uint64   // per-actor strictly increasing counter
	Expiry    uint64   // unix seconds
	Signature []byte   // 65-byte recoverable secp256k1 signature
}

// GuardState is the per-actor replay and rate-limit record. Owned exclusively
// by the guard store; mutated only as a side effect of a successful claim.
type GuardState struct {
	Nonce         uint64
	LastClaimAt   uint64
	DailyConsumed *big.Int
	DailyBucket   uint64
}

// AuditEvent records one finalized claim execution.
type AuditEvent struct {
	EventID   string         `json:"eventId"`
	Kind      ClaimKind      `json:"kind"`
	Actor     common.Address `json:"actor"`
	Magnitude *big.Int       `json:"magnitude"`
	UniqueID  [32]byte       `json:"uniqueId"`
	Nonce     uint64         `json:"nonce"`
	Timestamp uint64         `json:"timestamp"`
}

// SecondsPerDay is the width of a daily rate-limit bucket.
const SecondsPerDay = 86400

// DayOf maps a unix timestamp to its daily bucket index.
func DayOf(timestamp uint64) uint64 {
	return timestamp / SecondsPerDay
}

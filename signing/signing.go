// Package signing implements the claim message format shared by the off-chain
// authorizer and the on-service verifier: a keccak256 hash over the packed
// claim fields and domain tag, wrapped in the standard signed-message prefix,
// signed with a recoverable secp256k1 signature.
package signing

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the expected length of a recoverable signature (r, s, v).
const SignatureLength = 65

// ClaimDigest computes the digest the authorized signer signs for one claim.
//
// The packed message is, in fixed field order: actor (20 bytes), magnitude
// (32 bytes), uniqueId (32 bytes), nonce (32 bytes), expiry (32 bytes),
// chainId (32 bytes), verifier address (20 bytes), operation tag (1 byte).
// The chain id and verifier address bind the signature to one deployment;
// the operation tag binds it to one operation type.
//
// The packed message is keccak256-hashed and then prefixed per the signed
// message convention before recovery, so off-chain signers can produce it
// with a plain personal-sign of the inner hash.
func ClaimDigest(
	actor common.Address,
	opTag byte,
	magnitude *big.Int,
	uniqueID [32]byte,
	nonce uint64,
	expiry uint64,
	chainID *big.Int,
	verifier common.Address,
) common.Hash {
	if magnitude == nil {
		magnitude = new(big.Int)
	}
	if chainID == nil {
		chainID = new(big.Int)
	}

	packed := make([]byte, 0, 20+32*5+20+1)
	packed = append(packed, actor.Bytes()...)
	packed = append(packed, common.LeftPadBytes(magnitude.Bytes(), 32)...)
	packed = append(packed, uniqueID[:]...)
	packed = append(packed, common.LeftPadBytes(new(big.Int).SetUint64(nonce).Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(new(big.Int).SetUint64(expiry).Bytes(), 32)...)
	packed = append(packed, common.LeftPadBytes(chainID.Bytes(), 32)...)
	packed = append(packed, verifier.Bytes()...)
	packed = append(packed, opTag)

	inner := crypto.Keccak256(packed)

	// Standard signed-message prefix: keccak256("\x19Ethereum Signed Message:\n32" + hash)
	prefixed := crypto.Keccak256(append([]byte("\x19Ethereum Signed Message:\n32"), inner...))
	return common.BytesToHash(prefixed)
}

// RecoverSigner recovers the identity that produced a recoverable signature
// over the given digest. Pure: independent of any particular claim type.
//
// Accepts recovery ids in both raw (0/1) and Ethereum (27/28) form.
func RecoverSigner(digest common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", SignatureLength, len(signature))
	}

	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, fmt.Errorf("invalid recovery id %d", signature[64])
	}

	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pub), nil
}

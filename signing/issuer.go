package signing

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Issuer holds the authorizer's ECDSA private key and produces claim
// signatures the verifier will accept. This is the off-chain side of the
// protocol; services that only verify never need an Issuer.
type Issuer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewIssuer creates an issuer from an existing private key.
func NewIssuer(privateKey *ecdsa.PrivateKey) *Issuer {
	return &Issuer{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

// NewIssuerFromHex creates an issuer from a hex-encoded private key
// (with or without a "0x" prefix).
func NewIssuerFromHex(privateKeyHex string) (*Issuer, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return NewIssuer(privateKey), nil
}

// Address returns the signer identity claims issued here recover to.
func (i *Issuer) Address() common.Address {
	return i.address
}

// SignDigest signs a claim digest, returning a 65-byte recoverable signature
// with the recovery id in Ethereum form (27/28).
func (i *Issuer) SignDigest(digest common.Hash) ([]byte, error) {
	signature, err := crypto.Sign(digest.Bytes(), i.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	// Recovery id 0/1 -> 27/28
	signature[64] += 27

	return signature, nil
}

// SignClaim computes the digest for the given claim fields and signs it.
// The resulting signature recovers to the issuer's address for exactly
// those field values and no others.
func (i *Issuer) SignClaim(actor common.Address, opTag byte, magnitude *big.Int, uniqueID [32]byte, nonce, expiry uint64, chainID *big.Int, verifier common.Address) ([]byte, error) {
	digest := ClaimDigest(actor, opTag, magnitude, uniqueID, nonce, expiry, chainID, verifier)
	return i.SignDigest(digest)
}

// NewUniqueID generates a fresh claim slot identifier. Two UUIDv4 values
// give 32 bytes with enough entropy that collisions are not a concern.
func NewUniqueID() [32]byte {
	var id [32]byte
	a := uuid.New()
	b := uuid.New()
	copy(id[:16], a[:])
	copy(id[16:], b[:])
	return id
}

package http

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	claimgate "github.com/voucherlabs/claimgate"
)

// Boundary error codes. These never come out of the core pipeline; they
// cover malformed requests and admin authentication at the HTTP edge.
const (
	errCodeInvalidRequest = "invalid_request"
	errCodeUnauthorized   = "unauthorized"
)

// ClaimRequest is the wire form of a claim envelope. Large integers travel
// as decimal strings, byte fields as 0x-prefixed hex.
type ClaimRequest struct {
	Actor     string `json:"actor"`
	Magnitude string `json:"magnitude"`
	UniqueID  string `json:"uniqueId"`
	Nonce     string `json:"nonce"`
	Expiry    string `json:"expiry"`
	Signature string `json:"signature"`
}

// ToClaim decodes the wire envelope into a core claim of the given kind.
func (r ClaimRequest) ToClaim(kind claimgate.ClaimKind) (claimgate.Claim, error) {
	actor, err := parseAddress(r.Actor)
	if err != nil {
		return claimgate.Claim{}, fmt.Errorf("actor: %w", err)
	}
	magnitude, ok := new(big.Int).SetString(r.Magnitude, 10)
	if !ok {
		return claimgate.Claim{}, fmt.Errorf("invalid magnitude: %s", r.Magnitude)
	}
	uniqueID, err := parseBytes32(r.UniqueID)
	if err != nil {
		return claimgate.Claim{}, fmt.Errorf("uniqueId: %w", err)
	}
	nonce, err := strconv.ParseUint(r.Nonce, 10, 64)
	if err != nil {
		return claimgate.Claim{}, fmt.Errorf("invalid nonce: %s", r.Nonce)
	}
	expiry, err := strconv.ParseUint(r.Expiry, 10, 64)
	if err != nil {
		return claimgate.Claim{}, fmt.Errorf("invalid expiry: %s", r.Expiry)
	}
	signature, err := hexutil.Decode(r.Signature)
	if err != nil {
		return claimgate.Claim{}, fmt.Errorf("signature: %w", err)
	}

	return claimgate.Claim{
		Kind:      kind,
		Actor:     actor,
		Magnitude: magnitude,
		UniqueID:  uniqueID,
		Nonce:     nonce,
		Expiry:    expiry,
		Signature: signature,
	}, nil
}

// ClaimResponse reports one finalized claim execution.
type ClaimResponse struct {
	EventID   string `json:"eventId"`
	Kind      string `json:"kind"`
	Actor     string `json:"actor"`
	Magnitude string `json:"magnitude"`
	UniqueID  string `json:"uniqueId"`
	Nonce     uint64 `json:"nonce"`
	Timestamp uint64 `json:"timestamp"`
}

func newClaimResponse(event *claimgate.AuditEvent) ClaimResponse {
	return ClaimResponse{
		EventID:   event.EventID,
		Kind:      string(event.Kind),
		Actor:     event.Actor.Hex(),
		Magnitude: event.Magnitude.String(),
		UniqueID:  hexutil.Encode(event.UniqueID[:]),
		Nonce:     event.Nonce,
		Timestamp: event.Timestamp,
	}
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error *claimgate.ClaimError `json:"error"`
}

// PreviewRequest carries the claim fields for a message-hash preview.
type PreviewRequest struct {
	Kind      string `json:"kind"`
	Actor     string `json:"actor"`
	Magnitude string `json:"magnitude"`
	UniqueID  string `json:"uniqueId"`
	Nonce     string `json:"nonce"`
	Expiry    string `json:"expiry"`
}

// Admin request bodies.
type (
	SetSignerRequest struct {
		Signer string `json:"signer"`
	}
	SetReserveRequest struct {
		Reserve string `json:"reserve"`
	}
	SetLimitsRequest struct {
		MaxSingleClaim   string `json:"maxSingleClaim"`
		MaxDailyPerActor string `json:"maxDailyPerActor"`
		CooldownSeconds  uint64 `json:"cooldownSeconds"`
	}
	SetExpiryWindowRequest struct {
		Seconds uint64 `json:"seconds"`
	}
)

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address: %s", s)
	}
	return common.HexToAddress(s), nil
}

func parseBytes32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hexutil.Decode(s)
	if err != nil {
		return out, fmt.Errorf("invalid hex: %s", s)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// statusForCode maps pipeline error codes to HTTP status codes.
func statusForCode(code string) int {
	switch code {
	case errCodeInvalidRequest, claimgate.ErrCodeInvalidMagnitude, claimgate.ErrCodeExpired,
		claimgate.ErrCodeExpiryWindowExceeded, claimgate.ErrCodeInvalidAdminParameter:
		return 400
	case claimgate.ErrCodeInvalidSignature:
		return 401
	case claimgate.ErrCodeLedgerEffectFailed:
		return 402
	case errCodeUnauthorized:
		return 403
	case claimgate.ErrCodeNonceMismatch, claimgate.ErrCodeDuplicateClaim:
		return 409
	case claimgate.ErrCodeSingleCapExceeded, claimgate.ErrCodeDailyCapExceeded,
		claimgate.ErrCodeCooldownActive:
		return 429
	case claimgate.ErrCodePaused, claimgate.ErrCodeReentrantCall:
		return 503
	default:
		return 500
	}
}

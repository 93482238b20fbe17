package http

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// claimEnvelopeSchema rejects malformed envelopes before any decoding: every
// field present, integers as decimal strings, byte fields as sized hex.
const claimEnvelopeSchema = `{
	"type": "object",
	"required": ["actor", "magnitude", "uniqueId", "nonce", "expiry", "signature"],
	"additionalProperties": false,
	"properties": {
		"actor":     {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
		"magnitude": {"type": "string", "pattern": "^[0-9]+$"},
		"uniqueId":  {"type": "string", "pattern": "^0x[0-9a-fA-F]{64}$"},
		"nonce":     {"type": "string", "pattern": "^[0-9]+$"},
		"expiry":    {"type": "string", "pattern": "^[0-9]+$"},
		"signature": {"type": "string", "pattern": "^0x[0-9a-fA-F]{130}$"}
	}
}`

var claimEnvelopeLoader = gojsonschema.NewStringLoader(claimEnvelopeSchema)

// validateClaimEnvelope validates a raw request body against the claim
// envelope schema. Returns nil when the body is valid.
func validateClaimEnvelope(body []byte) error {
	result, err := gojsonschema.Validate(claimEnvelopeLoader, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("envelope is not valid JSON: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("invalid envelope: %s", errs[0].String())
		}
		return fmt.Errorf("invalid envelope")
	}
	return nil
}

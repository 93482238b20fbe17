// Package mcp exposes the claim engine's read-only query surface as MCP
// tools, so agent integrations can inspect nonces, allowances, and claim
// status and reproduce claim digests without touching guard state. No
// mutating operation is exposed.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	claimgate "github.com/voucherlabs/claimgate"
)

// NewServer creates an MCP server with the claimgate query tools registered.
func NewServer(engine *claimgate.Engine, name, version string) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    name,
		Version: version,
	}, nil)
	RegisterTools(server, engine)
	return server
}

// RegisterTools adds the claimgate query tools to an existing MCP server.
func RegisterTools(server *mcpsdk.Server, engine *claimgate.Engine) {
	server.AddTool(&mcpsdk.Tool{
		Name:        "actor_status",
		Description: "Current nonce, remaining daily allowance, and cooldown status for an actor address",
		InputSchema: map[string]interface{}{
			"type":     "object",
			"required": []string{"actor"},
			"properties": map[string]interface{}{
				"actor": map[string]interface{}{"type": "string", "description": "0x-prefixed actor address"},
			},
		},
	}, toolHandler(func(args map[string]interface{}) (interface{}, error) {
		actor, err := addressArg(args, "actor")
		if err != nil {
			return nil, err
		}
		return actorStatus(engine, actor), nil
	}))

	server.AddTool(&mcpsdk.Tool{
		Name:        "claim_status",
		Description: "Whether a claim unique id has been consumed",
		InputSchema: map[string]interface{}{
			"type":     "object",
			"required": []string{"uniqueId"},
			"properties": map[string]interface{}{
				"uniqueId": map[string]interface{}{"type": "string", "description": "0x-prefixed 32-byte unique id"},
			},
		},
	}, toolHandler(func(args map[string]interface{}) (interface{}, error) {
		id, err := bytes32Arg(args, "uniqueId")
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"uniqueId": hexutil.Encode(id[:]),
			"consumed": engine.IsConsumed(id),
		}, nil
	}))

	server.AddTool(&mcpsdk.Tool{
		Name:        "preview_claim_hash",
		Description: "Compute the exact digest the authorized signer must sign for a claim",
		InputSchema: map[string]interface{}{
			"type":     "object",
			"required": []string{"kind", "actor", "magnitude", "uniqueId", "nonce", "expiry"},
			"properties": map[string]interface{}{
				"kind":      map[string]interface{}{"type": "string", "enum": []string{"purchase", "reward"}},
				"actor":     map[string]interface{}{"type": "string"},
				"magnitude": map[string]interface{}{"type": "string", "description": "decimal string"},
				"uniqueId":  map[string]interface{}{"type": "string"},
				"nonce":     map[string]interface{}{"type": "string", "description": "decimal string"},
				"expiry":    map[string]interface{}{"type": "string", "description": "unix seconds, decimal string"},
			},
		},
	}, toolHandler(func(args map[string]interface{}) (interface{}, error) {
		return previewHash(engine, args)
	}))
}

// actorStatus gathers the per-actor view exposed by the actor_status tool.
func actorStatus(engine *claimgate.Engine, actor common.Address) map[string]interface{} {
	return map[string]interface{}{
		"actor":                   actor.Hex(),
		"nonce":                   engine.CurrentNonce(actor),
		"remainingDailyAllowance": engine.RemainingDailyAllowance(actor).String(),
		"canClaimNow":             engine.CanClaimNow(actor),
	}
}

func previewHash(engine *claimgate.Engine, args map[string]interface{}) (interface{}, error) {
	kind := claimgate.ClaimKind(stringArg(args, "kind"))
	if !kind.Valid() {
		return nil, fmt.Errorf("kind must be purchase or reward")
	}
	actor, err := addressArg(args, "actor")
	if err != nil {
		return nil, err
	}
	magnitude, ok := new(big.Int).SetString(stringArg(args, "magnitude"), 10)
	if !ok || magnitude.Sign() <= 0 {
		return nil, fmt.Errorf("magnitude must be a positive decimal string")
	}
	id, err := bytes32Arg(args, "uniqueId")
	if err != nil {
		return nil, err
	}
	nonce, err := strconv.ParseUint(stringArg(args, "nonce"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid nonce")
	}
	expiry, err := strconv.ParseUint(stringArg(args, "expiry"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid expiry")
	}

	hash := engine.PreviewMessageHash(kind, actor, magnitude, id, nonce, expiry)
	return map[string]interface{}{"hash": hash.Hex()}, nil
}

// toolHandler adapts a plain args-in, result-out function to the MCP SDK
// handler shape, rendering results as JSON text content.
func toolHandler(fn func(args map[string]interface{}) (interface{}, error)) func(context.Context, *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args := make(map[string]interface{})
		if req.Params.Arguments != nil {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return errorResult(fmt.Errorf("invalid arguments: %w", err)), nil
			}
		}

		result, err := fn(args)
		if err != nil {
			return errorResult(err), nil
		}

		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return errorResult(err), nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{
				&mcpsdk.TextContent{Text: string(payload)},
			},
		}, nil
	}
}

func errorResult(err error) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
	}
}

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func addressArg(args map[string]interface{}, key string) (common.Address, error) {
	s := stringArg(args, key)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid %s address: %q", key, s)
	}
	return common.HexToAddress(s), nil
}

func bytes32Arg(args map[string]interface{}, key string) ([32]byte, error) {
	var out [32]byte
	raw, err := hexutil.Decode(stringArg(args, key))
	if err != nil {
		return out, fmt.Errorf("invalid %s: %w", key, err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("%s must be 32 bytes, got %d", key, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

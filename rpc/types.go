package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"dropforge/core"
	"dropforge/core/catalog"
	"dropforge/core/mintauth"
	"dropforge/core/sampler"
	"dropforge/core/sequence"
)

type groupParams struct {
	Class  string `json:"class"`
	Rarity string `json:"rarity"`
}

func (p groupParams) key() catalog.GroupKey {
	return catalog.GroupKey{Class: p.Class, Rarity: p.Rarity}
}

// ItemResult is the wire form of a resolved catalog template. Payload uses
// JSON's default base64 encoding for byte slices.
type ItemResult struct {
	ID      uint64   `json:"id"`
	Payload []byte   `json:"payload,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

func itemResults(items []catalog.ItemTemplate) []ItemResult {
	out := make([]ItemResult, len(items))
	for i, item := range items {
		out[i] = ItemResult{ID: item.ID, Payload: item.Payload, Tags: item.Tags}
	}
	return out
}

// ReserveResult reports a granted reservation, or the fallback rarities when
// the group had no finalized sequence.
type ReserveResult struct {
	Start    uint64       `json:"start"`
	Count    uint64       `json:"count"`
	Length   uint64       `json:"length"`
	Items    []ItemResult `json:"items,omitempty"`
	Fallback bool         `json:"fallback"`
	Rarities []string     `json:"rarities,omitempty"`
}

// SequenceStatusResult exposes cursor progress for operator audits.
type SequenceStatusResult struct {
	Exists    bool   `json:"exists"`
	Finalized bool   `json:"finalized"`
	Position  uint64 `json:"position"`
	Length    uint64 `json:"length"`
	Expected  uint64 `json:"expected"`
}

// QuotaResult exposes a group's quota record.
type QuotaResult struct {
	Total     uint64 `json:"total"`
	Minted    uint64 `json:"minted"`
	Limited   bool   `json:"limited"`
	Remaining uint64 `json:"remaining"`
}

// MintSubmitResult reports a consumed instruction.
type MintSubmitResult struct {
	Digest    string `json:"digest"`
	Recipient string `json:"recipient"`
	ItemID    uint64 `json:"itemId"`
}

func singleObjectParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected a single params object")
	}
	return json.Unmarshal(req.Params[0], out)
}

func twoParams(req *RPCRequest, first, second interface{}) error {
	if len(req.Params) != 2 {
		return fmt.Errorf("expected two params")
	}
	if err := json.Unmarshal(req.Params[0], first); err != nil {
		return err
	}
	return json.Unmarshal(req.Params[1], second)
}

// writeEngineError maps core sentinel errors onto JSON-RPC error codes and
// HTTP statuses.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, catalog.ErrIndexOutOfRange),
		errors.Is(err, catalog.ErrInvalidGroup),
		errors.Is(err, catalog.ErrNoTemplates),
		errors.Is(err, sequence.ErrZeroExpected),
		errors.Is(err, sequence.ErrZeroCount),
		errors.Is(err, sampler.ErrWeightsMustSumToTotal),
		errors.Is(err, sampler.ErrZeroWeight),
		errors.Is(err, sampler.ErrEmptyValue),
		errors.Is(err, sampler.ErrInvalidClass),
		errors.Is(err, mintauth.ErrInvalidPayload),
		errors.Is(err, mintauth.ErrInvalidChainID),
		errors.Is(err, mintauth.ErrExpired):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), nil)
	case errors.Is(err, sequence.ErrEmptySequence),
		errors.Is(err, sequence.ErrNotInitialized),
		errors.Is(err, sequence.ErrNotFinalized),
		errors.Is(err, sequence.ErrFinalized),
		errors.Is(err, sampler.ErrNoWeights),
		errors.Is(err, core.ErrFallbackRequiresWeights):
		writeError(w, http.StatusConflict, id, codeInvalidRequest, err.Error(), nil)
	case errors.Is(err, catalog.ErrQuotaExhausted):
		writeError(w, http.StatusConflict, id, codeExhausted, err.Error(), nil)
	case errors.Is(err, mintauth.ErrInvalidSignature):
		writeError(w, http.StatusUnauthorized, id, codeUnauthorized, err.Error(), nil)
	case errors.Is(err, mintauth.ErrInvalidNonce),
		errors.Is(err, mintauth.ErrSignatureUsed):
		writeError(w, http.StatusConflict, id, codeDuplicate, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", err.Error())
	}
}

package rpc

import (
	"encoding/hex"
	"net/http"
	"strings"

	"dropforge/core/mintauth"
	"dropforge/crypto"
	"dropforge/observability"
)

// handleMintSubmit expects two params: the instruction object and the hex
// encoded 65-byte signature.
func (s *Server) handleMintSubmit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var (
		ins    mintauth.Instruction
		sigHex string
	)
	if err := twoParams(req, &ins, &sigHex); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected [instruction, signature] params", err.Error())
		return
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(sigHex), "0x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "signature must be hex encoded", err.Error())
		return
	}
	digest, err := s.node.SubmitMintInstruction(ins, sig)
	if err != nil {
		observability.RPCMetrics().RecordMint("rejected")
		writeEngineError(w, req.ID, err)
		return
	}
	observability.RPCMetrics().RecordMint("accepted")
	writeResult(w, req.ID, MintSubmitResult{
		Digest:    "0x" + hex.EncodeToString(digest),
		Recipient: ins.TrimmedRecipient(),
		ItemID:    ins.ItemID,
	})
}

func (s *Server) handleMintCurrentNonce(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, ok := recipientParam(w, req)
	if !ok {
		return
	}
	nonce, err := s.node.MintNonce(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"nonce": nonce})
}

func (s *Server) handleMintIsSignatureUsed(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Digest string `json:"digest"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid signature query", err.Error())
		return
	}
	digest, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(params.Digest), "0x"))
	if err != nil || len(digest) != 32 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "digest must be a 32-byte hex string", nil)
		return
	}
	used, err := s.node.IsSignatureUsed(digest)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"used": used})
}

func (s *Server) handleMintMinted(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, ok := recipientParam(w, req)
	if !ok {
		return
	}
	items, err := s.node.MintedItems(addr)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	if items == nil {
		items = []uint64{}
	}
	writeResult(w, req.ID, map[string]interface{}{"items": items})
}

func (s *Server) handleMintSetAuthority(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Address string `json:"address"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid authority payload", err.Error())
		return
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(params.Address))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid authority address", err.Error())
		return
	}
	if err := s.node.SetMintAuthority(addr); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func recipientParam(w http.ResponseWriter, req *RPCRequest) (crypto.Address, bool) {
	var params struct {
		Recipient string `json:"recipient"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid recipient query", err.Error())
		return crypto.Address{}, false
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(params.Recipient))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid recipient address", err.Error())
		return crypto.Address{}, false
	}
	return addr, true
}

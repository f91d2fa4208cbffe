package rpc

import (
	"errors"
	"net/http"

	"dropforge/core"
	"dropforge/core/sequence"
	"dropforge/observability"
)

func (s *Server) handleSequenceInitialize(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		groupParams
		ExpectedLength uint64 `json:"expectedLength"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid sequence payload", err.Error())
		return
	}
	if err := s.node.InitializeSequence(params.key(), params.ExpectedLength); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleSequenceAppend(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		groupParams
		Indices []uint64 `json:"indices"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid sequence payload", err.Error())
		return
	}
	if err := s.node.AppendSequence(params.key(), params.Indices); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleSequenceFinalize(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params groupParams
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid sequence payload", err.Error())
		return
	}
	if err := s.node.FinalizeSequence(params.key()); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleSequenceStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params groupParams
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid sequence query", err.Error())
		return
	}
	cursor, ok, err := s.node.SequenceStatus(params.key())
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, SequenceStatusResult{
		Exists:    ok,
		Finalized: cursor.Finalized,
		Position:  cursor.Position,
		Length:    uint64(len(cursor.Order)),
		Expected:  cursor.Expected,
	})
}

func (s *Server) handleSequenceReserve(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		groupParams
		Count      uint64  `json:"count"`
		Randomness *uint64 `json:"randomness"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid reserve payload", err.Error())
		return
	}
	group := params.key()
	res, err := s.node.Reserve(group, params.Count)
	if err == nil {
		observability.RPCMetrics().RecordReservation(group.String(), res.Count)
		writeResult(w, req.ID, ReserveResult{
			Start:  res.Start,
			Count:  res.Count,
			Length: res.Length,
			Items:  itemResults(res.Items),
		})
		return
	}
	// No finalized sequence: fall back to the weighted sampler when the
	// caller supplied entropy.
	if errors.Is(err, sequence.ErrNotFinalized) && params.Randomness != nil {
		rarities, fbErr := s.node.FallbackDraw(params.Class, *params.Randomness, params.Count)
		if fbErr != nil {
			if errors.Is(fbErr, core.ErrFallbackRequiresWeights) {
				// Neither path is configured; report the original failure.
				writeEngineError(w, req.ID, err)
				return
			}
			writeEngineError(w, req.ID, fbErr)
			return
		}
		observability.RPCMetrics().RecordFallback(params.Count)
		writeResult(w, req.ID, ReserveResult{
			Count:    params.Count,
			Fallback: true,
			Rarities: rarities,
		})
		return
	}
	writeEngineError(w, req.ID, err)
}

func (s *Server) handleSequenceResolve(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		groupParams
		Start uint64 `json:"start"`
		Count uint64 `json:"count"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid resolve payload", err.Error())
		return
	}
	items, err := s.node.Resolve(params.key(), params.Start, params.Count)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"items": itemResults(items)})
}

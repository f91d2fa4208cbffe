package rpc

import (
	"net/http"

	"dropforge/core/catalog"
)

func (s *Server) handleCatalogAppend(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		groupParams
		Templates []ItemResult `json:"templates"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid catalog payload", err.Error())
		return
	}
	templates := make([]catalog.ItemTemplate, len(params.Templates))
	for i, tpl := range params.Templates {
		templates[i] = catalog.ItemTemplate{ID: tpl.ID, Payload: tpl.Payload, Tags: tpl.Tags}
	}
	indices, err := s.node.AppendCatalog(params.key(), templates)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"indices": indices})
}

func (s *Server) handleCatalogGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		groupParams
		Index uint64 `json:"index"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid catalog query", err.Error())
		return
	}
	item, err := s.node.CatalogItem(params.key(), params.Index)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ItemResult{ID: item.ID, Payload: item.Payload, Tags: item.Tags})
}

func (s *Server) handleCatalogLength(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params groupParams
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid catalog query", err.Error())
		return
	}
	length, err := s.node.CatalogLength(params.key())
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"length": length})
}

func (s *Server) handleCatalogQuota(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params groupParams
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid quota query", err.Error())
		return
	}
	quota, err := s.node.Quota(params.key())
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, QuotaResult{
		Total:     quota.Total,
		Minted:    quota.Minted,
		Limited:   quota.Limited,
		Remaining: quota.Remaining(),
	})
}

func (s *Server) handleCatalogSetQuota(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		groupParams
		Total   uint64 `json:"total"`
		Limited bool   `json:"limited"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid quota payload", err.Error())
		return
	}
	if err := s.node.SetQuota(params.key(), params.Total, params.Limited); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

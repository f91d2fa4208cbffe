package rpc

import (
	"net/http"

	"dropforge/core/sampler"
)

type bucketParam struct {
	Value  string `json:"value"`
	Weight uint64 `json:"weight"`
}

func (s *Server) handleSamplerConfigureWeights(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Class   string        `json:"class"`
		Buckets []bucketParam `json:"buckets"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid weights payload", err.Error())
		return
	}
	buckets := make([]sampler.Bucket, len(params.Buckets))
	for i, bucket := range params.Buckets {
		buckets[i] = sampler.Bucket{Value: bucket.Value, Weight: bucket.Weight}
	}
	if err := s.node.ConfigureWeights(params.Class, buckets); err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"ok": true})
}

func (s *Server) handleSamplerWeights(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params struct {
		Class string `json:"class"`
	}
	if err := singleObjectParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid weights query", err.Error())
		return
	}
	buckets, err := s.node.Weights(params.Class)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	out := make([]bucketParam, len(buckets))
	for i, bucket := range buckets {
		out[i] = bucketParam{Value: bucket.Value, Weight: bucket.Weight}
	}
	writeResult(w, req.ID, map[string]interface{}{"buckets": out})
}

package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dropforge/core"
	"dropforge/observability"
	"dropforge/rpc/middleware"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeDuplicate      = -32010
	codeRateLimited    = -32020
	codeExhausted      = -32030
)

// Server exposes the node's operations over JSON-RPC 2.0. Configuration
// methods require an operator bearer token; everything shares one per-source
// rate limit.
type Server struct {
	node    *core.Node
	logger  *slog.Logger
	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
}

func NewServer(node *core.Node, logger *slog.Logger, auth *middleware.Authenticator, limit middleware.RateLimit) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		node:    node,
		logger:  logger,
		auth:    auth,
		limiter: middleware.NewRateLimiter(limit),
	}
}

// Router returns the HTTP handler serving the RPC endpoint plus the metrics
// and health surfaces.
func (s *Server) Router() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := uuid.NewString()

	source := middleware.ClientID(r)
	if !s.limiter.Allow(source) {
		w.Header().Set("Content-Type", "application/json")
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	recorder.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(recorder, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(recorder, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(recorder, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(recorder, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(recorder, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	s.dispatch(recorder, r, req)

	outcome := "ok"
	if recorder.status >= http.StatusBadRequest {
		outcome = "error"
	}
	observability.RPCMetrics().ObserveRequest(req.Method, outcome, time.Since(started))
	s.logger.Info("rpc request",
		slog.String("requestId", requestID),
		slog.String("method", req.Method),
		slog.String("outcome", outcome),
		slog.Int("status", recorder.status),
		slog.Duration("duration", time.Since(started)),
	)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	switch req.Method {
	// Configuration methods require the operator capability.
	case "catalog_append":
		if !s.requireOperator(w, r, req) {
			return
		}
		s.handleCatalogAppend(w, r, req)
	case "catalog_setQuota":
		if !s.requireOperator(w, r, req) {
			return
		}
		s.handleCatalogSetQuota(w, r, req)
	case "sequence_initialize":
		if !s.requireOperator(w, r, req) {
			return
		}
		s.handleSequenceInitialize(w, r, req)
	case "sequence_append":
		if !s.requireOperator(w, r, req) {
			return
		}
		s.handleSequenceAppend(w, r, req)
	case "sequence_finalize":
		if !s.requireOperator(w, r, req) {
			return
		}
		s.handleSequenceFinalize(w, r, req)
	case "sampler_configureWeights":
		if !s.requireOperator(w, r, req) {
			return
		}
		s.handleSamplerConfigureWeights(w, r, req)
	case "mint_setAuthority":
		if !s.requireOperator(w, r, req) {
			return
		}
		s.handleMintSetAuthority(w, r, req)

	// Consumption and read methods.
	case "catalog_get":
		s.handleCatalogGet(w, r, req)
	case "catalog_length":
		s.handleCatalogLength(w, r, req)
	case "catalog_quota":
		s.handleCatalogQuota(w, r, req)
	case "sequence_status":
		s.handleSequenceStatus(w, r, req)
	case "sequence_reserve":
		s.handleSequenceReserve(w, r, req)
	case "sequence_resolve":
		s.handleSequenceResolve(w, r, req)
	case "sampler_weights":
		s.handleSamplerWeights(w, r, req)

	// Delegated-mint methods.
	case "mint_submitInstruction":
		s.handleMintSubmit(w, r, req)
	case "mint_currentNonce":
		s.handleMintCurrentNonce(w, r, req)
	case "mint_isSignatureUsed":
		s.handleMintIsSignatureUsed(w, r, req)
	case "mint_minted":
		s.handleMintMinted(w, r, req)

	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
}

func (s *Server) requireOperator(w http.ResponseWriter, r *http.Request, req *RPCRequest) bool {
	if s.auth == nil {
		return true
	}
	if err := s.auth.Verify(r.Header.Get("Authorization"), middleware.OperatorScope); err != nil {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "operator authorization required", err.Error())
		return false
	}
	return true
}

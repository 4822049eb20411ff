package gateway

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/harun/arcade/internal/tracing"
)

const maxRequestBytes = 1 << 20

// HTTPHandler serves JSON-RPC over HTTP POST. Every response is 200 with a
// JSON-RPC body, except for non-POST methods.
type HTTPHandler struct {
	router  *RPCRouter
	limiter *Limiter
	logger  zerolog.Logger
}

// NewHTTPHandler wraps router. A nil limiter admits every request.
func NewHTTPHandler(router *RPCRouter, limiter *Limiter, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		router:  router,
		limiter: limiter,
		logger:  logger.With().Str("component", "gateway").Logger(),
	}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	release, rpcErr := h.limiter.Acquire()
	if rpcErr != nil {
		h.write(w, &RPCResponse{JSONRPC: "2.0", Error: rpcErr})
		return
	}
	defer release()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		h.write(w, &RPCResponse{JSONRPC: "2.0", Error: &RPCError{Code: ParseError, Message: "Parse error", Data: err.Error()}})
		return
	}

	req, err := h.router.ParseRequest(body)
	if err != nil {
		resp := &RPCResponse{JSONRPC: "2.0", Error: &RPCError{Code: InvalidRequest, Message: err.Error()}}
		if typed, ok := err.(*RPCError); ok {
			resp.Error = typed
		}
		h.write(w, resp)
		return
	}

	logger := tracing.LoggerFromContext(r.Context(), h.logger)
	resp := h.router.RouteRequest(r.Context(), req)
	if resp.Error != nil {
		logger.Debug().
			Str("method", req.Method).
			Int("code", resp.Error.Code).
			Str("error", resp.Error.Message).
			Msg("RPC call failed")
	} else {
		logger.Debug().Str("method", req.Method).Msg("RPC call handled")
	}
	h.write(w, resp)
}

func (h *HTTPHandler) write(w http.ResponseWriter, resp *RPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error().Err(err).Msg("Failed to write RPC response")
	}
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// reservedPrefix marks method names JSON-RPC 2.0 keeps for itself.
const reservedPrefix = "rpc."

// RPCRouter maps method names to handlers. It is safe for concurrent use;
// methods come and go as plugins load and unload.
type RPCRouter struct {
	mu      sync.RWMutex
	methods map[string]RequestHandler
}

// NewRPCRouter creates an empty router.
func NewRPCRouter() *RPCRouter {
	return &RPCRouter{methods: make(map[string]RequestHandler)}
}

// RegisterMethod installs handler under name, replacing any previous one.
func (r *RPCRouter) RegisterMethod(name string, handler RequestHandler) error {
	switch {
	case handler == nil:
		return fmt.Errorf("handler cannot be nil")
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("method name cannot be empty")
	case strings.HasPrefix(name, reservedPrefix):
		return fmt.Errorf("method name %q uses the reserved %q prefix", name, reservedPrefix)
	}

	r.mu.Lock()
	r.methods[name] = handler
	r.mu.Unlock()
	return nil
}

// UnregisterMethod removes name. Unknown names are ignored.
func (r *RPCRouter) UnregisterMethod(name string) {
	r.mu.Lock()
	delete(r.methods, name)
	r.mu.Unlock()
}

// HasMethod reports whether name is registered.
func (r *RPCRouter) HasMethod(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.methods[name]
	return ok
}

// GetMethods returns the registered names in sorted order.
func (r *RPCRouter) GetMethods() []string {
	r.mu.RLock()
	methods := make([]string, 0, len(r.methods))
	for name := range r.methods {
		methods = append(methods, name)
	}
	r.mu.RUnlock()

	sort.Strings(methods)
	return methods
}

// ParseRequest decodes a JSON-RPC 2.0 request. A missing version defaults to
// 2.0; any other version is rejected.
func (r *RPCRouter) ParseRequest(data []byte) (*RPCRequest, error) {
	var req RPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &RPCError{Code: ParseError, Message: "Parse error", Data: err.Error()}
	}

	switch {
	case req.ID == "":
		return nil, &RPCError{Code: InvalidRequest, Message: "Invalid request: missing id field"}
	case req.Method == "":
		return nil, &RPCError{Code: InvalidRequest, Message: "Invalid request: missing method field"}
	case req.JSONRPC == "":
		req.JSONRPC = "2.0"
	case req.JSONRPC != "2.0":
		return nil, &RPCError{Code: InvalidRequest, Message: fmt.Sprintf("Invalid request: unsupported jsonrpc version %q", req.JSONRPC)}
	}
	return &req, nil
}

// RouteRequest calls the handler for req.Method. Handler errors become
// InternalError unless they wrap an *RPCError, whose code is kept. A panicking
// handler is reported as InternalError rather than taking the server down.
func (r *RPCRouter) RouteRequest(ctx context.Context, req *RPCRequest) *RPCResponse {
	if req == nil {
		return errorResponse("", &RPCError{Code: InvalidRequest, Message: "invalid request"})
	}

	r.mu.RLock()
	handler, ok := r.methods[req.Method]
	r.mu.RUnlock()
	if !ok {
		return errorResponse(req.ID, &RPCError{Code: MethodNotFound, Message: fmt.Sprintf("Method not found: %s", req.Method)})
	}

	params := req.Params
	if params == nil {
		params = map[string]interface{}{}
	}

	result, err := invoke(ctx, handler, params)
	if err != nil {
		var typed *RPCError
		if !errors.As(err, &typed) {
			typed = &RPCError{Code: InternalError, Message: err.Error()}
		}
		return errorResponse(req.ID, typed)
	}
	return &RPCResponse{ID: req.ID, JSONRPC: "2.0", Result: result}
}

func invoke(ctx context.Context, handler RequestHandler, params map[string]interface{}) (result interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result, err = nil, fmt.Errorf("handler panicked: %v", rec)
		}
	}()
	return handler(ctx, params)
}

func errorResponse(id string, rpcErr *RPCError) *RPCResponse {
	return &RPCResponse{ID: id, JSONRPC: "2.0", Error: rpcErr}
}

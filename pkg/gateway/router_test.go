package gateway

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constHandler(v interface{}) RequestHandler {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return v, nil
	}
}

func TestRPCRouter_RegisterMethod(t *testing.T) {
	router := NewRPCRouter()

	require.NoError(t, router.RegisterMethod("arcade.status", constHandler("first")))
	require.NoError(t, router.RegisterMethod("arcade.status", constHandler("second")))
	resp := router.RouteRequest(context.Background(), &RPCRequest{ID: "1", Method: "arcade.status"})
	assert.Equal(t, "second", resp.Result, "a later registration replaces the handler")

	tests := []struct {
		name    string
		method  string
		handler RequestHandler
		wantErr string
	}{
		{name: "nil handler", method: "arcade.x", wantErr: "handler cannot be nil"},
		{name: "empty name", method: " ", handler: constHandler(nil), wantErr: "cannot be empty"},
		{name: "reserved prefix", method: "rpc.discover", handler: constHandler(nil), wantErr: "reserved"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := router.RegisterMethod(tt.method, tt.handler)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.False(t, router.HasMethod(tt.method))
		})
	}
}

func TestRPCRouter_UnregisterMethod(t *testing.T) {
	router := NewRPCRouter()
	require.NoError(t, router.RegisterMethod("arcade.tools.list", constHandler(nil)))

	router.UnregisterMethod("arcade.tools.list")
	router.UnregisterMethod("arcade.unknown")
	assert.False(t, router.HasMethod("arcade.tools.list"))

	resp := router.RouteRequest(context.Background(), &RPCRequest{ID: "1", Method: "arcade.tools.list"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, MethodNotFound, resp.Error.Code)
}

func TestRPCRouter_ParseRequest(t *testing.T) {
	router := NewRPCRouter()

	req, err := router.ParseRequest([]byte(`{"id":"1","method":"arcade.tools.list","params":{"toolkit":"Gmail"}}`))
	require.NoError(t, err)
	assert.Equal(t, "arcade.tools.list", req.Method)
	assert.Equal(t, "Gmail", req.Params["toolkit"])
	assert.Equal(t, "2.0", req.JSONRPC)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantMsg  string
	}{
		{name: "malformed json", body: `{invalid`, wantCode: ParseError, wantMsg: "Parse error"},
		{name: "missing id", body: `{"method":"arcade.status"}`, wantCode: InvalidRequest, wantMsg: "missing id"},
		{name: "missing method", body: `{"id":"1"}`, wantCode: InvalidRequest, wantMsg: "missing method"},
		{name: "wrong version", body: `{"id":"1","method":"arcade.status","jsonrpc":"1.0"}`, wantCode: InvalidRequest, wantMsg: "unsupported jsonrpc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := router.ParseRequest([]byte(tt.body))
			var rpcErr *RPCError
			require.ErrorAs(t, err, &rpcErr)
			assert.Equal(t, tt.wantCode, rpcErr.Code)
			assert.Contains(t, rpcErr.Message, tt.wantMsg)
		})
	}
}

func TestRPCRouter_RouteRequest(t *testing.T) {
	router := NewRPCRouter()
	require.NoError(t, router.RegisterMethod("arcade.echo", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return params["tool"], nil
	}))
	require.NoError(t, router.RegisterMethod("arcade.fail", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return nil, errors.New("remote unavailable")
	}))
	require.NoError(t, router.RegisterMethod("arcade.typed", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		return nil, fmt.Errorf("list: %w", NewError(NotConfigured, "Arcade API key not configured", nil))
	}))
	require.NoError(t, router.RegisterMethod("arcade.panic", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		panic("boom")
	}))

	ctx := context.Background()

	resp := router.RouteRequest(ctx, &RPCRequest{ID: "req-7", Method: "arcade.echo", Params: map[string]interface{}{"tool": "Gmail.SendEmail"}})
	require.Nil(t, resp.Error)
	assert.Equal(t, "req-7", resp.ID)
	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, "Gmail.SendEmail", resp.Result)

	tests := []struct {
		method   string
		wantCode int
		wantMsg  string
	}{
		{method: "arcade.missing", wantCode: MethodNotFound, wantMsg: "Method not found: arcade.missing"},
		{method: "arcade.fail", wantCode: InternalError, wantMsg: "remote unavailable"},
		{method: "arcade.typed", wantCode: NotConfigured, wantMsg: "Arcade API key not configured"},
		{method: "arcade.panic", wantCode: InternalError, wantMsg: "handler panicked: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			resp := router.RouteRequest(ctx, &RPCRequest{ID: "1", Method: tt.method})
			assert.Equal(t, "1", resp.ID)
			assert.Nil(t, resp.Result)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantMsg, resp.Error.Message)
		})
	}

	t.Run("nil request", func(t *testing.T) {
		resp := router.RouteRequest(ctx, nil)
		require.NotNil(t, resp.Error)
		assert.Equal(t, InvalidRequest, resp.Error.Code)
	})
}

func TestRPCRouter_NilParamsBecomeEmpty(t *testing.T) {
	router := NewRPCRouter()
	var got map[string]interface{}
	require.NoError(t, router.RegisterMethod("arcade.status", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		got = params
		return "ok", nil
	}))

	router.RouteRequest(context.Background(), &RPCRequest{ID: "1", Method: "arcade.status"})
	assert.NotNil(t, got)
}

func TestRPCRouter_GetMethodsSorted(t *testing.T) {
	router := NewRPCRouter()
	assert.Empty(t, router.GetMethods())

	for _, name := range []string{"arcade.status", "arcade.auth.status", "arcade.tools.list"} {
		require.NoError(t, router.RegisterMethod(name, constHandler(nil)))
	}
	assert.Equal(t, []string{"arcade.auth.status", "arcade.status", "arcade.tools.list"}, router.GetMethods())
}

package plugin

import (
	"context"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoHandler(ctx context.Context, params map[string]any) (any, error) {
	return params, nil
}

func newTestAPI(t *testing.T) (*Host, *PluginAPIImpl) {
	t.Helper()
	host := NewHost(zerolog.Nop(), nil)
	require.NoError(t, host.plugins.add("test-plugin"))
	return host, newPluginAPI("test-plugin", map[string]any{"key": "value"}, host)
}

func TestPluginAPI_RegisterTool(t *testing.T) {
	host, api := newTestAPI(t)

	t.Run("registers valid tool", func(t *testing.T) {
		def := ToolDefinition{
			Name:        "test-tool",
			Description: "A test tool",
			Parameters:  map[string]any{"type": "object"},
			Handler:     echoHandler,
		}

		require.NoError(t, api.RegisterTool(def))

		tool, exists := host.tools.Get("test-tool")
		assert.True(t, exists)
		assert.Equal(t, "test-plugin", tool.PluginID)

		record, _ := host.Plugin("test-plugin")
		assert.Equal(t, []string{"test-tool"}, record.RegisteredTools)
	})

	tests := []struct {
		name    string
		def     ToolDefinition
		wantErr string
	}{
		{"empty name", ToolDefinition{Description: "d", Parameters: map[string]any{}, Handler: echoHandler}, "name cannot be empty"},
		{"empty description", ToolDefinition{Name: "t2", Parameters: map[string]any{}, Handler: echoHandler}, "description cannot be empty"},
		{"nil parameters", ToolDefinition{Name: "t3", Description: "d", Handler: echoHandler}, "parameters cannot be nil"},
		{"nil handler", ToolDefinition{Name: "t4", Description: "d", Parameters: map[string]any{}}, "no handler"},
		{"duplicate", ToolDefinition{Name: "test-tool", Description: "d", Parameters: map[string]any{}, Handler: echoHandler}, "already registered"},
	}
	for _, tt := range tests {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			err := api.RegisterTool(tt.def)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPluginAPI_UnregisterTool(t *testing.T) {
	host, api := newTestAPI(t)
	require.NoError(t, api.RegisterTool(ToolDefinition{Name: "a", Description: "A", Parameters: map[string]any{}, Handler: echoHandler}))

	other := newPluginAPI("other", nil, host)
	assert.False(t, other.UnregisterTool("a"))
	assert.True(t, api.UnregisterTool("a"))
	assert.False(t, api.UnregisterTool("a"))

	record, _ := host.Plugin("test-plugin")
	assert.Empty(t, record.RegisteredTools)
}

func TestPluginAPI_RegisterCommandRouteMethodService(t *testing.T) {
	host, api := newTestAPI(t)

	require.NoError(t, api.RegisterCommand(CommandDefinition{
		Name:    "/arcade",
		Handler: func(ctx context.Context, cmd CommandContext) (CommandResult, error) { return CommandResult{Text: "ok"}, nil },
	}))
	assert.Error(t, api.RegisterCommand(CommandDefinition{Name: "arcade", Handler: func(ctx context.Context, cmd CommandContext) (CommandResult, error) { return CommandResult{}, nil }}))
	assert.Error(t, api.RegisterCommand(CommandDefinition{Name: "nohandler"}))

	require.NoError(t, api.RegisterRoute(RouteDefinition{Path: "/arcade/webhook", Handler: http.NotFoundHandler()}))
	assert.Error(t, api.RegisterRoute(RouteDefinition{Path: "/arcade/webhook", Handler: http.NotFoundHandler()}))
	assert.Error(t, api.RegisterRoute(RouteDefinition{Path: "relative", Handler: http.NotFoundHandler()}))

	method := func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return "pong", nil }
	require.NoError(t, api.RegisterGatewayMethod("arcade.status", method))
	assert.Error(t, api.RegisterGatewayMethod("arcade.status", method))
	assert.True(t, host.Router().HasMethod("arcade.status"))

	require.NoError(t, api.RegisterService(ServiceDefinition{ID: "arcade"}))
	assert.Error(t, api.RegisterService(ServiceDefinition{ID: "arcade"}))
	assert.Error(t, api.RegisterService(ServiceDefinition{}))

	record, _ := host.Plugin("test-plugin")
	assert.Equal(t, []string{"arcade"}, record.RegisteredCommands)
	assert.Equal(t, []string{"/arcade/webhook"}, record.RegisteredRoutes)
	assert.Equal(t, []string{"arcade.status"}, record.RegisteredGatewayMethods)
	assert.Equal(t, []string{"arcade"}, record.RegisteredServices)
}

func TestPluginAPI_ConfigAndID(t *testing.T) {
	_, api := newTestAPI(t)
	assert.Equal(t, "test-plugin", api.PluginID())
	assert.Equal(t, map[string]any{"key": "value"}, api.Config())
}

func TestToolRegistry(t *testing.T) {
	registry := NewToolRegistry()
	def := func(name string) ToolDefinition {
		return ToolDefinition{Name: name, Description: name, Parameters: map[string]any{}, Handler: echoHandler}
	}

	require.NoError(t, registry.Register("plugin1", def("tool2")))
	require.NoError(t, registry.Register("plugin1", def("tool1")))
	require.NoError(t, registry.Register("plugin2", def("tool3")))
	assert.Error(t, registry.Register("plugin2", def("tool1")))

	all := registry.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, "tool1", all[0].Definition.Name)

	assert.Equal(t, []string{"tool1", "tool2"}, registry.UnregisterByPlugin("plugin1"))
	_, exists := registry.Get("tool1")
	assert.False(t, exists)

	registry.Unregister("tool3")
	assert.Empty(t, registry.GetAll())
}

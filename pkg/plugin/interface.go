package plugin

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/harun/arcade/pkg/gateway"
	"github.com/harun/arcade/pkg/hooks"
)

// Plugin is an in-process extension loaded by a Host.
type Plugin interface {
	// ID is the stable plugin identifier
	ID() string

	// Register is called once on load with an API scoped to the plugin
	Register(ctx context.Context, api PluginAPI) error
}

// PluginAPI is the interface provided to plugins for registering extensions
type PluginAPI interface {
	// PluginID returns the plugin's ID
	PluginID() string

	// Config returns the plugin's raw configuration block
	Config() map[string]any

	// Logger returns a logger tagged with the plugin ID
	Logger() zerolog.Logger

	// RegisterTool registers a new tool
	RegisterTool(definition ToolDefinition) error

	// UnregisterTool removes a tool previously registered by this plugin
	UnregisterTool(name string) bool

	// RegisterCommand registers a chat command
	RegisterCommand(definition CommandDefinition) error

	// RegisterRoute registers an HTTP route
	RegisterRoute(definition RouteDefinition) error

	// RegisterGatewayMethod registers a new gateway method
	RegisterGatewayMethod(name string, handler gateway.RequestHandler) error

	// RegisterService registers a service started with the host
	RegisterService(definition ServiceDefinition) error

	// OnBeforeToolCall adds a handler that may veto tool calls
	OnBeforeToolCall(handler hooks.BeforeToolCallHandler)

	// OnAfterToolCall adds a handler that observes finished tool calls
	OnAfterToolCall(handler hooks.AfterToolCallHandler)
}

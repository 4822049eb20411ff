package plugin

import (
	"context"
	"net/http"
	"time"

	"github.com/harun/arcade/pkg/gateway"
)

// PluginState represents the current state of a plugin
type PluginState string

const (
	StateLoading  PluginState = "loading"
	StateEnabled  PluginState = "enabled"
	StateFailed   PluginState = "failed"
	StateUnloaded PluginState = "unloaded"
)

// ToolHandler executes a registered tool.
type ToolHandler func(ctx context.Context, params map[string]any) (any, error)

// ToolDefinition represents a tool that can be registered
type ToolDefinition struct {
	Name        string         `json:"name"`
	Label       string         `json:"label,omitempty"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
	Handler     ToolHandler    `json:"-"`
}

// CommandContext is passed to a command handler.
type CommandContext struct {
	Args     string
	SenderID string
}

// CommandResult is the text reply of a command.
type CommandResult struct {
	Text string `json:"text"`
}

// CommandDefinition registers a chat command that replies without a model.
type CommandDefinition struct {
	Name        string
	Description string
	AcceptsArgs bool
	RequireAuth bool
	Handler     func(ctx context.Context, cmd CommandContext) (CommandResult, error)
}

// RouteDefinition registers an HTTP route on the host listener.
type RouteDefinition struct {
	Path    string
	Handler http.Handler
}

// GatewayMethodDefinition represents a gateway RPC method
type GatewayMethodDefinition struct {
	Name    string
	Handler gateway.RequestHandler
}

// ServiceDefinition is a long-lived component started and stopped with the
// host.
type ServiceDefinition struct {
	ID    string
	Start func(ctx context.Context) error
	Stop  func(ctx context.Context) error
}

// PluginRecord tracks a plugin and its registered extensions
type PluginRecord struct {
	ID                       string
	State                    PluginState
	RegisteredTools          []string
	RegisteredCommands       []string
	RegisteredRoutes         []string
	RegisteredGatewayMethods []string
	RegisteredServices       []string
	LoadedAt                 time.Time
	ErrorCount               int
	LastError                error
}

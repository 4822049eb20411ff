package plugin

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/harun/arcade/pkg/gateway"
	"github.com/harun/arcade/pkg/hooks"
)

// PluginAPIImpl implements the PluginAPI interface on top of a Host
type PluginAPIImpl struct {
	pluginID string
	config   map[string]any
	host     *Host
	logger   zerolog.Logger
}

func newPluginAPI(pluginID string, config map[string]any, host *Host) *PluginAPIImpl {
	return &PluginAPIImpl{
		pluginID: pluginID,
		config:   config,
		host:     host,
		logger:   host.logger.With().Str("plugin", pluginID).Logger(),
	}
}

func (api *PluginAPIImpl) PluginID() string { return api.pluginID }

func (api *PluginAPIImpl) Config() map[string]any { return api.config }

func (api *PluginAPIImpl) Logger() zerolog.Logger { return api.logger }

func (api *PluginAPIImpl) RegisterTool(definition ToolDefinition) error {
	if definition.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if definition.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if definition.Parameters == nil {
		return fmt.Errorf("tool parameters cannot be nil")
	}
	if definition.Handler == nil {
		return fmt.Errorf("tool %s has no handler", definition.Name)
	}

	if err := api.host.tools.Register(api.pluginID, definition); err != nil {
		return err
	}
	api.host.plugins.update(api.pluginID, func(r *PluginRecord) {
		r.RegisteredTools = append(r.RegisteredTools, definition.Name)
	})

	api.logger.Debug().Str("tool", definition.Name).Msg("Registered tool")
	return nil
}

func (api *PluginAPIImpl) UnregisterTool(name string) bool {
	tool, ok := api.host.tools.Get(name)
	if !ok || tool.PluginID != api.pluginID {
		return false
	}
	api.host.tools.Unregister(name)
	api.host.plugins.update(api.pluginID, func(r *PluginRecord) {
		r.RegisteredTools = removeString(r.RegisteredTools, name)
	})
	return true
}

func (api *PluginAPIImpl) RegisterCommand(definition CommandDefinition) error {
	name := strings.TrimPrefix(strings.TrimSpace(definition.Name), "/")
	if name == "" {
		return fmt.Errorf("command name cannot be empty")
	}
	if definition.Handler == nil {
		return fmt.Errorf("command %s has no handler", name)
	}
	definition.Name = name

	api.host.mu.Lock()
	if _, exists := api.host.commands[name]; exists {
		api.host.mu.Unlock()
		return fmt.Errorf("command '%s' already registered", name)
	}
	api.host.commands[name] = registeredCommand{pluginID: api.pluginID, def: definition}
	api.host.mu.Unlock()

	api.host.plugins.update(api.pluginID, func(r *PluginRecord) {
		r.RegisteredCommands = append(r.RegisteredCommands, name)
	})
	api.logger.Debug().Str("command", name).Msg("Registered command")
	return nil
}

func (api *PluginAPIImpl) RegisterRoute(definition RouteDefinition) error {
	if !strings.HasPrefix(definition.Path, "/") {
		return fmt.Errorf("route path must start with /: %q", definition.Path)
	}
	if definition.Handler == nil {
		return fmt.Errorf("route %s has no handler", definition.Path)
	}

	api.host.mu.Lock()
	for _, r := range api.host.routes {
		if r.def.Path == definition.Path {
			api.host.mu.Unlock()
			return fmt.Errorf("route '%s' already registered", definition.Path)
		}
	}
	api.host.routes = append(api.host.routes, registeredRoute{pluginID: api.pluginID, def: definition})
	api.host.mu.Unlock()

	api.host.plugins.update(api.pluginID, func(r *PluginRecord) {
		r.RegisteredRoutes = append(r.RegisteredRoutes, definition.Path)
	})
	api.logger.Debug().Str("path", definition.Path).Msg("Registered route")
	return nil
}

func (api *PluginAPIImpl) RegisterGatewayMethod(name string, handler gateway.RequestHandler) error {
	if name == "" {
		return fmt.Errorf("gateway method name cannot be empty")
	}
	if api.host.router.HasMethod(name) {
		return fmt.Errorf("gateway method '%s' already registered", name)
	}
	if err := api.host.router.RegisterMethod(name, handler); err != nil {
		return err
	}

	api.host.plugins.update(api.pluginID, func(r *PluginRecord) {
		r.RegisteredGatewayMethods = append(r.RegisteredGatewayMethods, name)
	})
	api.logger.Debug().Str("method", name).Msg("Registered gateway method")
	return nil
}

func (api *PluginAPIImpl) RegisterService(definition ServiceDefinition) error {
	if definition.ID == "" {
		return fmt.Errorf("service id cannot be empty")
	}

	api.host.mu.Lock()
	for _, s := range api.host.services {
		if s.def.ID == definition.ID {
			api.host.mu.Unlock()
			return fmt.Errorf("service '%s' already registered", definition.ID)
		}
	}
	api.host.services = append(api.host.services, registeredService{pluginID: api.pluginID, def: definition})
	api.host.mu.Unlock()

	api.host.plugins.update(api.pluginID, func(r *PluginRecord) {
		r.RegisteredServices = append(r.RegisteredServices, definition.ID)
	})
	return nil
}

func (api *PluginAPIImpl) OnBeforeToolCall(handler hooks.BeforeToolCallHandler) {
	api.host.hooks.OnBeforeToolCall(api.pluginID, handler)
}

func (api *PluginAPIImpl) OnAfterToolCall(handler hooks.AfterToolCallHandler) {
	api.host.hooks.OnAfterToolCall(api.pluginID, handler)
}

// ToolRegistry manages registered tools
type ToolRegistry struct {
	tools map[string]*RegisteredTool
	mu    sync.RWMutex
}

// RegisteredTool represents a registered tool
type RegisteredTool struct {
	PluginID   string
	Definition ToolDefinition
}

// NewToolRegistry creates a new tool registry
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*RegisteredTool),
	}
}

// Register registers a tool
func (r *ToolRegistry) Register(pluginID string, definition ToolDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[definition.Name]; exists {
		return fmt.Errorf("tool '%s' already registered", definition.Name)
	}

	r.tools[definition.Name] = &RegisteredTool{
		PluginID:   pluginID,
		Definition: definition,
	}

	return nil
}

// Unregister removes a tool
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// UnregisterByPlugin removes all tools registered by a plugin
func (r *ToolRegistry) UnregisterByPlugin(pluginID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for name, tool := range r.tools {
		if tool.PluginID == pluginID {
			delete(r.tools, name)
			removed = append(removed, name)
		}
	}
	sort.Strings(removed)

	return removed
}

// Get retrieves a tool by name
func (r *ToolRegistry) Get(name string) (*RegisteredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, exists := r.tools[name]
	return tool, exists
}

// GetAll retrieves all registered tools sorted by name
func (r *ToolRegistry) GetAll() []*RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*RegisteredTool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool {
		return tools[i].Definition.Name < tools[j].Definition.Name
	})

	return tools
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

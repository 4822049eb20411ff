package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/arcade/pkg/gateway"
	"github.com/harun/arcade/pkg/hooks"
)

// ErrToolNotFound is returned by CallTool for unknown tool names.
var ErrToolNotFound = errors.New("tool not registered")

// BlockedError is returned by CallTool when a before hook vetoed the call.
type BlockedError struct {
	Tool    string
	Reason  string
	Message string
}

func (e *BlockedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("tool %s blocked: %s", e.Tool, e.Reason)
}

type registeredCommand struct {
	pluginID string
	def      CommandDefinition
}

type registeredRoute struct {
	pluginID string
	def      RouteDefinition
}

type registeredService struct {
	pluginID string
	def      ServiceDefinition
	started  bool
}

// Host is the in-process plugin host. It owns the tool registry, the command
// table, HTTP routes, the RPC router, hook chains and service lifecycle.
type Host struct {
	logger  zerolog.Logger
	tools   *ToolRegistry
	router  *gateway.RPCRouter
	hooks   *hooks.Manager
	plugins *pluginRegistry

	mu       sync.RWMutex
	commands map[string]registeredCommand
	routes   []registeredRoute
	services []registeredService
}

// NewHost creates an empty host. A nil router gets a fresh one.
func NewHost(logger zerolog.Logger, router *gateway.RPCRouter) *Host {
	if router == nil {
		router = gateway.NewRPCRouter()
	}
	return &Host{
		logger:   logger.With().Str("component", "plugin-host").Logger(),
		tools:    NewToolRegistry(),
		router:   router,
		hooks:    hooks.NewManager(logger),
		plugins:  newPluginRegistry(),
		commands: make(map[string]registeredCommand),
	}
}

// Load registers a plugin and calls its Register. A failing Register rolls
// back whatever the plugin registered so far.
func (h *Host) Load(ctx context.Context, p Plugin, config map[string]any) error {
	id := p.ID()
	if id == "" {
		return fmt.Errorf("plugin id cannot be empty")
	}
	if err := h.plugins.add(id); err != nil {
		return err
	}

	api := newPluginAPI(id, config, h)
	if err := p.Register(ctx, api); err != nil {
		h.removeExtensions(id)
		h.plugins.update(id, func(r *PluginRecord) {
			r.State = StateFailed
			r.ErrorCount++
			r.LastError = err
		})
		h.logger.Error().Err(err).Str("plugin", id).Msg("Plugin registration failed")
		return fmt.Errorf("register plugin %s: %w", id, err)
	}

	h.plugins.update(id, func(r *PluginRecord) { r.State = StateEnabled })
	h.logger.Info().Str("plugin", id).Int("tools", len(h.tools.GetAll())).Msg("Plugin loaded")
	return nil
}

// Unload stops the plugin's services and removes everything it registered.
func (h *Host) Unload(ctx context.Context, pluginID string) error {
	if _, ok := h.plugins.get(pluginID); !ok {
		return fmt.Errorf("plugin %s not found", pluginID)
	}
	err := h.stopServices(ctx, pluginID)
	h.removeExtensions(pluginID)
	h.plugins.update(pluginID, func(r *PluginRecord) { r.State = StateUnloaded })
	return err
}

func (h *Host) removeExtensions(pluginID string) {
	h.tools.UnregisterByPlugin(pluginID)
	h.hooks.RemoveOwner(pluginID)

	record, _ := h.plugins.get(pluginID)
	for _, method := range record.RegisteredGatewayMethods {
		h.router.UnregisterMethod(method)
	}

	h.mu.Lock()
	for name, cmd := range h.commands {
		if cmd.pluginID == pluginID {
			delete(h.commands, name)
		}
	}
	routes := h.routes[:0]
	for _, r := range h.routes {
		if r.pluginID != pluginID {
			routes = append(routes, r)
		}
	}
	h.routes = routes
	services := h.services[:0]
	for _, s := range h.services {
		if s.pluginID != pluginID {
			services = append(services, s)
		}
	}
	h.services = services
	h.mu.Unlock()

	h.plugins.update(pluginID, func(r *PluginRecord) {
		r.RegisteredTools = nil
		r.RegisteredCommands = nil
		r.RegisteredRoutes = nil
		r.RegisteredGatewayMethods = nil
		r.RegisteredServices = nil
	})
}

// CallTool dispatches a tool through the before hooks, the handler and the
// after hooks.
func (h *Host) CallTool(ctx context.Context, name string, params map[string]any) (any, error) {
	tool, ok := h.tools.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if params == nil {
		params = map[string]any{}
	}

	if block := h.hooks.RunBefore(ctx, hooks.BeforeToolCallEvent{ToolName: name, Params: params}); block != nil {
		return nil, &BlockedError{Tool: name, Reason: block.Reason, Message: block.Message}
	}

	start := time.Now()
	result, err := tool.Definition.Handler(ctx, params)
	h.hooks.RunAfter(ctx, hooks.AfterToolCallEvent{
		ToolName: name,
		Params:   params,
		Result:   result,
		Err:      err,
		Duration: time.Since(start),
	})
	return result, err
}

// RunCommand runs a chat command by name, with or without a leading slash.
func (h *Host) RunCommand(ctx context.Context, name, args string) (CommandResult, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	h.mu.RLock()
	cmd, ok := h.commands[name]
	h.mu.RUnlock()
	if !ok {
		return CommandResult{}, fmt.Errorf("unknown command: /%s", name)
	}
	if !cmd.def.AcceptsArgs {
		args = ""
	}
	return cmd.def.Handler(ctx, CommandContext{Args: args})
}

// Tools returns every registered tool definition sorted by name.
func (h *Host) Tools() []ToolDefinition {
	all := h.tools.GetAll()
	defs := make([]ToolDefinition, 0, len(all))
	for _, t := range all {
		defs = append(defs, t.Definition)
	}
	return defs
}

// Tool looks up one tool definition.
func (h *Host) Tool(name string) (ToolDefinition, bool) {
	t, ok := h.tools.Get(name)
	if !ok {
		return ToolDefinition{}, false
	}
	return t.Definition, true
}

// Commands returns registered command definitions sorted by name.
func (h *Host) Commands() []CommandDefinition {
	h.mu.RLock()
	defer h.mu.RUnlock()
	defs := make([]CommandDefinition, 0, len(h.commands))
	for _, c := range h.commands {
		defs = append(defs, c.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Routes returns the registered HTTP routes in registration order.
func (h *Host) Routes() []RouteDefinition {
	h.mu.RLock()
	defer h.mu.RUnlock()
	defs := make([]RouteDefinition, 0, len(h.routes))
	for _, r := range h.routes {
		defs = append(defs, r.def)
	}
	return defs
}

// Router returns the RPC router gateway methods are registered on.
func (h *Host) Router() *gateway.RPCRouter { return h.router }

// Hooks returns the tool-call hook chains.
func (h *Host) Hooks() *hooks.Manager { return h.hooks }

// Plugin returns a copy of a plugin's record.
func (h *Host) Plugin(id string) (PluginRecord, bool) { return h.plugins.get(id) }

// StartServices starts services in registration order. Failures are joined
// and do not stop later services from starting.
func (h *Host) StartServices(ctx context.Context) error {
	h.mu.Lock()
	pending := make([]int, 0, len(h.services))
	for i, s := range h.services {
		if !s.started {
			pending = append(pending, i)
		}
	}
	services := append([]registeredService(nil), h.services...)
	h.mu.Unlock()

	var errs []error
	for _, i := range pending {
		s := services[i]
		if s.def.Start != nil {
			if err := s.def.Start(ctx); err != nil {
				errs = append(errs, fmt.Errorf("start service %s: %w", s.def.ID, err))
				h.logger.Error().Err(err).Str("service", s.def.ID).Msg("Service failed to start")
				continue
			}
		}
		h.markStarted(s.def.ID, true)
		h.logger.Debug().Str("service", s.def.ID).Msg("Service started")
	}
	return errors.Join(errs...)
}

// StopServices stops started services in reverse registration order.
func (h *Host) StopServices(ctx context.Context) error {
	return h.stopServices(ctx, "")
}

func (h *Host) stopServices(ctx context.Context, pluginID string) error {
	h.mu.RLock()
	services := append([]registeredService(nil), h.services...)
	h.mu.RUnlock()

	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		s := services[i]
		if !s.started || (pluginID != "" && s.pluginID != pluginID) {
			continue
		}
		if s.def.Stop != nil {
			if err := s.def.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("stop service %s: %w", s.def.ID, err))
			}
		}
		h.markStarted(s.def.ID, false)
	}
	return errors.Join(errs...)
}

func (h *Host) markStarted(id string, started bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.services {
		if h.services[i].def.ID == id {
			h.services[i].started = started
		}
	}
}

// pluginRegistry tracks loaded plugins and their state
type pluginRegistry struct {
	mu      sync.RWMutex
	plugins map[string]*PluginRecord
}

func newPluginRegistry() *pluginRegistry {
	return &pluginRegistry{plugins: make(map[string]*PluginRecord)}
}

func (r *pluginRegistry) add(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.plugins[id]; ok && existing.State != StateUnloaded && existing.State != StateFailed {
		return fmt.Errorf("plugin %s already registered", id)
	}
	r.plugins[id] = &PluginRecord{ID: id, State: StateLoading, LoadedAt: time.Now()}
	return nil
}

func (r *pluginRegistry) get(id string) (PluginRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	record, ok := r.plugins[id]
	if !ok {
		return PluginRecord{}, false
	}
	return *record, true
}

func (r *pluginRegistry) update(id string, fn func(*PluginRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.plugins[id]; ok {
		fn(record)
	}
}

// Package arcadeplugin wires the Arcade engine into the plugin host: static
// and discovered tools, RPC methods, the /arcade command, just-in-time
// authorization hooks, the webhook route and the service lifecycle.
package arcadeplugin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/harun/arcade/internal/config"
	"github.com/harun/arcade/internal/metrics"
	"github.com/harun/arcade/pkg/engine"
	"github.com/harun/arcade/pkg/plugin"
	"github.com/harun/arcade/pkg/webhook"
)

// ID is the plugin and service id.
const ID = "arcade"

// staticToolkit labels the always-present tools.
const staticToolkit = "Arcade"

// Options configures the plugin.
type Options struct {
	Config *config.Config
	// Remote replaces the HTTP client the engine would build.
	Remote  engine.Remote
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// toolEntry is a tool this plugin registered on the host.
type toolEntry struct {
	Name         string
	ArcadeName   string
	Toolkit      string
	RequiresAuth bool
	static       bool
}

// Plugin is the Arcade plugin. Build it with New and hand it to Host.Load.
type Plugin struct {
	opts    Options
	logger  zerolog.Logger
	webhook *webhook.Handler

	mu     sync.RWMutex
	cfg    *config.Config
	engine *engine.Engine
	api    plugin.PluginAPI
	tools  []toolEntry
}

// New creates the plugin and its engine.
func New(opts Options) *Plugin {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	p := &Plugin{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "arcade-plugin").Logger(),
		cfg:    cfg,
	}
	p.engine = p.newEngine(cfg)
	return p
}

func (p *Plugin) newEngine(cfg *config.Config) *engine.Engine {
	return engine.New(engine.Options{
		Config:  cfg,
		Remote:  p.opts.Remote,
		Logger:  p.opts.Logger,
		Metrics: p.opts.Metrics,
	})
}

// ID implements plugin.Plugin.
func (p *Plugin) ID() string { return ID }

// Engine returns the current engine.
func (p *Plugin) Engine() *engine.Engine {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.engine
}

func (p *Plugin) config() *config.Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// Register implements plugin.Plugin. A disabled configuration registers
// nothing.
func (p *Plugin) Register(ctx context.Context, api plugin.PluginAPI) error {
	cfg := p.config()
	if !cfg.Enabled {
		p.logger.Info().Msg("Plugin disabled")
		return nil
	}

	p.mu.Lock()
	p.api = api
	p.mu.Unlock()

	userID := cfg.UserID
	if userID == "" {
		userID = "not set"
	}
	p.logger.Info().
		Str("base_url", cfg.BaseURL).
		Str("user_id", userID).
		Msg("Plugin initializing")

	if err := p.syncTools(ctx, false); err != nil {
		return err
	}
	if err := p.registerGatewayMethods(api); err != nil {
		return err
	}
	if err := api.RegisterCommand(p.command()); err != nil {
		return err
	}
	if cfg.AutoAuth {
		api.OnBeforeToolCall(p.beforeToolCall())
		api.OnAfterToolCall(p.afterToolCall())
	}

	p.webhook = webhook.NewHandler(webhook.Options{
		Secret: cfg.Webhook.Secret,
		OnAuthChange: func(ctx context.Context, event webhook.Event) {
			p.Engine().InvalidateCatalog()
		},
		Logger:  p.opts.Logger,
		Metrics: p.opts.Metrics,
	})
	path := cfg.Webhook.Path
	if path == "" {
		path = config.DefaultConfig().Webhook.Path
	}
	if err := api.RegisterRoute(plugin.RouteDefinition{Path: path, Handler: p.webhook}); err != nil {
		return err
	}

	return api.RegisterService(plugin.ServiceDefinition{
		ID:    ID,
		Start: p.start,
		Stop:  p.stop,
	})
}

// syncTools replaces every tool this plugin registered with the static
// tools plus the current discovery result. A discovery failure keeps the
// static tools.
func (p *Plugin) syncTools(ctx context.Context, force bool) error {
	eng := p.Engine()
	cfg := p.config()

	var discovered []toolEntry
	var defs []plugin.ToolDefinition
	if eng.IsConfigured() {
		registered, err := eng.Discover(ctx, force)
		if err != nil {
			p.logger.Warn().Err(err).Msg("Failed to load dynamic tools, falling back to static tools only")
		}
		for _, tool := range registered {
			def := p.dynamicTool(tool)
			defs = append(defs, def)
			discovered = append(discovered, toolEntry{
				Name:         def.Name,
				ArcadeName:   tool.RemoteName,
				Toolkit:      tool.Toolkit,
				RequiresAuth: tool.RequiresAuth,
			})
		}
	} else {
		p.logger.Warn().Msg("API key not configured, using static tools only. Set ARCADE_API_KEY or api_key in the config file")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.api == nil {
		return fmt.Errorf("plugin not registered")
	}

	for _, entry := range p.tools {
		p.api.UnregisterTool(entry.Name)
	}
	p.tools = nil

	for _, def := range p.staticTools(cfg.ToolPrefix) {
		if err := p.api.RegisterTool(def); err != nil {
			return err
		}
		p.tools = append(p.tools, toolEntry{Name: def.Name, ArcadeName: def.Name, Toolkit: staticToolkit, static: true})
	}
	for i, def := range defs {
		if err := p.api.RegisterTool(def); err != nil {
			p.logger.Warn().Err(err).Str("tool", def.Name).Msg("Skipping tool")
			continue
		}
		p.tools = append(p.tools, discovered[i])
	}

	p.logger.Info().
		Int("tools", len(p.tools)).
		Int("dynamic", len(p.tools)-len(p.staticTools(cfg.ToolPrefix))).
		Msg("Tools registered")
	return nil
}

// Refresh re-runs discovery against a fresh catalog.
func (p *Plugin) Refresh(ctx context.Context) error {
	return p.syncTools(ctx, true)
}

// Reload swaps in a new configuration. The old engine is closed and tools
// are re-registered under the new settings.
func (p *Plugin) Reload(ctx context.Context, cfg *config.Config) error {
	next := p.newEngine(cfg)

	p.mu.Lock()
	old := p.engine
	p.engine = next
	p.cfg = cfg
	registered := p.api != nil
	p.mu.Unlock()

	_ = old.Close()
	p.logger.Info().Bool("configured", next.IsConfigured()).Msg("Configuration reloaded")

	if !registered {
		return nil
	}
	return p.syncTools(ctx, true)
}

func (p *Plugin) lookup(name string) (toolEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, entry := range p.tools {
		if entry.Name == name {
			return entry, true
		}
	}
	return toolEntry{}, false
}

func (p *Plugin) registeredTools() []toolEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]toolEntry(nil), p.tools...)
}

// toolkits lists the distinct toolkits of the registered tools, sorted.
func toolkits(entries []toolEntry) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, entry := range entries {
		if !seen[entry.Toolkit] {
			seen[entry.Toolkit] = true
			out = append(out, entry.Toolkit)
		}
	}
	sort.Strings(out)
	return out
}

func (p *Plugin) start(ctx context.Context) error {
	p.logger.Info().Int("tools", len(p.registeredTools())).Msg("Service started")

	eng := p.Engine()
	if !eng.IsConfigured() {
		return nil
	}
	if err := eng.Health(ctx); err != nil {
		p.logger.Warn().Err(err).Msg("API health check failed")
		return nil
	}
	p.logger.Info().Msg("API health check passed")
	return nil
}

func (p *Plugin) stop(ctx context.Context) error {
	p.mu.Lock()
	for _, entry := range p.tools {
		if p.api != nil {
			p.api.UnregisterTool(entry.Name)
		}
	}
	p.tools = nil
	eng := p.engine
	p.mu.Unlock()

	if p.webhook != nil {
		p.webhook.Close()
	}
	p.logger.Info().Msg("Service stopped")
	return eng.Close()
}

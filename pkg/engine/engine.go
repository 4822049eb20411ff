// Package engine owns the component graph behind every exposed Arcade
// operation. One Engine is built per configuration and passed explicitly to
// the CLI, RPC methods and plugin hooks; nothing here is process-global.
package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/arcade/internal/config"
	"github.com/harun/arcade/internal/metrics"
	"github.com/harun/arcade/internal/observability"
	"github.com/harun/arcade/pkg/arcade"
	"github.com/harun/arcade/pkg/authflow"
	"github.com/harun/arcade/pkg/catalog"
	"github.com/harun/arcade/pkg/toolexecutor"
	"github.com/harun/arcade/pkg/toolfilter"
)

// Remote is the full API surface the engine consumes. *arcade.Client
// satisfies it.
type Remote interface {
	IsConfigured() bool
	UserID() string
	ListTools(ctx context.Context, opts arcade.ListToolsOptions) ([]arcade.ToolDescriptor, error)
	GetTool(ctx context.Context, name string) (arcade.ToolDescriptor, error)
	Execute(ctx context.Context, name string, input map[string]any) (arcade.ExecutePayload, error)
	Authorize(ctx context.Context, name string) (arcade.AuthorizationStatus, error)
	AuthStatus(ctx context.Context, authorizationID string) (arcade.AuthorizationStatus, error)
	ListConnections(ctx context.Context, userID string) ([]arcade.Connection, error)
	DeleteConnection(ctx context.Context, connectionID string) error
	Health(ctx context.Context) error
}

// Options configures New.
type Options struct {
	Config *config.Config
	// Remote replaces the HTTP client built from Config.
	Remote  Remote
	Clock   func() time.Time
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Engine is the explicit context object for one configuration.
type Engine struct {
	cfg     *config.Config
	remote  Remote
	cache   *catalog.Cache
	filter  *toolfilter.Filter
	auth    *authflow.Authorizer
	gateway *toolexecutor.Gateway
	logger  zerolog.Logger
	metrics *metrics.Metrics
	closed  atomic.Bool
}

// New builds every component from the configuration.
func New(opts Options) *Engine {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger.With().Str("component", "engine").Logger()

	remote := opts.Remote
	if remote == nil {
		remote = arcade.NewClient(arcade.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			UserID:     cfg.UserID,
			Timeout:    cfg.HTTPTimeout(),
			RetryCount: cfg.HTTP.RetryCount,
			Logger:     opts.Logger,
		})
	}

	cache := catalog.New(remote, catalog.Options{
		TTL:      cfg.CacheTTL(),
		MaxStale: cfg.CacheMaxStale(),
		Clock:    opts.Clock,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
	})
	filter := toolfilter.New(cfg.FilterRule(), opts.Logger)
	auth := authflow.New(remote, authflow.Options{
		DedupeInitiation:    cfg.Auth.DedupeInitiation,
		DefaultTimeout:      cfg.AuthTimeout(),
		DefaultPollInterval: cfg.PollInterval(),
		Logger:              opts.Logger,
		Metrics:             opts.Metrics,
	})
	gateway := toolexecutor.NewGateway(remote, auth, cache, filter, nil, toolexecutor.Options{
		Prefix:  cfg.ToolPrefix,
		UserID:  cfg.UserID,
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})

	return &Engine{
		cfg:     cfg,
		remote:  remote,
		cache:   cache,
		filter:  filter,
		auth:    auth,
		gateway: gateway,
		logger:  logger,
		metrics: opts.Metrics,
	}
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.Config { return e.cfg }

// IsConfigured reports whether a credential is set.
func (e *Engine) IsConfigured() bool { return e.remote.IsConfigured() }

// UserID is the Arcade user every call acts for.
func (e *Engine) UserID() string { return e.remote.UserID() }

// Registry holds the tools registered by the last Discover.
func (e *Engine) Registry() *toolexecutor.Registry { return e.gateway.Registry() }

// Filter is the eligibility filter built from the configuration.
func (e *Engine) Filter() *toolfilter.Filter { return e.filter }

// Close drops the registry and the cached catalog. Calls after Close still
// work but start from an empty cache.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.gateway.Registry().Clear()
	e.metrics.SetRegisteredTools(0)
	e.cache.Invalidate()
	e.logger.Debug().Msg("Engine closed")
	return nil
}

// ListTools returns catalog entries, optionally narrowed to one toolkit.
func (e *Engine) ListTools(ctx context.Context, toolkit string, limit int, force bool) ([]arcade.ToolDescriptor, error) {
	if !e.IsConfigured() {
		return nil, arcade.ErrNotConfigured
	}
	return e.cache.Tools(ctx, catalog.Query{Toolkit: toolkit, Limit: limit, ForceRefresh: force})
}

// SearchTools matches a case-insensitive substring against name,
// description and toolkit of every catalog entry.
func (e *Engine) SearchTools(ctx context.Context, query string) ([]arcade.ToolDescriptor, error) {
	tools, err := e.ListTools(ctx, "", 0, false)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	matches := make([]arcade.ToolDescriptor, 0)
	for _, tool := range tools {
		if strings.Contains(strings.ToLower(tool.QualifiedName()), needle) ||
			strings.Contains(strings.ToLower(tool.Description), needle) ||
			strings.Contains(strings.ToLower(tool.Toolkit), needle) {
			matches = append(matches, tool)
		}
	}
	return matches, nil
}

// ToolInfo fetches one tool definition from the remote.
func (e *Engine) ToolInfo(ctx context.Context, name string) (arcade.ToolDescriptor, error) {
	if strings.TrimSpace(name) == "" {
		return arcade.ToolDescriptor{}, fmt.Errorf("%w: tool name required", arcade.ErrInvalidInput)
	}
	return e.remote.GetTool(ctx, name)
}

// ExecuteTool runs a tool through filtering, validation and authorization.
// A pending authorization is returned as a result unless opts asks to wait.
func (e *Engine) ExecuteTool(ctx context.Context, name string, input map[string]any, opts toolexecutor.RunOptions) toolexecutor.ExecutionResult {
	return e.gateway.Run(ctx, name, input, opts)
}

// AuthStatusResult is either one tool's status or the user's connections.
type AuthStatusResult struct {
	Tool        *arcade.AuthorizationStatus `json:"tool,omitempty"`
	Connections []arcade.Connection         `json:"connections,omitempty"`
}

// AuthStatus reports the grant for one tool, or lists every connection of
// the user when name is empty.
func (e *Engine) AuthStatus(ctx context.Context, name string) (AuthStatusResult, error) {
	if name != "" {
		status, err := e.Authorize(ctx, name)
		if err != nil {
			return AuthStatusResult{}, err
		}
		return AuthStatusResult{Tool: &status}, nil
	}
	conns, err := e.remote.ListConnections(ctx, e.UserID())
	if err != nil {
		return AuthStatusResult{}, fmt.Errorf("list connections: %w", err)
	}
	if conns == nil {
		conns = []arcade.Connection{}
	}
	return AuthStatusResult{Connections: conns}, nil
}

// Authorize checks the grant for a tool or starts a new authorization.
func (e *Engine) Authorize(ctx context.Context, name string) (arcade.AuthorizationStatus, error) {
	if strings.TrimSpace(name) == "" {
		return arcade.AuthorizationStatus{}, fmt.Errorf("%w: tool name required", arcade.ErrInvalidInput)
	}
	if !e.IsConfigured() {
		return arcade.AuthorizationStatus{}, arcade.ErrNotConfigured
	}
	status, err := e.auth.CheckOrAuthorize(ctx, name)
	if err != nil {
		return arcade.AuthorizationStatus{}, err
	}
	observability.RecordAuthAudit(ctx, name, e.UserID(), string(status.Status), nil)
	return status, nil
}

// WaitForAuthorization blocks until a pending authorization resolves.
func (e *Engine) WaitForAuthorization(ctx context.Context, authorizationID string, opts authflow.WaitOptions) (arcade.AuthorizationStatus, error) {
	if !e.IsConfigured() {
		return arcade.AuthorizationStatus{}, arcade.ErrNotConfigured
	}
	status, err := e.auth.Wait(ctx, authorizationID, opts)
	if err != nil {
		return arcade.AuthorizationStatus{}, err
	}
	observability.RecordAuthAudit(ctx, status.ToolName, e.UserID(), string(status.Status), map[string]interface{}{
		"authorization_id": authorizationID,
	})
	return status, nil
}

// RevokeConnection deletes a connection and drops the cached catalog.
func (e *Engine) RevokeConnection(ctx context.Context, connectionID string) error {
	if strings.TrimSpace(connectionID) == "" {
		return fmt.Errorf("%w: connection id required", arcade.ErrInvalidInput)
	}
	if err := e.remote.DeleteConnection(ctx, connectionID); err != nil {
		observability.RecordConnectionAudit(ctx, "revoke:"+connectionID, e.UserID(), "error", nil)
		return err
	}
	observability.RecordConnectionAudit(ctx, "revoke:"+connectionID, e.UserID(), "success", nil)
	e.cache.Invalidate()
	return nil
}

// Health calls the remote health endpoint.
func (e *Engine) Health(ctx context.Context) error {
	return e.remote.Health(ctx)
}

// Discover rebuilds the tool registry from the catalog.
func (e *Engine) Discover(ctx context.Context, force bool) ([]toolexecutor.RegisteredTool, error) {
	if !e.IsConfigured() {
		return nil, arcade.ErrNotConfigured
	}
	return e.gateway.Discover(ctx, force)
}

// InvalidateCatalog forces the next catalog read to refetch.
func (e *Engine) InvalidateCatalog() {
	e.cache.Invalidate()
	e.logger.Debug().Msg("Catalog invalidated")
}

// Status summarizes the engine for status commands and RPC.
type Status struct {
	Enabled         bool     `json:"enabled"`
	Configured      bool     `json:"configured"`
	Healthy         bool     `json:"healthy"`
	UserID          string   `json:"userId,omitempty"`
	RegisteredTools int      `json:"registeredTools"`
	Toolkits        []string `json:"toolkits"`
}

// Status probes health only when a credential is set.
func (e *Engine) Status(ctx context.Context) Status {
	s := Status{
		Enabled:         e.cfg.Enabled,
		Configured:      e.IsConfigured(),
		UserID:          e.UserID(),
		RegisteredTools: e.Registry().Len(),
		Toolkits:        e.Registry().Toolkits(),
	}
	if s.Configured {
		s.Healthy = e.Health(ctx) == nil
	}
	return s
}

// GroupByToolkit groups descriptors by toolkit in catalog order, returning
// the toolkit names sorted.
func GroupByToolkit(tools []arcade.ToolDescriptor) ([]string, map[string][]arcade.ToolDescriptor) {
	groups := make(map[string][]arcade.ToolDescriptor)
	for _, tool := range tools {
		groups[tool.Toolkit] = append(groups[tool.Toolkit], tool)
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, groups
}

package toolexecutor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/arcade/internal/metrics"
	"github.com/harun/arcade/internal/observability"
	"github.com/harun/arcade/internal/tracing"
	"github.com/harun/arcade/pkg/arcade"
	"github.com/harun/arcade/pkg/authflow"
	"github.com/harun/arcade/pkg/catalog"
	"github.com/harun/arcade/pkg/toolfilter"
)

// Remote is the subset of the API client the gateway dispatches to.
type Remote interface {
	IsConfigured() bool
	Execute(ctx context.Context, name string, input map[string]any) (arcade.ExecutePayload, error)
}

// Authorizer checks and waits for grants.
type Authorizer interface {
	CheckOrAuthorize(ctx context.Context, toolName string) (arcade.AuthorizationStatus, error)
	Wait(ctx context.Context, authorizationID string, opts authflow.WaitOptions) (arcade.AuthorizationStatus, error)
}

// Catalog answers catalog queries for discovery.
type Catalog interface {
	Tools(ctx context.Context, q catalog.Query) ([]arcade.ToolDescriptor, error)
}

// AuthDecision tells Run what to do with a pending authorization.
type AuthDecision int

const (
	// ReturnPending returns the authorization URL without executing.
	ReturnPending AuthDecision = iota
	// WaitForGrant blocks until the grant completes, then executes once.
	WaitForGrant
)

// AuthRequiredFunc decides how to handle a pending authorization.
type AuthRequiredFunc func(ctx context.Context, status arcade.AuthorizationStatus) AuthDecision

// AlwaysWait is an AuthRequiredFunc that always blocks for the grant.
func AlwaysWait(context.Context, arcade.AuthorizationStatus) AuthDecision { return WaitForGrant }

// RunOptions configures a single Run.
type RunOptions struct {
	// OnAuthRequired defaults to ReturnPending.
	OnAuthRequired AuthRequiredFunc
	Wait           authflow.WaitOptions
}

// ExecutionError is a failure with a human message and a machine code.
type ExecutionError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ExecutionResult is the outcome of Run. Exactly one of success, pending
// authorization, or error holds.
type ExecutionResult struct {
	Success               bool            `json:"success"`
	Output                any             `json:"output,omitempty"`
	Error                 *ExecutionError `json:"error,omitempty"`
	AuthorizationRequired bool            `json:"authorization_required,omitempty"`
	AuthorizationURL      string          `json:"authorization_url,omitempty"`
	AuthorizationID       string          `json:"authorization_id,omitempty"`
}

// Outcome is a short label for metrics and audit.
func (r ExecutionResult) Outcome() string {
	switch {
	case r.Success:
		return "success"
	case r.AuthorizationRequired:
		return "authorization_required"
	case r.Error != nil:
		return r.Error.Code
	default:
		return "unknown"
	}
}

func failure(code, format string, args ...any) ExecutionResult {
	return ExecutionResult{Error: &ExecutionError{Message: fmt.Sprintf(format, args...), Code: code}}
}

func failureFromErr(err error) ExecutionResult {
	return ExecutionResult{Error: &ExecutionError{Message: err.Error(), Code: arcade.Code(err)}}
}

// Options configures a Gateway.
type Options struct {
	Prefix  string
	UserID  string
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Gateway resolves eligibility and authorization before dispatching remote
// tool calls. It holds no per-call state.
type Gateway struct {
	remote   Remote
	auth     Authorizer
	catalog  Catalog
	filter   *toolfilter.Filter
	registry *Registry
	prefix   string
	userID   string
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewGateway wires a gateway. A nil filter admits everything and a nil
// registry starts empty.
func NewGateway(remote Remote, auth Authorizer, cat Catalog, filter *toolfilter.Filter, registry *Registry, opts Options) *Gateway {
	if filter == nil {
		filter = toolfilter.AllowAll()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Gateway{
		remote:   remote,
		auth:     auth,
		catalog:  cat,
		filter:   filter,
		registry: registry,
		prefix:   opts.Prefix,
		userID:   opts.UserID,
		logger:   opts.Logger.With().Str("component", "toolexecutor").Logger(),
		metrics:  opts.Metrics,
	}
}

// Registry returns the registry populated by Discover.
func (g *Gateway) Registry() *Registry { return g.registry }

// Filter returns the eligibility filter.
func (g *Gateway) Filter() *toolfilter.Filter { return g.filter }

// Run executes a tool by local or remote name.
func (g *Gateway) Run(ctx context.Context, name string, input map[string]any, opts RunOptions) ExecutionResult {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "toolexecutor", "toolexecutor.run", attribute.String("arcade.tool", name))
	defer span.End()

	remoteName := name
	tool, known := g.registry.Get(name)
	if known {
		remoteName = tool.RemoteName
	}

	result := g.run(ctx, remoteName, tool, known, input, opts)

	span.SetAttributes(attribute.String("arcade.outcome", result.Outcome()))
	g.metrics.RecordToolExecution(remoteName, result.Outcome(), time.Since(start))
	observability.RecordToolAudit(ctx, remoteName, g.userID, result.Outcome(), map[string]interface{}{
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return result
}

func (g *Gateway) run(ctx context.Context, name string, tool RegisteredTool, known bool, input map[string]any, opts RunOptions) ExecutionResult {
	if !g.remote.IsConfigured() {
		return failure(arcade.CodeNotConfigured, "Arcade API key not configured")
	}

	if decision := g.filter.ExplainName(name); !decision.Allowed {
		g.logger.Warn().Str("tool", name).Str("rule", string(decision.Step)).Msg("Tool execution blocked by filter")
		return failure(arcade.CodeToolDenied, "tool %s is not allowed by the tool filter", name)
	}

	if known {
		if err := validateInput(tool.schema, input); err != nil {
			return failureFromErr(err)
		}
	}

	status, err := g.auth.CheckOrAuthorize(ctx, name)
	if err != nil {
		g.logger.Error().Err(err).Str("tool", name).Msg("Authorization check failed")
		return failureFromErr(err)
	}

	switch status.Status {
	case arcade.AuthCompleted:
		return g.execute(ctx, name, input)
	case arcade.AuthFailed:
		return failure(arcade.CodeAuthorizationFailed, "authorization failed for %s", name)
	}

	pending := ExecutionResult{
		AuthorizationRequired: true,
		AuthorizationURL:      status.AuthorizationURL,
		AuthorizationID:       status.AuthorizationID,
	}
	if opts.OnAuthRequired == nil || status.AuthorizationID == "" {
		return pending
	}
	if opts.OnAuthRequired(ctx, status) != WaitForGrant {
		return pending
	}

	g.logger.Info().Str("tool", name).Str("authorization_id", status.AuthorizationID).Msg("Waiting for authorization")
	final, err := g.auth.Wait(ctx, status.AuthorizationID, opts.Wait)
	if err != nil {
		return failureFromErr(err)
	}
	if final.Status != arcade.AuthCompleted {
		return failure(arcade.CodeAuthorizationFailed, "authorization failed for %s", name)
	}
	return g.execute(ctx, name, input)
}

// execute must only be reached after a completed grant was observed.
func (g *Gateway) execute(ctx context.Context, name string, input map[string]any) ExecutionResult {
	payload, err := g.remote.Execute(ctx, name, input)
	if err != nil {
		g.logger.Error().Err(err).Str("tool", name).Msg("Tool execution failed")
		return failureFromErr(err)
	}
	if !payload.Success {
		msg := fmt.Sprintf("tool %s reported failure", name)
		code := arcade.CodeRemoteRejected
		if payload.Error != nil {
			if payload.Error.Message != "" {
				msg = payload.Error.Message
			}
			if payload.Error.Code != "" {
				code = payload.Error.Code
			}
		}
		return ExecutionResult{Output: payload.Output, Error: &ExecutionError{Message: msg, Code: code}}
	}
	return ExecutionResult{Success: true, Output: payload.Output}
}

package arcadeplugin

import (
	"context"

	"github.com/harun/arcade/pkg/engine"
	"github.com/harun/arcade/pkg/gateway"
	"github.com/harun/arcade/pkg/plugin"
	"github.com/harun/arcade/pkg/toolexecutor"
)

const notConfiguredMessage = "Arcade API key not configured"

var (
	errNotConfigured = gateway.NewError(gateway.NotConfigured, notConfiguredMessage, nil)
	errToolRequired  = gateway.NewError(gateway.InvalidParams, "tool name required", nil)
)

func (p *Plugin) registerGatewayMethods(api plugin.PluginAPI) error {
	methods := []struct {
		name    string
		handler gateway.RequestHandler
	}{
		{"arcade.tools.list", p.requireConfigured(p.rpcListTools)},
		{"arcade.tools.execute", p.requireConfigured(p.rpcExecute)},
		{"arcade.auth.status", p.requireConfigured(p.rpcAuthStatus)},
		{"arcade.auth.authorize", p.requireConfigured(p.rpcAuthorize)},
		{"arcade.status", p.rpcStatus},
	}
	for _, m := range methods {
		if err := api.RegisterGatewayMethod(m.name, m.handler); err != nil {
			return err
		}
	}
	return nil
}

// requireConfigured rejects the call before it reaches the engine when no
// credential is set.
func (p *Plugin) requireConfigured(next gateway.RequestHandler) gateway.RequestHandler {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		if !p.Engine().IsConfigured() {
			return nil, errNotConfigured
		}
		return next(ctx, params)
	}
}

func stringParam(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}

func (p *Plugin) rpcListTools(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	tools, err := p.Engine().ListTools(ctx, stringParam(params, "toolkit"), 0, true)
	if err != nil {
		return nil, err
	}
	return summarize(tools), nil
}

type rpcExecuteResult struct {
	Success               bool                         `json:"success"`
	Output                any                          `json:"output,omitempty"`
	Error                 *toolexecutor.ExecutionError `json:"error,omitempty"`
	AuthorizationRequired bool                         `json:"authorization_required,omitempty"`
	AuthorizationURL      string                       `json:"authorization_url,omitempty"`
}

func (p *Plugin) rpcExecute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	name := stringParam(params, "tool")
	if name == "" {
		return nil, errToolRequired
	}
	input, _ := params["input"].(map[string]interface{})

	// Pending authorizations are returned unless the caller asks to wait.
	var opts toolexecutor.RunOptions
	if wait, _ := params["wait"].(bool); wait {
		opts.OnAuthRequired = toolexecutor.AlwaysWait
	}

	res := p.Engine().ExecuteTool(ctx, name, input, opts)
	if res.AuthorizationRequired {
		return rpcExecuteResult{AuthorizationRequired: true, AuthorizationURL: res.AuthorizationURL}, nil
	}
	return rpcExecuteResult{Success: res.Success, Output: res.Output, Error: res.Error}, nil
}

func (p *Plugin) rpcAuthStatus(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	res, err := p.Engine().AuthStatus(ctx, stringParam(params, "tool"))
	if err != nil {
		return nil, err
	}
	if res.Tool != nil {
		return *res.Tool, nil
	}
	return map[string]interface{}{"connections": res.Connections}, nil
}

func (p *Plugin) rpcAuthorize(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	name := stringParam(params, "tool")
	if name == "" {
		return nil, errToolRequired
	}
	return p.Engine().Authorize(ctx, name)
}

// rpcStatus answers without a credential too, reporting configured false.
func (p *Plugin) rpcStatus(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return p.Status(ctx), nil
}

// Status is the engine status with the tool counts of this plugin, static
// tools included.
func (p *Plugin) Status(ctx context.Context) engine.Status {
	status := p.Engine().Status(ctx)
	entries := p.registeredTools()
	status.RegisteredTools = len(entries)
	status.Toolkits = toolkits(entries)
	return status
}

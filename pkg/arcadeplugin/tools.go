package arcadeplugin

import (
	"context"
	"fmt"

	"github.com/harun/arcade/pkg/arcade"
	"github.com/harun/arcade/pkg/authflow"
	"github.com/harun/arcade/pkg/plugin"
	"github.com/harun/arcade/pkg/toolexecutor"
)

// toolSummary is the list_tools view of a catalog entry.
type toolSummary struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Toolkit      string `json:"toolkit"`
	RequiresAuth bool   `json:"requires_auth"`
}

type toolList struct {
	Count int           `json:"count"`
	Tools []toolSummary `json:"tools"`
}

func summarize(tools []arcade.ToolDescriptor) toolList {
	out := toolList{Count: len(tools), Tools: make([]toolSummary, 0, len(tools))}
	for _, t := range tools {
		out.Tools = append(out.Tools, toolSummary{
			Name:         t.QualifiedName(),
			Description:  t.Description,
			Toolkit:      t.Toolkit,
			RequiresAuth: t.RequiresAuth,
		})
	}
	return out
}

// resultError turns a failed execution into a Go error for after hooks.
func resultError(res toolexecutor.ExecutionResult) error {
	if res.Error == nil {
		return nil
	}
	return fmt.Errorf("%s: %s", res.Error.Code, res.Error.Message)
}

func (p *Plugin) staticTools(prefix string) []plugin.ToolDefinition {
	return []plugin.ToolDefinition{
		{
			Name:        prefix + "list_tools",
			Label:       "Arcade: list tools",
			Description: "List the tools available through Arcade, optionally for one toolkit.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"toolkit": map[string]any{"type": "string", "description": "Toolkit name such as Gmail or Slack"},
					"limit":   map[string]any{"type": "number", "description": "Maximum number of tools to return"},
				},
			},
			Handler: p.handleListTools,
		},
		{
			Name:        prefix + "execute",
			Label:       "Arcade: execute tool",
			Description: "Execute any Arcade tool by its qualified name. Returns an authorization link when the user has not granted access yet.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"tool":  map[string]any{"type": "string", "description": "Qualified tool name such as Gmail.SendEmail"},
					"input": map[string]any{"type": "object", "description": "Tool input"},
				},
				"required": []string{"tool"},
			},
			Handler: p.handleExecute,
		},
		{
			Name:        prefix + "authorize",
			Label:       "Arcade: authorize tool",
			Description: "Check or start the user's authorization for an Arcade tool.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"tool": map[string]any{"type": "string", "description": "Qualified tool name"},
					"wait": map[string]any{"type": "boolean", "description": "Block until the user completes authorization"},
				},
				"required": []string{"tool"},
			},
			Handler: p.handleAuthorize,
		},
	}
}

func (p *Plugin) handleListTools(ctx context.Context, params map[string]any) (any, error) {
	toolkit, _ := params["toolkit"].(string)
	limit := 0
	if n, ok := params["limit"].(float64); ok && n > 0 {
		limit = int(n)
	}
	tools, err := p.Engine().ListTools(ctx, toolkit, limit, false)
	if err != nil {
		return nil, err
	}
	return summarize(tools), nil
}

func (p *Plugin) handleExecute(ctx context.Context, params map[string]any) (any, error) {
	name, _ := params["tool"].(string)
	if name == "" {
		return nil, fmt.Errorf("%w: tool name required", arcade.ErrInvalidInput)
	}
	input, _ := params["input"].(map[string]any)
	res := p.Engine().ExecuteTool(ctx, name, input, toolexecutor.RunOptions{})
	return res, resultError(res)
}

func (p *Plugin) handleAuthorize(ctx context.Context, params map[string]any) (any, error) {
	name, _ := params["tool"].(string)
	eng := p.Engine()
	status, err := eng.Authorize(ctx, name)
	if err != nil {
		return nil, err
	}
	if wait, _ := params["wait"].(bool); wait && status.Status == arcade.AuthPending {
		return eng.WaitForAuthorization(ctx, status.AuthorizationID, authflow.WaitOptions{})
	}
	return status, nil
}

// dynamicTool exposes one discovered tool. Pending authorization comes back
// as a result carrying the URL, not as an error.
func (p *Plugin) dynamicTool(tool toolexecutor.RegisteredTool) plugin.ToolDefinition {
	description := tool.Description
	if description == "" {
		description = "Arcade tool " + tool.RemoteName
	}
	remoteName := tool.RemoteName
	return plugin.ToolDefinition{
		Name:        tool.LocalName,
		Label:       tool.RemoteName,
		Description: description,
		Parameters:  tool.ToJSONSchema(),
		Handler: func(ctx context.Context, params map[string]any) (any, error) {
			res := p.Engine().ExecuteTool(ctx, remoteName, params, toolexecutor.RunOptions{})
			return res, resultError(res)
		},
	}
}

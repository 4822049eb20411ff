package arcadeplugin

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/arcade/pkg/plugin"
)

const toolsPerToolkit = 5

func (p *Plugin) command() plugin.CommandDefinition {
	return plugin.CommandDefinition{
		Name:        "arcade",
		Description: "Show Arcade plugin status",
		AcceptsArgs: true,
		RequireAuth: true,
		Handler: func(ctx context.Context, cmd plugin.CommandContext) (plugin.CommandResult, error) {
			args := strings.ToLower(strings.TrimSpace(cmd.Args))
			switch {
			case args == "" || args == "status":
				return plugin.CommandResult{Text: p.statusText()}, nil
			case args == "tools" || strings.HasPrefix(args, "tools "):
				toolkit := strings.TrimSpace(strings.TrimPrefix(args, "tools"))
				return plugin.CommandResult{Text: p.toolsText(toolkit)}, nil
			default:
				return plugin.CommandResult{
					Text: fmt.Sprintf("Unknown command: /arcade %s\nUsage: /arcade [status|tools]", args),
				}, nil
			}
		},
	}
}

func (p *Plugin) statusText() string {
	cfg := p.config()
	entries := p.registeredTools()

	userID := cfg.UserID
	if userID == "" {
		userID = "(not set)"
	}
	kits := strings.Join(toolkits(entries), ", ")
	if kits == "" {
		kits = "none"
	}

	return strings.Join([]string{
		"Arcade.dev Plugin Status",
		fmt.Sprintf("• Enabled: %t", cfg.Enabled),
		fmt.Sprintf("• Configured: %t", p.Engine().IsConfigured()),
		fmt.Sprintf("• User ID: %s", userID),
		fmt.Sprintf("• Registered Tools: %d", len(entries)),
		fmt.Sprintf("• Toolkits: %s", kits),
	}, "\n")
}

// toolsText groups registered tools by toolkit in registration order. The
// toolkit argument matches as a case-insensitive substring.
func (p *Plugin) toolsText(toolkit string) string {
	var filtered []toolEntry
	for _, entry := range p.registeredTools() {
		if toolkit == "" || strings.Contains(strings.ToLower(entry.Toolkit), toolkit) {
			filtered = append(filtered, entry)
		}
	}
	if len(filtered) == 0 {
		if toolkit != "" {
			return fmt.Sprintf("No tools found for %q", toolkit)
		}
		return "No tools found"
	}

	var order []string
	groups := make(map[string][]toolEntry)
	for _, entry := range filtered {
		if _, ok := groups[entry.Toolkit]; !ok {
			order = append(order, entry.Toolkit)
		}
		groups[entry.Toolkit] = append(groups[entry.Toolkit], entry)
	}

	lines := []string{fmt.Sprintf("Arcade Tools (%d total):", len(filtered))}
	for _, kit := range order {
		tools := groups[kit]
		lines = append(lines, "\n"+kit+":")
		for i, tool := range tools {
			if i == toolsPerToolkit {
				lines = append(lines, fmt.Sprintf("  ... and %d more", len(tools)-toolsPerToolkit))
				break
			}
			lines = append(lines, "  • "+tool.ArcadeName)
		}
	}
	return strings.Join(lines, "\n")
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/arcade/pkg/arcade"
	"github.com/harun/arcade/pkg/authflow"
	"github.com/harun/arcade/pkg/engine"
	"github.com/harun/arcade/pkg/toolexecutor"
)

const (
	toolsPerToolkit = 10
	descriptionMax  = 60
)

var (
	listToolkit string
	listLimit   int
	listJSON    bool

	searchJSON bool

	executeInput   string
	executeJSON    bool
	executeNoWait  bool
	executeTimeout time.Duration
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Manage Arcade tools",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available Arcade tools",
	Args:  cobra.NoArgs,
	RunE:  runToolsList,
}

var toolsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search tools by name, description or toolkit",
	Args:  cobra.ExactArgs(1),
	RunE:  runToolsSearch,
}

var toolsInfoCmd = &cobra.Command{
	Use:   "info <tool>",
	Short: "Show detailed information about a tool",
	Args:  cobra.ExactArgs(1),
	RunE:  runToolsInfo,
}

var toolsExecuteCmd = &cobra.Command{
	Use:   "execute <tool>",
	Short: "Execute an Arcade tool",
	Long: `Execute an Arcade tool for the configured user. When the tool needs an
authorization the link is printed and the command waits for the grant,
unless --no-wait is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runToolsExecute,
}

func init() {
	toolsListCmd.Flags().StringVarP(&listToolkit, "toolkit", "t", "", "filter by toolkit (e.g. gmail, slack)")
	toolsListCmd.Flags().IntVarP(&listLimit, "limit", "l", 50, "maximum number of tools")
	toolsListCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")

	toolsSearchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")

	toolsExecuteCmd.Flags().StringVarP(&executeInput, "input", "i", "{}", "tool input as a JSON object")
	toolsExecuteCmd.Flags().BoolVar(&executeJSON, "json", false, "output as JSON")
	toolsExecuteCmd.Flags().BoolVar(&executeNoWait, "no-wait", false, "print the authorization link instead of waiting")
	toolsExecuteCmd.Flags().DurationVar(&executeTimeout, "timeout", 0, "authorization wait timeout (default from config)")

	toolsCmd.AddCommand(toolsListCmd, toolsSearchCmd, toolsInfoCmd, toolsExecuteCmd)
	rootCmd.AddCommand(toolsCmd)
}

func runToolsList(cmd *cobra.Command, args []string) error {
	eng, cleanup, err := openConfiguredEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	tools, err := eng.ListTools(cmd.Context(), listToolkit, listLimit, true)
	if err != nil {
		return fmt.Errorf("failed to list tools: %w", err)
	}

	out := cmd.OutOrStdout()
	if listJSON {
		return writeJSON(out, tools)
	}
	if len(tools) == 0 {
		fmt.Fprintln(out, "No tools found")
		return nil
	}

	names, groups := engine.GroupByToolkit(tools)
	fmt.Fprintf(out, "\nFound %d tools:\n\n", len(tools))
	for _, toolkit := range names {
		group := groups[toolkit]
		fmt.Fprintf(out, "%s (%d tools):\n", toolkit, len(group))
		for i, tool := range group {
			if i == toolsPerToolkit {
				fmt.Fprintf(out, "  ... and %d more\n", len(group)-toolsPerToolkit)
				break
			}
			fmt.Fprintf(out, "  - %s%s\n", tool.QualifiedName(), authMarker(tool))
			if tool.Description != "" {
				fmt.Fprintf(out, "    %s\n", truncate(tool.Description, descriptionMax))
			}
		}
		fmt.Fprintln(out)
	}
	return nil
}

func authMarker(tool arcade.ToolDescriptor) string {
	if tool.RequiresAuth {
		return " [auth]"
	}
	return ""
}

func runToolsSearch(cmd *cobra.Command, args []string) error {
	eng, cleanup, err := openConfiguredEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	query := args[0]
	matches, err := eng.SearchTools(cmd.Context(), query)
	if err != nil {
		return fmt.Errorf("failed to search tools: %w", err)
	}

	out := cmd.OutOrStdout()
	if searchJSON {
		return writeJSON(out, matches)
	}
	if len(matches) == 0 {
		fmt.Fprintf(out, "No tools found matching %q\n", query)
		return nil
	}

	fmt.Fprintf(out, "\nFound %d tools matching %q:\n\n", len(matches), query)
	for _, tool := range matches {
		fmt.Fprintf(out, "%s%s\n", tool.QualifiedName(), authMarker(tool))
		fmt.Fprintf(out, "  Toolkit: %s\n", tool.Toolkit)
		if tool.Description != "" {
			fmt.Fprintf(out, "  %s\n", tool.Description)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func runToolsInfo(cmd *cobra.Command, args []string) error {
	eng, cleanup, err := openConfiguredEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	tool, err := eng.ToolInfo(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get tool info: %w", err)
	}

	out := cmd.OutOrStdout()
	name := tool.QualifiedName()
	fmt.Fprintf(out, "\n%s\n%s\n", name, strings.Repeat("=", len(name)))
	fmt.Fprintf(out, "Toolkit: %s\n", tool.Toolkit)
	fmt.Fprintf(out, "Requires Auth: %s\n", yesNo(tool.RequiresAuth))
	if tool.AuthProvider != "" {
		fmt.Fprintf(out, "Auth Provider: %s\n", tool.AuthProvider)
	}
	if decision := eng.Filter().Explain(tool); decision.Allowed {
		fmt.Fprintln(out, "Allowed: Yes")
	} else {
		fmt.Fprintf(out, "Allowed: No (%s)\n", decision.Step)
	}
	fmt.Fprintf(out, "\nDescription:\n  %s\n", tool.Description)

	if len(tool.Parameters.Properties) > 0 {
		required := make(map[string]bool, len(tool.Parameters.Required))
		for _, r := range tool.Parameters.Required {
			required[r] = true
		}
		params := make([]string, 0, len(tool.Parameters.Properties))
		for p := range tool.Parameters.Properties {
			params = append(params, p)
		}
		sort.Strings(params)

		fmt.Fprintln(out, "\nParameters:")
		for _, p := range params {
			prop := tool.Parameters.Properties[p]
			suffix := ""
			if required[p] {
				suffix = " (required)"
			}
			fmt.Fprintf(out, "  %s: %s%s\n", p, prop.Type, suffix)
			if prop.Description != "" {
				fmt.Fprintf(out, "    %s\n", prop.Description)
			}
		}
	}
	fmt.Fprintln(out)
	return nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// parseInput accepts a JSON object; null is treated as empty.
func parseInput(raw string) (map[string]any, error) {
	var input map[string]any
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return nil, fmt.Errorf("%w: input must be a JSON object: %v", arcade.ErrInvalidInput, err)
	}
	if input == nil {
		input = map[string]any{}
	}
	return input, nil
}

func runToolsExecute(cmd *cobra.Command, args []string) error {
	input, err := parseInput(executeInput)
	if err != nil {
		return err
	}

	eng, cleanup, err := openConfiguredEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	out := cmd.OutOrStdout()
	name := args[0]
	if !executeJSON {
		fmt.Fprintf(out, "Executing %s...\n", name)
	}

	res := eng.ExecuteTool(cmd.Context(), name, input, toolexecutor.RunOptions{
		OnAuthRequired: func(ctx context.Context, status arcade.AuthorizationStatus) toolexecutor.AuthDecision {
			if executeNoWait {
				return toolexecutor.ReturnPending
			}
			fmt.Fprintf(out, "\nAuthorization required. Please visit:\n%s\n\n", status.AuthorizationURL)
			fmt.Fprintln(out, "Waiting for authorization...")
			return toolexecutor.AlwaysWait(ctx, status)
		},
		Wait: authflow.WaitOptions{Timeout: executeTimeout},
	})

	if executeJSON {
		if err := writeJSON(out, res); err != nil {
			return err
		}
		if res.Error != nil {
			return fmt.Errorf("execution failed (%s): %s", res.Error.Code, res.Error.Message)
		}
		return nil
	}

	switch {
	case res.Success:
		fmt.Fprintln(out, "\nSuccess!")
		return writeJSON(out, res.Output)
	case res.AuthorizationRequired:
		fmt.Fprintf(out, "\nAuthorization required: %s\n", res.AuthorizationURL)
		return nil
	case res.Error != nil:
		return fmt.Errorf("execution failed (%s): %s", res.Error.Code, res.Error.Message)
	default:
		return fmt.Errorf("execution failed")
	}
}

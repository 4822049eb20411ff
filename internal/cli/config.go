package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/harun/arcade/internal/config"
)

var (
	configJSON bool
	configYAML bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the current configuration",
	Long:  `Show the effective configuration after defaults, the config file and ARCADE_* variables. Secrets are masked.`,
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configJSON, "json", false, "output as JSON")
	configCmd.Flags().BoolVar(&configYAML, "yaml", false, "output as YAML")
	configCmd.MarkFlagsMutuallyExclusive("json", "yaml")
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	safe := cfg.Safe()
	out := cmd.OutOrStdout()

	switch {
	case configJSON:
		return writeJSON(out, safe)
	case configYAML:
		data, err := yaml.Marshal(safe)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		_, err = out.Write(data)
		return err
	}

	printConfig(out, safe)
	return nil
}

func printConfig(out io.Writer, cfg *config.Config) {
	userID := cfg.UserID
	if userID == "" {
		userID = "(not set)"
	}

	fmt.Fprintln(out, "\nArcade Configuration:")
	fmt.Fprintf(out, "  Enabled: %t\n", cfg.Enabled)
	fmt.Fprintf(out, "  API Key: %s\n", cfg.APIKey)
	fmt.Fprintf(out, "  User ID: %s\n", userID)
	fmt.Fprintf(out, "  Base URL: %s\n", cfg.BaseURL)
	fmt.Fprintf(out, "  Tool Prefix: %s\n", cfg.ToolPrefix)
	fmt.Fprintf(out, "  Auto Auth: %t\n", cfg.AutoAuth)
	fmt.Fprintf(out, "  Cache TTL: %dms\n", cfg.Cache.TTLMs)

	if len(cfg.Tools.Allow) > 0 || len(cfg.Tools.Deny) > 0 {
		fmt.Fprintln(out, "\n  Tool Filters:")
		if len(cfg.Tools.Allow) > 0 {
			fmt.Fprintf(out, "    Allow: %s\n", strings.Join(cfg.Tools.Allow, ", "))
		}
		if len(cfg.Tools.Deny) > 0 {
			fmt.Fprintf(out, "    Deny: %s\n", strings.Join(cfg.Tools.Deny, ", "))
		}
	}

	if len(cfg.Toolkits) > 0 {
		ids := make([]string, 0, len(cfg.Toolkits))
		for id := range cfg.Toolkits {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		fmt.Fprintln(out, "\n  Toolkit Config:")
		for _, id := range ids {
			tk := cfg.Toolkits[id]
			enabled := tk.Enabled == nil || *tk.Enabled
			fmt.Fprintf(out, "    %s: enabled=%t\n", id, enabled)
			if len(tk.Tools) > 0 {
				fmt.Fprintf(out, "      tools: %s\n", strings.Join(tk.Tools, ", "))
			}
		}
	}
	fmt.Fprintln(out)
}

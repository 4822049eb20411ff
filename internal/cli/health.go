package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check Arcade API health",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine status",
	Long:  `Show whether the engine is enabled and configured, the user it acts for and whether the API answers.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(healthCmd, statusCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	eng, cleanup, err := openConfiguredEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := eng.Health(cmd.Context()); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Arcade API is healthy")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	eng, cleanup, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	s := eng.Status(cmd.Context())
	userID := s.UserID
	if userID == "" {
		userID = "(not set)"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Enabled: %t\n", s.Enabled)
	fmt.Fprintf(out, "Configured: %t\n", s.Configured)
	fmt.Fprintf(out, "User ID: %s\n", userID)
	if s.Configured {
		fmt.Fprintf(out, "Healthy: %t\n", s.Healthy)
	}
	return nil
}

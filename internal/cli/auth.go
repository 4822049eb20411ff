package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/arcade/pkg/arcade"
	"github.com/harun/arcade/pkg/authflow"
)

var (
	authStatusTool string
	authStatusJSON bool
	loginTimeout   time.Duration
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Arcade authorization",
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check authorization for a tool, or list connections",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

var authLoginCmd = &cobra.Command{
	Use:   "login <tool>",
	Short: "Authorize a tool and wait for the grant",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthLogin,
}

var authRevokeCmd = &cobra.Command{
	Use:   "revoke <connectionId>",
	Short: "Revoke an authorization connection",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthRevoke,
}

func init() {
	authStatusCmd.Flags().StringVarP(&authStatusTool, "tool", "t", "", "check a specific tool")
	authStatusCmd.Flags().BoolVar(&authStatusJSON, "json", false, "output as JSON")
	authLoginCmd.Flags().DurationVar(&loginTimeout, "timeout", 5*time.Minute, "how long to wait for the grant")

	authCmd.AddCommand(authStatusCmd, authLoginCmd, authRevokeCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	eng, cleanup, err := openConfiguredEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := eng.AuthStatus(cmd.Context(), authStatusTool)
	if err != nil {
		return fmt.Errorf("failed to check auth status: %w", err)
	}

	out := cmd.OutOrStdout()
	if result.Tool != nil {
		if authStatusJSON {
			return writeJSON(out, result.Tool)
		}
		fmt.Fprintf(out, "\nTool: %s\n", authStatusTool)
		fmt.Fprintf(out, "Status: %s\n", result.Tool.Status)
		if result.Tool.AuthorizationURL != "" {
			fmt.Fprintf(out, "Auth URL: %s\n", result.Tool.AuthorizationURL)
		}
		if len(result.Tool.Scopes) > 0 {
			fmt.Fprintf(out, "Scopes: %s\n", strings.Join(result.Tool.Scopes, ", "))
		}
		fmt.Fprintln(out)
		return nil
	}

	if authStatusJSON {
		return writeJSON(out, result.Connections)
	}
	fmt.Fprintln(out, "\nAuthorized Connections:")
	if len(result.Connections) == 0 {
		fmt.Fprintln(out, "  No connections found")
	}
	for _, conn := range result.Connections {
		data, err := json.Marshal(conn)
		if err != nil {
			return fmt.Errorf("failed to encode connection: %w", err)
		}
		fmt.Fprintf(out, "  - %s\n", data)
	}
	fmt.Fprintln(out)
	return nil
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	eng, cleanup, err := openConfiguredEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	name := args[0]
	out := cmd.OutOrStdout()

	status, err := eng.Authorize(cmd.Context(), name)
	if err != nil {
		return fmt.Errorf("failed to initiate auth: %w", err)
	}
	switch {
	case status.Status == arcade.AuthCompleted:
		fmt.Fprintf(out, "Already authorized for %s\n", name)
		return nil
	case status.Status == arcade.AuthFailed:
		return fmt.Errorf("authorization failed for %s", name)
	case status.AuthorizationURL == "":
		return fmt.Errorf("no authorization URL returned for %s", name)
	}

	fmt.Fprintf(out, "\nPlease visit the following URL to authorize %s:\n\n  %s\n\n", name, status.AuthorizationURL)
	if status.AuthorizationID == "" {
		return nil
	}

	fmt.Fprintln(out, "Waiting for authorization...")
	final, err := eng.WaitForAuthorization(cmd.Context(), status.AuthorizationID, authflow.WaitOptions{
		Timeout: loginTimeout,
		OnPoll: func(int, arcade.AuthorizationStatus) {
			fmt.Fprint(out, ".")
		},
	})
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("authorization failed or timed out: %w", err)
	}
	if final.Status != arcade.AuthCompleted {
		return fmt.Errorf("authorization %s for %s", final.Status, name)
	}
	fmt.Fprintf(out, "Successfully authorized %s\n", name)
	return nil
}

func runAuthRevoke(cmd *cobra.Command, args []string) error {
	eng, cleanup, err := openConfiguredEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := eng.RevokeConnection(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to revoke: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Revoked connection: %s\n", args[0])
	return nil
}

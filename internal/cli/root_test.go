package cli

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/arcade/internal/config"
	"github.com/harun/arcade/pkg/arcade"
	"github.com/harun/arcade/pkg/engine"
)

// fakeRemote records every call so tests can assert what reached the API.
type fakeRemote struct {
	mu         sync.Mutex
	configured bool
	tools      []arcade.ToolDescriptor
	grants     map[string]arcade.AuthState
	calls      []string
	healthErr  error
}

func newFakeRemote() *fakeRemote {
	tools := []arcade.ToolDescriptor{
		{
			Name:         "Gmail.SendEmail",
			Toolkit:      "Gmail",
			Description:  "Send an email from the user's Gmail account to one or more recipients",
			RequiresAuth: true,
			AuthProvider: "google",
			Parameters: arcade.InputSchema{
				Type: "object",
				Properties: map[string]arcade.Property{
					"to":      {Type: "string", Description: "Recipient address"},
					"subject": {Type: "string"},
				},
				Required: []string{"to"},
			},
		},
		{Name: "Search.Web", Toolkit: "Search", Description: "Search the web"},
	}
	for i := 1; i <= 11; i++ {
		tools = append(tools, arcade.ToolDescriptor{
			Name:         fmt.Sprintf("Gmail.Action%02d", i),
			Toolkit:      "Gmail",
			RequiresAuth: true,
		})
	}
	return &fakeRemote{
		configured: true,
		tools:      tools,
		grants:     map[string]arcade.AuthState{},
	}
}

func (f *fakeRemote) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeRemote) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) IsConfigured() bool { return f.configured }
func (f *fakeRemote) UserID() string     { return "user@example.com" }

func (f *fakeRemote) ListTools(ctx context.Context, opts arcade.ListToolsOptions) ([]arcade.ToolDescriptor, error) {
	f.record("list")
	return f.tools, nil
}

func (f *fakeRemote) GetTool(ctx context.Context, name string) (arcade.ToolDescriptor, error) {
	f.record("get:" + name)
	for _, tool := range f.tools {
		if tool.QualifiedName() == name {
			return tool, nil
		}
	}
	return arcade.ToolDescriptor{}, arcade.ErrNotFound
}

func (f *fakeRemote) Execute(ctx context.Context, name string, input map[string]any) (arcade.ExecutePayload, error) {
	f.record("execute:" + name)
	return arcade.ExecutePayload{Success: true, Output: map[string]any{"id": "msg-1"}}, nil
}

func (f *fakeRemote) Authorize(ctx context.Context, name string) (arcade.AuthorizationStatus, error) {
	f.record("authorize:" + name)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tool := range f.tools {
		if tool.QualifiedName() == name && !tool.RequiresAuth {
			return arcade.AuthorizationStatus{ToolName: name, Status: arcade.AuthCompleted}, nil
		}
	}
	if f.grants[name] == arcade.AuthCompleted {
		return arcade.AuthorizationStatus{ToolName: name, Status: arcade.AuthCompleted, Scopes: []string{"gmail.send"}}, nil
	}
	return arcade.AuthorizationStatus{
		ToolName:         name,
		Status:           arcade.AuthPending,
		AuthorizationID:  "auth-" + name,
		AuthorizationURL: "https://auth.arcade.test/" + name,
	}, nil
}

// AuthStatus completes the grant on the first poll.
func (f *fakeRemote) AuthStatus(ctx context.Context, id string) (arcade.AuthorizationStatus, error) {
	f.record("poll:" + id)
	name := strings.TrimPrefix(id, "auth-")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grants[name] = arcade.AuthCompleted
	return arcade.AuthorizationStatus{ToolName: name, Status: arcade.AuthCompleted}, nil
}

func (f *fakeRemote) ListConnections(ctx context.Context, userID string) ([]arcade.Connection, error) {
	f.record("connections")
	return []arcade.Connection{{"id": "conn-1"}}, nil
}

func (f *fakeRemote) DeleteConnection(ctx context.Context, id string) error {
	f.record("delete:" + id)
	return nil
}

func (f *fakeRemote) Health(ctx context.Context) error {
	f.record("health")
	return f.healthErr
}

// resetCommand clears flag values and contexts left over from earlier runs
// of the shared command tree.
func resetCommand(cmd *cobra.Command, ctx context.Context) {
	cmd.SetContext(ctx)
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetCommand(c, ctx)
	}
}

// runCLIContext runs the root command against remote with a config path in
// a temp dir and returns stdout.
func runCLIContext(t *testing.T, ctx context.Context, remote engine.Remote, args ...string) (string, error) {
	t.Helper()
	resetCommand(rootCmd, ctx)

	newRemote = func(*config.Config) engine.Remote { return remote }
	t.Cleanup(func() { newRemote = nil })

	stdout := &bytes.Buffer{}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "arcade.json")}, args...))

	err := rootCmd.ExecuteContext(ctx)
	return stdout.String(), err
}

func runCLI(t *testing.T, remote engine.Remote, args ...string) (string, error) {
	t.Helper()
	return runCLIContext(t, context.Background(), remote, args...)
}

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		out, err := runCLI(t, newFakeRemote(), "--version")
		require.NoError(t, err)

		assert.Contains(t, out, "arcade version")
		assert.Contains(t, out, GetVersion())
	})

	t.Run("help flag", func(t *testing.T) {
		out, err := runCLI(t, newFakeRemote(), "--help")
		require.NoError(t, err)

		assert.Contains(t, out, "Arcade")
		assert.Contains(t, out, "tools")
		assert.Contains(t, out, "serve")
	})

	t.Run("global flags", func(t *testing.T) {
		cmd := GetRootCmd()

		configFlag := cmd.PersistentFlags().Lookup("config")
		require.NotNil(t, configFlag)
		assert.Equal(t, "", configFlag.DefValue)

		logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
		require.NotNil(t, logLevelFlag)
		assert.Equal(t, "info", logLevelFlag.DefValue)
	})

	t.Run("subcommands", func(t *testing.T) {
		names := map[string]bool{}
		for _, c := range GetRootCmd().Commands() {
			names[c.Name()] = true
		}
		for _, want := range []string{"tools", "auth", "config", "health", "status", "serve"} {
			assert.True(t, names[want], "missing %s", want)
		}
	})
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	assert.NotEmpty(t, version)
	assert.True(t, strings.HasPrefix(version, "0."))
}

func TestLoadConfig_LogLevelFlag(t *testing.T) {
	_, err := runCLI(t, newFakeRemote(), "--log-level", "loud", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestNotConfigured(t *testing.T) {
	remote := newFakeRemote()
	remote.configured = false

	for _, args := range [][]string{
		{"tools", "list"},
		{"tools", "search", "mail"},
		{"tools", "info", "Gmail.SendEmail"},
		{"tools", "execute", "Gmail.SendEmail"},
		{"auth", "status"},
		{"auth", "login", "Gmail.SendEmail"},
		{"auth", "revoke", "conn-1"},
		{"health"},
	} {
		_, err := runCLI(t, remote, args...)
		require.Error(t, err, args)
		assert.ErrorIs(t, err, arcade.ErrNotConfigured, args)
		assert.Contains(t, err.Error(), "ARCADE_API_KEY")
	}
	assert.Empty(t, remote.recorded())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 60))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
	assert.Equal(t, "héé...", truncate("hééllo", 3))
}

func TestStatusCommand(t *testing.T) {
	out, err := runCLI(t, newFakeRemote(), "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Enabled: true")
	assert.Contains(t, out, "Configured: true")
	assert.Contains(t, out, "User ID: user@example.com")
	assert.Contains(t, out, "Healthy: true")
}

func TestHealthCommand(t *testing.T) {
	remote := newFakeRemote()
	out, err := runCLI(t, remote, "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Arcade API is healthy")

	remote.healthErr = arcade.ErrRemoteUnavailable
	_, err = runCLI(t, remote, "health")
	require.Error(t, err)
	assert.ErrorIs(t, err, arcade.ErrRemoteUnavailable)
	assert.Contains(t, err.Error(), "health check failed")
}

func TestServeCommand_StopsOnCancel(t *testing.T) {
	t.Setenv("ARCADE_SERVER_LISTEN", "127.0.0.1:0")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runCLIContext(t, ctx, newFakeRemote(), "serve")
	assert.NoError(t, err)
}

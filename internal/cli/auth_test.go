package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/arcade/pkg/arcade"
)

func TestAuthStatus_Tool(t *testing.T) {
	out, err := runCLI(t, newFakeRemote(), "auth", "status", "-t", "Gmail.SendEmail")
	require.NoError(t, err)
	assert.Contains(t, out, "Tool: Gmail.SendEmail")
	assert.Contains(t, out, "Status: pending")
	assert.Contains(t, out, "Auth URL: https://auth.arcade.test/Gmail.SendEmail")

	remote := newFakeRemote()
	remote.grants["Gmail.SendEmail"] = arcade.AuthCompleted
	out, err = runCLI(t, remote, "auth", "status", "-t", "Gmail.SendEmail", "--json")
	require.NoError(t, err)

	var status arcade.AuthorizationStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, arcade.AuthCompleted, status.Status)
	assert.Equal(t, []string{"gmail.send"}, status.Scopes)
}

func TestAuthStatus_Connections(t *testing.T) {
	out, err := runCLI(t, newFakeRemote(), "auth", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Authorized Connections:")
	assert.Contains(t, out, `  - {"id":"conn-1"}`)

	out, err = runCLI(t, newFakeRemote(), "auth", "status", "--json")
	require.NoError(t, err)
	var conns []arcade.Connection
	require.NoError(t, json.Unmarshal([]byte(out), &conns))
	assert.Len(t, conns, 1)
}

func TestAuthLogin_AlreadyAuthorized(t *testing.T) {
	remote := newFakeRemote()
	remote.grants["Gmail.SendEmail"] = arcade.AuthCompleted

	out, err := runCLI(t, remote, "auth", "login", "Gmail.SendEmail")
	require.NoError(t, err)
	assert.Contains(t, out, "Already authorized for Gmail.SendEmail")
	assert.Equal(t, []string{"authorize:Gmail.SendEmail"}, remote.recorded())
}

func TestAuthLogin_WaitsForGrant(t *testing.T) {
	remote := newFakeRemote()
	out, err := runCLI(t, remote, "auth", "login", "Gmail.SendEmail", "--timeout", "5s")
	require.NoError(t, err)

	assert.Contains(t, out, "Please visit the following URL to authorize Gmail.SendEmail:")
	assert.Contains(t, out, "  https://auth.arcade.test/Gmail.SendEmail")
	assert.Contains(t, out, "Waiting for authorization...")
	assert.Contains(t, out, "Successfully authorized Gmail.SendEmail")
	assert.Equal(t, []string{"authorize:Gmail.SendEmail", "poll:auth-Gmail.SendEmail"}, remote.recorded())
}

func TestAuthRevoke(t *testing.T) {
	remote := newFakeRemote()
	out, err := runCLI(t, remote, "auth", "revoke", "conn-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Revoked connection: conn-1")
	assert.Equal(t, []string{"delete:conn-1"}, remote.recorded())

	_, err = runCLI(t, remote, "auth", "revoke")
	assert.Error(t, err)
}

package toolexecutor

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/arcade/pkg/arcade"
	"github.com/harun/arcade/pkg/toolfilter"
)

func gmailSend() arcade.ToolDescriptor {
	return arcade.ToolDescriptor{
		Name:         "Gmail.SendEmail",
		Toolkit:      "Gmail",
		Description:  "Send an email",
		RequiresAuth: true,
		AuthProvider: "google",
		Parameters: arcade.InputSchema{
			Type: "object",
			Properties: map[string]arcade.Property{
				"to":      {Type: "string", Description: "Recipient"},
				"subject": {Type: "string"},
			},
			Required: []string{"to"},
		},
	}
}

func TestDiscover_FetchFilterProject(t *testing.T) {
	remote := newFakeRemote(t)
	remote.tools = []arcade.ToolDescriptor{
		gmailSend(),
		{Name: "Gmail.DeleteMessage", Toolkit: "Gmail", RequiresAuth: true},
		{Name: "Slack.PostMessage", Toolkit: "Slack", RequiresAuth: true},
		{Name: "Search.Web", Toolkit: "Search"},
		{Name: "Gmail.Broken", Toolkit: "Gmail", Parameters: arcade.InputSchema{Required: []string{"missing"}}},
	}
	filter := toolfilter.New(toolfilter.Rule{Deny: []string{"Gmail.Delete*"}}, zerolog.Nop())
	gw := newTestGateway(remote, filter)

	tools, err := gw.Discover(context.Background(), false)
	require.NoError(t, err)

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.LocalName)
	}
	assert.Equal(t, []string{"arcade_gmail_sendemail", "arcade_slack_postmessage", "arcade_search_web"}, names)
	assert.Equal(t, []string{"Gmail", "Search", "Slack"}, gw.Registry().Toolkits())
}

// A descriptor that survives filtering keeps its toolkit and auth flag.
func TestDiscover_RoundTripPreservesToolkitAndAuth(t *testing.T) {
	descs := []arcade.ToolDescriptor{
		gmailSend(),
		{Name: "Search.Web", Toolkit: "Search", RequiresAuth: false},
		{Name: "PostMessage", Toolkit: "Slack", RequiresAuth: true},
	}
	remote := newFakeRemote(t)
	remote.tools = descs
	gw := newTestGateway(remote, nil)

	_, err := gw.Discover(context.Background(), true)
	require.NoError(t, err)

	for _, desc := range descs {
		tool, ok := gw.Registry().Get(desc.QualifiedName())
		require.True(t, ok, desc.Name)
		assert.Equal(t, desc.Toolkit, tool.Toolkit)
		assert.Equal(t, desc.RequiresAuth, tool.RequiresAuth)
		assert.Equal(t, desc.QualifiedName(), tool.RemoteName)
	}
}

func TestDiscover_ReplacesRegistry(t *testing.T) {
	remote := newFakeRemote(t)
	remote.tools = []arcade.ToolDescriptor{gmailSend()}
	gw := newTestGateway(remote, nil)

	_, err := gw.Discover(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, gw.Registry().Len())

	remote.tools = []arcade.ToolDescriptor{{Name: "Slack.PostMessage", Toolkit: "Slack"}}
	_, err = gw.Discover(context.Background(), true)
	require.NoError(t, err)

	_, stillThere := gw.Registry().Get("arcade_gmail_sendemail")
	assert.False(t, stillThere)
	_, ok := gw.Registry().Get("arcade_slack_postmessage")
	assert.True(t, ok)
}

func TestDiscover_RequiresCatalog(t *testing.T) {
	gw := NewGateway(newFakeRemote(t), nil, nil, nil, nil, Options{Logger: zerolog.Nop()})
	_, err := gw.Discover(context.Background(), false)
	assert.Error(t, err)
}

package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.Enabled)
	assert.False(t, cfg.IsConfigured())
	assert.Equal(t, "https://api.arcade.dev", cfg.BaseURL)
	assert.Equal(t, "arcade_", cfg.ToolPrefix)
	assert.True(t, cfg.AutoAuth)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL())
	assert.Equal(t, time.Hour, cfg.CacheMaxStale())
	assert.Equal(t, time.Second, cfg.PollInterval())
	assert.Equal(t, 5*time.Minute, cfg.AuthTimeout())
	assert.True(t, cfg.Auth.DedupeInitiation)
	assert.Equal(t, "127.0.0.1:18790", cfg.Server.Listen)
	assert.Equal(t, "/arcade/webhook", cfg.Webhook.Path)
	assert.NoError(t, cfg.Validate())
}

func TestCacheMaxStaleNegative(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.MaxStaleMs = -5
	assert.Equal(t, time.Duration(-1), cfg.CacheMaxStale())
}

func TestSafe(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "arc_1234567890abcdef"
	cfg.Webhook.Secret = "whsec"

	safe := cfg.Safe()
	assert.Equal(t, "arc_1234...", safe.APIKey)
	assert.Equal(t, "(set)", safe.Webhook.Secret)
	assert.Equal(t, "arc_1234567890abcdef", cfg.APIKey, "original must be untouched")

	assert.Equal(t, "(not set)", DefaultConfig().Safe().APIKey)
	assert.Equal(t, "ab...", MaskSecret("abcd"))
}

func TestString_IsRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "arc_supersecretvalue"

	out := cfg.String()
	assert.NotContains(t, out, "supersecretvalue")

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "arc_supe...", decoded["api_key"])
}

func TestFilterRule(t *testing.T) {
	disabled := false
	cfg := DefaultConfig()
	cfg.Tools.Allow = []string{"Gmail.*"}
	cfg.Tools.Deny = []string{"Gmail.Delete*"}
	cfg.Toolkits = map[string]ToolkitConfig{
		"slack":  {Enabled: &disabled},
		"github": {Tools: []string{"CreateIssue"}},
		"notion": {},
	}

	rule := cfg.FilterRule()
	assert.Equal(t, []string{"Gmail.*"}, rule.Allow)
	assert.Equal(t, []string{"Gmail.Delete*"}, rule.Deny)
	assert.Equal(t, map[string]bool{"slack": false}, rule.ToolkitEnabled)
	assert.Equal(t, map[string][]string{"github": {"CreateIssue"}}, rule.ToolkitTools)
}

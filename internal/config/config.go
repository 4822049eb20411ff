package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/harun/arcade/pkg/arcade"
	"github.com/harun/arcade/pkg/toolfilter"
)

// Config represents the Arcade engine configuration
type Config struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled" yaml:"enabled"`
	APIKey     string `json:"api_key" mapstructure:"api_key" yaml:"api_key"`
	UserID     string `json:"user_id" mapstructure:"user_id" yaml:"user_id"`
	BaseURL    string `json:"base_url" mapstructure:"base_url" yaml:"base_url"`
	ToolPrefix string `json:"tool_prefix" mapstructure:"tool_prefix" yaml:"tool_prefix"`
	AutoAuth   bool   `json:"auto_auth" mapstructure:"auto_auth" yaml:"auto_auth"`

	Cache    CacheConfig              `json:"cache" mapstructure:"cache" yaml:"cache"`
	Auth     AuthConfig               `json:"auth" mapstructure:"auth" yaml:"auth"`
	HTTP     HTTPConfig               `json:"http" mapstructure:"http" yaml:"http"`
	Tools    ToolsConfig              `json:"tools" mapstructure:"tools" yaml:"tools"`
	Toolkits map[string]ToolkitConfig `json:"toolkits,omitempty" mapstructure:"toolkits" yaml:"toolkits,omitempty"`
	Server   ServerConfig             `json:"server" mapstructure:"server" yaml:"server"`
	Webhook  WebhookConfig            `json:"webhook" mapstructure:"webhook" yaml:"webhook"`
	Logging  LoggingConfig            `json:"logging" mapstructure:"logging" yaml:"logging"`
}

// CacheConfig holds catalog cache settings
type CacheConfig struct {
	TTLMs      int `json:"ttl_ms" mapstructure:"ttl_ms" yaml:"ttl_ms"`
	MaxStaleMs int `json:"max_stale_ms" mapstructure:"max_stale_ms" yaml:"max_stale_ms"` // negative disables the ceiling
	// RefreshSchedule is a cron expression for background re-discovery in serve mode.
	RefreshSchedule string `json:"refresh_schedule,omitempty" mapstructure:"refresh_schedule" yaml:"refresh_schedule,omitempty"`
}

// AuthConfig holds authorization polling settings
type AuthConfig struct {
	PollIntervalMs   int  `json:"poll_interval_ms" mapstructure:"poll_interval_ms" yaml:"poll_interval_ms"`
	TimeoutMs        int  `json:"timeout_ms" mapstructure:"timeout_ms" yaml:"timeout_ms"`
	DedupeInitiation bool `json:"dedupe_initiation" mapstructure:"dedupe_initiation" yaml:"dedupe_initiation"`
}

// HTTPConfig holds remote API client settings
type HTTPConfig struct {
	TimeoutMs  int `json:"timeout_ms" mapstructure:"timeout_ms" yaml:"timeout_ms"`
	RetryCount int `json:"retry_count" mapstructure:"retry_count" yaml:"retry_count"`
}

// ToolsConfig holds tool allow/deny patterns
type ToolsConfig struct {
	Allow []string `json:"allow,omitempty" mapstructure:"allow" yaml:"allow,omitempty"`
	Deny  []string `json:"deny,omitempty" mapstructure:"deny" yaml:"deny,omitempty"`
}

// ToolkitConfig holds per-toolkit settings
type ToolkitConfig struct {
	Enabled *bool    `json:"enabled,omitempty" mapstructure:"enabled" yaml:"enabled,omitempty"`
	Tools   []string `json:"tools,omitempty" mapstructure:"tools" yaml:"tools,omitempty"`
}

// ServerConfig holds the serve-mode HTTP listener settings
type ServerConfig struct {
	Listen  string `json:"listen" mapstructure:"listen" yaml:"listen"`
	Metrics bool   `json:"metrics" mapstructure:"metrics" yaml:"metrics"`
	// RPC admission; zero disables the bound.
	RequestsPerMinute int `json:"requests_per_minute" mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	MaxConcurrent     int `json:"max_concurrent" mapstructure:"max_concurrent" yaml:"max_concurrent"`
}

// WebhookConfig holds provider webhook settings
type WebhookConfig struct {
	Path   string `json:"path" mapstructure:"path" yaml:"path"`
	Secret string `json:"secret,omitempty" mapstructure:"secret" yaml:"secret,omitempty"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level" yaml:"level"`
	File      string `json:"file,omitempty" mapstructure:"file" yaml:"file,omitempty"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty" yaml:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction" yaml:"redaction"`
	AuditFile string `json:"audit_file,omitempty" mapstructure:"audit_file" yaml:"audit_file,omitempty"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Enabled:    true,
		BaseURL:    arcade.DefaultBaseURL,
		ToolPrefix: "arcade_",
		AutoAuth:   true,
		Cache: CacheConfig{
			TTLMs:      300000,
			MaxStaleMs: 3600000,
		},
		Auth: AuthConfig{
			PollIntervalMs:   1000,
			TimeoutMs:        300000,
			DedupeInitiation: true,
		},
		HTTP: HTTPConfig{
			TimeoutMs:  30000,
			RetryCount: 2,
		},
		Server: ServerConfig{
			Listen:            "127.0.0.1:18790",
			Metrics:           true,
			RequestsPerMinute: 600,
			MaxConcurrent:     32,
		},
		Webhook: WebhookConfig{
			Path: "/arcade/webhook",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
	}
}

// IsConfigured reports whether an API key is set
func (c *Config) IsConfigured() bool {
	return c.APIKey != ""
}

// CacheTTL returns the catalog TTL
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMs) * time.Millisecond
}

// CacheMaxStale returns the stale ceiling past TTL
func (c *Config) CacheMaxStale() time.Duration {
	if c.Cache.MaxStaleMs < 0 {
		return -1
	}
	return time.Duration(c.Cache.MaxStaleMs) * time.Millisecond
}

// PollInterval returns the authorization poll interval
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Auth.PollIntervalMs) * time.Millisecond
}

// AuthTimeout returns the authorization wait budget
func (c *Config) AuthTimeout() time.Duration {
	return time.Duration(c.Auth.TimeoutMs) * time.Millisecond
}

// HTTPTimeout returns the per-request timeout
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutMs) * time.Millisecond
}

// FilterRule converts tool and toolkit settings into a filter rule
func (c *Config) FilterRule() toolfilter.Rule {
	rule := toolfilter.Rule{
		Allow: append([]string(nil), c.Tools.Allow...),
		Deny:  append([]string(nil), c.Tools.Deny...),
	}
	for id, tk := range c.Toolkits {
		if tk.Enabled != nil {
			if rule.ToolkitEnabled == nil {
				rule.ToolkitEnabled = make(map[string]bool)
			}
			rule.ToolkitEnabled[id] = *tk.Enabled
		}
		if len(tk.Tools) > 0 {
			if rule.ToolkitTools == nil {
				rule.ToolkitTools = make(map[string][]string)
			}
			rule.ToolkitTools[id] = append([]string(nil), tk.Tools...)
		}
	}
	return rule
}

// Safe returns a copy suitable for display, with secrets masked
func (c *Config) Safe() *Config {
	safe := *c
	safe.APIKey = MaskSecret(c.APIKey)
	if c.Webhook.Secret != "" {
		safe.Webhook.Secret = "(set)"
	}
	return &safe
}

// MaskSecret keeps the first eight characters of a secret
func MaskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return s[:len(s)/2] + "..."
	}
	return s[:8] + "..."
}

// String returns a JSON representation of the redacted config
func (c *Config) String() string {
	data, err := json.MarshalIndent(c.Safe(), "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

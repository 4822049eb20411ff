package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "ARCADE"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// DefaultConfigPath returns ~/.arcade/arcade.json
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".arcade", "arcade.json")
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	return DefaultConfigPath()
}

// Load reads defaults, then the config file if it exists, then ARCADE_*
// environment variables.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range map[string]string{
		"api_key":  "ARCADE_API_KEY",
		"user_id":  "ARCADE_USER_ID",
		"base_url": "ARCADE_BASE_URL",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	configPath := l.GetConfigPath()
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("json")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")

	return cfg, nil
}

// Save writes the configuration to the config file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to resolve config path")
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("enabled", cfg.Enabled)
	v.Set("api_key", cfg.APIKey)
	v.Set("user_id", cfg.UserID)
	v.Set("base_url", cfg.BaseURL)
	v.Set("tool_prefix", cfg.ToolPrefix)
	v.Set("auto_auth", cfg.AutoAuth)
	v.Set("cache", cfg.Cache)
	v.Set("auth", cfg.Auth)
	v.Set("http", cfg.HTTP)
	v.Set("tools", cfg.Tools)
	v.Set("toolkits", cfg.Toolkits)
	v.Set("server", cfg.Server)
	v.Set("webhook", cfg.Webhook)
	v.Set("logging", cfg.Logging)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("enabled", d.Enabled)
	v.SetDefault("api_key", "")
	v.SetDefault("user_id", "")
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("tool_prefix", d.ToolPrefix)
	v.SetDefault("auto_auth", d.AutoAuth)
	v.SetDefault("cache.ttl_ms", d.Cache.TTLMs)
	v.SetDefault("cache.max_stale_ms", d.Cache.MaxStaleMs)
	v.SetDefault("cache.refresh_schedule", "")
	v.SetDefault("auth.poll_interval_ms", d.Auth.PollIntervalMs)
	v.SetDefault("auth.timeout_ms", d.Auth.TimeoutMs)
	v.SetDefault("auth.dedupe_initiation", d.Auth.DedupeInitiation)
	v.SetDefault("http.timeout_ms", d.HTTP.TimeoutMs)
	v.SetDefault("http.retry_count", d.HTTP.RetryCount)
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.metrics", d.Server.Metrics)
	v.SetDefault("server.requests_per_minute", d.Server.RequestsPerMinute)
	v.SetDefault("server.max_concurrent", d.Server.MaxConcurrent)
	v.SetDefault("webhook.path", d.Webhook.Path)
	v.SetDefault("webhook.secret", "")
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.pretty", d.Logging.Pretty)
	v.SetDefault("logging.redaction", d.Logging.Redaction)
	v.SetDefault("logging.audit_file", "")
}

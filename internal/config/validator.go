package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate checks ranges and syntax. It does not require an API key; an
// unconfigured engine is valid and reports not_configured at call time.
func (c *Config) Validate() error {
	var problems []string

	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			problems = append(problems, fmt.Sprintf("base_url must be an absolute http(s) URL, got %q", c.BaseURL))
		}
	}
	if strings.ContainsAny(c.ToolPrefix, " .") {
		problems = append(problems, "tool_prefix cannot contain spaces or dots")
	}
	if c.Cache.TTLMs <= 0 {
		problems = append(problems, "cache.ttl_ms must be positive")
	}
	if c.Auth.PollIntervalMs < 100 {
		problems = append(problems, "auth.poll_interval_ms must be at least 100")
	}
	if c.Auth.TimeoutMs <= 0 {
		problems = append(problems, "auth.timeout_ms must be positive")
	} else if c.Auth.TimeoutMs < c.Auth.PollIntervalMs {
		problems = append(problems, "auth.timeout_ms must not be shorter than auth.poll_interval_ms")
	}
	if c.HTTP.TimeoutMs < 0 {
		problems = append(problems, "http.timeout_ms cannot be negative")
	}
	if c.HTTP.RetryCount < 0 || c.HTTP.RetryCount > 10 {
		problems = append(problems, "http.retry_count must be between 0 and 10")
	}
	if c.Server.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
			problems = append(problems, fmt.Sprintf("server.listen is not host:port: %v", err))
		}
	}
	if c.Server.RequestsPerMinute < 0 || c.Server.MaxConcurrent < 0 {
		problems = append(problems, "server.requests_per_minute and server.max_concurrent cannot be negative")
	}
	if c.Webhook.Path != "" && !strings.HasPrefix(c.Webhook.Path, "/") {
		problems = append(problems, "webhook.path must start with /")
	}
	if c.Cache.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.Cache.RefreshSchedule); err != nil {
			problems = append(problems, fmt.Sprintf("cache.refresh_schedule is invalid: %v", err))
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is not recognized", c.Logging.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

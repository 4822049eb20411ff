package arcade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harun/arcade/internal/tracing"
)

const (
	// DefaultBaseURL is the public Arcade API endpoint.
	DefaultBaseURL = "https://api.arcade.dev"

	defaultTimeout    = 30 * time.Second
	defaultRetryCount = 2
	tracerName        = "arcade"
)

// Config configures a Client.
type Config struct {
	APIKey     string
	BaseURL    string
	UserID     string
	Timeout    time.Duration
	RetryCount int
	// HTTPClient overrides the underlying transport, mainly for tests.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client is a typed wrapper around the Arcade REST API. It holds no business
// logic; every method maps one endpoint.
type Client struct {
	apiKey  string
	baseURL string
	userID  string
	// reads carries retries for idempotent calls, writes never retries.
	reads  *resty.Client
	writes *resty.Client
	logger zerolog.Logger
}

// NewClient creates a client. An empty API key yields a client whose every
// call fails with ErrNotConfigured.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.RetryCount
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = defaultRetryCount
	}

	c := &Client{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
		userID:  cfg.UserID,
		logger:  cfg.Logger.With().Str("component", "arcade_client").Logger(),
	}
	c.reads = c.newHTTP(cfg.HTTPClient, timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
			}
			return r != nil && r.StatusCode() >= http.StatusInternalServerError
		})
	c.writes = c.newHTTP(cfg.HTTPClient, timeout).SetRetryCount(0)
	return c
}

func (c *Client) newHTTP(hc *http.Client, timeout time.Duration) *resty.Client {
	var rc *resty.Client
	if hc != nil {
		rc = resty.NewWithClient(hc)
	} else {
		rc = resty.New()
	}
	return rc.
		SetBaseURL(c.baseURL).
		SetAuthToken(c.apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "arcade-go/1.0").
		SetTimeout(timeout)
}

// IsConfigured reports whether an API key is set.
func (c *Client) IsConfigured() bool {
	return c != nil && c.apiKey != ""
}

// BaseURL returns the normalized API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// UserID returns the user the client acts for.
func (c *Client) UserID() string { return c.userID }

// ListTools fetches the tool catalog, optionally narrowed to one toolkit.
func (c *Client) ListTools(ctx context.Context, opts ListToolsOptions) ([]ToolDescriptor, error) {
	req := c.reads.R()
	if opts.Toolkit != "" {
		req.SetQueryParam("toolkit", opts.Toolkit)
	}
	if opts.Limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(opts.Limit))
	}

	var out listToolsResponse
	if err := c.do(ctx, "list tools", req, http.MethodGet, "/v1/tools", &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// GetTool fetches one tool definition. A 404 matches ErrNotFound.
func (c *Client) GetTool(ctx context.Context, name string) (ToolDescriptor, error) {
	var out ToolDescriptor
	req := c.reads.R().SetQueryParam("name", name)
	if err := c.do(ctx, "get tool", req, http.MethodGet, "/v1/tools/definition", &out, attribute.String("arcade.tool", name)); err != nil {
		return ToolDescriptor{}, err
	}
	if out.Name == "" {
		return ToolDescriptor{}, fmt.Errorf("get tool %s: %w", name, ErrNotFound)
	}
	return out, nil
}

// Execute runs a tool remotely. It is never retried.
func (c *Client) Execute(ctx context.Context, name string, input map[string]any) (ExecutePayload, error) {
	if input == nil {
		input = map[string]any{}
	}
	var out ExecutePayload
	req := c.writes.R().SetBody(executeRequest{ToolName: name, Input: input, UserID: c.userID})
	if err := c.do(ctx, "execute tool", req, http.MethodPost, "/v1/tools/execute", &out, attribute.String("arcade.tool", name)); err != nil {
		return ExecutePayload{}, err
	}
	return out, nil
}

// Authorize checks for an existing grant and initiates one if missing.
func (c *Client) Authorize(ctx context.Context, name string) (AuthorizationStatus, error) {
	var out AuthorizationStatus
	req := c.reads.R().SetBody(authorizeRequest{ToolName: name, UserID: c.userID})
	if err := c.do(ctx, "authorize tool", req, http.MethodPost, "/v1/tools/authorize", &out, attribute.String("arcade.tool", name)); err != nil {
		return AuthorizationStatus{}, err
	}
	out.ToolName = name
	return out.normalize(), nil
}

// AuthStatus polls a pending authorization by id.
func (c *Client) AuthStatus(ctx context.Context, authorizationID string) (AuthorizationStatus, error) {
	var out AuthorizationStatus
	req := c.reads.R().SetQueryParam("id", authorizationID)
	if err := c.do(ctx, "poll authorization", req, http.MethodGet, "/v1/auth/status", &out); err != nil {
		return AuthorizationStatus{}, err
	}
	if out.Status == AuthPending && out.AuthorizationID == "" {
		out.AuthorizationID = authorizationID
	}
	return out.normalize(), nil
}

// ListConnections lists the user's provider connections.
func (c *Client) ListConnections(ctx context.Context, userID string) ([]Connection, error) {
	req := c.reads.R()
	if userID != "" {
		req.SetQueryParam("user_id", userID)
	}
	var out listConnectionsResponse
	if err := c.do(ctx, "list connections", req, http.MethodGet, "/v1/admin/user_connections", &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// DeleteConnection revokes one connection.
func (c *Client) DeleteConnection(ctx context.Context, connectionID string) error {
	req := c.reads.R().SetPathParam("id", connectionID)
	return c.do(ctx, "delete connection", req, http.MethodDelete, "/v1/admin/user_connections/{id}", nil)
}

// Health fails unless the remote is reachable and reports itself healthy.
func (c *Client) Health(ctx context.Context) error {
	var out healthResponse
	if err := c.do(ctx, "health", c.reads.R(), http.MethodGet, "/v1/health", &out); err != nil {
		return err
	}
	if out.Healthy != nil && !*out.Healthy {
		return &RemoteError{Operation: "health", StatusCode: http.StatusOK, Message: "remote reported unhealthy"}
	}
	return nil
}

func (c *Client) do(ctx context.Context, op string, req *resty.Request, method, path string, out any, attrs ...attribute.KeyValue) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}

	attrs = append(attrs, attribute.String("http.method", method), attribute.String("arcade.operation", op))
	ctx, span := tracing.StartSpan(ctx, tracerName, "arcade."+strings.ReplaceAll(op, " ", "_"), attrs...)
	defer span.End()

	start := time.Now()
	resp, err := req.SetContext(ctx).Execute(method, path)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", op, ctxErr)
		}
		c.logger.Warn().Err(err).Str("operation", op).Msg("Arcade API request failed")
		return fmt.Errorf("%s: %w: %v", op, ErrRemoteUnavailable, err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode()))
	c.logger.Debug().
		Str("operation", op).
		Int("status", resp.StatusCode()).
		Dur("duration", time.Since(start)).
		Msg("Arcade API request completed")

	if resp.IsError() {
		remoteErr := newRemoteError(op, resp.StatusCode(), resp.Body())
		span.SetStatus(codes.Error, remoteErr.Error())
		return remoteErr
	}

	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

func newRemoteError(op string, status int, body []byte) *RemoteError {
	remoteErr := &RemoteError{Operation: op, StatusCode: status}
	var parsed errorBody
	if err := json.Unmarshal(body, &parsed); err == nil {
		remoteErr.Code = parsed.Code
		switch {
		case parsed.Message != "":
			remoteErr.Message = parsed.Message
		case parsed.Error != "":
			remoteErr.Message = parsed.Error
		}
	}
	if remoteErr.Message == "" {
		remoteErr.Message = strings.TrimSpace(string(body))
	}
	if remoteErr.Message == "" {
		remoteErr.Message = http.StatusText(status)
	}
	return remoteErr
}

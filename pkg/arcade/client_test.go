package arcade

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		APIKey:     "arc_test_key",
		BaseURL:    srv.URL,
		UserID:     "user@example.com",
		RetryCount: -1,
		Logger:     zerolog.Nop(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{})
	assert.False(t, c.IsConfigured())
	assert.Equal(t, DefaultBaseURL, c.BaseURL())

	c = NewClient(Config{APIKey: " arc_x ", BaseURL: "https://example.test/"})
	assert.True(t, c.IsConfigured())
	assert.Equal(t, "https://example.test", c.BaseURL())
}

func TestClient_NotConfiguredNeverCallsRemote(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Logger: zerolog.Nop()})
	ctx := context.Background()

	_, err := c.ListTools(ctx, ListToolsOptions{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = c.Execute(ctx, "Gmail.SendEmail", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = c.Authorize(ctx, "Gmail.SendEmail")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, c.Health(ctx), ErrNotConfigured)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestClient_ListTools(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/tools", r.URL.Path)
		assert.Equal(t, "Bearer arc_test_key", r.Header.Get("Authorization"))
		assert.Equal(t, "Gmail", r.URL.Query().Get("toolkit"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, map[string]any{
			"items": []map[string]any{
				{
					"name":          "Gmail.SendEmail",
					"toolkit":       "Gmail",
					"description":   "Send an email",
					"requires_auth": true,
					"auth_provider": "google",
					"parameters": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"to": map[string]any{"type": "string", "description": "Recipient"},
						},
						"required": []string{"to"},
					},
				},
			},
		})
	})

	tools, err := c.ListTools(context.Background(), ListToolsOptions{Toolkit: "Gmail", Limit: 5})
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "Gmail.SendEmail", tools[0].Name)
	assert.True(t, tools[0].RequiresAuth)
	assert.Equal(t, "google", tools[0].AuthProvider)
	assert.Equal(t, []string{"to"}, tools[0].Parameters.Required)
	assert.Equal(t, "string", tools[0].Parameters.Properties["to"].Type)
}

func TestClient_GetToolNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Gmail.Missing", r.URL.Query().Get("name"))
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "tool not found"})
	})

	_, err := c.GetTool(context.Background(), "Gmail.Missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, ErrRemoteRejected)
	assert.Equal(t, CodeNotFound, Code(err))
}

func TestClient_ExecuteSendsUserID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/tools/execute", r.URL.Path)
		var body executeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Gmail.SendEmail", body.ToolName)
		assert.Equal(t, "user@example.com", body.UserID)
		assert.Equal(t, "bob@example.com", body.Input["to"])
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "output": map[string]any{"id": "msg-1"}})
	})

	payload, err := c.Execute(context.Background(), "Gmail.SendEmail", map[string]any{"to": "bob@example.com"})
	require.NoError(t, err)
	assert.True(t, payload.Success)
	assert.Equal(t, map[string]any{"id": "msg-1"}, payload.Output)
}

func TestClient_ExecuteIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream down"})
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "arc_k", BaseURL: srv.URL, RetryCount: 3, Logger: zerolog.Nop()})
	_, err := c.Execute(context.Background(), "Slack.PostMessage", nil)

	var remoteErr *RemoteError
	require.True(t, errors.As(err, &remoteErr))
	assert.Equal(t, http.StatusBadGateway, remoteErr.StatusCode)
	assert.Equal(t, "upstream down", remoteErr.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_AuthorizeNormalizesStatus(t *testing.T) {
	tests := []struct {
		name    string
		body    map[string]any
		want    AuthState
		wantURL string
	}{
		{
			name:    "pending carries url",
			body:    map[string]any{"status": "pending", "authorization_id": "auth-1", "authorization_url": "https://auth.test/1"},
			want:    AuthPending,
			wantURL: "https://auth.test/1",
		},
		{
			name: "completed drops url",
			body: map[string]any{"status": "completed", "authorization_id": "auth-1", "authorization_url": "https://auth.test/1", "scopes": []string{"gmail.send"}},
			want: AuthCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/tools/authorize", r.URL.Path)
				writeJSON(w, http.StatusOK, tt.body)
			})

			status, err := c.Authorize(context.Background(), "Gmail.SendEmail")
			require.NoError(t, err)
			assert.Equal(t, "Gmail.SendEmail", status.ToolName)
			assert.Equal(t, tt.want, status.Status)
			assert.Equal(t, tt.wantURL, status.AuthorizationURL)
			if tt.want != AuthPending {
				assert.Empty(t, status.AuthorizationID)
			}
		})
	}
}

func TestClient_RemoteErrorCarriesCode(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "quota exceeded", "code": "quota_exceeded"})
	})

	_, err := c.AuthStatus(context.Background(), "auth-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteRejected)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "quota_exceeded", Code(err))
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(Config{APIKey: "arc_k", BaseURL: url, RetryCount: -1, Logger: zerolog.Nop()})
	err := c.Health(context.Background())
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
	assert.Equal(t, CodeRemoteUnavailable, Code(err))
}

func TestClient_Health(t *testing.T) {
	healthy := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/health", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]bool{"healthy": true})
	})
	assert.NoError(t, healthy.Health(context.Background()))

	unhealthy := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"healthy": false})
	})
	assert.ErrorIs(t, unhealthy.Health(context.Background()), ErrRemoteRejected)
}

func TestClient_Connections(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			assert.Equal(t, "user@example.com", r.URL.Query().Get("user_id"))
			writeJSON(w, http.StatusOK, map[string]any{"items": []map[string]any{{"id": "conn-1", "provider_id": "google"}}})
		case http.MethodDelete:
			assert.Equal(t, "/v1/admin/user_connections/conn-1", r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		}
	})

	conns, err := c.ListConnections(context.Background(), c.UserID())
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "conn-1", conns[0]["id"])
	assert.NoError(t, c.DeleteConnection(context.Background(), "conn-1"))
}

func TestClient_CanceledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"items": []any{}})
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.ListTools(ctx, ListToolsOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, CodeCanceled, Code(err))
}

func TestToolDescriptor_Names(t *testing.T) {
	d := ToolDescriptor{Name: "SendEmail", Toolkit: "Gmail"}
	assert.Equal(t, "Gmail.SendEmail", d.QualifiedName())
	assert.Equal(t, "SendEmail", d.Action())

	d = ToolDescriptor{Name: "Slack.PostMessage", Toolkit: "Slack"}
	assert.Equal(t, "Slack.PostMessage", d.QualifiedName())
	assert.Equal(t, "PostMessage", d.Action())

	toolkit, action := ParseQualifiedName("Github.CreateIssue")
	assert.Equal(t, "Github", toolkit)
	assert.Equal(t, "CreateIssue", action)
	toolkit, action = ParseQualifiedName("Search")
	assert.Empty(t, toolkit)
	assert.Equal(t, "Search", action)
}

func TestToolDescriptor_Validate(t *testing.T) {
	valid := ToolDescriptor{
		Name: "Gmail.SendEmail",
		Parameters: InputSchema{
			Type:       "object",
			Properties: map[string]Property{"to": {Type: "string"}},
			Required:   []string{"to"},
		},
	}
	assert.NoError(t, valid.Validate())

	assert.Error(t, ToolDescriptor{}.Validate())

	badType := valid
	badType.Parameters.Properties = map[string]Property{"to": {Type: "function"}}
	assert.Error(t, badType.Validate())

	undeclared := valid
	undeclared.Parameters.Required = []string{"cc"}
	assert.Error(t, undeclared.Validate())
}

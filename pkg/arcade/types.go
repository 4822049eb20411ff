package arcade

import (
	"fmt"
	"strings"
)

// ToolDescriptor is the remote-defined metadata for one tool.
type ToolDescriptor struct {
	Name         string      `json:"name"`
	Toolkit      string      `json:"toolkit"`
	Description  string      `json:"description"`
	RequiresAuth bool        `json:"requires_auth"`
	AuthProvider string      `json:"auth_provider,omitempty"`
	Parameters   InputSchema `json:"parameters"`
}

// InputSchema describes the object a tool accepts as input.
type InputSchema struct {
	Type       string              `json:"type,omitempty"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property is a single input field of a tool.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

var validPropertyTypes = map[string]bool{
	"string": true, "number": true, "integer": true,
	"boolean": true, "object": true, "array": true,
}

// QualifiedName returns the <Toolkit>.<Action> form of the tool name.
func (d ToolDescriptor) QualifiedName() string {
	if strings.Contains(d.Name, ".") || d.Toolkit == "" {
		return d.Name
	}
	return d.Toolkit + "." + d.Name
}

// Action returns the bare tool name without its toolkit prefix.
func (d ToolDescriptor) Action() string {
	name := d.QualifiedName()
	if idx := strings.Index(name, "."); idx >= 0 {
		return name[idx+1:]
	}
	return name
}

// Validate checks the descriptor structurally. Schema fields are data and
// must be well formed before the descriptor is projected into a local tool.
func (d ToolDescriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if d.Parameters.Type != "" && d.Parameters.Type != "object" {
		return fmt.Errorf("tool %s: input schema type must be object, got %q", d.Name, d.Parameters.Type)
	}
	for name, prop := range d.Parameters.Properties {
		if name == "" {
			return fmt.Errorf("tool %s: property name cannot be empty", d.Name)
		}
		if prop.Type != "" && !validPropertyTypes[prop.Type] {
			return fmt.Errorf("tool %s: invalid type %q for property %s", d.Name, prop.Type, name)
		}
	}
	for _, req := range d.Parameters.Required {
		if _, ok := d.Parameters.Properties[req]; !ok {
			return fmt.Errorf("tool %s: required property %s is not declared", d.Name, req)
		}
	}
	return nil
}

// ParseQualifiedName splits "Toolkit.Action" into its parts. A name without
// a dot has no toolkit.
func ParseQualifiedName(name string) (toolkit, action string) {
	if idx := strings.Index(name, "."); idx > 0 {
		return name[:idx], name[idx+1:]
	}
	return "", name
}

// AuthState is the state of an authorization request.
type AuthState string

const (
	AuthPending   AuthState = "pending"
	AuthCompleted AuthState = "completed"
	AuthFailed    AuthState = "failed"
)

// AuthorizationStatus is the remote view of a user's grant for one tool.
type AuthorizationStatus struct {
	ToolName         string    `json:"tool_name,omitempty"`
	Status           AuthState `json:"status"`
	AuthorizationID  string    `json:"authorization_id,omitempty"`
	AuthorizationURL string    `json:"authorization_url,omitempty"`
	Scopes           []string  `json:"scopes,omitempty"`
}

// IsTerminal reports whether the status will no longer change.
func (s AuthorizationStatus) IsTerminal() bool {
	return s.Status == AuthCompleted || s.Status == AuthFailed
}

// normalize drops the pending-only fields from terminal statuses.
func (s AuthorizationStatus) normalize() AuthorizationStatus {
	if s.Status == "" {
		s.Status = AuthPending
	}
	if s.Status != AuthPending {
		s.AuthorizationID = ""
		s.AuthorizationURL = ""
	}
	return s
}

// ExecutePayload is the raw response of a remote tool execution.
type ExecutePayload struct {
	Success bool             `json:"success"`
	Output  any              `json:"output,omitempty"`
	Error   *RemoteToolError `json:"error,omitempty"`
}

// RemoteToolError is a failure reported by the tool itself, as opposed to a
// failure of the remote API.
type RemoteToolError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Connection is an opaque user connection record.
type Connection map[string]any

// ListToolsOptions narrows a catalog fetch.
type ListToolsOptions struct {
	Toolkit string
	Limit   int
}

type listToolsResponse struct {
	Items []ToolDescriptor `json:"items"`
}

type listConnectionsResponse struct {
	Items []Connection `json:"items"`
}

type executeRequest struct {
	ToolName string         `json:"tool_name"`
	Input    map[string]any `json:"input"`
	UserID   string         `json:"user_id,omitempty"`
}

type authorizeRequest struct {
	ToolName string `json:"tool_name"`
	UserID   string `json:"user_id,omitempty"`
}

type healthResponse struct {
	Healthy *bool `json:"healthy"`
}

type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

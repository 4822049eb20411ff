// Package webhook receives provider webhooks that signal a change in a
// user's authorization grants.
package webhook

import "encoding/json"

// Recognized event types.
const (
	EventAuthCompleted = "auth.completed"
	EventAuthRevoked   = "auth.revoked"
)

// SignatureHeader carries "sha256=<hex>" of the raw body when a secret is set.
const SignatureHeader = "X-Arcade-Signature"

// Event is a decoded webhook payload. Fields beyond type are kept raw.
type Event struct {
	Type    string          `json:"type"`
	UserID  string          `json:"user_id,omitempty"`
	Tool    string          `json:"tool_name,omitempty"`
	Payload json.RawMessage `json:"-"`
}

// IsAuthChange reports whether the event affects which tools are usable.
func (e Event) IsAuthChange() bool {
	return e.Type == EventAuthCompleted || e.Type == EventAuthRevoked
}

// RateLimitState tracks rate limiting per IP
type RateLimitState struct {
	Requests []int64 // Timestamps of requests in unix millis
}

package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/harun/arcade/internal/metrics"
)

const (
	maxBodyBytes              = 1 << 20
	defaultRateLimitPerMinute = 100
)

// Options configures a Handler.
type Options struct {
	// Secret enables signature verification when non-empty.
	Secret string
	// RateLimitPerMinute caps requests per client IP. Zero uses the default,
	// negative disables limiting.
	RateLimitPerMinute int
	// OnAuthChange runs for auth.completed and auth.revoked events.
	OnAuthChange func(ctx context.Context, event Event)
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
}

// Handler is the provider webhook endpoint.
type Handler struct {
	secret       string
	onAuthChange func(ctx context.Context, event Event)
	rateLimiter  *RateLimiter
	logger       zerolog.Logger
	metrics      *metrics.Metrics
}

// NewHandler creates a webhook handler. Close releases its rate limiter.
func NewHandler(opts Options) *Handler {
	limit := opts.RateLimitPerMinute
	if limit == 0 {
		limit = defaultRateLimitPerMinute
	}
	return &Handler{
		secret:       opts.Secret,
		onAuthChange: opts.OnAuthChange,
		rateLimiter:  NewRateLimiter(limit),
		logger:       opts.Logger.With().Str("component", "webhook").Logger(),
		metrics:      opts.Metrics,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ip := clientIP(r)
	if !h.rateLimiter.CheckLimit(ip) {
		retryAfter := h.rateLimiter.GetRetryAfter(ip)
		h.logger.Warn().
			Str("ip", ip).
			Int("retryAfter", retryAfter).
			Msg("Rate limit exceeded")
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read request body")
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request"})
		return
	}

	if h.secret != "" && !verifySignature(rawBody, r.Header.Get(SignatureHeader), h.secret) {
		h.logger.Warn().Str("ip", ip).Msg("Invalid webhook signature")
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid signature"})
		return
	}

	var event Event
	if err := json.Unmarshal(rawBody, &event); err != nil {
		h.logger.Error().Err(err).Msg("Webhook error")
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid request"})
		return
	}
	event.Payload = rawBody

	h.metrics.RecordWebhookEvent(metricLabel(event.Type))

	if event.IsAuthChange() {
		h.logger.Info().
			Str("type", event.Type).
			Str("tool", event.Tool).
			Msg("Auth change received, invalidating tool cache")
		if h.onAuthChange != nil {
			h.onAuthChange(r.Context(), event)
		}
	} else {
		h.logger.Debug().Str("type", event.Type).Msg("Unhandled webhook type")
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Close stops the rate limiter cleanup.
func (h *Handler) Close() {
	h.rateLimiter.Stop()
}

// metricLabel bounds label cardinality to the known types.
func metricLabel(eventType string) string {
	switch eventType {
	case EventAuthCompleted, EventAuthRevoked:
		return eventType
	default:
		return "other"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// clientIP extracts the client IP from the request
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

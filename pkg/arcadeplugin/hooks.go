package arcadeplugin

import (
	"context"
	"fmt"

	"github.com/harun/arcade/pkg/arcade"
	"github.com/harun/arcade/pkg/hooks"
)

// beforeToolCall blocks an auth-requiring tool with the authorization link
// until the user has granted access. Failed checks never block.
func (p *Plugin) beforeToolCall() hooks.BeforeToolCallHandler {
	return hooks.BeforeFunc(func(ctx context.Context, event hooks.BeforeToolCallEvent) *hooks.Block {
		entry, ok := p.lookup(event.ToolName)
		if !ok || !entry.RequiresAuth {
			return nil
		}
		eng := p.Engine()
		if !eng.IsConfigured() {
			return nil
		}

		status, err := eng.Authorize(ctx, entry.ArcadeName)
		if err != nil {
			p.logger.Warn().Err(err).Str("tool", entry.ArcadeName).Msg("Failed to check authorization")
			return nil
		}
		if status.Status == arcade.AuthCompleted || status.AuthorizationURL == "" {
			return nil
		}

		p.logger.Info().Str("tool", entry.ArcadeName).Msg("Tool requires authorization")
		return &hooks.Block{
			Reason:  "authorization_required",
			Message: fmt.Sprintf("Authorization required for %s. Please visit: %s", entry.ArcadeName, status.AuthorizationURL),
		}
	})
}

func (p *Plugin) afterToolCall() hooks.AfterToolCallHandler {
	return hooks.AfterFunc(func(ctx context.Context, event hooks.AfterToolCallEvent) {
		entry, ok := p.lookup(event.ToolName)
		if !ok {
			return
		}
		p.logger.Info().
			Str("tool", entry.ArcadeName).
			Bool("success", event.Err == nil).
			Dur("duration", event.Duration).
			Msg("Tool executed")
	})
}

package toolexecutor

import (
	"context"
	"fmt"

	"github.com/harun/arcade/pkg/catalog"
)

// Discover rebuilds the registry from the catalog: fetch, filter, then
// project. Descriptors that fail structural validation are skipped.
func (g *Gateway) Discover(ctx context.Context, force bool) ([]RegisteredTool, error) {
	if g.catalog == nil {
		return nil, fmt.Errorf("discovery requires a catalog")
	}
	descriptors, err := g.catalog.Tools(ctx, catalog.Query{ForceRefresh: force})
	if err != nil {
		return nil, fmt.Errorf("discover tools: %w", err)
	}

	allowed := g.filter.Apply(descriptors)
	tools := make([]RegisteredTool, 0, len(allowed))
	for _, desc := range allowed {
		tool, err := Project(g.prefix, desc)
		if err != nil {
			g.logger.Warn().Err(err).Str("tool", desc.Name).Msg("Skipping malformed tool descriptor")
			continue
		}
		tools = append(tools, tool)
	}

	g.registry.Replace(tools)
	g.metrics.SetRegisteredTools(g.registry.Len())
	g.logger.Info().
		Int("fetched", len(descriptors)).
		Int("allowed", len(allowed)).
		Int("registered", g.registry.Len()).
		Msg("Tool discovery completed")
	return g.registry.List(), nil
}

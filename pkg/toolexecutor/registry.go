package toolexecutor

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/arcade/pkg/arcade"
)

// RegisteredTool is the local projection of a remote tool.
type RegisteredTool struct {
	LocalName    string             `json:"name"`
	Toolkit      string             `json:"toolkit"`
	RemoteName   string             `json:"arcade_name"`
	Description  string             `json:"description"`
	RequiresAuth bool               `json:"requires_auth"`
	AuthProvider string             `json:"auth_provider,omitempty"`
	Parameters   arcade.InputSchema `json:"parameters"`

	schema *gojsonschema.Schema
}

// LocalName builds the caller-namespace name for a qualified remote name.
func LocalName(prefix, qualifiedName string) string {
	return prefix + strings.ToLower(strings.ReplaceAll(qualifiedName, ".", "_"))
}

// Project turns a descriptor into a RegisteredTool. The descriptor is
// validated structurally and its input schema compiled.
func Project(prefix string, desc arcade.ToolDescriptor) (RegisteredTool, error) {
	if err := desc.Validate(); err != nil {
		return RegisteredTool{}, err
	}
	schema, err := compileSchema(desc.Parameters)
	if err != nil {
		return RegisteredTool{}, fmt.Errorf("tool %s: compile input schema: %w", desc.Name, err)
	}

	qualified := desc.QualifiedName()
	toolkit := desc.Toolkit
	if toolkit == "" {
		toolkit, _ = arcade.ParseQualifiedName(qualified)
	}
	return RegisteredTool{
		LocalName:    LocalName(prefix, qualified),
		Toolkit:      toolkit,
		RemoteName:   qualified,
		Description:  desc.Description,
		RequiresAuth: desc.RequiresAuth,
		AuthProvider: desc.AuthProvider,
		Parameters:   desc.Parameters,
		schema:       schema,
	}, nil
}

// Registry holds the current set of registered tools, addressable by local
// or remote name.
type Registry struct {
	mu       sync.RWMutex
	tools    []RegisteredTool
	byLocal  map[string]int
	byRemote map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byLocal:  make(map[string]int),
		byRemote: make(map[string]int),
	}
}

// Replace swaps the whole set. Later duplicates of a local name are dropped.
func (r *Registry) Replace(tools []RegisteredTool) {
	next := make([]RegisteredTool, 0, len(tools))
	byLocal := make(map[string]int, len(tools))
	byRemote := make(map[string]int, len(tools))
	for _, tool := range tools {
		if _, dup := byLocal[tool.LocalName]; dup {
			continue
		}
		byLocal[tool.LocalName] = len(next)
		byRemote[strings.ToLower(tool.RemoteName)] = len(next)
		next = append(next, tool)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = next
	r.byLocal = byLocal
	r.byRemote = byRemote
}

// Get looks a tool up by local name, then by remote name (case-insensitive).
func (r *Registry) Get(name string) (RegisteredTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx, ok := r.byLocal[name]; ok {
		return r.tools[idx], true
	}
	if idx, ok := r.byRemote[strings.ToLower(name)]; ok {
		return r.tools[idx], true
	}
	return RegisteredTool{}, false
}

// List returns the tools in discovery order.
func (r *Registry) List() []RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]RegisteredTool(nil), r.tools...)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Toolkits returns the distinct toolkits, sorted.
func (r *Registry) Toolkits() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, tool := range r.tools {
		if !seen[tool.Toolkit] {
			seen[tool.Toolkit] = true
			out = append(out, tool.Toolkit)
		}
	}
	sort.Strings(out)
	return out
}

// Clear empties the registry.
func (r *Registry) Clear() {
	r.Replace(nil)
}

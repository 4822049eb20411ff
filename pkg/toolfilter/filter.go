// Package toolfilter decides which remote tools are eligible for registration
// and execution.
package toolfilter

import (
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/harun/arcade/pkg/arcade"
)

// Rule is the user-facing filter configuration.
type Rule struct {
	Allow          []string
	Deny           []string
	ToolkitEnabled map[string]bool
	// ToolkitTools restricts a toolkit to the listed bare or qualified names.
	ToolkitTools map[string][]string
}

// Step identifies the rule that decided an evaluation.
type Step string

const (
	StepToolkitDisabled Step = "toolkit_disabled"
	StepDenyPattern     Step = "deny_pattern"
	StepNoAllowMatch    Step = "no_allow_match"
	StepToolkitTools    Step = "toolkit_tools"
	StepAllowed         Step = "allowed"
)

// Decision is the outcome of evaluating one tool.
type Decision struct {
	Allowed bool
	Step    Step
	// Pattern is the deny or allow pattern that matched, if any.
	Pattern string
}

// Filter is an immutable, compiled Rule. It is safe for concurrent use.
type Filter struct {
	allow          []string
	deny           []string
	allowListSet   bool
	toolkitEnabled map[string]bool
	toolkitTools   map[string]map[string]bool
}

// New compiles a rule. Invalid patterns are logged and never match.
func New(rule Rule, logger zerolog.Logger) *Filter {
	logger = logger.With().Str("component", "toolfilter").Logger()
	f := &Filter{
		allow:          compilePatterns(rule.Allow, "allow", logger),
		deny:           compilePatterns(rule.Deny, "deny", logger),
		allowListSet:   len(rule.Allow) > 0,
		toolkitEnabled: make(map[string]bool, len(rule.ToolkitEnabled)),
		toolkitTools:   make(map[string]map[string]bool, len(rule.ToolkitTools)),
	}
	for toolkit, enabled := range rule.ToolkitEnabled {
		f.toolkitEnabled[strings.ToLower(toolkit)] = enabled
	}
	for toolkit, names := range rule.ToolkitTools {
		if len(names) == 0 {
			continue
		}
		set := make(map[string]bool, len(names))
		for _, name := range names {
			set[strings.ToLower(name)] = true
		}
		f.toolkitTools[strings.ToLower(toolkit)] = set
	}
	return f
}

// AllowAll returns a filter that admits every tool.
func AllowAll() *Filter {
	return New(Rule{}, zerolog.Nop())
}

// IsAllowed reports whether a tool is eligible.
func (f *Filter) IsAllowed(tool arcade.ToolDescriptor) bool {
	return f.Explain(tool).Allowed
}

// IsNameAllowed evaluates a qualified name when no descriptor is at hand.
func (f *Filter) IsNameAllowed(qualifiedName string) bool {
	return f.ExplainName(qualifiedName).Allowed
}

// Explain evaluates a tool and reports which rule decided it.
func (f *Filter) Explain(tool arcade.ToolDescriptor) Decision {
	toolkit, _ := arcade.ParseQualifiedName(tool.QualifiedName())
	if tool.Toolkit != "" {
		toolkit = tool.Toolkit
	}
	return f.evaluate(toolkit, tool.QualifiedName(), tool.Action())
}

// ExplainName is Explain for a bare qualified name.
func (f *Filter) ExplainName(qualifiedName string) Decision {
	toolkit, action := arcade.ParseQualifiedName(qualifiedName)
	return f.evaluate(toolkit, qualifiedName, action)
}

// Apply returns the allowed subset of tools, preserving order.
func (f *Filter) Apply(tools []arcade.ToolDescriptor) []arcade.ToolDescriptor {
	out := make([]arcade.ToolDescriptor, 0, len(tools))
	for _, tool := range tools {
		if f.IsAllowed(tool) {
			out = append(out, tool)
		}
	}
	return out
}

func (f *Filter) evaluate(toolkit, qualified, action string) Decision {
	toolkitKey := strings.ToLower(toolkit)
	name := strings.ToLower(qualified)

	if enabled, ok := f.toolkitEnabled[toolkitKey]; ok && !enabled {
		return Decision{Step: StepToolkitDisabled}
	}

	for _, pattern := range f.deny {
		if matchGlob(pattern, name) {
			return Decision{Step: StepDenyPattern, Pattern: pattern}
		}
	}

	var matched string
	if f.allowListSet {
		for _, pattern := range f.allow {
			if matchGlob(pattern, name) {
				matched = pattern
				break
			}
		}
		if matched == "" {
			return Decision{Step: StepNoAllowMatch}
		}
	}

	if names, ok := f.toolkitTools[toolkitKey]; ok {
		if !names[strings.ToLower(action)] && !names[name] {
			return Decision{Step: StepToolkitTools}
		}
	}

	return Decision{Allowed: true, Step: StepAllowed, Pattern: matched}
}

func compilePatterns(patterns []string, kind string, logger zerolog.Logger) []string {
	out := make([]string, 0, len(patterns))
	for _, raw := range patterns {
		pattern := strings.ToLower(strings.TrimSpace(raw))
		if pattern == "" {
			continue
		}
		if _, err := filepath.Match(pattern, ""); err != nil {
			logger.Warn().Err(err).Str("pattern", raw).Str("list", kind).Msg("Ignoring invalid tool pattern")
			continue
		}
		out = append(out, pattern)
	}
	return out
}

// matchGlob matches a lower-cased pattern against a lower-cased qualified
// name. Qualified names carry no path separator, so '*' spans any run.
func matchGlob(pattern, name string) bool {
	if pattern == "*" || pattern == name {
		return true
	}
	matched, err := filepath.Match(pattern, name)
	return err == nil && matched
}

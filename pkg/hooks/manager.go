// Package hooks runs ordered before/after tool-call handlers. Before
// handlers may veto a call; the first veto stops the chain.
package hooks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// BeforeToolCallEvent describes a tool call about to be dispatched.
type BeforeToolCallEvent struct {
	ToolName string
	Params   map[string]any
}

// AfterToolCallEvent describes a finished tool call. Err is nil on success.
type AfterToolCallEvent struct {
	ToolName string
	Params   map[string]any
	Result   any
	Err      error
	Duration time.Duration
}

// Block vetoes a tool call.
type Block struct {
	Reason  string
	Message string
}

// BeforeToolCallHandler returns a non-nil Block to veto the call.
type BeforeToolCallHandler interface {
	BeforeToolCall(ctx context.Context, event BeforeToolCallEvent) *Block
}

// AfterToolCallHandler observes completed calls.
type AfterToolCallHandler interface {
	AfterToolCall(ctx context.Context, event AfterToolCallEvent)
}

// BeforeFunc adapts a function to BeforeToolCallHandler.
type BeforeFunc func(ctx context.Context, event BeforeToolCallEvent) *Block

func (f BeforeFunc) BeforeToolCall(ctx context.Context, event BeforeToolCallEvent) *Block {
	return f(ctx, event)
}

// AfterFunc adapts a function to AfterToolCallHandler.
type AfterFunc func(ctx context.Context, event AfterToolCallEvent)

func (f AfterFunc) AfterToolCall(ctx context.Context, event AfterToolCallEvent) {
	f(ctx, event)
}

type beforeEntry struct {
	owner   string
	handler BeforeToolCallHandler
}

type afterEntry struct {
	owner   string
	handler AfterToolCallHandler
}

// Manager holds the handler chains in registration order.
type Manager struct {
	logger zerolog.Logger

	mu     sync.RWMutex
	before []beforeEntry
	after  []afterEntry
}

// NewManager creates an empty manager.
func NewManager(logger zerolog.Logger) *Manager {
	return &Manager{
		logger: logger.With().Str("component", "hooks").Logger(),
	}
}

// OnBeforeToolCall appends a before handler owned by owner.
func (m *Manager) OnBeforeToolCall(owner string, h BeforeToolCallHandler) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.before = append(m.before, beforeEntry{owner: owner, handler: h})
}

// OnAfterToolCall appends an after handler owned by owner.
func (m *Manager) OnAfterToolCall(owner string, h AfterToolCallHandler) {
	if h == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.after = append(m.after, afterEntry{owner: owner, handler: h})
}

// RemoveOwner drops every handler registered by owner and returns the count.
func (m *Manager) RemoveOwner(owner string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	before := m.before[:0]
	for _, e := range m.before {
		if e.owner == owner {
			removed++
			continue
		}
		before = append(before, e)
	}
	m.before = before

	after := m.after[:0]
	for _, e := range m.after {
		if e.owner == owner {
			removed++
			continue
		}
		after = append(after, e)
	}
	m.after = after
	return removed
}

// Len returns the number of before and after handlers.
func (m *Manager) Len() (before, after int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.before), len(m.after)
}

// RunBefore calls before handlers in order and returns the first block.
// A panicking handler is logged and skipped.
func (m *Manager) RunBefore(ctx context.Context, event BeforeToolCallEvent) *Block {
	m.mu.RLock()
	chain := append([]beforeEntry(nil), m.before...)
	m.mu.RUnlock()

	for _, e := range chain {
		block, err := m.safeBefore(ctx, e, event)
		if err != nil {
			m.logger.Error().Err(err).Str("owner", e.owner).Str("tool", event.ToolName).Msg("Before tool call hook panicked")
			continue
		}
		if block != nil {
			m.logger.Info().
				Str("owner", e.owner).
				Str("tool", event.ToolName).
				Str("reason", block.Reason).
				Msg("Tool call blocked by hook")
			return block
		}
	}
	return nil
}

// RunAfter calls every after handler in order.
func (m *Manager) RunAfter(ctx context.Context, event AfterToolCallEvent) {
	m.mu.RLock()
	chain := append([]afterEntry(nil), m.after...)
	m.mu.RUnlock()

	for _, e := range chain {
		if err := m.safeAfter(ctx, e, event); err != nil {
			m.logger.Error().Err(err).Str("owner", e.owner).Str("tool", event.ToolName).Msg("After tool call hook panicked")
		}
	}
}

func (m *Manager) safeBefore(ctx context.Context, e beforeEntry, event BeforeToolCallEvent) (block *Block, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook %s: panic: %v", e.owner, r)
		}
	}()
	return e.handler.BeforeToolCall(ctx, event), nil
}

func (m *Manager) safeAfter(ctx context.Context, e afterEntry, event AfterToolCallEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook %s: panic: %v", e.owner, r)
		}
	}()
	e.handler.AfterToolCall(ctx, event)
	return nil
}

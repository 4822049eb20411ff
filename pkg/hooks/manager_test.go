package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBefore_FirstBlockShortCircuits(t *testing.T) {
	m := NewManager(zerolog.Nop())
	var calls []string

	m.OnBeforeToolCall("a", BeforeFunc(func(ctx context.Context, e BeforeToolCallEvent) *Block {
		calls = append(calls, "a")
		return nil
	}))
	m.OnBeforeToolCall("b", BeforeFunc(func(ctx context.Context, e BeforeToolCallEvent) *Block {
		calls = append(calls, "b")
		return &Block{Reason: "authorization_required", Message: "Authorization required for " + e.ToolName}
	}))
	m.OnBeforeToolCall("c", BeforeFunc(func(ctx context.Context, e BeforeToolCallEvent) *Block {
		calls = append(calls, "c")
		return &Block{Reason: "never"}
	}))

	block := m.RunBefore(context.Background(), BeforeToolCallEvent{ToolName: "Gmail.SendEmail"})
	require.NotNil(t, block)
	assert.Equal(t, "authorization_required", block.Reason)
	assert.Equal(t, "Authorization required for Gmail.SendEmail", block.Message)
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestRunBefore_NoHandlers(t *testing.T) {
	m := NewManager(zerolog.Nop())
	assert.Nil(t, m.RunBefore(context.Background(), BeforeToolCallEvent{ToolName: "x"}))
}

func TestRunBefore_PanicIsSkipped(t *testing.T) {
	m := NewManager(zerolog.Nop())
	m.OnBeforeToolCall("bad", BeforeFunc(func(ctx context.Context, e BeforeToolCallEvent) *Block {
		panic("boom")
	}))
	m.OnBeforeToolCall("good", BeforeFunc(func(ctx context.Context, e BeforeToolCallEvent) *Block {
		return &Block{Reason: "blocked"}
	}))

	block := m.RunBefore(context.Background(), BeforeToolCallEvent{ToolName: "x"})
	require.NotNil(t, block)
	assert.Equal(t, "blocked", block.Reason)
}

func TestRunAfter_CallsAllInOrder(t *testing.T) {
	m := NewManager(zerolog.Nop())
	var seen []string
	for _, owner := range []string{"first", "second"} {
		owner := owner
		m.OnAfterToolCall(owner, AfterFunc(func(ctx context.Context, e AfterToolCallEvent) {
			seen = append(seen, owner+":"+e.ToolName)
			if owner == "first" {
				assert.Error(t, e.Err)
			}
		}))
	}

	m.RunAfter(context.Background(), AfterToolCallEvent{ToolName: "Slack.PostMessage", Err: errors.New("failed")})
	assert.Equal(t, []string{"first:Slack.PostMessage", "second:Slack.PostMessage"}, seen)
}

func TestRemoveOwner(t *testing.T) {
	m := NewManager(zerolog.Nop())
	noop := BeforeFunc(func(ctx context.Context, e BeforeToolCallEvent) *Block { return nil })
	m.OnBeforeToolCall("arcade", noop)
	m.OnBeforeToolCall("other", noop)
	m.OnAfterToolCall("arcade", AfterFunc(func(ctx context.Context, e AfterToolCallEvent) {}))
	m.OnBeforeToolCall("arcade", nil)

	assert.Equal(t, 2, m.RemoveOwner("arcade"))
	before, after := m.Len()
	assert.Equal(t, 1, before)
	assert.Equal(t, 0, after)
}

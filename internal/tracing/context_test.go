package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIDs(t *testing.T) {
	assert.NotEmpty(t, NewTraceID())
	assert.NotEqual(t, NewTraceID(), NewTraceID())
	assert.NotEqual(t, NewRequestID(), NewRequestID())
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetUserID(ctx))

	ctx = NewContext(ctx, &TraceContext{TraceID: "t1", RequestID: "r1", UserID: "user@example.com"})
	tc := FromContext(ctx)
	assert.Equal(t, "t1", tc.TraceID)
	assert.Equal(t, "r1", tc.RequestID)
	assert.Equal(t, "user@example.com", tc.UserID)
}

func TestNewRequestContext(t *testing.T) {
	ctx := NewRequestContext(context.Background(), "")
	assert.NotEmpty(t, GetRequestID(ctx))
	assert.NotEmpty(t, GetTraceID(ctx))

	ctx = NewRequestContext(WithTraceID(context.Background(), "keep"), "req-7")
	assert.Equal(t, "req-7", GetRequestID(ctx))
	assert.Equal(t, "keep", GetTraceID(ctx))
}

func TestStartSpan_SetsTraceID(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test", "op")
	defer span.End()
	// Without an installed provider the span context is invalid and no ID is set.
	if span.SpanContext().IsValid() {
		assert.Equal(t, span.SpanContext().TraceID().String(), GetTraceID(ctx))
	}
}

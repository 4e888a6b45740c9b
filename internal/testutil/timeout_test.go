package testutil

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextWithTestDeadline_WithFallback(t *testing.T) {
	fallback := 100 * time.Millisecond
	ctx, cancel := ContextWithTestDeadline(t, fallback)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok, "context should have deadline")
	remaining := time.Until(deadline)
	assert.Greater(t, remaining, time.Duration(0))
	assert.LessOrEqual(t, remaining, fallback)
}

func TestContextWithTestDeadlineBuffer_WithFallback(t *testing.T) {
	ctx, cancel := ContextWithTestDeadlineBuffer(t, 200*time.Millisecond, 50*time.Millisecond)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok, "context should have deadline")
	assert.Greater(t, time.Until(deadline), time.Duration(0))
}

func TestSessionContext(t *testing.T) {
	ctx, cancel := SessionContext(t)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.LessOrEqual(t, time.Until(deadline), DefaultSessionTimeout)
}

func TestContextCancellation(t *testing.T) {
	ctx, cancel := ContextWithTestDeadline(t, time.Minute)
	cancel()

	select {
	case <-ctx.Done():
	default:
		t.Fatal("context should be done after cancel")
	}
	assert.Error(t, ctx.Err())
}

func TestEventually(t *testing.T) {
	var n atomic.Int32
	Eventually(t, time.Second, func() bool {
		return n.Add(1) >= 3
	}, "counter should reach 3")
	assert.GreaterOrEqual(t, n.Load(), int32(3))
}

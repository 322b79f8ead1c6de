package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCorrelationValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, RunIDFromContext(nil))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithRunID(ctx, "01HRUN")
	ctx = WithClientIP(ctx, "10.0.0.1")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "01HRUN", RunIDFromContext(ctx))
	assert.Equal(t, "10.0.0.1", ClientIPFromContext(ctx))
}

package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("atstore-api", "test", "debug")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	_, err = NewLogger("atstore-api", "test", "loud")
	assert.Error(t, err)
}

func TestFromContext(t *testing.T) {
	fallback := zap.NewNop()
	assert.Same(t, fallback, FromContext(context.Background(), fallback))

	scoped := zap.NewNop().With(zap.String("request_id", "abc"))
	ctx := ContextWithLogger(context.Background(), scoped)
	assert.Same(t, scoped, FromContext(ctx, fallback))

	assert.Equal(t, ctx, ContextWithLogger(ctx, nil))
}

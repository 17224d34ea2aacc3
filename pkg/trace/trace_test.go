package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureKeepsExistingTraceID(t *testing.T) {
	ctx := WithContext(context.Background(), "abc")
	ctx, id := Ensure(ctx)
	assert.Equal(t, "abc", id)
	assert.Equal(t, "abc", FromContext(ctx))
}

func TestEnsureGeneratesTraceID(t *testing.T) {
	ctx, id := Ensure(context.Background())
	assert.Len(t, id, 32)
	assert.Equal(t, id, FromContext(ctx))
}

package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetActor(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, SystemActor, GetActor(ctx))

	ctx = SetUserID(ctx, "user-1")
	assert.Equal(t, "user-1", GetActor(ctx))
}

func TestTenantAndRequestID(t *testing.T) {
	ctx := SetTenantID(context.Background(), "tenant-1")
	ctx = SetRequestID(ctx, "req-1")

	assert.Equal(t, "tenant-1", GetTenantID(ctx))
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "", GetUserID(ctx))
}

package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_DefaultsEmptyToDefaultTenant(t *testing.T) {
	assert.Equal(t, DefaultTenantID, Resolve(""))
	assert.Equal(t, "acme", Resolve("acme"))
}

func TestFromContext_DefaultsWhenNeverSet(t *testing.T) {
	assert.Equal(t, DefaultTenantID, FromContext(context.Background()))
}

func TestWithTenant_RoundTripsThroughContext(t *testing.T) {
	ctx := WithTenant(context.Background(), "acme")
	assert.Equal(t, "acme", FromContext(ctx))
}

func TestWithTenant_ResolvesEmptyToDefault(t *testing.T) {
	ctx := WithTenant(context.Background(), "")
	assert.Equal(t, DefaultTenantID, FromContext(ctx))
}

func TestRequestIDAndCaller_RoundTripThroughContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithCaller(ctx, "service-a")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "service-a", CallerFromContext(ctx))
}

package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := WithRequestID(context.Background(), " req-1 ")
	ctx = WithAccountID(ctx, "42")
	ctx = WithActor(ctx, "cron", "reset_due_credits")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "42", AccountIDFromContext(ctx))
	actorType, actorID := ActorFromContext(ctx)
	assert.Equal(t, "cron", actorType)
	assert.Equal(t, "reset_due_credits", actorID)
}

func TestContextValues_Empty(t *testing.T) {
	assert.Empty(t, RequestIDFromContext(context.Background()))
	assert.Empty(t, AccountIDFromContext(nil))
}

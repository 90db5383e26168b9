package generation

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEchoGenerator(t *testing.T) {
	g := NewEchoGenerator(zap.NewNop())

	resp, err := g.Generate(context.Background(), Request{Prompt: "  haiku about rain "})
	require.NoError(t, err)
	assert.Equal(t, "You asked: haiku about rain", resp.Text)
	assert.Equal(t, "echo-1", resp.Model)

	_, err = g.Generate(context.Background(), Request{Prompt: "   "})
	assert.ErrorIs(t, err, ErrEmptyPrompt)

	_, err = g.Generate(context.Background(), Request{Prompt: strings.Repeat("a", maxPromptRunes+1)})
	assert.ErrorIs(t, err, ErrPromptTooLarge)
}

func TestEchoGeneratorHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEchoGenerator(zap.NewNop()).Generate(ctx, Request{Prompt: "hi"})
	assert.ErrorIs(t, err, context.Canceled)
}

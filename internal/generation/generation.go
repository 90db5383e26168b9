// Package generation holds the prompt generation collaborator that
// credit-metered requests pay for.
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:generate mockgen -destination=mocks/mock_generator.go -package=mocks github.com/smallbiznis/promptly/internal/generation Generator

const maxPromptRunes = 8000

var (
	ErrEmptyPrompt    = errors.New("empty_prompt")
	ErrPromptTooLarge = errors.New("prompt_too_large")
)

type Request struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

type Response struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

// Generator produces text for a prompt. Implementations call out to a model
// provider and may fail; callers charge only for successful responses.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Validate normalizes req in place.
func Validate(req *Request) error {
	req.Prompt = strings.TrimSpace(req.Prompt)
	req.Model = strings.TrimSpace(req.Model)
	if req.Prompt == "" {
		return ErrEmptyPrompt
	}
	if utf8.RuneCountInString(req.Prompt) > maxPromptRunes {
		return ErrPromptTooLarge
	}
	return nil
}

// EchoGenerator is the built-in generator used until a model provider is
// configured. It answers with a deterministic transformation of the prompt.
type EchoGenerator struct {
	log *zap.Logger
}

func NewEchoGenerator(log *zap.Logger) Generator {
	return &EchoGenerator{log: log.Named("generation.echo")}
}

func (g *EchoGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := Validate(&req); err != nil {
		return nil, err
	}
	model := req.Model
	if model == "" {
		model = "echo-1"
	}
	g.log.Debug("generating", zap.String("model", model), zap.Int("prompt_runes", utf8.RuneCountInString(req.Prompt)))
	return &Response{
		Text:  fmt.Sprintf("You asked: %s", req.Prompt),
		Model: model,
	}, nil
}

var Module = fx.Module("generation",
	fx.Provide(NewEchoGenerator),
)

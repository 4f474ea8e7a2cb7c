package llm

import (
	"context"
	"errors"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no model is configured
const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// Anthropic uses the Messages API.
type Anthropic struct {
	client    *anthropic.Client
	model     string
	maxTokens int
}

// NewAnthropic reads ANTHROPIC_API_KEY from the environment.
func NewAnthropic(model string) (*Anthropic, error) {
	key := os.Getenv("ANTHROPIC_API_KEY")
	if key == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	cl := anthropic.NewClient(anthropicopt.WithAPIKey(key))
	return &Anthropic{client: &cl, model: model, maxTokens: 1024}, nil
}

// Complete performs a single-turn completion and returns the concatenated text blocks.
func (a *Anthropic) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(a.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", upstream("anthropic", apiErr.StatusCode, "", err)
		}
		return "", upstream("anthropic", 0, "", err)
	}

	var b strings.Builder
	for _, cb := range msg.Content {
		if tb, ok := cb.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return checkText("anthropic", b.String())
}

func (a *Anthropic) Model() string {
	return "anthropic-" + a.model
}

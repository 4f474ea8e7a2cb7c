package llm

import (
	"context"
	"errors"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when no model is configured
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI uses the OpenAI chat completions API
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI creates an OpenAI client. OPENAI_BASE_URL points it at a
// compatible endpoint.
func NewOpenAI(model string) (*OpenAI, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}

	cfg := openai.DefaultConfig(key)
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		cfg.BaseURL = base
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

// Complete sends prompt as a single user message
func (c *OpenAI) Complete(ctx context.Context, prompt string) (string, error) {
	// Validate input
	if len(prompt) == 0 {
		return "", &UpstreamError{Provider: "openai", Message: "cannot complete empty prompt"}
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", upstream("openai", apiErr.HTTPStatusCode, apiErr.Message, err)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", upstream("openai", reqErr.HTTPStatusCode, "", err)
		}
		return "", upstream("openai", 0, "", err)
	}

	if len(resp.Choices) == 0 {
		return "", &UpstreamError{Provider: "openai", Message: "no choices returned from API", Err: ErrEmptyCompletion}
	}

	return checkText("openai", resp.Choices[0].Message.Content)
}

// Model returns model information
func (c *OpenAI) Model() string {
	return "openai-" + c.model
}

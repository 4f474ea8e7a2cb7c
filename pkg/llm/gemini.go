package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model is configured
const DefaultGeminiModel = "gemini-1.5-flash"

// Gemini uses the Google Generative Language API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini reads GOOGLE_API_KEY, or GEMINI_API_KEY, from the environment.
func NewGemini(model string) (*Gemini, error) {
	key := os.Getenv("GOOGLE_API_KEY")
	if key == "" {
		key = os.Getenv("GEMINI_API_KEY")
	}
	if key == "" {
		return nil, errors.New("GOOGLE_API_KEY or GEMINI_API_KEY environment variable not set")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	cl, err := genai.NewClient(context.Background(), option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	return &Gemini{client: cl, model: model}, nil
}

// Complete generates content for prompt and joins the text parts of the
// first candidate.
func (g *Gemini) Complete(ctx context.Context, prompt string) (string, error) {
	m := g.client.GenerativeModel(g.model)
	m.SetMaxOutputTokens(1024)

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return "", upstream("gemini", apiErr.Code, apiErr.Message, err)
		}
		return "", upstream("gemini", 0, "", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return checkText("gemini", "")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return checkText("gemini", b.String())
}

func (g *Gemini) Model() string {
	return "gemini-" + g.model
}

// Close releases the underlying client.
func (g *Gemini) Close() error {
	return g.client.Close()
}

package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// DefaultOllamaModel is used when no model is configured
const DefaultOllamaModel = "llama3.2"

// Ollama talks to a local or remote ollama server.
type Ollama struct {
	client *ollama.Client
	model  string
}

// NewOllama uses OLLAMA_HOST, defaulting to http://localhost:11434.
func NewOllama(model string) (*Ollama, error) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}
	if model == "" {
		model = DefaultOllamaModel
	}

	httpClient := &http.Client{
		Timeout: 5 * time.Minute,
	}

	return &Ollama{client: ollama.NewClient(u, httpClient), model: model}, nil
}

// Complete streams the generation and returns the accumulated text
func (o *Ollama) Complete(ctx context.Context, prompt string) (string, error) {
	var text strings.Builder

	req := &ollama.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
	}

	if err := o.client.Generate(ctx, req, func(gr ollama.GenerateResponse) error {
		text.WriteString(gr.Response)
		return nil
	}); err != nil {
		var se ollama.StatusError
		if errors.As(err, &se) {
			return "", upstream("ollama", se.StatusCode, se.ErrorMessage, err)
		}
		return "", upstream("ollama", 0, "", err)
	}

	return checkText("ollama", text.String())
}

func (o *Ollama) Model() string {
	return "ollama-" + o.model
}

// Package llm wraps the text-completion providers used by the pipeline.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Client completes a single prompt. Implementations must honor ctx
// cancellation and return an *UpstreamError on provider failures.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Model() string
}

// ErrEmptyCompletion is wrapped by UpstreamError when a provider answers
// with no usable text.
var ErrEmptyCompletion = errors.New("empty completion")

// UpstreamError carries the diagnostics of a failed provider call.
type UpstreamError struct {
	Provider string
	Status   int // HTTP status, 0 when unknown
	Message  string
	Err      error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(" upstream error")
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// upstream wraps err unless it already is an UpstreamError
func upstream(provider string, status int, msg string, err error) error {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Provider: provider, Status: status, Message: msg, Err: err}
}

// checkText rejects blank completions
func checkText(provider, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", &UpstreamError{Provider: provider, Err: ErrEmptyCompletion}
	}
	return text, nil
}

// Echo is an offline placeholder client. It answers with the first Limit
// runes of the prompt, which is enough to drive the pipeline end to end
// without network access.
type Echo struct {
	Limit int
}

// NewEcho creates an echo client (limit <= 0 means 200 runes)
func NewEcho(limit int) *Echo {
	if limit <= 0 {
		limit = 200
	}
	return &Echo{Limit: limit}
}

// Complete truncates the prompt
func (e *Echo) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text := strings.TrimSpace(prompt)
	if utf8.RuneCountInString(text) > e.Limit {
		text = string([]rune(text)[:e.Limit])
	}
	return checkText("echo", text)
}

// Model returns model information
func (e *Echo) Model() string {
	return fmt.Sprintf("echo-%d", e.Limit)
}

// New creates a client for provider ("openai", "anthropic", "ollama",
// "gemini" or "echo"). An empty model selects the provider default.
func New(provider, model string) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "openai":
		return NewOpenAI(model)
	case "anthropic":
		return NewAnthropic(model)
	case "ollama":
		return NewOllama(model)
	case "gemini":
		return NewGemini(model)
	case "echo":
		return NewEcho(0), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

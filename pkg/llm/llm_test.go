package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingClient struct {
	calls atomic.Int32
	fail  bool
}

func (c *countingClient) Complete(ctx context.Context, prompt string) (string, error) {
	c.calls.Add(1)
	if c.fail {
		return "", &UpstreamError{Provider: "test", Status: 429, Message: "slow down"}
	}
	return "re: " + prompt, nil
}

func (c *countingClient) Model() string { return "counting" }

func TestEcho_Complete(t *testing.T) {
	e := NewEcho(5)
	out, err := e.Complete(context.Background(), "  hello world  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	_, err = e.Complete(context.Background(), "   ")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyCompletion)

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "echo", ue.Provider)
}

func TestEcho_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEcho(0).Complete(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUpstreamError_Error(t *testing.T) {
	err := &UpstreamError{Provider: "openai", Status: 500, Message: "boom"}
	assert.Equal(t, "openai upstream error (status 500): boom", err.Error())

	cause := errors.New("dial tcp: refused")
	err = &UpstreamError{Provider: "ollama", Err: cause}
	assert.Equal(t, "ollama upstream error: dial tcp: refused", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestUpstream_KeepsExisting(t *testing.T) {
	inner := &UpstreamError{Provider: "inner", Status: 401}
	got := upstream("outer", 0, "", inner)

	var ue *UpstreamError
	require.ErrorAs(t, got, &ue)
	assert.Equal(t, "inner", ue.Provider)
}

func TestCached_Complete(t *testing.T) {
	inner := &countingClient{}
	c := NewCached(inner, 2)
	ctx := context.Background()

	a1, err := c.Complete(ctx, "a")
	require.NoError(t, err)
	a2, err := c.Complete(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, 1, c.Hits())

	_, _ = c.Complete(ctx, "b")
	_, _ = c.Complete(ctx, "c") // evicts "a"
	assert.Equal(t, 2, c.Len())

	_, _ = c.Complete(ctx, "a")
	assert.Equal(t, int32(4), inner.calls.Load())
	assert.Equal(t, "counting", c.Model())
}

func TestCached_DoesNotStoreErrors(t *testing.T) {
	inner := &countingClient{fail: true}
	c := NewCached(inner, 4)

	for i := 0; i < 2; i++ {
		_, err := c.Complete(context.Background(), "x")
		require.Error(t, err)
	}
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Zero(t, c.Len())
}

func TestNew_UnknownProvider(t *testing.T) {
	_, err := New("carrier-pigeon", "")
	assert.Error(t, err)

	c, err := New("echo", "")
	require.NoError(t, err)
	assert.Equal(t, "echo-200", c.Model())
}

func TestNewOpenAI_MissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewOpenAI("")
	assert.Error(t, err)
}

func TestOpenAI_EmptyPrompt(t *testing.T) {
	// rejected before any request is made
	c := &OpenAI{model: "gpt-4o-mini"}
	_, err := c.Complete(context.Background(), "")
	require.Error(t, err)

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "openai", ue.Provider)
	assert.Contains(t, err.Error(), "empty prompt")
}

func TestNewAnthropic_MissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := NewAnthropic("")
	assert.Error(t, err)
}

func TestNewGemini_MissingKey(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	_, err := NewGemini("")
	assert.Error(t, err)
}

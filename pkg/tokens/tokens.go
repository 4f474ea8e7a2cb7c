// Package tokens estimates how much text can be sent to a model in one call.
package tokens

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator returns a cost for a piece of text. Implementations must be
// deterministic and never return a negative count.
type Estimator interface {
	Count(text string) int
}

// Total sums the cost of every text.
func Total(est Estimator, texts ...string) int {
	total := 0
	for _, t := range texts {
		total += est.Count(t)
	}
	return total
}

// Chars counts Unicode code points.
type Chars struct{}

// Count returns the number of runes in text
func (Chars) Count(text string) int {
	return utf8.RuneCountInString(text)
}

// BPE counts tokens with a tiktoken encoding.
type BPE struct {
	enc      *tiktoken.Tiktoken
	encoding string
}

// fallbackEncoding is used for models tiktoken does not know about
const fallbackEncoding = "cl100k_base"

// modelPrefixes maps model families to encodings for names tiktoken has no
// exact entry for. More specific prefixes come first.
var modelPrefixes = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o", "o200k_base"},
	{"gpt-4.1", "o200k_base"},
	{"gpt-4.5", "o200k_base"},
	{"gpt-5", "o200k_base"},
	{"o1", "o200k_base"},
	{"o3", "o200k_base"},
	{"o4", "o200k_base"},
	{"gpt-4", "cl100k_base"},
	{"gpt-3.5", "cl100k_base"},
	{"claude", "cl100k_base"},
	{"gemini", "cl100k_base"},
	{"llama", "cl100k_base"},
	{"mistral", "cl100k_base"},
}

// EncodingFor returns the tiktoken encoding for model: an exact tiktoken
// match, then the first matching family prefix, then cl100k_base. Provider
// qualified names like "openai-gpt-4o-mini" are matched on the model part.
func EncodingFor(model string) string {
	model = strings.ToLower(strings.TrimSpace(model))
	if e, ok := tiktoken.MODEL_TO_ENCODING[model]; ok {
		return e
	}
	if _, rest, ok := strings.Cut(model, "-"); ok {
		if e, ok := tiktoken.MODEL_TO_ENCODING[rest]; ok {
			return e
		}
	}
	for _, p := range modelPrefixes {
		if strings.HasPrefix(model, p.prefix) || strings.Contains(model, "-"+p.prefix) {
			return p.encoding
		}
	}
	return fallbackEncoding
}

// NewBPE resolves the encoding for model with EncodingFor
func NewBPE(model string) (*BPE, error) {
	name := EncodingFor(model)
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("loading encoding %s: %w", name, err)
	}
	return &BPE{enc: enc, encoding: name}, nil
}

// Count returns the number of BPE tokens in text
func (b *BPE) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(b.enc.Encode(text, nil, nil))
}

// Encoding returns the encoding name in use
func (b *BPE) Encoding() string {
	return b.encoding
}

// New builds an estimator by name: "chars" (default) or "tiktoken".
func New(name, model string) (Estimator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "chars":
		return Chars{}, nil
	case "tiktoken", "bpe":
		return NewBPE(model)
	default:
		return nil, fmt.Errorf("unknown estimator %q", name)
	}
}

package minisum

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/perbu/minisum/pkg/llm"
)

// Separator joins summaries inside a reduce prompt
const Separator = "\n\n"

const (
	defaultMapTemplate = `Write a concise summary of the following:

"{{.Text}}"

CONCISE SUMMARY:`

	defaultReduceTemplate = `The following is a set of summaries:

{{.Summaries}}

Take these and distill it into a final, consolidated summary of the main themes.

CONSOLIDATED SUMMARY:`
)

// Templates hold the parsed map and reduce prompts. The map template sees
// .Text, .Path and .Heading; the reduce template sees .Summaries and .Count.
type Templates struct {
	Map    *template.Template
	Reduce *template.Template
}

// DefaultTemplates returns the built-in prompts.
func DefaultTemplates() Templates {
	t, err := ParseTemplates("", "")
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTemplates parses prompt templates. Empty strings select the defaults.
func ParseTemplates(mapText, reduceText string) (Templates, error) {
	if mapText == "" {
		mapText = defaultMapTemplate
	}
	if reduceText == "" {
		reduceText = defaultReduceTemplate
	}
	m, err := template.New("map").Option("missingkey=error").Parse(mapText)
	if err != nil {
		return Templates{}, fmt.Errorf("parsing map template: %w", err)
	}
	r, err := template.New("reduce").Option("missingkey=error").Parse(reduceText)
	if err != nil {
		return Templates{}, fmt.Errorf("parsing reduce template: %w", err)
	}
	return Templates{Map: m, Reduce: r}, nil
}

// Summarizer turns chunks and groups of summaries into new summaries
// through an llm.Client. It never retries.
type Summarizer struct {
	client llm.Client
	tpl    Templates
}

// NewSummarizer creates a summarizer using tpl; zero-value templates are
// replaced by the defaults.
func NewSummarizer(client llm.Client, tpl Templates) *Summarizer {
	def := DefaultTemplates()
	if tpl.Map == nil {
		tpl.Map = def.Map
	}
	if tpl.Reduce == nil {
		tpl.Reduce = def.Reduce
	}
	return &Summarizer{client: client, tpl: tpl}
}

// Summarize produces the summary of one chunk.
func (s *Summarizer) Summarize(ctx context.Context, chunk Chunk) (SummaryUnit, error) {
	prompt, err := render(s.tpl.Map, struct {
		Text    string
		Path    string
		Heading string
	}{chunk.Content, chunk.Path, chunk.Heading})
	if err != nil {
		return SummaryUnit{}, err
	}
	text, err := s.client.Complete(ctx, prompt)
	if err != nil {
		return SummaryUnit{}, fmt.Errorf("chunk %d: %w", chunk.Index, err)
	}
	u, err := s.unit(text)
	if err != nil {
		return SummaryUnit{}, fmt.Errorf("chunk %d: %w", chunk.Index, err)
	}
	return u, nil
}

// Reduce merges units into a single new unit. The input is left untouched.
func (s *Summarizer) Reduce(ctx context.Context, units []SummaryUnit) (SummaryUnit, error) {
	prompt, err := render(s.tpl.Reduce, struct {
		Summaries string
		Count     int
	}{strings.Join(Texts(units), Separator), len(units)})
	if err != nil {
		return SummaryUnit{}, err
	}
	text, err := s.client.Complete(ctx, prompt)
	if err != nil {
		return SummaryUnit{}, fmt.Errorf("reducing %d summaries: %w", len(units), err)
	}
	u, err := s.unit(text)
	if err != nil {
		return SummaryUnit{}, fmt.Errorf("reducing %d summaries: %w", len(units), err)
	}
	return u, nil
}

// unit trims a completion; a blank one is an upstream failure whatever
// client produced it.
func (s *Summarizer) unit(text string) (SummaryUnit, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return SummaryUnit{}, &llm.UpstreamError{Provider: s.client.Model(), Err: llm.ErrEmptyCompletion}
	}
	return SummaryUnit{Text: text}, nil
}

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("rendering %s prompt: %w", t.Name(), err)
	}
	return b.String(), nil
}

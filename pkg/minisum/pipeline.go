package minisum

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/perbu/minisum/pkg/llm"
	"github.com/perbu/minisum/pkg/tokens"
)

const (
	// DefaultBudget is the maximum cost of summaries sent in one reduce call.
	DefaultBudget = 3000
	// DefaultMaxCollapses bounds the number of collapse iterations.
	DefaultMaxCollapses = 10
	// DefaultConcurrency limits in-flight client calls per stage.
	DefaultConcurrency = 10
)

// Checkpointer persists chunk summaries so an interrupted run can resume.
type Checkpointer interface {
	// Begin returns summaries completed by an earlier run over the same
	// contents and model, keyed by chunk index.
	Begin(contents []string, model string) (map[int]string, error)
	Record(index int, summary string) error
	Save() error
	Remove() error
}

// Pipeline wires the summarizer, partitioner and collapse scheduler.
type Pipeline struct {
	client       llm.Client
	sum          *Summarizer
	tpl          Templates
	est          tokens.Estimator
	budget       int
	maxCollapses int
	concurrency  int
	events       chan<- Event
	logger       *slog.Logger
	cp           Checkpointer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithBudget sets the token budget; values < 1 are ignored.
func WithBudget(budget int) Option {
	return func(p *Pipeline) {
		if budget >= 1 {
			p.budget = budget
		}
	}
}

// WithMaxCollapses sets the collapse iteration cap; values < 1 are ignored.
func WithMaxCollapses(n int) Option {
	return func(p *Pipeline) {
		if n >= 1 {
			p.maxCollapses = n
		}
	}
}

// WithConcurrency limits concurrent client calls; values < 1 are ignored.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n >= 1 {
			p.concurrency = n
		}
	}
}

func WithEstimator(est tokens.Estimator) Option {
	return func(p *Pipeline) {
		if est != nil {
			p.est = est
		}
	}
}

func WithTemplates(t Templates) Option {
	return func(p *Pipeline) { p.tpl = t }
}

// WithEvents makes the pipeline publish progress to ch. Sends never block:
// events are dropped when ch is full.
func WithEvents(ch chan<- Event) Option {
	return func(p *Pipeline) { p.events = ch }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithCheckpoint(cp Checkpointer) Option {
	return func(p *Pipeline) { p.cp = cp }
}

// New creates a pipeline around client.
func New(client llm.Client, opts ...Option) *Pipeline {
	p := &Pipeline{
		client:       client,
		est:          tokens.Chars{},
		budget:       DefaultBudget,
		maxCollapses: DefaultMaxCollapses,
		concurrency:  DefaultConcurrency,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.sum = NewSummarizer(client, p.tpl)
	return p
}

// Budget returns the configured token budget
func (p *Pipeline) Budget() int { return p.budget }

// Run summarizes chunks, collapses the summaries until they fit the budget
// and reduces them into one final summary. Either the complete summary or
// a *StageError is returned. With no chunks Run returns ErrEmptyInput and
// never calls the client.
func (p *Pipeline) Run(ctx context.Context, chunks []Chunk) (*Result, error) {
	if len(chunks) == 0 {
		return nil, ErrEmptyInput
	}

	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}
	m := &machine{
		p:      p,
		chunks: chunks,
		ps:     &PipelineState{Contents: contents},
		state:  StateSummarizing,
	}

	p.logger.Info("run started", "chunks", len(chunks), "budget", p.budget,
		"max_collapses", p.maxCollapses, "model", p.client.Model())
	if err := m.runUntil(ctx, StateDone); err != nil {
		return nil, err
	}
	p.logger.Info("run finished", "calls", m.stats.Calls(), "collapses", m.stats.Collapses,
		"restored", m.stats.Restored)

	if p.cp != nil {
		if err := p.cp.Remove(); err != nil {
			p.logger.Warn("could not remove checkpoint", "error", err)
		}
	}

	return &Result{Summary: m.ps.FinalSummary, State: m.ps, Stats: m.stats}, nil
}

// summarizeAll fans out one summarize call per chunk and returns the
// summaries in chunk order.
func (p *Pipeline) summarizeAll(ctx context.Context, chunks []Chunk, contents []string, stats *Stats) ([]string, error) {
	summaries := make([]string, len(chunks))
	restored := p.restore(contents)
	for i, s := range restored {
		summaries[i] = s
	}
	stats.Restored = len(restored)

	var (
		done  atomic.Int32
		made  atomic.Int32
		cpMu  sync.Mutex
		total = len(chunks)
	)
	done.Store(int32(len(restored)))
	if len(restored) > 0 {
		p.logger.Info("resuming from checkpoint", "restored", len(restored), "remaining", total-len(restored))
		p.emit(Event{Kind: StepSummarize, Index: len(restored), Total: total, Label: "restored from checkpoint"})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, chunk := range chunks {
		if _, ok := restored[i]; ok {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			u, err := p.sum.Summarize(gctx, chunk)
			if err != nil {
				return err
			}
			summaries[i] = u.Text
			made.Add(1)
			if p.cp != nil {
				cpMu.Lock()
				if err := p.cp.Record(i, u.Text); err != nil {
					p.logger.Warn("checkpoint write failed", "error", err)
				}
				cpMu.Unlock()
			}
			n := int(done.Add(1))
			p.emit(Event{Kind: StepSummarize, Index: n, Total: total, Label: describe(chunk)})
			return nil
		})
	}
	err := g.Wait()
	stats.SummarizeCalls = int(made.Load())

	if p.cp != nil {
		cpMu.Lock()
		if serr := p.cp.Save(); serr != nil {
			p.logger.Warn("checkpoint save failed", "error", serr)
		}
		cpMu.Unlock()
	}
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// restore loads completed summaries from the checkpoint, if any
func (p *Pipeline) restore(contents []string) map[int]string {
	if p.cp == nil {
		return nil
	}
	done, err := p.cp.Begin(contents, p.client.Model())
	if err != nil {
		p.logger.Warn("ignoring checkpoint", "error", err)
		return nil
	}
	valid := make(map[int]string, len(done))
	for i, s := range done {
		if i >= 0 && i < len(contents) && s != "" {
			valid[i] = s
		}
	}
	return valid
}

// emit publishes ev without blocking
func (p *Pipeline) emit(ev Event) {
	if p.events == nil {
		return
	}
	select {
	case p.events <- ev:
	default:
		p.logger.Debug("progress event dropped", "kind", string(ev.Kind), "index", ev.Index)
	}
}

// String describes the pipeline configuration
func (p *Pipeline) String() string {
	return fmt.Sprintf("pipeline(model=%s budget=%d max_collapses=%d concurrency=%d)",
		p.client.Model(), p.budget, p.maxCollapses, p.concurrency)
}

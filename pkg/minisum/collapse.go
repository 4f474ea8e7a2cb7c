package minisum

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// State is a position in the collapse state machine.
type State int

const (
	StateSummarizing State = iota
	StateCollecting
	StateCollapsing
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSummarizing:
		return "summarizing"
	case StateCollecting:
		return "collecting"
	case StateCollapsing:
		return "collapsing"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// machine drives one run through the states. Every step either moves to
// the next state or to StateFailed with err set.
type machine struct {
	p      *Pipeline
	chunks []Chunk
	ps     *PipelineState
	stats  Stats
	state  State
	err    error
}

// runUntil advances until stop, StateDone or StateFailed is reached
func (m *machine) runUntil(ctx context.Context, stop State) error {
	for m.state != stop && m.state != StateDone && m.state != StateFailed {
		from := m.state
		m.step(ctx)
		m.p.logger.Debug("transition", "from", from.String(), "to", m.state.String())
	}
	if m.state == StateFailed {
		return m.err
	}
	return nil
}

func (m *machine) step(ctx context.Context) {
	switch m.state {
	case StateSummarizing:
		summaries, err := m.p.summarizeAll(ctx, m.chunks, m.ps.Contents, &m.stats)
		if err != nil {
			m.fail(StepSummarize, err)
			return
		}
		m.ps.appendSummaries(summaries...)
		m.state = StateCollecting

	case StateCollecting:
		m.ps.replaceCollapsed(Units(m.ps.Summaries))
		m.p.emit(Event{Kind: StepCollect, Index: 1, Total: 1,
			Label: fmt.Sprintf("collected %d summaries", len(m.ps.Collapsed))})
		m.state = m.next()

	case StateCollapsing:
		if m.stats.Collapses >= m.p.maxCollapses {
			m.fail(StepCollapse, fmt.Errorf("%w: cost %d > budget %d after %d iterations",
				ErrCollapseLimitExceeded, TotalCost(m.p.est, m.ps.Collapsed), m.p.budget, m.stats.Collapses))
			return
		}
		m.stats.Collapses++
		working, err := m.p.collapseOnce(ctx, m.ps.Collapsed, m.stats.Collapses, &m.stats)
		if err != nil {
			m.fail(StepCollapse, err)
			return
		}
		m.ps.replaceCollapsed(working)
		m.state = m.next()

	case StateFinalizing:
		m.p.emit(Event{Kind: StepFinalize, Index: 0, Total: 1, Label: "writing final summary"})
		m.stats.FinalizeCalls++
		final, err := m.p.sum.Reduce(ctx, m.ps.Collapsed)
		if err != nil {
			m.fail(StepFinalize, err)
			return
		}
		if err := m.ps.setFinal(final.Text); err != nil {
			m.fail(StepFinalize, err)
			return
		}
		m.p.emit(Event{Kind: StepFinalize, Index: 1, Total: 1, Label: "final summary ready"})
		m.state = StateDone
	}
}

// next evaluates the continuation predicate on the current working set
func (m *machine) next() State {
	cost := TotalCost(m.p.est, m.ps.Collapsed)
	m.p.logger.Info("working set", "units", len(m.ps.Collapsed), "cost", cost,
		"budget", m.p.budget, "collapses", m.stats.Collapses)
	if cost > m.p.budget {
		return StateCollapsing
	}
	return StateFinalizing
}

func (m *machine) fail(step Step, err error) {
	m.state = StateFailed
	m.err = &StageError{Step: step, Err: err}
	m.p.logger.Error("stage failed", "step", string(step), "error", err)
}

// collapseOnce partitions units and reduces every sub-list concurrently.
// The result keeps partition order; nothing is returned unless every
// reduce succeeded.
func (p *Pipeline) collapseOnce(ctx context.Context, units []SummaryUnit, iteration int, stats *Stats) ([]SummaryUnit, error) {
	parts := Partition(units, p.budget, p.est)
	p.logger.Info("collapsing", "iteration", iteration, "units", len(units), "groups", len(parts))

	merged := make([]SummaryUnit, len(parts))
	var done atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, part := range parts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			u, err := p.sum.Reduce(gctx, part)
			if err != nil {
				return fmt.Errorf("group %d of %d: %w", i+1, len(parts), err)
			}
			merged[i] = u
			n := int(done.Add(1))
			p.emit(Event{Kind: StepCollapse, Index: n, Total: len(parts), Iteration: iteration,
				Label: fmt.Sprintf("collapse %d/%d", iteration, p.maxCollapses)})
			return nil
		})
	}
	err := g.Wait()
	stats.CollapseCalls += int(done.Load())
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// Collapse reduces units until their total cost fits the budget, without
// producing a final summary. It returns the last working set.
func (p *Pipeline) Collapse(ctx context.Context, units []SummaryUnit) ([]SummaryUnit, Stats, error) {
	m := &machine{
		p:     p,
		ps:    &PipelineState{Summaries: Texts(units)},
		state: StateCollecting,
	}
	if err := m.runUntil(ctx, StateFinalizing); err != nil {
		return nil, m.stats, err
	}
	return m.ps.Collapsed, m.stats, nil
}

// describe is a short label for a chunk in progress output
func describe(c Chunk) string {
	parts := make([]string, 0, 2)
	if c.Path != "" {
		parts = append(parts, c.Path)
	}
	if c.Heading != "" {
		parts = append(parts, "["+c.Heading+"]")
	}
	if len(parts) == 0 {
		return fmt.Sprintf("chunk %d", c.Index)
	}
	return strings.Join(parts, " ")
}

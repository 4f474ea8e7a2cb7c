package minisum

import (
	"errors"
	"fmt"
)

// Chunk represents a piece of a document with its content and metadata
type Chunk struct {
	Path    string // File path relative to the loaded root
	Content string // The actual text content
	Heading string // Section heading if applicable
	Offset  int    // Character offset in original file
	Index   int    // Position in the document sequence, 0-based
}

// SummaryUnit is the summary of one chunk or of a group of earlier units.
type SummaryUnit struct {
	Text string
}

// Units wraps summary strings.
func Units(texts []string) []SummaryUnit {
	units := make([]SummaryUnit, len(texts))
	for i, t := range texts {
		units[i] = SummaryUnit{Text: t}
	}
	return units
}

// Texts unwraps units.
func Texts(units []SummaryUnit) []string {
	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.Text
	}
	return texts
}

// PipelineState accumulates the products of one run. Summaries only grow,
// Collapsed is replaced as a whole and FinalSummary is written once.
type PipelineState struct {
	Contents     []string      // Chunk contents in document order
	Summaries    []string      // Per-chunk summaries
	Collapsed    []SummaryUnit // Current working set
	FinalSummary string

	final bool
}

func (s *PipelineState) appendSummaries(summaries ...string) {
	s.Summaries = append(s.Summaries, summaries...)
}

func (s *PipelineState) replaceCollapsed(units []SummaryUnit) {
	s.Collapsed = append([]SummaryUnit(nil), units...)
}

func (s *PipelineState) setFinal(text string) error {
	if s.final {
		return ErrFinalAlreadySet
	}
	s.FinalSummary = text
	s.final = true
	return nil
}

// HasFinal reports whether the final summary has been produced
func (s *PipelineState) HasFinal() bool {
	return s.final
}

// Step names a pipeline stage in progress events and errors.
type Step string

const (
	StepSummarize Step = "summarize"
	StepCollect   Step = "collect"
	StepCollapse  Step = "collapse"
	StepFinalize  Step = "finalize"
)

// Event is a best-effort progress record.
type Event struct {
	Kind      Step
	Index     int // 1-based position within Total
	Total     int
	Iteration int // collapse iteration, 0 outside the collapse step
	Label     string
}

var (
	// ErrEmptyInput is returned by Run when there are no chunks to summarize.
	ErrEmptyInput = errors.New("no chunks to summarize")
	// ErrCollapseLimitExceeded means the working set still exceeded the
	// budget after the maximum number of collapse iterations.
	ErrCollapseLimitExceeded = errors.New("collapse limit exceeded")
	// ErrFinalAlreadySet guards the write-once final summary.
	ErrFinalAlreadySet = errors.New("final summary already set")
)

// StageError identifies the stage a run failed in.
type StageError struct {
	Step Step
	Err  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Stats counts the work done by a run.
type Stats struct {
	SummarizeCalls int // chunk summaries produced by the client
	Restored       int // chunk summaries taken from a checkpoint
	CollapseCalls  int // successful reduce calls while collapsing
	Collapses      int // collapse iterations
	FinalizeCalls  int
}

// Calls returns the total number of client calls.
func (s Stats) Calls() int {
	return s.SummarizeCalls + s.CollapseCalls + s.FinalizeCalls
}

// Result is the outcome of a successful run.
type Result struct {
	Summary string
	State   *PipelineState
	Stats   Stats
}

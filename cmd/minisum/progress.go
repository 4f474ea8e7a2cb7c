package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/perbu/minisum/pkg/minisum"
)

// eventBuffer is how many progress events may queue before the pipeline
// starts dropping them.
const eventBuffer = 64

var (
	stepStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	countStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	labelStyle = lipgloss.NewStyle().Faint(true)
)

// progress renders pipeline events on w. On a terminal it redraws a single
// styled status line, otherwise it prints one plain line per event.
type progress struct {
	w      io.Writer
	tty    bool
	events chan minisum.Event
	done   chan struct{}
	width  int // length of the last status line, for clearing
}

func newProgress(w io.Writer, tty bool) *progress {
	return &progress{
		w:      w,
		tty:    tty,
		events: make(chan minisum.Event, eventBuffer),
		done:   make(chan struct{}),
	}
}

func (p *progress) run() {
	defer close(p.done)
	for ev := range p.events {
		p.render(ev)
	}
	if p.tty && p.width > 0 {
		fmt.Fprintln(p.w)
	}
}

// close stops the renderer once the queued events are drawn
func (p *progress) close() {
	close(p.events)
	<-p.done
}

func (p *progress) render(ev minisum.Event) {
	step := string(ev.Kind)
	if ev.Iteration > 0 {
		step = fmt.Sprintf("%s #%d", step, ev.Iteration)
	}
	count := fmt.Sprintf("%d/%d", ev.Index, ev.Total)

	if !p.tty {
		line := fmt.Sprintf("[%s] %s", step, count)
		if ev.Label != "" {
			line += " " + ev.Label
		}
		fmt.Fprintln(p.w, line)
		return
	}

	line := stepStyle.Render(step) + " " + countStyle.Render(count)
	if ev.Label != "" {
		line += " " + labelStyle.Render(truncate(ev.Label, 60))
	}
	width := lipgloss.Width(line)
	pad := ""
	if width < p.width {
		pad = fmt.Sprintf("%*s", p.width-width, "")
	}
	fmt.Fprintf(p.w, "\r%s%s", line, pad)
	p.width = width
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

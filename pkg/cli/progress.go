package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// SampleProgress renders how far a canary is towards the minimum sample
// count, redrawing a single terminal line on every update.
type SampleProgress struct {
	mu      sync.Mutex
	writer  io.Writer
	target  int64
	current int64
	label   string
	drawn   bool
}

// progressBarWidth is the bar length in cells.
const progressBarWidth = 30

// NewSampleProgress creates a progress line for target samples. If w is nil
// it defaults to os.Stdout.
func NewSampleProgress(w io.Writer, target int64) *SampleProgress {
	if w == nil {
		w = os.Stdout
	}
	return &SampleProgress{writer: w, target: target}
}

// Update redraws the line with the current sample count and a trailing
// status label (for example the recommendation).
func (p *SampleProgress) Update(current int64, label string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	p.label = label
	p.render()
}

// Finish ends the progress line.
func (p *SampleProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.drawn {
		fmt.Fprintln(p.writer)
		p.drawn = false
	}
}

// Error reports an error and ends the line.
func (p *SampleProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.writer, "\n✗ Error: %v\n", err)
	p.drawn = false
}

func (p *SampleProgress) render() {
	if p.target <= 0 {
		return
	}

	ratio := float64(p.current) / float64(p.target)
	if ratio > 1 {
		ratio = 1
	}
	filled := int(float64(progressBarWidth) * ratio)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled)

	fmt.Fprintf(p.writer, "\rSamples: [%s] %d/%d %s", bar, p.current, p.target, p.label)
	p.drawn = true
}

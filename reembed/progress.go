package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker reports how many documents an embedding run has covered.
// Output is a single line rewritten with a carriage return.
type ProgressTracker struct {
	mu        sync.Mutex
	writer    io.Writer
	total     int
	every     int
	documents int
	fragments int
	skipped   int
	reported  int
	start     time.Time
	started   bool
	now       func() time.Time
}

// NewProgressTracker creates a tracker for total documents that reports
// every reportInterval documents.
func NewProgressTracker(writer io.Writer, total, reportInterval int) *ProgressTracker {
	return &ProgressTracker{
		writer: writer,
		total:  total,
		every:  max(reportInterval, 1),
		now:    time.Now,
	}
}

// Start resets the counters and the clock.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.start = p.now()
	p.started = true
	p.documents, p.fragments, p.skipped, p.reported = 0, 0, 0, 0
}

// Add records a finished batch. documents counts every document looked at,
// including the skipped ones.
func (p *ProgressTracker) Add(documents, fragments, skipped int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.documents = min(p.documents+documents, p.total)
	p.fragments += fragments
	p.skipped += skipped

	if p.documents-p.reported >= p.every {
		p.report()
		p.reported = p.documents
	}
}

// Finish prints the final line.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.documents = p.total
	p.report()
	fmt.Fprintln(p.writer)
}

// Elapsed returns the time since Start.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return p.now().Sub(p.start)
}

// report must be called with p.mu held.
func (p *ProgressTracker) report() {
	elapsed := p.now().Sub(p.start)
	percent := 100.0
	if p.total > 0 {
		percent = float64(p.documents) / float64(p.total) * 100
	}

	line := fmt.Sprintf("\rProgress: %d/%d documents (%.1f%%), %d fragments, %d skipped",
		p.documents, p.total, percent, p.fragments, p.skipped)
	if elapsed > 0 && p.documents > 0 {
		rate := float64(p.documents) / elapsed.Seconds()
		line += fmt.Sprintf(" - %.1f documents/s", rate)
		if left := p.total - p.documents; left > 0 {
			eta := time.Duration(float64(left) / rate * float64(time.Second))
			line += fmt.Sprintf(", eta %v", eta.Round(time.Second))
		}
	}
	fmt.Fprint(p.writer, line)
}

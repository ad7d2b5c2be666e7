package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker reports how far a re-embedding run has come.
// It is safe for concurrent use.
type ProgressTracker struct {
	mu sync.Mutex

	writer         io.Writer
	total          int
	reportInterval int

	processed    int
	lastReported int
	outcome      BatchResult
	startTime    time.Time
	started      bool
}

// NewProgressTracker creates a tracker for total records that prints a line
// every reportInterval records.
func NewProgressTracker(writer io.Writer, total, reportInterval int) *ProgressTracker {
	if reportInterval <= 0 {
		reportInterval = 1
	}
	return &ProgressTracker{
		writer:         writer,
		total:          total,
		reportInterval: reportInterval,
	}
}

// Start resets the counters and starts the clock.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.processed = 0
	p.lastReported = 0
	p.outcome = BatchResult{}
}

// Add records a finished batch of n records with its outcome.
func (p *ProgressTracker) Add(n int, result BatchResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.processed = min(p.processed+n, p.total)
	p.outcome.Add(result)

	if p.processed-p.lastReported >= p.reportInterval {
		p.report()
		p.lastReported = p.processed
	}
}

// Outcome returns the accumulated batch results.
func (p *ProgressTracker) Outcome() BatchResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outcome
}

// Finish prints the final progress line.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.processed = p.total
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
	return time.Since(p.startTime)
}

// report prints one progress line. Must be called with lock held.
func (p *ProgressTracker) report() {
	elapsed := time.Since(p.startTime)

	percentage := 100.0
	if p.total > 0 {
		percentage = float64(p.processed) / float64(p.total) * 100.0
	}

	fmt.Fprintf(p.writer, "\rProgress: %d/%d (%.1f%%) - %d completed, %d failed, %d skipped",
		p.processed, p.total, percentage, p.outcome.Completed, p.outcome.Failed, p.outcome.Skipped)

	if remaining := p.total - p.processed; remaining > 0 && p.processed > 0 {
		eta := time.Duration(float64(elapsed) / float64(p.processed) * float64(remaining))
		fmt.Fprintf(p.writer, " - ETA %v", eta.Round(time.Second))
	}
}

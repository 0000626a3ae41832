package worker

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const barWidth = 30

// Progress renders a single-line progress bar for a sweep.
type Progress struct {
	start   time.Time
	out     io.Writer
	stats   Stats
	mu      sync.Mutex
	enabled bool
}

// NewProgress creates a tracker for total patterns. When enabled is false
// nothing is printed, but the stats are still collected for Summary.
func NewProgress(total int, enabled bool) *Progress {
	return &Progress{
		start:   time.Now(),
		out:     os.Stderr,
		stats:   Stats{Total: total},
		enabled: enabled,
	}
}

// Update records the latest batch stats. It matches ProgressFunc.
func (p *Progress) Update(s Stats) {
	p.mu.Lock()
	p.stats = s
	p.mu.Unlock()

	if p.enabled {
		p.Print()
	}
}

// Stats returns the last recorded stats.
func (p *Progress) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Print writes the current line, overwriting the previous one.
func (p *Progress) Print() {
	p.mu.Lock()
	s, elapsed := p.stats, time.Since(p.start)
	p.mu.Unlock()

	filled := 0
	if s.Total > 0 {
		filled = min(s.Completed*barWidth/s.Total, barWidth)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\r[%s%s] %d/%d patterns",
		strings.Repeat("█", filled), strings.Repeat("░", barWidth-filled), s.Completed, s.Total)

	var notes []string
	if s.Reused > 0 {
		notes = append(notes, fmt.Sprintf("%d reused", s.Reused))
	}
	if s.Failed > 0 {
		notes = append(notes, fmt.Sprintf("%d failed", s.Failed))
	}
	if len(notes) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(notes, ", "))
	}

	// Reused patterns finish instantly; the rate and ETA only count renders.
	rendered := s.Rendered()
	rate := 0.0
	if rendered > 0 && elapsed > 0 {
		rate = float64(rendered) / elapsed.Seconds()
	}
	fmt.Fprintf(&b, " - %.1f patterns/sec", rate)
	if remaining := s.Total - s.Completed; remaining > 0 && rate > 0 {
		eta := time.Duration(float64(remaining) / rate * float64(time.Second))
		fmt.Fprintf(&b, " - ETA: %s", formatDuration(eta))
	}
	if s.Completed >= s.Total {
		fmt.Fprintf(&b, " - Done in %s", formatDuration(elapsed))
	}
	b.WriteString("          ")

	fmt.Fprint(p.out, b.String())
}

// Done prints the final line and a newline.
func (p *Progress) Done() {
	if p.enabled {
		p.Print()
		fmt.Fprintln(p.out)
	}
}

// Summary describes the finished batch in one line.
func (p *Progress) Summary() string {
	p.mu.Lock()
	s, elapsed := p.stats, time.Since(p.start)
	p.mu.Unlock()

	line := fmt.Sprintf("Rendered %d/%d patterns (%d reused, %d failed) in %s",
		s.Rendered(), s.Total, s.Reused, s.Failed, formatDuration(elapsed))
	if s.SkippedLayers > 0 {
		line += fmt.Sprintf("; %d invalid layers skipped", s.SkippedLayers)
	}
	return line
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

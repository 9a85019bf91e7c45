package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Bar renders hashing progress. The total grows while the scan is still
// discovering files, so both counters are supplied on every update.
type Bar struct {
	label      string
	total      int64
	current    int64
	width      int
	writer     io.Writer
	mu         sync.Mutex
	enabled    bool
	lastUpdate time.Time
}

// New returns a bar writing to stdout. It stays silent when stdout is not a terminal.
func New(label string) *Bar {
	return NewWriter(label, os.Stdout, isTerminal())
}

// NewWriter returns a bar writing to w.
func NewWriter(label string, w io.Writer, enabled bool) *Bar {
	return &Bar{
		label:   label,
		width:   50,
		writer:  w,
		enabled: enabled,
	}
}

func isTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	// Check if stdout is a terminal (character device)
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// Update records completed out of total jobs.
func (b *Bar) Update(completed, total int64) {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = completed
	b.total = total

	// Update at most every 100ms to reduce flickering
	now := time.Now()
	if now.Sub(b.lastUpdate) > 100*time.Millisecond || b.current == b.total {
		b.lastUpdate = now
		b.render()
	}
}

// render must be called with mu already locked
func (b *Bar) render() {
	if b.total == 0 {
		return
	}

	current := b.current
	if current > b.total {
		current = b.total
	}

	percent := float64(current) / float64(b.total) * 100
	filledWidth := int(float64(b.width) * float64(current) / float64(b.total))

	bar := strings.Repeat("█", filledWidth) + strings.Repeat("░", b.width-filledWidth)

	// Clear the line and write progress
	fmt.Fprintf(b.writer, "\r\033[K%s [%s] %3d%% (%d/%d)",
		b.label, bar, int(percent), current, b.total)
}

// Finish draws the final state and ends the line.
func (b *Bar) Finish() {
	if !b.enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.total == 0 {
		return
	}

	b.current = b.total
	b.render()
	fmt.Fprintf(b.writer, "\n")
}

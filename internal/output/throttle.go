package output

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// frameInterval bounds status-line redraws to 10Hz, avoiding terminal
// flicker under heavy parallel output. Ported from the original
// implementation's terminal/throttle.rs (SPEC_FULL.md §2.3 supplement).
const frameInterval = 100 * time.Millisecond

// StatusLine renders a single redrawable line (e.g. "running: build, test")
// to w, rate-limited to frameInterval. Only meaningful when w is a TTY;
// callers should gate construction on IsTTY().
type StatusLine struct {
	w        io.Writer
	mu       sync.Mutex
	last     time.Time
	lastLine string
}

// NewStatusLine creates a throttled status line writer.
func NewStatusLine(w io.Writer) *StatusLine {
	return &StatusLine{w: w}
}

// Update redraws the status line with text, unless the last redraw happened
// less than frameInterval ago, in which case the update is dropped.
func (s *StatusLine) Update(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.last) < frameInterval {
		return
	}
	s.last = time.Now()
	s.lastLine = text
	fmt.Fprintf(s.w, "\r\x1b[K%s", text)
}

// Clear erases the status line, called once before final output replaces it.
func (s *StatusLine) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprint(s.w, "\r\x1b[K")
	s.lastLine = ""
}

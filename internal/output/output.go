// Package output carries tagged, optionally colorized, buffer-then-flush
// writers for the scheduler's parallel leaves, plus TTY/color detection.
// Grounded on the teacher's Output/bufferedOutput pair and its TTY-gated
// color-forcing env vars.
package output

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	colorable "github.com/mattn/go-colorable"
	"golang.org/x/term"
)

// Output holds stdout/stderr writers for one leaf or the top-level process.
type Output struct {
	Stdout io.Writer
	Stderr io.Writer
}

// Std returns an Output writing to the process's real stdout/stderr,
// wrapped with go-colorable so ANSI sequences render correctly on Windows
// consoles as well as real terminals.
func Std() *Output {
	return &Output{
		Stdout: colorable.NewColorable(os.Stdout),
		Stderr: colorable.NewColorable(os.Stderr),
	}
}

// IsTTY reports whether stdout is attached to a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// ColorEnabled reports whether colorized output should be produced, honoring
// NO_COLOR (https://no-color.org/) and the DL_FORCE_* overrides of §6.
func ColorEnabled() bool {
	if _, set := os.LookupEnv("NO_COLOR"); set {
		return false
	}
	for _, v := range []string{"DL_FORCE_COLOR", "DL_FORCE_STDOUT_COLOR", "DL_FORCE_STDERR_COLOR"} {
		if _, set := os.LookupEnv(v); set {
			return true
		}
	}
	return IsTTY()
}

// tagPalette is the deterministic, repeating set of colors assigned to task
// tags by name, so the same task name always gets the same color within a
// run.
var tagPalette = []color.Attribute{
	color.FgCyan, color.FgMagenta, color.FgYellow, color.FgGreen,
	color.FgBlue, color.FgRed,
}

// colorFor derives a stable color for name by hashing it into the palette.
func colorFor(name string) *color.Color {
	h := 0
	for _, r := range name {
		h = h*31 + int(r)
	}
	if h < 0 {
		h = -h
	}
	return color.New(tagPalette[h%len(tagPalette)])
}

// Tagged wraps a parent Output with a per-leaf [name] prefix on every
// written line, colorized (deterministically by name) when color is
// enabled.
type Tagged struct {
	name   string
	parent *Output
	color  bool
}

// NewTagged returns a Tagged writer pair for leaf name, writing to parent.
func NewTagged(name string, parent *Output, enableColor bool) *Tagged {
	return &Tagged{name: name, parent: parent, color: enableColor}
}

func (t *Tagged) Stdout() io.Writer { return &prefixWriter{tag: t.prefix(), w: t.parent.Stdout} }
func (t *Tagged) Stderr() io.Writer { return &prefixWriter{tag: t.prefix(), w: t.parent.Stderr} }

func (t *Tagged) prefix() string {
	if !t.color {
		return fmt.Sprintf("[%s] ", t.name)
	}
	return colorFor(t.name).Sprintf("[%s] ", t.name)
}

// prefixWriter prepends tag to every line written to it.
type prefixWriter struct {
	tag string
	w   io.Writer
	buf bytes.Buffer
	mu  sync.Mutex
}

func (p *prefixWriter) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(data)
	p.buf.Write(data)
	for {
		line, err := p.buf.ReadString('\n')
		if err != nil {
			// incomplete line: push back and wait for more data.
			p.buf.WriteString(line)
			break
		}
		if _, err := fmt.Fprint(p.w, p.tag, line); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Buffered captures a leaf's output into memory, writing it to parent in
// one shot when Flush is called. The scheduler flushes every child's buffer,
// in declaration order, once the whole parallel group has finished — this
// is how it keeps parallel leaves from scrambling each other's output
// mid-line, as the teacher's bufferedOutput does for goroutines.
type Buffered struct {
	parent *Output
	mu     sync.Mutex
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func NewBuffered(parent *Output) *Buffered {
	return &Buffered{parent: parent}
}

func (b *Buffered) Stdout() io.Writer { return &lockedWriter{mu: &b.mu, w: &b.stdout} }
func (b *Buffered) Stderr() io.Writer { return &lockedWriter{mu: &b.mu, w: &b.stderr} }

func (b *Buffered) Output() *Output {
	return &Output{Stdout: b.Stdout(), Stderr: b.Stderr()}
}

// Flush writes everything buffered so far to the parent writers.
func (b *Buffered) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, _ = io.Copy(b.parent.Stdout, &b.stdout)
	_, _ = io.Copy(b.parent.Stderr, &b.stderr)
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

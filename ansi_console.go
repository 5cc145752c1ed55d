package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"gpsmon/monitor"
)

// uiSurface is what main needs from an operator display beyond the
// monitor.Surface contract the panels draw through.
type uiSurface interface {
	monitor.Surface
	// Input delivers operator keystrokes; it is closed when input ends.
	Input() <-chan []byte
	SetStatus(line string)
	SystemWriter() io.Writer
	WaitReady()
	// Stop tears the display down and gives the terminal back.
	Stop()
}

// ansiConsole is the headless surface selected by --nocurses or ui: ansi. It
// streams packet lines to stdout, has no panel area and no size limit, and
// reads operator lines from stdin.
type ansiConsole struct {
	mu       sync.Mutex
	out      io.Writer
	color    bool
	input    chan []byte
	state    *term.State
	fd       int
	stopOnce sync.Once
}

// Purpose: Construct the headless console over stdout/stdin.
// Key aspects: Color markup only when stdout is a terminal; the stdin reader
// runs until EOF.
// Upstream: main UI selection.
// Downstream: readInput goroutine, term.GetState.
func newANSIConsole(out io.Writer, in io.Reader, isTTY bool) *ansiConsole {
	c := &ansiConsole{
		out:   out,
		color: isTTY,
		input: make(chan []byte, 16),
		fd:    -1,
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if st, err := term.GetState(int(f.Fd())); err == nil {
			c.state = st
			c.fd = int(f.Fd())
		}
	}
	go c.readInput(in)
	return c
}

// Purpose: Forward operator lines from stdin to the event loop.
// Key aspects: Each line keeps its newline so the loop's line buffer
// completes it; the channel closes at EOF.
// Upstream: newANSIConsole.
// Downstream: input channel.
func (c *ansiConsole) readInput(in io.Reader) {
	defer close(c.input)
	if in == nil {
		return
	}
	reader := bufio.NewReader(in)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			c.input <- line
		}
		if err != nil {
			return
		}
	}
}

func (c *ansiConsole) Input() <-chan []byte { return c.input }

// Size is 0x0: a stream has no panel size limit.
func (c *ansiConsole) Size() (int, int) { return 0, 0 }

func (c *ansiConsole) Clear()   {}
func (c *ansiConsole) Refresh() {}

func (c *ansiConsole) AppendLine(line string) {
	c.writeLine(line)
}

// Purpose: Show an operator-facing error inline with the packet stream.
// Key aspects: Highlighted in red on a terminal, plain otherwise.
// Upstream: report.Reporter.Complain.
// Downstream: applyANSIMarkup.
func (c *ansiConsole) Complain(msg string) {
	c.writeLine(applyANSIMarkup("[red]"+msg+"[-]", c.color))
}

// Window hands panels a region that draws nowhere.
func (c *ansiConsole) Window(rows, cols int) monitor.Window {
	return &streamWindow{rows: rows, cols: cols}
}

func (c *ansiConsole) SetStatus(string) {}

func (c *ansiConsole) SystemWriter() io.Writer { return os.Stderr }

func (c *ansiConsole) WaitReady() {}

// Purpose: Give the terminal back in the state it was found.
// Key aspects: Idempotent; the stdin reader is left to die with the process.
// Upstream: event loop restore step.
// Downstream: term.Restore.
func (c *ansiConsole) Stop() {
	c.stopOnce.Do(func() {
		if c.state != nil {
			_ = term.Restore(c.fd, c.state)
		}
	})
}

func (c *ansiConsole) writeLine(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	_, _ = io.WriteString(c.out, line)
}

// streamWindow satisfies monitor.Window for surfaces with no panel area.
type streamWindow struct {
	rows int
	cols int
}

func (w *streamWindow) Size() (int, int)    { return w.rows, w.cols }
func (w *streamWindow) Clear()              {}
func (w *streamWindow) SetLine(int, string) {}

// Purpose: Apply or strip ANSI markup tokens.
// Key aspects: Optionally appends reset code when markup is present.
// Upstream: ansiConsole.Complain.
// Downstream: strings.Replacer instances.
func applyANSIMarkup(line string, enableColor bool) string {
	if line == "" {
		return line
	}
	if enableColor {
		hasMarkup := strings.Contains(line, "[")
		line = ansiColorReplacer.Replace(line)
		if hasMarkup {
			line += resetANSI
		}
		return line
	}
	return ansiStripReplacer.Replace(line)
}

const resetANSI = "\x1b[0m"

var ansiColorReplacer = strings.NewReplacer(
	"[red]", "\x1b[31m",
	"[green]", "\x1b[32m",
	"[yellow]", "\x1b[33m",
	"[-]", resetANSI,
)

var ansiStripReplacer = strings.NewReplacer(
	"[red]", "",
	"[green]", "",
	"[yellow]", "",
	"[-]", "",
)

// Purpose: Print the termination explanation once the display is gone.
// Key aspects: Goes to stderr so a redirected packet stream stays clean.
// Upstream: event loop announce step.
// Downstream: fmt.Fprintln.
func announce(msg string) {
	fmt.Fprintln(os.Stderr, msg)
}

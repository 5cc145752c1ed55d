// Package report serialises every write to the operator surface and the packet
// log behind one lock, so lines from the PPS watcher and the event loop never
// interleave.
package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gpsmon/monitor"
)

// ErrShortWrite means the packet log accepted fewer bytes than it was given.
var ErrShortWrite = errors.New("short write to packet log")

// Reporter wraps a surface with the report lock and owns the packet log.
type Reporter struct {
	mu      sync.Mutex
	surface monitor.Surface
	log     io.WriteCloser
	logPath string
	dedupe  *complaintDeduper
}

// New wraps surface. ComplainOnce folds repeats within dedupeWindow; a zero
// window disables folding.
func New(surface monitor.Surface, dedupeWindow time.Duration) *Reporter {
	return &Reporter{
		surface: surface,
		dedupe:  newComplaintDeduper(dedupeWindow, defaultComplaintDedupeMaxKeys),
	}
}

func (r *Reporter) Size() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.surface.Size()
}

func (r *Reporter) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surface.Clear()
}

func (r *Reporter) Refresh() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surface.Refresh()
}

// AppendLine writes to the packet pane only.
func (r *Reporter) AppendLine(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surface.AppendLine(line)
}

// Complain shows an operator-facing error. Every call is shown; command
// replies must never be swallowed.
func (r *Reporter) Complain(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surface.Complain(msg)
}

// ComplainOnce shows an error raised from the packet path, folding repeats
// within the dedupe window.
func (r *Reporter) ComplainOnce(msg string) {
	msg, ok := r.dedupe.Process(msg)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surface.Complain(msg)
}

// Window returns a panel region whose writes take the report lock.
func (r *Reporter) Window(rows, cols int) monitor.Window {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &lockedWindow{mu: &r.mu, w: r.surface.Window(rows, cols)}
}

// Report shows line in the packet pane and copies it to the packet log.
func (r *Reporter) Report(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.surface.AppendLine(line)
	if r.log != nil {
		_, _ = io.WriteString(r.log, line+"\n")
	}
}

// Packet shows the rendered line and appends the raw packet bytes to the log
// under a single lock hold. A log write that stores nothing is ErrShortWrite.
func (r *Reporter) Packet(line string, raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if line != "" {
		r.surface.AppendLine(line)
	}
	if r.log == nil || len(raw) == 0 {
		return nil
	}
	n, err := r.log.Write(raw)
	if err != nil {
		return fmt.Errorf("packet log: %w", err)
	}
	if n < 1 {
		return ErrShortWrite
	}
	return nil
}

// Annotate marks an out-of-band event in the packet log.
func (r *Reporter) Annotate(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.log == nil {
		return
	}
	_, _ = fmt.Fprintf(r.log, ">>>"+format+"\n", args...)
}

// OpenLog closes any open packet log and opens path. With truncate false the
// file is appended to. On failure logging stays off.
func (r *Reporter) OpenLog(path string, truncate bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
	flags := os.O_WRONLY | os.O_CREATE | os.O_APPEND
	if truncate {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open packet log %s: %w", path, err)
	}
	r.log = f
	r.logPath = path
	return nil
}

// SetLog installs an already-open sink, closing any previous one.
func (r *Reporter) SetLog(w io.WriteCloser, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
	r.log = w
	r.logPath = name
}

// CloseLog closes the packet log if one is open.
func (r *Reporter) CloseLog() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeLocked()
}

// LogPath returns the open packet log's name, or "" when logging is off.
func (r *Reporter) LogPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logPath
}

func (r *Reporter) closeLocked() error {
	if r.log == nil {
		return nil
	}
	err := r.log.Close()
	r.log = nil
	r.logPath = ""
	return err
}

type lockedWindow struct {
	mu *sync.Mutex
	w  monitor.Window
}

func (l *lockedWindow) Size() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Size()
}

func (l *lockedWindow) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Clear()
}

func (l *lockedWindow) SetLine(row int, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.SetLine(row, text)
}

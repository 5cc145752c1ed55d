package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"gpsmon/monitor"
)

// dashboard is the full-screen surface: a status line, the active panel's
// device window, a scrolling packet pane, a system log pane and a command
// line.
type dashboard struct {
	app        *tview.Application
	layout     *tview.Flex
	statusView *tview.TextView
	deviceView *tview.TextView
	packetView *tview.TextView
	systemView *tview.TextView
	command    *tview.InputField

	paneMu      sync.Mutex
	packetLines []string
	complaint   string
	status      string

	input     chan []byte
	interrupt func()
	screenW   atomic.Int32
	screenH   atomic.Int32
	closed    atomic.Bool
	ready     chan struct{}
	stopOnce  sync.Once
}

const (
	packetMaxLines = 500
	systemRows     = 4
	// status line, command line and at least one packet row
	chromeRows = 3
)

// Purpose: Build and start the tview dashboard.
// Key aspects: Ctrl-C is routed to interrupt instead of stopping tview; the
// command line sends whole lines to the input channel.
// Upstream: main UI selection.
// Downstream: tview.Application.Run goroutine.
func newDashboard(interrupt func()) *dashboard {
	makePane := func(title string) *tview.TextView {
		tv := tview.NewTextView().
			SetDynamicColors(true).
			SetWrap(false)
		if title != "" {
			tv.SetTitle(title).SetTitleAlign(tview.AlignLeft)
		}
		return tv
	}

	status := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	status.SetTextColor(tcell.ColorYellow)
	device := makePane("")
	packets := makePane("")
	system := makePane("")
	system.SetTextColor(tcell.ColorYellow)
	command := tview.NewInputField().SetLabel("> ").SetFieldBackgroundColor(tcell.ColorDefault)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(status, 1, 0, false).
		AddItem(device, 0, 0, false).
		AddItem(packets, 0, 1, false).
		AddItem(system, systemRows, 0, false).
		AddItem(command, 1, 0, true)

	app := tview.NewApplication().SetRoot(layout, true).EnableMouse(false)
	d := &dashboard{
		app:        app,
		layout:     layout,
		statusView: status,
		deviceView: device,
		packetView: packets,
		systemView: system,
		command:    command,
		input:      make(chan []byte, 16),
		interrupt:  interrupt,
		ready:      make(chan struct{}),
	}

	var once sync.Once
	app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		w, h := screen.Size()
		d.screenW.Store(int32(w))
		d.screenH.Store(int32(h))
		once.Do(func() { close(d.ready) })
		return false
	})
	app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyCtrlC {
			if d.interrupt != nil {
				d.interrupt()
			}
			return nil
		}
		return ev
	})
	command.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := command.GetText()
		command.SetText("")
		d.sendLine(text)
	})

	go func() {
		if err := app.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "dashboard error: %v\n", err)
		}
	}()

	return d
}

func (d *dashboard) sendLine(text string) {
	if d.closed.Load() {
		return
	}
	select {
	case d.input <- []byte(text + "\n"):
	default:
		// Drop on saturation; the event loop is behind.
	}
}

func (d *dashboard) Input() <-chan []byte { return d.input }

func (d *dashboard) WaitReady() {
	if d == nil || d.ready == nil {
		return
	}
	<-d.ready
}

func (d *dashboard) Stop() {
	if d == nil || d.app == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.closed.Store(true)
		d.app.Stop()
	})
}

// Size reports the rows left for the device window after the fixed panes.
func (d *dashboard) Size() (int, int) {
	h := int(d.screenH.Load()) - chromeRows - systemRows
	if h < 1 {
		h = 1
	}
	return h, int(d.screenW.Load())
}

// Clear blanks the device window and any standing complaint.
func (d *dashboard) Clear() {
	d.paneMu.Lock()
	d.complaint = ""
	text := d.statusTextLocked()
	d.paneMu.Unlock()
	d.queue(func() {
		d.deviceView.Clear()
		d.statusView.SetText(text)
	})
}

func (d *dashboard) Refresh() {
	d.queue(func() {})
}

// Purpose: Append one line to the packet pane.
// Key aspects: Bounded history; the view follows the tail.
// Upstream: report.Reporter.
// Downstream: tview QueueUpdateDraw.
func (d *dashboard) AppendLine(line string) {
	d.paneMu.Lock()
	d.packetLines = append(d.packetLines, tview.Escape(strings.TrimRight(line, "\n")))
	if len(d.packetLines) > packetMaxLines {
		d.packetLines = d.packetLines[len(d.packetLines)-packetMaxLines:]
	}
	text := strings.Join(d.packetLines, "\n")
	d.paneMu.Unlock()
	d.queue(func() {
		d.packetView.SetText(text)
		d.packetView.ScrollToEnd()
	})
}

// Complain shows msg on the status line until the next Clear.
func (d *dashboard) Complain(msg string) {
	d.paneMu.Lock()
	d.complaint = msg
	text := d.statusTextLocked()
	d.paneMu.Unlock()
	d.queue(func() { d.statusView.SetText(text) })
}

func (d *dashboard) SetStatus(line string) {
	d.paneMu.Lock()
	d.status = line
	text := d.statusTextLocked()
	d.paneMu.Unlock()
	d.queue(func() { d.statusView.SetText(text) })
}

func (d *dashboard) statusTextLocked() string {
	text := tview.Escape(d.status)
	if d.complaint != "" {
		text += "  [red]" + tview.Escape(d.complaint) + "[-]"
	}
	return text
}

// Purpose: Size the device window for a panel and hand it out.
// Key aspects: The flex item is resized to the panel's rows; lines are
// buffered so SetLine can rewrite a single row.
// Upstream: monitor.Switcher via report.Reporter.
// Downstream: tview Flex.ResizeItem.
func (d *dashboard) Window(rows, cols int) monitor.Window {
	w := &dashWindow{d: d, rows: rows, cols: cols, lines: make([]string, rows)}
	d.queue(func() {
		d.layout.ResizeItem(d.deviceView, rows, 0)
		d.deviceView.Clear()
	})
	return w
}

func (d *dashboard) SystemWriter() io.Writer {
	if d == nil {
		return nil
	}
	return &paneWriter{view: d.systemView, app: d.app}
}

func (d *dashboard) queue(fn func()) {
	if d == nil || d.app == nil || d.closed.Load() {
		return
	}
	d.app.QueueUpdateDraw(fn)
}

// dashWindow is the device window handed to the active panel.
type dashWindow struct {
	d     *dashboard
	rows  int
	cols  int
	mu    sync.Mutex
	lines []string
}

func (w *dashWindow) Size() (int, int) { return w.rows, w.cols }

func (w *dashWindow) Clear() {
	w.mu.Lock()
	for i := range w.lines {
		w.lines[i] = ""
	}
	w.mu.Unlock()
	w.push()
}

func (w *dashWindow) SetLine(row int, text string) {
	if row < 0 || row >= w.rows {
		return
	}
	if len(text) > w.cols {
		text = text[:w.cols]
	}
	w.mu.Lock()
	w.lines[row] = tview.Escape(text)
	w.mu.Unlock()
	w.push()
}

func (w *dashWindow) push() {
	w.mu.Lock()
	text := strings.Join(w.lines, "\n")
	w.mu.Unlock()
	view := w.d.deviceView
	w.d.queue(func() { view.SetText(text) })
}

type paneWriter struct {
	view *tview.TextView
	app  *tview.Application
}

func (w *paneWriter) Write(p []byte) (int, error) {
	if w == nil || w.view == nil {
		return len(p), nil
	}
	text := string(p)
	if w.app == nil {
		fmt.Fprint(w.view, text)
		return len(p), nil
	}
	w.app.QueueUpdateDraw(func() {
		fmt.Fprint(w.view, text)
		w.view.ScrollToEnd()
	})
	return len(p), nil
}

package report

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gpsmon/monitor"
)

type nopWindow struct{}

func (nopWindow) Size() (int, int)    { return 0, 0 }
func (nopWindow) Clear()              {}
func (nopWindow) SetLine(int, string) {}

type recordingSurface struct {
	lines      []string
	complaints []string
}

func (s *recordingSurface) Size() (int, int)               { return 0, 0 }
func (s *recordingSurface) Clear()                         {}
func (s *recordingSurface) Refresh()                       {}
func (s *recordingSurface) AppendLine(line string)         { s.lines = append(s.lines, line) }
func (s *recordingSurface) Complain(msg string)            { s.complaints = append(s.complaints, msg) }
func (s *recordingSurface) Window(int, int) monitor.Window { return nopWindow{} }

type zeroWriter struct{}

func (zeroWriter) Write([]byte) (int, error) { return 0, nil }
func (zeroWriter) Close() error              { return nil }

func TestPacketWritesRawBytesToLog(t *testing.T) {
	surface := &recordingSurface{}
	r := New(surface, 0)
	path := filepath.Join(t.TempDir(), "packets.log")
	if err := r.OpenLog(path, true); err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	if err := r.Packet("(5) hello", []byte("hello\r\n")); err != nil {
		t.Fatalf("Packet: %v", err)
	}
	r.Annotate("[probing %sabled]", "dis")
	if err := r.CloseLog(); err != nil {
		t.Fatalf("CloseLog: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if got, want := string(data), "hello\r\n>>>[probing disabled]\n"; got != want {
		t.Fatalf("log = %q, want %q", got, want)
	}
	if len(surface.lines) != 1 || surface.lines[0] != "(5) hello" {
		t.Fatalf("surface lines = %v", surface.lines)
	}
	if r.LogPath() != "" {
		t.Fatal("log path should clear on close")
	}
}

func TestOpenLogAppendsAndReplaces(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.log")
	second := filepath.Join(dir, "b.log")
	if err := os.WriteFile(second, []byte("old\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	r := New(&recordingSurface{}, 0)
	if err := r.OpenLog(first, true); err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	if err := r.OpenLog(second, false); err != nil {
		t.Fatalf("OpenLog: %v", err)
	}
	r.Report("new")
	_ = r.CloseLog()
	data, _ := os.ReadFile(second)
	if string(data) != "old\nnew\n" {
		t.Fatalf("appended log = %q", data)
	}
	if err := r.OpenLog(filepath.Join(dir, "missing", "c.log"), false); err == nil {
		t.Fatal("expected open failure")
	}
	if r.LogPath() != "" {
		t.Fatal("failed open should leave logging off")
	}
}

func TestPacketShortWrite(t *testing.T) {
	r := New(&recordingSurface{}, 0)
	r.SetLog(zeroWriter{}, "zero")
	if err := r.Packet("x", []byte("abc")); !errors.Is(err, ErrShortWrite) {
		t.Fatalf("expected ErrShortWrite, got %v", err)
	}
}

func TestComplainFoldsRepeats(t *testing.T) {
	now := time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC)
	surface := &recordingSurface{}
	r := New(surface, 10*time.Second)
	r.dedupe.now = func() time.Time { return now }

	r.ComplainOnce("u-blox requires 80x23 screen")
	r.ComplainOnce("u-blox requires 80x23 screen")
	r.ComplainOnce("u-blox requires 80x23 screen")
	if len(surface.complaints) != 1 {
		t.Fatalf("complaints within window = %v", surface.complaints)
	}
	now = now.Add(11 * time.Second)
	r.ComplainOnce("u-blox requires 80x23 screen")
	if len(surface.complaints) != 2 {
		t.Fatalf("complaints after window = %v", surface.complaints)
	}
	if !strings.HasSuffix(surface.complaints[1], "(suppressed=2 over 10s)") {
		t.Fatalf("suffix missing: %q", surface.complaints[1])
	}
}

func TestDeduperEvictsOldest(t *testing.T) {
	now := time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC)
	d := newComplaintDeduper(time.Minute, 2)
	d.now = func() time.Time { return now }
	d.Process("a")
	now = now.Add(time.Second)
	d.Process("b")
	now = now.Add(time.Second)
	d.Process("c")
	if len(d.entries) != 2 {
		t.Fatalf("entries = %d", len(d.entries))
	}
	if _, ok := d.Process("a"); !ok {
		t.Fatal("evicted key should pass again")
	}
}

func TestNilDeduperPassesEverything(t *testing.T) {
	var d *complaintDeduper
	if got, ok := d.Process(" x "); !ok || got != "x" {
		t.Fatalf("Process = %q, %v", got, ok)
	}
	if _, ok := d.Process("  "); ok {
		t.Fatal("blank message should be dropped")
	}
}

func TestComplainShowsEveryCommandReply(t *testing.T) {
	surface := &recordingSurface{}
	r := New(surface, 10*time.Second)

	r.Complain("Invalid hex string (invalid hex digit 'z')")
	r.Complain("Invalid hex string (invalid hex digit 'z')")
	if len(surface.complaints) != 2 {
		t.Fatalf("complaints shown = %q, want both replies", surface.complaints)
	}
}

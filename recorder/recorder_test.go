package recorder

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gpsmon/driver"
	"gpsmon/offset"
)

func openTest(t *testing.T, limit int) (*Recorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture", "gpsmon.db")
	r, err := NewRecorder(path, limit)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	return r, path
}

func TestRecorderPerTypeLimit(t *testing.T) {
	r, path := openTest(t, 2)
	for i := 0; i < 5; i++ {
		r.Record(driver.NMEAPacket, []byte("$GPGGA,1*00\r\n"))
	}
	r.Record(driver.UBXPacket, []byte{0xb5, 0x62, 0x01, 0x07, 0x00, 0x00, 0x08, 0x19})
	r.Record(driver.JSONPacket, nil)
	if got := r.Counts(); got[driver.NMEAPacket] != 2 || got[driver.UBXPacket] != 1 || got[driver.JSONPacket] != 0 {
		t.Fatalf("counts = %v", got)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM packet_records WHERE packet_type = 'NMEA'`).Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 2 {
		t.Fatalf("NMEA rows = %d", n)
	}
	var rendered string
	if err := db.QueryRow(`SELECT rendered FROM packet_records WHERE packet_type = 'UBX'`).Scan(&rendered); err != nil {
		t.Fatalf("query: %v", err)
	}
	if rendered != "b562010700000819" {
		t.Fatalf("rendered = %q", rendered)
	}
}

func TestRecorderLatch(t *testing.T) {
	r, path := openTest(t, 1)
	fix := time.Date(2024, 3, 1, 12, 0, 1, 0, time.UTC)
	s := offset.Sample{Clock: fix, Real: fix.Add(-1500 * time.Nanosecond)}
	r.Latch(fix, s)
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	var off int64
	if err := db.QueryRow(`SELECT offset_ns FROM latch_records`).Scan(&off); err != nil {
		t.Fatalf("query: %v", err)
	}
	if off != 1500 {
		t.Fatalf("offset_ns = %d", off)
	}
}

func TestRecorderRejectsZeroLimit(t *testing.T) {
	if _, err := NewRecorder(filepath.Join(t.TempDir(), "x.db"), 0); err == nil {
		t.Fatal("expected error for zero limit")
	}
}

func TestPreflightQuarantinesCorruptCapture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.db")
	if err := os.WriteFile(path, []byte("not a sqlite database"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	if err := os.WriteFile(path+"-wal", []byte("sidecar"), 0o644); err != nil {
		t.Fatalf("write sidecar: %v", err)
	}

	r, err := NewRecorder(path, 2)
	if err != nil {
		t.Fatalf("NewRecorder after quarantine: %v", err)
	}
	defer r.Close()

	moved, _ := filepath.Glob(path + ".bad-*")
	if len(moved) == 0 {
		t.Fatalf("expected corrupt database to be quarantined")
	}
	if _, err := os.Stat(path + "-wal"); err == nil {
		t.Fatalf("expected sidecar to move with the database")
	}
}

func TestPreflightAbsentDatabase(t *testing.T) {
	dest, err := preflight(filepath.Join(t.TempDir(), "missing.db"), time.Second)
	if err != nil || dest != "" {
		t.Fatalf("preflight on absent file = %q, %v", dest, err)
	}
}

// Package recorder persists a bounded number of packets per packet type, plus
// every offset latch, to SQLite for offline analysis without slowing the live
// loop.
package recorder

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gpsmon/driver"
	"gpsmon/offset"
	"gpsmon/visualize"

	_ "modernc.org/sqlite"
)

// Recorder persists a limited number of packets per type into SQLite.
type Recorder struct {
	db            *sql.DB
	perTypeLimit  int
	mu            sync.Mutex
	perTypeCounts map[driver.PacketType]int
	pending       sync.WaitGroup
	now           func() time.Time
}

// NewRecorder opens (or creates) the SQLite database at path and ensures schema exists.
func NewRecorder(path string, perTypeLimit int) (*Recorder, error) {
	if perTypeLimit <= 0 {
		return nil, errors.New("recorder: per-type limit must be > 0")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("recorder: ensure dir: %w", err)
	}
	if _, err := preflight(path, preflightTimeout); err != nil {
		return nil, fmt.Errorf("recorder: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recorder: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: schema: %w", err)
	}
	return &Recorder{
		db:            db,
		perTypeLimit:  perTypeLimit,
		perTypeCounts: make(map[driver.PacketType]int),
		now:           time.Now,
	}, nil
}

func initSchema(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS packet_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    packet_type TEXT,
    length INTEGER,
    captured_at INTEGER,
    data BLOB,
    rendered TEXT
);
CREATE TABLE IF NOT EXISTS latch_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    fix_time INTEGER,
    clock_time INTEGER,
    real_time INTEGER,
    offset_ns INTEGER
);`
	_, err := db.Exec(schema)
	return err
}

// Close waits for queued inserts and closes the underlying database.
func (r *Recorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	r.pending.Wait()
	return r.db.Close()
}

// Record inserts the packet if the per-type limit has not been reached.
func (r *Recorder) Record(pt driver.PacketType, data []byte) {
	if r == nil || r.db == nil || len(data) == 0 {
		return
	}

	r.mu.Lock()
	count := r.perTypeCounts[pt]
	if count >= r.perTypeLimit {
		r.mu.Unlock()
		return
	}
	r.perTypeCounts[pt] = count + 1
	r.mu.Unlock()

	raw := append([]byte(nil), data...)
	at := r.now()
	r.pending.Add(1)
	go r.insertPacket(pt, raw, at)
}

func (r *Recorder) insertPacket(pt driver.PacketType, raw []byte, at time.Time) {
	defer r.pending.Done()
	_, err := r.db.Exec(`
INSERT INTO packet_records (packet_type, length, captured_at, data, rendered)
VALUES (?, ?, ?, ?, ?)`,
		pt.String(),
		len(raw),
		at.UTC().UnixNano(),
		raw,
		visualize.RenderConditional(raw, pt.Textual(), 0),
	)
	if err != nil {
		log.Printf("Recorder: failed to insert packet: %v", err)
	}
}

// Latch records the time offset latched against a new fix. Latches are not
// subject to the per-type limit.
func (r *Recorder) Latch(fix time.Time, s offset.Sample) {
	if r == nil || r.db == nil {
		return
	}
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		_, err := r.db.Exec(`
INSERT INTO latch_records (fix_time, clock_time, real_time, offset_ns)
VALUES (?, ?, ?, ?)`,
			fix.UTC().UnixNano(),
			nanos(s.Clock),
			nanos(s.Real),
			int64(s.Offset()),
		)
		if err != nil {
			log.Printf("Recorder: failed to insert latch: %v", err)
		}
	}()
}

// Counts returns how many packets of each type have been accepted.
func (r *Recorder) Counts() map[driver.PacketType]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[driver.PacketType]int, len(r.perTypeCounts))
	for k, v := range r.perTypeCounts {
		out[k] = v
	}
	return out
}

func nanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

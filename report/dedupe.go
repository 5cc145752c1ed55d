package report

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/xxh3"
)

const defaultComplaintDedupeMaxKeys = 256

// complaintDeduper suppresses a complaint repeated within window and reports
// the suppressed count when it next lets the message through.
type complaintDeduper struct {
	mu      sync.Mutex
	window  time.Duration
	maxKeys int
	now     func() time.Time
	entries map[uint64]complaintEntry
}

type complaintEntry struct {
	nextEmit   time.Time
	lastSeen   time.Time
	suppressed uint64
}

func newComplaintDeduper(window time.Duration, maxKeys int) *complaintDeduper {
	if window <= 0 || maxKeys <= 0 {
		return nil
	}
	return &complaintDeduper{
		window:  window,
		maxKeys: maxKeys,
		now:     time.Now,
		entries: make(map[uint64]complaintEntry, maxKeys),
	}
}

// Process returns the message to show, or false when it is suppressed. A nil
// deduper passes everything.
func (d *complaintDeduper) Process(msg string) (string, bool) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "", false
	}
	if d == nil {
		return msg, true
	}
	key := xxh3.HashString(msg)
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, found := d.entries[key]
	if !found {
		d.evictOneIfNeededLocked()
		d.entries[key] = complaintEntry{
			nextEmit: now.Add(d.window),
			lastSeen: now,
		}
		return msg, true
	}
	entry.lastSeen = now
	if now.Before(entry.nextEmit) {
		entry.suppressed++
		d.entries[key] = entry
		return "", false
	}
	suppressed := entry.suppressed
	entry.suppressed = 0
	entry.nextEmit = now.Add(d.window)
	d.entries[key] = entry
	if suppressed > 0 {
		msg = fmt.Sprintf("%s (suppressed=%d over %s)", msg, suppressed, d.window)
	}
	return msg, true
}

func (d *complaintDeduper) evictOneIfNeededLocked() {
	if len(d.entries) < d.maxKeys {
		return
	}
	var oldestKey uint64
	var oldestSeen time.Time
	haveOldest := false
	for key, entry := range d.entries {
		if !haveOldest || entry.lastSeen.Before(oldestSeen) {
			oldestKey = key
			oldestSeen = entry.lastSeen
			haveOldest = true
		}
	}
	if haveOldest {
		delete(d.entries, oldestKey)
	}
}

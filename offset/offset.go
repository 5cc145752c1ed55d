// Package offset tracks time-offset and PPS telemetry and latches the latest
// offset against each new fix second.
package offset

import (
	"fmt"
	"sync"
	"time"
)

// Sample pairs a local clock reading with the reference time it stands for.
type Sample struct {
	Clock time.Time
	Real  time.Time
}

// Offset is Clock minus Real.
func (s Sample) Offset() time.Duration {
	return s.Clock.Sub(s.Real)
}

// Latcher consumes a newly seen fix time together with the offset sample that
// was current when it arrived.
type Latcher interface {
	Latch(fix time.Time, sample Sample)
}

// LatchFunc adapts a function to Latcher.
type LatchFunc func(fix time.Time, sample Sample)

func (f LatchFunc) Latch(fix time.Time, sample Sample) { f(fix, sample) }

// Latchers fans a latch out to several consumers in order.
type Latchers []Latcher

func (l Latchers) Latch(fix time.Time, sample Sample) {
	for _, c := range l {
		if c != nil {
			c.Latch(fix, sample)
		}
	}
}

// Sink receives the one-line reports.
type Sink interface {
	AppendLine(line string)
}

// Tracker holds the latest samples. Reads may come from the status line
// renderer, so fields are guarded.
type Tracker struct {
	sink    Sink
	latcher Latcher

	mu         sync.Mutex
	timeOffset Sample
	pulse      Sample
	pulses     uint64
	reference  time.Time
	latches    uint64
}

// New returns a tracker reporting to sink and latching into latcher. Either
// may be nil.
func New(sink Sink, latcher Latcher) *Tracker {
	return &Tracker{sink: sink, latcher: latcher}
}

// TimeOffset records a TOFF event.
func (t *Tracker) TimeOffset(s Sample) {
	t.mu.Lock()
	t.timeOffset = s
	t.mu.Unlock()
	t.report(fmt.Sprintf("TOFF=%s real=%s", FormatTimespec(s.Clock), FormatTimespec(s.Real)))
}

// Pulse records a PPS event.
func (t *Tracker) Pulse(s Sample) {
	t.mu.Lock()
	t.pulse = s
	t.pulses++
	t.mu.Unlock()
	t.report(fmt.Sprintf("------------------- PPS offset: %.20s ------", FormatDuration(s.Offset())))
}

// AfterPacket latches the current time offset when fix starts a second later
// than the last latched fix. It reports whether a latch happened.
func (t *Tracker) AfterPacket(fix time.Time) bool {
	if fix.IsZero() || fix.Unix() <= 0 {
		return false
	}
	t.mu.Lock()
	if fix.Unix() <= t.reference.Unix() {
		t.mu.Unlock()
		return false
	}
	t.reference = fix
	t.latches++
	sample := t.timeOffset
	t.mu.Unlock()
	if t.latcher != nil {
		t.latcher.Latch(fix, sample)
	}
	return true
}

// Current returns the latest time-offset sample.
func (t *Tracker) Current() Sample {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeOffset
}

// LastPulse returns the latest PPS sample and how many have been seen.
func (t *Tracker) LastPulse() (Sample, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pulse, t.pulses
}

// Latches returns how many fixes have been latched.
func (t *Tracker) Latches() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latches
}

func (t *Tracker) report(line string) {
	if t.sink != nil {
		t.sink.AppendLine(line)
	}
}

// FormatTimespec renders t as seconds.nanoseconds since the epoch.
func FormatTimespec(t time.Time) string {
	if t.IsZero() {
		return "0.000000000"
	}
	return formatSecNsec(t.Unix(), int64(t.Nanosecond()))
}

// FormatDuration renders d as signed seconds.nanoseconds.
func FormatDuration(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	return sign + formatSecNsec(int64(d/time.Second), int64(d%time.Second))
}

func formatSecNsec(sec, nsec int64) string {
	return fmt.Sprintf("%d.%09d", sec, nsec)
}

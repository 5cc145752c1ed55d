package offset

import (
	"errors"
	"strings"
	"testing"
	"time"
)

type lineSink struct {
	lines []string
}

func (s *lineSink) AppendLine(line string) { s.lines = append(s.lines, line) }

type latchRecord struct {
	fix    time.Time
	sample Sample
}

func TestLatchOnNewFixSecond(t *testing.T) {
	var latched []latchRecord
	tr := New(&lineSink{}, LatchFunc(func(fix time.Time, s Sample) {
		latched = append(latched, latchRecord{fix, s})
	}))

	sample := Sample{
		Clock: time.Unix(1700000000, 500),
		Real:  time.Unix(1700000000, 0),
	}
	tr.TimeOffset(sample)

	fix := time.Unix(1700000001, 0)
	if !tr.AfterPacket(fix) {
		t.Fatal("expected latch on first fix")
	}
	if len(latched) != 1 || latched[0].sample != sample || !latched[0].fix.Equal(fix) {
		t.Fatalf("latched = %+v", latched)
	}

	tests := []struct {
		name string
		fix  time.Time
	}{
		{name: "same second", fix: time.Unix(1700000001, 900_000_000)},
		{name: "older", fix: time.Unix(1699999999, 0)},
		{name: "zero", fix: time.Time{}},
		{name: "epoch", fix: time.Unix(0, 0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tr.AfterPacket(tc.fix) {
				t.Fatalf("unexpected latch for %v", tc.fix)
			}
		})
	}
	if len(latched) != 1 {
		t.Fatalf("latch count = %d, want 1", len(latched))
	}
	if !tr.AfterPacket(time.Unix(1700000002, 0)) || len(latched) != 2 {
		t.Fatal("expected second latch on next second")
	}
	if tr.Latches() != 2 {
		t.Fatalf("Latches = %d", tr.Latches())
	}
}

func TestPulseReport(t *testing.T) {
	sink := &lineSink{}
	tr := New(sink, nil)
	tr.Pulse(Sample{
		Clock: time.Unix(100, 250_000_000),
		Real:  time.Unix(100, 0),
	})
	tr.Pulse(Sample{
		Clock: time.Unix(101, 0),
		Real:  time.Unix(101, 1000),
	})
	want := []string{
		"------------------- PPS offset: 0.250000000 ------",
		"------------------- PPS offset: -0.000001000 ------",
	}
	if strings.Join(sink.lines, "|") != strings.Join(want, "|") {
		t.Fatalf("lines = %q", sink.lines)
	}
	last, n := tr.LastPulse()
	if n != 2 || last.Real.Nanosecond() != 1000 {
		t.Fatalf("LastPulse = %+v, %d", last, n)
	}
}

func TestTimeOffsetReport(t *testing.T) {
	sink := &lineSink{}
	tr := New(sink, nil)
	tr.TimeOffset(Sample{Clock: time.Unix(12, 3), Real: time.Unix(12, 0)})
	if len(sink.lines) != 1 || sink.lines[0] != "TOFF=12.000000003 real=12.000000000" {
		t.Fatalf("lines = %q", sink.lines)
	}
	if tr.Current().Offset() != 3 {
		t.Fatalf("offset = %v", tr.Current().Offset())
	}
}

func TestDecode(t *testing.T) {
	toff := []byte(`{"class":"TOFF","device":"/dev/ttyUSB0","real_sec":1700000000,"real_nsec":0,"clock_sec":1700000000,"clock_nsec":123456,"precision":-20}`)
	kind, s, err := Decode(toff)
	if err != nil || kind != KindTOFF {
		t.Fatalf("Decode TOFF = %v, %v", kind, err)
	}
	if s.Offset() != 123456*time.Nanosecond {
		t.Fatalf("offset = %v", s.Offset())
	}

	kind, _, err = Decode([]byte(`{"class":"PPS","device":"/dev/pps0","real_sec":1}`))
	if kind != KindPPS || !errors.Is(err, ErrIllFormed) {
		t.Fatalf("missing clock: %v, %v", kind, err)
	}
	if _, _, err := Decode([]byte(`{"class":"PPS",garbage`)); !errors.Is(err, ErrIllFormed) {
		t.Fatalf("garbage: %v", err)
	}
	if kind, _, err := Decode([]byte(`{"class":"TPV","mode":3}`)); kind != KindOther || err != nil {
		t.Fatalf("TPV: %v, %v", kind, err)
	}
}

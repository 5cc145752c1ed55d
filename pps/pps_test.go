package pps

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"gpsmon/offset"
)

type scriptedSource struct {
	mu     sync.Mutex
	edges  []Edge
	closed bool
}

func (s *scriptedSource) Fetch(time.Duration) (Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.edges) == 0 {
		time.Sleep(time.Millisecond)
		return Edge{}, errTimeout
	}
	e := s.edges[0]
	s.edges = s.edges[1:]
	return e, nil
}

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type pulses struct {
	mu      sync.Mutex
	samples []offset.Sample
	got     chan struct{}
}

func (p *pulses) Pulse(s offset.Sample) {
	p.mu.Lock()
	p.samples = append(p.samples, s)
	p.mu.Unlock()
	p.got <- struct{}{}
}

func TestWatcherReportsNewEdges(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	src := &scriptedSource{edges: []Edge{
		{Seq: 1, Assert: base.Add(2 * time.Microsecond)},
		{Seq: 1, Assert: base.Add(2 * time.Microsecond)},
		{Seq: 2, Assert: base.Add(time.Second - 3*time.Microsecond)},
	}}
	p := &pulses{got: make(chan struct{}, 4)}
	w := New("/dev/pps0", p)
	w.open = func(string) (source, error) { return src, nil }

	if err := w.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-p.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("pulse %d not reported", i)
		}
	}
	w.Deactivate()
	if !src.closed {
		t.Fatal("device not closed")
	}

	if len(p.samples) != 2 {
		t.Fatalf("samples = %d, want 2 (repeat sequence suppressed)", len(p.samples))
	}
	if got := p.samples[0].Offset(); got != 2*time.Microsecond {
		t.Fatalf("first offset = %v", got)
	}
	if got := p.samples[1].Offset(); got != -3*time.Microsecond {
		t.Fatalf("second offset = %v", got)
	}
	w.Deactivate()
}

func TestActivateOpenFailure(t *testing.T) {
	w := New("/dev/pps9", nil)
	w.open = func(string) (source, error) { return nil, ErrUnsupported }
	if err := w.Activate(); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Activate = %v", err)
	}
	w.Deactivate()
}

func TestSampleMatchesRelayOrientation(t *testing.T) {
	tests := []struct {
		name string
		nsec int64
	}{
		{name: "late edge", nsec: 2000},
		{name: "early edge", nsec: 999_997_000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := time.Unix(100, tt.nsec).UTC()
			kernel := Sample(Edge{Seq: 1, Assert: assert})

			realSec := assert.Round(time.Second).Unix()
			relay := fmt.Sprintf(`{"class":"PPS","device":"/dev/pps0","real_sec":%d,"real_nsec":0,"clock_sec":100,"clock_nsec":%d}`, realSec, tt.nsec)
			kind, decoded, err := offset.Decode([]byte(relay))
			if err != nil || kind != offset.KindPPS {
				t.Fatalf("Decode = %v, %v", kind, err)
			}
			if kernel.Offset() != decoded.Offset() {
				t.Fatalf("kernel offset %v, relay offset %v", kernel.Offset(), decoded.Offset())
			}
		})
	}
}

package session

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"gpsmon/driver"
)

type fakeLink struct {
	reads chan []byte
	err   error

	mu     sync.Mutex
	writes bytes.Buffer
	closed bool
	line   driver.LineSettings
}

func newFakeLink() *fakeLink {
	return &fakeLink{reads: make(chan []byte, 8), err: io.EOF}
}

func (l *fakeLink) Read(p []byte) (int, error) {
	data, ok := <-l.reads
	if !ok {
		return 0, l.err
	}
	return copy(p, data), nil
}

func (l *fakeLink) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes.Write(p)
}

func (l *fakeLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

func (l *fakeLink) SetLine(line driver.LineSettings) error {
	l.line = line
	return nil
}

func (l *fakeLink) Drain() error { return nil }

func (l *fakeLink) written() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes.String()
}

func waitReadable(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Readable():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for readable")
	}
}

func TestIntakeClassifiesAndFrames(t *testing.T) {
	link := newFakeLink()
	s := New(link, Endpoint{Kind: KindSerial, Path: "/dev/ttyUSB0"}, DefaultLine)
	defer s.Close()

	link.reads <- []byte("$GPRMC,010203,A,4807.038,N,01131.000,E,0.0,0.0,010124,,,A*00\r\n$PMTK705,AXN_2.31*00\r\n")
	waitReadable(t, s)
	var got []Packet
	if st := s.Intake(func(p Packet) { got = append(got, p) }); st != IntakeReady {
		t.Fatalf("intake = %s", st)
	}
	if len(got) != 2 {
		t.Fatalf("packets = %d", len(got))
	}
	if s.DeviceType() != driver.MTK3301 {
		t.Fatalf("device type = %v", s.DeviceType())
	}
	if want := time.Date(2024, 1, 1, 1, 2, 3, 0, time.UTC); !s.FixTime().Equal(want) {
		t.Fatalf("fix = %v", s.FixTime())
	}
	if packets, _, _ := s.Stats(); packets != 2 {
		t.Fatalf("packets stat = %d", packets)
	}

	close(link.reads)
	waitReadable(t, s)
	if st := s.Intake(nil); st != IntakeEOF {
		t.Fatalf("intake after close = %s", st)
	}
}

func TestIntakeErrorAndEmpty(t *testing.T) {
	link := newFakeLink()
	link.err = errors.New("io failure")
	s := New(link, Endpoint{Kind: KindGPSD}, DefaultLine)
	defer s.Close()

	if st := s.Intake(nil); st != IntakeReady {
		t.Fatalf("drained queue = %s", st)
	}
	link.reads <- []byte{}
	waitReadable(t, s)
	if st := s.Intake(nil); st != IntakeUnready {
		t.Fatalf("zero-length read = %s", st)
	}
	close(link.reads)
	waitReadable(t, s)
	if st := s.Intake(nil); st != IntakeError {
		t.Fatalf("intake = %s", st)
	}
}

func TestWritePolicy(t *testing.T) {
	link := newFakeLink()
	s := New(link, Endpoint{Kind: KindSerial, Path: "/dev/x"}, DefaultLine)
	defer s.Close()

	if _, err := s.Write([]byte("a")); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("read-only write err = %v", err)
	}
	err := s.Writable(func() error {
		_, err := s.Write([]byte("b"))
		return err
	})
	if err != nil {
		t.Fatalf("writable: %v", err)
	}
	if !s.ReadOnly() {
		t.Fatal("read-only not restored")
	}
	var echoed []byte
	s.OnWrite = func(p []byte) { echoed = append(echoed, p...) }
	if _, err := s.WriteRaw([]byte("c")); err != nil {
		t.Fatalf("raw write: %v", err)
	}
	if link.written() != "bc" || string(echoed) != "c" {
		t.Fatalf("written = %q, echoed = %q", link.written(), echoed)
	}
}

func TestWritableRestoresOnPanic(t *testing.T) {
	s := New(newFakeLink(), Endpoint{Kind: KindSerial}, DefaultLine)
	defer s.Close()
	func() {
		defer func() { _ = recover() }()
		_ = s.Writable(func() error { panic("boom") })
	}()
	if !s.ReadOnly() {
		t.Fatal("read-only not restored after panic")
	}
}

func TestProbingSendsQueries(t *testing.T) {
	link := newFakeLink()
	s := New(link, Endpoint{Kind: KindSerial, Path: "/dev/x"}, DefaultLine)
	defer s.Close()
	s.SetReadOnly(false)

	link.reads <- []byte(strings.Repeat("$GPGGA,1*00\r\n", 5))
	waitReadable(t, s)
	s.Intake(nil)
	out := link.written()
	for _, probe := range nmeaProbes {
		if !strings.Contains(out, probe+"*") {
			t.Fatalf("probe %q not sent in %q", probe, out)
		}
	}
	if strings.Count(out, "\r\n") != len(nmeaProbes) {
		t.Fatalf("probe writes = %q", out)
	}
}

func TestSetSpeedAndSwitchDriver(t *testing.T) {
	link := newFakeLink()
	s := New(link, Endpoint{Kind: KindSerial, Path: "/dev/ttyS1"}, DefaultLine)
	defer s.Close()
	line := driver.LineSettings{Baud: 4800, WordLength: 8, Parity: 'N', StopBits: 1}
	if err := s.SetSpeed(line); err != nil {
		t.Fatalf("SetSpeed: %v", err)
	}
	if link.line != line || s.Line() != line {
		t.Fatalf("line = %+v", link.line)
	}
	if got := s.Prompt(); got != "/dev/ttyS1 4800 8N1" {
		t.Fatalf("prompt = %q", got)
	}

	s.SwitchDriver(driver.UBlox)
	link.reads <- []byte("$GPGGA,1*00\r\n")
	waitReadable(t, s)
	s.Intake(nil)
	if s.DeviceType() != driver.UBlox {
		t.Fatalf("forced driver overridden: %v", s.DeviceType())
	}
}

func TestIntakeSurvivesLateWakeups(t *testing.T) {
	const total = 20000
	link := &fakeLink{reads: make(chan []byte, 64), err: io.EOF}
	s := New(link, Endpoint{Kind: KindSerial, Path: "/dev/x"}, DefaultLine)
	defer s.Close()

	go func() {
		for i := 0; i < total; i++ {
			link.reads <- []byte{'x'}
		}
		close(link.reads)
	}()

	deadline := time.After(20 * time.Second)
	for {
		select {
		case <-s.Readable():
		case <-deadline:
			_, got, _ := s.Stats()
			t.Fatalf("timed out after %d of %d bytes", got, total)
		}
		switch st := s.Intake(nil); st {
		case IntakeReady:
		case IntakeEOF:
			if _, got, _ := s.Stats(); got != total {
				t.Fatalf("EOF after %d of %d bytes", got, total)
			}
			return
		default:
			_, got, _ := s.Stats()
			t.Fatalf("intake = %s after %d bytes while data was flowing", st, got)
		}
	}
}

func TestMixedStreamKeepsStickyDriver(t *testing.T) {
	link := newFakeLink()
	s := New(link, Endpoint{Kind: KindSerial, Path: "/dev/x"}, DefaultLine)
	defer s.Close()
	s.SetReadOnly(false)

	ubx := driver.UBXEncode(0x01, 0x03, []byte{0, 0, 0, 0})
	for i := 0; i < 3; i++ {
		var chunk []byte
		chunk = append(chunk, ubx...)
		chunk = append(chunk, "$GPGGA,1*00\r\n$GPRMC,1*00\r\n"...)
		link.reads <- chunk
		waitReadable(t, s)
		if st := s.Intake(nil); st != IntakeReady {
			t.Fatalf("intake = %s", st)
		}
		if s.DeviceType() != driver.UBlox {
			t.Fatalf("round %d: device type = %v", i, s.DeviceType())
		}
	}
	if out := link.written(); out != "" {
		t.Fatalf("NMEA probes sent to a sticky device: %q", out)
	}
}

// Package session owns the live device connection: it frames the byte stream
// into packets, tracks the identified device type, and applies the write
// policy the operator controls.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"gpsmon/driver"
)

// IntakeStatus classifies one intake attempt.
type IntakeStatus int

const (
	IntakeReady IntakeStatus = iota
	IntakeUnready
	IntakeError
	IntakeEOF
)

func (s IntakeStatus) String() string {
	switch s {
	case IntakeReady:
		return "ready"
	case IntakeUnready:
		return "unready"
	case IntakeError:
		return "error"
	case IntakeEOF:
		return "eof"
	}
	return fmt.Sprintf("intake(%d)", int(s))
}

// ErrReadOnly is returned by Write while probing is disabled.
var ErrReadOnly = errors.New("device is read-only")

// DefaultLine is the line discipline a serial device is opened with.
var DefaultLine = driver.LineSettings{Baud: 9600, WordLength: 8, Parity: 'N', StopBits: 1}

const (
	readBufferSize = 4096
	chunkQueueSize = 64
	defaultDial    = 5 * time.Second
)

// nmeaProbes are sent one per packet to a generic NMEA device while probing
// is enabled. The replies carry the trigger strings of the vendor drivers.
var nmeaProbes = []string{
	"$PGRMCE",
	"$PASHQ,RID",
	"$PMTK605",
}

// Options configure Open.
type Options struct {
	Endpoint    Endpoint
	Line        driver.LineSettings
	NMEA        bool
	DialTimeout time.Duration
}

type chunk struct {
	data []byte
	err  error
}

// Session is the monitoring run's device context.
type Session struct {
	endpoint Endpoint
	link     Link
	lexer    Lexer

	chunks   chan chunk
	readable chan struct{}
	faults   chan error
	stop     chan struct{}
	once     sync.Once

	deviceType *driver.Descriptor
	forced     bool
	readOnly   bool
	counter    int
	line       driver.LineSettings
	last       Packet
	fix        time.Time

	packets atomic.Uint64
	bytes   atomic.Uint64
	dropped atomic.Uint64

	// OnWrite sees every byte sequence written to the device.
	OnWrite func(data []byte)
}

// Open connects to the endpoint and starts reading.
func Open(ctx context.Context, opts Options) (*Session, error) {
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = defaultDial
	}
	line := opts.Line
	if line.Baud == 0 {
		line = DefaultLine
	}
	var (
		link Link
		err  error
	)
	switch opts.Endpoint.Kind {
	case KindSerial:
		link, err = openSerial(opts.Endpoint.Path, line)
	case KindTelnet:
		link, err = dialTelnet(ctx, opts.Endpoint.Address(), timeout)
	default:
		link, err = dialGPSD(ctx, opts.Endpoint, opts.NMEA, timeout)
	}
	if err != nil {
		return nil, err
	}
	return New(link, opts.Endpoint, line), nil
}

// New wraps an open link. The session starts read-only.
func New(link Link, ep Endpoint, line driver.LineSettings) *Session {
	s := &Session{
		endpoint: ep,
		link:     link,
		chunks:   make(chan chunk, chunkQueueSize),
		readable: make(chan struct{}, 1),
		faults:   make(chan error, 1),
		stop:     make(chan struct{}),
		readOnly: true,
		line:     line,
	}
	go s.readLoop()
	if fl, ok := link.(faultLink); ok {
		go fl.Watch(s.stop, s.faults)
	}
	return s
}

func (s *Session) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.link.Read(buf)
		if n > 0 || err == nil {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !s.push(chunk{data: data}) {
				return
			}
		}
		if err != nil {
			s.push(chunk{err: err})
			return
		}
	}
}

func (s *Session) push(c chunk) bool {
	select {
	case s.chunks <- c:
	case <-s.stop:
		return false
	}
	s.notify()
	return true
}

func (s *Session) notify() {
	select {
	case s.readable <- struct{}{}:
	default:
	}
}

// Readable fires when Intake has something to classify.
func (s *Session) Readable() <-chan struct{} {
	return s.readable
}

// Faults delivers an exceptional condition on the device.
func (s *Session) Faults() <-chan error {
	return s.faults
}

// Intake consumes one queued read and runs hook for each packet it completes.
// A wakeup that finds the queue already drained is a no-op; only a read that
// returned no bytes and no error is IntakeUnready.
func (s *Session) Intake(hook func(Packet)) IntakeStatus {
	var c chunk
	select {
	case c = <-s.chunks:
	default:
		return IntakeReady
	}
	if c.err != nil {
		if errors.Is(c.err, io.EOF) {
			return IntakeEOF
		}
		return IntakeError
	}
	if len(c.data) == 0 {
		return IntakeUnready
	}
	s.bytes.Add(uint64(len(c.data)))
	for _, p := range s.lexer.Feed(c.data) {
		s.observe(p)
		if hook != nil {
			hook(p)
		}
	}
	s.dropped.Store(s.lexer.Dropped())
	if len(s.chunks) > 0 {
		s.notify()
	}
	return IntakeReady
}

func (s *Session) observe(p Packet) {
	s.packets.Add(1)
	s.last = p
	if t, ok := FixTime(p); ok {
		s.fix = t
	}
	if !s.forced {
		if d := driver.Identify(driver.All(), p.Data); d != nil {
			if d != s.deviceType {
				s.deviceType = d
				s.counter = 0
			}
		} else if p.Type != driver.CommentPacket && (s.deviceType == nil || s.deviceType.Packet != p.Type) &&
			!(s.deviceType.Sticky() && p.Type == driver.NMEAPacket) {
			// A sticky binary device interleaving NMEA keeps its driver.
			s.deviceType = driver.Generic(p.Type)
			s.counter = 0
		}
	}
	s.counter++
	if !s.readOnly && s.endpoint.LowLevel() && driver.IsGeneric(s.deviceType) && s.counter <= len(nmeaProbes) {
		_, _ = driver.NMEAWrite(s, []byte(nmeaProbes[s.counter-1]))
	}
}

// Write sends p to the device unless the session is read-only.
func (s *Session) Write(p []byte) (int, error) {
	if s.readOnly {
		return 0, ErrReadOnly
	}
	return s.WriteRaw(p)
}

// WriteRaw sends p regardless of the read-only policy.
func (s *Session) WriteRaw(p []byte) (int, error) {
	if s.OnWrite != nil {
		s.OnWrite(p)
	}
	return s.link.Write(p)
}

// Writable lifts the read-only policy for the duration of fn.
func (s *Session) Writable(fn func() error) error {
	saved := s.readOnly
	s.readOnly = false
	defer func() { s.readOnly = saved }()
	return fn()
}

func (s *Session) ReadOnly() bool {
	return s.readOnly
}

func (s *Session) SetReadOnly(v bool) {
	s.readOnly = v
}

// ResetCounter restarts the per-device packet count that paces probing.
func (s *Session) ResetCounter() {
	s.counter = 0
}

func (s *Session) Counter() int {
	return s.counter
}

// DeviceType is the identified driver, nil before the first packet.
func (s *Session) DeviceType() *driver.Descriptor {
	return s.deviceType
}

// SwitchDriver forces the device type; identification stops overriding it.
func (s *Session) SwitchDriver(d *driver.Descriptor) {
	s.deviceType = d
	s.forced = true
	s.counter = 0
}

// LastType is the type of the most recent packet.
func (s *Session) LastType() driver.PacketType {
	return s.last.Type
}

// Last is the most recent packet.
func (s *Session) Last() Packet {
	return s.last
}

// FixTime is the time of the latest fix seen, zero if none.
func (s *Session) FixTime() time.Time {
	return s.fix
}

// Drain waits for queued output to reach the line.
func (s *Session) Drain() error {
	if ll, ok := s.link.(lineLink); ok {
		return ll.Drain()
	}
	return nil
}

// SetSpeed applies a new line discipline to the local port.
func (s *Session) SetSpeed(line driver.LineSettings) error {
	ll, ok := s.link.(lineLink)
	if !ok {
		return ErrNotLowLevel
	}
	if err := ll.SetLine(line); err != nil {
		return fmt.Errorf("set line %s: %w", line, err)
	}
	s.line = line
	return nil
}

func (s *Session) Line() driver.LineSettings {
	return s.line
}

func (s *Session) Endpoint() Endpoint {
	return s.endpoint
}

// LowLevel reports whether the session talks to the device line directly.
func (s *Session) LowLevel() bool {
	return s.endpoint.LowLevel()
}

// Prompt describes the connection for the status line.
func (s *Session) Prompt() string {
	if s.endpoint.Kind == KindSerial {
		return fmt.Sprintf("%s %s", s.endpoint.Path, s.line)
	}
	return s.endpoint.String()
}

// Stats returns packet and byte counts and the bytes discarded as noise.
func (s *Session) Stats() (packets, bytes, dropped uint64) {
	return s.packets.Load(), s.bytes.Load(), s.dropped.Load()
}

// Close stops the reader and releases the link.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		err = s.link.Close()
	})
	return err
}

// Package commands implements the single-character operator command set. It
// reconfigures the device through the capabilities of its driver descriptor
// and keeps the small amount of operator state those commands need.
package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	lev "github.com/agnivade/levenshtein"

	"gpsmon/driver"
)

// Result tells the event loop whether to keep running.
type Result int

const (
	Continue Result = iota
	Quit
)

// DefaultSettle is how long the device is left alone after a mode, speed or
// rate change before anything else is sent.
const DefaultSettle = 50 * time.Millisecond

// Device is the session surface the commands act on.
type Device interface {
	DeviceType() *driver.Descriptor
	LowLevel() bool
	LastType() driver.PacketType
	ReadOnly() bool
	SetReadOnly(v bool)
	ResetCounter()
	Writable(fn func() error) error
	Write(p []byte) (int, error)
	WriteRaw(p []byte) (int, error)
	Drain() error
	Line() driver.LineSettings
	SetSpeed(line driver.LineSettings) error
	SwitchDriver(d *driver.Descriptor)
}

// Switcher brings up the panel for a descriptor.
type Switcher interface {
	SwitchTo(d *driver.Descriptor) error
}

// Reporter receives operator-facing output.
type Reporter interface {
	Complain(msg string)
	Annotate(format string, args ...any)
	OpenLog(path string, truncate bool) error
	CloseLog() error
}

// Processor executes operator command lines.
type Processor struct {
	device   Device
	switcher Switcher
	reporter Reporter
	drivers  []*driver.Descriptor
	fallback *driver.Descriptor
	settle   time.Duration
	sleep    func(time.Duration)
}

// NewProcessor wires the command set to a session. drivers is the table the
// t command searches.
func NewProcessor(device Device, switcher Switcher, reporter Reporter, drivers []*driver.Descriptor) *Processor {
	return &Processor{
		device:   device,
		switcher: switcher,
		reporter: reporter,
		drivers:  drivers,
		settle:   DefaultSettle,
		sleep:    time.Sleep,
	}
}

// SetSettle overrides the post-reconfiguration delay. Negative disables it.
func (p *Processor) SetSettle(d time.Duration) {
	if d < 0 {
		d = 0
	}
	p.settle = d
}

// SetFallback remembers a descriptor whose capabilities are preferred for
// the n, s and c commands.
func (p *Processor) SetFallback(d *driver.Descriptor) {
	p.fallback = d
}

// Fallback returns the remembered descriptor, if any.
func (p *Processor) Fallback() *driver.Descriptor {
	return p.fallback
}

// Execute runs one command line. The first character is the verb; one run of
// whitespace after it is skipped to find the argument.
func (p *Processor) Execute(line string) Result {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Continue
	}
	verb := line[0]
	arg := line[1:]
	if len(arg) > 0 && isSpace(arg[0]) {
		arg = strings.TrimLeft(arg, " \t\v\f")
	}

	switch verb {
	case 'c':
		p.handleRate(arg)
	case 'i':
		p.handleProbe(arg)
	case 'l':
		p.handleLog(arg)
	case 'n':
		p.handleMode(arg)
	case 'q':
		return Quit
	case 's':
		p.handleSpeed(arg)
	case 't':
		p.handleType(arg)
	case 'x':
		p.handleControl(arg)
	case 'X':
		p.handleRaw(arg)
	default:
		p.complain("Unknown command '%c'", verb)
	}
	return Continue
}

// lowLevelDevice checks the common preconditions of the reconfiguration
// verbs and returns the live descriptor.
func (p *Processor) lowLevelDevice(missing string) (*driver.Descriptor, bool) {
	d := p.device.DeviceType()
	if d == nil {
		p.complain("%s", missing)
		return nil, false
	}
	if !p.device.LowLevel() {
		p.complain("Only available in low-level mode.")
		return nil, false
	}
	return d, true
}

// pick prefers the fallback descriptor when it defines the capability.
func (p *Processor) pick(live *driver.Descriptor, want driver.Capability) *driver.Descriptor {
	if p.fallback != nil && p.fallback.Capabilities().Has(want) {
		return p.fallback
	}
	return live
}

func (p *Processor) handleRate(arg string) {
	live, ok := p.lowLevelDevice("No device defined yet")
	if !ok {
		return
	}
	rate := leadingFloat(arg)
	switcher := p.pick(live, driver.CapRate)
	if switcher.Rate == nil {
		p.complain("Device type %s has no rate switcher", switcher.Name)
		return
	}
	err := p.device.Writable(func() error {
		return switcher.Rate(p.device, rate)
	})
	if err != nil {
		p.complain("Rate not supported.")
		return
	}
	p.reporter.Annotate("[Rate switcher called.]")
	p.settleLine()
}

func (p *Processor) handleProbe(arg string) {
	if _, ok := p.lowLevelDevice("No GPS type detected."); !ok {
		return
	}
	if v, ok := leadingInt(arg); ok {
		p.device.SetReadOnly(v == 0)
	} else {
		p.device.SetReadOnly(!p.device.ReadOnly())
	}
	state := "en"
	if p.device.ReadOnly() {
		state = "dis"
	}
	p.reporter.Annotate("[probing %sabled]", state)
	p.device.ResetCounter()
}

func (p *Processor) handleLog(arg string) {
	if err := p.reporter.CloseLog(); err != nil {
		p.complain("Closing log failed: %v", err)
	}
	path := strings.TrimSpace(arg)
	if path == "" {
		return
	}
	if err := p.reporter.OpenLog(path, false); err != nil {
		p.complain("Couldn't open logfile %s for appending.", path)
	}
}

func (p *Processor) handleMode(arg string) {
	v, ok := leadingInt(arg)
	if !ok {
		v = 0
		if p.device.LastType().Textual() {
			v = 1
		}
	}
	live, ok := p.lowLevelDevice("No device defined yet")
	if !ok {
		return
	}
	switcher := p.pick(live, driver.CapMode)
	if switcher.Mode == nil {
		p.complain("Device type %s has no mode switcher", switcher.Name)
		return
	}
	p.reporter.Annotate("[Mode switcher to mode %d]", v)
	err := p.device.Writable(func() error {
		return switcher.Mode(p.device, v)
	})
	if err != nil {
		if errors.Is(err, driver.ErrUnsupported) {
			p.complain("Mode not supported.")
		} else {
			p.complain("Mode switch failed: %v", err)
		}
		return
	}
	p.settleLine()
	// The live type will read as generic NMEA once the device resyncs, so
	// remember the binary driver for the trip back.
	if v == 0 {
		p.fallback = switcher
	}
}

func (p *Processor) handleSpeed(arg string) {
	live, ok := p.lowLevelDevice("No device defined yet")
	if !ok {
		return
	}
	line := p.device.Line()
	if _, spec, found := strings.Cut(arg, ":"); found {
		parsed, msg := parseModeSpec(spec, line)
		if msg != "" {
			p.complain("%s", msg)
			return
		}
		line = parsed
	}
	line.Baud, _ = leadingInt(arg)

	switcher := p.pick(live, driver.CapSpeed)
	if switcher.Speed == nil {
		p.complain("Device type %s has no speed switcher", switcher.Name)
		return
	}
	err := p.device.Writable(func() error {
		if err := switcher.Speed(p.device, line); err != nil {
			p.complain("Speed/mode combination not supported.")
			return errSpeedRejected
		}
		p.reporter.Annotate("[Speed switcher called.]")
		// Let the command reach the receiver before the local UART changes.
		p.settleLine()
		return p.device.SetSpeed(line)
	})
	if err != nil && !errors.Is(err, errSpeedRejected) {
		p.complain("Speed change failed: %v", err)
	}
}

var errSpeedRejected = errors.New("speed rejected")

// parseModeSpec reads the word length, parity and stop bits after the colon
// in "4800:8N1". A non-empty message means the field was rejected.
func parseModeSpec(spec string, line driver.LineSettings) (driver.LineSettings, string) {
	at := func(i int) byte {
		if i < len(spec) {
			return spec[i]
		}
		return 0
	}
	switch at(0) {
	case '7':
		line.WordLength = 7
	case '8':
		line.WordLength = 8
	default:
		return line, "No support for that word length."
	}
	parity := at(1)
	if parity != 'N' && parity != 'O' && parity != 'E' {
		return line, fmt.Sprintf("What parity is '%s'?.", printable(parity))
	}
	line.Parity = parity
	switch at(2) {
	case '1':
		line.StopBits = 1
	case '2':
		line.StopBits = 2
	default:
		return line, "Stop bits must be 1 or 2."
	}
	return line, ""
}

func (p *Processor) handleType(arg string) {
	if !p.device.LowLevel() {
		p.complain("Only available in low-level mode.")
		return
	}
	if arg == "" {
		return
	}
	matches := driver.MatchSubstring(p.drivers, arg)
	switch len(matches) {
	case 0:
		msg := fmt.Sprintf("No driver type matches '%s'.", arg)
		if near := p.nearestDriver(arg); near != "" {
			msg += fmt.Sprintf(" Closest is '%s'.", near)
		}
		p.complain("%s", msg)
	case 1:
		if err := p.switcher.SwitchTo(matches[0]); err == nil {
			p.device.SwitchDriver(matches[0])
		}
	default:
		p.complain("Multiple driver type names match '%s'.", arg)
	}
}

// nearestDriver suggests the driver name closest to a failed t argument.
func (p *Processor) nearestDriver(arg string) string {
	best := ""
	bestDist := -1
	for _, d := range p.drivers {
		dist := lev.ComputeDistance(strings.ToLower(arg), strings.ToLower(d.Name))
		if bestDist < 0 || dist < bestDist {
			best, bestDist = d.Name, dist
		}
	}
	if bestDist < 0 || bestDist > len(best)/2 {
		return ""
	}
	return best
}

func (p *Processor) handleControl(arg string) {
	live, ok := p.lowLevelDevice("No device defined yet")
	if !ok {
		return
	}
	buf, err := driver.HexPack(arg)
	if err != nil {
		p.complain("Invalid hex string (%v)", err)
		return
	}
	if live.Control == nil {
		p.complain("Device type %s has no control-send method.", live.Name)
		return
	}
	err = p.device.Writable(func() error {
		_, err := live.Control(p.device, buf)
		return err
	})
	if err != nil {
		p.complain("Control send failed.")
	}
}

func (p *Processor) handleRaw(arg string) {
	if !p.device.LowLevel() {
		p.complain("Only available in low-level mode.")
		return
	}
	buf, err := driver.HexPack(arg)
	if err != nil {
		p.complain("Invalid hex string (%v)", err)
		return
	}
	n, err := p.device.WriteRaw(buf)
	if err != nil || n != len(buf) {
		p.complain("Raw send failed.")
	}
}

// settleLine drains queued output and gives the receiver time to act on it.
func (p *Processor) settleLine() {
	_ = p.device.Drain()
	if p.settle > 0 {
		p.sleep(p.settle)
	}
}

func (p *Processor) complain(format string, args ...any) {
	p.reporter.Complain(fmt.Sprintf(format, args...))
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

func printable(c byte) string {
	if c == 0 {
		return ""
	}
	return string(rune(c))
}

// leadingInt parses the integer at the start of s, ignoring leading blanks
// and any trailing text.
func leadingInt(s string) (int, bool) {
	s = strings.TrimLeft(s, " \t")
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return v, true
}

// leadingFloat parses the number at the start of s; junk reads as zero.
func leadingFloat(s string) float64 {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	tok := fields[0]
	for len(tok) > 0 {
		if v, err := strconv.ParseFloat(tok, 64); err == nil {
			return v
		}
		tok = tok[:len(tok)-1]
	}
	return 0
}

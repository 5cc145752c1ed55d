// Package driver describes the device protocols the monitor knows about and
// the optional reconfiguration capabilities each one exposes.
package driver

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// PacketType is the framing class the lexer assigned to a packet.
type PacketType int

const (
	BadPacket PacketType = iota
	CommentPacket
	NMEAPacket
	AIVDMPacket
	JSONPacket
	UBXPacket
)

var packetTypeNames = map[PacketType]string{
	BadPacket:     "bad",
	CommentPacket: "comment",
	NMEAPacket:    "NMEA",
	AIVDMPacket:   "AIVDM",
	JSONPacket:    "JSON",
	UBXPacket:     "UBX",
}

func (t PacketType) String() string {
	if name, ok := packetTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("packet(%d)", int(t))
}

// Textual reports whether packets of this type are line-oriented text whose
// CR/LF trailer carries no information.
func (t PacketType) Textual() bool {
	switch t {
	case CommentPacket, NMEAPacket, AIVDMPacket, JSONPacket:
		return true
	}
	return false
}

// LineSettings is a serial line discipline.
type LineSettings struct {
	Baud       int
	WordLength int
	Parity     byte
	StopBits   int
}

// String renders settings the way the status line shows them, e.g. "9600 8N1".
func (l LineSettings) String() string {
	parity := l.Parity
	if parity == 0 {
		parity = 'N'
	}
	return fmt.Sprintf("%d %d%c%d", l.Baud, l.WordLength, parity, l.StopBits)
}

// Flags modify how the monitor treats a descriptor.
type Flags uint8

const (
	// Sticky keeps the descriptor's panel up when the device falls back to
	// generic NMEA framing.
	Sticky Flags = 1 << iota
)

// Capability bits reported by Descriptor.Capabilities.
type Capability uint8

const (
	CapMode Capability = 1 << iota
	CapSpeed
	CapRate
	CapControl
)

// Capability functions write through w, which is the session's guarded write
// path. A nil function on a Descriptor means the capability is absent.
type (
	ModeSwitcher  func(w io.Writer, mode int) error
	SpeedSwitcher func(w io.Writer, line LineSettings) error
	RateSwitcher  func(w io.Writer, cycle float64) error
	ControlSender func(w io.Writer, msg []byte) (int, error)
)

var (
	// ErrUnsupported is returned by a capability that exists but cannot honor
	// the requested value.
	ErrUnsupported = errors.New("not supported")
)

// Descriptor is the static description of one device protocol.
type Descriptor struct {
	Name    string
	Packet  PacketType
	Flags   Flags
	Trigger string

	Mode    ModeSwitcher
	Speed   SpeedSwitcher
	Rate    RateSwitcher
	Control ControlSender
}

// Sticky reports whether the descriptor carries the Sticky flag.
func (d *Descriptor) Sticky() bool {
	return d != nil && d.Flags&Sticky != 0
}

// Capabilities returns the set of optional operations d defines.
func (d *Descriptor) Capabilities() Capability {
	if d == nil {
		return 0
	}
	var c Capability
	if d.Mode != nil {
		c |= CapMode
	}
	if d.Speed != nil {
		c |= CapSpeed
	}
	if d.Rate != nil {
		c |= CapRate
	}
	if d.Control != nil {
		c |= CapControl
	}
	return c
}

// Has reports whether every bit in want is present.
func (c Capability) Has(want Capability) bool {
	return c&want == want
}

// CommandLetters lists the operator verbs usable against a descriptor, in the
// column format of the -L listing.
func (d *Descriptor) CommandLetters() string {
	caps := d.Capabilities()
	cols := []string{"i", "l", "q", "^S", "^Q"}
	if caps.Has(CapMode) {
		cols = append(cols, "n")
	} else {
		cols = append(cols, " ")
	}
	if caps.Has(CapSpeed) {
		cols = append(cols, "s")
	} else {
		cols = append(cols, " ")
	}
	if caps.Has(CapRate) {
		cols = append(cols, "c")
	} else {
		cols = append(cols, " ")
	}
	if caps.Has(CapControl) {
		cols = append(cols, "x")
	} else {
		cols = append(cols, " ")
	}
	return strings.Join(cols, " ")
}

package eventloop

import (
	"fmt"
	"time"

	"gpsmon/driver"
	"gpsmon/offset"
	"gpsmon/session"
	"gpsmon/visualize"
)

// PacketSource is the session state the per-packet hook reads.
type PacketSource interface {
	DeviceType() *driver.Descriptor
	FixTime() time.Time
	LowLevel() bool
}

// Selector brings up the right panel for a packet and updates it.
type Selector interface {
	Select(pt driver.PacketType, device *driver.Descriptor, payloadLen int) error
}

// PacketReporter shows a rendered packet line and logs the raw bytes under
// one lock hold. ComplainOnce reports packet-path errors, folding repeats.
type PacketReporter interface {
	Packet(line string, raw []byte) error
	ComplainOnce(msg string)
}

// Recorder captures packets outside the display path.
type Recorder interface {
	Record(pt driver.PacketType, data []byte)
}

// PacketHook is run for every packet the session completes.
type PacketHook struct {
	Source   PacketSource
	Switcher Selector
	Reporter PacketReporter
	Tracker  *offset.Tracker
	Recorder Recorder
	// Width bounds the rendered packet text; nil or <= 0 is unbounded.
	Width func() int
}

// Handle processes one packet. A non-nil error means the panel switch failed
// and the loop must end with DriverSwitch.
func (h *PacketHook) Handle(p session.Packet) error {
	defer h.afterPacket()

	if h.Recorder != nil {
		h.Recorder.Record(p.Type, p.Data)
	}

	if !h.Source.LowLevel() && p.Type == driver.JSONPacket && h.Tracker != nil {
		kind, sample, err := offset.Decode(p.Data)
		switch {
		case kind == offset.KindOther:
		case err != nil:
			h.Reporter.ComplainOnce(fmt.Sprintf("Ill-formed %s packet: %v", kind, err))
			return nil
		case kind == offset.KindTOFF:
			h.Tracker.TimeOffset(sample)
			return nil
		case kind == offset.KindPPS:
			h.Tracker.Pulse(sample)
			h.logRaw(p.Data)
			return nil
		}
	}

	if err := h.Switcher.Select(p.Type, h.Source.DeviceType(), len(p.Data)); err != nil {
		return err
	}

	limit := 0
	if h.Width != nil {
		limit = h.Width()
	}
	line := fmt.Sprintf("(%d) %s", len(p.Data), visualize.RenderConditional(p.Data, p.Type.Textual(), limit))
	err := h.Reporter.Packet(line, p.Data)
	Invariant(err == nil, "packet log write: %v", err)
	return nil
}

func (h *PacketHook) logRaw(raw []byte) {
	err := h.Reporter.Packet("", raw)
	Invariant(err == nil, "packet log write: %v", err)
}

func (h *PacketHook) afterPacket() {
	if h.Tracker != nil {
		h.Tracker.AfterPacket(h.Source.FixTime())
	}
}

package monitor

import (
	"errors"
	"fmt"

	"gpsmon/driver"
)

// Switcher owns the active panel. It is used from the event loop only.
type Switcher struct {
	registry *Registry
	surface  Surface

	active   *Handler
	window   Window
	lastType driver.PacketType
	lastDesc *driver.Descriptor
	seen     bool

	// OnSwitch runs after a successful switch so the caller can redraw the
	// status and command regions.
	OnSwitch func(h *Handler)
}

// NewSwitcher returns a switcher with no active panel.
func NewSwitcher(registry *Registry, surface Surface) *Switcher {
	return &Switcher{registry: registry, surface: surface, lastType: driver.BadPacket}
}

// Active returns the current panel or nil.
func (s *Switcher) Active() *Handler {
	return s.active
}

// Registry returns the registry the switcher resolves against.
func (s *Switcher) Registry() *Registry {
	return s.registry
}

// SwitchTo makes the panel for desc active. A missing panel is returned as an
// error wrapping ErrNoMonitor; a surface too small for the panel returns a
// *SizeError and leaves the current panel in place. Both are also reported on
// the surface.
func (s *Switcher) SwitchTo(desc *driver.Descriptor) error {
	h, err := s.registry.Resolve(desc)
	if err != nil {
		s.surface.Complain(fmt.Sprintf("No monitor matches %s.", descName(desc)))
		return err
	}
	rows, cols := s.surface.Size()
	if rows > 0 && cols > 0 && (rows < h.MinRows+1 || cols < h.MinCols) {
		sizeErr := &SizeError{Name: h.Name(), Rows: h.MinRows, Cols: h.MinCols}
		s.complainOnce(sizeErr.Error())
		return sizeErr
	}

	if s.active != nil && s.active.Leave != nil {
		s.active.Leave()
	}
	s.active = h
	s.lastDesc = h.Driver
	s.window = s.surface.Window(h.MinRows, h.MinCols)
	s.surface.Clear()
	if h.Init != nil && !h.Init(s.window) {
		s.surface.Complain(fmt.Sprintf("%s initialization failed", h.Name()))
	}
	if s.OnSwitch != nil {
		s.OnSwitch(h)
	}
	s.surface.Refresh()
	return nil
}

// Select runs once per received packet. When the packet type differs from the
// previous one the panel for device is brought up; a device that was running a
// sticky panel and has dropped back to generic NMEA keeps that panel. Only a
// missing panel is returned as an error. The active panel's update hook runs
// when there is a payload.
func (s *Switcher) Select(pt driver.PacketType, device *driver.Descriptor, payloadLen int) error {
	if !s.seen || pt != s.lastType {
		target := device
		if target == nil {
			target = driver.Generic(pt)
		}
		if s.lastDesc.Sticky() && pt == driver.NMEAPacket && (target == nil || driver.IsGeneric(target)) {
			target = s.lastDesc
		}
		if target != nil {
			err := s.SwitchTo(target)
			var sizeErr *SizeError
			if err != nil && !errors.As(err, &sizeErr) {
				return err
			}
			s.lastType = pt
			s.seen = true
		}
	}
	if s.active != nil && payloadLen > 0 && s.active.Update != nil {
		s.active.Update(s.window)
	}
	return nil
}

// Command offers line to the active panel's command hook.
func (s *Switcher) Command(line string) CommandStatus {
	if s.active == nil || s.active.Command == nil {
		return CommandUnknown
	}
	return s.active.Command(line)
}

func descName(d *driver.Descriptor) string {
	if d == nil {
		return "<none>"
	}
	return d.Name
}

// complainOnce reports a refusal that recurs on every packet. Surfaces able
// to fold repeats get the chance to.
func (s *Switcher) complainOnce(msg string) {
	if f, ok := s.surface.(interface{ ComplainOnce(string) }); ok {
		f.ComplainOnce(msg)
		return
	}
	s.surface.Complain(msg)
}

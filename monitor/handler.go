// Package monitor holds the registry of protocol panels and the switcher that
// keeps the right one on screen as the packet stream changes type.
package monitor

import (
	"errors"
	"fmt"

	"gpsmon/driver"
)

// CommandStatus is a panel command hook's verdict on an operator line.
type CommandStatus int

const (
	CommandUnknown CommandStatus = iota
	CommandMatch
	CommandTerminate
)

// Window is the region a panel draws into.
type Window interface {
	Size() (rows, cols int)
	Clear()
	SetLine(row int, text string)
}

// Surface is the operator display. Rows or cols <= 0 means the surface is a
// plain stream with no size limit.
type Surface interface {
	Size() (rows, cols int)
	Clear()
	Refresh()
	AppendLine(line string)
	Complain(msg string)
	Window(rows, cols int) Window
}

// Handler is one protocol panel. All hooks are optional.
type Handler struct {
	Driver  *driver.Descriptor
	MinRows int
	MinCols int

	Init    func(w Window) bool
	Update  func(w Window)
	Command func(line string) CommandStatus
	Leave   func()
}

// Name is the name of the handler's descriptor.
func (h *Handler) Name() string {
	if h == nil || h.Driver == nil {
		return ""
	}
	return h.Driver.Name
}

// Passthrough returns the panel for structured traffic no driver decodes. It
// has no hooks, so the packet pane alone carries the data.
func Passthrough() *Handler {
	return &Handler{Driver: driver.JSONPassthrough, MinCols: 80}
}

var (
	ErrNoMonitor      = errors.New("no monitor matches")
	ErrDuplicate      = errors.New("duplicate monitor")
	ErrInvalidHandler = errors.New("handler has no driver")
)

// SizeError reports a surface too small for a panel.
type SizeError struct {
	Name string
	Rows int
	Cols int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%s requires %dx%d screen", e.Name, e.Cols, e.Rows+1)
}

// Registry is the ordered set of installed panels. It is read-only once built.
type Registry struct {
	handlers []*Handler
}

// NewRegistry validates and freezes the handler list.
func NewRegistry(handlers ...*Handler) (*Registry, error) {
	seen := make(map[string]bool, len(handlers))
	list := make([]*Handler, 0, len(handlers))
	for _, h := range handlers {
		if h == nil || h.Driver == nil {
			return nil, ErrInvalidHandler
		}
		if seen[h.Driver.Name] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, h.Driver.Name)
		}
		seen[h.Driver.Name] = true
		list = append(list, h)
	}
	return &Registry{handlers: list}, nil
}

// Handlers returns the installed panels in registration order.
func (r *Registry) Handlers() []*Handler {
	out := make([]*Handler, len(r.handlers))
	copy(out, r.handlers)
	return out
}

// Drivers returns the descriptors of the installed panels.
func (r *Registry) Drivers() []*driver.Descriptor {
	out := make([]*driver.Descriptor, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h.Driver)
	}
	return out
}

// Resolve finds the panel for desc, matching by name.
func (r *Registry) Resolve(desc *driver.Descriptor) (*Handler, error) {
	if desc == nil {
		return nil, fmt.Errorf("%w: <none>", ErrNoMonitor)
	}
	for _, h := range r.handlers {
		if h.Driver == desc || h.Driver.Name == desc.Name {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w %s", ErrNoMonitor, desc.Name)
}

// Package eventloop runs the single control loop of a monitoring session: it
// waits on the device, the operator and the clock, feeds packets through the
// panel switcher and maps every way out of the loop to one termination cause.
package eventloop

// Cause is why the loop ended. It is set exactly once per run.
type Cause int

const (
	Unknown Cause = iota
	SelectFailed
	DriverSwitch
	EmptyRead
	ReadError
	Signal
	Quit
)

func (c Cause) String() string {
	switch c {
	case SelectFailed:
		return "select-failed"
	case DriverSwitch:
		return "driver-switch"
	case EmptyRead:
		return "empty-read"
	case ReadError:
		return "read-error"
	case Signal:
		return "signal"
	case Quit:
		return "quit"
	}
	return "unknown"
}

// Explanation is the message shown after shutdown. Deliberate exits have none.
func (c Cause) Explanation() string {
	switch c {
	case SelectFailed:
		return "I/O wait on device failed"
	case DriverSwitch:
		return "Driver type switch failed"
	case EmptyRead:
		return "Device went offline"
	case ReadError:
		return "Read error from device"
	case Signal, Quit:
		return ""
	}
	return "Unknown error, should never happen."
}

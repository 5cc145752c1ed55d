package eventloop

import (
	"context"
	"errors"
	"log"
	"time"

	"gpsmon/commands"
	"gpsmon/monitor"
	"gpsmon/session"
)

// DefaultWait is the ceiling on one wait step.
const DefaultWait = 2 * time.Second

// Device is the transport side of the loop.
type Device interface {
	Readable() <-chan struct{}
	Faults() <-chan error
	Intake(hook func(session.Packet)) session.IntakeStatus
	Close() error
}

// PanelCommands offers an operator line to the active panel first.
type PanelCommands interface {
	Command(line string) monitor.CommandStatus
}

// Executor runs the generic command set.
type Executor interface {
	Execute(line string) commands.Result
}

// LogCloser owns the packet log.
type LogCloser interface {
	CloseLog() error
}

// Deactivator stops an auxiliary watcher such as the PPS thread.
type Deactivator interface {
	Deactivate()
}

// Options wires the loop to its collaborators. Device, Hook, Panels and
// Commands are required.
type Options struct {
	Device   Device
	Hook     *PacketHook
	Panels   PanelCommands
	Commands Executor
	// Input delivers operator keystrokes. A closed channel stops input.
	Input <-chan []byte
	Wait  time.Duration
	// Heartbeat runs when a wait step times out.
	Heartbeat func()
	// Typed runs after keystrokes with the partial line, for echo.
	Typed    func(pending string)
	PPS      Deactivator
	Log      LogCloser
	Restore  func()
	Announce func(msg string)
}

// Loop is one monitoring run.
type Loop struct {
	opts  Options
	lines *LineBuffer
	cause Cause
	set   bool
}

// New returns a loop ready to Run.
func New(opts Options) *Loop {
	if opts.Wait <= 0 {
		opts.Wait = DefaultWait
	}
	return &Loop{opts: opts, lines: NewLineBuffer(80)}
}

// Run drives the session until a termination cause is recorded, then shuts
// down and announces the cause. Cancelling ctx is how signals end the run.
// An invariant failure skips the shutdown sequence: only the log is closed
// and an error wrapping ErrInvariant is returned.
func (l *Loop) Run(ctx context.Context) (cause Cause, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		ie, ok := r.(*InvariantError)
		if !ok {
			panic(r)
		}
		if l.opts.Log != nil {
			_ = l.opts.Log.CloseLog()
		}
		cause, err = Unknown, ie
	}()

	l.loop(ctx)
	l.shutdown()
	return l.cause, nil
}

func (l *Loop) loop(ctx context.Context) {
	input := l.opts.Input
	timer := time.NewTimer(l.opts.Wait)
	defer timer.Stop()

	for !l.set {
		timer.Reset(l.opts.Wait)
		select {
		case <-ctx.Done():
			l.finish(Signal)
		case err := <-l.opts.Device.Faults():
			log.Printf("eventloop: device fault: %v", err)
			l.finish(SelectFailed)
		case <-l.opts.Device.Readable():
			l.intake()
		case keys, ok := <-input:
			if !ok {
				input = nil
				continue
			}
			l.keystrokes(keys)
		case <-timer.C:
			if l.opts.Heartbeat != nil {
				l.opts.Heartbeat()
			}
		}
	}
}

func (l *Loop) intake() {
	var hookErr error
	status := l.opts.Device.Intake(func(p session.Packet) {
		if hookErr != nil {
			return
		}
		hookErr = l.opts.Hook.Handle(p)
	})
	if hookErr != nil {
		if !errors.Is(hookErr, monitor.ErrNoMonitor) {
			log.Printf("eventloop: panel switch: %v", hookErr)
		}
		l.finish(DriverSwitch)
		return
	}
	switch status {
	case session.IntakeReady:
	case session.IntakeUnready:
		l.finish(EmptyRead)
	case session.IntakeError:
		l.finish(ReadError)
	case session.IntakeEOF:
		l.finish(Quit)
	default:
		l.finish(Unknown)
	}
}

func (l *Loop) keystrokes(keys []byte) {
	for _, line := range l.lines.Feed(keys) {
		if l.dispatch(line) == commands.Quit {
			l.finish(Quit)
			return
		}
	}
	if l.opts.Typed != nil {
		l.opts.Typed(l.lines.Pending())
	}
}

// dispatch gives the panel first refusal on a line.
func (l *Loop) dispatch(line string) commands.Result {
	switch l.opts.Panels.Command(line) {
	case monitor.CommandMatch:
		return commands.Continue
	case monitor.CommandTerminate:
		return commands.Quit
	}
	return l.opts.Commands.Execute(line)
}

func (l *Loop) finish(c Cause) {
	if l.set {
		return
	}
	l.cause = c
	l.set = true
}

func (l *Loop) shutdown() {
	if l.opts.PPS != nil {
		l.opts.PPS.Deactivate()
	}
	if err := l.opts.Device.Close(); err != nil {
		log.Printf("eventloop: closing device: %v", err)
	}
	if l.opts.Log != nil {
		if err := l.opts.Log.CloseLog(); err != nil {
			log.Printf("eventloop: closing packet log: %v", err)
		}
	}
	if l.opts.Restore != nil {
		l.opts.Restore()
	}
	if msg := l.cause.Explanation(); msg != "" && l.opts.Announce != nil {
		l.opts.Announce(msg)
	}
}

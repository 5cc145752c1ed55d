package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/ziutek/telnet"
	"go.bug.st/serial"

	"gpsmon/driver"
)

// Link is the byte transport under a session.
type Link interface {
	io.ReadWriteCloser
}

// lineLink is implemented by links that own a physical line discipline.
type lineLink interface {
	SetLine(line driver.LineSettings) error
	Drain() error
}

// faultLink is implemented by links that can detect the device vanishing
// while no data is flowing.
type faultLink interface {
	Watch(stop <-chan struct{}, faults chan<- error)
}

var ErrNotLowLevel = errors.New("not a low-level link")

const modemPollInterval = time.Second

type serialLink struct {
	serial.Port
}

func openSerial(path string, line driver.LineSettings) (*serialLink, error) {
	mode, err := serialMode(line)
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("while opening serial port %s: %w", path, err)
	}
	return &serialLink{Port: port}, nil
}

func serialMode(line driver.LineSettings) (*serial.Mode, error) {
	mode := &serial.Mode{BaudRate: line.Baud, DataBits: line.WordLength}
	switch line.Parity {
	case 'N', 0:
		mode.Parity = serial.NoParity
	case 'O':
		mode.Parity = serial.OddParity
	case 'E':
		mode.Parity = serial.EvenParity
	default:
		return nil, fmt.Errorf("unsupported parity %q", line.Parity)
	}
	switch line.StopBits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("unsupported stop bits %d", line.StopBits)
	}
	return mode, nil
}

func (l *serialLink) SetLine(line driver.LineSettings) error {
	mode, err := serialMode(line)
	if err != nil {
		return err
	}
	return l.Port.SetMode(mode)
}

func (l *serialLink) Drain() error {
	return l.Port.Drain()
}

// Watch polls the modem status lines; an error there means the port is gone
// even if the reader is still blocked.
func (l *serialLink) Watch(stop <-chan struct{}, faults chan<- error) {
	ticker := time.NewTicker(modemPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := l.Port.GetModemStatusBits(); err != nil {
				select {
				case faults <- fmt.Errorf("modem status: %w", err):
				default:
				}
				return
			}
		}
	}
}

func dialTelnet(ctx context.Context, addr string, timeout time.Duration) (Link, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	conn, err := telnet.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return conn, nil
}

func dialGPSD(ctx context.Context, ep Endpoint, nmea bool, timeout time.Duration) (Link, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", ep.Address())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", ep.Address(), err)
	}
	if _, err := io.WriteString(conn, WatchCommand(nmea, ep.Device)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send watch: %w", err)
	}
	return conn, nil
}

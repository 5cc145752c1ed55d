package session

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

const (
	DefaultHost = "localhost"
	DefaultPort = "2947"

	telnetScheme = "telnet://"
)

// Kind is the transport behind an endpoint.
type Kind int

const (
	// KindGPSD is a relayed stream from a gpsd daemon.
	KindGPSD Kind = iota
	// KindSerial is a local serial device.
	KindSerial
	// KindTelnet is a serial line exported by a network device server.
	KindTelnet
)

func (k Kind) String() string {
	switch k {
	case KindSerial:
		return "serial"
	case KindTelnet:
		return "telnet"
	}
	return "gpsd"
}

// Endpoint names what to monitor.
type Endpoint struct {
	Kind   Kind
	Path   string
	Host   string
	Port   string
	Device string
}

var ErrBadEndpoint = errors.New("bad endpoint")

// ParseEndpoint accepts a device path, telnet://host:port, or the gpsd form
// server[:port[:device]] (IPv6 servers in brackets). An empty argument is the
// local gpsd.
func ParseEndpoint(arg string) (Endpoint, error) {
	arg = strings.TrimSpace(arg)
	switch {
	case arg == "":
		return Endpoint{Kind: KindGPSD, Host: DefaultHost, Port: DefaultPort}, nil
	case strings.HasPrefix(arg, "/"):
		return Endpoint{Kind: KindSerial, Path: arg}, nil
	case strings.HasPrefix(arg, telnetScheme):
		host, port, err := net.SplitHostPort(strings.TrimPrefix(arg, telnetScheme))
		if err != nil || host == "" || port == "" {
			return Endpoint{}, fmt.Errorf("%w: %s", ErrBadEndpoint, arg)
		}
		return Endpoint{Kind: KindTelnet, Host: host, Port: port}, nil
	}

	ep := Endpoint{Kind: KindGPSD, Port: DefaultPort}
	rest := arg
	if strings.HasPrefix(rest, "[") {
		end := strings.Index(rest, "]")
		if end < 0 {
			return Endpoint{}, fmt.Errorf("%w: unterminated IPv6 address in %s", ErrBadEndpoint, arg)
		}
		ep.Host = rest[1:end]
		rest = strings.TrimPrefix(rest[end+1:], ":")
	} else {
		host, tail, _ := strings.Cut(rest, ":")
		ep.Host = host
		rest = tail
	}
	if rest != "" {
		port, device, _ := strings.Cut(rest, ":")
		if port != "" {
			ep.Port = port
		}
		ep.Device = device
	}
	if ep.Host == "" {
		ep.Host = DefaultHost
	}
	return ep, nil
}

// LowLevel reports whether the endpoint is a direct device line.
func (e Endpoint) LowLevel() bool {
	return e.Kind != KindGPSD
}

// Address is the dial address for network endpoints.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, e.Port)
}

func (e Endpoint) String() string {
	switch e.Kind {
	case KindSerial:
		return e.Path
	case KindTelnet:
		return telnetScheme + e.Address()
	}
	s := "tcp://" + e.Address()
	if e.Device != "" {
		s += ":" + e.Device
	}
	return s
}

// WatchCommand is the request that starts the gpsd stream.
func WatchCommand(nmea bool, device string) string {
	kind := `"raw":2`
	if nmea {
		kind = `"nmea":true`
	}
	if device == "" {
		return fmt.Sprintf("?WATCH={%s,\"pps\":true}\r\n", kind)
	}
	return fmt.Sprintf("?WATCH={%s,\"pps\":true,\"device\":\"%s\"}\r\n", kind, device)
}

package session

import (
	"bytes"
	"encoding/binary"

	"gpsmon/driver"
)

const (
	// MaxPacketLength bounds a single framed packet.
	MaxPacketLength = 9216
	maxTextLength   = 1024
)

// Packet is one framed unit from the device.
type Packet struct {
	Type driver.PacketType
	Data []byte
}

// Lexer splits a byte stream into NMEA, AIVDM, JSON, comment and UBX packets.
// Bytes that cannot start a packet are discarded.
type Lexer struct {
	buf     []byte
	dropped uint64
}

// Dropped returns how many bytes were discarded as noise.
func (l *Lexer) Dropped() uint64 {
	return l.dropped
}

// Feed appends data and returns every complete packet now available.
func (l *Lexer) Feed(data []byte) []Packet {
	l.buf = append(l.buf, data...)
	var out []Packet
	for len(l.buf) > 0 {
		pkt, used, ok := l.next()
		if !ok {
			break
		}
		if pkt.Type != driver.BadPacket {
			out = append(out, pkt)
		}
		l.buf = l.buf[used:]
	}
	if len(l.buf) == 0 {
		l.buf = nil
	}
	return out
}

// next frames the packet at the head of the buffer. ok is false when more
// bytes are needed. A BadPacket result consumes noise.
func (l *Lexer) next() (Packet, int, bool) {
	b := l.buf
	switch b[0] {
	case '$', '!':
		return l.text(b, nmeaType(b))
	case '{':
		return l.text(b, driver.JSONPacket)
	case '#':
		return l.text(b, driver.CommentPacket)
	case driver.UBXSync1:
		return l.ubx(b)
	}
	next := 1
	for next < len(b) && !startByte(b[next]) {
		next++
	}
	l.dropped += uint64(next)
	return Packet{Type: driver.BadPacket}, next, true
}

func (l *Lexer) text(b []byte, t driver.PacketType) (Packet, int, bool) {
	end := bytes.IndexByte(b, '\n')
	if end < 0 {
		if len(b) > maxTextLength {
			l.dropped++
			return Packet{Type: driver.BadPacket}, 1, true
		}
		return Packet{}, 0, false
	}
	if end+1 > maxTextLength {
		l.dropped++
		return Packet{Type: driver.BadPacket}, 1, true
	}
	data := make([]byte, end+1)
	copy(data, b[:end+1])
	return Packet{Type: t, Data: data}, end + 1, true
}

func (l *Lexer) ubx(b []byte) (Packet, int, bool) {
	if len(b) < 2 {
		return Packet{}, 0, false
	}
	if b[1] != driver.UBXSync2 {
		l.dropped++
		return Packet{Type: driver.BadPacket}, 1, true
	}
	if len(b) < driver.UBXHeaderLen {
		return Packet{}, 0, false
	}
	total := driver.UBXHeaderLen + int(binary.LittleEndian.Uint16(b[4:6])) + 2
	if total > MaxPacketLength {
		l.dropped++
		return Packet{Type: driver.BadPacket}, 1, true
	}
	if len(b) < total {
		return Packet{}, 0, false
	}
	if !driver.UBXVerify(b[:total]) {
		l.dropped++
		return Packet{Type: driver.BadPacket}, 1, true
	}
	data := make([]byte, total)
	copy(data, b[:total])
	return Packet{Type: driver.UBXPacket, Data: data}, total, true
}

func nmeaType(b []byte) driver.PacketType {
	if bytes.HasPrefix(b, []byte("!AIVD")) || bytes.HasPrefix(b, []byte("!ABVD")) {
		return driver.AIVDMPacket
	}
	return driver.NMEAPacket
}

func startByte(c byte) bool {
	switch c {
	case '$', '!', '{', '#', driver.UBXSync1:
		return true
	}
	return false
}

package driver

import (
	"encoding/binary"
	"io"
	"math"
)

const (
	UBXSync1 = 0xB5
	UBXSync2 = 0x62

	UBXHeaderLen = 6

	UBXClassNAV = 0x01
	UBXClassCFG = 0x06
	UBXIDNavPVT = 0x07
	UBXIDCfgPRT = 0x00
	UBXIDCfgRAT = 0x08
)

// UBXChecksum is the 8-bit Fletcher checksum over class, id, length and payload.
func UBXChecksum(data []byte) (ckA, ckB byte) {
	for _, b := range data {
		ckA += b
		ckB += ckA
	}
	return ckA, ckB
}

// UBXEncode frames a UBX message.
func UBXEncode(class, id byte, payload []byte) []byte {
	buf := make([]byte, 0, UBXHeaderLen+len(payload)+2)
	buf = append(buf, UBXSync1, UBXSync2, class, id)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(payload)))
	buf = append(buf, payload...)
	ckA, ckB := UBXChecksum(buf[2:])
	return append(buf, ckA, ckB)
}

// UBXVerify reports whether packet is a complete frame with a valid checksum.
func UBXVerify(packet []byte) bool {
	if len(packet) < UBXHeaderLen+2 || packet[0] != UBXSync1 || packet[1] != UBXSync2 {
		return false
	}
	n := int(binary.LittleEndian.Uint16(packet[4:6]))
	if len(packet) != UBXHeaderLen+n+2 {
		return false
	}
	ckA, ckB := UBXChecksum(packet[2 : len(packet)-2])
	return packet[len(packet)-2] == ckA && packet[len(packet)-1] == ckB
}

// ubxControl treats msg as class, id, payload and adds framing.
func ubxControl(w io.Writer, msg []byte) (int, error) {
	if len(msg) < 2 {
		return 0, ErrUnsupported
	}
	return w.Write(UBXEncode(msg[0], msg[1], msg[2:]))
}

const (
	ubxProtoUBX  = 0x0001
	ubxProtoNMEA = 0x0002
	ubxPortUART1 = 1
)

// ubxPortConfig builds a CFG-PRT payload for UART1.
func ubxPortConfig(line LineSettings, inProto, outProto uint16) ([]byte, bool) {
	var mode uint32
	switch line.WordLength {
	case 7:
		mode |= 0x2 << 6
	case 8:
		mode |= 0x3 << 6
	default:
		return nil, false
	}
	switch line.Parity {
	case 'N', 0:
		mode |= 0x4 << 9
	case 'E':
		mode |= 0x0 << 9
	case 'O':
		mode |= 0x1 << 9
	default:
		return nil, false
	}
	switch line.StopBits {
	case 1:
		mode |= 0x0 << 12
	case 2:
		mode |= 0x2 << 12
	default:
		return nil, false
	}
	if line.Baud <= 0 {
		return nil, false
	}
	p := make([]byte, 20)
	p[0] = ubxPortUART1
	binary.LittleEndian.PutUint32(p[4:], mode)
	binary.LittleEndian.PutUint32(p[8:], uint32(line.Baud))
	binary.LittleEndian.PutUint16(p[12:], inProto)
	binary.LittleEndian.PutUint16(p[14:], outProto)
	return p, true
}

// ubxMode 0 selects NMEA output, anything else UBX binary output. The current
// line settings are not known to the driver, so 9600 8N1 is asserted.
func ubxMode(w io.Writer, mode int) error {
	out := uint16(ubxProtoUBX)
	if mode == 0 {
		out = ubxProtoNMEA
	}
	p, _ := ubxPortConfig(LineSettings{Baud: 9600, WordLength: 8, Parity: 'N', StopBits: 1}, ubxProtoUBX|ubxProtoNMEA, out)
	_, err := w.Write(UBXEncode(UBXClassCFG, UBXIDCfgPRT, p))
	return err
}

func ubxSpeed(w io.Writer, line LineSettings) error {
	p, ok := ubxPortConfig(line, ubxProtoUBX|ubxProtoNMEA, ubxProtoUBX|ubxProtoNMEA)
	if !ok {
		return ErrUnsupported
	}
	_, err := w.Write(UBXEncode(UBXClassCFG, UBXIDCfgPRT, p))
	return err
}

// ubxRate sets the measurement period; u-blox parts take 25ms to 65535ms.
func ubxRate(w io.Writer, cycle float64) error {
	ms := math.Round(cycle * 1000)
	if ms < 25 || ms > math.MaxUint16 {
		return ErrUnsupported
	}
	p := make([]byte, 6)
	binary.LittleEndian.PutUint16(p[0:], uint16(ms))
	binary.LittleEndian.PutUint16(p[2:], 1)
	binary.LittleEndian.PutUint16(p[4:], 1)
	_, err := w.Write(UBXEncode(UBXClassCFG, UBXIDCfgRAT, p))
	return err
}

// UBlox is sticky: a receiver switched to NMEA output keeps its binary panel.
var UBlox = &Descriptor{
	Name:    "u-blox",
	Packet:  UBXPacket,
	Flags:   Sticky,
	Trigger: "$GPTXT,01,01,02,u-blox",
	Mode:    ubxMode,
	Speed:   ubxSpeed,
	Rate:    ubxRate,
	Control: ubxControl,
}

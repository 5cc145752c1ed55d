package driver

import (
	"bytes"
	"fmt"
	"io"
	"math"
)

// NMEAChecksum is the XOR of every byte between the leading '$' or '!' and the
// '*' (or the end of the sentence when there is no '*').
func NMEAChecksum(sentence []byte) byte {
	var sum byte
	start := 0
	if len(sentence) > 0 && (sentence[0] == '$' || sentence[0] == '!') {
		start = 1
	}
	for _, c := range sentence[start:] {
		if c == '*' {
			break
		}
		sum ^= c
	}
	return sum
}

// NMEAFrame turns a sentence body into a wire sentence. Bodies starting with
// '$' gain a *hh checksum; every frame ends in CR/LF. Existing trailers are
// replaced.
func NMEAFrame(body []byte) []byte {
	body = bytes.TrimRight(body, "\r\n")
	if i := bytes.IndexByte(body, '*'); i >= 0 {
		body = body[:i]
	}
	out := make([]byte, 0, len(body)+5)
	out = append(out, body...)
	if len(body) > 0 && body[0] == '$' {
		out = fmt.Appendf(out, "*%02X", NMEAChecksum(body))
	}
	return append(out, '\r', '\n')
}

// NMEAWrite frames body and writes it to w.
func NMEAWrite(w io.Writer, body []byte) (int, error) {
	return w.Write(NMEAFrame(body))
}

func nmeaWritef(w io.Writer, format string, args ...any) error {
	_, err := NMEAWrite(w, fmt.Appendf(nil, format, args...))
	return err
}

var ashtechSpeedCodes = map[int]int{
	300: 0, 600: 1, 1200: 2, 2400: 3, 4800: 4,
	9600: 5, 19200: 6, 38400: 7, 57600: 8, 115200: 9,
}

func ashtechSpeed(w io.Writer, line LineSettings) error {
	code, ok := ashtechSpeedCodes[line.Baud]
	if !ok || line.WordLength != 8 || line.Parity != 'N' || line.StopBits != 1 {
		return ErrUnsupported
	}
	return nmeaWritef(w, "$PASHS,SPD,A,%d", code)
}

var mtkSpeeds = map[int]bool{4800: true, 9600: true, 14400: true, 19200: true, 38400: true, 57600: true, 115200: true}

func mtkSpeed(w io.Writer, line LineSettings) error {
	if !mtkSpeeds[line.Baud] || line.WordLength != 8 || line.Parity != 'N' || line.StopBits != 1 {
		return ErrUnsupported
	}
	return nmeaWritef(w, "$PMTK251,%d", line.Baud)
}

// mtkRate sets the fix interval; the chip accepts 100ms to 10s.
func mtkRate(w io.Writer, cycle float64) error {
	ms := int(math.Round(cycle * 1000))
	if ms < 100 || ms > 10000 {
		return ErrUnsupported
	}
	return nmeaWritef(w, "$PMTK220,%d", ms)
}

// mtkMode 0 keeps NMEA output; MTK parts have no alternate framing to switch to.
func mtkMode(w io.Writer, mode int) error {
	if mode != 0 {
		return ErrUnsupported
	}
	return nmeaWritef(w, "$PMTK314,0,1,0,1,1,5,0,0,0,0,0,0,0,0,0,0,0,0,0")
}

var (
	NMEA0183 = &Descriptor{
		Name:    "NMEA0183",
		Packet:  NMEAPacket,
		Control: NMEAWrite,
	}
	GarminNMEA = &Descriptor{
		Name:    "Garmin NMEA",
		Packet:  NMEAPacket,
		Trigger: "$PGRMC,",
		Control: NMEAWrite,
	}
	Ashtech = &Descriptor{
		Name:    "Ashtech",
		Packet:  NMEAPacket,
		Trigger: "$PASHR,RID,",
		Speed:   ashtechSpeed,
		Control: NMEAWrite,
	}
	FV18 = &Descriptor{
		Name:    "San Jose Navigation FV18",
		Packet:  NMEAPacket,
		Trigger: "$PFEC,GPint,",
		Control: NMEAWrite,
	}
	GPSClock = &Descriptor{
		Name:    "Furuno Electric GH-79L4",
		Packet:  NMEAPacket,
		Trigger: "$PFEC,GPssd",
		Control: NMEAWrite,
	}
	MTK3301 = &Descriptor{
		Name:    "MTK-3301",
		Packet:  NMEAPacket,
		Trigger: "$PMTK705,",
		Mode:    mtkMode,
		Speed:   mtkSpeed,
		Rate:    mtkRate,
		Control: NMEAWrite,
	}
	AIVDM = &Descriptor{
		Name:   "AIVDM",
		Packet: AIVDMPacket,
	}
	JSONPassthrough = &Descriptor{
		Name:   "JSON slave driver",
		Packet: JSONPacket,
	}
)

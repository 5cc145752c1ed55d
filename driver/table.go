package driver

import (
	"strings"
)

var known = []*Descriptor{
	NMEA0183,
	GarminNMEA,
	Ashtech,
	FV18,
	GPSClock,
	MTK3301,
	AIVDM,
	JSONPassthrough,
	UBlox,
}

// All returns every known descriptor in table order.
func All() []*Descriptor {
	out := make([]*Descriptor, len(known))
	copy(out, known)
	return out
}

// Generic returns the descriptor used for a packet type when no more specific
// driver has identified the device.
func Generic(t PacketType) *Descriptor {
	switch t {
	case NMEAPacket, CommentPacket:
		return NMEA0183
	case AIVDMPacket:
		return AIVDM
	case JSONPacket:
		return JSONPassthrough
	case UBXPacket:
		return UBlox
	}
	return nil
}

// IsGeneric reports whether d is the plain NMEA 0183 driver.
func IsGeneric(d *Descriptor) bool {
	return d == NMEA0183
}

// MatchSubstring returns the descriptors whose name contains s (case sensitive).
func MatchSubstring(list []*Descriptor, s string) []*Descriptor {
	var out []*Descriptor
	for _, d := range list {
		if strings.Contains(d.Name, s) {
			out = append(out, d)
		}
	}
	return out
}

// MatchPrefix returns the descriptors whose name starts with s.
func MatchPrefix(list []*Descriptor, s string) []*Descriptor {
	var out []*Descriptor
	for _, d := range list {
		if strings.HasPrefix(d.Name, s) {
			out = append(out, d)
		}
	}
	return out
}

// Identify returns the descriptor whose trigger string opens packet, if any.
func Identify(list []*Descriptor, packet []byte) *Descriptor {
	for _, d := range list {
		if d.Trigger != "" && strings.HasPrefix(string(packet), d.Trigger) {
			return d
		}
	}
	return nil
}

// Package ubxmon is the u-blox binary panel. It decodes NAV-PVT and keeps a
// tally of the other message types it sees.
package ubxmon

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"gpsmon/driver"
	"gpsmon/monitor"
	"gpsmon/session"
)

const (
	Width  = 80
	Height = 22

	pvtLen = 92

	rowTime     = 1
	rowFix      = 2
	rowLat      = 3
	rowLon      = 4
	rowAlt      = 5
	rowAcc      = 6
	rowVel      = 7
	rowDOP      = 8
	rowMessages = 10
)

var fixTypes = []string{"no fix", "DR", "2D", "3D", "GNSS+DR", "time only"}

// Source is the session state the panel renders.
type Source interface {
	Last() session.Packet
}

// PVT is the subset of NAV-PVT the panel shows.
type PVT struct {
	Year                        int
	Month, Day, Hour, Min, Sec  int
	Nano                        int32
	ValidTime                   bool
	FixType                     int
	FixOK                       bool
	NumSV                       int
	Lat, Lon                    float64
	Height, HMSL                float64
	HAcc, VAcc                  float64
	VelN, VelE, VelD, GroundSpd float64
	Heading                     float64
	PDOP                        float64
}

// DecodePVT reads a framed NAV-PVT packet.
func DecodePVT(packet []byte) (PVT, bool) {
	if !driver.UBXVerify(packet) || packet[2] != driver.UBXClassNAV || packet[3] != driver.UBXIDNavPVT {
		return PVT{}, false
	}
	p := packet[driver.UBXHeaderLen : len(packet)-2]
	if len(p) < pvtLen {
		return PVT{}, false
	}
	le := binary.LittleEndian
	i4 := func(off int) int32 { return int32(le.Uint32(p[off:])) }
	return PVT{
		Year:      int(le.Uint16(p[4:])),
		Month:     int(p[6]),
		Day:       int(p[7]),
		Hour:      int(p[8]),
		Min:       int(p[9]),
		Sec:       int(p[10]),
		ValidTime: p[11]&0x03 == 0x03,
		Nano:      i4(16),
		FixType:   int(p[20]),
		FixOK:     p[21]&0x01 != 0,
		NumSV:     int(p[23]),
		Lon:       float64(i4(24)) * 1e-7,
		Lat:       float64(i4(28)) * 1e-7,
		Height:    float64(i4(32)) / 1000,
		HMSL:      float64(i4(36)) / 1000,
		HAcc:      float64(le.Uint32(p[40:])) / 1000,
		VAcc:      float64(le.Uint32(p[44:])) / 1000,
		VelN:      float64(i4(48)) / 1000,
		VelE:      float64(i4(52)) / 1000,
		VelD:      float64(i4(56)) / 1000,
		GroundSpd: float64(i4(60)) / 1000,
		Heading:   float64(i4(64)) * 1e-5,
		PDOP:      float64(le.Uint16(p[76:])) * 0.01,
	}, true
}

// Panel is the u-blox device window.
type Panel struct {
	source Source
	counts map[uint16]int
}

func NewPanel(source Source) *Panel {
	return &Panel{source: source, counts: map[uint16]int{}}
}

func (p *Panel) Init(w monitor.Window) bool {
	clear(p.counts)
	w.Clear()
	w.SetLine(0, "u-blox NAV-PVT")
	w.SetLine(rowMessages-1, "Messages seen (class/id x count):")
	return true
}

func (p *Panel) Update(w monitor.Window) {
	pkt := p.source.Last()
	if pkt.Type != driver.UBXPacket || len(pkt.Data) < driver.UBXHeaderLen {
		return
	}
	p.counts[uint16(pkt.Data[2])<<8|uint16(pkt.Data[3])]++
	_, cols := w.Size()
	w.SetLine(rowMessages, p.tally(cols))

	pvt, ok := DecodePVT(pkt.Data)
	if !ok {
		return
	}
	when := "n/a"
	if pvt.ValidTime {
		when = fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d.%03dZ",
			pvt.Year, pvt.Month, pvt.Day, pvt.Hour, pvt.Min, pvt.Sec, max(pvt.Nano, 0)/1000000)
	}
	fix := "unknown"
	if pvt.FixType < len(fixTypes) {
		fix = fixTypes[pvt.FixType]
	}
	okFlag := "N"
	if pvt.FixOK {
		okFlag = "Y"
	}
	w.SetLine(rowTime, "Time:    "+when)
	w.SetLine(rowFix, fmt.Sprintf("Fix:     %s  ok %s  sats %d", fix, okFlag, pvt.NumSV))
	w.SetLine(rowLat, fmt.Sprintf("Lat:     %12.7f", pvt.Lat))
	w.SetLine(rowLon, fmt.Sprintf("Lon:     %12.7f", pvt.Lon))
	w.SetLine(rowAlt, fmt.Sprintf("Alt:     HAE %.3f m  MSL %.3f m", pvt.Height, pvt.HMSL))
	w.SetLine(rowAcc, fmt.Sprintf("Acc:     h %.3f m  v %.3f m", pvt.HAcc, pvt.VAcc))
	w.SetLine(rowVel, fmt.Sprintf("Vel:     N %.3f  E %.3f  D %.3f  gs %.3f m/s  hdg %.1f",
		pvt.VelN, pvt.VelE, pvt.VelD, pvt.GroundSpd, pvt.Heading))
	w.SetLine(rowDOP, fmt.Sprintf("PDOP:    %.2f", pvt.PDOP))
}

func (p *Panel) tally(cols int) string {
	keys := make([]int, 0, len(p.counts))
	for k := range p.counts {
		keys = append(keys, int(k))
	}
	sort.Ints(keys)
	var b strings.Builder
	for _, k := range keys {
		entry := fmt.Sprintf(" %02x/%02x x%d", k>>8, k&0xff, p.counts[uint16(k)])
		if cols > 0 && b.Len()+len(entry) > cols {
			break
		}
		b.WriteString(entry)
	}
	return b.String()
}

// Handler binds the panel to the sticky u-blox descriptor.
func Handler(source Source) *monitor.Handler {
	p := NewPanel(source)
	return &monitor.Handler{
		Driver:  driver.UBlox,
		MinRows: Height,
		MinCols: Width,
		Init:    p.Init,
		Update:  p.Update,
	}
}

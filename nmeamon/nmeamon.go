// Package nmeamon provides the panel for NMEA 0183 traffic and the clones of
// it bound to NMEA-family drivers.
package nmeamon

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gpsmon/driver"
	"gpsmon/monitor"
	"gpsmon/session"
)

const (
	// Width and Height are the panel's minimum size.
	Width  = 80
	Height = 21

	rowSentences = 1
	rowInterval  = 2
	rowTime      = 4
	rowLat       = 5
	rowLon       = 6
	rowGGA       = 8
	rowGSA       = 9
	rowGST       = 10
)

// Source is the session state the panel renders.
type Source interface {
	Last() session.Packet
	FixTime() time.Time
}

// Panel is the NMEA device window. One panel may back several handlers since
// only one handler is active at a time.
type Panel struct {
	source Source
	now    func() time.Time

	sentences string
	lastTick  time.Time
	longest   time.Duration
	slowest   string
	lat, lon  string
}

// NewPanel returns a panel reading from source.
func NewPanel(source Source) *Panel {
	return &Panel{source: source, now: time.Now}
}

// Init resets the sentence list and interval tracking.
func (p *Panel) Init(w monitor.Window) bool {
	p.lastTick = p.now()
	p.sentences = ""
	p.longest = 0
	p.slowest = ""
	p.lat, p.lon = "n/a", "n/a"
	w.Clear()
	w.SetLine(0, "Sentences:")
	w.SetLine(rowTime-1, "Cooked PVT")
	return true
}

// Update folds the latest sentence into the window.
func (p *Panel) Update(w monitor.Window) {
	pkt := p.source.Last()
	if len(pkt.Data) == 0 || pkt.Data[0] != '$' {
		return
	}
	fields := Fields(pkt.Data)
	if len(fields) == 0 || fields[0] == "" {
		return
	}
	tag := fields[0]
	_, cols := w.Size()

	p.noteSentence(tag, cols)
	w.SetLine(rowSentences, p.sentences)

	now := p.now()
	if d := now.Sub(p.lastTick); d > 0 && d > p.longest {
		p.longest = d
		p.slowest = tag
	}
	p.lastTick = now
	if p.slowest != "" {
		w.SetLine(rowInterval, fmt.Sprintf("Longest interval: %s (%s)", p.longest.Round(time.Millisecond), p.slowest))
	}

	if len(tag) < 5 {
		return
	}
	switch tag[2:] {
	case "RMC":
		p.cookedPVT(w, fields)
	case "GGA":
		w.SetLine(rowGGA, fmt.Sprintf("GGA: quality %s  sats %s  HDOP %s  alt %s %s",
			field(fields, 6), field(fields, 7), field(fields, 8), field(fields, 9), field(fields, 10)))
	case "GSA":
		w.SetLine(rowGSA, fmt.Sprintf("GSA: mode %s  PDOP %s  HDOP %s  VDOP %s",
			field(fields, 2), field(fields, 15), field(fields, 16), field(fields, 17)))
	case "GST":
		w.SetLine(rowGST, fmt.Sprintf("GST: rms %s  lat err %s  lon err %s  alt err %s",
			field(fields, 2), field(fields, 6), field(fields, 7), field(fields, 8)))
	}
}

// noteSentence appends tag to the sentence list. A list that no longer fits
// the window ends in "...".
func (p *Panel) noteSentence(tag string, cols int) {
	if strings.Contains(p.sentences, tag) || strings.HasSuffix(p.sentences, "...") {
		return
	}
	if cols <= 0 || len(p.sentences)+len(tag)+1 < cols-2 {
		p.sentences += " " + tag
		return
	}
	s := p.sentences
	if len(s) > 3 {
		s = s[:len(s)-3]
	}
	p.sentences = s + "..."
}

func (p *Panel) cookedPVT(w monitor.Window, fields []string) {
	fix := p.source.FixTime()
	when := "n/a"
	if fix.Unix() > 0 {
		when = fix.UTC().Format("2006-01-02T15:04:05.000Z")
	}
	p.lat, p.lon = "n/a", "n/a"
	if field(fields, 2) == "A" {
		if v, ok := parseDegrees(field(fields, 3)); ok {
			p.lat = degreesMinutes(v, field(fields, 4))
		}
		if v, ok := parseDegrees(field(fields, 5)); ok {
			p.lon = degreesMinutes(v, field(fields, 6))
		}
	}
	w.SetLine(rowTime, "Time: "+when)
	w.SetLine(rowLat, "Lat:  "+p.lat)
	w.SetLine(rowLon, "Lon:  "+p.lon)
}

// Fields splits a sentence into its comma-separated fields with the leading
// '$', the checksum and the line ending removed.
func Fields(sentence []byte) []string {
	s := strings.TrimRight(string(sentence), "\r\n")
	s = strings.TrimPrefix(s, "$")
	if i := strings.IndexByte(s, '*'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func field(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

// parseDegrees converts NMEA dddmm.mmmm to decimal degrees.
func parseDegrees(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	deg := math.Floor(v / 100)
	return deg + (v-deg*100)/60, true
}

func degreesMinutes(v float64, hemi string) string {
	deg := math.Floor(v)
	return fmt.Sprintf("%3d %07.4f' %s", int(deg), (v-deg)*60, hemi)
}

// Handlers returns the NMEA panel bound to every NMEA-family driver.
func Handlers(source Source, device Device) []*monitor.Handler {
	panel := NewPanel(source)
	ashtech := NewAshtech(device)
	var out []*monitor.Handler
	for _, d := range []*driver.Descriptor{
		driver.NMEA0183,
		driver.GarminNMEA,
		driver.Ashtech,
		driver.FV18,
		driver.GPSClock,
		driver.MTK3301,
		driver.AIVDM,
	} {
		h := &monitor.Handler{
			Driver:  d,
			MinRows: Height,
			MinCols: Width,
			Init:    panel.Init,
			Update:  panel.Update,
		}
		if d == driver.Ashtech {
			h.Command = ashtech.Command
		}
		out = append(out, h)
	}
	return out
}

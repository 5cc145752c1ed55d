package session

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"gpsmon/driver"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	navPVTSize  = 92
	navPVTYear  = 4
	navPVTMonth = 6
	navPVTDay   = 7
	navPVTHour  = 8
	navPVTMin   = 9
	navPVTSec   = 10
	navPVTValid = 11
	navPVTNano  = 16

	navPVTValidTime = 1 << 1
)

// FixTime extracts the UTC time of a fix from RMC sentences, UBX NAV-PVT and
// gpsd TPV reports.
func FixTime(p Packet) (time.Time, bool) {
	switch p.Type {
	case driver.NMEAPacket:
		line := strings.TrimSpace(string(p.Data))
		if len(line) < 6 || line[3:6] != "RMC" {
			return time.Time{}, false
		}
		return parseRMC(line)
	case driver.UBXPacket:
		return navPVTTime(p.Data)
	case driver.JSONPacket:
		return tpvTime(p.Data)
	}
	return time.Time{}, false
}

// parseRMC reads field 1 hhmmss.ss, field 2 status, field 9 ddmmyy.
func parseRMC(line string) (time.Time, bool) {
	if i := strings.IndexByte(line, '*'); i >= 0 {
		line = line[:i]
	}
	parts := strings.Split(line, ",")
	if len(parts) < 10 || parts[2] != "A" {
		return time.Time{}, false
	}
	timeStr, dateStr := parts[1], parts[9]
	if len(timeStr) < 6 || len(dateStr) < 6 {
		return time.Time{}, false
	}
	hh, err1 := strconv.Atoi(timeStr[0:2])
	mm, err2 := strconv.Atoi(timeStr[2:4])
	ss, err3 := strconv.Atoi(timeStr[4:6])
	day, err4 := strconv.Atoi(dateStr[0:2])
	month, err5 := strconv.Atoi(dateStr[2:4])
	year, err6 := strconv.Atoi(dateStr[4:6])
	for _, err := range []error{err1, err2, err3, err4, err5, err6} {
		if err != nil {
			return time.Time{}, false
		}
	}
	nsec := 0
	if len(timeStr) > 7 && timeStr[6] == '.' {
		frac := timeStr[7:]
		if len(frac) > 9 {
			frac = frac[:9]
		}
		if v, err := strconv.Atoi(frac); err == nil {
			for i := len(frac); i < 9; i++ {
				v *= 10
			}
			nsec = v
		}
	}
	if year < 80 {
		year += 2000
	} else {
		year += 1900
	}
	return time.Date(year, time.Month(month), day, hh, mm, ss, nsec, time.UTC), true
}

func navPVTTime(packet []byte) (time.Time, bool) {
	if len(packet) < driver.UBXHeaderLen+navPVTSize+2 ||
		packet[2] != driver.UBXClassNAV || packet[3] != driver.UBXIDNavPVT {
		return time.Time{}, false
	}
	p := packet[driver.UBXHeaderLen:]
	if p[navPVTValid]&navPVTValidTime == 0 {
		return time.Time{}, false
	}
	nano := int32(binary.LittleEndian.Uint32(p[navPVTNano:]))
	if nano < 0 {
		nano = 0
	}
	if nano > 999999999 {
		nano = 999999999
	}
	return time.Date(
		int(binary.LittleEndian.Uint16(p[navPVTYear:])),
		time.Month(p[navPVTMonth]),
		int(p[navPVTDay]),
		int(p[navPVTHour]),
		int(p[navPVTMin]),
		int(p[navPVTSec]),
		int(nano),
		time.UTC,
	), true
}

type tpvReport struct {
	Class string `json:"class"`
	Mode  int    `json:"mode"`
	Time  string `json:"time"`
}

func tpvTime(data []byte) (time.Time, bool) {
	if !bytes.HasPrefix(data, []byte(`{"class":"TPV"`)) {
		return time.Time{}, false
	}
	var r tpvReport
	if err := json.Unmarshal(bytes.TrimSpace(data), &r); err != nil || r.Time == "" || r.Mode < 2 {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, r.Time)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

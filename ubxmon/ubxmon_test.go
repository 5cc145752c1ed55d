package ubxmon

import (
	"encoding/binary"
	"strings"
	"testing"

	"gpsmon/driver"
	"gpsmon/session"
)

type fakeWindow struct {
	lines map[int]string
}

func (w *fakeWindow) Size() (int, int) { return Height, Width }
func (w *fakeWindow) Clear()           { w.lines = map[int]string{} }
func (w *fakeWindow) SetLine(row int, text string) {
	if w.lines == nil {
		w.lines = map[int]string{}
	}
	w.lines[row] = text
}

type fakeSource struct{ last session.Packet }

func (s *fakeSource) Last() session.Packet { return s.last }

func navPVT() []byte {
	p := make([]byte, pvtLen)
	le := binary.LittleEndian
	le.PutUint16(p[4:], 2024)
	p[6], p[7], p[8], p[9], p[10] = 3, 1, 12, 30, 45
	p[11] = 0x07
	le.PutUint32(p[16:], 250000000)
	p[20] = 3
	p[21] = 0x01
	p[23] = 11
	lon, lat := int32(114500000), int32(481173000)
	le.PutUint32(p[24:], uint32(lon))
	le.PutUint32(p[28:], uint32(lat))
	le.PutUint32(p[32:], 592400)
	le.PutUint32(p[36:], 545400)
	le.PutUint32(p[40:], 1500)
	le.PutUint16(p[76:], 132)
	return driver.UBXEncode(driver.UBXClassNAV, driver.UBXIDNavPVT, p)
}

func TestDecodePVT(t *testing.T) {
	pvt, ok := DecodePVT(navPVT())
	if !ok {
		t.Fatal("DecodePVT rejected a valid frame")
	}
	if pvt.Year != 2024 || pvt.Sec != 45 || !pvt.ValidTime || pvt.FixType != 3 || pvt.NumSV != 11 {
		t.Fatalf("pvt = %+v", pvt)
	}
	if pvt.Lat < 48.1172 || pvt.Lat > 48.1174 || pvt.HMSL != 545.4 || pvt.HAcc != 1.5 {
		t.Fatalf("position = %+v", pvt)
	}

	bad := navPVT()
	bad[len(bad)-1] ^= 0xff
	if _, ok := DecodePVT(bad); ok {
		t.Fatal("bad checksum accepted")
	}
	other := driver.UBXEncode(driver.UBXClassCFG, driver.UBXIDCfgRAT, make([]byte, 6))
	if _, ok := DecodePVT(other); ok {
		t.Fatal("CFG-RATE decoded as NAV-PVT")
	}
}

func TestPanelRendersPVT(t *testing.T) {
	src := &fakeSource{}
	h := Handler(src)
	if !h.Driver.Sticky() {
		t.Fatal("u-blox panel should be bound to a sticky descriptor")
	}
	w := &fakeWindow{}
	if !h.Init(w) {
		t.Fatal("Init failed")
	}
	src.last = session.Packet{Type: driver.UBXPacket, Data: navPVT()}
	h.Update(w)
	src.last = session.Packet{Type: driver.UBXPacket, Data: driver.UBXEncode(driver.UBXClassCFG, driver.UBXIDCfgRAT, make([]byte, 6))}
	h.Update(w)

	if got := w.lines[rowTime]; got != "Time:    2024-03-01T12:30:45.250Z" {
		t.Fatalf("time = %q", got)
	}
	if got := w.lines[rowFix]; got != "Fix:     3D  ok Y  sats 11" {
		t.Fatalf("fix = %q", got)
	}
	if got := w.lines[rowDOP]; got != "PDOP:    1.32" {
		t.Fatalf("dop = %q", got)
	}
	if got := w.lines[rowMessages]; got != " 01/07 x1 06/08 x1" {
		t.Fatalf("tally = %q", got)
	}

	h.Init(w)
	if strings.TrimSpace(w.lines[rowMessages]) != "" {
		t.Fatal("Init should reset the tally")
	}
}

func TestPanelIgnoresText(t *testing.T) {
	src := &fakeSource{last: session.Packet{Type: driver.NMEAPacket, Data: []byte("$GPTXT,01,01,02,u-blox*00\r\n")}}
	p := NewPanel(src)
	w := &fakeWindow{}
	p.Init(w)
	p.Update(w)
	if len(p.counts) != 0 {
		t.Fatalf("counts = %v", p.counts)
	}
}

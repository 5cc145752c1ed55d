package driver

import (
	"bytes"
	"errors"
	"testing"
)

func TestCapabilities(t *testing.T) {
	if got := JSONPassthrough.Capabilities(); got != 0 {
		t.Fatalf("passthrough caps = %b, want none", got)
	}
	caps := UBlox.Capabilities()
	if !caps.Has(CapMode | CapSpeed | CapRate | CapControl) {
		t.Fatalf("u-blox caps = %b", caps)
	}
	if NMEA0183.Capabilities().Has(CapSpeed) {
		t.Fatal("generic NMEA should not switch speed")
	}
	var nilDesc *Descriptor
	if nilDesc.Capabilities() != 0 || nilDesc.Sticky() {
		t.Fatal("nil descriptor should have no capabilities")
	}
}

func TestUniqueNames(t *testing.T) {
	seen := map[string]bool{}
	for _, d := range All() {
		if seen[d.Name] {
			t.Fatalf("duplicate descriptor name %q", d.Name)
		}
		seen[d.Name] = true
	}
}

func TestMatchSubstring(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{in: "u-blox", want: 1},
		{in: "NMEA", want: 2},
		{in: "nmea", want: 0},
		{in: "MTK", want: 1},
		{in: "zzz", want: 0},
	}
	for _, tc := range tests {
		if got := MatchSubstring(All(), tc.in); len(got) != tc.want {
			t.Fatalf("MatchSubstring(%q) = %d matches, want %d", tc.in, len(got), tc.want)
		}
	}
	if got := MatchPrefix(All(), "San"); len(got) != 1 || got[0] != FV18 {
		t.Fatalf("MatchPrefix(San) = %v", got)
	}
}

func TestNMEAFrame(t *testing.T) {
	got := string(NMEAFrame([]byte("$PMTK220,1000")))
	if got != "$PMTK220,1000*1F\r\n" {
		t.Fatalf("frame = %q", got)
	}
	got = string(NMEAFrame([]byte("$PMTK220,1000*00\r\n")))
	if got != "$PMTK220,1000*1F\r\n" {
		t.Fatalf("reframe = %q", got)
	}
	if got := string(NMEAFrame([]byte("raw"))); got != "raw\r\n" {
		t.Fatalf("unchecked frame = %q", got)
	}
}

func TestMTKRate(t *testing.T) {
	var buf bytes.Buffer
	if err := mtkRate(&buf, 0.2); err != nil {
		t.Fatalf("rate: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("$PMTK220,200*")) {
		t.Fatalf("rate sentence = %q", buf.String())
	}
	if err := mtkRate(&buf, 60); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestUBXEncodeVerify(t *testing.T) {
	pkt := UBXEncode(UBXClassCFG, UBXIDCfgRAT, []byte{0xe8, 0x03, 0x01, 0x00, 0x01, 0x00})
	if !UBXVerify(pkt) {
		t.Fatalf("encoded packet fails verify: % x", pkt)
	}
	if pkt[len(pkt)-2] != 0x01 || pkt[len(pkt)-1] != 0x39 {
		t.Fatalf("checksum = %02x %02x, want 01 39", pkt[len(pkt)-2], pkt[len(pkt)-1])
	}
	pkt[7] ^= 0xff
	if UBXVerify(pkt) {
		t.Fatal("corrupted packet passed verify")
	}
}

func TestUBXSpeedRejectsBadLine(t *testing.T) {
	var buf bytes.Buffer
	if err := ubxSpeed(&buf, LineSettings{Baud: 9600, WordLength: 9, Parity: 'N', StopBits: 1}); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatal("rejected speed change wrote bytes")
	}
	if err := ubxSpeed(&buf, LineSettings{Baud: 38400, WordLength: 8, Parity: 'N', StopBits: 1}); err != nil {
		t.Fatalf("speed: %v", err)
	}
	if !UBXVerify(buf.Bytes()) {
		t.Fatal("speed frame invalid")
	}
}

func TestHexPack(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
		err  error
	}{
		{in: "b562", want: []byte{0xb5, 0x62}},
		{in: "B5 62 06", want: []byte{0xb5, 0x62, 0x06}},
		{in: "zz", err: ErrHexDigit},
		{in: "abc", err: ErrHexOddLength},
		{in: string(bytes.Repeat([]byte("00"), MaxPacked+1)), err: ErrHexTooLong},
	}
	for _, tc := range tests {
		got, err := HexPack(tc.in)
		if tc.err != nil {
			if !errors.Is(err, tc.err) {
				t.Fatalf("HexPack(%.10q) err = %v, want %v", tc.in, err, tc.err)
			}
			continue
		}
		if err != nil || !bytes.Equal(got, tc.want) {
			t.Fatalf("HexPack(%q) = % x, %v", tc.in, got, err)
		}
	}
}

func TestCommandLetters(t *testing.T) {
	if got := UBlox.CommandLetters(); got != "i l q ^S ^Q n s c x" {
		t.Fatalf("u-blox letters = %q", got)
	}
	if got := AIVDM.CommandLetters(); got != "i l q ^S ^Q        " {
		t.Fatalf("AIVDM letters = %q", got)
	}
}

package offset

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind classifies a relay JSON object.
type Kind int

const (
	KindOther Kind = iota
	KindTOFF
	KindPPS
)

var (
	prefixTOFF = []byte(`{"class":"TOFF",`)
	prefixPPS  = []byte(`{"class":"PPS",`)

	ErrIllFormed = errors.New("ill-formed timing packet")
)

// Classify looks only at the object's leading class member.
func Classify(packet []byte) Kind {
	switch {
	case bytes.HasPrefix(packet, prefixTOFF):
		return KindTOFF
	case bytes.HasPrefix(packet, prefixPPS):
		return KindPPS
	}
	return KindOther
}

type timingReport struct {
	Class     string `json:"class"`
	Device    string `json:"device"`
	RealSec   *int64 `json:"real_sec"`
	RealNsec  int64  `json:"real_nsec"`
	ClockSec  *int64 `json:"clock_sec"`
	ClockNsec int64  `json:"clock_nsec"`
	Precision int    `json:"precision"`
}

// Decode parses a TOFF or PPS object into a sample.
func Decode(packet []byte) (Kind, Sample, error) {
	kind := Classify(packet)
	if kind == KindOther {
		return kind, Sample{}, nil
	}
	var r timingReport
	if err := json.Unmarshal(bytes.TrimSpace(packet), &r); err != nil {
		return kind, Sample{}, fmt.Errorf("%w: %v", ErrIllFormed, err)
	}
	if r.RealSec == nil || r.ClockSec == nil {
		return kind, Sample{}, fmt.Errorf("%w: missing real_sec or clock_sec", ErrIllFormed)
	}
	if r.RealNsec < 0 || r.RealNsec >= int64(time.Second) || r.ClockNsec < 0 || r.ClockNsec >= int64(time.Second) {
		return kind, Sample{}, fmt.Errorf("%w: nanoseconds out of range", ErrIllFormed)
	}
	return kind, Sample{
		Clock: time.Unix(*r.ClockSec, r.ClockNsec).UTC(),
		Real:  time.Unix(*r.RealSec, r.RealNsec).UTC(),
	}, nil
}

func (k Kind) String() string {
	switch k {
	case KindTOFF:
		return "TOFF"
	case KindPPS:
		return "PPS"
	}
	return "other"
}

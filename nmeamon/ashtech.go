package nmeamon

import (
	"fmt"
	"log"
	"time"

	"gpsmon/driver"
	"gpsmon/monitor"
)

// Ashtech speed codes for $PASHS,INI.
const (
	ashtechSpeed9600  = 5
	ashtechSpeed57600 = 8
)

// Device is where private panel commands are written.
type Device interface {
	Write(p []byte) (int, error)
	Writable(fn func() error) error
}

// Ashtech implements the Ashtech panel's private commands: N selects the
// normal sentence set at 9600 baud, R adds the raw measurement sentences at
// 57600.
type Ashtech struct {
	device Device
	// Reboot is how long the receiver needs after $PASHS,INI.
	Reboot time.Duration
	sleep  func(time.Duration)
}

func NewAshtech(device Device) *Ashtech {
	return &Ashtech{device: device, Reboot: 6 * time.Second, sleep: time.Sleep}
}

var ashtechNormal = []string{
	"$PASHS,NME,ALL,A,OFF",
	"$PASHS,NME,ALL,B,OFF",
	"$PASHS,NME,GGA,A,ON",
	"$PASHS,NME,GSA,A,ON",
	"$PASHS,NME,GSV,A,ON",
	"$PASHS,NME,RMC,A,ON",
	"$PASHS,NME,ZDA,A,ON",
}

var ashtechRaw = []string{
	"$PASHS,NME,POS,A,ON",
	"$PASHS,NME,SAT,A,ON",
	"$PASHS,NME,MCA,A,ON",
	"$PASHS,NME,PBN,A,ON",
	"$PASHS,NME,SNV,A,ON,10",
	"$PASHS,NME,XMG,A,ON",
}

// Command handles N and R.
func (a *Ashtech) Command(line string) monitor.CommandStatus {
	if line == "" || a.device == nil {
		return monitor.CommandUnknown
	}
	var (
		port  int
		extra []string
	)
	switch line[0] {
	case 'N':
		port = ashtechSpeed9600
	case 'R':
		port, extra = ashtechSpeed57600, ashtechRaw
	default:
		return monitor.CommandUnknown
	}
	err := a.device.Writable(func() error {
		if err := a.send(ashtechNormal...); err != nil {
			return err
		}
		if err := a.send(fmt.Sprintf("$PASHS,INI,%d,%d,,,0,", port, ashtechSpeed9600)); err != nil {
			return err
		}
		a.sleep(a.Reboot)
		if err := a.send("$PASHS,WAS,ON"); err != nil {
			return err
		}
		return a.send(extra...)
	})
	if err != nil {
		log.Printf("nmeamon: ashtech %c: %v", line[0], err)
	}
	return monitor.CommandMatch
}

func (a *Ashtech) send(sentences ...string) error {
	for _, s := range sentences {
		if _, err := driver.NMEAWrite(a.device, []byte(s)); err != nil {
			return err
		}
	}
	return nil
}

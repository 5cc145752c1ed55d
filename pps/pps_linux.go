//go:build linux

package pps

import (
	"encoding/binary"
	"errors"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux PPS API (include/uapi/linux/pps.h):
// PPS_FETCH = _IOWR('p', 0xa4, struct pps_fdata *)
// pps_fdata { pps_kinfo info; pps_ktime timeout; }
// pps_kinfo { u32 assert_sequence; u32 clear_sequence; pps_ktime assert_tu; pps_ktime clear_tu; int current_mode; }
// pps_ktime { s64 sec; s32 nsec; u32 flags; }
const (
	ppsFetch      = 0xc00070a4 | uintptr(unsafe.Sizeof(uintptr(0)))<<16
	ppsFdataSize  = 64
	ppsAssertSeq  = 0
	ppsAssertSec  = 8
	ppsAssertNsec = 16
	ppsTimeout    = 48
)

var errTimeout = errors.New("pps fetch timed out")

type kernelSource struct {
	f   *os.File
	buf [ppsFdataSize]byte
}

func openKernel(path string) (source, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		// Some PPS devices are read-only to unprivileged users.
		f, err = os.OpenFile(path, os.O_RDONLY, 0)
		if err != nil {
			return nil, err
		}
	}
	return &kernelSource{f: f}, nil
}

func (k *kernelSource) Fetch(timeout time.Duration) (Edge, error) {
	clear(k.buf[:])
	le := binary.LittleEndian
	le.PutUint64(k.buf[ppsTimeout:], uint64(timeout/time.Second))
	le.PutUint32(k.buf[ppsTimeout+8:], uint32(timeout%time.Second))
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, k.f.Fd(), ppsFetch, uintptr(unsafe.Pointer(&k.buf[0])))
	switch errno {
	case 0:
	case unix.ETIMEDOUT, unix.EINTR:
		return Edge{}, errTimeout
	default:
		return Edge{}, errno
	}
	sec := int64(le.Uint64(k.buf[ppsAssertSec:]))
	nsec := int64(int32(le.Uint32(k.buf[ppsAssertNsec:])))
	if sec == 0 && nsec == 0 {
		return Edge{}, errTimeout
	}
	return Edge{
		Seq:    le.Uint32(k.buf[ppsAssertSeq:]),
		Assert: time.Unix(sec, nsec).UTC(),
	}, nil
}

func (k *kernelSource) Close() error {
	return k.f.Close()
}

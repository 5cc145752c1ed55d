// Package pps watches a kernel PPS device and reports each assert edge as a
// pulse sample.
package pps

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gpsmon/offset"
)

// ErrUnsupported is returned by Activate where the kernel PPS API is missing.
var ErrUnsupported = errors.New("kernel PPS not supported on this platform")

// Edge is one assert event.
type Edge struct {
	Seq    uint32
	Assert time.Time
}

// source is an open PPS device.
type source interface {
	Fetch(timeout time.Duration) (Edge, error)
	Close() error
}

// Pulser receives pulse samples.
type Pulser interface {
	Pulse(s offset.Sample)
}

// Watcher runs the PPS thread.
type Watcher struct {
	path   string
	pulser Pulser
	open   func(path string) (source, error)

	mu      sync.Mutex
	src     source
	stop    chan struct{}
	done    chan struct{}
	lastSeq uint32
	seen    bool
}

// New returns an inactive watcher for the device at path.
func New(path string, pulser Pulser) *Watcher {
	return &Watcher{path: path, pulser: pulser, open: openKernel}
}

// Activate opens the device and starts watching. Activating a running
// watcher is a no-op.
func (w *Watcher) Activate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.src != nil {
		return nil
	}
	src, err := w.open(w.path)
	if err != nil {
		return fmt.Errorf("pps %s: %w", w.path, err)
	}
	w.src = src
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.seen = false
	go w.run(src, w.stop, w.done)
	log.Printf("pps: watching %s", w.path)
	return nil
}

// Deactivate stops the thread and closes the device. It waits at most one
// fetch timeout for the thread to exit.
func (w *Watcher) Deactivate() {
	w.mu.Lock()
	src, stop, done := w.src, w.stop, w.done
	w.src = nil
	w.mu.Unlock()
	if src == nil {
		return
	}
	close(stop)
	<-done
	if err := src.Close(); err != nil {
		log.Printf("pps: closing %s: %v", w.path, err)
	}
}

const fetchTimeout = time.Second

func (w *Watcher) run(src source, stop, done chan struct{}) {
	defer close(done)
	failures := 0
	for {
		select {
		case <-stop:
			return
		default:
		}
		edge, err := src.Fetch(fetchTimeout)
		if err != nil {
			if errors.Is(err, errTimeout) {
				continue
			}
			failures++
			if failures == 1 || failures%60 == 0 {
				log.Printf("pps: fetch %s: %v (failures=%d)", w.path, err, failures)
			}
			select {
			case <-stop:
				return
			case <-time.After(fetchTimeout):
			}
			continue
		}
		failures = 0
		w.edge(edge)
	}
}

// edge reports an assert that the kernel has not shown us before.
func (w *Watcher) edge(e Edge) {
	if e.Assert.IsZero() || (w.seen && e.Seq == w.lastSeq) {
		return
	}
	w.seen = true
	w.lastSeq = e.Seq
	if w.pulser != nil {
		w.pulser.Pulse(Sample(e))
	}
}

// Sample pairs the local assert time (clock) with the second boundary it
// marks (real), the same orientation gpsd uses for relayed PPS reports. The
// pulse offset is how far the edge landed after that boundary.
func Sample(e Edge) offset.Sample {
	return offset.Sample{Clock: e.Assert, Real: e.Assert.Round(time.Second)}
}

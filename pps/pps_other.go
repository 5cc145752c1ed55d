//go:build !linux

package pps

import "errors"

var errTimeout = errors.New("pps fetch timed out")

func openKernel(string) (source, error) {
	return nil, ErrUnsupported
}

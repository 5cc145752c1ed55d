package driver

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// MaxPacked bounds the decoded size of an operator-entered hex string.
const MaxPacked = 2048

var (
	ErrHexOddLength = errors.New("odd number of hex digits")
	ErrHexTooLong   = errors.New("hex string too long")
	ErrHexDigit     = errors.New("invalid hex digit")
)

// HexPack decodes an operator-entered hex string. Embedded blanks are ignored.
func HexPack(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if len(s)%2 != 0 {
		return nil, ErrHexOddLength
	}
	if len(s)/2 > MaxPacked {
		return nil, ErrHexTooLong
	}
	out, err := hex.DecodeString(s)
	if err != nil {
		var bad hex.InvalidByteError
		if errors.As(err, &bad) {
			return nil, fmt.Errorf("%w %q", ErrHexDigit, byte(bad))
		}
		return nil, fmt.Errorf("%w: %v", ErrHexDigit, err)
	}
	return out, nil
}

package protocol

import (
	pkgerrors "github.com/pkg/errors"
)

// LidOpenCodes is the set of lid state codes treated as "lid opened".
//
// Only a handful of codes have been observed on real hardware, and the
// default table was derived from a single white AirPods case. It is kept
// overridable until it has been validated on more devices.
type LidOpenCodes [256]bool

// DefaultLidOpenCodes treats 0x0-0x7 as opened and everything else as closed.
var DefaultLidOpenCodes = MustLidOpenCodes(0, 1, 2, 3, 4, 5, 6, 7)

// NewLidOpenCodes builds a table from a list of codes.
func NewLidOpenCodes(codes ...int) (LidOpenCodes, error) {
	var t LidOpenCodes
	for _, c := range codes {
		if c < 0 || c > 0xFF {
			return LidOpenCodes{}, pkgerrors.Errorf("lid state code %d out of range [0, 255]", c)
		}
		t[c] = true
	}
	return t, nil
}

// MustLidOpenCodes is like NewLidOpenCodes but panics on invalid input.
func MustLidOpenCodes(codes ...int) LidOpenCodes {
	t, err := NewLidOpenCodes(codes...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t LidOpenCodes) Contains(code uint8) bool {
	return t[code]
}

// Codes lists the codes in the table in ascending order.
func (t LidOpenCodes) Codes() []int {
	var codes []int
	for c, ok := range t {
		if ok {
			codes = append(codes, c)
		}
	}
	return codes
}

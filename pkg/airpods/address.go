package airpods

import (
	"fmt"
	"hash/fnv"
	"net"

	pkgerrors "github.com/pkg/errors"
)

// FormatAddress renders a 48-bit Bluetooth address as AA:BB:CC:DD:EE:FF.
func FormatAddress(addr uint64) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		byte(addr>>40), byte(addr>>32), byte(addr>>24),
		byte(addr>>16), byte(addr>>8), byte(addr))
}

// ParseAddress parses a colon or dash separated 48-bit address.
func ParseAddress(s string) (uint64, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, "invalid bluetooth address %q", s)
	}
	if len(hw) != 6 {
		return 0, pkgerrors.Errorf("invalid bluetooth address %q: expected 6 bytes, got %d", s, len(hw))
	}
	var addr uint64
	for _, b := range hw {
		addr = addr<<8 | uint64(b)
	}
	return addr, nil
}

// HashAddress returns a short stable digest of addr, for logs.
func HashAddress(addr uint64) string {
	h := fnv.New32a()
	var b [8]byte
	for i := range b {
		b[i] = byte(addr >> (8 * i))
	}
	_, _ = h.Write(b[:])
	return fmt.Sprintf("%08x", h.Sum32())
}

// Package scanner feeds BLE advertisements from the host adapter into the
// daemon. Backends only translate library records into airpods.ReceivedData.
package scanner

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"sort"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/podwatch/pkg/airpods"
)

const (
	// Bluetooth uses the adapter through the OS Bluetooth stack.
	Bluetooth = "bluetooth"
	// HCI opens the first HCI device directly. Linux only, needs root.
	HCI = "hci"
)

// Handler is called for every advertisement carrying manufacturer data, on
// the backend's goroutine.
type Handler func(data airpods.ReceivedData)

type Scanner interface {
	// Run scans until ctx is done or the adapter fails. It returns nil when
	// ctx is done.
	Run(ctx context.Context, h Handler) error
}

var backends = map[string]func() Scanner{
	Bluetooth: newBluetoothScanner,
	HCI:       newHCIScanner,
}

// Names lists the available backends.
func Names() []string {
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New returns the backend called name.
func New(name string) (Scanner, error) {
	f, ok := backends[name]
	if !ok {
		return nil, pkgerrors.Errorf("unknown scanner %q, available: %v", name, Names())
	}
	return f(), nil
}

// addressFromString turns a backend address into the tracker's numeric form.
// Platforms that hide the MAC (macOS gives a per-host UUID) get a stable hash
// instead, which is enough to tell advertisers apart.
func addressFromString(s string) uint64 {
	if addr, err := airpods.ParseAddress(s); err == nil {
		return addr
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// splitManufacturerData parses a raw manufacturer specific data field, which
// starts with the little-endian company identifier.
func splitManufacturerData(raw []byte) (map[uint16][]byte, bool) {
	if len(raw) < 2 {
		return nil, false
	}
	return map[uint16][]byte{
		binary.LittleEndian.Uint16(raw): raw[2:],
	}, true
}

func newReceivedData(addr string, rssi int, md map[uint16][]byte) airpods.ReceivedData {
	return airpods.ReceivedData{
		RSSI:             int16(rssi),
		Timestamp:        time.Now(),
		Address:          addressFromString(addr),
		ManufacturerData: md,
	}
}

// Package airpodstest builds proximity pairing advertisements for tests.
package airpodstest

import (
	"encoding/binary"
	"time"

	"github.com/charlie0129/podwatch/pkg/airpods"
	"github.com/charlie0129/podwatch/pkg/protocol"
)

// NoBattery marks a battery level as not reported.
const NoBattery = -1

// Packet describes a message from the point of view of the broadcasting
// earphone. Battery levels are wire levels in [0, 10] or NoBattery.
type Packet struct {
	ModelID uint16
	Left    bool // broadcast by the left earphone

	CurrBattery int
	AnotBattery int
	CaseBattery int

	CurrCharging bool
	AnotCharging bool
	CaseCharging bool

	CurrInEar  bool
	AnotInEar  bool
	BothInCase bool

	LidState uint8
	Color    protocol.Color
}

// Pods returns a packet for AirPods 2 with every battery reported.
func Pods(left bool, curr, anot, caseBattery int) Packet {
	return Packet{
		ModelID:     0x200F,
		Left:        left,
		CurrBattery: curr,
		AnotBattery: anot,
		CaseBattery: caseBattery,
		LidState:    0x31,
	}
}

func nibble(v int) byte {
	if v < 0 {
		return 0xF
	}
	return byte(v)
}

func flag(b bool, bit int) byte {
	if b {
		return 1 << bit
	}
	return 0
}

// Bytes encodes p.
func (p Packet) Bytes() []byte {
	b := make([]byte, protocol.PacketSize)
	b[0] = byte(protocol.ProximityPairing)
	b[1] = protocol.PacketSize - 2
	b[2] = 0x01
	binary.LittleEndian.PutUint16(b[3:5], p.ModelID)
	b[5] = flag(p.CurrInEar, 1) | flag(p.BothInCase, 2) | flag(p.AnotInEar, 3) | flag(p.Left, 5)
	b[6] = nibble(p.AnotBattery)<<4 | nibble(p.CurrBattery)
	b[7] = nibble(p.CaseBattery) | flag(p.CurrCharging, 4) | flag(p.AnotCharging, 5) | flag(p.CaseCharging, 6)
	b[8] = p.LidState
	b[9] = byte(p.Color)
	for i := 11; i < protocol.PacketSize; i++ {
		b[i] = byte(0xA0 + i)
	}
	return b
}

// Data wraps p into a scanner record.
func (p Packet) Data(addr uint64, rssi int16, ts time.Time) airpods.ReceivedData {
	return airpods.ReceivedData{
		RSSI:      rssi,
		Timestamp: ts,
		Address:   addr,
		ManufacturerData: map[uint16][]byte{
			protocol.VendorID: p.Bytes(),
		},
	}
}

// Advertisement decodes p. It panics if p does not produce a valid message.
func (p Packet) Advertisement(addr uint64, rssi int16, ts time.Time) *airpods.Advertisement {
	adv, err := airpods.NewAdvertisement(p.Data(addr, rssi, ts))
	if err != nil {
		panic(err)
	}
	return adv
}

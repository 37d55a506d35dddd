// Package protocol decodes Apple Continuity advertisements carried in BLE
// manufacturer-specific data. Only the proximity pairing message broadcast by
// AirPods and Beats earphones is interpreted.
//
// There are no "left" and "right" fields in the message. Both earphones run
// the same firmware and describe themselves as "current" and the sibling as
// "another"; a single bit tells which earphone is transmitting.
//
// Depending on the situation the pair has one or two discoverable radios.
// When both earphones are in use or both are charging only one of them
// advertises. When one is in use and the other is in the case with the lid
// open, both advertise and the case battery is synced to both.
package protocol

import (
	"encoding/binary"
	"encoding/hex"
)

// VendorID is Apple's Bluetooth SIG company identifier.
const VendorID uint16 = 0x004C

// PacketSize is the size of a proximity pairing message, header included.
const PacketSize = 27

const (
	headerSize = 2
	// remainingLength is what a well-formed message reports in its second byte.
	remainingLength = PacketSize - headerSize
)

// PacketType is the first byte of every Continuity message.
type PacketType uint8

const (
	AirPrint                              PacketType = 0x03
	AirDrop                               PacketType = 0x05
	HomeKit                               PacketType = 0x06
	ProximityPairing                      PacketType = 0x07
	HeySiri                               PacketType = 0x08
	AirPlay                               PacketType = 0x09
	MagicSwitch                           PacketType = 0x0B
	Handoff                               PacketType = 0x0C
	InstantHotspotTetheringTargetPresence PacketType = 0x0D
	InstantHotspotTetheringSourcePresence PacketType = 0x0E
	NearbyAction                          PacketType = 0x0F
	NearbyInfo                            PacketType = 0x10
)

// Color is the housing color reported by the device.
type Color uint8

const (
	White     Color = 0x0
	Black     Color = 0x1
	Red       Color = 0x2
	Blue      Color = 0x3
	Pink      Color = 0x4
	Gray      Color = 0x5
	Silver    Color = 0x6
	Gold      Color = 0x7
	RoseGold  Color = 0x8
	SpaceGray Color = 0x9
	DarkBlue  Color = 0xA
	LightBlue Color = 0xB
	Yellow    Color = 0xC
)

var colorNames = map[Color]string{
	White:     "White",
	Black:     "Black",
	Red:       "Red",
	Blue:      "Blue",
	Pink:      "Pink",
	Gray:      "Gray",
	Silver:    "Silver",
	Gold:      "Gold",
	RoseGold:  "Rose Gold",
	SpaceGray: "Space Gray",
	DarkBlue:  "Dark Blue",
	LightBlue: "Light Blue",
	Yellow:    "Yellow",
}

func (c Color) String() string {
	if name, ok := colorNames[c]; ok {
		return name
	}
	return "Unknown"
}

// Byte offsets inside the message.
const (
	offType      = 0
	offLength    = 1
	offModel     = 3
	offStatus    = 5
	offBattery   = 6
	offCharging  = 7
	offLidState  = 8
	offColor     = 9
	offSensitive = 11
)

// Bits of the status byte.
const (
	bitCurrInEar     = 1
	bitBothInCase    = 2
	bitAnotInEar     = 3
	bitBroadcastLeft = 5
)

// Bits of the charging byte. Its low nibble is the case battery.
const (
	bitCurrCharging = 4
	bitAnotCharging = 5
	bitCaseCharging = 6
)

// maxBatteryLevel is the highest valid value of a battery nibble. Anything
// above it means the level is not reported in this message.
const maxBatteryLevel = 10

// Side identifies an earphone.
type Side uint8

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	switch s {
	case Left:
		return "Left"
	case Right:
		return "Right"
	default:
		return "Unknown"
	}
}

// Level is a battery level as it appears on the wire, in [0, 10].
// Valid is false when the message does not report it.
type Level struct {
	Value uint8
	Valid bool
}

// AirPods is a validated proximity pairing message.
type AirPods struct {
	raw [PacketSize]byte
}

// IsValid reports whether b is a proximity pairing message of the expected
// shape. Anything else, including other Continuity messages, is rejected.
func IsValid(b []byte) bool {
	if len(b) != PacketSize {
		return false
	}
	return PacketType(b[offType]) == ProximityPairing && b[offLength] == remainingLength
}

// Decode copies b into an AirPods message. It returns false if b is not valid.
func Decode(b []byte) (*AirPods, bool) {
	if !IsValid(b) {
		return nil, false
	}
	p := &AirPods{}
	copy(p.raw[:], b)
	return p, true
}

func (p *AirPods) bit(offset, bit int) bool {
	return p.raw[offset]>>bit&1 == 1
}

func level(nibble uint8) Level {
	if nibble > maxBatteryLevel {
		return Level{}
	}
	return Level{Value: nibble, Valid: true}
}

// ModelID is the raw 16-bit model identifier.
func (p *AirPods) ModelID() uint16 {
	return binary.LittleEndian.Uint16(p.raw[offModel : offModel+2])
}

// BroadcastSide is the earphone that transmitted this message.
func (p *AirPods) BroadcastSide() Side {
	if p.bit(offStatus, bitBroadcastLeft) {
		return Left
	}
	return Right
}

func (p *AirPods) IsLeftBroadcast() bool {
	return p.BroadcastSide() == Left
}

func (p *AirPods) IsRightBroadcast() bool {
	return p.BroadcastSide() == Right
}

func (p *AirPods) currBattery() Level {
	return level(p.raw[offBattery] & 0x0F)
}

func (p *AirPods) anotBattery() Level {
	return level(p.raw[offBattery] >> 4)
}

func (p *AirPods) LeftBattery() Level {
	if p.IsLeftBroadcast() {
		return p.currBattery()
	}
	return p.anotBattery()
}

func (p *AirPods) RightBattery() Level {
	if p.IsRightBroadcast() {
		return p.currBattery()
	}
	return p.anotBattery()
}

func (p *AirPods) CaseBattery() Level {
	return level(p.raw[offCharging] & 0x0F)
}

func (p *AirPods) IsLeftCharging() bool {
	if p.IsLeftBroadcast() {
		return p.bit(offCharging, bitCurrCharging)
	}
	return p.bit(offCharging, bitAnotCharging)
}

func (p *AirPods) IsRightCharging() bool {
	if p.IsRightBroadcast() {
		return p.bit(offCharging, bitCurrCharging)
	}
	return p.bit(offCharging, bitAnotCharging)
}

func (p *AirPods) IsCaseCharging() bool {
	return p.bit(offCharging, bitCaseCharging)
}

func (p *AirPods) IsBothPodsInCase() bool {
	return p.bit(offStatus, bitBothInCase)
}

// IsLeftInEar is always false while the left earphone is charging. Charging
// earphones may still carry a stale in-ear bit.
func (p *AirPods) IsLeftInEar() bool {
	if p.IsLeftCharging() {
		return false
	}
	if p.IsLeftBroadcast() {
		return p.bit(offStatus, bitCurrInEar)
	}
	return p.bit(offStatus, bitAnotInEar)
}

func (p *AirPods) IsRightInEar() bool {
	if p.IsRightCharging() {
		return false
	}
	if p.IsRightBroadcast() {
		return p.bit(offStatus, bitCurrInEar)
	}
	return p.bit(offStatus, bitAnotInEar)
}

// LidState is the raw lid state code.
func (p *AirPods) LidState() uint8 {
	return p.raw[offLidState]
}

// IsLidOpened interprets the lid state with DefaultLidOpenCodes.
func (p *AirPods) IsLidOpened() bool {
	return p.IsLidOpenedWith(DefaultLidOpenCodes)
}

// IsLidOpenedWith interprets the lid state with the given table.
func (p *AirPods) IsLidOpenedWith(codes LidOpenCodes) bool {
	return codes.Contains(p.LidState())
}

func (p *AirPods) Color() Color {
	return Color(p.raw[offColor])
}

// Desensitize returns a copy with the trailing payload zeroed. The payload is
// probably a hash or an encrypted blob and may identify the owner.
func (p *AirPods) Desensitize() *AirPods {
	c := *p
	for i := offSensitive; i < PacketSize; i++ {
		c.raw[i] = 0
	}
	return &c
}

// Bytes returns a copy of the raw message.
func (p *AirPods) Bytes() []byte {
	b := make([]byte, PacketSize)
	copy(b, p.raw[:])
	return b
}

// String is the hex dump of the desensitized message, safe for logs.
func (p *AirPods) String() string {
	return hex.EncodeToString(p.Desensitize().raw[:])
}

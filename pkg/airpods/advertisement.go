package airpods

import (
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/podwatch/pkg/protocol"
)

// ErrNotDesired is returned when an advertisement does not carry a proximity
// pairing message.
var ErrNotDesired = errors.New("not an AirPods advertisement")

// ReceivedData is a single advertisement as delivered by a scanner.
type ReceivedData struct {
	RSSI      int16
	Timestamp time.Time
	Address   uint64
	// ManufacturerData maps a company identifier to its payload, without the
	// identifier itself.
	ManufacturerData map[uint16][]byte
}

// IsDesiredAdv reports whether data carries a valid proximity pairing message.
func IsDesiredAdv(data ReceivedData) bool {
	payload, ok := data.ManufacturerData[protocol.VendorID]
	if !ok {
		return false
	}
	return protocol.IsValid(payload)
}

// Advertisement is a decoded advertisement with its radio metadata.
type Advertisement struct {
	address   uint64
	rssi      int16
	timestamp time.Time
	packet    *protocol.AirPods
	state     AdvState
}

type advertisementOptions struct {
	lidOpenCodes protocol.LidOpenCodes
}

type AdvertisementOption func(*advertisementOptions)

// WithLidOpenCodes overrides the lid state codes treated as opened.
func WithLidOpenCodes(codes protocol.LidOpenCodes) AdvertisementOption {
	return func(o *advertisementOptions) {
		o.lidOpenCodes = codes
	}
}

// NewAdvertisement decodes data. It returns an error wrapping ErrNotDesired if
// IsDesiredAdv(data) is false.
func NewAdvertisement(data ReceivedData, opts ...AdvertisementOption) (*Advertisement, error) {
	o := advertisementOptions{lidOpenCodes: protocol.DefaultLidOpenCodes}
	for _, opt := range opts {
		opt(&o)
	}

	packet, ok := protocol.Decode(data.ManufacturerData[protocol.VendorID])
	if !ok {
		return nil, pkgerrors.WithMessagef(ErrNotDesired, "address %s", HashAddress(data.Address))
	}

	a := &Advertisement{
		address:   data.Address,
		rssi:      data.RSSI,
		timestamp: data.Timestamp,
		packet:    packet,
	}

	a.state.Model = ModelFromID(packet.ModelID())
	a.state.Side = sideFromProtocol(packet.BroadcastSide())

	a.state.Pods.Left = PodState{
		Battery:    batteryFromLevel(packet.LeftBattery()),
		IsCharging: packet.IsLeftCharging(),
		IsInEar:    packet.IsLeftInEar(),
	}
	a.state.Pods.Right = PodState{
		Battery:    batteryFromLevel(packet.RightBattery()),
		IsCharging: packet.IsRightCharging(),
		IsInEar:    packet.IsRightInEar(),
	}
	a.state.Case = CaseState{
		Battery:          batteryFromLevel(packet.CaseBattery()),
		IsCharging:       packet.IsCaseCharging(),
		IsBothPodsInCase: packet.IsBothPodsInCase(),
		IsLidOpened:      packet.IsLidOpenedWith(o.lidOpenCodes),
	}

	return a, nil
}

func (a *Advertisement) RSSI() int16 { return a.rssi }

func (a *Advertisement) Address() uint64 { return a.address }

func (a *Advertisement) Timestamp() time.Time { return a.timestamp }

func (a *Advertisement) State() AdvState { return a.state }

// DesensitizedData is the raw message with the owner-identifying payload
// zeroed.
func (a *Advertisement) DesensitizedData() []byte {
	return a.packet.Desensitize().Bytes()
}

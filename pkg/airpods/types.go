// Package airpods holds the data model shared by the tracker, the manager and
// the daemon API: models, sides, per-component states and the
// single-advertisement snapshot.
package airpods

import (
	"encoding/json"
	"strconv"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/podwatch/pkg/protocol"
)

// Battery is an optional battery percentage in [0, 100], in steps of 10.
// The zero value means the level was not reported.
type Battery struct {
	value uint8
	ok    bool
}

// lowBatteryThreshold is the level at and below which a battery is low.
const lowBatteryThreshold = 20

// NewBattery returns an available battery with the given percentage.
func NewBattery(v int) Battery {
	if v < 0 {
		v = 0
	}
	if v > 100 {
		v = 100
	}
	return Battery{value: uint8(v), ok: true}
}

func batteryFromLevel(l protocol.Level) Battery {
	if !l.Valid {
		return Battery{}
	}
	return Battery{value: l.Value * 10, ok: true}
}

func (b Battery) Available() bool { return b.ok }

// Value is the percentage, or 0 if not available.
func (b Battery) Value() int { return int(b.value) }

func (b Battery) IsLow() bool {
	return b.ok && b.value <= lowBatteryThreshold
}

func (b Battery) String() string {
	if !b.ok {
		return "-"
	}
	return strconv.Itoa(int(b.value)) + "%"
}

func (b Battery) MarshalJSON() ([]byte, error) {
	if !b.ok {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(int(b.value))), nil
}

func (b *Battery) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = Battery{}
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return pkgerrors.Wrapf(err, "invalid battery %s", string(data))
	}
	*b = NewBattery(v)
	return nil
}

// Model is a known product. Unrecognized model ids map to Unknown.
type Model int

const (
	Unknown Model = iota
	AirPods1
	AirPods2
	AirPods3
	AirPodsPro
	AirPodsMax
	Powerbeats3
	BeatsX
	BeatsSolo3
)

var modelIDs = map[uint16]Model{
	0x2002: AirPods1,
	0x200F: AirPods2,
	0x2013: AirPods3,
	0x200E: AirPodsPro,
	0x2014: AirPodsPro,
	0x200A: AirPodsMax,
	// Powerbeats 3 (0x2003), Beats X (0x2005) and Beats Solo 3 (0x2006) are
	// left out until their message layout is verified, so they decode as
	// Unknown.
}

var modelNames = map[Model]string{
	Unknown:     "Unknown",
	AirPods1:    "AirPods 1",
	AirPods2:    "AirPods 2",
	AirPods3:    "AirPods 3",
	AirPodsPro:  "AirPods Pro",
	AirPodsMax:  "AirPods Max",
	Powerbeats3: "Powerbeats 3",
	BeatsX:      "Beats X",
	BeatsSolo3:  "Beats Solo 3",
}

// ModelFromID maps a 16-bit model id to a Model.
func ModelFromID(id uint16) Model {
	if m, ok := modelIDs[id]; ok {
		return m
	}
	return Unknown
}

func (m Model) String() string {
	if name, ok := modelNames[m]; ok {
		return name
	}
	return modelNames[Unknown]
}

func (m Model) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Model) UnmarshalText(text []byte) error {
	for model, name := range modelNames {
		if name == string(text) {
			*m = model
			return nil
		}
	}
	*m = Unknown
	return nil
}

// Side is the earphone whose radio transmitted an advertisement.
type Side int

const (
	Left Side = iota
	Right
)

func sideFromProtocol(s protocol.Side) Side {
	if s == protocol.Left {
		return Left
	}
	return Right
}

func (s Side) Opposite() Side {
	if s == Left {
		return Right
	}
	return Left
}

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	switch string(text) {
	case "left":
		*s = Left
	case "right":
		*s = Right
	default:
		return pkgerrors.Errorf("invalid side %q", string(text))
	}
	return nil
}

type PodState struct {
	Battery    Battery `json:"battery"`
	IsCharging bool    `json:"charging"`
	// IsInEar is never true while charging.
	IsInEar bool `json:"inEar"`
}

type CaseState struct {
	Battery          Battery `json:"battery"`
	IsCharging       bool    `json:"charging"`
	IsBothPodsInCase bool    `json:"bothPodsInCase"`
	IsLidOpened      bool    `json:"lidOpened"`
}

type PodsState struct {
	Left  PodState `json:"left"`
	Right PodState `json:"right"`
}

// State is the composite state of a pair of earphones and their case. It is
// comparable with ==.
type State struct {
	Model Model     `json:"model"`
	Pods  PodsState `json:"pods"`
	Case  CaseState `json:"case"`
}

// IsBothInEar reports whether both earphones are being worn.
func (s State) IsBothInEar() bool {
	return s.Pods.Left.IsInEar && s.Pods.Right.IsInEar
}

// IsLidOpenedWithPods reports whether the lid is open with both earphones
// inside, which is when a pairing popup would be shown.
func (s State) IsLidOpenedWithPods() bool {
	return s.Case.IsLidOpened && s.Case.IsBothPodsInCase
}

// AdvState is what a single advertisement says about the device, plus the
// side that broadcast it.
type AdvState struct {
	State
	Side Side `json:"side"`
}

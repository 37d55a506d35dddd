package config

import (
	"time"

	"github.com/sirupsen/logrus"
)

type Config interface {
	MinRSSI() int16
	BoundDeviceAddress() string
	AutomaticEarDetection() bool
	LostTimeout() time.Duration
	StateResetTimeout() time.Duration
	MaxRSSIDelta() int
	MaxBatteryDelta() int
	LidOpenCodes() []int
	Scanner() string
	AllowNonRootAccess() bool
	RequireConnectedDevice() bool

	SetMinRSSI(int16)
	SetBoundDeviceAddress(string)
	SetAutomaticEarDetection(bool)
	SetLidOpenCodes([]int)
	SetAllowNonRootAccess(bool)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error

	LogrusFields() logrus.Fields
}

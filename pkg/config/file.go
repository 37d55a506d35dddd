package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/podwatch/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		MinRSSI:               ptr.To(int16(-80)),
		BoundDeviceAddress:    ptr.To(""),
		AutomaticEarDetection: ptr.To(true),
		// The timeouts and deltas are heuristics. A pair that stops
		// advertising for 10 seconds is out of range.
		LostTimeoutSeconds:       ptr.To(10),
		StateResetTimeoutSeconds: ptr.To(10),
		MaxRSSIDelta:             ptr.To(50),
		MaxBatteryDelta:          ptr.To(1),
		// Only a few of these codes have been seen on real hardware. Users
		// can narrow the table down if their case reports "opened" while
		// closed.
		LidOpenCodes:           []int{0, 1, 2, 3, 4, 5, 6, 7},
		Scanner:                ptr.To("bluetooth"),
		AllowNonRootAccess:     ptr.To(false),
		RequireConnectedDevice: ptr.To(true),
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

// NewFileFromConfig wraps c without reading anything. An empty configPath
// gives a File that cannot be saved.
func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	MinRSSI                  *int16  `json:"minRssi,omitempty"`
	BoundDeviceAddress       *string `json:"boundDeviceAddress,omitempty"`
	AutomaticEarDetection    *bool   `json:"automaticEarDetection,omitempty"`
	LostTimeoutSeconds       *int    `json:"lostTimeoutSeconds,omitempty"`
	StateResetTimeoutSeconds *int    `json:"stateResetTimeoutSeconds,omitempty"`
	MaxRSSIDelta             *int    `json:"maxRssiDelta,omitempty"`
	MaxBatteryDelta          *int    `json:"maxBatteryDelta,omitempty"`
	LidOpenCodes             []int   `json:"lidOpenCodes,omitempty"`
	Scanner                  *string `json:"scanner,omitempty"`
	AllowNonRootAccess       *bool   `json:"allowNonRootAccess,omitempty"`
	RequireConnectedDevice   *bool   `json:"requireConnectedDevice,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		MinRSSI:                  ptr.To(c.MinRSSI()),
		BoundDeviceAddress:       ptr.To(c.BoundDeviceAddress()),
		AutomaticEarDetection:    ptr.To(c.AutomaticEarDetection()),
		LostTimeoutSeconds:       ptr.To(int(c.LostTimeout() / time.Second)),
		StateResetTimeoutSeconds: ptr.To(int(c.StateResetTimeout() / time.Second)),
		MaxRSSIDelta:             ptr.To(c.MaxRSSIDelta()),
		MaxBatteryDelta:          ptr.To(c.MaxBatteryDelta()),
		LidOpenCodes:             c.LidOpenCodes(),
		Scanner:                  ptr.To(c.Scanner()),
		AllowNonRootAccess:       ptr.To(c.AllowNonRootAccess()),
		RequireConnectedDevice:   ptr.To(c.RequireConnectedDevice()),
	}

	return rawConfig, nil
}

// Validate checks the values that are set.
func (r *RawFileConfig) Validate() error {
	if r.MinRSSI != nil && (*r.MinRSSI < -127 || *r.MinRSSI > 0) {
		return pkgerrors.Errorf("minRssi must be between -127 and 0, got %d", *r.MinRSSI)
	}
	if r.LostTimeoutSeconds != nil && *r.LostTimeoutSeconds <= 0 {
		return pkgerrors.Errorf("lostTimeoutSeconds must be positive, got %d", *r.LostTimeoutSeconds)
	}
	if r.StateResetTimeoutSeconds != nil && *r.StateResetTimeoutSeconds <= 0 {
		return pkgerrors.Errorf("stateResetTimeoutSeconds must be positive, got %d", *r.StateResetTimeoutSeconds)
	}
	if r.MaxRSSIDelta != nil && *r.MaxRSSIDelta < 0 {
		return pkgerrors.Errorf("maxRssiDelta must not be negative, got %d", *r.MaxRSSIDelta)
	}
	if r.MaxBatteryDelta != nil && *r.MaxBatteryDelta < 0 {
		return pkgerrors.Errorf("maxBatteryDelta must not be negative, got %d", *r.MaxBatteryDelta)
	}
	for _, code := range r.LidOpenCodes {
		if code < 0 || code > 0xFF {
			return pkgerrors.Errorf("lid open code %d out of range [0, 255]", code)
		}
	}
	return nil
}

// get reads a field, falling back to the default table.
func get[T any](f *File, field func(*RawFileConfig) *T) T {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if v := field(f.c); v != nil {
		return *v
	}
	return *field(defaultFileConfig)
}

func set[T any](f *File, field func(*RawFileConfig) **T, v T) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	*field(f.c) = &v
}

func (f *File) MinRSSI() int16 {
	return get(f, func(c *RawFileConfig) *int16 { return c.MinRSSI })
}

func (f *File) BoundDeviceAddress() string {
	return get(f, func(c *RawFileConfig) *string { return c.BoundDeviceAddress })
}

func (f *File) AutomaticEarDetection() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.AutomaticEarDetection })
}

func (f *File) LostTimeout() time.Duration {
	return time.Duration(get(f, func(c *RawFileConfig) *int { return c.LostTimeoutSeconds })) * time.Second
}

func (f *File) StateResetTimeout() time.Duration {
	return time.Duration(get(f, func(c *RawFileConfig) *int { return c.StateResetTimeoutSeconds })) * time.Second
}

func (f *File) MaxRSSIDelta() int {
	return get(f, func(c *RawFileConfig) *int { return c.MaxRSSIDelta })
}

func (f *File) MaxBatteryDelta() int {
	return get(f, func(c *RawFileConfig) *int { return c.MaxBatteryDelta })
}

func (f *File) LidOpenCodes() []int {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	codes := f.c.LidOpenCodes
	if codes == nil {
		codes = defaultFileConfig.LidOpenCodes
	}
	return append([]int(nil), codes...)
}

func (f *File) Scanner() string {
	return get(f, func(c *RawFileConfig) *string { return c.Scanner })
}

func (f *File) AllowNonRootAccess() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.AllowNonRootAccess })
}

func (f *File) RequireConnectedDevice() bool {
	return get(f, func(c *RawFileConfig) *bool { return c.RequireConnectedDevice })
}

func (f *File) SetMinRSSI(rssi int16) {
	set(f, func(c *RawFileConfig) **int16 { return &c.MinRSSI }, rssi)
}

func (f *File) SetBoundDeviceAddress(addr string) {
	set(f, func(c *RawFileConfig) **string { return &c.BoundDeviceAddress }, addr)
}

func (f *File) SetAutomaticEarDetection(b bool) {
	set(f, func(c *RawFileConfig) **bool { return &c.AutomaticEarDetection }, b)
}

func (f *File) SetLidOpenCodes(codes []int) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.LidOpenCodes = append([]int(nil), codes...)
}

func (f *File) SetAllowNonRootAccess(b bool) {
	set(f, func(c *RawFileConfig) **bool { return &c.AllowNonRootAccess }, b)
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// Since we want to tell if the file is empty, using json.Decoder will
	// not work.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	if err := conf.Validate(); err != nil {
		return pkgerrors.Wrapf(err, "invalid config in file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}
	if f.filepath == "" {
		return pkgerrors.New("config has no file path")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"minRssi":                f.MinRSSI(),
		"boundDeviceAddress":     f.BoundDeviceAddress(),
		"automaticEarDetection":  f.AutomaticEarDetection(),
		"lostTimeout":            f.LostTimeout(),
		"stateResetTimeout":      f.StateResetTimeout(),
		"maxRssiDelta":           f.MaxRSSIDelta(),
		"maxBatteryDelta":        f.MaxBatteryDelta(),
		"lidOpenCodes":           f.LidOpenCodes(),
		"scanner":                f.Scanner(),
		"allowNonRootAccess":     f.AllowNonRootAccess(),
		"requireConnectedDevice": f.RequireConnectedDevice(),
	}
}

// Package manager wires a Tracker to its inputs and outputs: it filters
// scanner records by the bound device, follows the device's connection state
// and turns state changes into events.
package manager

import (
	"encoding/hex"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/podwatch/pkg/airpods"
	"github.com/charlie0129/podwatch/pkg/events"
	"github.com/charlie0129/podwatch/pkg/protocol"
	"github.com/charlie0129/podwatch/pkg/tracker"
)

type Options struct {
	// Locator resolves the bound device. Without one, a bound device is
	// assumed to be connected.
	Locator DeviceLocator
	// Hub receives the events. May be nil.
	Hub *events.EventHub

	// LidOpenCodes defaults to protocol.DefaultLidOpenCodes.
	LidOpenCodes          *protocol.LidOpenCodes
	AutomaticEarDetection bool
	// RequireConnectedDevice drops advertisements unless the bound device
	// is connected.
	RequireConnectedDevice bool

	TrackerOptions []tracker.Option
	// Clock is used for event timestamps and passed to the tracker.
	Clock tracker.Clock
}

// Status is a snapshot of the manager for the API.
type Status struct {
	State        *airpods.State `json:"state"`
	DisplayName  string         `json:"displayName,omitempty"`
	BoundDevice  string         `json:"boundDevice,omitempty"`
	Connected    bool           `json:"connected"`
	Scanner      string         `json:"scanner"`
	ScannerError string         `json:"scannerError,omitempty"`
	LastSeen     *time.Time     `json:"lastSeen,omitempty"`
}

// AdvertisementInfo describes the last AirPods advertisement received, with
// the owner-identifying parts removed.
type AdvertisementInfo struct {
	Data        string           `json:"data"`
	AddressHash string           `json:"addressHash"`
	RSSI        int16            `json:"rssi"`
	Timestamp   time.Time        `json:"timestamp"`
	State       airpods.AdvState `json:"state"`
	Accepted    bool             `json:"accepted"`
}

type Manager struct {
	tracker *tracker.Tracker
	hub     *events.EventHub
	locator DeviceLocator
	clock   tracker.Clock

	mu                    sync.Mutex
	lidOpenCodes          protocol.LidOpenCodes
	automaticEarDetection bool
	requireConnected      bool

	boundAddress    uint64
	bindGen         uint64
	stopWatch       func()
	deviceConnected bool
	displayName     string

	scannerState string
	scannerError string

	lastAdv *AdvertisementInfo
}

var _ tracker.Observer = &Manager{}

func New(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = tracker.RealClock
	}

	codes := protocol.DefaultLidOpenCodes
	if opts.LidOpenCodes != nil {
		codes = *opts.LidOpenCodes
	}

	m := &Manager{
		hub:                   opts.Hub,
		locator:               opts.Locator,
		clock:                 opts.Clock,
		lidOpenCodes:          codes,
		automaticEarDetection: opts.AutomaticEarDetection,
		requireConnected:      opts.RequireConnectedDevice,
		scannerState:          events.ScannerStopped,
	}

	trackerOpts := append([]tracker.Option{tracker.WithClock(opts.Clock)}, opts.TrackerOptions...)
	trackerOpts = append(trackerOpts, tracker.WithObserver(m))
	m.tracker = tracker.New(trackerOpts...)

	return m
}

func (m *Manager) now() int64 {
	return m.clock.Now().Unix()
}

// OnAdvertisementReceived feeds a scanner record to the tracker. It returns
// false if the record is not an AirPods advertisement or no bound device is
// connected.
func (m *Manager) OnAdvertisementReceived(data airpods.ReceivedData) bool {
	if !airpods.IsDesiredAdv(data) {
		return false
	}

	m.mu.Lock()
	gateOpen := m.deviceConnected || !m.requireConnected
	codes := m.lidOpenCodes
	m.mu.Unlock()

	if !gateOpen {
		logrus.Debug("AirPods advertisement received, but device disconnected")
		return false
	}

	adv, err := airpods.NewAdvertisement(data, airpods.WithLidOpenCodes(codes))
	if err != nil {
		return false
	}

	info := &AdvertisementInfo{
		Data:        hex.EncodeToString(adv.DesensitizedData()),
		AddressHash: airpods.HashAddress(data.Address),
		RSSI:        data.RSSI,
		Timestamp:   data.Timestamp,
		State:       adv.State(),
	}
	logrus.WithFields(logrus.Fields{
		"data":        info.Data,
		"addressHash": info.AddressHash,
		"rssi":        info.RSSI,
	}).Trace("AirPods advertisement received")

	// The tracker notifies observers synchronously, so m.mu must not be held.
	info.Accepted = m.tracker.TryTrack(adv)

	m.mu.Lock()
	m.lastAdv = info
	m.mu.Unlock()

	return true
}

// OnBoundDeviceAddressChanged drops the current device and binds addr. An
// address of 0 unbinds. If addr cannot be found, the current binding is kept
// and an error is returned.
func (m *Manager) OnBoundDeviceAddressChanged(addr uint64) error {
	logger := logrus.WithField("address", airpods.FormatAddress(addr))

	var dev Device
	if addr != 0 && m.locator != nil {
		var err error
		dev, err = m.locator.FindDevice(addr)
		if err != nil {
			logger.WithError(err).Error("failed to find device by address")
			return pkgerrors.Wrapf(err, "failed to find device %s", airpods.FormatAddress(addr))
		}
	}

	m.mu.Lock()
	stopWatch := m.stopWatch
	m.stopWatch = nil
	m.bindGen++
	gen := m.bindGen
	m.boundAddress = addr
	m.deviceConnected = false
	m.displayName = ""
	m.mu.Unlock()

	if stopWatch != nil {
		stopWatch()
	}

	m.tracker.Disconnect()

	if addr == 0 {
		logrus.Info("unbind device")
		m.publishBoundDevice()
		return nil
	}

	logger.Info("bind a new device")

	if dev == nil {
		logger.Warn("no device locator, assuming the bound device is connected")
		m.onConnectionChanged(gen, true)
		return nil
	}

	connected, err := dev.IsConnected()
	if err != nil {
		logger.WithError(err).Warn("failed to get connection state, assuming disconnected")
		connected = false
	}

	stop, err := dev.WatchConnection(func(c bool) { m.onConnectionChanged(gen, c) })
	if err != nil {
		logger.WithError(err).Warn("failed to watch connection state")
	}

	m.mu.Lock()
	if gen != m.bindGen {
		// Rebound while looking the device up.
		m.mu.Unlock()
		if stop != nil {
			stop()
		}
		return nil
	}
	m.displayName = dev.DisplayName()
	m.stopWatch = stop
	m.mu.Unlock()

	m.onConnectionChanged(gen, connected)
	return nil
}

// OnBoundDeviceConnectionChanged records the connection state of the bound
// device. Tracking data is dropped when it disconnects.
func (m *Manager) OnBoundDeviceConnectionChanged(connected bool) {
	m.mu.Lock()
	gen := m.bindGen
	m.mu.Unlock()
	m.onConnectionChanged(gen, connected)
}

func (m *Manager) onConnectionChanged(gen uint64, connected bool) {
	m.mu.Lock()
	if gen != m.bindGen || m.boundAddress == 0 {
		m.mu.Unlock()
		return
	}
	doDisconnect := m.deviceConnected && !connected
	old := m.deviceConnected
	m.deviceConnected = connected
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"current": old,
		"new":     connected,
	}).Info("the bound device is updated")

	if doDisconnect {
		m.tracker.Disconnect()
	}
	m.publishBoundDevice()
}

func (m *Manager) publishBoundDevice() {
	m.mu.Lock()
	ev := events.BoundDeviceEvent{
		Name:      m.displayName,
		Connected: m.deviceConnected,
		Ts:        m.now(),
	}
	if m.boundAddress != 0 {
		ev.Address = airpods.FormatAddress(m.boundAddress)
	}
	m.mu.Unlock()

	m.hub.Publish(events.BoundDeviceChanged, ev)
}

// OnScannerStateChanged records whether the scanner is running. err is the
// reason it stopped, if any.
func (m *Manager) OnScannerStateChanged(state string, err error) {
	ev := events.ScannerStateEvent{State: state, Ts: m.now()}
	if err != nil {
		ev.Error = err.Error()
	}

	m.mu.Lock()
	m.scannerState = state
	m.scannerError = ev.Error
	m.mu.Unlock()

	if state == events.ScannerStarted {
		logrus.Info("scanner started")
	} else {
		logrus.WithField("error", ev.Error).Warn("scanner stopped")
	}

	m.hub.Publish(events.ScannerState, ev)
}

// StateChanged implements tracker.Observer.
func (m *Manager) StateChanged(old *airpods.State, new airpods.State) {
	ts := m.now()
	m.hub.Publish(events.StateChanged, events.StateChangedEvent{Old: old, New: new, Ts: ts})

	newLidOpened := new.IsLidOpenedWithPods()
	lidSwitched := newLidOpened
	if old != nil {
		lidSwitched = old.IsLidOpenedWithPods() != newLidOpened
	}
	if lidSwitched {
		logrus.WithField("opened", newLidOpened).Info("lid state switched")
		m.hub.Publish(events.LidOpened, events.LidOpenedEvent{Opened: newLidOpened, Ts: ts})
	}

	if old != nil && old.IsBothInEar() != new.IsBothInEar() {
		m.mu.Lock()
		enabled := m.automaticEarDetection
		m.mu.Unlock()

		if !enabled {
			logrus.WithField("bothInEar", new.IsBothInEar()).Info("automatic ear detection is disabled, do nothing")
			return
		}
		m.hub.Publish(events.BothInEar, events.BothInEarEvent{BothInEar: new.IsBothInEar(), Ts: ts})
	}
}

// Lost implements tracker.Observer.
func (m *Manager) Lost() {
	logrus.Info("device lost")
	m.hub.Publish(events.DeviceLost, events.DeviceLostEvent{Ts: m.now()})
}

// State returns the merged device state, if any.
func (m *Manager) State() (airpods.State, bool) {
	return m.tracker.GetState()
}

// DisplayName is the name of the bound device, or the model name if the
// device is unknown to the host.
func (m *Manager) DisplayName() string {
	m.mu.Lock()
	name := m.displayName
	m.mu.Unlock()
	if name != "" {
		return name
	}
	if s, ok := m.tracker.GetState(); ok && s.Model != airpods.Unknown {
		return s.Model.String()
	}
	return ""
}

func (m *Manager) Status() Status {
	var st Status
	if s, ok := m.tracker.GetState(); ok {
		st.State = &s
	}
	if seen, ok := m.tracker.LastSeen(); ok {
		st.LastSeen = &seen
	}
	st.DisplayName = m.DisplayName()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.boundAddress != 0 {
		st.BoundDevice = airpods.FormatAddress(m.boundAddress)
	}
	st.Connected = m.deviceConnected
	st.Scanner = m.scannerState
	st.ScannerError = m.scannerError
	return st
}

// Disconnect drops all tracking data.
func (m *Manager) Disconnect() {
	m.tracker.Disconnect()
}

func (m *Manager) SetMinRSSI(rssi int16) {
	m.tracker.SetMinRSSI(rssi)
}

func (m *Manager) MinRSSI() int16 {
	return m.tracker.MinRSSI()
}

func (m *Manager) SetAutomaticEarDetection(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.automaticEarDetection = enabled
}

func (m *Manager) SetRequireConnectedDevice(required bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requireConnected = required
}

// SetLidOpenCodes applies to advertisements received from now on.
func (m *Manager) SetLidOpenCodes(codes protocol.LidOpenCodes) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lidOpenCodes = codes
}

// LastAdvertisement returns the last AirPods advertisement that passed the
// bound device check.
func (m *Manager) LastAdvertisement() (AdvertisementInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastAdv == nil {
		return AdvertisementInfo{}, false
	}
	return *m.lastAdv, true
}

// Close stops watching the bound device and the tracker timers.
func (m *Manager) Close() {
	m.mu.Lock()
	stopWatch := m.stopWatch
	m.stopWatch = nil
	m.bindGen++
	m.mu.Unlock()

	if stopWatch != nil {
		stopWatch()
	}
	m.tracker.Close()
}

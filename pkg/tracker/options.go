package tracker

import "time"

// Defaults for the plausibility checks and timers. They are tuned heuristics.
const (
	DefaultMinRSSI           int16 = -80
	DefaultMaxRSSIDelta            = 50
	DefaultMaxBatteryDelta         = 1
	DefaultLostTimeout             = 10 * time.Second
	DefaultStateResetTimeout       = 10 * time.Second
)

type options struct {
	minRSSI           int16
	maxRSSIDelta      int
	maxBatteryDelta   int
	lostTimeout       time.Duration
	stateResetTimeout time.Duration
	clock             Clock
	observers         []Observer
}

func defaultOptions() options {
	return options{
		minRSSI:           DefaultMinRSSI,
		maxRSSIDelta:      DefaultMaxRSSIDelta,
		maxBatteryDelta:   DefaultMaxBatteryDelta,
		lostTimeout:       DefaultLostTimeout,
		stateResetTimeout: DefaultStateResetTimeout,
		clock:             RealClock,
	}
}

type Option func(*options)

// WithMinRSSI drops advertisements weaker than rssi dBm.
func WithMinRSSI(rssi int16) Option {
	return func(o *options) { o.minRSSI = rssi }
}

// WithMaxRSSIDelta sets the largest RSSI jump, in dBm, accepted between an
// advertisement and the previous one of either side.
func WithMaxRSSIDelta(delta int) Option {
	return func(o *options) { o.maxRSSIDelta = delta }
}

// WithMaxBatteryDelta sets the largest battery change, in wire steps of 10%,
// accepted when a side rotates its address.
// Comparing percentages against 1 instead would reject any battery change on
// rotation. DefaultMaxBatteryDelta is looser and allows one step.
func WithMaxBatteryDelta(delta int) Option {
	return func(o *options) { o.maxBatteryDelta = delta }
}

func WithLostTimeout(d time.Duration) Option {
	return func(o *options) { o.lostTimeout = d }
}

func WithStateResetTimeout(d time.Duration) Option {
	return func(o *options) { o.stateResetTimeout = d }
}

func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithObserver registers an observer. Observers are notified in registration
// order.
func WithObserver(ob Observer) Option {
	return func(o *options) { o.observers = append(o.observers, ob) }
}

// Package tracker reconciles advertisements broadcast by the two earphones of
// a pair into a single device state.
//
// Each earphone advertises on its own and rotates its random address
// independently, and nearby devices of the same model look alike. The Tracker
// keeps the last accepted advertisement of each side, rejects advertisements
// that are unlikely to come from the same device, and merges both sides into
// one State. Three timers expire stale data: one per side and one for the
// whole device.
package tracker

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/podwatch/pkg/airpods"
)

// Observer receives the notifications of a Tracker. Calls are made without
// any Tracker lock held and in the order the underlying events were
// processed, so an Observer may call back into the Tracker.
type Observer interface {
	// StateChanged is called when the merged state changed. old is nil if
	// there was no state before.
	StateChanged(old *airpods.State, new airpods.State)
	// Lost is called when all tracked data has been dropped, either because
	// nothing was heard for a while or because of Disconnect.
	Lost()
}

// ObserverFuncs adapts plain functions to an Observer. Nil fields are
// ignored.
type ObserverFuncs struct {
	OnStateChanged func(old *airpods.State, new airpods.State)
	OnLost         func()
}

func (f ObserverFuncs) StateChanged(old *airpods.State, new airpods.State) {
	if f.OnStateChanged != nil {
		f.OnStateChanged(old, new)
	}
}

func (f ObserverFuncs) Lost() {
	if f.OnLost != nil {
		f.OnLost()
	}
}

type tracked struct {
	adv        *airpods.Advertisement
	acceptedAt time.Time
	// seq orders acceptances across both sides.
	seq uint64
}

type notification struct {
	lost bool
	old  *airpods.State
	new  airpods.State
}

type Tracker struct {
	opts options

	mu      sync.Mutex
	minRSSI int16
	left    *tracked
	right   *tracked
	cached  *airpods.State
	seq     uint64
	// lastAccepted is when the last advertisement of either side was
	// accepted.
	lastAccepted time.Time

	lostTimer       *Timer
	leftResetTimer  *Timer
	rightResetTimer *Timer

	pending    []notification
	delivering bool
}

// New creates a Tracker and starts its timers. Call Close to stop them.
func New(opts ...Option) *Tracker {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	t := &Tracker{
		opts:    o,
		minRSSI: o.minRSSI,
	}
	t.lostTimer = NewTimer(o.clock, o.lostTimeout, t.onLostTimer)
	t.leftResetTimer = NewTimer(o.clock, o.stateResetTimeout, func() { t.onStateResetTimer(airpods.Left) })
	t.rightResetTimer = NewTimer(o.clock, o.stateResetTimeout, func() { t.onStateResetTimer(airpods.Right) })

	return t
}

// TryTrack offers an advertisement to the tracker. It returns false if the
// advertisement was rejected, in which case nothing changed.
func (t *Tracker) TryTrack(adv *airpods.Advertisement) bool {
	t.mu.Lock()
	accepted := t.tryTrackLocked(adv)
	t.mu.Unlock()

	t.deliver()
	return accepted
}

func (t *Tracker) tryTrackLocked(adv *airpods.Advertisement) bool {
	if !t.isPossibleDesiredAdv(adv) {
		return false
	}

	// Read before the timers are reset, so no deadline falls earlier than
	// one interval after acceptedAt.
	now := t.opts.clock.Now()
	t.lostTimer.Reset()

	t.seq++
	t.lastAccepted = now
	entry := &tracked{
		adv:        adv,
		acceptedAt: now,
		seq:        t.seq,
	}
	if adv.State().Side == airpods.Left {
		t.leftResetTimer.Reset()
		t.left = entry
	} else {
		t.rightResetTimer.Reset()
		t.right = entry
	}

	t.updateStateLocked()
	return true
}

func (t *Tracker) slot(side airpods.Side) **tracked {
	if side == airpods.Left {
		return &t.left
	}
	return &t.right
}

func (t *Tracker) isPossibleDesiredAdv(adv *airpods.Advertisement) bool {
	state := adv.State()
	logger := logrus.WithFields(logrus.Fields{
		"side":    state.Side,
		"address": airpods.HashAddress(adv.Address()),
		"rssi":    adv.RSSI(),
	})

	if adv.RSSI() < t.minRSSI {
		logger.WithField("minRssi", t.minRSSI).Debug("advertisement rejected: rssi below limit")
		return false
	}

	last := *t.slot(state.Side)
	lastAnother := *t.slot(state.Side.Opposite())

	// Either the random address rotated or this comes from another device.
	if last != nil && last.adv.Address() != adv.Address() {
		lastState := last.adv.State()

		if state.Model != lastState.Model {
			logger.WithFields(logrus.Fields{
				"model":     state.Model,
				"lastModel": lastState.Model,
			}).Warn("advertisement rejected: model changed with address")
			return false
		}

		leftDiff := batteryDiff(state.Pods.Left.Battery, lastState.Pods.Left.Battery)
		rightDiff := batteryDiff(state.Pods.Right.Battery, lastState.Pods.Right.Battery)
		caseDiff := batteryDiff(state.Case.Battery, lastState.Case.Battery)
		if leftDiff > t.opts.maxBatteryDelta || rightDiff > t.opts.maxBatteryDelta || caseDiff > t.opts.maxBatteryDelta {
			logger.WithFields(logrus.Fields{
				"leftDiff":  leftDiff,
				"rightDiff": rightDiff,
				"caseDiff":  caseDiff,
			}).Warn("advertisement rejected: battery jumped with address")
			return false
		}

		if diff := rssiDiff(adv, last.adv); diff > t.opts.maxRSSIDelta {
			logger.WithField("rssiDiff", diff).Warn("advertisement rejected: rssi jumped with address")
			return false
		}

		logger.Info("address changed, but it might still be the same device")
	}

	if lastAnother != nil {
		if diff := rssiDiff(adv, lastAnother.adv); diff > t.opts.maxRSSIDelta {
			logger.WithField("rssiDiff", diff).Warn("advertisement rejected: rssi too far from the other side")
			return false
		}
	}

	return true
}

// batteryDiff is the difference in wire steps of two batteries, or 0 if
// either is absent.
func batteryDiff(a, b airpods.Battery) int {
	if !a.Available() || !b.Available() {
		return 0
	}
	return abs(a.Value()/10 - b.Value()/10)
}

func rssiDiff(a, b *airpods.Advertisement) int {
	return abs(int(a.RSSI()) - int(b.RSSI()))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// pick selects the snapshot to take a field from: the side that reports it,
// the most recently accepted one if both do. If neither reports it, the most
// recent snapshot still carries the flags of the field.
func pick(left, right *tracked, reports func(airpods.AdvState) bool) airpods.AdvState {
	l := left != nil && reports(left.adv.State())
	r := right != nil && reports(right.adv.State())

	switch {
	case l && r:
		if left.seq >= right.seq {
			return left.adv.State()
		}
		return right.adv.State()
	case l:
		return left.adv.State()
	case r:
		return right.adv.State()
	}

	switch {
	case left != nil && right != nil:
		if left.seq >= right.seq {
			return left.adv.State()
		}
		return right.adv.State()
	case left != nil:
		return left.adv.State()
	case right != nil:
		return right.adv.State()
	}
	return airpods.AdvState{}
}

func (t *Tracker) merge() airpods.State {
	var s airpods.State
	s.Model = pick(t.left, t.right, func(a airpods.AdvState) bool { return a.Model != airpods.Unknown }).Model
	s.Pods.Left = pick(t.left, t.right, func(a airpods.AdvState) bool { return a.Pods.Left.Battery.Available() }).Pods.Left
	s.Pods.Right = pick(t.left, t.right, func(a airpods.AdvState) bool { return a.Pods.Right.Battery.Available() }).Pods.Right
	s.Case = pick(t.left, t.right, func(a airpods.AdvState) bool { return a.Case.Battery.Available() }).Case
	return s
}

func (t *Tracker) updateStateLocked() {
	newState := t.merge()
	if t.cached != nil && *t.cached == newState {
		return
	}

	old := t.cached
	t.cached = &newState
	t.pending = append(t.pending, notification{old: old, new: newState})
}

func (t *Tracker) resetAllLocked() {
	held := t.left != nil || t.right != nil || t.cached != nil

	t.left = nil
	t.right = nil
	t.cached = nil

	if held {
		t.pending = append(t.pending, notification{lost: true})
	}
}

// fresh reports whether at is less than d ago.
func (t *Tracker) fresh(at time.Time, d time.Duration) bool {
	return !at.IsZero() && t.opts.clock.Now().Sub(at) < d
}

func (t *Tracker) onLostTimer() {
	t.mu.Lock()
	// An advertisement accepted while the callback waited for the lock has
	// already moved the deadline.
	if t.fresh(t.lastAccepted, t.opts.lostTimeout) {
		t.mu.Unlock()
		return
	}
	if t.left != nil || t.right != nil || t.cached != nil {
		logrus.Info("device is lost")
	}
	t.resetAllLocked()
	t.mu.Unlock()

	t.deliver()
}

func (t *Tracker) onStateResetTimer(side airpods.Side) {
	t.mu.Lock()
	slot := t.slot(side)
	if *slot != nil && !t.fresh((*slot).acceptedAt, t.opts.stateResetTimeout) {
		logrus.WithField("side", side).Info("state reset")
		*slot = nil
		// With both sides gone the state is kept until the lost timer fires.
		if t.left != nil || t.right != nil {
			t.updateStateLocked()
		}
	}
	t.mu.Unlock()

	t.deliver()
}

// deliver sends pending notifications. Only one goroutine delivers at a time;
// others queue their notifications and return, so notifications keep the
// order in which they were decided.
func (t *Tracker) deliver() {
	t.mu.Lock()
	if t.delivering {
		t.mu.Unlock()
		return
	}
	t.delivering = true

	for len(t.pending) > 0 {
		n := t.pending[0]
		t.pending = t.pending[1:]
		t.mu.Unlock()

		for _, ob := range t.opts.observers {
			if n.lost {
				ob.Lost()
			} else {
				ob.StateChanged(n.old, n.new)
			}
		}

		t.mu.Lock()
	}

	t.delivering = false
	t.mu.Unlock()
}

// Disconnect drops all tracked data, as if the device was lost.
func (t *Tracker) Disconnect() {
	t.mu.Lock()
	logrus.Info("tracker disconnect")
	t.resetAllLocked()
	t.mu.Unlock()

	t.deliver()
}

// GetState returns the merged state. It returns false if nothing is tracked.
func (t *Tracker) GetState() (airpods.State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cached == nil {
		return airpods.State{}, false
	}
	return *t.cached, true
}

// LastSeen returns when the most recently accepted advertisement that is still
// tracked was accepted.
func (t *Tracker) LastSeen() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.left != nil && t.right != nil:
		if t.left.seq >= t.right.seq {
			return t.left.acceptedAt, true
		}
		return t.right.acceptedAt, true
	case t.left != nil:
		return t.left.acceptedAt, true
	case t.right != nil:
		return t.right.acceptedAt, true
	}
	return time.Time{}, false
}

func (t *Tracker) SetMinRSSI(rssi int16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.minRSSI = rssi
}

func (t *Tracker) MinRSSI() int16 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.minRSSI
}

// Close stops the timers. Pending notifications are still delivered.
func (t *Tracker) Close() {
	t.lostTimer.Stop()
	t.leftResetTimer.Stop()
	t.rightResetTimer.Stop()
}

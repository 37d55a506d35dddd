package tracker_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/charlie0129/podwatch/pkg/tracker"
	"github.com/charlie0129/podwatch/pkg/tracker/trackertest"
)

func TestTimer(t *testing.T) {
	clock := trackertest.NewFakeClock(epoch)
	var fired atomic.Int32
	timer := tracker.NewTimer(clock, 10*time.Second, func() { fired.Add(1) })
	defer timer.Stop()

	tests := []struct {
		name    string
		advance time.Duration
		reset   bool
		want    int32
	}{
		{name: "before deadline", advance: 9 * time.Second, want: 0},
		{name: "reset postpones", advance: 0, reset: true, want: 0},
		{name: "old deadline passed", advance: 2 * time.Second, want: 0},
		{name: "new deadline", advance: 8 * time.Second, want: 1},
		{name: "re-armed after firing", advance: 10 * time.Second, want: 2},
		{name: "fires once per interval", advance: 30 * time.Second, want: 5},
	}
	for _, tt := range tests {
		if tt.reset {
			timer.Reset()
		}
		clock.Advance(tt.advance)
		if got := fired.Load(); got != tt.want {
			t.Errorf("%s: fired %d times, want %d", tt.name, got, tt.want)
		}
	}
}

func TestTimerStop(t *testing.T) {
	clock := trackertest.NewFakeClock(epoch)
	var fired atomic.Int32
	timer := tracker.NewTimer(clock, time.Second, func() { fired.Add(1) })

	timer.Stop()
	timer.Reset()
	clock.Advance(time.Minute)
	if got := fired.Load(); got != 0 {
		t.Errorf("stopped timer fired %d times", got)
	}
	if n := clock.Pending(); n != 0 {
		t.Errorf("Pending() = %d, want 0", n)
	}
}

func TestTimerRealClock(t *testing.T) {
	done := make(chan struct{}, 1)
	timer := tracker.NewTimer(tracker.RealClock, 10*time.Millisecond, func() {
		select {
		case done <- struct{}{}:
		default:
		}
	})
	defer timer.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}

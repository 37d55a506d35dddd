package tracker

import (
	"testing"
	"time"

	"github.com/charlie0129/podwatch/pkg/airpods"
	"github.com/charlie0129/podwatch/pkg/airpods/airpodstest"
)

// A timer callback that already passed its generation check can still be
// waiting for the lock while an advertisement is accepted. It must not drop
// that advertisement.
func TestLateTimerCallbackKeepsFreshState(t *testing.T) {
	var lost int
	tr := New(
		WithLostTimeout(time.Hour),
		WithStateResetTimeout(time.Hour),
		WithObserver(ObserverFuncs{OnLost: func() { lost++ }}),
	)
	defer tr.Close()

	if !tr.TryTrack(airpodstest.Pods(true, 8, 7, 9).Advertisement(0xABC, -50, time.Now())) {
		t.Fatal("TryTrack() = false")
	}

	tr.onLostTimer()
	tr.onStateResetTimer(airpods.Left)

	if _, ok := tr.GetState(); !ok {
		t.Errorf("GetState() ok = false after a late timer callback")
	}
	if _, ok := tr.LastSeen(); !ok {
		t.Errorf("LastSeen() ok = false, want the left side still tracked")
	}
	if lost != 0 {
		t.Errorf("Lost() called %d times, want 0", lost)
	}
}

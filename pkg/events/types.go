package events

import (
	"encoding/json"

	"github.com/charlie0129/podwatch/pkg/airpods"
)

// Event name constants
const (
	StateChanged       = "state.changed"
	DeviceLost         = "device.lost"
	LidOpened          = "lid.opened"
	BothInEar          = "ear.both"
	ScannerState       = "scanner.state"
	BoundDeviceChanged = "device.bound"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// StateChangedEvent is the typed payload for state.changed. Old is nil for
// the first state after the device was found.
type StateChangedEvent struct {
	Old *airpods.State `json:"old,omitempty"`
	New airpods.State  `json:"new"`
	Ts  int64          `json:"ts"`
}

// DeviceLostEvent is the typed payload for device.lost.
type DeviceLostEvent struct {
	Ts int64 `json:"ts"`
}

// LidOpenedEvent is published when the case lid is opened or closed with
// both earphones inside.
type LidOpenedEvent struct {
	Opened bool  `json:"opened"`
	Ts     int64 `json:"ts"`
}

// BothInEarEvent is published when both earphones are put in or one is taken
// out. It is only published with automatic ear detection enabled.
type BothInEarEvent struct {
	BothInEar bool  `json:"bothInEar"`
	Ts        int64 `json:"ts"`
}

// Scanner states.
const (
	ScannerStarted = "started"
	ScannerStopped = "stopped"
)

type ScannerStateEvent struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
	Ts    int64  `json:"ts"`
}

type BoundDeviceEvent struct {
	Address   string `json:"address,omitempty"`
	Name      string `json:"name,omitempty"`
	Connected bool   `json:"connected"`
	Ts        int64  `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.StateChangedEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.New.Case.Battery)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}

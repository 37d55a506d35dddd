package protocol

import (
	"bytes"
	"testing"
)

const (
	statusLeft       = 1 << bitBroadcastLeft
	statusCurrInEar  = 1 << bitCurrInEar
	statusAnotInEar  = 1 << bitAnotInEar
	statusBothInCase = 1 << bitBothInCase
)

// newPacket builds a proximity pairing message for AirPods 2 with a non-zero
// sensitive payload.
func newPacket(status, battery, charging, lid byte) []byte {
	b := make([]byte, PacketSize)
	b[offType] = byte(ProximityPairing)
	b[offLength] = remainingLength
	b[2] = 0x01
	b[offModel] = 0x0F
	b[offModel+1] = 0x20
	b[offStatus] = status
	b[offBattery] = battery
	b[offCharging] = charging
	b[offLidState] = lid
	b[offColor] = byte(White)
	for i := offSensitive; i < PacketSize; i++ {
		b[i] = 0xAA
	}
	return b
}

func TestIsValid(t *testing.T) {
	valid := newPacket(statusLeft, 0x98, 0x09, 0x01)

	wrongType := newPacket(statusLeft, 0x98, 0x09, 0x01)
	wrongType[offType] = byte(NearbyInfo)

	wrongLength := newPacket(statusLeft, 0x98, 0x09, 0x01)
	wrongLength[offLength] = 24

	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{name: "valid", data: valid, want: true},
		{name: "nil", data: nil, want: false},
		{name: "too short", data: valid[:PacketSize-1], want: false},
		{name: "too long", data: append(append([]byte{}, valid...), 0x00), want: false},
		{name: "wrong packet type", data: wrongType, want: false},
		{name: "wrong remaining length", data: wrongLength, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.data); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
			p, ok := Decode(tt.data)
			if ok != tt.want || (p != nil) != tt.want {
				t.Errorf("Decode() = %v, %v, want ok %v", p, ok, tt.want)
			}
		})
	}
}

func TestDecodeFields(t *testing.T) {
	// Left broadcasting, current (left) battery 8, another (right) battery 7,
	// case battery 9, case charging, lid state 0x01.
	p, ok := Decode(newPacket(statusLeft|statusBothInCase, 0x78, 0x49, 0x01))
	if !ok {
		t.Fatalf("Decode() failed")
	}

	if got := p.ModelID(); got != 0x200F {
		t.Errorf("ModelID() = %#x, want %#x", got, 0x200F)
	}
	if got := p.BroadcastSide(); got != Left {
		t.Errorf("BroadcastSide() = %v, want %v", got, Left)
	}
	if got := p.LeftBattery(); got != (Level{Value: 8, Valid: true}) {
		t.Errorf("LeftBattery() = %v, want 8", got)
	}
	if got := p.RightBattery(); got != (Level{Value: 7, Valid: true}) {
		t.Errorf("RightBattery() = %v, want 7", got)
	}
	if got := p.CaseBattery(); got != (Level{Value: 9, Valid: true}) {
		t.Errorf("CaseBattery() = %v, want 9", got)
	}
	if !p.IsCaseCharging() {
		t.Errorf("IsCaseCharging() = false, want true")
	}
	if p.IsLeftCharging() || p.IsRightCharging() {
		t.Errorf("pods should not be charging")
	}
	if !p.IsBothPodsInCase() {
		t.Errorf("IsBothPodsInCase() = false, want true")
	}
	if !p.IsLidOpened() {
		t.Errorf("IsLidOpened() = false, want true")
	}
	if got := p.Color(); got != White {
		t.Errorf("Color() = %v, want %v", got, White)
	}
}

func TestSideResolution(t *testing.T) {
	// Same payload, only the broadcast bit differs: the nibbles swap sides.
	right, _ := Decode(newPacket(0, 0x35, 1<<bitCurrCharging, 0x09))
	if got := right.BroadcastSide(); got != Right {
		t.Fatalf("BroadcastSide() = %v, want %v", got, Right)
	}
	if got := right.RightBattery().Value; got != 5 {
		t.Errorf("RightBattery() = %d, want 5", got)
	}
	if got := right.LeftBattery().Value; got != 3 {
		t.Errorf("LeftBattery() = %d, want 3", got)
	}
	if !right.IsRightCharging() || right.IsLeftCharging() {
		t.Errorf("current charging bit should describe the right pod")
	}
	if right.IsLidOpened() {
		t.Errorf("IsLidOpened() = true for code 0x09, want false")
	}
}

func TestBatteryUnavailable(t *testing.T) {
	for nibble := 0; nibble <= 0xF; nibble++ {
		p, _ := Decode(newPacket(statusLeft, byte(nibble), byte(nibble), 0))
		l := p.LeftBattery()
		c := p.CaseBattery()
		want := nibble <= maxBatteryLevel
		if l.Valid != want || c.Valid != want {
			t.Errorf("nibble %#x: valid = %v/%v, want %v", nibble, l.Valid, c.Valid, want)
		}
		if want && int(l.Value) != nibble {
			t.Errorf("nibble %#x: value = %d", nibble, l.Value)
		}
	}
}

func TestInEarSuppressedWhileCharging(t *testing.T) {
	tests := []struct {
		name      string
		status    byte
		charging  byte
		wantLeft  bool
		wantRight bool
	}{
		{
			name:      "both in ear, not charging",
			status:    statusLeft | statusCurrInEar | statusAnotInEar,
			wantLeft:  true,
			wantRight: true,
		},
		{
			name:      "left charging with stale in-ear bit",
			status:    statusLeft | statusCurrInEar | statusAnotInEar,
			charging:  1 << bitCurrCharging,
			wantLeft:  false,
			wantRight: true,
		},
		{
			name:      "right broadcasting, right charging",
			status:    statusCurrInEar | statusAnotInEar,
			charging:  1 << bitCurrCharging,
			wantLeft:  true,
			wantRight: false,
		},
		{
			name:      "both charging",
			status:    statusCurrInEar | statusAnotInEar,
			charging:  1<<bitCurrCharging | 1<<bitAnotCharging,
			wantLeft:  false,
			wantRight: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := Decode(newPacket(tt.status, 0x55, tt.charging, 0))
			if got := p.IsLeftInEar(); got != tt.wantLeft {
				t.Errorf("IsLeftInEar() = %v, want %v", got, tt.wantLeft)
			}
			if got := p.IsRightInEar(); got != tt.wantRight {
				t.Errorf("IsRightInEar() = %v, want %v", got, tt.wantRight)
			}
		})
	}
}

func TestDesensitize(t *testing.T) {
	raw := newPacket(statusLeft, 0x98, 0x09, 0x01)
	p, _ := Decode(raw)

	d := p.Desensitize().Bytes()
	if !bytes.Equal(d[:offSensitive], raw[:offSensitive]) {
		t.Errorf("Desensitize() changed the public fields")
	}
	if !bytes.Equal(d[offSensitive:], make([]byte, PacketSize-offSensitive)) {
		t.Errorf("Desensitize() did not zero the payload: %x", d[offSensitive:])
	}
	if !bytes.Equal(p.Bytes(), raw) {
		t.Errorf("Desensitize() modified the original message")
	}
}

func TestLidOpenCodes(t *testing.T) {
	if got := DefaultLidOpenCodes.Codes(); len(got) != 8 || got[0] != 0 || got[7] != 7 {
		t.Errorf("DefaultLidOpenCodes.Codes() = %v", got)
	}

	custom, err := NewLidOpenCodes(0x01, 0x03)
	if err != nil {
		t.Fatalf("NewLidOpenCodes() error = %v", err)
	}
	p, _ := Decode(newPacket(statusLeft, 0x98, 0x09, 0x02))
	if p.IsLidOpenedWith(custom) {
		t.Errorf("IsLidOpenedWith() = true for code 0x02")
	}
	if !p.IsLidOpened() {
		t.Errorf("IsLidOpened() = false for code 0x02")
	}

	if _, err := NewLidOpenCodes(256); err == nil {
		t.Errorf("NewLidOpenCodes(256) should fail")
	}
}

package scanner

import (
	"reflect"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{name: Bluetooth},
		{name: HCI},
		{name: "bluez", wantErr: true},
		{name: "", wantErr: true},
	}
	for _, tt := range tests {
		s, err := New(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if err == nil && s == nil {
			t.Errorf("New(%q) = nil", tt.name)
		}
	}
}

func TestNames(t *testing.T) {
	if got, want := Names(), []string{Bluetooth, HCI}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestAddressFromString(t *testing.T) {
	if got := addressFromString("AA:BB:CC:DD:EE:FF"); got != 0xAABBCCDDEEFF {
		t.Errorf("addressFromString(mac) = %#x, want 0xaabbccddeeff", got)
	}

	uuid := "5D1F3A22-7C4B-4B5E-9A3C-1E2F3A4B5C6D"
	a, b := addressFromString(uuid), addressFromString(uuid)
	if a != b || a == 0 {
		t.Errorf("addressFromString(uuid) = %#x and %#x, want a stable non-zero value", a, b)
	}
	if a == addressFromString("5D1F3A22-7C4B-4B5E-9A3C-1E2F3A4B5C6E") {
		t.Errorf("addressFromString() maps different uuids to the same address")
	}
}

func TestSplitManufacturerData(t *testing.T) {
	tests := []struct {
		name   string
		raw    []byte
		want   map[uint16][]byte
		wantOK bool
	}{
		{name: "apple", raw: []byte{0x4C, 0x00, 0x07, 0x19}, want: map[uint16][]byte{0x004C: {0x07, 0x19}}, wantOK: true},
		{name: "id only", raw: []byte{0x06, 0x00}, want: map[uint16][]byte{0x0006: {}}, wantOK: true},
		{name: "short", raw: []byte{0x4C}},
		{name: "empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := splitManufacturerData(tt.raw)
			if ok != tt.wantOK || !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitManufacturerData() = %v, %v, want %v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestNewReceivedData(t *testing.T) {
	md := map[uint16][]byte{0x004C: {0x07}}
	got := newReceivedData("11:22:33:44:55:66", -61, md)
	if got.Address != 0x112233445566 || got.RSSI != -61 || got.Timestamp.IsZero() {
		t.Errorf("newReceivedData() = %+v", got)
	}
	if !reflect.DeepEqual(got.ManufacturerData, md) {
		t.Errorf("newReceivedData().ManufacturerData = %v, want %v", got.ManufacturerData, md)
	}
}

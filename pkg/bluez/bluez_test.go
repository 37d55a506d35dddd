package bluez

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

const podsPath = dbus.ObjectPath("/org/bluez/hci0/dev_11_22_33_44_55_66")

func device(addr string) map[string]map[string]dbus.Variant {
	return map[string]map[string]dbus.Variant{
		deviceIface: {"Address": dbus.MakeVariant(addr)},
	}
}

func TestFindDevicePath(t *testing.T) {
	objects := managedObjects{
		"/org/bluez":      {"org.bluez.AgentManager1": {}},
		"/org/bluez/hci0": {"org.bluez.Adapter1": {"Address": dbus.MakeVariant("11:22:33:44:55:66")}},

		podsPath: device("11:22:33:44:55:66"),

		"/org/bluez/hci1/dev_11_22_33_44_55_66": device("11:22:33:44:55:66"),
		"/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF": device("aa:bb:cc:dd:ee:ff"),
	}

	tests := []struct {
		name   string
		addr   uint64
		want   dbus.ObjectPath
		wantOK bool
	}{
		{name: "first adapter wins", addr: 0x112233445566, want: podsPath, wantOK: true},
		{name: "case insensitive", addr: 0xAABBCCDDEEFF, want: "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF", wantOK: true},
		{name: "unknown", addr: 0x010203040506},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := findDevicePath(objects, tt.addr)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("findDevicePath() = %q, %v, want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestConnectedChange(t *testing.T) {
	signal := func(path dbus.ObjectPath, iface string, changed map[string]dbus.Variant) *dbus.Signal {
		return &dbus.Signal{
			Path: path,
			Name: propsIface + "." + propsChanged,
			Body: []interface{}{iface, changed, []string{}},
		}
	}

	tests := []struct {
		name          string
		sig           *dbus.Signal
		wantConnected bool
		wantOK        bool
	}{
		{
			name:          "disconnected",
			sig:           signal(podsPath, deviceIface, map[string]dbus.Variant{"Connected": dbus.MakeVariant(false)}),
			wantConnected: false,
			wantOK:        true,
		},
		{
			name:          "connected",
			sig:           signal(podsPath, deviceIface, map[string]dbus.Variant{"Connected": dbus.MakeVariant(true), "RSSI": dbus.MakeVariant(int16(-40))}),
			wantConnected: true,
			wantOK:        true,
		},
		{
			name: "other property",
			sig:  signal(podsPath, deviceIface, map[string]dbus.Variant{"RSSI": dbus.MakeVariant(int16(-40))}),
		},
		{
			name: "other device",
			sig:  signal("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF", deviceIface, map[string]dbus.Variant{"Connected": dbus.MakeVariant(true)}),
		},
		{
			name: "other interface",
			sig:  signal(podsPath, "org.bluez.MediaControl1", map[string]dbus.Variant{"Connected": dbus.MakeVariant(true)}),
		},
		{
			name: "not a bool",
			sig:  signal(podsPath, deviceIface, map[string]dbus.Variant{"Connected": dbus.MakeVariant("yes")}),
		},
		{
			name: "short body",
			sig:  &dbus.Signal{Path: podsPath, Name: propsIface + "." + propsChanged, Body: []interface{}{deviceIface}},
		},
		{
			name: "other signal",
			sig:  &dbus.Signal{Path: podsPath, Name: "org.freedesktop.DBus.ObjectManager.InterfacesAdded"},
		},
		{name: "nil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			connected, ok := connectedChange(tt.sig, podsPath)
			if connected != tt.wantConnected || ok != tt.wantOK {
				t.Errorf("connectedChange() = %v, %v, want %v, %v", connected, ok, tt.wantConnected, tt.wantOK)
			}
		})
	}
}

// Package bluez looks up paired devices and follows their connection state
// through the BlueZ D-Bus API.
package bluez

import (
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/podwatch/pkg/airpods"
	"github.com/charlie0129/podwatch/pkg/manager"
)

const (
	busName       = "org.bluez"
	deviceIface   = "org.bluez.Device1"
	propsIface    = "org.freedesktop.DBus.Properties"
	propsChanged  = "PropertiesChanged"
	objectManager = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
)

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// Locator implements manager.DeviceLocator on the system bus.
type Locator struct {
	conn *dbus.Conn
}

var _ manager.DeviceLocator = &Locator{}

// NewLocator connects to the system bus and checks that BlueZ is running.
func NewLocator() (*Locator, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to connect to system bus")
	}

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list bus names")
	}
	for _, n := range names {
		if n == busName {
			return &Locator{conn: conn}, nil
		}
	}
	return nil, pkgerrors.Errorf("%s not found on system bus, is bluetooth.service running?", busName)
}

func (l *Locator) FindDevice(addr uint64) (manager.Device, error) {
	var objects managedObjects
	err := l.conn.Object(busName, "/").Call(objectManager, 0).Store(&objects)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list bluez objects")
	}

	path, ok := findDevicePath(objects, addr)
	if !ok {
		return nil, pkgerrors.Errorf("device %s is not known to bluez", airpods.FormatAddress(addr))
	}
	return &Device{conn: l.conn, path: path, address: addr}, nil
}

// findDevicePath returns the object implementing org.bluez.Device1 for addr.
// With several adapters the first match in path order wins.
func findDevicePath(objects managedObjects, addr uint64) (dbus.ObjectPath, bool) {
	want := airpods.FormatAddress(addr)
	var found dbus.ObjectPath
	for path, ifaces := range objects {
		props, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		v, ok := props["Address"]
		if !ok {
			continue
		}
		s, ok := v.Value().(string)
		if !ok || !strings.EqualFold(s, want) {
			continue
		}
		if found == "" || path < found {
			found = path
		}
	}
	return found, found != ""
}

// Device is a BlueZ device object.
type Device struct {
	conn    *dbus.Conn
	path    dbus.ObjectPath
	address uint64
}

var _ manager.Device = &Device{}

func (d *Device) Address() uint64 {
	return d.address
}

func (d *Device) prop(name string) (dbus.Variant, error) {
	var v dbus.Variant
	err := d.conn.Object(busName, d.path).Call(propsIface+".Get", 0, deviceIface, name).Store(&v)
	return v, err
}

// DisplayName is the alias the user gave the device, or its advertised name.
func (d *Device) DisplayName() string {
	for _, name := range []string{"Alias", "Name"} {
		v, err := d.prop(name)
		if err != nil {
			continue
		}
		if s, ok := v.Value().(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func (d *Device) IsConnected() (bool, error) {
	v, err := d.prop("Connected")
	if err != nil {
		return false, pkgerrors.Wrapf(err, "failed to get Connected of %s", d.path)
	}
	connected, ok := v.Value().(bool)
	if !ok {
		return false, pkgerrors.Errorf("property Connected of %s is not bool", d.path)
	}
	return connected, nil
}

func (d *Device) WatchConnection(fn func(connected bool)) (func(), error) {
	opts := []dbus.MatchOption{
		dbus.WithMatchObjectPath(d.path),
		dbus.WithMatchInterface(propsIface),
		dbus.WithMatchMember(propsChanged),
	}
	if err := d.conn.AddMatchSignal(opts...); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to watch %s", d.path)
	}

	ch := make(chan *dbus.Signal, 16)
	d.conn.Signal(ch)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case sig, ok := <-ch:
				if !ok {
					return
				}
				if connected, ok := connectedChange(sig, d.path); ok {
					fn(connected)
				}
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			d.conn.RemoveSignal(ch)
			if err := d.conn.RemoveMatchSignal(opts...); err != nil {
				logrus.WithError(err).WithField("path", d.path).Warn("failed to remove signal match")
			}
		})
	}
	return stop, nil
}

// connectedChange extracts a new Connected value from a PropertiesChanged
// signal of path.
func connectedChange(sig *dbus.Signal, path dbus.ObjectPath) (bool, bool) {
	if sig == nil || sig.Path != path || sig.Name != propsIface+"."+propsChanged {
		return false, false
	}
	// Body: interface name, changed properties, invalidated properties.
	if len(sig.Body) < 2 {
		return false, false
	}
	if iface, ok := sig.Body[0].(string); !ok || iface != deviceIface {
		return false, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return false, false
	}
	v, ok := changed["Connected"]
	if !ok {
		return false, false
	}
	connected, ok := v.Value().(bool)
	return connected, ok
}

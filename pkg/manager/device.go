package manager

// Device is a paired Bluetooth device known to the host.
type Device interface {
	Address() uint64
	DisplayName() string
	IsConnected() (bool, error)
	// WatchConnection calls fn whenever the connection state changes, until
	// the returned function is called.
	WatchConnection(fn func(connected bool)) (stop func(), err error)
}

// DeviceLocator finds paired devices by address.
type DeviceLocator interface {
	FindDevice(addr uint64) (Device, error)
}

package scanner

import (
	"context"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

type bluetoothScanner struct {
	adapter *bluetooth.Adapter
	enable  sync.Once
	err     error
}

func newBluetoothScanner() Scanner {
	return &bluetoothScanner{adapter: bluetooth.DefaultAdapter}
}

func (s *bluetoothScanner) Run(ctx context.Context, h Handler) error {
	s.enable.Do(func() {
		s.err = s.adapter.Enable()
	})
	if s.err != nil {
		return pkgerrors.Wrap(s.err, "failed to enable bluetooth adapter")
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			if err := s.adapter.StopScan(); err != nil {
				logrus.WithError(err).Warn("failed to stop scan")
			}
		case <-done:
		}
	}()

	logrus.WithField("scanner", Bluetooth).Info("scanning")
	err := s.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		elems := result.ManufacturerData()
		if len(elems) == 0 {
			return
		}
		md := make(map[uint16][]byte, len(elems))
		for _, e := range elems {
			md[e.CompanyID] = e.Data
		}
		h(newReceivedData(result.Address.String(), int(result.RSSI), md))
	})
	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(err, "scan failed")
	}
	return pkgerrors.New("scan stopped unexpectedly")
}

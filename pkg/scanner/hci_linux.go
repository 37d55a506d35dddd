//go:build linux

package scanner

import (
	"context"
	"errors"

	"github.com/currantlabs/ble"
	"github.com/currantlabs/ble/linux"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type hciScanner struct{}

func newHCIScanner() Scanner {
	return hciScanner{}
}

func (hciScanner) Run(ctx context.Context, h Handler) error {
	dev, err := linux.NewDevice()
	if err != nil {
		return pkgerrors.Wrap(err, "failed to open hci device")
	}
	defer func() {
		if err := dev.Stop(); err != nil {
			logrus.WithError(err).Warn("failed to close hci device")
		}
	}()

	logrus.WithFields(logrus.Fields{
		"scanner": HCI,
		"adapter": dev.Address().String(),
	}).Info("scanning")

	// Duplicates are needed, the pods change their status without changing
	// the rest of the advertisement.
	err = dev.Scan(ctx, true, func(a ble.Advertisement) {
		md, ok := splitManufacturerData(a.ManufacturerData())
		if !ok {
			return
		}
		h(newReceivedData(a.Address().String(), a.RSSI(), md))
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return nil
	}
	return pkgerrors.Wrap(err, "scan failed")
}

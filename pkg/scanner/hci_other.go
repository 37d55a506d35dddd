//go:build !linux

package scanner

import (
	"context"

	pkgerrors "github.com/pkg/errors"
)

type hciScanner struct{}

func newHCIScanner() Scanner {
	return hciScanner{}
}

func (hciScanner) Run(context.Context, Handler) error {
	return pkgerrors.Errorf("scanner %q is only available on linux", HCI)
}

//go:build !linux

package goble

import (
	"github.com/go-ble/ble"
	"github.com/pkg/errors"
)

func newDevice(int) (ble.Device, error) {
	return nil, errors.New("ble adapters are only supported on linux")
}

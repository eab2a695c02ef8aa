// Package goble implements session.Transport on top of github.com/go-ble/ble.
package goble

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/radoneye/radoneye"
	"github.com/alepar/radoneye/radoneye/session"
)

// Transport is a session.Transport bound to one local HCI adapter. The
// adapter is opened on first use and kept until Close.
type Transport struct {
	Adapter string
	Logger  log.FieldLogger

	mu  sync.Mutex
	dev ble.Device
}

// New returns a transport for adapter ("hci0", "hci1" or a bare index).
func New(adapter string, logger log.FieldLogger) *Transport {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Transport{Adapter: adapter, Logger: logger.WithField("adapter", adapter)}
}

func (t *Transport) device() (ble.Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev != nil {
		return t.dev, nil
	}

	id, err := AdapterID(t.Adapter)
	if err != nil {
		return nil, &radoneye.ConnectError{Kind: radoneye.AdapterUnavailable, Err: err}
	}
	dev, err := newDevice(id)
	if err != nil {
		return nil, &radoneye.ConnectError{
			Kind: radoneye.AdapterUnavailable,
			Err:  errors.Wrapf(NormalizeError(err), "failed to open ble adapter %s", t.Adapter),
		}
	}
	t.dev = dev
	return dev, nil
}

// AdapterID maps an adapter name to its HCI index. An empty name is hci0.
func AdapterID(adapter string) (int, error) {
	if adapter == "" {
		return 0, nil
	}
	id, err := strconv.Atoi(strings.TrimPrefix(adapter, "hci"))
	if err != nil || id < 0 {
		return 0, errors.Errorf("invalid adapter %q (expected hciN)", adapter)
	}
	return id, nil
}

// Scan reports every advertisement until ctx is done.
func (t *Transport) Scan(ctx context.Context, handler func(session.Advertisement)) error {
	dev, err := t.device()
	if err != nil {
		return err
	}

	err = dev.Scan(ctx, false, func(a ble.Advertisement) {
		handler(convertAdvertisement(a))
	})
	switch errors.Cause(err) {
	case nil, context.DeadlineExceeded, context.Canceled:
		return ctx.Err()
	default:
		return errors.Wrap(NormalizeError(err), "failed to scan for devices")
	}
}

func convertAdvertisement(a ble.Advertisement) session.Advertisement {
	services := make([]string, 0, len(a.Services()))
	for _, u := range a.Services() {
		services = append(services, u.String())
	}
	return session.Advertisement{
		Address:     a.Addr().String(),
		Name:        a.LocalName(),
		Services:    services,
		Connectable: a.Connectable(),
		RSSI:        a.RSSI(),
	}
}

// Close releases the adapter.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dev == nil {
		return nil
	}
	err := t.dev.Stop()
	t.dev = nil
	return err
}

// NormalizeError maps go-ble error strings onto the session error taxonomy.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "device not connected"), strings.Contains(msg, "disconnected"):
		return errors.Wrapf(radoneye.ErrLinkLost, "%s", err)
	case strings.Contains(msg, "no such device"), strings.Contains(msg, "bluetooth is turned off"),
		strings.Contains(msg, "operation not permitted"):
		return &radoneye.ConnectError{Kind: radoneye.AdapterUnavailable, Err: err}
	default:
		return err
	}
}

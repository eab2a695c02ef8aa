package main

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/alepar/radoneye/radoneye"
	"github.com/alepar/radoneye/radoneye/goble"
	"github.com/alepar/radoneye/radoneye/session"
)

// device is a discovered RD200 and the adapter it was found on.
type device struct {
	transport *goble.Transport
	id        radoneye.Identity
	connector *session.Connector
}

func discover(ctx context.Context) (*device, error) {
	transport := goble.New(cfg.Device.Adapter, log.StandardLogger())
	id, err := session.Discover(ctx, transport, session.DiscoverOptions{
		Adapter:     cfg.Device.Adapter,
		Address:     cfg.Device.Address,
		ScanTimeout: cfg.Device.ScanTimeout,
	}, log.StandardLogger())
	if err != nil {
		_ = transport.Close()
		return nil, err
	}

	connector := session.NewConnector(transport, session.Options{
		ConnectTimeout:  cfg.Device.ConnectTimeout,
		ResponseTimeout: cfg.Device.ResponseTimeout,
	}, log.StandardLogger())
	return &device{transport: transport, id: id, connector: connector}, nil
}

func (d *device) Close() {
	if err := d.transport.Close(); err != nil {
		log.WithError(err).Warn("failed to release bluetooth adapter")
	}
}

// withSession runs fn against a single session with the device.
func withSession(ctx context.Context, fn func(ctx context.Context, s *session.Session) error) error {
	d, err := discover(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	s, err := d.connector.Connect(ctx, d.id)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

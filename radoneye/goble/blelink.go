package goble

import (
	"context"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/alepar/radoneye/radoneye"
	"github.com/alepar/radoneye/radoneye/session"
)

// closeTimeout bounds how long Close waits for the stack to confirm the disconnect.
const closeTimeout = 5 * time.Second

var (
	serviceUUID = ble.MustParse(session.ServiceUUID)
	charUUIDs   = map[session.Characteristic]ble.UUID{
		session.Control:     ble.MustParse(session.ControlUUID),
		session.Measurement: ble.MustParse(session.MeasurementUUID),
		session.Log:         ble.MustParse(session.LogUUID),
	}
)

type bleLink struct {
	client ble.Client
	chars  map[session.Characteristic]*ble.Characteristic
	logger log.FieldLogger

	done    chan struct{}
	mu      sync.Mutex
	closing bool
	err     error
}

// Dial connects to address and resolves the RD200 characteristics.
func (t *Transport) Dial(ctx context.Context, address string) (session.Link, error) {
	dev, err := t.device()
	if err != nil {
		return nil, err
	}
	logger := t.Logger.WithField("address", address)

	logger.Debugf("connecting to device")
	cln, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &radoneye.ConnectError{Kind: radoneye.Timeout, Address: address, Err: err}
		}
		return nil, errors.Wrap(NormalizeError(err), "couldn't connect to ble")
	}

	l := &bleLink{
		client: cln,
		chars:  map[session.Characteristic]*ble.Characteristic{},
		logger: logger,
		done:   make(chan struct{}),
	}

	// Normally we disconnect ourselves, but the peripheral can go away at any
	// time. Watch for it so Done fires either way.
	go func() {
		<-cln.Disconnected()
		l.mu.Lock()
		if !l.closing {
			l.err = radoneye.ErrLinkLost
		}
		l.mu.Unlock()
		logger.Debugf("device disconnected")
		close(l.done)
	}()

	if err := l.discover(); err != nil {
		_ = l.Close()
		return nil, err
	}
	return l, nil
}

func (l *bleLink) discover() error {
	l.logger.Debugf("discovering services")
	services, err := l.client.DiscoverServices([]ble.UUID{serviceUUID})
	if err != nil {
		return errors.Wrap(NormalizeError(err), "couldn't discover services")
	}
	if len(services) == 0 {
		return errors.New("did not find expected rd200 service")
	}

	l.logger.Debugf("discovering characteristics")
	characteristics, err := l.client.DiscoverCharacteristics(nil, services[0])
	if err != nil {
		return errors.Wrap(NormalizeError(err), "couldn't discover characteristics")
	}
	for which, u := range charUUIDs {
		for _, c := range characteristics {
			if c.UUID.Equal(u) {
				l.chars[which] = c
			}
		}
		if l.chars[which] == nil {
			return errors.Errorf("did not find expected %s characteristic", which)
		}
	}

	// notifications need the CCCD handle
	for _, which := range []session.Characteristic{session.Measurement, session.Log} {
		if _, err := l.client.DiscoverDescriptors(nil, l.chars[which]); err != nil {
			return errors.Wrapf(NormalizeError(err), "couldn't discover %s descriptors", which)
		}
	}
	return nil
}

func (l *bleLink) Subscribe(c session.Characteristic, handler func([]byte)) error {
	if err := l.client.Subscribe(l.chars[c], false, handler); err != nil {
		return errors.Wrapf(NormalizeError(err), "failed to subscribe to %s", c)
	}
	return nil
}

func (l *bleLink) Unsubscribe(c session.Characteristic) error {
	select {
	case <-l.done:
		return nil
	default:
	}
	if err := l.client.Unsubscribe(l.chars[c], false); err != nil {
		return errors.Wrapf(NormalizeError(err), "failed to unsubscribe from %s", c)
	}
	return nil
}

func (l *bleLink) Write(c session.Characteristic, data []byte) error {
	char := l.chars[c]
	noRsp := char.Property&ble.CharWrite == 0 && char.Property&ble.CharWriteNR != 0
	if err := l.client.WriteCharacteristic(char, data, noRsp); err != nil {
		return errors.Wrapf(NormalizeError(err), "failed to write %s", c)
	}
	return nil
}

func (l *bleLink) Done() <-chan struct{} { return l.done }

func (l *bleLink) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *bleLink) Close() error {
	l.mu.Lock()
	l.closing = true
	l.mu.Unlock()

	l.logger.Debugf("closing connection")
	err := l.client.CancelConnection()
	select {
	case <-l.done:
	case <-time.After(closeTimeout):
		l.logger.Warn("timed out waiting for disconnect")
	}
	return err
}

package session

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/alepar/radoneye/radoneye"
	"github.com/alepar/radoneye/radoneye/rd200"
)

// Request sends r and waits for the first frame of type want, skipping
// frames of other or unknown types. It must not be used while another
// goroutine consumes Next.
func (s *Session) Request(ctx context.Context, r rd200.Request, want rd200.Command) (rd200.Packet, error) {
	ctx, cancel := s.responseContext(ctx)
	defer cancel()

	if err := s.Send(r); err != nil {
		return nil, err
	}
	for {
		n, err := s.Next(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "no response to %s", r.Command())
		}
		p, err := rd200.DecodeAs(n.Data, want)
		switch {
		case err == nil:
			return p, nil
		case rd200.IsDecodeError(err, rd200.Malformed):
			return nil, err
		default:
			s.logger.WithError(err).Debug("skipping frame while waiting for response")
		}
	}
}

func (s *Session) responseContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.connector.opts.ResponseTimeout > 0 {
		return context.WithTimeout(ctx, s.connector.opts.ResponseTimeout)
	}
	return context.WithCancel(ctx)
}

// Measurement queries a single reading.
func (s *Session) Measurement(ctx context.Context) (radoneye.Reading, error) {
	ctx, cancel := s.responseContext(ctx)
	defer cancel()

	if err := s.Send(rd200.Query(rd200.CmdMeasurement)); err != nil {
		return radoneye.Reading{}, err
	}
	for {
		n, err := s.Next(ctx)
		if err != nil {
			return radoneye.Reading{}, errors.Wrap(err, "no measurement received")
		}
		reading, err := rd200.DecodeNotification(n.Data, n.Received)
		if err == nil {
			return reading, nil
		}
		if rd200.IsDecodeError(err, rd200.Malformed) {
			return radoneye.Reading{}, err
		}
		s.logger.WithError(err).Debug("skipping frame while waiting for measurement")
	}
}

// Serial queries the manufacturing date and serial number.
func (s *Session) Serial(ctx context.Context) (rd200.Serial, error) {
	p, err := s.Request(ctx, rd200.Query(rd200.CmdSerial), rd200.CmdSerial)
	if err != nil {
		return rd200.Serial{}, err
	}
	return p.(rd200.Serial), nil
}

// ModelName queries the model name, e.g. "RD200".
func (s *Session) ModelName(ctx context.Context) (string, error) {
	p, err := s.Request(ctx, rd200.Query(rd200.CmdModelName), rd200.CmdModelName)
	if err != nil {
		return "", err
	}
	return p.(rd200.ModelName).Name, nil
}

// Config queries the display unit and alarm settings.
func (s *Session) Config(ctx context.Context) (rd200.Config, error) {
	p, err := s.Request(ctx, rd200.Query(rd200.CmdConfig), rd200.CmdConfig)
	if err != nil {
		return rd200.Config{}, err
	}
	return p.(rd200.Config), nil
}

// SetUnit changes the unit shown on the device screen. The device does not
// acknowledge it.
func (s *Session) SetUnit(u rd200.Unit) error {
	return s.Send(rd200.UnitSet{Unit: u})
}

// SetDateTime sets the device clock to t.
func (s *Session) SetDateTime(t time.Time) error {
	return s.Send(rd200.DateTimeSet{Time: t})
}

// ReadLog downloads the hourly log stored on the device.
func (s *Session) ReadLog(ctx context.Context, timeout time.Duration) ([]float64, error) {
	p, err := s.Request(ctx, rd200.Query(rd200.CmdLogInfo), rd200.CmdLogInfo)
	if err != nil {
		return nil, err
	}
	info := p.(rd200.LogInfo)
	want := rd200.LogBufferLen(info)

	chunks := make(chan []byte, 64)
	err = s.link.Subscribe(Log, func(data []byte) {
		s.logger.Debugf("<-- (%s) %s", Log, hex.EncodeToString(data))
		select {
		case chunks <- append([]byte(nil), data...):
		default:
			s.logger.Warn("log buffer full, dropping chunk")
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "couldn't subscribe to log characteristic")
	}
	defer func() {
		if err := s.link.Unsubscribe(Log); err != nil {
			s.logger.WithError(err).Warn("failed to stop log notifications")
		}
	}()

	if err := s.Send(rd200.Query(rd200.CmdLogDataSend)); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	buf := make([]byte, 0, want)
	for len(buf) < want {
		select {
		case chunk := <-chunks:
			buf = append(buf, chunk...)
		case <-s.link.Done():
			return nil, errors.Wrap(radoneye.ErrLinkLost, "link lost during log download")
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "log download stopped after %d of %d bytes", len(buf), want)
		}
	}
	s.logger.WithFields(logrus.Fields{"entries": info.DataNo}).Debug("log downloaded")
	return rd200.DecodeLog(buf, info)
}

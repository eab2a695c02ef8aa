// Package stream turns repeated device sessions into one continuous sequence
// of readings.
package stream

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/alepar/radoneye/radoneye"
	"github.com/alepar/radoneye/radoneye/rd200"
	"github.com/alepar/radoneye/radoneye/session"
)

// Observer is told about everything the stream sees. All methods are called
// from the goroutine calling Next.
type Observer interface {
	ObserveReading(radoneye.Reading)
	ObserveDecodeError(rd200.DecodeErrorKind)
	ObserveReconnect()
}

type nopObserver struct{}

func (nopObserver) ObserveReading(radoneye.Reading)          {}
func (nopObserver) ObserveDecodeError(rd200.DecodeErrorKind) {}
func (nopObserver) ObserveReconnect()                        {}

// DefaultInterval matches how often the device refreshes its own value.
const DefaultInterval = 10 * time.Minute

// Options configures a Stream.
type Options struct {
	// Interval between measurement queries within a session.
	Interval time.Duration

	Reconnect Policy

	// OnConnect runs on every new session before polling starts. An error
	// drops the session and schedules a reconnect.
	OnConnect func(ctx context.Context, s *session.Session) error

	Observer Observer
}

// Stream yields readings from one device, reconnecting on link loss. It is not
// safe for concurrent use.
type Stream struct {
	connector *session.Connector
	id        radoneye.Identity
	opts      Options
	logger    logrus.FieldLogger
	backoff   backoff.BackOff

	sess        *session.Session
	sessCtx     context.Context
	stopPolling context.CancelCauseFunc
	polling     sync.WaitGroup

	// a reconnect is due; wait out the backoff first
	retry         bool
	unknownLogged bool
}

// New returns a stream for id. Nothing is connected until the first Next.
func New(connector *session.Connector, id radoneye.Identity, opts Options, logger logrus.FieldLogger) *Stream {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Reconnect == (Policy{}) {
		opts.Reconnect = DefaultPolicy()
	}
	return &Stream{
		connector: connector,
		id:        id,
		opts:      opts,
		logger:    logger.WithField("address", id.Address),
		backoff:   opts.Reconnect.BackOff(),
	}
}

// Next blocks until the next reading. It only returns an error when ctx is
// done; every device-side failure is retried. The current session is closed
// before returning that error.
func (s *Stream) Next(ctx context.Context) (radoneye.Reading, error) {
	for {
		if err := ctx.Err(); err != nil {
			s.closeSession()
			return radoneye.Reading{}, err
		}

		if s.sess == nil {
			if s.retry {
				if err := s.wait(ctx); err != nil {
					return radoneye.Reading{}, err
				}
			}
			if err := s.open(ctx); err != nil {
				if ctx.Err() != nil {
					return radoneye.Reading{}, ctx.Err()
				}
				s.logger.WithError(err).Warn("failed to connect to device")
				s.retry = true
				continue
			}
		}

		n, err := s.sess.Next(s.sessCtx)
		if err != nil {
			if ctx.Err() != nil {
				s.closeSession()
				return radoneye.Reading{}, ctx.Err()
			}
			s.sessionEnded(err)
			continue
		}

		reading, err := rd200.DecodeNotification(n.Data, n.Received)
		if err != nil {
			s.skip(err)
			continue
		}
		s.backoff.Reset()
		s.opts.Observer.ObserveReading(reading)
		return reading, nil
	}
}

func (s *Stream) wait(ctx context.Context) error {
	d := s.backoff.NextBackOff()
	s.logger.WithField("backoff", d).Info("reconnecting after backoff")
	s.opts.Observer.ObserveReconnect()

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		s.retry = false
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stream) open(ctx context.Context) error {
	sess, err := s.connector.Connect(ctx, s.id)
	if err != nil {
		return err
	}
	if s.opts.OnConnect != nil {
		if err := s.opts.OnConnect(ctx, sess); err != nil {
			_ = sess.Close()
			return errors.Wrap(err, "session setup failed")
		}
	}

	s.sess = sess
	s.unknownLogged = false
	var sessCtx context.Context
	sessCtx, s.stopPolling = context.WithCancelCause(ctx)
	s.sessCtx = sessCtx
	s.polling.Add(1)
	go s.poll(sessCtx, sess)
	return nil
}

// poll queries a measurement right away and then once per interval.
func (s *Stream) poll(ctx context.Context, sess *session.Session) {
	defer s.polling.Done()

	limiter := rate.NewLimiter(rate.Every(s.opts.Interval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if err := sess.Send(rd200.Query(rd200.CmdMeasurement)); err != nil {
			s.stopPolling(errors.Wrapf(radoneye.ErrLinkLost, "measurement query failed: %s", err))
			return
		}
	}
}

func (s *Stream) sessionEnded(err error) {
	if errors.Is(err, context.Canceled) {
		if cause := context.Cause(s.sessCtx); cause != nil {
			err = cause
		}
	}
	if err == io.EOF {
		s.logger.Info("device disconnected")
	} else {
		s.logger.WithError(err).Warn("device link lost")
	}
	s.closeSession()
	s.retry = true
}

func (s *Stream) skip(err error) {
	var de *rd200.DecodeError
	if !errors.As(err, &de) {
		s.logger.WithError(err).Warn("skipping frame")
		return
	}
	s.opts.Observer.ObserveDecodeError(de.Kind)

	entry := s.logger.WithFields(logrus.Fields{
		"frame_type": de.Type.String(),
		"error":      err,
	})
	switch de.Kind {
	case rd200.UnknownFrameType:
		if !s.unknownLogged {
			entry.Warn("skipping unknown frame type, newer hardware generations are not supported")
			s.unknownLogged = true
			return
		}
		entry.Debug("skipping unknown frame type")
	case rd200.UnexpectedFrameType:
		entry.Debug("skipping unexpected frame")
	default:
		entry.Warn("skipping malformed frame")
	}
}

func (s *Stream) closeSession() {
	if s.sess == nil {
		return
	}
	s.stopPolling(nil)
	s.polling.Wait()
	if err := s.sess.Close(); err != nil {
		s.logger.WithError(err).Warn("failed to close session")
	}
	s.sess = nil
	s.sessCtx = nil
	s.stopPolling = nil
}

// Close releases the current session, if any.
func (s *Stream) Close() error {
	s.closeSession()
	return nil
}

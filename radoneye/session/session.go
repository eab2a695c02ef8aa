package session

import (
	"context"
	"encoding/hex"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/alepar/radoneye/radoneye"
	"github.com/alepar/radoneye/radoneye/rd200"
)

var (
	// ErrSessionActive is returned by Connect while a previous session is still open.
	ErrSessionActive = errors.New("a device session is already open")

	// ErrClosed is returned when using a session after Close.
	ErrClosed = errors.New("device session closed")
)

// State is the lifecycle position of a session.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateSubscribing
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateSubscribing:
		return "subscribing"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Options tunes a Connector.
type Options struct {
	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration

	// BufferSize bounds the notifications queued between the BLE stack and Next.
	BufferSize int
}

const defaultBufferSize = 16

// Connector opens sessions on one transport and holds at most one open at a time.
type Connector struct {
	transport Transport
	opts      Options
	logger    logrus.FieldLogger
	active    atomic.Bool

	// now stamps received notifications
	now func() time.Time
}

// NewConnector creates a Connector for t.
func NewConnector(t Transport, opts Options, logger logrus.FieldLogger) *Connector {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	return &Connector{
		transport: t,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// Notification is a raw payload from the measurement characteristic.
type Notification struct {
	Data     []byte
	Received time.Time
}

// Session is one subscribed connection to an RD200. It must be closed on every
// exit path; the Connector refuses to open another one until then.
type Session struct {
	id        radoneye.Identity
	link      Link
	connector *Connector
	logger    logrus.FieldLogger

	state         atomic.Int32
	notifications chan Notification
	closed        chan struct{}
	closeOnce     sync.Once
	closeErr      error
}

// Connect dials id and subscribes to the measurement characteristic.
func (c *Connector) Connect(ctx context.Context, id radoneye.Identity) (*Session, error) {
	if !c.active.CompareAndSwap(false, true) {
		return nil, ErrSessionActive
	}

	s := &Session{
		id:            id,
		connector:     c,
		logger:        c.logger.WithField("address", id.Address),
		notifications: make(chan Notification, c.opts.BufferSize),
		closed:        make(chan struct{}),
	}
	s.setState(StateConnecting)

	dialCtx := ctx
	if c.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.opts.ConnectTimeout)
		defer cancel()
	}

	s.logger.Debugf("connecting to device")
	link, err := c.transport.Dial(dialCtx, id.Address)
	if err != nil {
		s.setState(StateClosed)
		c.active.Store(false)
		return nil, connectError(dialCtx, id.Address, err)
	}
	s.link = link

	s.setState(StateSubscribing)
	if err := link.Subscribe(Measurement, s.handleNotification); err != nil {
		_ = link.Close()
		s.setState(StateClosed)
		c.active.Store(false)
		return nil, &radoneye.ConnectError{
			Kind:    radoneye.DeviceUnreachable,
			Address: id.Address,
			Err:     errors.Wrap(err, "couldn't subscribe to measurement characteristic"),
		}
	}

	s.setState(StateStreaming)
	s.logger.Info("connected to radoneye rd200")
	return s, nil
}

func connectError(ctx context.Context, address string, err error) error {
	var ce *radoneye.ConnectError
	if errors.As(err, &ce) {
		return err
	}
	kind := radoneye.DeviceUnreachable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = radoneye.Timeout
	}
	return &radoneye.ConnectError{Kind: kind, Address: address, Err: err}
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Identity returns the device this session is connected to.
func (s *Session) Identity() radoneye.Identity {
	return s.id
}

func (s *Session) handleNotification(data []byte) {
	n := Notification{
		Data:     append([]byte(nil), data...),
		Received: s.connector.now(),
	}
	s.logger.Debugf("<-- (%s) %s", Measurement, hex.EncodeToString(n.Data))
	select {
	case s.notifications <- n:
	default:
		s.logger.Warn("notification buffer full, dropping notification")
	}
}

// Next blocks until the next notification. It returns io.EOF when the peer
// disconnected cleanly or the session was closed, an error wrapping
// radoneye.ErrLinkLost on abnormal disconnection, and ctx.Err() on cancellation.
func (s *Session) Next(ctx context.Context) (Notification, error) {
	select {
	case n := <-s.notifications:
		return n, nil
	default:
	}

	select {
	case n := <-s.notifications:
		return n, nil
	case <-s.closed:
		return Notification{}, io.EOF
	case <-s.link.Done():
		if err := s.link.Err(); err != nil {
			return Notification{}, errors.Wrapf(radoneye.ErrLinkLost, "%s", err)
		}
		return Notification{}, io.EOF
	case <-ctx.Done():
		return Notification{}, ctx.Err()
	}
}

// Send writes r to the control characteristic.
func (s *Session) Send(r rd200.Request) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}
	frame := rd200.Encode(r)
	s.logger.Debugf("--> (%s) %s", Control, hex.EncodeToString(frame))
	if err := s.link.Write(Control, frame); err != nil {
		return errors.Wrapf(err, "failed to write command %s", r.Command())
	}
	return nil
}

// Close releases the BLE connection. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.setState(StateClosed)
		close(s.closed)
		s.logger.Debugf("closing connection")
		if err := s.link.Unsubscribe(Measurement); err != nil {
			// the peer may already be gone
			s.logger.WithError(err).Debug("failed to unsubscribe")
		}
		s.closeErr = s.link.Close()
		s.connector.active.Store(false)
	})
	return s.closeErr
}

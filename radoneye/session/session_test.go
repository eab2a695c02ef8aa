package session_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/alepar/radoneye/radoneye"
	"github.com/alepar/radoneye/radoneye/rd200"
	"github.com/alepar/radoneye/radoneye/session"
	"github.com/alepar/radoneye/radoneye/session/sessiontest"
)

var device = radoneye.Identity{Address: "C4:7C:8D:6A:01:01", Adapter: "hci0"}

type SessionTestSuite struct {
	suite.Suite

	transport *sessiontest.Transport
	connector *session.Connector
}

func (s *SessionTestSuite) SetupTest() {
	s.transport = &sessiontest.Transport{}
	s.connector = session.NewConnector(s.transport, session.Options{
		ConnectTimeout:  time.Second,
		ResponseTimeout: time.Second,
	}, nil)
}

func (s *SessionTestSuite) connect() (*session.Session, *sessiontest.Link) {
	sess, err := s.connector.Connect(context.Background(), device)
	s.Require().NoError(err)
	links := s.transport.Links()
	s.Require().NotEmpty(links)
	return sess, links[len(links)-1]
}

func (s *SessionTestSuite) TestConnect() {
	sess, link := s.connect()
	defer sess.Close()

	s.Equal(session.StateStreaming, sess.State())
	s.Equal(device, sess.Identity())
	s.Equal(device.Address, link.Address)
}

func (s *SessionTestSuite) TestConnect_OnlyOneSessionAtATime() {
	sess, _ := s.connect()

	_, err := s.connector.Connect(context.Background(), device)
	s.ErrorIs(err, session.ErrSessionActive)
	s.Equal(1, s.transport.Dials(), "a second physical connection must not be attempted")

	s.Require().NoError(sess.Close())
	s.Equal(session.StateClosed, sess.State())

	again, err := s.connector.Connect(context.Background(), device)
	s.Require().NoError(err)
	s.NoError(again.Close())
}

func (s *SessionTestSuite) TestConnect_DialFailure() {
	s.transport.DialErrs = []error{
		errors.New("connection refused"),
		context.DeadlineExceeded,
		&radoneye.ConnectError{Kind: radoneye.AdapterUnavailable, Err: errors.New("hci0 down")},
	}

	_, err := s.connector.Connect(context.Background(), device)
	s.True(radoneye.IsConnectError(err, radoneye.DeviceUnreachable), "got %v", err)

	_, err = s.connector.Connect(context.Background(), device)
	s.True(radoneye.IsConnectError(err, radoneye.Timeout), "got %v", err)

	_, err = s.connector.Connect(context.Background(), device)
	s.True(radoneye.IsConnectError(err, radoneye.AdapterUnavailable), "got %v", err)

	// failed attempts release the connector
	sess, _ := s.connect()
	s.NoError(sess.Close())
}

func (s *SessionTestSuite) TestConnect_SubscribeFailure() {
	s.transport.OnDial = func(_ int, l *sessiontest.Link) {
		l.SubscribeErr = errors.New("cccd not found")
	}

	_, err := s.connector.Connect(context.Background(), device)

	s.True(radoneye.IsConnectError(err, radoneye.DeviceUnreachable), "got %v", err)
	s.True(s.transport.Links()[0].Closed(), "link must be released")
}

func (s *SessionTestSuite) TestNext() {
	sess, link := s.connect()
	defer sess.Close()

	link.Notify(session.Measurement, []byte{0x50, 0x01})
	link.Notify(session.Log, []byte{0xFF})

	n, err := sess.Next(context.Background())
	s.Require().NoError(err)
	s.Equal([]byte{0x50, 0x01}, n.Data)
	s.False(n.Received.IsZero())
}

func (s *SessionTestSuite) TestNext_DrainsBeforeDisconnect() {
	sess, link := s.connect()
	defer sess.Close()

	link.Notify(session.Measurement, []byte{0x01})
	link.Disconnect(errors.New("supervision timeout"))

	n, err := sess.Next(context.Background())
	s.Require().NoError(err)
	s.Equal([]byte{0x01}, n.Data)

	_, err = sess.Next(context.Background())
	s.ErrorIs(err, radoneye.ErrLinkLost)
}

func (s *SessionTestSuite) TestNext_CleanDisconnect() {
	sess, link := s.connect()
	defer sess.Close()

	link.Disconnect(nil)

	_, err := sess.Next(context.Background())
	s.Equal(io.EOF, err)
}

func (s *SessionTestSuite) TestNext_Cancelled() {
	sess, _ := s.connect()
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sess.Next(ctx)
	s.ErrorIs(err, context.DeadlineExceeded)
}

func (s *SessionTestSuite) TestClose() {
	sess, link := s.connect()

	s.NoError(sess.Close())
	s.NoError(sess.Close())
	s.True(link.Closed())

	_, err := sess.Next(context.Background())
	s.Equal(io.EOF, err)
	s.ErrorIs(sess.Send(rd200.Query(rd200.CmdMeasurement)), session.ErrClosed)
}

func (s *SessionTestSuite) TestMeasurement() {
	expected := radoneye.Reading{CurrentValue: 0.5, DayValue: 0.75, MonthValue: 1.25, PulseCount: 42, PulseCount10Min: 3}
	s.transport.OnDial = func(_ int, l *sessiontest.Link) {
		l.OnWrite = func(l *sessiontest.Link, c session.Characteristic, data []byte) error {
			if c == session.Control && data[0] == byte(rd200.CmdMeasurement) {
				l.Notify(session.Measurement, []byte{0x52, 0x00}) // newer hardware frame
				l.Notify(session.Measurement, sessiontest.MeasurementFrame(expected))
			}
			return nil
		}
	}
	sess, link := s.connect()
	defer sess.Close()

	reading, err := sess.Measurement(context.Background())

	s.Require().NoError(err)
	s.Equal(expected.CurrentValue, reading.CurrentValue)
	s.Equal(expected.PulseCount, reading.PulseCount)
	s.False(reading.Timestamp.IsZero())
	s.Equal([][]byte{{0x50}}, link.Writes())
}

func (s *SessionTestSuite) TestRequest_Timeout() {
	s.connector = session.NewConnector(s.transport, session.Options{ResponseTimeout: 20 * time.Millisecond}, nil)
	sess, _ := s.connect()
	defer sess.Close()

	_, err := sess.ModelName(context.Background())

	s.ErrorIs(err, context.DeadlineExceeded)
}

func (s *SessionTestSuite) TestSerialAndModel() {
	s.transport.OnDial = func(_ int, l *sessiontest.Link) {
		l.OnWrite = func(l *sessiontest.Link, c session.Characteristic, data []byte) error {
			switch rd200.Command(data[0]) {
			case rd200.CmdSerial:
				l.Notify(session.Measurement, append([]byte{0xA4, 0x0D}, []byte("20210314R0042")...))
			case rd200.CmdModelName:
				l.Notify(session.Measurement, append([]byte{0xA8, 0x06, 0x00}, []byte("RD200")...))
			}
			return nil
		}
	}
	sess, _ := s.connect()
	defer sess.Close()

	serial, err := sess.Serial(context.Background())
	s.Require().NoError(err)
	s.Equal("R0042", serial.Serial)

	model, err := sess.ModelName(context.Background())
	s.Require().NoError(err)
	s.Equal("RD200", model)
}

func (s *SessionTestSuite) TestSetUnit() {
	sess, link := s.connect()
	defer sess.Close()

	s.Require().NoError(sess.SetUnit(rd200.UnitBqM3))

	s.Equal([][]byte{{0xA2, 0x01, 0x01}}, link.Writes())
}

func (s *SessionTestSuite) TestReadLog() {
	s.transport.OnDial = func(_ int, l *sessiontest.Link) {
		l.OnWrite = func(l *sessiontest.Link, c session.Characteristic, data []byte) error {
			switch rd200.Command(data[0]) {
			case rd200.CmdLogInfo:
				l.Notify(session.Measurement, []byte{0xE8, 0x03, 0x03, 0x00, 0x00})
			case rd200.CmdLogDataSend:
				l.Notify(session.Log, []byte{0x64, 0x00, 0xE8, 0x03})
				l.Notify(session.Log, []byte{0x0F, 0x00})
			}
			return nil
		}
	}
	sess, _ := s.connect()
	defer sess.Close()

	values, err := sess.ReadLog(context.Background(), time.Second)

	s.Require().NoError(err)
	s.Equal([]float64{1, 10, 0.15}, values)
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "streaming", session.StateStreaming.String())
	assert.Equal(t, "closed", session.StateClosed.String())
	require.Equal(t, "CTL", session.Control.String())
}

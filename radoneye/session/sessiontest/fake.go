// Package sessiontest provides an in-memory BLE transport for tests.
package sessiontest

import (
	"context"
	"encoding/binary"
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/alepar/radoneye/radoneye"
	"github.com/alepar/radoneye/radoneye/session"
)

// Transport is a scripted session.Transport.
type Transport struct {
	// Advertisements are delivered in order to every Scan.
	Advertisements []session.Advertisement
	ScanErr        error

	// DialErrs are consumed one per Dial; a nil entry or an exhausted list
	// means the dial succeeds.
	DialErrs []error

	// OnDial is invoked with the attempt number (from 0) and the new link
	// before Dial returns.
	OnDial func(attempt int, l *Link)

	mu    sync.Mutex
	scans int
	dials int
	links []*Link
}

func (t *Transport) Scan(ctx context.Context, handler func(session.Advertisement)) error {
	t.mu.Lock()
	t.scans++
	t.mu.Unlock()

	for _, a := range t.Advertisements {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		handler(a)
	}
	if t.ScanErr != nil {
		return t.ScanErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func (t *Transport) Dial(ctx context.Context, address string) (session.Link, error) {
	t.mu.Lock()
	attempt := t.dials
	t.dials++
	var err error
	if attempt < len(t.DialErrs) {
		err = t.DialErrs[attempt]
	}
	t.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	l := NewLink(address)
	t.mu.Lock()
	t.links = append(t.links, l)
	t.mu.Unlock()
	if t.OnDial != nil {
		t.OnDial(attempt, l)
	}
	return l, nil
}

// Scans returns how many scans were started.
func (t *Transport) Scans() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scans
}

// Dials returns how many dials were attempted.
func (t *Transport) Dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

// Links returns every link handed out so far.
func (t *Transport) Links() []*Link {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Link(nil), t.links...)
}

// Link is a scripted session.Link.
type Link struct {
	Address string

	// OnWrite answers writes, typically by calling Notify.
	OnWrite func(l *Link, c session.Characteristic, data []byte) error

	SubscribeErr error

	mu       sync.Mutex
	handlers map[session.Characteristic]func([]byte)
	writes   [][]byte
	done     chan struct{}
	err      error
	once     sync.Once
	closed   bool
}

// NewLink returns a connected link.
func NewLink(address string) *Link {
	return &Link{
		Address:  address,
		handlers: map[session.Characteristic]func([]byte){},
		done:     make(chan struct{}),
	}
}

func (l *Link) Subscribe(c session.Characteristic, handler func([]byte)) error {
	if l.SubscribeErr != nil {
		return l.SubscribeErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[c] = handler
	return nil
}

func (l *Link) Unsubscribe(c session.Characteristic) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.handlers, c)
	return nil
}

func (l *Link) Write(c session.Characteristic, data []byte) error {
	select {
	case <-l.done:
		return errors.New("device not connected")
	default:
	}
	l.mu.Lock()
	l.writes = append(l.writes, append([]byte(nil), data...))
	onWrite := l.OnWrite
	l.mu.Unlock()
	if onWrite != nil {
		return onWrite(l, c, data)
	}
	return nil
}

func (l *Link) Done() <-chan struct{} { return l.done }

func (l *Link) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

func (l *Link) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.Disconnect(nil)
	return nil
}

// Notify delivers data to the handler subscribed to c, if any.
func (l *Link) Notify(c session.Characteristic, data []byte) {
	l.mu.Lock()
	h := l.handlers[c]
	l.mu.Unlock()
	if h != nil {
		h(data)
	}
}

// Disconnect simulates the peer going away; a nil err is a clean disconnect.
func (l *Link) Disconnect(err error) {
	l.once.Do(func() {
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
		close(l.done)
	})
}

// Writes returns every frame written so far.
func (l *Link) Writes() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.writes...)
}

// Closed reports whether Close was called.
func (l *Link) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// MeasurementFrame encodes r the way the device answers a measurement query.
func MeasurementFrame(r radoneye.Reading) []byte {
	buf := make([]byte, 18)
	buf[0] = 0x50
	buf[1] = 16
	binary.LittleEndian.PutUint32(buf[2:6], math.Float32bits(r.CurrentValue))
	binary.LittleEndian.PutUint32(buf[6:10], math.Float32bits(r.DayValue))
	binary.LittleEndian.PutUint32(buf[10:14], math.Float32bits(r.MonthValue))
	binary.LittleEndian.PutUint16(buf[14:16], r.PulseCount)
	binary.LittleEndian.PutUint16(buf[16:18], r.PulseCount10Min)
	return buf
}

package radoneye

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a scan ends without a matching advertiser.
	ErrNotFound = errors.New("radoneye rd200 not found")

	// ErrLinkLost signals an abnormal disconnection of an established session.
	ErrLinkLost = errors.New("ble link lost")
)

// ConnectErrorKind classifies why a connection attempt failed.
type ConnectErrorKind int

const (
	AdapterUnavailable ConnectErrorKind = iota
	DeviceUnreachable
	Timeout
)

func (k ConnectErrorKind) String() string {
	switch k {
	case AdapterUnavailable:
		return "adapter unavailable"
	case DeviceUnreachable:
		return "device unreachable"
	case Timeout:
		return "timeout"
	}
	return fmt.Sprintf("ConnectErrorKind(%d)", int(k))
}

// ConnectError is returned when a session could not be opened. It is never
// fatal on its own; the reading stream retries it.
type ConnectError struct {
	Kind    ConnectErrorKind
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connect %s: %s", e.Address, e.Kind)
	}
	return fmt.Sprintf("connect %s: %s: %s", e.Address, e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// IsConnectError reports whether err wraps a ConnectError of the given kind.
func IsConnectError(err error, kind ConnectErrorKind) bool {
	var ce *ConnectError
	return errors.As(err, &ce) && ce.Kind == kind
}

// Package session manages the BLE connection to a single RadonEye RD200.
//
// The BLE stack is reached through the Transport and Link capabilities so the
// session state machine can run against a real adapter (see package goble) or an
// in-memory fake.
package session

import (
	"context"
	"strings"
)

// RD200 GATT layout. The device reuses the Nordic LED Button Service UUIDs.
const (
	ServiceUUID     = "00001523-1212-efde-1523-785feabcd123"
	ControlUUID     = "00001524-1212-efde-1523-785feabcd123"
	MeasurementUUID = "00001525-1212-efde-1523-785feabcd123"
	LogUUID         = "00001526-1212-efde-1523-785feabcd123"
)

// Characteristic selects one of the RD200 characteristics.
type Characteristic int

const (
	Control Characteristic = iota
	Measurement
	Log
)

func (c Characteristic) String() string {
	switch c {
	case Control:
		return "CTL"
	case Measurement:
		return "MEAS"
	case Log:
		return "LOG"
	}
	return "?"
}

// UUID returns the characteristic UUID.
func (c Characteristic) UUID() string {
	switch c {
	case Control:
		return ControlUUID
	case Measurement:
		return MeasurementUUID
	case Log:
		return LogUUID
	}
	return ""
}

// Advertisement is the part of a scan result discovery looks at.
type Advertisement struct {
	Address     string
	Name        string
	Services    []string
	Connectable bool
	RSSI        int
}

// AdvertisesRD200 reports whether a lists the RD200 service.
func (a Advertisement) AdvertisesRD200() bool {
	want := NormalizeUUID(ServiceUUID)
	for _, s := range a.Services {
		if NormalizeUUID(s) == want {
			return true
		}
	}
	return false
}

// NormalizeUUID lowercases u and strips dashes.
func NormalizeUUID(u string) string {
	return strings.ReplaceAll(strings.ToLower(u), "-", "")
}

// Transport is the BLE capability of one local adapter.
type Transport interface {
	// Scan delivers advertisements to handler until ctx is done. It returns nil
	// or the context error when ctx ends the scan.
	Scan(ctx context.Context, handler func(Advertisement)) error

	// Dial connects to address and resolves the RD200 characteristics.
	Dial(ctx context.Context, address string) (Link, error)
}

// Link is one physical BLE connection.
type Link interface {
	Subscribe(c Characteristic, handler func([]byte)) error
	Unsubscribe(c Characteristic) error
	Write(c Characteristic, data []byte) error

	// Done is closed once the connection is gone, for whatever reason.
	Done() <-chan struct{}

	// Err is nil for a clean disconnect and non-nil for an abnormal one. Only
	// meaningful after Done is closed.
	Err() error

	// Close tears the connection down and waits for Done.
	Close() error
}

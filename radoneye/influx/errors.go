package influx

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind classifies a failed write.
type ErrorKind int

const (
	// Transient failures (network, timeouts, 5xx, 429) are retried.
	Transient ErrorKind = iota
	// Rejected points (400, 413, 422) are dropped without retrying.
	Rejected
	// Fatal failures (rejected credentials, missing database) stop the process.
	Fatal
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Rejected:
		return "rejected"
	case Fatal:
		return "fatal"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// PublishError is returned by Writer.Write and Publisher.Publish.
type PublishError struct {
	Kind ErrorKind
	// HTTP status, 0 when no response was received
	Status int
	Err    error
}

func (e *PublishError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("influxdb write failed (%s): %s", e.Kind, e.Err)
	}
	return fmt.Sprintf("influxdb write failed (%s, status %d): %s", e.Kind, e.Status, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// IsFatal reports whether err must stop the pipeline.
func IsFatal(err error) bool {
	var pe *PublishError
	return errors.As(err, &pe) && pe.Kind == Fatal
}

// Classify maps an HTTP status of a failed write to an error kind.
func Classify(status int) ErrorKind {
	switch {
	case status == 401 || status == 403 || status == 404:
		return Fatal
	case status == 429 || status >= 500:
		return Transient
	case status >= 400:
		return Rejected
	}
	return Transient
}

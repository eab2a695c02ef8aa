package rd200

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/alepar/radoneye/radoneye"
)

// DecodeErrorKind classifies a frame that could not be turned into a packet.
type DecodeErrorKind int

const (
	// Malformed frames are short, have an inconsistent length or carry
	// out-of-range values.
	Malformed DecodeErrorKind = iota

	// UnknownFrameType is expected from newer hardware generations. Callers skip
	// the frame and keep going.
	UnknownFrameType

	// UnexpectedFrameType is a well-formed known frame of a different type than
	// the one asked for.
	UnexpectedFrameType
)

func (k DecodeErrorKind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case UnknownFrameType:
		return "unknown_frame_type"
	case UnexpectedFrameType:
		return "unexpected_frame_type"
	}
	return fmt.Sprintf("DecodeErrorKind(%d)", int(k))
}

// DecodeError describes why a notification payload was rejected.
type DecodeError struct {
	Kind   DecodeErrorKind
	Type   Command
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode frame %s: %s: %s", e.Type, e.Kind, e.Reason)
}

// IsDecodeError reports whether err is a DecodeError of the given kind.
func IsDecodeError(err error, kind DecodeErrorKind) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Kind == kind
}

func malformed(t Command, format string, args ...interface{}) error {
	return &DecodeError{Kind: Malformed, Type: t, Reason: fmt.Sprintf(format, args...)}
}

// Frame is a response as received on the measurement characteristic:
// [type][len][payload...]. Bytes past 2+len are not part of the frame.
type Frame struct {
	Type    Command
	Payload []byte
}

// ParseFrame splits raw into type and payload without interpreting the payload.
func ParseFrame(raw []byte) (Frame, error) {
	if len(raw) == 0 {
		return Frame{}, &DecodeError{Kind: Malformed, Reason: "empty frame"}
	}
	t := Command(raw[0])
	if _, known := decoders[t]; !known {
		return Frame{}, &DecodeError{Kind: UnknownFrameType, Type: t, Reason: "unrecognized frame type"}
	}
	if len(raw) < 2 {
		return Frame{}, malformed(t, "missing length byte")
	}
	n := int(raw[1])
	if len(raw)-2 < n {
		return Frame{}, malformed(t, "length %d exceeds %d available bytes", n, len(raw)-2)
	}
	return Frame{Type: t, Payload: raw[2 : 2+n]}, nil
}

// Decode parses raw into its typed packet.
func Decode(raw []byte) (Packet, error) {
	f, err := ParseFrame(raw)
	if err != nil {
		return nil, err
	}
	return decoders[f.Type](f.Payload)
}

// DecodeAs parses raw and requires it to be a frame of type want.
func DecodeAs(raw []byte, want Command) (Packet, error) {
	f, err := ParseFrame(raw)
	if err != nil {
		return nil, err
	}
	if f.Type != want {
		return nil, &DecodeError{
			Kind:   UnexpectedFrameType,
			Type:   f.Type,
			Reason: fmt.Sprintf("expected %s", want),
		}
	}
	return decoders[f.Type](f.Payload)
}

// DecodeNotification turns a measurement notification into a Reading stamped
// with received. Nothing is returned unless the whole frame decoded.
func DecodeNotification(raw []byte, received time.Time) (radoneye.Reading, error) {
	p, err := DecodeAs(raw, CmdMeasurement)
	if err != nil {
		return radoneye.Reading{}, err
	}
	return p.(Measurement).Reading(received), nil
}

func checkFloat(t Command, name string, v float32) error {
	f := float64(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return malformed(t, "%s is not a finite number", name)
	}
	if f < 0 {
		return malformed(t, "%s is negative: %g", name, f)
	}
	return nil
}

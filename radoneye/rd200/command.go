package rd200

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Command is the leading type byte of every frame, both directions.
type Command byte

const (
	CmdMeasurement          Command = 0x50
	CmdStatus               Command = 0x51
	CmdDateTimeSet          Command = 0xA1
	CmdUnitSet              Command = 0xA2
	CmdSerial               Command = 0xA4
	CmdSerialType           Command = 0xA6
	CmdModelName            Command = 0xA8
	CmdAlarmSet             Command = 0xAA
	CmdConfig               Command = 0xAC
	CmdOLED                 Command = 0xAD // the device does not seem to answer this one
	CmdFirmwareVersion      Command = 0xAF
	CmdModuleConfig         Command = 0xB1
	CmdModuleProtectionResp Command = 0xB3
	CmdModuleProtection     Command = 0xB4
	CmdDisplayCalFactor     Command = 0xBD
	CmdProductProcessMode   Command = 0xC1
	CmdLongDataClear        Command = 0xE0
	CmdLogInfo              Command = 0xE8
	CmdLogDataSend          Command = 0xE9
)

func (c Command) String() string {
	return fmt.Sprintf("0x%02X", byte(c))
}

// Unit is the radon unit shown on the device screen.
type Unit byte

const (
	UnitPCiL Unit = 0
	UnitBqM3 Unit = 1
)

func (u Unit) String() string {
	switch u {
	case UnitPCiL:
		return "pCi/L"
	case UnitBqM3:
		return "Bq/m3"
	}
	return fmt.Sprintf("Unit(%d)", byte(u))
}

// ParseUnit accepts the CLI spellings "pci" and "bq".
func ParseUnit(s string) (Unit, error) {
	switch s {
	case "pci":
		return UnitPCiL, nil
	case "bq":
		return UnitBqM3, nil
	}
	return 0, fmt.Errorf("invalid unit %q (must be pci or bq)", s)
}

// AlarmInterval is how often the device repeats an active alarm.
type AlarmInterval byte

const (
	AlarmTenMinutes AlarmInterval = 0x01
	AlarmOneHour    AlarmInterval = 0x06
	AlarmSixHours   AlarmInterval = 0x24
)

func (i AlarmInterval) valid() bool {
	return i == AlarmTenMinutes || i == AlarmOneHour || i == AlarmSixHours
}

// Request is a frame written to the control characteristic.
type Request interface {
	Command() Command
	Payload() []byte
}

// Query is a bare command without payload, encoded as a single byte.
type Query Command

func (q Query) Command() Command { return Command(q) }
func (q Query) Payload() []byte  { return nil }

// DateTimeSet sets the device clock.
type DateTimeSet struct {
	Time time.Time
}

func (DateTimeSet) Command() Command { return CmdDateTimeSet }

func (d DateTimeSet) Payload() []byte {
	t := d.Time
	return []byte{
		byte(t.Year() % 100),
		byte(t.Month()),
		byte(t.Day()),
		byte(t.Hour()),
		byte(t.Minute()),
		byte(t.Second()),
	}
}

// UnitSet changes the unit used on the device screen.
type UnitSet struct {
	Unit Unit
}

func (UnitSet) Command() Command  { return CmdUnitSet }
func (u UnitSet) Payload() []byte { return []byte{byte(u.Unit)} }

// AlarmSet configures the radon alarm.
type AlarmSet struct {
	Enabled  bool
	Value    float32
	Interval AlarmInterval
}

func (AlarmSet) Command() Command { return CmdAlarmSet }

func (a AlarmSet) Payload() []byte {
	buf := make([]byte, 6)
	if a.Enabled {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint32(buf[1:5], math.Float32bits(a.Value))
	buf[5] = byte(a.Interval)
	return buf
}

// Encode builds the wire frame for r. Queries are one byte long, requests with a
// payload are framed as [cmd][len][payload].
func Encode(r Request) []byte {
	payload := r.Payload()
	if len(payload) == 0 {
		return []byte{byte(r.Command())}
	}
	buf := make([]byte, 0, 2+len(payload))
	buf = append(buf, byte(r.Command()), byte(len(payload)))
	return append(buf, payload...)
}

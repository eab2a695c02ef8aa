package rd200

import (
	"bytes"
	"encoding/binary"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alepar/radoneye/radoneye"
)

// Packet is a decoded response frame.
type Packet interface {
	FrameType() Command
}

var decoders = map[Command]func([]byte) (Packet, error){
	CmdMeasurement:          decodeMeasurement,
	CmdStatus:               decodeStatus,
	CmdSerial:               decodeSerial,
	CmdSerialType:           decodeSerialType,
	CmdModelName:            decodeModelName,
	CmdConfig:               decodeConfig,
	CmdOLED:                 decodeOLEDConfig,
	CmdFirmwareVersion:      decodeFirmwareInfo,
	CmdModuleConfig:         decodeModuleConfig,
	CmdModuleProtectionResp: decodeModuleProtection,
	CmdDisplayCalFactor:     decodeDisplayCalFactor,
	CmdProductProcessMode:   decodeProductProcessMode,
	CmdLogInfo:              decodeLogInfo,
}

// unpack reads a fixed little-endian layout; the payload must match it exactly.
func unpack(t Command, payload []byte, raw interface{}) error {
	if size := binary.Size(raw); len(payload) != size {
		return malformed(t, "payload is %d bytes, want %d", len(payload), size)
	}
	return binary.Read(bytes.NewReader(payload), binary.LittleEndian, raw)
}

func text(t Command, b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", malformed(t, "invalid utf-8 text")
	}
	return strings.TrimRight(string(b), "\x00"), nil
}

// Measurement is the answer to CmdMeasurement.
type Measurement struct {
	ReadValue       float32
	DayValue        float32
	MonthValue      float32
	PulseCount      uint16
	PulseCount10Min uint16
}

func (Measurement) FrameType() Command { return CmdMeasurement }

// Reading converts the packet into a domain reading received at t.
func (m Measurement) Reading(t time.Time) radoneye.Reading {
	return radoneye.Reading{
		CurrentValue:    m.ReadValue,
		DayValue:        m.DayValue,
		MonthValue:      m.MonthValue,
		PulseCount:      m.PulseCount,
		PulseCount10Min: m.PulseCount10Min,
		Timestamp:       t,
	}
}

func decodeMeasurement(payload []byte) (Packet, error) {
	var m Measurement
	if err := unpack(CmdMeasurement, payload, &m); err != nil {
		return nil, err
	}
	for name, v := range map[string]float32{
		"read value":  m.ReadValue,
		"day value":   m.DayValue,
		"month value": m.MonthValue,
	} {
		if err := checkFloat(CmdMeasurement, name, v); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Status is the answer to CmdStatus.
type Status struct {
	DeviceStatus uint8
	VibStatus    uint8
	ProcTime     uint32
	DCValue      uint32
	PeakValue    float32
}

func (Status) FrameType() Command { return CmdStatus }

func decodeStatus(payload []byte) (Packet, error) {
	var s Status
	if err := unpack(CmdStatus, payload, &s); err != nil {
		return nil, err
	}
	return s, nil
}

// Serial carries the manufacturing date and serial number.
type Serial struct {
	Date   string
	Serial string
}

func (Serial) FrameType() Command { return CmdSerial }

func decodeSerial(payload []byte) (Packet, error) {
	if len(payload) < 8 {
		return nil, malformed(CmdSerial, "payload is %d bytes, want at least 8", len(payload))
	}
	date, err := text(CmdSerial, payload[:8])
	if err != nil {
		return nil, err
	}
	serial, err := text(CmdSerial, payload[8:])
	if err != nil {
		return nil, err
	}
	return Serial{Date: date, Serial: serial}, nil
}

// SerialType is the three letter serial number prefix.
type SerialType struct {
	Type string
}

func (SerialType) FrameType() Command { return CmdSerialType }

func decodeSerialType(payload []byte) (Packet, error) {
	if len(payload) < 3 {
		return nil, malformed(CmdSerialType, "payload is %d bytes, want at least 3", len(payload))
	}
	s, err := text(CmdSerialType, payload[:3])
	if err != nil {
		return nil, err
	}
	return SerialType{Type: s}, nil
}

// ModelName is the answer to CmdModelName. Val has no known meaning.
type ModelName struct {
	Val  uint8
	Name string
}

func (ModelName) FrameType() Command { return CmdModelName }

func decodeModelName(payload []byte) (Packet, error) {
	if len(payload) < 1 {
		return nil, malformed(CmdModelName, "empty payload")
	}
	name, err := text(CmdModelName, payload[1:])
	if err != nil {
		return nil, err
	}
	return ModelName{Val: payload[0], Name: name}, nil
}

// Config is the device display and alarm configuration.
type Config struct {
	Unit          Unit
	AlarmStatus   uint8
	AlarmValue    float32
	AlarmInterval AlarmInterval
}

func (Config) FrameType() Command { return CmdConfig }

func decodeConfig(payload []byte) (Packet, error) {
	var c Config
	if err := unpack(CmdConfig, payload, &c); err != nil {
		return nil, err
	}
	if c.Unit != UnitPCiL && c.Unit != UnitBqM3 {
		return nil, malformed(CmdConfig, "unknown unit %d", byte(c.Unit))
	}
	if !c.AlarmInterval.valid() {
		return nil, malformed(CmdConfig, "unknown alarm interval 0x%02X", byte(c.AlarmInterval))
	}
	return c, nil
}

// OLEDConfig is the answer to CmdOLED.
type OLEDConfig struct {
	Value uint32
}

func (OLEDConfig) FrameType() Command { return CmdOLED }

func decodeOLEDConfig(payload []byte) (Packet, error) {
	var o OLEDConfig
	if err := unpack(CmdOLED, payload, &o); err != nil {
		return nil, err
	}
	return o, nil
}

// FirmwareInfo is the answer to CmdFirmwareVersion.
type FirmwareInfo struct {
	Version string
	Status  uint32
}

func (FirmwareInfo) FrameType() Command { return CmdFirmwareVersion }

const firmwareVersionLen = 64

func decodeFirmwareInfo(payload []byte) (Packet, error) {
	end := len(payload)
	if end > firmwareVersionLen {
		end = firmwareVersionLen
	}
	version, err := text(CmdFirmwareVersion, payload[:end])
	if err != nil {
		return nil, err
	}
	info := FirmwareInfo{Version: version}
	if len(payload) >= firmwareVersionLen+4 {
		info.Status = binary.LittleEndian.Uint32(payload[firmwareVersionLen : firmwareVersionLen+4])
	}
	return info, nil
}

// ModuleConfig is the answer to CmdModuleConfig.
type ModuleConfig struct {
	DeviceType uint8
	SNDate     uint32
	SNNo       uint32
	Factor     float32
}

func (ModuleConfig) FrameType() Command { return CmdModuleConfig }

func decodeModuleConfig(payload []byte) (Packet, error) {
	var m ModuleConfig
	if err := unpack(CmdModuleConfig, payload, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ModuleProtection answers CmdModuleProtection with a CmdModuleProtectionResp frame.
type ModuleProtection struct {
	ProtectionStatus uint32
	OperationStatus  uint32
}

func (ModuleProtection) FrameType() Command { return CmdModuleProtectionResp }

func decodeModuleProtection(payload []byte) (Packet, error) {
	var m ModuleProtection
	if err := unpack(CmdModuleProtectionResp, payload, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// DisplayCalFactor is the display calibration factor.
type DisplayCalFactor struct {
	Factor float32
}

func (DisplayCalFactor) FrameType() Command { return CmdDisplayCalFactor }

func decodeDisplayCalFactor(payload []byte) (Packet, error) {
	var d DisplayCalFactor
	if err := unpack(CmdDisplayCalFactor, payload, &d); err != nil {
		return nil, err
	}
	return d, nil
}

// ProductProcessMode is the answer to CmdProductProcessMode.
type ProductProcessMode struct {
	OnOff    uint8
	TimeHour uint8
	Bq       uint16
}

func (ProductProcessMode) FrameType() Command { return CmdProductProcessMode }

func decodeProductProcessMode(payload []byte) (Packet, error) {
	var p ProductProcessMode
	if err := unpack(CmdProductProcessMode, payload, &p); err != nil {
		return nil, err
	}
	return p, nil
}

// LogInfo announces how many log entries CmdLogDataSend will stream.
type LogInfo struct {
	DataNo   uint16
	Checksum int8
}

func (LogInfo) FrameType() Command { return CmdLogInfo }

func decodeLogInfo(payload []byte) (Packet, error) {
	// trailing bytes have no known meaning
	if len(payload) < 3 {
		return nil, malformed(CmdLogInfo, "payload is %d bytes, want at least 3", len(payload))
	}
	return LogInfo{
		DataNo:   binary.LittleEndian.Uint16(payload[0:2]),
		Checksum: int8(payload[2]),
	}, nil
}

// LogBufferLen is the number of log characteristic bytes holding info.DataNo entries.
func LogBufferLen(info LogInfo) int {
	return int(info.DataNo) * 2
}

// DecodeLog converts the concatenated log characteristic notifications into
// hourly radon values.
func DecodeLog(buf []byte, info LogInfo) ([]float64, error) {
	if len(buf) < LogBufferLen(info) {
		return nil, malformed(CmdLogDataSend, "log buffer is %d bytes, want %d", len(buf), LogBufferLen(info))
	}
	values := make([]float64, int(info.DataNo))
	for i := range values {
		values[i] = float64(binary.LittleEndian.Uint16(buf[i*2:i*2+2])) / 100.0
	}
	return values, nil
}

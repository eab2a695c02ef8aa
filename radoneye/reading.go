package radoneye

import (
	"fmt"
	"time"
)

// Reading is one decoded measurement snapshot of an RD200.
type Reading struct {
	// units: pCi/L or Bq/m3, as configured on the device
	CurrentValue float32

	// 24 hour average, same units as CurrentValue
	DayValue float32

	// long term average, same units as CurrentValue
	MonthValue float32

	// raw detector pulses since power-on
	PulseCount uint16

	// pulses in the most recent 10 minute window
	PulseCount10Min uint16

	// when the notification was received, assigned by the session
	Timestamp time.Time
}

// Field names a single exported value of a Reading.
type Field string

const (
	FieldCurrentValue    Field = "current_value"
	FieldDayValue        Field = "day_value"
	FieldMonthValue      Field = "month_value"
	FieldPulseCount      Field = "pulse_count"
	FieldPulseCount10Min Field = "pulse_count_10_min"
)

// AllFields lists every exportable field in export order.
var AllFields = []Field{
	FieldCurrentValue,
	FieldDayValue,
	FieldMonthValue,
	FieldPulseCount,
	FieldPulseCount10Min,
}

// ParseField validates name against the fixed field enumeration.
func ParseField(name string) (Field, error) {
	for _, f := range AllFields {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown field %q (must be one of %v)", name, AllFields)
}

// Value returns the value of f. Floats are float32, counters uint16.
func (r Reading) Value(f Field) (interface{}, bool) {
	switch f {
	case FieldCurrentValue:
		return r.CurrentValue, true
	case FieldDayValue:
		return r.DayValue, true
	case FieldMonthValue:
		return r.MonthValue, true
	case FieldPulseCount:
		return r.PulseCount, true
	case FieldPulseCount10Min:
		return r.PulseCount10Min, true
	}
	return nil, false
}

// Values maps every field name to its value, the shape printed by the measure command.
func (r Reading) Values() map[string]interface{} {
	values := make(map[string]interface{}, len(AllFields))
	for _, f := range AllFields {
		v, _ := r.Value(f)
		values[string(f)] = v
	}
	return values
}

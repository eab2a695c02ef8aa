// Package influx forwards readings to an InfluxDB 1.x compatible write API.
package influx

import (
	"sort"
	"strconv"
	"time"

	"github.com/influxdata/line-protocol/v2/lineprotocol"
	"github.com/pkg/errors"

	"github.com/alepar/radoneye/radoneye"
)

// DefaultMeasurement is the measurement name points are written under.
const DefaultMeasurement = "radon"

// FieldValue is one exported value. Value is a float64 or an int64.
type FieldValue struct {
	Name  radoneye.Field
	Value interface{}
}

// Point is a filtered, backend-ready projection of a reading.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      []FieldValue
	Time        time.Time
}

// ParseExcluded validates field names against the fixed field enumeration.
func ParseExcluded(names []string) ([]radoneye.Field, error) {
	fields := make([]radoneye.Field, 0, len(names))
	for _, name := range names {
		f, err := radoneye.ParseField(name)
		if err != nil {
			return nil, errors.Wrap(err, "invalid excluded field")
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// ExportPoint builds the point for r, leaving out every excluded field.
func ExportPoint(r radoneye.Reading, measurement string, tags map[string]string, excluded []radoneye.Field) Point {
	skip := make(map[radoneye.Field]bool, len(excluded))
	for _, f := range excluded {
		skip[f] = true
	}

	p := Point{
		Measurement: measurement,
		Tags:        tags,
		Time:        r.Timestamp,
	}
	for _, f := range radoneye.AllFields {
		if skip[f] {
			continue
		}
		v, _ := r.Value(f)
		p.Fields = append(p.Fields, FieldValue{Name: f, Value: exportValue(v)})
	}
	return p
}

// Has reports whether the point carries field f.
func (p Point) Has(f radoneye.Field) bool {
	for _, fv := range p.Fields {
		if fv.Name == f {
			return true
		}
	}
	return false
}

func exportValue(v interface{}) interface{} {
	switch v := v.(type) {
	case float32:
		// shortest decimal form, so 1.1 is written as 1.1 and not 1.100000023841858
		f, _ := strconv.ParseFloat(strconv.FormatFloat(float64(v), 'g', -1, 32), 64)
		return f
	case uint16:
		return int64(v)
	}
	return v
}

// Encode renders points as line protocol with millisecond timestamps.
func Encode(points ...Point) ([]byte, error) {
	var enc lineprotocol.Encoder
	enc.SetPrecision(lineprotocol.Millisecond)

	for _, p := range points {
		if len(p.Fields) == 0 {
			return nil, errors.Errorf("point %q has no fields", p.Measurement)
		}
		enc.StartLine(p.Measurement)

		keys := make([]string, 0, len(p.Tags))
		for k := range p.Tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if p.Tags[k] == "" {
				continue
			}
			enc.AddTag(k, p.Tags[k])
		}

		for _, fv := range p.Fields {
			v, err := fieldValue(fv.Value)
			if err != nil {
				return nil, errors.Wrapf(err, "field %s", fv.Name)
			}
			enc.AddField(string(fv.Name), v)
		}
		enc.EndLine(p.Time)
	}
	if err := enc.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to encode line protocol")
	}
	return enc.Bytes(), nil
}

func fieldValue(v interface{}) (lineprotocol.Value, error) {
	switch v := v.(type) {
	case float64:
		fv, ok := lineprotocol.FloatValue(v)
		if !ok {
			return lineprotocol.Value{}, errors.Errorf("invalid float %v", v)
		}
		return fv, nil
	case int64:
		return lineprotocol.IntValue(v), nil
	}
	return lineprotocol.Value{}, errors.Errorf("unsupported value type %T", v)
}

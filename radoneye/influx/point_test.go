package influx_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alepar/radoneye/radoneye"
	"github.com/alepar/radoneye/radoneye/influx"
)

var reading = radoneye.Reading{
	CurrentValue:    1.1,
	DayValue:        2.25,
	MonthValue:      0.5,
	PulseCount:      12,
	PulseCount10Min: 3,
	Timestamp:       time.UnixMilli(1700000000123),
}

func TestExportPoint_Excluded(t *testing.T) {
	excluded, err := influx.ParseExcluded([]string{"pulse_count", "pulse_count_10_min"})
	require.NoError(t, err)

	p := influx.ExportPoint(reading, influx.DefaultMeasurement, nil, excluded)

	var names []radoneye.Field
	for _, f := range p.Fields {
		names = append(names, f.Name)
	}
	assert.Equal(t, []radoneye.Field{radoneye.FieldCurrentValue, radoneye.FieldDayValue, radoneye.FieldMonthValue}, names)
	assert.False(t, p.Has(radoneye.FieldPulseCount))
	assert.Equal(t, reading.Timestamp, p.Time)
}

func TestExportPoint_AllFields(t *testing.T) {
	p := influx.ExportPoint(reading, "radon", nil, nil)

	require.Len(t, p.Fields, 5)
	assert.Equal(t, 1.1, p.Fields[0].Value, "float32 values are exported in their shortest form")
	assert.Equal(t, int64(12), p.Fields[3].Value)
}

func TestParseExcluded_Unknown(t *testing.T) {
	_, err := influx.ParseExcluded([]string{"current_value", "temperature"})
	assert.Error(t, err)
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name     string
		tags     map[string]string
		excluded []radoneye.Field
		want     string
	}{
		{
			name: "all fields",
			want: "radon current_value=1.1,day_value=2.25,month_value=0.5,pulse_count=12i,pulse_count_10_min=3i 1700000000123\n",
		},
		{
			name:     "excluded",
			excluded: []radoneye.Field{radoneye.FieldDayValue, radoneye.FieldPulseCount10Min},
			want:     "radon current_value=1.1,month_value=0.5,pulse_count=12i 1700000000123\n",
		},
		{
			name: "tags sorted",
			tags: map[string]string{"serial": "RD1", "model": "RD200", "address": ""},
			want: "radon,model=RD200,serial=RD1 current_value=1.1,day_value=2.25,month_value=0.5,pulse_count=12i,pulse_count_10_min=3i 1700000000123\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := influx.Encode(influx.ExportPoint(reading, "radon", tt.tags, tt.excluded))
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(body))
		})
	}
}

func TestEncode_NoFields(t *testing.T) {
	_, err := influx.Encode(influx.ExportPoint(reading, "radon", nil, radoneye.AllFields))
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := map[int]influx.ErrorKind{
		400: influx.Rejected,
		401: influx.Fatal,
		403: influx.Fatal,
		404: influx.Fatal,
		413: influx.Rejected,
		422: influx.Rejected,
		429: influx.Transient,
		500: influx.Transient,
		503: influx.Transient,
	}
	for status, want := range tests {
		assert.Equal(t, want, influx.Classify(status), "status %d", status)
	}
}

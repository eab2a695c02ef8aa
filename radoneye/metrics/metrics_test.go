package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alepar/radoneye/radoneye"
	"github.com/alepar/radoneye/radoneye/influx"
	"github.com/alepar/radoneye/radoneye/metrics"
	"github.com/alepar/radoneye/radoneye/rd200"
	"github.com/alepar/radoneye/radoneye/stream"
)

var (
	_ stream.Observer = (*metrics.Metrics)(nil)
	_ influx.Observer = (*metrics.Metrics)(nil)
)

func TestMetrics(t *testing.T) {
	m := metrics.New()

	m.ObserveReading(radoneye.Reading{CurrentValue: 1.5, DayValue: 2.25, MonthValue: 0.5, PulseCount: 12, PulseCount10Min: 3})
	m.ObserveReading(radoneye.Reading{CurrentValue: 1.25})
	m.ObserveDecodeError(rd200.UnknownFrameType)
	m.ObserveDecodeError(rd200.UnknownFrameType)
	m.ObserveDecodeError(rd200.Malformed)
	m.ObserveReconnect()
	m.ObservePublishAttempt()
	m.ObservePublishAttempt()
	m.ObservePointWritten()
	m.ObservePointDropped(influx.DropRetriesExhausted)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, "radoneye_readings_total 2")
	assert.Contains(t, text, "radoneye_radon_current 1.25")
	assert.Contains(t, text, "radoneye_radon_day 0")
	assert.Contains(t, text, `radoneye_decode_errors_total{kind="unknown_frame_type"} 2`)
	assert.Contains(t, text, `radoneye_decode_errors_total{kind="malformed"} 1`)
	assert.Contains(t, text, "radoneye_reconnects_total 1")
	assert.Contains(t, text, "radoneye_publish_attempts_total 2")
	assert.Contains(t, text, "radoneye_points_written_total 1")
	assert.Contains(t, text, `radoneye_points_dropped_total{reason="retries_exhausted"} 1`)
	assert.Contains(t, text, "go_build_info")
	assert.Contains(t, text, "radoneye_build_info")
}

func TestMetrics_Gather(t *testing.T) {
	m := metrics.New()
	m.ObservePointWritten()

	n, err := testutil.GatherAndCount(m.Gatherer(), "radoneye_points_written_total", "radoneye_pulse_count")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

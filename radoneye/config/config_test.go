package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alepar/radoneye/radoneye/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "hci0", cfg.Device.Adapter)
	assert.Empty(t, cfg.Device.Address)
	assert.Equal(t, 5*time.Second, cfg.Device.ScanTimeout)
	assert.Equal(t, 20*time.Second, cfg.Device.ConnectTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Device.Interval)
	assert.Equal(t, time.Second, cfg.Reconnect.Initial)
	assert.Equal(t, 30*time.Second, cfg.Reconnect.Max)
	assert.Equal(t, 0.2, cfg.Reconnect.Jitter)
	assert.Equal(t, "radoneye", cfg.InfluxDB.Database)
	assert.Equal(t, "radoneye", cfg.InfluxDB.Username)
	assert.Equal(t, "radon", cfg.InfluxDB.Measurement)
	assert.Equal(t, 5, cfg.InfluxDB.Attempts)
	assert.Equal(t, 10*time.Second, cfg.InfluxDB.WriteTimeout)
	assert.NoError(t, cfg.Validate())
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "radoneye.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `
log_level: debug
device:
  address: C4:7C:8D:6A:01:01
  interval: 1m
reconnect:
  max: 1m
influxdb:
  url: https://influx.example.com:8086
  exclude_fields: [pulse_count, pulse_count_10_min]
  device_tags: true
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "C4:7C:8D:6A:01:01", cfg.Device.Address)
	assert.Equal(t, time.Minute, cfg.Device.Interval)
	assert.Equal(t, 5*time.Second, cfg.Device.ScanTimeout, "unset keys keep their default")
	assert.Equal(t, time.Minute, cfg.Reconnect.Max)
	assert.Equal(t, []string{"pulse_count", "pulse_count_10_min"}, cfg.InfluxDB.ExcludeFields)
	assert.True(t, cfg.InfluxDB.DeviceTags)
	assert.NoError(t, cfg.ValidateInfluxDB())
}

func TestLoad_Empty(t *testing.T) {
	cfg, err := config.Load(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_UnknownKey(t *testing.T) {
	_, err := config.Load(writeFile(t, "device:\n  adaptor: hci1\n"))
	assert.True(t, config.IsError(err))
}

func TestLoad_Missing(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, config.IsError(err))
}

func TestLoad_PasswordFromEnv(t *testing.T) {
	t.Setenv(config.PasswordEnv, "hunter2")

	cfg, err := config.Load(writeFile(t, "influxdb:\n  password: ignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.InfluxDB.Password)
}

func TestValidateInfluxDB(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
		field  string
	}{
		{"valid", func(c *config.Config) {}, ""},
		{"no url", func(c *config.Config) { c.InfluxDB.URL = "" }, "influxdb.url"},
		{"bad scheme", func(c *config.Config) { c.InfluxDB.URL = "udp://localhost:8089" }, "influxdb.url"},
		{"no host", func(c *config.Config) { c.InfluxDB.URL = "http://" }, "influxdb.url"},
		{"cert without key", func(c *config.Config) { c.InfluxDB.TLSCertificate = "client.crt" }, "influxdb.tls_certificate"},
		{"client cert over http", func(c *config.Config) {
			c.InfluxDB.URL = "http://localhost:8086"
			c.InfluxDB.TLSCertificate = "client.crt"
			c.InfluxDB.TLSKey = "client.key"
		}, "influxdb.tls_certificate"},
		{"unknown field", func(c *config.Config) { c.InfluxDB.ExcludeFields = []string{"temperature"} }, "influxdb.exclude_fields"},
		{"everything excluded", func(c *config.Config) {
			c.InfluxDB.ExcludeFields = []string{"current_value", "day_value", "month_value", "pulse_count", "pulse_count_10_min"}
		}, "influxdb.exclude_fields"},
		{"no attempts", func(c *config.Config) { c.InfluxDB.Attempts = 0 }, "influxdb.attempts"},
		{"zero interval", func(c *config.Config) { c.Device.Interval = 0 }, "device.interval"},
		{"jitter", func(c *config.Config) { c.Reconnect.Jitter = 1 }, "reconnect.jitter"},
		{"backoff cap", func(c *config.Config) { c.Reconnect.Max = time.Millisecond }, "reconnect.max"},
		{"log level", func(c *config.Config) { c.LogLevel = "trace" }, "log_level"},
		{"log format", func(c *config.Config) { c.LogFormat = "xml" }, "log_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.InfluxDB.URL = "https://localhost:8086"
			tt.mutate(cfg)

			err := cfg.ValidateInfluxDB()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ce *config.Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestConfigureLogger(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "warn"
	cfg.LogFormat = "json"

	l := logrus.New()
	require.NoError(t, cfg.ConfigureLogger(l))
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)

	cfg.LogFormat = "text"
	require.NoError(t, cfg.ConfigureLogger(l))
	assert.IsType(t, &logrus.TextFormatter{}, l.Formatter)
}

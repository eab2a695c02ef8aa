// Package config holds the settings shared by every command.
package config

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/alepar/radoneye/radoneye"
)

// PasswordEnv overrides influxdb.password, keeping it off the command line.
const PasswordEnv = "RADONEYE_INFLUXDB_PASSWORD"

type Config struct {
	LogLevel  string `yaml:"log_level" default:"info"`
	LogFormat string `yaml:"log_format" default:"text"`

	Device    DeviceConfig   `yaml:"device"`
	Reconnect BackoffConfig  `yaml:"reconnect"`
	InfluxDB  InfluxDBConfig `yaml:"influxdb"`
}

type DeviceConfig struct {
	Adapter string `yaml:"adapter" default:"hci0"`
	// empty means the first RD200 found while scanning
	Address string `yaml:"address"`

	ScanTimeout     time.Duration `yaml:"scan_timeout" default:"5s"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" default:"20s"`
	ResponseTimeout time.Duration `yaml:"response_timeout" default:"10s"`

	// time between measurement queries
	Interval time.Duration `yaml:"interval" default:"10m"`
}

type BackoffConfig struct {
	Initial time.Duration `yaml:"initial" default:"1s"`
	Max     time.Duration `yaml:"max" default:"30s"`
	Jitter  float64       `yaml:"jitter" default:"0.2"`
}

type InfluxDBConfig struct {
	URL         string `yaml:"url"`
	Database    string `yaml:"database" default:"radoneye"`
	Username    string `yaml:"username" default:"radoneye"`
	Password    string `yaml:"password"`
	Measurement string `yaml:"measurement" default:"radon"`

	TLSCertificate string `yaml:"tls_certificate"`
	TLSKey         string `yaml:"tls_key"`

	ExcludeFields []string `yaml:"exclude_fields"`
	DeviceTags    bool     `yaml:"device_tags"`

	// serve Prometheus metrics when set
	ListenAddress string `yaml:"listen_address"`

	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	Attempts     int           `yaml:"attempts" default:"5"`
	RetryInitial time.Duration `yaml:"retry_initial" default:"1s"`
	RetryMax     time.Duration `yaml:"retry_max" default:"10s"`
}

// Error reports an invalid setting.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...interface{}) error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsError reports whether err is a configuration problem.
func IsError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Field: "config", Reason: err.Error()}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, &Error{Field: "config", Reason: fmt.Sprintf("parse %s: %s", path, err)}
	}

	ApplyEnvOverrides(cfg)
	return cfg, nil
}

// ApplyEnvOverrides maps RADONEYE_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv(PasswordEnv); v != "" {
		cfg.InfluxDB.Password = v
	}
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level", "%s", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return invalid("log_format", "must be text or json, got %q", c.LogFormat)
	}

	durations := []struct {
		field string
		value time.Duration
	}{
		{"device.scan_timeout", c.Device.ScanTimeout},
		{"device.connect_timeout", c.Device.ConnectTimeout},
		{"device.response_timeout", c.Device.ResponseTimeout},
		{"device.interval", c.Device.Interval},
		{"reconnect.initial", c.Reconnect.Initial},
		{"reconnect.max", c.Reconnect.Max},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return invalid(d.field, "must be positive, got %s", d.value)
		}
	}
	if c.Reconnect.Max < c.Reconnect.Initial {
		return invalid("reconnect.max", "must not be below reconnect.initial")
	}
	if c.Reconnect.Jitter < 0 || c.Reconnect.Jitter >= 1 {
		return invalid("reconnect.jitter", "must be in [0, 1), got %v", c.Reconnect.Jitter)
	}
	return nil
}

// ValidateInfluxDB checks the settings of the influxdb command.
func (c *Config) ValidateInfluxDB() error {
	if err := c.Validate(); err != nil {
		return err
	}

	in := c.InfluxDB
	if in.URL == "" {
		return invalid("influxdb.url", "must be set")
	}
	u, err := url.Parse(in.URL)
	if err != nil {
		return invalid("influxdb.url", "%s", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("influxdb.url", "invalid scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return invalid("influxdb.url", "missing host")
	}
	if in.Database == "" {
		return invalid("influxdb.database", "must be set")
	}
	if in.Measurement == "" {
		return invalid("influxdb.measurement", "must be set")
	}
	if (in.TLSCertificate == "") != (in.TLSKey == "") {
		return invalid("influxdb.tls_certificate", "tls certificate and key must both be set to use client certificate authentication")
	}
	if in.TLSCertificate != "" && u.Scheme != "https" {
		return invalid("influxdb.tls_certificate", "client certificate authentication requires an https url")
	}

	excluded := map[radoneye.Field]bool{}
	for _, name := range in.ExcludeFields {
		f, err := radoneye.ParseField(name)
		if err != nil {
			return invalid("influxdb.exclude_fields", "%s", err)
		}
		excluded[f] = true
	}
	if len(excluded) == len(radoneye.AllFields) {
		return invalid("influxdb.exclude_fields", "at least one field must be exported")
	}

	if in.WriteTimeout <= 0 {
		return invalid("influxdb.write_timeout", "must be positive, got %s", in.WriteTimeout)
	}
	if in.Attempts < 1 {
		return invalid("influxdb.attempts", "must be at least 1, got %d", in.Attempts)
	}
	if in.RetryInitial <= 0 || in.RetryMax < in.RetryInitial {
		return invalid("influxdb.retry_initial", "retry backoff must be positive and not above retry_max")
	}
	return nil
}

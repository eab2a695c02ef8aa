package main

import (
	"context"
	"time"

	"github.com/prometheus/common/version"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alepar/radoneye/radoneye/config"
	"github.com/alepar/radoneye/radoneye/influx"
	"github.com/alepar/radoneye/radoneye/metrics"
	"github.com/alepar/radoneye/radoneye/pipeline"
	"github.com/alepar/radoneye/radoneye/session"
	"github.com/alepar/radoneye/radoneye/stream"
)

// influxdb command args
var (
	readInterval   time.Duration
	excludeFields  []string
	influxURL      string
	database       string
	username       string
	password       string
	tlsCertificate string
	tlsKey         string
	deviceTags     bool
	listenAddr     string
	measurement    string
)

var influxdbCmd = &cobra.Command{
	Use:   "influxdb",
	Short: "Continuously publish measurements to InfluxDB",
	Long: `Queries a measurement every --interval and writes it to an InfluxDB 1.x
compatible write API, reconnecting to the device whenever the link drops.

Exits with 1 when no device is found, 2 on a configuration error and 3 when
InfluxDB refuses the credentials or the database.`,
	Args: cobra.NoArgs,
	RunE: runInfluxDB,
}

func init() {
	f := influxdbCmd.Flags()
	f.DurationVar(&readInterval, "interval", 0, "Time between measurements (default 10m)")
	f.StringArrayVar(&excludeFields, "exclude-field", nil, "Field to leave out of the points, repeatable (current_value, day_value, month_value, pulse_count, pulse_count_10_min)")
	f.StringVar(&influxURL, "url", "", "InfluxDB URL, e.g. https://influxdb.example.com:8086")
	f.StringVar(&database, "database", "", "InfluxDB database (default radoneye)")
	f.StringVar(&username, "username", "", "InfluxDB username (default radoneye)")
	f.StringVar(&password, "password", "", "InfluxDB password, see also "+config.PasswordEnv)
	f.StringVar(&tlsCertificate, "tls-certificate", "", "Client certificate for TLS authentication")
	f.StringVar(&tlsKey, "tls-key", "", "Client certificate key for TLS authentication")
	f.BoolVar(&deviceTags, "device-tags", false, "Tag points with the device model, serial and address")
	f.StringVar(&listenAddr, "listen-address", "", "Serve Prometheus metrics on this address, e.g. :9110")
	f.StringVar(&measurement, "measurement", "", "Measurement name (default radon)")
}

func applyInfluxDBFlags(cmd *cobra.Command, c *config.Config) {
	f := cmd.Flags()
	if f.Changed("interval") {
		c.Device.Interval = readInterval
	}
	if f.Changed("exclude-field") {
		c.InfluxDB.ExcludeFields = excludeFields
	}
	if f.Changed("url") {
		c.InfluxDB.URL = influxURL
	}
	if f.Changed("database") {
		c.InfluxDB.Database = database
	}
	if f.Changed("username") {
		c.InfluxDB.Username = username
	}
	if f.Changed("password") {
		c.InfluxDB.Password = password
	}
	if f.Changed("tls-certificate") {
		c.InfluxDB.TLSCertificate = tlsCertificate
	}
	if f.Changed("tls-key") {
		c.InfluxDB.TLSKey = tlsKey
	}
	if f.Changed("device-tags") {
		c.InfluxDB.DeviceTags = deviceTags
	}
	if f.Changed("listen-address") {
		c.InfluxDB.ListenAddress = listenAddr
	}
	if f.Changed("measurement") {
		c.InfluxDB.Measurement = measurement
	}
}

func runInfluxDB(cmd *cobra.Command, _ []string) error {
	applyInfluxDBFlags(cmd, cfg)
	if err := cfg.ValidateInfluxDB(); err != nil {
		return err
	}
	in := cfg.InfluxDB

	excluded, err := influx.ParseExcluded(in.ExcludeFields)
	if err != nil {
		return &config.Error{Field: "influxdb.exclude_fields", Reason: err.Error()}
	}
	writer, err := influx.NewWriter(influx.WriterConfig{
		URL:            in.URL,
		Database:       in.Database,
		Username:       in.Username,
		Password:       in.Password,
		TLSCertificate: in.TLSCertificate,
		TLSKey:         in.TLSKey,
		Timeout:        in.WriteTimeout,
	}, log.StandardLogger())
	if err != nil {
		return &config.Error{Field: "influxdb", Reason: err.Error()}
	}

	m := metrics.New()
	publisher := influx.NewPublisher(writer, influx.PublisherOptions{
		Measurement: in.Measurement,
		Exclude:     excluded,
		Retry: influx.Retry{
			Attempts:        in.Attempts,
			InitialInterval: in.RetryInitial,
			MaxInterval:     in.RetryMax,
		},
		Observer: m,
	}, log.StandardLogger())

	ctx := cmd.Context()
	log.WithField("version", version.Info()).Info("starting radoneye influxdb exporter")
	if in.ListenAddress != "" {
		go func() {
			if err := m.Serve(ctx, in.ListenAddress); err != nil {
				log.WithError(err).Error("metrics endpoint stopped")
			}
		}()
	}

	d, err := discover(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	opts := stream.Options{
		Interval: cfg.Device.Interval,
		Reconnect: stream.Policy{
			InitialInterval: cfg.Reconnect.Initial,
			MaxInterval:     cfg.Reconnect.Max,
			Jitter:          cfg.Reconnect.Jitter,
			Multiplier:      2,
		},
		Observer: m,
	}
	if in.DeviceTags {
		opts.OnConnect = func(ctx context.Context, s *session.Session) error {
			tags, err := queryDeviceTags(ctx, s)
			if err != nil {
				return err
			}
			publisher.SetTags(tags)
			return nil
		}
	}
	readings := stream.New(d.connector, d.id, opts, log.StandardLogger())
	defer readings.Close()

	log.WithFields(log.Fields{
		"address":  d.id.Address,
		"url":      in.URL,
		"database": in.Database,
		"interval": cfg.Device.Interval,
	}).Info("publishing measurements")
	return pipeline.Run(ctx, readings, publisher, log.StandardLogger())
}

func queryDeviceTags(ctx context.Context, s *session.Session) (map[string]string, error) {
	model, err := s.ModelName(ctx)
	if err != nil {
		return nil, err
	}
	serial, err := s.Serial(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"model":   model,
		"serial":  serial.Serial,
		"address": s.Identity().Address,
	}, nil
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alepar/radoneye/radoneye"
	"github.com/alepar/radoneye/radoneye/config"
	"github.com/alepar/radoneye/radoneye/influx"
)

// process exit codes
const (
	exitOK       = 0
	exitNotFound = 1
	exitConfig   = 2
	exitBackend  = 3
	exitFailure  = 4
)

// CLI args shared by every command
var (
	configPath  string
	logLevel    string
	adapter     string
	address     string
	scanTimeout time.Duration
)

// cfg is loaded before any command runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "radoneye",
	Short: "Reads RadonEye RD200 radon detectors over Bluetooth LE",
	Long: `Reads RadonEye RD200 radon detectors (pre-2021 hardware) over Bluetooth LE.

Settings come from the defaults, then the optional --config YAML file, then
the flags given on the command line. The InfluxDB password can also be
passed in the ` + config.PasswordEnv + ` environment variable.`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "YAML configuration file")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&adapter, "adapter", "", "Bluetooth adapter to use, e.g. hci1 (default hci0)")
	pf.StringVarP(&address, "address", "a", "", "Device address (default: the first RD200 found)")
	pf.DurationVar(&scanTimeout, "scan-timeout", 0, "How long to scan for the device (default 5s)")

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &config.Error{Field: "flags", Reason: err.Error()}
	})

	rootCmd.AddCommand(measureCmd, logCmd, configCmd, influxdbCmd, versionCmd)

	//logging
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	code := exitCode(err)
	if code != exitOK {
		log.WithError(err).WithField("exit_code", code).Error("radoneye failed")
	}
	os.Exit(code)
}

func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return exitOK
	case errors.Is(err, radoneye.ErrNotFound):
		return exitNotFound
	case config.IsError(err):
		return exitConfig
	case influx.IsFatal(err):
		return exitBackend
	}
	return exitFailure
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	c := config.Default()
	if configPath != "" {
		var err error
		if c, err = config.Load(configPath); err != nil {
			return err
		}
	} else {
		config.ApplyEnvOverrides(c)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.LogLevel = logLevel
	}
	if flags.Changed("adapter") {
		c.Device.Adapter = adapter
	}
	if flags.Changed("address") {
		c.Device.Address = address
	}
	if flags.Changed("scan-timeout") {
		c.Device.ScanTimeout = scanTimeout
	}

	if err := c.Validate(); err != nil {
		return err
	}
	if err := c.ConfigureLogger(log.StandardLogger()); err != nil {
		return err
	}
	cfg = c
	return nil
}

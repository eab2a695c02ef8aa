package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alepar/radoneye/radoneye/config"
	"github.com/alepar/radoneye/radoneye/rd200"
	"github.com/alepar/radoneye/radoneye/session"
)

var (
	unitName string
	syncTime bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Change device settings",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	configCmd.Flags().StringVar(&unitName, "unit", "", "Unit shown on the device screen (pci or bq)")
	configCmd.Flags().BoolVar(&syncTime, "sync-time", false, "Set the device clock to the local time")
}

func runConfig(cmd *cobra.Command, _ []string) error {
	if unitName == "" && !syncTime {
		return &config.Error{Field: "flags", Reason: "nothing to change, use --unit or --sync-time"}
	}
	var unit rd200.Unit
	if unitName != "" {
		var err error
		if unit, err = rd200.ParseUnit(unitName); err != nil {
			return &config.Error{Field: "unit", Reason: err.Error()}
		}
	}

	return withSession(cmd.Context(), func(ctx context.Context, s *session.Session) error {
		if syncTime {
			if err := s.SetDateTime(time.Now()); err != nil {
				return err
			}
			log.Info("device clock set")
		}
		if unitName == "" {
			return nil
		}

		if err := s.SetUnit(unit); err != nil {
			return err
		}
		// the device does not acknowledge the change, read it back instead
		c, err := s.Config(ctx)
		if err != nil {
			return err
		}
		entry := log.WithField("unit", c.Unit)
		if c.Unit != unit {
			entry.Warn("device did not apply the unit")
			return nil
		}
		entry.Info("unit changed")
		return nil
	})
}

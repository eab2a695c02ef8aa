package main

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/alepar/radoneye/radoneye/session"
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Print the hourly log stored on the device as JSON",
	Long: `Downloads the hourly radon log stored on the device, oldest value
first, and prints it as a JSON array.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, s *session.Session) error {
			values, err := s.ReadLog(ctx, cfg.Device.ResponseTimeout)
			if err != nil {
				return err
			}
			log.WithField("values", len(values)).Info("log downloaded")

			if values == nil {
				values = []float64{}
			}
			out, err := json.Marshal(values)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		})
	},
}

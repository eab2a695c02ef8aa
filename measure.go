package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alepar/radoneye/radoneye/session"
)

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Print the current measurement as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, s *session.Session) error {
			reading, err := s.Measurement(ctx)
			if err != nil {
				return err
			}
			out, err := json.Marshal(reading.Values())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		})
	},
}

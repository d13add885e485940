package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

var probeTimeout time.Duration

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that the configured broker is reachable",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
		defer cancel()

		b, err := openBroker(ctx, cfg, slog.Default())
		if err != nil {
			return err
		}
		defer b.Close()

		if err := b.Probe(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "reachable")
		return nil
	},
}

func init() {
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 10*time.Second, "Probe timeout")
	rootCmd.AddCommand(probeCmd)
}

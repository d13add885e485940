package main

import (
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jdziat/simple-external-tasks/pkg/stats"
)

var (
	statsTopic string
	statsSince time.Duration
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-minute task counts recorded by the embedded broker",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.BaseURL != "" {
			return errors.New("stats requires the embedded broker; unset base_url and configure database")
		}

		ctx := cmd.Context()
		cfg.SweepSchedule = ""
		b, err := openBroker(ctx, cfg, slog.Default())
		if err != nil {
			return err
		}
		defer b.Close()

		store := stats.NewGormStorage(b.db)
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		rows, err := store.History(ctx, statsTopic, time.Now().Add(-statsSince), time.Time{})
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "MINUTE\tTOPIC\tPENDING\tLOCKED\tCOMPLETED\tFAILED\tSKIPPED")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
				r.Timestamp.Local().Format("2006-01-02 15:04"), r.Topic, r.Pending, r.Locked, r.Completed, r.Failed, r.Skipped)
		}
		return tw.Flush()
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsTopic, "topic", "", "Only show this topic")
	statsCmd.Flags().DurationVar(&statsSince, "since", time.Hour, "How far back to look")
	rootCmd.AddCommand(statsCmd)
}

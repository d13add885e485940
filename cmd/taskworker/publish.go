package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jdziat/simple-external-tasks/pkg/core"
	"github.com/jdziat/simple-external-tasks/pkg/storage"
)

var (
	publishVars        []string
	publishStringVars  []string
	publishBusinessKey string
	publishPriority    int64
	publishRetries     int
)

var publishCmd = &cobra.Command{
	Use:   "publish TOPIC",
	Short: "Queue a task on the embedded broker",
	Long: `Publish inserts a pending task into the embedded database broker.

Variables are given as name=value. Integers become Long values, true and
false become Boolean values, JSON objects and arrays become Object values,
and everything else is a String. Use --string-var to keep JSON text as a
String, as the string->pojo argument rule expects.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.BaseURL != "" {
			return errors.New("publish requires the embedded broker; unset base_url and configure database")
		}
		vars, err := parseVariables(publishVars, parseValue)
		if err != nil {
			return err
		}
		strs, err := parseVariables(publishStringVars, core.StringValue)
		if err != nil {
			return err
		}
		for name, v := range strs {
			vars[name] = v
		}

		ctx := cmd.Context()
		cfg.SweepSchedule = ""
		b, err := openBroker(ctx, cfg, slog.Default())
		if err != nil {
			return err
		}
		defer b.Close()

		opts := []storage.PublishOption{storage.Priority(publishPriority)}
		if publishBusinessKey != "" {
			opts = append(opts, storage.BusinessKey(publishBusinessKey))
		}
		if publishRetries > 0 {
			opts = append(opts, storage.Retries(publishRetries))
		}
		id, err := b.embedded.Publish(ctx, args[0], vars, opts...)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

func init() {
	publishCmd.Flags().StringArrayVarP(&publishVars, "var", "v", nil, "Task variable as name=value (repeatable)")
	publishCmd.Flags().StringArrayVarP(&publishStringVars, "string-var", "s", nil, "Task variable kept as a String, as name=value (repeatable)")
	publishCmd.Flags().StringVar(&publishBusinessKey, "business-key", "", "Business key")
	publishCmd.Flags().Int64Var(&publishPriority, "priority", 0, "Task priority; higher is fetched first")
	publishCmd.Flags().IntVar(&publishRetries, "retries", 0, "Retries remaining")
	rootCmd.AddCommand(publishCmd)
}

func parseVariables(pairs []string, value func(string) core.TypedValue) (core.OutputVariables, error) {
	vars := make(core.OutputVariables, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid variable %q, want name=value", pair)
		}
		vars[name] = value(raw)
	}
	return vars, nil
}

func parseValue(raw string) core.TypedValue {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return core.LongValue(n)
	}
	if b, err := strconv.ParseBool(raw); err == nil && (raw == "true" || raw == "false") {
		return core.ValueOf(b)
	}
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return core.ValueOf(v)
		}
	}
	return core.StringValue(raw)
}

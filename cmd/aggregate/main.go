package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/acheong08/spr-behavior/internal/aggregate"
	"github.com/acheong08/spr-behavior/internal/behavior"
	"github.com/acheong08/spr-behavior/internal/config"
	"github.com/acheong08/spr-behavior/internal/logging"
	"github.com/acheong08/spr-behavior/internal/store"
)

var (
	cfg    *config.Config
	logger *zap.Logger

	logLevel     string
	outputFile   string
	outputFormat string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate sandbox behavior traces into file, network and api reports",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if !cmd.Flags().Changed("log-level") {
				logLevel = cfg.LogLevel
			}
			logger, err = logging.New(logLevel)
			return err
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "Output file (defaults to stdout)")
	root.PersistentFlags().StringVar(&outputFormat, "output-format", "json", "Output format (json, yaml)")

	root.AddCommand(newReportCommand(), newDedupCommand(), newLookupCommand())
	return root
}

func newReportCommand() *cobra.Command {
	var (
		inputFile  string
		collection string
		format     string
		dbPath     string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Aggregate a behavior.jsonl file",
		Example: `  aggregate report --input behavior.jsonl
  aggregate report --input tracee.jsonl --format tracee --collection module2 -o stats.json
  aggregate report --input behavior.jsonl --db reports.db --output-format yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(inputFile); os.IsNotExist(err) {
				return fmt.Errorf("input file not found: %s", inputFile)
			}
			if dbPath == "" {
				dbPath = cfg.DBPath
			}

			startTime := time.Now()
			logger.Info("processing", zap.String("input", inputFile), zap.String("format", format))

			aggregator := aggregate.NewAggregator(logger,
				behavior.WithSentinel(cfg.SentinelName, cfg.SentinelSuffix))
			result, err := aggregator.ProcessFile(inputFile, collection, format)
			if err != nil {
				return err
			}

			logger.Info("completed",
				zap.Duration("duration", time.Since(startTime)),
				zap.Int("events", result.TotalEvents),
				zap.Int("calls", result.TotalCalls),
				zap.Int("skipped_lines", result.SkippedLines))

			if dbPath != "" {
				id, err := saveResult(cmd.Context(), dbPath, result)
				if err != nil {
					return err
				}
				logger.Info("report stored", zap.String("db", dbPath), zap.String("id", id))
			}

			return writeOutput(result)
		},
	}

	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "Path to behavior.jsonl file (required)")
	cmd.Flags().StringVar(&collection, "collection", "default", "Collection name")
	cmd.Flags().StringVar(&format, "format", aggregate.FormatEvents, "Input format (events, tracee)")
	cmd.Flags().StringVar(&dbPath, "db", "", "Store the report in this sqlite database")
	cmd.MarkFlagRequired("input")
	return cmd
}

func newDedupCommand() *cobra.Command {
	var targetFile, baselineFile string

	cmd := &cobra.Command{
		Use:   "dedup",
		Short: "Subtract a baseline report from a target report",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := aggregate.LoadResult(targetFile)
			if err != nil {
				return fmt.Errorf("failed to load target: %w", err)
			}
			baseline, err := aggregate.LoadResult(baselineFile)
			if err != nil {
				return fmt.Errorf("failed to load baseline: %w", err)
			}

			deduped := aggregate.Dedup(target, baseline)
			logger.Info("dedup complete",
				zap.Int("removed_file_entries", deduped.RemovedFileEntries),
				zap.Int("removed_endpoints", deduped.RemovedEndpoints),
				zap.Int("removed_syscalls", deduped.RemovedSyscalls))
			return writeOutput(deduped)
		},
	}

	cmd.Flags().StringVar(&targetFile, "target", "", "Report JSON to reduce (required)")
	cmd.Flags().StringVar(&baselineFile, "baseline", "", "Baseline report JSON (required)")
	cmd.MarkFlagRequired("target")
	cmd.MarkFlagRequired("baseline")
	return cmd
}

func newLookupCommand() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "lookup <path-or-endpoint>",
		Short: "List stored reports that observed a path or endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = cfg.DBPath
			}
			if dbPath == "" {
				return fmt.Errorf("no database: set --db or DB_PATH")
			}

			db, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			ids, err := db.SummariesWith(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeOutput(map[string]any{"value": args[0], "reports": ids})
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database holding stored reports")
	return cmd
}

func saveResult(ctx context.Context, dbPath string, result *aggregate.Result) (string, error) {
	db, err := store.Open(dbPath)
	if err != nil {
		return "", err
	}
	defer db.Close()

	id := uuid.NewString()
	err = db.SaveSummary(ctx, &store.SummaryRecord{
		ID:         id,
		Collection: result.Collection,
		CreatedAt:  time.Now(),
		Summary:    result.Summary,
	})
	return id, err
}

func writeOutput(v any) error {
	var (
		data []byte
		err  error
	)
	switch outputFormat {
	case "json":
		data, err = json.MarshalIndent(v, "", "  ")
	case "yaml":
		data, err = yaml.Marshal(v)
	default:
		return fmt.Errorf("unknown output format %q", outputFormat)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	if outputFile != "" {
		if err := os.WriteFile(outputFile, data, 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		logger.Info("output written", zap.String("path", outputFile))
		return nil
	}

	_, err = os.Stdout.Write(append(data, '\n'))
	return err
}

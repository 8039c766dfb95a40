package cmd

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/telhawk-systems/reformat/internal/batch"
	"github.com/telhawk-systems/reformat/internal/dlq"
	"github.com/telhawk-systems/reformat/internal/logging"
	"github.com/telhawk-systems/reformat/internal/sink"
)

var runJobs []string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reformat every configured log family",
	Long: `Run the category jobs in order (sensor, eventlog, audit by default).

A failing job is logged and the remaining jobs still run. The command exits
successfully unless the configuration itself is unusable.

Examples:
  reformat run
  reformat run --jobs audit
  reformat run --config ./reformat.yaml --jobs sensor,eventlog`,
	RunE: runReformat,
}

func init() {
	runCmd.Flags().StringSliceVar(&runJobs, "jobs", nil, "jobs to run (default: jobs.order)")
	rootCmd.AddCommand(runCmd)
}

func runReformat(cmd *cobra.Command, _ []string) error {
	ctx := logging.WithRunID(cmd.Context(), uuid.NewString())
	log := logger.WithContext(ctx)

	jobs, err := buildJobs(cfg, runJobs)
	if err != nil {
		return err
	}

	opts := []batch.Option{
		batch.WithSinkOptions(sink.Options{
			Separator: []byte(cfg.Output.RecordSeparator),
			Level:     cfg.Output.CompressionLevel,
		}),
	}
	if cfg.DLQ.Enabled {
		q, err := dlq.NewQueue(cfg.DLQ.BasePath, logger)
		if err != nil {
			return err
		}
		defer q.Close()
		opts = append(opts, batch.WithDLQ(q))
	}

	runner := batch.NewRunner(logger, opts...)
	reports := runner.RunAll(ctx, jobs)

	failed := 0
	for _, r := range reports {
		ok, bad := r.Totals()
		if r.Err != nil {
			failed++
		}
		log.Info("job summary", logging.Job(r.Job), "files", r.Done, logging.FieldOK, ok, logging.FieldBad, bad)
	}
	log.Info("run complete", "jobs", len(reports), "failed_jobs", failed)

	if path := cfg.Metrics.Textfile; path != "" {
		if err := runner.Metrics().WriteTextfile(path); err != nil {
			log.Error("failed to write metrics", logging.Error(err))
		}
	}
	return nil
}

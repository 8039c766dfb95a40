// Package cmd implements the reformat command line.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/telhawk-systems/reformat/internal/config"
	"github.com/telhawk-systems/reformat/internal/logging"
)

// skipConfig marks commands that run without loading the configuration.
const skipConfig = "skip-config"

var (
	cfgFile string
	cfg     *config.Config
	logger  *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "reformat",
	Short: "Batch security-log reformatter",
	Long: `reformat rewrites archived security logs into normalized, categorized
gzip files ready for indexing.

Sensor, event log and audit archives are decoded line by line, projected
onto a common syslog envelope and routed into one output file per category.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Annotations[skipConfig] != "" {
			return nil
		}
		return initConfig()
	},
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $REFORMAT_CONFIG_DIR/config.yaml)")
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger = logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	logging.SetDefault(logger)
	return nil
}

package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/telhawk-systems/reformat/internal/seeder"
)

var (
	seedCount    int
	seedInterval time.Duration
	seedValue    int64
	seedSubject  string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Publish synthetic normalized records to NATS",
	Long: `Generate records in the normalized syslog envelope and publish them to a
NATS subject, one per interval.

Examples:
  reformat seed --count 1000
  reformat seed --count 0 --interval 100ms --subject lab.syslog`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		subject := seedSubject
		if subject == "" {
			subject = cfg.NATS.Subject
		}

		pub, err := seeder.NewNATSPublisher(seeder.NATSConfig{
			URL:           cfg.NATS.URL,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
		}, logger)
		if err != nil {
			return err
		}
		defer pub.Close()

		s := seeder.New(seeder.NewGenerator(seedValue), pub, subject, logger)
		_, err = s.Run(cmd.Context(), seedCount, seedInterval)
		return err
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedCount, "count", 100, "number of records, 0 for unbounded")
	seedCmd.Flags().DurationVar(&seedInterval, "interval", 0, "pause between records")
	seedCmd.Flags().Int64Var(&seedValue, "seed", 0, "random seed, 0 for a random one")
	seedCmd.Flags().StringVar(&seedSubject, "subject", "", "NATS subject (default: nats.subject)")
	rootCmd.AddCommand(seedCmd)
}

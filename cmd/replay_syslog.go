package cmd

import (
	"net"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/telhawk-systems/reformat/internal/bsdsyslog"
	"github.com/telhawk-systems/reformat/internal/logging"
)

var (
	syslogHost string
	syslogPort int
)

var replaySyslogCmd = &cobra.Command{
	Use:   "replay-syslog FILE...",
	Short: "Replay archived bsd syslog lines over UDP",
	Long: `Parse every line of the given gzip files as bsd syslog, fill in a missing
priority or pid and send each line as one UDP datagram. Lines that do not
parse are skipped and counted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		host := cfg.Syslog.Host
		if syslogHost != "" {
			host = syslogHost
		}
		port := cfg.Syslog.Port
		if syslogPort != 0 {
			port = syslogPort
		}

		r, err := bsdsyslog.Dial(ctx, net.JoinHostPort(host, strconv.Itoa(port)), logger)
		if err != nil {
			return err
		}
		defer r.Close()

		for _, path := range args {
			st, err := r.File(ctx, path)
			logger.Info("replayed file", logging.File(path), "sent", st.Sent, "skipped", st.Skipped)
			if err != nil {
				return err
			}
		}
		return nil
	},
}

var fixCollectorCmd = &cobra.Command{
	Use:   "fix SRC DST",
	Short: "Insert the missing collector fields into broken RFC 5424 lines",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		n, err := bsdsyslog.FixFile(args[0], args[1])
		if err != nil {
			return err
		}
		logger.Info("rewrote lines", logging.File(args[1]), "lines", n)
		return nil
	},
}

func init() {
	replaySyslogCmd.Flags().StringVar(&syslogHost, "host", "", "syslog host (default: syslog.host)")
	replaySyslogCmd.Flags().IntVar(&syslogPort, "port", 0, "syslog UDP port (default: syslog.port)")
	replaySyslogCmd.AddCommand(fixCollectorCmd)
	rootCmd.AddCommand(replaySyslogCmd)
}

package cmd

import (
	"github.com/spf13/cobra"
	"github.com/telhawk-systems/reformat/internal/forward"
)

var (
	forwardSocket string
	forwardRate   float64
)

var forwardCmd = &cobra.Command{
	Use:   "forward PATTERN",
	Short: "Stream gzip log lines to a unix socket",
	Long: `Decompress every file matching PATTERN, in name order, and write each
line to a unix stream socket.

Examples:
  reformat forward '/data/xs19-tr-linux/*.gz'
  reformat forward --socket /tmp/in.sock --rate 500 'archive/*.gz'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		socket := forwardSocket
		if socket == "" {
			socket = cfg.Forward.Socket
		}
		rate := cfg.Forward.Rate
		if cmd.Flags().Changed("rate") {
			rate = forwardRate
		}

		files, err := forward.Glob(args[0])
		if err != nil {
			return err
		}
		conn, err := forward.Dial(ctx, socket)
		if err != nil {
			return err
		}
		defer conn.Close()

		n, err := forward.New(conn, rate, logger).Files(ctx, files)
		logger.Info("forwarding done", "lines", n)
		return err
	},
}

func init() {
	forwardCmd.Flags().StringVar(&forwardSocket, "socket", "", "unix socket path (default: forward.socket)")
	forwardCmd.Flags().Float64Var(&forwardRate, "rate", 0, "maximum lines per second, 0 for unlimited")
	rootCmd.AddCommand(forwardCmd)
}

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/telhawk-systems/reformat/internal/enrich"
	"github.com/telhawk-systems/reformat/internal/logging"
)

var (
	enrichGzip   bool
	enrichPrefix string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Load enrichment tables into redis",
}

var enrichAssetsCmd = &cobra.Command{
	Use:   "assets FILE",
	Short: "Load an asset CSV as ip tagger entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prefix := enrichPrefix
		if prefix == "" {
			prefix = cfg.Redis.FieldPrefix
		}
		return loadTable(cmd, args[0], func(r io.Reader) ([]enrich.Entry, error) {
			return enrich.ParseAssets(r, prefix)
		})
	},
}

var enrichSignaturesCmd = &cobra.Command{
	Use:   "signatures FILE",
	Short: "Load a signature CSV keyed by sid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return loadTable(cmd, args[0], enrich.ParseSignatures)
	},
}

func init() {
	enrichCmd.PersistentFlags().BoolVar(&enrichGzip, "gzip", false, "input file is gzip compressed")
	enrichAssetsCmd.Flags().StringVar(&enrichPrefix, "prefix", "", "tagger field prefix (default: redis.field_prefix)")
	enrichCmd.AddCommand(enrichAssetsCmd, enrichSignaturesCmd)
	rootCmd.AddCommand(enrichCmd)
}

func loadTable(cmd *cobra.Command, path string, parse func(io.Reader) ([]enrich.Entry, error)) error {
	ctx := cmd.Context()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open table: %w", err)
	}
	defer f.Close()

	r, err := enrich.Open(f, enrichGzip)
	if err != nil {
		return err
	}
	entries, err := parse(r)
	if err != nil {
		return err
	}

	client, err := enrich.NewClient(ctx, cfg.Redis.URL)
	if err != nil {
		return err
	}
	defer client.Close()

	n, err := enrich.Store(ctx, client, entries)
	if err != nil {
		return err
	}
	logger.Info("stored enrichment entries", logging.File(path), "entries", n)
	return nil
}

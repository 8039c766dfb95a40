package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/telhawk-systems/reformat/internal/indexer"
)

var indexJobs []string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Bulk index reformatted output into OpenSearch",
	Long: `Read every output file of the selected jobs and index its records into
"<opensearch.index_prefix>-<category>".`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		jobs, err := buildJobs(cfg, indexJobs)
		if err != nil {
			return err
		}

		icfg := indexer.Config{
			URL:           cfg.OpenSearch.URL,
			Username:      cfg.OpenSearch.Username,
			Password:      cfg.OpenSearch.Password,
			TLSSkipVerify: cfg.OpenSearch.TLSSkipVerify,
			IndexPrefix:   cfg.OpenSearch.IndexPrefix,
			FlushBytes:    cfg.OpenSearch.FlushBytes,
		}
		client, err := indexer.NewClient(icfg)
		if err != nil {
			return err
		}
		ix := indexer.New(client, icfg, logger)

		var errs []error
		for _, job := range jobs {
			for _, d := range job.Destinations {
				files, err := outputFiles(d.Dir)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if len(files) == 0 {
					continue
				}
				if _, err := ix.Files(ctx, d.Category, files); err != nil {
					errs = append(errs, err)
				}
			}
		}
		return errors.Join(errs...)
	},
}

func init() {
	indexCmd.Flags().StringSliceVar(&indexJobs, "jobs", nil, "jobs whose output to index (default: jobs.order)")
	rootCmd.AddCommand(indexCmd)
}

// outputFiles lists the regular files of dir in name order. A missing
// directory holds no files.
func outputFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Package indexer loads reformatted output files into OpenSearch.
package indexer

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"
	"github.com/telhawk-systems/reformat/internal/logging"
	"github.com/telhawk-systems/reformat/internal/record"
)

// Config holds OpenSearch connection and bulk settings.
type Config struct {
	URL           string
	Username      string
	Password      string
	TLSSkipVerify bool
	IndexPrefix   string
	FlushBytes    int
}

// NewClient creates an OpenSearch client for cfg.
func NewClient(cfg Config) (*opensearch.Client, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify,
		},
	}
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}
	return client, nil
}

// Stats counts the bulk outcome of a run.
type Stats struct {
	Indexed uint64
	Failed  uint64
}

// Indexer bulk-loads records into one index per category.
type Indexer struct {
	client     *opensearch.Client
	prefix     string
	flushBytes int
	logger     *logging.Logger
}

// New creates an indexer. Index names are "<prefix>-<category>".
func New(client *opensearch.Client, cfg Config, logger *logging.Logger) *Indexer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Indexer{
		client:     client,
		prefix:     cfg.IndexPrefix,
		flushBytes: cfg.FlushBytes,
		logger:     logger,
	}
}

// IndexName returns the target index of a category.
func (ix *Indexer) IndexName(cat record.Category) string {
	return ix.prefix + "-" + cat.String()
}

// Files indexes the records of every file into the index of cat.
func (ix *Indexer) Files(ctx context.Context, cat record.Category, files []string) (Stats, error) {
	var indexed, failed atomic.Uint64

	bi, err := opensearchutil.NewBulkIndexer(opensearchutil.BulkIndexerConfig{
		Client:     ix.client,
		FlushBytes: ix.flushBytes,
		OnError: func(_ context.Context, err error) {
			ix.logger.Error("bulk request failed", logging.Error(err))
		},
	})
	if err != nil {
		return Stats{}, fmt.Errorf("failed to create bulk indexer: %w", err)
	}

	index := ix.IndexName(cat)
	var errs []error
	for _, path := range files {
		n, err := ix.addFile(ctx, bi, index, path, &indexed, &failed)
		ix.logger.Info("queued file", logging.File(path), logging.Category(cat.String()), "records", n)
		if err != nil {
			errs = append(errs, err)
			break
		}
	}

	if err := bi.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("bulk indexer close: %w", err))
	}
	st := Stats{Indexed: indexed.Load(), Failed: failed.Load()}
	ix.logger.Info("indexed records", "index", index, "indexed", st.Indexed, "failed", st.Failed)
	return st, errors.Join(errs...)
}

func (ix *Indexer) addFile(ctx context.Context, bi opensearchutil.BulkIndexer, index, path string, indexed, failed *atomic.Uint64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open output: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("open gzip stream %s: %w", path, err)
	}
	defer gz.Close()

	n := 0
	for doc, err := range Records(gz) {
		if err != nil {
			return n, fmt.Errorf("read %s: %w", path, err)
		}
		err = bi.Add(ctx, opensearchutil.BulkIndexerItem{
			Action: "index",
			Index:  index,
			Body:   bytes.NewReader(doc),
			OnSuccess: func(context.Context, opensearchutil.BulkIndexerItem, opensearchutil.BulkIndexerResponseItem) {
				indexed.Add(1)
			},
			OnFailure: func(_ context.Context, _ opensearchutil.BulkIndexerItem, res opensearchutil.BulkIndexerResponseItem, err error) {
				failed.Add(1)
				if err != nil {
					ix.logger.Warn("document rejected", logging.Error(err))
				} else {
					ix.logger.Warn("document rejected", "type", res.Error.Type, "reason", res.Error.Reason)
				}
			},
		})
		if err != nil {
			return n, fmt.Errorf("failed to add to bulk indexer: %w", err)
		}
		n++
	}
	return n, nil
}

// Records yields every JSON object of r. Objects may be written back to back
// or separated by whitespace.
func Records(r io.Reader) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		dec := json.NewDecoder(r)
		for {
			var doc json.RawMessage
			err := dec.Decode(&doc)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

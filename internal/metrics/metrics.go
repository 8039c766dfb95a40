// Package metrics holds the Prometheus counters maintained by a reformat run.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the counters of one run on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	LinesTotal        *prometheus.CounterVec
	LineFailures      *prometheus.CounterVec
	RecordsTotal      *prometheus.CounterVec
	FilesTotal        *prometheus.CounterVec
	MergeCollisions   *prometheus.CounterVec
	UnmatchedPayloads *prometheus.CounterVec
	JobsTotal         *prometheus.CounterVec
}

// New registers all counters on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Line metrics
		LinesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reformat_lines_total",
				Help: "Total number of input lines read",
			},
			[]string{"job", "status"},
		),
		LineFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reformat_line_failures_total",
				Help: "Total number of dropped lines by failure reason",
			},
			[]string{"job", "reason"},
		),
		RecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reformat_records_total",
				Help: "Total number of records written per output category",
			},
			[]string{"job", "category"},
		),
		MergeCollisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reformat_merge_collisions_total",
				Help: "Total number of records emitted without extension fields because of a key collision",
			},
			[]string{"job"},
		),
		UnmatchedPayloads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reformat_unmatched_payloads_total",
				Help: "Total number of audit payloads no grammar matched",
			},
			[]string{"job"},
		),

		// File and job metrics
		FilesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reformat_files_total",
				Help: "Total number of input files processed",
			},
			[]string{"job", "status"},
		),
		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reformat_jobs_total",
				Help: "Total number of category jobs run",
			},
			[]string{"job", "status"},
		),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current values in the node exporter textfile
// format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

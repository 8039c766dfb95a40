// Package batch drives category jobs: it enumerates the input files of one
// log family, streams each file through the line pipeline and routes the
// results to per-file output sinks.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/telhawk-systems/reformat/internal/dlq"
	"github.com/telhawk-systems/reformat/internal/extractor"
	"github.com/telhawk-systems/reformat/internal/logging"
	"github.com/telhawk-systems/reformat/internal/metrics"
	"github.com/telhawk-systems/reformat/internal/pipeline"
	"github.com/telhawk-systems/reformat/internal/reader"
	"github.com/telhawk-systems/reformat/internal/record"
	"github.com/telhawk-systems/reformat/internal/sink"
)

// ErrMissingConfig is returned when a job lacks its output sink set or
// pipeline. It aborts the job.
var ErrMissingConfig = errors.New("missing job configuration")

// State is a step of the per-file and per-job lifecycle.
type State string

const (
	StateIdle             State = "idle"
	StateEnumeratingFiles State = "enumerating_files"
	StateOpeningSinks     State = "opening_sinks"
	StateStreamingLines   State = "streaming_lines"
	StateClosingSinks     State = "closing_sinks"
	StateDone             State = "done"
	StateCategoryDone     State = "category_done"
)

// Processor handles single lines. *pipeline.Pipeline implements it.
type Processor interface {
	Process(line []byte) (pipeline.Result, error)
	Categories() []record.Category
}

// Job describes one category job.
type Job struct {
	Name         string
	Family       pipeline.Family
	InputDir     string
	Destinations []sink.Destination
}

// Runner executes jobs sequentially.
type Runner struct {
	logger    *logging.Logger
	metrics   *metrics.Metrics
	dlq       *dlq.Queue
	sinkOpts  sink.Options
	extractor *extractor.Extractor
	observer  func(job, file string, s State)
}

// Option configures a Runner.
type Option func(*Runner)

// WithMetrics records counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithDLQ stores dropped lines in q.
func WithDLQ(q *dlq.Queue) Option {
	return func(r *Runner) { r.dlq = q }
}

// WithSinkOptions sets how output records are written.
func WithSinkOptions(opts sink.Options) Option {
	return func(r *Runner) { r.sinkOpts = opts }
}

// WithObserver registers a callback invoked on every state transition.
func WithObserver(fn func(job, file string, s State)) Option {
	return func(r *Runner) { r.observer = fn }
}

// NewRunner builds a runner. The extraction grammars are compiled here once
// and shared by every audit job.
func NewRunner(logger *logging.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	r := &Runner{
		logger:    logger,
		metrics:   metrics.New(),
		extractor: extractor.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Metrics returns the counters maintained by the runner.
func (r *Runner) Metrics() *metrics.Metrics {
	return r.metrics
}

// RunAll runs every job in order. A failing job is logged and does not stop
// the jobs after it.
func (r *Runner) RunAll(ctx context.Context, jobs []Job) []JobReport {
	reports := make([]JobReport, 0, len(jobs))
	for _, job := range jobs {
		report, err := r.RunJob(ctx, job)
		log := r.logger.With(logging.Job(job.Name)).WithContext(ctx)
		if err != nil {
			report.Err = err
			r.metrics.JobsTotal.WithLabelValues(job.Name, "failed").Inc()
			log.Error("category job failed", "files_done", report.Done, logging.Error(err))
		} else {
			r.metrics.JobsTotal.WithLabelValues(job.Name, "ok").Inc()
			log.Info(fmt.Sprintf("reparsed %d files", report.Done), "files_done", report.Done)
		}
		reports = append(reports, report)
	}
	return reports
}

// RunJob processes every regular file of job.InputDir. Failing to open an
// input or its output sinks aborts the remaining files and is returned.
func (r *Runner) RunJob(ctx context.Context, job Job) (JobReport, error) {
	report := JobReport{Job: job.Name}
	r.transition(job.Name, "", StateIdle)

	p, err := pipeline.New(job.Family, r.extractor)
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrMissingConfig, err)
	}
	return r.run(ctx, job, p, report)
}

// RunJobWith is RunJob with a caller supplied processor.
func (r *Runner) RunJobWith(ctx context.Context, job Job, p Processor) (JobReport, error) {
	report := JobReport{Job: job.Name}
	r.transition(job.Name, "", StateIdle)
	if p == nil {
		return report, fmt.Errorf("%w: no processor for job %s", ErrMissingConfig, job.Name)
	}
	return r.run(ctx, job, p, report)
}

func (r *Runner) run(ctx context.Context, job Job, p Processor, report JobReport) (JobReport, error) {
	if err := checkDestinations(job, p); err != nil {
		return report, err
	}

	r.transition(job.Name, "", StateEnumeratingFiles)
	files, err := listFiles(job.InputDir)
	if err != nil {
		return report, err
	}
	for _, d := range job.Destinations {
		if err := os.MkdirAll(d.Dir, 0o755); err != nil {
			return report, fmt.Errorf("create output directory: %w", err)
		}
	}

	for _, path := range files {
		outcome, err := r.ProcessFile(ctx, job, p, path)
		if err != nil {
			r.metrics.FilesTotal.WithLabelValues(job.Name, "aborted").Inc()
			return report, err
		}
		report.Files = append(report.Files, outcome)
		report.Done++
	}

	r.transition(job.Name, "", StateCategoryDone)
	return report, nil
}

func checkDestinations(job Job, p Processor) error {
	if len(job.Destinations) == 0 {
		return fmt.Errorf("%w: no output sinks for job %s", ErrMissingConfig, job.Name)
	}
	have := make(map[record.Category]bool, len(job.Destinations))
	for _, d := range job.Destinations {
		have[d.Category] = true
	}
	for _, cat := range p.Categories() {
		if !have[cat.Sink()] {
			return fmt.Errorf("%w: no output sink for category %s in job %s", ErrMissingConfig, cat, job.Name)
		}
	}
	return nil
}

// listFiles returns the regular files of dir in directory listing order.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list input directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, path)
	}
	return files, nil
}

// ProcessFile streams one input file into its sinks. The returned error is
// set only when the input or the sinks could not be opened; read errors end
// the file early and are reported in FileOutcome.Err.
func (r *Runner) ProcessFile(ctx context.Context, job Job, p Processor, path string) (out FileOutcome, err error) {
	name := filepath.Base(path)
	out = newOutcome(path)
	log := r.logger.With(logging.Job(job.Name), logging.File(path)).WithContext(ctx)

	r.transition(job.Name, path, StateOpeningSinks)
	sinks, err := sink.Open(name, job.Destinations, r.sinkOpts)
	if err != nil {
		return out, fmt.Errorf("open sinks for %s: %w", name, err)
	}
	defer func() {
		r.transition(job.Name, path, StateClosingSinks)
		if cerr := sinks.Close(); cerr != nil {
			log.Error("failed to close output sinks", logging.Error(cerr))
			if out.Err == nil {
				out.Err = cerr
			}
		}
		for cat, n := range sinks.Counts() {
			out.Records[cat] = n
		}
		r.transition(job.Name, path, StateDone)
	}()

	in, err := reader.Open(path)
	if err != nil {
		return out, fmt.Errorf("open input %s: %w", name, err)
	}
	defer in.Close()

	r.transition(job.Name, path, StateStreamingLines)
	lineNo := 0
	for line, rerr := range in.Lines() {
		if rerr != nil {
			out.Err = rerr
			log.Error("input read failed, skipping rest of file", logging.Line(lineNo), logging.Error(rerr))
			break
		}
		lineNo++
		r.handleLine(log, job, p, sinks, &out, lineNo, line)
	}

	status := "ok"
	if out.Err != nil {
		status = "read_error"
	}
	r.metrics.FilesTotal.WithLabelValues(job.Name, status).Inc()

	log.Info(fmt.Sprintf("done reading %s, ok: %d, bad %d lines", path, out.OK, out.Bad),
		logging.FieldOK, out.OK,
		logging.FieldBad, out.Bad,
		"failures", out.failureAttrs(),
		"collisions", out.Collisions,
		"unmatched", out.Unmatched,
	)
	return out, nil
}

func (r *Runner) handleLine(log *slog.Logger, job Job, p Processor, sinks *sink.Set, out *FileOutcome, lineNo int, line []byte) {
	res, err := p.Process(line)
	if err == nil {
		if werr := sinks.Write(res.Category, res.Data); werr != nil {
			err = &pipeline.LineError{Reason: pipeline.ReasonWrite, Err: werr}
		}
	}

	if err != nil {
		reason := reasonOf(err)
		out.Bad++
		out.Failures[reason]++
		r.metrics.LinesTotal.WithLabelValues(job.Name, "bad").Inc()
		r.metrics.LineFailures.WithLabelValues(job.Name, string(reason)).Inc()
		log.Warn("dropped line", logging.Line(lineNo), logging.Reason(string(reason)), logging.Error(err))

		if qerr := r.dlq.Write(dlq.FailedLine{
			Job:    job.Name,
			File:   out.File,
			Line:   lineNo,
			Reason: string(reason),
			Error:  err.Error(),
			Raw:    append([]byte(nil), line...),
		}); qerr != nil {
			log.Warn("failed to queue dropped line", logging.Line(lineNo), logging.Error(qerr))
		}
		return
	}

	out.OK++
	r.metrics.LinesTotal.WithLabelValues(job.Name, "ok").Inc()
	r.metrics.RecordsTotal.WithLabelValues(job.Name, res.Category.Sink().String()).Inc()

	if res.Collision != nil {
		out.Collisions++
		r.metrics.MergeCollisions.WithLabelValues(job.Name).Inc()
		log.Warn("key collision, emitted envelope only",
			logging.Line(lineNo), logging.Key(res.Collision.Key), "record", string(res.Data))
	}
	if res.Unmatched {
		out.Unmatched++
		r.metrics.UnmatchedPayloads.WithLabelValues(job.Name).Inc()
		log.Warn("broken regex", logging.Line(lineNo), "message", res.Message)
	}
}

func reasonOf(err error) pipeline.Reason {
	var lineErr *pipeline.LineError
	if errors.As(err, &lineErr) {
		return lineErr.Reason
	}
	return pipeline.ReasonDecode
}

func (r *Runner) transition(job, file string, s State) {
	r.logger.Debug("state", logging.Job(job), logging.File(file), "state", string(s))
	if r.observer != nil {
		r.observer(job, file, s)
	}
}

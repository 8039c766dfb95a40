package batch_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/reformat/internal/batch"
	"github.com/telhawk-systems/reformat/internal/dlq"
	"github.com/telhawk-systems/reformat/internal/logging"
	"github.com/telhawk-systems/reformat/internal/pipeline"
	"github.com/telhawk-systems/reformat/internal/record"
	"github.com/telhawk-systems/reformat/internal/sink"
)

const (
	snoopyLine = `{"@timestamp":"2019-04-09T10:11:12.000Z","host":"ws-01","program":"snoopy","severity":"info","facility":"authpriv","ip":"10.0.0.5","message":"[uid:0 sid:1 tty:pts/0 cwd:/root filename:/bin/bash]: ls"}`
	sshdLine   = `{"@timestamp":"2019-04-09T10:11:13.000Z","host":"ws-01","program":"sshd","severity":"info","facility":"auth","ip":"10.0.0.5","message":"Accepted publickey for root"}`
	alertLine  = `{"@timestamp":"t","host":"sensor-1","program":"suricata","severity":"s","facility":"local5","ip":"10.9.9.9","event_type":"alert"}`
	statsLine  = `{"@timestamp":"t","host":"sensor-1","program":"suricata","severity":"s","facility":"local5","ip":"10.9.9.9","event_type":"stats"}`
	flowLine   = `{"@timestamp":"t","host":"sensor-1","program":"suricata","severity":"s","facility":"local5","ip":"10.9.9.9","event_type":"flow"}`
	dnsLine    = `{"@timestamp":"t","host":"sensor-1","program":"suricata","severity":"s","facility":"local5","ip":"10.9.9.9","event_type":"dns"}`
)

func writeGzip(t *testing.T, path string, lines ...string) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	for _, l := range lines {
		_, err := gz.Write([]byte(l + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, gz.Close())
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func readGzip(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	return string(data)
}

// decodeAll splits the back-to-back JSON records of an output file.
func decodeAll(t *testing.T, data string) []map[string]any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(data))
	var out []map[string]any
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func auditJob(root string) batch.Job {
	return batch.Job{
		Name:     "audit",
		Family:   pipeline.FamilyAudit,
		InputDir: filepath.Join(root, "in", "linux"),
		Destinations: []sink.Destination{
			{Category: record.AuditOther, Dir: filepath.Join(root, "out", "linux")},
			{Category: record.AuditSimple, Dir: filepath.Join(root, "out", "snoopy")},
		},
	}
}

func sensorJob(root string) batch.Job {
	return batch.Job{
		Name:     "sensor",
		Family:   pipeline.FamilySensor,
		InputDir: filepath.Join(root, "in", "suricata"),
		Destinations: []sink.Destination{
			{Category: record.AlertType, Dir: filepath.Join(root, "out", "alert")},
			{Category: record.OtherSensorType, Dir: filepath.Join(root, "out", "protocols")},
			{Category: record.StatsType, Dir: filepath.Join(root, "out", "stats")},
			{Category: record.FlowType, Dir: filepath.Join(root, "out", "flow")},
		},
	}
}

func TestProcessFile_CountsAddUp(t *testing.T) {
	root := t.TempDir()
	job := auditJob(root)
	writeGzip(t, filepath.Join(job.InputDir, "host.gz"),
		snoopyLine,
		"not json at all",
		sshdLine,
		`{"program":"snoopy"}`,
		"",
		snoopyLine,
	)

	runner := batch.NewRunner(logging.Discard())
	report, err := runner.RunJob(context.Background(), job)
	require.NoError(t, err)
	require.Len(t, report.Files, 1)

	out := report.Files[0]
	assert.Equal(t, 6, out.Lines())
	assert.Equal(t, 3, out.OK)
	assert.Equal(t, 3, out.Bad)
	assert.Equal(t, map[pipeline.Reason]int{pipeline.ReasonDecode: 2, pipeline.ReasonMissingField: 1}, out.Failures)
	assert.Equal(t, map[record.Category]int{record.AuditSimple: 2, record.AuditOther: 1}, out.Records)
	assert.NoError(t, out.Err)

	assert.Len(t, decodeAll(t, readGzip(t, filepath.Join(root, "out", "snoopy", "host.gz"))), 2)
	assert.Len(t, decodeAll(t, readGzip(t, filepath.Join(root, "out", "linux", "host.gz"))), 1)

	m := runner.Metrics()
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LinesTotal.WithLabelValues("audit", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LineFailures.WithLabelValues("audit", "decode")))
}

func TestProcessFile_DecodeFailuresDropExactlyK(t *testing.T) {
	root := t.TempDir()
	job := sensorJob(root)

	lines := []string{alertLine, "{broken", statsLine, `{"event_type":`, flowLine, "\x00\x01", dnsLine}
	writeGzip(t, filepath.Join(job.InputDir, "eve.gz"), lines...)

	report, err := batch.NewRunner(logging.Discard()).RunJob(context.Background(), job)
	require.NoError(t, err)

	out := report.Files[0]
	assert.Equal(t, 3, out.Bad)
	assert.Equal(t, len(lines)-3, out.OK)

	total := 0
	for _, dir := range []string{"alert", "stats", "flow", "protocols"} {
		total += len(decodeAll(t, readGzip(t, filepath.Join(root, "out", dir, "eve.gz"))))
	}
	assert.Equal(t, len(lines)-3, total)
}

func TestRunJob_AuditSimpleRoutedToAuditSinkOnly(t *testing.T) {
	root := t.TempDir()
	job := auditJob(root)
	line := `{"@timestamp":"2019-04-09T10:11:12.000Z","host":"ws-01","program":"snoopy","severity":"info","facility":"authpriv","ip":"10.0.0.5"}`
	writeGzip(t, filepath.Join(job.InputDir, "host.gz"), line)

	report, err := batch.NewRunner(logging.Discard()).RunJob(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Files[0].OK)

	audit := decodeAll(t, readGzip(t, filepath.Join(root, "out", "snoopy", "host.gz")))
	require.Len(t, audit, 1)
	assert.Equal(t, "snoopy", audit[0]["syslog_program"])
	assert.Empty(t, readGzip(t, filepath.Join(root, "out", "linux", "host.gz")))
}

func TestRunJob_SimpleGrammarEndToEnd(t *testing.T) {
	root := t.TempDir()
	job := auditJob(root)
	writeGzip(t, filepath.Join(job.InputDir, "host.gz"), snoopyLine)

	_, err := batch.NewRunner(logging.Discard()).RunJob(context.Background(), job)
	require.NoError(t, err)

	audit := decodeAll(t, readGzip(t, filepath.Join(root, "out", "snoopy", "host.gz")))
	require.Len(t, audit, 1)
	assert.Equal(t, "pts/0", audit[0]["tty"])
	assert.Equal(t, "/bin/bash", audit[0]["filename"])
	assert.Empty(t, readGzip(t, filepath.Join(root, "out", "linux", "host.gz")))
}

func TestRunJob_CollisionCountsOK(t *testing.T) {
	root := t.TempDir()
	job := batch.Job{
		Name:     "eventlog",
		Family:   pipeline.FamilyEventLog,
		InputDir: filepath.Join(root, "in", "windows"),
		Destinations: []sink.Destination{
			{Category: record.EventLogOther, Dir: filepath.Join(root, "out", "windows")},
			{Category: record.EventLogAuditSource, Dir: filepath.Join(root, "out", "sysmon")},
		},
	}
	line := `{"@timestamp":"t","host":"dc-01","program":"Security","severity":"s","facility":"f","ip":"1.2.3.4","syslog_ip":"9.9.9.9","EventID":4624}`
	writeGzip(t, filepath.Join(job.InputDir, "dc.gz"), line)

	report, err := batch.NewRunner(logging.Discard()).RunJob(context.Background(), job)
	require.NoError(t, err)

	out := report.Files[0]
	assert.Equal(t, 1, out.OK)
	assert.Equal(t, 0, out.Bad)
	assert.Equal(t, 1, out.Collisions)

	records := decodeAll(t, readGzip(t, filepath.Join(root, "out", "windows", "dc.gz")))
	require.Len(t, records, 1)
	assert.Equal(t, "1.2.3.4", records[0]["syslog_ip"])
	assert.NotContains(t, records[0], "EventID")
}

func TestRunAll_SinkOpenFailureAbortsJobOnly(t *testing.T) {
	root := t.TempDir()
	audit := auditJob(root)
	sensor := sensorJob(root)

	writeGzip(t, filepath.Join(audit.InputDir, "a.gz"), snoopyLine, sshdLine)
	writeGzip(t, filepath.Join(audit.InputDir, "b.gz"), snoopyLine)
	writeGzip(t, filepath.Join(audit.InputDir, "c.gz"), snoopyLine)
	writeGzip(t, filepath.Join(sensor.InputDir, "eve.gz"), alertLine, flowLine)

	// A directory where the second file's snoopy output should go makes
	// the sink impossible to create.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "out", "snoopy", "b.gz"), 0o755))

	runner := batch.NewRunner(logging.Discard())
	reports := runner.RunAll(context.Background(), []batch.Job{audit, sensor})
	require.Len(t, reports, 2)

	assert.Error(t, reports[0].Err)
	assert.Equal(t, 1, reports[0].Done)
	require.Len(t, reports[0].Files, 1)
	assert.Equal(t, 2, reports[0].Files[0].OK)

	// First file is finalized: a valid, non-empty gzip stream.
	assert.Len(t, decodeAll(t, readGzip(t, filepath.Join(root, "out", "snoopy", "a.gz"))), 1)
	assert.Len(t, decodeAll(t, readGzip(t, filepath.Join(root, "out", "linux", "a.gz"))), 1)

	// Nothing after the failure was processed.
	_, err := os.Stat(filepath.Join(root, "out", "snoopy", "c.gz"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = os.Stat(filepath.Join(root, "out", "linux", "c.gz"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	// The sibling job still completed.
	assert.NoError(t, reports[1].Err)
	assert.Equal(t, 1, reports[1].Done)
	assert.Len(t, decodeAll(t, readGzip(t, filepath.Join(root, "out", "alert", "eve.gz"))), 1)
	assert.Len(t, decodeAll(t, readGzip(t, filepath.Join(root, "out", "flow", "eve.gz"))), 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(runner.Metrics().JobsTotal.WithLabelValues("audit", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(runner.Metrics().JobsTotal.WithLabelValues("sensor", "ok")))
}

func TestRunJob_InputNotGzipAbortsJob(t *testing.T) {
	root := t.TempDir()
	job := auditJob(root)
	require.NoError(t, os.MkdirAll(job.InputDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(job.InputDir, "a.log"), []byte("plain\n"), 0o644))

	report, err := batch.NewRunner(logging.Discard()).RunJob(context.Background(), job)
	assert.Error(t, err)
	assert.Equal(t, 0, report.Done)
}

func TestRunJob_MissingConfig(t *testing.T) {
	root := t.TempDir()
	job := auditJob(root)

	noSinks := job
	noSinks.Destinations = nil
	_, err := batch.NewRunner(logging.Discard()).RunJob(context.Background(), noSinks)
	assert.ErrorIs(t, err, batch.ErrMissingConfig)

	partial := job
	partial.Destinations = job.Destinations[:1]
	_, err = batch.NewRunner(logging.Discard()).RunJob(context.Background(), partial)
	assert.ErrorIs(t, err, batch.ErrMissingConfig)

	unknown := job
	unknown.Family = "dns"
	_, err = batch.NewRunner(logging.Discard()).RunJob(context.Background(), unknown)
	assert.ErrorIs(t, err, batch.ErrMissingConfig)

	_, err = batch.NewRunner(logging.Discard()).RunJobWith(context.Background(), job, nil)
	assert.ErrorIs(t, err, batch.ErrMissingConfig)
}

func TestRunJob_MissingInputDir(t *testing.T) {
	root := t.TempDir()
	_, err := batch.NewRunner(logging.Discard()).RunJob(context.Background(), auditJob(root))
	assert.Error(t, err)
}

func TestRunJob_SkipsDirectories(t *testing.T) {
	root := t.TempDir()
	job := auditJob(root)
	writeGzip(t, filepath.Join(job.InputDir, "a.gz"), sshdLine)
	require.NoError(t, os.MkdirAll(filepath.Join(job.InputDir, "nested"), 0o755))

	report, err := batch.NewRunner(logging.Discard()).RunJob(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Done)
}

func TestRunJob_StateSequence(t *testing.T) {
	root := t.TempDir()
	job := auditJob(root)
	writeGzip(t, filepath.Join(job.InputDir, "a.gz"), "bad", sshdLine)

	var states []batch.State
	runner := batch.NewRunner(logging.Discard(), batch.WithObserver(func(_, _ string, s batch.State) {
		states = append(states, s)
	}))

	_, err := runner.RunJob(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, []batch.State{
		batch.StateIdle,
		batch.StateEnumeratingFiles,
		batch.StateOpeningSinks,
		batch.StateStreamingLines,
		batch.StateClosingSinks,
		batch.StateDone,
		batch.StateCategoryDone,
	}, states)
}

func TestRunJob_DLQAndSeparator(t *testing.T) {
	root := t.TempDir()
	job := auditJob(root)
	writeGzip(t, filepath.Join(job.InputDir, "a.gz"), sshdLine, "oops", sshdLine)

	q, err := dlq.NewQueue(filepath.Join(root, "dlq"), logging.Discard())
	require.NoError(t, err)
	defer q.Close()

	runner := batch.NewRunner(logging.Discard(),
		batch.WithDLQ(q),
		batch.WithSinkOptions(sink.Options{Separator: []byte("\n")}),
	)
	report, err := runner.RunJob(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Files[0].Bad)

	rejected, err := q.List(0)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	assert.Equal(t, 2, rejected[0].Line)
	assert.Equal(t, []byte("oops"), rejected[0].Raw)
	assert.Equal(t, string(pipeline.ReasonDecode), rejected[0].Reason)

	data := readGzip(t, filepath.Join(root, "out", "linux", "a.gz"))
	assert.Equal(t, 2, strings.Count(data, "\n"))

	ok, bad := report.Totals()
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, bad)
}

type failingProcessor struct{}

func (failingProcessor) Process([]byte) (pipeline.Result, error) {
	return pipeline.Result{}, errors.New("unexpected")
}

func (failingProcessor) Categories() []record.Category {
	return []record.Category{record.AuditSimple, record.AuditOther}
}

func TestRunJobWith_UntaggedErrorsCountBad(t *testing.T) {
	root := t.TempDir()
	job := auditJob(root)
	writeGzip(t, filepath.Join(job.InputDir, "a.gz"), sshdLine, sshdLine)

	report, err := batch.NewRunner(logging.Discard()).RunJobWith(context.Background(), job, failingProcessor{})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Files[0].Bad)
	assert.Equal(t, 0, report.Files[0].OK)
}

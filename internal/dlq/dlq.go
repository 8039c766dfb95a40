// Package dlq keeps lines rejected by the reformat pipeline in flat files so
// they can be inspected or replayed.
package dlq

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/telhawk-systems/reformat/internal/logging"
)

const suffix = ".rejects.jsonl"

// FailedLine captures one dropped input line.
type FailedLine struct {
	Timestamp time.Time `json:"timestamp"`
	Job       string    `json:"job"`
	File      string    `json:"file"`
	Line      int       `json:"line"`
	Reason    string    `json:"reason"`
	Error     string    `json:"error"`
	// Raw holds the undecoded bytes so non-UTF-8 input survives.
	Raw []byte `json:"raw"`
}

// Queue appends failed lines to one file per job.
type Queue struct {
	basePath string
	logger   *logging.Logger
	mu       sync.Mutex
	files    map[string]*os.File
	written  uint64
}

// NewQueue creates a queue rooted at basePath.
func NewQueue(basePath string, logger *logging.Logger) (*Queue, error) {
	if basePath == "" {
		return nil, fmt.Errorf("dlq base path is empty")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create dlq directory: %w", err)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Queue{
		basePath: basePath,
		logger:   logger,
		files:    make(map[string]*os.File),
	}, nil
}

// Write records a failed line. A nil queue discards it.
func (q *Queue) Write(entry FailedLine) error {
	if q == nil {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	f, err := q.fileFor(entry.Job)
	if err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write dlq entry: %w", err)
	}

	q.written++
	return nil
}

func (q *Queue) fileFor(job string) (*os.File, error) {
	if f, ok := q.files[job]; ok {
		return f, nil
	}
	path := filepath.Join(q.basePath, job+suffix)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dlq file: %w", err)
	}
	q.files[job] = f
	return f, nil
}

// Stats returns DLQ counters.
func (q *Queue) Stats() map[string]interface{} {
	if q == nil {
		return map[string]interface{}{
			"enabled": false,
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	return map[string]interface{}{
		"enabled":   true,
		"written":   q.written,
		"base_path": q.basePath,
	}
}

// List returns up to limit failed lines across all jobs, ordered by file
// name. A limit of zero returns everything.
func (q *Queue) List(limit int) ([]FailedLine, error) {
	if q == nil {
		return nil, fmt.Errorf("dlq not enabled")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, f := range q.files {
		if err := f.Sync(); err != nil {
			return nil, fmt.Errorf("sync dlq file: %w", err)
		}
	}

	entries, err := os.ReadDir(q.basePath)
	if err != nil {
		return nil, fmt.Errorf("read dlq directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []FailedLine
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		lines, err := readFile(filepath.Join(q.basePath, e.Name()))
		if err != nil {
			q.logger.Error("failed to read dlq file", logging.File(e.Name()), logging.Error(err))
			continue
		}
		for _, l := range lines {
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
			out = append(out, l)
		}
	}
	return out, nil
}

func readFile(path string) ([]FailedLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []FailedLine
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var entry FailedLine
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return out, fmt.Errorf("parse dlq entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, scanner.Err()
}

// Purge removes every queued entry.
func (q *Queue) Purge() error {
	if q == nil {
		return fmt.Errorf("dlq not enabled")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.closeFiles()

	entries, err := os.ReadDir(q.basePath)
	if err != nil {
		return fmt.Errorf("read dlq directory: %w", err)
	}

	deleted := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		if err := os.Remove(filepath.Join(q.basePath, e.Name())); err != nil {
			q.logger.Error("failed to delete dlq file", logging.File(e.Name()), logging.Error(err))
			continue
		}
		deleted++
	}

	q.logger.Info("dlq purged", "files", deleted)
	return nil
}

// Close closes the open job files.
func (q *Queue) Close() error {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closeFiles()
}

func (q *Queue) closeFiles() error {
	var first error
	for job, f := range q.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
		delete(q.files, job)
	}
	return first
}

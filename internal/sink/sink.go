// Package sink owns the gzip output streams written for one input file.
package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/telhawk-systems/reformat/internal/record"
)

// ErrNoSink is returned when a record is routed to a category without an
// open stream.
var ErrNoSink = errors.New("no sink for category")

// Destination binds a category to an output directory.
type Destination struct {
	Category record.Category
	Dir      string
}

// Options control how records are written.
type Options struct {
	// Separator is written after every record. Empty keeps records
	// back to back.
	Separator []byte
	// Level is the gzip compression level. Zero means gzip.DefaultCompression.
	Level int
}

type stream struct {
	path  string
	file  *os.File
	gz    *gzip.Writer
	count int
}

// Set is the fixed group of output streams for one input file.
type Set struct {
	streams map[record.Category]*stream
	order   []record.Category
	opts    Options
	closed  bool
}

// Open creates <dir>/<filename> for every destination. If any stream cannot
// be opened the ones already opened are closed and the error is returned.
func Open(filename string, dests []Destination, opts Options) (*Set, error) {
	if opts.Level == 0 {
		opts.Level = gzip.DefaultCompression
	}

	s := &Set{
		streams: make(map[record.Category]*stream, len(dests)),
		opts:    opts,
	}

	for _, d := range dests {
		if _, dup := s.streams[d.Category]; dup {
			s.Close()
			return nil, fmt.Errorf("duplicate destination for %s", d.Category)
		}

		path := filepath.Join(d.Dir, filename)
		f, err := os.Create(path)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open sink %s: %w", d.Category, err)
		}
		gz, err := gzip.NewWriterLevel(f, opts.Level)
		if err != nil {
			f.Close()
			s.Close()
			return nil, fmt.Errorf("open sink %s: %w", d.Category, err)
		}

		s.streams[d.Category] = &stream{path: path, file: f, gz: gz}
		s.order = append(s.order, d.Category)
	}

	return s, nil
}

// Write appends one serialized record to the stream of cat.
func (s *Set) Write(cat record.Category, data []byte) error {
	if s.closed {
		return errors.New("sink set closed")
	}
	st, ok := s.streams[cat.Sink()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSink, cat)
	}
	if _, err := st.gz.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", st.path, err)
	}
	if len(s.opts.Separator) > 0 {
		if _, err := st.gz.Write(s.opts.Separator); err != nil {
			return fmt.Errorf("write %s: %w", st.path, err)
		}
	}
	st.count++
	return nil
}

// Counts returns the number of records written per category.
func (s *Set) Counts() map[record.Category]int {
	out := make(map[record.Category]int, len(s.streams))
	for cat, st := range s.streams {
		out[cat] = st.count
	}
	return out
}

// Paths returns the output file path per category.
func (s *Set) Paths() map[record.Category]string {
	out := make(map[record.Category]string, len(s.streams))
	for cat, st := range s.streams {
		out[cat] = st.path
	}
	return out
}

// Close flushes and closes every stream. It is safe to call more than once.
func (s *Set) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for _, cat := range s.order {
		st := s.streams[cat]
		if err := st.gz.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", st.path, err))
		}
		if err := st.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", st.path, err))
		}
	}
	return errors.Join(errs...)
}

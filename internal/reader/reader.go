// Package reader streams raw lines out of gzip-compressed log files.
package reader

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding/charmap"
)

// Reader produces the lines of one compressed input. It is forward-only:
// re-reading requires opening the source again.
type Reader struct {
	file *os.File
	gz   *gzip.Reader
	buf  *bufio.Reader
	used bool
}

// Open opens a gzip file for line streaming.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// NewReader wraps an already open gzip stream.
func NewReader(src io.Reader) (*Reader, error) {
	gz, err := gzip.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	return &Reader{gz: gz, buf: bufio.NewReaderSize(gz, 64*1024)}, nil
}

// Lines returns the lazy sequence of lines with their terminator removed.
// A final line without terminator is still yielded. An I/O error is yielded
// once and ends the sequence. The byte slices are only valid until the next
// iteration.
func (r *Reader) Lines() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if r.used {
			yield(nil, errors.New("reader already consumed"))
			return
		}
		r.used = true

		for {
			line, err := r.buf.ReadSlice('\n')
			if errors.Is(err, bufio.ErrBufferFull) {
				// Long line: accumulate the remainder.
				full := append([]byte(nil), line...)
				for errors.Is(err, bufio.ErrBufferFull) {
					line, err = r.buf.ReadSlice('\n')
					full = append(full, line...)
				}
				line = full
			}
			if len(line) > 0 {
				if !yield(trimEOL(line), nil) {
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("read input: %w", err))
				return
			}
		}
	}
}

// RawLines is Lines with the line terminator kept.
func (r *Reader) RawLines() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if r.used {
			yield(nil, errors.New("reader already consumed"))
			return
		}
		r.used = true

		for {
			line, err := r.buf.ReadBytes('\n')
			if len(line) > 0 {
				if !yield(line, nil) {
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("read input: %w", err))
				return
			}
		}
	}
}

// Close releases the gzip stream and the underlying file.
func (r *Reader) Close() error {
	err := r.gz.Close()
	if r.file != nil {
		if ferr := r.file.Close(); err == nil {
			err = ferr
		}
	}
	return err
}

// Decode converts a Latin-1 encoded line to a Go string. Every byte maps to
// exactly one code point, so historical data with invalid UTF-8 survives.
func Decode(line []byte) (string, error) {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(line)
	if err != nil {
		return "", fmt.Errorf("decode latin-1: %w", err)
	}
	return string(out), nil
}

func trimEOL(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte{'\n'})
	return bytes.TrimSuffix(line, []byte{'\r'})
}

// Package forward streams decompressed log lines to a local stream socket.
package forward

import (
	"context"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"sort"

	"github.com/telhawk-systems/reformat/internal/logging"
	"github.com/telhawk-systems/reformat/internal/reader"
	"golang.org/x/time/rate"
)

// Forwarder writes every line of its input files to one connection.
type Forwarder struct {
	conn    io.Writer
	limiter *rate.Limiter
	logger  *logging.Logger
}

// New creates a forwarder. A non-positive linesPerSecond disables limiting.
func New(conn io.Writer, linesPerSecond float64, logger *logging.Logger) *Forwarder {
	if logger == nil {
		logger = logging.Default()
	}
	f := &Forwarder{conn: conn, logger: logger}
	if linesPerSecond > 0 {
		burst := int(linesPerSecond)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(linesPerSecond), burst)
	}
	return f
}

// Dial connects to a unix stream socket.
func Dial(ctx context.Context, socket string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socket)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", socket, err)
	}
	return conn, nil
}

// Glob expands pattern and returns the matches sorted by name.
func Glob(pattern string) ([]string, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	sort.Strings(files)
	return files, nil
}

// Files forwards every file in order and returns the number of lines sent.
func (f *Forwarder) Files(ctx context.Context, files []string) (int, error) {
	f.logger.Info(fmt.Sprintf("got %d files", len(files)))

	total := 0
	for _, path := range files {
		n, err := f.File(ctx, path)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// File forwards one gzip file, line terminators included.
func (f *Forwarder) File(ctx context.Context, path string) (int, error) {
	in, err := reader.Open(path)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	f.logger.Info("forwarding file", logging.File(path))

	sent := 0
	for line, err := range in.RawLines() {
		if err != nil {
			return sent, err
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return sent, err
			}
		}
		if _, err := f.conn.Write(line); err != nil {
			return sent, fmt.Errorf("send line: %w", err)
		}
		sent++
	}
	return sent, nil
}

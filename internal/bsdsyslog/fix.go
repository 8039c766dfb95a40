package bsdsyslog

import (
	"fmt"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/telhawk-systems/reformat/internal/reader"
)

// FixFile rewrites every line of the gzip file src with FixCollector into
// the gzip file dst and returns the number of lines written.
func FixFile(src, dst string) (n int, err error) {
	in, err := reader.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	f, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	gz := gzip.NewWriter(f)
	defer func() {
		if cerr := gz.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
	}()

	for line, rerr := range in.Lines() {
		if rerr != nil {
			return n, rerr
		}
		if _, err := gz.Write([]byte(FixCollector(string(line)) + "\n")); err != nil {
			return n, fmt.Errorf("write output: %w", err)
		}
		n++
	}
	return n, nil
}

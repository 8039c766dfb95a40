package forward_test

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telhawk-systems/reformat/internal/forward"
	"github.com/telhawk-systems/reformat/internal/logging"
)

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestFiles_SortedAndVerbatim(t *testing.T) {
	dir := t.TempDir()
	writeGzip(t, filepath.Join(dir, "b.gz"), "b1\nb2")
	writeGzip(t, filepath.Join(dir, "a.gz"), "a1\r\na2\n")

	files, err := forward.Glob(filepath.Join(dir, "*.gz"))
	require.NoError(t, err)

	var out bytes.Buffer
	n, err := forward.New(&out, 0, logging.Discard()).Files(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, 4, n)
	assert.Equal(t, "a1\r\na2\nb1\nb2", out.String())
}

func TestFile_RateLimited(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.gz")
	writeGzip(t, path, "1\n2\n3\n4\n")

	var out bytes.Buffer
	start := time.Now()
	n, err := forward.New(&out, 20, logging.Discard()).File(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFile_CancelledWhileLimited(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.gz")
	writeGzip(t, path, "1\n2\n3\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := forward.New(io.Discard, 0.001, logging.Discard()).File(ctx, path)
	assert.Error(t, err)
}

func TestDial_UnixSocket(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "s.sock")
	ln, err := net.Listen("unix", sock)
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		received <- string(data)
	}()

	dir := t.TempDir()
	path := filepath.Join(dir, "a.gz")
	writeGzip(t, path, "hello\nworld\n")

	conn, err := forward.Dial(context.Background(), sock)
	require.NoError(t, err)
	_, err = forward.New(conn, 0, logging.Discard()).File(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	select {
	case got := <-received:
		assert.Equal(t, "hello\nworld\n", got)
	case <-time.After(5 * time.Second):
		t.Fatal("no data received")
	}
}

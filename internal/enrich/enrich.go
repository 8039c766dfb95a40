// Package enrich loads asset and signature tables into a key-value store
// used for enrichment lookups downstream.
package enrich

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/redis/go-redis/v9"
)

// Entry is one key-value pair destined for the store.
type Entry struct {
	Key   string
	Value string
}

// Setter is the subset of the redis client used by Store.
type Setter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Open wraps r in a gzip reader when gzipped is set.
func Open(r io.Reader, gzipped bool) (io.Reader, error) {
	if !gzipped {
		return r, nil
	}
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	return gz, nil
}

// ParseAssets reads an asset CSV with a header row. Every row with an ip
// column becomes "<ip>;<prefix>.<col>=<value>;..." keyed by ip, columns in
// header order.
func ParseAssets(r io.Reader, prefix string) ([]Entry, error) {
	header, rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}

	ipCol := indexOf(header, "ip")
	if ipCol < 0 {
		return nil, nil
	}

	var out []Entry
	index := make(map[string]int)
	for _, row := range rows {
		ip := row[ipCol]
		fields := make([]string, 0, len(header)-1)
		for i, col := range header {
			if i == ipCol {
				continue
			}
			fields = append(fields, prefix+"."+col+"="+row[i])
		}
		entry := Entry{Key: ip, Value: ip + ";" + strings.Join(fields, ";")}

		// Later rows win for a repeated ip.
		if at, ok := index[ip]; ok {
			out[at] = entry
			continue
		}
		index[ip] = len(out)
		out = append(out, entry)
	}
	return out, nil
}

// ParseSignatures reads a signature CSV with a sid column. Every row becomes
// a JSON object keyed by sid.
func ParseSignatures(r io.Reader) ([]Entry, error) {
	header, rows, err := readCSV(r)
	if err != nil {
		return nil, err
	}

	sidCol := indexOf(header, "sid")
	if sidCol < 0 {
		return nil, errors.New("signature table has no sid column")
	}

	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		obj := make(map[string]string, len(header))
		for i, col := range header {
			obj[col] = row[i]
		}
		data, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("marshal signature %s: %w", row[sidCol], err)
		}
		out = append(out, Entry{Key: row[sidCol], Value: string(data)})
	}
	return out, nil
}

// Store writes every entry with SET and no expiry.
func Store(ctx context.Context, client Setter, entries []Entry) (int, error) {
	stored := 0
	for _, e := range entries {
		if err := client.Set(ctx, e.Key, e.Value, 0).Err(); err != nil {
			return stored, fmt.Errorf("set %s: %w", e.Key, err)
		}
		stored++
	}
	return stored, nil
}

// NewClient connects to the redis URL and verifies the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

func readCSV(r io.Reader) ([]string, [][]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, errors.New("read csv: empty table")
	}
	header := records[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	return header, records[1:], nil
}

func indexOf(list []string, name string) int {
	for i, item := range list {
		if item == name {
			return i
		}
	}
	return -1
}

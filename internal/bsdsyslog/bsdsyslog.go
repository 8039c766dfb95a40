// Package bsdsyslog rewrites legacy BSD syslog lines into a fixed syntax and
// replays them to a UDP syslog receiver.
package bsdsyslog

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/telhawk-systems/reformat/internal/logging"
	"github.com/telhawk-systems/reformat/internal/reader"
)

// Placeholders used when a line carries no priority or pid. They have no
// meaning beyond being recognizable.
const (
	DefaultPriority = "1"
	DefaultPID      = "666"
)

var linePattern = regexp.MustCompile(`^(?:<(?P<pri>\d+)>)?(?P<ts>\S+) (?P<host>\S+) (?P<program>\S+?)(?:\[(?P<pid>\d+)\])?:?(?P<msg> .+)$`)

// Message is a parsed BSD syslog line.
type Message struct {
	Priority string
	Time     string
	Host     string
	Program  string
	PID      string
	Text     string
}

// Parse splits a line. The second return value is false when the line does
// not look like BSD syslog.
func Parse(line string) (Message, bool) {
	m := linePattern.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
	if m == nil {
		return Message{}, false
	}
	group := func(name string) string {
		return m[linePattern.SubexpIndex(name)]
	}

	msg := Message{
		Priority: group("pri"),
		Time:     group("ts"),
		Host:     group("host"),
		Program:  group("program"),
		PID:      group("pid"),
		Text:     strings.TrimRight(group("msg"), " \t"),
	}
	if msg.Priority == "" {
		msg.Priority = DefaultPriority
	}
	if msg.PID == "" {
		msg.PID = DefaultPID
	}
	return msg, true
}

// Format renders "<pri>ts host program[pid]: text". Text keeps its leading
// space.
func (m Message) Format() string {
	return fmt.Sprintf("<%s>%s %s %s[%s]:%s", m.Priority, m.Time, m.Host, m.Program, m.PID, m.Text)
}

// FixCollector inserts "collector imkafka" after the second token of a
// broken RFC 5424 line. Lines with fewer than two spaces are returned as is.
func FixCollector(line string) string {
	first := strings.Index(line, " ")
	if first < 0 {
		return line
	}
	second := strings.Index(line[first+1:], " ")
	if second < 0 {
		return line
	}
	cut := first + 1 + second
	return line[:cut] + " collector imkafka " + strings.TrimLeft(line[cut+1:], " \t")
}

// Stats counts replayed lines.
type Stats struct {
	Sent    int
	Skipped int
}

// Replayer sends reformatted lines as individual datagrams.
type Replayer struct {
	conn   net.Conn
	logger *logging.Logger
}

// Dial opens a UDP socket to addr.
func Dial(ctx context.Context, addr string, logger *logging.Logger) (*Replayer, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial syslog %s: %w", addr, err)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Replayer{conn: conn, logger: logger}, nil
}

// File replays every line of a gzip file.
func (r *Replayer) File(ctx context.Context, path string) (Stats, error) {
	var stats Stats

	in, err := reader.Open(path)
	if err != nil {
		return stats, err
	}
	defer in.Close()

	for line, err := range in.Lines() {
		if err != nil {
			return stats, err
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		msg, ok := Parse(string(line))
		if !ok {
			stats.Skipped++
			r.logger.Debug("skipping line that is not bsd syslog", logging.File(path))
			continue
		}
		if _, err := r.conn.Write([]byte(msg.Format())); err != nil {
			return stats, fmt.Errorf("send datagram: %w", err)
		}
		stats.Sent++
	}
	return stats, nil
}

// Close closes the socket.
func (r *Replayer) Close() error {
	return r.conn.Close()
}

// Package extractor parses snoopy process-execution payloads into structured
// fields using two fixed, mutually exclusive grammars.
package extractor

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/telhawk-systems/reformat/internal/record"
)

const (
	simplePattern   = `^\s?\[uid:(\d+) sid:(\d+) tty:(\S+) cwd:(\S+) filename:(\S+)\]: (.+)$`
	expandedPattern = `^\s?\[login:(\S+) ssh:(\(.+?\)) username:(\S+) uid:(\d+) group:(\S+) gid:(\d+) sid:(\d+) tty:(\S+) cwd:(\S+) filename:(\S+)\]: (.+)$`
)

// ErrNoMatch is returned when neither grammar matches the payload. It is not
// a line failure.
var ErrNoMatch = errors.New("no snoopy grammar matched")

// TupleError reports a malformed ssh connection tuple.
type TupleError struct {
	Text   string
	Tokens int
}

func (e *TupleError) Error() string {
	return fmt.Sprintf("ssh tuple %q: expected 4 fields, got %d", e.Text, e.Tokens)
}

// Kind identifies the grammar that produced a Result.
type Kind int

const (
	KindNone Kind = iota
	KindSimple
	KindExpanded
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindExpanded:
		return "expanded"
	}
	return "none"
}

// Category returns the audit category for the grammar kind.
func (k Kind) Category() record.Category {
	if k == KindExpanded {
		return record.AuditExpanded
	}
	return record.AuditSimple
}

// Result is the structured output of a successful extraction.
type Result struct {
	Kind   Kind
	Fields record.Record
}

// Extractor holds the compiled grammars. It is safe to share.
type Extractor struct {
	simple   *regexp.Regexp
	expanded *regexp.Regexp
}

// New compiles the grammars.
func New() *Extractor {
	return &Extractor{
		simple:   regexp.MustCompile(simplePattern),
		expanded: regexp.MustCompile(expandedPattern),
	}
}

// Extract applies the simple grammar, then the expanded one.
func (e *Extractor) Extract(msg string) (Result, error) {
	if m := e.simple.FindStringSubmatch(msg); m != nil {
		return Result{
			Kind: KindSimple,
			Fields: record.Record{
				"uid":      m[1],
				"sid":      m[2],
				"tty":      m[3],
				"cwd":      m[4],
				"filename": m[5],
			},
		}, nil
	}

	m := e.expanded.FindStringSubmatch(msg)
	if m == nil {
		return Result{}, ErrNoMatch
	}

	ssh, err := ParseConnectionTuple(m[2])
	if err != nil {
		return Result{}, err
	}

	return Result{
		Kind: KindExpanded,
		Fields: record.Record{
			"login":    m[1],
			"ssh":      ssh,
			"username": m[3],
			"uid":      m[4],
			"group":    m[5],
			"gid":      m[6],
			"sid":      m[7],
			"tty":      m[8],
			"cwd":      m[9],
			"filename": m[10],
			"cmd":      m[11],
		},
	}, nil
}

// ParseConnectionTuple parses "(src_ip src_port dst_ip dst_port)". Text
// containing "undefined" yields the empty tuple.
func ParseConnectionTuple(text string) (map[string]any, error) {
	if strings.Contains(text, "undefined") {
		return map[string]any{}, nil
	}

	inner := strings.TrimSuffix(strings.TrimPrefix(text, "("), ")")
	fields := strings.Fields(inner)
	if len(fields) != 4 {
		return nil, &TupleError{Text: text, Tokens: len(fields)}
	}

	return map[string]any{
		"src_ip":   fields[0],
		"src_port": fields[1],
		"dst_ip":   fields[2],
		"dst_port": fields[3],
	}, nil
}

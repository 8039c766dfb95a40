// Package normalizer projects source records onto the canonical syslog
// envelope shared by every emitted record.
package normalizer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/telhawk-systems/reformat/internal/record"
)

// Source keys read from incoming records.
const (
	SourceTimestamp = "@timestamp"
	SourceHost      = "host"
	SourceProgram   = "program"
	SourceSeverity  = "severity"
	SourceFacility  = "facility"
	SourceIP        = "ip"
	SourceMessage   = "message"
)

// Canonical keys written to emitted records.
const (
	KeyTimestamp = "@timestamp"
	KeyHost      = "syslog_host"
	KeyProgram   = "syslog_program"
	KeySeverity  = "syslog_severity"
	KeyFacility  = "syslog_facility"
	KeyIP        = "syslog_ip"
	KeyMessage   = "syslog_message"
)

// ErrMissingField is returned when a required source key is absent.
var ErrMissingField = errors.New("missing required field")

// TimestampOverwrite is the merge exception set used when source fields are
// folded back into the envelope.
var TimestampOverwrite = []string{KeyTimestamp}

var renames = []struct{ from, to string }{
	{SourceTimestamp, KeyTimestamp},
	{SourceHost, KeyHost},
	{SourceProgram, KeyProgram},
	{SourceSeverity, KeySeverity},
	{SourceFacility, KeyFacility},
	{SourceIP, KeyIP},
}

// stripped lists the source keys removed from event-log and sensor records.
// The timestamp is kept and replaced during merge.
var stripped = []string{SourceHost, SourceProgram, SourceSeverity, SourceFacility, SourceIP, SourceMessage}

// Envelope is the canonical projection of a source record. Values are
// carried through unchanged.
type Envelope struct {
	Timestamp any
	Host      any
	Program   any
	Severity  any
	Facility  any
	IP        any
	// Message is nil when the source had no message key.
	Message *any
}

// Project builds the envelope. Every source key except message is required.
func Project(src record.Record) (Envelope, error) {
	values := make([]any, len(renames))
	for i, rn := range renames {
		v, ok := src[rn.from]
		if !ok {
			return Envelope{}, fmt.Errorf("%w: %s", ErrMissingField, rn.from)
		}
		values[i] = v
	}

	env := Envelope{
		Timestamp: values[0],
		Host:      values[1],
		Program:   values[2],
		Severity:  values[3],
		Facility:  values[4],
		IP:        values[5],
	}
	if msg, ok := src[SourceMessage]; ok {
		env.Message = &msg
	}
	return env, nil
}

// Record returns the envelope as a fresh record keyed by canonical names.
func (e Envelope) Record() record.Record {
	r := record.Record{
		KeyTimestamp: e.Timestamp,
		KeyHost:      e.Host,
		KeyProgram:   e.Program,
		KeySeverity:  e.Severity,
		KeyFacility:  e.Facility,
		KeyIP:        e.IP,
	}
	if e.Message != nil {
		r[KeyMessage] = *e.Message
	}
	return r
}

// StripSourceKeys returns a copy of src without the source keys that the
// envelope already represents.
func StripSourceKeys(src record.Record) record.Record {
	out := src.Clone()
	for _, k := range stripped {
		delete(out, k)
	}
	return out
}

// Unescape undoes the double escaping found in event-log and sensor exports.
// The replacements run in sequence, quotes first.
func Unescape(line string) string {
	line = strings.ReplaceAll(line, `\"`, `"`)
	return strings.ReplaceAll(line, `\\`, `\`)
}

// Decode parses one JSON object. Numbers are kept as json.Number.
func Decode(text string) (record.Record, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var r record.Record
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if r == nil {
		return nil, errors.New("decode json: not an object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("decode json: trailing data after object")
	}
	return r, nil
}

// Encode serializes a record as compact JSON without HTML escaping and
// without a trailing newline.
func Encode(r record.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

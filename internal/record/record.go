// Package record defines the open log record shape shared by every stage of
// the reformat pipeline, the routing categories and the field map merger.
package record

import (
	"fmt"
	"strings"
)

// Record is a decoded log line. Keys are unique; values are scalars,
// json.Number, slices or nested maps exactly as decoded.
type Record map[string]any

// String returns the string value stored under key.
// The second return value is false when the key is absent or not a string.
func (r Record) String(key string) (string, bool) {
	v, ok := r[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Category is the routing destination assigned to a record by a classifier.
type Category int

const (
	CategoryUnknown Category = iota
	// AuditSimple holds snoopy records. Both snoopy grammars route here.
	AuditSimple
	// AuditExpanded identifies the expanded snoopy grammar. It is an
	// extraction kind and shares the AuditSimple sink.
	AuditExpanded
	// AuditOther holds generic, non-snoopy syslog records.
	AuditOther
	EventLogOther
	// EventLogAuditSource holds sysmon records.
	EventLogAuditSource
	AlertType
	StatsType
	FlowType
	OtherSensorType
)

var categoryNames = map[Category]string{
	CategoryUnknown:     "unknown",
	AuditSimple:         "snoopy",
	AuditExpanded:       "snoopy",
	AuditOther:          "linux",
	EventLogOther:       "windows",
	EventLogAuditSource: "sysmon",
	AlertType:           "alert",
	StatsType:           "stats",
	FlowType:            "flow",
	OtherSensorType:     "protocols",
}

// String returns the category name used in configuration, logs and default
// output directory names.
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// Sink returns the category whose output stream receives records of c.
func (c Category) Sink() Category {
	if c == AuditExpanded {
		return AuditSimple
	}
	return c
}

// ParseCategory resolves a category name. AuditExpanded is never returned
// because it shares its name with AuditSimple.
func ParseCategory(name string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "snoopy":
		return AuditSimple, nil
	case "linux":
		return AuditOther, nil
	case "windows":
		return EventLogOther, nil
	case "sysmon":
		return EventLogAuditSource, nil
	case "alert":
		return AlertType, nil
	case "stats":
		return StatsType, nil
	case "flow":
		return FlowType, nil
	case "protocols":
		return OtherSensorType, nil
	}
	return CategoryUnknown, fmt.Errorf("unknown category %q", name)
}

// Package classifier assigns each record to exactly one routing category.
package classifier

import (
	"errors"
	"fmt"
	"strings"

	"github.com/telhawk-systems/reformat/internal/record"
)

// ErrMissingType is returned when the type field is absent or not a string.
var ErrMissingType = errors.New("missing record type field")

// Rule maps a case-insensitive substring of the type field to a category.
type Rule struct {
	Contains string
	Category record.Category
}

// Classifier evaluates Rules in order; the first match wins. Records that
// match no rule get Fallback.
type Classifier struct {
	Field    string
	Rules    []Rule
	Fallback record.Category
}

// ForAudit classifies syslog records by program name.
func ForAudit() *Classifier {
	return &Classifier{
		Field:    "program",
		Rules:    []Rule{{Contains: "snoopy", Category: record.AuditSimple}},
		Fallback: record.AuditOther,
	}
}

// ForEventLog classifies Windows event records by program name.
func ForEventLog() *Classifier {
	return &Classifier{
		Field:    "program",
		Rules:    []Rule{{Contains: "sysmon", Category: record.EventLogAuditSource}},
		Fallback: record.EventLogOther,
	}
}

// ForSensor classifies Suricata EVE records by event type. Priority is
// alert, then stats, then flow.
func ForSensor() *Classifier {
	return &Classifier{
		Field: "event_type",
		Rules: []Rule{
			{Contains: "alert", Category: record.AlertType},
			{Contains: "stats", Category: record.StatsType},
			{Contains: "flow", Category: record.FlowType},
		},
		Fallback: record.OtherSensorType,
	}
}

// Classify returns the category for r.
func (c *Classifier) Classify(r record.Record) (record.Category, error) {
	value, ok := r.String(c.Field)
	if !ok {
		return record.CategoryUnknown, fmt.Errorf("%w: %s", ErrMissingType, c.Field)
	}
	return c.Match(value), nil
}

// Match classifies a raw type value.
func (c *Classifier) Match(value string) record.Category {
	value = strings.ToLower(value)
	for _, rule := range c.Rules {
		if strings.Contains(value, strings.ToLower(rule.Contains)) {
			return rule.Category
		}
	}
	return c.Fallback
}

// Categories lists every category the classifier can return, rules first.
func (c *Classifier) Categories() []record.Category {
	out := make([]record.Category, 0, len(c.Rules)+1)
	for _, rule := range c.Rules {
		out = append(out, rule.Category)
	}
	return append(out, c.Fallback)
}

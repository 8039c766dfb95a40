// Package pipeline turns one raw input line into a routed, normalized record
// or a tagged failure.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/telhawk-systems/reformat/internal/classifier"
	"github.com/telhawk-systems/reformat/internal/extractor"
	"github.com/telhawk-systems/reformat/internal/normalizer"
	"github.com/telhawk-systems/reformat/internal/reader"
	"github.com/telhawk-systems/reformat/internal/record"
)

// Family names a log family handled by one category job.
type Family string

const (
	FamilyAudit    Family = "audit"
	FamilyEventLog Family = "eventlog"
	FamilySensor   Family = "sensor"
)

// ParseFamily validates a family name.
func ParseFamily(s string) (Family, error) {
	switch f := Family(s); f {
	case FamilyAudit, FamilyEventLog, FamilySensor:
		return f, nil
	}
	return "", fmt.Errorf("unknown log family %q", s)
}

// Reason tags why a line was dropped.
type Reason string

const (
	ReasonDecode       Reason = "decode"
	ReasonMissingField Reason = "missing_field"
	ReasonTuple        Reason = "tuple"
	ReasonEncode       Reason = "encode"
	ReasonWrite        Reason = "write"
)

// LineError is a per-line failure. The line produces no output.
type LineError struct {
	Reason Reason
	Err    error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

func fail(reason Reason, err error) (Result, error) {
	return Result{}, &LineError{Reason: reason, Err: err}
}

// Result is a finished record ready for routing.
type Result struct {
	Category record.Category
	Record   record.Record
	Data     []byte
	// Collision is set when the extension fields were dropped because they
	// redefine an envelope key. The line still counts as processed.
	Collision *record.CollisionError
	// Unmatched is set for audit records whose payload matched no grammar.
	Unmatched bool
	// Message is the payload that failed to match, for diagnostics.
	Message string
}

// Pipeline processes lines of one family. It holds no per-line state.
type Pipeline struct {
	family     Family
	classifier *classifier.Classifier
	extractor  *extractor.Extractor
}

// New builds the pipeline for family. The extractor is required for the
// audit family and ignored otherwise.
func New(family Family, ex *extractor.Extractor) (*Pipeline, error) {
	p := &Pipeline{family: family}

	switch family {
	case FamilyAudit:
		if ex == nil {
			return nil, errors.New("audit pipeline requires an extractor")
		}
		p.classifier = classifier.ForAudit()
		p.extractor = ex
	case FamilyEventLog:
		p.classifier = classifier.ForEventLog()
	case FamilySensor:
		p.classifier = classifier.ForSensor()
	default:
		return nil, fmt.Errorf("unknown log family %q", family)
	}

	return p, nil
}

// Family returns the family the pipeline handles.
func (p *Pipeline) Family() Family {
	return p.family
}

// Categories lists the sink categories reachable from this family.
func (p *Pipeline) Categories() []record.Category {
	return p.classifier.Categories()
}

// Process runs one line through decoding, classification, normalization,
// extraction and merge. A non-nil error is always a *LineError.
func (p *Pipeline) Process(line []byte) (Result, error) {
	text, err := reader.Decode(line)
	if err != nil {
		return fail(ReasonDecode, err)
	}
	if p.family != FamilyAudit {
		text = normalizer.Unescape(text)
	}

	src, err := normalizer.Decode(text)
	if err != nil {
		return fail(ReasonDecode, err)
	}

	cat, err := p.classifier.Classify(src)
	if err != nil {
		return fail(ReasonMissingField, err)
	}

	env, err := normalizer.Project(src)
	if err != nil {
		return fail(ReasonMissingField, err)
	}

	var res Result
	if p.family == FamilyAudit {
		res, err = p.audit(src, env, cat)
	} else {
		res = p.passthrough(src, env, cat)
	}
	if err != nil {
		return Result{}, err
	}

	res.Data, err = normalizer.Encode(res.Record)
	if err != nil {
		return fail(ReasonEncode, err)
	}
	return res, nil
}

func (p *Pipeline) audit(src record.Record, env normalizer.Envelope, cat record.Category) (Result, error) {
	res := Result{Category: cat, Record: env.Record()}
	if cat != record.AuditSimple {
		return res, nil
	}

	// A snoopy record without a payload is routed envelope-only.
	msg, ok := src.String(normalizer.SourceMessage)
	if !ok {
		res.Unmatched = true
		return res, nil
	}

	parsed, err := p.extractor.Extract(msg)
	switch {
	case errors.Is(err, extractor.ErrNoMatch):
		res.Unmatched = true
		res.Message = msg
		return res, nil
	case err != nil:
		return fail(ReasonTuple, err)
	}

	res.Category = parsed.Kind.Category()
	res.Collision = merge(res.Record, parsed.Fields)
	return res, nil
}

func (p *Pipeline) passthrough(src record.Record, env normalizer.Envelope, cat record.Category) Result {
	res := Result{Category: cat, Record: env.Record()}
	res.Collision = merge(res.Record, normalizer.StripSourceKeys(src), normalizer.TimestampOverwrite...)
	return res
}

func merge(base, addition record.Record, allowed ...string) *record.CollisionError {
	var collision *record.CollisionError
	if err := record.Merge(base, addition, allowed...); errors.As(err, &collision) {
		return collision
	}
	return nil
}

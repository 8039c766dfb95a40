package batch

import (
	"github.com/telhawk-systems/reformat/internal/pipeline"
	"github.com/telhawk-systems/reformat/internal/record"
)

// FileOutcome accumulates the line counts of one input file.
type FileOutcome struct {
	File       string
	OK         int
	Bad        int
	Failures   map[pipeline.Reason]int
	Collisions int
	Unmatched  int
	Records    map[record.Category]int
	// Err is the read or close error that ended the file, if any.
	Err error
}

func newOutcome(path string) FileOutcome {
	return FileOutcome{
		File:     path,
		Failures: make(map[pipeline.Reason]int),
		Records:  make(map[record.Category]int),
	}
}

// Lines returns the number of lines read.
func (o FileOutcome) Lines() int {
	return o.OK + o.Bad
}

func (o FileOutcome) failureAttrs() map[string]int {
	out := make(map[string]int, len(o.Failures))
	for reason, n := range o.Failures {
		out[string(reason)] = n
	}
	return out
}

// JobReport summarizes one category job.
type JobReport struct {
	Job   string
	Files []FileOutcome
	// Done counts files processed to completion.
	Done int
	Err  error
}

// Totals sums ok and bad lines across files.
func (r JobReport) Totals() (ok, bad int) {
	for _, f := range r.Files {
		ok += f.OK
		bad += f.Bad
	}
	return ok, bad
}

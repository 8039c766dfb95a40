package logging

import "log/slog"

// Common field names for consistent logging across commands.
const (
	FieldRunID    = "run_id"
	FieldJob      = "job"
	FieldFile     = "file"
	FieldLine     = "line"
	FieldCategory = "category"
	FieldReason   = "reason"
	FieldKey      = "key"
	FieldError    = "error"
	FieldOK       = "ok"
	FieldBad      = "bad"
)

// Job returns a slog attribute for the category job name.
func Job(name string) slog.Attr {
	return slog.String(FieldJob, name)
}

// File returns a slog attribute for an input file path.
func File(path string) slog.Attr {
	return slog.String(FieldFile, path)
}

// Line returns a slog attribute for a 1-based line number.
func Line(n int) slog.Attr {
	return slog.Int(FieldLine, n)
}

// Category returns a slog attribute for a routing category.
func Category(name string) slog.Attr {
	return slog.String(FieldCategory, name)
}

// Reason returns a slog attribute for a line failure reason.
func Reason(reason string) slog.Attr {
	return slog.String(FieldReason, reason)
}

// Key returns a slog attribute for a record key.
func Key(key string) slog.Attr {
	return slog.String(FieldKey, key)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

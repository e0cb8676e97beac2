package logging

import "log/slog"

// Common field names for consistent logging across services.
const (
	FieldService   = "service"
	FieldMessageID = "message_id"
	FieldCohort    = "cohort"
	FieldFilename  = "filename"
	FieldBucket    = "bucket"
	FieldKey       = "key"
	FieldDuration  = "duration_ms"
	FieldError     = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// MessageID returns a slog attribute for a queue message ID.
func MessageID(id string) slog.Attr {
	return slog.String(FieldMessageID, id)
}

// Cohort returns a slog attribute for a cohort identifier.
func Cohort(name string) slog.Attr {
	return slog.String(FieldCohort, name)
}

// Filename returns a slog attribute for an input filename.
func Filename(name string) slog.Attr {
	return slog.String(FieldFilename, name)
}

// Bucket returns a slog attribute for a blob store bucket.
func Bucket(name string) slog.Attr {
	return slog.String(FieldBucket, name)
}

// Key returns a slog attribute for a blob store object key.
func Key(key string) slog.Attr {
	return slog.String(FieldKey, key)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// Package envelope defines the unit of batch work exchanged through the queue.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// ErrMalformed indicates a message body that cannot be parsed into a valid
// job envelope. Redelivery cannot fix a parse error, so consumers delete
// these messages instead of retrying them.
var ErrMalformed = errors.New("malformed job envelope")

// Envelope is the message body for one batch job. The wire format is a
// single flat JSON object: the named fields below plus any caller-supplied
// parameters, which are carried opaquely in Params.
type Envelope struct {
	// MessageID correlates the queue message, the staged input object and
	// the result archive. Assigned exactly once by the producer, before the
	// input upload, and never reused.
	MessageID string

	// Bucket and Key locate the staged input artifact in the blob store.
	Bucket string
	Key    string

	// Filename is the original human-readable name of the input, used for
	// reporting and output naming. Distinct from the storage key.
	Filename string

	Cohort  string
	Email   string
	URLRoot string

	// Params carries any additional job parameters opaquely.
	Params map[string]string
}

// reserved field names handled by the struct itself.
var reserved = map[string]bool{
	"message_id": true,
	"bucket":     true,
	"key":        true,
	"filename":   true,
	"cohort":     true,
	"email":      true,
	"url_root":   true,
}

// MarshalJSON flattens the envelope into a single JSON object.
func (e Envelope) MarshalJSON() ([]byte, error) {
	flat := make(map[string]string, len(e.Params)+7)
	for k, v := range e.Params {
		if !reserved[k] {
			flat[k] = v
		}
	}
	flat["message_id"] = e.MessageID
	flat["bucket"] = e.Bucket
	flat["key"] = e.Key
	flat["filename"] = e.Filename
	flat["cohort"] = e.Cohort
	flat["email"] = e.Email
	flat["url_root"] = e.URLRoot
	return json.Marshal(flat)
}

// UnmarshalJSON splits the flat wire object back into named fields and Params.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var flat map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	e.MessageID = flat["message_id"]
	e.Bucket = flat["bucket"]
	e.Key = flat["key"]
	e.Filename = flat["filename"]
	e.Cohort = flat["cohort"]
	e.Email = flat["email"]
	e.URLRoot = flat["url_root"]
	e.Params = nil
	for k, v := range flat {
		if reserved[k] {
			continue
		}
		if e.Params == nil {
			e.Params = make(map[string]string)
		}
		e.Params[k] = v
	}
	return nil
}

// Parse decodes and validates a message body. A body that is not JSON or is
// missing its correlation fields is reported as ErrMalformed.
func Parse(body []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if e.MessageID == "" || e.Bucket == "" || e.Key == "" {
		return nil, fmt.Errorf("%w: missing message_id, bucket or key", ErrMalformed)
	}
	return &e, nil
}

// InputKey returns the blob store key for a staged input artifact.
func InputKey(prefix, messageID string) string {
	return prefix + messageID
}

// OutputPrefix returns the blob store prefix all result archives for a job
// live under. Download handlers list this prefix to find the archive.
func OutputPrefix(prefix, messageID string) string {
	return prefix + messageID + "/"
}

// OutputKey returns the deterministic result archive key for a job:
// <output_prefix><message_id>/<original base name>.<timestamp>.zip.
func OutputKey(prefix, messageID, filename string, now time.Time) string {
	base := strings.TrimSuffix(filename, path.Ext(filename))
	return fmt.Sprintf("%s%s/%s.%s.zip", prefix, messageID, base, now.Format("20060102_150405"))
}

// ResultsURL builds the link mailed to the requester on success.
func ResultsURL(urlRoot, messageID string) string {
	return strings.TrimSuffix(urlRoot, "/") + "/api/download-batch-results/" + messageID
}

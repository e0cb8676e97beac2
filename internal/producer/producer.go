// Package producer stages input artifacts and enqueues batch jobs.
package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/comets-analytics/comets-batch/internal/blobstore"
	"github.com/comets-analytics/comets-batch/internal/envelope"
	"github.com/comets-analytics/comets-batch/internal/metrics"
	"github.com/comets-analytics/comets-batch/internal/queue"
)

// ErrStaging indicates the input artifact could not be uploaded. No queue
// message exists when this is returned: the message is only sent after the
// upload succeeds, so there is never a partial enqueue.
var ErrStaging = errors.New("staging input artifact failed")

// Params are the caller-supplied job parameters merged into the envelope.
type Params struct {
	Cohort  string
	Email   string
	URLRoot string
	// Filename overrides the reported input name; defaults to the base
	// name of the staged file.
	Filename string
	// Extra carries any additional executor parameters opaquely.
	Extra map[string]string
}

// Producer uploads inputs to the blob store and sends job envelopes.
// It retains no local state between calls.
type Producer struct {
	store          blobstore.Store
	queue          queue.Producer
	bucket         string
	inputKeyPrefix string
}

// New creates a Producer bound to a blob store bucket and queue.
func New(store blobstore.Store, q queue.Producer, bucket, inputKeyPrefix string) *Producer {
	return &Producer{
		store:          store,
		queue:          q,
		bucket:         bucket,
		inputKeyPrefix: inputKeyPrefix,
	}
}

// Enqueue stages inputPath into the blob store and sends one job envelope
// referencing it. Returns the generated message ID, the sole correlation
// key between the message, the staged input and the eventual output.
func (p *Producer) Enqueue(ctx context.Context, inputPath string, params Params) (string, error) {
	// The message ID is assigned before the upload so the staged object key
	// is derived from it.
	messageID := uuid.New().String()
	key := envelope.InputKey(p.inputKeyPrefix, messageID)

	if err := p.store.Upload(ctx, key, inputPath); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStaging, err)
	}
	if info, err := os.Stat(inputPath); err == nil {
		metrics.InputBytesStaged.Add(float64(info.Size()))
	}

	filename := params.Filename
	if filename == "" {
		filename = filepath.Base(inputPath)
	}

	env := envelope.Envelope{
		MessageID: messageID,
		Bucket:    p.bucket,
		Key:       key,
		Filename:  filename,
		Cohort:    params.Cohort,
		Email:     params.Email,
		URLRoot:   params.URLRoot,
		Params:    params.Extra,
	}

	body, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}

	if err := p.queue.Send(ctx, messageID, body); err != nil {
		return "", fmt.Errorf("send job message: %w", err)
	}

	return messageID, nil
}

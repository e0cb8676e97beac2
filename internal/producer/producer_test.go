package producer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comets-analytics/comets-batch/internal/blobstore"
	"github.com/comets-analytics/comets-batch/internal/envelope"
)

type fakeStore struct {
	uploads   map[string]string // key -> source path
	uploadErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{uploads: make(map[string]string)}
}

func (f *fakeStore) Upload(ctx context.Context, key, filename string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads[key] = filename
	return nil
}

func (f *fakeStore) Download(ctx context.Context, key, filename string) error { return nil }
func (f *fakeStore) Delete(ctx context.Context, key string) error             { return nil }
func (f *fakeStore) List(ctx context.Context, prefix string) ([]blobstore.Object, error) {
	return nil, nil
}
func (f *fakeStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", nil
}

type fakeQueue struct {
	sent    []sentMessage
	sendErr error
}

type sentMessage struct {
	messageID string
	body      []byte
}

func (f *fakeQueue) Send(ctx context.Context, messageID string, body []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{messageID: messageID, body: body})
	return nil
}

func writeInput(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("workbook"), 0644))
	return path
}

func TestEnqueue(t *testing.T) {
	store := newFakeStore()
	q := &fakeQueue{}
	p := New(store, q, "comets-batch", "input/")

	email := gofakeit.Email()
	inputPath := writeInput(t, "study.xlsx")

	messageID, err := p.Enqueue(context.Background(), inputPath, Params{
		Cohort:  "X",
		Email:   email,
		URLRoot: "https://comets.example.org",
	})
	require.NoError(t, err)
	require.NotEmpty(t, messageID)

	// Exactly one object staged under the prefix + message ID
	require.Len(t, store.uploads, 1)
	assert.Contains(t, store.uploads, "input/"+messageID)

	// Exactly one message sent, dedup key = message ID
	require.Len(t, q.sent, 1)
	assert.Equal(t, messageID, q.sent[0].messageID)

	env, err := envelope.Parse(q.sent[0].body)
	require.NoError(t, err)
	assert.Equal(t, messageID, env.MessageID)
	assert.Equal(t, "comets-batch", env.Bucket)
	assert.Equal(t, "input/"+messageID, env.Key)
	assert.Equal(t, "study.xlsx", env.Filename)
	assert.Equal(t, "X", env.Cohort)
	assert.Equal(t, email, env.Email)
}

func TestEnqueue_FilenameOverride(t *testing.T) {
	store := newFakeStore()
	q := &fakeQueue{}
	p := New(store, q, "comets-batch", "input/")

	_, err := p.Enqueue(context.Background(), writeInput(t, "tmp-upload-1837.xlsx"), Params{
		Filename: "cohort-study.xlsx",
		Email:    "a@b.com",
	})
	require.NoError(t, err)

	env, err := envelope.Parse(q.sent[0].body)
	require.NoError(t, err)
	assert.Equal(t, "cohort-study.xlsx", env.Filename)
}

func TestEnqueue_UploadFailureSendsNothing(t *testing.T) {
	store := newFakeStore()
	store.uploadErr = errors.New("bucket unreachable")
	q := &fakeQueue{}
	p := New(store, q, "comets-batch", "input/")

	_, err := p.Enqueue(context.Background(), writeInput(t, "study.xlsx"), Params{Email: "a@b.com"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStaging)

	// No partial enqueue: the queue never saw a message
	assert.Empty(t, q.sent)
}

func TestEnqueue_UniqueMessageIDs(t *testing.T) {
	store := newFakeStore()
	q := &fakeQueue{}
	p := New(store, q, "comets-batch", "input/")
	inputPath := writeInput(t, "study.xlsx")

	id1, err := p.Enqueue(context.Background(), inputPath, Params{Email: "a@b.com"})
	require.NoError(t, err)
	id2, err := p.Enqueue(context.Background(), inputPath, Params{Email: "a@b.com"})
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
}

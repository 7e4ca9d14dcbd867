package ingest

import (
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atulwalsh/legal-intake-ai/internal/intake"
)

type fakeS3 struct {
	keys   []string
	bodies map[string][]byte
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	key := aws.ToString(params.Key)
	f.keys = append(f.keys, key)
	if f.bodies == nil {
		f.bodies = make(map[string][]byte)
	}
	body, _ := io.ReadAll(params.Body)
	f.bodies[key] = body
	return &s3.PutObjectOutput{}, nil
}

func TestUploadStoreSave(t *testing.T) {
	fake := &fakeS3{}
	store := NewUploadStore(fake, "intake-uploads", nil)

	url, err := store.Save(context.Background(), "case-1", intake.FileRecord{
		FileID:   "file-1",
		FileName: "police-report.pdf",
		FileType: "application/pdf",
	}, []byte("%PDF-1.4"))
	require.NoError(t, err)

	assert.Equal(t, "s3://intake-uploads/cases/case-1/files/file-1/police-report.pdf", url)
	require.Len(t, fake.keys, 1)
	assert.Equal(t, []byte("%PDF-1.4"), fake.bodies[fake.keys[0]])
}

func TestUploadStoreDisabled(t *testing.T) {
	store := NewUploadStore(nil, "", nil)
	assert.False(t, store.Enabled())

	url, err := store.Save(context.Background(), "case-1", intake.FileRecord{FileID: "file-1"}, []byte("x"))
	require.NoError(t, err)
	assert.Empty(t, url)
}

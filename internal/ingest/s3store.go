package ingest

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/atulwalsh/legal-intake-ai/internal/intake"
	"github.com/atulwalsh/legal-intake-ai/pkg/logging"
)

// S3API is the subset of the S3 client used by UploadStore.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// UploadStore archives raw upload bytes to S3 so the original document
// survives beyond its extracted text. If bucket is empty, all operations
// are no-ops.
type UploadStore struct {
	bucket   string
	s3Client S3API
	logger   *logging.Logger
}

func NewUploadStore(s3Client S3API, bucket string, logger *logging.Logger) *UploadStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &UploadStore{bucket: bucket, s3Client: s3Client, logger: logger}
}

// Enabled returns true if archival is configured.
func (s *UploadStore) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// Save writes the raw bytes under cases/{case_id}/files/{file_id} and
// returns the object URL. Disabled stores return an empty URL and no error.
func (s *UploadStore) Save(ctx context.Context, caseID string, record intake.FileRecord, data []byte) (string, error) {
	if !s.Enabled() {
		return "", nil
	}

	key := fmt.Sprintf("cases/%s/files/%s/%s", caseID, record.FileID, record.FileName)
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(record.FileType),
	})
	if err != nil {
		return "", fmt.Errorf("ingest: s3 put %s: %w", key, err)
	}

	s.logger.Info("archived upload to S3", "case_id", caseID, "file_id", record.FileID, "s3_key", key)
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

//go:build s3
// +build s3

package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store uploads recording blobs to an S3 bucket.
type S3Store struct {
	client  *s3.Client
	bucket  string
	prefix  string
	baseURL string
}

func NewS3Store(client *s3.Client, bucket, prefix, baseURL string) *S3Store {
	return &S3Store{
		client:  client,
		bucket:  bucket,
		prefix:  strings.TrimSuffix(prefix, "/"),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (s *S3Store) key(path string) string {
	if s.prefix == "" {
		return path
	}
	return fmt.Sprintf("%s/%s", s.prefix, path)
}

func (s *S3Store) Upload(ctx context.Context, path string, blob []byte) (string, error) {
	key := s.key(path)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(blob),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload recording to S3: %w", err)
	}

	return s.baseURL + "/" + key, nil
}

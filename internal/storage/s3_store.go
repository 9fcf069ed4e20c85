package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/TheMichaelB/vaultsync/internal/events"
)

// S3Store implements BlobStore on an S3 bucket. All artifacts are already
// encrypted before they reach the store, so no bucket-side encryption is
// assumed.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	logger *events.Logger
}

// NewS3Store creates an S3-backed blob store using ambient AWS credentials.
func NewS3Store(ctx context.Context, bucket, prefix string, logger *events.Logger) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &S3Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
		logger: logger.WithField("component", "s3_store"),
	}, nil
}

// Write uploads a blob.
func (s *S3Store) Write(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.buildKey(key)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"key":  key,
		"size": len(data),
	}).Debug("Wrote blob to S3")

	return nil
}

// Read downloads a blob.
func (s *S3Store) Read(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.buildKey(key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("blob not found: %s", key)
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer result.Body.Close()

	return io.ReadAll(result.Body)
}

// Delete removes a blob; S3 treats missing keys as success.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.buildKey(key)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}

// Exists checks blob presence via HeadObject.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.buildKey(key)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) || strings.Contains(err.Error(), "NotFound") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List pages through keys under a prefix.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	full := s.buildKey(prefix)
	if !strings.HasSuffix(full, "/") {
		full += "/"
	}

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(full),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list objects: %w", err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if s.prefix != "" {
				key = strings.TrimPrefix(key, strings.TrimSuffix(s.prefix, "/")+"/")
			}
			keys = append(keys, key)
		}
	}

	return keys, nil
}

func (s *S3Store) buildKey(key string) string {
	cleaned := strings.TrimPrefix(path.Clean(key), "/")
	if s.prefix != "" {
		return path.Join(s.prefix, cleaned)
	}
	return cleaned
}

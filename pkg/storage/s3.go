package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Client abstracts the S3 API operations used by [S3Store].
// The [s3.Client] type satisfies this interface.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store implements MediaStore on Amazon S3 or any S3-compatible object
// store (MinIO, R2, etc.). Objects live under an optional key prefix.
type S3Store struct {
	client S3Client
	bucket string
	prefix string
}

// NewS3 creates an S3-backed MediaStore. The client carries credentials,
// region and endpoint.
func NewS3(client S3Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// S3Options configures an s3.Client for NewS3FromOptions.
type S3Options struct {
	Region   string
	Endpoint string

	// PathStyle is required by most self-hosted S3-compatible stores.
	PathStyle bool
}

// NewS3FromOptions builds an S3Store on cfg, applying region and endpoint
// overrides.
func NewS3FromOptions(cfg aws.Config, bucket, prefix string, opts S3Options) *S3Store {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Region != "" {
			o.Region = opts.Region
		}
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})
	return NewS3(client, bucket, prefix)
}

func (s *S3Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// Save uploads r with PutObject and returns an s3://bucket/key URL.
func (s *S3Store) Save(ctx context.Context, name, mimeType string, r io.Reader) (string, error) {
	name, err := CleanName(name)
	if err != nil {
		return "", err
	}
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
		Body:   r,
	}
	if mimeType != "" {
		in.ContentType = aws.String(mimeType)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("storage: upload %s: %w", name, err)
	}
	return "s3://" + s.bucket + "/" + s.key(name), nil
}

// Open reads the named object via GetObject.
func (s *S3Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	name, err := CleanName(name)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("storage: open %s: %w", name, os.ErrNotExist)
		}
		return nil, err
	}
	return out.Body, nil
}

func (s *S3Store) Close() error {
	return nil
}

// isS3NotFound reports whether err indicates the S3 object does not exist.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

var _ MediaStore = (*S3Store)(nil)

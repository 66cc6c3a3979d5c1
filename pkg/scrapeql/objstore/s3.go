// Package objstore reads and writes documents in S3 or S3-compatible
// object storage, addressed as s3://bucket/key.
package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Scheme is the URI prefix handled by this package.
const Scheme = "s3://"

// Config configures the S3 client.
type Config struct {
	Region   string
	Endpoint string // For S3-compatible services (MinIO, etc.)
	// AccessKeyID and SecretAccessKey are optional; without them the default
	// AWS credential chain (environment, shared config, instance role) is used.
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool // Use path-style addressing
}

// Store is an S3 client bound to a configuration.
type Store struct {
	client *s3.Client
}

// New creates a store. No request is made until Open or Put is called.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	// Use static credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	return &Store{client: s3.NewFromConfig(awsCfg, s3Opts...)}, nil
}

// Open returns a reader over the object at uri. The caller closes it and
// decides how much of it to read.
func (s *Store) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("S3 get object failed: %w", err)
	}
	return resp.Body, nil
}

// Put writes data to the object at uri.
func (s *Store) Put(ctx context.Context, uri string, data []byte, contentType string) error {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("S3 put object failed: %w", err)
	}
	return nil
}

// IsURI reports whether s names an object.
func IsURI(s string) bool {
	return strings.HasPrefix(s, Scheme)
}

// ErrInvalidURI is returned for s3:// URIs without a bucket or key.
var ErrInvalidURI = errors.New("invalid s3 uri")

// ParseURI splits s3://bucket/key/path into its bucket and key.
func ParseURI(uri string) (bucket, key string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("%w: %q does not start with %s", ErrInvalidURI, uri, Scheme)
	}
	rest := strings.TrimPrefix(uri, Scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q needs a bucket and a key", ErrInvalidURI, uri)
	}
	return bucket, key, nil
}

// Package s3 stores track audio in an S3 (or S3-compatible) bucket.
// The bucket stays private; playback clients receive short-lived
// presigned GET URLs instead of proxied bytes.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3aws "github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	// ErrInvalidConfig is returned when required settings are missing.
	ErrInvalidConfig = errors.New("invalid s3 configuration")
	// ErrUploadFailed wraps upload errors.
	ErrUploadFailed = errors.New("failed to upload object")
	// ErrDeleteFailed wraps delete errors.
	ErrDeleteFailed = errors.New("failed to delete object")
	// ErrPresignFailed wraps URL signing errors.
	ErrPresignFailed = errors.New("failed to presign url")
)

// Storage wraps the S3 client for the media bucket.
type Storage struct {
	client     *s3aws.Client
	presign    *s3aws.PresignClient
	bucket     string
	presignTTL time.Duration
}

// New creates the storage over the configured bucket. MinIO and other
// S3-compatible services work via Endpoint plus ForcePathStyle.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, ErrInvalidConfig
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := s3aws.NewFromConfig(awsCfg, func(o *s3aws.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &Storage{
		client:     client,
		presign:    s3aws.NewPresignClient(client),
		bucket:     cfg.Bucket,
		presignTTL: ttl,
	}, nil
}

// Upload stores an object under the given key.
func (s *Storage) Upload(ctx context.Context, key, contentType string, body io.Reader) error {
	_, err := s.client.PutObject(ctx, &s3aws.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return errors.Join(ErrUploadFailed, err)
	}
	return nil
}

// Delete removes an object.
func (s *Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3aws.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.Join(ErrDeleteFailed, err)
	}
	return nil
}

// PresignGet returns a short-lived URL for streaming the object.
func (s *Storage) PresignGet(ctx context.Context, key string) (string, time.Duration, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3aws.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3aws.WithPresignExpires(s.presignTTL))
	if err != nil {
		return "", 0, errors.Join(ErrPresignFailed, err)
	}
	return req.URL, s.presignTTL, nil
}
